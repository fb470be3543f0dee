package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"ogm_mongodb_inspector/internal/config"
	"ogm_mongodb_inspector/internal/health"
	"ogm_mongodb_inspector/internal/inspect"
)

func (a *app) newConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration with credentials redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, config.FormatRedacted(a.cfg))
			return nil
		},
	}
}

func (a *app) newCountsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "counts",
		Short: "Count entity documents, association documents and embedded references",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBackend(cmd.Context(), func(b *backend) error {
				ctx, cancel := operationContext(cmd.Context())
				defer cancel()

				entities, err := b.inspector.EntityRecordCount(ctx)
				if err != nil {
					return err
				}
				associations, err := b.inspector.AssociationRecordCount(ctx)
				if err != nil {
					return err
				}
				references, err := b.inspector.AssociationReferenceCount(ctx)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "entities: %d\n", entities)
				fmt.Fprintf(out, "associations: %d\n", associations)
				fmt.Fprintf(out, "references: %d\n", references)

				props := b.inspector.EnvironmentProperties()
				keys := make([]string, 0, len(props))
				for k := range props {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Fprintf(out, "override %s: %s\n", k, props[k])
				}
				return nil
			})
		},
	}
}

func (a *app) newFetchCommand() *cobra.Command {
	var asString bool

	cmd := &cobra.Command{
		Use:   "fetch <collection> <id>",
		Short: "Print one stored entity document as extended JSON",
		Long: `Fetch the document whose _id matches <id> from <collection>.
The id is read as an ObjectID when it is 24 hex characters, then as an
integer, otherwise as a string. Use --string to skip the conversion.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := inspect.EntityKey{Table: args[0], ID: parseID(args[1], asString)}

			return a.withBackend(cmd.Context(), func(b *backend) error {
				ctx, cancel := operationContext(cmd.Context())
				defer cancel()

				doc, found, err := b.inspector.FetchEntity(ctx, key)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if !found {
					fmt.Fprintf(out, "no entity with _id %v in %s\n", key.ID, key.Table)
					return nil
				}

				data, err := bson.MarshalExtJSONIndent(doc, false, false, "", "  ")
				if err != nil {
					return fmt.Errorf("encode entity: %w", err)
				}
				fmt.Fprintln(out, string(data))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asString, "string", false, "Treat the id as a plain string")

	return cmd
}

func (a *app) newDropCommand() *cobra.Command {
	var confirmed bool

	cmd := &cobra.Command{
		Use:   "drop",
		Short: "Irreversibly drop the configured database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return errDropNotConfirmed
			}

			return a.withBackend(cmd.Context(), func(b *backend) error {
				ctx, cancel := operationContext(cmd.Context())
				defer cancel()

				if err := b.inspector.DropDatabase(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "dropped database %s\n", a.cfg.MongoDB)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&confirmed, "yes", false, "Confirm dropping the database")

	return cmd
}

func (a *app) newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve /healthz and /stats until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBackend(cmd.Context(), func(b *backend) error {
				signalCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()

				server := health.NewServer(a.cfg.HTTPPort, b.checker, b.inspector, a.logger)
				errCh := make(chan error, 1)
				go func() {
					errCh <- server.ListenAndServe()
				}()

				select {
				case <-signalCtx.Done():
					a.logger.WithField("event", "shutdown_signal").Info("received termination signal, stopping health server")
				case err := <-errCh:
					return err
				}

				shutdownCtx, cancel := context.WithTimeout(context.Background(), healthShutdownTimeout)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("health server shutdown: %w", err)
				}
				return <-errCh
			})
		},
	}
}

func parseID(raw string, asString bool) interface{} {
	if asString {
		return raw
	}
	if oid, err := primitive.ObjectIDFromHex(raw); err == nil {
		return oid
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	return raw
}
