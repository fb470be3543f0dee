// Package cli wires the inspector into a cobra command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"

	"ogm_mongodb_inspector/internal/config"
	"ogm_mongodb_inspector/internal/health"
	"ogm_mongodb_inspector/internal/inspect"
	"ogm_mongodb_inspector/internal/logging"
	"ogm_mongodb_inspector/internal/session"
	"ogm_mongodb_inspector/internal/store"
)

const (
	mongoConnectTimeout    = 10 * time.Second
	mongoDisconnectTimeout = 5 * time.Second
	operationTimeout       = 30 * time.Second
	healthShutdownTimeout  = 5 * time.Second
)

// Inspector is what the commands need from inspect.Inspector.
type Inspector interface {
	health.StatsSource
	FetchEntity(ctx context.Context, key inspect.EntityKey) (bson.M, bool, error)
	DropDatabase(ctx context.Context) error
	EnvironmentProperties() map[string]string
}

// backend bundles an open connection with the inspector built on it.
type backend struct {
	inspector Inspector
	checker   health.MongoChecker
	close     func(context.Context) error
}

// loadConfig is overridable for tests.
var loadConfig = config.Load

// openBackend is overridable for tests.
var openBackend = func(ctx context.Context, cfg config.Config, logger *logrus.Entry) (*backend, error) {
	manager, err := store.NewManager(ctx, cfg)
	if err != nil {
		return nil, err
	}

	inspector, err := inspect.FromFactory(session.NewFactory(manager),
		inspect.WithAssociationPrefix(cfg.AssociationsPrefix),
		inspect.WithEnvironmentOverrides(cfg.Overrides),
		inspect.WithLogger(logger),
	)
	if err != nil {
		_ = manager.Close(ctx)
		return nil, err
	}

	return &backend{inspector: inspector, checker: manager, close: manager.Close}, nil
}

type app struct {
	cfg    config.Config
	logger *logrus.Entry
}

// NewRootCommand builds the inspector command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "inspector",
		Short:         "Inspect the MongoDB database used by persistence integration tests",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			logger, err := logging.Setup(cfg)
			if err != nil {
				return fmt.Errorf("logger setup error: %w", err)
			}
			a.cfg = cfg
			a.logger = logger
			return nil
		},
	}

	root.AddCommand(a.newConfigCommand())
	root.AddCommand(a.newCountsCommand())
	root.AddCommand(a.newFetchCommand())
	root.AddCommand(a.newDropCommand())
	root.AddCommand(a.newServeCommand())

	return root
}

// Execute runs the root command against ctx.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// withBackend opens a connection, runs fn and always disconnects.
func (a *app) withBackend(ctx context.Context, fn func(*backend) error) error {
	connectCtx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
	b, err := openBackend(connectCtx, a.cfg, a.logger)
	cancel()
	if err != nil {
		return fmt.Errorf("mongo connection error: %w", err)
	}

	logging.WithContext(a.logger, logging.Context{
		Database: a.cfg.MongoDB,
		Event:    "mongo_connect",
	}).Debug("connected to mongo")

	runErr := fn(b)

	closeCtx, cancelClose := context.WithTimeout(context.Background(), mongoDisconnectTimeout)
	defer cancelClose()
	if err := b.close(closeCtx); err != nil {
		a.logger.WithError(err).Error("mongo disconnect error")
		if runErr == nil {
			runErr = fmt.Errorf("mongo disconnect error: %w", err)
		}
	}

	return runErr
}

func operationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, operationTimeout)
}

var errDropNotConfirmed = errors.New("refusing to drop without --yes")
