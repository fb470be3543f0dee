// Package inspect reads back what the persistence framework stored in
// MongoDB so integration tests can assert on it: entity and association
// counts, embedded reference markers, raw entity documents, and a full reset.
//
// Every call re-reads live data; nothing is cached between calls.
package inspect

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ogm_mongodb_inspector/internal/document"
	"ogm_mongodb_inspector/internal/errs"
	"ogm_mongodb_inspector/internal/logging"
	"ogm_mongodb_inspector/internal/session"
)

const (
	// SystemCollectionPrefix marks MongoDB internal collections.
	SystemCollectionPrefix = "system."
	// DefaultAssociationPrefix marks collections holding association documents.
	DefaultAssociationPrefix = "associations_"
	// IDFieldName is the primary identifier field shared with the storage dialect.
	IDFieldName = "_id"
)

// CollectionClass is the role of a collection, derived from its name.
type CollectionClass int

const (
	ClassEntity CollectionClass = iota
	ClassSystem
	ClassAssociation
)

func (c CollectionClass) String() string {
	switch c {
	case ClassSystem:
		return "system"
	case ClassAssociation:
		return "association"
	default:
		return "entity"
	}
}

// EntityKey addresses exactly one stored entity document.
type EntityKey struct {
	Table string
	ID    interface{}
}

// Dialect is the inspection contract integration suites are written against.
type Dialect interface {
	EntityRecordCount(ctx context.Context) (int64, error)
	AssociationRecordCount(ctx context.Context) (int64, error)
	FetchEntity(ctx context.Context, key EntityKey) (bson.M, bool, error)
	DropDatabase(ctx context.Context) error
	SupportsTransactions() bool
	EnvironmentProperties() map[string]string
}

var _ Dialect = (*Inspector)(nil)

// Option customises an Inspector.
type Option func(*Inspector)

// WithAssociationPrefix overrides the association collection prefix.
func WithAssociationPrefix(prefix string) Option {
	return func(i *Inspector) {
		if prefix != "" {
			i.associationPrefix = prefix
		}
	}
}

// WithEnvironmentOverrides injects the host/port overrides captured at
// startup (see config.ParseOverrides).
func WithEnvironmentOverrides(overrides map[string]string) Option {
	return func(i *Inspector) {
		i.overrides = copyMap(overrides)
	}
}

// WithLogger sets the logger entry.
func WithLogger(logger *logrus.Entry) Option {
	return func(i *Inspector) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// Inspector queries a live MongoDB database. The database handle is
// borrowed; the caller owns its lifecycle.
type Inspector struct {
	db                Database
	associationPrefix string
	overrides         map[string]string
	logger            *logrus.Entry
}

// New constructs an Inspector over db.
func New(db Database, opts ...Option) (*Inspector, error) {
	if db == nil {
		return nil, errs.New(errs.KindInvalidInput, "database is required")
	}

	i := &Inspector{
		db:                db,
		associationPrefix: DefaultAssociationPrefix,
		overrides:         map[string]string{},
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.logger == nil {
		i.logger = logging.Logger()
	}
	i.logger = i.logger.WithField("database", db.Name())

	return i, nil
}

// FromFactory resolves the MongoDB connection behind a session factory and
// returns an Inspector over it. A factory backed by any other datastore is a
// usage error.
func FromFactory(factory *session.Factory, opts ...Option) (*Inspector, error) {
	store, ok := factory.DocumentStore()
	if !ok || store.Database() == nil {
		found := "no datastore"
		if provider := factory.Provider(); provider != nil {
			found = fmt.Sprintf("datastore %q", provider.Name())
		}
		return nil, errs.New(errs.KindUsage, fmt.Sprintf("not testing with MongoDB (session uses %s), cannot extract underlying database", found))
	}

	return New(WrapDatabase(store.Database()), opts...)
}

// Classify returns the role of the named collection.
func (i *Inspector) Classify(name string) CollectionClass {
	switch {
	case strings.HasPrefix(name, SystemCollectionPrefix):
		return ClassSystem
	case strings.HasPrefix(name, i.associationPrefix):
		return ClassAssociation
	default:
		return ClassEntity
	}
}

// EntityRecordCount sums the documents of every entity collection.
func (i *Inspector) EntityRecordCount(ctx context.Context) (int64, error) {
	return i.countDocuments(ctx, ClassEntity)
}

// AssociationRecordCount sums the documents of every association collection.
func (i *Inspector) AssociationRecordCount(ctx context.Context) (int64, error) {
	return i.countDocuments(ctx, ClassAssociation)
}

// AssociationReferenceCount counts the reference markers embedded in every
// association document, ignoring each document's own _id.
func (i *Inspector) AssociationReferenceCount(ctx context.Context) (int64, error) {
	names, err := i.collectionNames(ctx, ClassAssociation)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, name := range names {
		count, err := i.countReferencesIn(ctx, name)
		if err != nil {
			return 0, err
		}
		total += count
	}

	i.logger.WithFields(logging.Fields{
		"event":       "association_references",
		"collections": len(names),
		"references":  total,
	}).Debug("counted association references")

	return total, nil
}

// FetchEntity returns the stored document addressed by key. found is false
// when no document matches, including when the collection does not exist.
func (i *Inspector) FetchEntity(ctx context.Context, key EntityKey) (doc bson.M, found bool, err error) {
	if err := i.check(ctx); err != nil {
		return nil, false, err
	}
	if strings.TrimSpace(key.Table) == "" {
		return nil, false, errs.New(errs.KindInvalidInput, "entity key table is required")
	}

	result := i.db.Collection(key.Table).FindOne(ctx, bson.D{{Key: IDFieldName, Value: key.ID}})
	if result == nil {
		return nil, false, errs.New(errs.KindStoreOperation, fmt.Sprintf("find entity in %s returned no result", key.Table))
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, false, nil
		}
		return nil, false, errs.Wrap(errs.KindStoreOperation, fmt.Sprintf("find entity in %s", key.Table), err)
	}

	if err := result.Decode(&doc); err != nil {
		return nil, false, errs.Wrap(errs.KindStoreOperation, fmt.Sprintf("decode entity from %s", key.Table), err)
	}

	return doc, true, nil
}

// DropDatabase irreversibly removes the database with all its collections.
func (i *Inspector) DropDatabase(ctx context.Context) error {
	if err := i.check(ctx); err != nil {
		return err
	}

	name := i.db.Name()
	if err := i.db.Drop(ctx); err != nil {
		i.logger.WithField("event", "drop_database").WithError(err).Error("unable to drop database")
		return errs.Wrap(errs.KindStoreOperation, fmt.Sprintf("unable to drop database %s", name), err)
	}

	i.logger.WithField("event", "drop_database").Info("dropped database")
	return nil
}

// SupportsTransactions reports whether the backend offers transactions to the
// framework; the MongoDB dialect does not.
func (i *Inspector) SupportsTransactions() bool {
	return false
}

// EnvironmentProperties returns the overrides injected at construction.
func (i *Inspector) EnvironmentProperties() map[string]string {
	if i == nil {
		return map[string]string{}
	}
	return copyMap(i.overrides)
}

func (i *Inspector) countDocuments(ctx context.Context, class CollectionClass) (int64, error) {
	names, err := i.collectionNames(ctx, class)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, name := range names {
		count, err := i.db.Collection(name).CountDocuments(ctx, bson.D{})
		if err != nil {
			return 0, errs.Wrap(errs.KindStoreOperation, fmt.Sprintf("count documents in %s", name), err)
		}
		i.collectionLogger(name, "count_documents").WithField("documents", count).Debug("counted collection")
		total += count
	}

	i.logger.WithFields(logging.Fields{
		"event":       "count_documents",
		"class":       class.String(),
		"collections": len(names),
		"documents":   total,
	}).Debug("counted documents")

	return total, nil
}

func (i *Inspector) countReferencesIn(ctx context.Context, name string) (int64, error) {
	cursor, err := i.db.Collection(name).Find(ctx, bson.D{},
		options.Find().SetProjection(bson.D{{Key: IDFieldName, Value: 0}}),
	)
	if err != nil {
		return 0, errs.Wrap(errs.KindStoreOperation, fmt.Sprintf("scan %s", name), err)
	}
	defer cursor.Close(ctx)

	var total int64
	for cursor.Next(ctx) {
		var raw bson.D
		if err := cursor.Decode(&raw); err != nil {
			return 0, errs.Wrap(errs.KindStoreOperation, fmt.Sprintf("decode document from %s", name), err)
		}
		doc, err := document.FromBSON(raw)
		if err != nil {
			return 0, errs.Wrap(errs.KindStoreOperation, fmt.Sprintf("convert document from %s", name), err)
		}
		total += int64(document.CountReferences(doc))
	}
	if err := cursor.Err(); err != nil {
		return 0, errs.Wrap(errs.KindStoreOperation, fmt.Sprintf("scan %s", name), err)
	}

	i.collectionLogger(name, "scan_references").WithField("references", total).Debug("scanned collection")
	return total, nil
}

func (i *Inspector) collectionLogger(collection, event string) *logrus.Entry {
	return logging.WithContext(i.logger, logging.Context{
		Database:   i.db.Name(),
		Collection: collection,
		Event:      event,
	})
}

func (i *Inspector) collectionNames(ctx context.Context, class CollectionClass) ([]string, error) {
	if err := i.check(ctx); err != nil {
		return nil, err
	}

	all, err := i.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, errs.Wrap(errs.KindStoreOperation, fmt.Sprintf("list collections in %s", i.db.Name()), err)
	}

	names := make([]string, 0, len(all))
	for _, name := range all {
		if i.Classify(name) == class {
			names = append(names, name)
		}
	}
	return names, nil
}

func (i *Inspector) check(ctx context.Context) error {
	if i == nil || i.db == nil {
		return errs.New(errs.KindInvalidInput, "inspector is not initialized")
	}
	if ctx == nil {
		return errs.New(errs.KindInvalidInput, "context is required")
	}
	return nil
}

func copyMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
