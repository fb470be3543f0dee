package inspect

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Database is the subset of *mongo.Database the inspector relies on.
type Database interface {
	Name() string
	ListCollectionNames(ctx context.Context, filter interface{}, opts ...*options.ListCollectionsOptions) ([]string, error)
	Collection(name string) Collection
	Drop(ctx context.Context) error
}

// Collection is the subset of *mongo.Collection the inspector relies on.
type Collection interface {
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

// WrapDatabase adapts a driver database handle to Database.
func WrapDatabase(db *mongo.Database) Database {
	return mongoDatabase{db: db}
}

type mongoDatabase struct {
	db *mongo.Database
}

func (d mongoDatabase) Name() string {
	return d.db.Name()
}

func (d mongoDatabase) ListCollectionNames(ctx context.Context, filter interface{}, opts ...*options.ListCollectionsOptions) ([]string, error) {
	return d.db.ListCollectionNames(ctx, filter, opts...)
}

func (d mongoDatabase) Collection(name string) Collection {
	return d.db.Collection(name)
}

func (d mongoDatabase) Drop(ctx context.Context) error {
	return d.db.Drop(ctx)
}
