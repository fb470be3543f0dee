package session

import (
	"testing"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type keyValueProvider struct{}

func (keyValueProvider) Name() string { return "infinispan" }

type mongoProvider struct {
	db *mongo.Database
}

func (p mongoProvider) Name() string              { return "mongodb" }
func (p mongoProvider) Database() *mongo.Database { return p.db }

func TestFactoryExposesDocumentStoreCapability(t *testing.T) {
	client, err := mongo.NewClient(options.Client().ApplyURI("mongodb://example.com:27017"))
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}

	factory := NewFactory(mongoProvider{db: client.Database("ogm_test")})

	store, ok := factory.DocumentStore()
	if !ok {
		t.Fatalf("expected document store capability")
	}
	if store.Database().Name() != "ogm_test" {
		t.Fatalf("expected database ogm_test, got %s", store.Database().Name())
	}
	if factory.Provider().Name() != "mongodb" {
		t.Fatalf("expected mongodb provider, got %s", factory.Provider().Name())
	}
}

func TestFactoryReportsMissingCapability(t *testing.T) {
	factory := NewFactory(keyValueProvider{})

	if _, ok := factory.DocumentStore(); ok {
		t.Fatalf("expected key/value provider to lack document store capability")
	}
}

func TestNilFactory(t *testing.T) {
	var factory *Factory

	if factory.Provider() != nil {
		t.Fatalf("expected nil provider")
	}
	if _, ok := factory.DocumentStore(); ok {
		t.Fatalf("expected nil factory to lack document store capability")
	}
	if _, ok := NewFactory(nil).DocumentStore(); ok {
		t.Fatalf("expected empty factory to lack document store capability")
	}
}
