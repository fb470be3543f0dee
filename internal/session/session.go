// Package session models the persistence framework's session factory: an
// opaque handle over whichever datastore provider the framework was
// configured with.
package session

import (
	"go.mongodb.org/mongo-driver/mongo"
)

// Provider is a configured datastore backend.
type Provider interface {
	Name() string
}

// DocumentStore is the capability exposed by MongoDB-backed providers.
type DocumentStore interface {
	Provider
	Database() *mongo.Database
}

// Factory hands out the provider registered for a session.
type Factory struct {
	provider Provider
}

// NewFactory constructs a Factory around provider.
func NewFactory(provider Provider) *Factory {
	return &Factory{provider: provider}
}

// Provider returns the registered provider, or nil.
func (f *Factory) Provider() Provider {
	if f == nil {
		return nil
	}
	return f.provider
}

// DocumentStore returns the provider as a DocumentStore when it supports
// that capability; ok is false for any other backend.
func (f *Factory) DocumentStore() (store DocumentStore, ok bool) {
	if f == nil || f.provider == nil {
		return nil, false
	}
	store, ok = f.provider.(DocumentStore)
	return store, ok
}
