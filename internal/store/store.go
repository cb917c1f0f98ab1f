// Package store defines the durable state abstractions of the monitor
// service. The engine and command surface depend only on these interfaces,
// never on a concrete backend.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"vintedwatch/monitor-service/internal/model"
)

// ErrNotFound is returned when a search identifier is not in the registry.
var ErrNotFound = errors.New("search not found")

// SearchRegistry holds the active search definitions. Implementations must
// survive process restarts and must never reuse an identifier after removal.
type SearchRegistry interface {
	// Add validates the definition, assigns a fresh identifier and persists
	// it. The stored definition (with identifier) is returned.
	Add(ctx context.Context, def model.SearchDefinition) (model.SearchDefinition, error)
	List(ctx context.Context) ([]model.SearchDefinition, error)
	// Remove deletes a search by identifier, ErrNotFound when absent.
	Remove(ctx context.Context, id string) error
}

// SeenStore records which (search, listing) pairs have already produced a
// notification. Records are append-only; a marked pair stays marked across
// restarts. Mark must be safe under concurrent search evaluations.
type SeenStore interface {
	Has(ctx context.Context, searchID, listingID string) (bool, error)
	Mark(ctx context.Context, searchID, listingID string) error
}

// newSearchID returns a fresh, never-reused search identifier. Random UUIDs
// rule out seen-state collisions between a removed search and a later one.
func newSearchID() string {
	return uuid.NewString()
}
