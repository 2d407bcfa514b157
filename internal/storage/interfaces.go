// Package storage provides composable persistence interfaces for the Troupe
// engine.
//
// The storage layer is designed with small, focused interfaces that can be
// implemented independently and composed as needed. The engine loads the
// whole population at startup (warm start) and writes entities and edges
// through on mutation; the authoritative live state stays in memory.
package storage

import (
	"context"

	"github.com/casthaven/troupe/pkg/types"
)

// EntityStore persists entities.
type EntityStore interface {
	// SaveEntity creates or updates an entity (upsert semantics).
	SaveEntity(ctx context.Context, e *types.Entity) error

	// GetEntity retrieves an entity by ID.
	// Returns types.ErrNotFound if the entity doesn't exist.
	GetEntity(ctx context.Context, id string) (*types.Entity, error)

	// ListEntities retrieves all entities, sorted by ID.
	ListEntities(ctx context.Context) ([]*types.Entity, error)
}

// EdgeStore persists relationship edges.
type EdgeStore interface {
	// SaveEdge creates or updates the edge for its unordered entity pair
	// (upsert semantics; the pair is the key, not the stored direction).
	SaveEdge(ctx context.Context, edge *types.RelationshipEdge) error

	// GetEdge retrieves the edge between two entities, in either order.
	// Returns types.ErrNotFound if the pair has no edge.
	GetEdge(ctx context.Context, a, b string) (*types.RelationshipEdge, error)

	// ListEdges retrieves all edges.
	ListEdges(ctx context.Context) ([]*types.RelationshipEdge, error)
}

// Store is the full persistence contract the engine wires at startup.
type Store interface {
	EntityStore
	EdgeStore

	// Close releases any resources held by the store.
	Close() error
}
