// Package graph provides the authoritative in-memory relationship graph for
// the Troupe character engine: entities and relationship edges held in flat
// maps keyed by identifier, with per-entity locking so that unrelated
// mutations proceed in parallel.
//
// Edges are stored in an adjacency structure keyed by unordered ID pairs -
// identifiers, not live object pointers, form the relationship, which keeps
// the structure free of reference cycles and arena-friendly.
package graph

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/casthaven/troupe/pkg/types"
)

// pairKey is the canonical (lexicographically ordered) key for an unordered
// entity pair. At most one edge exists per key.
type pairKey struct {
	a, b string
}

func keyFor(a, b string) pairKey {
	ca, cb := types.CanonicalPair(a, b)
	return pairKey{ca, cb}
}

// Store is the whole-population relationship graph. It owns all Entity and
// RelationshipEdge state; callers receive clones and never hold references
// into store-owned objects.
//
// Locking discipline:
//   - mu guards the maps themselves (membership, iteration).
//   - each entity has its own mutex; trait/energy mutation and edge mutation
//     require the participant locks, acquired in canonical ID order to
//     prevent deadlock. An edge is protected by holding both endpoint locks.
//   - multi-entity snapshot reads (fusion) lock all sources in canonical
//     order for the duration of the copy, so no half-updated vector is
//     observed.
type Store struct {
	mu       sync.RWMutex
	entities map[string]*types.Entity
	edges    map[pairKey]*types.RelationshipEdge
	locks    map[string]*sync.Mutex

	historyCapacity int
}

// NewStore creates an empty graph store. historyCapacity bounds each edge's
// interaction history ring; values < 1 fall back to the default.
func NewStore(historyCapacity int) *Store {
	if historyCapacity < 1 {
		historyCapacity = types.DefaultHistoryCapacity
	}
	return &Store{
		entities:        make(map[string]*types.Entity),
		edges:           make(map[pairKey]*types.RelationshipEdge),
		locks:           make(map[string]*sync.Mutex),
		historyCapacity: historyCapacity,
	}
}

// AddEntity registers an entity with the store. The store keeps its own
// deep copy. Returns ErrValidation if an entity with the same ID already
// exists or the entity is malformed.
func (s *Store) AddEntity(e *types.Entity) error {
	if e == nil || e.ID == "" {
		return fmt.Errorf("%w: entity ID is required", types.ErrValidation)
	}
	if len(e.Traits) == 0 || len(e.Anchor) == 0 {
		return fmt.Errorf("%w: entity %s has no trait vectors", types.ErrValidation, e.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entities[e.ID]; exists {
		return fmt.Errorf("%w: entity %s already exists", types.ErrValidation, e.ID)
	}

	s.entities[e.ID] = e.Clone()
	s.locks[e.ID] = &sync.Mutex{}
	return nil
}

// GetEntity returns a snapshot copy of an entity.
// Returns ErrNotFound if the entity is not in the store.
func (s *Store) GetEntity(id string) (*types.Entity, error) {
	s.mu.RLock()
	e, lock := s.entities[id], s.locks[id]
	s.mu.RUnlock()

	if e == nil {
		return nil, fmt.Errorf("%w: entity %s", types.ErrNotFound, id)
	}

	lock.Lock()
	defer lock.Unlock()
	return e.Clone(), nil
}

// ListEntities returns snapshot copies of all entities, sorted by ID.
func (s *Store) ListEntities() []*types.Entity {
	s.mu.RLock()
	ids := make([]string, 0, len(s.entities))
	for id := range s.entities {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)

	out := make([]*types.Entity, 0, len(ids))
	for _, id := range ids {
		if e, err := s.GetEntity(id); err == nil {
			out = append(out, e)
		}
	}
	return out
}

// SetActive flips an entity's soft lifecycle flag and returns the updated
// snapshot. Inactive entities keep their edges but drop out of community
// detection and neighborhood queries.
func (s *Store) SetActive(id string, active bool) (*types.Entity, error) {
	var snapshot *types.Entity
	err := s.WithEntity(id, func(e *types.Entity) error {
		e.Active = active
		e.UpdatedAt = time.Now()
		snapshot = e.Clone()
		return nil
	})
	return snapshot, err
}

// GetEdge returns a snapshot copy of the edge between a and b.
// Returns ErrNotFound if the pair has never interacted.
func (s *Store) GetEdge(a, b string) (*types.RelationshipEdge, error) {
	s.mu.RLock()
	edge := s.edges[keyFor(a, b)]
	lockA, lockB := s.locks[a], s.locks[b]
	s.mu.RUnlock()

	if edge == nil {
		return nil, fmt.Errorf("%w: edge %s<->%s", types.ErrNotFound, a, b)
	}

	unlock := lockPair(a, b, lockA, lockB)
	defer unlock()
	return edge.Clone(), nil
}

// WithEntity runs fn with exclusive access to the live entity. fn must not
// retain the pointer past its return. Returns ErrNotFound when the entity is
// absent; any error from fn is propagated unchanged.
func (s *Store) WithEntity(id string, fn func(e *types.Entity) error) error {
	s.mu.RLock()
	e, lock := s.entities[id], s.locks[id]
	s.mu.RUnlock()

	if e == nil {
		return fmt.Errorf("%w: entity %s", types.ErrNotFound, id)
	}

	lock.Lock()
	defer lock.Unlock()
	return fn(e)
}

// WithPair runs fn with exclusive access to both live entities and their
// (lazily created) edge. Locks are taken in canonical ID order. The edge is
// created with neutral-cautious defaults on first use; if fn returns an
// error after the edge was created, the fresh edge is retained (creation is
// idempotent and carries no interaction state).
func (s *Store) WithPair(a, b string, fn func(ea, eb *types.Entity, edge *types.RelationshipEdge) error) error {
	if a == b {
		return fmt.Errorf("%w: pair requires distinct entities, got %q twice", types.ErrValidation, a)
	}

	s.mu.RLock()
	ea, eb := s.entities[a], s.entities[b]
	lockA, lockB := s.locks[a], s.locks[b]
	s.mu.RUnlock()

	if ea == nil {
		return fmt.Errorf("%w: entity %s", types.ErrNotFound, a)
	}
	if eb == nil {
		return fmt.Errorf("%w: entity %s", types.ErrNotFound, b)
	}

	unlock := lockPair(a, b, lockA, lockB)
	defer unlock()

	edge := s.getOrCreateEdgeLocked(a, b)
	return fn(ea, eb, edge)
}

// getOrCreateEdgeLocked returns the live edge for the pair, creating it with
// defaults (strength 0, trust 0.3, familiarity 0) when absent. Callers must
// hold both participant locks.
func (s *Store) getOrCreateEdgeLocked(a, b string) *types.RelationshipEdge {
	key := keyFor(a, b)

	s.mu.RLock()
	edge := s.edges[key]
	s.mu.RUnlock()
	if edge != nil {
		return edge
	}

	edge = types.NewRelationshipEdge(a, b, s.historyCapacity)

	s.mu.Lock()
	// Re-check under the write lock; another pair holder cannot exist (we
	// hold both participant locks) but be safe against future callers.
	if existing := s.edges[key]; existing != nil {
		edge = existing
	} else {
		s.edges[key] = edge
	}
	s.mu.Unlock()

	return edge
}

// RestoreEdge installs an edge loaded from persistent storage. Used during
// warm start only, before concurrent traffic begins.
func (s *Store) RestoreEdge(edge *types.RelationshipEdge) error {
	if edge == nil || edge.Source == "" || edge.Target == "" {
		return fmt.Errorf("%w: edge endpoints are required", types.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entities[edge.Source]; !ok {
		return fmt.Errorf("%w: entity %s", types.ErrNotFound, edge.Source)
	}
	if _, ok := s.entities[edge.Target]; !ok {
		return fmt.Errorf("%w: entity %s", types.ErrNotFound, edge.Target)
	}

	s.edges[keyFor(edge.Source, edge.Target)] = edge.Clone()
	return nil
}

// SnapshotEntities returns consistent copies of the given entities, holding
// all their locks for the duration of the copy. Used by the fusion engine so
// the blend never observes a half-updated trait vector.
func (s *Store) SnapshotEntities(ids []string) ([]*types.Entity, error) {
	s.mu.RLock()
	live := make([]*types.Entity, len(ids))
	locks := make([]*sync.Mutex, len(ids))
	for i, id := range ids {
		e, ok := s.entities[id]
		if !ok {
			s.mu.RUnlock()
			return nil, fmt.Errorf("%w: entity %s", types.ErrNotFound, id)
		}
		live[i] = e
		locks[i] = s.locks[id]
	}
	s.mu.RUnlock()

	// Lock in canonical order to avoid deadlock with pair operations.
	order := make([]int, len(ids))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(x, y int) bool { return ids[order[x]] < ids[order[y]] })

	for _, i := range order {
		locks[i].Lock()
	}
	defer func() {
		for _, i := range order {
			locks[i].Unlock()
		}
	}()

	out := make([]*types.Entity, len(ids))
	for i, e := range live {
		out[i] = e.Clone()
	}
	return out, nil
}

// Neighbors returns snapshot copies of all edges touching the given entity.
// Returns ErrNotFound when the entity is absent from the store.
func (s *Store) Neighbors(id string) ([]*types.RelationshipEdge, error) {
	s.mu.RLock()
	if _, ok := s.entities[id]; !ok {
		s.mu.RUnlock()
		return nil, fmt.Errorf("%w: entity %s", types.ErrNotFound, id)
	}
	keys := make([]pairKey, 0)
	for key := range s.edges {
		if key.a == id || key.b == id {
			keys = append(keys, key)
		}
	}
	s.mu.RUnlock()

	out := make([]*types.RelationshipEdge, 0, len(keys))
	for _, key := range keys {
		if edge, err := s.GetEdge(key.a, key.b); err == nil {
			out = append(out, edge)
		}
	}
	return out, nil
}

// StrongestEdges returns up to k of the entity's edges ordered by descending
// strength. Ties break on the neighbor ID for determinism.
func (s *Store) StrongestEdges(id string, k int) ([]*types.RelationshipEdge, error) {
	edges, err := s.Neighbors(id)
	if err != nil {
		return nil, err
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Strength != edges[j].Strength {
			return edges[i].Strength > edges[j].Strength
		}
		return edges[i].Other(id) < edges[j].Other(id)
	})

	if k > 0 && len(edges) > k {
		edges = edges[:k]
	}
	return edges, nil
}

// EdgePairs returns the ID pairs of all edges currently in the graph.
// Used by sweep operations (decay) to visit every edge without holding the
// map lock across per-edge work.
func (s *Store) EdgePairs() [][2]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pairs := make([][2]string, 0, len(s.edges))
	for key := range s.edges {
		pairs = append(pairs, [2]string{key.a, key.b})
	}
	return pairs
}

// Counts returns the number of entities and edges in the graph.
func (s *Store) Counts() (entities, edges int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities), len(s.edges)
}

// lockPair locks the two entity mutexes in canonical ID order and returns
// the matching unlock function.
func lockPair(a, b string, lockA, lockB *sync.Mutex) func() {
	ca, _ := types.CanonicalPair(a, b)
	first, second := lockA, lockB
	if ca != a {
		first, second = lockB, lockA
	}
	first.Lock()
	second.Lock()
	return func() {
		second.Unlock()
		first.Unlock()
	}
}
