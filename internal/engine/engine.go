package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/casthaven/troupe/internal/graph"
	"github.com/casthaven/troupe/internal/storage"
	"github.com/casthaven/troupe/pkg/types"
)

// PersonaEngine is the orchestrator over the relationship graph: it applies
// interaction events (relationship update + trait evolution, all-or-nothing),
// scores compatibility, runs fusion, and drives the healing and decay sweeps.
//
// The in-memory graph is authoritative. When a persistent store is wired,
// the engine loads the whole population at Start (warm start) and writes
// entities and edges through after each mutation; a persistence failure is
// logged but never rolls back committed in-memory state.
type PersonaEngine struct {
	config Config

	graph *graph.Store
	store storage.Store // optional; nil means in-memory only

	// State management
	started      bool
	shuttingDown bool
	mu           sync.RWMutex

	// Callbacks
	onEntityUpdated func(entityID string)
	onEdgeUpdated   func(a, b string)
	onEntityFused   func(entityID string)
}

// NewPersonaEngine creates a persona engine over a fresh graph.
// The store may be nil for in-memory-only operation (tests, demos).
// Use DefaultConfig() for sensible defaults.
func NewPersonaEngine(cfg Config, store storage.Store) (*PersonaEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &PersonaEngine{
		config: cfg,
		graph:  graph.NewStore(cfg.HistoryCapacity),
		store:  store,
	}, nil
}

// SetOnEntityUpdated sets a callback fired after an entity's traits, energy,
// or lifecycle state change. Useful for pushing UI updates via WebSocket.
func (p *PersonaEngine) SetOnEntityUpdated(callback func(entityID string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onEntityUpdated = callback
}

// SetOnEdgeUpdated sets a callback fired after a relationship edge changes.
func (p *PersonaEngine) SetOnEdgeUpdated(callback func(a, b string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onEdgeUpdated = callback
}

// SetOnEntityFused sets a callback fired after a fusion creates an entity.
func (p *PersonaEngine) SetOnEntityFused(callback func(entityID string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onEntityFused = callback
}

// Start starts the engine. With a persistent store wired, it warm-starts the
// graph by loading every entity and edge. Must be called before submitting
// operations.
func (p *PersonaEngine) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("engine already started")
	}

	log.Println("Starting persona engine...")

	if p.store != nil {
		if err := p.warmStart(ctx); err != nil {
			return fmt.Errorf("warm start failed: %w", err)
		}
	}

	p.started = true
	entities, edges := p.graph.Counts()
	log.Printf("Persona engine started (%d entities, %d edges)", entities, edges)

	return nil
}

// warmStart loads the persisted population into the graph. Called under the
// engine lock, before concurrent traffic begins.
func (p *PersonaEngine) warmStart(ctx context.Context) error {
	entities, err := p.store.ListEntities(ctx)
	if err != nil {
		return fmt.Errorf("load entities: %w", err)
	}
	for _, e := range entities {
		if err := p.graph.AddEntity(e); err != nil {
			return fmt.Errorf("restore entity %s: %w", e.ID, err)
		}
	}

	edges, err := p.store.ListEdges(ctx)
	if err != nil {
		return fmt.Errorf("load edges: %w", err)
	}
	for _, edge := range edges {
		if err := p.graph.RestoreEdge(edge); err != nil {
			// An edge whose endpoint is gone is data damage, not a reason to
			// refuse startup. Skip it.
			log.Printf("WARNING: skipping orphaned edge %s<->%s: %v", edge.Source, edge.Target, err)
		}
	}
	return nil
}

// Shutdown gracefully shuts down the engine and closes the store.
func (p *PersonaEngine) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return fmt.Errorf("engine not started")
	}

	log.Println("Shutting down persona engine...")
	p.shuttingDown = true

	if p.store != nil {
		if err := p.store.Close(); err != nil {
			log.Printf("WARNING: store close had errors: %v", err)
		}
	}

	p.started = false
	p.shuttingDown = false
	log.Println("Persona engine shut down successfully")

	return nil
}

// checkStarted returns an error unless the engine is running and not
// shutting down.
func (p *PersonaEngine) checkStarted() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.started || p.shuttingDown {
		return fmt.Errorf("engine not started")
	}
	return nil
}

// CreateEntity registers a new organically created entity. The given traits
// are clamped and become both the current vector and the immutable anchor.
// Nil traits default to the neutral schema vector.
func (p *PersonaEngine) CreateEntity(ctx context.Context, name string, traits types.TraitVector) (*types.Entity, error) {
	if err := p.checkStarted(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("%w: entity name is required", types.ErrValidation)
	}

	if traits == nil {
		traits = types.NewTraitVector(p.config.TraitKeys)
	} else {
		if len(traits) != len(p.config.TraitKeys) {
			return nil, fmt.Errorf("%w: trait vector must carry the full %d-key schema, got %d keys",
				types.ErrValidation, len(p.config.TraitKeys), len(traits))
		}
		for _, k := range p.config.TraitKeys {
			if _, ok := traits[k]; !ok {
				return nil, fmt.Errorf("%w: trait vector missing key %q", types.ErrValidation, k)
			}
		}
		traits = traits.Clamp()
	}

	now := time.Now()
	entity := &types.Entity{
		ID:           GenerateEntityID(),
		Name:         name,
		Traits:       traits,
		Anchor:       traits.Clone(),
		SocialEnergy: 1.0,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := p.graph.AddEntity(entity); err != nil {
		return nil, err
	}

	p.persistEntity(ctx, entity)
	p.notifyEntityUpdated(entity.ID)
	return entity, nil
}

// GetEntity returns a snapshot of an entity.
func (p *PersonaEngine) GetEntity(ctx context.Context, id string) (*types.Entity, error) {
	if err := p.checkStarted(); err != nil {
		return nil, err
	}
	return p.graph.GetEntity(id)
}

// ListEntities returns snapshots of all entities, sorted by ID.
func (p *PersonaEngine) ListEntities(ctx context.Context) ([]*types.Entity, error) {
	if err := p.checkStarted(); err != nil {
		return nil, err
	}
	return p.graph.ListEntities(), nil
}

// SetActive flips an entity's soft lifecycle flag. Inactive entities keep
// their edges but drop out of community detection and neighborhood queries.
func (p *PersonaEngine) SetActive(ctx context.Context, id string, active bool) (*types.Entity, error) {
	if err := p.checkStarted(); err != nil {
		return nil, err
	}

	entity, err := p.graph.SetActive(id, active)
	if err != nil {
		return nil, err
	}

	p.persistEntity(ctx, entity)
	p.notifyEntityUpdated(id)
	return entity, nil
}

// GetEdge returns a snapshot of the edge between two entities.
func (p *PersonaEngine) GetEdge(ctx context.Context, a, b string) (*types.RelationshipEdge, error) {
	if err := p.checkStarted(); err != nil {
		return nil, err
	}
	return p.graph.GetEdge(a, b)
}

// SubmitInteraction processes one interaction event: it updates the pair's
// relationship edge and evolves both participants' trait vectors, as a
// single all-or-nothing operation under both participant locks. Malformed
// events fail with ErrValidation before any mutation; a detected invariant
// violation aborts with ErrInvariant and no partial state.
//
// Returns a snapshot of the updated edge.
func (p *PersonaEngine) SubmitInteraction(ctx context.Context, ev *types.InteractionEvent) (*types.RelationshipEdge, error) {
	if err := p.checkStarted(); err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, fmt.Errorf("%w: interaction event is required", types.ErrValidation)
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	a, b := ev.Initiator(), ev.Responder()

	var edgeSnap *types.RelationshipEdge
	var entitySnaps [2]*types.Entity

	err := p.graph.WithPair(a, b, func(ea, eb *types.Entity, edge *types.RelationshipEdge) error {
		// Evolve clones first so an invariant violation leaves the live
		// entities untouched.
		ca, cb := ea.Clone(), eb.Clone()
		ApplyEvolution(ca, ev, p.config, now)
		ApplyEvolution(cb, ev, p.config, now)

		if err := CheckDriftInvariant(ca, p.config.MaxDrift); err != nil {
			return err
		}
		if err := CheckDriftInvariant(cb, p.config.MaxDrift); err != nil {
			return err
		}

		graph.ApplyInteraction(edge, ev, now, p.config.Graph)

		*ea = *ca
		*eb = *cb

		edgeSnap = edge.Clone()
		entitySnaps[0] = ea.Clone()
		entitySnaps[1] = eb.Clone()
		return nil
	})
	if err != nil {
		if errors.Is(err, types.ErrInvariant) {
			log.Printf("ERROR: interaction %s<->%s aborted: %v", a, b, err)
		}
		return nil, err
	}

	p.persistEntity(ctx, entitySnaps[0])
	p.persistEntity(ctx, entitySnaps[1])
	p.persistEdge(ctx, edgeSnap)

	p.notifyEntityUpdated(a)
	p.notifyEntityUpdated(b)
	p.notifyEdgeUpdated(a, b)

	return edgeSnap, nil
}

// QueryCompatibility scores a pair of entities. Pure: no state changes.
func (p *PersonaEngine) QueryCompatibility(ctx context.Context, a, b string) (*CompatibilityResult, error) {
	if err := p.checkStarted(); err != nil {
		return nil, err
	}
	if a == b {
		return nil, fmt.Errorf("%w: compatibility requires distinct entities", types.ErrValidation)
	}

	snaps, err := p.graph.SnapshotEntities([]string{a, b})
	if err != nil {
		return nil, err
	}

	edge, err := p.graph.GetEdge(a, b)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return nil, err
	}

	score := Compatibility(snaps[0], snaps[1], edge)
	return &CompatibilityResult{
		A:       a,
		B:       b,
		Score:   score,
		Class:   Classify(score),
		HasEdge: edge != nil,
	}, nil
}

// RequestFusion synthesizes a new entity from 2-4 sources. The blend runs
// over a consistent snapshot of the sources; the fused entity's anchor is
// its blended vector, its lineage records the source IDs in request order,
// and the attached score is the sources' mean pairwise compatibility
// (informational only, never a gate). Source entities are unchanged.
func (p *PersonaEngine) RequestFusion(ctx context.Context, req *types.FusionRequest) (*types.FusionResult, error) {
	if err := p.checkStarted(); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("%w: fusion request is required", types.ErrValidation)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sources, err := p.graph.SnapshotEntities(req.SourceIDs)
	if err != nil {
		return nil, err
	}

	score := meanPairwiseCompatibility(sources, func(a, b string) *types.RelationshipEdge {
		edge, err := p.graph.GetEdge(a, b)
		if err != nil {
			return nil
		}
		return edge
	})

	blended := BlendTraits(sources, req.Strategy, req.EffectiveWeights())

	name := req.Name
	if name == "" {
		names := make([]string, len(sources))
		for i, src := range sources {
			names[i] = src.Name
		}
		name = fusedName(names)
	}

	now := time.Now()
	entity := &types.Entity{
		ID:            GenerateEntityID(),
		Name:          name,
		Traits:        blended,
		Anchor:        blended.Clone(),
		SocialEnergy:  1.0,
		OriginLineage: append([]string(nil), req.SourceIDs...),
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := p.graph.AddEntity(entity); err != nil {
		return nil, err
	}

	log.Printf("Fused entity %s from %v (strategy=%s, compatibility=%.3f)",
		entity.ID, req.SourceIDs, req.Strategy, score)

	p.persistEntity(ctx, entity)
	p.notifyEntityFused(entity.ID)

	return &types.FusionResult{Entity: entity, CompatibilityScore: score}, nil
}

// HealEntity applies one healing pass to a single entity and returns the
// updated snapshot.
func (p *PersonaEngine) HealEntity(ctx context.Context, id string, mode HealMode) (*types.Entity, error) {
	if err := p.checkStarted(); err != nil {
		return nil, err
	}

	now := time.Now()
	var snap *types.Entity
	err := p.graph.WithEntity(id, func(e *types.Entity) error {
		if err := Heal(e, mode, p.config, now); err != nil {
			return err
		}
		snap = e.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.persistEntity(ctx, snap)
	p.notifyEntityUpdated(id)
	return snap, nil
}

// TickHealing applies one natural healing pass across all active entities.
// Exposed for the scheduler collaborator; returns the number of entities
// healed. Within a scheduler tick, interactions already submitted are folded
// in before healing runs (evolution first, then healing).
func (p *PersonaEngine) TickHealing(ctx context.Context) (int, error) {
	if err := p.checkStarted(); err != nil {
		return 0, err
	}

	now := time.Now()
	healed := 0
	for _, e := range p.graph.ListEntities() {
		if !e.Active {
			continue
		}
		var snap *types.Entity
		err := p.graph.WithEntity(e.ID, func(live *types.Entity) error {
			if err := Heal(live, HealNatural, p.config, now); err != nil {
				return err
			}
			snap = live.Clone()
			return nil
		})
		if err != nil {
			log.Printf("WARNING: healing %s failed: %v", e.ID, err)
			continue
		}
		p.persistEntity(ctx, snap)
		healed++
	}
	return healed, nil
}

// DecayRelationships applies time-based decay to every edge in the graph.
// Exposed for the scheduler collaborator; returns the number of edges swept.
func (p *PersonaEngine) DecayRelationships(ctx context.Context, now time.Time) (int, error) {
	if err := p.checkStarted(); err != nil {
		return 0, err
	}

	swept := 0
	for _, pair := range p.graph.EdgePairs() {
		a, b := pair[0], pair[1]
		var snap *types.RelationshipEdge
		err := p.graph.WithPair(a, b, func(_, _ *types.Entity, edge *types.RelationshipEdge) error {
			graph.DecayEdge(edge, now, p.config.Graph)
			snap = edge.Clone()
			return nil
		})
		if err != nil {
			log.Printf("WARNING: decay sweep skipped edge %s<->%s: %v", a, b, err)
			continue
		}
		p.persistEdge(ctx, snap)
		swept++
	}
	if swept > 0 {
		log.Printf("Decay sweep touched %d edges", swept)
	}
	return swept, nil
}

// GetNeighborhood returns the bounded BFS subgraph around an entity for the
// relationship-graph renderer.
func (p *PersonaEngine) GetNeighborhood(ctx context.Context, center string, depth int) (*graph.Subgraph, error) {
	if err := p.checkStarted(); err != nil {
		return nil, err
	}
	return p.graph.Neighborhood(center, depth)
}

// StrongestAlliancePath finds the strongest alliance chain between two
// entities over edges above the configured strength threshold.
func (p *PersonaEngine) StrongestAlliancePath(ctx context.Context, a, b string) (*graph.PathResult, error) {
	if err := p.checkStarted(); err != nil {
		return nil, err
	}
	return p.graph.StrongestAlliancePath(a, b, p.config.AllianceStrengthThreshold)
}

// DetectCommunities returns the alliance communities over strong edges.
func (p *PersonaEngine) DetectCommunities(ctx context.Context) ([]graph.Community, error) {
	if err := p.checkStarted(); err != nil {
		return nil, err
	}
	return p.graph.DetectCommunities(p.config.AllianceStrengthThreshold), nil
}

// StrongestEdges returns up to k of an entity's edges by descending strength.
func (p *PersonaEngine) StrongestEdges(ctx context.Context, id string, k int) ([]*types.RelationshipEdge, error) {
	if err := p.checkStarted(); err != nil {
		return nil, err
	}
	return p.graph.StrongestEdges(id, k)
}

// Counts returns the number of entities and edges in the graph.
func (p *PersonaEngine) Counts() (entities, edges int) {
	return p.graph.Counts()
}

// persistEntity writes an entity snapshot through to the store. In-memory
// state is authoritative; a persistence failure is logged, not propagated.
func (p *PersonaEngine) persistEntity(ctx context.Context, e *types.Entity) {
	if p.store == nil || e == nil {
		return
	}
	if err := p.store.SaveEntity(ctx, e); err != nil {
		log.Printf("ERROR: failed to persist entity %s: %v", e.ID, err)
	}
}

// persistEdge writes an edge snapshot through to the store.
func (p *PersonaEngine) persistEdge(ctx context.Context, edge *types.RelationshipEdge) {
	if p.store == nil || edge == nil {
		return
	}
	if err := p.store.SaveEdge(ctx, edge); err != nil {
		log.Printf("ERROR: failed to persist edge %s<->%s: %v", edge.Source, edge.Target, err)
	}
}

func (p *PersonaEngine) notifyEntityUpdated(id string) {
	p.mu.RLock()
	cb := p.onEntityUpdated
	p.mu.RUnlock()
	if cb != nil {
		cb(id)
	}
}

func (p *PersonaEngine) notifyEdgeUpdated(a, b string) {
	p.mu.RLock()
	cb := p.onEdgeUpdated
	p.mu.RUnlock()
	if cb != nil {
		cb(a, b)
	}
}

func (p *PersonaEngine) notifyEntityFused(id string) {
	p.mu.RLock()
	cb := p.onEntityFused
	p.mu.RUnlock()
	if cb != nil {
		cb(id)
	}
}
