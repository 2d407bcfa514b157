package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/casthaven/troupe/pkg/types"
)

// Store implements storage.Store using PostgreSQL.
type Store struct {
	db *sql.DB

	pgvectorAvailable bool // true when the pgvector extension is present
}

// NewStore creates a new PostgreSQL store and initializes the schema.
// dsn is a standard lib/pq connection string.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db}

	// Try to enable the pgvector extension. This may fail on servers without
	// pgvector installed — log a warning but continue without vector support.
	if _, err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		log.Printf("postgres: pgvector extension not available (similarity queries disabled): %v", err)
		s.pgvectorAvailable = false
	} else {
		s.pgvectorAvailable = true
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	if s.pgvectorAvailable {
		if _, err := db.Exec(MigrationPgvector); err != nil {
			log.Printf("postgres: failed to apply pgvector migration (similarity queries disabled): %v", err)
			s.pgvectorAvailable = false
		}
	}

	return s, nil
}

// SaveEntity creates or updates an entity (upsert semantics). When pgvector
// is available, the trait vector is mirrored into the trait_vec column in
// sorted-key order.
func (s *Store) SaveEntity(ctx context.Context, e *types.Entity) error {
	if e == nil || e.ID == "" {
		return fmt.Errorf("%w: entity ID is required", types.ErrValidation)
	}

	traitsJSON, err := json.Marshal(e.Traits)
	if err != nil {
		return fmt.Errorf("failed to marshal traits: %w", err)
	}
	anchorJSON, err := json.Marshal(e.Anchor)
	if err != nil {
		return fmt.Errorf("failed to marshal anchor: %w", err)
	}
	var lineageJSON []byte
	if len(e.OriginLineage) > 0 {
		lineageJSON, err = json.Marshal(e.OriginLineage)
		if err != nil {
			return fmt.Errorf("failed to marshal origin lineage: %w", err)
		}
	}

	query := `
		INSERT INTO entities (
			id, name, traits, anchor, social_energy, origin_lineage, active,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			traits = EXCLUDED.traits,
			anchor = EXCLUDED.anchor,
			social_energy = EXCLUDED.social_energy,
			origin_lineage = EXCLUDED.origin_lineage,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		e.ID, e.Name, traitsJSON, anchorJSON, e.SocialEnergy,
		nullableBytes(lineageJSON), e.Active, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save entity: %w", err)
	}

	if s.pgvectorAvailable {
		vec := pgvector.NewVector(traitSlice(e.Traits))
		if _, err := s.db.ExecContext(ctx,
			"UPDATE entities SET trait_vec = $1 WHERE id = $2", vec, e.ID); err != nil {
			// Vector mirror is an optimization; the JSONB column stays
			// authoritative. Log and continue.
			log.Printf("postgres: failed to mirror trait vector for %s: %v", e.ID, err)
		}
	}

	return nil
}

// GetEntity retrieves an entity by ID.
func (s *Store) GetEntity(ctx context.Context, id string) (*types.Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, traits, anchor, social_energy, origin_lineage, active,
		       created_at, updated_at
		FROM entities WHERE id = $1`, id)

	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: entity %s", types.ErrNotFound, id)
	}
	return e, err
}

// ListEntities retrieves all entities, sorted by ID.
func (s *Store) ListEntities(ctx context.Context) ([]*types.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, traits, anchor, social_energy, origin_lineage, active,
		       created_at, updated_at
		FROM entities ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	defer rows.Close()

	var out []*types.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// FindSimilarEntities returns up to limit active entity IDs ordered by trait
// similarity (L2 distance) to the given vector, for casting queries. Requires
// the pgvector extension; returns ErrNotFound-free empty results otherwise.
func (s *Store) FindSimilarEntities(ctx context.Context, traits types.TraitVector, limit int) ([]string, error) {
	if !s.pgvectorAvailable {
		return nil, fmt.Errorf("pgvector extension not available")
	}
	if limit < 1 {
		limit = 10
	}

	vec := pgvector.NewVector(traitSlice(traits))
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM entities
		WHERE active AND trait_vec IS NOT NULL
		ORDER BY trait_vec <-> $1
		LIMIT $2`, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("similarity query failed: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SaveEdge creates or updates the edge for its unordered entity pair.
func (s *Store) SaveEdge(ctx context.Context, edge *types.RelationshipEdge) error {
	if edge == nil || edge.Source == "" || edge.Target == "" {
		return fmt.Errorf("%w: edge endpoints are required", types.ErrValidation)
	}

	var historyJSON []byte
	var err error
	if len(edge.History) > 0 {
		historyJSON, err = json.Marshal(edge.History)
		if err != nil {
			return fmt.Errorf("failed to marshal history: %w", err)
		}
	}

	pairA, pairB := edge.Pair()
	query := `
		INSERT INTO edges (
			pair_a, pair_b, source, target, strength, trust, familiarity,
			last_interaction_at, last_decay_at, history, history_capacity
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (pair_a, pair_b) DO UPDATE SET
			source = EXCLUDED.source,
			target = EXCLUDED.target,
			strength = EXCLUDED.strength,
			trust = EXCLUDED.trust,
			familiarity = EXCLUDED.familiarity,
			last_interaction_at = EXCLUDED.last_interaction_at,
			last_decay_at = EXCLUDED.last_decay_at,
			history = EXCLUDED.history,
			history_capacity = EXCLUDED.history_capacity
	`

	_, err = s.db.ExecContext(ctx, query,
		pairA, pairB, edge.Source, edge.Target,
		edge.Strength, edge.Trust, edge.Familiarity,
		nullableTime(edge.LastInteractionAt), nullableTime(edge.LastDecayAt),
		nullableBytes(historyJSON), edge.HistoryCapacity)
	if err != nil {
		return fmt.Errorf("failed to save edge: %w", err)
	}
	return nil
}

// GetEdge retrieves the edge between two entities, in either order.
func (s *Store) GetEdge(ctx context.Context, a, b string) (*types.RelationshipEdge, error) {
	pairA, pairB := types.CanonicalPair(a, b)
	row := s.db.QueryRowContext(ctx, `
		SELECT source, target, strength, trust, familiarity,
		       last_interaction_at, last_decay_at, history, history_capacity
		FROM edges WHERE pair_a = $1 AND pair_b = $2`, pairA, pairB)

	edge, err := scanEdge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: edge %s<->%s", types.ErrNotFound, a, b)
	}
	return edge, err
}

// ListEdges retrieves all edges.
func (s *Store) ListEdges(ctx context.Context) ([]*types.RelationshipEdge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, target, strength, trust, familiarity,
		       last_interaction_at, last_decay_at, history, history_capacity
		FROM edges ORDER BY pair_a, pair_b`)
	if err != nil {
		return nil, fmt.Errorf("failed to list edges: %w", err)
	}
	defer rows.Close()

	var out []*types.RelationshipEdge
	for rows.Next() {
		edge, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, edge)
	}
	return out, rows.Err()
}

// Close releases the database connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// traitSlice flattens a trait vector into float32 values in sorted-key order
// (pgvector uses float32). The sorted order makes the column layout stable
// across rows as long as the schema is fixed, which it is after startup.
func traitSlice(v types.TraitVector) []float32 {
	keys := v.Keys()
	out := make([]float32, len(keys))
	for i, k := range keys {
		out[i] = float32(v[k])
	}
	return out
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntity(row scanner) (*types.Entity, error) {
	var e types.Entity
	var traitsJSON, anchorJSON []byte
	var lineageJSON sql.NullString

	err := row.Scan(&e.ID, &e.Name, &traitsJSON, &anchorJSON, &e.SocialEnergy,
		&lineageJSON, &e.Active, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(traitsJSON, &e.Traits); err != nil {
		return nil, fmt.Errorf("failed to unmarshal traits for %s: %w", e.ID, err)
	}
	if err := json.Unmarshal(anchorJSON, &e.Anchor); err != nil {
		return nil, fmt.Errorf("failed to unmarshal anchor for %s: %w", e.ID, err)
	}
	if lineageJSON.Valid {
		if err := json.Unmarshal([]byte(lineageJSON.String), &e.OriginLineage); err != nil {
			return nil, fmt.Errorf("failed to unmarshal lineage for %s: %w", e.ID, err)
		}
	}
	return &e, nil
}

func scanEdge(row scanner) (*types.RelationshipEdge, error) {
	var edge types.RelationshipEdge
	var lastInteraction, lastDecay sql.NullTime
	var historyJSON sql.NullString

	err := row.Scan(&edge.Source, &edge.Target, &edge.Strength, &edge.Trust,
		&edge.Familiarity, &lastInteraction, &lastDecay, &historyJSON,
		&edge.HistoryCapacity)
	if err != nil {
		return nil, err
	}

	if lastInteraction.Valid {
		edge.LastInteractionAt = lastInteraction.Time
	}
	if lastDecay.Valid {
		edge.LastDecayAt = lastDecay.Time
	}
	if historyJSON.Valid {
		if err := json.Unmarshal([]byte(historyJSON.String), &edge.History); err != nil {
			return nil, fmt.Errorf("failed to unmarshal history for %s<->%s: %w", edge.Source, edge.Target, err)
		}
	}
	return &edge, nil
}

// nullableTime converts a time to sql.NullTime; zero times are NULL.
func nullableTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{Valid: false}
	}
	return sql.NullTime{Time: t, Valid: true}
}

// nullableBytes converts a byte slice to sql.NullString.
func nullableBytes(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: string(b), Valid: true}
}
