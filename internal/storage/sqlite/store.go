// Package sqlite implements the storage interfaces on SQLite. It is the
// default persistence backend: zero-dependency deployment, one file per
// population.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/casthaven/troupe/pkg/types"
)

// Store implements storage.Store using SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates a new SQLite store with WAL self-healing.
// If the initial open fails due to stale WAL files (left behind by a crashed
// process), it verifies no other process holds them and retries once after
// removing the stale -shm/-wal files.
func NewStore(dsn string) (*Store, error) {
	store, err := openStore(dsn)
	if err == nil {
		return store, nil
	}

	if !isRecoverableWALError(err) {
		return nil, err
	}

	dbPath := dbPathFromDSN(dsn)
	if dbPath == "" || dbPath == ":memory:" {
		return nil, err
	}

	if !isWALStale(dbPath) {
		return nil, err
	}

	removeStaleWAL(dbPath)

	store, retryErr := openStore(dsn)
	if retryErr != nil {
		return nil, fmt.Errorf("failed after WAL recovery: %w (original: %v)", retryErr, err)
	}

	log.Printf("sqlite: recovered from stale WAL files for %s", dbPath)
	return store, nil
}

// openStore opens a SQLite database, configures WAL mode, and creates the schema.
func openStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Using a single open connection
	// serialises writes and avoids SQLITE_BUSY errors under concurrent load.
	// WAL mode allows concurrent readers to proceed without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0) // Connections live for the lifetime of the store.

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set busy timeout so that callers wait instead of getting an immediate
	// SQLITE_BUSY error when the connection is held by another goroutine.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// SaveEntity creates or updates an entity (upsert semantics).
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
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			traits = excluded.traits,
			anchor = excluded.anchor,
			social_energy = excluded.social_energy,
			origin_lineage = excluded.origin_lineage,
			active = excluded.active,
			updated_at = excluded.updated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		e.ID, e.Name, string(traitsJSON), string(anchorJSON), e.SocialEnergy,
		nullableBytes(lineageJSON), e.Active, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save entity: %w", err)
	}
	return nil
}

// GetEntity retrieves an entity by ID.
func (s *Store) GetEntity(ctx context.Context, id string) (*types.Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, traits, anchor, social_energy, origin_lineage, active,
		       created_at, updated_at
		FROM entities WHERE id = ?`, id)

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
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pair_a, pair_b) DO UPDATE SET
			source = excluded.source,
			target = excluded.target,
			strength = excluded.strength,
			trust = excluded.trust,
			familiarity = excluded.familiarity,
			last_interaction_at = excluded.last_interaction_at,
			last_decay_at = excluded.last_decay_at,
			history = excluded.history,
			history_capacity = excluded.history_capacity
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
		FROM edges WHERE pair_a = ? AND pair_b = ?`, pairA, pairB)

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

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// scanner abstracts *sql.Row and *sql.Rows for the scan helpers.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntity(row scanner) (*types.Entity, error) {
	var e types.Entity
	var traitsJSON, anchorJSON string
	var lineageJSON sql.NullString

	err := row.Scan(&e.ID, &e.Name, &traitsJSON, &anchorJSON, &e.SocialEnergy,
		&lineageJSON, &e.Active, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(traitsJSON), &e.Traits); err != nil {
		return nil, fmt.Errorf("failed to unmarshal traits for %s: %w", e.ID, err)
	}
	if err := json.Unmarshal([]byte(anchorJSON), &e.Anchor); err != nil {
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

// dbPathFromDSN extracts the filesystem path from a SQLite DSN.
// Handles bare paths ("/path/to/db.sqlite") and file: URIs ("file:/path/to/db.sqlite?mode=rwc").
// Returns empty string for in-memory databases or unparseable DSNs.
func dbPathFromDSN(dsn string) string {
	if dsn == ":memory:" || dsn == "" {
		return ""
	}

	if strings.HasPrefix(dsn, "file:") {
		u, err := url.Parse(dsn)
		if err != nil {
			return ""
		}
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		if path == ":memory:" || path == "" {
			return ""
		}
		return path
	}

	return dsn
}

// isRecoverableWALError returns true if the error matches patterns caused by
// stale WAL files left behind after a crash (SIGKILL, OOM, etc.).
func isRecoverableWALError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "disk I/O error") ||
		strings.Contains(msg, "database is locked")
}

// isWALStale checks whether -shm/-wal files exist for the given database path
// AND no other process currently holds them open (via lsof).
// Returns false if lsof is unavailable (conservative: no deletion).
func isWALStale(dbPath string) bool {
	shmPath := dbPath + "-shm"
	walPath := dbPath + "-wal"

	if !fileExists(shmPath) && !fileExists(walPath) {
		return false
	}

	lsofPath, err := exec.LookPath("lsof")
	if err != nil {
		// lsof not available (e.g., Alpine Docker) — conservative fallback.
		return false
	}

	cmd := exec.Command(lsofPath, "-t", dbPath, shmPath, walPath)
	output, err := cmd.Output()
	if err != nil {
		// lsof returns exit code 1 when no files are open — that means stale.
		return true
	}

	return strings.TrimSpace(string(output)) == ""
}

// removeStaleWAL removes -shm and -wal files for the given database path.
func removeStaleWAL(dbPath string) {
	for _, suffix := range []string{"-shm", "-wal"} {
		path := dbPath + suffix
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("sqlite: failed to remove stale %s: %v", path, err)
		}
	}
}

// fileExists returns true if the path exists on disk.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
