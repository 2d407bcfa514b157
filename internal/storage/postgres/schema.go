// Package postgres implements the storage interfaces on PostgreSQL, for
// server deployments where several product services share one database.
package postgres

// Schema contains the SQL statements to create the database schema for
// PostgreSQL. Trait vectors, lineage, and interaction history are stored as
// JSONB; edges are keyed by the canonical (lexicographically ordered) entity
// pair.
const Schema = `
CREATE TABLE IF NOT EXISTS entities (
    id             TEXT PRIMARY KEY,
    name           TEXT NOT NULL,
    traits         JSONB NOT NULL,
    anchor         JSONB NOT NULL,
    social_energy  REAL NOT NULL DEFAULT 1.0,
    origin_lineage JSONB,
    active         BOOLEAN NOT NULL DEFAULT TRUE,
    created_at     TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at     TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_entities_active ON entities(active);

CREATE TABLE IF NOT EXISTS edges (
    pair_a              TEXT NOT NULL,
    pair_b              TEXT NOT NULL,
    source              TEXT NOT NULL,
    target              TEXT NOT NULL,
    strength            REAL NOT NULL DEFAULT 0.0,
    trust               REAL NOT NULL DEFAULT 0.3,
    familiarity         REAL NOT NULL DEFAULT 0.0,
    last_interaction_at TIMESTAMP,
    last_decay_at       TIMESTAMP,
    history             JSONB,
    history_capacity    INTEGER NOT NULL DEFAULT 50,
    PRIMARY KEY (pair_a, pair_b)
);

CREATE INDEX IF NOT EXISTS idx_edges_pair_b ON edges(pair_b);
`

// MigrationPgvector adds a trait-vector column for in-database
// nearest-neighbor queries (similar-character casting lookups). Only applied
// when the vector extension is available.
const MigrationPgvector = `
DO $$
BEGIN
    IF NOT EXISTS (
        SELECT 1 FROM information_schema.columns
        WHERE table_name = 'entities' AND column_name = 'trait_vec'
    ) THEN
        ALTER TABLE entities ADD COLUMN trait_vec vector;
    END IF;
END $$;

-- An exact scan is fine at character-population scale; an ivfflat index can
-- be added once populations reach tens of thousands.
`
