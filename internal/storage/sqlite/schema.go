package sqlite

// Schema defines the SQLite database schema for the Troupe engine.
// Trait vectors, lineage, and interaction history are stored as JSON text;
// edges are keyed by the canonical (lexicographically ordered) entity pair.
const Schema = `
CREATE TABLE IF NOT EXISTS entities (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	traits         TEXT NOT NULL,
	anchor         TEXT NOT NULL,
	social_energy  REAL NOT NULL DEFAULT 1.0,
	origin_lineage TEXT,
	active         INTEGER NOT NULL DEFAULT 1,
	created_at     TIMESTAMP NOT NULL,
	updated_at     TIMESTAMP NOT NULL
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
	history             TEXT,
	history_capacity    INTEGER NOT NULL DEFAULT 50,
	PRIMARY KEY (pair_a, pair_b)
);

CREATE INDEX IF NOT EXISTS idx_edges_pair_b ON edges(pair_b);
`
