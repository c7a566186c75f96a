package repository

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "events: append-only interaction ledger",
		SQL: `
CREATE TABLE events (
    id                  TEXT PRIMARY KEY,
    user_id             TEXT NOT NULL,
    event_type          TEXT NOT NULL,
    payload             TEXT NOT NULL,
    occurred_at         INTEGER NOT NULL,
    source              TEXT NOT NULL DEFAULT 'live' CHECK (source IN ('live', 'backfill')),

    -- Processing bookkeeping, owned by the batch coordinator.
    processed           INTEGER NOT NULL DEFAULT 0,
    processed_at        INTEGER,
    attempts            INTEGER NOT NULL DEFAULT 0,
    last_error          TEXT,
    permanently_failed  INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX idx_events_unprocessed ON events(processed, permanently_failed, occurred_at);
CREATE INDEX idx_events_user        ON events(user_id);
`,
	},
	{
		Version:     2,
		Description: "user_profiles: multi-domain embedding state, one row per user",
		SQL: `
CREATE TABLE user_profiles (
    user_id            TEXT PRIMARY KEY,
    vec_cultural       BLOB NOT NULL,
    vec_behavioral     BLOB NOT NULL,
    vec_economic       BLOB NOT NULL,
    vec_spatial        BLOB NOT NULL,
    vec_composite      BLOB NOT NULL,
    dimensions         INTEGER NOT NULL,
    generation         INTEGER NOT NULL,
    half_life_days     REAL NOT NULL,
    learning_rate      REAL NOT NULL,
    confidence         REAL NOT NULL DEFAULT 0,
    last_interaction   INTEGER,
    updated_at         INTEGER NOT NULL
);
`,
	},
	{
		Version:     3,
		Description: "entity_profiles: externally supplied entity embeddings",
		SQL: `
CREATE TABLE entity_profiles (
    entity_id          TEXT PRIMARY KEY,
    kind               TEXT NOT NULL,
    vec_cultural       BLOB NOT NULL,
    vec_behavioral     BLOB NOT NULL,
    vec_economic       BLOB NOT NULL,
    vec_spatial        BLOB NOT NULL,
    dimensions         INTEGER NOT NULL,
    updated_at         INTEGER NOT NULL
);
`,
	},
	{
		Version:     4,
		Description: "mutations: append-only weighted delta ledger, unique per event+category",
		SQL: `
CREATE TABLE mutations (
    id               INTEGER PRIMARY KEY,
    event_id         TEXT NOT NULL,
    entity_id        TEXT NOT NULL,
    user_id          TEXT NOT NULL,
    category         TEXT NOT NULL,
    base_delta       REAL NOT NULL,
    weight           REAL NOT NULL,
    decay            REAL NOT NULL,
    effective_delta  REAL NOT NULL,
    occurred_at      INTEGER NOT NULL,
    created_at       INTEGER NOT NULL,

    UNIQUE (event_id, category)
);

CREATE INDEX idx_mutations_entity ON mutations(entity_id, category, occurred_at);
`,
	},
	{
		Version:     5,
		Description: "domain_strength: per-entity per-category running totals",
		SQL: `
CREATE TABLE domain_strength (
    entity_id        TEXT NOT NULL,
    category         TEXT NOT NULL,
    total_delta      REAL NOT NULL,
    mutation_count   INTEGER NOT NULL,
    last_mutation_at INTEGER,

    PRIMARY KEY (entity_id, category)
);
`,
	},
	{
		Version:     6,
		Description: "leaderboard_entries: materialized ranked views per category+window",
		SQL: `
CREATE TABLE leaderboard_entries (
    category     TEXT NOT NULL,
    window       TEXT NOT NULL,
    rank         INTEGER NOT NULL,
    entity_id    TEXT NOT NULL,
    total_delta  REAL NOT NULL,
    refreshed_at INTEGER NOT NULL,

    PRIMARY KEY (category, window, rank)
);
`,
	},
	{
		Version:     7,
		Description: "run_lease: single-row mutual exclusion for batch runs",
		SQL: `
CREATE TABLE run_lease (
    id         INTEGER PRIMARY KEY CHECK (id = 1),
    holder     TEXT NOT NULL,
    expires_at INTEGER NOT NULL
);
`,
	},
}

func (s *Store) migrate() error {
	_, err := s.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := s.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := s.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (s *Store) SchemaVersion() (int, error) {
	var version int
	err := s.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
