// Package store is the reference persistent-state implementation described
// in §6.4: three kinds of state the core reads (user-provider settings,
// per-user task-routing preferences split across two tables, per-user
// CLI-tool settings) and one table it only ever writes (usage). It is sqlite-backed via modernc.org/sqlite, the
// pure-Go driver, so the binary needs no cgo toolchain.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store wraps the sqlite connection pool and implements every
// persistence-facing interface the core components depend on:
// chain.PreferencesSource, usage.Writer, plus the tool-settings and
// provider-settings readers this package defines itself.
type Store struct {
	db *sql.DB
}

// Open connects to dsn (a sqlite DSN, e.g. "file:router.db?mode=memory&cache=shared")
// and ensures the schema exists.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc.org/sqlite does not support concurrent writers on one
	// connection; a single connection avoids SQLITE_BUSY under load
	// without needing a busy-timeout retry loop.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS provider_settings (
	user_id    TEXT NOT NULL,
	type       TEXT NOT NULL,
	config     TEXT,
	base_url   TEXT,
	models     TEXT,
	api_key    TEXT,
	is_active  INTEGER NOT NULL DEFAULT 1,
	PRIMARY KEY (user_id, type)
);

CREATE TABLE IF NOT EXISTS task_routing_users (
	user_id               TEXT PRIMARY KEY,
	ai_classification     INTEGER NOT NULL DEFAULT 0,
	classifier_chain_json TEXT
);

CREATE TABLE IF NOT EXISTS task_routing_tiers (
	user_id           TEXT NOT NULL,
	tier              TEXT NOT NULL,
	provider          TEXT,
	model             TEXT,
	custom_chain_yaml TEXT,
	PRIMARY KEY (user_id, tier)
);

CREATE TABLE IF NOT EXISTS cli_tool_settings (
	user_id         TEXT NOT NULL,
	cli_type        TEXT NOT NULL,
	preferred_model TEXT,
	fallback_model  TEXT,
	timeout_seconds INTEGER,
	max_tokens      INTEGER,
	temperature     REAL,
	settings        TEXT,
	PRIMARY KEY (user_id, cli_type)
);

CREATE TABLE IF NOT EXISTS usage (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	provider        TEXT NOT NULL,
	model           TEXT NOT NULL,
	input_tokens    INTEGER NOT NULL,
	output_tokens   INTEGER NOT NULL,
	cost_usd        REAL NOT NULL,
	agent_id        TEXT,
	conversation_id TEXT,
	timestamp       DATETIME NOT NULL
);
`

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}
