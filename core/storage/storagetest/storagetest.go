// Package storagetest opens throwaway SQLite databases carrying the application schema.
package storagetest

import (
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// Schema mirrors the migrations in the SQLite dialect.
const Schema = `
CREATE TABLE bots (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    name        TEXT      NOT NULL UNIQUE,
    description TEXT      NOT NULL DEFAULT '',
    owner_id    INTEGER   NOT NULL DEFAULT 0,
    bot_config  TEXT      NOT NULL DEFAULT '{}',
    created_at  TIMESTAMP NOT NULL,
    updated_at  TIMESTAMP NOT NULL
);
CREATE TABLE scenarios (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    bot_id        INTEGER   NOT NULL REFERENCES bots (id) ON DELETE CASCADE,
    name          TEXT      NOT NULL,
    description   TEXT      NOT NULL DEFAULT '',
    scenario_data TEXT      NOT NULL,
    is_active     BOOLEAN   NOT NULL DEFAULT 1,
    created_at    TIMESTAMP NOT NULL,
    updated_at    TIMESTAMP NOT NULL
);
CREATE TABLE steps (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    scenario_id INTEGER   NOT NULL REFERENCES scenarios (id) ON DELETE CASCADE,
    session_key TEXT      NOT NULL DEFAULT '',
    step_order  INTEGER   NOT NULL,
    content     TEXT      NOT NULL,
    step_type   TEXT      NOT NULL,
    created_at  TIMESTAMP NOT NULL
);
CREATE UNIQUE INDEX steps_scenario_order_key ON steps (scenario_id, step_order);`

// OpenDB returns an in-memory database with Schema applied, closed when t finishes.
func OpenDB(t testing.TB) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// Each pooled connection would otherwise see its own empty database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(Schema)
	require.NoError(t, err)
	return db
}
