// Package storage keeps bots, their scenarios and the recorded conversation steps in SQL.
// Queries are written with `?` placeholders and rebound for the driver in use, so the same
// code runs on PostgreSQL in production and on SQLite in tests.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/scenariobot/core/logger"
)

// ErrNotFound is returned when a looked up row does not exist.
var ErrNotFound = errors.New("storage: not found")

// Store is the sqlx-backed repository for every persisted entity.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// New wraps an open connection.
func New(db *sqlx.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// DB exposes the underlying connection.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

func (s *Store) q(query string) string {
	return s.db.Rebind(query)
}

// inTx runs fn in a transaction, rolling back when fn fails.
func (s *Store) inTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			logger.LogEvent(ctx, logger.DB, slog.LevelWarn, "db.rollback",
				slog.String("status", "fail"),
				slog.String("op", op),
				slog.Any("err", rbErr),
			)
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
