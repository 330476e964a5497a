package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/m3rciful/scenariobot/core/logger"
)

// RunMigrations applies every pending up migration found at the root of source.
func RunMigrations(ctx context.Context, cfg Config, source fs.FS) error {
	if err := WaitForPostgres(ctx, cfg, 30*time.Second); err != nil {
		logger.LogEvent(ctx, logger.MIG, slog.LevelError, "db.migrate",
			slog.String("status", "fail"),
			slog.Any("err", err),
		)
		return fmt.Errorf("database not ready: %w", err)
	}

	files := listMigrationFiles(source)
	logger.LogEvent(ctx, logger.MIG, slog.LevelDebug, "db.migrate.resolve",
		slog.Int("count", len(files)),
		slog.String("files", strings.Join(files, ", ")),
	)

	driver, err := iofs.New(source, ".")
	if err != nil {
		return fmt.Errorf("open migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", driver, cfg.URL())
	if err != nil {
		logger.LogEvent(ctx, logger.MIG, slog.LevelError, "db.migrate",
			slog.String("status", "fail"),
			slog.Any("err", err),
		)
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.LogEvent(ctx, logger.MIG, slog.LevelWarn, "db.migrate.close",
				slog.String("status", "fail"),
				slog.Any("err", errors.Join(srcErr, dbErr)),
			)
		}
	}()

	fromVer, _, _ := m.Version()
	start := time.Now()
	upErr := m.Up()
	took := logger.Took(start)

	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		logger.LogEvent(ctx, logger.MIG, slog.LevelError, "db.migrate.apply",
			slog.String("status", "fail"),
			slog.Duration("took", took),
			slog.Any("err", upErr),
		)
		return fmt.Errorf("migration execution failed: %w", upErr)
	}

	toVer, _, _ := m.Version()
	applied := selectApplied(files, uint64(fromVer), uint64(toVer))
	logger.LogEvent(ctx, logger.MIG, slog.LevelInfo, "db.migrate.summary",
		slog.String("status", "ok"),
		slog.Uint64("from_ver", uint64(fromVer)),
		slog.Uint64("to_ver", uint64(toVer)),
		slog.Int("count", len(applied)),
		slog.String("files", strings.Join(applied, ", ")),
		slog.Duration("took", took),
	)
	return nil
}

func listMigrationFiles(source fs.FS) []string {
	entries, err := fs.ReadDir(source, ".")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

func parseVersion(name string) uint64 {
	prefix, _, _ := strings.Cut(name, "_")
	v, _ := strconv.ParseUint(prefix, 10, 64)
	return v
}

func selectApplied(files []string, from, to uint64) []string {
	if to <= from {
		return nil
	}
	var out []string
	for _, f := range files {
		if v := parseVersion(f); v > from && v <= to {
			out = append(out, f)
		}
	}
	return out
}
