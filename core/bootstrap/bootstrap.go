// Package bootstrap brings up the logger and database before the bot starts.
package bootstrap

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/scenariobot/core/config"
	coredatabase "github.com/m3rciful/scenariobot/core/database"
	"github.com/m3rciful/scenariobot/core/logger"
)

// Options control the bootstrap pipeline. Nil hooks fall back to the real implementations.
type Options struct {
	Config     *coreconfig.Config
	Database   coredatabase.Config
	Migrations fs.FS
	Seeders    []Seeder

	LoggerInit func(*coreconfig.Config) error
	Connect    func(context.Context, coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(context.Context, coredatabase.Config, fs.FS) error
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	DB *sqlx.DB
}

// Run initializes the logger, connects to the database, applies migrations and runs seeders in order.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	connect := opts.Connect
	if connect == nil {
		connect = coredatabase.Connect
	}
	db, err := connect(ctx, opts.Database)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}

	if opts.Migrations != nil {
		migrate := opts.Migrate
		if migrate == nil {
			migrate = coredatabase.RunMigrations
		}
		if err := migrate(ctx, opts.Database, opts.Migrations); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
		}
	}

	for i, s := range opts.Seeders {
		start := time.Now()
		err := s.Seed(ctx, db)
		level := slog.LevelInfo
		if err != nil {
			level = slog.LevelError
		}
		logger.LogEvent(ctx, logger.SEED, level, "seed.run",
			slog.String("status", logger.Status(err)),
			slog.Int("index", i),
			slog.Duration("took", logger.Took(start)),
			slog.Any("err", err),
		)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("bootstrap: seeder %d failed: %w", i, err)
		}
	}

	return &Result{DB: db}, nil
}
