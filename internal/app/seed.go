package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/scenariobot/core/bootstrap"
	coreconfig "github.com/m3rciful/scenariobot/core/config"
	"github.com/m3rciful/scenariobot/core/logger"
	"github.com/m3rciful/scenariobot/core/storage"
)

// BotSeeder makes sure the configured bot exists with an active scenario and stores its id in botID.
func BotSeeder(cfg coreconfig.BotConfig, ownerID int64, botID *int64) bootstrap.Seeder {
	return bootstrap.SeederFunc(func(ctx context.Context, db *sqlx.DB) error {
		store := storage.New(db)
		bot, created, err := store.EnsureBot(ctx, cfg.Name, cfg.Description, ownerID)
		if err != nil {
			return fmt.Errorf("seed bot %q: %w", cfg.Name, err)
		}
		sc, scCreated, err := store.EnsureDefaultScenario(ctx, bot.ID)
		if err != nil {
			return fmt.Errorf("seed scenario for bot %d: %w", bot.ID, err)
		}
		logger.LogEvent(logger.WithScenario(ctx, bot.ID, sc.ID), logger.SEED, slog.LevelInfo, "seed.bot",
			slog.String("status", "ok"),
			slog.String("bot", bot.Name),
			slog.Bool("bot_created", created),
			slog.Bool("scenario_created", scCreated),
		)
		*botID = bot.ID
		return nil
	})
}
