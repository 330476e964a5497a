package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/scenariobot/core/bootstrap"
	"github.com/m3rciful/scenariobot/core/chat"
	corecmd "github.com/m3rciful/scenariobot/core/cmd"
	"github.com/m3rciful/scenariobot/core/httpapi"
	"github.com/m3rciful/scenariobot/core/logger"
	"github.com/m3rciful/scenariobot/core/responder"
	"github.com/m3rciful/scenariobot/core/session"
	"github.com/m3rciful/scenariobot/core/storage"
	coretelegram "github.com/m3rciful/scenariobot/core/telegram"
	"github.com/m3rciful/scenariobot/migrations"
)

// App holds the running bot's dependencies.
type App struct {
	cfg      *Config
	db       *sqlx.DB
	sessions *session.Backend
	store    *storage.Store
	chat     *chat.Service
	botID    int64
}

// Bootstrap connects to the database, migrates and seeds it, then builds the chat service.
func Bootstrap(ctx context.Context, cfg *Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	core := cfg.CoreConfig()

	var botID int64
	res, err := bootstrap.Run(ctx, bootstrap.Options{
		Config:     core,
		Database:   cfg.Database,
		Migrations: migrations.FS,
		Seeders:    []bootstrap.Seeder{BotSeeder(core.Bot, core.Telegram.AdminID, &botID)},
	})
	if err != nil {
		return nil, err
	}

	app, err := assemble(ctx, cfg, res.DB, botID)
	if err != nil {
		_ = res.DB.Close()
		return nil, err
	}
	return app, nil
}

func assemble(ctx context.Context, cfg *Config, db *sqlx.DB, botID int64) (*App, error) {
	core := cfg.CoreConfig()
	sessions, err := session.FromConfig(ctx, core.Session)
	if err != nil {
		return nil, fmt.Errorf("app: session backend: %w", err)
	}
	resp, err := responder.FromConfig(core.Responder)
	if err != nil {
		_ = sessions.Close()
		return nil, fmt.Errorf("app: responder: %w", err)
	}
	store := storage.New(db)
	svc, err := chat.NewService(store, sessions.Store, sessions.Locker, resp,
		chat.WithHistoryWindow(core.Session.Window()),
	)
	if err != nil {
		_ = sessions.Close()
		return nil, err
	}

	logger.LogEvent(ctx, logger.Component("app"), slog.LevelInfo, "app.assemble",
		slog.String("status", "ok"),
		slog.Int64("bot_id", botID),
		slog.String("responder", core.Responder.Kind),
		slog.String("sessions", core.Session.Backend),
		slog.String("http", core.HTTP.Listen),
	)
	return &App{cfg: cfg, db: db, sessions: sessions, store: store, chat: svc, botID: botID}, nil
}

// TelegramRunOptions registers the bot's commands and routes.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	core := a.cfg.CoreConfig()
	h := &handlers{chat: a.chat, botID: a.botID, adminID: core.Telegram.AdminID}
	reg, routes, err := h.register()
	if err != nil {
		return coretelegram.RunOptions{}, err
	}
	return coretelegram.RunOptions{
		Config:      core,
		Registry:    reg,
		Middlewares: coretelegram.DefaultMiddlewares(core, h.rateLimited),
		Routes:      routes,
	}, nil
}

// RunBackground serves the HTTP API when http.listen is set.
func (a *App) RunBackground(ctx context.Context) error {
	listen := a.cfg.CoreConfig().HTTP.Listen
	if listen == "" {
		<-ctx.Done()
		return nil
	}
	return httpapi.Run(ctx, listen, httpapi.NewHandler(a.chat, a.store))
}

// Close releases the session backend and the database.
func (a *App) Close() error {
	return errors.Join(a.sessions.Close(), a.db.Close())
}

var (
	_ corecmd.TelegramApp      = (*App)(nil)
	_ corecmd.BackgroundRunner = (*App)(nil)
	_ corecmd.ConfigCarrier    = (*Config)(nil)
)
