package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/scenariobot/core/config"
	"github.com/m3rciful/scenariobot/core/logger"
	"github.com/m3rciful/scenariobot/core/netutil"
	tghelpers "github.com/m3rciful/scenariobot/core/telegram/helpers"
	tgsender "github.com/m3rciful/scenariobot/core/telegram/sender"
)

// Middleware describes a global bot middleware to be registered via bot.Use.
type Middleware struct {
	Name string
	Use  tele.MiddlewareFunc
}

// Route declares a single bot handler bound to an arbitrary endpoint.
// Endpoint values are passed directly to tele.Bot.Handle.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions controls the behaviour of RunTelegram.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry

	DispatcherOptions tgsender.Options

	Middlewares []Middleware
	Routes      []Route

	DisableWebhookCleanup bool

	OnStart func(ctx context.Context, rt Runtime) error
}

// Runtime exposes runtime components to lifecycle hooks.
type Runtime struct {
	Bot        *tele.Bot
	Dispatcher *tgsender.Dispatcher
	Registry   *Registry
}

// RunTelegram composes and runs a Telegram bot until ctx is done.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if opts.Config == nil {
		return fmt.Errorf("telegram: nil config provided")
	}
	cfg := opts.Config
	reg := opts.Registry
	if reg == nil {
		reg = NewRegistry()
	}

	poller := BuildPoller(cfg)
	client := netutil.BuildHTTPClient(netutil.ClientOptions{
		// getUpdates holds the response until the long-poll timeout passes.
		Timeout:               longPollTimeout(cfg) + 30*time.Second,
		ResponseHeaderTimeout: longPollTimeout(cfg) + 5*time.Second,
	})

	buildStart := time.Now()
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: poller,
		Client: client,
		OnError: func(err error, c tele.Context) {
			ctx := context.Background()
			if c != nil {
				ctx = tghelpers.BuildContext(c)
			}
			logger.LogEvent(ctx, logger.TG, slog.LevelError, "tg.error",
				slog.String("status", "fail"),
				slog.Any("err", err),
			)
		},
	})
	if err != nil {
		return fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	took := logger.Took(buildStart)

	dispatcher := tgsender.NewDispatcher(opts.DispatcherOptions)
	tghelpers.SetDispatcher(dispatcher)
	defer func() {
		dispatcher.Close()
		tghelpers.SetDispatcher(nil)
	}()

	switch p := poller.(type) {
	case *tele.Webhook:
		logger.LogEvent(ctx, logger.TG, slog.LevelInfo, "tg.mode",
			slog.String("status", "ok"),
			slog.String("mode", coreconfig.RunModeWebhook),
			slog.String("listen", p.Listen),
			slog.String("public_url", p.Endpoint.PublicURL),
			slog.Duration("took", took),
		)
	default:
		logger.LogEvent(ctx, logger.TG, slog.LevelInfo, "tg.mode",
			slog.String("status", "ok"),
			slog.String("mode", coreconfig.RunModeLongpoll),
			slog.Duration("timeout", longPollTimeout(cfg)),
			slog.Duration("took", took),
		)
		if !opts.DisableWebhookCleanup {
			err := bot.RemoveWebhook(false)
			level := slog.LevelInfo
			if err != nil {
				level = slog.LevelWarn
			}
			logger.LogEvent(ctx, logger.TG, level, "tg.webhook.delete",
				slog.String("status", logger.Status(err)),
				slog.Any("err", err),
			)
		}
	}

	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			bot.Use(mw.Use)
		}
	}
	for _, route := range opts.Routes {
		if route.Endpoint == nil || route.Handler == nil {
			continue
		}
		bot.Handle(route.Endpoint, route.Handler)
	}
	SetupCommands(bot, reg)

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, Runtime{Bot: bot, Dispatcher: dispatcher, Registry: reg}); err != nil {
			return err
		}
	}

	runDone := make(chan struct{})
	go func() {
		bot.Start()
		close(runDone)
	}()

	select {
	case <-ctx.Done():
		bot.Stop()
		<-runDone
		if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	case <-runDone:
	}
	logger.LogEvent(ctx, logger.TG, slog.LevelInfo, "tg.stop",
		slog.String("status", "ok"),
		slog.Uint64("send_errors", dispatcher.ErrorCount()),
	)
	return nil
}
