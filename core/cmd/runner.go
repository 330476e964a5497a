// Package cmd runs a configured bot application until it is signalled to stop.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	coreconfig "github.com/m3rciful/scenariobot/core/config"
	"github.com/m3rciful/scenariobot/core/logger"
	coretelegram "github.com/m3rciful/scenariobot/core/telegram"
)

// ConfigCarrier exposes access to the embedded core configuration.
type ConfigCarrier interface {
	CoreConfig() *coreconfig.Config
}

// TelegramApp is the minimal interface required to run a Telegram bot.
type TelegramApp interface {
	TelegramRunOptions() (coretelegram.RunOptions, error)
}

// BackgroundRunner is implemented by apps that serve something next to the bot, such as an HTTP API.
// RunBackground must return when ctx is done.
type BackgroundRunner interface {
	RunBackground(ctx context.Context) error
}

// Options describe how to load configuration, bootstrap the app, and run the bot.
type Options struct {
	// ConfigPath wins over ConfigEnvVar and DefaultConfigPath when set.
	ConfigPath        string
	ConfigEnvVar      string
	DefaultConfigPath string

	LoadConfig func(path string) (ConfigCarrier, error)
	Bootstrap  func(ctx context.Context, cfg ConfigCarrier) (TelegramApp, error)

	ShutdownLogger func() error
	RunTelegram    func(ctx context.Context, opts coretelegram.RunOptions) error
}

// ResolveConfigPath picks the explicit path, then the env var, then the default.
func ResolveConfigPath(opts Options) (string, error) {
	if opts.ConfigPath != "" {
		return opts.ConfigPath, nil
	}
	env := opts.ConfigEnvVar
	if env == "" {
		env = "CONFIG_PATH"
	}
	if p := os.Getenv(env); p != "" {
		return p, nil
	}
	if opts.DefaultConfigPath != "" {
		return opts.DefaultConfigPath, nil
	}
	return "", fmt.Errorf("cmd: config path not provided via flag, %s or DefaultConfigPath", env)
}

// Run loads configuration, bootstraps the app, and runs the bot plus any background services
// until ctx is cancelled or SIGINT/SIGTERM arrives.
func Run(ctx context.Context, opts Options) error {
	if opts.LoadConfig == nil {
		return fmt.Errorf("cmd: LoadConfig is required")
	}
	if opts.Bootstrap == nil {
		return fmt.Errorf("cmd: Bootstrap is required")
	}

	cfgPath, err := ResolveConfigPath(opts)
	if err != nil {
		return err
	}
	log.Printf("loading config: %s", cfgPath)
	cfg, err := opts.LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("cmd: failed to load config: %w", err)
	}
	if cfg.CoreConfig() == nil {
		return fmt.Errorf("cmd: loaded config is missing core configuration")
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	startedAt := time.Now()
	application, err := opts.Bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("cmd: bootstrap failed: %w", err)
	}

	shutdownLogger := opts.ShutdownLogger
	if shutdownLogger == nil {
		shutdownLogger = logger.Shutdown
	}
	defer func() {
		if err := shutdownLogger(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()
	if closer, ok := application.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				logger.LogEvent(context.Background(), logger.Component("app"), slog.LevelWarn, "app.close",
					slog.String("status", "fail"),
					slog.Any("err", err),
				)
			}
		}()
	}

	runOpts, err := application.TelegramRunOptions()
	if err != nil {
		return fmt.Errorf("cmd: telegram options build failed: %w", err)
	}
	prevStart := runOpts.OnStart
	runOpts.OnStart = func(ctx context.Context, rt coretelegram.Runtime) error {
		if prevStart != nil {
			if err := prevStart(ctx, rt); err != nil {
				return err
			}
		}
		logger.LogEvent(ctx, logger.Component("app"), slog.LevelInfo, "app.ready",
			slog.String("status", "ok"),
			slog.Duration("took", logger.Took(startedAt)),
		)
		return nil
	}

	run := opts.RunTelegram
	if run == nil {
		run = coretelegram.RunTelegram
	}

	// Whichever side returns first stops the other.
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer stop()
		return run(gctx, runOpts)
	})
	if bg, ok := application.(BackgroundRunner); ok {
		g.Go(func() error {
			defer stop()
			return bg.RunBackground(gctx)
		})
	}
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	logger.LogEvent(context.Background(), logger.Component("app"), slog.LevelInfo, "app.shutdown",
		slog.String("status", logger.Status(err)),
		slog.Any("err", err),
	)
	return err
}
