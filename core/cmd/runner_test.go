package cmd

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/scenariobot/core/config"
	coretelegram "github.com/m3rciful/scenariobot/core/telegram"
)

type testConfig struct{ core *coreconfig.Config }

func (c testConfig) CoreConfig() *coreconfig.Config { return c.core }

type testApp struct {
	background func(ctx context.Context) error
	closed     bool
}

func (a *testApp) TelegramRunOptions() (coretelegram.RunOptions, error) {
	return coretelegram.RunOptions{}, nil
}

func (a *testApp) RunBackground(ctx context.Context) error { return a.background(ctx) }

func (a *testApp) Close() error {
	a.closed = true
	return nil
}

func testOptions(app *testApp) Options {
	return Options{
		ConfigPath: "config.yaml",
		LoadConfig: func(string) (ConfigCarrier, error) {
			return testConfig{core: &coreconfig.Config{}}, nil
		},
		Bootstrap: func(context.Context, ConfigCarrier) (TelegramApp, error) {
			return app, nil
		},
		ShutdownLogger: func() error { return nil },
	}
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("SCENARIOBOT_CONFIG", "/etc/env.yaml")

	p, err := ResolveConfigPath(Options{ConfigPath: "flag.yaml", ConfigEnvVar: "SCENARIOBOT_CONFIG"})
	require.NoError(t, err)
	assert.Equal(t, "flag.yaml", p)

	p, err = ResolveConfigPath(Options{ConfigEnvVar: "SCENARIOBOT_CONFIG", DefaultConfigPath: "default.yaml"})
	require.NoError(t, err)
	assert.Equal(t, "/etc/env.yaml", p)

	p, err = ResolveConfigPath(Options{ConfigEnvVar: "UNSET_SCENARIOBOT_VAR", DefaultConfigPath: "default.yaml"})
	require.NoError(t, err)
	assert.Equal(t, "default.yaml", p)

	_, err = ResolveConfigPath(Options{ConfigEnvVar: "UNSET_SCENARIOBOT_VAR"})
	assert.Error(t, err)
}

func TestRunStopsBackgroundWhenBotStops(t *testing.T) {
	stopped := make(chan struct{})
	app := &testApp{background: func(ctx context.Context) error {
		<-ctx.Done()
		close(stopped)
		return nil
	}}
	opts := testOptions(app)
	opts.RunTelegram = func(context.Context, coretelegram.RunOptions) error { return nil }

	require.NoError(t, Run(context.Background(), opts))
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("background runner was not stopped")
	}
	assert.True(t, app.closed)
}

func TestRunPropagatesBackgroundError(t *testing.T) {
	boom := errors.New("listen failed")
	app := &testApp{background: func(context.Context) error { return boom }}
	opts := testOptions(app)
	opts.RunTelegram = func(ctx context.Context, _ coretelegram.RunOptions) error {
		<-ctx.Done()
		return nil
	}

	assert.ErrorIs(t, Run(context.Background(), opts), boom)
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	app := &testApp{background: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	opts := testOptions(app)
	opts.RunTelegram = func(ctx context.Context, _ coretelegram.RunOptions) error {
		cancel()
		<-ctx.Done()
		return nil
	}
	assert.NoError(t, Run(ctx, opts))
}

func TestRunRequiresHooks(t *testing.T) {
	assert.Error(t, Run(context.Background(), Options{}))
	assert.Error(t, Run(context.Background(), Options{LoadConfig: testOptions(&testApp{}).LoadConfig}))
}
