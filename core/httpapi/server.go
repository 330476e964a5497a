// Package httpapi serves the JSON API, health and metrics endpoints.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/m3rciful/scenariobot/core/chat"
	"github.com/m3rciful/scenariobot/core/logger"
	"github.com/m3rciful/scenariobot/core/metrics"
	"github.com/m3rciful/scenariobot/core/storage"
)

// Chat runs and inspects conversations.
type Chat interface {
	Turn(ctx context.Context, req chat.Request) (chat.Reply, error)
	State(ctx context.Context, botID int64, key string) (chat.State, error)
	Reset(ctx context.Context, botID int64, key string) (chat.State, error)
}

// Store reads and writes the persisted entities the API exposes.
type Store interface {
	BotByID(ctx context.Context, id int64) (storage.Bot, error)
	ListScenarios(ctx context.Context, botID int64) ([]storage.Scenario, error)
	ScenarioByID(ctx context.Context, id int64) (storage.Scenario, error)
	CreateScenario(ctx context.Context, in storage.NewScenario) (storage.Scenario, error)
	Steps(ctx context.Context, scenarioID int64) ([]storage.Step, error)
}

// Server holds the API dependencies.
type Server struct {
	chat  Chat
	store Store
}

// NewHandler builds the router.
func NewHandler(c Chat, store Store) http.Handler {
	s := &Server{chat: c, store: store}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))

		r.Post("/scenarios/validate", s.validateScenario)
		r.Route("/bots/{botID}", func(r chi.Router) {
			r.Post("/chat", s.turn)
			r.Post("/reset", s.reset)
			r.Get("/sessions/{sessionID}", s.sessionState)
			r.Get("/scenarios", s.listScenarios)
			r.Post("/scenarios", s.createScenario)
			r.Get("/scenarios/{scenarioID}/steps", s.steps)
		})
	})
	return r
}

// Run serves handler on listen until ctx is done, then shuts down gracefully.
func Run(ctx context.Context, listen string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.LogEvent(ctx, logger.HTTP, slog.LevelInfo, "http.listen",
			slog.String("status", "ok"),
			slog.String("listen", listen),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	logger.LogEvent(ctx, logger.HTTP, slog.LevelInfo, "http.shutdown",
		slog.String("status", logger.Status(err)),
	)
	if err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// accessLog records every request with its chi route pattern.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := logger.WithRID(r.Context(), middleware.GetReqID(r.Context()))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		metrics.HTTPRequest(route, code)

		level := slog.LevelDebug
		if code >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		status := "ok"
		if code >= http.StatusBadRequest {
			status = "fail"
		}
		logger.LogEvent(ctx, logger.HTTP, level, "http.request",
			slog.String("status", status),
			slog.String("method", r.Method),
			slog.String("route", route),
			slog.Int("code", code),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("took", logger.Took(start)),
		)
	})
}
