// Package chat runs scenario turns for persisted bots: it resolves the active scenario,
// restores the conversation session, drives the engine and records the exchanged steps.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/m3rciful/scenariobot/core/logger"
	"github.com/m3rciful/scenariobot/core/metrics"
	"github.com/m3rciful/scenariobot/core/scenario"
	"github.com/m3rciful/scenariobot/core/session"
	"github.com/m3rciful/scenariobot/core/storage"
)

// MaxMessageLength bounds a user message, in characters.
const MaxMessageLength = 1000

// DefaultCacheSize is how many parsed scenarios stay cached.
const DefaultCacheSize = 128

// ErrInvalidMessage reports an empty or oversized user message.
var ErrInvalidMessage = errors.New("invalid message")

// Repository is the persistence the service needs.
type Repository interface {
	EnsureDefaultScenario(ctx context.Context, botID int64) (storage.Scenario, bool, error)
	CreateScenario(ctx context.Context, in storage.NewScenario) (storage.Scenario, error)
	AppendSteps(ctx context.Context, scenarioID int64, sessionKey string, steps ...storage.StepInput) error
	RecentSteps(ctx context.Context, scenarioID int64, sessionKey string, limit int) ([]storage.Step, error)
}

// Request is one user turn.
type Request struct {
	BotID      int64
	SessionKey string
	Message    string
	// Context, when non-empty, replaces the session history in the prompt.
	Context string
	// ContextSteps builds Context from that many recorded steps when Context is empty.
	ContextSteps int
}

// Reply is the outcome of a turn plus what a transport needs to render it.
type Reply struct {
	scenario.TurnResult
	ScenarioID int64 `json:"scenario_id"`
	// Keywords are the transitions available from the state the session is now in.
	Keywords []string `json:"keywords,omitempty"`
}

// State describes where a conversation currently is.
type State struct {
	ScenarioID   int64    `json:"scenario_id"`
	CurrentState string   `json:"current_state"`
	Prompt       string   `json:"prompt"`
	Keywords     []string `json:"keywords"`
	HistoryLen   int      `json:"history_len"`
	IsFinished   bool     `json:"is_finished"`
}

// Service serializes and executes turns.
type Service struct {
	repo      Repository
	sessions  session.Store
	locker    *session.Locker
	responder scenario.Responder
	cache     *lru.Cache[int64, *scenario.Definition]
	window    int
	log       *slog.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithHistoryWindow sets how many history lines each engine folds into prompts.
func WithHistoryWindow(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.window = n
		}
	}
}

// NewService wires the service. A nil locker gets a process-local one.
func NewService(repo Repository, sessions session.Store, locker *session.Locker, responder scenario.Responder, opts ...Option) (*Service, error) {
	if repo == nil || sessions == nil || responder == nil {
		return nil, errors.New("chat: repository, session store and responder are required")
	}
	if locker == nil {
		locker = session.NewLocker(nil)
	}
	cache, err := lru.New[int64, *scenario.Definition](DefaultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("chat: scenario cache: %w", err)
	}
	s := &Service{
		repo:      repo,
		sessions:  sessions,
		locker:    locker,
		responder: responder,
		cache:     cache,
		window:    scenario.DefaultHistoryWindow,
		log:       logger.Component(logger.CompChat),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// ValidateMessage trims msg and checks its length.
func ValidateMessage(msg string) (string, error) {
	msg = strings.TrimSpace(msg)
	n := utf8.RuneCountInString(msg)
	if n == 0 {
		return "", fmt.Errorf("%w: message is empty", ErrInvalidMessage)
	}
	if n > MaxMessageLength {
		return "", fmt.Errorf("%w: message is longer than %d characters", ErrInvalidMessage, MaxMessageLength)
	}
	return msg, nil
}

// ActiveScenario returns the bot's active scenario and its parsed definition, creating the
// default scenario when the bot has none.
func (s *Service) ActiveScenario(ctx context.Context, botID int64) (storage.Scenario, *scenario.Definition, error) {
	sc, created, err := s.repo.EnsureDefaultScenario(ctx, botID)
	if err != nil {
		return storage.Scenario{}, nil, err
	}
	if created {
		logger.LogEvent(ctx, s.log, slog.LevelInfo, "scenario.default_created",
			slog.String("status", "ok"),
			slog.Int64("bot_id", botID),
			slog.Int64("scenario_id", sc.ID),
		)
	}
	def, err := s.definition(sc)
	if err != nil {
		return storage.Scenario{}, nil, err
	}
	return sc, def, nil
}

// definition parses a stored scenario once per id. Stored scenario data is never updated in place.
func (s *Service) definition(sc storage.Scenario) (*scenario.Definition, error) {
	if def, ok := s.cache.Get(sc.ID); ok {
		metrics.ScenarioCache(true)
		return def, nil
	}
	metrics.ScenarioCache(false)
	def, err := sc.Definition()
	if err != nil {
		return nil, err
	}
	s.cache.Add(sc.ID, def)
	return def, nil
}

// ReplaceScenario validates data strictly and stores it as the bot's active scenario.
func (s *Service) ReplaceScenario(ctx context.Context, botID int64, name string, data []byte) (storage.Scenario, error) {
	sc, err := s.repo.CreateScenario(ctx, storage.NewScenario{
		BotID:    botID,
		Name:     name,
		Data:     data,
		Activate: true,
	})
	if err != nil {
		return storage.Scenario{}, err
	}
	logger.LogEvent(ctx, s.log, slog.LevelInfo, "scenario.replaced",
		slog.String("status", "ok"),
		slog.Int64("bot_id", botID),
		slog.Int64("scenario_id", sc.ID),
		slog.String("name", sc.Name),
	)
	return sc, nil
}

// Turn runs one user message through the bot's active scenario.
func (s *Service) Turn(ctx context.Context, req Request) (Reply, error) {
	start := time.Now()
	msg, err := ValidateMessage(req.Message)
	if err != nil {
		return Reply{}, err
	}
	sc, def, err := s.ActiveScenario(ctx, req.BotID)
	if err != nil {
		return Reply{}, err
	}
	ctx = logger.WithScenario(logger.WithSessionKey(ctx, req.SessionKey), req.BotID, sc.ID)

	var reply Reply
	err = s.locker.WithLock(ctx, req.SessionKey, func(ctx context.Context) error {
		rec := s.restore(ctx, req.SessionKey, sc.ID, def)

		engine, err := scenario.NewEngine(def, s.responder,
			scenario.WithSession(rec.Session),
			scenario.WithHistoryWindow(s.window),
		)
		if err != nil {
			return err
		}

		dialogue := req.Context
		if dialogue == "" && req.ContextSteps > 0 {
			dialogue = s.recentContext(ctx, sc.ID, req.SessionKey, req.ContextSteps)
		}

		result := engine.ProcessUserInput(ctx, msg, dialogue)
		if result.Error == "" {
			s.persistSteps(ctx, sc.ID, req.SessionKey, msg, result.Response)
		}

		rec.Session = engine.Session()
		if err := s.sessions.Save(ctx, req.SessionKey, rec); err != nil {
			return fmt.Errorf("save session %s: %w", req.SessionKey, err)
		}

		reply = Reply{TurnResult: result, ScenarioID: sc.ID}
		if cfg, ok := def.State(result.CurrentState); ok {
			reply.Keywords = cfg.Keywords()
		}
		return nil
	})
	took := logger.Took(start)
	if err != nil {
		metrics.ObserveTurn("fail", took)
		logger.LogEvent(ctx, s.log, slog.LevelError, "chat.turn",
			slog.String("status", "fail"),
			slog.Duration("took", took),
			slog.Any("err", err),
		)
		return Reply{}, err
	}

	outcome := turnOutcome(reply.TurnResult)
	metrics.ObserveTurn(outcome, took)
	logger.LogEvent(ctx, s.log, slog.LevelInfo, "chat.turn",
		slog.String("status", "ok"),
		slog.String("outcome", outcome),
		slog.String("state", reply.CurrentState),
		slog.Bool("is_finished", reply.IsFinished),
		slog.String("input", logger.SanitizeLimit(msg, 64)),
		slog.Duration("took", took),
	)
	return reply, nil
}

// restore loads the session record. A missing, stale or finished record starts over at the
// scenario's initial state.
func (s *Service) restore(ctx context.Context, key string, scenarioID int64, def *scenario.Definition) session.Record {
	fresh := session.Record{ScenarioID: scenarioID, Session: scenario.Session{CurrentState: def.InitialState}}
	rec, err := s.sessions.Load(ctx, key)
	switch {
	case errors.Is(err, session.ErrNotFound):
		return fresh
	case err != nil:
		logger.LogEvent(ctx, s.log, slog.LevelWarn, "session.load",
			slog.String("status", "fail"),
			slog.Any("err", err),
		)
		return fresh
	case rec.ScenarioID != scenarioID:
		logger.LogEvent(ctx, s.log, slog.LevelInfo, "session.reset",
			slog.String("status", "ok"),
			slog.String("reason", "scenario_changed"),
			slog.Int64("prev_scenario_id", rec.ScenarioID),
		)
		return fresh
	case !def.HasState(rec.Session.CurrentState) && rec.Session.CurrentState != "":
		logger.LogEvent(ctx, s.log, slog.LevelDebug, "session.reset",
			slog.String("status", "ok"),
			slog.String("reason", "finished"),
			slog.String("state", rec.Session.CurrentState),
		)
		return fresh
	}
	return rec
}

func (s *Service) persistSteps(ctx context.Context, scenarioID int64, key, input, response string) {
	err := s.repo.AppendSteps(ctx, scenarioID, key,
		storage.StepInput{Content: input, Type: storage.StepUserInput},
		storage.StepInput{Content: response, Type: storage.StepBotResponse},
	)
	metrics.StepPersisted(err)
	if err != nil {
		logger.LogEvent(ctx, s.log, slog.LevelWarn, "steps.persist",
			slog.String("status", "fail"),
			slog.Any("err", err),
		)
	}
}

// Reset forgets the conversation so the next turn starts at the initial state.
func (s *Service) Reset(ctx context.Context, botID int64, key string) (State, error) {
	sc, def, err := s.ActiveScenario(ctx, botID)
	if err != nil {
		return State{}, err
	}
	err = s.locker.WithLock(ctx, key, func(ctx context.Context) error {
		return s.sessions.Delete(ctx, key)
	})
	if err != nil {
		return State{}, fmt.Errorf("reset session %s: %w", key, err)
	}
	logger.LogEvent(logger.WithSessionKey(ctx, key), s.log, slog.LevelInfo, "session.reset",
		slog.String("status", "ok"),
		slog.String("reason", "requested"),
	)
	return describe(sc.ID, def, scenario.Session{CurrentState: def.InitialState}), nil
}

// State reports the conversation's position without changing it.
func (s *Service) State(ctx context.Context, botID int64, key string) (State, error) {
	sc, def, err := s.ActiveScenario(ctx, botID)
	if err != nil {
		return State{}, err
	}
	var st State
	err = s.locker.WithLock(ctx, key, func(ctx context.Context) error {
		rec, err := s.sessions.Load(ctx, key)
		switch {
		case errors.Is(err, session.ErrNotFound) || (err == nil && rec.ScenarioID != sc.ID):
			st = describe(sc.ID, def, scenario.Session{CurrentState: def.InitialState})
			return nil
		case err != nil:
			return err
		}
		st = describe(sc.ID, def, rec.Session)
		return nil
	})
	if err != nil {
		return State{}, fmt.Errorf("session state %s: %w", key, err)
	}
	return st, nil
}

func describe(scenarioID int64, def *scenario.Definition, sess scenario.Session) State {
	st := State{
		ScenarioID:   scenarioID,
		CurrentState: sess.CurrentState,
		HistoryLen:   len(sess.History),
		Keywords:     []string{},
	}
	cfg, ok := def.State(sess.CurrentState)
	st.IsFinished = sess.CurrentState == scenario.EndState || !ok
	if ok {
		st.Prompt = cfg.Prompt
		st.Keywords = cfg.Keywords()
	}
	return st
}

func turnOutcome(res scenario.TurnResult) string {
	switch {
	case res.Error == scenario.ErrStateNotFound.Error():
		return "not_found"
	case res.Error != "":
		return "fallback"
	case res.IsFinished:
		return "finished"
	}
	return "ok"
}
