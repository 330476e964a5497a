package scenario

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/scenariobot/core/logger"
)

// ApologyText is the reply of a turn that could not be processed.
const ApologyText = "Извините, произошла ошибка."

// DefaultHistoryWindow bounds how many history lines are folded into a prompt.
const DefaultHistoryWindow = 10

// ErrStateNotFound is reported when the session sits in a state the definition does not configure.
var ErrStateNotFound = errors.New("scenario state not found")

// Responder turns a prompt into reply text.
type Responder interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ResponderFunc adapts a plain function to Responder.
type ResponderFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f.
func (f ResponderFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Session is the runtime position of one conversation.
type Session struct {
	CurrentState string   `json:"current_state"`
	History      []string `json:"history"`
}

// Clone returns a deep copy.
func (s Session) Clone() Session {
	return Session{CurrentState: s.CurrentState, History: append([]string(nil), s.History...)}
}

// TurnResult is the outcome of one user turn.
type TurnResult struct {
	Response     string `json:"response"`
	CurrentState string `json:"current_state"`
	NextState    string `json:"next_state"`
	IsFinished   bool   `json:"is_finished"`
	Error        string `json:"error,omitempty"`
}

// Engine drives one session through a definition. It is not safe for concurrent use;
// callers serialize turns per session.
type Engine struct {
	def       *Definition
	responder Responder
	session   Session
	window    int
	log       *slog.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithSession restores a previously saved session. An empty current state starts at the initial state.
func WithSession(s Session) Option {
	return func(e *Engine) {
		e.session = s.Clone()
		if e.session.CurrentState == "" {
			e.session.CurrentState = e.def.InitialState
		}
	}
}

// WithHistoryWindow sets how many trailing history lines are folded into prompts; 0 disables history context.
func WithHistoryWindow(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.window = n
		}
	}
}

// WithLogger overrides the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// NewEngine starts a session at the definition's initial state.
func NewEngine(def *Definition, responder Responder, opts ...Option) (*Engine, error) {
	if def == nil {
		return nil, errors.New("scenario: nil definition")
	}
	if responder == nil {
		return nil, errors.New("scenario: nil responder")
	}
	e := &Engine{
		def:       def,
		responder: responder,
		session:   Session{CurrentState: def.InitialState},
		window:    DefaultHistoryWindow,
		log:       logger.Component(logger.CompScenario),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e, nil
}

// Definition returns the scenario the engine runs.
func (e *Engine) Definition() *Definition {
	return e.def
}

// Session returns a copy of the current session.
func (e *Engine) Session() Session {
	return e.session.Clone()
}

// CurrentStateConfig looks up the configuration of the current state.
func (e *Engine) CurrentStateConfig() (StateConfig, bool) {
	return e.def.State(e.session.CurrentState)
}

// Reset moves the session back to the initial state and forgets its history.
func (e *Engine) Reset() {
	e.session = Session{CurrentState: e.def.InitialState}
}

// ProcessUserInput runs one turn. A non-empty conversationContext replaces the engine's own history
// as prompt context. It never returns an error: failures are reported in TurnResult.Error.
func (e *Engine) ProcessUserInput(ctx context.Context, userInput, conversationContext string) TurnResult {
	start := time.Now()
	current := e.session.CurrentState

	cfg, ok := e.CurrentStateConfig()
	if !ok {
		logger.LogEvent(ctx, e.log, slog.LevelWarn, "turn.state_missing",
			slog.String("status", "fail"),
			slog.String("outcome", "not_found"),
			slog.String("state", current),
		)
		return TurnResult{
			Response:     ApologyText,
			CurrentState: current,
			NextState:    current,
			Error:        ErrStateNotFound.Error(),
		}
	}

	reply, err := e.generate(ctx, cfg, userInput, conversationContext)
	if err != nil {
		fallback := cfg.Fallback()
		e.session.CurrentState = fallback
		logger.LogEvent(ctx, e.log, slog.LevelError, "turn.fallback",
			slog.String("status", "fallback"),
			slog.String("outcome", "fallback"),
			slog.String("state", current),
			slog.String("next_state", fallback),
			slog.Duration("took", logger.Took(start)),
			slog.Any("err", err),
		)
		return TurnResult{
			Response:     ApologyText,
			CurrentState: fallback,
			NextState:    fallback,
			Error:        err.Error(),
		}
	}

	next := current
	transition, matched := cfg.Match(userInput)
	switch {
	case matched:
		next = transition.Target
	case cfg.DefaultNextState != "":
		next = cfg.DefaultNextState
	}

	e.session.CurrentState = next
	e.session.History = append(e.session.History, UserPrefix+userInput, AssistantPrefix+reply)
	finished := next == EndState || !e.def.HasState(next)

	outcome := "ok"
	if finished {
		outcome = "finished"
	}
	if logger.ShouldSampleDebug() {
		logger.LogEvent(ctx, e.log, slog.LevelDebug, "turn.done",
			slog.String("status", "ok"),
			slog.String("outcome", outcome),
			slog.String("state", current),
			slog.String("next_state", next),
			slog.String("keyword", transition.Keyword),
			slog.Bool("is_finished", finished),
			slog.Int("reply_len", len([]rune(reply))),
			slog.Duration("took", logger.Took(start)),
		)
	}
	return TurnResult{
		Response:     reply,
		CurrentState: next,
		NextState:    next,
		IsFinished:   finished,
	}
}

// generate builds the prompt and calls the responder, turning a panic into an error.
func (e *Engine) generate(ctx context.Context, cfg StateConfig, userInput, conversationContext string) (reply string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	dialogue := conversationContext
	if dialogue == "" {
		dialogue = RenderHistory(e.session.History, e.window)
	}
	return e.responder.Generate(ctx, BuildPrompt(cfg.Prompt, userInput, dialogue))
}
