package scenario

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder answers with a fixed reply and keeps the prompts it saw.
type recorder struct {
	reply   string
	prompts []string
}

func (r *recorder) Generate(_ context.Context, prompt string) (string, error) {
	r.prompts = append(r.prompts, prompt)
	return r.reply, nil
}

func mustParse(t *testing.T, doc string) *Definition {
	t.Helper()
	def, err := Parse([]byte(doc))
	require.NoError(t, err)
	return def
}

const routingDoc = `{
	"initial_state": "start",
	"states": {
		"start": {
			"prompt": "route",
			"transitions": {"help": "A", "contacts": "B"},
			"default_next_state": "C"
		},
		"A": {"prompt": "a"},
		"B": {"prompt": "b"},
		"C": {"prompt": "c"}
	}
}`

func newEngine(t *testing.T, def *Definition, r Responder, opts ...Option) *Engine {
	t.Helper()
	e, err := NewEngine(def, r, opts...)
	require.NoError(t, err)
	return e
}

func TestNewEngineStartsAtInitialState(t *testing.T) {
	for _, def := range []*Definition{DefaultScenario(), mustParse(t, routingDoc)} {
		e := newEngine(t, def, &recorder{})
		s := e.Session()
		assert.Equal(t, def.InitialState, s.CurrentState)
		assert.Empty(t, s.History)
	}
}

func TestNewEngineRejectsNil(t *testing.T) {
	_, err := NewEngine(nil, &recorder{})
	assert.Error(t, err)
	_, err = NewEngine(DefaultScenario(), nil)
	assert.Error(t, err)
}

func TestCurrentStateConfigIsPure(t *testing.T) {
	e := newEngine(t, DefaultScenario(), &recorder{})
	first, ok1 := e.CurrentStateConfig()
	second, ok2 := e.CurrentStateConfig()
	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, first, second)
	assert.Equal(t, "welcome", e.Session().CurrentState)
}

func TestTransitionFirstMatchWins(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"I need help with contacts", "A"},
		{"CONTACTS please", "B"},
		{"thanks bye", "C"},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			e := newEngine(t, mustParse(t, routingDoc), &recorder{reply: "ok"})
			res := e.ProcessUserInput(context.Background(), tc.input, "")
			assert.Equal(t, tc.want, res.CurrentState)
			assert.Equal(t, tc.want, res.NextState)
			assert.False(t, res.IsFinished)
			assert.Empty(t, res.Error)
			assert.Equal(t, "ok", res.Response)
		})
	}
}

func TestTransitionOrderFollowsDocumentNotAlphabet(t *testing.T) {
	def := mustParse(t, `{"initial_state":"s","states":{"s":{"prompt":"p","transitions":{"zeta":"Z","alpha":"A"}}}}`)
	e := newEngine(t, def, &recorder{})
	res := e.ProcessUserInput(context.Background(), "alpha zeta", "")
	assert.Equal(t, "Z", res.NextState)
}

func TestNoMatchNoDefaultStaysPut(t *testing.T) {
	def := mustParse(t, `{"initial_state":"s","states":{"s":{"prompt":"p","transitions":{"go":"t"}},"t":{"prompt":"q"}}}`)
	e := newEngine(t, def, &recorder{})
	res := e.ProcessUserInput(context.Background(), "stay", "")
	assert.Equal(t, "s", res.CurrentState)
	assert.False(t, res.IsFinished)
}

func TestCyrillicKeywordsIgnoreCase(t *testing.T) {
	e := newEngine(t, DefaultScenario(), &recorder{reply: "ok"})
	res := e.ProcessUserInput(context.Background(), "Покажите КОНТАКТЫ", "")
	assert.Equal(t, "contacts", res.CurrentState)
}

func TestFinishedOnEndOrUnknownState(t *testing.T) {
	def := mustParse(t, `{"initial_state":"s","states":{"s":{"prompt":"p","transitions":{"bye":"end","lost":"nowhere"}}}}`)

	e := newEngine(t, def, &recorder{})
	res := e.ProcessUserInput(context.Background(), "bye", "")
	assert.Equal(t, EndState, res.NextState)
	assert.True(t, res.IsFinished)

	e = newEngine(t, def, &recorder{})
	res = e.ProcessUserInput(context.Background(), "lost", "")
	assert.Equal(t, "nowhere", res.NextState)
	assert.True(t, res.IsFinished)
}

func TestDefaultScenarioWalkToEnd(t *testing.T) {
	e := newEngine(t, DefaultScenario(), &recorder{reply: "ok"})
	ctx := context.Background()

	res := e.ProcessUserInput(ctx, "какие у вас услуги?", "")
	assert.Equal(t, "services", res.NextState)
	res = e.ProcessUserInput(ctx, "дайте контакты", "")
	assert.Equal(t, "contacts", res.NextState)
	assert.False(t, res.IsFinished)
	res = e.ProcessUserInput(ctx, "Спасибо!", "")
	assert.Equal(t, EndState, res.NextState)
	assert.True(t, res.IsFinished)
}

func TestStateNotFoundLeavesSessionUntouched(t *testing.T) {
	r := &recorder{reply: "never"}
	e := newEngine(t, DefaultScenario(), r, WithSession(Session{CurrentState: "ghost", History: []string{"user: hi"}}))

	res := e.ProcessUserInput(context.Background(), "hello", "")
	assert.Equal(t, TurnResult{
		Response:     ApologyText,
		CurrentState: "ghost",
		NextState:    "ghost",
		Error:        "scenario state not found",
	}, res)
	assert.Equal(t, Session{CurrentState: "ghost", History: []string{"user: hi"}}, e.Session())
	assert.Empty(t, r.prompts)
}

func TestResponderErrorMovesToFallback(t *testing.T) {
	failing := ResponderFunc(func(context.Context, string) (string, error) {
		return "", errors.New("upstream down")
	})
	e := newEngine(t, DefaultScenario(), failing)

	res := e.ProcessUserInput(context.Background(), "помощь", "")
	assert.Equal(t, ApologyText, res.Response)
	assert.Equal(t, "welcome", res.CurrentState)
	assert.Equal(t, "welcome", res.NextState)
	assert.False(t, res.IsFinished)
	assert.Equal(t, "upstream down", res.Error)
	assert.Empty(t, e.Session().History)
}

func TestResponderPanicUsesDefaultFallback(t *testing.T) {
	panicking := ResponderFunc(func(context.Context, string) (string, error) {
		panic("boom")
	})
	def := mustParse(t, `{"initial_state":"s","states":{"s":{"prompt":"p","transitions":{"x":"s"}}}}`)
	e := newEngine(t, def, panicking)

	var res TurnResult
	require.NotPanics(t, func() {
		res = e.ProcessUserInput(context.Background(), "x", "")
	})
	assert.Equal(t, DefaultFallbackState, res.CurrentState)
	assert.False(t, res.IsFinished)
	assert.Contains(t, res.Error, "boom")

	// The fallback state is not configured, so the next turn hits the not-found path.
	next := e.ProcessUserInput(context.Background(), "x", "")
	assert.Equal(t, ErrStateNotFound.Error(), next.Error)
	assert.Equal(t, DefaultFallbackState, next.CurrentState)
}

func TestPromptWithoutContext(t *testing.T) {
	r := &recorder{reply: "hi"}
	e := newEngine(t, mustParse(t, routingDoc), r)
	e.ProcessUserInput(context.Background(), "hello", "")
	require.Len(t, r.prompts, 1)
	assert.Equal(t, "route\n\nВвод пользователя: hello", r.prompts[0])
}

func TestPromptFoldsHistory(t *testing.T) {
	def := mustParse(t, `{"initial_state":"s","states":{"s":{"prompt":"P"}}}`)
	r := &recorder{reply: "R"}
	e := newEngine(t, def, r)
	ctx := context.Background()

	e.ProcessUserInput(ctx, "one", "")
	e.ProcessUserInput(ctx, "two", "")

	require.Len(t, r.prompts, 2)
	assert.Equal(t, "P\n\nКонтекст диалога:\nuser: one\nassistant: R\n\nТекущий ввод: two", r.prompts[1])
	assert.Equal(t, []string{"user: one", "assistant: R", "user: two", "assistant: R"}, e.Session().History)
}

func TestExternalContextTakesPrecedence(t *testing.T) {
	def := mustParse(t, `{"initial_state":"s","states":{"s":{"prompt":"P"}}}`)
	r := &recorder{reply: "R"}
	e := newEngine(t, def, r, WithSession(Session{History: []string{"user: old"}}))

	e.ProcessUserInput(context.Background(), "now", "Ввод пользователя: earlier")
	assert.Equal(t, "P\n\nКонтекст диалога:\nВвод пользователя: earlier\n\nТекущий ввод: now", r.prompts[0])
}

func TestHistoryWindowBoundsPromptNotStorage(t *testing.T) {
	def := mustParse(t, `{"initial_state":"s","states":{"s":{"prompt":"P"}}}`)
	r := &recorder{reply: "R"}
	e := newEngine(t, def, r, WithHistoryWindow(2))
	ctx := context.Background()
	for _, in := range []string{"a", "b", "c"} {
		e.ProcessUserInput(ctx, in, "")
	}
	assert.Len(t, e.Session().History, 6)
	last := r.prompts[2]
	assert.Contains(t, last, "user: b\nassistant: R")
	assert.NotContains(t, last, "user: a")
}

func TestZeroWindowDisablesHistory(t *testing.T) {
	def := mustParse(t, `{"initial_state":"s","states":{"s":{"prompt":"P"}}}`)
	r := &recorder{reply: "R"}
	e := newEngine(t, def, r, WithHistoryWindow(0))
	e.ProcessUserInput(context.Background(), "a", "")
	e.ProcessUserInput(context.Background(), "b", "")
	assert.Equal(t, "P\n\nВвод пользователя: b", r.prompts[1])
}

func TestResetRestoresInitialSession(t *testing.T) {
	def := DefaultScenario()
	e := newEngine(t, def, &recorder{reply: "ok"})
	initial := e.Session()

	ctx := context.Background()
	for _, in := range []string{"помощь", "контакты", "пока"} {
		e.ProcessUserInput(ctx, in, "")
	}
	require.NotEqual(t, initial.CurrentState, e.Session().CurrentState)

	e.Reset()
	assert.Equal(t, def.InitialState, e.Session().CurrentState)
	assert.Empty(t, e.Session().History)
}

func TestSessionSnapshotIsCopy(t *testing.T) {
	e := newEngine(t, DefaultScenario(), &recorder{reply: "ok"})
	e.ProcessUserInput(context.Background(), "hi", "")
	snap := e.Session()
	snap.History[0] = "mutated"
	assert.Equal(t, "user: hi", e.Session().History[0])
}

func TestLegacyStateWithoutPromptRendersEmpty(t *testing.T) {
	def, err := ParseStored([]byte(`{"initial_state":"s","states":{"s":{"transitions":{"go":"end"}}}}`))
	require.NoError(t, err)
	r := &recorder{reply: "ok"}
	e := newEngine(t, def, r)
	res := e.ProcessUserInput(context.Background(), "go", "")
	assert.True(t, res.IsFinished)
	assert.True(t, strings.HasPrefix(r.prompts[0], "\n\nВвод пользователя: go"))
}
