package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/scenariobot/core/scenario"
	"github.com/m3rciful/scenariobot/core/storage/storagetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(storagetest.OpenDB(t))
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return s
}

func mustBot(t *testing.T, s *Store, name string) Bot {
	t.Helper()
	b := Bot{Name: name}
	require.NoError(t, s.CreateBot(context.Background(), &b))
	return b
}

func TestBots(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := Bot{Name: "  support ", Description: "help desk", OwnerID: 42}
	require.NoError(t, s.CreateBot(ctx, &b))
	assert.NotZero(t, b.ID)
	assert.Equal(t, "support", b.Name)
	assert.Equal(t, "{}", b.Config)

	got, err := s.BotByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "help desk", got.Description)
	assert.Equal(t, int64(42), got.OwnerID)
	assert.True(t, got.CreatedAt.Equal(b.CreatedAt))

	_, err = s.BotByID(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)

	again, created, err := s.EnsureBot(ctx, "support", "", 0)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, b.ID, again.ID)

	other, created, err := s.EnsureBot(ctx, "sales", "", 7)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, b.ID, other.ID)

	assert.Error(t, s.CreateBot(ctx, &Bot{Name: " "}))
	assert.Error(t, s.CreateBot(ctx, &Bot{Name: "x", Config: "{broken"}))
}

func TestCreateScenarioValidates(t *testing.T) {
	s := newTestStore(t)
	b := mustBot(t, s, "bot")

	_, err := s.CreateScenario(context.Background(), NewScenario{
		BotID: b.ID,
		Name:  "broken",
		Data:  []byte(`{"initial_state":"a","states":{"a":{}}}`),
	})
	var verr *scenario.ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Contains(t, verr.Error(), "prompt")
}

func TestActiveScenarioSwitching(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	b := mustBot(t, s, "bot")

	_, err := s.ActiveScenario(ctx, b.ID)
	require.ErrorIs(t, err, ErrNotFound)

	first, created, err := s.EnsureDefaultScenario(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, first.IsActive)
	assert.Equal(t, scenario.DefaultScenarioName, first.Name)

	def, err := first.Definition()
	require.NoError(t, err)
	assert.Equal(t, scenario.DefaultScenario().StateNames(), def.StateNames())

	same, created, err := s.EnsureDefaultScenario(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, same.ID)

	second, err := s.CreateScenario(ctx, NewScenario{
		BotID:    b.ID,
		Name:     "short",
		Data:     []byte(`{"initial_state":"s","states":{"s":{"prompt":"p","transitions":{"b":"end","a":"s"}}}}`),
		Activate: true,
	})
	require.NoError(t, err)

	active, err := s.ActiveScenario(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)
	assert.JSONEq(t, `{"initial_state":"s","states":{"s":{"prompt":"p","transitions":{"b":"end","a":"s"}}}}`, active.Data)
	def, err = active.Definition()
	require.NoError(t, err)
	st, _ := def.State("s")
	assert.Equal(t, []string{"b", "a"}, st.Keywords())

	reloaded, err := s.ScenarioByID(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.IsActive)

	require.NoError(t, s.ActivateScenario(ctx, first.ID))
	active, err = s.ActiveScenario(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, active.ID)

	all, err := s.ListScenarios(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)

	assert.ErrorIs(t, s.ActivateScenario(ctx, 999), ErrNotFound)
}

func TestScenarioJSONInlinesData(t *testing.T) {
	sc := Scenario{ID: 3, BotID: 1, Name: "n", Data: `{"initial_state":"a","states":{"a":{"prompt":"p"}}}`}
	raw, err := json.Marshal(sc)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	data, ok := doc["scenario_data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "a", data["initial_state"])
	assert.EqualValues(t, 3, doc["id"])
}

func TestSteps(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	b := mustBot(t, s, "bot")
	sc, _, err := s.EnsureDefaultScenario(ctx, b.ID)
	require.NoError(t, err)

	require.NoError(t, s.AppendSteps(ctx, sc.ID, "tg:1",
		StepInput{Content: "привет", Type: StepUserInput},
		StepInput{Content: "здравствуйте", Type: StepBotResponse},
	))
	require.NoError(t, s.AppendSteps(ctx, sc.ID, "tg:2",
		StepInput{Content: "другой", Type: StepUserInput},
	))
	require.NoError(t, s.AppendSteps(ctx, sc.ID, "tg:1",
		StepInput{Content: "помощь", Type: StepUserInput},
		StepInput{Content: "чем помочь?", Type: StepBotResponse},
	))
	require.NoError(t, s.AppendSteps(ctx, sc.ID, "tg:1"))
	assert.Error(t, s.AppendSteps(ctx, sc.ID, "tg:1", StepInput{Content: "x", Type: "note"}))

	all, err := s.Steps(ctx, sc.ID)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, st := range all {
		assert.Equal(t, i+1, st.Order)
	}

	recent, err := s.RecentSteps(ctx, sc.ID, "tg:1", 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "чем помочь?", recent[0].Content)
	assert.Equal(t, StepBotResponse, recent[0].Type)
	assert.Equal(t, "помощь", recent[1].Content)
	assert.Equal(t, "здравствуйте", recent[2].Content)

	none, err := s.RecentSteps(ctx, sc.ID, "tg:1", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStepOrderUniquePerScenario(t *testing.T) {
	s := New(storagetest.OpenDB(t))
	ctx := context.Background()
	b := mustBot(t, s, "bot")
	sc, _, err := s.EnsureDefaultScenario(ctx, b.ID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("tg:%d", i)
			assert.NoError(t, s.AppendSteps(ctx, sc.ID, key,
				StepInput{Content: "q", Type: StepUserInput},
				StepInput{Content: "a", Type: StepBotResponse},
			))
		}(i)
	}
	wg.Wait()

	all, err := s.Steps(ctx, sc.ID)
	require.NoError(t, err)
	require.Len(t, all, 16)
	for i, st := range all {
		assert.Equal(t, i+1, st.Order)
	}

	_, err = s.DB().ExecContext(ctx, s.q(`INSERT INTO steps (scenario_id, session_key, step_order, content, step_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`), sc.ID, "tg:x", 3, "dup", StepUserInput, s.now())
	assert.Error(t, err)
}
