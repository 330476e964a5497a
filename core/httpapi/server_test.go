package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/scenariobot/core/chat"
	"github.com/m3rciful/scenariobot/core/responder"
	"github.com/m3rciful/scenariobot/core/session"
	"github.com/m3rciful/scenariobot/core/storage"
	"github.com/m3rciful/scenariobot/core/storage/storagetest"
)

type fixture struct {
	srv   *httptest.Server
	store *storage.Store
	bot   storage.Bot
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.New(storagetest.OpenDB(t))
	bot := storage.Bot{Name: "api-bot"}
	require.NoError(t, store.CreateBot(context.Background(), &bot))

	svc, err := chat.NewService(store, session.NewMemoryStore(0), nil, responder.Stub{})
	require.NoError(t, err)

	srv := httptest.NewServer(NewHandler(svc, store))
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, store: store, bot: bot}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var raw json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	return resp, raw
}

func botPath(b storage.Bot, suffix string) string {
	return "/api/bots/" + itoa(b.ID) + suffix
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"status":"ok"`)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/healthz", "")

	resp, err := f.srv.Client().Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `scenariobot_http_requests_total{code="200",route="/healthz"}`)
}

func TestChatTurn(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, botPath(f.bot, "/chat"), `{"session_id":"u1","message":"услуги"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var reply map[string]any
	require.NoError(t, json.Unmarshal(body, &reply))
	assert.Equal(t, "services", reply["current_state"])
	assert.Equal(t, "services", reply["next_state"])
	assert.Equal(t, false, reply["is_finished"])
	assert.Equal(t, responder.StubGreeting, reply["response"])
	assert.NotContains(t, reply, "error")

	resp, body = f.do(t, http.MethodGet, botPath(f.bot, "/sessions/u1"), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st chat.State
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, "services", st.CurrentState)
	assert.Equal(t, 2, st.HistoryLen)

	resp, body = f.do(t, http.MethodGet, botPath(f.bot, "/scenarios/"+itoa(st.ScenarioID)+"/steps"), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var steps []storage.Step
	require.NoError(t, json.Unmarshal(body, &steps))
	require.Len(t, steps, 2)
	assert.Equal(t, "услуги", steps[0].Content)
	assert.Equal(t, storage.StepUserInput, steps[0].Type)

	resp, body = f.do(t, http.MethodPost, botPath(f.bot, "/reset"), `{"session_id":"u1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, "welcome", st.CurrentState)
}

func TestChatRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name string
		path string
		body string
		code int
	}{
		{"empty message", botPath(f.bot, "/chat"), `{"session_id":"u1","message":"  "}`, http.StatusBadRequest},
		{"long message", botPath(f.bot, "/chat"), `{"session_id":"u1","message":"` + strings.Repeat("a", 1001) + `"}`, http.StatusBadRequest},
		{"bad session", botPath(f.bot, "/chat"), `{"session_id":"a b","message":"hi"}`, http.StatusBadRequest},
		{"unknown field", botPath(f.bot, "/chat"), `{"session_id":"u1","message":"hi","extra":1}`, http.StatusBadRequest},
		{"unknown bot", "/api/bots/999/chat", `{"session_id":"u1","message":"hi"}`, http.StatusNotFound},
		{"bad bot id", "/api/bots/x/chat", `{"session_id":"u1","message":"hi"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := f.do(t, http.MethodPost, tc.path, tc.body)
			assert.Equal(t, tc.code, resp.StatusCode, string(body))
			assert.Contains(t, string(body), `"error"`)
		})
	}
}

func TestValidateScenario(t *testing.T) {
	f := newFixture(t)

	_, body := f.do(t, http.MethodPost, "/api/scenarios/validate",
		`{"initial_state":"a","states":{"a":{"prompt":"p"}}}`)
	assert.JSONEq(t, `{"valid":true}`, string(body))

	_, body = f.do(t, http.MethodPost, "/api/scenarios/validate",
		`{"initial_state":"a","states":{"b":{"prompt":"p"}}}`)
	var res validateResponse
	require.NoError(t, json.Unmarshal(body, &res))
	assert.False(t, res.Valid)
	assert.Contains(t, res.Error, "initial_state")
}

func TestCreateScenario(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, botPath(f.bot, "/scenarios"),
		`{"name":"broken","scenario_data":{"initial_state":"a","states":{"a":{}}}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "prompt")

	resp, body = f.do(t, http.MethodPost, botPath(f.bot, "/scenarios"),
		`{"name":"flat","scenario_data":{"initial_state":"only","states":{"only":{"prompt":"p"}}}}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var created map[string]any
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, true, created["is_active"])
	assert.Equal(t, "only", created["scenario_data"].(map[string]any)["initial_state"])

	resp, body = f.do(t, http.MethodPost, botPath(f.bot, "/chat"), `{"session_id":"u2","message":"hi"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"current_state":"only"`)

	resp, body = f.do(t, http.MethodGet, botPath(f.bot, "/scenarios"), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Len(t, list, 1)
}

func TestStepsOfForeignScenario(t *testing.T) {
	f := newFixture(t)
	other := storage.Bot{Name: "other"}
	require.NoError(t, f.store.CreateBot(context.Background(), &other))
	sc, _, err := f.store.EnsureDefaultScenario(context.Background(), other.ID)
	require.NoError(t, err)

	resp, _ := f.do(t, http.MethodGet, botPath(f.bot, "/scenarios/"+itoa(sc.ID)+"/steps"), "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
