package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveTurnCountsByOutcome(t *testing.T) {
	before := testutil.ToFloat64(turnsTotal.WithLabelValues("fallback"))
	ObserveTurn("fallback", 20*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(turnsTotal.WithLabelValues("fallback")))
}

func TestStepPersistedStatus(t *testing.T) {
	okBefore := testutil.ToFloat64(stepsPersisted.WithLabelValues("ok"))
	failBefore := testutil.ToFloat64(stepsPersisted.WithLabelValues("fail"))
	StepPersisted(nil)
	StepPersisted(errors.New("db down"))
	assert.Equal(t, okBefore+1, testutil.ToFloat64(stepsPersisted.WithLabelValues("ok")))
	assert.Equal(t, failBefore+1, testutil.ToFloat64(stepsPersisted.WithLabelValues("fail")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	ObserveResponder("stub", "ok", time.Millisecond)
	ScenarioCache(true)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `scenariobot_responder_requests_total{kind="stub",status="ok"}`)
	assert.Contains(t, string(body), `scenariobot_scenario_cache_total{result="hit"}`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestTelegramSendFailed(t *testing.T) {
	before := testutil.ToFloat64(telegramSendFailures.WithLabelValues("timeout"))
	TelegramSendFailed("timeout")
	assert.Equal(t, before+1, testutil.ToFloat64(telegramSendFailures.WithLabelValues("timeout")))
}
