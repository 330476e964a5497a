// Package metrics owns the Prometheus collectors of the bot and the registry that serves them.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scenariobot"

var (
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Scenario turns processed, by outcome",
		},
		[]string{"outcome"}, // ok, finished, fallback, not_found
	)

	turnDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Duration of a scenario turn including the responder call",
			Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	responderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responder_requests_total",
			Help:      "Responder calls, by responder kind and status",
		},
		[]string{"kind", "status"}, // status: ok, fail, no_key
	)

	responderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "responder_request_duration_seconds",
			Help:      "Duration of responder calls in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"kind"},
	)

	stepsPersisted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_persisted_total",
			Help:      "Conversation steps written to storage, by status",
		},
		[]string{"status"},
	)

	scenarioCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scenario_cache_total",
			Help:      "Parsed scenario cache lookups",
		},
		[]string{"result"}, // hit, miss
	)

	telegramSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telegram_messages_sent_total",
			Help:      "Messages sent to Telegram, by whether a keyboard was attached",
		},
		[]string{"keyboard"},
	)

	telegramSendFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telegram_send_failures_total",
			Help:      "Outbound Telegram calls that failed after retries, by error kind",
		},
		[]string{"kind"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "JSON API requests, by route pattern and status code",
		},
		[]string{"route", "code"},
	)

	allCollectors = []prometheus.Collector{
		turnsTotal,
		turnDuration,
		responderRequestsTotal,
		responderDuration,
		stepsPersisted,
		scenarioCache,
		telegramSent,
		telegramSendFailures,
		httpRequests,
	}
)

// Registry holds the bot collectors plus Go runtime and process metrics.
var Registry = newRegistry()

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(allCollectors...)
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler serves Registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveTurn records one engine turn.
func ObserveTurn(outcome string, took time.Duration) {
	turnsTotal.WithLabelValues(outcome).Inc()
	turnDuration.Observe(took.Seconds())
}

// ObserveResponder records one responder call.
func ObserveResponder(kind, status string, took time.Duration) {
	responderRequestsTotal.WithLabelValues(kind, status).Inc()
	responderDuration.WithLabelValues(kind).Observe(took.Seconds())
}

// StepPersisted counts a step write attempt.
func StepPersisted(err error) {
	status := "ok"
	if err != nil {
		status = "fail"
	}
	stepsPersisted.WithLabelValues(status).Inc()
}

// ScenarioCache counts a cache lookup.
func ScenarioCache(hit bool) {
	if hit {
		scenarioCache.WithLabelValues("hit").Inc()
		return
	}
	scenarioCache.WithLabelValues("miss").Inc()
}

// TelegramSent counts an outgoing Telegram message.
func TelegramSent(withKeyboard bool) {
	telegramSent.WithLabelValues(strconv.FormatBool(withKeyboard)).Inc()
}

// TelegramSendFailed counts an outbound call given up on.
func TelegramSendFailed(kind string) {
	telegramSendFailures.WithLabelValues(kind).Inc()
}

// HTTPRequest counts a served API request.
func HTTPRequest(route string, code int) {
	httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
