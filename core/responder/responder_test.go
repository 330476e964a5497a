package responder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/scenariobot/core/config"
)

func TestStubDeterministic(t *testing.T) {
	ctx := context.Background()
	cases := map[string]string{
		"Привет, как дела?":      StubGreeting,
		"ДОБРЫЙ ДЕНЬ":            StubGreeting,
		"До свидания":            StubFarewell,
		"ну всё, пока":           StubFarewell,
		"сколько стоит доставка": StubDefault,
		"":                       StubDefault,
	}
	for prompt, want := range cases {
		for i := 0; i < 3; i++ {
			got, err := Stub{}.Generate(ctx, prompt)
			require.NoError(t, err)
			assert.Equal(t, want, got, prompt)
		}
	}
}

func TestStubGreetingWinsOverFarewell(t *testing.T) {
	got, _ := Stub{}.Generate(context.Background(), "привет и пока")
	assert.Equal(t, StubGreeting, got)
}

func liveConfig(t *testing.T, baseURL, key string) coreconfig.ResponderConfig {
	t.Helper()
	cfg := coreconfig.ResponderConfig{Kind: "live", BaseURL: baseURL, APIKey: key}
	require.NoError(t, coreconfig.NormalizeResponder(&cfg))
	return cfg
}

func TestLiveSendsChatCompletion(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  Здравствуйте!  "}}]}`))
	}))
	defer srv.Close()

	l := NewLive(liveConfig(t, srv.URL+"/", "secret"), WithHTTPClient(srv.Client()))
	reply, err := l.Generate(context.Background(), "prompt text")
	require.NoError(t, err)
	assert.Equal(t, "Здравствуйте!", reply)

	assert.Equal(t, coreconfig.DefaultResponderModel, got.Model)
	assert.Equal(t, coreconfig.DefaultMaxTokens, got.MaxTokens)
	assert.InDelta(t, coreconfig.DefaultTemperature, got.Temperature, 1e-9)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, chatMessage{Role: "system", Content: coreconfig.DefaultSystemPrompt}, got.Messages[0])
	assert.Equal(t, chatMessage{Role: "user", Content: "prompt text"}, got.Messages[1])
}

func TestLiveApologizesOnFailure(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "overloaded", http.StatusInternalServerError)
		},
		"malformed body": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices":`))
		},
		"api error": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"auth"}}`))
		},
		"no choices": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[]}`))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()
			l := NewLive(liveConfig(t, srv.URL, "k"), WithHTTPClient(srv.Client()))
			reply, err := l.Generate(context.Background(), "p")
			require.NoError(t, err)
			assert.Equal(t, ApologyText, reply)
		})
	}
}

func TestLiveUnreachableEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	l := NewLive(liveConfig(t, url, "k"), WithHTTPClient(&http.Client{}))
	reply, err := l.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, ApologyText, reply)
}

func TestLiveWithoutKeyNeverCalls(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	l := NewLive(liveConfig(t, srv.URL, ""), WithHTTPClient(srv.Client()))
	reply, err := l.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, ApologyText, reply)
	assert.Zero(t, calls.Load())
}

func TestLiveHonoursCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"late"}}]}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l := NewLive(liveConfig(t, srv.URL, "k"), WithHTTPClient(srv.Client()))
	reply, err := l.Generate(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, ApologyText, reply)
}

func TestFromConfig(t *testing.T) {
	r, err := FromConfig(coreconfig.ResponderConfig{})
	require.NoError(t, err)
	assert.IsType(t, Stub{}, r)

	r, err = FromConfig(coreconfig.ResponderConfig{Kind: "deepseek", APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &Live{}, r)

	_, err = FromConfig(coreconfig.ResponderConfig{Kind: "gpt-9"})
	assert.Error(t, err)
}
