package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/scenariobot/core/config"
	"github.com/m3rciful/scenariobot/core/logger"
	"github.com/m3rciful/scenariobot/core/metrics"
	"github.com/m3rciful/scenariobot/core/netutil"
)

const (
	completionsPath = "/chat/completions"
	// maxErrorBody caps how much of a failed response body is kept for the log line.
	maxErrorBody = 512
)

var errNoAPIKey = errors.New("responder api key is not configured")

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Live calls an OpenAI-compatible chat completions endpoint with a fixed system instruction.
// Every failure is logged and answered with ApologyText.
type Live struct {
	client       *http.Client
	endpoint     string
	apiKey       string
	model        string
	systemPrompt string
	maxTokens    int
	temperature  float64
}

// LiveOption customizes a Live responder.
type LiveOption func(*Live)

// WithHTTPClient replaces the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) LiveOption {
	return func(l *Live) {
		if c != nil {
			l.client = c
		}
	}
}

// NewLive builds a Live responder from a normalized config. A missing API key is reported once here
// and then on every call, each of which answers with the apology.
func NewLive(cfg coreconfig.ResponderConfig, opts ...LiveOption) *Live {
	l := &Live{
		endpoint:     strings.TrimRight(cfg.BaseURL, "/") + completionsPath,
		apiKey:       strings.TrimSpace(cfg.APIKey),
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		maxTokens:    cfg.MaxTokens,
		temperature:  cfg.SamplingTemperature(),
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	l.client = netutil.BuildHTTPClient(netutil.ClientOptions{
		Timeout:               timeout,
		ResponseHeaderTimeout: timeout,
		Retries:               2,
		Backoff:               500 * time.Millisecond,
		RetryStatuses:         true,
	})
	for _, opt := range opts {
		opt(l)
	}
	if l.apiKey == "" {
		logger.Warn(logger.Background(), logger.CompResponder, "responder.no_api_key",
			slog.String("model", l.model),
			slog.String("cause", "every reply will be the apology text"),
		)
	}
	return l
}

// Generate sends prompt as the user message and returns the first choice, trimmed.
func (l *Live) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	reply, status, err := l.complete(ctx, prompt)
	took := logger.Took(start)

	if err != nil {
		label := "fail"
		if errors.Is(err, errNoAPIKey) {
			label = "no_key"
		}
		metrics.ObserveResponder(coreconfig.ResponderLive, label, took)
		logger.Error(ctx, logger.CompResponder, "responder.failed",
			slog.String("status", "fail"),
			slog.String("model", l.model),
			slog.Int("http_code", status),
			slog.Int("prompt_len", len([]rune(prompt))),
			slog.Duration("took", took),
			slog.Any("err", err),
		)
		return ApologyText, nil
	}

	metrics.ObserveResponder(coreconfig.ResponderLive, "ok", took)
	logger.Debug(ctx, logger.CompResponder, "responder.ok",
		slog.String("status", "ok"),
		slog.String("model", l.model),
		slog.Int("prompt_len", len([]rune(prompt))),
		slog.Int("reply_len", len([]rune(reply))),
		slog.Duration("took", took),
	)
	return reply, nil
}

func (l *Live) complete(ctx context.Context, prompt string) (string, int, error) {
	if l.apiKey == "" {
		return "", 0, errNoAPIKey
	}

	body, err := json.Marshal(chatRequest{
		Model: l.model,
		Messages: []chatMessage{
			{Role: "system", Content: l.systemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   l.maxTokens,
		Temperature: l.temperature,
	})
	if err != nil {
		return "", 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+l.apiKey)

	resp, err := l.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", resp.StatusCode, fmt.Errorf("status %d: %s", resp.StatusCode, logger.SanitizeLimit(string(raw), maxErrorBody))
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	if decoded.Error != nil {
		return "", resp.StatusCode, fmt.Errorf("api error: %s", decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return "", resp.StatusCode, errors.New("no choices in response")
	}
	return strings.TrimSpace(decoded.Choices[0].Message.Content), resp.StatusCode, nil
}
