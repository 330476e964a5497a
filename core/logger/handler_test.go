package logger

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func newTestHandler(format logFormat) (*structuredHandler, *asyncWriter, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	h := newStructuredHandler(handlerConfig{
		level:    slog.LevelInfo,
		writer:   aw,
		format:   format,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	})
	return h, aw, buf
}

func drain(t *testing.T, aw *asyncWriter, buf *bytes.Buffer) string {
	t.Helper()
	if err := aw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return strings.TrimSpace(buf.String())
}

func TestStructuredHandlerKVOrder(t *testing.T) {
	h, aw, buf := newTestHandler(formatKV)
	ctx := WithRID(Background(), "rid-123")
	ctx = WithUpdateMeta(ctx, 42, 7, 9)

	LogEvent(ctx, slog.New(h).With("component", "app"), slog.LevelInfo, "test.event",
		slog.String("status", "ok"),
		slog.String("cause", "unit"),
	)

	tokens := strings.Split(drain(t, aw, buf), " ")
	expected := []string{"ts=", "level=INFO", "component=app", "event=test.event", "status=ok", "rid=rid-123"}
	if len(tokens) < len(expected) {
		t.Fatalf("unexpected token count: %d (%v)", len(tokens), tokens)
	}
	for i, prefix := range expected {
		if !strings.HasPrefix(tokens[i], prefix) {
			t.Fatalf("token %d = %s, expected prefix %s", i, tokens[i], prefix)
		}
	}
}

func TestStructuredHandlerJSONOrder(t *testing.T) {
	h, aw, buf := newTestHandler(formatJSON)
	ctx := WithRID(Background(), "rid-json")
	ctx = WithSessionKey(ctx, "api:s1")

	LogEvent(ctx, slog.New(h).With("component", "chat"), slog.LevelError, "turn.failed",
		slog.String("status", "fail"),
		slog.String("state", "welcome"),
		slog.String("err", "boom"),
	)

	line := drain(t, aw, buf)
	prefixes := []string{`{"ts":`, `"level":"ERROR"`, `"component":"chat"`, `"event":"turn.failed"`, `"status":"fail"`, `"rid":"rid-json"`, `"session_key":"api:s1"`, `"state":"welcome"`, `"err":"boom"`}
	pos := -1
	for _, pref := range prefixes {
		idx := strings.Index(line, pref)
		if idx == -1 || idx < pos {
			t.Fatalf("prefix %s not found in order within %s", pref, line)
		}
		pos = idx
	}
}

func TestStructuredHandlerCompactRID(t *testing.T) {
	h, aw, buf := newTestHandler(formatKV)
	rawRID := "123:456:789"
	LogEvent(WithRID(Background(), rawRID), slog.New(h), slog.LevelInfo, "rid.test")

	line := drain(t, aw, buf)
	if !strings.Contains(line, "rid="+CompactRID(rawRID)) {
		t.Fatalf("expected compact rid, got %s", line)
	}
	if strings.Contains(line, "rid_full=") {
		t.Fatalf("rid_full should be omitted in KV output, got %s", line)
	}
}

func TestStructuredHandlerCompactRIDJSON(t *testing.T) {
	h, aw, buf := newTestHandler(formatJSON)
	rawRID := "12:34:56"
	LogEvent(WithRID(Background(), rawRID), slog.New(h), slog.LevelInfo, "rid.test")

	line := drain(t, aw, buf)
	if !strings.Contains(line, `"rid":"`+CompactRID(rawRID)+`"`) {
		t.Fatalf("expected compact rid in JSON, got %s", line)
	}
	if !strings.Contains(line, `"rid_full":"`+rawRID+`"`) {
		t.Fatalf("expected rid_full in JSON output, got %s", line)
	}
	if !strings.Contains(line, `"ts_unix_nano"`) {
		t.Fatalf("expected ts_unix_nano in JSON output, got %s", line)
	}
}

func TestStructuredHandlerScenarioContext(t *testing.T) {
	h, aw, buf := newTestHandler(formatKV)
	ctx := WithScenario(Background(), 3, 14)

	LogEvent(ctx, slog.New(h), slog.LevelInfo, "turn.done",
		slog.Duration("took", 1500*time.Microsecond),
		slog.String("outcome", "bogus"),
	)

	line := drain(t, aw, buf)
	for _, want := range []string{"component=app", "bot_id=3", "scenario_id=14", "took_ms=2"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %s", want, line)
		}
	}
	if strings.Contains(line, "outcome=") {
		t.Fatalf("unknown outcome should be dropped, got %s", line)
	}
}

func TestStructuredHandlerBelowLevel(t *testing.T) {
	h, aw, buf := newTestHandler(formatKV)
	LogEvent(Background(), slog.New(h), slog.LevelDebug, "quiet")
	if line := drain(t, aw, buf); line != "" {
		t.Fatalf("debug line should be filtered, got %s", line)
	}
}

func TestParseRatioSpec(t *testing.T) {
	cases := map[string][2]int{
		"1/10": {1, 10},
		"20":   {1, 20},
		"0":    {0, 0},
		"x/y":  {0, 0},
		"":     {0, 0},
	}
	for in, want := range cases {
		n, d := parseRatioSpec(in)
		if n != want[0] || d != want[1] {
			t.Fatalf("parseRatioSpec(%q) = %d/%d, want %d/%d", in, n, d, want[0], want[1])
		}
	}
}

func TestRatioSamplerAllow(t *testing.T) {
	s := newRatioSampler(1, 3)
	got := []bool{s.Allow(), s.Allow(), s.Allow(), s.Allow()}
	want := []bool{true, false, false, true}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Allow #%d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSanitizeLimit(t *testing.T) {
	if got := SanitizeLimit("при\x00вет", 4); got != "прив" {
		t.Fatalf("SanitizeLimit = %q", got)
	}
}
