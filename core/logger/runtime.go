package logger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode"
)

type contextKey string

const (
	ctxRID        contextKey = "rid"
	ctxUpdateID   contextKey = "update_id"
	ctxUserID     contextKey = "user_id"
	ctxChatID     contextKey = "chat_id"
	ctxLogger     contextKey = "logger"
	ctxHandler    contextKey = "handler"
	ctxSessionKey contextKey = "session_key"
	ctxBotID      contextKey = "bot_id"
	ctxScenarioID contextKey = "scenario_id"
)

// WithLogger stores the provided slog.Logger in context for propagation across layers.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxLogger, log)
}

// FromContext extracts slog.Logger from context or returns global default.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return L
	}
	if l, ok := ctx.Value(ctxLogger).(*slog.Logger); ok {
		return l
	}
	return L
}

// WithRID attaches request correlation id into context.
func WithRID(ctx context.Context, rid string) context.Context {
	return withString(ctx, ctxRID, rid)
}

// RIDFrom extracts rid from context if present.
func RIDFrom(ctx context.Context) string {
	return stringFrom(ctx, ctxRID)
}

// WithUpdateMeta attaches Telegram update identifiers to context.
func WithUpdateMeta(ctx context.Context, updateID int, userID, chatID int64) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxUpdateID, updateID)
	ctx = context.WithValue(ctx, ctxUserID, userID)
	ctx = context.WithValue(ctx, ctxChatID, chatID)
	return ctx
}

// WithHandler stores handler identifier in context for downstream logs.
func WithHandler(ctx context.Context, handler string) context.Context {
	return withString(ctx, ctxHandler, handler)
}

// HandlerFrom returns handler identifier from context if present.
func HandlerFrom(ctx context.Context) string {
	return stringFrom(ctx, ctxHandler)
}

// WithSessionKey tags the context with the conversation session key ("tg:<chat>", "api:<id>").
func WithSessionKey(ctx context.Context, key string) context.Context {
	return withString(ctx, ctxSessionKey, key)
}

// SessionKeyFrom returns the session key stored by WithSessionKey.
func SessionKeyFrom(ctx context.Context) string {
	return stringFrom(ctx, ctxSessionKey)
}

// WithScenario tags the context with the bot and scenario rows a turn runs against.
// Zero ids are not stored.
func WithScenario(ctx context.Context, botID, scenarioID int64) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if botID != 0 {
		ctx = context.WithValue(ctx, ctxBotID, botID)
	}
	if scenarioID != 0 {
		ctx = context.WithValue(ctx, ctxScenarioID, scenarioID)
	}
	return ctx
}

// BotIDFrom returns the bot id stored by WithScenario.
func BotIDFrom(ctx context.Context) int64 {
	return int64From(ctx, ctxBotID)
}

// ScenarioIDFrom returns the scenario id stored by WithScenario.
func ScenarioIDFrom(ctx context.Context) int64 {
	return int64From(ctx, ctxScenarioID)
}

// UserIDFrom extracts Telegram user ID from context.
func UserIDFrom(ctx context.Context) int64 {
	return int64From(ctx, ctxUserID)
}

// ChatIDFrom extracts chat id from context.
func ChatIDFrom(ctx context.Context) int64 {
	return int64From(ctx, ctxChatID)
}

// UpdateIDFrom extracts update identifier from context.
func UpdateIDFrom(ctx context.Context) int {
	return int(int64From(ctx, ctxUpdateID))
}

func withString(ctx context.Context, key contextKey, value string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(key).(string)
	return s
}

func int64From(ctx context.Context, key contextKey) int64 {
	if ctx == nil {
		return 0
	}
	switch id := ctx.Value(key).(type) {
	case int64:
		return id
	case int:
		return int64(id)
	}
	return 0
}

// Sanitize drops control and format runes (except tab and newline) so user text cannot break log lines.
func Sanitize(s string) string {
	if s == "" {
		return s
	}
	b := strings.Builder{}
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) || r == 0x7F {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SanitizeLimit applies Sanitize and limits the output length in runes.
func SanitizeLimit(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(Sanitize(s))
	if len(r) <= max {
		return string(r)
	}
	return string(r[:max])
}

// BuildRID returns a correlation identifier in the format updateID:chatID:userID.
func BuildRID(updateID int, chatID, userID int64) string {
	return fmt.Sprintf("%d:%d:%d", updateID, chatID, userID)
}

// CompactRID shortens colon-separated RID into base36 segments for readability.
// Inputs that are not three integers are returned unchanged.
func CompactRID(rid string) string {
	rid = strings.TrimSpace(rid)
	if rid == "" {
		return ""
	}
	parts := strings.Split(rid, ":")
	if len(parts) != 3 {
		return rid
	}
	compact := make([]string, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return rid
		}
		compact = append(compact, strconv.FormatInt(n, 36))
	}
	return strings.Join(compact, ".")
}
