package middleware

import (
	"log/slog"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/scenariobot/core/logger"
	"github.com/m3rciful/scenariobot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/scenariobot/core/telegram/helpers"
)

// recentUpdates keeps a short-lived set of processed update IDs to avoid double logging.
type recentUpdates struct {
	mu      sync.Mutex
	seen    map[int]time.Time
	keepFor time.Duration
}

var recent = &recentUpdates{seen: make(map[int]time.Time), keepFor: 10 * time.Second}

func (r *recentUpdates) firstTime(updateID int, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, ts := range r.seen {
		if now.Sub(ts) > r.keepFor {
			delete(r.seen, id)
		}
	}
	if _, ok := r.seen[updateID]; ok {
		return false
	}
	r.seen[updateID] = now
	return true
}

// LoggerMiddleware sets the rid for the update and logs one receipt line per update_id.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		upd := c.Update()
		user := c.Sender()
		chat := c.Chat()

		var chatID, userID int64
		if chat != nil {
			chatID = chat.ID
		}
		if user != nil {
			userID = user.ID
		}
		rid := logger.BuildRID(upd.ID, chatID, userID)
		c.Set(tghelpers.RIDKey, rid)
		c.Set("update_start", time.Now())
		ctx := tghelpers.BuildContext(c)

		if logger.ShouldSampleDebug() && recent.firstTime(upd.ID, time.Now()) {
			attrs := []slog.Attr{slog.String("status", "ok")}
			if chat != nil {
				attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
			}
			if user != nil {
				if user.Username != "" {
					attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
				}
				if user.LanguageCode != "" {
					attrs = append(attrs, slog.String("lang", user.LanguageCode))
				}
			}
			switch {
			case upd.Callback != nil:
				key, payload := callbacks.FromCallback(upd.Callback)
				attrs = append(attrs,
					slog.String("cb_key", logger.SanitizeLimit(key, 128)),
					slog.String("payload", logger.SanitizeLimit(payload, 256)),
				)
			case upd.Message != nil && upd.Message.Document != nil:
				attrs = append(attrs, slog.String("document", logger.SanitizeLimit(upd.Message.Document.FileName, 128)))
			case upd.Message != nil:
				if t := c.Text(); t != "" {
					attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(t, 256)))
				}
			}
			logger.LogEvent(ctx, logger.TG, slog.LevelDebug, "update.received", attrs...)
		}

		return next(c)
	}
}
