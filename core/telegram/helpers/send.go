package helpers

import (
	"errors"
	"log/slog"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/scenariobot/core/logger"
	"github.com/m3rciful/scenariobot/core/telegram/sender"
)

var dispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher routes helper sends through d. nil sends synchronously.
func SetDispatcher(d *sender.Dispatcher) {
	dispatcher.Store(d)
}

func send(c tele.Context, action string, run func() error) error {
	d := dispatcher.Load()
	if d == nil {
		return run()
	}
	ctx := BuildContext(c)
	err := d.Enqueue(ctx, action, run)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sender.ErrQueueFull), errors.Is(err, sender.ErrQueueClosed):
		logger.Warn(ctx, "tg.sender", "queue.fallback",
			slog.String("status", "fallback"),
			slog.String("action", action),
			slog.Any("err", err),
		)
		return run()
	default:
		return err
	}
}

// SendText sends plain text with optional reply markup.
func SendText(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	opts := &tele.SendOptions{}
	if len(markup) > 0 && markup[0] != nil {
		opts.ReplyMarkup = markup[0]
	}
	return send(c, "send.text", func() error {
		return c.Send(text, opts)
	})
}

// SendMDV2 sends MarkdownV2 text. Callers escape dynamic parts.
func SendMDV2(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	opts := &tele.SendOptions{ParseMode: tele.ModeMarkdownV2}
	if len(markup) > 0 && markup[0] != nil {
		opts.ReplyMarkup = markup[0]
	}
	return send(c, "send.markdown", func() error {
		return c.Send(text, opts)
	})
}

// SendDocument uploads data as a file named name.
func SendDocument(c tele.Context, name string, data []byte, caption string) error {
	return send(c, "send.document", func() error {
		doc := &tele.Document{
			File:     tele.FromReader(bytesReader(data)),
			FileName: name,
			Caption:  caption,
		}
		return c.Send(doc)
	})
}
