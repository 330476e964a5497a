package router

import (
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/scenariobot/core/telegram"
	"github.com/m3rciful/scenariobot/core/telegram/callbacks"
)

// CallbackRoute routes every callback through the registry by its key.
func CallbackRoute(reg *tg.Registry) tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		if c.Callback() == nil {
			return nil
		}
		key := callbacks.Key(c)
		name := "callback." + normalizeHandlerName(key)
		extras := []slog.Attr{slog.String("cb_key", key)}

		h, ok := reg.Callback(key)
		if !ok || h == nil {
			extras = append(extras, slog.String("reason", "not_found"))
			notFound := reg.CallbackNotFound()
			return handleWithSummary(c, name, start, func() error {
				if notFound != nil {
					return notFound(c)
				}
				return c.Respond()
			}, extras...)
		}
		return handleWithSummary(c, name, start, func() error {
			_ = c.Respond()
			return h(c)
		}, extras...)
	}
	return tg.Route{Endpoint: tele.OnCallback, Handler: handler}
}
