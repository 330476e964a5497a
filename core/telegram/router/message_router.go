package router

import (
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/scenariobot/core/telegram"
)

// TextRoutes builds the text and document handlers. Text is matched against registered
// commands first and then handed to the registry's text fallback.
func TextRoutes(reg *tg.Registry, opts CommandRouteOptions) []tg.Route {
	text := func(c tele.Context) error {
		start := time.Now()
		if text := c.Text(); strings.HasPrefix(text, "/") {
			if key, cmd, ok := reg.LookupCommand(text); ok && cmd.Handler != nil {
				h := WrapCommand(cmd, opts)
				return handleWithSummary(c, normalizeHandlerName(key), start, func() error { return h(c) })
			}
		}
		if fb := reg.TextFallback(); fb != nil {
			return handleWithSummary(c, "turn", start, func() error { return fb(c) })
		}
		logHandlerSummary(c, "unknown_text", start, "skip", nil)
		return nil
	}

	document := func(c tele.Context) error {
		start := time.Now()
		if h := reg.DocumentHandler(); h != nil {
			return handleWithSummary(c, "document", start, func() error { return h(c) })
		}
		logHandlerSummary(c, "unexpected_document", start, "skip", nil)
		return nil
	}

	return []tg.Route{
		{Endpoint: tele.OnText, Handler: text},
		{Endpoint: tele.OnDocument, Handler: document},
	}
}
