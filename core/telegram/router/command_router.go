package router

import (
	"context"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/scenariobot/core/logger"
	tg "github.com/m3rciful/scenariobot/core/telegram"
	"github.com/m3rciful/scenariobot/core/telegram/middleware"
)

// CommandRouteOptions configures how commands are wrapped and exposed.
type CommandRouteOptions struct {
	AdminID       int64
	OnAdminReject tele.HandlerFunc
}

// WrapCommand applies the admin check when the command requires it.
func WrapCommand(cmd tg.Command, opts CommandRouteOptions) tele.HandlerFunc {
	if !cmd.AdminOnly {
		return cmd.Handler
	}
	return middleware.AdminOnly(middleware.AdminOptions{
		AdminID:  opts.AdminID,
		OnReject: opts.OnAdminReject,
	}, cmd.Handler)
}

// CommandRoutes binds every registered command and alias to its wrapped handler.
func CommandRoutes(reg *tg.Registry, opts CommandRouteOptions) []tg.Route {
	if reg == nil {
		return nil
	}
	commands := reg.Commands()
	routes := make([]tg.Route, 0, len(commands))
	for name, cmd := range commands {
		label := normalizeHandlerName(name)
		inner := WrapCommand(cmd, opts)
		h := func(c tele.Context) error {
			return handleWithSummary(c, label, time.Now(), func() error { return inner(c) })
		}
		routes = append(routes, tg.Route{Endpoint: name, Handler: h})
		for _, alias := range cmd.Aliases {
			if alias == "" {
				continue
			}
			if alias[0] != '/' {
				alias = "/" + alias
			}
			routes = append(routes, tg.Route{Endpoint: alias, Handler: h})
		}
	}

	logger.LogEvent(context.Background(), logger.TWire, slog.LevelInfo, "register.commands",
		slog.String("status", "ok"),
		slog.Int("commands", len(commands)),
		slog.Int("routes", len(routes)),
		slog.Int("callbacks", len(reg.ListCallbacks())),
	)
	return routes
}
