package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/scenariobot/core/logger"
)

// Command is a slash command with its menu description.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	AdminOnly   bool
	Hidden      bool
	Aliases     []string
}

// Registry holds the bot's commands and callback handlers.
type Registry struct {
	mu               sync.RWMutex
	commands         map[string]Command
	callbacks        map[string]tele.HandlerFunc
	callbackNotFound tele.HandlerFunc
	textFallback     tele.HandlerFunc
	documentHandler  tele.HandlerFunc
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		commands:  make(map[string]Command),
		callbacks: make(map[string]tele.HandlerFunc),
		callbackNotFound: func(c tele.Context) error {
			return c.Respond(&tele.CallbackResponse{Text: "Действие устарело"})
		},
	}
}

func skipRegistration(kind, name, reason string) {
	logger.LogEvent(context.Background(), logger.TWire, slog.LevelWarn, "register."+kind+".skip",
		slog.String("status", "skip"),
		slog.String("name", name),
		slog.String("reason", reason),
	)
}

// RegisterCommand adds a command. Names start with a slash.
func (r *Registry) RegisterCommand(name string, cmd Command) {
	switch {
	case name == "" || cmd.Handler == nil || cmd.Description == "":
		skipRegistration("command", name, "invalid")
		return
	case name[0] != '/':
		skipRegistration("command", name, "no_slash_prefix")
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[name]; exists {
		skipRegistration("command", name, "duplicate")
		return
	}
	r.commands[name] = cmd
}

// ListCommands returns commands sorted by name. visibleOnly drops hidden and admin commands.
func (r *Registry) ListCommands(visibleOnly bool) []tele.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]tele.Command, 0, len(r.commands))
	for name, cmd := range r.commands {
		if visibleOnly && (cmd.Hidden || cmd.AdminOnly) {
			continue
		}
		list = append(list, tele.Command{Text: strings.TrimPrefix(name, "/"), Description: cmd.Description})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Text < list[j].Text })
	return list
}

// LookupCommand finds a command by name or alias and returns its canonical name.
func (r *Registry) LookupCommand(text string) (string, Command, bool) {
	name, _, _ := strings.Cut(strings.TrimSpace(text), " ")
	// Commands addressed to the bot in groups look like /state@my_bot.
	name, _, _ = strings.Cut(name, "@")
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cmd, ok := r.commands[name]; ok {
		return name, cmd, true
	}
	for key, cmd := range r.commands {
		for _, alias := range cmd.Aliases {
			if alias == name || "/"+alias == name {
				return key, cmd, true
			}
		}
	}
	return "", Command{}, false
}

// Commands returns a copy of the registered commands.
func (r *Registry) Commands() map[string]Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Command, len(r.commands))
	for k, v := range r.commands {
		out[k] = v
	}
	return out
}

// RegisterCallback maps an inline button unique key to its handler.
func (r *Registry) RegisterCallback(key string, handler tele.HandlerFunc) error {
	if key == "" || handler == nil {
		skipRegistration("callback", key, "invalid")
		return errors.New("invalid callback registration")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.callbacks[key]; exists {
		skipRegistration("callback", key, "duplicate")
		return fmt.Errorf("callback already registered: %s", key)
	}
	r.callbacks[key] = handler
	return nil
}

// Callback returns the handler registered for key.
func (r *Registry) Callback(key string) (tele.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.callbacks[key]
	return h, ok
}

// ListCallbacks returns sorted callback keys.
func (r *Registry) ListCallbacks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.callbacks))
	for k := range r.callbacks {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// SetCallbackNotFound replaces the handler for unknown callbacks.
func (r *Registry) SetCallbackNotFound(h tele.HandlerFunc) {
	if h != nil {
		r.mu.Lock()
		r.callbackNotFound = h
		r.mu.Unlock()
	}
}

// CallbackNotFound returns the handler for unknown callbacks.
func (r *Registry) CallbackNotFound() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.callbackNotFound
}

// SetTextFallback sets the handler for text that is not a command.
func (r *Registry) SetTextFallback(h tele.HandlerFunc) {
	r.mu.Lock()
	r.textFallback = h
	r.mu.Unlock()
}

// TextFallback returns the handler for text that is not a command.
func (r *Registry) TextFallback() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.textFallback
}

// SetDocumentHandler sets the handler for uploaded documents.
func (r *Registry) SetDocumentHandler(h tele.HandlerFunc) {
	r.mu.Lock()
	r.documentHandler = h
	r.mu.Unlock()
}

// DocumentHandler returns the handler for uploaded documents.
func (r *Registry) DocumentHandler() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.documentHandler
}

// SetupCommands publishes the visible commands to the Telegram menu.
func SetupCommands(bot *tele.Bot, reg *Registry) {
	list := reg.ListCommands(true)
	err := bot.SetCommands(list)
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelError
	}
	logger.LogEvent(context.Background(), logger.TWire, level, "register.commands.publish",
		slog.String("status", logger.Status(err)),
		slog.Int("count", len(list)),
		slog.Any("err", err),
	)
}
