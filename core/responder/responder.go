// Package responder provides the text generators the scenario engine talks to:
// an offline keyword stub and a chat-completions client.
package responder

import (
	"context"
	"fmt"

	coreconfig "github.com/m3rciful/scenariobot/core/config"
)

// ApologyText is what a responder answers when generation failed.
const ApologyText = "Извините, произошла ошибка при обработке вашего запроса."

// Responder turns a prompt into reply text. Implementations in this package absorb their own
// failures and always return a nil error.
type Responder interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// FromConfig builds the configured responder. It is meant to run once at startup; the result is
// safe for concurrent use and is passed explicitly to every engine.
func FromConfig(cfg coreconfig.ResponderConfig) (Responder, error) {
	if err := coreconfig.NormalizeResponder(&cfg); err != nil {
		return nil, err
	}
	switch cfg.Kind {
	case coreconfig.ResponderStub:
		return Stub{}, nil
	case coreconfig.ResponderLive:
		return NewLive(cfg), nil
	default:
		return nil, fmt.Errorf("responder: unknown kind %q", cfg.Kind)
	}
}
