// Package session persists the runtime position of conversations between turns and
// serializes turns that target the same conversation.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/m3rciful/scenariobot/core/scenario"
)

// ErrNotFound is returned by Load when no record exists for a key.
var ErrNotFound = errors.New("session not found")

// Record is what a store keeps per conversation. ScenarioID ties the position to the scenario
// it was taken in; a record for another scenario is stale.
type Record struct {
	ScenarioID int64            `json:"scenario_id"`
	Session    scenario.Session `json:"session"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// Store loads and saves records by session key.
type Store interface {
	Load(ctx context.Context, key string) (Record, error)
	Save(ctx context.Context, key string, rec Record) error
	Delete(ctx context.Context, key string) error
}

// TelegramKey is the session key of a Telegram chat.
func TelegramKey(chatID int64) string {
	return "tg:" + strconv.FormatInt(chatID, 10)
}

// APIKey is the session key of a JSON API conversation.
func APIKey(sessionID string) string {
	return "api:" + sessionID
}

// ValidateAPISessionID rejects ids that would be awkward as storage keys.
func ValidateAPISessionID(id string) error {
	if id == "" {
		return errors.New("session_id is required")
	}
	if len(id) > 128 {
		return fmt.Errorf("session_id is longer than 128 bytes")
	}
	for _, r := range id {
		ok := r == '-' || r == '_' || r == '.' || r == ':' ||
			(r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if !ok {
			return fmt.Errorf("session_id contains %q", r)
		}
	}
	return nil
}
