package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Bot is an operator-owned bot. Config is an opaque JSON object.
type Bot struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	OwnerID     int64     `db:"owner_id" json:"owner_id"`
	Config      string    `db:"bot_config" json:"-"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

const botColumns = `id, name, description, owner_id, bot_config, created_at, updated_at`

// MaxNameLength bounds bot and scenario names.
const MaxNameLength = 50

// CreateBot inserts b and fills its id and timestamps.
func (s *Store) CreateBot(ctx context.Context, b *Bot) error {
	b.Name = strings.TrimSpace(b.Name)
	if b.Name == "" {
		return errors.New("create bot: name is required")
	}
	if len([]rune(b.Name)) > MaxNameLength {
		return fmt.Errorf("create bot: name is longer than %d characters", MaxNameLength)
	}
	if strings.TrimSpace(b.Config) == "" {
		b.Config = "{}"
	}
	if !json.Valid([]byte(b.Config)) {
		return errors.New("create bot: bot_config is not valid JSON")
	}
	now := s.now()
	err := s.db.QueryRowxContext(ctx, s.q(
		`INSERT INTO bots (name, description, owner_id, bot_config, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?) RETURNING id`),
		b.Name, b.Description, b.OwnerID, b.Config, now, now,
	).Scan(&b.ID)
	if err != nil {
		return fmt.Errorf("create bot %q: %w", b.Name, err)
	}
	b.CreatedAt, b.UpdatedAt = now, now
	return nil
}

// BotByID returns the bot with the given id.
func (s *Store) BotByID(ctx context.Context, id int64) (Bot, error) {
	var b Bot
	err := s.db.GetContext(ctx, &b, s.q(`SELECT `+botColumns+` FROM bots WHERE id = ?`), id)
	if err != nil {
		return Bot{}, fmt.Errorf("bot %d: %w", id, notFound(err))
	}
	return b, nil
}

// BotByName returns the bot with the given unique name.
func (s *Store) BotByName(ctx context.Context, name string) (Bot, error) {
	var b Bot
	err := s.db.GetContext(ctx, &b, s.q(`SELECT `+botColumns+` FROM bots WHERE name = ?`), name)
	if err != nil {
		return Bot{}, fmt.Errorf("bot %q: %w", name, notFound(err))
	}
	return b, nil
}

// EnsureBot returns the bot named name, creating it when missing. created reports whether a row was inserted.
func (s *Store) EnsureBot(ctx context.Context, name, description string, ownerID int64) (bot Bot, created bool, err error) {
	bot, err = s.BotByName(ctx, name)
	if err == nil {
		return bot, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Bot{}, false, err
	}
	bot = Bot{Name: name, Description: description, OwnerID: ownerID}
	if err := s.CreateBot(ctx, &bot); err != nil {
		return Bot{}, false, err
	}
	return bot, true, nil
}
