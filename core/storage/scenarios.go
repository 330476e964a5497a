package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/scenariobot/core/scenario"
)

// Scenario is a stored scenario definition. Data holds the raw scenario JSON.
type Scenario struct {
	ID          int64     `db:"id" json:"id"`
	BotID       int64     `db:"bot_id" json:"bot_id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Data        string    `db:"scenario_data" json:"-"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Definition decodes Data leniently so rows saved before prompts became mandatory still load.
func (sc Scenario) Definition() (*scenario.Definition, error) {
	def, err := scenario.ParseStored([]byte(sc.Data))
	if err != nil {
		return nil, fmt.Errorf("scenario %d: %w", sc.ID, err)
	}
	return def, nil
}

// MarshalJSON inlines scenario_data as an object.
func (sc Scenario) MarshalJSON() ([]byte, error) {
	type plain Scenario
	data := json.RawMessage(sc.Data)
	if !json.Valid(data) {
		data = json.RawMessage("null")
	}
	return json.Marshal(struct {
		plain
		ScenarioData json.RawMessage `json:"scenario_data"`
	}{plain(sc), data})
}

const scenarioColumns = `id, bot_id, name, description, scenario_data, is_active, created_at, updated_at`

// NewScenario is the input of CreateScenario.
type NewScenario struct {
	BotID       int64
	Name        string
	Description string
	Data        []byte
	// Activate deactivates the bot's other scenarios and makes this one active.
	Activate bool
}

// CreateScenario validates in.Data with the strict parser and stores it. Validation failures are
// returned as *scenario.ValidationError.
func (s *Store) CreateScenario(ctx context.Context, in NewScenario) (Scenario, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Scenario{}, errors.New("create scenario: name is required")
	}
	if len([]rune(name)) > MaxNameLength {
		return Scenario{}, fmt.Errorf("create scenario: name is longer than %d characters", MaxNameLength)
	}
	def, err := scenario.Parse(in.Data)
	if err != nil {
		return Scenario{}, err
	}
	// Re-encode so the stored document is compact and key-ordered.
	data, err := json.Marshal(def)
	if err != nil {
		return Scenario{}, fmt.Errorf("create scenario: encode: %w", err)
	}

	now := s.now()
	sc := Scenario{
		BotID:       in.BotID,
		Name:        name,
		Description: in.Description,
		Data:        string(data),
		IsActive:    in.Activate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = s.inTx(ctx, "create scenario", func(tx *sqlx.Tx) error {
		if in.Activate {
			if _, err := tx.ExecContext(ctx, s.q(
				`UPDATE scenarios SET is_active = ?, updated_at = ? WHERE bot_id = ? AND is_active = ?`),
				false, now, in.BotID, true,
			); err != nil {
				return fmt.Errorf("deactivate scenarios of bot %d: %w", in.BotID, err)
			}
		}
		return tx.QueryRowxContext(ctx, s.q(
			`INSERT INTO scenarios (bot_id, name, description, scenario_data, is_active, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`),
			sc.BotID, sc.Name, sc.Description, sc.Data, sc.IsActive, now, now,
		).Scan(&sc.ID)
	})
	if err != nil {
		return Scenario{}, fmt.Errorf("create scenario %q: %w", name, err)
	}
	return sc, nil
}

// ScenarioByID returns the scenario with the given id.
func (s *Store) ScenarioByID(ctx context.Context, id int64) (Scenario, error) {
	var sc Scenario
	err := s.db.GetContext(ctx, &sc, s.q(`SELECT `+scenarioColumns+` FROM scenarios WHERE id = ?`), id)
	if err != nil {
		return Scenario{}, fmt.Errorf("scenario %d: %w", id, notFound(err))
	}
	return sc, nil
}

// ActiveScenario returns the most recently updated active scenario of a bot.
func (s *Store) ActiveScenario(ctx context.Context, botID int64) (Scenario, error) {
	var sc Scenario
	err := s.db.GetContext(ctx, &sc, s.q(
		`SELECT `+scenarioColumns+` FROM scenarios
		 WHERE bot_id = ? AND is_active = ?
		 ORDER BY updated_at DESC, id DESC LIMIT 1`), botID, true)
	if err != nil {
		return Scenario{}, fmt.Errorf("active scenario of bot %d: %w", botID, notFound(err))
	}
	return sc, nil
}

// ListScenarios returns a bot's scenarios, newest first.
func (s *Store) ListScenarios(ctx context.Context, botID int64) ([]Scenario, error) {
	var out []Scenario
	err := s.db.SelectContext(ctx, &out, s.q(
		`SELECT `+scenarioColumns+` FROM scenarios WHERE bot_id = ? ORDER BY id DESC`), botID)
	if err != nil {
		return nil, fmt.Errorf("list scenarios of bot %d: %w", botID, err)
	}
	return out, nil
}

// ActivateScenario makes id the only active scenario of its bot.
func (s *Store) ActivateScenario(ctx context.Context, id int64) error {
	sc, err := s.ScenarioByID(ctx, id)
	if err != nil {
		return err
	}
	now := s.now()
	return s.inTx(ctx, "activate scenario", func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, s.q(
			`UPDATE scenarios SET is_active = (id = ?), updated_at = ? WHERE bot_id = ?`),
			id, now, sc.BotID,
		); err != nil {
			return fmt.Errorf("activate scenario %d: %w", id, err)
		}
		return nil
	})
}

// EnsureDefaultScenario returns the bot's active scenario, storing the built-in default as active
// when the bot has none.
func (s *Store) EnsureDefaultScenario(ctx context.Context, botID int64) (sc Scenario, created bool, err error) {
	sc, err = s.ActiveScenario(ctx, botID)
	if err == nil {
		return sc, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Scenario{}, false, err
	}
	data, err := json.Marshal(scenario.DefaultScenario())
	if err != nil {
		return Scenario{}, false, fmt.Errorf("encode default scenario: %w", err)
	}
	sc, err = s.CreateScenario(ctx, NewScenario{
		BotID:    botID,
		Name:     scenario.DefaultScenarioName,
		Data:     data,
		Activate: true,
	})
	if err != nil {
		return Scenario{}, false, err
	}
	return sc, true, nil
}
