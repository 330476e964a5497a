package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Step types.
const (
	StepUserInput   = "user_input"
	StepBotResponse = "bot_response"
)

// Step is one recorded message of a conversation.
type Step struct {
	ID         int64     `db:"id" json:"id"`
	ScenarioID int64     `db:"scenario_id" json:"scenario_id"`
	SessionKey string    `db:"session_key" json:"session_key"`
	Order      int       `db:"step_order" json:"order"`
	Content    string    `db:"content" json:"content"`
	Type       string    `db:"step_type" json:"step_type"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// StepInput is one message to append.
type StepInput struct {
	Content string
	Type    string
}

const stepColumns = `id, scenario_id, session_key, step_order, content, step_type, created_at`

// AppendSteps stores the inputs in order after the scenario's last step.
func (s *Store) AppendSteps(ctx context.Context, scenarioID int64, sessionKey string, steps ...StepInput) error {
	if len(steps) == 0 {
		return nil
	}
	for _, st := range steps {
		if st.Type != StepUserInput && st.Type != StepBotResponse {
			return fmt.Errorf("append steps: unknown step type %q", st.Type)
		}
	}
	now := s.now()
	return s.inTx(ctx, "append steps", func(tx *sqlx.Tx) error {
		if err := s.lockScenario(ctx, tx, scenarioID); err != nil {
			return fmt.Errorf("append steps: %w", err)
		}
		var last int
		if err := tx.GetContext(ctx, &last, s.q(
			`SELECT COALESCE(MAX(step_order), 0) FROM steps WHERE scenario_id = ?`), scenarioID,
		); err != nil {
			return fmt.Errorf("append steps: last order: %w", err)
		}
		insert := s.q(`INSERT INTO steps (scenario_id, session_key, step_order, content, step_type, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`)
		for i, st := range steps {
			if _, err := tx.ExecContext(ctx, insert, scenarioID, sessionKey, last+i+1, st.Content, st.Type, now); err != nil {
				return fmt.Errorf("append steps: insert: %w", err)
			}
		}
		return nil
	})
}

// lockScenario holds the scenario row until tx ends so concurrent sessions of one scenario
// number their steps one after another. SQLite takes a database-wide write lock instead.
func (s *Store) lockScenario(ctx context.Context, tx *sqlx.Tx, scenarioID int64) error {
	if s.db.DriverName() != "postgres" {
		return nil
	}
	var id int64
	err := tx.GetContext(ctx, &id, s.q(`SELECT id FROM scenarios WHERE id = ? FOR UPDATE`), scenarioID)
	if err != nil {
		return fmt.Errorf("lock scenario %d: %w", scenarioID, notFound(err))
	}
	return nil
}

// Steps returns every step of a scenario in conversation order.
func (s *Store) Steps(ctx context.Context, scenarioID int64) ([]Step, error) {
	var out []Step
	err := s.db.SelectContext(ctx, &out, s.q(
		`SELECT `+stepColumns+` FROM steps WHERE scenario_id = ? ORDER BY step_order, id`), scenarioID)
	if err != nil {
		return nil, fmt.Errorf("steps of scenario %d: %w", scenarioID, err)
	}
	return out, nil
}

// RecentSteps returns up to limit steps of one session, most recent first.
func (s *Store) RecentSteps(ctx context.Context, scenarioID int64, sessionKey string, limit int) ([]Step, error) {
	if limit <= 0 {
		return nil, nil
	}
	var out []Step
	err := s.db.SelectContext(ctx, &out, s.q(
		`SELECT `+stepColumns+` FROM steps
		 WHERE scenario_id = ? AND session_key = ?
		 ORDER BY step_order DESC, id DESC LIMIT ?`), scenarioID, sessionKey, limit)
	if err != nil {
		return nil, fmt.Errorf("recent steps of scenario %d: %w", scenarioID, err)
	}
	return out, nil
}
