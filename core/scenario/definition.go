// Package scenario holds the dialogue state machine: scenario definitions, their validation and
// the per-session engine that turns user input into a reply and a state transition.
package scenario

import (
	"encoding/json"
	"sort"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/text/cases"
)

const (
	// EndState is the conventional terminal state name.
	EndState = "end"
	// DefaultFallbackState is where a faulting turn lands when the state names no fallback.
	DefaultFallbackState = "error"
)

// Transition moves the session to Target when Keyword occurs in the user input.
type Transition struct {
	Keyword string
	Target  string
}

// StateConfig is one node of the dialogue graph.
type StateConfig struct {
	Prompt string
	// Transitions are matched in order; the first keyword found in the input wins.
	Transitions      []Transition
	DefaultNextState string
	FallbackState    string
}

// Definition is an immutable scenario: a set of named states and the state a session starts in.
// Transition targets are not required to name existing states; an unknown target finishes the session.
type Definition struct {
	InitialState string
	States       map[string]StateConfig

	order []string
}

// State returns the configuration of the named state.
func (d *Definition) State(name string) (StateConfig, bool) {
	if d == nil {
		return StateConfig{}, false
	}
	cfg, ok := d.States[name]
	return cfg, ok
}

// HasState reports whether name is configured.
func (d *Definition) HasState(name string) bool {
	_, ok := d.State(name)
	return ok
}

// StateNames lists states in document order. Definitions built by hand fall back to sorted names.
func (d *Definition) StateNames() []string {
	if d == nil {
		return nil
	}
	if len(d.order) == len(d.States) {
		return append([]string(nil), d.order...)
	}
	names := make([]string, 0, len(d.States))
	for name := range d.States {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Match returns the first transition whose keyword occurs in input, ignoring case.
func (c StateConfig) Match(input string) (Transition, bool) {
	if len(c.Transitions) == 0 {
		return Transition{}, false
	}
	fold := cases.Fold()
	haystack := fold.String(input)
	for _, t := range c.Transitions {
		if strings.Contains(haystack, fold.String(t.Keyword)) {
			return t, true
		}
	}
	return Transition{}, false
}

// NextState resolves where input leads from a state named current:
// a matching transition, else the default next state, else current.
func (c StateConfig) NextState(input, current string) string {
	if t, ok := c.Match(input); ok {
		return t.Target
	}
	if c.DefaultNextState != "" {
		return c.DefaultNextState
	}
	return current
}

// Fallback returns the state a faulting turn moves to.
func (c StateConfig) Fallback() string {
	if c.FallbackState != "" {
		return c.FallbackState
	}
	return DefaultFallbackState
}

// Keywords lists transition keywords in definition order.
func (c StateConfig) Keywords() []string {
	out := make([]string, 0, len(c.Transitions))
	for _, t := range c.Transitions {
		out = append(out, t.Keyword)
	}
	return out
}

type stateJSON struct {
	Prompt           string                                  `json:"prompt"`
	Transitions      *orderedmap.OrderedMap[string, string] `json:"transitions"`
	DefaultNextState string                                  `json:"default_next_state,omitempty"`
	FallbackState    string                                  `json:"fallback_state,omitempty"`
}

type definitionJSON struct {
	InitialState string                                     `json:"initial_state"`
	States       *orderedmap.OrderedMap[string, stateJSON] `json:"states"`
}

// MarshalJSON encodes the definition keeping state and transition order.
func (d Definition) MarshalJSON() ([]byte, error) {
	states := orderedmap.New[string, stateJSON](len(d.States))
	for _, name := range d.StateNames() {
		cfg := d.States[name]
		transitions := orderedmap.New[string, string](len(cfg.Transitions))
		for _, t := range cfg.Transitions {
			transitions.Set(t.Keyword, t.Target)
		}
		states.Set(name, stateJSON{
			Prompt:           cfg.Prompt,
			Transitions:      transitions,
			DefaultNextState: cfg.DefaultNextState,
			FallbackState:    cfg.FallbackState,
		})
	}
	return json.Marshal(definitionJSON{InitialState: d.InitialState, States: states})
}

// UnmarshalJSON decodes with the strict rules of Parse.
func (d *Definition) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*d = *parsed
	return nil
}
