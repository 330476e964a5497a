package scenario

import (
	"bytes"
	"encoding/json"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ValidationError reports a structurally malformed scenario document.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid scenario: " + e.Reason
}

func invalid(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// ValidateFormat reports whether candidate is a well-formed scenario document.
// It accepts the generic shape produced by encoding/json (map[string]any) or raw JSON bytes,
// and checks in order: initial_state is a string, states is a non-empty object,
// initial_state names one of the states, every state is an object carrying a prompt.
func ValidateFormat(candidate any) bool {
	switch v := candidate.(type) {
	case []byte:
		return validateRaw(v)
	case json.RawMessage:
		return validateRaw(v)
	case string:
		return validateRaw([]byte(v))
	case map[string]any:
		return validateTree(v)
	default:
		return false
	}
}

func validateRaw(data []byte) bool {
	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return false
	}
	return validateTree(tree)
}

func validateTree(tree map[string]any) bool {
	initial, ok := tree["initial_state"].(string)
	if !ok {
		return false
	}
	states, ok := tree["states"].(map[string]any)
	if !ok || len(states) == 0 {
		return false
	}
	if _, ok := states[initial]; !ok {
		return false
	}
	for _, raw := range states {
		state, ok := raw.(map[string]any)
		if !ok {
			return false
		}
		if _, ok := state["prompt"]; !ok {
			return false
		}
	}
	return true
}

// Parse decodes a scenario document and rejects it unless it passes every ValidateFormat rule.
// Field types are checked too: prompt and state names are strings, transitions map keywords to strings.
// State and transition order are kept as written.
func Parse(data []byte) (*Definition, error) {
	return parse(data, true)
}

// ParseStored decodes a document that was accepted by an older, looser validator.
// A state without a prompt renders with an empty one and mistyped optional fields are ignored;
// the structural rules on initial_state and states still apply.
func ParseStored(data []byte) (*Definition, error) {
	return parse(data, false)
}

func parse(data []byte, strict bool) (*Definition, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil || top == nil {
		return nil, invalid("document is not a JSON object")
	}

	rawInitial, ok := top["initial_state"]
	if !ok {
		return nil, invalid("initial_state is missing")
	}
	var initial string
	if err := json.Unmarshal(rawInitial, &initial); err != nil {
		return nil, invalid("initial_state must be a string")
	}

	rawStates, ok := top["states"]
	if !ok || !isObject(rawStates) {
		return nil, invalid("states must be an object")
	}
	states := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal(rawStates, states); err != nil {
		return nil, invalid("states must be an object")
	}
	if states.Len() == 0 {
		return nil, invalid("states must not be empty")
	}
	if _, ok := states.Get(initial); !ok {
		return nil, invalid("initial_state %q is not one of the states", initial)
	}

	def := &Definition{
		InitialState: initial,
		States:       make(map[string]StateConfig, states.Len()),
		order:        make([]string, 0, states.Len()),
	}
	for pair := states.Oldest(); pair != nil; pair = pair.Next() {
		cfg, err := parseState(pair.Key, pair.Value, strict)
		if err != nil {
			return nil, err
		}
		def.States[pair.Key] = cfg
		def.order = append(def.order, pair.Key)
	}
	return def, nil
}

func parseState(name string, raw json.RawMessage, strict bool) (StateConfig, error) {
	if !isObject(raw) {
		return StateConfig{}, invalid("state %q must be an object", name)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return StateConfig{}, invalid("state %q must be an object", name)
	}

	var cfg StateConfig
	rawPrompt, ok := fields["prompt"]
	if !ok && strict {
		return StateConfig{}, invalid("state %q has no prompt", name)
	}
	if ok {
		if err := decodeString(rawPrompt, &cfg.Prompt); err != nil && strict {
			return StateConfig{}, invalid("state %q: prompt must be a string", name)
		}
	}
	for key, dst := range map[string]*string{
		"default_next_state": &cfg.DefaultNextState,
		"fallback_state":     &cfg.FallbackState,
	} {
		rawValue, ok := fields[key]
		if !ok {
			continue
		}
		if err := decodeString(rawValue, dst); err != nil && strict {
			return StateConfig{}, invalid("state %q: %s must be a string", name, key)
		}
	}

	rawTransitions, ok := fields["transitions"]
	if !ok || isNull(rawTransitions) {
		return cfg, nil
	}
	transitions := orderedmap.New[string, json.RawMessage]()
	if !isObject(rawTransitions) || json.Unmarshal(rawTransitions, transitions) != nil {
		if strict {
			return StateConfig{}, invalid("state %q: transitions must be an object", name)
		}
		return cfg, nil
	}
	cfg.Transitions = make([]Transition, 0, transitions.Len())
	for pair := transitions.Oldest(); pair != nil; pair = pair.Next() {
		var target string
		if err := json.Unmarshal(pair.Value, &target); err != nil {
			if strict {
				return StateConfig{}, invalid("state %q: transition %q must name a state", name, pair.Key)
			}
			continue
		}
		cfg.Transitions = append(cfg.Transitions, Transition{Keyword: pair.Key, Target: target})
	}
	return cfg, nil
}

// decodeString treats JSON null as absent.
func decodeString(raw json.RawMessage, dst *string) error {
	if isNull(raw) {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
