package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/scenariobot/core/responder"
	"github.com/m3rciful/scenariobot/core/scenario"
)

func TestValidateScenario(t *testing.T) {
	var out bytes.Buffer
	err := validateScenario(&out, []byte(`{"initial_state":"a","states":{"a":{"prompt":"p"},"b":{"prompt":"q"}}}`))
	require.NoError(t, err)
	assert.Contains(t, out.String(), "2 states (a, b)")

	err = validateScenario(&out, []byte(`{"initial_state":"missing","states":{"a":{"prompt":"p"}}}`))
	var verr *scenario.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestValidateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"initial_state":"a","states":{"a":{"prompt":"p"}}}`), 0o600))

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"validate", path})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "scenario is valid")

	root = newRootCmd()
	root.SetArgs([]string{"validate"})
	assert.Error(t, root.Execute())
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.True(t, strings.HasPrefix(out.String(), "scenariobot dev"))
}

func TestChatLoop(t *testing.T) {
	engine, err := scenario.NewEngine(scenario.DefaultScenario(), responder.Stub{})
	require.NoError(t, err)

	in := strings.NewReader("контакты\n/state\nспасибо\n/reset\n/quit\nignored\n")
	var out bytes.Buffer
	require.NoError(t, chatLoop(context.Background(), engine, in, &out, plainRenderer))

	text := out.String()
	assert.Contains(t, text, "[welcome -> contacts]")
	assert.Contains(t, text, `state "contacts"`)
	assert.Contains(t, text, "finished")
	assert.Contains(t, text, `reset to "welcome"`)
	assert.Equal(t, "welcome", engine.Session().CurrentState)
}

func TestChatCommandPlain(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetIn(strings.NewReader("привет\n"))
	root.SetArgs([]string{"chat", "--plain"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "Привет!!")
}
