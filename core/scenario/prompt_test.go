package scenario

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildPrompt(t *testing.T) {
	assert.Equal(t, "T\n\nВвод пользователя: hi", BuildPrompt("T", "hi", ""))
	assert.Equal(t, "T\n\nКонтекст диалога:\nc1\nc2\n\nТекущий ввод: hi", BuildPrompt("T", "hi", "c1\nc2"))
}

func TestRenderHistory(t *testing.T) {
	h := []string{"1", "2", "3", "4"}
	assert.Equal(t, "3\n4", RenderHistory(h, 2))
	assert.Equal(t, "1\n2\n3\n4", RenderHistory(h, 10))
	assert.Equal(t, "", RenderHistory(h, 0))
	assert.Equal(t, "", RenderHistory(nil, 5))
}

func TestStateConfigNextState(t *testing.T) {
	cfg := StateConfig{
		Transitions:      []Transition{{Keyword: "help", Target: "A"}, {Keyword: "contacts", Target: "B"}},
		DefaultNextState: "C",
	}
	assert.Equal(t, "A", cfg.NextState("I need help with contacts", "S"))
	assert.Equal(t, "C", cfg.NextState("thanks bye", "S"))

	cfg.DefaultNextState = ""
	assert.Equal(t, "S", cfg.NextState("thanks bye", "S"))
	assert.Equal(t, DefaultFallbackState, cfg.Fallback())
}
