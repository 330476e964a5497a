package scenario

import "strings"

// Role prefixes of history lines.
const (
	UserPrefix      = "user: "
	AssistantPrefix = "assistant: "
)

// BuildPrompt folds the state template, the dialogue context and the user input into one prompt.
func BuildPrompt(template, userInput, context string) string {
	var b strings.Builder
	b.Grow(len(template) + len(userInput) + len(context) + 64)
	b.WriteString(template)
	if context != "" {
		b.WriteString("\n\nКонтекст диалога:\n")
		b.WriteString(context)
		b.WriteString("\n\nТекущий ввод: ")
	} else {
		b.WriteString("\n\nВвод пользователя: ")
	}
	b.WriteString(userInput)
	return b.String()
}

// RenderHistory joins the last window lines of history. A window <= 0 renders nothing.
func RenderHistory(history []string, window int) string {
	if window <= 0 || len(history) == 0 {
		return ""
	}
	if len(history) > window {
		history = history[len(history)-window:]
	}
	return strings.Join(history, "\n")
}
