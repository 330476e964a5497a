// Package format escapes text for Telegram parse modes.
package format

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// MarkdownV1 denotes Telegram markdown version 1.
	MarkdownV1 = 1
	// MarkdownV2 denotes Telegram markdown version 2.
	MarkdownV2 = 2
)

const mdV2Specials = "_*[]()~`>#+-=|{}.!\\"

var (
	reV1 = regexp.MustCompile("([_*\\[`\\\\])")
	reV2 = regexp.MustCompile("([" + classEscape(mdV2Specials) + "])")
)

// classEscape backslashes every rune so the set is literal inside a character class.
func classEscape(set string) string {
	var b strings.Builder
	for _, r := range set {
		b.WriteByte('\\')
		b.WriteRune(r)
	}
	return b.String()
}

// EscapeMarkdown escapes special characters for MarkdownV1 or V2.
func EscapeMarkdown(text string, version int) (string, error) {
	switch version {
	case MarkdownV1:
		return reV1.ReplaceAllString(text, `\$1`), nil
	case MarkdownV2:
		return reV2.ReplaceAllString(text, `\$1`), nil
	}
	return "", fmt.Errorf("unsupported markdown version: %d", version)
}

// V2 escapes text for MarkdownV2.
func V2(text string) string {
	out, _ := EscapeMarkdown(text, MarkdownV2)
	return out
}
