package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeMarkdown(t *testing.T) {
	out, err := EscapeMarkdown("state_1 (end).", MarkdownV2)
	require.NoError(t, err)
	assert.Equal(t, `state\_1 \(end\)\.`, out)

	out, err = EscapeMarkdown("a_b*c", MarkdownV1)
	require.NoError(t, err)
	assert.Equal(t, `a\_b\*c`, out)

	_, err = EscapeMarkdown("x", 3)
	assert.Error(t, err)
}

func TestV2Backslash(t *testing.T) {
	assert.Equal(t, `a\\b\!`, V2(`a\b!`))
}

func TestV2LeavesOrdinaryPunctuation(t *testing.T) {
	assert.Equal(t, `step 10, a/b: c; d<e`, V2(`step 10, a/b: c; d<e`))
	assert.Equal(t, `a\-b \+ c\=d \#1`, V2(`a-b + c=d #1`))
	assert.Equal(t, `\[x\]\{y\}\|\~\>`, V2(`[x]{y}|~>`))
}
