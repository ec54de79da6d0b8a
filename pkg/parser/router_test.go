package parser

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(v bool) *bool {
	return &v
}

func TestModeFromFlag(t *testing.T) {
	assert.Equal(t, ModeEmbedding, ModeFromFlag(boolPtr(true)))
	assert.Equal(t, ModeText, ModeFromFlag(boolPtr(false)))
	assert.Equal(t, ModeHybrid, ModeFromFlag(nil))
}

func TestRouter_EmbeddingMode(t *testing.T) {
	r := NewRouter(ModeEmbedding, zerolog.Nop())

	invocations, err := r.Parse(`<tool_call>{"name": "echo", "arguments": {"message": "hi"}}</tool_call>`)
	require.NoError(t, err)
	require.Len(t, invocations, 1)
	assert.Equal(t, "echo", invocations[0].Tool)
	assert.NotEmpty(t, invocations[0].Meta.CorrelationID)
}

func TestRouter_EmbeddingMode_IgnoresFreeText(t *testing.T) {
	r := NewRouter(ModeEmbedding, zerolog.Nop())
	r.SetKnownToolNames([]string{"echo"})

	// A bare payload without delimiters is invisible to the embedding mode.
	invocations, err := r.Parse(`{"name": "echo", "arguments": {"message": "hi"}}`)
	require.NoError(t, err)
	assert.Empty(t, invocations)
}

func TestRouter_TextMode(t *testing.T) {
	r := NewRouter(ModeText, zerolog.Nop())

	invocations, err := r.Parse(`{"name": "echo", "arguments": {"message": "hi"}}`)
	require.NoError(t, err)
	require.Len(t, invocations, 1)
	assert.Equal(t, "echo", invocations[0].Tool)
	assert.NotEmpty(t, invocations[0].Meta.CorrelationID)
}

func TestRouter_TextMode_PlainMessage(t *testing.T) {
	r := NewRouter(ModeText, zerolog.Nop())

	invocations, err := r.Parse("No tools needed for this one.")
	require.NoError(t, err)
	assert.Empty(t, invocations)
}

func TestRouter_HybridPrefersEmbedding(t *testing.T) {
	r := NewRouter(ModeHybrid, zerolog.Nop())
	r.SetKnownToolNames([]string{"search", "echo"})

	// Both a tagged call and a free-text mention are present; only the
	// tagged evidence is used, never merged with text findings.
	raw := `Use search with {"q": "x"}.
<tool_call>{"name": "echo", "arguments": {"message": "hi"}}</tool_call>`

	invocations, err := r.Parse(raw)
	require.NoError(t, err)
	require.Len(t, invocations, 1)
	assert.Equal(t, "echo", invocations[0].Tool)
	assert.Equal(t, ParserEmbedding, invocations[0].Meta.ParserUsed)
}

func TestRouter_HybridFallsBackToText(t *testing.T) {
	r := NewRouter(ModeHybrid, zerolog.Nop())
	r.SetKnownToolNames([]string{"search"})

	invocations, err := r.Parse(`Please run search with {"q": "golang"}`)
	require.NoError(t, err)
	require.Len(t, invocations, 1)
	assert.Equal(t, "search", invocations[0].Tool)
	assert.Equal(t, ParserText, invocations[0].Meta.ParserUsed)
}

func TestRouter_HybridFencedBlockViaTextPath(t *testing.T) {
	r := NewRouter(ModeHybrid, zerolog.Nop())

	raw := "No tags here.\n```json\n{\"name\": \"ping\", \"arguments\": {}}\n```"

	invocations, err := r.Parse(raw)
	require.NoError(t, err)
	require.Len(t, invocations, 1)
	assert.Equal(t, "ping", invocations[0].Tool)
	assert.Equal(t, ParserText, invocations[0].Meta.ParserUsed)
	require.NotNil(t, invocations[0].Meta.Confidence)
	assert.Equal(t, 0.9, *invocations[0].Meta.Confidence)
}

func TestRouter_HybridTagBeatsFencedBlock(t *testing.T) {
	r := NewRouter(ModeHybrid, zerolog.Nop())

	raw := "```json\n{\"name\": \"ignored\"}\n```\n<tool_call>{\"name\": \"taken\"}</tool_call>"

	invocations, err := r.Parse(raw)
	require.NoError(t, err)
	require.Len(t, invocations, 1)
	assert.Equal(t, "taken", invocations[0].Tool)
}

func TestRouter_HybridPropagatesMalformedTag(t *testing.T) {
	r := NewRouter(ModeHybrid, zerolog.Nop())
	r.SetKnownToolNames([]string{"search"})

	// A malformed tag is a hard error even though the text around it would
	// satisfy the text strategies.
	raw := `search {"q": "x"} <tool_call>{broken}</tool_call>`

	invocations, err := r.Parse(raw)
	require.Error(t, err)
	assert.Nil(t, invocations)
}

func TestRouter_CorrelationIDsAreUnique(t *testing.T) {
	r := NewRouter(ModeEmbedding, zerolog.Nop())

	invocations, err := r.Parse(`<tool_call>{"name": "a"}</tool_call><tool_call>{"name": "b"}</tool_call>`)
	require.NoError(t, err)
	require.Len(t, invocations, 2)
	assert.NotEmpty(t, invocations[0].Meta.CorrelationID)
	assert.NotEqual(t, invocations[0].Meta.CorrelationID, invocations[1].Meta.CorrelationID)
}

func TestInvocation_WithCorrelationIDCopies(t *testing.T) {
	original := Invocation{Tool: "echo", Args: map[string]interface{}{}}
	stamped := original.WithCorrelationID("abc123")

	assert.Empty(t, original.Meta.CorrelationID)
	assert.Equal(t, "abc123", stamped.Meta.CorrelationID)
}
