package parser

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddingParser_Extract_SingleTag(t *testing.T) {
	p := NewEmbeddingParser(zerolog.Nop())

	raw := `Let me check the weather.
<tool_call>
{"name": "get_weather", "arguments": {"city": "Jakarta"}}
</tool_call>`

	invocations, remaining, err := p.Extract(raw)
	require.NoError(t, err)
	require.Len(t, invocations, 1)

	assert.Equal(t, "get_weather", invocations[0].Tool)
	assert.Equal(t, "Jakarta", invocations[0].Args["city"])
	assert.Equal(t, ParserEmbedding, invocations[0].Meta.ParserUsed)
	assert.Nil(t, invocations[0].Meta.Confidence)
	assert.Equal(t, raw, invocations[0].Meta.RawOutput)
	assert.Equal(t, "Let me check the weather.", remaining)
}

func TestEmbeddingParser_Extract_MultipleTagsInOrder(t *testing.T) {
	p := NewEmbeddingParser(zerolog.Nop())

	raw := `First:
<tool_call>{"name": "alpha"}</tool_call>
then:
<tool_call>{"name": "beta", "arguments": {"n": 2}}</tool_call>
done.`

	invocations, remaining, err := p.Extract(raw)
	require.NoError(t, err)
	require.Len(t, invocations, 2)

	assert.Equal(t, "alpha", invocations[0].Tool)
	assert.Equal(t, "beta", invocations[1].Tool)
	assert.Equal(t, float64(2), invocations[1].Args["n"])
	assert.Contains(t, remaining, "First:")
	assert.Contains(t, remaining, "then:")
	assert.Contains(t, remaining, "done.")
	assert.NotContains(t, remaining, "<tool_call>")
}

func TestEmbeddingParser_Extract_NoTags(t *testing.T) {
	p := NewEmbeddingParser(zerolog.Nop())

	invocations, remaining, err := p.Extract("  just a plain answer  ")
	require.NoError(t, err)
	assert.Empty(t, invocations)
	assert.Equal(t, "just a plain answer", remaining)
}

func TestEmbeddingParser_Extract_MissingArguments(t *testing.T) {
	p := NewEmbeddingParser(zerolog.Nop())

	invocations, _, err := p.Extract(`<tool_call>{"name": "ping"}</tool_call>`)
	require.NoError(t, err)
	require.Len(t, invocations, 1)
	assert.NotNil(t, invocations[0].Args)
	assert.Empty(t, invocations[0].Args)
}

func TestEmbeddingParser_Extract_MalformedPayload(t *testing.T) {
	p := NewEmbeddingParser(zerolog.Nop())

	tests := []struct {
		name string
		raw  string
	}{
		{"invalid json", `<tool_call>{not json}</tool_call>`},
		{"missing name", `<tool_call>{"arguments": {"x": 1}}</tool_call>`},
		{"empty name", `<tool_call>{"name": ""}</tool_call>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			invocations, _, err := p.Extract(tt.raw)
			require.Error(t, err)
			assert.Nil(t, invocations)

			var malformed *MalformedToolCallError
			require.True(t, errors.As(err, &malformed))
			assert.Contains(t, malformed.RawTag, "<tool_call>")
			assert.True(t, errors.Is(err, ErrMalformedToolCall))
		})
	}
}

func TestEmbeddingParser_Extract_MalformedFailsWholeCall(t *testing.T) {
	p := NewEmbeddingParser(zerolog.Nop())

	raw := `<tool_call>{"name": "good"}</tool_call>
<tool_call>{broken}</tool_call>`

	invocations, _, err := p.Extract(raw)
	require.Error(t, err)
	assert.Nil(t, invocations)
}

func TestStreamExtractor_TagSplitAcrossChunks(t *testing.T) {
	extractor := NewStreamExtractor(NewEmbeddingParser(zerolog.Nop()))

	invocations, err := extractor.Feed(`thinking... <tool_call>{"name": "se`)
	require.NoError(t, err)
	assert.Empty(t, invocations)

	invocations, err = extractor.Feed(`arch", "arguments": {"q": "go"}}</tool_call> tail`)
	require.NoError(t, err)
	require.Len(t, invocations, 1)
	assert.Equal(t, "search", invocations[0].Tool)
	assert.Equal(t, "go", invocations[0].Args["q"])
}

func TestStreamExtractor_MultipleTagsAcrossFeeds(t *testing.T) {
	extractor := NewStreamExtractor(NewEmbeddingParser(zerolog.Nop()))

	invocations, err := extractor.Feed(`<tool_call>{"name": "one"}</tool_call><tool_call>{"name": "tw`)
	require.NoError(t, err)
	require.Len(t, invocations, 1)
	assert.Equal(t, "one", invocations[0].Tool)

	invocations, err = extractor.Feed(`o"}</tool_call>`)
	require.NoError(t, err)
	require.Len(t, invocations, 1)
	assert.Equal(t, "two", invocations[0].Tool)
}

func TestStreamExtractor_Flush(t *testing.T) {
	extractor := NewStreamExtractor(NewEmbeddingParser(zerolog.Nop()))

	_, err := extractor.Feed(`leading <tool_call>{"name": "last"}</tool_call> trailing`)
	require.NoError(t, err)

	invocations, remaining, err := extractor.Flush()
	require.NoError(t, err)
	assert.Empty(t, invocations)
	assert.Equal(t, "leading  trailing", remaining)

	// Flush drained the buffer.
	invocations, remaining, err = extractor.Flush()
	require.NoError(t, err)
	assert.Empty(t, invocations)
	assert.Empty(t, remaining)
}

func TestStreamExtractor_FeedErrorKeepsBuffer(t *testing.T) {
	extractor := NewStreamExtractor(NewEmbeddingParser(zerolog.Nop()))

	_, err := extractor.Feed(`<tool_call>{broken}</tool_call>`)
	require.Error(t, err)

	// The malformed tag is still buffered, so flush reports it again.
	_, _, err = extractor.Flush()
	require.Error(t, err)
}
