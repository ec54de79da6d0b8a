package parser

import (
	"encoding/json"
	"regexp"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Tool-call delimiters the embedding parser matches. Payloads may span
// multiple lines and carry surrounding whitespace.
const (
	OpenTag  = "<tool_call>"
	CloseTag = "</tool_call>"
)

var tagPattern = regexp.MustCompile(`(?s)<tool_call>\s*(.*?)\s*</tool_call>`)

// EmbeddingParser extracts invocations from explicit delimiter-tagged
// payloads. A tag payload is a JSON object with a required "name" and an
// optional "arguments" mapping.
type EmbeddingParser struct {
	logger zerolog.Logger
}

// NewEmbeddingParser creates an embedding parser.
func NewEmbeddingParser(logger zerolog.Logger) *EmbeddingParser {
	return &EmbeddingParser{
		logger: logger.With().Str("component", "embedding_parser").Logger(),
	}
}

// Extract finds every tagged payload in raw, in source order, and returns
// the invocations plus the text remaining after all matched spans are
// removed (trimmed). A payload that is not valid JSON or lacks a name fails
// the whole call with a MalformedToolCallError naming the offending tag.
func (p *EmbeddingParser) Extract(raw string) ([]Invocation, string, error) {
	matches := tagPattern.FindAllStringSubmatchIndex(raw, -1)
	if len(matches) == 0 {
		return nil, strings.TrimSpace(raw), nil
	}

	invocations := make([]Invocation, 0, len(matches))
	var remaining strings.Builder
	cursor := 0

	for _, m := range matches {
		tagStart, tagEnd := m[0], m[1]
		payload := raw[m[2]:m[3]]

		inv, err := p.decodeTag(raw, raw[tagStart:tagEnd], payload)
		if err != nil {
			return nil, "", err
		}
		invocations = append(invocations, inv)

		remaining.WriteString(raw[cursor:tagStart])
		cursor = tagEnd
	}
	remaining.WriteString(raw[cursor:])

	p.logger.Debug().
		Int("invocations", len(invocations)).
		Msg("Extracted tagged tool calls")

	return invocations, strings.TrimSpace(remaining.String()), nil
}

func (p *EmbeddingParser) decodeTag(raw, tag, payload string) (Invocation, error) {
	var body struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(payload), &body); err != nil {
		return Invocation{}, &MalformedToolCallError{RawTag: tag, Reason: "payload is not a valid JSON object"}
	}
	if body.Name == "" {
		return Invocation{}, &MalformedToolCallError{RawTag: tag, Reason: "payload has no tool name"}
	}
	if body.Arguments == nil {
		body.Arguments = map[string]interface{}{}
	}

	return Invocation{
		Tool: body.Name,
		Args: body.Arguments,
		Meta: Meta{
			RawOutput:  raw,
			ParserUsed: ParserEmbedding,
			Timestamp:  nowMillis(),
		},
	}, nil
}

// StreamExtractor is the incremental variant of the embedding parser. It
// buffers chunks and only consumes the buffer once at least one complete
// tag has been seen, so a tag split across chunk boundaries is retried on
// the next feed instead of being lost. The whole buffer is re-scanned on
// every feed; buffers are expected to stay small.
type StreamExtractor struct {
	parser *EmbeddingParser
	mu     sync.Mutex
	buffer strings.Builder
}

// NewStreamExtractor creates a streaming extractor on top of an embedding
// parser.
func NewStreamExtractor(parser *EmbeddingParser) *StreamExtractor {
	return &StreamExtractor{parser: parser}
}

// Feed appends a chunk and returns any complete invocations it unlocked.
// On a malformed payload the buffer is left untouched and the error
// propagates to the caller.
func (s *StreamExtractor) Feed(chunk string) ([]Invocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buffer.WriteString(chunk)

	invocations, remaining, err := s.parser.Extract(s.buffer.String())
	if err != nil {
		return nil, err
	}
	if len(invocations) == 0 {
		return nil, nil
	}

	s.buffer.Reset()
	s.buffer.WriteString(remaining)
	return invocations, nil
}

// Flush runs a final extraction pass over whatever remains, clears the
// buffer, and returns the trailing invocations plus the unmatched text.
func (s *StreamExtractor) Flush() ([]Invocation, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buffered := s.buffer.String()
	s.buffer.Reset()

	return s.parser.Extract(buffered)
}
