package parser

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/rs/zerolog"
)

// Text-strategy confidence levels. Structured JSON is trusted more than a
// bare tool-name mention.
const (
	confidenceStructured = 0.9
	confidenceHeuristic  = 0.7
	confidenceNameOnly   = 0.4
)

var fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// TextParser extracts at most one invocation from free-form model output.
// Three strategies run in fixed order, stopping at the first success:
// fenced JSON block, bare top-level JSON object, known-tool-name heuristic.
// No match is not an error: the output is a plain assistant message.
type TextParser struct {
	logger zerolog.Logger
}

// NewTextParser creates a text parser.
func NewTextParser(logger zerolog.Logger) *TextParser {
	return &TextParser{
		logger: logger.With().Str("component", "text_parser").Logger(),
	}
}

// Parse runs the strategy stack over raw. knownTools feeds the heuristic
// strategy; with an empty list that strategy is skipped entirely. A nil
// invocation with the original text means "no tool call here".
func (p *TextParser) Parse(raw string, knownTools []string) (*Invocation, string) {
	if inv := p.parseFencedBlocks(raw); inv != nil {
		return inv, raw
	}
	if inv := p.parseBareObject(raw); inv != nil {
		return inv, raw
	}
	if inv := p.parseKnownToolMention(raw, knownTools); inv != nil {
		return inv, raw
	}
	return nil, raw
}

// parseFencedBlocks tries every fenced code block in order; the first block
// whose content decodes as a tool-call payload wins.
func (p *TextParser) parseFencedBlocks(raw string) *Invocation {
	for _, m := range fencePattern.FindAllStringSubmatch(raw, -1) {
		content := strings.TrimSpace(m[1])
		if content == "" {
			continue
		}
		if tool, args, ok := decodePayload(content); ok {
			p.logger.Debug().Str("tool", tool).Msg("Tool call found in fenced block")
			return p.invocation(raw, tool, args, confidenceStructured)
		}
	}
	return nil
}

// parseBareObject scans from the first '{' to the point where brace depth
// returns to zero and validates that span as a payload. Unbalanced braces
// yield nothing.
func (p *TextParser) parseBareObject(raw string) *Invocation {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return nil
	}
	end := scanObject(raw, start)
	if end < 0 {
		return nil
	}
	if tool, args, ok := decodePayload(raw[start : end+1]); ok {
		p.logger.Debug().Str("tool", tool).Msg("Tool call found as bare JSON object")
		return p.invocation(raw, tool, args, confidenceStructured)
	}
	return nil
}

// parseKnownToolMention looks for the earliest case-insensitive mention of
// any known tool name, then for a JSON object after it to use as arguments.
// Confidence is moderate when arguments parse and low when only the name is
// present.
func (p *TextParser) parseKnownToolMention(raw string, knownTools []string) *Invocation {
	if len(knownTools) == 0 {
		return nil
	}

	lower := strings.ToLower(raw)
	earliest := -1
	matched := ""
	for _, name := range knownTools {
		if name == "" {
			continue
		}
		idx := strings.Index(lower, strings.ToLower(name))
		if idx < 0 {
			continue
		}
		if earliest < 0 || idx < earliest {
			earliest = idx
			matched = name
		}
	}
	if earliest < 0 {
		return nil
	}

	args, ok := p.argsAfter(raw, earliest+len(matched))
	if !ok {
		p.logger.Debug().Str("tool", matched).Msg("Known tool mentioned without arguments")
		return p.invocation(raw, matched, map[string]interface{}{}, confidenceNameOnly)
	}
	return p.invocation(raw, matched, args, confidenceHeuristic)
}

// argsAfter finds a balanced object after offset and parses it as an
// argument map, repairing sloppy JSON (single quotes, unquoted keys) before
// giving up.
func (p *TextParser) argsAfter(raw string, offset int) (map[string]interface{}, bool) {
	rel := strings.IndexByte(raw[offset:], '{')
	if rel < 0 {
		return nil, false
	}
	start := offset + rel
	end := scanObject(raw, start)
	if end < 0 {
		return nil, false
	}
	candidate := raw[start : end+1]

	args := make(map[string]interface{})
	if err := json.Unmarshal([]byte(candidate), &args); err == nil {
		return args, true
	}

	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return nil, false
	}
	args = make(map[string]interface{})
	if err := json.Unmarshal([]byte(repaired), &args); err != nil {
		return nil, false
	}
	return args, true
}

func (p *TextParser) invocation(raw, tool string, args map[string]interface{}, conf float64) *Invocation {
	return &Invocation{
		Tool: tool,
		Args: args,
		Meta: Meta{
			RawOutput:  raw,
			ParserUsed: ParserText,
			Confidence: confidence(conf),
			Timestamp:  nowMillis(),
		},
	}
}

// scanObject returns the index of the brace closing the object that opens
// at start, or -1 when depth never returns to zero. String literals and
// escape sequences are honored so quoted braces do not skew the depth.
func scanObject(s string, start int) int {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
