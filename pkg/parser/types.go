package parser

import "time"

// Parser identifiers recorded in invocation metadata. ParserDirect marks
// invocations a transport supplied pre-extracted, bypassing the parsers.
const (
	ParserEmbedding = "embedding"
	ParserText      = "text"
	ParserDirect    = "direct"
)

// Mode selects which parsing strategy the router applies. It is fixed for
// the lifetime of a session.
type Mode string

const (
	// ModeEmbedding only accepts explicit <tool_call> delimited payloads.
	ModeEmbedding Mode = "embedding"
	// ModeText only runs the free-text strategy stack.
	ModeText Mode = "text"
	// ModeHybrid tries embedding first and falls back to text.
	ModeHybrid Mode = "hybrid"
)

// Meta carries provenance for an extracted invocation.
type Meta struct {
	RawOutput     string   `json:"raw_output"`
	ParserUsed    string   `json:"parser_used"`
	Confidence    *float64 `json:"confidence,omitempty"` // absent for structural (embedding) matches
	Timestamp     int64    `json:"timestamp"`            // epoch millis
	CorrelationID string   `json:"correlation_id,omitempty"`
}

// Invocation is a structured tool call extracted from model output or
// supplied pre-extracted by a transport. Treat it as immutable: enrichment
// produces a copy, never an in-place mutation.
type Invocation struct {
	Tool string                 `json:"tool"`
	Args map[string]interface{} `json:"args"`
	Meta Meta                   `json:"meta"`
}

// WithCorrelationID returns a copy of the invocation carrying the given
// correlation ID. The original is left untouched.
func (inv Invocation) WithCorrelationID(id string) Invocation {
	out := inv
	out.Meta.CorrelationID = id
	return out
}

func confidence(v float64) *float64 {
	return &v
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
