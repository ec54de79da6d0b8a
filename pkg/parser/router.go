package parser

import (
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// ModeFromFlag derives the parsing mode from the session's tri-state
// embedding flag: true selects embedding, false selects text, unset selects
// hybrid.
func ModeFromFlag(embedding *bool) Mode {
	switch {
	case embedding == nil:
		return ModeHybrid
	case *embedding:
		return ModeEmbedding
	default:
		return ModeText
	}
}

// Router selects a parsing mode once per session and dispatches raw model
// output to the embedding and/or text parser accordingly.
type Router struct {
	mode      Mode
	embedding *EmbeddingParser
	text      *TextParser
	logger    zerolog.Logger

	mu         sync.RWMutex
	knownTools []string
}

// NewRouter creates a router with a fixed mode.
func NewRouter(mode Mode, logger zerolog.Logger) *Router {
	return &Router{
		mode:      mode,
		embedding: NewEmbeddingParser(logger),
		text:      NewTextParser(logger),
		logger:    logger.With().Str("component", "parser_router").Logger(),
	}
}

// Mode returns the router's fixed parsing mode.
func (r *Router) Mode() Mode {
	return r.mode
}

// SetKnownToolNames installs the registry's tool names for the heuristic
// text strategy. Call it after the registry is populated and before the
// first parse that could reach that strategy.
func (r *Router) SetKnownToolNames(names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.knownTools = append([]string(nil), names...)
}

// Embedding returns the underlying embedding parser, for transports that
// drive the streaming variant directly.
func (r *Router) Embedding() *EmbeddingParser {
	return r.embedding
}

// Parse extracts invocations from raw model output. An empty slice means
// "plain assistant message, no tool call" and is not an error; a malformed
// embedding payload propagates as a MalformedToolCallError.
func (r *Router) Parse(raw string) ([]Invocation, error) {
	switch r.mode {
	case ModeEmbedding:
		invocations, _, err := r.embedding.Extract(raw)
		if err != nil {
			return nil, err
		}
		return r.stamped(invocations), nil

	case ModeText:
		return r.parseText(raw), nil

	default: // hybrid: embedding evidence is authoritative, never merged
		invocations, _, err := r.embedding.Extract(raw)
		if err != nil {
			return nil, err
		}
		if len(invocations) > 0 {
			return r.stamped(invocations), nil
		}
		return r.parseText(raw), nil
	}
}

func (r *Router) parseText(raw string) []Invocation {
	r.mu.RLock()
	known := r.knownTools
	r.mu.RUnlock()

	inv, _ := r.text.Parse(raw, known)
	if inv == nil {
		return []Invocation{}
	}
	return r.stamped([]Invocation{*inv})
}

// stamped assigns a correlation ID to each invocation missing one.
func (r *Router) stamped(invocations []Invocation) []Invocation {
	out := make([]Invocation, 0, len(invocations))
	for _, inv := range invocations {
		if inv.Meta.CorrelationID == "" {
			id, err := gonanoid.New()
			if err == nil {
				inv = inv.WithCorrelationID(id)
			}
		}
		out = append(out, inv)
	}
	return out
}
