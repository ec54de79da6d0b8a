package dispatch

import (
	"context"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/harun/toolgate/internal/metrics"
	"github.com/harun/toolgate/pkg/parser"
	"github.com/harun/toolgate/pkg/registry"
	"github.com/harun/toolgate/pkg/tsd"
)

// Outcome pairs an extracted invocation with its policy-applied result.
type Outcome struct {
	Invocation parser.Invocation `json:"invocation"`
	Result     tsd.ToolResult    `json:"result"`
}

// Dispatcher is the runtime pipeline behind every transport: raw model
// text goes through the parser router, each extracted invocation through
// the policy applier, and the registry executes the underlying tool.
// Transports own no parsing or policy logic themselves.
type Dispatcher struct {
	router   *parser.Router
	applier  *tsd.Applier
	registry *registry.Registry
	store    *tsd.Store
	session  tsd.Session
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// Config wires a Dispatcher. Metrics is optional.
type Config struct {
	Router   *parser.Router
	Applier  *tsd.Applier
	Registry *registry.Registry
	Store    *tsd.Store
	Session  tsd.Session
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
}

// New creates a dispatcher.
func New(cfg Config) *Dispatcher {
	return &Dispatcher{
		router:   cfg.Router,
		applier:  cfg.Applier,
		registry: cfg.Registry,
		store:    cfg.Store,
		session:  cfg.Session,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Router exposes the parser router, for transports driving the streaming
// extractor directly.
func (d *Dispatcher) Router() *parser.Router {
	return d.router
}

// Registry exposes the tool registry for schema listings.
func (d *Dispatcher) Registry() *registry.Registry {
	return d.registry
}

// DispatchText parses raw model output and executes every extracted
// invocation sequentially; a later invocation proceeds regardless of an
// earlier one's outcome. An empty outcome list means the output was a
// plain assistant message. A malformed embedding payload propagates as an
// error.
func (d *Dispatcher) DispatchText(ctx context.Context, rawOutput string) ([]Outcome, error) {
	invocations, err := d.router.Parse(rawOutput)
	if err != nil {
		if d.metrics != nil {
			d.metrics.ParseErrorsTotal.Inc()
			d.metrics.ParsesTotal.WithLabelValues(string(d.router.Mode()), "error").Inc()
		}
		return nil, err
	}

	if d.metrics != nil {
		outcome := "match"
		if len(invocations) == 0 {
			outcome = "plain"
		}
		d.metrics.ParsesTotal.WithLabelValues(string(d.router.Mode()), outcome).Inc()
		for _, inv := range invocations {
			d.metrics.InvocationsParsed.WithLabelValues(inv.Meta.ParserUsed).Inc()
		}
	}

	outcomes := make([]Outcome, 0, len(invocations))
	for _, inv := range invocations {
		outcomes = append(outcomes, Outcome{
			Invocation: inv,
			Result:     d.DispatchInvocation(ctx, inv),
		})
	}
	return outcomes, nil
}

// DispatchInvocation runs one invocation through the policy pipeline. It
// serves both parsed invocations and the pre-extracted path transports
// use when the caller already split tool name and arguments.
func (d *Dispatcher) DispatchInvocation(ctx context.Context, inv parser.Invocation) tsd.ToolResult {
	if inv.Meta.CorrelationID == "" {
		if id, err := gonanoid.New(); err == nil {
			inv = inv.WithCorrelationID(id)
		}
	}

	def := d.store.Get(inv.Tool)
	execFn := d.registry.ExecuteFunc()

	start := time.Now()
	result := d.applier.Apply(ctx, inv, def, d.session, execFn, execFn)

	status := "success"
	if !result.Success {
		status = "failure"
	}
	d.logger.Info().
		Str("tool", inv.Tool).
		Str("correlation_id", inv.Meta.CorrelationID).
		Str("status", status).
		Int64("duration_ms", result.DurationMs).
		Msg("Invocation dispatched")

	if d.metrics != nil {
		d.metrics.DispatchesTotal.WithLabelValues(inv.Tool, status).Inc()
		d.metrics.DispatchDuration.WithLabelValues(inv.Tool).Observe(time.Since(start).Seconds())
		if result.Error != nil {
			d.metrics.DispatchErrors.WithLabelValues(inv.Tool, result.Error.Code).Inc()
		}
	}

	return result
}

// Stream opens a streaming dispatch session over the embedding parser's
// incremental extractor. Used by the SSE transport.
func (d *Dispatcher) Stream() *StreamSession {
	return &StreamSession{
		dispatcher: d,
		extractor:  parser.NewStreamExtractor(d.router.Embedding()),
	}
}

// StreamSession feeds chunks of model output and dispatches invocations
// as soon as their closing tags arrive.
type StreamSession struct {
	dispatcher *Dispatcher
	extractor  *parser.StreamExtractor
}

// Feed appends a chunk and dispatches any invocations it completed.
func (s *StreamSession) Feed(ctx context.Context, chunk string) ([]Outcome, error) {
	invocations, err := s.extractor.Feed(chunk)
	if err != nil {
		return nil, err
	}
	return s.dispatchAll(ctx, invocations), nil
}

// Flush dispatches whatever a final extraction pass finds and returns the
// unmatched trailing text.
func (s *StreamSession) Flush(ctx context.Context) ([]Outcome, string, error) {
	invocations, remaining, err := s.extractor.Flush()
	if err != nil {
		return nil, "", err
	}
	return s.dispatchAll(ctx, invocations), remaining, nil
}

func (s *StreamSession) dispatchAll(ctx context.Context, invocations []parser.Invocation) []Outcome {
	outcomes := make([]Outcome, 0, len(invocations))
	for _, inv := range invocations {
		outcomes = append(outcomes, Outcome{
			Invocation: inv,
			Result:     s.dispatcher.DispatchInvocation(ctx, inv),
		})
	}
	return outcomes
}
