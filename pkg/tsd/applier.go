package tsd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"github.com/harun/toolgate/pkg/parser"
)

// ExecuteFunc runs a tool and reports its outcome. A returned error is
// treated like a raised failure and folded into the uniform result shape;
// it never escapes the applier.
type ExecuteFunc func(ctx context.Context, toolName string, args map[string]interface{}) (ToolResult, error)

// Applier wraps raw tool execution with the per-tool policy pipeline:
// rate limiting, elevation checks, input validation, hooks, retry with
// backoff, per-attempt timeouts and fallback substitution.
type Applier struct {
	limiter *RateLimiter
	hooks   *HookRegistry
	logger  zerolog.Logger

	elevated func() bool
	sleep    func(ctx context.Context, d time.Duration) error
}

// ApplierConfig configures an Applier. Limiter and Hooks default to fresh
// instances when nil.
type ApplierConfig struct {
	Limiter *RateLimiter
	Hooks   *HookRegistry
	Logger  zerolog.Logger
}

// NewApplier creates a policy applier.
func NewApplier(cfg ApplierConfig) *Applier {
	if cfg.Limiter == nil {
		cfg.Limiter = NewRateLimiter(cfg.Logger)
	}
	if cfg.Hooks == nil {
		cfg.Hooks = NewHookRegistry(cfg.Logger)
	}
	return &Applier{
		limiter:  cfg.Limiter,
		hooks:    cfg.Hooks,
		logger:   cfg.Logger.With().Str("component", "tsd_applier").Logger(),
		elevated: processElevated,
		sleep:    sleepCtx,
	}
}

// Limiter returns the applier's rate limit table, for observability.
func (a *Applier) Limiter() *RateLimiter {
	return a.limiter
}

// Hooks returns the applier's hook registry.
func (a *Applier) Hooks() *HookRegistry {
	return a.hooks
}

// Apply runs the full policy pipeline for one invocation and always
// returns a result; policy failures surface as failed results, never as
// raised errors. DurationMs reflects the whole pipeline and is stamped
// unconditionally as the last step, overwriting anything a tool or hook
// set.
func (a *Applier) Apply(ctx context.Context, inv parser.Invocation, def *Definition, session Session, execFn ExecuteFunc, fallbackFn ExecuteFunc) ToolResult {
	start := time.Now()
	result := a.apply(ctx, inv, def, session, execFn, fallbackFn)
	result.DurationMs = time.Since(start).Milliseconds()
	return result
}

func (a *Applier) apply(ctx context.Context, inv parser.Invocation, def *Definition, session Session, execFn ExecuteFunc, fallbackFn ExecuteFunc) ToolResult {
	toolName := inv.Tool
	args := inv.Args
	if args == nil {
		args = map[string]interface{}{}
	}

	// No definition: execute directly with no policy.
	if def == nil {
		return a.attempt(ctx, toolName, args, 0, execFn)
	}

	if def.RateLimits != nil && !a.limiter.Allow(toolName, *def.RateLimits) {
		a.logger.Warn().
			Str("tool", toolName).
			Int("max_per_second", def.RateLimits.MaxCallsPerSecond).
			Msg("Rate limit exceeded")
		return Failure(CodeRateLimitExceeded, "rate limit exceeded for tool %s", toolName)
	}

	if def.RequiresElevation && !session.ElevationApproved(toolName) && !a.elevated() {
		a.logger.Warn().Str("tool", toolName).Msg("Elevation required")
		return Failure(CodeElevationRequired, "tool %s requires elevated privileges", toolName)
	}

	if def.InputValidation != nil {
		if err := a.validateArgs(def.InputValidation, args); err != nil {
			a.logger.Warn().Str("tool", toolName).Err(err).Msg("Input validation failed")
			return Failure(CodeValidationFailed, "invalid arguments for tool %s: %v", toolName, err)
		}
	}

	if def.PreHook != "" {
		rewritten, err := a.runPreHook(ctx, def.PreHook, toolName, args, session)
		if err != nil {
			return Failure(ClassifyError(err), "pre-hook %s failed: %v", def.PreHook, err)
		}
		args = rewritten
	}

	result := a.retryLoop(ctx, toolName, args, def, execFn)

	if !result.Success && def.FallbackTool != "" && fallbackFn != nil {
		result = a.runFallback(ctx, def.FallbackTool, args, result, fallbackFn)
	}

	if def.PostHook != "" {
		result = a.runPostHook(ctx, def.PostHook, toolName, args, result, session)
	}

	return result
}

// retryLoop executes the tool up to maxRetries+1 times, sleeping between
// attempts per the backoff strategy. Only failures whose code appears in
// the policy's retryable set are retried; the sleep is context-aware and
// holds no lock.
func (a *Applier) retryLoop(ctx context.Context, toolName string, args map[string]interface{}, def *Definition, execFn ExecuteFunc) ToolResult {
	policy := def.RetryPolicy
	attempts := 1
	if policy != nil {
		attempts = policy.MaxRetries + 1
	}

	var result ToolResult
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := a.sleep(ctx, backoffDelay(policy, attempt)); err != nil {
				return Failure(CodeInternal, "retry wait aborted for tool %s: %v", toolName, err)
			}
			a.logger.Debug().
				Str("tool", toolName).
				Int("attempt", attempt+1).
				Msg("Retrying tool execution")
		}

		result = a.attempt(ctx, toolName, args, def.TimeoutMs, execFn)
		if result.Success {
			return result
		}
		if attempt == attempts-1 || !policy.Retryable(result.Error.Code) {
			return result
		}
	}
	return result
}

// attempt races one execution of the tool against the configured timeout.
// The result channel is buffered so an abandoned execution can complete
// without blocking; the timeout timer is released on either outcome. The
// underlying call is not force-killed, the caller just stops waiting.
func (a *Applier) attempt(ctx context.Context, toolName string, args map[string]interface{}, timeoutMs int, execFn ExecuteFunc) ToolResult {
	runCtx := ctx
	cancel := context.CancelFunc(func() {})
	if timeoutMs > 0 {
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
	}
	defer cancel()

	type outcome struct {
		result ToolResult
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		result, err := execFn(runCtx, toolName, args)
		done <- outcome{result: result, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return Failure(ClassifyError(o.err), "tool %s failed: %v", toolName, o.err)
		}
		if !o.result.Success && o.result.Error == nil {
			o.result.Error = &ToolError{Code: CodeInternal, Message: "tool reported failure without an error"}
		}
		return o.result

	case <-runCtx.Done():
		if timeoutMs > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			a.logger.Warn().
				Str("tool", toolName).
				Int("timeout_ms", timeoutMs).
				Msg("Tool execution timeout")
			return Failure(CodeTimeout, "tool %s timed out after %dms", toolName, timeoutMs)
		}
		return Failure(CodeInternal, "tool %s aborted: %v", toolName, runCtx.Err())
	}
}

// runFallback substitutes the fallback tool's outcome for a failed primary
// result. A fallback that itself raises is logged and discarded so it
// never masks the primary failure record.
func (a *Applier) runFallback(ctx context.Context, fallbackTool string, args map[string]interface{}, original ToolResult, fallbackFn ExecuteFunc) ToolResult {
	a.logger.Info().
		Str("fallback_tool", fallbackTool).
		Str("original_error", original.Error.Code).
		Msg("Invoking fallback tool")

	result, err := fallbackFn(ctx, fallbackTool, args)
	if err != nil {
		a.logger.Warn().
			Str("fallback_tool", fallbackTool).
			Err(err).
			Msg("Fallback tool failed, keeping original failure")
		return original
	}
	return result
}

func (a *Applier) runPreHook(ctx context.Context, name, toolName string, args map[string]interface{}, session Session) (map[string]interface{}, error) {
	hook, ok := a.hooks.Pre(name)
	if !ok {
		a.logger.Warn().Str("hook", name).Str("tool", toolName).Msg("Pre-hook not registered, skipping")
		return args, nil
	}
	return hook(ctx, toolName, args, session)
}

func (a *Applier) runPostHook(ctx context.Context, name, toolName string, args map[string]interface{}, result ToolResult, session Session) ToolResult {
	hook, ok := a.hooks.Post(name)
	if !ok {
		a.logger.Warn().Str("hook", name).Str("tool", toolName).Msg("Post-hook not registered, skipping")
		return result
	}
	replaced, err := hook(ctx, toolName, args, result, session)
	if err != nil {
		a.logger.Warn().Str("hook", name).Err(err).Msg("Post-hook failed, keeping pipeline result")
		return result
	}
	return replaced
}

func (a *Applier) validateArgs(schemaDoc, args map[string]interface{}) error {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaDoc))
	if err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return err
	}
	if !result.Valid() {
		violations := make([]string, 0, len(result.Errors()))
		for _, v := range result.Errors() {
			violations = append(violations, v.String())
		}
		return fmt.Errorf("%s", strings.Join(violations, "; "))
	}
	return nil
}

// backoffDelay computes the wait before the attempt at 1-based index
// attempt: none waits nothing, linear waits base*attempt, exponential
// waits base*2^attempt.
func backoffDelay(policy *RetryPolicy, attempt int) time.Duration {
	if policy == nil {
		return 0
	}
	base := time.Duration(policy.BaseDelayMs) * time.Millisecond
	switch policy.Backoff {
	case BackoffLinear:
		return base * time.Duration(attempt)
	case BackoffExponential:
		return base * time.Duration(1<<uint(attempt))
	default:
		return 0
	}
}

// sleepCtx waits for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
