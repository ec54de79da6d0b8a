package tsd

import "fmt"

// Backoff names a retry delay strategy.
type Backoff string

const (
	BackoffNone        Backoff = "none"
	BackoffLinear      Backoff = "linear"
	BackoffExponential Backoff = "exponential"
)

// RateLimitConfig bounds how often a tool may be called within a sliding
// one-second window.
type RateLimitConfig struct {
	MaxCallsPerSecond int `json:"maxCallsPerSecond"`
	BurstAllowance    int `json:"burstAllowance"`
}

// RetryPolicy controls re-execution of failed tool calls. Only failures
// whose error code appears in RetryableErrors are retried.
type RetryPolicy struct {
	MaxRetries      int      `json:"maxRetries"`
	Backoff         Backoff  `json:"backoff"`
	BaseDelayMs     int      `json:"baseDelayMs"`
	RetryableErrors []string `json:"retryableErrors"`
}

// Retryable reports whether a failure with the given code may be retried.
func (rp *RetryPolicy) Retryable(code string) bool {
	if rp == nil {
		return false
	}
	for _, c := range rp.RetryableErrors {
		if c == code {
			return true
		}
	}
	return false
}

// Definition is the task-specific policy for one tool, loaded from a JSON
// document. The applier treats it as read-only per call; absence of a
// definition means "execute with no policy".
type Definition struct {
	ToolName          string                 `json:"toolName"`
	RateLimits        *RateLimitConfig       `json:"rateLimits,omitempty"`
	RequiresElevation bool                   `json:"requiresElevation,omitempty"`
	InputValidation   map[string]interface{} `json:"inputValidation,omitempty"`
	PreHook           string                 `json:"preHook,omitempty"`
	PostHook          string                 `json:"postHook,omitempty"`
	RetryPolicy       *RetryPolicy           `json:"retryPolicy,omitempty"`
	TimeoutMs         int                    `json:"timeoutMs,omitempty"`
	FallbackTool      string                 `json:"fallbackTool,omitempty"`
}

// Validate checks a loaded definition for internally consistent values.
func (d *Definition) Validate() error {
	if d.ToolName == "" {
		return fmt.Errorf("toolName is required")
	}
	if d.RateLimits != nil && d.RateLimits.MaxCallsPerSecond <= 0 {
		return fmt.Errorf("rateLimits.maxCallsPerSecond must be positive")
	}
	if d.RateLimits != nil && d.RateLimits.BurstAllowance < 0 {
		return fmt.Errorf("rateLimits.burstAllowance must be >= 0")
	}
	if d.TimeoutMs < 0 {
		return fmt.Errorf("timeoutMs must be >= 0")
	}
	if rp := d.RetryPolicy; rp != nil {
		if rp.MaxRetries < 0 {
			return fmt.Errorf("retryPolicy.maxRetries must be >= 0")
		}
		if rp.BaseDelayMs < 0 {
			return fmt.Errorf("retryPolicy.baseDelayMs must be >= 0")
		}
		switch rp.Backoff {
		case "", BackoffNone, BackoffLinear, BackoffExponential:
		default:
			return fmt.Errorf("retryPolicy.backoff must be none, linear or exponential")
		}
	}
	return nil
}

// Session carries the session-wide settings the applier consumes read-only.
type Session struct {
	ElevationPreApproved bool
	ElevationAllowlist   []string
	Metadata             map[string]interface{}
}

// ElevationApproved reports whether the session pre-approves elevation for
// the given tool.
func (s Session) ElevationApproved(toolName string) bool {
	if !s.ElevationPreApproved {
		return false
	}
	for _, name := range s.ElevationAllowlist {
		if name == toolName {
			return true
		}
	}
	return false
}

// ToolError is the stable failure shape carried by a ToolResult.
type ToolError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ToolResult is the uniform outcome of a policy-applied tool call. The
// applier always returns one, even when every layer fails; DurationMs is
// stamped by the applier as the very last pipeline step.
type ToolResult struct {
	Success    bool        `json:"success"`
	Data       interface{} `json:"data,omitempty"`
	Error      *ToolError  `json:"error,omitempty"`
	DurationMs int64       `json:"duration_ms"`
}

// Failure builds a failed result with a stable code and message.
func Failure(code, format string, args ...interface{}) ToolResult {
	return ToolResult{
		Success: false,
		Error: &ToolError{
			Code:    code,
			Message: fmt.Sprintf(format, args...),
		},
	}
}
