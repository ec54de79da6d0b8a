package tsd

import (
	"context"
	"errors"
	"fmt"
)

// Stable error codes surfaced in ToolResult.Error.Code. Retry policies
// whitelist codes from this space plus whatever codes tools report
// themselves.
const (
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	CodeElevationRequired = "ELEVATION_REQUIRED"
	CodeValidationFailed  = "VALIDATION_FAILED"
	CodeTimeout           = "TIMEOUT"
	CodeInternal          = "INTERNAL_ERROR"
)

// CodedError is an error carrying a classifiable code. Tools and execute
// adapters return it so the retry loop can match failures against a
// policy's retryable set; errors without a code classify as internal.
type CodedError struct {
	Code    string
	Message string
}

func (e *CodedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ClassifyError maps a raised error to a stable code.
func ClassifyError(err error) string {
	var coded *CodedError
	if errors.As(err, &coded) && coded.Code != "" {
		return coded.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	return CodeInternal
}
