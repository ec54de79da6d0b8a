package parser

import (
	"errors"
	"fmt"
)

// ErrMalformedToolCall is returned when an explicit tool-call tag carries a
// payload that is not valid JSON or lacks a tool name. This is a protocol
// violation by the model and aborts the whole extraction call.
var ErrMalformedToolCall = errors.New("malformed tool call")

// MalformedToolCallError identifies the exact tag text that failed to parse.
type MalformedToolCallError struct {
	RawTag string
	Reason string
}

func (e *MalformedToolCallError) Error() string {
	return fmt.Sprintf("malformed tool call: %s: %s", e.Reason, e.RawTag)
}

func (e *MalformedToolCallError) Unwrap() error {
	return ErrMalformedToolCall
}
