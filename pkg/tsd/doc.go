// Package tsd applies task-specific definitions (per-tool operational
// policy) around raw tool execution.
//
// Invariants:
// - Apply always returns a ToolResult; policy failures become failed
//   results, never raised errors.
// - Rate-limit, elevation and validation failures are fatal for the call;
//   only whitelisted execution error codes are retried.
// - DurationMs covers the whole pipeline and is stamped last,
//   unconditionally.
// - The rate-limit table is bounded regardless of how many distinct tool
//   names are ever invoked.
//
// The elevation probe falls back to a permissive default on platforms
// where it is inapplicable. That default exists for development
// environments and is not a security boundary.
package tsd
