// Package parser turns raw, possibly streamed, model output into structured
// tool invocations.
//
// Invariants:
// - A session's parsing mode is fixed at router construction.
// - An empty parse result means "plain assistant message", never an error.
// - Hybrid mode returns either embedding-sourced or text-sourced
//   invocations, never a merge of both.
// - A malformed embedding payload aborts the extraction call with an error
//   naming the offending tag.
//
// Usage:
//
//	router := parser.NewRouter(parser.ModeFromFlag(cfg.Parser.Embedding), logger)
//	router.SetKnownToolNames(registry.ListToolNames())
//	invocations, err := router.Parse(modelOutput)
package parser
