package tsd

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// PreHook runs before tool execution; its return value replaces the
// invocation arguments for all later pipeline steps.
type PreHook func(ctx context.Context, toolName string, args map[string]interface{}, session Session) (map[string]interface{}, error)

// PostHook runs after the pipeline produced a result; its return value
// replaces that result.
type PostHook func(ctx context.Context, toolName string, args map[string]interface{}, result ToolResult, session Session) (ToolResult, error)

// HookRegistry maps hook names to in-process hook functions. Definitions
// refer to hooks by name; a definition naming an unregistered hook is
// logged and skipped.
type HookRegistry struct {
	mu     sync.RWMutex
	pre    map[string]PreHook
	post   map[string]PostHook
	logger zerolog.Logger
}

// NewHookRegistry creates an empty hook registry.
func NewHookRegistry(logger zerolog.Logger) *HookRegistry {
	return &HookRegistry{
		pre:    make(map[string]PreHook),
		post:   make(map[string]PostHook),
		logger: logger.With().Str("component", "hooks").Logger(),
	}
}

// RegisterPre installs a named pre-execution hook.
func (h *HookRegistry) RegisterPre(name string, hook PreHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pre[name] = hook
	h.logger.Debug().Str("hook", name).Msg("Pre-hook registered")
}

// RegisterPost installs a named post-execution hook.
func (h *HookRegistry) RegisterPost(name string, hook PostHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.post[name] = hook
	h.logger.Debug().Str("hook", name).Msg("Post-hook registered")
}

// Pre looks up a pre-hook by name.
func (h *HookRegistry) Pre(name string) (PreHook, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	hook, ok := h.pre[name]
	return hook, ok
}

// Post looks up a post-hook by name.
func (h *HookRegistry) Post(name string) (PostHook, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	hook, ok := h.post[name]
	return hook, ok
}
