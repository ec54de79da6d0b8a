package tsd

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	rateLimitWindowMs = 1000

	defaultCleanupInterval = time.Minute
	defaultMaxEntries      = 1024
)

// rateLimitState is the per-tool sliding window. Entries never hold
// timestamps older than the current window after a prune. deleted marks
// a state the sweep removed from the table, so a caller that fetched the
// pointer before the sweep does not record into a dead entry.
type rateLimitState struct {
	mu          sync.Mutex
	timestamps  []int64
	lastCleanup int64
	deleted     bool
}

// RateLimiter is a bounded table of per-tool sliding one-second windows,
// owned by the applier. Entries are created lazily on a tool's first call;
// a sweep runs at most once per cleanup interval and drops stale entries,
// then evicts the entries with the oldest cleanup stamps while the table is
// over capacity. Per-entry mutation holds only that entry's lock, so
// unrelated tools do not serialize on each other.
type RateLimiter struct {
	mu              sync.Mutex
	states          map[string]*rateLimitState
	maxEntries      int
	cleanupInterval time.Duration
	lastSweep       int64
	logger          zerolog.Logger
	now             func() time.Time
}

// NewRateLimiter creates a rate limiter with the default capacity and
// cleanup interval.
func NewRateLimiter(logger zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		states:          make(map[string]*rateLimitState),
		maxEntries:      defaultMaxEntries,
		cleanupInterval: defaultCleanupInterval,
		logger:          logger.With().Str("component", "rate_limiter").Logger(),
		now:             time.Now,
	}
}

// Allow checks the tool's sliding window against cfg and records the call
// when it fits. A rejected attempt is not recorded, so a burst of denials
// does not extend the window.
func (rl *RateLimiter) Allow(toolName string, cfg RateLimitConfig) bool {
	nowMs := rl.now().UnixMilli()

	for {
		rl.mu.Lock()
		rl.maybeSweep(nowMs)
		state, exists := rl.states[toolName]
		if !exists {
			state = &rateLimitState{}
			rl.states[toolName] = state
		}
		rl.mu.Unlock()

		state.mu.Lock()
		if state.deleted {
			// The sweep removed this entry between the table lookup and
			// the state lock; retry against the live table.
			state.mu.Unlock()
			continue
		}

		windowStart := nowMs - rateLimitWindowMs
		valid := state.timestamps[:0]
		for _, ts := range state.timestamps {
			if ts > windowStart {
				valid = append(valid, ts)
			}
		}
		state.timestamps = valid
		state.lastCleanup = nowMs

		if len(state.timestamps) >= cfg.MaxCallsPerSecond+cfg.BurstAllowance {
			state.mu.Unlock()
			return false
		}

		state.timestamps = append(state.timestamps, nowMs)
		state.mu.Unlock()
		return true
	}
}

// Len returns the number of tracked tools.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.states)
}

// maybeSweep runs the table sweep at most once per cleanup interval.
// Callers hold rl.mu.
func (rl *RateLimiter) maybeSweep(nowMs int64) {
	if nowMs-rl.lastSweep < rl.cleanupInterval.Milliseconds() {
		return
	}
	rl.lastSweep = nowMs

	// Drop tools with no calls within the cleanup interval.
	for name, state := range rl.states {
		state.mu.Lock()
		stale := len(state.timestamps) == 0 ||
			nowMs-state.timestamps[len(state.timestamps)-1] > rl.cleanupInterval.Milliseconds()
		if stale {
			state.deleted = true
			delete(rl.states, name)
		}
		state.mu.Unlock()
	}

	// Still over capacity: evict oldest-cleanup entries first.
	if len(rl.states) > rl.maxEntries {
		type entry struct {
			name        string
			lastCleanup int64
		}
		entries := make([]entry, 0, len(rl.states))
		for name, state := range rl.states {
			state.mu.Lock()
			entries = append(entries, entry{name: name, lastCleanup: state.lastCleanup})
			state.mu.Unlock()
		}
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].lastCleanup < entries[j].lastCleanup
		})
		for _, e := range entries {
			if len(rl.states) <= rl.maxEntries {
				break
			}
			state := rl.states[e.name]
			state.mu.Lock()
			state.deleted = true
			state.mu.Unlock()
			delete(rl.states, e.name)
		}
		rl.logger.Debug().
			Int("entries", len(rl.states)).
			Msg("Rate limit table evicted to capacity")
	}
}
