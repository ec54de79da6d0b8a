package tsd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Store holds task-specific definitions keyed by tool name. Definitions
// come from a configuration directory with one JSON document per tool;
// malformed documents are skipped by the loader with a warning, never
// surfaced to the applier.
type Store struct {
	mu     sync.RWMutex
	defs   map[string]*Definition
	dir    string
	logger zerolog.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewStore creates an empty store.
func NewStore(logger zerolog.Logger) *Store {
	return &Store{
		defs:   make(map[string]*Definition),
		logger: logger.With().Str("component", "tsd_store").Logger(),
	}
}

// LoadDir creates a store populated from a configuration directory. A
// missing directory yields an empty store; individual unreadable or
// malformed files are skipped.
func LoadDir(dir string, logger zerolog.Logger) (*Store, error) {
	s := NewStore(logger)
	s.dir = dir

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		s.logger.Info().Str("dir", dir).Msg("TSD directory does not exist, starting empty")
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read TSD directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		s.loadFile(filepath.Join(dir, entry.Name()))
	}

	s.logger.Info().Str("dir", dir).Int("definitions", s.Len()).Msg("TSD definitions loaded")
	return s, nil
}

// Get returns the definition for a tool, or nil when the tool has no
// policy.
func (s *Store) Get(toolName string) *Definition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defs[toolName]
}

// Set installs or replaces a definition.
func (s *Store) Set(def *Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs[def.ToolName] = def
	return nil
}

// Len returns the number of loaded definitions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.defs)
}

// ToolNames returns the tools that carry a definition.
func (s *Store) ToolNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.defs))
	for name := range s.defs {
		names = append(names, name)
	}
	return names
}

// Watch hot-reloads definitions when files in the configuration directory
// change. It is a no-op for stores not loaded from a directory.
func (s *Store) Watch() error {
	if s.dir == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch TSD directory: %w", err)
	}

	s.watcher = watcher
	s.done = make(chan struct{})

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !strings.HasSuffix(event.Name, ".json") {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					s.loadFile(event.Name)
				}
				if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
					s.remove(event.Name)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn().Err(err).Msg("TSD watcher error")
			case <-s.done:
				return
			}
		}
	}()

	s.logger.Info().Str("dir", s.dir).Msg("Watching TSD directory for changes")
	return nil
}

// Close stops the watcher.
func (s *Store) Close() error {
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// loadFile reads one definition document. The tool name defaults to the
// file's base name when the document omits it.
func (s *Store) loadFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		s.logger.Warn().Str("file", path).Err(err).Msg("Skipping unreadable TSD file")
		return
	}

	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		s.logger.Warn().Str("file", path).Err(err).Msg("Skipping malformed TSD file")
		return
	}
	if def.ToolName == "" {
		def.ToolName = strings.TrimSuffix(filepath.Base(path), ".json")
	}
	if err := def.Validate(); err != nil {
		s.logger.Warn().Str("file", path).Err(err).Msg("Skipping invalid TSD definition")
		return
	}

	s.mu.Lock()
	s.defs[def.ToolName] = &def
	s.mu.Unlock()

	s.logger.Debug().Str("tool", def.ToolName).Msg("TSD definition loaded")
}

func (s *Store) remove(path string) {
	toolName := strings.TrimSuffix(filepath.Base(path), ".json")
	s.mu.Lock()
	_, existed := s.defs[toolName]
	delete(s.defs, toolName)
	s.mu.Unlock()
	if existed {
		s.logger.Debug().Str("tool", toolName).Msg("TSD definition removed")
	}
}
