// Package handlers holds function slots: at most one responder per name.
package handlers

import (
	"log/slog"
	"sort"
	"sync"
)

// Slots maps a function name to its single responder. The last registration
// wins.
type Slots[F any] struct {
	mu     sync.RWMutex
	all    map[string]F
	logger *slog.Logger
}

// New creates an empty set of slots. A nil logger means slog.Default.
func New[F any](logger *slog.Logger) *Slots[F] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Slots[F]{
		all:    make(map[string]F),
		logger: logger,
	}
}

// Set installs fn as the responder for name. It reports whether a previous
// responder was replaced, and warns when it was.
func (s *Slots[F]) Set(name string, fn F) (replaced bool) {
	s.mu.Lock()
	_, replaced = s.all[name]
	s.all[name] = fn
	s.mu.Unlock()

	if replaced {
		s.logger.Warn("Responder replaced; the previous one will no longer be called.", "function", name)
	} else {
		s.logger.Debug("Registering responder.", "function", name)
	}
	return replaced
}

// Get returns the responder for name.
func (s *Slots[F]) Get(name string) (F, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn, ok := s.all[name]
	return fn, ok
}

// Remove clears the slot for name and reports whether it was set.
func (s *Slots[F]) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.all[name]; !ok {
		return false
	}
	delete(s.all, name)
	return true
}

// Names returns the names of all filled slots, sorted.
func (s *Slots[F]) Names() []string {
	s.mu.RLock()
	names := make([]string, 0, len(s.all))
	for name := range s.all {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)
	return names
}
