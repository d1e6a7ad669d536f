package registry

import (
	"fmt"
	"sync"
)

// Table selects one of the two handler-set tables a registry owns.
type Table int

const (
	// Primary handlers run first for every dispatch of a handle.
	Primary Table = iota
	// Post handlers run after every primary handler of the same dispatch.
	Post

	tableCount = 2
)

// String returns a human-readable table name.
func (t Table) String() string {
	switch t {
	case Primary:
		return "primary"
	case Post:
		return "post"
	default:
		return fmt.Sprintf("table(%d)", int(t))
	}
}

func (t Table) valid() bool {
	return t >= 0 && t < tableCount
}

// ID identifies one registration. IDs are handed out by a single registry in
// strictly increasing order and are never reused.
type ID uint64

// handlerSet keeps the handlers of one handle. order holds ids in
// registration order and may contain ids that were removed since; live is the
// source of truth.
type handlerSet[H any] struct {
	order []ID
	live  map[ID]H
}

func (s *handlerSet[H]) compact() {
	kept := s.order[:0]
	for _, id := range s.order {
		if _, ok := s.live[id]; ok {
			kept = append(kept, id)
		}
	}
	clear(s.order[len(kept):])
	s.order = kept
}

// Registry stores handler sets keyed by handle in two tables. It is safe for
// concurrent use; Handlers returns snapshots so callers may iterate while
// other goroutines (or the handlers themselves) register and unregister.
type Registry[K comparable, H any] struct {
	mu     sync.RWMutex
	nextID ID
	tables [tableCount]map[K]*handlerSet[H]
}

// New creates an empty registry.
func New[K comparable, H any]() *Registry[K, H] {
	r := &Registry[K, H]{}
	for i := range r.tables {
		r.tables[i] = make(map[K]*handlerSet[H])
	}
	return r
}

// Register appends handler to the set of handle in table t and returns the
// id of the new registration.
func (r *Registry[K, H]) Register(t Table, handle K, handler H) ID {
	if !t.valid() {
		panic(fmt.Sprintf("registry: unknown table %s", t))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID

	set, ok := r.tables[t][handle]
	if !ok {
		set = &handlerSet[H]{live: make(map[ID]H)}
		r.tables[t][handle] = set
	}
	set.order = append(set.order, id)
	set.live[id] = handler
	return id
}

// Unregister removes the registration id from the set of handle in table t.
// It reports whether the registration existed.
func (r *Registry[K, H]) Unregister(t Table, handle K, id ID) bool {
	if !t.valid() {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.tables[t][handle]
	if !ok {
		return false
	}
	if _, ok := set.live[id]; !ok {
		return false
	}
	delete(set.live, id)

	if len(set.live) == 0 {
		delete(r.tables[t], handle)
		return true
	}
	if len(set.order) > 2*len(set.live)+8 {
		set.compact()
	}
	return true
}

// Handlers returns the handlers registered for handle in table t, ordered by
// registration. The returned slice is a copy owned by the caller.
func (r *Registry[K, H]) Handlers(t Table, handle K) []H {
	if !t.valid() {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.tables[t][handle]
	if !ok {
		return nil
	}
	out := make([]H, 0, len(set.live))
	for _, id := range set.order {
		if h, ok := set.live[id]; ok {
			out = append(out, h)
		}
	}
	return out
}

// Contains reports whether registration id is still present.
func (r *Registry[K, H]) Contains(t Table, handle K, id ID) bool {
	if !t.valid() {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.tables[t][handle]
	if !ok {
		return false
	}
	_, ok = set.live[id]
	return ok
}

// Count returns the number of live registrations for handle in table t.
func (r *Registry[K, H]) Count(t Table, handle K) int {
	if !t.valid() {
		return 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if set, ok := r.tables[t][handle]; ok {
		return len(set.live)
	}
	return 0
}

// Len returns the number of live registrations across both tables.
func (r *Registry[K, H]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, table := range r.tables {
		for _, set := range table {
			n += len(set.live)
		}
	}
	return n
}

// Handles returns every handle with at least one registration in table t.
// The order is unspecified.
func (r *Registry[K, H]) Handles(t Table) []K {
	if !t.valid() {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]K, 0, len(r.tables[t]))
	for handle := range r.tables[t] {
		out = append(out, handle)
	}
	return out
}

// Clear drops every registration. IDs keep increasing afterwards.
func (r *Registry[K, H]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.tables {
		r.tables[i] = make(map[K]*handlerSet[H])
	}
}
