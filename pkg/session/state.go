package session

import (
	"sort"
	"sync"
)

// State is a session's key/value store. Widgets write their current value
// under their key, and the params registry keeps its table here.
// State is safe for concurrent use.
type State struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewState returns an empty state.
func NewState() *State {
	return &State{values: make(map[string]any)}
}

// Contains reports whether name is set.
func (s *State) Contains(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.values[name]
	return ok
}

// Get returns the value stored under name, or nil.
func (s *State) Get(name string) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[name]
}

// Set stores value under name.
func (s *State) Set(name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = value
}

// Delete removes name. Deleting a missing name is a no-op.
func (s *State) Delete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, name)
}

// Keys returns the stored names in sorted order.
func (s *State) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of stored names.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}
