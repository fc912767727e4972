package handler

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the handlers available to the engine, keyed by job type.
// Registration happens at construction time; dispatch is read-only after
// that, so lookups take only a read lock.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler for its job type. Registering a second handler
// for the same type is an error: silently replacing the compute behind a
// priced job type is never what the caller wants.
func (r *Registry) Register(h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := h.Type()
	if key == "" {
		return fmt.Errorf("handler: empty job type")
	}
	if _, exists := r.handlers[key]; exists {
		return fmt.Errorf("handler: duplicate registration for job type %q", key)
	}
	r.handlers[key] = h
	return nil
}

// Get returns the handler for a job type.
func (r *Registry) Get(typeKey string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[typeKey]
	return h, ok
}

// Types returns the registered job type keys, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Count returns the number of registered handlers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}
