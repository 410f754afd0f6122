package agent

import (
	"fmt"
	"sort"
	"sync"
)

// Constructor builds a fresh agent instance. Constructors typically close
// over their dependencies (providers, stores) at wiring time.
type Constructor func() (Agent, error)

// Registry maps stable agent type keys to constructors. The orchestrator
// resolves collaborators from here when they are not injected explicitly.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

// Register adds a constructor under a type key. Registering the same key
// twice is an error.
func (r *Registry) Register(key string, ctor Constructor) error {
	if key == "" {
		return fmt.Errorf("agent type key must not be empty")
	}
	if ctor == nil {
		return fmt.Errorf("agent type %q: constructor must not be nil", key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.constructors[key]; exists {
		return fmt.Errorf("agent type %q already registered", key)
	}
	r.constructors[key] = ctor
	return nil
}

// Resolve constructs a fresh agent for the type key.
func (r *Registry) Resolve(key string) (Agent, error) {
	r.mu.RLock()
	ctor, exists := r.constructors[key]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("agent type %q not registered", key)
	}
	return ctor()
}

// Keys returns the registered type keys, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.constructors))
	for k := range r.constructors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the process-wide registry used by production
// wiring. Tests construct their own registries or inject agents directly.
func DefaultRegistry() *Registry {
	return defaultRegistry
}
