package executor

import (
	"slices"
	"sync"
)

// Registry maps task names to executors.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
	fallback  Executor
}

// NewRegistry creates a registry that resolves unknown names to fallback.
// A nil fallback is replaced with Sleep{Delay: DefaultDelay}.
func NewRegistry(fallback Executor) *Registry {
	if fallback == nil {
		fallback = Sleep{Delay: DefaultDelay}
	}
	return &Registry{
		executors: make(map[string]Executor),
		fallback:  fallback,
	}
}

// Register binds name to e, replacing any previous binding.
func (r *Registry) Register(name string, e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[name] = e
}

// Resolve returns the executor bound to name, or the fallback.
func (r *Registry) Resolve(name string) Executor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.executors[name]; ok {
		return e
	}
	return r.fallback
}

// Names returns the registered names sorted for a stable API response.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.executors))
	for name := range r.executors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
