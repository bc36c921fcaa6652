package provider

import (
	"fmt"
	"sync"
	"time"
)

// Factory builds a concrete executor for a provider. Registries use one
// factory per provider so construction stays lazy and testable.
type Factory func() (Executor, error)

// Registry hands out executors, constructing each provider on first use
// and caching the instance for the process lifetime. Executors carry no
// per-call state, so a single instance is reused across requests with no
// explicit teardown.
type Registry struct {
	mu        sync.Mutex
	factories map[Name]Factory
	cache     map[Name]Executor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[Name]Factory),
		cache:     make(map[Name]Executor),
	}
}

// Register installs the factory for a provider, replacing any previous one
// and dropping a cached instance built from it.
func (r *Registry) Register(name Name, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
	delete(r.cache, name)
}

// Get returns the cached executor for the provider, constructing it on
// first use.
func (r *Registry) Get(name Name) (Executor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if exec, ok := r.cache[name]; ok {
		return exec, nil
	}
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("provider %s not configured", name)
	}
	exec, err := factory()
	if err != nil {
		return nil, fmt.Errorf("construct %s provider: %w", name, err)
	}
	r.cache[name] = exec
	return exec, nil
}

// Configured lists providers with a registered factory.
func (r *Registry) Configured() []Name {
	r.mu.Lock()
	defer r.mu.Unlock()
	var names []Name
	for _, n := range Names() {
		if _, ok := r.factories[n]; ok {
			names = append(names, n)
		}
	}
	return names
}

// DefaultRequestTimeout bounds a single upstream generation call.
const DefaultRequestTimeout = 60 * time.Second

// GeminiRequestTimeout is longer; Gemini may need more time for generation.
const GeminiRequestTimeout = 120 * time.Second
