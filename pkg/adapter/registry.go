package adapter

import (
	"fmt"
	"sync"
)

// Registry maps a provider name to a Constructor, and caches the
// resulting Adapter instances by (provider, model) so repeated lookups
// for the same pair amortize client setup (spec.md §4.4: "adapters are
// cached by (provider, model) to amortize client setup").
type Registry struct {
	mu           sync.Mutex
	constructors map[string]Constructor
	cache        map[string]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		constructors: make(map[string]Constructor),
		cache:        make(map[string]Adapter),
	}
}

// Register installs a Constructor under provider.
func (r *Registry) Register(provider string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[provider] = ctor
}

func cacheKey(provider, model string) string { return provider + "::" + model }

// Get returns a cached Adapter for (provider, model), constructing and
// caching one on first use.
func (r *Registry) Get(provider, model string) (Adapter, error) {
	key := cacheKey(provider, model)

	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.cache[key]; ok {
		return a, nil
	}

	ctor, ok := r.constructors[provider]
	if !ok {
		return nil, fmt.Errorf("adapter: no constructor registered for provider %q", provider)
	}
	a, err := ctor(model)
	if err != nil {
		return nil, fmt.Errorf("adapter: construct %s/%s: %w", provider, model, err)
	}
	r.cache[key] = a
	return a, nil
}
