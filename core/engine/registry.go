package engine

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the integrations known to this process, keyed by source
// name. The process entry point registers integrations at startup; the CLI
// and HTTP surfaces look them up by name.
type Registry struct {
	mu           sync.RWMutex
	integrations map[string]Integration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{integrations: make(map[string]Integration)}
}

// Register adds an integration. Registering the same source twice is an
// error, as is an integration missing any collaborator.
func (r *Registry) Register(integ Integration) error {
	if integ.Source == "" {
		return fmt.Errorf("integration requires a source name")
	}
	if integ.Fetch == nil || integ.Transform == nil || integ.Destination == nil {
		return fmt.Errorf("integration %q is missing collaborators", integ.Source)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.integrations[integ.Source]; exists {
		return fmt.Errorf("integration %q is already registered", integ.Source)
	}
	r.integrations[integ.Source] = integ
	return nil
}

// Get returns the integration registered for a source.
func (r *Registry) Get(source string) (Integration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	integ, ok := r.integrations[source]
	return integ, ok
}

// Names returns the registered source names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.integrations))
	for name := range r.integrations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
