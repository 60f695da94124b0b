// Package mapproc holds the internal registry for map processors, the
// plugins behind map nodes in policy.
package mapproc

import (
	"fmt"
	"sync"

	stranderrors "github.com/strand-labs/strand/pkg/strand/v1/errors"
	"github.com/strand-labs/strand/pkg/strand/v1/mapproc"
)

// StaticRegistry implements the mapproc.Registry interface using a map built
// at startup, mirroring the module registry.
type StaticRegistry struct {
	factories map[string]mapproc.ProcessorFactory
	mu        sync.RWMutex
}

// NewStaticRegistry creates a new, empty processor registry.
func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{
		factories: make(map[string]mapproc.ProcessorFactory),
	}
}

// Register associates a processor name with its factory. Empty names, nil
// factories and duplicates are rejected.
func (r *StaticRegistry) Register(name string, factory mapproc.ProcessorFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		return stranderrors.NewConfigError("map processor registration error: name cannot be empty", nil)
	}
	if factory == nil {
		return stranderrors.NewConfigError(fmt.Sprintf("map processor registration error for '%s': factory cannot be nil", name), nil)
	}
	if _, exists := r.factories[name]; exists {
		return stranderrors.NewConfigError(fmt.Sprintf("map processor registration error: duplicate name '%s'", name), nil)
	}

	r.factories[name] = factory
	return nil
}

// Get retrieves the factory for a given processor name, or a
// ModuleNotFoundError if unregistered.
func (r *StaticRegistry) Get(name string) (mapproc.ProcessorFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, exists := r.factories[name]
	if !exists {
		return nil, stranderrors.NewModuleNotFoundError(name)
	}
	return factory, nil
}

// List returns the names of all registered processors, unordered.
func (r *StaticRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

var (
	globalRegistry = NewStaticRegistry()

	_ mapproc.Registry = (*StaticRegistry)(nil)
)

// Register adds a processor factory to the default global registry, panicking
// on error for the same reason module registration does.
func Register(name string, factory mapproc.ProcessorFactory) {
	if err := globalRegistry.Register(name, factory); err != nil {
		panic(fmt.Errorf("failed to register map processor '%s' globally: %w", name, err))
	}
}

// DefaultStaticRegistryGetter exposes the global processor registry.
var DefaultStaticRegistryGetter mapproc.Registry = globalRegistry
