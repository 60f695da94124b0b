package module

import (
	"fmt"
	"sync"

	stranderrors "github.com/strand-labs/strand/pkg/strand/v1/errors"
	"github.com/strand-labs/strand/pkg/strand/v1/plugin"
)

// StaticRegistry implements the plugin.Registry interface using a map built
// at startup. It provides thread-safe registration and retrieval of module
// factories and is the default registry used when no other is provided.
type StaticRegistry struct {
	factories map[string]plugin.ModuleFactory
	mu        sync.RWMutex
}

// NewStaticRegistry creates a new, empty static registry. Modules must be
// registered using the Register method before they can be retrieved.
func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{
		factories: make(map[string]plugin.ModuleFactory),
	}
}

// Register associates a module type name with its factory function. It is
// typically called from a module package's init() or explicitly by the
// application wiring the registry. Empty names, nil factories and duplicates
// are rejected.
func (r *StaticRegistry) Register(name string, factory plugin.ModuleFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		return stranderrors.NewConfigError("module registration error: name cannot be empty", nil)
	}
	if factory == nil {
		return stranderrors.NewConfigError(fmt.Sprintf("module registration error for '%s': factory cannot be nil", name), nil)
	}
	if _, exists := r.factories[name]; exists {
		return stranderrors.NewConfigError(fmt.Sprintf("module registration error: duplicate module name '%s'", name), nil)
	}

	r.factories[name] = factory
	return nil
}

// Get retrieves the factory function for a given module type name, or a
// ModuleNotFoundError if the name is not registered.
func (r *StaticRegistry) Get(name string) (plugin.ModuleFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, exists := r.factories[name]
	if !exists {
		return nil, stranderrors.NewModuleNotFoundError(name)
	}
	return factory, nil
}

// List returns the names of all registered module types, unordered.
func (r *StaticRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

// --- Default Global Registry (for compile-time registration via init) ---

var (
	globalRegistry = NewStaticRegistry()

	_ plugin.Registry = (*StaticRegistry)(nil)
)

// Register globally associates a module type name with its factory function
// in the default global registry. This is the mechanism module packages use
// to self-register from their init() functions. It panics on registration
// errors (e.g., duplicate name) because init() runs early and such errors
// indicate a programming mistake that must be fixed.
func Register(name string, factory plugin.ModuleFactory) {
	if err := globalRegistry.Register(name, factory); err != nil {
		panic(fmt.Errorf("failed to register module '%s' globally: %w", name, err))
	}
}

// DefaultStaticRegistryGetter exposes the global static registry containing
// compile-time registered module types as the public plugin.Registry type.
var DefaultStaticRegistryGetter plugin.Registry = globalRegistry
