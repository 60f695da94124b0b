package module

import (
	"fmt"
	"sync"

	stranderrors "github.com/strand-labs/strand/pkg/strand/v1/errors"
	"github.com/strand-labs/strand/pkg/strand/v1/plugin"
)

// Instance is a configured module ready to be called from policy. The
// underlying plugin.Module is created once per configuration block and shared
// by all concurrent executions; the Instance caches its method table so
// lookup on the hot path is a single map read.
type Instance struct {
	name    string
	mod     plugin.Module
	methods map[string]plugin.Method
}

// NewInstance wraps an instantiated module under its configured instance
// name. The name may differ from the module type name when one type is
// configured multiple times.
func NewInstance(name string, mod plugin.Module) *Instance {
	return &Instance{
		name:    name,
		mod:     mod,
		methods: mod.Methods(),
	}
}

// Name returns the configured instance name.
func (i *Instance) Name() string {
	return i.name
}

// Method resolves a named entry point. A module called from a section it has
// no method for is a configuration error surfaced at compile time; this
// lookup backs that check and the call site.
func (i *Instance) Method(name string) (plugin.Method, error) {
	m, ok := i.methods[name]
	if !ok {
		return nil, stranderrors.NewValidationError(
			fmt.Sprintf("module '%s' has no method '%s'", i.name, name), nil)
	}
	return m, nil
}

// HasMethod reports whether the instance exposes the named entry point.
func (i *Instance) HasMethod(name string) bool {
	_, ok := i.methods[name]
	return ok
}

// NewThread returns a fresh per-execution handle from the underlying module,
// or nil if the module keeps no per-execution state.
func (i *Instance) NewThread() interface{} {
	return i.mod.NewThread()
}

// Set holds the instantiated modules of one interpreter, keyed by instance
// name. It is populated during configuration and read-only afterwards, but
// registration is locked so tests can build sets concurrently.
type Set struct {
	mu        sync.RWMutex
	instances map[string]*Instance
}

// NewSet creates an empty instance set.
func NewSet() *Set {
	return &Set{instances: make(map[string]*Instance)}
}

// Add registers an instance under its name, rejecting duplicates.
func (s *Set) Add(inst *Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if inst == nil {
		return stranderrors.NewConfigError("cannot add nil module instance", nil)
	}
	if _, exists := s.instances[inst.Name()]; exists {
		return stranderrors.NewConfigError(
			fmt.Sprintf("duplicate module instance name '%s'", inst.Name()), nil)
	}
	s.instances[inst.Name()] = inst
	return nil
}

// Get retrieves an instance by name, or a ModuleNotFoundError.
func (s *Set) Get(name string) (*Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instances[name]
	if !ok {
		return nil, stranderrors.NewModuleNotFoundError(name)
	}
	return inst, nil
}

// Names returns the instance names in the set, unordered.
func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.instances))
	for name := range s.instances {
		names = append(names, name)
	}
	return names
}
