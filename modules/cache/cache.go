// Package cache provides a module that remembers reply attributes between
// requests. A hit during authorize copies the cached pairs into the reply; a
// store during post-auth captures them for the configured lifetime.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/strand-labs/strand/internal/module"
	"github.com/strand-labs/strand/internal/paramutil"
	"github.com/strand-labs/strand/internal/state"
	"github.com/strand-labs/strand/pkg/strand/v1/attrs"
	"github.com/strand-labs/strand/pkg/strand/v1/plugin"
	"github.com/strand-labs/strand/pkg/strand/v1/rcode"
)

func init() {
	module.Register("cache", New)
}

// Module caches attribute sets keyed by one request attribute.
type Module struct {
	keyAttr    string
	attributes []string
	ttl        time.Duration
	store      state.Store
}

// New creates a cache module. Config:
//
//	key_attribute: request attribute whose value keys entries (required)
//	attributes:    reply attribute names to cache (required)
//	ttl_seconds:   entry lifetime, 0 for no expiry (default 0)
func New(config map[string]interface{}) (plugin.Module, error) {
	if err := paramutil.CheckAllowed(config, []string{"key_attribute", "attributes", "ttl_seconds"}); err != nil {
		return nil, err
	}
	if err := paramutil.CheckRequired(config, []string{"key_attribute", "attributes"}); err != nil {
		return nil, err
	}
	keyAttr, err := paramutil.GetRequiredString(config, "key_attribute")
	if err != nil {
		return nil, err
	}
	attributes, _, err := paramutil.GetOptionalStringSlice(config, "attributes")
	if err != nil {
		return nil, err
	}
	if len(attributes) == 0 {
		return nil, fmt.Errorf("cache: 'attributes' must name at least one attribute")
	}
	ttlSecs, _, err := paramutil.GetOptionalInt(config, "ttl_seconds")
	if err != nil {
		return nil, err
	}
	if ttlSecs < 0 {
		return nil, fmt.Errorf("cache: 'ttl_seconds' cannot be negative")
	}

	return &Module{
		keyAttr:    keyAttr,
		attributes: attributes,
		ttl:        time.Duration(ttlSecs) * time.Second,
		store:      state.NewMemoryStore(),
	}, nil
}

func (m *Module) Name() string { return "cache" }

func (m *Module) Methods() map[string]plugin.Method {
	return map[string]plugin.Method{
		"authorize": m.lookup,
		"post-auth": m.save,
	}
}

func (m *Module) NewThread() interface{} { return nil }

// lookup copies a cached entry's pairs into the reply.
func (m *Module) lookup(ctx context.Context, call *plugin.Call) rcode.Code {
	key, ok := m.key(call)
	if !ok {
		return rcode.Noop
	}
	pairs, hit := m.store.Get(key)
	if !hit {
		call.Logger.Debugf("cache: miss for key %q", key)
		return rcode.Noop
	}
	for _, p := range pairs {
		call.Request.Reply.Set(p.Name, p.Value)
	}
	call.Logger.Debugf("cache: hit for key %q (%d pairs)", key, len(pairs))
	return rcode.Updated
}

// save captures the configured reply attributes under the request's key.
func (m *Module) save(ctx context.Context, call *plugin.Call) rcode.Code {
	key, ok := m.key(call)
	if !ok {
		return rcode.Noop
	}
	var pairs []attrs.Pair
	for _, name := range m.attributes {
		pairs = append(pairs, call.Request.Reply.GetAll(name)...)
	}
	if len(pairs) == 0 {
		return rcode.Noop
	}
	m.store.Set(key, pairs, m.ttl)
	call.Logger.Debugf("cache: stored %d pairs for key %q", len(pairs), key)
	return rcode.Updated
}

func (m *Module) key(call *plugin.Call) (string, bool) {
	v, ok := call.Request.Packet.Get(m.keyAttr)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%v", v), true
}
