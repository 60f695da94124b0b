// Package state provides the volatile entry store behind the cache module:
// attribute sets keyed by an expanded string, each with its own expiry.
package state

import (
	"time"

	"github.com/strand-labs/strand/pkg/strand/v1/attrs"
)

// Entry is one cached attribute set.
type Entry struct {
	Pairs     []attrs.Pair
	ExpiresAt time.Time
}

// Expired reports whether the entry is past its lifetime at the given time.
// A zero ExpiresAt never expires.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// Store is the contract the cache module works against. Implementations must
// be safe for concurrent use; executions on different goroutines share one
// store.
type Store interface {
	// Get returns a deep copy of the entry for key, or false if absent or
	// expired. Expired entries are evicted on read.
	Get(key string) ([]attrs.Pair, bool)

	// Set stores pairs under key with the given lifetime. A zero ttl means
	// the entry never expires.
	Set(key string, pairs []attrs.Pair, ttl time.Duration)

	// Delete removes the entry for key, reporting whether it existed.
	Delete(key string) bool

	// Len returns the number of live entries.
	Len() int

	// Close releases any resources held by the store.
	Close() error
}
