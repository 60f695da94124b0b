package secrets

import (
	"strings"
	"sync"
)

// Tracker records the secret values resolved while compiling one policy
// document. Redaction consults it before attribute values reach logs or the
// event bus.
type Tracker struct {
	mu       sync.RWMutex
	resolved map[string]struct{}
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{resolved: make(map[string]struct{})}
}

// Add records a resolved secret value. Empty strings are ignored.
func (t *Tracker) Add(value string) {
	if value == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resolved[value] = struct{}{}
}

// IsTracked reports whether value exactly matches a resolved secret.
func (t *Tracker) IsTracked(value string) bool {
	if value == "" {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, found := t.resolved[value]
	return found
}

// ContainsTrackedSecret reports whether input embeds any resolved secret as
// a substring, catching secrets inside larger strings like connection URLs.
func (t *Tracker) ContainsTrackedSecret(input string) bool {
	if input == "" {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	for secret := range t.resolved {
		if strings.Contains(input, secret) {
			return true
		}
	}
	return false
}
