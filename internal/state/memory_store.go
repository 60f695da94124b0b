package state

import (
	"sync"
	"time"

	"github.com/strand-labs/strand/internal/util"
	"github.com/strand-labs/strand/pkg/strand/v1/attrs"
)

// MemoryStore implements Store with a map behind a sync.RWMutex. Reads
// return deep copies, so a cached entry can never be mutated through a
// reference a module held onto.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Entry

	// now is replaceable for expiry tests.
	now func() time.Time
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]Entry),
		now:  time.Now,
	}
}

// Get returns a deep copy of the live entry for key. An expired entry is
// evicted and reported as absent.
func (s *MemoryStore) Get(key string) ([]attrs.Pair, bool) {
	s.mu.RLock()
	e, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if e.Expired(s.now()) {
		s.mu.Lock()
		// Re-check under the write lock; another goroutine may have
		// replaced the entry meanwhile.
		if cur, still := s.data[key]; still && cur.Expired(s.now()) {
			delete(s.data, key)
		}
		s.mu.Unlock()
		return nil, false
	}
	return copyPairs(e.Pairs), true
}

// Set stores a deep copy of pairs under key.
func (s *MemoryStore) Set(key string, pairs []attrs.Pair, ttl time.Duration) {
	e := Entry{Pairs: copyPairs(pairs)}
	if ttl > 0 {
		e.ExpiresAt = s.now().Add(ttl)
	}
	s.mu.Lock()
	s.data[key] = e
	s.mu.Unlock()
}

// Delete removes the entry for key.
func (s *MemoryStore) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[key]
	delete(s.data, key)
	return ok
}

// Len counts live entries, skipping ones that have expired but not yet been
// evicted.
func (s *MemoryStore) Len() int {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.data {
		if !e.Expired(now) {
			n++
		}
	}
	return n
}

// Close is a no-op; the store holds no external resources.
func (s *MemoryStore) Close() error { return nil }

func copyPairs(pairs []attrs.Pair) []attrs.Pair {
	out := make([]attrs.Pair, len(pairs))
	for i, p := range pairs {
		out[i] = attrs.Pair{Name: p.Name, Value: util.DeepCopy(p.Value)}
	}
	return out
}

var _ Store = (*MemoryStore)(nil)
