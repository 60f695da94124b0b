package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strand-labs/strand/pkg/strand/v1/attrs"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	s.Set("alice", []attrs.Pair{{Name: "Group", Value: "admin"}}, 0)

	got, ok := s.Get("alice")
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "admin", got[0].Value)

	_, ok = s.Get("bob")
	assert.False(t, ok)
}

func TestMemoryStoreReadsAreCopies(t *testing.T) {
	s := NewMemoryStore()
	s.Set("k", []attrs.Pair{{Name: "Tags", Value: []interface{}{"a"}}}, 0)

	got, _ := s.Get("k")
	got[0].Value.([]interface{})[0] = "mutated"

	again, _ := s.Get("k")
	assert.Equal(t, "a", again[0].Value.([]interface{})[0])
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now()
	s.now = func() time.Time { return now }

	s.Set("k", []attrs.Pair{{Name: "Group", Value: "ops"}}, time.Minute)
	_, ok := s.Get("k")
	assert.True(t, ok)
	assert.Equal(t, 1, s.Len())

	now = now.Add(2 * time.Minute)
	_, ok = s.Get("k")
	assert.False(t, ok, "expired entry must be invisible")
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStoreDelete(t *testing.T) {
	s := NewMemoryStore()
	s.Set("k", nil, 0)

	assert.True(t, s.Delete("k"))
	assert.False(t, s.Delete("k"))
}
