package kvproc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strand-labs/strand/pkg/strand/v1/rcode"
	"github.com/strand-labs/strand/pkg/strand/v1/request"
)

func TestParsesLinesAndCommas(t *testing.T) {
	p, err := New(nil)
	require.NoError(t, err)

	input := "Reply-Message = hello\nSession-Timeout=3600, Idle-Timeout = 600"
	assignments, code := p.Evaluate(context.Background(), request.New(), input)

	assert.Equal(t, rcode.Updated, code)
	require.Len(t, assignments, 3)
	assert.Equal(t, "Reply-Message", assignments[0].Ref.Name)
	assert.Equal(t, "hello", assignments[0].Value)
	assert.Equal(t, "reply", assignments[0].Ref.List)
	assert.Equal(t, "3600", assignments[1].Value)
}

func TestMalformedFragmentsAreSkipped(t *testing.T) {
	p, err := New(map[string]interface{}{"list": "control"})
	require.NoError(t, err)

	assignments, code := p.Evaluate(context.Background(), request.New(), "no-equals-here\nGroup = ops")
	assert.Equal(t, rcode.Updated, code)
	require.Len(t, assignments, 1)
	assert.Equal(t, "control", assignments[0].Ref.List)
}

func TestEmptyInputIsNoop(t *testing.T) {
	p, err := New(nil)
	require.NoError(t, err)

	assignments, code := p.Evaluate(context.Background(), request.New(), "   ")
	assert.Equal(t, rcode.Noop, code)
	assert.Empty(t, assignments)
}
