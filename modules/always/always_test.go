package always

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strand-labs/strand/pkg/strand/v1/plugin"
	"github.com/strand-labs/strand/pkg/strand/v1/rcode"
	"github.com/strand-labs/strand/pkg/strand/v1/request"
)

func TestReturnsConfiguredCode(t *testing.T) {
	m, err := New(map[string]interface{}{"rcode": "reject"})
	require.NoError(t, err)

	method := m.Methods()["authorize"]
	require.NotNil(t, method)

	code := method(context.Background(), &plugin.Call{Request: request.New()})
	assert.Equal(t, rcode.Reject, code)
}

func TestDefaultsToOK(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)

	code := m.Methods()["accounting"](context.Background(), &plugin.Call{Request: request.New()})
	assert.Equal(t, rcode.OK, code)
}

func TestRejectsUnknownCode(t *testing.T) {
	_, err := New(map[string]interface{}{"rcode": "bogus"})
	assert.Error(t, err)
}

func TestRejectsUnknownConfigKey(t *testing.T) {
	_, err := New(map[string]interface{}{"result": "ok"})
	assert.Error(t, err)
}
