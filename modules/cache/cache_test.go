package cache

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	strandlog "github.com/strand-labs/strand/pkg/strand/v1/log"
	"github.com/strand-labs/strand/pkg/strand/v1/plugin"
	"github.com/strand-labs/strand/pkg/strand/v1/rcode"
	"github.com/strand-labs/strand/pkg/strand/v1/request"
)

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{})                              {}
func (nopLogger) Infof(string, ...interface{})                               {}
func (nopLogger) Warnf(string, ...interface{})                               {}
func (nopLogger) Errorf(string, ...interface{})                              {}
func (l nopLogger) With(...interface{}) strandlog.Logger                     { return l }
func (nopLogger) IsEnabled(slog.Level) bool                                  { return false }
func (nopLogger) Log(slog.Level, string, ...interface{})                     {}
func (nopLogger) LogCtx(context.Context, slog.Level, string, ...interface{}) {}

func newModule(t *testing.T) plugin.Module {
	t.Helper()
	m, err := New(map[string]interface{}{
		"key_attribute": "User-Name",
		"attributes":    []interface{}{"Reply-Message", "Session-Timeout"},
		"ttl_seconds":   60,
	})
	require.NoError(t, err)
	return m
}

func call(req *request.Request) *plugin.Call {
	return &plugin.Call{Request: req, Logger: nopLogger{}}
}

func TestLookupMissIsNoop(t *testing.T) {
	m := newModule(t)
	req := request.New()
	req.Packet.Add("User-Name", "alice")

	code := m.Methods()["authorize"](context.Background(), call(req))
	assert.Equal(t, rcode.Noop, code)
}

func TestStoreThenLookup(t *testing.T) {
	m := newModule(t)

	first := request.New()
	first.Packet.Add("User-Name", "alice")
	first.Reply.Add("Reply-Message", "welcome back")
	first.Reply.Add("Session-Timeout", 3600)
	code := m.Methods()["post-auth"](context.Background(), call(first))
	require.Equal(t, rcode.Updated, code)

	second := request.New()
	second.Packet.Add("User-Name", "alice")
	code = m.Methods()["authorize"](context.Background(), call(second))
	assert.Equal(t, rcode.Updated, code)

	v, ok := second.Reply.Get("Reply-Message")
	require.True(t, ok)
	assert.Equal(t, "welcome back", v)
}

func TestKeyAttributeAbsentIsNoop(t *testing.T) {
	m := newModule(t)
	code := m.Methods()["post-auth"](context.Background(), call(request.New()))
	assert.Equal(t, rcode.Noop, code)
}

func TestConfigRequiresKeyAttribute(t *testing.T) {
	_, err := New(map[string]interface{}{"attributes": []interface{}{"Reply-Message"}})
	assert.Error(t, err)
}
