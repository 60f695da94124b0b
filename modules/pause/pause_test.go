package pause

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

func TestYieldsThenResumesWithConfiguredCode(t *testing.T) {
	m, err := New(map[string]interface{}{"rcode": "handled"})
	require.NoError(t, err)

	call := &plugin.Call{
		Request: request.New(),
		Thread:  m.NewThread(),
		Logger:  nopLogger{},
	}
	code := m.Methods()["authorize"](context.Background(), call)
	require.Equal(t, rcode.Yield, code)

	y := call.TakeYield()
	require.NotNil(t, y)
	assert.Equal(t, rcode.Handled, y.Resume(context.Background(), call, y.State))
}

func TestThreadCountsSuspensions(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)

	call := &plugin.Call{Request: request.New(), Thread: m.NewThread(), Logger: nopLogger{}}
	run := m.Methods()["authenticate"]
	run(context.Background(), call)
	call.TakeYield()
	run(context.Background(), call)

	assert.Equal(t, 2, call.Thread.(*thread).suspensions)
}

func TestRejectsUnknownCode(t *testing.T) {
	_, err := New(map[string]interface{}{"rcode": "maybe"})
	assert.Error(t, err)
}
