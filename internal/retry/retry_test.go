package retry

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	strandlog "github.com/strand-labs/strand/pkg/strand/v1/log"
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

func TestSucceedsAfterTransientFailures(t *testing.T) {
	h := NewHelper(nopLogger{})
	calls := 0
	err := h.Do(context.Background(), Config{Attempts: 3, Delay: time.Millisecond}, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestReturnsLastErrorWhenExhausted(t *testing.T) {
	h := NewHelper(nopLogger{})
	wantErr := errors.New("still broken")
	calls := 0
	err := h.Do(context.Background(), Config{Attempts: 2, Delay: time.Millisecond}, func(context.Context) error {
		calls++
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 2, calls)
}

func TestStopsOnContextCancellation(t *testing.T) {
	h := NewHelper(nopLogger{})
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := h.Do(ctx, Config{Attempts: 5, Delay: time.Minute}, func(context.Context) error {
		calls++
		cancel()
		return errors.New("fail")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWaitBackoffAndCap(t *testing.T) {
	h := NewHelper(nopLogger{})
	cfg := Config{Delay: 10 * time.Millisecond, BackoffFactor: 2.0, MaxDelay: 25 * time.Millisecond}
	assert.Equal(t, 10*time.Millisecond, h.wait(cfg, 1))
	assert.Equal(t, 20*time.Millisecond, h.wait(cfg, 2))
	assert.Equal(t, 25*time.Millisecond, h.wait(cfg, 3))
}
