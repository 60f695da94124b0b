package exec

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strand-labs/strand/internal/command"
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

type fakeRunner struct {
	exitCode int
	err      error
	gotEnv   []string
}

func (f *fakeRunner) Run(ctx context.Context, program string, args, env []string) (*command.Result, error) {
	f.gotEnv = env
	if f.err != nil {
		return nil, f.err
	}
	return &command.Result{ExitCode: f.exitCode}, nil
}

func newExec(t *testing.T, config map[string]interface{}, runner command.Runner) *Module {
	t.Helper()
	if config == nil {
		config = map[string]interface{}{}
	}
	if _, ok := config["program"]; !ok {
		config["program"] = "/usr/bin/true"
	}
	m, err := New(config)
	require.NoError(t, err)
	em := m.(*Module)
	em.runner = runner
	return em
}

func call(req *request.Request) *plugin.Call {
	return &plugin.Call{Request: req, Logger: nopLogger{}}
}

func TestExitCodeMapping(t *testing.T) {
	cases := []struct {
		exit int
		want rcode.Code
	}{
		{0, rcode.OK},
		{1, rcode.Reject},
		{4, rcode.Handled},
		{7, rcode.NotFound},
		{9, rcode.Updated},
	}
	for _, tc := range cases {
		m := newExec(t, nil, &fakeRunner{exitCode: tc.exit})
		code := m.run(context.Background(), call(request.New()))
		assert.Equal(t, tc.want, code, "exit %d", tc.exit)
	}
}

func TestUnmappedExitStatusFails(t *testing.T) {
	m := newExec(t, nil, &fakeRunner{exitCode: 42})
	assert.Equal(t, rcode.Fail, m.run(context.Background(), call(request.New())))
}

func TestRunErrorFails(t *testing.T) {
	m := newExec(t, nil, &fakeRunner{err: errors.New("no such file")})
	assert.Equal(t, rcode.Fail, m.run(context.Background(), call(request.New())))
}

func TestExportsRequestAttributes(t *testing.T) {
	runner := &fakeRunner{}
	m := newExec(t, map[string]interface{}{
		"env_attributes": []interface{}{"User-Name", "Calling-Station-Id"},
	}, runner)

	req := request.New()
	req.Packet.Add("User-Name", "alice")
	m.run(context.Background(), call(req))

	var found bool
	for _, e := range runner.gotEnv {
		if strings.HasPrefix(e, "STRAND_USER_NAME=") {
			found = true
			assert.Equal(t, "STRAND_USER_NAME=alice", e)
		}
		assert.False(t, strings.HasPrefix(e, "STRAND_CALLING_STATION_ID="), "absent attribute must not be exported")
	}
	assert.True(t, found)
}

func TestConfigRequiresProgram(t *testing.T) {
	_, err := New(map[string]interface{}{"args": []interface{}{"-v"}})
	assert.Error(t, err)
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "USER_NAME", envName("User-Name"))
	assert.Equal(t, "NAS_IP_ADDRESS", envName("NAS-IP-Address"))
}
