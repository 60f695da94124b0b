// Package exec provides a module that runs an external program and maps its
// exit status to a result code, following the conventional mapping where
// exit 0 is ok, 1 is reject and so on through 9 for updated.
package exec

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/strand-labs/strand/internal/command"
	"github.com/strand-labs/strand/internal/module"
	"github.com/strand-labs/strand/internal/paramutil"
	"github.com/strand-labs/strand/pkg/strand/v1/plugin"
	"github.com/strand-labs/strand/pkg/strand/v1/rcode"
)

func init() {
	module.Register("exec", New)
}

var sections = []string{
	"authorize", "authenticate", "preacct", "accounting", "post-auth",
}

// exitCodes maps an exit status to its result code. Statuses outside the
// table are failures.
var exitCodes = map[int]rcode.Code{
	0: rcode.OK,
	1: rcode.Reject,
	2: rcode.Fail,
	3: rcode.OK,
	4: rcode.Handled,
	5: rcode.Invalid,
	6: rcode.Disallow,
	7: rcode.NotFound,
	8: rcode.Noop,
	9: rcode.Updated,
}

// Module runs one external program per call. The program inherits selected
// request attributes through its environment.
type Module struct {
	program string
	args    []string
	envAttr []string
	timeout time.Duration
	runner  command.Runner
}

// New creates an exec module. Config:
//
//	program:         path of the program to run (required)
//	args:            argument list (default none)
//	env_attributes:  request attributes exported as STRAND_<NAME> (default none)
//	timeout_seconds: per-call deadline (default 10)
func New(config map[string]interface{}) (plugin.Module, error) {
	if err := paramutil.CheckAllowed(config, []string{"program", "args", "env_attributes", "timeout_seconds"}); err != nil {
		return nil, err
	}
	program, err := paramutil.GetRequiredString(config, "program")
	if err != nil {
		return nil, err
	}
	args, _, err := paramutil.GetOptionalStringSlice(config, "args")
	if err != nil {
		return nil, err
	}
	envAttr, _, err := paramutil.GetOptionalStringSlice(config, "env_attributes")
	if err != nil {
		return nil, err
	}
	timeoutSecs, ok, err := paramutil.GetOptionalInt(config, "timeout_seconds")
	if err != nil {
		return nil, err
	}
	if !ok {
		timeoutSecs = 10
	}
	if timeoutSecs <= 0 {
		return nil, fmt.Errorf("exec: 'timeout_seconds' must be positive")
	}

	return &Module{
		program: program,
		args:    args,
		envAttr: envAttr,
		timeout: time.Duration(timeoutSecs) * time.Second,
		runner:  command.NewRunner(),
	}, nil
}

func (m *Module) Name() string { return "exec" }

func (m *Module) Methods() map[string]plugin.Method {
	methods := make(map[string]plugin.Method, len(sections))
	for _, s := range sections {
		methods[s] = m.run
	}
	return methods
}

func (m *Module) NewThread() interface{} { return nil }

func (m *Module) run(ctx context.Context, call *plugin.Call) rcode.Code {
	runCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	env := os.Environ()
	for _, name := range m.envAttr {
		if v, ok := call.Request.Packet.Get(name); ok {
			env = append(env, fmt.Sprintf("STRAND_%s=%v", envName(name), v))
		}
	}

	res, err := m.runner.Run(runCtx, m.program, m.args, env)
	if err != nil {
		call.Logger.Errorf("exec: %s failed to run: %v", m.program, err)
		return rcode.Fail
	}
	if res.Stderr != "" {
		call.Logger.Warnf("exec: %s stderr: %s", m.program, res.Stderr)
	}

	code, ok := exitCodes[res.ExitCode]
	if !ok {
		call.Logger.Errorf("exec: %s exited with unmapped status %d", m.program, res.ExitCode)
		return rcode.Fail
	}
	call.Logger.Debugf("exec: %s exited %d (%s) in %v", m.program, res.ExitCode, code, res.Duration)
	return code
}

// envName converts an attribute name to environment variable form, e.g.
// User-Name becomes USER_NAME.
func envName(attr string) string {
	out := make([]byte, len(attr))
	for i := 0; i < len(attr); i++ {
		c := attr[i]
		switch {
		case c >= 'a' && c <= 'z':
			out[i] = c - 'a' + 'A'
		case c == '-' || c == '.':
			out[i] = '_'
		default:
			out[i] = c
		}
	}
	return string(out)
}
