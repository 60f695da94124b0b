// Package pause provides a module that suspends its execution and completes
// when the owning event loop resumes it. It exists to exercise and
// demonstrate the yield protocol: a stand-in for any module awaiting an
// external event such as a backend reply or a timer.
package pause

import (
	"context"
	"fmt"

	"github.com/strand-labs/strand/internal/module"
	"github.com/strand-labs/strand/internal/paramutil"
	"github.com/strand-labs/strand/pkg/strand/v1/plugin"
	"github.com/strand-labs/strand/pkg/strand/v1/rcode"
)

func init() {
	module.Register("pause", New)
}

var sections = []string{
	"authorize", "authenticate", "preacct", "accounting", "post-auth",
}

// Module yields once per call; the resumed continuation returns the
// configured code.
type Module struct {
	code rcode.Code
}

// thread counts suspensions per execution, visible to the resumed
// continuation through the opaque state.
type thread struct {
	suspensions int
}

// New creates a pause module. Config: rcode (the continuation's result,
// default "ok").
func New(config map[string]interface{}) (plugin.Module, error) {
	if err := paramutil.CheckAllowed(config, []string{"rcode"}); err != nil {
		return nil, err
	}
	codeName, ok, err := paramutil.GetOptionalString(config, "rcode")
	if err != nil {
		return nil, err
	}
	code := rcode.OK
	if ok {
		code, err = rcode.Parse(codeName)
		if err != nil {
			return nil, fmt.Errorf("pause: %w", err)
		}
	}
	return &Module{code: code}, nil
}

func (m *Module) Name() string { return "pause" }

func (m *Module) Methods() map[string]plugin.Method {
	methods := make(map[string]plugin.Method, len(sections))
	for _, s := range sections {
		methods[s] = m.run
	}
	return methods
}

func (m *Module) NewThread() interface{} { return &thread{} }

func (m *Module) run(ctx context.Context, call *plugin.Call) rcode.Code {
	t := call.Thread.(*thread)
	t.suspensions++
	call.Logger.Debugf("pause: suspending (count %d)", t.suspensions)
	return call.Yield(m.resume, m.cancel, t)
}

func (m *Module) resume(ctx context.Context, call *plugin.Call, state interface{}) rcode.Code {
	t := state.(*thread)
	call.Logger.Debugf("pause: resumed (count %d)", t.suspensions)
	return m.code
}

func (m *Module) cancel(call *plugin.Call, state interface{}) {
	call.Logger.Debugf("pause: canceled while suspended")
}
