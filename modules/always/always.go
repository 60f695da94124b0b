// Package always provides a module that returns a fixed result code from
// every section it is listed in. It is the standard building block for
// policy plumbing ("reject here", "handled") and for tests.
package always

import (
	"context"
	"fmt"

	"github.com/strand-labs/strand/internal/module"
	"github.com/strand-labs/strand/internal/paramutil"
	"github.com/strand-labs/strand/pkg/strand/v1/plugin"
	"github.com/strand-labs/strand/pkg/strand/v1/rcode"
)

func init() {
	module.Register("always", New)
}

// sections are the entry points the module answers to. The same fixed code
// is returned from each.
var sections = []string{
	"authorize", "authenticate", "preacct", "accounting", "post-auth",
}

// Module returns its configured code unconditionally.
type Module struct {
	code rcode.Code
}

// New creates an always module. Config: rcode (default "ok").
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
			return nil, fmt.Errorf("always: %w", err)
		}
	}
	return &Module{code: code}, nil
}

func (m *Module) Name() string { return "always" }

func (m *Module) Methods() map[string]plugin.Method {
	methods := make(map[string]plugin.Method, len(sections))
	for _, s := range sections {
		methods[s] = m.run
	}
	return methods
}

func (m *Module) NewThread() interface{} { return nil }

func (m *Module) run(ctx context.Context, call *plugin.Call) rcode.Code {
	return m.code
}
