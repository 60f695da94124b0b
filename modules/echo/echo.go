// Package echo provides a module that logs the request's attribute lists,
// with credential values redacted. It returns noop so it never influences
// the section result.
package echo

import (
	"context"

	"github.com/strand-labs/strand/internal/module"
	"github.com/strand-labs/strand/internal/paramutil"
	"github.com/strand-labs/strand/internal/redact"
	"github.com/strand-labs/strand/pkg/strand/v1/plugin"
	"github.com/strand-labs/strand/pkg/strand/v1/rcode"
)

func init() {
	module.Register("echo", New)
}

var sections = []string{
	"authorize", "authenticate", "preacct", "accounting", "post-auth",
}

// Module logs attribute lists for debugging policies.
type Module struct {
	lists []string
}

// New creates an echo module. Config: lists (default ["request"]).
func New(config map[string]interface{}) (plugin.Module, error) {
	if err := paramutil.CheckAllowed(config, []string{"lists"}); err != nil {
		return nil, err
	}
	lists, ok, err := paramutil.GetOptionalStringSlice(config, "lists")
	if err != nil {
		return nil, err
	}
	if !ok {
		lists = []string{"request"}
	}
	return &Module{lists: lists}, nil
}

func (m *Module) Name() string { return "echo" }

func (m *Module) Methods() map[string]plugin.Method {
	methods := make(map[string]plugin.Method, len(sections))
	for _, s := range sections {
		methods[s] = m.run
	}
	return methods
}

func (m *Module) NewThread() interface{} { return nil }

func (m *Module) run(ctx context.Context, call *plugin.Call) rcode.Code {
	for _, name := range m.lists {
		list, err := call.Request.List(name)
		if err != nil {
			call.Logger.Warnf("echo: %v", err)
			continue
		}
		for _, p := range redact.Pairs(list.Pairs(), nil) {
			call.Logger.Infof("%s: %s = %v", name, p.Name, p.Value)
		}
	}
	return rcode.Noop
}
