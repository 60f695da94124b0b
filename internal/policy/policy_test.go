package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strand-labs/strand/internal/config"
	"github.com/strand-labs/strand/internal/expr"
	internalmapproc "github.com/strand-labs/strand/internal/mapproc"
	"github.com/strand-labs/strand/internal/module"
	"github.com/strand-labs/strand/internal/secrets"
	"github.com/strand-labs/strand/pkg/strand/v1/attrs"
	"github.com/strand-labs/strand/pkg/strand/v1/mapproc"
	"github.com/strand-labs/strand/pkg/strand/v1/plugin"
	"github.com/strand-labs/strand/pkg/strand/v1/rcode"
	"github.com/strand-labs/strand/pkg/strand/v1/request"
)

// stubModule records the config it was built from; every section method
// returns ok.
type stubModule struct {
	config map[string]interface{}
}

func (m *stubModule) Name() string { return "stub" }
func (m *stubModule) Methods() map[string]plugin.Method {
	return map[string]plugin.Method{
		"authorize":  func(context.Context, *plugin.Call) rcode.Code { return rcode.OK },
		"accounting": func(context.Context, *plugin.Call) rcode.Code { return rcode.OK },
	}
}
func (m *stubModule) NewThread() interface{} { return nil }

type stubProcessor struct{}

func (stubProcessor) Name() string { return "stub" }
func (stubProcessor) Evaluate(context.Context, *request.Request, string) ([]attrs.Assignment, rcode.Code) {
	return nil, rcode.Noop
}

func newRegistries(t *testing.T, captured *map[string]interface{}) (plugin.Registry, mapproc.Registry) {
	t.Helper()
	modReg := module.NewStaticRegistry()
	require.NoError(t, modReg.Register("stub", func(cfg map[string]interface{}) (plugin.Module, error) {
		if captured != nil {
			*captured = cfg
		}
		return &stubModule{config: cfg}, nil
	}))
	procReg := internalmapproc.NewStaticRegistry()
	require.NoError(t, procReg.Register("stub", func(map[string]interface{}) (mapproc.Processor, error) {
		return stubProcessor{}, nil
	}))
	return modReg, procReg
}

func mustTemplate(t *testing.T, src string) *expr.Template {
	t.Helper()
	tmpl, err := expr.ParseTemplate(src, "test")
	require.NoError(t, err)
	return tmpl
}

type mapProvider map[string]string

func (p mapProvider) GetSecret(_ context.Context, key string) (string, bool, error) {
	v, ok := p[key]
	return v, ok, nil
}

func TestParseAction(t *testing.T) {
	for in, want := range map[string]Action{
		"return": ActionReturn,
		"reject": ActionReject,
		"ignore": ActionIgnore,
		"1":      Action(1),
		"125":    Action(125),
	} {
		got, err := ParseAction(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"", "0", "126", "-3", "maybe"} {
		_, err := ParseAction(in)
		assert.Error(t, err, in)
	}
}

func TestDefaultTableOrdering(t *testing.T) {
	tbl := DefaultTable()
	assert.Greater(t, tbl[rcode.Updated], tbl[rcode.OK])
	assert.Greater(t, tbl[rcode.OK], tbl[rcode.Noop])
	assert.Greater(t, tbl[rcode.Noop], tbl[rcode.NotFound])
	assert.Equal(t, ActionReturn, tbl[rcode.Reject])
	assert.Equal(t, ActionReturn, tbl[rcode.Fail])
	assert.Equal(t, ActionReturn, tbl[rcode.Handled])
}

func TestBuilderRejectsDuplicateSection(t *testing.T) {
	b := NewBuilder("t")
	b.Section("authorize")
	b.Section("authorize")
	_, err := b.Build()
	assert.ErrorContains(t, err, "duplicate section")
}

func TestBuilderRejectsCaseOutsideSwitch(t *testing.T) {
	b := NewBuilder("t")
	sec := b.Section("authorize")
	b.Add(sec, Node{Kind: KindCase, Name: "case x", Case: &CaseData{Key: "x"}})
	_, err := b.Build()
	assert.ErrorContains(t, err, "case outside of switch")
}

func TestBuilderRejectsDanglingElse(t *testing.T) {
	b := NewBuilder("t")
	sec := b.Section("authorize")
	b.Add(sec, Node{Kind: KindElse, Name: "else"})
	_, err := b.Build()
	assert.ErrorContains(t, err, "without preceding if")
}

func TestBuilderRejectsBreakOutsideForeach(t *testing.T) {
	b := NewBuilder("t")
	sec := b.Section("authorize")
	b.Add(sec, Node{Kind: KindBreak, Name: "break"})
	_, err := b.Build()
	assert.ErrorContains(t, err, "break outside of foreach")
}

func TestBuilderRejectsExcessiveForeachNesting(t *testing.T) {
	b := NewBuilder("t")
	parent := b.Section("authorize")
	for i := 0; i <= MaxForeachDepth; i++ {
		parent = b.Add(parent, Node{
			Kind:    KindForeach,
			Name:    "foreach request:Class",
			Foreach: &ForeachData{List: "request", Attr: "Class"},
		})
	}
	_, err := b.Build()
	assert.ErrorContains(t, err, "foreach nesting exceeds")
}

func TestBuilderRejectsMultipleDefaultCases(t *testing.T) {
	b := NewBuilder("t")
	sec := b.Section("authorize")
	sw := b.Add(sec, Node{Kind: KindSwitch, Name: "switch", Switch: &SwitchData{Key: mustTemplate(t, "x")}})
	b.Add(sw, Node{Kind: KindCase, Name: "case default", Case: &CaseData{Default: true}})
	b.Add(sw, Node{Kind: KindCase, Name: "case default", Case: &CaseData{Default: true}})
	_, err := b.Build()
	assert.ErrorContains(t, err, "more than one default")
}

func TestCompileResolvesModulesAndSecrets(t *testing.T) {
	var captured map[string]interface{}
	modReg, procReg := newRegistries(t, &captured)

	doc := &config.Document{
		Name: "site",
		Modules: []config.ModuleConfig{{
			Name: "ldap1",
			Type: "stub",
			Config: map[string]interface{}{
				"bind_password": "${secret:LDAP_PASSWORD}",
				"servers":       []interface{}{"ldap://a", "${secret:LDAP_PASSWORD}"},
			},
		}},
		Sections: map[string][]config.Statement{
			"authorize": {{Call: "ldap1"}},
		},
	}

	tracker := secrets.NewTracker()
	g, set, err := Compile(doc, modReg, procReg,
		WithSecretsProvider(mapProvider{"LDAP_PASSWORD": "hunter2"}),
		WithSecretsTracker(tracker))
	require.NoError(t, err)

	assert.Equal(t, "site", g.Name())
	assert.Equal(t, "hunter2", captured["bind_password"])
	assert.Equal(t, "hunter2", captured["servers"].([]interface{})[1])
	assert.True(t, tracker.IsTracked("hunter2"))

	inst, err := set.Get("ldap1")
	require.NoError(t, err)
	assert.True(t, inst.HasMethod("authorize"))
}

func TestCompileFailsOnMissingSecret(t *testing.T) {
	modReg, procReg := newRegistries(t, nil)
	doc := &config.Document{
		Modules: []config.ModuleConfig{{
			Name:   "m",
			Type:   "stub",
			Config: map[string]interface{}{"token": "${secret:NOPE}"},
		}},
		Sections: map[string][]config.Statement{"authorize": {{Call: "m"}}},
	}
	_, _, err := Compile(doc, modReg, procReg, WithSecretsProvider(mapProvider{}))
	assert.ErrorContains(t, err, "secret 'NOPE' is not set")
}

func TestCompileAppliesActionOverrides(t *testing.T) {
	modReg, procReg := newRegistries(t, nil)
	doc := &config.Document{
		Modules: []config.ModuleConfig{{Name: "m", Type: "stub"}},
		Sections: map[string][]config.Statement{
			"authorize": {{
				Call:    "m",
				Actions: map[string]string{"ok": "10", "fail": "ignore", "notfound": "return"},
			}},
		},
	}
	g, _, err := Compile(doc, modReg, procReg)
	require.NoError(t, err)

	root, ok := g.Section("authorize")
	require.True(t, ok)
	call := g.Node(g.Node(root).Child)
	require.Equal(t, KindModuleCall, call.Kind)
	assert.Equal(t, Action(10), call.Actions[rcode.OK])
	assert.Equal(t, ActionIgnore, call.Actions[rcode.Fail])
	assert.Equal(t, ActionReturn, call.Actions[rcode.NotFound])
	// Unmentioned codes keep the default table.
	assert.Equal(t, Action(2), call.Actions[rcode.Noop])
}

func TestCompileMethodDefaultsToSection(t *testing.T) {
	modReg, procReg := newRegistries(t, nil)
	doc := &config.Document{
		Modules: []config.ModuleConfig{{Name: "m", Type: "stub"}},
		Sections: map[string][]config.Statement{
			"accounting": {{Call: "m"}},
		},
	}
	g, _, err := Compile(doc, modReg, procReg)
	require.NoError(t, err)

	root, _ := g.Section("accounting")
	call := g.Node(g.Node(root).Child)
	assert.Equal(t, "accounting", call.Call.Method)
}

func TestCompileExpandsPolicyReferences(t *testing.T) {
	modReg, procReg := newRegistries(t, nil)
	doc := &config.Document{
		Modules: []config.ModuleConfig{{Name: "m", Type: "stub"}},
		Policies: map[string][]config.Statement{
			"common": {{Call: "m"}},
		},
		Sections: map[string][]config.Statement{
			"authorize": {{Policy: "common"}},
		},
	}
	g, _, err := Compile(doc, modReg, procReg)
	require.NoError(t, err)

	root, _ := g.Section("authorize")
	ref := g.Node(g.Node(root).Child)
	assert.Equal(t, KindPolicy, ref.Kind)
	assert.Equal(t, KindModuleCall, g.Node(ref.Child).Kind)
}

func TestCompileRejectsPolicyCycle(t *testing.T) {
	modReg, procReg := newRegistries(t, nil)
	doc := &config.Document{
		Policies: map[string][]config.Statement{
			"a": {{Policy: "b"}},
			"b": {{Policy: "a"}},
		},
		Sections: map[string][]config.Statement{
			"authorize": {{Policy: "a"}},
		},
	}
	_, _, err := Compile(doc, modReg, procReg)
	assert.ErrorContains(t, err, "cycle")
}

func TestCompileRejectsUnknownModuleType(t *testing.T) {
	modReg, procReg := newRegistries(t, nil)
	doc := &config.Document{
		Modules:  []config.ModuleConfig{{Name: "m", Type: "no-such-type"}},
		Sections: map[string][]config.Statement{"authorize": {{Call: "m"}}},
	}
	_, _, err := Compile(doc, modReg, procReg)
	assert.Error(t, err)
}

func TestCompileRejectsUndeclaredProcessor(t *testing.T) {
	modReg, procReg := newRegistries(t, nil)
	doc := &config.Document{
		Sections: map[string][]config.Statement{
			"authorize": {{Map: &config.MapSpec{Processor: "nope", Input: "x"}}},
		},
	}
	_, _, err := Compile(doc, modReg, procReg)
	assert.ErrorContains(t, err, "undeclared processor")
}

func TestStoreSwapIsAtomic(t *testing.T) {
	modReg, procReg := newRegistries(t, nil)
	doc := &config.Document{
		Modules:  []config.ModuleConfig{{Name: "m", Type: "stub"}},
		Sections: map[string][]config.Statement{"authorize": {{Call: "m"}}},
	}
	g1, s1, err := Compile(doc, modReg, procReg)
	require.NoError(t, err)
	g2, s2, err := Compile(doc, modReg, procReg)
	require.NoError(t, err)

	store := NewStore(g1, s1)
	assert.Same(t, g1, store.Graph())
	store.Swap(g2, s2)
	assert.Same(t, g2, store.Graph())
	assert.Same(t, s2, store.Set())
}
