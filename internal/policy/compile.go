package policy

import (
	"context"
	"fmt"
	"regexp"

	"github.com/strand-labs/strand/internal/config"
	"github.com/strand-labs/strand/internal/expr"
	"github.com/strand-labs/strand/internal/module"
	"github.com/strand-labs/strand/internal/secrets"
	"github.com/strand-labs/strand/pkg/strand/v1/attrs"
	stranderrors "github.com/strand-labs/strand/pkg/strand/v1/errors"
	"github.com/strand-labs/strand/pkg/strand/v1/mapproc"
	"github.com/strand-labs/strand/pkg/strand/v1/plugin"
	"github.com/strand-labs/strand/pkg/strand/v1/rcode"
)

// CompileOption adjusts compilation behavior.
type CompileOption func(*compileSettings)

type compileSettings struct {
	provider secrets.Provider
	tracker  *secrets.Tracker
}

// WithSecretsProvider sets the provider ${secret:NAME} placeholders in module
// configuration are resolved with. Defaults to environment variables.
func WithSecretsProvider(p secrets.Provider) CompileOption {
	return func(cs *compileSettings) { cs.provider = p }
}

// WithSecretsTracker records every resolved secret value so logs and event
// payloads can redact them.
func WithSecretsTracker(t *secrets.Tracker) CompileOption {
	return func(cs *compileSettings) { cs.tracker = t }
}

// Compile turns a validated policy document into an executable graph. Module
// and processor instances are created from the given registries and resolved
// into the call nodes, so the interpreter hot path never touches a registry.
func Compile(doc *config.Document, modReg plugin.Registry, procReg mapproc.Registry, opts ...CompileOption) (*Graph, *module.Set, error) {
	cs := &compileSettings{provider: secrets.NewEnvProvider()}
	for _, opt := range opts {
		opt(cs)
	}

	name := doc.Name
	if name == "" {
		name = doc.FilePath
	}

	set := module.NewSet()
	for _, mc := range doc.Modules {
		factory, err := modReg.Get(mc.Type)
		if err != nil {
			return nil, nil, stranderrors.NewConfigError(
				fmt.Sprintf("module instance '%s'", mc.Name), err)
		}
		cfg, err := resolveSecrets(mc.Config, cs)
		if err != nil {
			return nil, nil, stranderrors.NewConfigError(
				fmt.Sprintf("module instance '%s'", mc.Name), err)
		}
		mod, err := factory(cfg)
		if err != nil {
			return nil, nil, stranderrors.NewConfigError(
				fmt.Sprintf("instantiating module '%s' (type '%s')", mc.Name, mc.Type), err)
		}
		if err := set.Add(module.NewInstance(mc.Name, mod)); err != nil {
			return nil, nil, err
		}
	}

	processors := make(map[string]mapproc.Processor)
	for _, pc := range doc.Processors {
		factory, err := procReg.Get(pc.Type)
		if err != nil {
			return nil, nil, stranderrors.NewConfigError(
				fmt.Sprintf("processor instance '%s'", pc.Name), err)
		}
		cfg, err := resolveSecrets(pc.Config, cs)
		if err != nil {
			return nil, nil, stranderrors.NewConfigError(
				fmt.Sprintf("processor instance '%s'", pc.Name), err)
		}
		proc, err := factory(cfg)
		if err != nil {
			return nil, nil, stranderrors.NewConfigError(
				fmt.Sprintf("instantiating processor '%s' (type '%s')", pc.Name, pc.Type), err)
		}
		processors[pc.Name] = proc
	}

	c := &compiler{
		doc:        doc,
		b:          NewBuilder(name),
		set:        set,
		processors: processors,
	}

	for section, stmts := range doc.Sections {
		root := c.b.Section(section)
		if err := c.statements(root, stmts, section, nil); err != nil {
			return nil, nil, err
		}
	}

	g, err := c.b.Build()
	if err != nil {
		return nil, nil, err
	}
	return g, set, nil
}

type compiler struct {
	doc        *config.Document
	b          *Builder
	set        *module.Set
	processors map[string]mapproc.Processor
}

// statements compiles a statement list as children of parent. method is the
// enclosing section name, the default module method. expanding tracks the
// named policies currently being inlined, to reject reference cycles.
func (c *compiler) statements(parent NodeID, stmts []config.Statement, method string, expanding []string) error {
	for i := range stmts {
		if err := c.statement(parent, &stmts[i], method, expanding); err != nil {
			return err
		}
	}
	return nil
}

func (c *compiler) statement(parent NodeID, s *config.Statement, method string, expanding []string) error {
	switch {
	case s.Call != "":
		return c.call(parent, s, method)

	case s.If != "":
		return c.conditional(parent, s, s.If, KindIf, method, expanding)

	case s.Elsif != "":
		return c.conditional(parent, s, s.Elsif, KindElsif, method, expanding)

	case s.Group != nil:
		id := c.b.Add(parent, Node{Kind: KindGroup, Name: "group"})
		return c.statements(id, s.Group, method, expanding)

	case s.Policy != "":
		return c.policyRef(parent, s.Policy, method, expanding)

	case s.Redundant != nil:
		id := c.b.Add(parent, Node{Kind: KindRedundant, Name: "redundant"})
		return c.statements(id, s.Redundant, method, expanding)

	case s.LoadBalance != nil:
		return c.loadBalance(parent, s.LoadBalance, KindLoadBalance, method, expanding)

	case s.RedundantLoadBalance != nil:
		return c.loadBalance(parent, s.RedundantLoadBalance, KindRedundantLoadBalance, method, expanding)

	case s.Parallel != nil:
		id := c.b.Add(parent, Node{Kind: KindParallel, Name: "parallel"})
		return c.statements(id, s.Parallel, method, expanding)

	case s.Switch != nil:
		return c.switchNode(parent, s.Switch, method, expanding)

	case s.Foreach != nil:
		id := c.b.Add(parent, Node{
			Kind:    KindForeach,
			Name:    fmt.Sprintf("foreach %s:%s", s.Foreach.List, s.Foreach.Attr),
			Foreach: &ForeachData{List: s.Foreach.List, Attr: s.Foreach.Attr},
		})
		return c.statements(id, s.Foreach.Do, method, expanding)

	case s.Update != nil:
		return c.update(parent, s.Update)

	case s.Map != nil:
		return c.mapNode(parent, s.Map)

	case s.Expand != "":
		tmpl, err := expr.ParseTemplate(s.Expand, "expand")
		if err != nil {
			return err
		}
		c.b.Add(parent, Node{Kind: KindXlat, Name: "expand", Xlat: &XlatData{Template: tmpl}})
		return nil

	case s.Break:
		c.b.Add(parent, Node{Kind: KindBreak, Name: "break"})
		return nil

	case s.Return:
		c.b.Add(parent, Node{Kind: KindReturn, Name: "return"})
		return nil
	}

	return stranderrors.NewValidationError("statement has no directive", nil)
}

func (c *compiler) call(parent NodeID, s *config.Statement, sectionMethod string) error {
	inst, err := c.set.Get(s.Call)
	if err != nil {
		return err
	}
	method := s.Method
	if method == "" {
		method = sectionMethod
	}
	id := c.b.Add(parent, Node{
		Kind: KindModuleCall,
		Name: fmt.Sprintf("%s.%s", s.Call, method),
		Call: &CallData{Module: s.Call, Method: method, Instance: inst},
	})
	if len(s.Actions) > 0 {
		overrides := make(map[rcode.Code]Action, len(s.Actions))
		for codeName, actionStr := range s.Actions {
			code, err := rcode.Parse(codeName)
			if err != nil {
				return stranderrors.NewValidationError(
					fmt.Sprintf("call '%s': %v", s.Call, err), nil)
			}
			action, err := ParseAction(actionStr)
			if err != nil {
				return stranderrors.NewValidationError(
					fmt.Sprintf("call '%s': %v", s.Call, err), nil)
			}
			overrides[code] = action
		}
		c.b.SetActions(id, overrides)
	}
	return nil
}

func (c *compiler) conditional(parent NodeID, s *config.Statement, src string, kind Kind, method string, expanding []string) error {
	cond, err := expr.ParseCondition(src, kind.String())
	if err != nil {
		return err
	}
	id := c.b.Add(parent, Node{
		Kind: kind,
		Name: fmt.Sprintf("%s (%s)", kind, src),
		Cond: &CondData{Condition: cond},
	})
	if err := c.statements(id, s.Then, method, expanding); err != nil {
		return err
	}
	if s.Else != nil {
		elseID := c.b.Add(parent, Node{Kind: KindElse, Name: "else"})
		if err := c.statements(elseID, s.Else, method, expanding); err != nil {
			return err
		}
	}
	return nil
}

func (c *compiler) policyRef(parent NodeID, name, method string, expanding []string) error {
	for _, seen := range expanding {
		if seen == name {
			return stranderrors.NewValidationError(
				fmt.Sprintf("policy reference cycle through '%s'", name), nil)
		}
	}
	stmts, ok := c.doc.Policies[name]
	if !ok {
		return stranderrors.NewValidationError(
			fmt.Sprintf("undefined policy '%s'", name), nil)
	}
	id := c.b.Add(parent, Node{Kind: KindPolicy, Name: "policy " + name})
	return c.statements(id, stmts, method, append(expanding, name))
}

func (c *compiler) loadBalance(parent NodeID, lb *config.LoadBalanceSpec, kind Kind, method string, expanding []string) error {
	pick := &PickData{}
	if lb.Key != "" {
		tmpl, err := expr.ParseTemplate(lb.Key, kind.String())
		if err != nil {
			return err
		}
		pick.Key = tmpl
	}
	id := c.b.Add(parent, Node{Kind: kind, Name: kind.String(), Pick: pick})
	return c.statements(id, lb.Children, method, expanding)
}

func (c *compiler) switchNode(parent NodeID, sw *config.SwitchSpec, method string, expanding []string) error {
	key, err := expr.ParseTemplate(sw.Key, "switch")
	if err != nil {
		return err
	}
	id := c.b.Add(parent, Node{
		Kind:   KindSwitch,
		Name:   fmt.Sprintf("switch (%s)", sw.Key),
		Switch: &SwitchData{Key: key},
	})
	for i := range sw.Cases {
		cs := &sw.Cases[i]
		name := "case " + cs.Match
		if cs.Default {
			name = "case default"
		}
		caseID := c.b.Add(id, Node{
			Kind: KindCase,
			Name: name,
			Case: &CaseData{Key: cs.Match, Default: cs.Default},
		})
		if err := c.statements(caseID, cs.Do, method, expanding); err != nil {
			return err
		}
	}
	return nil
}

func (c *compiler) update(parent NodeID, lines []config.UpdateLine) error {
	data := &UpdateData{}
	for _, line := range lines {
		opStr := line.Op
		if opStr == "" {
			opStr = "set"
		}
		op, err := attrs.ParseOp(opStr)
		if err != nil {
			return stranderrors.NewValidationError(err.Error(), nil)
		}
		ua := UpdateAssignment{
			Ref: attrs.Ref{List: line.List, Name: line.Attr},
			Op:  op,
		}
		if str, isStr := line.Value.(string); isStr {
			tmpl, err := expr.ParseTemplate(str, "update")
			if err != nil {
				return err
			}
			ua.Template = tmpl
		} else {
			ua.Value = line.Value
		}
		data.Assignments = append(data.Assignments, ua)
	}
	c.b.Add(parent, Node{Kind: KindUpdate, Name: "update", Update: data})
	return nil
}

// secretPattern matches ${secret:NAME} placeholders inside config strings.
var secretPattern = regexp.MustCompile(`\$\{secret:([A-Za-z_][A-Za-z0-9_]*)\}`)

// resolveSecrets replaces secret placeholders in a configuration block. The
// original block is never modified; values pass through unchanged when they
// contain no placeholder.
func resolveSecrets(cfg map[string]interface{}, cs *compileSettings) (map[string]interface{}, error) {
	if len(cfg) == 0 {
		return cfg, nil
	}
	out := make(map[string]interface{}, len(cfg))
	for k, v := range cfg {
		rv, err := resolveSecretValue(v, cs)
		if err != nil {
			return nil, err
		}
		out[k] = rv
	}
	return out, nil
}

func resolveSecretValue(v interface{}, cs *compileSettings) (interface{}, error) {
	switch val := v.(type) {
	case string:
		return resolveSecretString(val, cs)
	case map[string]interface{}:
		return resolveSecrets(val, cs)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			ri, err := resolveSecretValue(item, cs)
			if err != nil {
				return nil, err
			}
			out[i] = ri
		}
		return out, nil
	default:
		return v, nil
	}
}

func resolveSecretString(s string, cs *compileSettings) (string, error) {
	var resolveErr error
	out := secretPattern.ReplaceAllStringFunc(s, func(match string) string {
		key := secretPattern.FindStringSubmatch(match)[1]
		value, found, err := cs.provider.GetSecret(context.Background(), key)
		if err != nil {
			resolveErr = fmt.Errorf("resolving secret '%s': %w", key, err)
			return match
		}
		if !found {
			resolveErr = fmt.Errorf("secret '%s' is not set", key)
			return match
		}
		if cs.tracker != nil {
			cs.tracker.Add(value)
		}
		return value
	})
	return out, resolveErr
}

func (c *compiler) mapNode(parent NodeID, m *config.MapSpec) error {
	proc, ok := c.processors[m.Processor]
	if !ok {
		return stranderrors.NewValidationError(
			fmt.Sprintf("map references undeclared processor '%s'", m.Processor), nil)
	}
	input, err := expr.ParseTemplate(m.Input, "map")
	if err != nil {
		return err
	}
	c.b.Add(parent, Node{
		Kind: KindMap,
		Name: "map " + m.Processor,
		Map:  &MapData{Processor: m.Processor, Input: input, Instance: proc},
	})
	return nil
}
