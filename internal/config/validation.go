package config

import (
	"fmt"
	"regexp"

	"github.com/strand-labs/strand/pkg/strand/v1/attrs"
	stranderrors "github.com/strand-labs/strand/pkg/strand/v1/errors"
	"github.com/strand-labs/strand/pkg/strand/v1/rcode"
)

// Pre-compiled regex for instance and section names.
var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// maxForeachNesting mirrors the interpreter's static foreach limit.
const maxForeachNesting = 8

// ValidateDocumentStructure performs logical validation of the parsed
// Document: cross-field consistency, valid references, and rules that cannot
// be expressed in JSON Schema alone. It returns every error found.
func ValidateDocumentStructure(d *Document) []error {
	var errs []error

	if len(d.Sections) == 0 {
		errs = append(errs, stranderrors.NewValidationError("policy document must define at least one section", nil))
	}

	moduleNames := make(map[string]bool)
	for i, m := range d.Modules {
		where := fmt.Sprintf("modules[%d]", i)
		if m.Name == "" || !nameRegex.MatchString(m.Name) {
			errs = append(errs, stranderrors.NewValidationError(fmt.Sprintf("%s: invalid instance name '%s'", where, m.Name), nil))
		}
		if m.Type == "" {
			errs = append(errs, stranderrors.NewValidationError(fmt.Sprintf("%s ('%s'): missing module type", where, m.Name), nil))
		}
		if moduleNames[m.Name] {
			errs = append(errs, stranderrors.NewValidationError(fmt.Sprintf("%s: duplicate module instance name '%s'", where, m.Name), nil))
		}
		moduleNames[m.Name] = true
	}

	processorNames := make(map[string]bool)
	for i, p := range d.Processors {
		where := fmt.Sprintf("processors[%d]", i)
		if p.Name == "" || !nameRegex.MatchString(p.Name) {
			errs = append(errs, stranderrors.NewValidationError(fmt.Sprintf("%s: invalid processor name '%s'", where, p.Name), nil))
		}
		if p.Type == "" {
			errs = append(errs, stranderrors.NewValidationError(fmt.Sprintf("%s ('%s'): missing processor type", where, p.Name), nil))
		}
		if processorNames[p.Name] {
			errs = append(errs, stranderrors.NewValidationError(fmt.Sprintf("%s: duplicate processor name '%s'", where, p.Name), nil))
		}
		processorNames[p.Name] = true
	}

	v := &docValidator{doc: d, modules: moduleNames, processors: processorNames}
	for name, stmts := range d.Policies {
		v.validateStatements(stmts, "policies."+name, false, 0)
	}
	for name, stmts := range d.Sections {
		if !nameRegex.MatchString(name) {
			v.errs = append(v.errs, stranderrors.NewValidationError(fmt.Sprintf("invalid section name '%s'", name), nil))
		}
		v.validateStatements(stmts, "sections."+name, false, 0)
	}

	return append(errs, v.errs...)
}

type docValidator struct {
	doc        *Document
	modules    map[string]bool
	processors map[string]bool
	errs       []error
}

func (v *docValidator) addErr(where, format string, args ...interface{}) {
	v.errs = append(v.errs, stranderrors.NewValidationError(where+": "+fmt.Sprintf(format, args...), nil))
}

// directiveCount returns how many directive fields the statement sets, and
// the name of the first one for error messages.
func directiveCount(s *Statement) (int, string) {
	count := 0
	first := ""
	set := func(name string, on bool) {
		if on {
			count++
			if first == "" {
				first = name
			}
		}
	}
	set("call", s.Call != "")
	set("if", s.If != "")
	set("elsif", s.Elsif != "")
	set("group", s.Group != nil)
	set("policy", s.Policy != "")
	set("redundant", s.Redundant != nil)
	set("load_balance", s.LoadBalance != nil)
	set("redundant_load_balance", s.RedundantLoadBalance != nil)
	set("parallel", s.Parallel != nil)
	set("switch", s.Switch != nil)
	set("foreach", s.Foreach != nil)
	set("update", s.Update != nil)
	set("map", s.Map != nil)
	set("expand", s.Expand != "")
	set("break", s.Break)
	set("return", s.Return)
	return count, first
}

func (v *docValidator) validateStatements(stmts []Statement, where string, inForeach bool, foreachDepth int) {
	prevWasConditional := false
	for i := range stmts {
		s := &stmts[i]
		here := fmt.Sprintf("%s[%d]", where, i)

		count, directive := directiveCount(s)
		if count == 0 {
			v.addErr(here, "statement has no directive")
			continue
		}
		if count > 1 {
			v.addErr(here, "statement sets more than one directive")
			continue
		}
		if directive != "if" && directive != "elsif" {
			if s.Then != nil {
				v.addErr(here, "'then' is only valid on if and elsif")
			}
			if s.Else != nil {
				v.addErr(here, "'else' is only valid on if and elsif")
			}
		}
		if directive != "call" && (s.Method != "" || s.Actions != nil) {
			v.addErr(here, "'method' and 'actions' are only valid on call")
		}

		switch directive {
		case "call":
			if !v.modules[s.Call] {
				v.addErr(here, "call references undeclared module instance '%s'", s.Call)
			}
			v.validateActions(s.Actions, here)

		case "if":
			v.validateStatements(s.Then, here+".then", inForeach, foreachDepth)
			if s.Else != nil {
				v.validateStatements(s.Else, here+".else", inForeach, foreachDepth)
			}

		case "elsif":
			if !prevWasConditional {
				v.addErr(here, "elsif does not follow if or elsif")
			}
			v.validateStatements(s.Then, here+".then", inForeach, foreachDepth)
			if s.Else != nil {
				v.validateStatements(s.Else, here+".else", inForeach, foreachDepth)
			}

		case "group":
			v.validateStatements(s.Group, here+".group", inForeach, foreachDepth)

		case "policy":
			if _, ok := v.doc.Policies[s.Policy]; !ok {
				v.addErr(here, "references undefined policy '%s'", s.Policy)
			}

		case "redundant":
			v.validateStatements(s.Redundant, here+".redundant", inForeach, foreachDepth)

		case "load_balance":
			v.validateLoadBalance(s.LoadBalance, here, inForeach, foreachDepth)

		case "redundant_load_balance":
			v.validateLoadBalance(s.RedundantLoadBalance, here, inForeach, foreachDepth)

		case "parallel":
			// Break cannot cross into a parallel child's own execution.
			v.validateStatements(s.Parallel, here+".parallel", false, foreachDepth)

		case "switch":
			for j, c := range s.Switch.Cases {
				caseWhere := fmt.Sprintf("%s.cases[%d]", here, j)
				if !c.Default && c.Match == "" {
					v.addErr(caseWhere, "case needs a match key or default: true")
				}
				v.validateStatements(c.Do, caseWhere+".do", inForeach, foreachDepth)
			}

		case "foreach":
			if foreachDepth+1 > maxForeachNesting {
				v.addErr(here, "foreach nesting exceeds maximum of %d", maxForeachNesting)
			}
			v.validateStatements(s.Foreach.Do, here+".do", true, foreachDepth+1)

		case "break":
			if !inForeach {
				v.addErr(here, "break outside of foreach")
			}

		case "update":
			for j, line := range s.Update {
				if _, err := attrs.ParseOp(opOrDefault(line.Op)); err != nil {
					v.addErr(fmt.Sprintf("%s.update[%d]", here, j), "%v", err)
				}
			}

		case "map":
			if !v.processors[s.Map.Processor] {
				v.addErr(here, "map references undeclared processor '%s'", s.Map.Processor)
			}
		}

		prevWasConditional = directive == "if" || directive == "elsif"
	}
}

func (v *docValidator) validateLoadBalance(lb *LoadBalanceSpec, where string, inForeach bool, foreachDepth int) {
	if len(lb.Children) == 0 {
		v.addErr(where, "load balance group has no children")
		return
	}
	v.validateStatements(lb.Children, where+".children", inForeach, foreachDepth)
}

func (v *docValidator) validateActions(actions map[string]string, where string) {
	for codeName, actionStr := range actions {
		if _, err := rcode.Parse(codeName); err != nil {
			v.addErr(where, "actions has unknown result code '%s'", codeName)
		}
		if _, err := parseActionString(actionStr); err != nil {
			v.addErr(where, "%v", err)
		}
	}
}

// parseActionString mirrors the compiler's action parsing so validation and
// compilation agree on what is accepted.
func parseActionString(s string) (string, error) {
	switch s {
	case "return", "reject", "ignore":
		return s, nil
	}
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil || n < 1 || n > 125 {
		return "", fmt.Errorf("invalid action %q: want return, reject, ignore or priority 1..125", s)
	}
	return s, nil
}

// opOrDefault applies the update default operator.
func opOrDefault(op string) string {
	if op == "" {
		return "set"
	}
	return op
}
