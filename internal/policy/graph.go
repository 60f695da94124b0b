package policy

import (
	"fmt"

	stranderrors "github.com/strand-labs/strand/pkg/strand/v1/errors"
	"github.com/strand-labs/strand/pkg/strand/v1/rcode"
)

// MaxForeachDepth bounds statically nested foreach loops. Loop variables are
// bound as Foreach-0 through Foreach-7.
const MaxForeachDepth = 8

// Graph is a compiled policy document: a node arena plus named entry
// sections. It is immutable after Build and safe for concurrent walks.
type Graph struct {
	name     string
	nodes    []Node
	sections map[string]NodeID
}

// Name returns the policy document name.
func (g *Graph) Name() string { return g.name }

// Node returns the node for an ID. The ID must come from this graph.
func (g *Graph) Node(id NodeID) *Node {
	return &g.nodes[id]
}

// Section resolves a section name ("authorize", "accounting", ...) to its
// root group node.
func (g *Graph) Section(name string) (NodeID, bool) {
	id, ok := g.sections[name]
	return id, ok
}

// Sections returns the section names defined by the document, unordered.
func (g *Graph) Sections() []string {
	out := make([]string, 0, len(g.sections))
	for name := range g.sections {
		out = append(out, name)
	}
	return out
}

// NumNodes returns the arena size, used by metrics and debug output.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// Builder assembles a Graph. It is not safe for concurrent use; compile one
// document per builder. The first error sticks and Build reports it.
type Builder struct {
	g   *Graph
	err error
}

// NewBuilder starts a graph for the named policy document.
func NewBuilder(name string) *Builder {
	return &Builder{
		g: &Graph{
			name:     name,
			sections: make(map[string]NodeID),
		},
	}
}

func (b *Builder) fail(format string, args ...interface{}) NodeID {
	if b.err == nil {
		b.err = stranderrors.NewValidationError(fmt.Sprintf(format, args...), nil)
	}
	return NilNode
}

// Section creates the root group node for a named entry point. Duplicate
// section names are an error.
func (b *Builder) Section(name string) NodeID {
	if b.err != nil {
		return NilNode
	}
	if name == "" {
		return b.fail("section name cannot be empty")
	}
	if _, exists := b.g.sections[name]; exists {
		return b.fail("duplicate section %q", name)
	}
	id := b.append(Node{
		Kind:    KindGroup,
		Name:    name,
		Parent:  NilNode,
		Actions: DefaultTable(),
	})
	b.g.sections[name] = id
	return id
}

// Add appends n as the last child of parent. The caller fills Kind, Name and
// the payload; the builder assigns the ID, links siblings and applies the
// default action table unless the node carries one already.
func (b *Builder) Add(parent NodeID, n Node) NodeID {
	if b.err != nil {
		return NilNode
	}
	if parent == NilNode || int(parent) >= len(b.g.nodes) {
		return b.fail("node %q added under invalid parent", n.Name)
	}
	if n.Actions == (Table{}) {
		n.Actions = DefaultTable()
	}
	n.Parent = parent
	id := b.append(n)

	p := &b.g.nodes[parent]
	if p.Child == NilNode {
		p.Child = id
	} else {
		last := p.Child
		for b.g.nodes[last].Next != NilNode {
			last = b.g.nodes[last].Next
		}
		b.g.nodes[last].Next = id
	}
	return id
}

func (b *Builder) append(n Node) NodeID {
	id := NodeID(len(b.g.nodes))
	n.ID = id
	n.Next = NilNode
	n.Child = NilNode
	b.g.nodes = append(b.g.nodes, n)
	return id
}

// SetActions overrides entries of a node's action table.
func (b *Builder) SetActions(id NodeID, overrides map[rcode.Code]Action) {
	if b.err != nil || id == NilNode {
		return
	}
	n := &b.g.nodes[id]
	for code, action := range overrides {
		if int(code) >= len(n.Actions) {
			b.fail("node %q: action override for invalid result code %d", n.Name, code)
			return
		}
		n.Actions[code] = action
	}
}

// Build validates the assembled graph and seals it.
func (b *Builder) Build() (*Graph, error) {
	if b.err != nil {
		return nil, b.err
	}
	for i := range b.g.nodes {
		if err := b.validateNode(&b.g.nodes[i]); err != nil {
			return nil, err
		}
	}
	for name, id := range b.g.sections {
		if err := b.validateForeachDepth(id, 0); err != nil {
			return nil, stranderrors.NewValidationError(
				fmt.Sprintf("section %q: %s", name, err.Error()), err)
		}
	}
	return b.g, nil
}

func (b *Builder) validateNode(n *Node) error {
	invalid := func(format string, args ...interface{}) error {
		return stranderrors.NewValidationError(
			fmt.Sprintf("node %q: ", n.Name)+fmt.Sprintf(format, args...), nil)
	}

	switch n.Kind {
	case KindModuleCall:
		if n.Call == nil || n.Call.Instance == nil {
			return invalid("module call has no resolved instance")
		}
		if !n.Call.Instance.HasMethod(n.Call.Method) {
			return invalid("module '%s' has no method '%s'", n.Call.Module, n.Call.Method)
		}

	case KindIf, KindElsif:
		if n.Cond == nil || n.Cond.Condition == nil {
			return invalid("%s has no condition", n.Kind)
		}

	case KindElse:
		// handled with elsif chain check below

	case KindSwitch:
		if n.Switch == nil || n.Switch.Key == nil {
			return invalid("switch has no key template")
		}
		defaults := 0
		for c := n.Child; c != NilNode; c = b.g.nodes[c].Next {
			child := &b.g.nodes[c]
			if child.Kind != KindCase {
				return invalid("switch children must be case nodes, found %s", child.Kind)
			}
			if child.Case.Default {
				defaults++
			}
		}
		if defaults > 1 {
			return invalid("switch has more than one default case")
		}

	case KindCase:
		if n.Case == nil {
			return invalid("case has no key")
		}
		if n.Parent == NilNode || b.g.nodes[n.Parent].Kind != KindSwitch {
			return invalid("case outside of switch")
		}

	case KindLoadBalance, KindRedundant, KindRedundantLoadBalance:
		if n.Child == NilNode {
			return invalid("%s has no children", n.Kind)
		}

	case KindForeach:
		if n.Foreach == nil {
			return invalid("foreach has no loop spec")
		}

	case KindBreak:
		if !b.hasForeachAncestor(n.ID) {
			return invalid("break outside of foreach")
		}

	case KindUpdate:
		if n.Update == nil || len(n.Update.Assignments) == 0 {
			return invalid("update has no assignments")
		}

	case KindMap:
		if n.Map == nil || n.Map.Input == nil {
			return invalid("map has no input template")
		}

	case KindXlat:
		if n.Xlat == nil || n.Xlat.Template == nil {
			return invalid("expansion node has no template")
		}
	}

	// elsif and else must directly follow an if or elsif sibling.
	if n.Kind == KindElsif || n.Kind == KindElse {
		prev := b.previousSibling(n.ID)
		if prev == NilNode {
			return invalid("%s without preceding if", n.Kind)
		}
		pk := b.g.nodes[prev].Kind
		if pk != KindIf && pk != KindElsif {
			return invalid("%s must follow if or elsif, found %s", n.Kind, pk)
		}
	}

	return nil
}

func (b *Builder) previousSibling(id NodeID) NodeID {
	parent := b.g.nodes[id].Parent
	if parent == NilNode {
		return NilNode
	}
	prev := NilNode
	for c := b.g.nodes[parent].Child; c != NilNode; c = b.g.nodes[c].Next {
		if c == id {
			return prev
		}
		prev = c
	}
	return NilNode
}

func (b *Builder) hasForeachAncestor(id NodeID) bool {
	for p := b.g.nodes[id].Parent; p != NilNode; p = b.g.nodes[p].Parent {
		if b.g.nodes[p].Kind == KindForeach {
			return true
		}
	}
	return false
}

func (b *Builder) validateForeachDepth(id NodeID, depth int) error {
	n := &b.g.nodes[id]
	if n.Kind == KindForeach {
		depth++
		if depth > MaxForeachDepth {
			return fmt.Errorf("foreach nesting exceeds maximum of %d", MaxForeachDepth)
		}
	}
	for c := n.Child; c != NilNode; c = b.g.nodes[c].Next {
		if err := b.validateForeachDepth(c, depth); err != nil {
			return err
		}
	}
	return nil
}
