// Package policy holds the compiled form of a policy document: an immutable
// graph of typed nodes the interpreter walks. Graphs are compiled once and
// shared read-only by every concurrent execution.
package policy

import (
	"fmt"

	"github.com/strand-labs/strand/internal/expr"
	"github.com/strand-labs/strand/internal/module"
	"github.com/strand-labs/strand/pkg/strand/v1/attrs"
	"github.com/strand-labs/strand/pkg/strand/v1/mapproc"
)

// NodeID indexes a node within its graph's arena.
type NodeID int32

// NilNode marks the absence of a node (no sibling, no child).
const NilNode NodeID = -1

// Kind discriminates node behavior. Every kind has exactly one interpreter
// operation bound to it.
type Kind uint8

const (
	KindModuleCall Kind = iota
	KindGroup
	KindPolicy
	KindLoadBalance
	KindRedundant
	KindRedundantLoadBalance
	KindParallel
	KindIf
	KindElsif
	KindElse
	KindSwitch
	KindCase
	KindUpdate
	KindForeach
	KindBreak
	KindReturn
	KindMap
	KindXlat
)

var kindNames = [...]string{
	KindModuleCall:           "module-call",
	KindGroup:                "group",
	KindPolicy:               "policy",
	KindLoadBalance:          "load-balance",
	KindRedundant:            "redundant",
	KindRedundantLoadBalance: "redundant-load-balance",
	KindParallel:             "parallel",
	KindIf:                   "if",
	KindElsif:                "elsif",
	KindElse:                 "else",
	KindSwitch:               "switch",
	KindCase:                 "case",
	KindUpdate:               "update",
	KindForeach:              "foreach",
	KindBreak:                "break",
	KindReturn:               "return",
	KindMap:                  "map",
	KindXlat:                 "xlat",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// IsGroup reports whether the kind owns a child chain the interpreter pushes
// a frame for.
func (k Kind) IsGroup() bool {
	switch k {
	case KindGroup, KindPolicy, KindLoadBalance, KindRedundant,
		KindRedundantLoadBalance, KindParallel, KindIf, KindElsif,
		KindElse, KindSwitch, KindCase, KindForeach:
		return true
	}
	return false
}

// Node is one policy statement. Exactly one payload pointer is non-nil,
// matching the Kind; the rest stay nil so a node stays small.
type Node struct {
	ID     NodeID
	Kind   Kind
	Name   string // debug name, e.g. "if (request[\"User-Name\"] == ...)"
	Parent NodeID
	Next   NodeID // next sibling in the parent's child chain
	Child  NodeID // head of this node's child chain, for group kinds

	// Actions maps each child result code to its action. Consulted by the
	// parent when this node's result is folded.
	Actions Table

	Call    *CallData
	Cond    *CondData
	Case    *CaseData
	Switch  *SwitchData
	Pick    *PickData
	Update  *UpdateData
	Foreach *ForeachData
	Map     *MapData
	Xlat    *XlatData
}

// CallData configures a module-call node. The instance and method are
// resolved at compile time so the hot path never does a registry lookup.
type CallData struct {
	Module   string
	Method   string
	Instance *module.Instance
}

// CondData holds the parsed condition of an if or elsif node.
type CondData struct {
	Condition *expr.Condition
}

// CaseData identifies one arm of a switch. A default case matches when no
// literal key did.
type CaseData struct {
	Key     string
	Default bool
}

// SwitchData holds the key template a switch expands per request.
type SwitchData struct {
	Key *expr.Template
}

// PickData holds the key template of a load-balance or
// redundant-load-balance node. A nil key selects children randomly.
type PickData struct {
	Key *expr.Template
}

// UpdateAssignment is one edit line of an update node. The value template is
// expanded per request; a nil template means the literal value is used as-is.
type UpdateAssignment struct {
	Ref      attrs.Ref
	Op       attrs.Op
	Value    interface{}
	Template *expr.Template
}

// UpdateData holds the edit list of an update node.
type UpdateData struct {
	Assignments []UpdateAssignment
}

// ForeachData configures a foreach loop over the pairs named Attr in List.
type ForeachData struct {
	List string
	Attr string
}

// MapData configures a map node: expand the input template, hand it to the
// named processor, apply the assignments it returns. The instance is
// resolved at compile time like module calls are.
type MapData struct {
	Processor string
	Input     *expr.Template
	Instance  mapproc.Processor
}

// XlatData holds the expansion of an inline-expansion node. The expansion
// runs for its side effects (logging); the node's result is fixed.
type XlatData struct {
	Template *expr.Template
}
