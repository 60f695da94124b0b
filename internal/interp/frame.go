package interp

import (
	"github.com/strand-labs/strand/internal/policy"
	"github.com/strand-labs/strand/pkg/strand/v1/attrs"
	"github.com/strand-labs/strand/pkg/strand/v1/rcode"
)

// MaxStackDepth bounds policy nesting. One frame is pushed per nesting
// level, so 64 levels of grouping is the deepest legal policy.
const MaxStackDepth = 64

// frameMode selects how a frame walks its nodes and folds their results.
type frameMode uint8

const (
	// modeWalk runs the sibling chain in order, folding each result through
	// the producing node's action table.
	modeWalk frameMode = iota
	// modeLoop is modeWalk plus iteration: when the chain is exhausted the
	// frame rebinds the loop variable and starts over until the snapshot
	// runs out.
	modeLoop
	// modePickOne runs exactly one candidate; its result becomes the frame
	// result without table folding.
	modePickOne
	// modeRedundant runs candidates in order until one returns a good code
	// or the candidates run out; the last result wins.
	modeRedundant
)

// loopState carries a foreach frame's iteration across the snapshot taken
// when the loop was entered.
type loopState struct {
	pairs []attrs.Pair
	idx   int
	// attr is the control-list binding name, Foreach-<depth>.
	attr string
}

// pickState carries candidate order for redundant and load-balance frames.
type pickState struct {
	order []policy.NodeID
	idx   int
}

// frame is one level of the execution stack: the children of one group node
// being walked, plus the folded result so far.
type frame struct {
	// owner is the group node this frame executes the children of.
	owner policy.NodeID
	// report is the node in the parent frame the popped result folds
	// through. Usually the owner; for a case arm it is the enclosing
	// switch, so the walk advances past the switch instead of to the
	// next case.
	report policy.NodeID
	// node is the current child, NilNode once the level is exhausted.
	node policy.NodeID

	mode frameMode
	loop *loopState
	pick *pickState

	// par holds in-flight parallel group state while this frame's current
	// node is a suspended parallel node.
	par *parallelState

	// result/priority accumulate the level's folded outcome. resultSet
	// distinguishes "no child produced a result" (the level reports noop).
	result    rcode.Code
	priority  policy.Action
	resultSet bool

	// condTaken tracks whether the most recent if/elsif in the sibling
	// chain ran its body, so elsif and else arms know to skip.
	condTaken bool
}

// fold combines a child result produced by node n into the frame, honoring
// n's action table. It reports whether the level must stop immediately.
func (f *frame) fold(n *policy.Node, code rcode.Code) (stop bool) {
	// A code outside the table (a buggy module) is treated as a failure.
	if code >= rcode.NumCodes {
		code = rcode.Fail
	}

	if f.mode == modePickOne || f.mode == modeRedundant {
		// Candidate results bypass tables; the pick logic in the
		// interpreter decides what happens next.
		f.result = code
		f.resultSet = true
		return false
	}

	action := n.Actions[code]
	switch {
	case action == policy.ActionIgnore:
		return false

	case action == policy.ActionReject:
		f.result = rcode.Reject
		f.resultSet = true
		return true

	case action == policy.ActionReturn:
		f.result = code
		f.resultSet = true
		return true

	default:
		// Highest priority wins; ties go to the later child.
		if !f.resultSet || action >= f.priority {
			f.result = code
			f.priority = action
			f.resultSet = true
		}
		return false
	}
}

// levelResult is what the frame reports when it pops. A level where nothing
// produced a result reports noop.
func (f *frame) levelResult() rcode.Code {
	if !f.resultSet {
		return rcode.Noop
	}
	return f.result
}
