package policy

import (
	"fmt"

	"github.com/strand-labs/strand/pkg/strand/v1/rcode"
)

// Action is what a group does with a child's result code: either a positive
// priority that competes to become the section result, or one of the two
// control markers.
type Action int8

const (
	// ActionReturn stops the enclosing group immediately; the child's result
	// becomes the group result.
	ActionReturn Action = -1
	// ActionReject stops the enclosing group immediately and forces the
	// result to reject.
	ActionReject Action = -2
	// ActionIgnore discards the child's result entirely.
	ActionIgnore Action = 0
)

func (a Action) String() string {
	switch a {
	case ActionReturn:
		return "return"
	case ActionReject:
		return "reject"
	case ActionIgnore:
		return "ignore"
	}
	return fmt.Sprintf("%d", int8(a))
}

// Table maps every result code to the action taken when a child produces it.
type Table [rcode.NumCodes]Action

// DefaultTable is the action table applied when a node carries no overrides.
// Hard failures return immediately; soft results carry graduated priorities
// so updated beats ok beats noop beats notfound.
func DefaultTable() Table {
	var t Table
	t[rcode.Reject] = ActionReturn
	t[rcode.Fail] = ActionReturn
	t[rcode.OK] = 3
	t[rcode.Handled] = ActionReturn
	t[rcode.Invalid] = ActionReturn
	t[rcode.Disallow] = ActionReturn
	t[rcode.UserLock] = ActionReturn
	t[rcode.NotFound] = 1
	t[rcode.Noop] = 2
	t[rcode.Updated] = 4
	return t
}

// ParseAction converts the textual form used in policy documents: "return",
// "reject", "ignore", or a positive integer priority.
func ParseAction(s string) (Action, error) {
	switch s {
	case "return":
		return ActionReturn, nil
	case "reject":
		return ActionReject, nil
	case "ignore":
		return ActionIgnore, nil
	}
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil || n < 1 || n > 125 {
		return ActionIgnore, fmt.Errorf("invalid action %q: want return, reject, ignore or priority 1..125", s)
	}
	return Action(n), nil
}
