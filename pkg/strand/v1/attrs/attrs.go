// Package attrs implements the attribute/value-pair data model a request
// carries through policy evaluation. Lists are owned by a single execution
// and are never shared between concurrent executions, so they need no
// internal locking.
package attrs

import (
	"fmt"

	"github.com/strand-labs/strand/internal/util"
)

// Pair is a single named attribute value. Values are scalars, strings or
// string slices as produced by the config loader and by modules.
type Pair struct {
	Name  string
	Value interface{}
}

// List is an ordered collection of pairs. Duplicate names are allowed;
// ordering is insertion order, which foreach iteration relies on.
type List struct {
	pairs []Pair
}

// NewList creates a list from the given pairs.
func NewList(pairs ...Pair) *List {
	l := &List{}
	l.pairs = append(l.pairs, pairs...)
	return l
}

func (l *List) Len() int { return len(l.pairs) }

// Pairs returns the underlying pairs. Callers must not mutate the returned
// slice; use Clone for a private copy.
func (l *List) Pairs() []Pair { return l.pairs }

// Get returns the value of the first pair with the given name.
func (l *List) Get(name string) (interface{}, bool) {
	for _, p := range l.pairs {
		if p.Name == name {
			return p.Value, true
		}
	}
	return nil, false
}

// GetAll returns copies of every pair matching name, preserving order.
func (l *List) GetAll(name string) []Pair {
	var out []Pair
	for _, p := range l.pairs {
		if p.Name == name {
			out = append(out, Pair{Name: p.Name, Value: util.DeepCopy(p.Value)})
		}
	}
	return out
}

// Add appends a pair, keeping any existing pairs with the same name.
func (l *List) Add(name string, value interface{}) {
	l.pairs = append(l.pairs, Pair{Name: name, Value: value})
}

// Set replaces the first pair with the given name, or appends if absent.
// It reports whether the list changed.
func (l *List) Set(name string, value interface{}) bool {
	for i := range l.pairs {
		if l.pairs[i].Name == name {
			if l.pairs[i].Value == value {
				return false
			}
			l.pairs[i].Value = value
			return true
		}
	}
	l.pairs = append(l.pairs, Pair{Name: name, Value: value})
	return true
}

// Delete removes every pair with the given name, returning the count removed.
func (l *List) Delete(name string) int {
	kept := l.pairs[:0]
	removed := 0
	for _, p := range l.pairs {
		if p.Name == name {
			removed++
			continue
		}
		kept = append(kept, p)
	}
	l.pairs = kept
	return removed
}

// Clone returns a deep copy of the list. Foreach snapshots and module-owned
// working copies use this to keep the original list stable during iteration.
func (l *List) Clone() *List {
	out := &List{pairs: make([]Pair, len(l.pairs))}
	for i, p := range l.pairs {
		out.pairs[i] = Pair{Name: p.Name, Value: util.DeepCopy(p.Value)}
	}
	return out
}

// Cursor tracks a position while iterating pairs matching a name. An empty
// name matches every pair.
type Cursor struct {
	list *List
	name string
	next int
}

// Cursor returns a cursor over pairs matching name.
func (l *List) Cursor(name string) *Cursor {
	return &Cursor{list: l, name: name}
}

// Next returns the next matching pair, or false when exhausted.
func (c *Cursor) Next() (Pair, bool) {
	for c.next < len(c.list.pairs) {
		p := c.list.pairs[c.next]
		c.next++
		if c.name == "" || p.Name == c.name {
			return p, true
		}
	}
	return Pair{}, false
}

// Op selects how an assignment combines with the destination list.
type Op uint8

const (
	// OpSet replaces the first matching pair, adding it if absent.
	OpSet Op = iota
	// OpAdd always appends a new pair.
	OpAdd
	// OpDelete removes every matching pair; the assignment value is ignored.
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpSet:
		return "set"
	case OpAdd:
		return "add"
	case OpDelete:
		return "delete"
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// ParseOp converts the textual form used in policy documents.
func ParseOp(s string) (Op, error) {
	switch s {
	case "set", ":=":
		return OpSet, nil
	case "add", "+=":
		return OpAdd, nil
	case "delete", "!*":
		return OpDelete, nil
	}
	return OpSet, fmt.Errorf("unknown assignment op %q", s)
}

// Ref addresses an attribute inside one of a request's lists
// ("request", "reply" or "control").
type Ref struct {
	List string
	Name string
}

func (r Ref) String() string { return r.List + ":" + r.Name }

// Assignment is a single resolved attribute edit, produced by update nodes
// and by map-processor plugins.
type Assignment struct {
	Ref   Ref
	Op    Op
	Value interface{}
}
