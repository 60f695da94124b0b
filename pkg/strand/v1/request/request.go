// Package request defines the per-request container handed to the
// interpreter and to processing modules. A Request is owned by exactly one
// execution at a time and is never shared between concurrent executions.
package request

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/strand-labs/strand/pkg/strand/v1/attrs"
	strandlog "github.com/strand-labs/strand/pkg/strand/v1/log"
)

// Request carries the attribute lists policy evaluation reads and writes.
type Request struct {
	// ID uniquely identifies this request for logging and event correlation.
	ID string

	// Packet holds the attributes of the incoming request.
	Packet *attrs.List
	// Reply accumulates attributes for the outgoing response.
	Reply *attrs.List
	// Control holds server-internal attributes, including foreach loop
	// variables bound during iteration.
	Control *attrs.List

	// Log is the request-scoped logger. May be nil; the interpreter
	// substitutes its own logger in that case.
	Log strandlog.Logger
}

// New creates an empty request with a fresh ID.
func New() *Request {
	return &Request{
		ID:      uuid.NewString(),
		Packet:  attrs.NewList(),
		Reply:   attrs.NewList(),
		Control: attrs.NewList(),
	}
}

// List resolves a list reference name to the corresponding list.
func (r *Request) List(name string) (*attrs.List, error) {
	switch name {
	case "request":
		return r.Packet, nil
	case "reply":
		return r.Reply, nil
	case "control":
		return r.Control, nil
	}
	return nil, fmt.Errorf("unknown attribute list %q", name)
}

// Apply performs the given assignments against the request's lists,
// returning how many of them changed anything.
func (r *Request) Apply(assignments []attrs.Assignment) (int, error) {
	changed := 0
	for _, a := range assignments {
		list, err := r.List(a.Ref.List)
		if err != nil {
			return changed, err
		}
		switch a.Op {
		case attrs.OpSet:
			if list.Set(a.Ref.Name, a.Value) {
				changed++
			}
		case attrs.OpAdd:
			list.Add(a.Ref.Name, a.Value)
			changed++
		case attrs.OpDelete:
			if list.Delete(a.Ref.Name) > 0 {
				changed++
			}
		default:
			return changed, fmt.Errorf("unknown assignment op %d for %s", a.Op, a.Ref)
		}
	}
	return changed, nil
}
