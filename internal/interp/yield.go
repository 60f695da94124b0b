package interp

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/strand-labs/strand/internal/policy"
	v1 "github.com/strand-labs/strand/pkg/strand/v1"
	stranderrors "github.com/strand-labs/strand/pkg/strand/v1/errors"
	"github.com/strand-labs/strand/pkg/strand/v1/events"
	"github.com/strand-labs/strand/pkg/strand/v1/plugin"
	"github.com/strand-labs/strand/pkg/strand/v1/rcode"
)

// pendingYield is the resumption record parked on an execution while a
// module call is suspended: the module's continuation plus the call context
// it must be delivered with.
type pendingYield struct {
	yield *plugin.Yield
	call  *plugin.Call
	// node is the suspended module-call node, needed to fold the
	// continuation's result when it arrives.
	node policy.NodeID
}

// suspension implements the public v1.Suspension handle. consumed enforces
// the at-most-once contract for Resume/Cancel.
type suspension struct {
	exec     *execution
	consumed atomic.Bool
}

var _ v1.Suspension = (*suspension)(nil)

// Resume delivers control back to the suspended module call and drives the
// execution until it finishes or suspends again.
func (s *suspension) Resume(ctx context.Context) (v1.Result, error) {
	if !s.consumed.CompareAndSwap(false, true) {
		return v1.Result{Code: rcode.Fail}, stranderrors.NewValidationError(
			"suspension already resumed or canceled", nil)
	}
	e := s.exec
	e.interp.emit(events.Event{
		Type:        events.ExecutionResume,
		Timestamp:   time.Now(),
		PolicyName:  e.graph.Name(),
		ExecutionID: e.req.ID,
	})
	e.interp.metrics.resumesTotal.Inc()
	return e.resume(ctx)
}

// Cancel abandons the execution. Every suspended module call gets its cancel
// callback so resources tied to the opaque state are released; the
// continuation for those yields never runs.
func (s *suspension) Cancel(ctx context.Context) error {
	if !s.consumed.CompareAndSwap(false, true) {
		return stranderrors.NewValidationError(
			"suspension already resumed or canceled", nil)
	}
	e := s.exec
	e.interp.emit(events.Event{
		Type:        events.ExecutionCancel,
		Timestamp:   time.Now(),
		PolicyName:  e.graph.Name(),
		ExecutionID: e.req.ID,
	})
	e.interp.metrics.cancelsTotal.Inc()
	e.cancel()
	e.finish("canceled")
	return nil
}
