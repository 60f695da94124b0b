package interp

import (
	"context"
	"fmt"
	"time"

	"github.com/strand-labs/strand/internal/module"
	"github.com/strand-labs/strand/internal/policy"
	"github.com/strand-labs/strand/internal/util"
	v1 "github.com/strand-labs/strand/pkg/strand/v1"
	"github.com/strand-labs/strand/pkg/strand/v1/attrs"
	stranderrors "github.com/strand-labs/strand/pkg/strand/v1/errors"
	"github.com/strand-labs/strand/pkg/strand/v1/events"
	strandlog "github.com/strand-labs/strand/pkg/strand/v1/log"
	"github.com/strand-labs/strand/pkg/strand/v1/plugin"
	"github.com/strand-labs/strand/pkg/strand/v1/rcode"
	"github.com/strand-labs/strand/pkg/strand/v1/request"
)

// execStatus is the internal outcome of driving an execution: either a
// terminal code or a suspension.
type execStatus struct {
	suspended bool
	code      rcode.Code
}

// execution is one in-flight evaluation of a policy section against a
// request. It is single-threaded: exactly one goroutine drives it at a time,
// between suspensions.
type execution struct {
	interp  *Interpreter
	req     *request.Request
	graph   *policy.Graph
	section string
	log     strandlog.Logger

	frames []*frame

	// threads holds per-execution module handles, created lazily.
	threads map[string]interface{}

	foreachDepth int
	returning    bool
	done         bool

	// nested marks a parallel child execution; lifecycle events and the
	// yield counter belong to the outer execution only.
	nested bool

	// pending is the parked module continuation while suspended on a
	// module call. Parallel suspensions live on the owning frame instead.
	pending *pendingYield

	start time.Time
}

func (e *execution) top() *frame { return e.frames[len(e.frames)-1] }

// push adds a frame, enforcing the stack bound.
func (e *execution) push(f *frame, nodeName string) error {
	if len(e.frames) >= MaxStackDepth {
		return stranderrors.NewNestingError(nodeName, len(e.frames)+1, MaxStackDepth)
	}
	e.frames = append(e.frames, f)
	return nil
}

func (e *execution) pop() *frame {
	f := e.frames[len(e.frames)-1]
	e.frames = e.frames[:len(e.frames)-1]
	return f
}

// thread returns the module's per-execution handle, creating it on first use.
func (e *execution) thread(inst *module.Instance) interface{} {
	if t, ok := e.threads[inst.Name()]; ok {
		return t
	}
	t := inst.NewThread()
	e.threads[inst.Name()] = t
	return t
}

// run drives the stack until the execution finishes, suspends or fails.
func (e *execution) run(ctx context.Context) (execStatus, error) {
	for len(e.frames) > 0 {
		if err := ctx.Err(); err != nil {
			e.cancel()
			return execStatus{code: rcode.Fail}, stranderrors.NewCanceledError(e.req.ID)
		}

		f := e.top()

		if f.node == policy.NilNode {
			if status, done := e.levelDone(f); done {
				return status, nil
			}
			continue
		}

		n := e.graph.Node(f.node)
		status, err := e.execNode(ctx, f, n)
		if err != nil {
			e.cancel()
			return execStatus{code: rcode.Fail}, err
		}
		if status.suspended {
			return status, nil
		}
	}
	return execStatus{code: e.finalCode()}, nil
}

// levelDone handles an exhausted frame: iterate loops, otherwise pop and
// fold into the parent. It reports a final status when the last frame pops.
func (e *execution) levelDone(f *frame) (execStatus, bool) {
	if f.mode == modeLoop {
		if !e.returning && f.loop.idx+1 < len(f.loop.pairs) {
			f.loop.idx++
			e.bindLoopVar(f)
			f.node = e.graph.Node(f.owner).Child
			return execStatus{}, false
		}
		e.unbindLoopVar(f)
		e.foreachDepth--
	}

	res := f.levelResult()
	e.pop()
	if len(e.frames) == 0 {
		e.done = true
		return execStatus{code: res}, true
	}

	parent := e.top()
	report := e.graph.Node(f.report)
	e.afterResult(parent, report, res)
	return execStatus{}, false
}

// finalCode is the terminal result when the stack empties.
func (e *execution) finalCode() rcode.Code {
	e.done = true
	return rcode.Noop
}

// afterResult folds a node's result into its frame and advances the walk.
// It is the single place the five-way directive logic converges: module
// returns, group pops and resumed continuations all route through here.
func (e *execution) afterResult(f *frame, n *policy.Node, code rcode.Code) {
	switch f.mode {
	case modePickOne:
		f.result = code
		f.resultSet = true
		f.node = policy.NilNode

	case modeRedundant:
		f.result = code
		f.resultSet = true
		if e.returning || code.IsGood() || f.pick.idx == len(f.pick.order)-1 {
			f.node = policy.NilNode
			return
		}
		f.pick.idx++
		f.node = f.pick.order[f.pick.idx]

	default:
		stop := f.fold(n, code)
		if stop || e.returning {
			f.node = policy.NilNode
			return
		}
		e.advance(f, n)
	}
}

// advance moves the walk past n, resetting the conditional-chain flag when
// the chain ends.
func (e *execution) advance(f *frame, n *policy.Node) {
	f.node = n.Next
	if n.Kind != policy.KindIf && n.Kind != policy.KindElsif {
		f.condTaken = false
	}
}

// pushGroup pushes a frame for a group node's children. report is the node
// in the parent frame the popped result folds through, usually the group
// itself but the enclosing switch for case arms.
func (e *execution) pushGroup(owner, report *policy.Node, mode frameMode) (execStatus, error) {
	f := &frame{
		owner:  owner.ID,
		report: report.ID,
		node:   owner.Child,
		mode:   mode,
	}
	if err := e.push(f, owner.Name); err != nil {
		return execStatus{}, err
	}
	return execStatus{}, nil
}

// execNode runs one node of frame f. A returned suspended status parks the
// execution; an error aborts it.
func (e *execution) execNode(ctx context.Context, f *frame, n *policy.Node) (execStatus, error) {
	switch n.Kind {
	case policy.KindModuleCall:
		return e.execModuleCall(ctx, f, n)

	case policy.KindGroup, policy.KindPolicy:
		if n.Child == policy.NilNode {
			e.afterResult(f, n, rcode.Noop)
			return execStatus{}, nil
		}
		return e.pushGroup(n, n, modeWalk)

	case policy.KindIf, policy.KindElsif:
		return e.execConditional(f, n)

	case policy.KindElse:
		if f.condTaken {
			f.condTaken = false
			f.node = n.Next
			return execStatus{}, nil
		}
		if n.Child == policy.NilNode {
			e.afterResult(f, n, rcode.Noop)
			return execStatus{}, nil
		}
		return e.pushGroup(n, n, modeWalk)

	case policy.KindSwitch:
		return e.execSwitch(f, n)

	case policy.KindForeach:
		return e.execForeach(f, n)

	case policy.KindBreak:
		e.execBreak()
		return execStatus{}, nil

	case policy.KindReturn:
		e.returning = true
		f.node = policy.NilNode
		return execStatus{}, nil

	case policy.KindUpdate:
		e.afterResult(f, n, e.execUpdate(n))
		return execStatus{}, nil

	case policy.KindMap:
		e.afterResult(f, n, e.execMap(ctx, n))
		return execStatus{}, nil

	case policy.KindXlat:
		e.afterResult(f, n, e.execXlat(n))
		return execStatus{}, nil

	case policy.KindLoadBalance:
		children := e.childIDs(n)
		start := e.pickStart(n, len(children))
		f2 := &frame{
			owner:  n.ID,
			report: n.ID,
			node:   children[start],
			mode:   modePickOne,
		}
		if err := e.push(f2, n.Name); err != nil {
			return execStatus{}, err
		}
		return execStatus{}, nil

	case policy.KindRedundant, policy.KindRedundantLoadBalance:
		children := e.childIDs(n)
		start := 0
		if n.Kind == policy.KindRedundantLoadBalance {
			start = e.pickStart(n, len(children))
		}
		// Rotate so the walk starts at the picked child and wraps around.
		order := make([]policy.NodeID, 0, len(children))
		for i := 0; i < len(children); i++ {
			order = append(order, children[(start+i)%len(children)])
		}
		f2 := &frame{
			owner:  n.ID,
			report: n.ID,
			node:   order[0],
			mode:   modeRedundant,
			pick:   &pickState{order: order},
		}
		if err := e.push(f2, n.Name); err != nil {
			return execStatus{}, err
		}
		return execStatus{}, nil

	case policy.KindParallel:
		return e.execParallel(ctx, f, n)

	case policy.KindCase:
		// Cases are entered via their switch; a directly-walked case is a
		// compiler bug.
		return execStatus{}, stranderrors.NewValidationError(
			fmt.Sprintf("case node %q walked outside switch", n.Name), nil)
	}

	return execStatus{}, stranderrors.NewValidationError(
		fmt.Sprintf("unknown node kind %s", n.Kind), nil)
}

func (e *execution) execModuleCall(ctx context.Context, f *frame, n *policy.Node) (execStatus, error) {
	inst := n.Call.Instance
	method, err := inst.Method(n.Call.Method)
	if err != nil {
		return execStatus{}, err
	}

	call := &plugin.Call{
		Request: e.req,
		Thread:  e.thread(inst),
		Logger:  e.log.With("module", inst.Name()),
	}

	e.interp.emit(events.Event{
		Type:        events.ModuleCallStart,
		Timestamp:   time.Now(),
		PolicyName:  e.graph.Name(),
		ExecutionID: e.req.ID,
		Node:        n.Name,
	})
	code := method(ctx, call)
	e.interp.metrics.moduleCallsTotal.WithLabelValues(n.Call.Module, n.Call.Method).Inc()
	e.interp.emit(events.Event{
		Type:        events.ModuleCallEnd,
		Timestamp:   time.Now(),
		PolicyName:  e.graph.Name(),
		ExecutionID: e.req.ID,
		Node:        n.Name,
		Payload:     map[string]interface{}{"rcode": code.String()},
	})

	if call.Stopped() {
		return execStatus{}, stranderrors.NewStopError(n.Name)
	}

	if code == rcode.Yield {
		y := call.TakeYield()
		if y == nil {
			// Yield without a registered continuation is a module bug.
			e.log.Errorf("module '%s' returned yield without a continuation", inst.Name())
			e.afterResult(f, n, rcode.Fail)
			return execStatus{}, nil
		}
		e.pending = &pendingYield{yield: y, call: call, node: n.ID}
		return e.suspend(), nil
	}

	e.afterResult(f, n, code)
	return execStatus{}, nil
}

// suspend emits the yield event and returns the suspended status. Parallel
// children stay silent; the outer execution reports the suspension.
func (e *execution) suspend() execStatus {
	if !e.nested {
		e.interp.metrics.yieldsTotal.Inc()
		e.interp.emit(events.Event{
			Type:        events.ExecutionYield,
			Timestamp:   time.Now(),
			PolicyName:  e.graph.Name(),
			ExecutionID: e.req.ID,
		})
	}
	return execStatus{suspended: true, code: rcode.Yield}
}

func (e *execution) execConditional(f *frame, n *policy.Node) (execStatus, error) {
	if n.Kind == policy.KindElsif && f.condTaken {
		f.node = n.Next
		return execStatus{}, nil
	}

	matched, err := n.Cond.Condition.Evaluate(e.req)
	if err != nil {
		// An unevaluable condition is false, not fatal.
		e.log.Warnf("condition in %s treated as false: %v", n.Name, err)
		matched = false
	}
	f.condTaken = matched
	if !matched {
		f.node = n.Next
		return execStatus{}, nil
	}
	if n.Child == policy.NilNode {
		e.afterResult(f, n, rcode.Noop)
		return execStatus{}, nil
	}
	return e.pushGroup(n, n, modeWalk)
}

func (e *execution) execSwitch(f *frame, n *policy.Node) (execStatus, error) {
	key, err := n.Switch.Key.Evaluate(e.req)
	if err != nil {
		e.log.Warnf("switch key in %s failed to expand: %v", n.Name, err)
		e.afterResult(f, n, rcode.Fail)
		return execStatus{}, nil
	}

	var match, deflt *policy.Node
	for c := n.Child; c != policy.NilNode; c = e.graph.Node(c).Next {
		cn := e.graph.Node(c)
		if cn.Case.Default {
			deflt = cn
			continue
		}
		if cn.Case.Key == key {
			match = cn
			break
		}
	}
	if match == nil {
		match = deflt
	}
	if match == nil || match.Child == policy.NilNode {
		e.afterResult(f, n, rcode.Noop)
		return execStatus{}, nil
	}
	// The case arm reports through the switch node, not through itself.
	return e.pushGroup(match, n, modeWalk)
}

func (e *execution) execForeach(f *frame, n *policy.Node) (execStatus, error) {
	list, err := e.req.List(n.Foreach.List)
	if err != nil {
		e.afterResult(f, n, rcode.Fail)
		return execStatus{}, nil
	}
	pairs := list.GetAll(n.Foreach.Attr)
	if len(pairs) == 0 || n.Child == policy.NilNode {
		e.afterResult(f, n, rcode.Noop)
		return execStatus{}, nil
	}
	if e.foreachDepth >= policy.MaxForeachDepth {
		e.afterResult(f, n, rcode.Fail)
		return execStatus{}, nil
	}

	f2 := &frame{
		owner:  n.ID,
		report: n.ID,
		node:   n.Child,
		mode:   modeLoop,
		loop: &loopState{
			pairs: pairs,
			attr:  fmt.Sprintf("Foreach-%d", e.foreachDepth),
		},
	}
	if err := e.push(f2, n.Name); err != nil {
		return execStatus{}, err
	}
	e.foreachDepth++
	e.bindLoopVar(f2)
	return execStatus{}, nil
}

func (e *execution) bindLoopVar(f *frame) {
	e.req.Control.Set(f.loop.attr, util.DeepCopy(f.loop.pairs[f.loop.idx].Value))
}

func (e *execution) unbindLoopVar(f *frame) {
	e.req.Control.Delete(f.loop.attr)
}

// execBreak unwinds to the nearest enclosing foreach frame and ends its
// iteration. Frames between the break and the loop are discarded without
// folding; completed iterations keep their folded result.
func (e *execution) execBreak() {
	for len(e.frames) > 0 {
		f := e.top()
		if f.mode == modeLoop {
			f.loop.idx = len(f.loop.pairs)
			f.node = policy.NilNode
			return
		}
		e.pop()
	}
}

func (e *execution) execUpdate(n *policy.Node) rcode.Code {
	assignments := make([]attrs.Assignment, 0, len(n.Update.Assignments))
	for _, ua := range n.Update.Assignments {
		a := attrs.Assignment{Ref: ua.Ref, Op: ua.Op}
		if ua.Template != nil {
			val, err := ua.Template.EvaluateValue(e.req)
			if err != nil {
				e.log.Warnf("update %s failed to expand: %v", ua.Ref, err)
				return rcode.Fail
			}
			a.Value = val
		} else {
			a.Value = util.DeepCopy(ua.Value)
		}
		assignments = append(assignments, a)
	}

	changed, err := e.req.Apply(assignments)
	if err != nil {
		e.log.Errorf("update failed: %v", err)
		return rcode.Fail
	}
	if changed > 0 {
		return rcode.Updated
	}
	return rcode.Noop
}

func (e *execution) execMap(ctx context.Context, n *policy.Node) rcode.Code {
	input, err := n.Map.Input.Evaluate(e.req)
	if err != nil {
		e.log.Warnf("map input for '%s' failed to expand: %v", n.Map.Processor, err)
		return rcode.Fail
	}
	assignments, code := n.Map.Instance.Evaluate(ctx, e.req, input)
	if len(assignments) > 0 {
		if _, err := e.req.Apply(assignments); err != nil {
			e.log.Errorf("map '%s' produced invalid assignments: %v", n.Map.Processor, err)
			return rcode.Fail
		}
	}
	return code
}

func (e *execution) execXlat(n *policy.Node) rcode.Code {
	out, err := n.Xlat.Template.Evaluate(e.req)
	if err != nil {
		e.log.Warnf("expansion failed: %v", err)
		return rcode.Fail
	}
	e.log.Debugf("expand: %s", out)
	return rcode.OK
}

// childIDs collects a group node's direct children.
func (e *execution) childIDs(n *policy.Node) []policy.NodeID {
	var out []policy.NodeID
	for c := n.Child; c != policy.NilNode; c = e.graph.Node(c).Next {
		out = append(out, c)
	}
	return out
}

// resume dispatches a Suspension.Resume and wraps the outcome in the public
// result type.
func (e *execution) resume(ctx context.Context) (v1.Result, error) {
	st, err := e.resumeInternal(ctx)
	return e.wrap(st, err)
}

// resumeInternal routes the resume to whichever kind of suspension is
// parked: a parallel group or a single module continuation.
func (e *execution) resumeInternal(ctx context.Context) (execStatus, error) {
	if len(e.frames) > 0 && e.top().par != nil {
		return e.resumeParallel(ctx)
	}
	return e.resumeModule(ctx)
}

// resumeModule delivers the parked continuation and drives the execution
// onward. The continuation may yield again.
func (e *execution) resumeModule(ctx context.Context) (execStatus, error) {
	py := e.pending
	if py == nil {
		return execStatus{code: rcode.Fail}, stranderrors.NewValidationError(
			"resume with no pending continuation", nil)
	}
	e.pending = nil

	code := py.yield.Resume(ctx, py.call, py.yield.State)
	if py.call.Stopped() {
		e.cancel()
		return execStatus{code: rcode.Fail}, stranderrors.NewStopError(e.graph.Node(py.node).Name)
	}
	if code == rcode.Yield {
		y := py.call.TakeYield()
		if y == nil {
			e.log.Errorf("resumed module returned yield without a continuation")
			code = rcode.Fail
		} else {
			e.pending = &pendingYield{yield: y, call: py.call, node: py.node}
			return e.suspend(), nil
		}
	}

	f := e.top()
	n := e.graph.Node(py.node)
	e.afterResult(f, n, code)
	return e.run(ctx)
}

// cancel abandons the execution, delivering cancel callbacks to every
// suspended module call, including those inside parallel groups.
func (e *execution) cancel() {
	if e.pending != nil {
		py := e.pending
		e.pending = nil
		if py.yield.Cancel != nil {
			py.yield.Cancel(py.call, py.yield.State)
		}
	}
	for i := len(e.frames) - 1; i >= 0; i-- {
		if par := e.frames[i].par; par != nil {
			par.cancelSubs()
		}
	}
	e.frames = nil
	e.done = true
}

// wrap converts an internal status into the public result, minting a fresh
// suspension handle when the execution parked.
func (e *execution) wrap(st execStatus, err error) (v1.Result, error) {
	if err != nil {
		e.finish(rcode.Fail.String())
		return v1.Result{Code: rcode.Fail}, err
	}
	if st.suspended {
		return v1.Result{Code: rcode.Yield, Suspension: &suspension{exec: e}}, nil
	}
	e.finish(st.code.String())
	return v1.Result{Code: st.code}, nil
}

// finish records terminal metrics and the ExecutionEnd event. outcome is the
// terminal result code, or "canceled" for an abandoned suspension.
func (e *execution) finish(outcome string) {
	e.interp.metrics.executionsTotal.WithLabelValues(outcome).Inc()
	e.interp.metrics.executionDuration.Observe(time.Since(e.start).Seconds())
	e.interp.emit(events.Event{
		Type:        events.ExecutionEnd,
		Timestamp:   time.Now(),
		PolicyName:  e.graph.Name(),
		ExecutionID: e.req.ID,
		Payload:     map[string]interface{}{"rcode": outcome, "section": e.section},
	})
}
