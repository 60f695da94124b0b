package interp

import (
	"context"

	"github.com/strand-labs/strand/internal/policy"
	"github.com/strand-labs/strand/pkg/strand/v1/rcode"
)

// subExec is one child of a parallel group, run on its own stack so its
// nesting depth and suspension state are independent of its siblings.
type subExec struct {
	e *execution
	// child is the statement this sub runs, and the node whose action
	// table its result folds through.
	child    policy.NodeID
	done     bool
	canceled bool
}

// parallelState is the in-flight state of one parallel node. It lives on the
// owning frame across suspensions.
type parallelState struct {
	node policy.NodeID
	subs []*subExec
	// queue holds suspended sub indices in the order they yielded; resumes
	// are delivered oldest first.
	queue []int
	// agg folds completed sub results like an ordinary group level.
	agg frame
	// stop is set when a sub's folded result short-circuits the group;
	// remaining suspended subs are canceled.
	stop bool
}

// execParallel starts every child of a parallel node, each on a fresh stack.
// Children run in order; one that suspends parks in the queue while its
// siblings proceed. The node completes when every child has, or early when a
// folded result short-circuits.
func (e *execution) execParallel(ctx context.Context, f *frame, n *policy.Node) (execStatus, error) {
	children := e.childIDs(n)
	if len(children) == 0 {
		e.afterResult(f, n, rcode.Noop)
		return execStatus{}, nil
	}

	st := &parallelState{node: n.ID, agg: frame{mode: modeWalk}}
	for _, c := range children {
		st.subs = append(st.subs, &subExec{e: e.newSub(c), child: c})
	}

	for idx, sub := range st.subs {
		if st.stop {
			break
		}
		sst, err := sub.e.run(ctx)
		if err != nil {
			st.cancelSubs()
			return execStatus{}, err
		}
		if sst.suspended {
			st.queue = append(st.queue, idx)
			continue
		}
		sub.done = true
		e.foldSub(st, sub, sst.code)
	}

	return e.settleParallel(f, n, st), nil
}

// resumeParallel delivers a resume to the oldest suspended child and drives
// it until it finishes or suspends again.
func (e *execution) resumeParallel(ctx context.Context) (execStatus, error) {
	f := e.top()
	st := f.par
	n := e.graph.Node(st.node)

	idx := st.queue[0]
	st.queue = st.queue[1:]
	sub := st.subs[idx]

	sst, err := sub.e.resumeInternal(ctx)
	if err != nil {
		st.cancelSubs()
		return execStatus{}, err
	}
	if sst.suspended {
		st.queue = append(st.queue, idx)
		return e.suspend(), nil
	}
	sub.done = true
	e.foldSub(st, sub, sst.code)

	if settled := e.settleParallel(f, n, st); settled.suspended {
		return settled, nil
	}
	return e.run(ctx)
}

// foldSub folds a completed child's result through that child's action
// table. A short-circuiting action stops the group and cancels the children
// still suspended; their continuations never run.
func (e *execution) foldSub(st *parallelState, sub *subExec, code rcode.Code) {
	if st.agg.fold(e.graph.Node(sub.child), code) {
		st.stop = true
		st.cancelSubs()
	}
}

// settleParallel either completes the parallel node, letting the caller's
// walk continue, or suspends the execution until the next child resume.
func (e *execution) settleParallel(f *frame, n *policy.Node, st *parallelState) execStatus {
	if len(st.queue) > 0 && !st.stop {
		f.par = st
		return e.suspend()
	}
	f.par = nil
	e.afterResult(f, n, st.agg.levelResult())
	return execStatus{}
}

// cancelSubs cancels every still-suspended child.
func (st *parallelState) cancelSubs() {
	for _, idx := range st.queue {
		sub := st.subs[idx]
		if !sub.done && !sub.canceled {
			sub.e.cancel()
			sub.canceled = true
		}
	}
	st.queue = nil
}

// newSub builds a child execution sharing the parent's request and module
// threads but owning its own stack.
func (e *execution) newSub(child policy.NodeID) *execution {
	sub := &execution{
		interp:  e.interp,
		req:     e.req,
		graph:   e.graph,
		section: e.section,
		log:     e.log,
		threads: e.threads,
		nested:  true,
		start:   e.start,
		// The request's control list is shared, so loop bindings inside the
		// child must continue the parent's Foreach-<depth> numbering.
		foreachDepth: e.foreachDepth,
	}
	// A fresh stack always has room for the root frame.
	_ = sub.push(&frame{
		owner:  child,
		report: child,
		node:   child,
		mode:   modePickOne,
	}, e.graph.Node(child).Name)
	return sub
}
