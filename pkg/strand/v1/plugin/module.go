// Package plugin defines the public contract between the interpreter and
// processing modules: the entry-point signature, the per-call context, and
// the yield protocol a module uses to suspend itself.
package plugin

import (
	"context"

	strandlog "github.com/strand-labs/strand/pkg/strand/v1/log"
	"github.com/strand-labs/strand/pkg/strand/v1/rcode"
	"github.com/strand-labs/strand/pkg/strand/v1/request"
)

// Method is a module entry point (authorize, authenticate, accounting, ...).
// It must return promptly: long-running work suspends via Call.Yield and is
// resumed by the surrounding event loop. Methods MUST respect context
// cancellation for any synchronous blocking they do perform.
type Method func(ctx context.Context, call *Call) rcode.Code

// ResumeFunc is the continuation a yielding module registers. It receives
// the opaque state value stored at yield time and behaves exactly like a
// Method return: its code feeds the priority algorithm, or it may yield
// again. It is invoked at most once per yield.
type ResumeFunc func(ctx context.Context, call *Call, state interface{}) rcode.Code

// CancelFunc is invoked instead of the continuation when a suspended
// execution is abandoned, letting the module release resources tied to its
// opaque state. If invoked, the continuation for that yield never runs.
type CancelFunc func(call *Call, state interface{})

// Call is the per-invocation context handed to a module method. It is valid
// only for the duration of the call (or of a later resume/cancel delivery).
type Call struct {
	// Request is the request being evaluated.
	Request *request.Request
	// Thread is the module's per-execution handle, created by NewThread.
	// Shared module instance data is the module's own concurrency
	// responsibility; Thread exists so the common path needs none.
	Thread interface{}
	// Logger is scoped to the module and execution.
	Logger strandlog.Logger

	yield *Yield
	stop  bool
}

// Stop requests that the whole execution stop processing immediately. The
// interpreter abandons the stack without folding any further results; the
// caller of Run receives a StopError. The returned code is what the method
// should return and is never folded.
func (c *Call) Stop() rcode.Code {
	c.stop = true
	return rcode.Fail
}

// Stopped reports whether the module requested stop-processing. Used by the
// interpreter after a method or continuation returns.
func (c *Call) Stopped() bool { return c.stop }

// Yield captures the continuation state of a suspended module call.
// The State value is owned by the module; the interpreter never inspects it.
type Yield struct {
	Resume ResumeFunc
	Cancel CancelFunc
	State  interface{}
}

// Yield registers a continuation and returns rcode.Yield for the method to
// return. The cancel callback may be nil if the module holds no resources
// across the suspension.
func (c *Call) Yield(resume ResumeFunc, cancel CancelFunc, state interface{}) rcode.Code {
	c.yield = &Yield{Resume: resume, Cancel: cancel, State: state}
	return rcode.Yield
}

// TakeYield removes and returns the registered yield, if any. Called by the
// interpreter after a method returns rcode.Yield.
func (c *Call) TakeYield() *Yield {
	y := c.yield
	c.yield = nil
	return y
}

// Module is the fundamental unit of processing logic invoked from policy.
// A Module is instantiated once per configuration block and shared across
// all concurrent executions; anything mutable belongs in the thread handle.
type Module interface {
	// Name returns the module's instance name for logging.
	Name() string
	// Methods returns the module's entry points keyed by method name.
	Methods() map[string]Method
	// NewThread returns a fresh per-execution handle, or nil if the module
	// keeps no per-execution state.
	NewThread() interface{}
}

// ModuleFactory creates a module instance from its configuration block.
type ModuleFactory func(config map[string]interface{}) (Module, error)

// Registry defines the public interface for the module registry.
type Registry interface {
	// Get retrieves the factory for a given module type name. It returns a
	// strand errors.ModuleNotFoundError if the name is not registered.
	Get(name string) (ModuleFactory, error)

	// Register associates a module type name with its factory. It must be
	// concurrency-safe and reject empty names, nil factories and duplicates.
	Register(name string, factory ModuleFactory) error

	// List returns the names of all registered module types, unordered.
	List() []string
}
