// Package v1 defines the public, stable API surface of the strand policy
// interpreter. Consumers depend on these interfaces; the implementation
// lives under internal/ and is constructed via the interp package.
package v1

import (
	"context"

	"github.com/strand-labs/strand/pkg/strand/v1/rcode"
	"github.com/strand-labs/strand/pkg/strand/v1/request"
)

// Result is the outcome of running (or resuming) a policy section. When the
// execution suspended instead of finishing, Code is rcode.Yield and
// Suspension carries the handle to continue it.
type Result struct {
	Code       rcode.Code
	Suspension Suspension
}

// Done reports whether the execution reached a terminal result.
func (r Result) Done() bool { return r.Suspension == nil }

// Suspension is a handle to a suspended execution. Exactly one of Resume or
// Cancel may be called, exactly once; both report an error on reuse. The
// owning event loop calls Resume when the awaited external event arrives, or
// Cancel to abandon the execution and release module resources.
type Suspension interface {
	// Resume continues the execution. It may complete, or suspend again
	// with a fresh Suspension in the returned Result.
	Resume(ctx context.Context) (Result, error)

	// Cancel abandons the execution, invoking the cancel callbacks of every
	// suspended module call so they can release resources.
	Cancel(ctx context.Context) error
}

// Interpreter is the engine that runs compiled policy sections against
// requests. Implementations are safe for concurrent Run calls; each call
// owns its request exclusively until the returned execution finishes.
type Interpreter interface {
	// Run evaluates the named section of the active policy against req.
	Run(ctx context.Context, req *request.Request, section string) (Result, error)
}
