// Package mapproc defines the map-processor plugin contract used by map
// nodes: a template value in, a list of attribute assignments out.
package mapproc

import (
	"context"

	"github.com/strand-labs/strand/pkg/strand/v1/attrs"
	"github.com/strand-labs/strand/pkg/strand/v1/rcode"
	"github.com/strand-labs/strand/pkg/strand/v1/request"
)

// Processor is an instantiated map processor. Implementations are shared
// across concurrent executions and must be safe for concurrent Evaluate
// calls.
type Processor interface {
	// Name returns the processor's instance name for logging.
	Name() string

	// Evaluate receives the evaluated value of the map node's template and
	// produces the assignments to apply to the request, plus a result code
	// that becomes the node's result.
	Evaluate(ctx context.Context, req *request.Request, input string) ([]attrs.Assignment, rcode.Code)
}

// ProcessorFactory creates a processor instance from its configuration block.
type ProcessorFactory func(config map[string]interface{}) (Processor, error)

// Registry defines the public interface for the map-processor registry.
type Registry interface {
	Get(name string) (ProcessorFactory, error)
	Register(name string, factory ProcessorFactory) error
	List() []string
}
