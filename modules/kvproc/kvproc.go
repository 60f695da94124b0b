// Package kvproc provides a map processor that parses "Name = Value" lines
// into attribute assignments, the way a backend's text reply is folded back
// into the request.
package kvproc

import (
	"context"
	"strings"

	"github.com/strand-labs/strand/internal/mapproc"
	"github.com/strand-labs/strand/internal/paramutil"
	"github.com/strand-labs/strand/pkg/strand/v1/attrs"
	publicmapproc "github.com/strand-labs/strand/pkg/strand/v1/mapproc"
	"github.com/strand-labs/strand/pkg/strand/v1/rcode"
	"github.com/strand-labs/strand/pkg/strand/v1/request"
)

func init() {
	mapproc.Register("kv", New)
}

// Processor parses newline- or comma-separated Name = Value pairs.
type Processor struct {
	list string
}

// New creates a kv processor. Config: list, the destination attribute list
// (default "reply").
func New(config map[string]interface{}) (publicmapproc.Processor, error) {
	if err := paramutil.CheckAllowed(config, []string{"list"}); err != nil {
		return nil, err
	}
	list, ok, err := paramutil.GetOptionalString(config, "list")
	if err != nil {
		return nil, err
	}
	if !ok {
		list = "reply"
	}
	return &Processor{list: list}, nil
}

func (p *Processor) Name() string { return "kv" }

// Evaluate splits the input into pairs. Malformed fragments are skipped; an
// input yielding no pairs is a noop.
func (p *Processor) Evaluate(ctx context.Context, req *request.Request, input string) ([]attrs.Assignment, rcode.Code) {
	var out []attrs.Assignment
	for _, line := range strings.FieldsFunc(input, func(r rune) bool {
		return r == '\n' || r == ','
	}) {
		name, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if name == "" {
			continue
		}
		out = append(out, attrs.Assignment{
			Ref:   attrs.Ref{List: p.list, Name: name},
			Op:    attrs.OpSet,
			Value: value,
		})
	}
	if len(out) == 0 {
		return nil, rcode.Noop
	}
	return out, rcode.Updated
}
