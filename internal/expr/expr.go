// Package expr parses and evaluates the HCL expressions embedded in policy:
// if/elsif conditions, case and load-balance key templates, and map inputs.
// Parsing happens once at compile time; evaluation happens per request.
package expr

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	stranderrors "github.com/strand-labs/strand/pkg/strand/v1/errors"
	"github.com/strand-labs/strand/pkg/strand/v1/request"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Condition is a parsed boolean expression. It is immutable after parsing
// and safe for concurrent evaluation.
type Condition struct {
	src  string
	expr hclsyntax.Expression
}

// ParseCondition parses source like `request["User-Name"] == "bob"` into a
// reusable Condition. The name is used in diagnostics, typically the policy
// file and node path.
func ParseCondition(src, name string) (*Condition, error) {
	expr, diags := hclsyntax.ParseExpression([]byte(src), name, hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, stranderrors.NewValidationError(
			fmt.Sprintf("invalid condition %q: %s", src, diags.Error()), nil)
	}
	return &Condition{src: src, expr: expr}, nil
}

// Source returns the original condition text.
func (c *Condition) Source() string {
	return c.src
}

// Evaluate resolves the condition against the request's attribute lists.
// Evaluation errors (unknown attribute, type mismatch) return false along
// with the error so the caller can decide whether to log or fail.
func (c *Condition) Evaluate(req *request.Request) (bool, error) {
	val, diags := c.expr.Value(BuildEvalContext(req))
	if diags.HasErrors() {
		return false, stranderrors.NewValidationError(
			fmt.Sprintf("condition %q: %s", c.src, diags.Error()), nil)
	}
	if val.IsNull() {
		return false, nil
	}
	boolVal, err := convert.Convert(val, cty.Bool)
	if err != nil {
		return false, stranderrors.NewValidationError(
			fmt.Sprintf("condition %q did not produce a boolean: %v", c.src, err), nil)
	}
	return boolVal.True(), nil
}

// Template is a parsed string template with ${...} interpolation, used for
// case keys, load-balance keys and map node inputs.
type Template struct {
	src  string
	expr hclsyntax.Expression
}

// ParseTemplate parses source like `${request["User-Name"]}@example.org`.
// Plain text with no interpolation is valid and evaluates to itself.
func ParseTemplate(src, name string) (*Template, error) {
	expr, diags := hclsyntax.ParseTemplate([]byte(src), name, hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, stranderrors.NewValidationError(
			fmt.Sprintf("invalid template %q: %s", src, diags.Error()), nil)
	}
	return &Template{src: src, expr: expr}, nil
}

// Source returns the original template text.
func (t *Template) Source() string {
	return t.src
}

// Evaluate expands the template against the request, producing a string.
func (t *Template) Evaluate(req *request.Request) (string, error) {
	val, diags := t.expr.Value(BuildEvalContext(req))
	if diags.HasErrors() {
		return "", stranderrors.NewValidationError(
			fmt.Sprintf("template %q: %s", t.src, diags.Error()), nil)
	}
	if val.IsNull() {
		return "", nil
	}
	strVal, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", stranderrors.NewValidationError(
			fmt.Sprintf("template %q did not produce a string: %v", t.src, err), nil)
	}
	return strVal.AsString(), nil
}

// EvaluateValue expands the template and returns the result in the attribute
// value domain, keeping numbers, booleans and containers typed instead of
// stringifying them. A pure-text template still yields a string.
func (t *Template) EvaluateValue(req *request.Request) (interface{}, error) {
	val, diags := t.expr.Value(BuildEvalContext(req))
	if diags.HasErrors() {
		return nil, stranderrors.NewValidationError(
			fmt.Sprintf("template %q: %s", t.src, diags.Error()), nil)
	}
	return FromCty(val), nil
}
