package expr

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/strand-labs/strand/pkg/strand/v1/attrs"
	"github.com/strand-labs/strand/pkg/strand/v1/request"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// evalFunctions is the function table available to policy expressions.
var evalFunctions = map[string]function.Function{
	"upper":  stdlib.UpperFunc,
	"lower":  stdlib.LowerFunc,
	"length": stdlib.LengthFunc,
	"strlen": stdlib.StrlenFunc,
	"substr": stdlib.SubstrFunc,
	"format": stdlib.FormatFunc,
}

// BuildEvalContext creates the evaluation context for a request. Each
// attribute list is exposed as an object keyed by attribute name, so policy
// expressions read request["User-Name"], reply["Reply-Message"] and
// control["Foreach-0"].
func BuildEvalContext(req *request.Request) *hcl.EvalContext {
	vars := map[string]cty.Value{
		"request": listToCty(req.Packet),
		"reply":   listToCty(req.Reply),
		"control": listToCty(req.Control),
	}
	return &hcl.EvalContext{
		Variables: vars,
		Functions: evalFunctions,
	}
}

// listToCty converts an attribute list to a cty object. When an attribute
// occurs more than once, the first pair wins; policies that care about
// multiplicity iterate with foreach instead.
func listToCty(list *attrs.List) cty.Value {
	if list == nil || list.Len() == 0 {
		return cty.EmptyObjectVal
	}
	values := make(map[string]cty.Value)
	for _, p := range list.Pairs() {
		if _, seen := values[p.Name]; seen {
			continue
		}
		values[p.Name] = ToCty(p.Value)
	}
	return cty.ObjectVal(values)
}

// ToCty converts an attribute value to its cty representation. The value
// domain is what the YAML loader and modules produce.
func ToCty(v interface{}) cty.Value {
	switch val := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType)
	case string:
		return cty.StringVal(val)
	case bool:
		return cty.BoolVal(val)
	case int:
		return cty.NumberIntVal(int64(val))
	case int32:
		return cty.NumberIntVal(int64(val))
	case int64:
		return cty.NumberIntVal(val)
	case uint32:
		return cty.NumberUIntVal(uint64(val))
	case uint64:
		return cty.NumberUIntVal(val)
	case float32:
		return cty.NumberFloatVal(float64(val))
	case float64:
		return cty.NumberFloatVal(val)
	case []string:
		if len(val) == 0 {
			return cty.EmptyTupleVal
		}
		elems := make([]cty.Value, len(val))
		for i, s := range val {
			elems[i] = cty.StringVal(s)
		}
		return cty.TupleVal(elems)
	case []interface{}:
		if len(val) == 0 {
			return cty.EmptyTupleVal
		}
		elems := make([]cty.Value, len(val))
		for i, item := range val {
			elems[i] = ToCty(item)
		}
		return cty.TupleVal(elems)
	case map[string]interface{}:
		if len(val) == 0 {
			return cty.EmptyObjectVal
		}
		fields := make(map[string]cty.Value, len(val))
		for k, item := range val {
			fields[k] = ToCty(item)
		}
		return cty.ObjectVal(fields)
	default:
		return cty.StringVal(fmt.Sprintf("%v", val))
	}
}

// FromCty converts a cty value back into the attribute value domain.
func FromCty(v cty.Value) interface{} {
	if v.IsNull() || !v.IsKnown() {
		return nil
	}
	t := v.Type()
	switch {
	case t == cty.String:
		return v.AsString()
	case t == cty.Bool:
		return v.True()
	case t == cty.Number:
		bf := v.AsBigFloat()
		if i, acc := bf.Int64(); acc == 0 {
			return int(i)
		}
		f, _ := bf.Float64()
		return f
	case t.IsTupleType() || t.IsListType() || t.IsSetType():
		out := make([]interface{}, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			out = append(out, FromCty(ev))
		}
		return out
	case t.IsObjectType() || t.IsMapType():
		out := make(map[string]interface{})
		for it := v.ElementIterator(); it.Next(); {
			kv, ev := it.Element()
			out[kv.AsString()] = FromCty(ev)
		}
		return out
	default:
		return v.GoString()
	}
}
