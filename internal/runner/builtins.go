package runner

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
	"github.com/vk/cellgridgo/internal/cell"
)

// States is the registry of reactive values the state() builtin talks to.
// Mutating a registered value later re-dirties the owning cell; that feedback
// path lives in the kernel, not here.
type States interface {
	// Register records ownership of a reactive value the first time a cell
	// evaluates state(name, default) and returns the value's current content:
	// the stored value if one exists, otherwise the supplied default.
	Register(owner cell.ID, name string, def cty.Value) (cty.Value, error)
}

// cellFunctions builds the builtin function table for one cell execution.
// bind() writes through to the cell's pending defs; state() goes through the
// reactive value registry. Both close over per-execution state, so the table
// is rebuilt for every cell.
func (r *Runner) cellFunctions(owner cell.ID, pending map[string]cty.Value) map[string]function.Function {
	bind := function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: "name", Type: cty.String},
			{Name: "value", Type: cty.DynamicPseudoType, AllowNull: true, AllowDynamicType: true},
		},
		Type: func(args []cty.Value) (cty.Type, error) {
			return args[1].Type(), nil
		},
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			if !args[0].IsKnown() || args[0].IsNull() {
				return cty.NilVal, fmt.Errorf("bind: name must be a known string")
			}
			pending[args[0].AsString()] = args[1]
			return args[1], nil
		},
	})

	state := function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: "name", Type: cty.String},
			{Name: "default", Type: cty.DynamicPseudoType, AllowNull: true, AllowDynamicType: true},
		},
		Type: func(args []cty.Value) (cty.Type, error) {
			return cty.DynamicPseudoType, nil
		},
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			if !args[0].IsKnown() || args[0].IsNull() {
				return cty.NilVal, fmt.Errorf("state: name must be a known string")
			}
			if r.states == nil {
				return args[1], nil
			}
			return r.states.Register(owner, args[0].AsString(), args[1])
		},
	})

	funcs := make(map[string]function.Function, len(baseFunctions)+2)
	for name, fn := range baseFunctions {
		funcs[name] = fn
	}
	funcs["bind"] = bind
	funcs["state"] = state
	return funcs
}

// baseFunctions are the pure builtins every cell can call, on top of the
// reactive bind() and state().
var baseFunctions = map[string]function.Function{
	"abs":      stdlib.AbsoluteFunc,
	"ceil":     stdlib.CeilFunc,
	"coalesce": stdlib.CoalesceFunc,
	"concat":   stdlib.ConcatFunc,
	"floor":    stdlib.FloorFunc,
	"format":   stdlib.FormatFunc,
	"join":     stdlib.JoinFunc,
	"length":   stdlib.LengthFunc,
	"lower":    stdlib.LowerFunc,
	"max":      stdlib.MaxFunc,
	"min":      stdlib.MinFunc,
	"split":    stdlib.SplitFunc,
	"strlen":   stdlib.StrlenFunc,
	"upper":    stdlib.UpperFunc,
}
