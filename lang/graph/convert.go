package graph

import (
	"github.com/mna/jyafn/lang/ir"
	"github.com/mna/jyafn/lang/types"
)

// ToBool converts a float to a boolean; it is equivalent to a == 1.
type ToBool struct{ baseOp }

func (*ToBool) Name() string { return "to_bool" }

func (*ToBool) Annotate(_ int, _ *Graph, args []types.Type) (types.Type, bool) {
	if len(args) == 1 && args[0] == types.FloatType {
		return types.BoolType, true
	}
	return types.Type{}, false
}

func (*ToBool) Emit(_ *Graph, out ir.Value, args []types.Ref, fn *ir.Function, _ string) {
	fn.Assign(out, ir.Long, ir.Cmp(ir.Double, ir.Eq, renderRef(args[0]), ir.ConstDouble(1)))
}

func (*ToBool) ConstEval(_ *Graph, args []types.Ref) (types.Ref, bool) {
	if v, ok := args[0].AsFloat(); ok {
		return types.BoolConst(v == 1), true
	}
	return types.Ref{}, false
}

// ToFloat converts a boolean to a float: the 0/1 bit becomes 0.0 or 1.0.
type ToFloat struct{ baseOp }

func (*ToFloat) Name() string { return "to_float" }

func (*ToFloat) Annotate(_ int, _ *Graph, args []types.Type) (types.Type, bool) {
	if len(args) == 1 && args[0] == types.BoolType {
		return types.FloatType, true
	}
	return types.Type{}, false
}

func (*ToFloat) Emit(_ *Graph, out ir.Value, args []types.Ref, fn *ir.Function, _ string) {
	fn.Assign(out, ir.Double, ir.Ultof(renderRef(args[0])))
}

func (*ToFloat) ConstEval(_ *Graph, args []types.Ref) (types.Ref, bool) {
	if v, ok := args[0].AsBool(); ok {
		if v {
			return types.FloatConst(1), true
		}
		return types.FloatConst(0), true
	}
	return types.Ref{}, false
}
