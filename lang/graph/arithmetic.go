package graph

import (
	"github.com/mna/jyafn/lang/ir"
	"github.com/mna/jyafn/lang/types"
)

func floatPair(args []types.Type) bool {
	return len(args) == 2 && args[0] == types.FloatType && args[1] == types.FloatType
}

// Add implements a + b.
type Add struct{ baseOp }

func (*Add) Name() string { return "add" }

func (*Add) Annotate(_ int, _ *Graph, args []types.Type) (types.Type, bool) {
	if floatPair(args) {
		return types.FloatType, true
	}
	return types.Type{}, false
}

func (*Add) Emit(_ *Graph, out ir.Value, args []types.Ref, fn *ir.Function, _ string) {
	fn.Assign(out, ir.Double, ir.Add(renderRef(args[0]), renderRef(args[1])))
}

func (*Add) ConstEval(_ *Graph, args []types.Ref) (types.Ref, bool) {
	if args[0] == types.FloatConst(0) {
		return args[1], true
	}
	if args[1] == types.FloatConst(0) {
		return args[0], true
	}
	return types.Ref{}, false
}

// Sub implements a - b.
type Sub struct{ baseOp }

func (*Sub) Name() string { return "sub" }

func (*Sub) Annotate(_ int, _ *Graph, args []types.Type) (types.Type, bool) {
	if floatPair(args) {
		return types.FloatType, true
	}
	return types.Type{}, false
}

func (*Sub) Emit(_ *Graph, out ir.Value, args []types.Ref, fn *ir.Function, _ string) {
	fn.Assign(out, ir.Double, ir.Sub(renderRef(args[0]), renderRef(args[1])))
}

func (*Sub) ConstEval(_ *Graph, args []types.Ref) (types.Ref, bool) {
	if args[1] == types.FloatConst(0) {
		return args[0], true
	}
	return types.Ref{}, false
}

// Mul implements a * b.
type Mul struct{ baseOp }

func (*Mul) Name() string { return "mul" }

func (*Mul) Annotate(_ int, _ *Graph, args []types.Type) (types.Type, bool) {
	if floatPair(args) {
		return types.FloatType, true
	}
	return types.Type{}, false
}

func (*Mul) Emit(_ *Graph, out ir.Value, args []types.Ref, fn *ir.Function, _ string) {
	fn.Assign(out, ir.Double, ir.Mul(renderRef(args[0]), renderRef(args[1])))
}

func (*Mul) ConstEval(_ *Graph, args []types.Ref) (types.Ref, bool) {
	if args[0] == types.FloatConst(1) {
		return args[1], true
	}
	if args[1] == types.FloatConst(1) {
		return args[0], true
	}
	return types.Ref{}, false
}

// Div implements a / b.
type Div struct{ baseOp }

func (*Div) Name() string { return "div" }

func (*Div) Annotate(_ int, _ *Graph, args []types.Type) (types.Type, bool) {
	if floatPair(args) {
		return types.FloatType, true
	}
	return types.Type{}, false
}

func (*Div) Emit(_ *Graph, out ir.Value, args []types.Ref, fn *ir.Function, _ string) {
	fn.Assign(out, ir.Double, ir.Div(renderRef(args[0]), renderRef(args[1])))
}

func (*Div) ConstEval(_ *Graph, args []types.Ref) (types.Ref, bool) {
	if args[1] == types.FloatConst(1) {
		return args[0], true
	}
	return types.Ref{}, false
}

// Rem implements a % b. The IR has no float remainder, so it lowers through
// the rem pfunc.
type Rem struct{ baseOp }

func (*Rem) Name() string { return "rem" }

func (*Rem) Annotate(_ int, _ *Graph, args []types.Type) (types.Type, bool) {
	if floatPair(args) {
		return types.FloatType, true
	}
	return types.Type{}, false
}

func (*Rem) Emit(g *Graph, out ir.Value, args []types.Ref, fn *ir.Function, namespace string) {
	(&Call{Func: "rem"}).Emit(g, out, args, fn, namespace)
}

func (*Rem) ConstEval(_ *Graph, args []types.Ref) (types.Ref, bool) {
	if args[1] == types.FloatConst(1) {
		return args[0], true
	}
	return types.Ref{}, false
}

// Neg implements -a.
type Neg struct{ baseOp }

func (*Neg) Name() string { return "neg" }

func (*Neg) Annotate(_ int, _ *Graph, args []types.Type) (types.Type, bool) {
	if len(args) == 1 && args[0] == types.FloatType {
		return types.FloatType, true
	}
	return types.Type{}, false
}

func (*Neg) Emit(_ *Graph, out ir.Value, args []types.Ref, fn *ir.Function, _ string) {
	fn.Assign(out, ir.Double, ir.Neg(renderRef(args[0])))
}

func (*Neg) ConstEval(_ *Graph, args []types.Ref) (types.Ref, bool) {
	if args[0] == types.FloatConst(0) {
		return types.FloatConst(0), true
	}
	return types.Ref{}, false
}

// Abs implements |a|, lowered as a conditional branch rather than a call.
type Abs struct{ baseOp }

func (*Abs) Name() string { return "abs" }

func (*Abs) Annotate(_ int, _ *Graph, args []types.Type) (types.Type, bool) {
	if len(args) == 1 && args[0] == types.FloatType {
		return types.FloatType, true
	}
	return types.Type{}, false
}

func (*Abs) Emit(_ *Graph, out ir.Value, args []types.Ref, fn *ir.Function, _ string) {
	test := ir.Temp(uniqueFor(out, "abs.test"))
	fn.Assign(test, ir.Long, ir.Cmp(ir.Double, ir.Ge, renderRef(args[0]), ir.ConstDouble(0)))

	trueSide := uniqueFor(out, "abs.if.true")
	falseSide := uniqueFor(out, "abs.if.false")
	endSide := uniqueFor(out, "abs.if.end")

	fn.Append(ir.Jnz(test, trueSide, falseSide))

	fn.AddBlock(trueSide)
	fn.Assign(out, ir.Double, ir.Copy(renderRef(args[0])))
	fn.Append(ir.Jmp(endSide))

	fn.AddBlock(falseSide)
	fn.Assign(out, ir.Double, ir.Neg(renderRef(args[0])))

	fn.AddBlock(endSide)
}
