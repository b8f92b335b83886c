package graph

import (
	"github.com/mna/jyafn/lang/ir"
	"github.com/mna/jyafn/lang/types"
)

// Not implements !a.
type Not struct{ baseOp }

func (*Not) Name() string { return "not" }

func (*Not) Annotate(_ int, _ *Graph, args []types.Type) (types.Type, bool) {
	if len(args) == 1 && args[0] == types.BoolType {
		return types.BoolType, true
	}
	return types.Type{}, false
}

func (*Not) Emit(_ *Graph, out ir.Value, args []types.Ref, fn *ir.Function, _ string) {
	fn.Assign(out, ir.Long, ir.Xor(renderRef(args[0]), ir.Const(1)))
}

func (*Not) ConstEval(_ *Graph, args []types.Ref) (types.Ref, bool) {
	if v, ok := args[0].AsBool(); ok {
		return types.BoolConst(!v), true
	}
	return types.Ref{}, false
}

// And implements a && b. Both sides are always evaluated; short-circuiting
// is meaningless in a pure dataflow graph.
type And struct{ baseOp }

func (*And) Name() string { return "and" }

func (*And) Annotate(_ int, _ *Graph, args []types.Type) (types.Type, bool) {
	if len(args) == 2 && args[0] == types.BoolType && args[1] == types.BoolType {
		return types.BoolType, true
	}
	return types.Type{}, false
}

func (*And) Emit(_ *Graph, out ir.Value, args []types.Ref, fn *ir.Function, _ string) {
	fn.Assign(out, ir.Long, ir.And(renderRef(args[0]), renderRef(args[1])))
}

func (*And) ConstEval(_ *Graph, args []types.Ref) (types.Ref, bool) {
	a, oka := args[0].AsBool()
	b, okb := args[1].AsBool()
	if oka && okb {
		return types.BoolConst(a && b), true
	}
	return types.Ref{}, false
}

// Or implements a || b.
type Or struct{ baseOp }

func (*Or) Name() string { return "or" }

func (*Or) Annotate(_ int, _ *Graph, args []types.Type) (types.Type, bool) {
	if len(args) == 2 && args[0] == types.BoolType && args[1] == types.BoolType {
		return types.BoolType, true
	}
	return types.Type{}, false
}

func (*Or) Emit(_ *Graph, out ir.Value, args []types.Ref, fn *ir.Function, _ string) {
	fn.Assign(out, ir.Long, ir.Or(renderRef(args[0]), renderRef(args[1])))
}

func (*Or) ConstEval(_ *Graph, args []types.Ref) (types.Ref, bool) {
	a, oka := args[0].AsBool()
	b, okb := args[1].AsBool()
	if oka && okb {
		return types.BoolConst(a || b), true
	}
	return types.Ref{}, false
}

// Choose is the ternary operator: cond ? a : b. The statement sequencer
// expands every Choose into a real conditional region so that the untaken
// side is never executed; this emission is the trailing value copy of each
// side.
type Choose struct{ baseOp }

func (*Choose) Name() string { return "choose" }

func (*Choose) Annotate(_ int, _ *Graph, args []types.Type) (types.Type, bool) {
	if len(args) == 3 && args[0] == types.BoolType && args[1] == args[2] {
		return args[1], true
	}
	return types.Type{}, false
}

func (*Choose) Emit(g *Graph, out ir.Value, args []types.Ref, fn *ir.Function, _ string) {
	ty := renderType(g.TypeOf(args[1]))
	trueSide := uniqueFor(out, "choose.if.true")
	falseSide := uniqueFor(out, "choose.if.false")
	endSide := uniqueFor(out, "choose.if.end")

	fn.Append(ir.Jnz(renderRef(args[0]), trueSide, falseSide))

	fn.AddBlock(trueSide)
	fn.Assign(out, ty, ir.Copy(renderRef(args[1])))
	fn.Append(ir.Jmp(endSide))

	fn.AddBlock(falseSide)
	fn.Assign(out, ty, ir.Copy(renderRef(args[2])))

	fn.AddBlock(endSide)
}

func (*Choose) ConstEval(_ *Graph, args []types.Ref) (types.Ref, bool) {
	if v, ok := args[0].AsBool(); ok {
		if v {
			return args[1], true
		}
		return args[2], true
	}
	if args[1] == args[2] {
		return args[1], true
	}
	return types.Ref{}, false
}

// Assert checks a condition and fails the whole call with a registered error
// message when it does not hold. It cannot be optimized away and is illegal
// when the condition is known false at compile time.
type Assert struct {
	baseOp
	ErrorID int
}

func (*Assert) Name() string { return "assert" }

func (*Assert) Annotate(_ int, _ *Graph, args []types.Type) (types.Type, bool) {
	if len(args) == 1 && args[0] == types.BoolType {
		return types.BoolType, true
	}
	return types.Type{}, false
}

func (a *Assert) Emit(_ *Graph, out ir.Value, args []types.Ref, fn *ir.Function, namespace string) {
	trueSide := uniqueFor(out, "assert.if.true")
	falseSide := uniqueFor(out, "assert.if.false")

	fn.Append(ir.Jnz(renderRef(args[0]), trueSide, falseSide))
	fn.AddBlock(falseSide)
	emitReturnError(fn, out, errorGlobal(namespace, a.ErrorID))
	fn.AddBlock(trueSide)
}

func (*Assert) ConstEval(_ *Graph, args []types.Ref) (types.Ref, bool) {
	if v, ok := args[0].AsBool(); ok && v {
		return types.BoolConst(true), true
	}
	return types.Ref{}, false
}

func (*Assert) MustUse() bool { return true }

func (*Assert) IsIllegal(args []types.Ref) bool {
	v, ok := args[0].AsBool()
	return ok && !v
}
