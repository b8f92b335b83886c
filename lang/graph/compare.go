package graph

import (
	"github.com/mna/jyafn/lang/ir"
	"github.com/mna/jyafn/lang/types"
)

// Eq implements a == b. Equality is polymorphic over floats, symbols and
// pointers; the operand type is recorded on first annotation so that
// emission knows how to compare.
type Eq struct {
	baseOp
	// Operand is the recorded operand type; the zero kind before annotation
	// is indistinguishable from float, which compares the same way.
	Operand types.Type
	// Annotated records that Operand holds the real operand type.
	Annotated bool
}

func (*Eq) Name() string { return "eq" }

func (e *Eq) Annotate(_ int, _ *Graph, args []types.Type) (types.Type, bool) {
	if len(args) != 2 {
		return types.Type{}, false
	}
	switch {
	case args[0] == types.FloatType && args[1] == types.FloatType,
		args[0] == types.SymbolType && args[1] == types.SymbolType,
		args[0].IsPtr() && args[1].IsPtr():
	default:
		return types.Type{}, false
	}
	e.Operand = args[0]
	e.Annotated = true
	return types.BoolType, true
}

func (e *Eq) Emit(_ *Graph, out ir.Value, args []types.Ref, fn *ir.Function, _ string) {
	fn.Assign(out, ir.Long, ir.Cmp(renderType(e.Operand), ir.Eq, renderRef(args[0]), renderRef(args[1])))
}

func (*Eq) ConstEval(_ *Graph, args []types.Ref) (types.Ref, bool) {
	x, okx := args[0].AsFloat()
	y, oky := args[1].AsFloat()
	if okx && oky {
		return types.BoolConst(x == y), true
	}
	return types.Ref{}, false
}

// floatCmp is the shared shape of the ordered comparisons.
type floatCmp struct {
	baseOp
}

func (floatCmp) annotate(args []types.Type) (types.Type, bool) {
	if floatPair(args) {
		return types.BoolType, true
	}
	return types.Type{}, false
}

func (floatCmp) emit(op ir.CmpOp, out ir.Value, args []types.Ref, fn *ir.Function) {
	fn.Assign(out, ir.Long, ir.Cmp(ir.Double, op, renderRef(args[0]), renderRef(args[1])))
}

func (floatCmp) constEval(args []types.Ref, cmp func(x, y float64) bool) (types.Ref, bool) {
	x, okx := args[0].AsFloat()
	y, oky := args[1].AsFloat()
	if okx && oky {
		return types.BoolConst(cmp(x, y)), true
	}
	return types.Ref{}, false
}

// Gt implements a > b.
type Gt struct{ floatCmp }

func (*Gt) Name() string { return "gt" }

func (o *Gt) Annotate(_ int, _ *Graph, args []types.Type) (types.Type, bool) {
	return o.annotate(args)
}

func (o *Gt) Emit(_ *Graph, out ir.Value, args []types.Ref, fn *ir.Function, _ string) {
	o.emit(ir.Gt, out, args, fn)
}

func (o *Gt) ConstEval(_ *Graph, args []types.Ref) (types.Ref, bool) {
	return o.constEval(args, func(x, y float64) bool { return x > y })
}

// Lt implements a < b.
type Lt struct{ floatCmp }

func (*Lt) Name() string { return "lt" }

func (o *Lt) Annotate(_ int, _ *Graph, args []types.Type) (types.Type, bool) {
	return o.annotate(args)
}

func (o *Lt) Emit(_ *Graph, out ir.Value, args []types.Ref, fn *ir.Function, _ string) {
	o.emit(ir.Lt, out, args, fn)
}

func (o *Lt) ConstEval(_ *Graph, args []types.Ref) (types.Ref, bool) {
	return o.constEval(args, func(x, y float64) bool { return x < y })
}

// Ge implements a >= b.
type Ge struct{ floatCmp }

func (*Ge) Name() string { return "ge" }

func (o *Ge) Annotate(_ int, _ *Graph, args []types.Type) (types.Type, bool) {
	return o.annotate(args)
}

func (o *Ge) Emit(_ *Graph, out ir.Value, args []types.Ref, fn *ir.Function, _ string) {
	o.emit(ir.Ge, out, args, fn)
}

func (o *Ge) ConstEval(_ *Graph, args []types.Ref) (types.Ref, bool) {
	return o.constEval(args, func(x, y float64) bool { return x >= y })
}

// Le implements a <= b.
type Le struct{ floatCmp }

func (*Le) Name() string { return "le" }

func (o *Le) Annotate(_ int, _ *Graph, args []types.Type) (types.Type, bool) {
	return o.annotate(args)
}

func (o *Le) Emit(_ *Graph, out ir.Value, args []types.Ref, fn *ir.Function, _ string) {
	o.emit(ir.Le, out, args, fn)
}

func (o *Le) ConstEval(_ *Graph, args []types.Ref) (types.Ref, bool) {
	return o.constEval(args, func(x, y float64) bool { return x <= y })
}
