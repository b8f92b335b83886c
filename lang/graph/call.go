package graph

import (
	"github.com/mna/jyafn/lang/ir"
	"github.com/mna/jyafn/lang/pfunc"
	"github.com/mna/jyafn/lang/types"
)

// Call invokes a registered pfunc by name. The call is ill-typed when the
// name is unknown or the signature does not match the argument types.
type Call struct {
	baseOp
	Func string
}

func (*Call) Name() string { return "call" }

func (c *Call) Annotate(_ int, _ *Graph, args []types.Type) (types.Type, bool) {
	p, ok := pfunc.Get(c.Func)
	if !ok {
		return types.Type{}, false
	}
	sig := p.Signature()
	if len(sig) != len(args) {
		return types.Type{}, false
	}
	for i, ty := range sig {
		if args[i] != ty {
			return types.Type{}, false
		}
	}
	return p.Returns(), true
}

func (c *Call) Emit(_ *Graph, out ir.Value, args []types.Ref, fn *ir.Function, _ string) {
	p, ok := pfunc.Get(c.Func)
	if !ok {
		panic("pfunc existence already checked: " + c.Func)
	}
	targs := make([]ir.TypedValue, len(args))
	for i, arg := range args {
		targs[i] = ir.TypedValue{Ty: renderType(p.Signature()[i]), Val: renderRef(arg)}
	}
	fn.Assign(out, renderType(p.Returns()), ir.Call(ir.Const(uint64(p.Location())), targs))
}

func (c *Call) ConstEval(_ *Graph, args []types.Ref) (types.Ref, bool) {
	p, ok := pfunc.Get(c.Func)
	if !ok || p.Returns() != types.FloatType {
		return types.Ref{}, false
	}
	vals := make([]float64, len(args))
	for i, arg := range args {
		v, isConst := arg.AsFloat()
		if !isConst {
			return types.Ref{}, false
		}
		vals[i] = v
	}
	if v, evald := p.TryConstEval(vals); evald {
		return types.FloatConst(v), true
	}
	return types.Ref{}, false
}
