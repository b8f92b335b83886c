package graph

import (
	"fmt"
	"reflect"

	"github.com/mna/jyafn/lang/fnerror"
	"github.com/mna/jyafn/lang/ir"
	"github.com/mna/jyafn/lang/types"
)

// An Op is one operation of the closed node set. Every op knows its type
// rule, its IR emission, and optionally a constant-folding rule and flags.
type Op interface {
	// Name returns the op's serialization tag.
	Name() string

	// Annotate applies the type rule to the argument types and returns the
	// result type, or false when ill-typed. selfID is the index the node will
	// occupy. Annotate may record internal state on the receiver (polymorphic
	// equality records its operand type); it is required to be idempotent.
	Annotate(selfID int, g *Graph, args []types.Type) (types.Type, bool)

	// Emit renders the operation into fn. out names the node's temporary,
	// args are the node's references, and namespace prefixes module-level
	// symbols.
	Emit(g *Graph, out ir.Value, args []types.Ref, fn *ir.Function, namespace string)

	// ConstEval attempts to fold the operation at compile time, returning a
	// replacement reference.
	ConstEval(g *Graph, args []types.Ref) (types.Ref, bool)

	// MustUse reports whether the node must never be optimized away, even
	// when unreachable from the outputs.
	MustUse() bool

	// IsIllegal reports whether the arguments guarantee failure, making
	// compilation an error.
	IsIllegal(args []types.Ref) bool
}

// baseOp provides the default flag and folding behavior.
type baseOp struct{}

func (baseOp) ConstEval(*Graph, []types.Ref) (types.Ref, bool) { return types.Ref{}, false }
func (baseOp) MustUse() bool                                   { return false }
func (baseOp) IsIllegal([]types.Ref) bool                      { return false }

// cloneOp returns a copy of op so that annotation of a cloned graph never
// writes through to the original.
func cloneOp(op Op) Op {
	v := reflect.ValueOf(op)
	if v.Kind() != reflect.Ptr {
		return op
	}
	c := reflect.New(v.Elem().Type())
	c.Elem().Set(v.Elem())
	return c.Interface().(Op)
}

// opsEqual compares two ops structurally.
func opsEqual(a, b Op) bool {
	return reflect.DeepEqual(a, b)
}

// renderType maps a slot type to its IR type: floats are doubles, everything
// else travels as a 64-bit integer.
func renderType(ty types.Type) ir.Type {
	if ty.Kind == types.Float {
		return ir.Double
	}
	return ir.Long
}

// renderRef maps a reference to its IR operand. Inputs and nodes follow the
// stable naming scheme; float constants become floating immediates, every
// other constant is its raw bit pattern.
func renderRef(r types.Ref) ir.Value {
	switch r.Kind {
	case types.RefInput:
		return ir.Temp(fmt.Sprintf("i%d", r.Index))
	case types.RefNode:
		return ir.Temp(fmt.Sprintf("n%d", r.Index))
	default:
		if v, ok := r.AsFloat(); ok {
			return ir.ConstDouble(v)
		}
		return ir.Const(r.Bits)
	}
}

// uniqueFor builds a function-unique temporary or label name from the output
// temporary of the emitting node.
func uniqueFor(out ir.Value, prefix string) string {
	if out.Kind != ir.KindTemp {
		panic(fmt.Sprintf("can only derive unique names from temporaries; got %s", out))
	}
	return prefix + "_" + out.Name
}

// errorGlobal names the interned message data of error id under namespace.
func errorGlobal(namespace string, id int) ir.Value {
	return ir.Global(fmt.Sprintf("%s.error.%d", namespace, id))
}

// emitReturnError emits the construction of an error object from the static
// message at msg and returns it from the function.
func emitReturnError(fn *ir.Function, out ir.Value, msg ir.Value) {
	errPtr := ir.Temp(uniqueFor(out, "error_ptr"))
	fn.Assign(errPtr, ir.Long, ir.Call(ir.Const(uint64(fnerror.MakeStaticAddr())), []ir.TypedValue{
		{Ty: ir.Long, Val: msg},
	}))
	fn.Append(ir.Ret(errPtr))
}
