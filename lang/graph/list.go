package graph

import (
	"fmt"

	"github.com/mna/jyafn/lang/ir"
	"github.com/mna/jyafn/lang/types"
)

// List packs its operands into a stack-allocated buffer and yields a pointer
// originating at itself. Internal only: list pointers never cross the graph
// boundary.
type List struct {
	baseOp
	Element   types.Type
	NElements int
}

func (*List) Name() string { return "list" }

func (l *List) Annotate(selfID int, _ *Graph, args []types.Type) (types.Type, bool) {
	if len(args) != l.NElements {
		return types.Type{}, false
	}
	for _, arg := range args {
		if arg != l.Element {
			return types.Type{}, false
		}
	}
	return types.PtrType(selfID), true
}

func (l *List) Emit(_ *Graph, out ir.Value, args []types.Ref, fn *ir.Function, _ string) {
	dataPtr := ir.Temp(uniqueFor(out, "list.data_ptr"))
	fn.Assign(out, ir.Long, ir.Alloc8(uint64(l.Element.Size()*l.NElements)))
	fn.Assign(dataPtr, ir.Long, ir.Copy(out))

	for _, arg := range args {
		fn.Append(ir.Store(renderType(l.Element), dataPtr, renderRef(arg)))
		fn.Assign(dataPtr, ir.Long, ir.Add(dataPtr, ir.Const(uint64(l.Element.Size()))))
	}
}

// originList resolves the List node a pointer argument originates from,
// checking element type and length.
func originList(g *Graph, arg types.Type, element types.Type, n int) bool {
	if !arg.IsPtr() {
		return false
	}
	if arg.Origin < 0 || arg.Origin >= len(g.nodes) {
		return false
	}
	origin, ok := g.nodes[arg.Origin].Op.(*List)
	return ok && origin.Element == element && origin.NElements == n
}

// Index reads one element of a list, with a bounds check that fails the call
// with the registered error.
type Index struct {
	baseOp
	Element   types.Type
	NElements int
	ErrorID   int
}

func (*Index) Name() string { return "index" }

func (x *Index) Annotate(_ int, g *Graph, args []types.Type) (types.Type, bool) {
	if len(args) != 2 || args[1] != types.FloatType {
		return types.Type{}, false
	}
	if !originList(g, args[0], x.Element, x.NElements) {
		return types.Type{}, false
	}
	return x.Element, true
}

func (x *Index) Emit(_ *Graph, out ir.Value, args []types.Ref, fn *ir.Function, namespace string) {
	displacement := ir.Temp(uniqueFor(out, "index.displacement"))
	testBounds := ir.Temp(uniqueFor(out, "index.test_bounds"))
	outOfBounds := uniqueFor(out, "index.out_of_bounds")
	inBounds := uniqueFor(out, "index.in_bounds")

	fn.Assign(displacement, ir.Long, ir.Dtoui(renderRef(args[1])))
	fn.Assign(testBounds, ir.Long, ir.Cmp(ir.Long, ir.Uge, displacement, ir.Const(uint64(x.NElements))))
	fn.Append(ir.Jnz(testBounds, outOfBounds, inBounds))

	fn.AddBlock(outOfBounds)
	emitReturnError(fn, out, errorGlobal(namespace, x.ErrorID))

	fn.AddBlock(inBounds)
	fn.Assign(displacement, ir.Long, ir.Mul(displacement, ir.Const(uint64(x.Element.Size()))))
	fn.Assign(displacement, ir.Long, ir.Add(displacement, renderRef(args[0])))
	fn.Assign(out, renderType(x.Element), ir.Load(renderType(x.Element), displacement))
}

// IndexOf yields the position of the first element equal to its second
// argument, or -1. The search is unrolled: lists are short and fixed-size.
type IndexOf struct {
	baseOp
	Element   types.Type
	NElements int
}

func (*IndexOf) Name() string { return "index_of" }

func (x *IndexOf) Annotate(_ int, g *Graph, args []types.Type) (types.Type, bool) {
	if len(args) != 2 || args[1] != x.Element {
		return types.Type{}, false
	}
	if !originList(g, args[0], x.Element, x.NElements) {
		return types.Type{}, false
	}
	return types.FloatType, true
}

func (x *IndexOf) Emit(_ *Graph, out ir.Value, args []types.Ref, fn *ir.Function, _ string) {
	displacement := ir.Temp(uniqueFor(out, "indexof.displacement"))
	endIf := uniqueFor(out, "indexof.if.end")
	fn.Assign(displacement, ir.Long, ir.Copy(renderRef(args[0])))

	elemTy := renderType(x.Element)
	for i := 0; i < x.NElements; i++ {
		element := ir.Temp(uniqueFor(out, fmt.Sprintf("indexof.element%d", i)))
		test := ir.Temp(uniqueFor(out, fmt.Sprintf("indexof.test%d", i)))
		found := uniqueFor(out, fmt.Sprintf("indexof.if.found%d", i))
		nextIf := uniqueFor(out, fmt.Sprintf("indexof.if.next%d", i))

		fn.Assign(element, elemTy, ir.Load(elemTy, displacement))
		fn.Assign(test, ir.Long, ir.Cmp(elemTy, ir.Eq, element, renderRef(args[1])))
		fn.Append(ir.Jnz(test, found, nextIf))

		fn.AddBlock(found)
		fn.Assign(out, ir.Double, ir.Copy(ir.ConstDouble(float64(i))))
		fn.Append(ir.Jmp(endIf))

		fn.AddBlock(nextIf)
		fn.Assign(displacement, ir.Long, ir.Add(displacement, ir.Const(uint64(x.Element.Size()))))
	}

	fn.Assign(out, ir.Double, ir.Copy(ir.ConstDouble(-1)))
	fn.AddBlock(endIf)
}
