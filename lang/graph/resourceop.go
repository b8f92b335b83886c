package graph

import (
	"github.com/mna/jyafn/lang/ir"
	"github.com/mna/jyafn/lang/types"
)

// CallResource invokes a named method of a resource container. The argument
// types must equal the method's declared input-layout slots; the node yields
// a pointer to the method's packed output buffer.
type CallResource struct {
	baseOp
	Resource string
	Method   string
}

func (*CallResource) Name() string { return "call_resource" }

func (c *CallResource) Annotate(selfID int, g *Graph, args []types.Type) (types.Type, bool) {
	container, ok := g.resources[c.Resource]
	if !ok {
		return types.Type{}, false
	}
	method, ok := container.GetMethod(c.Method)
	if !ok {
		return types.Type{}, false
	}
	slots := method.InputLayout.Slots()
	if len(slots) != len(args) {
		return types.Type{}, false
	}
	for i, ty := range slots {
		if args[i] != ty {
			return types.Type{}, false
		}
	}
	return types.PtrType(selfID), true
}

func (c *CallResource) Emit(g *Graph, out ir.Value, args []types.Ref, fn *ir.Function, _ string) {
	container := g.resources[c.Resource]
	method, ok := container.GetMethod(c.Method)
	if !ok {
		panic("node already annotated: " + c.Resource + "." + c.Method)
	}

	inputPtr := ir.Temp(uniqueFor(out, "callresource.input"))
	outputPtr := ir.Temp(uniqueFor(out, "callresource.output"))
	dataPtr := ir.Temp(uniqueFor(out, "callresource.data"))
	status := ir.Temp(uniqueFor(out, "callresource.status"))
	raiseSide := uniqueFor(out, "callresource.raise")
	endSide := uniqueFor(out, "callresource.end")

	inputSlots := uint64(len(method.InputLayout.Slots()))
	outputSlots := uint64(len(method.OutputLayout.Slots()))

	fn.Assign(inputPtr, ir.Long, ir.Alloc8(inputSlots*8))
	fn.Assign(outputPtr, ir.Long, ir.Alloc8(outputSlots*8))

	fn.Assign(dataPtr, ir.Long, ir.Copy(inputPtr))
	for _, arg := range args {
		ty := g.TypeOf(arg)
		fn.Append(ir.Store(renderType(ty), dataPtr, renderRef(arg)))
		fn.Assign(dataPtr, ir.Long, ir.Add(dataPtr, ir.Const(uint64(ty.Size()))))
	}

	fn.Assign(status, ir.Long, ir.Call(ir.Const(uint64(method.FnPtr)), []ir.TypedValue{
		{Ty: ir.Long, Val: ir.Const(uint64(container.RawPtr()))},
		{Ty: ir.Long, Val: inputPtr},
		{Ty: ir.Long, Val: ir.Const(inputSlots)},
		{Ty: ir.Long, Val: outputPtr},
		{Ty: ir.Long, Val: ir.Const(outputSlots)},
	}))

	fn.Append(ir.Jnz(status, raiseSide, endSide))
	fn.AddBlock(raiseSide)
	// the status is already an error object, return it verbatim
	fn.Append(ir.Ret(status))
	fn.AddBlock(endSide)
	fn.Assign(out, ir.Long, ir.Copy(outputPtr))
}

// LoadMethodOutput reads one slot of a method's output buffer as the
// recorded type.
type LoadMethodOutput struct {
	baseOp
	ReturnType types.Type
	Slot       int
}

func (*LoadMethodOutput) Name() string { return "load_method_output" }

func (l *LoadMethodOutput) Annotate(_ int, g *Graph, args []types.Type) (types.Type, bool) {
	if len(args) != 1 {
		return types.Type{}, false
	}
	arg := args[0]
	if !arg.IsPtr() || arg.Origin < 0 || arg.Origin >= len(g.nodes) {
		return types.Type{}, false
	}
	if _, ok := g.nodes[arg.Origin].Op.(*CallResource); !ok {
		return types.Type{}, false
	}
	return l.ReturnType, true
}

func (l *LoadMethodOutput) Emit(_ *Graph, out ir.Value, args []types.Ref, fn *ir.Function, _ string) {
	addr := ir.Temp(uniqueFor(out, "loadmethodoutput.addr"))
	fn.Assign(addr, ir.Long, ir.Add(renderRef(args[0]), ir.Const(uint64(l.Slot*8))))
	fn.Assign(out, renderType(l.ReturnType), ir.Load(renderType(l.ReturnType), addr))
}

func (*LoadMethodOutput) MustUse() bool { return true }
