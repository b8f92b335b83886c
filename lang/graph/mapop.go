package graph

import (
	"fmt"

	"github.com/mna/jyafn/lang/ir"
	"github.com/mna/jyafn/lang/types"
)

// CallMapping hashes its arguments as a mapping key and yields a pointer to
// the matching value buffer, or a null pointer when the key is absent. The
// argument types must equal the mapping's key-layout slots.
type CallMapping struct {
	baseOp
	Mapping string
}

func (*CallMapping) Name() string { return "call_mapping" }

func (c *CallMapping) Annotate(selfID int, g *Graph, args []types.Type) (types.Type, bool) {
	m, ok := g.mappings[c.Mapping]
	if !ok {
		return types.Type{}, false
	}
	slots := m.KeyLayout().Slots()
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

func (c *CallMapping) Emit(g *Graph, out ir.Value, args []types.Ref, fn *ir.Function, namespace string) {
	targs := make([]ir.TypedValue, len(args))
	for i, arg := range args {
		targs[i] = ir.TypedValue{Ty: renderType(g.TypeOf(arg)), Val: renderRef(arg)}
	}
	fn.Assign(out, ir.Long, ir.Call(
		ir.Global(fmt.Sprintf("%s.mapping.%s", namespace, c.Mapping)), targs))
}

// loadMappingAnnotate shares the checks of the two mapping-load forms: the
// single argument must be a pointer whose origin is a CallMapping of the
// same mapping, and slot must exist in the value layout.
func loadMappingAnnotate(g *Graph, name string, slot int, arg types.Type) (types.Type, bool) {
	if !arg.IsPtr() || arg.Origin < 0 || arg.Origin >= len(g.nodes) {
		return types.Type{}, false
	}
	origin, ok := g.nodes[arg.Origin].Op.(*CallMapping)
	if !ok || origin.Mapping != name {
		return types.Type{}, false
	}
	m, ok := g.mappings[name]
	if !ok {
		return types.Type{}, false
	}
	slots := m.ValueLayout().Slots()
	if slot < 0 || slot >= len(slots) {
		return types.Type{}, false
	}
	return slots[slot], true
}

// LoadMappingValue reads one slot of a mapping value, failing the call with
// the registered error when the lookup missed.
type LoadMappingValue struct {
	baseOp
	Mapping string
	ErrorID int
	Slot    int
}

func (*LoadMappingValue) Name() string { return "load_mapping_value" }

func (l *LoadMappingValue) Annotate(_ int, g *Graph, args []types.Type) (types.Type, bool) {
	if len(args) != 1 {
		return types.Type{}, false
	}
	return loadMappingAnnotate(g, l.Mapping, l.Slot, args[0])
}

func (l *LoadMappingValue) Emit(g *Graph, out ir.Value, args []types.Ref, fn *ir.Function, namespace string) {
	ty := renderType(g.mappings[l.Mapping].ValueLayout().Slots()[l.Slot])
	addr := ir.Temp(uniqueFor(out, "loadmapping.addr"))
	falseSide := uniqueFor(out, "loadmapping.found.false")
	trueSide := uniqueFor(out, "loadmapping.found.true")

	fn.Append(ir.Jnz(renderRef(args[0]), trueSide, falseSide))
	fn.AddBlock(falseSide)
	emitReturnError(fn, out, errorGlobal(namespace, l.ErrorID))
	fn.AddBlock(trueSide)

	fn.Assign(addr, ir.Long, ir.Add(renderRef(args[0]), ir.Const(uint64(l.Slot*8))))
	fn.Assign(out, ty, ir.Load(ty, addr))
}

// LoadOrDefaultMappingValue reads one slot of a mapping value, yielding the
// supplied default when the lookup missed.
type LoadOrDefaultMappingValue struct {
	baseOp
	Mapping string
	ErrorID int
	Slot    int
}

func (*LoadOrDefaultMappingValue) Name() string { return "load_or_default_mapping_value" }

func (l *LoadOrDefaultMappingValue) Annotate(_ int, g *Graph, args []types.Type) (types.Type, bool) {
	if len(args) != 2 {
		return types.Type{}, false
	}
	ty, ok := loadMappingAnnotate(g, l.Mapping, l.Slot, args[0])
	if !ok || args[1] != ty {
		return types.Type{}, false
	}
	return ty, true
}

func (l *LoadOrDefaultMappingValue) Emit(g *Graph, out ir.Value, args []types.Ref, fn *ir.Function, _ string) {
	ty := renderType(g.mappings[l.Mapping].ValueLayout().Slots()[l.Slot])
	addr := ir.Temp(uniqueFor(out, "loadmappingdefault.addr"))
	falseSide := uniqueFor(out, "loadmappingdefault.found.false")
	trueSide := uniqueFor(out, "loadmappingdefault.found.true")
	endIf := uniqueFor(out, "loadmappingdefault.found.end")

	fn.Append(ir.Jnz(renderRef(args[0]), trueSide, falseSide))

	fn.AddBlock(falseSide)
	fn.Assign(out, ty, ir.Copy(renderRef(args[1])))
	fn.Append(ir.Jmp(endIf))

	fn.AddBlock(trueSide)
	fn.Assign(addr, ir.Long, ir.Add(renderRef(args[0]), ir.Const(uint64(l.Slot*8))))
	fn.Assign(out, ty, ir.Load(ty, addr))

	fn.AddBlock(endIf)
}
