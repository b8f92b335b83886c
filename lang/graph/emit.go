package graph

import (
	"fmt"
	"sort"

	"github.com/mna/jyafn/lang/ir"
	"github.com/mna/jyafn/lang/mapping"
)

// Render lowers the graph into an IR module, running the optimization passes
// on a clone. The module's entry function is named "run" and follows the
// calling convention fn run(in, out) -> status.
func (g *Graph) Render() (*ir.Module, error) {
	clone := g.Clone()
	module := ir.NewModule()
	clone.renderInto(module, "run")

	if node := clone.FindIllegal(); node != nil {
		return nil, &IllegalNodeError{Node: node.String()}
	}
	return module, nil
}

func (g *Graph) renderInto(module *ir.Module, namespace string) {
	main := module.AddFunction(ir.NewFunction(true, namespace, []ir.TypedValue{
		{Ty: ir.Long, Val: ir.Temp("in")},
		{Ty: ir.Long, Val: ir.Temp("out")},
	}, ir.Long))
	main.AddBlock("start")

	// load the inputs into their stable temporaries, advancing the input
	// cursor one slot at a time
	for id, input := range g.inputs {
		ty := renderType(input)
		main.Assign(ir.Temp(fmt.Sprintf("i%d", id)), ty, ir.Load(ty, ir.Temp("in")))
		main.Assign(ir.Temp("in"), ir.Long, ir.Add(ir.Const(uint64(input.Size())), ir.Temp("in")))
	}

	constEval(g)
	reachable := findReachable(g.outputs, g.nodes)
	buildStatements(g.nodes).render(g, reachable, main, namespace)

	for _, output := range g.outputs {
		ty := g.TypeOf(output)
		main.Append(ir.Store(renderType(ty), ir.Temp("out"), renderRef(output)))
		main.Assign(ir.Temp("out"), ir.Long, ir.Add(ir.Const(uint64(ty.Size())), ir.Temp("out")))
	}
	main.Append(ir.Ret(ir.Const(0)))

	// error messages as private nul-terminated byte arrays
	for errorID, msg := range g.errors {
		module.AddData(&ir.DataDef{
			Name: fmt.Sprintf("%s.error.%d", namespace, errorID),
			Items: []ir.DataItem{
				ir.StrItem(msg),
				ir.ByteItem(0),
			},
		})
	}

	// per-mapping trampolines, in stable name order
	names := make([]string, 0, len(g.mappings))
	for name := range g.mappings {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		m := g.mappings[name]
		handle := mapping.Pin(m)
		module.AddFunction(m.Render(fmt.Sprintf("%s.mapping.%s", namespace, name), handle))
	}

	// sub-graphs live in their own namespaces so that several graphs can
	// share one module without symbol clashes
	for i, sub := range g.subgraphs {
		sub.renderInto(module, fmt.Sprintf("%s.graph.%d", namespace, i))
	}
}
