package graph

import "github.com/mna/jyafn/lang/types"

// Checks to run every time a graph arrives from an external source and might
// be corrupted in ways mere deserialization cannot detect.

// RunChecks validates the structural invariants of the graph: topological
// order, node typing, no pointers on the boundary, and initialized mappings
// and resources. The typing pass mutates the graph, since ops that annotate
// themselves fix their state when re-checked.
func (g *Graph) RunChecks() error {
	if err := g.checkTopsort(); err != nil {
		return err
	}
	if err := g.checkTypes(); err != nil {
		return err
	}
	if err := g.checkPointers(); err != nil {
		return err
	}
	if err := g.checkMappingsInitialized(); err != nil {
		return err
	}
	return g.checkResourcesInitialized()
}

func (g *Graph) checkTopsort() error {
	for id, node := range g.nodes {
		for _, arg := range node.Args {
			if arg.Kind == types.RefNode && arg.Index >= id {
				return topologyErrorf("graph topsort violated: node %d references node %d", id, arg.Index)
			}
		}
	}
	return nil
}

// checkTypes re-runs every op's type rule and confirms the stored type
// agrees. The ops re-annotate themselves in the process.
func (g *Graph) checkTypes() error {
	for id := range g.nodes {
		node := &g.nodes[id]
		argTypes := make([]types.Type, len(node.Args))
		for i, arg := range node.Args {
			argTypes[i] = g.TypeOf(arg)
		}
		ty, ok := node.Op.Annotate(id, g, argTypes)
		if !ok || ty != node.Ty {
			return &TypeError{Op: node.Op.Name(), Args: argTypes}
		}
	}
	return nil
}

func (g *Graph) checkPointers() error {
	for _, input := range g.inputs {
		if input.IsPtr() {
			return topologyErrorf("found pointer type in input")
		}
	}
	for _, output := range g.outputs {
		if g.TypeOf(output).IsPtr() {
			return topologyErrorf("found pointer type in output")
		}
	}
	return nil
}

func (g *Graph) checkMappingsInitialized() error {
	for name, m := range g.mappings {
		if !m.IsInitialized() {
			return topologyErrorf("while reading bundle, mapping %s was not initialized", name)
		}
	}
	return nil
}

func (g *Graph) checkResourcesInitialized() error {
	for name, r := range g.resources {
		if !r.IsInitialized() {
			return topologyErrorf("while reading bundle, resource %s was not initialized", name)
		}
	}
	return nil
}
