package graph

import (
	"fmt"

	"github.com/mna/jyafn/lang/types"
)

// A Node applies an op to a vector of references. Nodes are stored in
// topological order: every node reference in Args has a strictly lower index
// than the node itself. Ty is the result of the op's type rule over the
// argument types.
type Node struct {
	Op   Op
	Args []types.Ref
	Ty   types.Type
}

// initNode type-checks the op against the arguments and builds the node that
// would sit at index selfID.
func initNode(g *Graph, selfID int, op Op, args []types.Ref) (Node, error) {
	argTypes := make([]types.Type, len(args))
	for i, arg := range args {
		argTypes[i] = g.TypeOf(arg)
	}
	ty, ok := op.Annotate(selfID, g, argTypes)
	if !ok {
		return Node{}, &TypeError{Op: op.Name(), Args: argTypes}
	}
	return Node{Op: op, Args: args, Ty: ty}, nil
}

func (n Node) String() string {
	return fmt.Sprintf("%s%v -> %s", n.Op.Name(), n.Args, n.Ty)
}
