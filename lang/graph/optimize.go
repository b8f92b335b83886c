package graph

import (
	"golang.org/x/exp/slices"

	"github.com/mna/jyafn/lang/ir"
	"github.com/mna/jyafn/lang/types"
)

// The optimization passes below run on a clone of the user graph during
// compilation; the user-visible graph is never mutated.

// constEval folds every node reachable from the outputs whose op produces a
// constant replacement given its current (already folded) args. Rewriting is
// order-independent because args are references, not inlined expressions;
// visited nodes are memoized so the pass is a fixed point after one run.
func constEval(g *Graph) {
	visited := make([]bool, len(g.nodes))
	folded := make([]types.Ref, len(g.nodes))

	var search func(nodeID int) types.Ref
	search = func(nodeID int) types.Ref {
		if visited[nodeID] {
			return folded[nodeID]
		}
		visited[nodeID] = true
		folded[nodeID] = types.Node(nodeID)

		newArgs := append([]types.Ref(nil), g.nodes[nodeID].Args...)
		for i, arg := range newArgs {
			if arg.Kind == types.RefNode {
				newArgs[i] = search(arg.Index)
			}
		}
		g.nodes[nodeID].Args = newArgs

		if evald, ok := g.nodes[nodeID].Op.ConstEval(g, newArgs); ok {
			folded[nodeID] = evald
		}
		return folded[nodeID]
	}

	newOutputs := append([]types.Ref(nil), g.outputs...)
	for i, output := range newOutputs {
		if output.Kind == types.RefNode {
			newOutputs[i] = search(output.Index)
		}
	}
	g.outputs = newOutputs

	// must-use nodes are roots too: folding their argument chains is what
	// lets the illegal-instruction check see a constant-false assert
	for id := range g.nodes {
		if g.nodes[id].Op.MustUse() {
			search(id)
		}
	}
}

// findReachable marks every node contributing to an output or flagged
// must-use, walking backwards from those seeds. The IR is pure by
// construction, so anything else can be dropped, including pfunc calls the
// backend would have to assume are effectful.
func findReachable(outputs []types.Ref, nodes []Node) []bool {
	var stack []int
	for _, r := range outputs {
		if r.Kind == types.RefNode {
			stack = append(stack, r.Index)
		}
	}
	for id, node := range nodes {
		if node.Op.MustUse() {
			stack = append(stack, id)
		}
	}

	reachable := make([]bool, len(nodes))
	for len(stack) > 0 {
		nodeID := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if reachable[nodeID] {
			continue
		}
		reachable[nodeID] = true
		for _, arg := range nodes[nodeID].Args {
			if arg.Kind == types.RefNode {
				stack = append(stack, arg.Index)
			}
		}
	}
	return reachable
}

// reverse builds the consumer adjacency of the node list: reverse[i] holds
// the indexes of the nodes that take node i as an argument.
func reverse(nodes []Node) [][]int {
	reversed := make([][]int, len(nodes))
	for id, node := range nodes {
		for _, arg := range node.Args {
			if arg.Kind == types.RefNode {
				reversed[arg.Index] = append(reversed[arg.Index], id)
			}
		}
	}
	return reversed
}

// intSet is a sorted set of node ids with max-first removal, the shape the
// branch partition wants.
type intSet struct {
	sorted []int
}

func (s *intSet) insert(v int) bool {
	i, found := slices.BinarySearch(s.sorted, v)
	if found {
		return false
	}
	s.sorted = slices.Insert(s.sorted, i, v)
	return true
}

func (s *intSet) contains(v int) bool {
	_, found := slices.BinarySearch(s.sorted, v)
	return found
}

func (s *intSet) popLast() (int, bool) {
	if len(s.sorted) == 0 {
		return 0, false
	}
	v := s.sorted[len(s.sorted)-1]
	s.sorted = s.sorted[:len(s.sorted)-1]
	return v, true
}

func (s *intSet) remove(v int) {
	if i, found := slices.BinarySearch(s.sorted, v); found {
		s.sorted = slices.Delete(s.sorted, i, i+1)
	}
}

func (s *intSet) len() int { return len(s.sorted) }

// findBranches partitions the ancestors of a Choose node at position choose
// into the set needed exclusively by its true side and the set needed
// exclusively by its false side. A node reachable from one seed also joins
// the other set when it is accessible later, that is, when some consumer
// sits at position >= choose: such nodes are shared and stay at the outer
// level.
func findBranches(nodes []Node, reversed [][]int, choose int) (trueSide, falseSide []int) {
	accessibleLater := func(nodeID int) bool {
		for _, other := range reversed[nodeID] {
			if other >= choose {
				return true
			}
		}
		return false
	}

	var queue, trueNodes, falseNodes intSet
	trueInQueue, falseInQueue := 0, 0

	if cond := nodes[choose].Args[0]; cond.Kind == types.RefNode {
		queue.insert(cond.Index)
		trueNodes.insert(cond.Index)
		falseNodes.insert(cond.Index)
		trueInQueue++
		falseInQueue++
	}
	if tn := nodes[choose].Args[1]; tn.Kind == types.RefNode {
		queue.insert(tn.Index)
		if trueNodes.insert(tn.Index) {
			trueInQueue++
		}
	}
	if fn := nodes[choose].Args[2]; fn.Kind == types.RefNode {
		queue.insert(fn.Index)
		if falseNodes.insert(fn.Index) {
			falseInQueue++
		}
	}

	for {
		nodeID, ok := queue.popLast()
		if !ok {
			break
		}
		args := nodes[nodeID].Args

		if trueNodes.contains(nodeID) {
			trueInQueue--
			for _, arg := range args {
				if arg.Kind != types.RefNode {
					continue
				}
				if trueNodes.insert(arg.Index) {
					queue.insert(arg.Index)
					trueInQueue++
					if accessibleLater(arg.Index) && falseNodes.insert(arg.Index) {
						falseInQueue++
					}
				}
			}
		}

		if falseNodes.contains(nodeID) {
			falseInQueue--
			for _, arg := range args {
				if arg.Kind != types.RefNode {
					continue
				}
				if falseNodes.insert(arg.Index) {
					queue.insert(arg.Index)
					falseInQueue++
					if accessibleLater(arg.Index) && trueNodes.insert(arg.Index) {
						trueInQueue++
					}
				}
			}
		}

		// once everything left is reachable from both sides the partition
		// cannot grow an exclusive member; cut the search
		if trueInQueue == queue.len() && falseInQueue == queue.len() {
			break
		}
	}

	for _, id := range trueNodes.sorted {
		if !falseNodes.contains(id) {
			trueSide = append(trueSide, id)
		}
	}
	for _, id := range falseNodes.sorted {
		if !trueNodes.contains(id) {
			falseSide = append(falseSide, id)
		}
	}
	return trueSide, falseSide
}

// A statementSeq is the emit order of a set of nodes: flat statements, with
// every Choose expanded into a nested conditional region whose sides emit
// their exclusive ancestors.
type statementSeq struct {
	stmts []statementOrCond
}

type statementOrCond struct {
	nodeID    int
	cond      types.Ref
	trueSide  *statementSeq
	falseSide *statementSeq
	isCond    bool
}

// buildStatements sequences all nodes of the graph.
func buildStatements(nodes []Node) *statementSeq {
	reversed := reverse(nodes)
	var all intSet
	for id := range nodes {
		all.insert(id)
	}
	return buildSeq(all, reversed, nodes)
}

func buildSeq(nodeIDs intSet, reversed [][]int, nodes []Node) *statementSeq {
	var buffer []statementOrCond

	// traverse in descending order; disinvert at the end
	for {
		nodeID, ok := nodeIDs.popLast()
		if !ok {
			break
		}
		if _, isChoose := nodes[nodeID].Op.(*Choose); isChoose {
			cond := nodes[nodeID].Args[0]
			trueSide, falseSide := findBranches(nodes, reversed, nodeID)

			for _, id := range trueSide {
				nodeIDs.remove(id)
			}
			for _, id := range falseSide {
				nodeIDs.remove(id)
			}

			var trueSet, falseSet intSet
			trueSet.sorted = trueSide
			falseSet.sorted = falseSide

			buffer = append(buffer, statementOrCond{
				nodeID:    nodeID,
				cond:      cond,
				trueSide:  buildSeq(trueSet, reversed, nodes),
				falseSide: buildSeq(falseSet, reversed, nodes),
				isCond:    true,
			})
		} else {
			buffer = append(buffer, statementOrCond{nodeID: nodeID})
		}
	}

	slices.Reverse(buffer)
	return &statementSeq{stmts: buffer}
}

// render emits the sequence into fn, skipping unreachable flat statements.
func (s *statementSeq) render(g *Graph, reachable []bool, fn *ir.Function, namespace string) {
	for _, stmt := range s.stmts {
		switch {
		case !stmt.isCond && reachable[stmt.nodeID]:
			node := &g.nodes[stmt.nodeID]
			node.Op.Emit(g, renderRef(types.Node(stmt.nodeID)), node.Args, fn, namespace)

		case stmt.isCond:
			out := renderRef(types.Node(stmt.nodeID))
			node := &g.nodes[stmt.nodeID]
			trueLabel := uniqueFor(out, "if.true")
			falseLabel := uniqueFor(out, "if.false")
			endLabel := uniqueFor(out, "if.end")

			fn.Append(ir.Jnz(renderRef(stmt.cond), trueLabel, falseLabel))

			fn.AddBlock(trueLabel)
			stmt.trueSide.render(g, reachable, fn, namespace)
			fn.Assign(out, renderType(node.Ty), ir.Copy(renderRef(node.Args[1])))
			fn.Append(ir.Jmp(endLabel))

			fn.AddBlock(falseLabel)
			stmt.falseSide.render(g, reachable, fn, namespace)
			fn.Assign(out, renderType(node.Ty), ir.Copy(renderRef(node.Args[2])))

			fn.AddBlock(endLabel)
		}
	}
}
