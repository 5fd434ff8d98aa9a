package graph

// Traversals keep their marks in per-call slices, so a FactorGraph can be
// traversed concurrently.

// neighbor returns the node at the other end of out-edge id of n.
func (fg *FactorGraph) neighbor(id int) Node { return fg.edges[id].To() }

// ConnectedComponents returns the nodes of each connected component in BFS
// order from the component's first node. Components are discovered scanning
// variables first, then factors.
func (fg *FactorGraph) ConnectedComponents() [][]Node {
	marked := make([]bool, fg.NumNodes())
	var comps [][]Node
	scan := append(fg.VarNodes(), fg.FactorNodes()...)
	for _, start := range scan {
		if marked[fg.nodeID(start)] {
			continue
		}
		marked[fg.nodeID(start)] = true
		comp := []Node{start}
		for head := 0; head < len(comp); head++ {
			for _, id := range fg.EdgesOutOf(comp[head]) {
				nb := fg.neighbor(id)
				if !marked[fg.nodeID(nb)] {
					marked[fg.nodeID(nb)] = true
					comp = append(comp, nb)
				}
			}
		}
		comps = append(comps, comp)
	}
	return comps
}

// BFS runs a breadth-first search from root and returns the ids of the tree
// edges, each directed away from root, in the order they were discovered.
// acyclic is false if the component of root contains a cycle.
func (fg *FactorGraph) BFS(root Node) (edges []int, acyclic bool) {
	marked := make([]bool, fg.NumNodes())
	usedPair := make([]bool, len(fg.edges)/2)
	acyclic = true
	marked[fg.nodeID(root)] = true
	queue := []Node{root}
	for head := 0; head < len(queue); head++ {
		n := queue[head]
		for _, id := range fg.EdgesOutOf(n) {
			if usedPair[id/2] {
				continue
			}
			usedPair[id/2] = true
			nb := fg.neighbor(id)
			if marked[fg.nodeID(nb)] {
				acyclic = false
				continue
			}
			marked[fg.nodeID(nb)] = true
			edges = append(edges, id)
			queue = append(queue, nb)
		}
	}
	return edges, acyclic
}

// PreOrderTraversal returns the nodes of root's component in depth-first
// pre-order.
func (fg *FactorGraph) PreOrderTraversal(root Node) []Node {
	marked := make([]bool, fg.NumNodes())
	var order []Node
	stack := []Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if marked[fg.nodeID(n)] {
			continue
		}
		marked[fg.nodeID(n)] = true
		order = append(order, n)
		out := fg.EdgesOutOf(n)
		// Push in reverse so that the first neighbor is visited first.
		for i := len(out) - 1; i >= 0; i-- {
			if nb := fg.neighbor(out[i]); !marked[fg.nodeID(nb)] {
				stack = append(stack, nb)
			}
		}
	}
	return order
}

// IsAcyclic reports whether the graph is a forest: every component with k
// nodes has exactly k-1 undirected edges.
func (fg *FactorGraph) IsAcyclic() bool {
	for _, comp := range fg.ConnectedComponents() {
		degrees := 0
		for _, n := range comp {
			degrees += fg.Degree(n)
		}
		// Each undirected edge adds one out-edge at each endpoint.
		if degrees/2 != len(comp)-1 {
			return false
		}
	}
	return true
}
