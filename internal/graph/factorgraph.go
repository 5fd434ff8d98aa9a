package graph

import (
	"fmt"

	"github.com/gomlx/exceptions"
)

// Node identifies a variable or factor node of a FactorGraph by its index
// in the corresponding arena.
type Node struct {
	IsVar bool
	Index int
}

// String implements fmt.Stringer.
func (n Node) String() string {
	if n.IsVar {
		return fmt.Sprintf("var#%d", n.Index)
	}
	return fmt.Sprintf("factor#%d", n.Index)
}

// Edge is a directed message edge. Edges come in pairs: edge id^1 is the
// opposite direction of edge id, and even ids point from a variable to a
// factor.
type Edge struct {
	ID     int
	Var    int // Var node index.
	Factor int // Factor node index.
	// Pos is the position of the variable in the factor's VarSet.
	Pos int
}

// IsVarToFactor reports the direction of the edge.
func (e Edge) IsVarToFactor() bool { return e.ID&1 == 0 }

// From returns the sending node.
func (e Edge) From() Node {
	if e.IsVarToFactor() {
		return Node{IsVar: true, Index: e.Var}
	}
	return Node{Index: e.Factor}
}

// To returns the receiving node.
func (e Edge) To() Node {
	if e.IsVarToFactor() {
		return Node{Index: e.Factor}
	}
	return Node{IsVar: true, Index: e.Var}
}

// Opposite returns the id of the edge in the other direction.
func Opposite(id int) int { return id ^ 1 }

// FactorGraph is a bipartite graph of variables and factors. Variables and
// factors live in arenas indexed by node index; edges refer to nodes by
// index. The structure is only mutated by AddVar and AddFactor and is
// read-only during inference.
type FactorGraph struct {
	vars      []*Var
	varIndex  map[*Var]int
	factors   []*Factor
	edges     []Edge
	varOut    [][]int // var -> factor edges per var node
	factorOut [][]int // factor -> var edges per factor node, in VarSet order
}

// New creates an empty factor graph.
func New() *FactorGraph {
	return &FactorGraph{varIndex: make(map[*Var]int)}
}

// AddVar adds v if it is not yet in the graph and returns its node index.
func (fg *FactorGraph) AddVar(v *Var) int {
	if i, ok := fg.varIndex[v]; ok {
		return i
	}
	i := len(fg.vars)
	fg.vars = append(fg.vars, v)
	fg.varIndex[v] = i
	fg.varOut = append(fg.varOut, nil)
	return i
}

// AddFactor adds f and its variables, creating one edge pair per variable.
// It returns the factor node index.
func (fg *FactorGraph) AddFactor(f *Factor) int {
	fi := len(fg.factors)
	fg.factors = append(fg.factors, f)
	out := make([]int, f.vars.Len())
	for pos, v := range f.vars.vars {
		vi := fg.AddVar(v)
		id := len(fg.edges)
		fg.edges = append(fg.edges,
			Edge{ID: id, Var: vi, Factor: fi, Pos: pos},
			Edge{ID: id + 1, Var: vi, Factor: fi, Pos: pos},
		)
		fg.varOut[vi] = append(fg.varOut[vi], id)
		out[pos] = id + 1
	}
	fg.factorOut = append(fg.factorOut, out)
	return fi
}

func (fg *FactorGraph) NumVars() int    { return len(fg.vars) }
func (fg *FactorGraph) NumFactors() int { return len(fg.factors) }
func (fg *FactorGraph) NumEdges() int   { return len(fg.edges) }
func (fg *FactorGraph) NumNodes() int   { return len(fg.vars) + len(fg.factors) }

func (fg *FactorGraph) Var(i int) *Var       { return fg.vars[i] }
func (fg *FactorGraph) Factor(i int) *Factor { return fg.factors[i] }
func (fg *FactorGraph) Edge(id int) Edge     { return fg.edges[id] }

// Edges returns every edge, indexed by id (not a copy).
func (fg *FactorGraph) Edges() []Edge { return fg.edges }

// VarIndex returns the node index of v, or -1.
func (fg *FactorGraph) VarIndex(v *Var) int {
	if i, ok := fg.varIndex[v]; ok {
		return i
	}
	return -1
}

// Vars returns all variables in node order (not a copy).
func (fg *FactorGraph) Vars() []*Var { return fg.vars }

// Factors returns all factors in node order (not a copy).
func (fg *FactorGraph) Factors() []*Factor { return fg.factors }

// VarNodes returns the nodes of all variables.
func (fg *FactorGraph) VarNodes() []Node {
	nodes := make([]Node, len(fg.vars))
	for i := range nodes {
		nodes[i] = Node{IsVar: true, Index: i}
	}
	return nodes
}

// FactorNodes returns the nodes of all factors.
func (fg *FactorGraph) FactorNodes() []Node {
	nodes := make([]Node, len(fg.factors))
	for i := range nodes {
		nodes[i] = Node{Index: i}
	}
	return nodes
}

// EdgesOutOf returns the ids of the edges leaving n (not a copy). For a
// factor they are in VarSet order.
func (fg *FactorGraph) EdgesOutOf(n Node) []int {
	fg.checkNode(n)
	if n.IsVar {
		return fg.varOut[n.Index]
	}
	return fg.factorOut[n.Index]
}

// EdgesInto returns the ids of the edges entering n.
func (fg *FactorGraph) EdgesInto(n Node) []int {
	out := fg.EdgesOutOf(n)
	in := make([]int, len(out))
	for i, id := range out {
		in[i] = Opposite(id)
	}
	return in
}

// Degree returns the number of neighbors of n.
func (fg *FactorGraph) Degree(n Node) int { return len(fg.EdgesOutOf(n)) }

func (fg *FactorGraph) checkNode(n Node) {
	limit := len(fg.factors)
	if n.IsVar {
		limit = len(fg.vars)
	}
	if n.Index < 0 || n.Index >= limit {
		exceptions.Panicf("graph.FactorGraph: %v out of range", n)
	}
}

// nodeID flattens a node into [0, NumNodes()): variables first.
func (fg *FactorGraph) nodeID(n Node) int {
	if n.IsVar {
		return n.Index
	}
	return len(fg.vars) + n.Index
}
