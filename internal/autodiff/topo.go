package autodiff

import (
	"github.com/born-ml/bpgrad/internal/toposort"
	"github.com/gomlx/exceptions"
)

// TopoOrder is a composite module running a fixed sequence of nodes: Forward
// in order, Backward in reverse order. Its output is the output of the root,
// which must be the last node.
//
// The inputs of a TopoOrder are its leaves: nodes the order reads from but
// does not run. The caller is responsible for forwarding them first.
type TopoOrder[T Container[T]] struct {
	nodes  []Node
	root   Module[T]
	leaves []Node
}

// NewTopoOrder creates a TopoOrder from an explicit order. root must be the
// last element of nodes.
func NewTopoOrder[T Container[T]](nodes []Node, root Module[T], leaves ...Node) *TopoOrder[T] {
	if len(nodes) == 0 || nodes[len(nodes)-1] != Node(root) {
		exceptions.Panicf("autodiff.NewTopoOrder: root must be the last node")
	}
	return &TopoOrder[T]{nodes: nodes, root: root, leaves: leaves}
}

// NewTopoOrderFromRoot builds the order of every node root depends on,
// stopping at leaves (if any). It fails if the graph has a cycle or if the
// leaves do not cut root off from every other source node.
func NewTopoOrderFromRoot[T Container[T]](root Module[T], leaves ...Node) (*TopoOrder[T], error) {
	order, err := toposort.Sort[Node](root, Node.Inputs, leaves...)
	if err != nil {
		return nil, err
	}
	return &TopoOrder[T]{nodes: order, root: root, leaves: leaves}, nil
}

// Nodes returns the ordered nodes (not a copy).
func (o *TopoOrder[T]) Nodes() []Node { return o.nodes }

// Root returns the module whose output is the output of the order.
func (o *TopoOrder[T]) Root() Module[T] { return o.root }

// Forward implements Node.
func (o *TopoOrder[T]) Forward() {
	for _, n := range o.nodes {
		n.Forward()
	}
}

// Backward implements Node.
func (o *TopoOrder[T]) Backward() {
	for i := len(o.nodes) - 1; i >= 0; i-- {
		o.nodes[i].Backward()
	}
}

// Inputs implements Node: the leaves of the order.
func (o *TopoOrder[T]) Inputs() []Node { return o.leaves }

// ZeroOutputAdj zeroes the adjoints of every node in the order. Leaves are
// left untouched.
func (o *TopoOrder[T]) ZeroOutputAdj() {
	for _, n := range o.nodes {
		n.ZeroOutputAdj()
	}
}

// Output implements Module.
func (o *TopoOrder[T]) Output() T { return o.root.Output() }

// OutputAdj implements Module.
func (o *TopoOrder[T]) OutputAdj() T { return o.root.OutputAdj() }
