// Package autodiff implements the reverse-mode differentiation substrate:
// composable forward/backward modules, an explicit topological ordering of
// them, and gradient tapes that record elementary operations so that an
// iterative numerical program (such as belief propagation) can be replayed
// backward.
//
// Architecture:
//   - Module: a node with an output, a lazily zero-filled output adjoint and
//     an ordered list of inputs. Forward computes the output from the inputs'
//     outputs; Backward reads the output adjoint and accumulates into the
//     inputs' adjoints (sum rule, nothing is ever overwritten).
//   - TopoOrder: a composite module running its nodes in a fixed order
//     forward and in reverse order backward.
//   - GradientTape: records tensor-level Ops during a forward computation and
//     walks them in reverse to compute adjoints.
//   - ScalarTape: the same idea at scalar granularity, for dynamic programs.
//
// All values, adjoints included, live in an algebra.Algebra. Adjoints can be
// negative, so differentiable code must run in an algebra that represents
// negative numbers (see algebra.SupportsNegatives).
package autodiff

import (
	"github.com/born-ml/bpgrad/internal/algebra"
	"github.com/gomlx/exceptions"
)

// Container is implemented by every value type a Module can output: a
// tensor, or a fixed bundle of tensors. Exposing the values through a flat
// index lets generic code (adjoint initialization, finite differences)
// handle all of them alike.
type Container[T any] interface {
	// CopyAndFill returns a container of the same shape with every value set to v.
	CopyAndFill(v float64) T
	Algebra() algebra.Algebra
	Size() int
	Value(i int) float64
	SetValue(i int, v float64)
	AddValue(i int, v float64)
}

// Node is the untyped view of a Module used for scheduling.
type Node interface {
	// Forward computes the output from the inputs' current outputs. Calling it
	// again with unchanged inputs yields the same output.
	Forward()
	// Backward accumulates into every input's output adjoint, given this node's
	// output adjoint. It never zeroes anything.
	Backward()
	// Inputs returns the nodes this node reads from, in order.
	Inputs() []Node
	// ZeroOutputAdj discards the accumulated output adjoint.
	ZeroOutputAdj()
}

// Module is a Node with a typed output.
type Module[T Container[T]] interface {
	Node
	Output() T
	// OutputAdj returns the output adjoint, creating it filled with the
	// algebra's zero on first access.
	OutputAdj() T
}

// Base stores the output, adjoint and inputs of a Module. Concrete modules
// embed it and implement Forward and Backward.
type Base[T Container[T]] struct {
	y      T
	yAdj   T
	hasY   bool
	hasAdj bool
	inputs []Node
}

// NewBase creates the storage for a module reading from inputs.
func NewBase[T Container[T]](inputs ...Node) Base[T] {
	return Base[T]{inputs: inputs}
}

// Inputs implements Node.
func (b *Base[T]) Inputs() []Node { return b.inputs }

// HasOutput reports whether Forward has produced an output.
func (b *Base[T]) HasOutput() bool { return b.hasY }

// Output implements Module. It panics if called before Forward.
func (b *Base[T]) Output() T {
	if !b.hasY {
		exceptions.Panicf("autodiff: output read before Forward")
	}
	return b.y
}

// SetOutput stores the forward result. A new output invalidates the adjoint.
func (b *Base[T]) SetOutput(y T) {
	b.y = y
	b.hasY = true
	b.hasAdj = false
}

// OutputAdj implements Module.
func (b *Base[T]) OutputAdj() T {
	if !b.hasAdj {
		y := b.Output()
		b.yAdj = y.CopyAndFill(y.Algebra().Zero())
		b.hasAdj = true
	}
	return b.yAdj
}

// ZeroOutputAdj implements Node.
func (b *Base[T]) ZeroOutputAdj() {
	if b.hasAdj {
		b.yAdj = b.yAdj.CopyAndFill(b.yAdj.Algebra().Zero())
	}
}

// Identity is a leaf module holding a fixed value, typically model
// parameters or observed inputs. Its adjoint is where gradients end up.
type Identity[T Container[T]] struct {
	Base[T]
}

// NewIdentity creates a leaf module whose output is y.
func NewIdentity[T Container[T]](y T) *Identity[T] {
	m := &Identity[T]{}
	m.SetOutput(y)
	return m
}

// Forward implements Node; the output is fixed at construction.
func (m *Identity[T]) Forward() {}

// Backward implements Node; a leaf has nothing to propagate to.
func (m *Identity[T]) Backward() {}

// AccumulateAdj adds src into dst value by value (dst += src), the sum rule
// every Backward uses.
func AccumulateAdj[T Container[T]](dst, src T) {
	if dst.Size() != src.Size() {
		exceptions.Panicf("autodiff: adjoint sizes differ (%d vs %d)", dst.Size(), src.Size())
	}
	if dst.Algebra() != src.Algebra() {
		exceptions.Panicf("autodiff: adjoint algebras differ (%s vs %s)", dst.Algebra().Name(), src.Algebra().Name())
	}
	for i := 0; i < src.Size(); i++ {
		dst.AddValue(i, src.Value(i))
	}
}
