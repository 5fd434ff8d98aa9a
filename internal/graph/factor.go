package graph

import (
	"fmt"

	"github.com/born-ml/bpgrad/internal/tensor"
	"github.com/gomlx/exceptions"
)

// Kind tags the variant of a Factor.
type Kind int

const (
	// Explicit factors hold a potential table over all configurations.
	Explicit Kind = iota
	// Global factors compute their messages with a dedicated algorithm.
	Global
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	if k == Global {
		return "GLOBAL"
	}
	return "EXPLICIT"
}

// GlobalFactor is a factor over many variables whose potential is never
// materialized: it computes all its outgoing messages at once from all its
// incoming messages, typically with a dynamic program.
//
// Messages are ordered like the factor's VarSet and live in the algebra of
// the incoming messages.
type GlobalFactor interface {
	// Reset clears per-run state. Called when inference starts.
	Reset()
	// CreateMessages returns every outgoing factor-to-var message given every
	// incoming var-to-factor message.
	CreateMessages(in []*tensor.Tensor) []*tensor.Tensor
	// BackwardCreateMessages returns the adjoints of the incoming messages
	// given the adjoints of the outgoing ones. It may recompute the forward
	// pass.
	BackwardCreateMessages(in, outAdj []*tensor.Tensor) []*tensor.Tensor
}

// BetheTermer is implemented by global factors able to report their
// contribution Σ_x b(x)·log(b(x)/ψ(x)) to the Bethe free energy.
type BetheTermer interface {
	// BetheTerm returns the term, in the algebra of in, given the incoming
	// messages (the factor belief is proportional to ψ times their product).
	BetheTerm(in []*tensor.Tensor) float64
	// BackwardBetheTerm returns the adjoints of the incoming messages given
	// the adjoint of the term.
	BackwardBetheTerm(in []*tensor.Tensor, adj float64) []*tensor.Tensor
}

// Scorer is implemented by global factors able to evaluate their potential
// (as a real number) on one configuration, states in VarSet order. It is
// only needed by BruteForce.
type Scorer interface {
	Score(states []int) float64
}

// Factor is a tagged variant: an explicit potential table or a global
// factor. Factors are immutable once added to a graph.
type Factor struct {
	kind   Kind
	name   string
	vars   VarSet
	pot    *VarTensor
	global GlobalFactor
}

// NewExplicitFactor creates a factor with potential table pot.
func NewExplicitFactor(name string, pot *VarTensor) *Factor {
	return &Factor{kind: Explicit, name: name, vars: pot.Vars(), pot: pot}
}

// NewGlobalFactor creates a global factor over vars.
func NewGlobalFactor(name string, vars VarSet, g GlobalFactor) *Factor {
	if g == nil {
		exceptions.Panicf("graph.NewGlobalFactor(%q): nil GlobalFactor", name)
	}
	return &Factor{kind: Global, name: name, vars: vars, global: g}
}

func (f *Factor) Kind() Kind     { return f.kind }
func (f *Factor) Name() string   { return f.name }
func (f *Factor) Vars() VarSet   { return f.vars }
func (f *Factor) String() string { return fmt.Sprintf("%s%v", f.name, f.vars) }

// Potential returns the potential table of an explicit factor (nil for a
// global factor).
func (f *Factor) Potential() *VarTensor { return f.pot }

// Global returns the algorithm of a global factor (nil for an explicit one).
func (f *Factor) Global() GlobalFactor { return f.global }
