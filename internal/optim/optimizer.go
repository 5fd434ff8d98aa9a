// Package optim implements gradient-based optimizers for the real-valued
// parameters of a module graph, as used to train the weights of factor
// potentials by backpropagating through belief propagation.
//
// This package provides:
//   - Parameter: a named leaf of a module graph holding a Real tensor
//   - SGD: Stochastic Gradient Descent with momentum
//   - Adam: Adaptive Moment Estimation
//
// Example usage:
//
//	theta := optim.NewParameter("theta", tensor.New(algebra.Real, numFeatures))
//	optimizer := optim.NewAdam([]*optim.Parameter{theta}, optim.AdamConfig{LR: 0.05})
//
//	for epoch := range epochs {
//	    optimizer.ZeroGrad()
//	    model.ZeroOutputAdj()
//	    model.Forward()
//	    model.OutputAdj().Fill(algebra.Real.One())
//	    model.Backward()
//	    optimizer.Step()
//	}
package optim

import (
	"github.com/born-ml/bpgrad/internal/algebra"
	"github.com/born-ml/bpgrad/internal/autodiff"
	"github.com/born-ml/bpgrad/internal/tensor"
	"github.com/gomlx/exceptions"
)

// Optimizer is the base interface for all optimization algorithms.
//
// Optimizers update parameters in place from the adjoints accumulated into
// them by the last backward pass, to minimize the output of the model.
type Optimizer interface {
	// Step applies one update to every parameter from its adjoint.
	Step()

	// ZeroGrad clears the adjoints of every parameter.
	//
	// Call it before each backward pass: adjoints accumulate.
	ZeroGrad()

	// GetLR returns the current learning rate.
	GetLR() float64
}

// Parameter is a trainable leaf of a module graph: an identity module over a
// Real tensor, updated in place by optimizers.
type Parameter struct {
	*autodiff.Identity[*tensor.Tensor]
	name string
}

// NewParameter creates a parameter holding values, which must be Real.
func NewParameter(name string, values *tensor.Tensor) *Parameter {
	if values.Algebra() != algebra.Real {
		exceptions.Panicf("optim.NewParameter: %s must be REAL, got %s", name, values.Algebra().Name())
	}
	return &Parameter{Identity: autodiff.NewIdentity(values), name: name}
}

// Name returns the parameter's name.
func (p *Parameter) Name() string { return p.name }

// ZeroGrad clears the parameter's adjoint.
func (p *Parameter) ZeroGrad() { p.ZeroOutputAdj() }

// grad returns the parameter's adjoint as reals.
func (p *Parameter) grad() []float64 { return p.OutputAdj().Reals() }

func zeroGrads(params []*Parameter) {
	for _, p := range params {
		p.ZeroGrad()
	}
}
