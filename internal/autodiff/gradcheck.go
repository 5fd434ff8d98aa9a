package autodiff

import (
	"math"
	"math/rand/v2"

	"github.com/born-ml/bpgrad/internal/algebra"
	"github.com/born-ml/bpgrad/internal/tensor"
	"github.com/gomlx/exceptions"
)

// GradCheckResult reports a finite-difference check.
type GradCheckResult struct {
	// Analytic and Numeric hold, per input, the adjoint computed by Backward
	// and by central differences (as real numbers).
	Analytic, Numeric [][]float64
	// MaxAbsDiff is the largest |analytic - numeric| over all entries.
	MaxAbsDiff float64
}

// CheckGradients compares the adjoints that model computes for inputs with
// central finite differences.
//
// The output is reduced to a scalar by a random projection L = Σ c_i·y_i,
// with c drawn uniformly from [-1, 1] using rng, so every output entry
// contributes. Inputs must hold Real algebra tensors; model may convert to
// another algebra internally. model must recompute its output from its inputs
// on every Forward (a TopoOrder over the inputs, typically).
func CheckGradients[T Container[T]](model Module[T], inputs []*Identity[*tensor.Tensor], epsilon float64, rng *rand.Rand) GradCheckResult {
	for i, in := range inputs {
		if s := in.Output().Algebra(); s != algebra.Real {
			exceptions.Panicf("autodiff.CheckGradients: input %d is in algebra %s, want REAL", i, s.Name())
		}
	}

	model.Forward()
	out := model.Output()
	s := out.Algebra()
	proj := make([]float64, out.Size())
	for i := range proj {
		proj[i] = 2*rng.Float64() - 1
	}
	loss := func() float64 {
		model.Forward()
		y := model.Output()
		var l float64
		for i, c := range proj {
			l += c * s.ToReal(y.Value(i))
		}
		return l
	}

	// Analytic adjoints.
	model.ZeroOutputAdj()
	for _, in := range inputs {
		in.ZeroOutputAdj()
	}
	outAdj := model.OutputAdj()
	for i, c := range proj {
		outAdj.SetValue(i, s.FromReal(c))
	}
	model.Backward()

	res := GradCheckResult{
		Analytic: make([][]float64, len(inputs)),
		Numeric:  make([][]float64, len(inputs)),
	}
	for k, in := range inputs {
		res.Analytic[k] = in.OutputAdj().Reals()
	}

	// Numeric adjoints.
	for k, in := range inputs {
		x := in.Output()
		res.Numeric[k] = make([]float64, x.Size())
		for i := 0; i < x.Size(); i++ {
			orig := x.Value(i)
			x.SetValue(i, orig+epsilon)
			lPlus := loss()
			x.SetValue(i, orig-epsilon)
			lMinus := loss()
			x.SetValue(i, orig)
			res.Numeric[k][i] = (lPlus - lMinus) / (2 * epsilon)
			res.MaxAbsDiff = math.Max(res.MaxAbsDiff, math.Abs(res.Numeric[k][i]-res.Analytic[k][i]))
			if math.IsNaN(res.Numeric[k][i]) || math.IsNaN(res.Analytic[k][i]) {
				res.MaxAbsDiff = math.NaN()
			}
		}
	}
	model.Forward()
	return res
}
