package graph

import (
	"math"

	"github.com/born-ml/bpgrad/internal/algebra"
	"github.com/born-ml/bpgrad/internal/tensor"
	"github.com/pkg/errors"
)

// ExactResult holds exact marginals (Real algebra) and the log partition.
type ExactResult struct {
	VarMarginals    []*tensor.Tensor // Indexed by var node.
	FactorMarginals []*tensor.Tensor // Indexed by factor node, dims = factor VarSet dims.
	LogPartition    float64
}

// BruteForce computes exact marginals and the partition function by
// enumerating every joint configuration. It is exponential in the number of
// variables and only meant as a correctness oracle. Global factors must
// implement Scorer.
func BruteForce(fg *FactorGraph) (*ExactResult, error) {
	all := NewVarSet(fg.vars...)
	for _, f := range fg.factors {
		if f.kind == Global {
			if _, ok := f.global.(Scorer); !ok {
				return nil, errors.Errorf("graph.BruteForce: global factor %s does not implement Scorer", f.name)
			}
		}
	}
	res := &ExactResult{
		VarMarginals:    make([]*tensor.Tensor, len(fg.vars)),
		FactorMarginals: make([]*tensor.Tensor, len(fg.factors)),
	}
	for i, v := range fg.vars {
		res.VarMarginals[i] = tensor.New(algebra.Real, v.numStates)
	}
	mappings := make([][]int, len(fg.factors))
	varPos := make([][]int, len(fg.factors))
	for i, f := range fg.factors {
		res.FactorMarginals[i] = tensor.New(algebra.Real, f.vars.Dims()...)
		mappings[i] = all.IndexMapping(f.vars)
		varPos[i] = make([]int, f.vars.Len())
		for k, v := range f.vars.vars {
			varPos[i][k] = all.IndexOf(v)
		}
	}

	z := 0.0
	states := make([]int, 0, 8)
	for c := 0; c < all.NumConfigs(); c++ {
		assign := all.Assignment(c)
		w := 1.0
		for i, f := range fg.factors {
			if f.kind == Explicit {
				w *= f.pot.Algebra().ToReal(f.pot.Value(mappings[i][c]))
				continue
			}
			states = states[:0]
			for _, p := range varPos[i] {
				states = append(states, assign[p])
			}
			w *= f.global.(Scorer).Score(states)
		}
		if w == 0 {
			continue
		}
		z += w
		for i, v := range fg.vars {
			res.VarMarginals[i].AddValue(assign[all.IndexOf(v)], w)
		}
		for i := range fg.factors {
			res.FactorMarginals[i].AddValue(mappings[i][c], w)
		}
	}
	for _, m := range res.VarMarginals {
		m.Divide(z)
	}
	for _, m := range res.FactorMarginals {
		m.Divide(z)
	}
	res.LogPartition = math.Log(z)
	return res, nil
}
