// Package decode turns the beliefs of an inference run into assignments of
// the variables: the max-marginal assignment, which minimizes the expected
// Hamming loss, or assignments sampled from each variable's belief.
package decode

import (
	"github.com/born-ml/bpgrad/internal/graph"
	"github.com/born-ml/bpgrad/internal/tensor"
	"github.com/gomlx/exceptions"
)

// MaxMarginal returns, for every variable of fg that is not observed, its
// most probable state under beliefs (indexed by var node, in any algebra).
// Ties go to the lowest state.
func MaxMarginal(fg *graph.FactorGraph, beliefs []*tensor.Tensor) graph.VarConfig {
	return decodeEach(fg, beliefs, argmax)
}

// Sample draws the state of every variable of fg that is not observed
// independently from its belief.
func Sample(fg *graph.FactorGraph, beliefs []*tensor.Tensor, sampler *Sampler) graph.VarConfig {
	return decodeEach(fg, beliefs, sampler.Sample)
}

func decodeEach(fg *graph.FactorGraph, beliefs []*tensor.Tensor, pick func(logProbs []float64) int) graph.VarConfig {
	if len(beliefs) != fg.NumVars() {
		exceptions.Panicf("decode: got %d beliefs for %d variables", len(beliefs), fg.NumVars())
	}
	cfg := make(graph.VarConfig, fg.NumVars())
	logProbs := make([]float64, 0, 8)
	for i, v := range fg.Vars() {
		if v.Type() == graph.Observed {
			continue
		}
		b := beliefs[i]
		if b.Size() != v.NumStates() {
			exceptions.Panicf("decode: belief of %s has %d entries, want %d", v.Name(), b.Size(), v.NumStates())
		}
		s := b.Algebra()
		logProbs = logProbs[:0]
		for k := range b.Size() {
			logProbs = append(logProbs, s.ToLogProb(b.Value(k)))
		}
		cfg[v] = pick(logProbs)
	}
	return cfg
}
