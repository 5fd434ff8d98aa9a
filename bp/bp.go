// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package bp provides the public API for belief propagation over factor
// graphs and its reverse-mode differentiation.
//
// A FactorGraph holds discrete variables and the factors that score their
// joint assignments. BeliefPropagation computes approximate marginals and
// the Bethe log partition function. A Module wraps the same computation as
// an autodiff module whose adjoints flow back into the factor potentials,
// and from there into feature weights.
//
// Example:
//
//	fg := bp.NewFactorGraph()
//	a := bp.NewVar(bp.Predicted, 2, "a")
//	b := bp.NewVar(bp.Predicted, 2, "b")
//	fg.AddFactor(bp.NewExplicitFactor("ab", bp.NewVarTensorFromReals(tensor.Real,
//	    bp.NewVarSet(a, b), 1, 2, 3, 4)))
//	engine, err := bp.New(fg, bp.DefaultOptions())
//	engine.Run()
//	fmt.Println(engine.VarBelief(0).Reals(), engine.LogPartition())
package bp

import (
	"github.com/born-ml/bpgrad/internal/algebra"
	"github.com/born-ml/bpgrad/internal/autodiff"
	"github.com/born-ml/bpgrad/internal/bp"
	"github.com/born-ml/bpgrad/internal/deptree"
	"github.com/born-ml/bpgrad/internal/graph"
	"github.com/born-ml/bpgrad/internal/optim"
	"github.com/born-ml/bpgrad/internal/tensor"
	"github.com/born-ml/bpgrad/internal/train"
)

// Factor graphs.
type (
	FactorGraph = graph.FactorGraph
	Var         = graph.Var
	VarType     = graph.VarType
	VarSet      = graph.VarSet
	VarConfig   = graph.VarConfig
	VarTensor   = graph.VarTensor
	Factor      = graph.Factor
	ExactResult = graph.ExactResult
)

// Variable types.
const (
	Observed  = graph.Observed
	Predicted = graph.Predicted
	Latent    = graph.Latent
)

// NewFactorGraph creates an empty factor graph.
func NewFactorGraph() *FactorGraph { return graph.New() }

// NewVar creates a variable with numStates states.
func NewVar(typ VarType, numStates int, name string, stateNames ...string) *Var {
	return graph.NewVar(typ, numStates, name, stateNames...)
}

// NewVarSet creates a set of variables, ordered by creation.
func NewVarSet(vars ...*Var) VarSet { return graph.NewVarSet(vars...) }

// NewVarTensorFromReals creates a table over vars from real numbers.
func NewVarTensorFromReals(s algebra.Algebra, vars VarSet, reals ...float64) *VarTensor {
	return graph.NewVarTensorFromReals(s, vars, reals...)
}

// NewExplicitFactor creates a factor with a dense potential table.
func NewExplicitFactor(name string, pot *VarTensor) *Factor {
	return graph.NewExplicitFactor(name, pot)
}

// BruteForce computes exact marginals and the log partition by enumeration.
func BruteForce(fg *FactorGraph) (*ExactResult, error) { return graph.BruteForce(fg) }

// Inference.
type (
	BeliefPropagation = bp.BeliefPropagation
	Options           = bp.Options
	Status            = bp.Status
)

// New creates a belief propagation engine over fg.
func New(fg *FactorGraph, opts Options) (*BeliefPropagation, error) { return bp.New(fg, opts) }

// DefaultOptions returns the default options.
func DefaultOptions() Options { return bp.DefaultOptions() }

// LoadOptions reads YAML options from path.
func LoadOptions(path string) (Options, error) { return bp.LoadOptions(path) }

// Differentiation.
type (
	Factors        = bp.Factors
	Beliefs        = bp.Beliefs
	Module         = bp.Module
	FactorsModule  = bp.FactorsModule
	Feature        = bp.Feature
	FeatureTable   = bp.FeatureTable
	MSELoss        = bp.MSELoss
	ExpectedRecall = bp.ExpectedRecall
)

// NewModule wraps belief propagation over fg as a module of factors.
func NewModule(fg *FactorGraph, factors autodiff.Module[*Factors], opts Options) (*Module, error) {
	return bp.NewModule(fg, factors, opts)
}

// NewFactorsModule computes log-linear potentials from weights and
// per-configuration features.
func NewFactorsModule(fg *FactorGraph, weights autodiff.Module[*tensor.Tensor], feats []FeatureTable, s algebra.Algebra) *FactorsModule {
	return bp.NewFactorsModule(fg, weights, feats, s)
}

// NewMSELoss scores beliefs by squared distance to the gold assignment.
func NewMSELoss(fg *FactorGraph, in autodiff.Module[*Beliefs], gold VarConfig) *MSELoss {
	return bp.NewMSELoss(fg, in, gold)
}

// NewExpectedRecall scores beliefs by the negated mass on the gold states.
func NewExpectedRecall(fg *FactorGraph, in autodiff.Module[*Beliefs], gold VarConfig) *ExpectedRecall {
	return bp.NewExpectedRecall(fg, in, gold)
}

// ProjDepTreeFactor constrains link variables to form a projective
// dependency tree.
type ProjDepTreeFactor = deptree.ProjDepTreeFactor

// NewProjDepTreeFactor creates the tree factor of a sentence of n words.
func NewProjDepTreeFactor(n int, typ VarType) *ProjDepTreeFactor {
	return deptree.NewProjDepTreeFactor(n, typ)
}

// Training.
type (
	Example       = train.Example
	TrainerConfig = train.Config
	Trainer       = train.Trainer
)

// NewTrainer creates a trainer of theta over examples.
func NewTrainer(theta *optim.Parameter, examples []Example, cfg TrainerConfig) (*Trainer, error) {
	return train.New(theta, examples, cfg)
}
