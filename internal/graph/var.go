// Package graph defines the factor-graph data model: variables, variable
// sets and tensors indexed by them, factors (explicit tables or global
// factors with a message-computing algorithm) and the bipartite factor graph
// with its directed message edges.
package graph

import (
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/gomlx/exceptions"
)

// VarType is the role of a variable in training.
type VarType int

const (
	// Observed variables are always clamped to their observed value.
	Observed VarType = iota
	// Predicted variables are the outputs the model is trained to predict.
	Predicted
	// Latent variables are neither observed nor supervised.
	Latent
)

// String implements fmt.Stringer.
func (t VarType) String() string {
	switch t {
	case Observed:
		return "OBSERVED"
	case Predicted:
		return "PREDICTED"
	case Latent:
		return "LATENT"
	default:
		return fmt.Sprintf("VarType(%d)", int(t))
	}
}

var lastVarID atomic.Uint64

// Var is a discrete random variable. It is immutable; identity is pointer
// identity. Every Var gets a process-unique id, increasing in creation order,
// which defines the order of variables in a VarSet.
type Var struct {
	id         uint64
	typ        VarType
	numStates  int
	name       string
	stateNames []string
}

// NewVar creates a variable with numStates states. stateNames, if given,
// must have one entry per state.
func NewVar(typ VarType, numStates int, name string, stateNames ...string) *Var {
	if numStates < 1 {
		exceptions.Panicf("graph.NewVar(%q): numStates must be positive, got %d", name, numStates)
	}
	if len(stateNames) > 0 && len(stateNames) != numStates {
		exceptions.Panicf("graph.NewVar(%q): %d state names for %d states", name, len(stateNames), numStates)
	}
	return &Var{
		id:         lastVarID.Add(1),
		typ:        typ,
		numStates:  numStates,
		name:       name,
		stateNames: slices.Clone(stateNames),
	}
}

func (v *Var) ID() uint64           { return v.id }
func (v *Var) Type() VarType        { return v.typ }
func (v *Var) NumStates() int       { return v.numStates }
func (v *Var) Name() string         { return v.name }
func (v *Var) String() string       { return v.name }
func (v *Var) StateNames() []string { return slices.Clone(v.stateNames) }

// StateIndex returns the index of the named state, or -1.
func (v *Var) StateIndex(name string) int {
	return slices.Index(v.stateNames, name)
}

// StateName returns the name of state i, or its number if states are unnamed.
func (v *Var) StateName(i int) string {
	if i < len(v.stateNames) {
		return v.stateNames[i]
	}
	return fmt.Sprint(i)
}
