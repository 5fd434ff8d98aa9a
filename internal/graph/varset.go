package graph

import (
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
)

// VarSet is an ordered set of variables, sorted by Var id and without
// duplicates.
//
// A configuration of a VarSet (one state per variable) has a config index
// in mixed radix with the last variable varying fastest: exactly the
// row-major position in a tensor whose dims are VarSet.Dims().
type VarSet struct {
	vars []*Var
}

// NewVarSet creates a VarSet from vars in any order; duplicates are dropped.
func NewVarSet(vars ...*Var) VarSet {
	vs := slices.Clone(vars)
	slices.SortFunc(vs, func(a, b *Var) int {
		switch {
		case a.id < b.id:
			return -1
		case a.id > b.id:
			return 1
		}
		return 0
	})
	return VarSet{vars: slices.Compact(vs)}
}

func (vs VarSet) Len() int       { return len(vs.vars) }
func (vs VarSet) Var(i int) *Var { return vs.vars[i] }

// Vars returns a copy of the variables in order.
func (vs VarSet) Vars() []*Var { return slices.Clone(vs.vars) }

// IndexOf returns the position of v, or -1.
func (vs VarSet) IndexOf(v *Var) int {
	i, found := slices.BinarySearchFunc(vs.vars, v.id, func(x *Var, id uint64) int {
		switch {
		case x.id < id:
			return -1
		case x.id > id:
			return 1
		}
		return 0
	})
	if !found {
		return -1
	}
	return i
}

// Contains reports whether v is in the set.
func (vs VarSet) Contains(v *Var) bool { return vs.IndexOf(v) >= 0 }

// ContainsAll reports whether every variable of sub is in vs.
func (vs VarSet) ContainsAll(sub VarSet) bool {
	for _, v := range sub.vars {
		if !vs.Contains(v) {
			return false
		}
	}
	return true
}

// Equal reports whether both sets hold the same variables.
func (vs VarSet) Equal(o VarSet) bool { return slices.Equal(vs.vars, o.vars) }

// Union returns the variables in vs or o.
func (vs VarSet) Union(o VarSet) VarSet {
	return NewVarSet(append(slices.Clone(vs.vars), o.vars...)...)
}

// Diff returns the variables of vs not in o.
func (vs VarSet) Diff(o VarSet) VarSet {
	var out []*Var
	for _, v := range vs.vars {
		if !o.Contains(v) {
			out = append(out, v)
		}
	}
	return VarSet{vars: out}
}

// Dims returns the number of states of each variable.
func (vs VarSet) Dims() []int {
	dims := make([]int, len(vs.vars))
	for i, v := range vs.vars {
		dims[i] = v.numStates
	}
	return dims
}

// NumConfigs returns the number of joint configurations (1 for the empty set).
func (vs VarSet) NumConfigs() int {
	n := 1
	for _, v := range vs.vars {
		n *= v.numStates
	}
	return n
}

// ConfigIndex returns the config index of states, given in VarSet order.
func (vs VarSet) ConfigIndex(states []int) int {
	if len(states) != len(vs.vars) {
		exceptions.Panicf("graph.VarSet.ConfigIndex: %d states for %d variables", len(states), len(vs.vars))
	}
	idx := 0
	for i, v := range vs.vars {
		if states[i] < 0 || states[i] >= v.numStates {
			exceptions.Panicf("graph.VarSet.ConfigIndex: state %d out of range for %s (%d states)", states[i], v.name, v.numStates)
		}
		idx = idx*v.numStates + states[i]
	}
	return idx
}

// Assignment returns the states, in VarSet order, of config index config.
func (vs VarSet) Assignment(config int) []int {
	if config < 0 || config >= vs.NumConfigs() {
		exceptions.Panicf("graph.VarSet.Assignment: config %d out of range [0, %d)", config, vs.NumConfigs())
	}
	states := make([]int, len(vs.vars))
	for i := len(vs.vars) - 1; i >= 0; i-- {
		n := vs.vars[i].numStates
		states[i] = config % n
		config /= n
	}
	return states
}

// ConfigIndexOf returns the config index of the restriction of cfg to vs.
// Every variable of vs must be assigned in cfg.
func (vs VarSet) ConfigIndexOf(cfg VarConfig) int {
	states := make([]int, len(vs.vars))
	for i, v := range vs.vars {
		s, ok := cfg[v]
		if !ok {
			exceptions.Panicf("graph.VarSet.ConfigIndexOf: variable %s is not assigned", v.name)
		}
		states[i] = s
	}
	return vs.ConfigIndex(states)
}

// IndexMapping returns, for every config index of vs, the config index of
// its projection onto sub. sub must be a subset of vs.
func (vs VarSet) IndexMapping(sub VarSet) []int {
	if !vs.ContainsAll(sub) {
		exceptions.Panicf("graph.VarSet.IndexMapping: %v is not a subset of %v", sub, vs)
	}
	// Stride in sub of each variable of vs (0 if absent).
	strides := make([]int, len(vs.vars))
	stride := 1
	for i := len(sub.vars) - 1; i >= 0; i-- {
		strides[vs.IndexOf(sub.vars[i])] = stride
		stride *= sub.vars[i].numStates
	}
	out := make([]int, vs.NumConfigs())
	states := make([]int, len(vs.vars))
	for c := range out {
		idx := 0
		for i, s := range states {
			idx += s * strides[i]
		}
		out[c] = idx
		// Increment the mixed-radix counter, last variable fastest.
		for i := len(states) - 1; i >= 0; i-- {
			states[i]++
			if states[i] < vs.vars[i].numStates {
				break
			}
			states[i] = 0
		}
	}
	return out
}

// String implements fmt.Stringer.
func (vs VarSet) String() string {
	names := make([]string, len(vs.vars))
	for i, v := range vs.vars {
		names[i] = v.name
	}
	return "{" + strings.Join(names, ", ") + "}"
}

// VarConfig assigns a state to each of a set of variables.
type VarConfig map[*Var]int

// VarSet returns the assigned variables.
func (c VarConfig) VarSet() VarSet {
	vars := make([]*Var, 0, len(c))
	for v := range c {
		vars = append(vars, v)
	}
	return NewVarSet(vars...)
}
