package bp

import (
	"github.com/born-ml/bpgrad/internal/autodiff"
	"github.com/born-ml/bpgrad/internal/graph"
	"github.com/born-ml/bpgrad/internal/tensor"
	"github.com/gomlx/exceptions"
)

// goldStates maps a configuration to a state per variable node, -1 for the
// variables it leaves out.
func goldStates(fg *graph.FactorGraph, gold graph.VarConfig) []int {
	states := make([]int, fg.NumVars())
	for i := range states {
		states[i] = -1
	}
	for v, x := range gold {
		i := fg.VarIndex(v)
		if i < 0 {
			exceptions.Panicf("bp: variable %s of the gold configuration is not in the graph", v)
		}
		states[i] = x
	}
	return states
}

// MSELoss is the squared distance between the variable beliefs and the
// one-hot encoding of a gold configuration, summed over the variables of the
// configuration.
type MSELoss struct {
	autodiff.Base[*tensor.Tensor]
	in   autodiff.Module[*Beliefs]
	gold []int
}

// NewMSELoss creates an MSELoss over the beliefs produced by in.
func NewMSELoss(fg *graph.FactorGraph, in autodiff.Module[*Beliefs], gold graph.VarConfig) *MSELoss {
	return &MSELoss{Base: autodiff.NewBase[*tensor.Tensor](in), in: in, gold: goldStates(fg, gold)}
}

// Forward implements autodiff.Node.
func (l *MSELoss) Forward() {
	b := l.in.Output()
	s := b.Algebra()
	sum := s.Zero()
	for i, x := range l.gold {
		if x < 0 {
			continue
		}
		bv := b.Vars[i]
		for k := 0; k < bv.Size(); k++ {
			d := bv.Value(k)
			if k == x {
				d = s.Minus(d, s.One())
			}
			sum = s.Plus(sum, s.Times(d, d))
		}
	}
	l.SetOutput(tensor.Scalar(s, sum))
}

// Backward implements autodiff.Node.
func (l *MSELoss) Backward() {
	b, bAdj := l.in.Output(), l.in.OutputAdj()
	s := b.Algebra()
	g := s.Times(s.FromReal(2), l.OutputAdj().Value(0))
	for i, x := range l.gold {
		if x < 0 {
			continue
		}
		bv := b.Vars[i]
		for k := 0; k < bv.Size(); k++ {
			d := bv.Value(k)
			if k == x {
				d = s.Minus(d, s.One())
			}
			bAdj.Vars[i].AddValue(k, s.Times(g, d))
		}
	}
}

// ExpectedRecall is minus the sum, over the variables of a gold
// configuration, of the belief of the gold state.
type ExpectedRecall struct {
	autodiff.Base[*tensor.Tensor]
	in   autodiff.Module[*Beliefs]
	gold []int
}

// NewExpectedRecall creates an ExpectedRecall loss over the beliefs produced
// by in.
func NewExpectedRecall(fg *graph.FactorGraph, in autodiff.Module[*Beliefs], gold graph.VarConfig) *ExpectedRecall {
	return &ExpectedRecall{Base: autodiff.NewBase[*tensor.Tensor](in), in: in, gold: goldStates(fg, gold)}
}

// Forward implements autodiff.Node.
func (l *ExpectedRecall) Forward() {
	b := l.in.Output()
	s := b.Algebra()
	sum := s.Zero()
	for i, x := range l.gold {
		if x >= 0 {
			sum = s.Minus(sum, b.Vars[i].Value(x))
		}
	}
	l.SetOutput(tensor.Scalar(s, sum))
}

// Backward implements autodiff.Node.
func (l *ExpectedRecall) Backward() {
	bAdj := l.in.OutputAdj()
	s := bAdj.Algebra()
	g := l.OutputAdj().Value(0)
	for i, x := range l.gold {
		if x >= 0 {
			bAdj.Vars[i].SetValue(x, s.Minus(bAdj.Vars[i].Value(x), g))
		}
	}
}

// LogPartitionOut outputs the log partition function of its input.
type LogPartitionOut struct {
	autodiff.Base[*tensor.Tensor]
	in autodiff.Module[*Beliefs]
}

// NewLogPartitionOut creates a LogPartitionOut over in.
func NewLogPartitionOut(in autodiff.Module[*Beliefs]) *LogPartitionOut {
	return &LogPartitionOut{Base: autodiff.NewBase[*tensor.Tensor](in), in: in}
}

// Forward implements autodiff.Node.
func (l *LogPartitionOut) Forward() { l.SetOutput(l.in.Output().LogPartition.Clone()) }

// Backward implements autodiff.Node.
func (l *LogPartitionOut) Backward() {
	l.in.OutputAdj().LogPartition.ElemAdd(l.OutputAdj())
}
