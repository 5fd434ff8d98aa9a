package bp

import (
	"github.com/born-ml/bpgrad/internal/algebra"
	"github.com/born-ml/bpgrad/internal/autodiff"
	"github.com/born-ml/bpgrad/internal/graph"
	"github.com/born-ml/bpgrad/internal/tensor"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// Module is belief propagation as a differentiable module: its input
// produces the factor potentials, its output holds the beliefs and log Z.
//
// Forward runs inference with every message computation recorded on a
// tape; Backward walks the tape in reverse from the output adjoint and
// accumulates into the adjoint of the potentials.
type Module struct {
	autodiff.Base[*Beliefs]
	fg      *graph.FactorGraph
	factors autodiff.Module[*Factors]
	tape    *autodiff.GradientTape
	engine  *BeliefPropagation
}

// NewModule creates a differentiable BP module over fg. Adjoints can be
// negative, so the algebra must be able to represent negative numbers: LOG
// is rejected.
func NewModule(fg *graph.FactorGraph, factors autodiff.Module[*Factors], opts Options) (*Module, error) {
	s, err := opts.AlgebraImpl()
	if err != nil {
		return nil, err
	}
	if !algebra.SupportsNegatives(s) {
		return nil, errors.Errorf("bp: algebra %s cannot represent negative adjoints, use LOG_SIGN or REAL", s.Name())
	}
	tape := autodiff.NewGradientTape()
	engine, err := newEngine(fg, opts, nil, tape)
	if err != nil {
		return nil, err
	}
	return &Module{
		Base:    autodiff.NewBase[*Beliefs](factors),
		fg:      fg,
		factors: factors,
		tape:    tape,
		engine:  engine,
	}, nil
}

// Engine returns the underlying inference engine, to inspect the last run.
func (m *Module) Engine() *BeliefPropagation { return m.engine }

// Forward implements autodiff.Node.
func (m *Module) Forward() {
	fs := m.factors.Output()
	if len(fs.Potentials) != m.fg.NumFactors() {
		exceptions.Panicf("bp.Module: %d potentials for %d factors", len(fs.Potentials), m.fg.NumFactors())
	}
	pots := make([]*graph.VarTensor, m.fg.NumFactors())
	for a, f := range m.fg.Factors() {
		if f.Kind() == graph.Global {
			continue
		}
		p := fs.Potentials[a]
		if p == nil {
			exceptions.Panicf("bp.Module: missing potential for factor %s", f)
		}
		if p.Algebra() != m.engine.s {
			exceptions.Panicf("bp.Module: potential of factor %s is in algebra %s, want %s", f, p.Algebra().Name(), m.engine.s.Name())
		}
		pots[a] = graph.WrapTensor(p, f.Vars())
	}
	m.engine.pots = pots

	m.tape.Clear()
	m.tape.StartRecording()
	m.engine.Run()
	m.tape.StopRecording()

	m.SetOutput(&Beliefs{
		Vars:         m.engine.VarBeliefs(),
		Factors:      m.engine.FactorBeliefs(),
		LogPartition: m.engine.logZ.Tensor,
	})
}

// Backward implements autodiff.Node.
func (m *Module) Backward() {
	out, adj := m.Output(), m.OutputAdj()
	seeds := make(map[*tensor.Tensor]*tensor.Tensor, len(out.Vars)+len(out.Factors)+1)
	for i, b := range out.Vars {
		seeds[b] = adj.Vars[i]
	}
	for i, b := range out.Factors {
		if b != nil {
			seeds[b] = adj.Factors[i]
		}
	}
	seeds[out.LogPartition] = adj.LogPartition

	adjs := m.tape.Backward(seeds)
	potAdj := m.factors.OutputAdj()
	for a, p := range m.engine.pots {
		if p == nil {
			continue
		}
		if g, ok := adjs[p.Tensor]; ok {
			potAdj.Potentials[a].ElemAdd(g)
		}
	}
}
