// Package bp implements loopy belief propagation over factor graphs, with
// every arithmetic step recorded on a gradient tape so that the marginals and
// the log partition function can be differentiated with respect to the
// factor potentials.
//
// A run goes through INIT (uniform messages, global factors reset), then
// sweeps until every message has converged, the iteration budget is spent,
// the timeout expires or the context is canceled. The outputs are the
// normalized variable and factor beliefs and an estimate of log Z: exact on
// trees with unnormalized messages, the Bethe free energy otherwise.
package bp

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/born-ml/bpgrad/internal/algebra"
	"github.com/born-ml/bpgrad/internal/autodiff"
	"github.com/born-ml/bpgrad/internal/graph"
	"github.com/born-ml/bpgrad/internal/metrics"
	"github.com/born-ml/bpgrad/internal/parallel"
	"github.com/born-ml/bpgrad/internal/schedule"
	"github.com/born-ml/bpgrad/internal/tensor"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Status is the state of a run.
type Status string

const (
	NotRun               Status = "not_run"
	Running              Status = "running"
	Converged            Status = "converged"
	MaxIterationsReached Status = "max_iterations"
	TimedOut             Status = "timeout"
	Canceled             Status = "canceled"
)

// BeliefPropagation runs belief propagation on a factor graph. The graph is
// only read; every run owns its messages. A BeliefPropagation is not safe for
// concurrent use.
type BeliefPropagation struct {
	fg      *graph.FactorGraph
	opts    Options
	s       algebra.Algebra
	pots    []*graph.VarTensor // Indexed by factor node; nil for global factors.
	ops     tapedOps
	tree    schedule.Fixed
	all     []schedule.Item
	workers parallel.Config
	metrics *metrics.Inference

	// Per-run state.
	runID         uuid.UUID
	msgs          *messages
	cache         []*graph.VarTensor
	iterations    int
	sent          int
	status        Status
	varBeliefs    []*graph.VarTensor
	factorBeliefs []*graph.VarTensor
	logZ          *graph.VarTensor
}

// New creates a BeliefPropagation over fg using the factors' own potentials,
// converted into the configured algebra. A TREE_LIKE sequential schedule on
// a graph with a cycle, or with several global factors in one component, is
// an error.
func New(fg *graph.FactorGraph, opts Options) (*BeliefPropagation, error) {
	s, err := opts.AlgebraImpl()
	if err != nil {
		return nil, err
	}
	pots := make([]*graph.VarTensor, fg.NumFactors())
	for i, f := range fg.Factors() {
		if f.Kind() == graph.Explicit {
			pots[i] = graph.WrapTensor(f.Potential().CopyAndConvertAlgebra(s), f.Vars())
		}
	}
	return newEngine(fg, opts, pots, nil)
}

func newEngine(fg *graph.FactorGraph, opts Options, pots []*graph.VarTensor, tape *autodiff.GradientTape) (*BeliefPropagation, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	s, err := opts.AlgebraImpl()
	if err != nil {
		return nil, err
	}
	bp := &BeliefPropagation{
		fg:      fg,
		opts:    opts,
		s:       s,
		pots:    pots,
		ops:     tapedOps{tape: tape},
		all:     schedule.AllEdges(fg),
		workers: parallel.NewConfig(opts.NumWorkers),
		status:  NotRun,
	}
	if opts.UpdateOrder == Sequential && opts.Schedule == TreeLike {
		if bp.tree, err = schedule.BFSTreeLike(fg); err != nil {
			return nil, errors.WithMessage(err, "bp: building tree-like schedule")
		}
	}
	return bp, nil
}

// SetMetrics makes the runs record into m (nil disables metrics).
func (bp *BeliefPropagation) SetMetrics(m *metrics.Inference) { bp.metrics = m }

// Algebra returns the algebra messages and beliefs are expressed in.
func (bp *BeliefPropagation) Algebra() algebra.Algebra { return bp.s }

// Run runs inference to completion and returns the final status.
func (bp *BeliefPropagation) Run() Status {
	_ = bp.RunContext(context.Background())
	return bp.status
}

// RunContext runs inference, checking ctx between sweeps. If ctx is done the
// run stops with status Canceled, the outputs reflect the messages so far,
// and ctx's error is returned.
func (bp *BeliefPropagation) RunContext(ctx context.Context) error {
	start := time.Now()
	bp.runID = uuid.New()
	bp.status = Running
	bp.iterations = 0
	bp.sent = 0
	bp.init()
	klog.V(1).Infof("bp run %s: %d vars, %d factors, schedule=%s order=%s algebra=%s",
		bp.runID, bp.fg.NumVars(), bp.fg.NumFactors(), bp.opts.Schedule, bp.opts.UpdateOrder, bp.s.Name())

	var random *schedule.Random
	if bp.opts.Schedule == RandomSchedule {
		random = schedule.NewRandom(bp.fg, rand.New(rand.NewPCG(bp.opts.Seed, 0x9e3779b97f4a7c15)))
	}
	timeout := time.Duration(bp.opts.TimeoutSeconds * float64(time.Second))
	var runErr error
	for bp.iterations < bp.opts.MaxIterations {
		if err := ctx.Err(); err != nil {
			bp.status, runErr = Canceled, err
			break
		}
		if timeout > 0 && time.Since(start) > timeout {
			bp.status = TimedOut
			break
		}
		sweepStart := time.Now()
		var n int
		switch {
		case bp.opts.UpdateOrder == Parallel:
			n = bp.parallelSweep(bp.all)
		case random != nil:
			n = bp.sequentialSweep(random.Items())
		default:
			n = bp.sequentialSweep(bp.tree)
		}
		bp.iterations++
		bp.sent += n
		bp.metrics.RecordSweep(string(bp.opts.UpdateOrder), n, time.Since(sweepStart))
		if klog.V(2).Enabled() {
			klog.Infof("bp run %s: iteration %d, max residual %g, %d/%d messages converged",
				bp.runID, bp.iterations, bp.msgs.maxResidual(), bp.msgs.numConverged, bp.fg.NumEdges())
		}
		if bp.msgs.allConverged() {
			bp.status = Converged
			break
		}
	}
	if bp.status == Running {
		bp.status = MaxIterationsReached
	}
	bp.computeOutputs()

	elapsed := time.Since(start)
	bp.metrics.RecordRun(string(bp.status), bp.iterations, elapsed)
	klog.V(1).Infof("bp run %s: %s after %d iterations, %s messages sent, log Z = %g, took %s",
		bp.runID, bp.status, bp.iterations, humanize.Comma(int64(bp.sent)), bp.LogPartition(), elapsed)
	switch {
	case bp.status == TimedOut:
		klog.Warningf("bp run %s: timed out after %d iterations (%s)", bp.runID, bp.iterations, elapsed)
	case bp.status == MaxIterationsReached && !bp.exactInOneSweep():
		klog.Warningf("bp run %s: not converged after %d iterations, max residual %g",
			bp.runID, bp.iterations, bp.msgs.maxResidual())
	}
	return runErr
}

// exactInOneSweep reports whether a single sweep already yields exact
// beliefs, so that not converging is expected.
func (bp *BeliefPropagation) exactInOneSweep() bool {
	return bp.tree != nil && bp.opts.UpdateOrder == Sequential
}

// init creates uniform messages, resets the global factors and fills the
// factor belief cache.
func (bp *BeliefPropagation) init() {
	bp.msgs = newMessages(bp.fg.NumEdges())
	for _, e := range bp.fg.Edges() {
		v := bp.fg.Var(e.Var)
		msg := graph.NewVarTensor(bp.s, graph.NewVarSet(v))
		if bp.opts.NormalizeMessages {
			msg.Fill(bp.s.FromReal(1 / float64(v.NumStates())))
		} else {
			msg.Fill(bp.s.One())
		}
		bp.msgs.init(e.ID, msg)
	}
	for _, f := range bp.fg.Factors() {
		if f.Kind() == graph.Global {
			f.Global().Reset()
		}
	}
	bp.cache = nil
	if bp.opts.CacheFactorBeliefs {
		bp.cache = make([]*graph.VarTensor, bp.fg.NumFactors())
		for a, f := range bp.fg.Factors() {
			if f.Kind() == graph.Explicit {
				bp.cache[a] = bp.productInto(bp.pots[a], graph.Node{Index: a}, -1)
			}
		}
	}
}

// productInto multiplies base by every message into node n except the one
// on edge skip (-1 for none). A nil base starts from the first message, or
// from a tensor of ones over vars when there is none.
func (bp *BeliefPropagation) productInto(base *graph.VarTensor, n graph.Node, skip int) *graph.VarTensor {
	out := base
	for _, in := range bp.fg.EdgesInto(n) {
		if in == skip {
			continue
		}
		if out == nil {
			out = bp.msgs.current(in)
			continue
		}
		out = bp.ops.Prod(out, bp.msgs.current(in))
	}
	if out == nil {
		v := graph.NewVarSet(bp.fg.Var(n.Index))
		out = graph.NewVarTensor(bp.s, v)
		out.Fill(bp.s.One())
	}
	return out
}

// createMessages computes the pending messages of item.
func (bp *BeliefPropagation) createMessages(item schedule.Item) {
	if item.Kind == schedule.GlobalItem {
		n := graph.Node{Index: item.Factor}
		inEdges := bp.fg.EdgesInto(n)
		in := make([]*graph.VarTensor, len(inEdges))
		for i, e := range inEdges {
			in[i] = bp.msgs.current(e)
		}
		out := bp.ops.GlobalMessages(bp.fg.Factor(item.Factor), in)
		for i, e := range bp.fg.EdgesOutOf(n) {
			bp.msgs.setPending(e, bp.maybeNormalize(out[i]))
		}
		return
	}

	e := bp.fg.Edge(item.Edge)
	var msg *graph.VarTensor
	if e.IsVarToFactor() {
		msg = bp.productInto(nil, e.From(), graph.Opposite(e.ID))
	} else {
		var prod *graph.VarTensor
		if in := bp.msgs.current(graph.Opposite(e.ID)); bp.cache != nil && !hasZero(in) {
			prod = bp.ops.Div(bp.cache[e.Factor], in)
		} else {
			prod = bp.productInto(bp.pots[e.Factor], e.From(), graph.Opposite(e.ID))
		}
		msg = bp.ops.Marginalize(prod, graph.NewVarSet(bp.fg.Var(e.Var)))
	}
	bp.msgs.setPending(e.ID, bp.maybeNormalize(msg))
}

func (bp *BeliefPropagation) maybeNormalize(msg *graph.VarTensor) *graph.VarTensor {
	if bp.opts.NormalizeMessages {
		return bp.ops.Normalize(msg)
	}
	return msg
}

// send sends the pending messages of item and returns how many were sent.
func (bp *BeliefPropagation) send(item schedule.Item) int {
	if item.Kind == schedule.GlobalItem {
		out := bp.fg.EdgesOutOf(graph.Node{Index: item.Factor})
		for _, e := range out {
			bp.msgs.send(e, bp.opts.ConvergenceThreshold)
		}
		return len(out)
	}
	old := bp.msgs.send(item.Edge, bp.opts.ConvergenceThreshold)
	e := bp.fg.Edge(item.Edge)
	if bp.cache != nil && e.IsVarToFactor() && bp.cache[e.Factor] != nil {
		if hasZero(old) {
			// Dividing out a zero would leave 0/0 in the cache.
			bp.cache[e.Factor] = bp.productInto(bp.pots[e.Factor], e.To(), -1)
		} else {
			bp.cache[e.Factor] = bp.ops.Prod(bp.ops.Div(bp.cache[e.Factor], old), bp.msgs.current(e.ID))
		}
	}
	return 1
}

// hasZero reports whether a message has a zero entry, which cannot be
// divided out of a cached factor belief.
func hasZero(msg *graph.VarTensor) bool {
	s := msg.Algebra()
	for i := 0; i < msg.Size(); i++ {
		if s.ToReal(msg.Value(i)) == 0 {
			return true
		}
	}
	return false
}

func (bp *BeliefPropagation) sequentialSweep(items []schedule.Item) int {
	n := 0
	for _, it := range items {
		bp.createMessages(it)
		n += bp.send(it)
	}
	return n
}

// parallelSweep computes every message from the current ones, then sends
// them all. The computations run concurrently unless the tape is recording.
func (bp *BeliefPropagation) parallelSweep(items []schedule.Item) int {
	if bp.ops.tape.IsRecording() {
		for _, it := range items {
			bp.createMessages(it)
		}
	} else {
		parallel.For(len(items), func(i int) { bp.createMessages(items[i]) }, bp.workers)
	}
	n := 0
	for _, it := range items {
		n += bp.send(it)
	}
	return n
}

// computeOutputs computes the beliefs and the log partition function from
// the current messages.
func (bp *BeliefPropagation) computeOutputs() {
	unnormalized := make([]*graph.VarTensor, bp.fg.NumVars())
	bp.varBeliefs = make([]*graph.VarTensor, bp.fg.NumVars())
	for i := range unnormalized {
		unnormalized[i] = bp.productInto(nil, graph.Node{IsVar: true, Index: i}, -1)
		bp.varBeliefs[i] = bp.ops.Normalize(unnormalized[i])
	}
	bp.factorBeliefs = make([]*graph.VarTensor, bp.fg.NumFactors())
	for a, f := range bp.fg.Factors() {
		if f.Kind() == graph.Global {
			continue
		}
		b := bp.pots[a]
		if bp.cache != nil {
			b = bp.cache[a]
		} else {
			b = bp.productInto(b, graph.Node{Index: a}, -1)
		}
		bp.factorBeliefs[a] = bp.ops.Normalize(b)
	}
	bp.logZ = bp.logPartition(unnormalized)
}

// Status returns the status of the last run.
func (bp *BeliefPropagation) Status() Status { return bp.status }

// IsConverged reports whether the last run converged.
func (bp *BeliefPropagation) IsConverged() bool { return bp.status == Converged }

// Iterations returns the number of sweeps of the last run.
func (bp *BeliefPropagation) Iterations() int { return bp.iterations }

// RunID identifies the last run in log lines.
func (bp *BeliefPropagation) RunID() uuid.UUID { return bp.runID }

// MaxResidual returns the largest residual of the messages last sent.
func (bp *BeliefPropagation) MaxResidual() float64 {
	if bp.msgs == nil {
		return math.Inf(1)
	}
	return bp.msgs.maxResidual()
}

func (bp *BeliefPropagation) checkRun() {
	if bp.varBeliefs == nil {
		exceptions.Panicf("bp: outputs read before Run")
	}
}

// VarBelief returns the normalized belief of the variable at node index i,
// in the run's algebra.
func (bp *BeliefPropagation) VarBelief(i int) *tensor.Tensor {
	bp.checkRun()
	return bp.varBeliefs[i].Tensor
}

// VarBeliefs returns every normalized variable belief, by var node index.
func (bp *BeliefPropagation) VarBeliefs() []*tensor.Tensor {
	bp.checkRun()
	return unwrap(bp.varBeliefs)
}

// VarBeliefsInLogProb returns the variable beliefs as log probabilities.
func (bp *BeliefPropagation) VarBeliefsInLogProb() []*tensor.Tensor {
	return toLogProbs(bp.VarBeliefs())
}

// FactorBeliefs returns every normalized factor belief, by factor node index.
// Global factors have no belief (nil).
func (bp *BeliefPropagation) FactorBeliefs() []*tensor.Tensor {
	bp.checkRun()
	return unwrap(bp.factorBeliefs)
}

// FactorBeliefsInLogProb returns the factor beliefs as log probabilities.
func (bp *BeliefPropagation) FactorBeliefsInLogProb() []*tensor.Tensor {
	return toLogProbs(bp.FactorBeliefs())
}

// LogPartition returns the estimate of log Z as a real number (NaN if the
// Bethe free energy was needed and a global factor cannot report its term).
func (bp *BeliefPropagation) LogPartition() float64 {
	bp.checkRun()
	return bp.logZ.Algebra().ToReal(bp.logZ.Value(0))
}

// Partition returns the estimate of Z.
func (bp *BeliefPropagation) Partition() float64 {
	return math.Exp(bp.LogPartition())
}

func unwrap(vts []*graph.VarTensor) []*tensor.Tensor {
	out := make([]*tensor.Tensor, len(vts))
	for i, vt := range vts {
		if vt != nil {
			out[i] = vt.Tensor
		}
	}
	return out
}

func toLogProbs(ts []*tensor.Tensor) []*tensor.Tensor {
	out := make([]*tensor.Tensor, len(ts))
	for i, t := range ts {
		if t != nil {
			out[i] = t.CopyAndConvertAlgebra(algebra.Log)
		}
	}
	return out
}
