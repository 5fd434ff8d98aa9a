// Package train fits the weights of log-linear factor potentials by
// minimizing a loss on the beliefs computed by approximate inference,
// backpropagating through belief propagation (ERMA-style training).
package train

import (
	"time"

	"github.com/born-ml/bpgrad/internal/autodiff"
	"github.com/born-ml/bpgrad/internal/bp"
	"github.com/born-ml/bpgrad/internal/graph"
	"github.com/born-ml/bpgrad/internal/optim"
	"github.com/born-ml/bpgrad/internal/serialization"
	"github.com/born-ml/bpgrad/internal/tensor"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// LossKind selects the training loss.
type LossKind string

const (
	MSE            LossKind = "MSE"
	ExpectedRecall LossKind = "EXPECTED_RECALL"
)

// Example is one training instance: a factor graph, the feature table of
// each of its factors (nil for factors keeping their own potential) and the
// gold configuration of its predicted variables.
type Example struct {
	Graph    *graph.FactorGraph
	Features []bp.FeatureTable
	Gold     graph.VarConfig
}

// Config configures a Trainer.
type Config struct {
	Epochs int
	Loss   LossKind
	Adam   optim.AdamConfig
	BP     bp.Options
}

// Trainer minimizes the sum of the losses of a set of examples.
type Trainer struct {
	cfg       Config
	theta     *optim.Parameter
	optimizer optim.Optimizer
	models    []autodiff.Module[*tensor.Tensor]
	epoch     int
	lastLoss  float64
}

// New creates a trainer for examples sharing the weights theta.
func New(theta *optim.Parameter, examples []Example, cfg Config) (*Trainer, error) {
	s, err := cfg.BP.AlgebraImpl()
	if err != nil {
		return nil, err
	}
	t := &Trainer{
		cfg:       cfg,
		theta:     theta,
		optimizer: optim.NewAdam([]*optim.Parameter{theta}, cfg.Adam),
	}
	for i, ex := range examples {
		factors := bp.NewFactorsModule(ex.Graph, theta, ex.Features, s)
		beliefs, err := bp.NewModule(ex.Graph, factors, cfg.BP)
		if err != nil {
			return nil, errors.WithMessagef(err, "train: example %d", i)
		}
		var loss autodiff.Module[*tensor.Tensor]
		switch cfg.Loss {
		case MSE:
			loss = bp.NewMSELoss(ex.Graph, beliefs, ex.Gold)
		case ExpectedRecall:
			loss = bp.NewExpectedRecall(ex.Graph, beliefs, ex.Gold)
		default:
			return nil, errors.Errorf("train: unknown loss %q", cfg.Loss)
		}
		topo, err := autodiff.NewTopoOrderFromRoot(loss, theta)
		if err != nil {
			return nil, errors.WithMessagef(err, "train: example %d", i)
		}
		t.models = append(t.models, topo)
	}
	return t, nil
}

// Loss returns the total loss at the current weights.
func (t *Trainer) Loss() float64 {
	total := 0.0
	for _, m := range t.models {
		m.Forward()
		y := m.Output()
		total += y.Algebra().ToReal(y.Value(0))
	}
	return total
}

// Epoch accumulates the adjoints of every example's loss into the weights,
// takes one optimizer step and returns the loss before the step.
func (t *Trainer) Epoch() float64 {
	t.optimizer.ZeroGrad()
	total := 0.0
	for _, m := range t.models {
		m.Forward()
		y := m.Output()
		s := y.Algebra()
		total += s.ToReal(y.Value(0))
		m.ZeroOutputAdj()
		m.OutputAdj().Fill(s.One())
		m.Backward()
	}
	t.optimizer.Step()
	t.epoch++
	t.lastLoss = total
	return total
}

// Run trains for the configured number of epochs and returns the loss after
// each epoch's step.
func (t *Trainer) Run() []float64 {
	losses := make([]float64, 0, t.cfg.Epochs)
	for epoch := range t.cfg.Epochs {
		start := time.Now()
		before := t.Epoch()
		after := t.Loss()
		losses = append(losses, after)
		klog.V(1).Infof("train: epoch %d, loss %.6g -> %.6g, lr %g, took %s",
			epoch+1, before, after, t.optimizer.GetLR(), time.Since(start))
	}
	return losses
}

// Weights returns the current weights as reals.
func (t *Trainer) Weights() []float64 { return t.theta.Output().Values() }

// Checkpoint saves the weights with the number of epochs run so far and the
// loss before the last step.
func (t *Trainer) Checkpoint(path string) error {
	return serialization.Save(path, map[string]*tensor.Tensor{t.theta.Name(): t.theta.Output()}, serialization.Header{
		Checkpoint: &serialization.CheckpointMeta{
			Epoch:         t.epoch,
			Loss:          t.lastLoss,
			OptimizerType: "Adam",
			OptimizerConfig: map[string]any{
				"lr":    t.cfg.Adam.LR,
				"betas": t.cfg.Adam.Betas,
				"eps":   t.cfg.Adam.Eps,
			},
		},
		Metadata: map[string]string{"loss": string(t.cfg.Loss)},
	})
}

// LoadWeights replaces the weights with those saved by Checkpoint.
func (t *Trainer) LoadWeights(path string) error {
	stateDict, header, err := serialization.Load(path)
	if err != nil {
		return err
	}
	saved, ok := stateDict[t.theta.Name()]
	if !ok {
		return errors.Errorf("train: %s holds no tensor %q", path, t.theta.Name())
	}
	w := t.theta.Output()
	if saved.Algebra() != w.Algebra() || saved.Size() != w.Size() {
		return errors.Errorf("train: %s holds %d %s weights, want %d %s",
			path, saved.Size(), saved.Algebra().Name(), w.Size(), w.Algebra().Name())
	}
	for i := range w.Size() {
		w.SetValue(i, saved.Value(i))
	}
	if header.Checkpoint != nil {
		klog.V(1).Infof("train: loaded weights of epoch %d (loss %.6g) from %s", header.Checkpoint.Epoch, header.Checkpoint.Loss, path)
	}
	return nil
}
