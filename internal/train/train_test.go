package train

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/born-ml/bpgrad/internal/algebra"
	"github.com/born-ml/bpgrad/internal/bp"
	"github.com/born-ml/bpgrad/internal/graph"
	"github.com/born-ml/bpgrad/internal/optim"
	"github.com/born-ml/bpgrad/internal/serialization"
	"github.com/born-ml/bpgrad/internal/tensor"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tagger builds a 3-tag chain whose unary factors share one weight per
// state and whose transition factors share one weight per state pair.
func tagger() Example {
	vars := make([]*graph.Var, 3)
	fg := graph.New()
	for i := range vars {
		vars[i] = graph.NewVar(graph.Predicted, 2, fmt.Sprintf("t%d", i))
	}
	var feats []bp.FeatureTable
	for _, v := range vars {
		fg.AddFactor(graph.NewExplicitFactor("emit_"+v.Name(), graph.NewVarTensor(algebra.Real, graph.NewVarSet(v))))
		feats = append(feats, bp.FeatureTable{{{Index: 0, Value: 1}}, {{Index: 1, Value: 1}}})
	}
	for i := 0; i+1 < len(vars); i++ {
		fg.AddFactor(graph.NewExplicitFactor(fmt.Sprintf("tran%d", i), graph.NewVarTensor(algebra.Real, graph.NewVarSet(vars[i], vars[i+1]))))
		feats = append(feats, bp.FeatureTable{
			{{Index: 2, Value: 1}}, {{Index: 3, Value: 1}}, {{Index: 4, Value: 1}}, {{Index: 5, Value: 1}},
		})
	}
	return Example{Graph: fg, Features: feats, Gold: graph.VarConfig{vars[0]: 1, vars[1]: 0, vars[2]: 1}}
}

func TestTrainer_DecreasesLoss(t *testing.T) {
	for _, loss := range []LossKind{MSE, ExpectedRecall} {
		t.Run(string(loss), func(t *testing.T) {
			theta := optim.NewParameter("theta", tensor.New(algebra.Real, 6))
			cfg := Config{Epochs: 30, Loss: loss, Adam: optim.AdamConfig{LR: 0.1}, BP: bp.DefaultOptions()}
			tr := must.M1(New(theta, []Example{tagger()}, cfg))
			initial := tr.Loss()
			losses := tr.Run()
			require.Len(t, losses, 30)
			assert.Less(t, losses[len(losses)-1], initial)
			// Alternating gold tags favour the transitions that switch state.
			w := tr.Weights()
			assert.Greater(t, w[3]+w[4], w[2]+w[5])
		})
	}
}

func TestTrainer_Errors(t *testing.T) {
	theta := optim.NewParameter("theta", tensor.New(algebra.Real, 6))
	cfg := Config{Epochs: 1, Loss: "HINGE", BP: bp.DefaultOptions()}
	_, err := New(theta, []Example{tagger()}, cfg)
	assert.Error(t, err)

	cfg.Loss = MSE
	cfg.BP.Algebra = algebra.Log.Name()
	_, err = New(theta, []Example{tagger()}, cfg)
	assert.Error(t, err)
}

func TestTrainer_Checkpoint(t *testing.T) {
	cfg := Config{Epochs: 5, Loss: MSE, Adam: optim.AdamConfig{LR: 0.1}, BP: bp.DefaultOptions()}
	tr := must.M1(New(optim.NewParameter("theta", tensor.New(algebra.Real, 6)), []Example{tagger()}, cfg))
	tr.Run()
	path := filepath.Join(t.TempDir(), "theta.bpw")
	require.NoError(t, tr.Checkpoint(path))

	_, header, err := serialization.Load(path)
	require.NoError(t, err)
	require.NotNil(t, header.Checkpoint)
	assert.Equal(t, 5, header.Checkpoint.Epoch)
	assert.Equal(t, "Adam", header.Checkpoint.OptimizerType)

	restored := must.M1(New(optim.NewParameter("theta", tensor.New(algebra.Real, 6)), []Example{tagger()}, cfg))
	require.NoError(t, restored.LoadWeights(path))
	assert.Equal(t, tr.Weights(), restored.Weights())
	assert.InDelta(t, tr.Loss(), restored.Loss(), 1e-12)

	other := must.M1(New(optim.NewParameter("phi", tensor.New(algebra.Real, 6)), []Example{tagger()}, cfg))
	assert.Error(t, other.LoadWeights(path))
	bigger := must.M1(New(optim.NewParameter("theta", tensor.New(algebra.Real, 7)), []Example{tagger()}, cfg))
	assert.Error(t, bigger.LoadWeights(path))
}
