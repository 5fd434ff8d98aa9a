// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package bp_test

import (
	"math"
	"testing"

	"github.com/born-ml/bpgrad/bp"
	"github.com/born-ml/bpgrad/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairwise(t *testing.T) {
	fg := bp.NewFactorGraph()
	a := bp.NewVar(bp.Predicted, 2, "a")
	b := bp.NewVar(bp.Predicted, 2, "b")
	fg.AddFactor(bp.NewExplicitFactor("ab", bp.NewVarTensorFromReals(tensor.Real,
		bp.NewVarSet(a, b), 1, 2, 3, 4)))

	engine, err := bp.New(fg, bp.DefaultOptions())
	require.NoError(t, err)
	engine.Run()
	require.True(t, engine.IsConverged())

	exact, err := bp.BruteForce(fg)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.3, 0.7}, exact.VarMarginals[0].Reals(), 1e-12)
	assert.InDeltaSlice(t, exact.VarMarginals[0].Reals(), engine.VarBelief(0).Reals(), 1e-9)
	assert.InDeltaSlice(t, exact.VarMarginals[1].Reals(), engine.VarBelief(1).Reals(), 1e-9)
	assert.InDelta(t, math.Log(10), engine.LogPartition(), 1e-9)
}
