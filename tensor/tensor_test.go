// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor_test

import (
	"testing"

	"github.com/born-ml/bpgrad/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlgebras(t *testing.T) {
	for _, name := range []string{"REAL", "LOG", "LOG_SIGN", "SPLIT", "SHIFTED_REAL"} {
		s, err := tensor.AlgebraByName(name)
		require.NoError(t, err)
		x := tensor.FromReals(s, []float64{0.2, 0.8}, 2)
		x.Multiply(s.FromReal(2))
		assert.InDeltaSlice(t, []float64{0.4, 1.6}, x.Reals(), 1e-12, name)
		assert.Equal(t, name != "LOG", tensor.SupportsNegatives(s), name)
	}
	_, err := tensor.AlgebraByName("QUATERNION")
	assert.Error(t, err)
}
