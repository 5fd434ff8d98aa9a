// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides optimizers for the weights of factor potentials.
//
// Example:
//
//	theta := optim.NewParameter("theta", tensor.New(tensor.Real, numFeatures))
//	optimizer := optim.NewAdam([]*optim.Parameter{theta}, optim.AdamConfig{LR: 0.05})
//	for range epochs {
//	    optimizer.ZeroGrad()
//	    // forward and backward through the model
//	    optimizer.Step()
//	}
package optim

import (
	"github.com/born-ml/bpgrad/internal/optim"
	"github.com/born-ml/bpgrad/internal/tensor"
)

// Optimizer interface defines the common interface for all optimizers.
type Optimizer = optim.Optimizer

// Parameter is a trainable Real tensor, a leaf of a module graph.
type Parameter = optim.Parameter

// NewParameter creates a parameter holding values.
func NewParameter(name string, values *tensor.Tensor) *Parameter {
	return optim.NewParameter(name, values)
}

// SGD represents the SGD optimizer with optional momentum.
type SGD = optim.SGD

// SGDConfig contains configuration for SGD optimizer.
type SGDConfig = optim.SGDConfig

// NewSGD creates a new SGD optimizer.
func NewSGD(params []*Parameter, config SGDConfig) *SGD { return optim.NewSGD(params, config) }

// Adam represents the Adam optimizer.
type Adam = optim.Adam

// AdamConfig contains configuration for Adam optimizer.
type AdamConfig = optim.AdamConfig

// NewAdam creates a new Adam optimizer with bias correction.
func NewAdam(params []*Parameter, config AdamConfig) *Adam { return optim.NewAdam(params, config) }
