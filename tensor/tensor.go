// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/bpgrad/internal/algebra"
	"github.com/born-ml/bpgrad/internal/tensor"
)

// Tensor is a row-major table of values in an algebra.
type Tensor = tensor.Tensor

// Shape represents the dimensions of a tensor.
type Shape = tensor.Shape

// Algebra is a semiring over float64 representations of real numbers.
type Algebra = algebra.Algebra

// Algebras.
var (
	Real        = algebra.Real
	Log         = algebra.Log
	LogSign     = algebra.LogSign
	Split       = algebra.Split
	ShiftedReal = algebra.ShiftedReal
)

// AlgebraByName returns the algebra with the given name.
func AlgebraByName(name string) (Algebra, error) { return algebra.ByName(name) }

// SupportsNegatives reports whether s can hold adjoints.
func SupportsNegatives(s Algebra) bool { return algebra.SupportsNegatives(s) }

// New creates a tensor filled with the algebra's zero.
func New(s Algebra, dims ...int) *Tensor { return tensor.New(s, dims...) }

// FromReals creates a tensor from real numbers, converted into s.
func FromReals(s Algebra, reals []float64, dims ...int) *Tensor {
	return tensor.FromReals(s, reals, dims...)
}

// FromValues creates a tensor from values already in s.
func FromValues(s Algebra, values []float64, dims ...int) *Tensor {
	return tensor.FromValues(s, values, dims...)
}

// Scalar creates a rank-0 tensor.
func Scalar(s Algebra, v float64) *Tensor { return tensor.Scalar(s, v) }
