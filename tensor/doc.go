// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public API for the dense tables of belief
// propagation: row-major tensors whose entries are stored in an algebra.
//
// The package defines:
//   - Tensor: a row-major table of float64 values in one algebra
//   - Algebra: the representation of numbers and its semiring operations
//   - Shape: tensor dimensions
//
// Available algebras are REAL, LOG, LOG_SIGN, SPLIT and SHIFTED_REAL. LOG
// cannot represent negative numbers and so cannot hold adjoints.
//
// Example:
//
//	s := tensor.LogSign
//	x := tensor.FromReals(s, []float64{0.2, 0.8}, 2)
//	x.Multiply(s.FromReal(2))
//	fmt.Println(x.Reals()) // [0.4 1.6]
package tensor
