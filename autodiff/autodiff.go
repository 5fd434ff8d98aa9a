// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff provides reverse-mode differentiation over graphs of
// modules.
//
// A module computes its output from the outputs of its input modules in
// Forward, and in Backward adds to its inputs' adjoints given its own. A
// TopoOrder runs a whole graph, forward from the leaves and backward from
// the root.
//
// Example:
//
//	x := autodiff.NewIdentity(tensor.FromReals(tensor.Real, []float64{1, 2}, 2))
//	y := autodiff.NewSum(autodiff.NewExp(x))
//	topo, err := autodiff.NewTopoOrderFromRoot[*tensor.Tensor](y, x)
//	topo.Forward()
//	topo.OutputAdj().Fill(tensor.Real.One())
//	topo.Backward()
//	fmt.Println(x.OutputAdj().Reals()) // [e e²]
package autodiff

import (
	"math/rand/v2"

	"github.com/born-ml/bpgrad/internal/algebra"
	"github.com/born-ml/bpgrad/internal/autodiff"
	"github.com/born-ml/bpgrad/internal/autodiff/ops"
	"github.com/born-ml/bpgrad/internal/tensor"
)

// Container is an owned, flat-indexable value holder: a tensor or a list
// of tensors.
type Container[T any] = autodiff.Container[T]

// Node is a node of a module graph.
type Node = autodiff.Node

// Module computes an output and backpropagates into its inputs.
type Module[T autodiff.Container[T]] = autodiff.Module[T]

// Identity is a leaf module holding a fixed value.
type Identity[T autodiff.Container[T]] = autodiff.Identity[T]

// TopoOrder runs a module graph in topological order.
type TopoOrder[T autodiff.Container[T]] = autodiff.TopoOrder[T]

// GradCheckResult reports a finite-difference check.
type GradCheckResult = autodiff.GradCheckResult

// TensorModule is a module with a tensor output.
type TensorModule = ops.TensorModule

// NewIdentity creates a leaf module holding y.
func NewIdentity[T autodiff.Container[T]](y T) *Identity[T] { return autodiff.NewIdentity(y) }

// NewTopoOrderFromRoot orders every module between the leaves and root.
func NewTopoOrderFromRoot[T autodiff.Container[T]](root Module[T], leaves ...Node) (*TopoOrder[T], error) {
	return autodiff.NewTopoOrderFromRoot(root, leaves...)
}

// CheckGradients compares the adjoints model computes for inputs with
// central finite differences.
func CheckGradients[T autodiff.Container[T]](model Module[T], inputs []*Identity[*tensor.Tensor], epsilon float64, rng *rand.Rand) GradCheckResult {
	return autodiff.CheckGradients(model, inputs, epsilon, rng)
}

// Tensor operations.

func NewElemAdd(x, w TensorModule) *ops.ElemAdd           { return ops.NewElemAdd(x, w) }
func NewElemSubtract(x, w TensorModule) *ops.ElemSubtract { return ops.NewElemSubtract(x, w) }
func NewElemMultiply(x, w TensorModule) *ops.ElemMultiply { return ops.NewElemMultiply(x, w) }
func NewElemDivide(x, w TensorModule) *ops.ElemDivide     { return ops.NewElemDivide(x, w) }
func NewSelect(x TensorModule, dim, idx int) *ops.Select  { return ops.NewSelect(x, dim, idx) }
func NewCombine(a, b TensorModule) *ops.Combine           { return ops.NewCombine(a, b) }
func NewSum(x TensorModule) *ops.Sum                      { return ops.NewSum(x) }
func NewExp(x TensorModule) *ops.Exp                      { return ops.NewExp(x) }
func NewLog(x TensorModule) *ops.Log                      { return ops.NewLog(x) }
func NewScale(x TensorModule, c float64) *ops.Scale       { return ops.NewScale(x, c) }

// NewConvertAlgebra converts x into the algebra to.
func NewConvertAlgebra(x TensorModule, to algebra.Algebra) *ops.ConvertAlgebra {
	return ops.NewConvertAlgebra(x, to)
}
