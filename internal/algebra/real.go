package algebra

import "math"

// Real is the algebra of ordinary real numbers.
var Real Algebra = realAlgebra{}

type realAlgebra struct{}

func (realAlgebra) Name() string { return "REAL" }

func (realAlgebra) FromReal(x float64) float64    { return x }
func (realAlgebra) ToReal(a float64) float64      { return a }
func (realAlgebra) FromLogProb(l float64) float64 { return math.Exp(l) }
func (realAlgebra) ToLogProb(a float64) float64   { return math.Log(a) }

func (realAlgebra) Zero() float64   { return 0 }
func (realAlgebra) One() float64    { return 1 }
func (realAlgebra) PosInf() float64 { return math.Inf(1) }
func (realAlgebra) NegInf() float64 { return math.Inf(-1) }

func (realAlgebra) Plus(a, b float64) float64   { return a + b }
func (realAlgebra) Minus(a, b float64) float64  { return a - b }
func (realAlgebra) Times(a, b float64) float64  { return a * b }
func (realAlgebra) Divide(a, b float64) float64 { return a / b }
func (realAlgebra) Exp(a float64) float64       { return math.Exp(a) }
func (realAlgebra) Log(a float64) float64       { return math.Log(a) }
func (realAlgebra) Abs(a float64) float64       { return math.Abs(a) }
func (realAlgebra) Negate(a float64) float64    { return -a }

func (realAlgebra) Gt(a, b float64) bool  { return a > b }
func (realAlgebra) Gte(a, b float64) bool { return a >= b }
func (realAlgebra) Lt(a, b float64) bool  { return a < b }
func (realAlgebra) Lte(a, b float64) bool { return a <= b }

func (realAlgebra) Eq(a, b, tol float64) bool { return eqTol(a, b, tol) }
func (realAlgebra) IsNaN(a float64) bool      { return math.IsNaN(a) }

// eqTol compares two plain floats; equal infinities are equal.
func eqTol(a, b, tol float64) bool {
	if a == b {
		return true
	}
	return math.Abs(a-b) <= tol
}
