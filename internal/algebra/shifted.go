package algebra

import "math"

// ShiftedReal stores a real number x as x + shift. It behaves exactly like
// Real but its zero is not the literal 0.0, which makes it useful to catch
// code that bypasses the algebra.
var ShiftedReal Algebra = shiftedRealAlgebra{}

const shift = 1e-2 * math.Pi

type shiftedRealAlgebra struct{}

func (shiftedRealAlgebra) Name() string { return "SHIFTED_REAL" }

func (shiftedRealAlgebra) FromReal(x float64) float64    { return x + shift }
func (shiftedRealAlgebra) ToReal(a float64) float64      { return a - shift }
func (shiftedRealAlgebra) FromLogProb(l float64) float64 { return math.Exp(l) + shift }
func (shiftedRealAlgebra) ToLogProb(a float64) float64   { return math.Log(a - shift) }

func (shiftedRealAlgebra) Zero() float64   { return shift }
func (shiftedRealAlgebra) One() float64    { return 1 + shift }
func (shiftedRealAlgebra) PosInf() float64 { return math.Inf(1) }
func (shiftedRealAlgebra) NegInf() float64 { return math.Inf(-1) }

func (shiftedRealAlgebra) Plus(a, b float64) float64  { return (a - shift) + (b - shift) + shift }
func (shiftedRealAlgebra) Minus(a, b float64) float64 { return (a - shift) - (b - shift) + shift }
func (shiftedRealAlgebra) Times(a, b float64) float64 { return (a-shift)*(b-shift) + shift }
func (shiftedRealAlgebra) Divide(a, b float64) float64 {
	return (a-shift)/(b-shift) + shift
}
func (shiftedRealAlgebra) Exp(a float64) float64    { return math.Exp(a-shift) + shift }
func (shiftedRealAlgebra) Log(a float64) float64    { return math.Log(a-shift) + shift }
func (shiftedRealAlgebra) Abs(a float64) float64    { return math.Abs(a-shift) + shift }
func (shiftedRealAlgebra) Negate(a float64) float64 { return -(a - shift) + shift }

func (shiftedRealAlgebra) Gt(a, b float64) bool  { return a > b }
func (shiftedRealAlgebra) Gte(a, b float64) bool { return a >= b }
func (shiftedRealAlgebra) Lt(a, b float64) bool  { return a < b }
func (shiftedRealAlgebra) Lte(a, b float64) bool { return a <= b }

func (shiftedRealAlgebra) Eq(a, b, tol float64) bool { return eqTol(a, b, tol) }
func (shiftedRealAlgebra) IsNaN(a float64) bool      { return math.IsNaN(a) }
