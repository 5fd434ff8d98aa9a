package algebra

import "math"

// Log is the log semiring: a value x >= 0 is stored as log(x).
//
// It cannot represent negative numbers: Minus returning a negative result,
// Negate of a non-zero value and FromReal of a negative number all yield NaN.
// NegInf is NaN for the same reason.
var Log Algebra = logAlgebra{}

type logAlgebra struct{}

func (logAlgebra) Name() string { return "LOG" }

func (logAlgebra) FromReal(x float64) float64    { return math.Log(x) }
func (logAlgebra) ToReal(a float64) float64      { return math.Exp(a) }
func (logAlgebra) FromLogProb(l float64) float64 { return l }
func (logAlgebra) ToLogProb(a float64) float64   { return a }

func (logAlgebra) Zero() float64   { return math.Inf(-1) }
func (logAlgebra) One() float64    { return 0 }
func (logAlgebra) PosInf() float64 { return math.Inf(1) }
func (logAlgebra) NegInf() float64 { return math.NaN() }

func (logAlgebra) Plus(a, b float64) float64   { return logAdd(a, b) }
func (logAlgebra) Minus(a, b float64) float64  { return logSubtract(a, b) }
func (logAlgebra) Times(a, b float64) float64  { return a + b }
func (logAlgebra) Divide(a, b float64) float64 { return a - b }

// Exp: the represented value is x = exp(a), and log(exp(x)) = x = exp(a).
func (logAlgebra) Exp(a float64) float64 { return math.Exp(a) }

// Log: log(x) = a, which is only representable when a >= 0.
func (logAlgebra) Log(a float64) float64 { return math.Log(a) }

func (logAlgebra) Abs(a float64) float64 { return a }

func (logAlgebra) Negate(a float64) float64 {
	if math.IsInf(a, -1) {
		return a
	}
	return math.NaN()
}

func (logAlgebra) Gt(a, b float64) bool  { return a > b }
func (logAlgebra) Gte(a, b float64) bool { return a >= b }
func (logAlgebra) Lt(a, b float64) bool  { return a < b }
func (logAlgebra) Lte(a, b float64) bool { return a <= b }

func (logAlgebra) Eq(a, b, tol float64) bool { return eqTol(a, b, tol) }
func (logAlgebra) IsNaN(a float64) bool      { return math.IsNaN(a) }
