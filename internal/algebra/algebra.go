// Package algebra defines the numeric domains (semirings) in which tensors,
// factors and messages are expressed.
//
// Every value handled by the inference code is a float64 whose meaning depends
// on the Algebra it is bound to: in the Real algebra it is the number itself,
// in the Log algebra it is its logarithm, and in the signed log algebras it is
// a packed (sign, log-magnitude) pair. All arithmetic goes through the
// Algebra methods so the same code runs unchanged in every domain.
//
// Algebras are singletons: two tensors may only be combined if they are bound
// to the very same Algebra value (compared with ==).
//
// Division policy, shared by all algebras:
//   - x / 0 with x != 0 is a signed infinity;
//   - 0 / 0 is NaN and propagates, it is never clamped.
package algebra

import (
	"math"
	"strings"

	"github.com/pkg/errors"
)

// Algebra is a value semiring over float64 representations.
type Algebra interface {
	// Name is the canonical upper-case name, as used in configuration files.
	Name() string

	// FromReal converts a real number into this algebra's representation.
	FromReal(x float64) float64
	// ToReal converts a represented value back to a real number.
	ToReal(a float64) float64
	// FromLogProb converts log(x), for x >= 0, into this algebra's representation.
	FromLogProb(logX float64) float64
	// ToLogProb returns log(x) of a represented non-negative value.
	ToLogProb(a float64) float64

	Zero() float64
	One() float64
	PosInf() float64
	NegInf() float64

	Plus(a, b float64) float64
	Minus(a, b float64) float64
	Times(a, b float64) float64
	Divide(a, b float64) float64
	// Exp and Log are computed inside the domain: Exp(FromReal(x)) == FromReal(exp(x)).
	Exp(a float64) float64
	Log(a float64) float64
	Abs(a float64) float64
	Negate(a float64) float64

	Gt(a, b float64) bool
	Gte(a, b float64) bool
	Lt(a, b float64) bool
	Lte(a, b float64) bool
	// Eq reports whether a and b are equal within tolerance tol, measured on
	// the algebra's internal scale.
	Eq(a, b, tol float64) bool
	IsNaN(a float64) bool
}

// All lists every algebra singleton.
func All() []Algebra {
	return []Algebra{Real, Log, LogSign, Split, ShiftedReal}
}

// ByName returns the algebra with the given name (case-insensitive).
func ByName(name string) (Algebra, error) {
	for _, s := range All() {
		if strings.EqualFold(s.Name(), name) {
			return s, nil
		}
	}
	return nil, errors.Errorf("unknown algebra %q", name)
}

// SupportsNegatives reports whether s can represent negative numbers, which
// is required to hold adjoints.
func SupportsNegatives(s Algebra) bool {
	return s != Log
}

// Convert converts v from algebra from to algebra to.
//
// Conversions that go through the real line are exact up to float64
// rounding; conversions between two log-scaled algebras go through log space
// so that values outside the float64 range survive. A negative value sent to
// an algebra without negatives becomes NaN.
func Convert(v float64, from, to Algebra) float64 {
	if from == to {
		return v
	}
	if to == Real {
		return from.ToReal(v)
	}
	if from == Real {
		return to.FromReal(v)
	}
	if from.IsNaN(v) {
		return math.NaN()
	}
	neg := from.Lt(v, from.Zero())
	r := to.FromLogProb(from.ToLogProb(from.Abs(v)))
	if neg {
		r = to.Negate(r)
	}
	return r
}

// logAdd returns log(exp(a) + exp(b)).
func logAdd(a, b float64) float64 {
	if math.IsInf(a, 1) || math.IsInf(b, 1) {
		return math.Inf(1)
	}
	if a < b {
		a, b = b, a
	}
	if math.IsInf(b, -1) {
		return a
	}
	return a + math.Log1p(math.Exp(b-a))
}

// logSubtract returns log(exp(a) - exp(b)); NaN if b > a.
func logSubtract(a, b float64) float64 {
	if math.IsInf(b, -1) {
		return a
	}
	if a < b || math.IsNaN(a) || math.IsNaN(b) {
		return math.NaN()
	}
	if a == b {
		if math.IsInf(a, 1) {
			return math.NaN()
		}
		return math.Inf(-1)
	}
	return a + math.Log1p(-math.Exp(b-a))
}
