package algebra

import "math"

// LogSign stores a real number as a (sign, log|x|) pair packed into a single
// float64: the lowest mantissa bit of log|x| is replaced by the sign (1 for
// negative). Zero is always stored with a positive sign, so LogSign zero and
// one have the same bit patterns as in the Log algebra.
var LogSign Algebra = &signedLogAlgebra{name: "LOG_SIGN", pack: packLogSign, unpack: unpackLogSign}

// Split stores (sign, log|x|) with the log-magnitude as a float32 in the low
// 32 bits and the sign in bit 32. It trades precision for a representation
// whose raw bits never form a NaN.
var Split Algebra = &signedLogAlgebra{name: "SPLIT", pack: packSplit, unpack: unpackSplit}

const (
	logSignMask = uint64(1)
	splitMask   = uint64(1) << 32
)

// packLogSign folds the sign into log|x|. A negative infinite value packs to
// the bits of +Inf with the low bit set, which is a NaN pattern: raw LogSign
// values must never be tested with math.IsNaN or used in float arithmetic,
// only unpacked. Moves and copies keep the bits intact.
func packLogSign(neg bool, logAbs float64) float64 {
	if math.IsNaN(logAbs) {
		return math.NaN()
	}
	bits := math.Float64bits(logAbs)
	if neg {
		bits |= logSignMask
	} else {
		bits &^= logSignMask
	}
	return math.Float64frombits(bits)
}

func unpackLogSign(a float64) (bool, float64) {
	bits := math.Float64bits(a)
	return bits&logSignMask != 0, math.Float64frombits(bits &^ logSignMask)
}

func packSplit(neg bool, logAbs float64) float64 {
	bits := uint64(math.Float32bits(float32(logAbs)))
	if neg {
		bits |= splitMask
	}
	return math.Float64frombits(bits)
}

func unpackSplit(a float64) (bool, float64) {
	bits := math.Float64bits(a)
	return bits&splitMask != 0, float64(math.Float32frombits(uint32(bits)))
}

type signedLogAlgebra struct {
	name   string
	pack   func(neg bool, logAbs float64) float64
	unpack func(a float64) (neg bool, logAbs float64)
}

// compact packs, normalizing the sign of zero.
func (s *signedLogAlgebra) compact(neg bool, logAbs float64) float64 {
	if math.IsInf(logAbs, -1) {
		neg = false
	}
	return s.pack(neg, logAbs)
}

func (s *signedLogAlgebra) Name() string { return s.name }

func (s *signedLogAlgebra) FromReal(x float64) float64 {
	if math.IsNaN(x) {
		return math.NaN()
	}
	return s.compact(x < 0, math.Log(math.Abs(x)))
}

func (s *signedLogAlgebra) ToReal(a float64) float64 {
	neg, l := s.unpack(a)
	if neg {
		return -math.Exp(l)
	}
	return math.Exp(l)
}

func (s *signedLogAlgebra) FromLogProb(l float64) float64 { return s.compact(false, l) }

func (s *signedLogAlgebra) ToLogProb(a float64) float64 {
	neg, l := s.unpack(a)
	if neg {
		return math.NaN()
	}
	return l
}

func (s *signedLogAlgebra) Zero() float64   { return s.compact(false, math.Inf(-1)) }
func (s *signedLogAlgebra) One() float64    { return s.compact(false, 0) }
func (s *signedLogAlgebra) PosInf() float64 { return s.compact(false, math.Inf(1)) }
func (s *signedLogAlgebra) NegInf() float64 { return s.compact(true, math.Inf(1)) }

func (s *signedLogAlgebra) Plus(a, b float64) float64 {
	na, la := s.unpack(a)
	nb, lb := s.unpack(b)
	if math.IsNaN(la) || math.IsNaN(lb) {
		return math.NaN()
	}
	if na == nb {
		return s.compact(na, logAdd(la, lb))
	}
	if la >= lb {
		return s.compact(na, logSubtract(la, lb))
	}
	return s.compact(nb, logSubtract(lb, la))
}

func (s *signedLogAlgebra) Minus(a, b float64) float64 {
	return s.Plus(a, s.Negate(b))
}

func (s *signedLogAlgebra) Times(a, b float64) float64 {
	na, la := s.unpack(a)
	nb, lb := s.unpack(b)
	return s.compact(na != nb, la+lb)
}

func (s *signedLogAlgebra) Divide(a, b float64) float64 {
	na, la := s.unpack(a)
	nb, lb := s.unpack(b)
	return s.compact(na != nb, la-lb)
}

func (s *signedLogAlgebra) Exp(a float64) float64 {
	return s.compact(false, s.ToReal(a))
}

func (s *signedLogAlgebra) Log(a float64) float64 {
	neg, l := s.unpack(a)
	if neg {
		return math.NaN()
	}
	return s.FromReal(l)
}

func (s *signedLogAlgebra) Abs(a float64) float64 {
	_, l := s.unpack(a)
	return s.compact(false, l)
}

func (s *signedLogAlgebra) Negate(a float64) float64 {
	neg, l := s.unpack(a)
	return s.compact(!neg, l)
}

// compare returns -1, 0 or 1, and false if either value is NaN.
func (s *signedLogAlgebra) compare(a, b float64) (int, bool) {
	na, la := s.unpack(a)
	nb, lb := s.unpack(b)
	if math.IsNaN(la) || math.IsNaN(lb) {
		return 0, false
	}
	switch {
	case na != nb:
		if na {
			return -1, true
		}
		return 1, true
	case la == lb:
		return 0, true
	case (la < lb) != na:
		return -1, true
	default:
		return 1, true
	}
}

func (s *signedLogAlgebra) Gt(a, b float64) bool  { c, ok := s.compare(a, b); return ok && c > 0 }
func (s *signedLogAlgebra) Gte(a, b float64) bool { c, ok := s.compare(a, b); return ok && c >= 0 }
func (s *signedLogAlgebra) Lt(a, b float64) bool  { c, ok := s.compare(a, b); return ok && c < 0 }
func (s *signedLogAlgebra) Lte(a, b float64) bool { c, ok := s.compare(a, b); return ok && c <= 0 }

// Eq compares log-magnitudes when the signs agree, and real values otherwise.
func (s *signedLogAlgebra) Eq(a, b, tol float64) bool {
	na, la := s.unpack(a)
	nb, lb := s.unpack(b)
	if math.IsNaN(la) || math.IsNaN(lb) {
		return false
	}
	if na == nb {
		return eqTol(la, lb, tol)
	}
	return eqTol(s.ToReal(a), s.ToReal(b), tol)
}

func (s *signedLogAlgebra) IsNaN(a float64) bool {
	_, l := s.unpack(a)
	return math.IsNaN(l)
}
