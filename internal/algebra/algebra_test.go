package algebra

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func representable(s Algebra, x float64) bool {
	return x >= 0 || SupportsNegatives(s)
}

func TestConvert_RoundTrip(t *testing.T) {
	values := []float64{0, 1e-3, 0.5, 1, 2.5, 123, -0.25, -7}
	for _, from := range All() {
		for _, to := range All() {
			for _, x := range values {
				if !representable(from, x) || !representable(to, x) {
					continue
				}
				v := from.FromReal(x)
				back := Convert(Convert(v, from, to), to, from)
				tol := 1e-5 * math.Max(1, math.Abs(x))
				assert.InDeltaf(t, x, from.ToReal(back), tol, "%s -> %s -> %s for %g", from.Name(), to.Name(), from.Name(), x)
			}
		}
	}
}

func TestArithmetic_MatchesReal(t *testing.T) {
	pairs := [][2]float64{{0.5, 0.25}, {3, 2}, {1, 1}, {0, 4}, {-1.5, 0.5}, {2, -3}}
	for _, s := range All() {
		for _, p := range pairs {
			x, y := p[0], p[1]
			if !representable(s, x) || !representable(s, y) {
				continue
			}
			a, b := s.FromReal(x), s.FromReal(y)
			tol := 1e-5 * math.Max(1, math.Abs(x)+math.Abs(y))
			assert.InDeltaf(t, x+y, s.ToReal(s.Plus(a, b)), tol, "%s: %g+%g", s.Name(), x, y)
			assert.InDeltaf(t, x*y, s.ToReal(s.Times(a, b)), tol, "%s: %g*%g", s.Name(), x, y)
			if x/y >= 0 || SupportsNegatives(s) {
				assert.InDeltaf(t, x/y, s.ToReal(s.Divide(a, b)), tol, "%s: %g/%g", s.Name(), x, y)
			}
			if x-y >= 0 || SupportsNegatives(s) {
				assert.InDeltaf(t, x-y, s.ToReal(s.Minus(a, b)), tol, "%s: %g-%g", s.Name(), x, y)
			}
			assert.Equalf(t, x > y, s.Gt(a, b), "%s: %g>%g", s.Name(), x, y)
			assert.Equalf(t, x <= y, s.Lte(a, b), "%s: %g<=%g", s.Name(), x, y)
		}
	}
}

func TestIdentities(t *testing.T) {
	for _, s := range All() {
		// log(2.5) > 0 keeps Log(x) representable in the Log algebra too.
		x := s.FromReal(2.5)
		assert.InDelta(t, 2.5, s.ToReal(s.Plus(x, s.Zero())), 1e-5, s.Name())
		assert.InDelta(t, 2.5, s.ToReal(s.Times(x, s.One())), 1e-5, s.Name())
		assert.InDelta(t, 0.0, s.ToReal(s.Zero()), 1e-12, s.Name())
		assert.InDelta(t, 1.0, s.ToReal(s.One()), 1e-6, s.Name())
		assert.True(t, math.IsInf(s.ToReal(s.PosInf()), 1), s.Name())
		assert.InDelta(t, math.Exp(2.5), s.ToReal(s.Exp(x)), 1e-4, s.Name())
		assert.InDelta(t, math.Log(2.5), s.ToReal(s.Log(x)), 1e-5, s.Name())
	}
}

func TestDivisionPolicy(t *testing.T) {
	for _, s := range All() {
		one, zero := s.One(), s.Zero()
		assert.True(t, math.IsInf(s.ToReal(s.Divide(one, zero)), 1), s.Name())
		assert.True(t, s.IsNaN(s.Divide(zero, zero)), s.Name())
		if SupportsNegatives(s) {
			assert.True(t, math.IsInf(s.ToReal(s.Divide(s.Negate(one), zero)), -1), s.Name())
			assert.True(t, math.IsInf(s.ToReal(s.NegInf()), -1), s.Name())
		}
	}
}

func TestLog_Negatives(t *testing.T) {
	assert.True(t, math.IsNaN(Log.FromReal(-1)))
	assert.True(t, math.IsNaN(Log.Minus(Log.FromReal(1), Log.FromReal(2))))
	assert.True(t, math.IsInf(Log.Minus(Log.FromReal(2), Log.FromReal(2)), -1))
	assert.False(t, SupportsNegatives(Log))
}

func TestSignedLog_ZeroIsPositive(t *testing.T) {
	for _, s := range []Algebra{LogSign, Split} {
		z := s.Minus(s.FromReal(3), s.FromReal(3))
		assert.Equal(t, s.Zero(), z, s.Name())
		assert.Equal(t, s.Zero(), s.Negate(s.Zero()), s.Name())
		assert.True(t, s.Lt(s.FromReal(-2), s.FromReal(-1)), s.Name())
		assert.True(t, s.Gt(s.FromReal(1), s.FromReal(-10)), s.Name())
		assert.False(t, s.IsNaN(s.NegInf()), s.Name())
	}
}

func TestByName(t *testing.T) {
	for _, s := range All() {
		got, err := ByName(s.Name())
		require.NoError(t, err)
		assert.True(t, s == got, s.Name())
	}
	got, err := ByName("log_sign")
	require.NoError(t, err)
	assert.True(t, got == LogSign)
	_, err = ByName("complex")
	require.Error(t, err)
}

func TestLogSign_NegInf(t *testing.T) {
	n := LogSign.NegInf()
	// The raw bits form a NaN; only the unpacked value is meaningful.
	assert.True(t, math.IsNaN(n))
	assert.False(t, LogSign.IsNaN(n))
	assert.True(t, math.IsInf(LogSign.ToReal(n), -1))
	assert.Equal(t, math.Float64bits(n), math.Float64bits(LogSign.FromReal(math.Inf(-1))))
	assert.True(t, LogSign.Lt(n, LogSign.FromReal(-1e300)))
	assert.True(t, math.IsInf(LogSign.ToReal(LogSign.Negate(LogSign.PosInf())), -1))

	values := []float64{n, LogSign.One()}
	copied := append([]float64(nil), values...)
	assert.Equal(t, math.Float64bits(n), math.Float64bits(copied[0]))

	for _, s := range []Algebra{Split, Real, Log, ShiftedReal} {
		assert.False(t, math.IsNaN(s.PosInf()), s.Name())
	}
	assert.False(t, math.IsNaN(Split.NegInf()))
}
