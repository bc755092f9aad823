package randutil

import (
	"math"
	"testing"
)

func TestLCGProducesValuesInOpenUnitInterval(t *testing.T) {
	l := NewLCG(42)
	for i := 0; i < 1000; i++ {
		v := l.Float64()
		if v <= 0 || v >= 1 {
			t.Fatalf("Float64() = %v, want in (0,1)", v)
		}
	}
}

func TestNewLCGZeroSeedRemapped(t *testing.T) {
	a := NewLCG(0)
	b := NewLCG(1)
	if a.Float64() != b.Float64() {
		t.Fatalf("zero seed should behave like seed 1")
	}
}

func TestGaussianIsRoughlyStandardNormal(t *testing.T) {
	src := NewLCG(7)
	var sum, sumSq float64
	const n = 20000
	for i := 0; i < n; i++ {
		g := Gaussian(src)
		sum += g
		sumSq += g * g
	}
	mean := sum / n
	variance := sumSq/n - mean*mean
	if math.Abs(mean) > 0.05 {
		t.Errorf("mean = %v, want close to 0", mean)
	}
	if math.Abs(variance-1) > 0.1 {
		t.Errorf("variance = %v, want close to 1", variance)
	}
}

func TestClamp(t *testing.T) {
	cases := []struct{ x, lo, hi, want float64 }{
		{5, 0, 10, 5},
		{-5, 0, 10, 0},
		{15, 0, 10, 10},
	}
	for _, c := range cases {
		if got := Clamp(c.x, c.lo, c.hi); got != c.want {
			t.Errorf("Clamp(%v,%v,%v) = %v, want %v", c.x, c.lo, c.hi, got, c.want)
		}
	}
}

func TestIsFinite(t *testing.T) {
	if !IsFinite(1.0) {
		t.Error("1.0 should be finite")
	}
	if IsFinite(math.NaN()) {
		t.Error("NaN should not be finite")
	}
	if IsFinite(math.Inf(1)) {
		t.Error("+Inf should not be finite")
	}
}
