package simulation

import (
	"math"
	"testing"

	"github.com/kestrelcycling/trainer-core/internal/randutil"
)

func TestVarianceDefaultsDtOutOfRange(t *testing.T) {
	v := &VarianceState{}
	rng := randutil.NewLCG(1)
	// dt=0 and dt=20 should both be treated as 0.25s and not panic or
	// produce a non-finite result.
	out := v.Update(rng, 50, 250, 0)
	if !randutil.IsFinite(out) {
		t.Fatalf("dt=0 produced non-finite variation: %v", out)
	}
	out = v.Update(rng, 50, 250, 20)
	if !randutil.IsFinite(out) {
		t.Fatalf("dt=20 produced non-finite variation: %v", out)
	}
}

func TestVarianceMeanAndAutocorrelation(t *testing.T) {
	v := &VarianceState{}
	rng := randutil.NewLCG(12345)
	const n = 2000
	samples := make([]float64, n)
	var sum float64
	for i := 0; i < n; i++ {
		samples[i] = v.Update(rng, 50, 250, 0.1)
		sum += samples[i]
	}
	mean := sum / n
	if math.Abs(mean) > 0.05 {
		t.Errorf("mean = %v, want |mean| < 0.05", mean)
	}

	var num, den float64
	for i := 1; i < n; i++ {
		num += samples[i] * samples[i-1]
		den += samples[i-1] * samples[i-1]
	}
	if den == 0 {
		t.Fatal("degenerate sample set")
	}
	lag1 := num / den
	if lag1 <= 0 || lag1 >= 0.95 {
		t.Errorf("lag-1 autocorrelation = %v, want in (0, 0.95)", lag1)
	}
}

func TestVarianceBoundedByEnvelope(t *testing.T) {
	v := &VarianceState{}
	rng := randutil.NewLCG(99)
	for i := 0; i < 5000; i++ {
		out := v.Update(rng, 100, 150, 0.05)
		lo := -math.Min(0.20, 60.0/150)
		hi := math.Min(0.20, 80.0/150)
		if out < lo-1e-9 || out > hi+1e-9 {
			t.Fatalf("variation %v outside envelope [%v,%v]", out, lo, hi)
		}
	}
}
