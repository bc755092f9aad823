package simulation

import (
	"math"

	"github.com/kestrelcycling/trainer-core/internal/randutil"
)

// varianceWeights splits the total coefficient of variation across the
// micro, macro, and event components. They must sum to 1.
const (
	varianceWeightMicro = 0.50
	varianceWeightMacro = 0.35
	varianceWeightEvent = 0.15

	tauMicroS = 0.167
	tauMacroS = 3.33
)

// VarianceState is the per-tick state of the power variance process: two
// mean-reverting Ornstein-Uhlenbeck processes plus a sparse event process.
type VarianceState struct {
	XMicro       float64
	XMacro       float64
	EventActive  bool
	EventTimerS  float64
	EventValue   float64
}

// Update advances the variance process by dt seconds and returns the
// fractional power variation for this tick.
func (v *VarianceState) Update(rng randutil.Source, randomness, targetPowerW int, dt float64) float64 {
	if dt <= 0 || dt > 10 {
		dt = 0.25
	}
	randomness = randutil.ClampInt(randomness, 0, 100)
	targetPower := float64(targetPowerW)

	cvTotal := float64(randomness) / 1000
	cvMicro := cvTotal * math.Sqrt(varianceWeightMicro)
	cvMacro := cvTotal * math.Sqrt(varianceWeightMacro)
	cvEvent := cvTotal * math.Sqrt(varianceWeightEvent)

	alphaMicro := math.Exp(-dt / tauMicroS)
	v.XMicro = v.XMicro*alphaMicro + cvMicro*math.Sqrt(1-alphaMicro*alphaMicro)*randutil.Gaussian(rng)

	alphaMacro := math.Exp(-dt / tauMacroS)
	v.XMacro = v.XMacro*alphaMacro + cvMacro*math.Sqrt(1-alphaMacro*alphaMacro)*randutil.Gaussian(rng)

	v.stepEvent(rng, randomness, cvEvent, targetPower, dt)

	total := v.XMicro + v.XMacro
	if v.EventActive {
		total += v.EventValue
	}

	lo := -math.Min(0.20, 60/math.Max(120, targetPower))
	hi := math.Min(0.20, 80/math.Max(120, targetPower))
	return randutil.Clamp(total, lo, hi)
}

func (v *VarianceState) stepEvent(rng randutil.Source, randomness int, cvEvent, targetPower, dt float64) {
	if v.EventActive {
		v.EventTimerS -= dt
		if v.EventTimerS <= 0 {
			v.EventActive = false
			v.EventValue = 0
		}
		return
	}

	lambda := (0.2 + 1.8*float64(randomness)/100) / 60
	pStart := 1 - math.Exp(-lambda*dt)
	if rng.Float64() >= pStart {
		return
	}

	v.EventActive = true
	v.EventTimerS = 0.5 + rng.Float64()*1.5
	limit := math.Min(0.10, 25/math.Max(100, targetPower))
	v.EventValue = randutil.Clamp(randutil.Gaussian(rng)*2*cvEvent, -limit, limit)
}
