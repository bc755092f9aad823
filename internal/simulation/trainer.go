package simulation

import (
	"math"

	"github.com/kestrelcycling/trainer-core/internal/randutil"
)

const (
	pedalTorqueVariation = 0.20
	trainerLagTauS       = 3.0
	defaultImbalance     = 0.02
	defaultDisplayMs     = 3000
)

type displaySample struct {
	tS float64
	w  float64
}

// TrainerState models the trainer's pedal-stroke torque ripple, L/R power
// imbalance, and first-order lag from a commanded target power to an
// emitted instantaneous power.
type TrainerState struct {
	PedalAngleDeg float64
	ControlPowerW float64
	Imbalance     float64
	DisplayMs     float64

	clockS float64
	window []displaySample
}

// NewTrainerState returns a trainer smoother with default imbalance and
// display-window settings.
func NewTrainerState() *TrainerState {
	return &TrainerState{Imbalance: defaultImbalance, DisplayMs: defaultDisplayMs}
}

// Update advances the trainer by dt seconds and returns the emitted power
// in watts, rounded and floored at zero.
func (t *TrainerState) Update(targetW int, cadenceRPM, variation float64, isResting bool, dt float64) int {
	if isResting {
		t.PedalAngleDeg = 0
		t.ControlPowerW = 0
		t.clockS = 0
		t.window = nil
		return 0
	}

	target := randutil.Clamp(float64(targetW), 0, 2500)
	cadence := randutil.Clamp(cadenceRPM, 0, 200)

	t.clockS += dt
	t.PedalAngleDeg = math.Mod(t.PedalAngleDeg+cadence*360*dt/60, 360)
	if t.PedalAngleDeg < 0 {
		t.PedalAngleDeg += 360
	}

	torqueMod := 1 + pedalTorqueVariation*math.Sin(t.PedalAngleDeg*math.Pi/180)

	imbalance := randutil.Clamp(t.Imbalance, -0.10, 0.10)
	hemisphere := 1.0
	if t.PedalAngleDeg >= 180 {
		hemisphere = -1.0
	}
	imbalanceMult := 1 + hemisphere*imbalance

	instant := target * torqueMod * imbalanceMult * (1 + variation)

	alpha := 1 - math.Exp(-dt/trainerLagTauS)
	t.ControlPowerW = alpha*instant + (1-alpha)*t.ControlPowerW
	if t.ControlPowerW < 0 {
		t.ControlPowerW = 0
	}

	t.recordDisplaySample()

	return int(math.Round(t.ControlPowerW))
}

func (t *TrainerState) recordDisplaySample() {
	t.window = append(t.window, displaySample{tS: t.clockS, w: t.ControlPowerW})
	cutoff := t.clockS - t.DisplayMs/1000
	i := 0
	for ; i < len(t.window); i++ {
		if t.window[i].tS >= cutoff {
			break
		}
	}
	t.window = t.window[i:]
}

// DisplayAverage returns the mean of samples within the display window —
// a smoothed value suitable for a human-facing power readout.
func (t *TrainerState) DisplayAverage() float64 {
	if len(t.window) == 0 {
		return t.ControlPowerW
	}
	var sum float64
	for _, s := range t.window {
		sum += s.w
	}
	return sum / float64(len(t.window))
}
