package simulation

import (
	"math"
	"time"

	"github.com/kestrelcycling/trainer-core/internal/randutil"
)

// Engine composes the variance, trainer, speed, and cadence components into
// the single update(input) -> state entry point described by the spec.
type Engine struct {
	variance *VarianceState
	trainer  *TrainerState
	cadence  *CadenceState
	physics  PhysicsParams
	rng      randutil.Source

	// NowFunc is overridable so tests can drive deterministic dt values
	// instead of depending on wall-clock scheduling.
	NowFunc func() time.Time

	lastTick time.Time
}

// NewEngine builds an engine with the given rider physics, gearset, ride
// wheel circumference, FTP, and RNG source.
func NewEngine(physics PhysicsParams, gs Gearset, wheelCircM float64, ftpWatts int, rng randutil.Source) *Engine {
	cadence := NewCadenceState(gs, wheelCircM)
	if ftpWatts > 0 {
		cadence.FTPWatts = float64(ftpWatts)
	}
	return &Engine{
		variance: &VarianceState{},
		trainer:  NewTrainerState(),
		cadence:  cadence,
		physics:  physics,
		rng:      rng,
		NowFunc:  time.Now,
	}
}

// Update runs one tick of B→C→D→E and returns the resulting state. dt is
// derived from the monotonic clock since the previous call, floored at
// 1ms; the very first call defaults to 0.25s (the FTMS notification
// period) since there is no prior tick to measure from.
func (e *Engine) Update(input SimulationInput) SimulationState {
	now := e.NowFunc()
	dt := 0.25
	if !e.lastTick.IsZero() {
		dt = now.Sub(e.lastTick).Seconds()
	}
	if dt < 0.001 {
		dt = 0.001
	}
	e.lastTick = now

	return e.step(input, dt)
}

// UpdateWithDT runs one tick using an explicit dt, bypassing the wall
// clock. Tests use this for reproducible multi-tick sequences.
func (e *Engine) UpdateWithDT(input SimulationInput, dt float64) SimulationState {
	return e.step(input, dt)
}

func (e *Engine) step(input SimulationInput, dt float64) SimulationState {
	variation := e.variance.Update(e.rng, input.Randomness, input.TargetPowerW, dt)
	emittedW := e.trainer.Update(input.TargetPowerW, e.cadence.CadenceRPM, variation, input.IsResting, dt)
	speed := SolveSpeed(float64(emittedW), input.GradePct, e.physics)
	cadence := e.cadence.Update(emittedW, input.GradePct, speed, dt, e.rng)

	reportedCadence := cadence
	if input.ManualCadenceRPM != nil {
		reportedCadence = float64(*input.ManualCadenceRPM)
	}

	return SimulationState{
		PowerW:           emittedW,
		SpeedMps:         speed,
		CadenceRPM:       int(math.Round(randutil.Clamp(reportedCadence, 0, 180))),
		Fatigue:          e.cadence.Fatigue,
		NoiseRPM:         e.cadence.Noise,
		Gear:             e.cadence.Gear,
		TargetCadenceRPM: e.cadence.LastTargetRPM,
	}
}
