// Package simulation implements the cycling simulation engine: a
// deterministic (modulo a seeded RNG) per-tick pipeline that turns a
// target power, an optional manual cadence, a grade, and a randomness
// level into instantaneous power, cadence, speed, gear, and fatigue.
package simulation

// SimulationInput is the immutable set of knobs the engine reads each tick.
type SimulationInput struct {
	TargetPowerW     int
	ManualCadenceRPM *int
	GradePct         float64
	Randomness       int
	IsResting        bool
}

// SimulationState is the value object the engine emits each tick.
type SimulationState struct {
	PowerW           int
	SpeedMps         float64
	CadenceRPM       int
	Fatigue          float64
	NoiseRPM         float64
	Gear             Gear
	TargetCadenceRPM float64
}

// Gear identifies a chainring/cog pair by tooth count.
type Gear struct {
	FrontTeeth int
	RearTeeth  int
}

// Gearset is the set of chainrings and cassette cogs the cadence model is
// allowed to shift between.
type Gearset struct {
	Chainrings []int
	Cassette   []int
}

// DefaultGearset matches a common 2x11 road setup.
func DefaultGearset() Gearset {
	return Gearset{
		Chainrings: []int{50, 34},
		Cassette:   []int{11, 12, 13, 14, 16, 18, 20, 22, 25, 28, 32},
	}
}

// PhysicsParams are the rider/bike constants the speed solver uses.
type PhysicsParams struct {
	MassKg                float64
	Crr                   float64
	CdA                   float64
	DrivetrainEfficiency  float64
	G                     float64
	RhoAir                float64
}

// DefaultPhysicsParams returns the default rider used absent configuration.
func DefaultPhysicsParams() PhysicsParams {
	return PhysicsParams{
		MassKg:               75,
		Crr:                  0.004,
		CdA:                  0.32,
		DrivetrainEfficiency: 0.97,
		G:                    9.81,
		RhoAir:               1.225,
	}
}

const (
	// RideWheelCircumferenceM is the default wheel circumference used by
	// the cadence model's gear-ratio physics.
	RideWheelCircumferenceM = 2.112
	// CPSWheelCircumferenceM is the (deliberately different) circumference
	// used only by the CPS rolling wheel-revolution counters; see
	// SPEC_FULL.md Open Question 1.
	CPSWheelCircumferenceM = 2.096
	// DefaultFTPWatts is the rider's functional threshold power, used by
	// the fatigue integrator.
	DefaultFTPWatts = 250
)
