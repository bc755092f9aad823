package simulation

import (
	"math"

	"github.com/kestrelcycling/trainer-core/internal/randutil"
)

const (
	rearShiftCooldownS  = 2.0
	frontShiftCooldownS = 4.0
	frontShiftTransient = -8.0

	cadenceResponseTauS = 0.8
	shiftBaseRate        = 1.0 / 60
	shiftErrorScale       = 20.0
	shiftGradeThreshold   = 5.0
	shiftGradeRateBonus   = 1.0 / 60
	shiftDecisionWindowS  = 0.25
)

// CadenceState models target-cadence logistics, gear shifting with
// cooldowns, gear-ratio physics, first-order response, OU jitter, and the
// W' fatigue integrator.
type CadenceState struct {
	CadenceRPM    float64
	Gear          Gear
	Fatigue       float64
	Noise         float64
	LastTargetRPM float64
	FTPWatts      float64

	gearset    Gearset
	wheelCircM float64

	timeS           float64
	lastRearShiftT  float64
	lastFrontShiftT float64
}

// NewCadenceState seeds a cadence model starting in the gearset's first
// listed chainring and a middle cog, with cooldowns already elapsed.
func NewCadenceState(gs Gearset, wheelCircM float64) *CadenceState {
	return &CadenceState{
		Gear:            Gear{FrontTeeth: gs.Chainrings[0], RearTeeth: gs.Cassette[len(gs.Cassette)/2]},
		FTPWatts:        DefaultFTPWatts,
		gearset:         gs,
		wheelCircM:      wheelCircM,
		lastRearShiftT:  -rearShiftCooldownS,
		lastFrontShiftT: -frontShiftCooldownS,
	}
}

// Update advances the cadence model by dt seconds given this tick's power,
// grade, and road speed, and returns the resulting cadence in rpm.
func (c *CadenceState) Update(powerW int, gradePct, speedMps, dt float64, rng randutil.Source) float64 {
	c.timeS += dt

	target := targetCadenceRPM(float64(powerW), gradePct, c.Fatigue)
	c.LastTargetRPM = target

	gearCadence := cadenceFromGear(speedMps, c.Gear.FrontTeeth, c.Gear.RearTeeth, c.wheelCircM)
	c.maybeShift(target, gearCadence, gradePct, speedMps, rng)
	gearCadence = cadenceFromGear(speedMps, c.Gear.FrontTeeth, c.Gear.RearTeeth, c.wheelCircM)
	gearCadence = applyHighSpeedRules(gearCadence, speedMps, gradePct, float64(powerW))

	alpha := 1 - math.Exp(-dt/cadenceResponseTauS)
	c.CadenceRPM += alpha * (gearCadence - c.CadenceRPM)

	c.stepJitter(rng, dt)
	c.CadenceRPM += c.Noise

	c.stepFatigue(float64(powerW), dt)

	c.CadenceRPM = randutil.Clamp(c.CadenceRPM, 0, 180)
	if !randutil.IsFinite(c.CadenceRPM) {
		c.CadenceRPM = 85
	}
	return c.CadenceRPM
}

func targetCadenceRPM(powerW, gradePct, fatigue float64) float64 {
	const low, high, p50, kP = 75.0, 95.0, 250.0, 75.0
	cP := low + (high-low)/(1+math.Exp(-(powerW-p50)/kP))

	var upDrop float64
	if gradePct > 0 {
		const maxUphillDrop, gScale = 14.0, 6.0
		upDrop = maxUphillDrop * (1 - math.Exp(-gradePct/gScale))
	}

	var downBump float64
	if gradePct < -3 {
		const maxDownBump = 6.0
		downBump = maxDownBump * (1 - math.Exp(-(math.Abs(gradePct)-3)/3))
	}

	fatigueDrop := math.Min(5, 5*fatigue)

	target := cP - upDrop + downBump - fatigueDrop
	return randutil.Clamp(target, 40, 120)
}

func cadenceFromGear(speedMps float64, frontTeeth, rearTeeth int, wheelCircM float64) float64 {
	if speedMps < 0.5 {
		return 0
	}
	c := (60 * speedMps / wheelCircM) * (float64(rearTeeth) / float64(frontTeeth))
	return randutil.Clamp(c, 0, 180)
}

func applyHighSpeedRules(gearCadence, speedMps, gradePct, powerW float64) float64 {
	vKmh := speedMps * 3.6
	c := gearCadence

	switch {
	case vKmh > 55 && powerW < 150:
		c = 0
	case vKmh > 55:
		c = math.Min(110, c)
	case vKmh > 45 && gradePct < -5:
		c = math.Min(100, 0.6*c)
	case vKmh > 45:
		c = math.Min(120, c)
	case vKmh > 35 && gradePct < -8:
		c = math.Min(90, 0.7*c)
	}

	if speedMps < 1.5 {
		c = math.Min(50, c)
	}
	return c
}

func (c *CadenceState) maybeShift(target, currentGearCadence, gradePct, speedMps float64, rng randutil.Source) {
	rate := shiftBaseRate + math.Abs(target-currentGearCadence)/shiftErrorScale*(2.0/60)
	if math.Abs(gradePct) > shiftGradeThreshold {
		rate += shiftGradeRateBonus
	}
	pShift := 1 - math.Exp(-rate*shiftDecisionWindowS)
	if rng.Float64() >= pShift {
		return
	}

	bestFront, bestRear := c.Gear.FrontTeeth, c.Gear.RearTeeth
	bestDiff := math.Abs(target - cadenceFromGear(speedMps, bestFront, bestRear, c.wheelCircM))
	for _, f := range c.gearset.Chainrings {
		for _, r := range c.gearset.Cassette {
			diff := math.Abs(target - cadenceFromGear(speedMps, f, r, c.wheelCircM))
			if diff < bestDiff {
				bestDiff = diff
				bestFront, bestRear = f, r
			}
		}
	}

	if bestFront == c.Gear.FrontTeeth && bestRear == c.Gear.RearTeeth {
		return
	}

	if bestRear != c.Gear.RearTeeth && c.timeS-c.lastRearShiftT >= rearShiftCooldownS {
		c.stepRear(bestRear)
		c.lastRearShiftT = c.timeS
		return
	}

	if bestFront != c.Gear.FrontTeeth && bestRear == c.Gear.RearTeeth && c.timeS-c.lastFrontShiftT >= frontShiftCooldownS {
		c.stepFront(bestFront)
		c.lastFrontShiftT = c.timeS
		c.CadenceRPM += frontShiftTransient
	}
}

func (c *CadenceState) stepRear(targetTeeth int) {
	idx := indexOf(c.gearset.Cassette, c.Gear.RearTeeth)
	want := indexOf(c.gearset.Cassette, targetTeeth)
	idx = stepToward(idx, want)
	c.Gear.RearTeeth = c.gearset.Cassette[idx]
}

func (c *CadenceState) stepFront(targetTeeth int) {
	idx := indexOf(c.gearset.Chainrings, c.Gear.FrontTeeth)
	want := indexOf(c.gearset.Chainrings, targetTeeth)
	idx = stepToward(idx, want)
	c.Gear.FrontTeeth = c.gearset.Chainrings[idx]
}

func stepToward(idx, want int) int {
	switch {
	case want > idx:
		return idx + 1
	case want < idx:
		return idx - 1
	default:
		return idx
	}
}

func indexOf(teeth []int, value int) int {
	for i, t := range teeth {
		if t == value {
			return i
		}
	}
	return 0
}

func (c *CadenceState) stepJitter(rng randutil.Source, dt float64) {
	decay := math.Exp(-2 * dt)
	c.Noise = c.Noise*decay + 0.6*math.Sqrt(1-math.Exp(-4*dt))*randutil.Gaussian(rng)
	c.Noise = randutil.Clamp(c.Noise, -2, 2)
}

func (c *CadenceState) stepFatigue(powerW, dt float64) {
	ftp := c.FTPWatts
	if ftp <= 0 {
		ftp = DefaultFTPWatts
	}
	frac := powerW / ftp
	if frac > 1 {
		c.Fatigue += (frac - 1) * dt / 600
	} else {
		c.Fatigue *= math.Exp(-dt / 300)
	}
	c.Fatigue = randutil.Clamp(c.Fatigue, 0, 1)
}
