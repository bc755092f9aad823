package simulation

import (
	"math"

	"github.com/kestrelcycling/trainer-core/internal/randutil"
)

// SolveSpeed inverts the cycling power equation (gravity + rolling +
// aerodynamic drag) for speed, given rider power (before drivetrain
// losses, which are applied here) and grade. It uses
// a closed-form terminal-velocity branch for descents and a Newton-Raphson
// iteration otherwise.
func SolveSpeed(powerW, gradePct float64, p PhysicsParams) float64 {
	if powerW < 0 {
		powerW = 0
	}
	gradePct = randutil.Clamp(gradePct, -30, 30)
	theta := math.Atan(gradePct / 100)
	pStar := powerW * p.DrivetrainEfficiency

	if gradePct < -2 {
		if v, ok := solveDescent(theta, gradePct, pStar, p); ok {
			return v
		}
	}
	return solveFlatOrClimb(theta, gradePct, pStar, p)
}

func solveDescent(theta float64, gradePct, pStar float64, p PhysicsParams) (float64, bool) {
	fGrav := -p.MassKg * p.G * math.Sin(theta)
	fRoll := p.MassKg * p.G * p.Crr * math.Cos(theta)
	fNet := fGrav - fRoll
	if fNet <= 0 {
		return 0, false
	}

	vTerminal := math.Sqrt(2 * fNet / (p.CdA * p.RhoAir))
	if pStar <= 10 {
		return math.Min(30, vTerminal), true
	}

	v := vTerminal
	for i := 0; i < 10; i++ {
		fAir := 0.5 * p.CdA * p.RhoAir * v * v
		fReq := fAir - fGrav + fRoll
		pReq := fReq * v
		denom := p.MassKg*v + p.CdA*p.RhoAir*v*v
		if denom == 0 {
			break
		}
		delta := (pStar - pReq) / denom
		v += 0.5 * delta
		if v < 0 {
			v = 0.01
		}
		if math.Abs(pStar-pReq) < 5 {
			break
		}
	}

	return randutil.Clamp(v, 0.8*vTerminal, 35), true
}

func solveFlatOrClimb(theta float64, gradePct, pStar float64, p PhysicsParams) float64 {
	fGrav := p.MassKg * p.G * math.Sin(theta)
	fRoll := p.MassKg * p.G * p.Crr * math.Cos(theta)

	v := 1.0
	if denom := p.CdA * p.RhoAir * 0.5; denom > 0 {
		v = math.Sqrt(pStar / denom)
	}
	v = randutil.Clamp(v, 1, 10)

	for i := 0; i < 15; i++ {
		f := (fGrav+fRoll+0.5*p.CdA*p.RhoAir*v*v)*v - pStar
		fPrime := fGrav + fRoll + 1.5*p.CdA*p.RhoAir*v*v
		if fPrime == 0 {
			break
		}
		delta := f / fPrime
		next := v - delta
		if next < 0.1 {
			next = 0.1
		}
		v = next
		if math.Abs(delta) < 0.001 {
			break
		}
	}

	lo, hi := 0.5, 25.0
	if gradePct > 10 && pStar < 100 {
		hi = 5
	}
	if gradePct < -10 {
		lo, hi = 5, 35
	}
	v = randutil.Clamp(v, lo, hi)

	if !randutil.IsFinite(v) {
		return 5
	}
	return v
}
