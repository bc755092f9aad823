// Package validator provides pure sanity checks on simulated telemetry
// values. It never aborts the pipeline; callers log and continue.
package validator

import "fmt"

// Parameter names a quantity being validated.
type Parameter int

const (
	ParamPower Parameter = iota
	ParamSpeed
	ParamCadence
	ParamGrade
	ParamHeartRate
)

func (p Parameter) String() string {
	switch p {
	case ParamPower:
		return "power"
	case ParamSpeed:
		return "speed"
	case ParamCadence:
		return "cadence"
	case ParamGrade:
		return "grade"
	case ParamHeartRate:
		return "heart_rate"
	default:
		return "unknown"
	}
}

// Level ranks how far out of bounds a value is.
type Level int

const (
	Valid Level = iota
	Warning
	Error
	Critical
)

func (l Level) String() string {
	switch l {
	case Valid:
		return "valid"
	case Warning:
		return "warning"
	case Error:
		return "error"
	case Critical:
		return "critical"
	default:
		return "unknown"
	}
}

// Result is the outcome of validating one value.
type Result struct {
	Level     Level
	Message   string
	Parameter Parameter
	Value     float64
}

type limits struct {
	warnLow, errLow, critLow   float64
	warnHigh, errHigh, critHigh float64
}

var paramLimits = map[Parameter]limits{
	ParamPower:     {warnLow: 0, errLow: -1, critLow: -1, warnHigh: 1500, errHigh: 2000, critHigh: 2500},
	ParamSpeed:     {warnLow: 0, errLow: -1, critLow: -1, warnHigh: 25, errHigh: 30, critHigh: 35},
	ParamCadence:   {warnLow: 0, errLow: -1, critLow: -1, warnHigh: 140, errHigh: 160, critHigh: 180},
	ParamGrade:     {warnLow: -20, errLow: -25, critLow: -30, warnHigh: 20, errHigh: 25, critHigh: 30},
	ParamHeartRate: {warnLow: 30, errLow: 20, critLow: 0, warnHigh: 190, errHigh: 210, critHigh: 230},
}

// Validate classifies value against the known safe/soft/hard limits for
// parameter, optionally scaling the thresholds (e.g. for a rider
// category with a higher sustainable power ceiling).
func Validate(parameter Parameter, value float64, scale float64) Result {
	if scale <= 0 {
		scale = 1
	}
	l, ok := paramLimits[parameter]
	if !ok {
		return Result{Level: Valid, Parameter: parameter, Value: value}
	}

	switch {
	case value < l.critLow*scale || value > l.critHigh*scale:
		return Result{Level: Critical, Parameter: parameter, Value: value,
			Message: fmt.Sprintf("%s value %.2f outside critical bounds", parameter, value)}
	case value < l.errLow*scale || value > l.errHigh*scale:
		return Result{Level: Error, Parameter: parameter, Value: value,
			Message: fmt.Sprintf("%s value %.2f outside error bounds", parameter, value)}
	case value < l.warnLow*scale || value > l.warnHigh*scale:
		return Result{Level: Warning, Parameter: parameter, Value: value,
			Message: fmt.Sprintf("%s value %.2f outside expected range", parameter, value)}
	default:
		return Result{Level: Valid, Parameter: parameter, Value: value}
	}
}

// ClampToSafeLimits pulls value back inside the critical bounds for
// parameter, leaving it untouched if already within range.
func ClampToSafeLimits(parameter Parameter, value float64, scale float64) float64 {
	if scale <= 0 {
		scale = 1
	}
	l, ok := paramLimits[parameter]
	if !ok {
		return value
	}
	if value < l.critLow*scale {
		return l.critLow * scale
	}
	if value > l.critHigh*scale {
		return l.critHigh * scale
	}
	return value
}
