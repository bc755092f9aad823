package validator

import "testing"

func TestValidatePowerInRange(t *testing.T) {
	r := Validate(ParamPower, 250, 1)
	if r.Level != Valid {
		t.Fatalf("expected valid, got %v", r.Level)
	}
}

func TestValidatePowerCritical(t *testing.T) {
	r := Validate(ParamPower, 2600, 1)
	if r.Level != Critical {
		t.Fatalf("expected critical, got %v: %s", r.Level, r.Message)
	}
}

func TestValidateCadenceWarning(t *testing.T) {
	r := Validate(ParamCadence, 150, 1)
	if r.Level != Warning {
		t.Fatalf("expected warning, got %v", r.Level)
	}
}

func TestClampToSafeLimits(t *testing.T) {
	if got := ClampToSafeLimits(ParamSpeed, 100, 1); got != 35 {
		t.Errorf("expected clamp to 35, got %v", got)
	}
	if got := ClampToSafeLimits(ParamSpeed, 10, 1); got != 10 {
		t.Errorf("expected untouched 10, got %v", got)
	}
}

func TestValidateUnknownParameterIsAlwaysValid(t *testing.T) {
	r := Validate(Parameter(999), 1e9, 1)
	if r.Level != Valid {
		t.Fatalf("expected valid for unknown parameter, got %v", r.Level)
	}
}
