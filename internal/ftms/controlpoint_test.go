package ftms

import "testing"

func TestEmptyPayloadProducesNoResponse(t *testing.T) {
	m := NewMachine()
	res := m.HandleWrite(ControlState{}, nil)
	if res.ResponseBytes != nil {
		t.Fatalf("expected no response for empty payload, got %v", res.ResponseBytes)
	}
}

func TestGuardedOpWithoutControlIsRejected(t *testing.T) {
	m := NewMachine()
	res := m.HandleWrite(ControlState{HasControl: false}, []byte{byte(OpSetTargetPower), 0x64, 0x00})
	want := []byte{0x80, byte(OpSetTargetPower), byte(ResultControlNotPermitted)}
	if !bytesEqual(res.ResponseBytes, want) {
		t.Fatalf("got %v, want %v", res.ResponseBytes, want)
	}
}

func TestRequestControlAlwaysSucceeds(t *testing.T) {
	m := NewMachine()
	for _, prior := range []bool{true, false} {
		res := m.HandleWrite(ControlState{HasControl: prior}, []byte{byte(OpRequestControl)})
		want := []byte{0x80, byte(OpRequestControl), byte(ResultSuccess)}
		if !bytesEqual(res.ResponseBytes, want) {
			t.Fatalf("prior=%v: got %v, want %v", prior, res.ResponseBytes, want)
		}
		if !res.StateDelta.HasControlChanged || !res.StateDelta.HasControl {
			t.Fatalf("RequestControl should set HasControl true")
		}
	}
}

func TestSetTargetPowerValidAndInvalid(t *testing.T) {
	m := NewMachine()
	st := ControlState{HasControl: true}

	res := m.HandleWrite(st, []byte{byte(OpSetTargetPower), 0xF4, 0x01}) // 500W
	want := []byte{0x80, byte(OpSetTargetPower), byte(ResultSuccess)}
	if !bytesEqual(res.ResponseBytes, want) {
		t.Fatalf("got %v, want %v", res.ResponseBytes, want)
	}
	if !res.StateDelta.TargetPowerWChanged || res.StateDelta.TargetPowerW != 500 {
		t.Fatalf("expected target power delta 500, got %+v", res.StateDelta)
	}
	if !res.HasImmediateStatus || res.ImmediateStatus != StatusTargetPowerChanged {
		t.Fatalf("expected TargetPowerChanged status")
	}
	wantStatus := []byte{StatusTargetPowerChanged, 0xF4, 0x01}
	if !bytesEqual(res.ImmediateStatusBytes, wantStatus) {
		t.Fatalf("got status bytes %v, want %v", res.ImmediateStatusBytes, wantStatus)
	}

	// short payload
	res = m.HandleWrite(st, []byte{byte(OpSetTargetPower), 0x01})
	wantInvalid := []byte{0x80, byte(OpSetTargetPower), byte(ResultInvalidParameter)}
	if !bytesEqual(res.ResponseBytes, wantInvalid) {
		t.Fatalf("short payload: got %v, want %v", res.ResponseBytes, wantInvalid)
	}

	// out of range
	res = m.HandleWrite(st, []byte{byte(OpSetTargetPower), 0xFF, 0xFF}) // -1 as i16
	if !bytesEqual(res.ResponseBytes, wantInvalid) {
		t.Fatalf("negative power: got %v, want %v", res.ResponseBytes, wantInvalid)
	}
}

func TestSetTargetResistanceLevelAlwaysNotSupported(t *testing.T) {
	m := NewMachine()
	st := ControlState{HasControl: true}
	res := m.HandleWrite(st, []byte{byte(OpSetTargetResistanceLevel), 0x0A, 0x00})
	want := []byte{0x80, byte(OpSetTargetResistanceLevel), byte(ResultOpCodeNotSupported)}
	if !bytesEqual(res.ResponseBytes, want) {
		t.Fatalf("got %v, want %v", res.ResponseBytes, want)
	}
}

func TestResetPreservesTargetPowerAndDefersStatus(t *testing.T) {
	m := NewMachine()
	st := ControlState{HasControl: true, IsStarted: true, TargetPowerW: 220}
	res := m.HandleWrite(st, []byte{byte(OpReset)})

	want := []byte{0x80, byte(OpReset), byte(ResultSuccess)}
	if !bytesEqual(res.ResponseBytes, want) {
		t.Fatalf("got %v, want %v", res.ResponseBytes, want)
	}
	if !res.HasDeferredStatus || res.DeferredStatus != StatusReset || res.DeferredDelayS != 0.5 {
		t.Fatalf("expected deferred Reset status after 0.5s, got %+v", res)
	}
	if !bytesEqual(res.DeferredStatusBytes, []byte{StatusReset}) {
		t.Fatalf("got deferred status bytes %v, want %v", res.DeferredStatusBytes, []byte{StatusReset})
	}
	if res.StateDelta.TargetPowerWChanged {
		t.Fatalf("Reset must not touch TargetPowerW")
	}
	if !res.StateDelta.HasControlChanged || res.StateDelta.HasControl {
		t.Fatalf("Reset should clear HasControl")
	}
	if !res.StateDelta.IsStartedChanged || res.StateDelta.IsStarted {
		t.Fatalf("Reset should clear IsStarted")
	}
}

func TestSpinDownStartEmitsImmediateAndDeferredStatus(t *testing.T) {
	m := NewMachine()
	st := ControlState{HasControl: true}
	res := m.HandleWrite(st, []byte{byte(OpSpinDownControl), 0x01})

	if !res.HasImmediateStatus || res.ImmediateStatus != StatusSpinDownStarted {
		t.Fatalf("expected immediate SpinDownStarted, got %+v", res)
	}
	if !res.HasDeferredStatus || res.DeferredStatus != StatusSpinDownIgnored || res.DeferredDelayS != 2.5 {
		t.Fatalf("expected deferred status 2.5s later, got %+v", res)
	}
}

func TestSpinDownIgnoreEmitsOnlyImmediateStatus(t *testing.T) {
	m := NewMachine()
	st := ControlState{HasControl: true}
	res := m.HandleWrite(st, []byte{byte(OpSpinDownControl), 0x02})

	if !res.HasImmediateStatus || res.ImmediateStatus != StatusSpinDownIgnored {
		t.Fatalf("expected immediate SpinDownIgnored, got %+v", res)
	}
	if res.HasDeferredStatus {
		t.Fatalf("spin down ignore should not defer a status")
	}
}

func TestUnknownOpcodeIsNotSupported(t *testing.T) {
	m := NewMachine()
	res := m.HandleWrite(ControlState{HasControl: true}, []byte{0x7F})
	want := []byte{0x80, 0x7F, byte(ResultOpCodeNotSupported)}
	if !bytesEqual(res.ResponseBytes, want) {
		t.Fatalf("got %v, want %v", res.ResponseBytes, want)
	}
}

func TestSetIndoorBikeSimulationEchoesParams(t *testing.T) {
	m := NewMachine()
	st := ControlState{HasControl: true}
	// wind = -1000 (i.e. -1.0 mps), grade = 250 (2.5%), crr = 50 (0.005), cw=90 (0.9)
	payload := []byte{byte(OpSetIndoorBikeSimulation), 0x18, 0xFC, 0xFA, 0x00, 50, 90}
	res := m.HandleWrite(st, payload)

	if !res.HasImmediateStatus || res.ImmediateStatus != StatusSimParamsChanged {
		t.Fatalf("expected SimParamsChanged status, got %+v", res)
	}
	d := res.StateDelta
	if !d.GradePctChanged || d.GradePct != 2.5 {
		t.Fatalf("expected grade 2.5%%, got %v", d.GradePct)
	}
	if !d.CrrChanged || d.Crr != 0.005 {
		t.Fatalf("expected crr 0.005, got %v", d.Crr)
	}
	if !d.CwChanged || d.Cw != 0.9 {
		t.Fatalf("expected cw 0.9, got %v", d.Cw)
	}
	wantStatus := []byte{StatusSimParamsChanged, 0x18, 0xFC, 0xFA, 0x00, 50, 90}
	if !bytesEqual(res.ImmediateStatusBytes, wantStatus) {
		t.Fatalf("got status bytes %v, want %v", res.ImmediateStatusBytes, wantStatus)
	}
}

func TestSetIndoorBikeSimulationScenarioS4StatusBytes(t *testing.T) {
	m := NewMachine()
	st := ControlState{HasControl: true}
	// wind=0, grade=5.00% (500=0x01F4), crr=0.0040 (40=0x28), cw=0.51 (51=0x33)
	payload := []byte{byte(OpSetIndoorBikeSimulation), 0x00, 0x00, 0xF4, 0x01, 0x28, 0x33}
	res := m.HandleWrite(st, payload)

	wantResponse := []byte{0x80, byte(OpSetIndoorBikeSimulation), byte(ResultSuccess)}
	if !bytesEqual(res.ResponseBytes, wantResponse) {
		t.Fatalf("got response %v, want %v", res.ResponseBytes, wantResponse)
	}
	wantStatus := []byte{0x12, 0x00, 0x00, 0xF4, 0x01, 0x28, 0x33}
	if !bytesEqual(res.ImmediateStatusBytes, wantStatus) {
		t.Fatalf("got status bytes %v, want %v", res.ImmediateStatusBytes, wantStatus)
	}
}

func TestSetTargetSpeedEchoesU16InStatus(t *testing.T) {
	m := NewMachine()
	st := ControlState{HasControl: true}
	res := m.HandleWrite(st, []byte{byte(OpSetTargetSpeed), 0x10, 0x27}) // 10000 cm/s
	wantStatus := []byte{StatusTargetSpeedChanged, 0x10, 0x27}
	if !bytesEqual(res.ImmediateStatusBytes, wantStatus) {
		t.Fatalf("got status bytes %v, want %v", res.ImmediateStatusBytes, wantStatus)
	}
}

func TestSetTargetInclinationEchoesI16InStatus(t *testing.T) {
	m := NewMachine()
	st := ControlState{HasControl: true}
	res := m.HandleWrite(st, []byte{byte(OpSetTargetInclination), 0x32, 0x00}) // 5.0%
	wantStatus := []byte{StatusTargetInclineChanged, 0x32, 0x00}
	if !bytesEqual(res.ImmediateStatusBytes, wantStatus) {
		t.Fatalf("got status bytes %v, want %v", res.ImmediateStatusBytes, wantStatus)
	}
}

func TestSetWheelCircumferenceEchoesU16InStatus(t *testing.T) {
	m := NewMachine()
	st := ControlState{HasControl: true}
	res := m.HandleWrite(st, []byte{byte(OpSetWheelCircumference), 0x60, 0x08}) // 2144mm
	wantStatus := []byte{StatusWheelCircChanged, 0x60, 0x08}
	if !bytesEqual(res.ImmediateStatusBytes, wantStatus) {
		t.Fatalf("got status bytes %v, want %v", res.ImmediateStatusBytes, wantStatus)
	}
}

func TestSetTargetedCadenceEchoesU16InStatus(t *testing.T) {
	m := NewMachine()
	st := ControlState{HasControl: true}
	res := m.HandleWrite(st, []byte{byte(OpSetTargetedCadence), 0xB4, 0x00}) // 90rpm (0.5rpm units)
	wantStatus := []byte{StatusTargetCadenceChanged, 0xB4, 0x00}
	if !bytesEqual(res.ImmediateStatusBytes, wantStatus) {
		t.Fatalf("got status bytes %v, want %v", res.ImmediateStatusBytes, wantStatus)
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
