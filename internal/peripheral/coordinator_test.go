package peripheral

import (
	"testing"

	"github.com/kestrelcycling/trainer-core/internal/randutil"
	"github.com/kestrelcycling/trainer-core/internal/simulation"
)

func newTestCoordinator() (*Coordinator, *Loopback) {
	lb := NewLoopback()
	engine := simulation.NewEngine(simulation.DefaultPhysicsParams(), simulation.DefaultGearset(),
		simulation.RideWheelCircumferenceM, simulation.DefaultFTPWatts, randutil.NewLCG(11))
	cfg := Config{
		LocalName: "Trainer", EnableFTMS: true, EnableCPS: true, EnableRSC: true,
		IncludePower: true, IncludeCadence: true, Randomness: 0,
	}
	c := New(lb, engine, cfg)
	return c, lb
}

func TestAutoCadenceSettlesInExpectedRangeOnFlat(t *testing.T) {
	c, _ := newTestCoordinator()
	c.control.TargetPowerW = 250
	c.control.GradePct = 0

	var st simulation.SimulationState
	for i := 0; i < 30; i++ {
		st = c.engine.UpdateWithDT(c.simInput(), 0.1)
	}

	if st.TargetCadenceRPM < 82 || st.TargetCadenceRPM > 98 {
		t.Errorf("target cadence = %v, want in [82,98]", st.TargetCadenceRPM)
	}
	gs := simulation.DefaultGearset()
	if !containsInt(gs.Chainrings, st.Gear.FrontTeeth) || !containsInt(gs.Cassette, st.Gear.RearTeeth) {
		t.Errorf("gear %+v not a member of the configured gearset", st.Gear)
	}
}

func TestBackpressureQueueOrderAndDrain(t *testing.T) {
	c, lb := newTestCoordinator()
	lb.FailNextUpdates(3)

	c.enqueueOrSend("charA", []byte{1})
	c.enqueueOrSend("charB", []byte{2})
	c.enqueueOrSend("charC", []byte{3})

	if got := c.PendingCount(); got != 3 {
		t.Fatalf("expected 3 pending updates, got %d", got)
	}

	c.OnTransportReady()

	if got := c.PendingCount(); got != 0 {
		t.Fatalf("expected queue to drain to empty, got %d pending", got)
	}

	updates := lb.Updates()
	if len(updates) != 3 {
		t.Fatalf("expected 3 delivered updates, got %d", len(updates))
	}
	wantOrder := []string{"charA", "charB", "charC"}
	for i, u := range updates {
		if u.charUUID != wantOrder[i] {
			t.Errorf("update %d = %s, want %s", i, u.charUUID, wantOrder[i])
		}
	}
}

func TestResetControlPointClearsControlButPreservesTargetPower(t *testing.T) {
	c, lb := newTestCoordinator()
	c.control.TargetPowerW = 220

	c.OnWrite(CharFTMSControlPoint, []byte{0x01}) // Reset

	updates := lb.Updates()
	if len(updates) == 0 {
		t.Fatal("expected a response update")
	}
	want := []byte{0x80, 0x01, 0x01}
	got := updates[0].payload
	if len(got) != 3 || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
		t.Fatalf("got response %v, want %v", got, want)
	}

	snap := c.ControlSnapshot()
	if snap.HasControl {
		t.Error("expected HasControl cleared by Reset")
	}
	if snap.IsStarted {
		t.Error("expected IsStarted cleared by Reset")
	}
	if snap.TargetPowerW != 220 {
		t.Errorf("expected TargetPowerW preserved at 220, got %d", snap.TargetPowerW)
	}
}

func TestSetTargetPowerScenarioS2EmitsFullStatusPayload(t *testing.T) {
	c, lb := newTestCoordinator()

	c.OnWrite(CharFTMSControlPoint, []byte{0x05, 0xFA, 0x00}) // 250W

	updates := lb.Updates()
	if len(updates) != 2 {
		t.Fatalf("expected response + status, got %d updates", len(updates))
	}
	wantResponse := []byte{0x80, 0x05, 0x01}
	if got := updates[0].payload; !bytesEqual(got, wantResponse) {
		t.Fatalf("got response %v, want %v", got, wantResponse)
	}
	wantStatus := []byte{0x08, 0xFA, 0x00}
	if got := updates[1].payload; updates[1].charUUID != CharFitnessMachineStatus || !bytesEqual(got, wantStatus) {
		t.Fatalf("got status %v on %s, want %v on %s", got, updates[1].charUUID, wantStatus, CharFitnessMachineStatus)
	}
	if c.ControlSnapshot().TargetPowerW != 250 {
		t.Fatalf("expected TargetPowerW 250, got %d", c.ControlSnapshot().TargetPowerW)
	}
}

func TestSetIndoorBikeSimulationScenarioS4EmitsSevenByteStatus(t *testing.T) {
	c, lb := newTestCoordinator()

	c.OnWrite(CharFTMSControlPoint, []byte{0x11, 0x00, 0x00, 0xF4, 0x01, 0x28, 0x33})

	updates := lb.Updates()
	if len(updates) != 2 {
		t.Fatalf("expected response + status, got %d updates", len(updates))
	}
	wantStatus := []byte{0x12, 0x00, 0x00, 0xF4, 0x01, 0x28, 0x33}
	if got := updates[1].payload; !bytesEqual(got, wantStatus) {
		t.Fatalf("got status %v, want %v", got, wantStatus)
	}
}

func TestSetWheelCircumferenceUpdatesCPSCounterCircumference(t *testing.T) {
	c, _ := newTestCoordinator()
	before := c.cfg.CPSWheelCircM

	c.OnWrite(CharFTMSControlPoint, []byte{0x12, 0x60, 0x08}) // 2144mm = 2.144m

	if c.cfg.CPSWheelCircM == before {
		t.Fatalf("expected CPSWheelCircM to change from %v", before)
	}
	if c.cfg.CPSWheelCircM != 2.144 {
		t.Fatalf("got CPSWheelCircM %v, want 2.144", c.cfg.CPSWheelCircM)
	}

	// tickCPS must read the new circumference live, not a value baked in
	// at construction.
	c.cachedCadence = 90
	c.tickCPS()
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

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
