package simulation

import "testing"

func TestTrainerRestingZeroesState(t *testing.T) {
	tr := NewTrainerState()
	tr.Update(250, 90, 0, false, 0.1)
	w := tr.Update(250, 90, 0, true, 0.1)
	if w != 0 {
		t.Fatalf("resting should emit 0W, got %d", w)
	}
	if tr.ControlPowerW != 0 || tr.PedalAngleDeg != 0 {
		t.Fatalf("resting should zero internal state, got control=%v angle=%v", tr.ControlPowerW, tr.PedalAngleDeg)
	}
}

func TestTrainerOutputNeverNegative(t *testing.T) {
	tr := NewTrainerState()
	for i := 0; i < 50; i++ {
		w := tr.Update(0, 60, -0.3, false, 0.1)
		if w < 0 {
			t.Fatalf("emitted power went negative: %d", w)
		}
	}
}

func TestTrainerMonotoneUnderZeroVarianceOnceSettled(t *testing.T) {
	settle := func(target int) int {
		tr := NewTrainerState()
		var w int
		for i := 0; i < 200; i++ {
			w = tr.Update(target, 90, 0, false, 0.1)
		}
		return w
	}

	w150 := settle(150)
	w250 := settle(250)
	w350 := settle(350)

	if !(w150 < w250 && w250 < w350) {
		t.Fatalf("expected monotone settled output, got %d, %d, %d", w150, w250, w350)
	}
}
