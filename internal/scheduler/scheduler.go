// Package scheduler owns the three notification timers driving the
// peripheral's periodic characteristic updates.
package scheduler

import (
	"math"
	"sync"
	"time"
)

const (
	ftmsPeriod = 250 * time.Millisecond
	rscPeriod  = 500 * time.Millisecond
	cpsMaxPeriod = 250 * time.Millisecond
)

// Delegates are the callbacks invoked on each timer fire. CurrentCadence
// is queried fresh by the CPS timer to pick its next interval; it must
// read a cached value rather than re-running the simulation engine, or
// every CPS tick would double-advance the simulation.
type Delegates struct {
	OnFTMS          func()
	OnRSC           func()
	OnCPS           func()
	CurrentCadence  func() float64
}

// Scheduler drives FTMS at a fixed 4 Hz, RSC at a fixed 2 Hz, and CPS with
// a period of min(0.25s, 60/cadence), so CPS never fires less often than
// 4 Hz (for any cadence up to 240 rpm the period is 0.25s). Start/Stop
// are idempotent.
type Scheduler struct {
	mu        sync.Mutex
	delegates Delegates

	ftmsTimer *time.Timer
	rscTimer  *time.Timer
	cpsTimer  *time.Timer
	running   bool
}

// New builds a scheduler bound to the given delegates.
func New(d Delegates) *Scheduler {
	return &Scheduler{delegates: d}
}

// Start begins all three timers. A second call while already running is
// a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.armFTMS()
	s.armRSC()
	s.armCPS(cpsMaxPeriod)
}

// Stop cancels and clears all timers.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Scheduler) stopLocked() {
	if !s.running {
		return
	}
	s.running = false
	if s.ftmsTimer != nil {
		s.ftmsTimer.Stop()
	}
	if s.rscTimer != nil {
		s.rscTimer.Stop()
	}
	if s.cpsTimer != nil {
		s.cpsTimer.Stop()
	}
}

// Running reports whether the scheduler currently has active timers.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) armFTMS() {
	s.ftmsTimer = time.AfterFunc(ftmsPeriod, s.fireFTMS)
}

func (s *Scheduler) fireFTMS() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cb := s.delegates.OnFTMS
	s.mu.Unlock()
	if cb != nil {
		cb()
	}
	s.mu.Lock()
	if s.running {
		s.armFTMS()
	}
	s.mu.Unlock()
}

func (s *Scheduler) armRSC() {
	s.rscTimer = time.AfterFunc(rscPeriod, s.fireRSC)
}

func (s *Scheduler) fireRSC() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cb := s.delegates.OnRSC
	s.mu.Unlock()
	if cb != nil {
		cb()
	}
	s.mu.Lock()
	if s.running {
		s.armRSC()
	}
	s.mu.Unlock()
}

func (s *Scheduler) armCPS(period time.Duration) {
	s.cpsTimer = time.AfterFunc(period, s.fireCPS)
}

func (s *Scheduler) fireCPS() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cb := s.delegates.OnCPS
	cadenceFn := s.delegates.CurrentCadence
	s.mu.Unlock()

	if cb != nil {
		cb()
	}

	next := cpsMaxPeriod
	if cadenceFn != nil {
		if cadence := cadenceFn(); cadence > 0 {
			period := 60.0 / cadence
			if period > cpsMaxPeriod.Seconds() {
				period = cpsMaxPeriod.Seconds()
			}
			next = time.Duration(math.Max(period, 0.001) * float64(time.Second))
		}
	}

	s.mu.Lock()
	if s.running {
		s.armCPS(next)
	}
	s.mu.Unlock()
}
