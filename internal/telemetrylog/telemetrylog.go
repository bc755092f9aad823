// Package telemetrylog records timestamped simulation snapshots to
// rotating CSV files.
package telemetrylog

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kestrelcycling/trainer-core/internal/simulation"
)

// Recorder writes simulation.SimulationState samples to CSV with
// automatic file rotation.
type Recorder struct {
	mu       sync.Mutex
	dir      string
	interval time.Duration
	enabled  bool

	file   *os.File
	writer *csv.Writer
	lastTs time.Time
	rows   int
}

// Config configures a Recorder.
type Config struct {
	Enabled    bool
	Path       string
	IntervalMs int
}

const maxRowsPerFile = 100_000

var csvHeader = []string{
	"timestamp", "power_w", "speed_mps", "cadence_rpm", "target_cadence_rpm",
	"gear_front", "gear_rear", "fatigue", "noise", "grade_pct",
}

// New builds a Recorder from cfg.
func New(cfg Config) *Recorder {
	if cfg.Path == "" {
		cfg.Path = "./telemetry"
	}
	interval := time.Duration(cfg.IntervalMs) * time.Millisecond
	if interval < 50*time.Millisecond {
		interval = 1000 * time.Millisecond
	}
	return &Recorder{dir: cfg.Path, interval: interval, enabled: cfg.Enabled}
}

// SetEnabled toggles recording at runtime.
func (r *Recorder) SetEnabled(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = on
	if !on && r.file != nil {
		r.closeFile()
	}
}

// IsEnabled reports whether recording is active.
func (r *Recorder) IsEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

// Record writes one simulation sample if the minimum interval has
// elapsed since the last write.
func (r *Recorder) Record(gradePct float64, st simulation.SimulationState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.enabled {
		return
	}

	now := time.Now()
	if now.Sub(r.lastTs) < r.interval {
		return
	}
	r.lastTs = now

	if r.writer == nil || r.rows >= maxRowsPerFile {
		if err := r.rotateFile(now); err != nil {
			log.Printf("[telemetrylog] rotate failed: %v", err)
			return
		}
	}

	row := []string{
		now.Format(time.RFC3339Nano),
		fmt.Sprintf("%d", st.PowerW),
		fmt.Sprintf("%.3f", st.SpeedMps),
		fmt.Sprintf("%d", st.CadenceRPM),
		fmt.Sprintf("%.1f", st.TargetCadenceRPM),
		fmt.Sprintf("%d", st.Gear.FrontTeeth),
		fmt.Sprintf("%d", st.Gear.RearTeeth),
		fmt.Sprintf("%.4f", st.Fatigue),
		fmt.Sprintf("%.3f", st.NoiseRPM),
		fmt.Sprintf("%.2f", gradePct),
	}
	if err := r.writer.Write(row); err != nil {
		log.Printf("[telemetrylog] write failed: %v", err)
		return
	}
	r.writer.Flush()
	r.rows++
}

// Close flushes and closes the current file.
func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeFile()
}

func (r *Recorder) rotateFile(now time.Time) error {
	r.closeFile()

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", r.dir, err)
	}

	filename := fmt.Sprintf("trainer_%s.csv", now.Format("2006-01-02_150405"))
	path := filepath.Join(r.dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	r.file = f
	r.writer = csv.NewWriter(f)
	r.rows = 0

	if err := r.writer.Write(csvHeader); err != nil {
		return err
	}
	r.writer.Flush()

	log.Printf("[telemetrylog] opened %s", path)
	return nil
}

func (r *Recorder) closeFile() {
	if r.writer != nil {
		r.writer.Flush()
		r.writer = nil
	}
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}
}
