// Package config loads and layers the trainer's configuration: YAML file,
// .env overrides, then process environment overrides, in that order.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/kestrelcycling/trainer-core/internal/simulation"
)

// Config holds all trainer configuration.
type Config struct {
	mu sync.RWMutex

	Rider    RiderConfig    `yaml:"rider" json:"rider"`
	Services ServicesConfig `yaml:"services" json:"services"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
	Peripheral PeripheralConfig `yaml:"peripheral" json:"peripheral"`

	path string
}

// RiderConfig holds the physics inputs that shape the simulation engine.
type RiderConfig struct {
	MassKg        float64   `yaml:"mass_kg" json:"massKg"`
	CdA           float64   `yaml:"cda" json:"cda"`
	Crr           float64   `yaml:"crr" json:"crr"`
	FTPWatts      int       `yaml:"ftp_watts" json:"ftpWatts"`
	Chainrings    []int     `yaml:"chainrings" json:"chainrings"`
	Cassette      []int     `yaml:"cassette" json:"cassette"`
	DefaultRandom int       `yaml:"default_randomness" json:"defaultRandomness"`
}

// ServicesConfig toggles which GATT services and fields are exposed.
type ServicesConfig struct {
	FTMS   bool `yaml:"ftms" json:"ftms"`
	CPS    bool `yaml:"cps" json:"cps"`
	RSC    bool `yaml:"rsc" json:"rsc"`
	Power  bool `yaml:"power" json:"power"`
	Cadence bool `yaml:"cadence" json:"cadence"`
	Speed  bool `yaml:"speed" json:"speed"`
}

// LoggingConfig controls the CSV telemetry recorder.
type LoggingConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	Path       string `yaml:"path" json:"path"`
	IntervalMs int    `yaml:"interval_ms" json:"intervalMs"`
}

// PeripheralConfig holds advertising and transport-facing settings.
type PeripheralConfig struct {
	LocalName  string `yaml:"local_name" json:"localName"`
	ListenAddr string `yaml:"listen_addr" json:"listenAddr"`
	// Strict, when true, would enforce single-controller ownership on
	// RequestControl. Not wired to any behavior in this revision: see
	// the open-access policy decision in DESIGN.md.
	Strict bool `yaml:"strict" json:"strict"`
}

// DefaultConfig returns a config with sensible defaults for a mid-range
// road setup.
func DefaultConfig() *Config {
	return &Config{
		Rider: RiderConfig{
			MassKg:        75,
			CdA:           0.32,
			Crr:           0.004,
			FTPWatts:      simulation.DefaultFTPWatts,
			Chainrings:    simulation.DefaultGearset().Chainrings,
			Cassette:      simulation.DefaultGearset().Cassette,
			DefaultRandom: 30,
		},
		Services: ServicesConfig{
			FTMS: true, CPS: true, RSC: true,
			Power: true, Cadence: true, Speed: true,
		},
		Logging: LoggingConfig{
			Enabled:    false,
			Path:       "./telemetry",
			IntervalMs: 1000,
		},
		Peripheral: PeripheralConfig{
			LocalName:  "Trainer",
			ListenAddr: ":8080",
			Strict:     false,
		},
	}
}

// Load reads config from a YAML file, falling back to defaults if absent
// or unparsable, then applies .env and process environment overrides.
func Load(path string) *Config {
	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[config] no config at %s, using defaults", path)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Printf("[config] error parsing %s: %v, using defaults", path, err)
		cfg = DefaultConfig()
		cfg.path = path
	} else {
		log.Printf("[config] loaded from %s", path)
	}

	for _, ep := range []string{filepath.Join(filepath.Dir(path), ".env"), ".env"} {
		loadEnvFile(ep)
	}
	cfg.applyEnvOverrides()
	return cfg
}

func loadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.Trim(strings.TrimSpace(parts[1]), `"'`)
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

// applyEnvOverrides reads TRAINER_* environment variables. Real env
// always wins over .env and YAML.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TRAINER_LOCAL_NAME"); v != "" {
		c.Peripheral.LocalName = v
	}
	if v := os.Getenv("TRAINER_LISTEN_ADDR"); v != "" {
		c.Peripheral.ListenAddr = v
	}
	if v := os.Getenv("TRAINER_FTP_WATTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Rider.FTPWatts = n
		}
	}
	if v := os.Getenv("TRAINER_MASS_KG"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			c.Rider.MassKg = n
		}
	}
	if v := os.Getenv("TRAINER_RANDOMNESS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Rider.DefaultRandom = n
		}
	}
	if v := os.Getenv("TRAINER_LOG_ENABLED"); v != "" {
		c.Logging.Enabled = v == "1" || v == "true" || v == "yes"
	}
	if v := os.Getenv("TRAINER_LOG_PATH"); v != "" {
		c.Logging.Path = v
	}
}

// Save writes the config back to its YAML file.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.path == "" {
		c.path = "./trainer.yaml"
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0o644)
}

// ToJSON serializes config for a management API or CLI --show output.
func (c *Config) ToJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(c)
}

// UpdateFromJSON deep-merges a partial JSON update into the config,
// preserving fields the patch does not mention.
func (c *Config) UpdateFromJSON(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	currentBytes, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal current config: %w", err)
	}
	var base map[string]interface{}
	if err := json.Unmarshal(currentBytes, &base); err != nil {
		return fmt.Errorf("unmarshal current config: %w", err)
	}

	var patch map[string]interface{}
	if err := json.Unmarshal(data, &patch); err != nil {
		return fmt.Errorf("unmarshal patch: %w", err)
	}

	deepMerge(base, patch)

	merged, err := json.Marshal(base)
	if err != nil {
		return fmt.Errorf("marshal merged config: %w", err)
	}
	return json.Unmarshal(merged, c)
}

func deepMerge(dst, src map[string]interface{}) {
	for key, srcVal := range src {
		if srcMap, ok := srcVal.(map[string]interface{}); ok {
			if dstMap, ok := dst[key].(map[string]interface{}); ok {
				deepMerge(dstMap, srcMap)
				continue
			}
		}
		dst[key] = srcVal
	}
}

// Gearset converts the configured chainrings/cassette into a
// simulation.Gearset, falling back to the default when unset.
func (c *Config) Gearset() simulation.Gearset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.Rider.Chainrings) == 0 || len(c.Rider.Cassette) == 0 {
		return simulation.DefaultGearset()
	}
	return simulation.Gearset{Chainrings: c.Rider.Chainrings, Cassette: c.Rider.Cassette}
}
