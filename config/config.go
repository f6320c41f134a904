// Package config provides configuration loading and access for the evader simulation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/hideout/hiding"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalidConfig is returned by Validate for values the core cannot run with.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config holds all configuration parameters.
type Config struct {
	Avoider   AvoiderConfig   `yaml:"avoider"`
	Sampler   SamplerConfig   `yaml:"sampler"`
	Scene     SceneConfig     `yaml:"scene"`
	Sim       SimConfig       `yaml:"sim"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Viz       VizConfig       `yaml:"viz"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// AvoiderConfig holds the per-agent evasion parameters.
type AvoiderConfig struct {
	TriggerRadius     float64 `yaml:"trigger_radius"`     // Observer distance that triggers a search
	Speed             float64 `yaml:"speed"`              // Movement speed (units per second)
	SamplingRadius    float64 `yaml:"sampling_radius"`    // Side of the sampled square around the agent
	PointSpacing      float64 `yaml:"point_spacing"`      // Minimum distance between candidates
	StoppingTolerance float64 `yaml:"stopping_tolerance"` // Arrival distance
	AgentCount        int     `yaml:"agent_count"`
}

// SamplerConfig holds Poisson-disc sampler parameters.
type SamplerConfig struct {
	Attempts int `yaml:"attempts"` // Candidates per active sample (k)
}

// SceneConfig holds procedural scene parameters.
type SceneConfig struct {
	Width             float64 `yaml:"width"`
	Depth             float64 `yaml:"depth"`
	Seed              int64   `yaml:"seed"`
	CellSize          float64 `yaml:"cell_size"`          // Walk grid resolution
	NoiseScale        float64 `yaml:"noise_scale"`        // Noise frequency for occluder placement
	OccluderThreshold float64 `yaml:"occluder_threshold"` // Noise level above which an occluder is placed
	OccluderSize      float64 `yaml:"occluder_size"`      // Lattice spacing and max footprint of occluders
	Inflation         float64 `yaml:"inflation"`          // Walk grid clearance around occluders
	SnapDistance      float64 `yaml:"snap_distance"`      // Max distance to snap onto walkable ground
}

// SimConfig holds driver loop parameters.
type SimConfig struct {
	DT            float64 `yaml:"dt"`
	ObserverSpeed float64 `yaml:"observer_speed"`
	Waypoints     int     `yaml:"waypoints"`
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	WindowTicks int  `yaml:"window_ticks"`
	PerfWindow  int  `yaml:"perf_window"`
	Candidates  bool `yaml:"candidates"` // Write per-candidate CSV rows
}

// VizConfig holds debug visualization parameters.
type VizConfig struct {
	Addr          string  `yaml:"addr"` // Listen address for the viz server (empty = disabled)
	PixelsPerUnit float64 `yaml:"pixels_per_unit"`
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	Settings hiding.Settings // Avoider section as trigger policy settings
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Finalize validates the configuration and recomputes derived values.
// Call it after modifying a loaded config.
func (c *Config) Finalize() error {
	if err := c.Validate(); err != nil {
		return err
	}
	c.computeDerived()
	return nil
}

// Validate checks the configuration at the boundary of the core.
func (c *Config) Validate() error {
	a := c.Avoider
	settings := hiding.Settings{
		TriggerRadius:     a.TriggerRadius,
		SamplingRadius:    a.SamplingRadius,
		PointSpacing:      a.PointSpacing,
		StoppingTolerance: a.StoppingTolerance,
	}
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("%w: avoider: %v", ErrInvalidConfig, err)
	}

	for _, f := range []struct {
		name string
		v    float64
	}{
		{"avoider.speed", a.Speed},
		{"scene.width", c.Scene.Width},
		{"scene.depth", c.Scene.Depth},
		{"scene.cell_size", c.Scene.CellSize},
		{"scene.noise_scale", c.Scene.NoiseScale},
		{"scene.occluder_threshold", c.Scene.OccluderThreshold},
		{"scene.occluder_size", c.Scene.OccluderSize},
		{"scene.inflation", c.Scene.Inflation},
		{"scene.snap_distance", c.Scene.SnapDistance},
		{"sim.dt", c.Sim.DT},
		{"sim.observer_speed", c.Sim.ObserverSpeed},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%w: %s must be finite, got %v", ErrInvalidConfig, f.name, f.v)
		}
	}

	switch {
	case a.Speed <= 0:
		return fmt.Errorf("%w: avoider.speed must be positive, got %v", ErrInvalidConfig, a.Speed)
	case a.AgentCount < 0:
		return fmt.Errorf("%w: avoider.agent_count must not be negative, got %d", ErrInvalidConfig, a.AgentCount)
	case c.Sampler.Attempts < 0:
		return fmt.Errorf("%w: sampler.attempts must not be negative, got %d", ErrInvalidConfig, c.Sampler.Attempts)
	case c.Scene.Width <= 0 || c.Scene.Depth <= 0:
		return fmt.Errorf("%w: scene size must be positive, got %vx%v", ErrInvalidConfig, c.Scene.Width, c.Scene.Depth)
	case c.Scene.CellSize <= 0:
		return fmt.Errorf("%w: scene.cell_size must be positive, got %v", ErrInvalidConfig, c.Scene.CellSize)
	case c.Scene.OccluderSize <= 0:
		return fmt.Errorf("%w: scene.occluder_size must be positive, got %v", ErrInvalidConfig, c.Scene.OccluderSize)
	case c.Scene.SnapDistance < 0 || c.Scene.Inflation < 0:
		return fmt.Errorf("%w: scene.snap_distance and scene.inflation must not be negative", ErrInvalidConfig)
	case c.Sim.DT <= 0:
		return fmt.Errorf("%w: sim.dt must be positive, got %v", ErrInvalidConfig, c.Sim.DT)
	case c.Sim.ObserverSpeed < 0:
		return fmt.Errorf("%w: sim.observer_speed must not be negative, got %v", ErrInvalidConfig, c.Sim.ObserverSpeed)
	}
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.Settings = hiding.Settings{
		TriggerRadius:     c.Avoider.TriggerRadius,
		SamplingRadius:    c.Avoider.SamplingRadius,
		PointSpacing:      c.Avoider.PointSpacing,
		StoppingTolerance: c.Avoider.StoppingTolerance,
	}

	if c.Sim.Waypoints < 2 {
		c.Sim.Waypoints = 2
	}
	if c.Telemetry.WindowTicks <= 0 {
		c.Telemetry.WindowTicks = 600
	}
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
