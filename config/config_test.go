package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Avoider.TriggerRadius != 5 || cfg.Sampler.Attempts != 30 || cfg.Scene.Width != 60 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	s := cfg.Derived.Settings
	if s.TriggerRadius != cfg.Avoider.TriggerRadius || s.PointSpacing != cfg.Avoider.PointSpacing {
		t.Errorf("derived settings %+v do not match avoider section", s)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeFile(t, `
avoider:
  trigger_radius: 8
scene:
  seed: 42
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Avoider.TriggerRadius != 8 || cfg.Derived.Settings.TriggerRadius != 8 {
		t.Errorf("trigger radius = %v / %v, want 8", cfg.Avoider.TriggerRadius, cfg.Derived.Settings.TriggerRadius)
	}
	if cfg.Scene.Seed != 42 {
		t.Errorf("seed = %d, want 42", cfg.Scene.Seed)
	}
	// Untouched fields keep their defaults
	if cfg.Avoider.SamplingRadius != 10 || cfg.Sim.Waypoints != 6 {
		t.Errorf("defaults lost: sampling %v waypoints %d", cfg.Avoider.SamplingRadius, cfg.Sim.Waypoints)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"zero trigger radius", "avoider:\n  trigger_radius: 0\n"},
		{"spacing above sampling radius", "avoider:\n  point_spacing: 20\n"},
		{"negative speed", "avoider:\n  speed: -1\n"},
		{"negative attempts", "sampler:\n  attempts: -3\n"},
		{"zero scene width", "scene:\n  width: 0\n"},
		{"zero cell size", "scene:\n  cell_size: 0\n"},
		{"zero dt", "sim:\n  dt: 0\n"},
		{"NaN trigger radius", "avoider:\n  trigger_radius: .nan\n"},
		{"NaN stopping tolerance", "avoider:\n  stopping_tolerance: .nan\n"},
		{"infinite sampling radius", "avoider:\n  sampling_radius: .inf\n"},
		{"infinite speed", "avoider:\n  speed: .inf\n"},
		{"NaN dt", "sim:\n  dt: .nan\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tc.body))
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Load() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() of a missing file succeeded")
	}
	if _, err := Load(writeFile(t, "avoider: [unclosed")); err == nil {
		t.Error("Load() of malformed YAML succeeded")
	}
}

func TestDerivedClamps(t *testing.T) {
	cfg, err := Load(writeFile(t, "sim:\n  waypoints: 0\ntelemetry:\n  window_ticks: 0\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Sim.Waypoints != 2 {
		t.Errorf("waypoints = %d, want 2", cfg.Sim.Waypoints)
	}
	if cfg.Telemetry.WindowTicks != 600 {
		t.Errorf("window ticks = %d, want 600", cfg.Telemetry.WindowTicks)
	}
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	cfg.Scene.Seed = 99
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := cfg.WriteYAML(path); err != nil {
		t.Fatalf("WriteYAML() error = %v", err)
	}
	back, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if back.Scene.Seed != 99 || back.Avoider != cfg.Avoider {
		t.Errorf("round trip lost values: %+v", back)
	}
}

func TestCfgBeforeInitPanics(t *testing.T) {
	saved := global
	global = nil
	defer func() { global = saved }()

	defer func() {
		if recover() == nil {
			t.Error("Cfg() before Init did not panic")
		}
	}()
	Cfg()
}

func TestFinalizeRecomputesDerived(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	cfg.Avoider.SamplingRadius = 14
	if err := cfg.Finalize(); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if cfg.Derived.Settings.SamplingRadius != 14 {
		t.Errorf("derived sampling radius = %v, want 14", cfg.Derived.Settings.SamplingRadius)
	}

	cfg.Avoider.PointSpacing = 30
	if err := cfg.Finalize(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Finalize() error = %v, want ErrInvalidConfig", err)
	}
}
