package gaze

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.SamplesPerPoint != 30 {
		t.Errorf("SamplesPerPoint = %d, want 30", cfg.SamplesPerPoint)
	}
	if cfg.SettleDelay != time.Second {
		t.Errorf("SettleDelay = %v, want 1s", cfg.SettleDelay)
	}
	if cfg.SmoothingFactor != 0.3 {
		t.Errorf("SmoothingFactor = %v, want 0.3", cfg.SmoothingFactor)
	}
	if cfg.LowThreshold != 0.35 || cfg.HighThreshold != 0.65 {
		t.Errorf("thresholds = %v/%v, want 0.35/0.65", cfg.LowThreshold, cfg.HighThreshold)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		t.Errorf("DefaultConfig has validation errors: %v", errs)
	}
}

func TestConfigPresets(t *testing.T) {
	presets := map[string]Config{
		"fast":    FastConfig(),
		"precise": PreciseConfig(),
	}

	for name, cfg := range presets {
		if errs := cfg.Validate(); len(errs) > 0 {
			t.Errorf("%s config has validation errors: %v", name, errs)
		}
	}

	if FastConfig().SamplesPerPoint >= DefaultConfig().SamplesPerPoint {
		t.Error("fast preset should collect fewer samples per point")
	}
	if PreciseConfig().SamplesPerPoint <= DefaultConfig().SamplesPerPoint {
		t.Error("precise preset should collect more samples per point")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"negative settle", func(c *Config) { c.SettleDelay = -time.Second }},
		{"zero samples", func(c *Config) { c.SamplesPerPoint = 0 }},
		{"zero timeout", func(c *Config) { c.SampleTimeout = 0 }},
		{"zero threshold", func(c *Config) { c.RansacThreshold = 0 }},
		{"zero iterations", func(c *Config) { c.RansacIterations = 0 }},
		{"smoothing too high", func(c *Config) { c.SmoothingFactor = 1.5 }},
		{"smoothing zero", func(c *Config) { c.SmoothingFactor = 0 }},
		{"thresholds inverted", func(c *Config) { c.LowThreshold, c.HighThreshold = 0.7, 0.3 }},
		{"zero frame interval", func(c *Config) { c.FrameInterval = 0 }},
		{"zero buffer", func(c *Config) { c.GazeBuffer = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			if errs := cfg.Validate(); len(errs) != 1 {
				t.Errorf("got %d errors, want 1: %v", len(errs), errs)
			}
		})
	}
}
