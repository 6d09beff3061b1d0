package gaze

import (
	"fmt"
	"time"
)

// Config holds all tunable parameters for calibration and live gaze mapping
type Config struct {
	// Calibration timing
	SettleDelay     time.Duration // Pause after showing a target before sampling starts
	SamplesPerPoint int           // Samples collected per target before the window closes
	SampleTimeout   time.Duration // Window closes after this long even if short of samples

	// Fitting
	RansacThreshold  float64 // Max reprojection error (normalized units) for an inlier
	RansacIterations int     // Random minimal samples tried by the robust estimator
	RansacSeed       uint64  // Seed for the minimal-sample generator (fits are reproducible)

	// Mapping
	SmoothingFactor float64 // Exponential smoothing factor (0-1, higher = more new data)
	LowThreshold    float64 // Below this = left / up
	HighThreshold   float64 // Above this = right / down

	// Host loop
	FrameInterval time.Duration // How often the tracker captures a frame
	GazeBuffer    int           // Capacity of the published observation channel
}

// DefaultConfig returns the recommended configuration for a 20 Hz webcam tracker
func DefaultConfig() Config {
	return Config{
		// Calibration - 1s to move eyes, 30 samples at 20 Hz
		SettleDelay:     1000 * time.Millisecond,
		SamplesPerPoint: 30,
		SampleTimeout:   3 * time.Second, // 2x the nominal 1.5s window

		// Fitting
		RansacThreshold:  0.05, // 5% of the screen
		RansacIterations: 500,
		RansacSeed:       1,

		// Mapping
		SmoothingFactor: 0.3,  // 30% new, 70% old
		LowThreshold:    0.35,
		HighThreshold:   0.65,

		// Host loop
		FrameInterval: 50 * time.Millisecond, // 20 Hz
		GazeBuffer:    16,
	}
}

// FastConfig returns a configuration for quick, lower quality calibration
func FastConfig() Config {
	cfg := DefaultConfig()
	cfg.SettleDelay = 600 * time.Millisecond
	cfg.SamplesPerPoint = 15
	cfg.SampleTimeout = 1500 * time.Millisecond
	cfg.SmoothingFactor = 0.5 // Trust new readings more
	return cfg
}

// PreciseConfig returns a configuration for slower, more careful calibration
func PreciseConfig() Config {
	cfg := DefaultConfig()
	cfg.SettleDelay = 1500 * time.Millisecond
	cfg.SamplesPerPoint = 60
	cfg.SampleTimeout = 6 * time.Second
	cfg.RansacThreshold = 0.03
	cfg.RansacIterations = 1000
	cfg.SmoothingFactor = 0.2 // More dampening
	return cfg
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.SettleDelay < 0 {
		errors = append(errors, "settle_delay must not be negative")
	}
	if c.SamplesPerPoint < 1 {
		errors = append(errors, "samples_per_point must be at least 1")
	}
	if c.SampleTimeout <= 0 {
		errors = append(errors, "sample_timeout must be positive")
	}
	if c.RansacThreshold <= 0 || c.RansacThreshold > 1 {
		errors = append(errors, "ransac_threshold must be in (0, 1]")
	}
	if c.RansacIterations < 1 {
		errors = append(errors, "ransac_iterations must be at least 1")
	}
	if c.SmoothingFactor <= 0 || c.SmoothingFactor > 1 {
		errors = append(errors, "smoothing_factor must be in (0, 1]")
	}
	if c.LowThreshold < 0 || c.HighThreshold > 1 || c.LowThreshold >= c.HighThreshold {
		errors = append(errors, fmt.Sprintf("direction thresholds must satisfy 0 <= low < high <= 1 (got %.2f, %.2f)",
			c.LowThreshold, c.HighThreshold))
	}
	if c.FrameInterval <= 0 {
		errors = append(errors, "frame_interval must be positive")
	}
	if c.GazeBuffer < 1 {
		errors = append(errors, "gaze_buffer must be at least 1")
	}

	return errors
}
