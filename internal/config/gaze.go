// Package config provides configuration helpers for go-gaze commands.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/teslashibe/go-gaze/pkg/gaze"
)

// Environment variables read by FromEnv.
const (
	EnvPreset          = "GAZE_PRESET"            // default, fast, precise
	EnvSamplesPerPoint = "GAZE_SAMPLES_PER_POINT" // int
	EnvSettleMS        = "GAZE_SETTLE_MS"         // int milliseconds
	EnvSampleTimeoutMS = "GAZE_SAMPLE_TIMEOUT_MS" // int milliseconds
	EnvSmoothing       = "GAZE_SMOOTHING"         // float 0-1
	EnvFrameHz         = "GAZE_FRAME_HZ"          // float Hz
	EnvLogLevel        = "LOG_LEVEL"              // debug, info, warn, error
)

// Preset returns the named configuration preset.
func Preset(name string) (gaze.Config, error) {
	switch name {
	case "", "default":
		return gaze.DefaultConfig(), nil
	case "fast":
		return gaze.FastConfig(), nil
	case "precise":
		return gaze.PreciseConfig(), nil
	default:
		return gaze.Config{}, fmt.Errorf("unknown preset %q (want default, fast or precise)", name)
	}
}

// FromEnv builds a configuration from GAZE_PRESET and applies any
// GAZE_* overrides. The result is validated.
func FromEnv() (gaze.Config, error) {
	cfg, err := Preset(os.Getenv(EnvPreset))
	if err != nil {
		return gaze.Config{}, err
	}

	if v, ok, err := envInt(EnvSamplesPerPoint); err != nil {
		return gaze.Config{}, err
	} else if ok {
		cfg.SamplesPerPoint = v
	}
	if v, ok, err := envInt(EnvSettleMS); err != nil {
		return gaze.Config{}, err
	} else if ok {
		cfg.SettleDelay = time.Duration(v) * time.Millisecond
	}
	if v, ok, err := envInt(EnvSampleTimeoutMS); err != nil {
		return gaze.Config{}, err
	} else if ok {
		cfg.SampleTimeout = time.Duration(v) * time.Millisecond
	}
	if v, ok, err := envFloat(EnvSmoothing); err != nil {
		return gaze.Config{}, err
	} else if ok {
		cfg.SmoothingFactor = v
	}
	if v, ok, err := envFloat(EnvFrameHz); err != nil {
		return gaze.Config{}, err
	} else if ok {
		if v <= 0 {
			return gaze.Config{}, fmt.Errorf("%s must be positive, got %v", EnvFrameHz, v)
		}
		cfg.FrameInterval = time.Duration(float64(time.Second) / v)
	}

	if problems := cfg.Validate(); len(problems) > 0 {
		return gaze.Config{}, fmt.Errorf("invalid configuration: %v", problems)
	}
	return cfg, nil
}

// LogLevel returns LOG_LEVEL or the provided default if not set.
func LogLevel(defaultLevel string) string {
	if level := os.Getenv(EnvLogLevel); level != "" {
		return level
	}
	return defaultLevel
}

func envInt(key string) (int, bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return v, true, nil
}

func envFloat(key string) (float64, bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return v, true, nil
}
