package gaze

import (
	"context"
	"log/slog"
	"sync"
)

// MapperStats counts what the mapper has seen since it was created.
type MapperStats struct {
	Observations int64 `json:"observations"` // Calls to Observe
	Degenerate   int64 `json:"degenerate"`   // Frames that fell back to the smoothed raw position
}

// Mapper converts live raw samples into screen positions and directions.
//
// It is meant to be driven by a single producer at the frame rate; the
// mutex only lets a host swap the transform from another goroutine.
type Mapper struct {
	mu sync.Mutex

	transform *Transform // nil = uncalibrated pass-through

	// Smoothing
	smoothX, smoothY float64
	smoothingFactor  float64 // 0-1, higher = more weight on new reading

	// Classification
	low, high float64

	stats  MapperStats
	logger *slog.Logger
}

// MapperOption configures a Mapper.
type MapperOption func(*Mapper)

// WithMapperLogger sets the logger used for degeneracy diagnostics.
func WithMapperLogger(logger *slog.Logger) MapperOption {
	return func(m *Mapper) {
		m.logger = logger
	}
}

// NewMapper creates an uncalibrated mapper.
func NewMapper(cfg Config, opts ...MapperOption) *Mapper {
	m := &Mapper{
		smoothX:         0.5,
		smoothY:         0.5,
		smoothingFactor: clamp(cfg.SmoothingFactor, 0, 1),
		low:             cfg.LowThreshold,
		high:            cfg.HighThreshold,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// SetTransform installs t for subsequent observations. nil clears it.
func (m *Mapper) SetTransform(t *Transform) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transform = t
}

// ClearTransform reverts to the uncalibrated pass-through.
func (m *Mapper) ClearTransform() {
	m.SetTransform(nil)
}

// Transform returns the installed transform, or nil.
func (m *Mapper) Transform() *Transform {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transform
}

// Calibrated reports whether a transform is installed.
func (m *Mapper) Calibrated() bool {
	return m.Transform() != nil
}

// SmoothingFactor returns the exponential smoothing factor.
func (m *Mapper) SmoothingFactor() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.smoothingFactor
}

// SetSmoothingFactor changes the smoothing factor, clamped to [0,1].
func (m *Mapper) SetSmoothingFactor(f float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.smoothingFactor = clamp(f, 0, 1)
}

// Reset puts the smoothed position back at the screen center.
// The installed transform is kept.
func (m *Mapper) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.smoothX, m.smoothY = 0.5, 0.5
}

// Stats returns a snapshot of the mapper counters.
func (m *Mapper) Stats() MapperStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Observe smooths raw, maps it through the installed transform, clamps the
// result to [0,1] and classifies it. It never fails: if the transform cannot
// map this frame the smoothed raw position is used instead.
func (m *Mapper) Observe(raw Sample) Observation {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.Observations++

	// A detector glitch must not poison the smoothing state.
	if raw.finite() {
		m.smoothX += (raw.X - m.smoothX) * m.smoothingFactor
		m.smoothY += (raw.Y - m.smoothY) * m.smoothingFactor
	}
	smoothed := Sample{X: m.smoothX, Y: m.smoothY}

	obs := Observation{
		Raw:        raw,
		Smoothed:   smoothed,
		Calibrated: m.transform != nil,
	}

	screen := smoothed
	if m.transform != nil {
		mapped, err := m.transform.Apply(smoothed)
		if err != nil {
			m.stats.Degenerate++
			obs.Degenerate = true
			level := slog.LevelDebug
			if m.stats.Degenerate == 1 {
				level = slog.LevelWarn
			}
			m.logger.Log(context.Background(), level, "gaze transform failed, using raw position",
				"error", err,
				"count", m.stats.Degenerate,
			)
		} else {
			screen = mapped
		}
	}

	obs.ScreenX = clamp(screen.X, 0, 1)
	obs.ScreenY = clamp(screen.Y, 0, 1)
	obs.Horizontal = classify(obs.ScreenX, m.low, m.high, DirectionLeft, DirectionRight)
	obs.Vertical = classify(obs.ScreenY, m.low, m.high, DirectionUp, DirectionDown)
	return obs
}
