package tracking

import "time"

// TuningParams holds the real-time adjustable tracking parameters.
// These can be modified without restarting the tracker.
type TuningParams struct {
	SmoothingFactor float64 `json:"smoothing_factor"` // EMA factor (0.2=smooth, 0.5=responsive)
	FrameHz         float64 `json:"frame_hz"`         // Capture frequency (1-60 Hz)
}

// GetTuningParams returns current tuning parameters from the tracker.
func (t *Tracker) GetTuningParams() TuningParams {
	t.mu.Lock()
	defer t.mu.Unlock()

	return TuningParams{
		SmoothingFactor: t.mapper.SmoothingFactor(),
		FrameHz:         1.0 / t.config.FrameInterval.Seconds(),
	}
}

// SetTuningParams updates tuning parameters at runtime.
// Only non-zero values are applied.
func (t *Tracker) SetTuningParams(params TuningParams) {
	if params.SmoothingFactor > 0 {
		t.mapper.SetSmoothingFactor(params.SmoothingFactor)
	}

	// Frame rate (handled by Run via channel)
	if params.FrameHz > 0 {
		t.setFrameHz(params.FrameHz)
	}
}

// setFrameHz updates the capture rate at runtime.
// Valid range: 1-60 Hz
func (t *Tracker) setFrameHz(hz float64) {
	hz = clamp(hz, 1, 60)
	interval := time.Duration(float64(time.Second) / hz)

	t.mu.Lock()
	t.config.FrameInterval = interval
	t.mu.Unlock()

	// Send to the ticker reset channel (non-blocking)
	select {
	case t.frameTickerReset <- interval:
	default:
		// Channel full, skip (previous update still pending)
	}
}

// clamp limits a value to a range
func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
