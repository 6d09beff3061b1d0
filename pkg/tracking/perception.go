package tracking

import (
	"log/slog"

	"github.com/teslashibe/go-gaze/pkg/gaze/pupil"
)

// Perception captures frames and runs the pupil detector on them
type Perception struct {
	detector pupil.Detector
	logger   *slog.Logger

	// Detection state
	lastValid         pupil.Detection
	hasLastValid      bool
	consecutiveMisses int
	errors            int
}

// NewPerception creates a new perception stage
func NewPerception(detector pupil.Detector, logger *slog.Logger) *Perception {
	if logger == nil {
		logger = slog.Default()
	}
	return &Perception{
		detector: detector,
		logger:   logger,
	}
}

// Detect captures one frame and looks for a pupil in it.
// Capture and detection errors count as misses; they never stop tracking.
func (p *Perception) Detect(video VideoSource) (pupil.Detection, bool) {
	if video == nil || p.detector == nil {
		return pupil.Detection{}, false
	}

	frame, err := video.CaptureJPEG()
	if err != nil {
		p.errors++
		p.consecutiveMisses++
		p.logger.Debug("frame capture failed", "error", err)
		return pupil.Detection{}, false
	}

	det, found, err := p.detector.Detect(frame)
	if err != nil {
		p.errors++
		p.consecutiveMisses++
		p.logger.Debug("pupil detection failed", "error", err)
		return pupil.Detection{}, false
	}
	if !found {
		p.consecutiveMisses++
		return pupil.Detection{}, false
	}

	p.lastValid = det
	p.hasLastValid = true
	p.consecutiveMisses = 0
	return det, true
}

// GetConsecutiveMisses returns how many consecutive frames had no pupil
func (p *Perception) GetConsecutiveMisses() int {
	return p.consecutiveMisses
}

// GetLastValid returns the last successful detection
func (p *Perception) GetLastValid() (pupil.Detection, bool) {
	return p.lastValid, p.hasLastValid
}

// GetErrors returns how many frames failed to capture or decode
func (p *Perception) GetErrors() int {
	return p.errors
}
