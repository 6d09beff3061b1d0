// Package tracking drives the gaze engine from a camera: it captures frames
// on a ticker, runs the pupil detector, feeds calibration sessions and
// publishes mapped gaze observations.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/gaze/pupil"
)

// ErrCalibrationInProgress is returned when Calibrate is called while
// another session is still running.
var ErrCalibrationInProgress = errors.New("tracking: calibration already in progress")

// VideoSource interface for capturing frames
type VideoSource interface {
	CaptureJPEG() ([]byte, error)
}

// Gaze is one mapped frame
type Gaze struct {
	gaze.Observation
	Detection pupil.Detection
	At        time.Time
}

// Tracker runs the capture → detect → map loop
type Tracker struct {
	config     gaze.Config
	video      VideoSource
	perception *Perception
	mapper     *gaze.Mapper
	fitter     *gaze.Fitter
	logger     *slog.Logger
	now        func() time.Time

	// Calibration
	mu      sync.Mutex
	session *gaze.Session

	// Output
	gazes   chan Gaze
	dropped atomic.Int64
	frames  atomic.Int64

	frameTickerReset chan time.Duration
	isRunning        atomic.Bool
}

// Option configures a Tracker
type Option func(*Tracker)

// WithLogger sets the tracker logger
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// WithFitter sets the fitter used by calibration sessions
func WithFitter(fitter *gaze.Fitter) Option {
	return func(t *Tracker) {
		t.fitter = fitter
	}
}

// WithClock replaces time.Now (for tests)
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// New creates a tracker. If mapper is nil an uncalibrated one is created.
func New(config gaze.Config, video VideoSource, detector pupil.Detector, mapper *gaze.Mapper, opts ...Option) *Tracker {
	t := &Tracker{
		config:           config,
		video:            video,
		mapper:           mapper,
		logger:           slog.Default(),
		now:              time.Now,
		gazes:            make(chan Gaze, max(config.GazeBuffer, 1)),
		frameTickerReset: make(chan time.Duration, 1),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	if t.mapper == nil {
		t.mapper = gaze.NewMapper(config, gaze.WithMapperLogger(t.logger))
	}
	t.perception = NewPerception(detector, t.logger)
	return t
}

// Mapper returns the mapper the tracker feeds
func (t *Tracker) Mapper() *gaze.Mapper {
	return t.mapper
}

// Gazes returns the observation stream. Observations are dropped, not
// queued, when the consumer falls behind. The channel is never closed.
func (t *Tracker) Gazes() <-chan Gaze {
	return t.gazes
}

// Dropped returns how many observations were dropped for a slow consumer
func (t *Tracker) Dropped() int64 {
	return t.dropped.Load()
}

// Frames returns how many frames have been processed
func (t *Tracker) Frames() int64 {
	return t.frames.Load()
}

// IsRunning reports whether Run is active
func (t *Tracker) IsRunning() bool {
	return t.isRunning.Load()
}

// Run processes frames until ctx is cancelled
func (t *Tracker) Run(ctx context.Context) {
	t.mu.Lock()
	interval := t.config.FrameInterval
	t.mu.Unlock()

	frameTicker := time.NewTicker(interval)
	defer frameTicker.Stop()

	t.isRunning.Store(true)
	defer t.isRunning.Store(false)

	t.logger.Info("gaze tracker started",
		"frame_interval", interval,
		"calibrated", t.mapper.Calibrated(),
	)

	for {
		select {
		case <-ctx.Done():
			t.mapper.Reset()
			t.logger.Info("gaze tracker stopped",
				"frames", t.frames.Load(),
				"dropped", t.dropped.Load(),
			)
			return

		case interval := <-t.frameTickerReset:
			frameTicker.Reset(interval)
			t.logger.Info("frame rate changed", "interval", interval)

		case <-frameTicker.C:
			t.step()
		}
	}
}

// step processes a single frame
func (t *Tracker) step() {
	now := t.now()
	t.frames.Add(1)

	det, found := t.perception.Detect(t.video)
	if misses := t.perception.GetConsecutiveMisses(); misses == 20 {
		t.logger.Info("pupil lost", "consecutive_misses", misses)
	}

	t.mu.Lock()
	if s := t.session; s != nil && !s.State().Terminal() {
		if found {
			s.Add(det.Sample, now)
		} else {
			s.Tick(now)
		}
	}
	t.mu.Unlock()

	if !found {
		return
	}

	g := Gaze{
		Observation: t.mapper.Observe(det.Sample),
		Detection:   det,
		At:          now,
	}
	select {
	case t.gazes <- g:
	default:
		t.dropped.Add(1)
	}
}

// Calibrate runs a calibration session driven by Run and waits for it.
// On success the new transform is installed on the mapper. On failure or
// cancellation the previously installed transform is left untouched.
func (t *Tracker) Calibrate(ctx context.Context, opts ...gaze.SessionOption) (*gaze.Transform, error) {
	opts = append([]gaze.SessionOption{gaze.WithSessionLogger(t.logger)}, opts...)

	t.mu.Lock()
	if t.session != nil && !t.session.State().Terminal() {
		t.mu.Unlock()
		return nil, ErrCalibrationInProgress
	}
	s := gaze.NewSession(t.config, t.fitter, opts...)
	if err := s.Start(t.now()); err != nil {
		t.mu.Unlock()
		return nil, err
	}
	t.session = s
	t.mu.Unlock()

	select {
	case <-s.Done():
	case <-ctx.Done():
		t.mu.Lock()
		cancelled := s.Cancel()
		t.mu.Unlock()
		if cancelled {
			return nil, fmt.Errorf("%w: %w", gaze.ErrSessionCancelled, ctx.Err())
		}
		// Finished just before the cancel landed.
	}

	t.mu.Lock()
	transform, err := s.Result()
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}

	t.mapper.SetTransform(transform)
	return transform, nil
}

// Calibration reports the active session's target and overall progress.
// ok is false when no target should be displayed.
func (t *Tracker) Calibration() (target gaze.Target, progress float64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session == nil {
		return gaze.Target{}, 0, false
	}
	target, ok = t.session.CurrentTarget()
	return target, t.session.Progress(), ok
}

// GetPerception returns the perception stage for inspection
func (t *Tracker) GetPerception() *Perception {
	return t.perception
}
