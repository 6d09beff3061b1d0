package gaze

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// State is a calibration session state.
type State int

const (
	StateIdle           State = iota // Created, not started
	StateAwaitingSettle              // Target shown, waiting for the eyes to get there
	StateSampling                    // Collecting samples for the current target
	StateFitting                     // All targets visited, fitting the transform
	StateComplete                    // Transform available
	StateFailed                      // Not enough usable points
	StateCancelled                   // Aborted by the host
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingSettle:
		return "awaiting_settle"
	case StateSampling:
		return "sampling"
	case StateFitting:
		return "fitting"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed || s == StateCancelled
}

// Session walks through the calibration targets once and produces a
// Transform. Time is passed in by the caller, so a session can be driven
// by a real clock or a test clock alike. A session is single-use: build a
// new one to retry.
//
// Session is not safe for concurrent use.
type Session struct {
	id      string
	cfg     Config
	targets []Target
	fitter  *Fitter
	logger  *slog.Logger

	state      State
	index      int       // Current target
	phaseStart time.Time // When the current settle or sampling phase began
	acc        *Accumulator

	points    []PointResult
	skipped   []Target
	discarded int // Samples that arrived outside a sampling window

	transform *Transform
	err       error
	done      chan struct{}
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithTargets replaces DefaultTargets.
func WithTargets(targets []Target) SessionOption {
	return func(s *Session) {
		s.targets = append([]Target(nil), targets...)
	}
}

// WithSessionLogger sets the logger used for progress messages.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

// NewSession creates an idle session. If fitter is nil one is built from cfg.
func NewSession(cfg Config, fitter *Fitter, opts ...SessionOption) *Session {
	s := &Session{
		id:      uuid.NewString(),
		cfg:     cfg,
		targets: DefaultTargets(),
		fitter:  fitter,
		logger:  slog.Default(),
		acc:     NewAccumulator(cfg.SamplesPerPoint),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("session", s.id)
	if s.fitter == nil {
		s.fitter = NewFitter(cfg, WithFitterLogger(s.logger))
	}
	return s
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string {
	return s.id
}

// State returns the current state.
func (s *Session) State() State {
	return s.state
}

// Done is closed when the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Targets returns the targets in presentation order.
func (s *Session) Targets() []Target {
	return append([]Target(nil), s.targets...)
}

// CurrentTarget returns the target the host should display.
// ok is false outside the settle and sampling states.
func (s *Session) CurrentTarget() (Target, bool) {
	if s.state != StateAwaitingSettle && s.state != StateSampling {
		return Target{}, false
	}
	return s.targets[s.index], true
}

// PointProgress returns how full the current sampling window is (0-1).
func (s *Session) PointProgress() float64 {
	if s.state != StateSampling {
		return 0
	}
	return clamp(float64(s.acc.Len())/float64(s.cfg.SamplesPerPoint), 0, 1)
}

// Progress returns the fraction of the whole session completed (0-1).
func (s *Session) Progress() float64 {
	switch {
	case s.state == StateComplete || s.state == StateFailed || s.state == StateFitting:
		return 1
	case len(s.targets) == 0:
		return 0
	}
	return (float64(s.index) + s.PointProgress()) / float64(len(s.targets))
}

// Points returns the usable results collected so far.
func (s *Session) Points() []PointResult {
	return append([]PointResult(nil), s.points...)
}

// Skipped returns the targets whose window closed with no samples.
func (s *Session) Skipped() []Target {
	return append([]Target(nil), s.skipped...)
}

// Discarded returns how many samples arrived outside a sampling window.
func (s *Session) Discarded() int {
	return s.discarded
}

// Result returns the fitted transform once the session is terminal.
// It returns ErrSessionNotDone before that, ErrSessionCancelled after
// Cancel, and the fit error (ErrInsufficientCalibrationData or
// ErrDegenerateGeometry) after a failure.
func (s *Session) Result() (*Transform, error) {
	if !s.state.Terminal() {
		return nil, ErrSessionNotDone
	}
	return s.transform, s.err
}

// Start shows the first target.
func (s *Session) Start(now time.Time) error {
	if s.state != StateIdle {
		return ErrSessionStarted
	}

	s.logger.Info("calibration started",
		"targets", len(s.targets),
		"samples_per_point", s.cfg.SamplesPerPoint,
		"settle", s.cfg.SettleDelay,
	)

	if len(s.targets) == 0 {
		s.fit()
		return nil
	}
	s.index = 0
	s.settle(now)
	return nil
}

// Tick applies time-driven transitions: the end of a settle delay and the
// sample window timeout. Call it on every frame, including frames with no
// detection, so a stalled detector cannot hold the session.
func (s *Session) Tick(now time.Time) {
	switch s.state {
	case StateAwaitingSettle:
		if now.Sub(s.phaseStart) >= s.cfg.SettleDelay {
			s.state = StateSampling
			s.phaseStart = now
			s.acc.Start()
		}
	case StateSampling:
		if now.Sub(s.phaseStart) >= s.cfg.SampleTimeout {
			s.logger.Debug("sample window timed out",
				"target", s.targets[s.index].String(),
				"samples", s.acc.Len(),
			)
			s.closeWindow(now)
		}
	}
}

// Add feeds one raw sample observed at now. It returns true if the sample
// was attributed to the current target; samples outside a sampling window
// (during settle, after the window closed or after the session ended) are
// discarded.
func (s *Session) Add(sample Sample, now time.Time) bool {
	s.Tick(now)
	if s.state != StateSampling || !sample.finite() {
		s.discarded++
		return false
	}

	s.acc.Add(sample)
	if s.acc.Len() >= s.cfg.SamplesPerPoint {
		s.closeWindow(now)
	}
	return true
}

// Cancel aborts the session. It has no effect once fitting has started.
// Returns true if the session was cancelled by this call.
func (s *Session) Cancel() bool {
	if s.state.Terminal() || s.state == StateFitting {
		return false
	}
	s.logger.Info("calibration cancelled", "state", s.state.String(), "target_index", s.index)
	s.state = StateCancelled
	s.err = ErrSessionCancelled
	close(s.done)
	return true
}

// settle shows the current target and starts the settle delay.
func (s *Session) settle(now time.Time) {
	s.state = StateAwaitingSettle
	s.phaseStart = now
	s.logger.Debug("showing target",
		"index", s.index,
		"target", s.targets[s.index].String(),
	)
}

// closeWindow reduces the current window and moves to the next target.
func (s *Session) closeWindow(now time.Time) {
	target := s.targets[s.index]
	if mean, ok := s.acc.Finish(); ok {
		s.points = append(s.points, PointResult{
			Target:      target,
			Averaged:    mean,
			SampleCount: s.acc.Len(),
		})
		s.logger.Debug("target sampled",
			"target", target.String(),
			"raw", mean.String(),
			"samples", s.acc.Len(),
		)
	} else {
		s.skipped = append(s.skipped, target)
		s.logger.Warn("skipping target", "target", target.String(), "error", ErrNoDetectionInWindow)
	}
	s.acc.Start()

	s.index++
	if s.index >= len(s.targets) {
		s.fit()
		return
	}
	s.settle(now)
}

// fit runs the fitter over every usable point and ends the session.
func (s *Session) fit() {
	s.state = StateFitting
	t, err := s.fitter.Fit(s.points)
	if err != nil {
		s.state = StateFailed
		s.err = err
		s.logger.Warn("calibration failed",
			"points", len(s.points),
			"skipped", len(s.skipped),
			"error", err,
		)
	} else {
		s.state = StateComplete
		s.transform = t
		s.logger.Info("calibration complete",
			"kind", t.Kind().String(),
			"points", len(s.points),
			"skipped", len(s.skipped),
			"rmse", t.RMSE,
		)
	}
	close(s.done)
}
