package gaze

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const frame = 50 * time.Millisecond

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// viewer returns the raw sample seen while the operator looks at tg on a
// given frame, and whether a pupil was detected at all.
type viewer func(tg Target, frame int) (Sample, bool)

func newTestSession(opts ...SessionOption) *Session {
	opts = append([]SessionOption{WithSessionLogger(quietLogger())}, opts...)
	return NewSession(DefaultConfig(), nil, opts...)
}

// drive feeds s one frame every 50ms until it reaches a terminal state,
// the way a 20 Hz tracker would.
func drive(t *testing.T, s *Session, start time.Time, look viewer) time.Time {
	t.Helper()
	now := start
	for n := 1; n <= 5000; n++ {
		if s.State().Terminal() {
			return now
		}
		now = now.Add(frame)
		if tg, ok := s.CurrentTarget(); ok {
			if sample, found := look(tg, n); found {
				s.Add(sample, now)
				continue
			}
		}
		s.Tick(now)
	}
	t.Fatalf("session did not finish, state %s", s.State())
	return now
}

func undershooting(tg Target, _ int) (Sample, bool) {
	return undershoot(tg, 0.9), true
}

func missing(targets ...Target) viewer {
	return func(tg Target, n int) (Sample, bool) {
		for _, m := range targets {
			if tg == m {
				return Sample{}, false
			}
		}
		return undershooting(tg, n)
	}
}

func assertDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	default:
		t.Fatalf("Done not closed in state %s", s.State())
	}
}

func TestSession_NinePointUndershoot(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.Start(epoch))
	drive(t, s, epoch, undershooting)

	assert.Equal(t, StateComplete, s.State())
	assertDone(t, s)

	tr, err := s.Result()
	require.NoError(t, err)
	assert.Equal(t, Homography, tr.Kind())
	assert.Equal(t, 9, tr.Correspondences)

	center, err := tr.Apply(Sample{0.5, 0.5})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, center.X, 0.02)
	assert.InDelta(t, 0.5, center.Y, 0.02)

	var want []PointResult
	for _, tg := range DefaultTargets() {
		want = append(want, PointResult{Target: tg, Averaged: undershoot(tg, 0.9), SampleCount: 30})
	}
	if diff := cmp.Diff(want, s.Points(), cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("Points mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, s.Skipped())

	// 19 frames land inside each 1s settle delay.
	assert.Equal(t, 19*9, s.Discarded())
}

func TestSession_TwoTargetsMissing(t *testing.T) {
	targets := DefaultTargets()
	s := newTestSession()
	require.NoError(t, s.Start(epoch))
	drive(t, s, epoch, missing(targets[3], targets[6]))

	require.Equal(t, StateComplete, s.State())
	tr, err := s.Result()
	require.NoError(t, err)
	assert.Equal(t, Homography, tr.Kind())
	assert.Equal(t, 7, tr.Correspondences)
	assert.Len(t, s.Points(), 7)

	if diff := cmp.Diff([]Target{targets[3], targets[6]}, s.Skipped()); diff != "" {
		t.Errorf("Skipped mismatch (-want +got):\n%s", diff)
	}
}

func TestSession_SevenTargetsMissing(t *testing.T) {
	targets := DefaultTargets()
	s := newTestSession()
	require.NoError(t, s.Start(epoch))
	drive(t, s, epoch, missing(targets[2:]...))

	assert.Equal(t, StateFailed, s.State())
	assertDone(t, s)
	assert.Len(t, s.Points(), 2)
	assert.Len(t, s.Skipped(), 7)

	tr, err := s.Result()
	assert.Nil(t, tr)
	assert.ErrorIs(t, err, ErrInsufficientCalibrationData)
}

func TestSession_ThreeValidPointsGiveAffine(t *testing.T) {
	targets := DefaultTargets()
	s := newTestSession()
	require.NoError(t, s.Start(epoch))
	drive(t, s, epoch, missing(targets[3:]...))

	require.Equal(t, StateComplete, s.State())
	tr, err := s.Result()
	require.NoError(t, err)
	assert.Equal(t, Affine, tr.Kind())
}

func TestSession_FirstFourTargetsOnly(t *testing.T) {
	targets := DefaultTargets()
	s := newTestSession()
	require.NoError(t, s.Start(epoch))
	drive(t, s, epoch, missing(targets[4:]...))

	require.Equal(t, StateComplete, s.State())
	tr, err := s.Result()
	require.NoError(t, err)
	assert.Equal(t, Homography, tr.Kind())
	assert.Equal(t, 4, tr.Correspondences)
	assert.Len(t, s.Skipped(), 5)

	for _, tg := range targets {
		got, err := tr.Apply(undershoot(tg, 0.9))
		require.NoError(t, err)
		assert.InDelta(t, tg.X, got.X, 1e-9, "x for %v", tg)
		assert.InDelta(t, tg.Y, got.Y, 1e-9, "y for %v", tg)
	}
}

func TestSession_StalledDetector(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.Start(epoch))
	end := drive(t, s, epoch, func(Target, int) (Sample, bool) { return Sample{}, false })

	assert.Equal(t, StateFailed, s.State())
	assert.Len(t, s.Skipped(), 9)
	_, err := s.Result()
	assert.ErrorIs(t, err, ErrInsufficientCalibrationData)

	// Each target costs the settle delay plus the sample timeout.
	cfg := DefaultConfig()
	assert.Equal(t, 9*(cfg.SettleDelay+cfg.SampleTimeout), end.Sub(epoch))
}

func TestSession_PartialWindowClosesOnTimeout(t *testing.T) {
	cfg := DefaultConfig()
	s := newTestSession()
	require.NoError(t, s.Start(epoch))

	sampling := epoch.Add(cfg.SettleDelay)
	s.Tick(sampling)
	require.Equal(t, StateSampling, s.State())

	for i := 0; i < 5; i++ {
		assert.True(t, s.Add(Sample{0.5, 0.5}, sampling.Add(time.Duration(i)*frame)))
	}
	assert.InDelta(t, 5.0/30, s.PointProgress(), 1e-12)

	s.Tick(sampling.Add(cfg.SampleTimeout))
	assert.Equal(t, StateAwaitingSettle, s.State())

	points := s.Points()
	require.Len(t, points, 1)
	assert.Equal(t, 5, points[0].SampleCount)

	tg, ok := s.CurrentTarget()
	require.True(t, ok)
	assert.Equal(t, DefaultTargets()[1], tg)
}

func TestSession_SettleDiscardsSamples(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.Start(epoch))

	assert.False(t, s.Add(Sample{0.1, 0.1}, epoch.Add(100*time.Millisecond)))
	assert.False(t, s.Add(Sample{0.1, 0.1}, epoch.Add(999*time.Millisecond)))
	assert.Equal(t, StateAwaitingSettle, s.State())
	assert.Equal(t, 2, s.Discarded())

	assert.True(t, s.Add(Sample{0.5, 0.5}, epoch.Add(time.Second)))
	assert.Equal(t, StateSampling, s.State())
}

func TestSession_NonFiniteSamplesDiscarded(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.Start(epoch))
	s.Tick(epoch.Add(time.Second))

	assert.False(t, s.Add(Sample{nan(), 0.5}, epoch.Add(time.Second)))
	assert.Equal(t, 1, s.Discarded())
	assert.Zero(t, s.PointProgress())
}

func TestSession_Cancel(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.Start(epoch))
	s.Tick(epoch.Add(time.Second))
	s.Add(Sample{0.5, 0.5}, epoch.Add(time.Second))

	assert.True(t, s.Cancel())
	assert.Equal(t, StateCancelled, s.State())
	assertDone(t, s)

	tr, err := s.Result()
	assert.Nil(t, tr)
	assert.ErrorIs(t, err, ErrSessionCancelled)

	assert.False(t, s.Cancel(), "second cancel")
	assert.False(t, s.Add(Sample{0.5, 0.5}, epoch.Add(2*time.Second)))
	_, ok := s.CurrentTarget()
	assert.False(t, ok)
}

func TestSession_CancelAfterCompleteIsNoop(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.Start(epoch))
	end := drive(t, s, epoch, undershooting)

	assert.False(t, s.Cancel())
	assert.Equal(t, StateComplete, s.State())

	// Late samples never reach a finished session.
	assert.False(t, s.Add(Sample{0.5, 0.5}, end.Add(frame)))
	assert.Len(t, s.Points(), 9)
}

func TestSession_Lifecycle(t *testing.T) {
	s := newTestSession()
	assert.Equal(t, StateIdle, s.State())
	assert.NotEmpty(t, s.ID())

	_, err := s.Result()
	assert.ErrorIs(t, err, ErrSessionNotDone)

	_, ok := s.CurrentTarget()
	assert.False(t, ok, "no target before Start")

	require.NoError(t, s.Start(epoch))
	assert.ErrorIs(t, s.Start(epoch), ErrSessionStarted)

	_, err = s.Result()
	assert.ErrorIs(t, err, ErrSessionNotDone)
}

func TestSession_Progress(t *testing.T) {
	cfg := DefaultConfig()
	s := newTestSession()
	assert.Zero(t, s.Progress())

	require.NoError(t, s.Start(epoch))
	assert.Zero(t, s.Progress())

	now := epoch.Add(cfg.SettleDelay)
	for i := 0; i < 15; i++ {
		s.Add(Sample{0.5, 0.5}, now)
		now = now.Add(frame)
	}
	assert.InDelta(t, 0.5/9, s.Progress(), 1e-12)

	for i := 0; i < 15; i++ {
		s.Add(Sample{0.5, 0.5}, now)
		now = now.Add(frame)
	}
	assert.InDelta(t, 1.0/9, s.Progress(), 1e-12)

	drive(t, s, now, undershooting)
	assert.Equal(t, 1.0, s.Progress())
}

func TestSession_CustomTargets(t *testing.T) {
	targets := []Target{{0.2, 0.2}, {0.8, 0.2}, {0.8, 0.8}, {0.2, 0.8}}
	s := newTestSession(WithTargets(targets))

	if diff := cmp.Diff(targets, s.Targets()); diff != "" {
		t.Errorf("Targets mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, s.Start(epoch))
	drive(t, s, epoch, undershooting)

	tr, err := s.Result()
	require.NoError(t, err)
	assert.Equal(t, Homography, tr.Kind())
	assert.Equal(t, 4, tr.Inliers)
}

func TestSession_NoTargets(t *testing.T) {
	s := newTestSession(WithTargets(nil))
	require.NoError(t, s.Start(epoch))

	assert.Equal(t, StateFailed, s.State())
	assertDone(t, s)
	_, err := s.Result()
	assert.ErrorIs(t, err, ErrInsufficientCalibrationData)
}
