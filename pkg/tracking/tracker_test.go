package tracking

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/gaze/pupil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock is advanced by hand between frames
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type calibrateResult struct {
	transform *gaze.Transform
	err       error
}

func newTestTracker(t *testing.T, cfg gaze.Config, det pupil.Detector) (*Tracker, *fakeClock) {
	t.Helper()
	clk := newFakeClock()
	tr := New(cfg, &mockVideo{}, det, nil, WithLogger(quietLogger()), WithClock(clk.Now))
	return tr, clk
}

// startCalibration runs Calibrate in the background and waits until the
// first target is on screen.
func startCalibration(t *testing.T, ctx context.Context, tr *Tracker) <-chan calibrateResult {
	t.Helper()
	done := make(chan calibrateResult, 1)
	go func() {
		transform, err := tr.Calibrate(ctx)
		done <- calibrateResult{transform, err}
	}()
	require.Eventually(t, func() bool {
		_, _, ok := tr.Calibration()
		return ok
	}, time.Second, time.Millisecond)
	return done
}

// follow steps the tracker frame by frame, pointing the simulated viewer
// at whatever target is on screen, until the calibration returns.
func follow(t *testing.T, tr *Tracker, clk *fakeClock, det *pupil.Synthetic, done <-chan calibrateResult) calibrateResult {
	t.Helper()
	for i := 0; i < 5000; i++ {
		select {
		case res := <-done:
			return res
		default:
		}
		if target, _, ok := tr.Calibration(); ok {
			det.LookAt(target.X, target.Y)
		}
		clk.Advance(50 * time.Millisecond)
		tr.step()
		drain(tr)
	}
	select {
	case res := <-done:
		return res
	case <-time.After(time.Second):
		t.Fatal("calibration did not return")
		return calibrateResult{}
	}
}

func drain(tr *Tracker) {
	for {
		select {
		case <-tr.Gazes():
		default:
			return
		}
	}
}

func TestTracker_Calibrate(t *testing.T) {
	det := pupil.NewSynthetic(pupil.WithScale(0.9), pupil.WithOffset(0.03, -0.02))
	tr, clk := newTestTracker(t, gaze.FastConfig(), det)
	require.False(t, tr.Mapper().Calibrated())

	done := startCalibration(t, context.Background(), tr)
	res := follow(t, tr, clk, det, done)
	require.NoError(t, res.err)
	require.NotNil(t, res.transform)
	assert.Equal(t, gaze.Homography, res.transform.Kind())
	assert.Same(t, res.transform, tr.Mapper().Transform())

	_, progress, ok := tr.Calibration()
	assert.False(t, ok, "no target after completion")
	assert.Equal(t, 1.0, progress)

	// Looking at a screen point now maps back to it.
	tr.Mapper().SetSmoothingFactor(1)
	det.LookAt(0.2, 0.8)
	tr.step()
	g := <-tr.Gazes()
	assert.True(t, g.Calibrated)
	assert.InDelta(t, 0.2, g.ScreenX, 1e-6)
	assert.InDelta(t, 0.8, g.ScreenY, 1e-6)
	assert.Equal(t, gaze.DirectionLeft, g.Horizontal)
	assert.Equal(t, gaze.DirectionDown, g.Vertical)
	assert.Equal(t, clk.Now(), g.At)
}

func TestTracker_CalibrateFailureKeepsPreviousTransform(t *testing.T) {
	det := pupil.NewSynthetic()
	det.SetBlind(true)
	tr, clk := newTestTracker(t, gaze.FastConfig(), det)
	prev := gaze.Identity()
	tr.Mapper().SetTransform(prev)

	done := startCalibration(t, context.Background(), tr)
	res := follow(t, tr, clk, det, done)
	assert.ErrorIs(t, res.err, gaze.ErrInsufficientCalibrationData)
	assert.Nil(t, res.transform)
	assert.Same(t, prev, tr.Mapper().Transform())
}

func TestTracker_CalibrateCancel(t *testing.T) {
	det := pupil.NewSynthetic()
	tr, _ := newTestTracker(t, gaze.DefaultConfig(), det)
	prev := gaze.Identity()
	tr.Mapper().SetTransform(prev)

	ctx, cancel := context.WithCancel(context.Background())
	done := startCalibration(t, ctx, tr)
	cancel()

	select {
	case res := <-done:
		assert.ErrorIs(t, res.err, gaze.ErrSessionCancelled)
		assert.ErrorIs(t, res.err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Calibrate did not return after cancel")
	}
	assert.Same(t, prev, tr.Mapper().Transform())

	// A fresh calibration can start once the old one is cancelled.
	ctx, cancel = context.WithCancel(context.Background())
	done = startCalibration(t, ctx, tr)
	cancel()
	<-done
}

func TestTracker_CalibrationInProgress(t *testing.T) {
	tr, _ := newTestTracker(t, gaze.DefaultConfig(), pupil.NewSynthetic())

	ctx, cancel := context.WithCancel(context.Background())
	done := startCalibration(t, ctx, tr)

	_, err := tr.Calibrate(context.Background())
	assert.ErrorIs(t, err, ErrCalibrationInProgress)

	cancel()
	<-done
}

func TestTracker_DropsForSlowConsumer(t *testing.T) {
	cfg := gaze.DefaultConfig()
	cfg.GazeBuffer = 2
	tr, _ := newTestTracker(t, cfg, pupil.NewSynthetic())

	for i := 0; i < 5; i++ {
		tr.step()
	}

	assert.Equal(t, int64(5), tr.Frames())
	assert.Equal(t, int64(3), tr.Dropped())
	assert.Len(t, tr.Gazes(), 2)
}

func TestTracker_NoGazeWithoutDetection(t *testing.T) {
	det := pupil.NewSynthetic()
	det.SetBlind(true)
	tr, _ := newTestTracker(t, gaze.DefaultConfig(), det)

	tr.step()
	tr.step()

	assert.Equal(t, int64(2), tr.Frames())
	assert.Len(t, tr.Gazes(), 0)
	assert.Equal(t, 2, tr.GetPerception().GetConsecutiveMisses())
}

func TestTracker_Run(t *testing.T) {
	cfg := gaze.DefaultConfig()
	cfg.FrameInterval = 2 * time.Millisecond
	viewer := pupil.NewSynthetic()
	viewer.LookAt(0.9, 0.9)
	tr := New(cfg, &mockVideo{}, viewer, nil, WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		tr.Run(ctx)
		close(stopped)
	}()

	require.Eventually(t, func() bool { return tr.IsRunning() && tr.Frames() >= 3 }, time.Second, time.Millisecond)

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	assert.False(t, tr.IsRunning())

	// Smoothing starts over from the center for the next tracking session.
	obs := tr.Mapper().Observe(gaze.Sample{X: 0.5, Y: 0.5})
	assert.InDelta(t, 0.5, obs.Smoothed.X, 1e-12)
	assert.InDelta(t, 0.5, obs.Smoothed.Y, 1e-12)
}

func TestTracker_TuningParams(t *testing.T) {
	tr, _ := newTestTracker(t, gaze.DefaultConfig(), pupil.NewSynthetic())

	params := tr.GetTuningParams()
	assert.InDelta(t, 0.3, params.SmoothingFactor, 1e-12)
	assert.InDelta(t, 20, params.FrameHz, 1e-9)

	tr.SetTuningParams(TuningParams{SmoothingFactor: 0.5, FrameHz: 30})
	params = tr.GetTuningParams()
	assert.InDelta(t, 0.5, params.SmoothingFactor, 1e-12)
	assert.InDelta(t, 30, params.FrameHz, 1e-3)
	assert.Len(t, tr.frameTickerReset, 1)

	// Zero values leave settings alone; rates are clamped to 1-60 Hz.
	tr.SetTuningParams(TuningParams{FrameHz: 500})
	params = tr.GetTuningParams()
	assert.InDelta(t, 0.5, params.SmoothingFactor, 1e-12)
	assert.InDelta(t, 60, params.FrameHz, 1e-3)
}

func TestClamp(t *testing.T) {
	tests := []struct {
		value, min, max, want float64
	}{
		{5, 0, 10, 5},
		{-5, 0, 10, 0},
		{15, 0, 10, 10},
	}
	for _, tt := range tests {
		if got := clamp(tt.value, tt.min, tt.max); got != tt.want {
			t.Errorf("clamp(%v, %v, %v) = %v, want %v", tt.value, tt.min, tt.max, got, tt.want)
		}
	}
}

// countingEstimator wraps the built-in estimator and counts fits
type countingEstimator struct {
	gaze.Ransac
	calls int
}

func (c *countingEstimator) EstimateHomography(src, dst []gaze.Sample) ([9]float64, int, error) {
	c.calls++
	return c.Ransac.EstimateHomography(src, dst)
}

func TestTracker_WithFitter(t *testing.T) {
	cfg := gaze.FastConfig()
	est := &countingEstimator{Ransac: gaze.NewRansac(cfg)}
	fitter := gaze.NewFitter(cfg, gaze.WithEstimator(est), gaze.WithFitterLogger(quietLogger()))

	det := pupil.NewSynthetic(pupil.WithScale(0.8))
	clk := newFakeClock()
	tr := New(cfg, &mockVideo{}, det, nil, WithLogger(quietLogger()), WithClock(clk.Now), WithFitter(fitter))

	done := startCalibration(t, context.Background(), tr)
	res := follow(t, tr, clk, det, done)
	require.NoError(t, res.err)
	assert.Equal(t, 1, est.calls)
}
