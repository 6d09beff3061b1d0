// Command gazecal runs a nine-point gaze calibration and then streams mapped
// gaze. By default it simulates a viewer with a synthetic detector; with
// -remote it takes detections from detector processes connected to
// /ws/detector and waits for POST /api/calibration.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-gaze/internal/config"
	"github.com/teslashibe/go-gaze/internal/log"
	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/gaze/cvfit"
	"github.com/teslashibe/go-gaze/pkg/gaze/pupil"
	"github.com/teslashibe/go-gaze/pkg/remote"
	"github.com/teslashibe/go-gaze/pkg/tracking"
	"github.com/teslashibe/go-gaze/pkg/web"
)

func main() {
	listen := flag.String("listen", "", "Serve the control API and WebSocket streams on this address (e.g. :8080)")
	useRemote := flag.Bool("remote", false, "Take detections from /ws/detector instead of the synthetic viewer (needs -listen)")
	useOpenCV := flag.Bool("opencv", false, "Fit with OpenCV findHomography (binary must be built with -tags opencv)")
	track := flag.Duration("track", 10*time.Second, "How long to track after calibrating (synthetic mode)")
	scale := flag.Float64("scale", 0.9, "Synthetic viewer: raw pupil range as a fraction of the screen")
	jitter := flag.Float64("jitter", 0.005, "Synthetic viewer: per-frame pupil noise")
	dropout := flag.Float64("dropout", 0.05, "Synthetic viewer: fraction of frames with no detection")
	flag.Parse()

	log.Init(config.LogLevel("info"))
	logger := log.Component("gazecal")

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	if *useRemote && *listen == "" {
		fmt.Fprintln(os.Stderr, "-remote needs -listen")
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fitterOpts := []gaze.FitterOption{gaze.WithFitterLogger(log.Component("fitter"))}
	if *useOpenCV {
		est, err := cvfit.New(cvfit.Config{
			Threshold:  cfg.RansacThreshold,
			MaxIters:   cfg.RansacIterations,
			Confidence: cvfit.DefaultConfig().Confidence,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "opencv: %v\n", err)
			os.Exit(2)
		}
		fitterOpts = append(fitterOpts, gaze.WithEstimator(est))
	}
	fitter := gaze.NewFitter(cfg, fitterOpts...)

	if *useRemote {
		source := remote.NewSource(remote.WithLogger(log.Component("remote")))
		defer source.Close()

		tracker := tracking.New(cfg, source, source, nil,
			tracking.WithLogger(log.Component("tracker")),
			tracking.WithFitter(fitter),
		)
		go tracker.Run(ctx)

		server := web.NewServer(*listen, tracker,
			web.WithLogger(log.Component("web")),
			web.WithSource(source),
		)
		fmt.Printf("👁️  Waiting for detectors on ws://%s/ws/detector, POST /api/calibration to start\n", *listen)
		if err := server.Start(ctx); err != nil {
			logger.Error("server stopped", "error", err)
			os.Exit(1)
		}
		return
	}

	viewer := pupil.NewSynthetic(
		pupil.WithScale(*scale),
		pupil.WithJitter(*jitter),
		pupil.WithDropout(*dropout),
		pupil.WithSeed(uint64(time.Now().UnixNano())),
	)
	defer viewer.Close()

	tracker := tracking.New(cfg, stillCamera{}, viewer, nil,
		tracking.WithLogger(log.Component("tracker")),
		tracking.WithFitter(fitter),
	)
	go tracker.Run(ctx)

	var server *web.Server
	if *listen != "" {
		server = web.NewServer(*listen, tracker, web.WithLogger(log.Component("web")))
		go func() {
			if err := server.Start(ctx); err != nil {
				logger.Error("server stopped", "error", err)
			}
		}()
	}

	fmt.Printf("🎯 Calibrating %d points (%d samples each, %v settle)\n",
		len(gaze.DefaultTargets()), cfg.SamplesPerPoint, cfg.SettleDelay)

	followCtx, stopFollowing := context.WithCancel(ctx)
	go follow(followCtx, tracker, viewer)
	transform, err := tracker.Calibrate(ctx)
	stopFollowing()
	if err != nil {
		if errors.Is(err, gaze.ErrSessionCancelled) {
			fmt.Println("\n👋 Cancelled")
			return
		}
		fmt.Fprintf(os.Stderr, "❌ Calibration failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n✅ %s fit: %d points, %d inliers, RMSE %.4f\n",
		transform.Kind(), transform.Correspondences, transform.Inliers, transform.RMSE)

	if server != nil {
		// The server owns the gaze stream from here.
		fmt.Printf("🌐 Streaming gaze on ws://%s/ws/gaze (Ctrl+C to stop)\n", *listen)
		wander(ctx, viewer, 0)
		return
	}

	trackCtx, stop := context.WithTimeout(ctx, *track)
	defer stop()
	go wander(trackCtx, viewer, *track)
	printGazes(trackCtx, tracker)

	stats := tracker.Mapper().Stats()
	fmt.Printf("\n📊 %d frames, %d observations, %d dropped, %d degenerate\n",
		tracker.Frames(), stats.Observations, tracker.Dropped(), stats.Degenerate)
}

// stillCamera stands in for a camera; the synthetic viewer ignores frames
type stillCamera struct{}

func (stillCamera) CaptureJPEG() ([]byte, error) { return nil, nil }

// follow points the simulated viewer at each calibration target as it is
// shown, like an operator would
func follow(ctx context.Context, tracker *tracking.Tracker, viewer *pupil.Synthetic) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	last := -1.0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		target, progress, ok := tracker.Calibration()
		if !ok {
			continue
		}
		viewer.LookAt(target.X, target.Y)
		if progress-last >= 0.05 {
			fmt.Printf("\r   target %v  %3.0f%%", target, progress*100)
			last = progress
		}
	}
}

// wander moves the simulated gaze around the screen: the corners, then
// the center. With d == 0 it loops until ctx is done.
func wander(ctx context.Context, viewer *pupil.Synthetic, d time.Duration) {
	path := []gaze.Target{{0.2, 0.2}, {0.8, 0.2}, {0.8, 0.8}, {0.2, 0.8}, {0.5, 0.5}}
	step := 2 * time.Second
	if d > 0 {
		step = max(d/time.Duration(len(path)), 100*time.Millisecond)
	}

	for i := 0; ; i++ {
		p := path[i%len(path)]
		viewer.LookAt(p.X, p.Y)
		select {
		case <-ctx.Done():
			return
		case <-time.After(step):
		}
	}
}

func printGazes(ctx context.Context, tracker *tracking.Tracker) {
	for {
		select {
		case <-ctx.Done():
			return
		case g := <-tracker.Gazes():
			fmt.Printf("\r👁️  raw %v → screen (%.3f, %.3f)  %-6s %-6s",
				g.Raw, g.ScreenX, g.ScreenY, g.Horizontal, g.Vertical)
		}
	}
}
