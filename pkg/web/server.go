// Package web serves the calibration control API and streams targets and
// gaze observations to display clients over WebSocket.
package web

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/hub"
	"github.com/teslashibe/go-gaze/pkg/protocol"
	"github.com/teslashibe/go-gaze/pkg/remote"
	"github.com/teslashibe/go-gaze/pkg/tracking"
)

// targetPollInterval is how often the calibration target is checked for
// changes. Targets move once per second at most.
const targetPollInterval = 50 * time.Millisecond

// progressStep is the smallest progress change that is re-broadcast while a
// target stays on screen
const progressStep = 0.05

// Server is the gaze control server
type Server struct {
	app     *fiber.App
	addr    string
	tracker *tracking.Tracker
	source  *remote.Source
	logger  *slog.Logger

	// Hubs for websocket broadcast
	gazeHub        *hub.Hub
	calibrationHub *hub.Hub

	mu         sync.Mutex
	cancelCal  context.CancelFunc // non-nil while a calibration runs
	lastResult *protocol.CalibrationData
	lastTarget protocol.TargetData
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the server logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithSource mounts a remote detector source on /ws/detector and
// /api/detectors
func WithSource(source *remote.Source) Option {
	return func(s *Server) {
		s.source = source
	}
}

// NewServer creates a server for tracker listening on addr (e.g. ":8080")
func NewServer(addr string, tracker *tracking.Tracker, opts ...Option) *Server {
	s := &Server{
		addr:    addr,
		tracker: tracker,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.gazeHub = hub.New("gaze", s.logger)
	s.calibrationHub = hub.New("calibration", s.logger)

	app := fiber.New(fiber.Config{
		AppName:               "gaze",
		DisableStartupMessage: true,
	})

	// CORS for displays served from elsewhere
	app.Use(cors.New())

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/calibration", s.handleGetCalibration)
	api.Post("/calibration", s.handleStartCalibration)
	api.Delete("/calibration", s.handleCancelCalibration)
	api.Get("/tuning", s.handleGetTuning)
	api.Put("/tuning", s.handleSetTuning)
	api.Delete("/transform", s.handleClearTransform)

	if s.source != nil {
		s.source.RegisterRoutes(app)
		s.source.RegisterAPIRoutes(api)
	}

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket routes
	app.Get("/ws/gaze", websocket.New(s.handleHubWS(s.gazeHub)))
	app.Get("/ws/calibration", websocket.New(s.handleHubWS(s.calibrationHub)))

	s.app = app
	return s
}

// App returns the underlying Fiber app
func (s *Server) App() *fiber.App {
	return s.app
}

// Run streams tracker output to the hubs until ctx is cancelled.
// It consumes tracker.Gazes(); nothing else should read that channel.
func (s *Server) Run(ctx context.Context) {
	go s.gazeHub.Run(ctx)
	go s.calibrationHub.Run(ctx)

	ticker := time.NewTicker(targetPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			if s.cancelCal != nil {
				s.cancelCal()
			}
			s.mu.Unlock()
			return

		case g := <-s.tracker.Gazes():
			msg, err := protocol.NewGazeMessage(gazeData(g))
			if err != nil {
				continue
			}
			s.gazeHub.BroadcastMessage(msg, false)

		case <-ticker.C:
			s.publishTarget()
		}
	}
}

// publishTarget broadcasts the calibration target when it moves, appears,
// disappears or its progress advances
func (s *Server) publishTarget() {
	target, progress, ok := s.tracker.Calibration()
	td := protocol.TargetData{X: target.X, Y: target.Y, Visible: ok, Progress: progress}

	s.mu.Lock()
	changed := targetChanged(s.lastTarget, td)
	if changed {
		s.lastTarget = td
	}
	s.mu.Unlock()

	if !changed {
		return
	}
	msg, err := protocol.NewTargetMessage(td.X, td.Y, td.Visible, td.Progress)
	if err != nil {
		return
	}
	s.calibrationHub.BroadcastMessage(msg, true)
}

// targetChanged compares against the last broadcast target
func targetChanged(last, next protocol.TargetData) bool {
	if next.Visible != last.Visible || next.X != last.X || next.Y != last.Y {
		return true
	}
	if !next.Visible {
		return false
	}
	return math.Abs(next.Progress-last.Progress) >= progressStep ||
		(next.Progress >= 1 && last.Progress < 1)
}

// Start runs the server until ctx is cancelled or listening fails
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("gaze server listening", "addr", s.addr)

	go s.Run(ctx)
	go func() {
		<-ctx.Done()
		s.app.Shutdown()
	}()

	return s.app.Listen(s.addr)
}

// Shutdown gracefully stops the web server
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// StartCalibration starts a calibration in the background. The result is
// broadcast on /ws/calibration and kept for GET /api/calibration.
func (s *Server) StartCalibration() error {
	s.mu.Lock()
	if s.cancelCal != nil {
		s.mu.Unlock()
		return tracking.ErrCalibrationInProgress
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelCal = cancel
	s.mu.Unlock()

	go func() {
		transform, err := s.tracker.Calibrate(ctx)
		cancel()

		result := calibrationData(transform, err)
		s.mu.Lock()
		s.cancelCal = nil
		s.lastResult = &result
		s.mu.Unlock()

		if err != nil {
			s.logger.Warn("calibration failed", "error", err)
		}
		msg, merr := protocol.NewCalibrationMessage(result)
		if merr != nil {
			return
		}
		s.calibrationHub.BroadcastMessage(msg, false)
	}()
	return nil
}

// CancelCalibration aborts the running calibration.
// Returns false if none is running.
func (s *Server) CancelCalibration() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelCal == nil {
		return false
	}
	s.cancelCal()
	return true
}

// Calibrating reports whether a calibration started here is running
func (s *Server) Calibrating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelCal != nil
}

// LastResult returns the outcome of the last finished calibration
func (s *Server) LastResult() (protocol.CalibrationData, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastResult == nil {
		return protocol.CalibrationData{}, false
	}
	return *s.lastResult, true
}

func gazeData(g tracking.Gaze) protocol.GazeData {
	return protocol.GazeData{
		ScreenX:    g.ScreenX,
		ScreenY:    g.ScreenY,
		RawX:       g.Raw.X,
		RawY:       g.Raw.Y,
		Horizontal: string(g.Horizontal),
		Vertical:   string(g.Vertical),
		Calibrated: g.Calibrated,
		Confidence: g.Detection.Confidence,
	}
}

func calibrationData(t *gaze.Transform, err error) protocol.CalibrationData {
	if err != nil {
		return protocol.CalibrationData{Error: err.Error()}
	}
	return protocol.CalibrationData{
		Success: true,
		Kind:    t.Kind().String(),
		Matrix:  t.Matrix(),
		Points:  t.Correspondences,
		Inliers: t.Inliers,
		RMSE:    t.RMSE,
	}
}
