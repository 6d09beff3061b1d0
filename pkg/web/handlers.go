package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/hub"
	"github.com/teslashibe/go-gaze/pkg/protocol"
	"github.com/teslashibe/go-gaze/pkg/tracking"
)

// StatusResponse is the body of GET /api/status
type StatusResponse struct {
	Running     bool             `json:"running"`
	Calibrated  bool             `json:"calibrated"`
	Calibrating bool             `json:"calibrating"`
	Frames      int64            `json:"frames"`
	Dropped     int64            `json:"dropped"`
	Mapper      gaze.MapperStats `json:"mapper"`
	Transform   *TransformInfo   `json:"transform,omitempty"`
	GazeClients int              `json:"gaze_clients"`
}

// TransformInfo describes the installed transform
type TransformInfo struct {
	Kind    string     `json:"kind"`
	Matrix  [9]float64 `json:"matrix"`
	Points  int        `json:"points"`
	Inliers int        `json:"inliers"`
	RMSE    float64    `json:"rmse"`
}

// CalibrationResponse is the body of GET /api/calibration
type CalibrationResponse struct {
	Active   bool                      `json:"active"`
	Target   *protocol.TargetData      `json:"target,omitempty"`
	Progress float64                   `json:"progress"`
	Last     *protocol.CalibrationData `json:"last,omitempty"`
}

// handleStatus returns tracker and mapper state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	mapper := s.tracker.Mapper()
	resp := StatusResponse{
		Running:     s.tracker.IsRunning(),
		Calibrated:  mapper.Calibrated(),
		Calibrating: s.Calibrating(),
		Frames:      s.tracker.Frames(),
		Dropped:     s.tracker.Dropped(),
		Mapper:      mapper.Stats(),
		GazeClients: s.gazeHub.ClientCount(),
	}
	if t := mapper.Transform(); t != nil {
		resp.Transform = &TransformInfo{
			Kind:    t.Kind().String(),
			Matrix:  t.Matrix(),
			Points:  t.Correspondences,
			Inliers: t.Inliers,
			RMSE:    t.RMSE,
		}
	}
	return c.JSON(resp)
}

// handleGetCalibration returns the current target and the last result
func (s *Server) handleGetCalibration(c *fiber.Ctx) error {
	target, progress, ok := s.tracker.Calibration()
	resp := CalibrationResponse{
		Active:   s.Calibrating(),
		Progress: progress,
	}
	if ok {
		resp.Target = &protocol.TargetData{X: target.X, Y: target.Y, Visible: true, Progress: progress}
	}
	if last, ok := s.LastResult(); ok {
		resp.Last = &last
	}
	return c.JSON(resp)
}

// handleStartCalibration starts a calibration
func (s *Server) handleStartCalibration(c *fiber.Ctx) error {
	if err := s.StartCalibration(); err != nil {
		if errors.Is(err, tracking.ErrCalibrationInProgress) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "started"})
}

// handleCancelCalibration aborts the running calibration
func (s *Server) handleCancelCalibration(c *fiber.Ctx) error {
	if !s.CancelCalibration() {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no calibration running"})
	}
	return c.JSON(fiber.Map{"status": "cancelled"})
}

// handleGetTuning returns the live tuning parameters
func (s *Server) handleGetTuning(c *fiber.Ctx) error {
	return c.JSON(s.tracker.GetTuningParams())
}

// handleSetTuning applies tuning parameters; zero fields are left alone
func (s *Server) handleSetTuning(c *fiber.Ctx) error {
	var params tracking.TuningParams
	if err := c.BodyParser(&params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if params.SmoothingFactor < 0 || params.SmoothingFactor > 1 || params.FrameHz < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "smoothing_factor must be in [0,1] and frame_hz positive"})
	}
	s.tracker.SetTuningParams(params)
	return c.JSON(s.tracker.GetTuningParams())
}

// handleClearTransform reverts the mapper to uncalibrated pass-through
func (s *Server) handleClearTransform(c *fiber.Ctx) error {
	s.tracker.Mapper().ClearTransform()
	return c.JSON(fiber.Map{"status": "cleared"})
}

// handleHubWS attaches a display client to h
func (s *Server) handleHubWS(h *hub.Hub) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		if !h.IsRunning() {
			s.logger.Warn("websocket rejected, hub not running", "hub", h.Name())
			return
		}
		hub.NewClient(h, c).Run()
	}
}
