// Package remote accepts pupil detections streamed by external detector
// processes over WebSocket and serves them to the tracker as a
// pupil.Detector.
package remote

import (
	"errors"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/gaze/pupil"
	"github.com/teslashibe/go-gaze/pkg/protocol"
)

// ErrClosed is returned by Detect after Close
var ErrClosed = errors.New("remote: source closed")

// DetectorConnection is a connected detector process
type DetectorConnection struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time
	LastSeen  time.Time

	mu         sync.Mutex
	latest     pupil.Detection
	latestAt   time.Time
	fresh      bool // latest not yet handed to the tracker
	detections uint64
}

// Send sends a message to the detector
func (d *DetectorConnection) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Conn.WriteMessage(websocket.TextMessage, data)
}

// Source collects detections from every connected detector
type Source struct {
	mu        sync.RWMutex
	detectors map[string]*DetectorConnection
	logger    *slog.Logger
	maxAge    time.Duration
	now       func() time.Time
	closed    atomic.Bool

	// Stats
	messagesReceived   atomic.Uint64
	messagesSent       atomic.Uint64
	detectionsReceived atomic.Uint64
	rejected           atomic.Uint64
}

// Option configures a Source
type Option func(*Source)

// WithLogger sets the source logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Source) {
		s.logger = logger
	}
}

// WithMaxAge sets how old a detection may be and still be served.
// Older detections count as misses so a stalled detector cannot pin the
// gaze in place.
func WithMaxAge(d time.Duration) Option {
	return func(s *Source) {
		s.maxAge = d
	}
}

// WithClock replaces time.Now (for tests)
func WithClock(now func() time.Time) Option {
	return func(s *Source) {
		s.now = now
	}
}

// NewSource creates a source with no detectors connected
func NewSource(opts ...Option) *Source {
	s := &Source{
		detectors: make(map[string]*DetectorConnection),
		logger:    slog.Default(),
		maxAge:    250 * time.Millisecond,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// RegisterRoutes registers the detector WebSocket routes on a Fiber app
func (s *Source) RegisterRoutes(app *fiber.App) {
	app.Use("/ws/detector", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/detector", websocket.New(s.handleDetector))
	app.Get("/ws/detector/:id", websocket.New(s.handleDetector))
}

// RegisterAPIRoutes registers the detector inspection routes
func (s *Source) RegisterAPIRoutes(api fiber.Router) {
	detectors := api.Group("/detectors")

	detectors.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"detectors": s.GetDetectorInfos(),
			"count":     s.DetectorCount(),
		})
	})

	detectors.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(s.GetStats())
	})
}

// handleDetector handles a detector WebSocket connection
func (s *Source) handleDetector(c *websocket.Conn) {
	id := c.Params("id")
	if id == "" {
		id = uuid.NewString()
	}

	now := s.now()
	conn := &DetectorConnection{
		ID:        id,
		Conn:      c,
		Connected: now,
		LastSeen:  now,
	}

	s.mu.Lock()
	s.detectors[id] = conn
	count := len(s.detectors)
	s.mu.Unlock()

	s.logger.Info("detector connected", "detector", id, "total", count)

	defer func() {
		s.mu.Lock()
		// A reconnect under the same ID may already have replaced us.
		if s.detectors[id] == conn {
			delete(s.detectors, id)
		}
		count := len(s.detectors)
		s.mu.Unlock()

		s.logger.Info("detector disconnected", "detector", id, "total", count)
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			s.logger.Debug("detector read error", "detector", id, "error", err)
			return
		}

		conn.mu.Lock()
		conn.LastSeen = s.now()
		conn.mu.Unlock()

		s.messagesReceived.Add(1)
		s.handleMessage(conn, data)
	}
}

// handleMessage processes an incoming message from a detector
func (s *Source) handleMessage(conn *DetectorConnection, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		s.rejected.Add(1)
		s.logger.Debug("parse error", "detector", conn.ID, "error", err)
		return
	}

	switch msg.Type {
	case protocol.TypeDetection:
		d, err := msg.GetDetectionData()
		if err != nil {
			s.rejected.Add(1)
			s.logger.Debug("bad detection", "detector", conn.ID, "error", err)
			return
		}
		s.push(conn, *d)

	case protocol.TypePing:
		pong, err := protocol.NewPongMessage(conn.ID, msg.Timestamp, s.now().UnixMilli())
		if err != nil {
			return
		}
		s.messagesSent.Add(1)
		if err := conn.Send(pong); err != nil {
			s.logger.Debug("pong failed", "detector", conn.ID, "error", err)
		}

	default:
		s.rejected.Add(1)
	}
}

// Push records a detection as if detector id had sent it.
// A detection with no open eyes clears the detector's pending detection.
func (s *Source) Push(id string, d protocol.DetectionData) {
	s.mu.Lock()
	conn, ok := s.detectors[id]
	if !ok {
		now := s.now()
		conn = &DetectorConnection{ID: id, Connected: now, LastSeen: now}
		s.detectors[id] = conn
	}
	s.mu.Unlock()

	s.push(conn, d)
}

func (s *Source) push(conn *DetectorConnection, d protocol.DetectionData) {
	if !finite(d.X) || !finite(d.Y) {
		s.rejected.Add(1)
		return
	}
	s.detectionsReceived.Add(1)

	det := pupil.Detection{
		Sample:       gaze.Sample{X: d.X, Y: d.Y},
		LeftEyeOpen:  d.LeftEyeOpen,
		RightEyeOpen: d.RightEyeOpen,
		FaceX:        d.FaceX,
		FaceY:        d.FaceY,
		Confidence:   d.Confidence,
	}
	if det.Confidence <= 0 {
		det.Confidence = pupil.ConfidenceFor(det.Eyes())
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()
	conn.detections++
	if det.Eyes() == 0 {
		conn.fresh = false
		return
	}
	conn.latest = det
	conn.latestAt = s.now()
	conn.fresh = true
}

// Detect implements pupil.Detector. The frame is ignored: detectors run
// next to the camera and only send results. Each detection is served at
// most once; with several detectors the best fresh one wins.
func (s *Source) Detect(frame []byte) (pupil.Detection, bool, error) {
	if s.closed.Load() {
		return pupil.Detection{}, false, ErrClosed
	}

	now := s.now()
	s.mu.RLock()
	conns := make([]*DetectorConnection, 0, len(s.detectors))
	for _, c := range s.detectors {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	var candidates []pupil.Detection
	for _, c := range conns {
		c.mu.Lock()
		if c.fresh {
			c.fresh = false
			if now.Sub(c.latestAt) <= s.maxAge {
				candidates = append(candidates, c.latest)
			}
		}
		c.mu.Unlock()
	}

	best := pupil.SelectBest(candidates)
	if best == nil {
		return pupil.Detection{}, false, nil
	}
	return *best, true, nil
}

// CaptureJPEG satisfies the tracker's video source. Remote detectors keep
// their frames, so there is nothing to capture.
func (s *Source) CaptureJPEG() ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	return nil, nil
}

// Close implements pupil.Detector and disconnects every detector
func (s *Source) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.detectors {
		if c.Conn != nil {
			c.Conn.Close()
		}
	}
	return nil
}

// GetDetector returns a detector connection by ID
func (s *Source) GetDetector(id string) *DetectorConnection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.detectors[id]
}

// DetectorCount returns the number of known detectors
func (s *Source) DetectorCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.detectors)
}

// Stats contains source statistics
type Stats struct {
	DetectorCount      int    `json:"detector_count"`
	MessagesReceived   uint64 `json:"messages_received"`
	MessagesSent       uint64 `json:"messages_sent"`
	DetectionsReceived uint64 `json:"detections_received"`
	Rejected           uint64 `json:"rejected"`
}

// GetStats returns source statistics
func (s *Source) GetStats() Stats {
	return Stats{
		DetectorCount:      s.DetectorCount(),
		MessagesReceived:   s.messagesReceived.Load(),
		MessagesSent:       s.messagesSent.Load(),
		DetectionsReceived: s.detectionsReceived.Load(),
		Rejected:           s.rejected.Load(),
	}
}

// DetectorInfo contains info about a connected detector
type DetectorInfo struct {
	ID         string    `json:"id"`
	Connected  time.Time `json:"connected"`
	LastSeen   time.Time `json:"last_seen"`
	Detections uint64    `json:"detections"`
}

// GetDetectorInfos returns info about all detectors
func (s *Source) GetDetectorInfos() []DetectorInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]DetectorInfo, 0, len(s.detectors))
	for _, c := range s.detectors {
		c.mu.Lock()
		infos = append(infos, DetectorInfo{
			ID:         c.ID,
			Connected:  c.Connected,
			LastSeen:   c.LastSeen,
			Detections: c.detections,
		})
		c.mu.Unlock()
	}
	return infos
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
