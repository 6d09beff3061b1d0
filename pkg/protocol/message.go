// Package protocol defines the WebSocket message types exchanged between the
// gaze server, remote pupil detectors and display clients.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Detector → Server messages
	TypeDetection MessageType = "detection" // One pupil detection

	// Server → Display messages
	TypeTarget      MessageType = "target"      // Calibration target to draw
	TypeGaze        MessageType = "gaze"        // Mapped gaze observation
	TypeCalibration MessageType = "calibration" // Calibration finished

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v any) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// =============================================================================
// Detector → Server Message Types
// =============================================================================

// DetectionData is one pupil detection from a remote detector.
// Coordinates are normalized to [0,1].
type DetectionData struct {
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	LeftEyeOpen  bool    `json:"left_eye_open"`
	RightEyeOpen bool    `json:"right_eye_open"`
	FaceX        float64 `json:"face_x,omitempty"`
	FaceY        float64 `json:"face_y,omitempty"`
	Confidence   float64 `json:"confidence"`
	FrameID      uint64  `json:"frame_id,omitempty"`
}

// =============================================================================
// Server → Display Message Types
// =============================================================================

// TargetData tells a display which calibration target to draw
type TargetData struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Visible  bool    `json:"visible"`  // false between sessions
	Progress float64 `json:"progress"` // Whole session, 0-1
}

// GazeData is one mapped gaze observation
type GazeData struct {
	ScreenX    float64 `json:"screen_x"`
	ScreenY    float64 `json:"screen_y"`
	RawX       float64 `json:"raw_x"`
	RawY       float64 `json:"raw_y"`
	Horizontal string  `json:"horizontal"` // left, center, right
	Vertical   string  `json:"vertical"`   // up, center, down
	Calibrated bool    `json:"calibrated"`
	Confidence float64 `json:"confidence"`
}

// CalibrationData reports the outcome of a calibration session
type CalibrationData struct {
	Success bool       `json:"success"`
	Kind    string     `json:"kind,omitempty"` // homography, affine
	Matrix  [9]float64 `json:"matrix,omitempty"`
	Points  int        `json:"points"`
	Inliers int        `json:"inliers"`
	RMSE    float64    `json:"rmse"`
	Error   string     `json:"error,omitempty"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
