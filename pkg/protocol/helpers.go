package protocol

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewDetectionMessage creates a detection message
func NewDetectionMessage(d DetectionData) (*Message, error) {
	return NewMessage(TypeDetection, d)
}

// NewTargetMessage creates a calibration target message
func NewTargetMessage(x, y float64, visible bool, progress float64) (*Message, error) {
	return NewMessage(TypeTarget, TargetData{
		X:        x,
		Y:        y,
		Visible:  visible,
		Progress: progress,
	})
}

// NewGazeMessage creates a gaze observation message
func NewGazeMessage(g GazeData) (*Message, error) {
	return NewMessage(TypeGaze, g)
}

// NewCalibrationMessage creates a calibration result message
func NewCalibrationMessage(c CalibrationData) (*Message, error) {
	return NewMessage(TypeCalibration, c)
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{ID: id})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetDetectionData extracts detection data from a message
func (m *Message) GetDetectionData() (*DetectionData, error) {
	var data DetectionData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetTargetData extracts target data from a message
func (m *Message) GetTargetData() (*TargetData, error) {
	var data TargetData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetGazeData extracts gaze data from a message
func (m *Message) GetGazeData() (*GazeData, error) {
	var data GazeData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetCalibrationData extracts calibration data from a message
func (m *Message) GetCalibrationData() (*CalibrationData, error) {
	var data CalibrationData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
