package gaze

import "errors"

// Sentinel errors for calibration and mapping.
var (
	// ErrInsufficientCalibrationData is returned when fewer than 3 usable
	// calibration points remain. The host should run a new session.
	ErrInsufficientCalibrationData = errors.New("gaze: insufficient calibration data")

	// ErrNoDetectionInWindow marks a target whose sampling window closed
	// without a single sample. The session skips that target.
	ErrNoDetectionInWindow = errors.New("gaze: no detection in sampling window")

	// ErrNumericalDegeneracy is returned when applying a transform produces
	// an invalid result (e.g. a near-zero perspective divisor).
	ErrNumericalDegeneracy = errors.New("gaze: numerical degeneracy")

	// ErrDegenerateGeometry is returned when the calibration points cannot
	// determine a transform (collinear or coincident raw points).
	ErrDegenerateGeometry = errors.New("gaze: degenerate calibration geometry")

	// ErrSessionCancelled is returned by Result after Cancel.
	ErrSessionCancelled = errors.New("gaze: calibration session cancelled")

	// ErrSessionNotDone is returned by Result before the session is terminal.
	ErrSessionNotDone = errors.New("gaze: calibration session not finished")

	// ErrSessionStarted is returned when Start is called twice.
	ErrSessionStarted = errors.New("gaze: calibration session already started")
)
