// Package cvfit provides an OpenCV-backed homography estimator for
// gaze.Fitter, using cv::findHomography with RANSAC.
//
// It is only built with the opencv tag (go build -tags opencv) because it
// needs cgo and an OpenCV install; without the tag New returns
// ErrUnavailable and gaze keeps using its built-in estimator.
package cvfit

import "errors"

// ErrUnavailable is returned by New when built without the opencv tag.
var ErrUnavailable = errors.New("cvfit: built without opencv support")

// Config holds the cv::findHomography parameters
type Config struct {
	Threshold  float64 // RANSAC reprojection threshold (normalized units)
	MaxIters   int     // RANSAC iterations
	Confidence float64 // Required confidence (0-1)
}

// DefaultConfig mirrors gaze.DefaultConfig with OpenCV's default confidence
func DefaultConfig() Config {
	return Config{
		Threshold:  0.05,
		MaxIters:   500,
		Confidence: 0.995,
	}
}

// Estimator implements gaze.HomographyEstimator
type Estimator struct {
	cfg Config
}
