//go:build !opencv

package cvfit

import "github.com/teslashibe/go-gaze/pkg/gaze"

// New returns ErrUnavailable when built without the opencv tag
func New(cfg Config) (*Estimator, error) {
	return nil, ErrUnavailable
}

// EstimateHomography returns ErrUnavailable when built without the opencv tag
func (e *Estimator) EstimateHomography(src, dst []gaze.Sample) ([9]float64, int, error) {
	return [9]float64{}, 0, ErrUnavailable
}
