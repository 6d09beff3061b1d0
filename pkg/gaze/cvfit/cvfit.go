//go:build opencv

package cvfit

import (
	"fmt"
	"math"

	"github.com/teslashibe/go-gaze/pkg/gaze"
	"gocv.io/x/gocv"
)

// New creates an OpenCV homography estimator
func New(cfg Config) (*Estimator, error) {
	if cfg.Threshold <= 0 || cfg.MaxIters < 1 || cfg.Confidence <= 0 || cfg.Confidence >= 1 {
		return nil, fmt.Errorf("cvfit: invalid config %+v", cfg)
	}
	return &Estimator{cfg: cfg}, nil
}

// EstimateHomography implements gaze.HomographyEstimator
func (e *Estimator) EstimateHomography(src, dst []gaze.Sample) ([9]float64, int, error) {
	if len(src) != len(dst) {
		return [9]float64{}, 0, fmt.Errorf("cvfit: %d source points but %d destination points", len(src), len(dst))
	}
	if len(src) < 4 {
		return [9]float64{}, 0, fmt.Errorf("%w: homography needs 4 points, got %d", gaze.ErrInsufficientCalibrationData, len(src))
	}

	srcMat := pointsMat(src)
	defer srcMat.Close()
	dstMat := pointsMat(dst)
	defer dstMat.Close()

	mask := gocv.NewMat()
	defer mask.Close()

	h := gocv.FindHomography(srcMat, &dstMat, gocv.HomographyMethodRANSAC,
		e.cfg.Threshold, &mask, e.cfg.MaxIters, e.cfg.Confidence)
	defer h.Close()

	if h.Empty() || h.Rows() != 3 || h.Cols() != 3 {
		return [9]float64{}, 0, fmt.Errorf("%w: findHomography found no model", gaze.ErrDegenerateGeometry)
	}

	var out [9]float64
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[r*3+c] = h.GetDoubleAt(r, c)
		}
	}
	if math.Abs(out[8]) > 1e-12 {
		for i := range out {
			out[i] /= out[8]
		}
	}

	inliers := len(src)
	if !mask.Empty() {
		inliers = gocv.CountNonZero(mask)
	}
	return out, inliers, nil
}

// pointsMat packs points into an Nx2 CV_64F matrix
func pointsMat(pts []gaze.Sample) gocv.Mat {
	m := gocv.NewMatWithSize(len(pts), 2, gocv.MatTypeCV64F)
	for i, p := range pts {
		m.SetDoubleAt(i, 0, p.X)
		m.SetDoubleAt(i, 1, p.Y)
	}
	return m
}
