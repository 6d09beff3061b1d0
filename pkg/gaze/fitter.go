package gaze

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Fitter turns calibration correspondences into a Transform.
type Fitter struct {
	estimator HomographyEstimator
	logger    *slog.Logger
}

// FitterOption configures a Fitter.
type FitterOption func(*Fitter)

// WithEstimator replaces the built-in RANSAC homography estimator.
func WithEstimator(e HomographyEstimator) FitterOption {
	return func(f *Fitter) {
		f.estimator = e
	}
}

// WithFitterLogger sets the logger used for fit diagnostics.
func WithFitterLogger(logger *slog.Logger) FitterOption {
	return func(f *Fitter) {
		f.logger = logger
	}
}

// NewFitter creates a fitter using the fitting parameters in cfg.
func NewFitter(cfg Config, opts ...FitterOption) *Fitter {
	f := &Fitter{
		estimator: NewRansac(cfg),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	return f
}

// Fit produces a transform from averaged raw samples to their targets.
//
// Points with no samples or non-finite coordinates are ignored. Three usable
// points give an exact affine map; four or more give a homography. Fewer
// than three return ErrInsufficientCalibrationData. Order does not matter
// and duplicate targets are treated as independent correspondences.
func (f *Fitter) Fit(points []PointResult) (*Transform, error) {
	src := make([]Sample, 0, len(points))
	dst := make([]Sample, 0, len(points))
	for _, p := range points {
		target := Sample{X: p.Target.X, Y: p.Target.Y}
		if p.SampleCount <= 0 || !p.Averaged.finite() || !target.finite() {
			continue
		}
		src = append(src, p.Averaged)
		dst = append(dst, target)
	}

	var (
		t   *Transform
		err error
	)
	switch n := len(src); {
	case n < 3:
		return nil, fmt.Errorf("%w: %d usable points, need at least 3", ErrInsufficientCalibrationData, n)
	case n == 3:
		var m [6]float64
		m, err = solveAffine(src, dst)
		if err != nil {
			return nil, err
		}
		t = NewAffine(m)
		t.Inliers = n
	default:
		var (
			h       [9]float64
			inliers int
		)
		h, inliers, err = f.estimator.EstimateHomography(src, dst)
		if err != nil {
			return nil, fmt.Errorf("gaze: fit homography: %w", err)
		}
		t = NewHomography(h)
		t.Inliers = inliers
	}

	t.Correspondences = len(src)
	t.RMSE = reprojectionRMSE(t, src, dst)

	f.logger.Info("calibration fitted",
		"kind", t.Kind().String(),
		"points", t.Correspondences,
		"inliers", t.Inliers,
		"rmse", t.RMSE,
	)
	return t, nil
}

// solveAffine solves the 2x3 affine map taking src to dst: exactly for three
// correspondences, in the least-squares sense for more.
func solveAffine(src, dst []Sample) ([6]float64, error) {
	if collinear(src) {
		return [6]float64{}, fmt.Errorf("%w: raw points are collinear", ErrDegenerateGeometry)
	}

	n := len(src)
	a := mat.NewDense(n, 3, nil)
	b := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		a.SetRow(i, []float64{src[i].X, src[i].Y, 1})
		b.SetRow(i, []float64{dst[i].X, dst[i].Y})
	}

	var x mat.Dense
	if err := x.Solve(a, b); err != nil {
		return [6]float64{}, fmt.Errorf("%w: %v", ErrDegenerateGeometry, err)
	}

	// Column 0 holds the x' row, column 1 the y' row.
	return [6]float64{
		x.At(0, 0), x.At(1, 0), x.At(2, 0),
		x.At(0, 1), x.At(1, 1), x.At(2, 1),
	}, nil
}

// reprojectionRMSE is the root mean square distance between mapped raw
// points and their targets. Points that fail to map count as the diagonal
// of the unit square.
func reprojectionRMSE(t *Transform, src, dst []Sample) float64 {
	if len(src) == 0 {
		return 0
	}
	sum := 0.0
	for i := range src {
		p, err := t.Apply(src[i])
		if err != nil {
			sum += 2
			continue
		}
		dx, dy := p.X-dst[i].X, p.Y-dst[i].Y
		sum += dx*dx + dy*dy
	}
	return math.Sqrt(sum / float64(len(src)))
}
