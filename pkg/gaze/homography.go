package gaze

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/combin"
)

// HomographyEstimator fits a row-major 3x3 homography mapping src[i] to
// dst[i]. Implementations may reject outliers; inliers reports how many
// correspondences the final model was fitted on.
type HomographyEstimator interface {
	EstimateHomography(src, dst []Sample) (h [9]float64, inliers int, err error)
}

// Ransac is the built-in robust homography estimator: normalized DLT on
// 4-point minimal samples, consensus scoring by reprojection error, then a
// least-squares DLT refit over the best consensus set.
type Ransac struct {
	Threshold  float64 // Inlier reprojection threshold (normalized units)
	Iterations int     // Minimal samples to try
	Seed       uint64  // Seed for random minimal samples
}

// NewRansac creates an estimator from the fitting section of cfg.
func NewRansac(cfg Config) Ransac {
	return Ransac{
		Threshold:  cfg.RansacThreshold,
		Iterations: cfg.RansacIterations,
		Seed:       cfg.RansacSeed,
	}
}

// EstimateHomography implements HomographyEstimator.
func (r Ransac) EstimateHomography(src, dst []Sample) ([9]float64, int, error) {
	n := len(src)
	if n != len(dst) {
		return [9]float64{}, 0, fmt.Errorf("gaze: %d source points but %d destination points", n, len(dst))
	}
	if n < 4 {
		return [9]float64{}, 0, fmt.Errorf("%w: homography needs 4 points, got %d", ErrInsufficientCalibrationData, n)
	}
	if n == 4 {
		h, err := fitHomography(src, dst)
		if err != nil {
			return [9]float64{}, 0, err
		}
		return h, n, nil
	}

	var (
		best    []int
		bestErr = math.Inf(1)
		ms      = make([]Sample, 4)
		md      = make([]Sample, 4)
	)
	try := func(idx []int) bool {
		for i, j := range idx {
			ms[i], md[i] = src[j], dst[j]
		}
		if hasCollinearTriple(ms) || hasCollinearTriple(md) {
			return false
		}
		h, err := dlt(ms, md)
		if err != nil {
			return false
		}
		inliers, sumErr := consensus(h, src, dst, r.Threshold)
		if len(inliers) > len(best) || (len(inliers) == len(best) && sumErr < bestErr) {
			best, bestErr = inliers, sumErr
		}
		return len(best) == n
	}

	// Small calibration sets are enumerated exhaustively, which also makes
	// the result independent of the seed.
	if combin.Binomial(n, 4) <= r.Iterations {
		for _, idx := range combin.Combinations(n, 4) {
			if try(idx) {
				break
			}
		}
	} else {
		rng := rand.New(rand.NewPCG(r.Seed, r.Seed^0x9e3779b97f4a7c15))
		idx := make([]int, 4)
		for it := 0; it < r.Iterations; it++ {
			sampleDistinct(rng, n, idx)
			if try(idx) {
				break
			}
		}
	}

	subSrc, subDst := src, dst
	if len(best) >= 4 {
		subSrc = make([]Sample, len(best))
		subDst = make([]Sample, len(best))
		for i, j := range best {
			subSrc[i], subDst[i] = src[j], dst[j]
		}
	}
	h, err := fitHomography(subSrc, subDst)
	if err != nil {
		return [9]float64{}, 0, err
	}
	return h, len(subSrc), nil
}

// fitHomography runs the normalized DLT. When the correspondences do not
// pin down a unique homography (three of four points on a line, say) but
// still span the plane, it falls back to the least-squares affine map with
// last row [0 0 1].
func fitHomography(src, dst []Sample) ([9]float64, error) {
	h, err := dlt(src, dst)
	if err == nil || !errors.Is(err, ErrDegenerateGeometry) {
		return h, err
	}
	if collinear(src) || collinear(dst) {
		return [9]float64{}, err
	}
	m, affErr := solveAffine(src, dst)
	if affErr != nil {
		return [9]float64{}, err
	}
	return [9]float64{m[0], m[1], m[2], m[3], m[4], m[5], 0, 0, 1}, nil
}

// collinear reports whether all of pts lie (nearly) on one line.
func collinear(pts []Sample) bool {
	if len(pts) < 3 {
		return true
	}
	// Measure against the point farthest from pts[0] so the baseline is long.
	far, dist := 0, 0.0
	for i, p := range pts {
		if d := math.Hypot(p.X-pts[0].X, p.Y-pts[0].Y); d > dist {
			far, dist = i, d
		}
	}
	if dist < 1e-12 {
		return true
	}
	for _, p := range pts {
		if math.Abs(cross(pts[0], pts[far], p))/dist > 1e-9 {
			return false
		}
	}
	return true
}

// consensus returns the indices whose reprojection error is within thr and
// the sum of their squared errors.
func consensus(h [9]float64, src, dst []Sample, thr float64) ([]int, float64) {
	t := NewHomography(h)
	var inliers []int
	sum := 0.0
	for i := range src {
		p, err := t.Apply(src[i])
		if err != nil {
			continue
		}
		d := math.Hypot(p.X-dst[i].X, p.Y-dst[i].Y)
		if d <= thr {
			inliers = append(inliers, i)
			sum += d * d
		}
	}
	return inliers, sum
}

// sampleDistinct fills idx with distinct indices in [0,n).
func sampleDistinct(rng *rand.Rand, n int, idx []int) {
	for i := 0; i < len(idx); {
		v := rng.IntN(n)
		if !slices.Contains(idx[:i], v) {
			idx[i] = v
			i++
		}
	}
}

// hasCollinearTriple reports whether any three of pts are (nearly) collinear.
func hasCollinearTriple(pts []Sample) bool {
	for i := 0; i < len(pts); i++ {
		for j := i + 1; j < len(pts); j++ {
			for k := j + 1; k < len(pts); k++ {
				if math.Abs(cross(pts[i], pts[j], pts[k])) < 1e-9 {
					return true
				}
			}
		}
	}
	return false
}

// cross is twice the signed area of triangle abc.
func cross(a, b, c Sample) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

// hartley translates pts to their centroid and scales them so the mean
// distance from it is sqrt(2). Returns the normalized points and the
// similarity parameters (scale, cx, cy).
func hartley(pts []Sample) ([]Sample, float64, float64, float64, bool) {
	cx, cy := 0.0, 0.0
	for _, p := range pts {
		cx += p.X
		cy += p.Y
	}
	n := float64(len(pts))
	cx /= n
	cy /= n

	mean := 0.0
	for _, p := range pts {
		mean += math.Hypot(p.X-cx, p.Y-cy)
	}
	mean /= n
	if mean < 1e-12 {
		return nil, 0, 0, 0, false
	}

	s := math.Sqrt2 / mean
	out := make([]Sample, len(pts))
	for i, p := range pts {
		out[i] = Sample{X: s * (p.X - cx), Y: s * (p.Y - cy)}
	}
	return out, s, cx, cy, true
}

// dlt solves for the homography mapping src to dst with the normalized
// direct linear transform. With more than 4 points the result minimises the
// algebraic error in the least-squares sense.
func dlt(src, dst []Sample) ([9]float64, error) {
	ns, ss, sx, sy, ok := hartley(src)
	if !ok {
		return [9]float64{}, fmt.Errorf("%w: coincident raw points", ErrDegenerateGeometry)
	}
	nd, sd, dx, dy, ok := hartley(dst)
	if !ok {
		return [9]float64{}, fmt.Errorf("%w: coincident target points", ErrDegenerateGeometry)
	}

	n := len(ns)
	a := mat.NewDense(2*n, 9, nil)
	for i := 0; i < n; i++ {
		X, Y := ns[i].X, ns[i].Y
		x, y := nd[i].X, nd[i].Y
		a.SetRow(2*i, []float64{-X, -Y, -1, 0, 0, 0, x * X, x * Y, x})
		a.SetRow(2*i+1, []float64{0, 0, 0, -X, -Y, -1, y * X, y * Y, y})
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFullV) {
		return [9]float64{}, fmt.Errorf("%w: SVD did not converge", ErrDegenerateGeometry)
	}
	values := svd.Values(nil)
	// A unique solution needs rank 8.
	if len(values) < 8 || values[7] <= values[0]*1e-10 {
		return [9]float64{}, fmt.Errorf("%w: rank-deficient correspondences", ErrDegenerateGeometry)
	}

	var v mat.Dense
	svd.VTo(&v)
	hn := mat.NewDense(3, 3, nil)
	for i := 0; i < 9; i++ {
		hn.Set(i/3, i%3, v.At(i, 8))
	}

	// H = Td^-1 * Hn * Ts
	ts := mat.NewDense(3, 3, []float64{ss, 0, -ss * sx, 0, ss, -ss * sy, 0, 0, 1})
	tdInv := mat.NewDense(3, 3, []float64{1 / sd, 0, dx, 0, 1 / sd, dy, 0, 0, 1})
	var h mat.Dense
	h.Product(tdInv, hn, ts)

	if math.Abs(mat.Det(&h)) < 1e-12 {
		return [9]float64{}, fmt.Errorf("%w: singular homography", ErrDegenerateGeometry)
	}

	scale := h.At(2, 2)
	if math.Abs(scale) < minDivisor {
		scale = mat.Norm(&h, 2)
	}
	var out [9]float64
	for i := 0; i < 9; i++ {
		out[i] = h.At(i/3, i%3) / scale
	}
	return out, nil
}
