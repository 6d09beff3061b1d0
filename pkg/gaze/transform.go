package gaze

import (
	"fmt"
	"math"
)

// Kind tags which model a Transform uses. The application step differs:
// a homography needs a perspective divide, an affine map does not.
type Kind int

const (
	Homography Kind = iota // 3x3 projective, 8 DOF
	Affine                 // 2x3 linear, 6 DOF
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case Homography:
		return "homography"
	case Affine:
		return "affine"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// minDivisor is the smallest homogeneous w accepted before a point is
// considered to project to infinity.
const minDivisor = 1e-9

// Transform maps raw normalized gaze coordinates to normalized screen
// coordinates. It is immutable once created.
type Transform struct {
	kind Kind
	m    [9]float64 // row-major; affine keeps [0 0 1] in the last row

	// Fit diagnostics
	Correspondences int     // Points the fit was given
	Inliers         int     // Points inside the robust estimator's threshold
	RMSE            float64 // RMS reprojection error over all points (normalized units)
}

// NewHomography wraps a row-major 3x3 matrix.
func NewHomography(m [9]float64) *Transform {
	return &Transform{kind: Homography, m: m}
}

// NewAffine wraps a row-major 2x3 matrix.
func NewAffine(m [6]float64) *Transform {
	return &Transform{
		kind: Affine,
		m:    [9]float64{m[0], m[1], m[2], m[3], m[4], m[5], 0, 0, 1},
	}
}

// Identity returns a homography that maps every point to itself.
func Identity() *Transform {
	return NewHomography([9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
}

// Kind returns the model used.
func (t *Transform) Kind() Kind {
	return t.kind
}

// Matrix returns a copy of the row-major 3x3 matrix.
func (t *Transform) Matrix() [9]float64 {
	return t.m
}

// Affine2x3 returns the top two rows. Only meaningful for affine transforms.
func (t *Transform) Affine2x3() [6]float64 {
	return [6]float64{t.m[0], t.m[1], t.m[2], t.m[3], t.m[4], t.m[5]}
}

// Apply maps a raw sample. The result is not clamped.
// Returns ErrNumericalDegeneracy if the point cannot be mapped.
func (t *Transform) Apply(s Sample) (Sample, error) {
	m := &t.m
	x := m[0]*s.X + m[1]*s.Y + m[2]
	y := m[3]*s.X + m[4]*s.Y + m[5]

	if t.kind == Homography {
		w := m[6]*s.X + m[7]*s.Y + m[8]
		if math.Abs(w) < minDivisor || math.IsNaN(w) {
			return Sample{}, fmt.Errorf("%w: perspective divisor %g at %v", ErrNumericalDegeneracy, w, s)
		}
		x /= w
		y /= w
	}

	out := Sample{X: x, Y: y}
	if !out.finite() {
		return Sample{}, fmt.Errorf("%w: non-finite result at %v", ErrNumericalDegeneracy, s)
	}
	return out, nil
}

// String formats the transform for logs.
func (t *Transform) String() string {
	m := t.m
	if t.kind == Affine {
		return fmt.Sprintf("affine[%.4f %.4f %.4f; %.4f %.4f %.4f]",
			m[0], m[1], m[2], m[3], m[4], m[5])
	}
	return fmt.Sprintf("homography[%.4f %.4f %.4f; %.4f %.4f %.4f; %.4f %.4f %.4f]",
		m[0], m[1], m[2], m[3], m[4], m[5], m[6], m[7], m[8])
}
