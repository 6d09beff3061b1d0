package pupil

import (
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-gaze/pkg/gaze"
)

// Synthetic is a mock detector for tests and demos.
// It ignores frames and reports the raw pupil position a viewer looking at
// a settable screen point would produce, given a simple distortion model.
type Synthetic struct {
	mu sync.Mutex

	lookX, lookY float64 // Screen point the simulated viewer looks at

	// Distortion: raw = center + (screen - center)*scale + offset
	scale          float64
	offsetX        float64
	offsetY        float64
	jitter         float64 // Uniform noise amplitude
	dropout        float64 // Probability of a missed detection (0-1)
	rng            *rand.Rand
	blind          bool // Report nothing at all
	closed         atomic.Bool
	detectCalls    atomic.Int64
	detectionsMade atomic.Int64
}

// SyntheticOption configures a Synthetic detector.
type SyntheticOption func(*Synthetic)

// WithScale scales raw positions around the center. 0.9 simulates a
// viewer whose pupils undershoot by 10%.
func WithScale(scale float64) SyntheticOption {
	return func(s *Synthetic) {
		s.scale = scale
	}
}

// WithOffset shifts raw positions.
func WithOffset(dx, dy float64) SyntheticOption {
	return func(s *Synthetic) {
		s.offsetX = dx
		s.offsetY = dy
	}
}

// WithJitter adds uniform noise in [-amplitude, +amplitude] on each axis.
func WithJitter(amplitude float64) SyntheticOption {
	return func(s *Synthetic) {
		s.jitter = amplitude
	}
}

// WithDropout drops detections with the given probability.
func WithDropout(p float64) SyntheticOption {
	return func(s *Synthetic) {
		s.dropout = p
	}
}

// WithSeed makes jitter and dropouts reproducible.
func WithSeed(seed uint64) SyntheticOption {
	return func(s *Synthetic) {
		s.rng = rand.New(rand.NewPCG(seed, seed+1))
	}
}

// NewSynthetic creates a synthetic detector looking at the screen center.
func NewSynthetic(opts ...SyntheticOption) *Synthetic {
	s := &Synthetic{
		lookX: 0.5,
		lookY: 0.5,
		scale: 1.0,
		rng:   rand.New(rand.NewPCG(1, 2)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LookAt points the simulated viewer at a screen position.
func (s *Synthetic) LookAt(x, y float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookX, s.lookY = x, y
}

// SetBlind makes every Detect report no detection.
func (s *Synthetic) SetBlind(blind bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blind = blind
}

// RawFor returns the noise-free raw sample for a screen position.
func (s *Synthetic) RawFor(x, y float64) gaze.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rawFor(x, y)
}

func (s *Synthetic) rawFor(x, y float64) gaze.Sample {
	return gaze.Sample{
		X: 0.5 + (x-0.5)*s.scale + s.offsetX,
		Y: 0.5 + (y-0.5)*s.scale + s.offsetY,
	}
}

// Detect implements Detector.
func (s *Synthetic) Detect(frame []byte) (Detection, bool, error) {
	s.detectCalls.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.blind || (s.dropout > 0 && s.rng.Float64() < s.dropout) {
		return Detection{}, false, nil
	}

	raw := s.rawFor(s.lookX, s.lookY)
	if s.jitter > 0 {
		raw.X += (s.rng.Float64()*2 - 1) * s.jitter
		raw.Y += (s.rng.Float64()*2 - 1) * s.jitter
	}

	s.detectionsMade.Add(1)
	return Detection{
		Sample:       raw,
		LeftEyeOpen:  true,
		RightEyeOpen: true,
		FaceX:        0.5,
		FaceY:        0.5,
		Confidence:   ConfidenceFor(2),
	}, true, nil
}

// Close implements Detector.
func (s *Synthetic) Close() error {
	s.closed.Store(true)
	return nil
}

// Closed reports whether Close was called.
func (s *Synthetic) Closed() bool {
	return s.closed.Load()
}

// Stats returns Detect calls and successful detections.
func (s *Synthetic) Stats() (calls, detections int64) {
	return s.detectCalls.Load(), s.detectionsMade.Load()
}
