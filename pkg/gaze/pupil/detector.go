// Package pupil defines the boundary between the gaze engine and whatever
// finds pupils in camera frames.
package pupil

import "github.com/teslashibe/go-gaze/pkg/gaze"

// Detection is a pupil position found in one frame
type Detection struct {
	Sample gaze.Sample // Pupil position within the eye region (0-1 normalized)

	LeftEyeOpen  bool    // Left eye was found
	RightEyeOpen bool    // Right eye was found
	FaceX, FaceY float64 // Face center in the frame (0-1 normalized)
	Confidence   float64 // Detection confidence (0-1)
}

// Eyes returns how many eyes contributed to the detection
func (d Detection) Eyes() int {
	n := 0
	if d.LeftEyeOpen {
		n++
	}
	if d.RightEyeOpen {
		n++
	}
	return n
}

// Detector is the interface for pupil detection backends
type Detector interface {
	// Detect finds the pupil in an encoded frame.
	// found is false when no face or eye was visible.
	Detect(frame []byte) (d Detection, found bool, err error)

	// Close releases resources
	Close() error
}

// ConfidenceFor returns the confidence reported for a number of visible
// eyes: 1.0 with both, 0.5 with one, 0 otherwise.
func ConfidenceFor(eyes int) float64 {
	switch {
	case eyes >= 2:
		return 1.0
	case eyes == 1:
		return 0.5
	default:
		return 0
	}
}

// SelectBest picks the best detection when a backend reports several
// (e.g. more than one face). Priority: confidence, then visible eyes,
// then the face closest to the frame center.
func SelectBest(dets []Detection) *Detection {
	if len(dets) == 0 {
		return nil
	}

	if len(dets) == 1 {
		return &dets[0]
	}

	best := &dets[0]
	for i := 1; i < len(dets); i++ {
		d := &dets[i]
		switch {
		case d.Confidence > best.Confidence:
			best = d
		case d.Confidence < best.Confidence:
		case d.Eyes() > best.Eyes():
			best = d
		case d.Eyes() == best.Eyes() && centerDist(d) < centerDist(best):
			best = d
		}
	}

	return best
}

func centerDist(d *Detection) float64 {
	dx, dy := d.FaceX-0.5, d.FaceY-0.5
	return dx*dx + dy*dy
}
