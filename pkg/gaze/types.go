// Package gaze maps raw pupil positions to normalized screen coordinates.
//
// A Session walks the operator through a fixed set of on-screen targets,
// averaging the raw samples seen at each one. A Fitter turns those
// correspondences into a Transform (homography, or affine when only three
// points survive) and a Mapper applies it to live samples with exponential
// smoothing, clamping and left/center/right, up/center/down classification.
//
// All coordinates are normalized to [0,1]; nothing in this package knows
// about pixels, so a fitted transform is resolution independent.
package gaze

import (
	"fmt"
	"math"
)

// Sample is a raw gaze sample: the detected pupil position within the eye
// region, normalized to [0,1] on both axes.
type Sample struct {
	X, Y float64
}

// String formats the sample for logs.
func (s Sample) String() string {
	return fmt.Sprintf("(%.3f, %.3f)", s.X, s.Y)
}

// finite reports whether both coordinates are real numbers.
func (s Sample) finite() bool {
	return !math.IsNaN(s.X) && !math.IsNaN(s.Y) && !math.IsInf(s.X, 0) && !math.IsInf(s.Y, 0)
}

// Target is a calibration point in normalized screen coordinates.
type Target struct {
	X, Y float64
}

// String formats the target for logs.
func (t Target) String() string {
	return fmt.Sprintf("(%.2f, %.2f)", t.X, t.Y)
}

// DefaultTargets returns the nine calibration points in presentation order:
// center, the four corners clockwise from top-left, then the four edge
// midpoints. Corners and edges sit 10% in from the screen border.
func DefaultTargets() []Target {
	return []Target{
		{0.5, 0.5}, // Center
		{0.1, 0.1}, // Top left
		{0.9, 0.1}, // Top right
		{0.9, 0.9}, // Bottom right
		{0.1, 0.9}, // Bottom left
		{0.5, 0.1}, // Top center
		{0.5, 0.9}, // Bottom center
		{0.1, 0.5}, // Left center
		{0.9, 0.5}, // Right center
	}
}

// PointResult is the averaged raw sample collected for one target.
// SampleCount is never zero: targets without samples are dropped.
type PointResult struct {
	Target      Target
	Averaged    Sample
	SampleCount int
}

// Direction is a coarse gaze direction on one axis.
type Direction string

// Directions reported by the mapper.
const (
	DirectionLeft   Direction = "left"
	DirectionRight  Direction = "right"
	DirectionUp     Direction = "up"
	DirectionDown   Direction = "down"
	DirectionCenter Direction = "center"
)

// Observation is the result of mapping one raw sample.
type Observation struct {
	Raw        Sample    // Sample as delivered by the detector
	Smoothed   Sample    // Exponentially smoothed raw position
	ScreenX    float64   // Calibrated screen position, clamped to [0,1]
	ScreenY    float64   //
	Horizontal Direction // left / center / right
	Vertical   Direction // up / center / down
	Calibrated bool      // A transform was installed
	Degenerate bool      // Transform failed for this frame; screen = smoothed
}

// classify buckets a coordinate against the low/high thresholds.
func classify(v, low, high float64, below, above Direction) Direction {
	switch {
	case v < low:
		return below
	case v > high:
		return above
	default:
		return DirectionCenter
	}
}

// clamp limits a value to a range
func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
