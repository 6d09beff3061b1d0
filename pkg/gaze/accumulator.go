package gaze

import "gonum.org/v1/gonum/stat"

// Accumulator collects the raw samples seen while one target is shown and
// reduces them to their mean.
type Accumulator struct {
	xs []float64
	ys []float64
}

// NewAccumulator creates an accumulator with room for capacity samples.
func NewAccumulator(capacity int) *Accumulator {
	return &Accumulator{
		xs: make([]float64, 0, capacity),
		ys: make([]float64, 0, capacity),
	}
}

// Start clears the buffer for a new window.
func (a *Accumulator) Start() {
	a.xs = a.xs[:0]
	a.ys = a.ys[:0]
}

// Add appends a sample. The caller decides when the window closes.
func (a *Accumulator) Add(s Sample) {
	a.xs = append(a.xs, s.X)
	a.ys = append(a.ys, s.Y)
}

// Len returns the number of buffered samples.
func (a *Accumulator) Len() int {
	return len(a.xs)
}

// Finish returns the mean of the buffered samples.
// ok is false if nothing was added since Start.
func (a *Accumulator) Finish() (mean Sample, ok bool) {
	if len(a.xs) == 0 {
		return Sample{}, false
	}
	return Sample{X: stat.Mean(a.xs, nil), Y: stat.Mean(a.ys, nil)}, true
}
