package aggregator

import "math"

const (
	// DefaultWindowSize is the number of samples averaged per channel
	DefaultWindowSize = 10
	// MaxWindowSize bounds the fixed backing array
	MaxWindowSize = 16
)

// Window is a moving average over the last size samples.
// Storage is a fixed array; count is the logical fill level.
type Window struct {
	values [MaxWindowSize]int64
	size   int
	next   int
	count  int
	sum    int64
}

// NewWindow clamps size to [1, MaxWindowSize]
func NewWindow(size int) Window {
	if size < 1 {
		size = 1
	}
	if size > MaxWindowSize {
		size = MaxWindowSize
	}
	return Window{size: size}
}

// Reading adds v and returns the rounded mean of the held samples.
// Before the window fills the mean covers only the samples seen so far.
func (w *Window) Reading(v int64) int64 {
	if w.size == 0 {
		*w = NewWindow(DefaultWindowSize)
	}
	if w.count == w.size {
		w.sum -= w.values[w.next]
	} else {
		w.count++
	}
	w.values[w.next] = v
	w.sum += v
	w.next = (w.next + 1) % w.size

	return w.Mean()
}

// Mean returns the current rounded average, or 0 for an empty window
func (w *Window) Mean() int64 {
	if w.count == 0 {
		return 0
	}
	return int64(math.Round(float64(w.sum) / float64(w.count)))
}

// Reset discards all history
func (w *Window) Reset() {
	w.values = [MaxWindowSize]int64{}
	w.next = 0
	w.count = 0
	w.sum = 0
}

func (w *Window) Len() int {
	return w.count
}

func (w *Window) Size() int {
	return w.size
}
