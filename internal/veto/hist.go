package veto

import "gonum.org/v1/gonum/stat"

// Hist1D is a fixed-range, uniform-bin counting histogram. It covers the
// operations the calibration and LED stages need: filling, locating the modal
// bin, finding the pedestal onset, and weighted moments over a bin window.
// Underflow and overflow entries are dropped.
type Hist1D struct {
	lo, hi  float64
	width   float64
	counts  []float64
	entries int
}

// NewHist1D creates a histogram with uniform bins spanning [lo, hi).
func NewHist1D(bins int, lo, hi float64) *Hist1D {
	return &Hist1D{
		lo:     lo,
		hi:     hi,
		width:  (hi - lo) / float64(bins),
		counts: make([]float64, bins),
	}
}

// Fill adds one entry at x. Values outside [lo, hi) are ignored.
func (h *Hist1D) Fill(x float64) {
	if x < h.lo || x >= h.hi {
		return
	}
	h.counts[int((x-h.lo)/h.width)]++
	h.entries++
}

// Entries returns the number of in-range fills.
func (h *Hist1D) Entries() int { return h.entries }

// Bins returns the number of bins.
func (h *Hist1D) Bins() int { return len(h.counts) }

// Count returns the content of bin i, or 0 for an out-of-range index.
func (h *Hist1D) Count(i int) float64 {
	if i < 0 || i >= len(h.counts) {
		return 0
	}
	return h.counts[i]
}

// BinCenter returns the center x value of bin i.
func (h *Hist1D) BinCenter(i int) float64 {
	return h.lo + (float64(i)+0.5)*h.width
}

// MaxBin returns the index of the highest-count bin, restricted to
// [lo, hi] when the bounds are within range. Ties resolve to the lowest bin.
func (h *Hist1D) MaxBin(lo, hi int) int {
	if lo < 0 {
		lo = 0
	}
	if hi >= len(h.counts) || hi < 0 {
		hi = len(h.counts) - 1
	}
	best := lo
	for i := lo; i <= hi; i++ {
		if h.counts[i] > h.counts[best] {
			best = i
		}
	}
	return best
}

// FirstBinAbove returns the index of the first bin with content strictly
// greater than threshold, or -1 if no bin qualifies.
func (h *Hist1D) FirstBinAbove(threshold float64) int {
	for i, c := range h.counts {
		if c > threshold {
			return i
		}
	}
	return -1
}

// WindowStats returns the count-weighted mean and population RMS of the bin
// centers over bins [lo, hi]. Both are 0 when the window is empty.
func (h *Hist1D) WindowStats(lo, hi int) (mean, rms float64) {
	if lo < 0 {
		lo = 0
	}
	if hi >= len(h.counts) {
		hi = len(h.counts) - 1
	}
	if hi < lo {
		return 0, 0
	}
	centers := make([]float64, 0, hi-lo+1)
	weights := make([]float64, 0, hi-lo+1)
	total := 0.0
	for i := lo; i <= hi; i++ {
		if h.counts[i] == 0 {
			continue
		}
		centers = append(centers, h.BinCenter(i))
		weights = append(weights, h.counts[i])
		total += h.counts[i]
	}
	if total == 0 {
		return 0, 0
	}
	mean = stat.Mean(centers, weights)
	rms = stat.PopStdDev(centers, weights)
	return mean, rms
}
