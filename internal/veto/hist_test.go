package veto

import (
	"math"
	"testing"
)

func TestHist1DFill(t *testing.T) {
	h := NewHist1D(10, 0, 10)

	h.Fill(0.5)
	h.Fill(0.7)
	h.Fill(9.9)
	h.Fill(-1)   // underflow, dropped
	h.Fill(10.0) // overflow, dropped

	if h.Entries() != 3 {
		t.Errorf("expected 3 entries, got %d", h.Entries())
	}
	if h.Count(0) != 2 {
		t.Errorf("expected bin 0 count 2, got %v", h.Count(0))
	}
	if h.Count(9) != 1 {
		t.Errorf("expected bin 9 count 1, got %v", h.Count(9))
	}
	if h.Count(-1) != 0 || h.Count(10) != 0 {
		t.Error("out-of-range bins must report 0")
	}
}

func TestHist1DBinCenter(t *testing.T) {
	h := NewHist1D(500, 0, 500)
	if got := h.BinCenter(40); got != 40.5 {
		t.Errorf("expected bin 40 center 40.5, got %v", got)
	}
}

func TestHist1DMaxBin(t *testing.T) {
	h := NewHist1D(10, 0, 10)
	h.Fill(2.5)
	h.Fill(2.5)
	h.Fill(7.5)

	if got := h.MaxBin(0, 9); got != 2 {
		t.Errorf("global max bin: expected 2, got %d", got)
	}
	if got := h.MaxBin(5, 9); got != 7 {
		t.Errorf("windowed max bin: expected 7, got %d", got)
	}
	// Window bounds are clamped into range.
	if got := h.MaxBin(-5, 100); got != 2 {
		t.Errorf("clamped max bin: expected 2, got %d", got)
	}
}

func TestHist1DFirstBinAbove(t *testing.T) {
	h := NewHist1D(10, 0, 10)
	if got := h.FirstBinAbove(0); got != -1 {
		t.Errorf("empty histogram: expected -1, got %d", got)
	}

	h.Fill(3.5)
	h.Fill(3.5)
	if got := h.FirstBinAbove(1); got != 3 {
		t.Errorf("expected bin 3, got %d", got)
	}
	if got := h.FirstBinAbove(2); got != -1 {
		t.Errorf("threshold above all counts: expected -1, got %d", got)
	}
}

func TestHist1DWindowStats(t *testing.T) {
	h := NewHist1D(100, 0, 100)
	// Two entries at 10.5, one at 12.5: weighted mean 11.166...
	h.Fill(10.2)
	h.Fill(10.4)
	h.Fill(12.1)

	mean, rms := h.WindowStats(0, 99)
	want := (2*10.5 + 12.5) / 3
	if math.Abs(mean-want) > 1e-9 {
		t.Errorf("expected mean %v, got %v", want, mean)
	}
	if rms <= 0 {
		t.Errorf("expected positive rms, got %v", rms)
	}

	// A window with no entries yields zeros.
	mean, rms = h.WindowStats(50, 60)
	if mean != 0 || rms != 0 {
		t.Errorf("empty window: expected 0,0 got %v,%v", mean, rms)
	}
}
