package veto

import (
	"fmt"

	"github.com/veto-data/autoveto/internal/monitoring"
)

// ThresholdTable maps channel index to the software QDC threshold. A channel
// counts as hit when its QDC strictly exceeds the threshold. Built once per
// run and immutable afterwards.
type ThresholdTable [NumChannels]int

// AllPassThresholds returns the permissive table used during calibration
// itself: every channel thresholded at 1, so every entry has multiplicity 32.
func AllPassThresholds() ThresholdTable {
	var t ThresholdTable
	for i := range t {
		t[i] = 1
	}
	return t
}

// Calibration tunables.
const (
	// DefaultThresholdMargin is how many QDC counts above the pedestal
	// center the software threshold is placed.
	DefaultThresholdMargin = 35

	// pedestal search window around the first populated bin, in bins
	pedestalSearchBelow = 10
	pedestalSearchAbove = 50
)

// ThresholdFinder accumulates per-channel QDC spectra over one pass with
// all-pass thresholds and derives the per-channel software thresholds from
// the pedestal location in each low-range spectrum. The wide-range spectra
// and the multiplicity histogram are diagnostics for the QA plots.
type ThresholdFinder struct {
	Margin int // QDC counts above the pedestal center; DefaultThresholdMargin if 0

	LowQDC  [NumChannels]*Hist1D // 500 bins over [0,500)
	FullQDC [NumChannels]*Hist1D // 420 bins over [0,4200), diagnostics only
	Multip  *Hist1D              // filled during the threshold re-scan

	Skipped int64 // events excluded by the error classifier
}

// NewThresholdFinder creates a finder with empty spectra.
func NewThresholdFinder(margin int) *ThresholdFinder {
	if margin <= 0 {
		margin = DefaultThresholdMargin
	}
	tf := &ThresholdFinder{Margin: margin}
	for i := 0; i < NumChannels; i++ {
		tf.LowQDC[i] = NewHist1D(500, 0, 500)
		tf.FullQDC[i] = NewHist1D(420, 0, 4200)
	}
	tf.Multip = NewHist1D(NumChannels, 0, NumChannels)
	return tf
}

// Fill adds one non-skipped event's charges to the per-channel spectra.
func (tf *ThresholdFinder) Fill(ev *Event) {
	for q := 0; q < NumChannels; q++ {
		tf.LowQDC[q].Fill(float64(ev.QDC[q]))
		tf.FullQDC[q].Fill(float64(ev.QDC[q]))
	}
}

// FillMultiplicity records one event's multiplicity during the re-scan with
// the derived thresholds in place.
func (tf *ThresholdFinder) FillMultiplicity(ev *Event) {
	tf.Multip.Fill(float64(ev.Multip))
}

// Thresholds derives the threshold table from the accumulated spectra.
// Channels whose pedestal cannot be located get BadThreshold and a
// diagnostic; for runs after the crate reshuffle, channels above 23 are not
// connected and get BadThreshold outright.
func (tf *ThresholdFinder) Thresholds(run int) ThresholdTable {
	var table ThresholdTable
	for i := 0; i < NumChannels; i++ {
		table[i] = tf.channelThreshold(i, run)
	}
	return table
}

func (tf *ThresholdFinder) channelThreshold(channel, run int) int {
	if run > PanelRewireRun && channel > 23 {
		return BadThreshold
	}
	h := tf.LowQDC[channel]
	onset := h.FirstBinAbove(1)
	if onset == -1 {
		monitoring.Logf("threshold search failed for channel %d: no populated QDC bins", channel)
		return BadThreshold
	}
	// The pedestal is the modal bin near the onset; searching the whole
	// range would lock onto real signal in a hot channel.
	mode := h.MaxBin(onset-pedestalSearchBelow, onset+pedestalSearchAbove)
	return int(h.BinCenter(mode)) + tf.Margin
}

// ParseThresholdList converts an externally supplied flat (channel,
// threshold) pair list into a table. All 32 channels must be covered
// exactly once.
func ParseThresholdList(pairs []int) (ThresholdTable, error) {
	var table ThresholdTable
	if len(pairs) != 2*NumChannels {
		return table, fmt.Errorf("threshold list has %d values, want %d", len(pairs), 2*NumChannels)
	}
	covered := make(map[int]bool, NumChannels)
	for i := 0; i < len(pairs); i += 2 {
		ch, thresh := pairs[i], pairs[i+1]
		if ch < 0 || ch >= NumChannels {
			return table, fmt.Errorf("threshold list names channel %d", ch)
		}
		if covered[ch] {
			return table, fmt.Errorf("threshold list repeats channel %d", ch)
		}
		covered[ch] = true
		table[ch] = thresh
	}
	return table, nil
}
