package veto

import (
	"errors"
	"fmt"
	"math"
)

// forcedSyncRelease is the scaler-minus-SBC difference, in seconds, below
// which a latched forced-sync correction is dropped. The SBC is accurate to
// microseconds, so 1 ms means the clocks have genuinely re-converged.
const forcedSyncRelease = 0.001

// ErrHistoryMismatch reports inconsistent parallel histories passed to the
// interpolation fallback.
var ErrHistoryMismatch = errors.New("time history arrays have mismatched lengths")

// TimeHistory records, per entry, the best time estimate known so far and
// whether that entry's scaler was corrupted. Pass A fills it with provisional
// estimates; pass B replaces them with corrected times. The interpolation
// fallback reads it to bridge bad-scaler gaps.
type TimeHistory struct {
	Times     []float64
	Entries   []int64
	BadScaler []bool
}

// Append records one entry's provisional estimate.
func (h *TimeHistory) Append(entry int64, t float64, badScaler bool) {
	h.Times = append(h.Times, t)
	h.Entries = append(h.Entries, entry)
	h.BadScaler = append(h.BadScaler, badScaler)
}

// Update replaces the stored estimate for an entry with a corrected one.
func (h *TimeHistory) Update(entry int64, t float64) {
	if entry >= 0 && int(entry) < len(h.Times) {
		h.Times[entry] = t
	}
}

// InterpTime estimates the timestamp of an entry whose scaler is corrupted as
// the midpoint of the nearest valid-scaler timestamps before and after it.
// For an entry with a clean scaler it returns the recorded time unchanged.
func InterpTime(entry int64, h *TimeHistory) (float64, error) {
	if len(h.Times) != len(h.Entries) || len(h.Times) != len(h.BadScaler) {
		return 0, ErrHistoryMismatch
	}
	if entry < 0 || int(entry) >= len(h.Times) {
		return 0, fmt.Errorf("entry %d outside recorded history of %d entries", entry, len(h.Times))
	}
	if !h.BadScaler[entry] {
		return h.Times[entry], nil
	}
	var lower, upper float64
	for i := entry; i < int64(len(h.Times)); i++ {
		if !h.BadScaler[i] {
			upper = h.Times[i]
			break
		}
	}
	for j := entry; j > 0; j-- {
		if !h.BadScaler[j] {
			lower = h.Times[j]
			break
		}
	}
	return (upper + lower) / 2, nil
}

// Synchronizer produces the per-event corrected timestamp and tracks the
// running scaler-vs-SBC difference used to recover from clock desyncs.
//
// Correction ladder: a clean scaler reading is used directly; a corrupted
// one falls back to SBC minus the run's SBC offset when the SBC is usable,
// and to interpolation otherwise. Once a desync is flagged the synchronizer
// latches forced-sync mode, subtracting the last observed scaler-minus-SBC
// difference from every timestamp until the clocks re-converge.
type Synchronizer struct {
	SBCOffset float64

	tsDiff     float64 // scaler minus (SBC - offset) at the last event
	forcedSync bool
}

// NewSynchronizer creates a synchronizer with the run's SBC offset, computed
// from the first good event as timeSBC - timeScaler.
func NewSynchronizer(sbcOffset float64) *Synchronizer {
	return &Synchronizer{SBCOffset: sbcOffset}
}

// Correct returns the best-estimate timestamp for ev. approx reports that the
// value did not come straight from a clean, in-sync scaler reading. The
// returned sbcTime is the offset-corrected SBC reading, or 0 when the SBC was
// not consulted; callers pass it back via Advance at end of event.
func (s *Synchronizer) Correct(ev *Event, errs *ErrorVector, hist *TimeHistory) (t float64, sbcTime float64, approx bool, err error) {
	switch {
	case !ev.BadScaler:
		t = ev.TimeScaler
		if ev.SBCUsable() {
			sbcTime = ev.TimeSBC - s.SBCOffset
		}
	case ev.SBCUsable():
		sbcTime = ev.TimeSBC - s.SBCOffset
		t = sbcTime
	default:
		t, err = InterpTime(ev.Entry, hist)
		if err != nil {
			return 0, 0, true, err
		}
		approx = true
	}

	// Desync recovery. On the event where the desync is first seen, undo
	// the adjusted delta; while latched, keep subtracting the running
	// difference until the clocks agree again on their own.
	deltaAdj := ev.TimeScaler - sbcTime - s.tsDiff
	if errs[ErrClockDesync] {
		s.forcedSync = true
		t -= deltaAdj
	}
	if s.forcedSync {
		approx = true
		t -= s.tsDiff
	}
	if math.Abs(s.tsDiff) < forcedSyncRelease {
		s.forcedSync = false
	}
	return t, sbcTime, approx, nil
}

// Advance folds one event into the running clock state. sbcTime must be the
// value returned by Correct for the same event.
func (s *Synchronizer) Advance(ev *Event, sbcTime float64) {
	s.tsDiff = ev.TimeScaler - sbcTime
}

// ForcedSync reports whether desync recovery is currently latched.
func (s *Synchronizer) ForcedSync() bool { return s.forcedSync }
