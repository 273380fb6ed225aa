package veto

import "math"

// ErrorVector is the per-event error classification. Slot 0 is unused;
// 1-17 are structural (copied from Event.Flags), 18-24 are sequential
// counter/clock checks, 25 flags an event with no usable clock. Slots 26-28
// are reserved for run-level conditions and never set here.
type ErrorVector [NumErrorTypes]bool

// Error slot indices for the sequential checks.
const (
	ErrClockDesync   = 18 // scaler and SBC clocks disagree by more than 2 s
	ErrSECReset      = 19 // scaler event count reset to zero mid-run
	ErrSECJump       = 20 // scaler event count jumped past the entry gap
	ErrQEC1Reset     = 21
	ErrQEC1Jump      = 22
	ErrQEC2Reset     = 23
	ErrQEC2Jump      = 24
	ErrNoUsableClock = 25 // bad scaler with no SBC fallback; at run level, bad LED
)

// clockDesyncTolerance is the scaler-vs-SBC delta disagreement, in seconds,
// beyond which the clocks are considered desynchronized.
const clockDesyncTolerance = 2.0

// skipWorthy marks the slots that exclude an event from calibration and
// running statistics. The event still reaches the output, tagged bad.
var skipWorthy = [NumErrorTypes]bool{
	ErrMissingChannels: true, ErrExtraChannels: true, ErrScalerOnly: true,
	ErrIndexSkew: true, ErrDuplicateChannels: true, ErrCastFailed: true,
	ErrQDC1IndexFar: true, ErrQDC2IndexFar: true,
	ErrClockDesync: true, ErrSECReset: true, ErrSECJump: true,
	ErrQEC1Reset: true, ErrQEC1Jump: true, ErrQEC2Reset: true, ErrQEC2Jump: true,
}

// SeriousErrors lists the slots reported event by event in diagnostics and
// tallied into the run's serious error count.
var SeriousErrors = []int{1, 13, 14, 18, 19, 20, 21, 22, 23, 24}

// MustSkip reports whether any skip-worthy slot is set.
func (v *ErrorVector) MustSkip() bool {
	for i, set := range v {
		if set && skipWorthy[i] {
			return true
		}
	}
	return false
}

// Any reports whether any slot is set.
func (v *ErrorVector) Any() bool {
	for _, set := range v {
		if set {
			return true
		}
	}
	return false
}

// CheckEvent classifies one event against the stream history. It is a pure
// function of its four inputs: the current event, the previous event, the
// first good event (Entry == -1 while none has been found), and the entry
// index of the previous non-skipped event.
//
// The sequential checks (slots 18-24) only run once a first good event
// exists, since they need a trusted SBC offset and counter baseline.
func CheckEvent(cur, prev, first *Event, prevGoodEntry int64) (ErrorVector, bool) {
	var errs ErrorVector
	for i := 1; i < len(cur.Flags); i++ {
		errs[i] = cur.Flags[i]
	}

	// An event with a corrupted scaler and no SBC fallback has no usable
	// clock at all.
	if cur.BadScaler && (cur.Run <= SBCMinRun || cur.TimeSBC > sbcSentinel) {
		errs[ErrNoUsableClock] = true
	}

	if first.Entry == -1 {
		return errs, errs.MustSkip()
	}

	sbcOffset := first.TimeSBC - first.TimeScaler
	timeSBC := cur.TimeSBC - sbcOffset
	prevTimeSBC := prev.TimeSBC - sbcOffset
	pastFirst := cur.Entry > first.Entry

	if cur.TimeScaler > 0 && timeSBC > 0 && sbcOffset != 0 &&
		!cur.Flags[ErrMissingChannels] && pastFirst &&
		math.Abs((cur.TimeScaler-prev.TimeScaler)-(timeSBC-prevTimeSBC)) > clockDesyncTolerance {
		errs[ErrClockDesync] = true
	}

	entryGap := cur.Entry - prevGoodEntry

	if cur.SEC == 0 && cur.Entry != 0 && pastFirst {
		errs[ErrSECReset] = true
	}
	if abs64(cur.SEC-prev.SEC) > entryGap && pastFirst && cur.SEC != 0 {
		errs[ErrSECJump] = true
	}
	if cur.QEC1 == 0 && cur.Entry != 0 && pastFirst && !cur.Flags[ErrMissingChannels] {
		errs[ErrQEC1Reset] = true
	}
	if abs64(cur.QEC1-prev.QEC1) > entryGap && pastFirst && cur.QEC1 != 0 {
		errs[ErrQEC1Jump] = true
	}
	if cur.QEC2 == 0 && cur.Entry != 0 && pastFirst && !cur.Flags[ErrMissingChannels] {
		errs[ErrQEC2Reset] = true
	}
	if abs64(cur.QEC2-prev.QEC2) > entryGap && pastFirst && cur.QEC2 != 0 {
		errs[ErrQEC2Jump] = true
	}

	return errs, errs.MustSkip()
}
