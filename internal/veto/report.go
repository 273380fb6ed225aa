package veto

import (
	"fmt"
	"math"
	"strings"

	"github.com/veto-data/autoveto/internal/monitoring"
)

// reportSeriousErrors emits one diagnostic line per serious error slot set on
// this event. Visibility only: classification does not depend on it.
func reportSeriousErrors(ev, prev *Event, errs *ErrorVector, xt, sbcTime float64) {
	serious := false
	for _, j := range SeriousErrors {
		if errs[j] {
			serious = true
			break
		}
	}
	if !serious {
		return
	}
	monitoring.Logf("serious errors in entry %d:", ev.Entry)
	if errs[ErrMissingChannels] {
		monitoring.Logf("  [1] missing packet: scaler index %d, scaler time %.3f, SBC time %.3f",
			ev.ScalerIndex, ev.TimeScaler, ev.TimeSBC)
	}
	if errs[ErrQDC1IndexFar] {
		monitoring.Logf("  [13] QDC1/scaler packet indices differ by more than 2: scaler %d qdc1 %d (prev: scaler %d qdc1 %d)",
			ev.ScalerIndex, ev.QDC1Index, prev.ScalerIndex, prev.QDC1Index)
	}
	if errs[ErrQDC2IndexFar] {
		monitoring.Logf("  [14] QDC2/scaler packet indices differ by more than 2: scaler %d qdc2 %d (prev: scaler %d qdc2 %d)",
			ev.ScalerIndex, ev.QDC2Index, prev.ScalerIndex, prev.QDC2Index)
	}
	if errs[ErrClockDesync] {
		monitoring.Logf("  [18] scaler/SBC desync: scaler time %.3f SBC time %.3f scaler deltaT %.3f",
			ev.TimeScaler, sbcTime, ev.TimeScaler-prev.TimeScaler)
	}
	if errs[ErrSECReset] {
		monitoring.Logf("  [19] scaler event count reset: scaler index %d SEC %d previous SEC %d",
			ev.ScalerIndex, ev.SEC, prev.SEC)
	}
	if errs[ErrSECJump] {
		monitoring.Logf("  [20] scaler event count jump: time %.3f scaler index %d SEC %d previous SEC %d",
			xt, ev.ScalerIndex, ev.SEC, prev.SEC)
	}
	if errs[ErrQEC1Reset] {
		monitoring.Logf("  [21] QDC1 event count reset: scaler index %d QEC1 %d previous QEC1 %d",
			ev.ScalerIndex, ev.QEC1, prev.QEC1)
	}
	if errs[ErrQEC1Jump] {
		monitoring.Logf("  [22] QDC1 event count jump: time %.3f QDC1 index %d QEC1 %d previous QEC1 %d",
			xt, ev.QDC1Index, ev.QEC1, prev.QEC1)
	}
	if errs[ErrQEC2Reset] {
		monitoring.Logf("  [23] QDC2 event count reset: scaler index %d QEC2 %d previous QEC2 %d",
			ev.ScalerIndex, ev.QEC2, prev.QEC2)
	}
	if errs[ErrQEC2Jump] {
		monitoring.Logf("  [24] QDC2 event count jump: time %.3f QDC2 index %d QEC2 %d previous QEC2 %d",
			xt, ev.QDC2Index, ev.QEC2, prev.QEC2)
	}
}

// RunReport renders the human-readable run-level error report.
func RunReport(sum *RunSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== veto error report, run %d ===\n", sum.Run)
	fmt.Fprintf(&b, "serious errors found: %d\n", sum.SeriousErrors)
	if sum.SeriousErrors == 0 {
		return b.String()
	}
	fmt.Fprintf(&b, "total errors: %d\n", sum.TotalErrors)
	if sum.Duration != sum.Livetime {
		fmt.Fprintf(&b, "run duration (%.1f s) does not match livetime (%.1f s)\n", sum.Duration, sum.Livetime)
	}
	for i := 1; i < NumErrorTypes; i++ {
		if sum.ErrorCount[i] == 0 {
			continue
		}
		if i != ErrNoUsableClock {
			pct := 0.0
			if sum.Entries > 0 {
				pct = 100 * float64(sum.ErrorCount[i]) / float64(sum.Entries)
			}
			fmt.Fprintf(&b, "  error[%d]: %d events (%.2f%%)\n", i, sum.ErrorCount[i], pct)
			continue
		}
		fmt.Fprintf(&b, "  error[25]: bad LED rate %.4f Hz, period %.4f s\n", sum.LED.Freq, sum.LED.Period)
		if sum.LED.Period > 0.1 {
			expected := int(math.Abs(sum.Duration / sum.LED.Period))
			if math.Abs(float64(expected-sum.LED.Count)) > 5 {
				fmt.Fprintf(&b, "    LED count %d, expected about %d\n", sum.LED.Count, expected)
			}
		}
	}
	fmt.Fprintf(&b, "serious error types: %v (plus 25 at run level); report these to the veto group\n", SeriousErrors)
	return b.String()
}
