package veto

import "github.com/veto-data/autoveto/internal/monitoring"

// LED estimation tunables.
const (
	// DefaultLEDSimpleThreshold is the multiplicity above which an event
	// counts as an LED flash for period estimation.
	DefaultLEDSimpleThreshold = 10

	// DefaultLEDMultipMargin sets the classification multiplicity
	// threshold at highestMultiplicity - margin.
	DefaultLEDMultipMargin = 5

	// LEDWindow is the half-width, in seconds, of the delta-t window
	// around the modal bin used for the frequency measurement.
	LEDWindow = 0.1

	// ledSentinel marks an unusable frequency or period.
	ledSentinel = 9999

	// longPeriodCutoff and shortRunEntries trigger the count-based
	// fallback estimate; maxSanePeriod bounds a believable LED period.
	longPeriodCutoff = 9.0
	shortRunEntries  = 100
	maxSanePeriod    = 20.0

	// minSimpleLEDCount is the minimum number of qualifying flashes the
	// count-based fallback needs.
	minSimpleLEDCount = 4
)

// LEDStats is the run-level LED characterization.
type LEDStats struct {
	Freq    float64 // flashes per second; 9999 when unusable
	Period  float64 // seconds per flash; 9999 when unusable
	RMS     float64 // spread of the windowed delta-t distribution
	BadFreq bool    // no reliable measurement; LED treated as off
	Simple  bool    // period came from the count-based fallback
	Count   int     // qualifying high-multiplicity events seen
}

// Off reports whether downstream classification should treat the LED as off,
// which relaxes the multiplicity time cut to always pass.
func (s LEDStats) Off() bool {
	return s.BadFreq || s.Period > maxSanePeriod || s.Period < 0
}

// LEDEstimator accumulates inter-event time deltas of high-multiplicity
// events across pass A and derives the blink period.
type LEDEstimator struct {
	SimpleThreshold int // multiplicity cut for a qualifying event

	deltaT *Hist1D // 1 ms bins over [0,100) seconds
	count  int
}

// NewLEDEstimator creates an estimator. threshold <= 0 selects the default.
func NewLEDEstimator(threshold int) *LEDEstimator {
	if threshold <= 0 {
		threshold = DefaultLEDSimpleThreshold
	}
	return &LEDEstimator{
		SimpleThreshold: threshold,
		deltaT:          NewHist1D(100000, 0, 100),
	}
}

// DeltaT exposes the inter-flash spectrum for diagnostics.
func (le *LEDEstimator) DeltaT() *Hist1D { return le.deltaT }

// Observe folds one non-skipped event into the delta-t spectrum. prev is the
// immediately preceding event in the stream.
func (le *LEDEstimator) Observe(cur, prev *Event) {
	if cur.Multip > le.SimpleThreshold {
		le.deltaT.Fill(cur.TimeScaler - prev.TimeScaler)
		le.count++
	}
}

// Estimate derives the run-level LED statistics. duration is the run length
// in seconds and totalEntries the stream size; both drive the short-run
// fallback.
func (le *LEDEstimator) Estimate(duration float64, totalEntries int64) LEDStats {
	stats := LEDStats{Count: le.count}

	if le.deltaT.Entries() > 0 {
		// Restrict to +/- LEDWindow around the modal delta-t so stray
		// muon spacings do not drag the mean.
		maxbin := le.deltaT.MaxBin(0, le.deltaT.Bins()-1)
		window := int(LEDWindow / ((100.0) / float64(le.deltaT.Bins())))
		mean, rms := le.deltaT.WindowStats(maxbin-window, maxbin+window)
		stats.RMS = rms
		if mean > 0 {
			stats.Freq = 1 / mean
			stats.Period = mean
		}
	} else {
		monitoring.Logf("no multiplicity > %d events; LED may be off", le.SimpleThreshold)
		stats.RMS = ledSentinel
		stats.Freq = ledSentinel
		stats.Period = ledSentinel
		stats.BadFreq = true
	}

	if stats.Period > longPeriodCutoff || totalEntries < shortRunEntries {
		monitoring.Logf("short run: LED freq %.4f Hz from %d entries", stats.Freq, totalEntries)
		if le.count >= minSimpleLEDCount {
			stats.Period = duration / float64(le.count)
			stats.Simple = true
		} else {
			stats.Period = ledSentinel
			stats.BadFreq = true
		}
	}
	return stats
}
