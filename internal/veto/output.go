package veto

// CutType vector indices. The per-event cut outcomes are recorded in the
// output in this fixed order.
const (
	CutLEDOff     = 0 // run-level LED-off condition was in effect
	CutEnergy     = 1 // energy cut passed
	CutApproxTime = 2 // timestamp did not come straight from a clean scaler
	CutTime       = 3 // LED time cut passed
	CutIsLED      = 4 // event positively identified as an LED flash
	CutFirstLED   = 5 // first LED flash of the run
	CutBadLEDFreq = 6 // run-level LED frequency measurement unusable

	NumCutTypes = 7
)

// OutputRecord is one output row per input event: the normalized event, its
// corrected timestamp, the full error classification, and the muon cuts.
// Run-level summary fields are duplicated onto every row by the sink so each
// row is self-contained for downstream analysis.
type OutputRecord struct {
	Run   int
	Entry int64

	QDC      [NumChannels]int
	Multip   int
	TotalQDC int

	SEC  int64
	QEC1 int64
	QEC2 int64

	ScalerIndex int64
	QDC1Index   int64
	QDC2Index   int64

	TimeScaler float64 // raw scaler reading
	TimeSBC    float64 // raw SBC reading
	XTime      float64 // corrected timestamp
	SBCTime    float64 // offset-corrected SBC reading, 0 when unused
	LEDDeltaT  float64 // corrected time since the last LED-multiplicity event

	BadEvent   bool
	ApproxTime bool
	Errors     ErrorVector

	Muon    MuonResult
	CutType [NumCutTypes]bool
}

// RunSummary is the run-level result attached once per run.
type RunSummary struct {
	// ProcessID identifies one processing invocation; re-processing the
	// same run yields a fresh ID.
	ProcessID string

	Run     int
	Entries int64
	Start   int64
	Stop    int64

	Duration float64 // seconds; reconstructed when the stop packet was lost
	Livetime float64 // duration minus the pre-first-good-event dead window

	FirstGoodEntry int64
	SBCOffset      float64

	HighestMultip   int
	MultipThreshold int
	LED             LEDStats

	Thresholds      ThresholdTable
	ThresholdMargin int

	ErrorCount    [NumErrorTypes]int
	TotalErrors   int
	SeriousErrors int
	Skipped       int64 // events excluded from statistics (written with BadEvent)
}
