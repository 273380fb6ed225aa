// Package veto implements the per-run processing chain for cosmic-ray veto
// detector data: software threshold calibration from QDC pedestals, per-event
// data-quality classification, dual-clock timestamp reconciliation, LED period
// estimation, and muon candidate tagging.
//
// Processing is strictly sequential within a run. The Pipeline type is the
// composition root: it owns the run-level state and drives up to three passes
// over the same event stream. The stage packages under internal/ (vetofile,
// vetodb, rundb, qa) adapt external collaborators; they import veto, never
// the reverse.
package veto

// Detector geometry and record-format constants.
const (
	// NumChannels is the number of QDC channels in the veto array.
	NumChannels = 32

	// NumPlanes is the number of logical detector planes (faces of the array).
	NumPlanes = 12

	// NumErrorTypes is the size of the per-event error vector. Slot 0 is
	// unused; slots 26-28 are reserved for run-level conditions.
	NumErrorTypes = 29
)

// Run-configuration epochs. Hardware revisions are keyed by run number.
const (
	// SBCMinRun is the last run without a usable SBC clock. SBC readings
	// may only substitute for the scaler clock on later runs.
	SBCMinRun = 8557

	// PanelRewireRun marks the crate reshuffle: QDC card slots change and
	// channels above 23 are no longer physically connected afterwards.
	PanelRewireRun = 45000000

	// Module2RunLo and Module2RunHi bound the run range with no veto data.
	Module2RunLo = 60000000
	Module2RunHi = 70000000
)

// Sentinel values.
const (
	// BadThreshold marks a channel with no valid software threshold;
	// effectively infinite, the channel never registers a hit.
	BadThreshold = 9999

	// sbcSentinel is the raw SBC reading used when the slow-control clock
	// never reported. Readings at or above it are invalid.
	sbcSentinel = 2e9

	// badScalerReg is the all-ones scaler register pattern flagging a
	// corrupted timestamp.
	badScalerReg = ^uint64(0)
)

// ChannelHit is one channel's integrated charge as read from a raw packet.
type ChannelHit struct {
	Channel int
	QDC     int
}

// RawEvent is the decoded content of one veto readout before normalization.
// The event source fills it straight from the packet payloads; Normalize
// turns it into an Event and populates the structural error flags.
type RawEvent struct {
	Run  int
	Hits []ChannelHit

	// Hardware event counters; each should increment by one per event.
	SEC  int64 // scaler event count
	QEC1 int64 // QDC card 1 event count
	QEC2 int64 // QDC card 2 event count

	// Packet sequence indices from the three hardware sub-builders.
	ScalerIndex int64
	QDC1Index   int64
	QDC2Index   int64

	// ScalerReg is the raw scaler clock register; all ones means the
	// timestamp is corrupted.
	ScalerReg  uint64
	TimeScaler float64 // seconds since run start, scaler clock
	TimeSBC    float64 // seconds since run start, SBC clock

	// Packet-level conditions only the decoder can see.
	ScalerOnly  bool // scaler packet present but no QDC data
	CastFailed  bool // QDC payload failed to decode
	UnknownCard bool // packet from an unrecognized card slot
}

// Event is the normalized view of one veto readout. Instances are transient:
// each pass over the stream rebuilds them entry by entry.
type Event struct {
	Run   int
	Entry int64 // ordinal position in the run's stream; -1 means "no event"

	QDC      [NumChannels]int
	Threshs  ThresholdTable
	Multip   int // channels over software threshold
	TotalQDC int

	SEC  int64
	QEC1 int64
	QEC2 int64

	ScalerIndex int64
	QDC1Index   int64
	QDC2Index   int64

	TimeScaler float64
	TimeSBC    float64
	BadScaler  bool

	// Flags holds the structural error slots (0-17) populated during
	// normalization. They are inputs to CheckEvent, not outputs of it.
	Flags [18]bool
}

// Structural flag indices. Names follow the error taxonomy in the run report.
const (
	ErrMissingChannels   = 1  // fewer than 32 channels in the event
	ErrExtraChannels     = 2  // more than 32 channels in the event
	ErrScalerOnly        = 3  // no QDC data at all
	ErrBadTimestamp      = 4  // scaler register reads all ones
	ErrIndexSkew         = 5  // QDC1 index does not trail the scaler index by 1 or 2
	ErrDuplicateChannels = 6  // a channel appears more than once
	ErrCountMismatch     = 7  // SEC and QEC1 disagree beyond tolerance
	ErrRunMismatch       = 8  // packet run number differs from the run being processed
	ErrCastFailed        = 9  // QDC payload failed to decode
	ErrSECVsEntry        = 10 // scaler event count does not match the entry number
	ErrSECVsQEC1         = 11 // scaler event count does not match QEC1
	ErrQEC1VsQEC2        = 12 // QEC1 does not match QEC2
	ErrQDC1IndexFar      = 13 // QDC1 and scaler indices differ by more than 2
	ErrQDC2IndexFar      = 14 // QDC2 and scaler indices differ by more than 2
	ErrIndexPrecedes     = 15 // a QDC index precedes the scaler index
	ErrIndexEqual        = 16 // a QDC index equals the scaler index
	ErrUnknownCard       = 17 // packet from an unrecognized card slot
)

// EmptyEvent returns the sentinel used for "previous" and "first good" state
// before any event qualifies.
func EmptyEvent() Event {
	return Event{Entry: -1}
}

// Normalize builds an Event from a raw readout. entry is the 0-based stream
// position; run is the run being processed (a mismatched packet run number is
// itself a structural error). Multiplicity is evaluated against threshs.
func Normalize(raw *RawEvent, entry int64, run int, threshs ThresholdTable) Event {
	ev := Event{
		Run:         run,
		Entry:       entry,
		Threshs:     threshs,
		SEC:         raw.SEC,
		QEC1:        raw.QEC1,
		QEC2:        raw.QEC2,
		ScalerIndex: raw.ScalerIndex,
		QDC1Index:   raw.QDC1Index,
		QDC2Index:   raw.QDC2Index,
		TimeScaler:  raw.TimeScaler,
		TimeSBC:     raw.TimeSBC,
	}

	seen := make(map[int]int, len(raw.Hits))
	for _, hit := range raw.Hits {
		if hit.Channel < 0 || hit.Channel >= NumChannels {
			ev.Flags[ErrUnknownCard] = true
			continue
		}
		seen[hit.Channel]++
		if seen[hit.Channel] > 1 {
			ev.Flags[ErrDuplicateChannels] = true
			continue
		}
		ev.QDC[hit.Channel] = hit.QDC
		ev.TotalQDC += hit.QDC
		if hit.QDC > threshs[hit.Channel] {
			ev.Multip++
		}
	}

	if len(raw.Hits) < NumChannels {
		ev.Flags[ErrMissingChannels] = true
	}
	if len(raw.Hits) > NumChannels {
		ev.Flags[ErrExtraChannels] = true
	}
	if raw.ScalerOnly || len(raw.Hits) == 0 {
		ev.Flags[ErrScalerOnly] = true
	}
	if raw.ScalerReg == badScalerReg {
		ev.Flags[ErrBadTimestamp] = true
		ev.BadScaler = true
	}
	if d := raw.QDC1Index - raw.ScalerIndex; d != 1 && d != 2 {
		ev.Flags[ErrIndexSkew] = true
	}
	if d := raw.SEC - raw.QEC1; d < 0 || d > 2 {
		ev.Flags[ErrCountMismatch] = true
	}
	if raw.Run != run {
		ev.Flags[ErrRunMismatch] = true
	}
	if raw.CastFailed {
		ev.Flags[ErrCastFailed] = true
	}
	if raw.SEC != entry {
		ev.Flags[ErrSECVsEntry] = true
	}
	if raw.SEC != raw.QEC1 {
		ev.Flags[ErrSECVsQEC1] = true
	}
	if raw.QEC1 != raw.QEC2 {
		ev.Flags[ErrQEC1VsQEC2] = true
	}
	if abs64(raw.QDC1Index-raw.ScalerIndex) > 2 {
		ev.Flags[ErrQDC1IndexFar] = true
	}
	if abs64(raw.QDC2Index-raw.ScalerIndex) > 2 {
		ev.Flags[ErrQDC2IndexFar] = true
	}
	if raw.QDC1Index < raw.ScalerIndex || raw.QDC2Index < raw.ScalerIndex {
		ev.Flags[ErrIndexPrecedes] = true
	}
	if raw.QDC1Index == raw.ScalerIndex || raw.QDC2Index == raw.ScalerIndex {
		ev.Flags[ErrIndexEqual] = true
	}
	if raw.UnknownCard {
		ev.Flags[ErrUnknownCard] = true
	}

	return ev
}

// SBCUsable reports whether the event's SBC reading may substitute for the
// scaler clock: the run must postdate the SBC hardware revision and the
// reading must not be the never-reported sentinel.
func (ev *Event) SBCUsable() bool {
	return ev.Run > SBCMinRun && ev.TimeSBC < sbcSentinel
}

// CardSlots returns the crate slots holding the two QDC cards for a run.
func CardSlots(run int) (card1, card2 int) {
	if run > PanelRewireRun {
		return 11, 18
	}
	return 13, 18
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
