package veto

// Plane identifies one logical face of the veto array. The 32 physical
// panels map onto 12 planes; a muon signature is a coincidence between
// specific plane pairs.
type Plane int

// Plane identities, zero-indexed.
const (
	PlaneLowerBottom Plane = iota
	PlaneUpperBottom
	PlaneInnerTop
	PlaneOuterTop
	PlaneInnerNorth
	PlaneOuterNorth
	PlaneInnerSouth
	PlaneOuterSouth
	PlaneInnerWest
	PlaneOuterWest
	PlaneInnerEast
	PlaneOuterEast

	// PlaneNone marks a channel with no plane assignment.
	PlaneNone Plane = -1
)

var planeNames = map[Plane]string{
	PlaneLowerBottom: "lower bottom",
	PlaneUpperBottom: "upper bottom",
	PlaneInnerTop:    "inner top",
	PlaneOuterTop:    "outer top",
	PlaneInnerNorth:  "inner north",
	PlaneOuterNorth:  "outer north",
	PlaneInnerSouth:  "inner south",
	PlaneOuterSouth:  "outer south",
	PlaneInnerWest:   "inner west",
	PlaneOuterWest:   "outer west",
	PlaneInnerEast:   "inner east",
	PlaneOuterEast:   "outer east",
}

func (p Plane) String() string {
	if name, ok := planeNames[p]; ok {
		return name
	}
	return "none"
}

// channelPlanes is the channel-to-plane lookup for the current detector
// configuration. Channels without an entry are unassigned.
// TODO: version this table by run epoch once the rewired configuration's
// panel map is surveyed.
var channelPlanes = [NumChannels]Plane{
	0: PlaneLowerBottom, 1: PlaneLowerBottom, 2: PlaneLowerBottom,
	3: PlaneLowerBottom, 4: PlaneLowerBottom, 5: PlaneLowerBottom,

	6: PlaneUpperBottom, 7: PlaneUpperBottom, 8: PlaneUpperBottom,
	9: PlaneUpperBottom, 10: PlaneUpperBottom, 11: PlaneUpperBottom,

	17: PlaneOuterTop, 18: PlaneOuterTop,
	20: PlaneInnerTop, 21: PlaneInnerTop,

	15: PlaneOuterNorth, 16: PlaneOuterNorth,
	19: PlaneInnerNorth, 23: PlaneInnerNorth,

	24: PlaneInnerSouth, 26: PlaneInnerSouth,
	25: PlaneOuterSouth, 27: PlaneOuterSouth,

	12: PlaneInnerWest, 13: PlaneInnerWest,
	14: PlaneOuterWest, 22: PlaneOuterWest,

	28: PlaneInnerEast, 30: PlaneInnerEast,
	29: PlaneOuterEast, 31: PlaneOuterEast,
}

// PanelPlane returns the plane a channel belongs to, or PlaneNone. The run
// number selects the configuration epoch; all surveyed runs share one map.
func PanelPlane(channel, run int) Plane {
	_ = run
	if channel < 0 || channel >= NumChannels {
		return PlaneNone
	}
	return channelPlanes[channel]
}

// Muon identification tunables.
const (
	// DefaultEnergyThreshold is the QDC value a panel must exceed to
	// count toward the energy cut; the measured muon threshold.
	DefaultEnergyThreshold = 500

	// DefaultEnergyCutPanels is how many panels must exceed the energy
	// threshold for the energy cut to pass.
	DefaultEnergyCutPanels = 2
)

// CoinType codes for the plane coincidence pattern.
const (
	CoinPanels     = 0 // 2+ panels hit, no recognized pattern
	CoinVertical   = 1 // both bottom and both top planes
	CoinSideBottom = 2 // both bottom planes plus a side-plane pair
	CoinTopSides   = 3 // both top planes plus a side-plane pair
	CoinCompound   = 4 // two or more of the above simultaneously
)

var coinNames = [...]string{"2+ panels", "vertical", "side+bottom", "top+sides", "compound"}

// CoinTypeName returns the human-readable name of a coincidence code.
func CoinTypeName(code int) string {
	if code < 0 || code >= len(coinNames) {
		return "unknown"
	}
	return coinNames[code]
}

// MuonTagger applies the LED time cut, the energy cut, and the plane
// coincidence pattern to individual events. Its fields are the run-level
// context finalized in pass A; it holds no per-event state.
type MuonTagger struct {
	MultipThreshold int  // highest observed multiplicity minus the LED margin
	LEDOff          bool // run-level: LED unusable, time cut always passes
	EnergyThreshold int  // DefaultEnergyThreshold if 0
	EnergyPanels    int  // DefaultEnergyCutPanels if 0
}

// MuonResult is the per-event classification outcome.
type MuonResult struct {
	TimeCut   bool // event is not an LED flash (or the LED is off)
	EnergyCut bool // enough panels above the muon energy threshold

	PlaneTrue     [NumPlanes]bool // plane has at least one hit over threshold
	PlaneHits     [NumPlanes]int  // hit panels per plane
	PlaneHitCount int             // distinct planes hit

	CoinType  [NumChannels]bool // pattern flags; slots 0-4 used
	Type      int               // coincidence code, CoinPanels..CoinCompound
	Candidate bool              // both cuts passed
}

// Tag classifies one event.
func (mt *MuonTagger) Tag(ev *Event) MuonResult {
	var res MuonResult

	// Time cut: an event at LED-flash multiplicity is excluded unless the
	// run-level LED characterization says the LED is off.
	if mt.LEDOff || ev.Multip < mt.MultipThreshold {
		res.TimeCut = true
	}

	energyThresh := mt.EnergyThreshold
	if energyThresh == 0 {
		energyThresh = DefaultEnergyThreshold
	}
	energyPanels := mt.EnergyPanels
	if energyPanels == 0 {
		energyPanels = DefaultEnergyCutPanels
	}
	over := 0
	for q := 0; q < NumChannels; q++ {
		if ev.QDC[q] > energyThresh {
			over++
		}
	}
	res.EnergyCut = over >= energyPanels

	for k := 0; k < NumChannels; k++ {
		if ev.QDC[k] <= ev.Threshs[k] {
			continue
		}
		plane := PanelPlane(k, ev.Run)
		if plane == PlaneNone {
			continue
		}
		res.PlaneTrue[plane] = true
		res.PlaneHits[plane]++
	}
	for k := 0; k < NumPlanes; k++ {
		if res.PlaneTrue[k] {
			res.PlaneHitCount++
		}
	}

	if !(res.TimeCut && res.EnergyCut) {
		return res
	}
	res.Candidate = true
	res.CoinType[CoinPanels] = true

	p := &res.PlaneTrue
	bottom := p[PlaneLowerBottom] && p[PlaneUpperBottom]
	top := p[PlaneInnerTop] && p[PlaneOuterTop]
	sides := (p[PlaneInnerNorth] && p[PlaneOuterNorth]) ||
		(p[PlaneInnerSouth] && p[PlaneOuterSouth]) ||
		(p[PlaneInnerWest] && p[PlaneOuterWest]) ||
		(p[PlaneInnerEast] && p[PlaneOuterEast])

	matched := 0
	if bottom && top {
		res.CoinType[CoinVertical] = true
		res.Type = CoinVertical
		matched++
	}
	if bottom && (top || sides) {
		res.CoinType[CoinSideBottom] = true
		res.Type = CoinSideBottom
		matched++
	}
	if top && sides {
		res.CoinType[CoinTopSides] = true
		res.Type = CoinTopSides
		matched++
	}
	if matched >= 2 {
		res.Type = CoinCompound
	}
	return res
}
