package veto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// hitEvent builds an event with the named channels over both the software
// threshold and the muon energy threshold.
func hitEvent(channels ...int) *Event {
	ev := &Event{Run: testRun, Threshs: AllPassThresholds()}
	for _, ch := range channels {
		ev.QDC[ch] = 800
		ev.Multip++
	}
	return ev
}

func TestPanelPlaneMap(t *testing.T) {
	assert.Equal(t, PlaneLowerBottom, PanelPlane(0, testRun))
	assert.Equal(t, PlaneUpperBottom, PanelPlane(6, testRun))
	assert.Equal(t, PlaneOuterTop, PanelPlane(17, testRun))
	assert.Equal(t, PlaneInnerTop, PanelPlane(20, testRun))
	assert.Equal(t, PlaneInnerNorth, PanelPlane(19, testRun))
	assert.Equal(t, PlaneOuterEast, PanelPlane(31, testRun))
	assert.Equal(t, PlaneNone, PanelPlane(-1, testRun))
	assert.Equal(t, PlaneNone, PanelPlane(32, testRun))
}

func TestPlaneString(t *testing.T) {
	assert.Equal(t, "lower bottom", PlaneLowerBottom.String())
	assert.Equal(t, "none", PlaneNone.String())
}

func TestMuonTimeCut(t *testing.T) {
	mt := &MuonTagger{MultipThreshold: 23}

	t.Run("below threshold passes", func(t *testing.T) {
		ev := hitEvent(0, 6, 17, 20)
		res := mt.Tag(ev)
		assert.True(t, res.TimeCut)
	})

	t.Run("at LED multiplicity fails", func(t *testing.T) {
		ev := hitEvent(0, 6, 17, 20)
		ev.Multip = 23
		res := mt.Tag(ev)
		assert.False(t, res.TimeCut)
		assert.False(t, res.Candidate)
	})

	t.Run("led off bypasses the cut", func(t *testing.T) {
		off := &MuonTagger{MultipThreshold: 23, LEDOff: true}
		ev := hitEvent(0, 6, 17, 20)
		ev.Multip = 30
		res := off.Tag(ev)
		assert.True(t, res.TimeCut)
	})
}

func TestMuonEnergyCut(t *testing.T) {
	mt := &MuonTagger{MultipThreshold: 23}

	ev := &Event{Run: testRun, Threshs: AllPassThresholds()}
	ev.QDC[0] = 600
	res := mt.Tag(ev)
	assert.False(t, res.EnergyCut, "one panel over 500 is not enough")

	ev.QDC[1] = 501
	res = mt.Tag(ev)
	assert.True(t, res.EnergyCut)

	ev.QDC[1] = 500
	res = mt.Tag(ev)
	assert.False(t, res.EnergyCut, "the cut is strict")
}

func TestMuonPlaneHits(t *testing.T) {
	mt := &MuonTagger{MultipThreshold: 23}
	ev := hitEvent(0, 1, 6, 20)

	res := mt.Tag(ev)
	assert.True(t, res.PlaneTrue[PlaneLowerBottom])
	assert.Equal(t, 2, res.PlaneHits[PlaneLowerBottom])
	assert.True(t, res.PlaneTrue[PlaneUpperBottom])
	assert.True(t, res.PlaneTrue[PlaneInnerTop])
	assert.Equal(t, 3, res.PlaneHitCount)
}

func TestMuonCoincidenceTypes(t *testing.T) {
	mt := &MuonTagger{MultipThreshold: 23}

	t.Run("panels only", func(t *testing.T) {
		// Hits on one bottom plane and one side plane: no recognized pair.
		res := mt.Tag(hitEvent(0, 19))
		assert.True(t, res.Candidate)
		assert.Equal(t, CoinPanels, res.Type)
		assert.True(t, res.CoinType[CoinPanels])
		assert.False(t, res.CoinType[CoinVertical])
	})

	t.Run("vertical", func(t *testing.T) {
		// Both bottoms and both tops. Vertical also satisfies the
		// bottom-plus-anything pattern, so the compound code wins.
		res := mt.Tag(hitEvent(0, 6, 17, 20))
		assert.True(t, res.CoinType[CoinVertical])
		assert.True(t, res.CoinType[CoinSideBottom])
		assert.Equal(t, CoinCompound, res.Type)
	})

	t.Run("side and bottom", func(t *testing.T) {
		// Both bottoms plus the north side pair, no tops.
		res := mt.Tag(hitEvent(0, 6, 15, 19))
		assert.False(t, res.CoinType[CoinVertical])
		assert.True(t, res.CoinType[CoinSideBottom])
		assert.False(t, res.CoinType[CoinTopSides])
		assert.Equal(t, CoinSideBottom, res.Type)
	})

	t.Run("top and sides", func(t *testing.T) {
		// Both tops plus the east side pair, no bottoms.
		res := mt.Tag(hitEvent(17, 20, 28, 29))
		assert.False(t, res.CoinType[CoinVertical])
		assert.False(t, res.CoinType[CoinSideBottom])
		assert.True(t, res.CoinType[CoinTopSides])
		assert.Equal(t, CoinTopSides, res.Type)
	})

	t.Run("failed cuts yield no pattern", func(t *testing.T) {
		ev := hitEvent(0, 6, 17, 20)
		ev.Multip = 30
		res := (&MuonTagger{MultipThreshold: 23}).Tag(ev)
		assert.False(t, res.Candidate)
		assert.False(t, res.CoinType[CoinPanels])
		assert.Equal(t, CoinPanels, res.Type)
	})
}

func TestCoinTypeName(t *testing.T) {
	assert.Equal(t, "vertical", CoinTypeName(CoinVertical))
	assert.Equal(t, "compound", CoinTypeName(CoinCompound))
	assert.Equal(t, "unknown", CoinTypeName(9))
}
