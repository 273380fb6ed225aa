package veto

// Shared synthetic-event builders for the package tests.

const testRun = 10000

// cleanRaw builds a raw event that passes every structural check: all 32
// channels present at the pedestal, counters in lockstep with the entry, and
// packet indices in the expected formation.
func cleanRaw(entry int64, timeScaler float64) RawEvent {
	raw := RawEvent{
		Run:         testRun,
		SEC:         entry,
		QEC1:        entry,
		QEC2:        entry,
		ScalerIndex: 3 * entry,
		QDC1Index:   3*entry + 1,
		QDC2Index:   3*entry + 2,
		TimeScaler:  timeScaler,
		TimeSBC:     timeScaler + 100, // constant SBC offset of 100 s
	}
	for ch := 0; ch < NumChannels; ch++ {
		raw.Hits = append(raw.Hits, ChannelHit{Channel: ch, QDC: 40})
	}
	return raw
}

// withQDC overrides individual channel charges on a clean raw event.
func withQDC(raw RawEvent, qdc map[int]int) RawEvent {
	for i := range raw.Hits {
		if v, ok := qdc[raw.Hits[i].Channel]; ok {
			raw.Hits[i].QDC = v
		}
	}
	return raw
}

// cleanRun builds n clean events spaced dt seconds apart.
func cleanRun(n int, dt float64) []RawEvent {
	events := make([]RawEvent, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, cleanRaw(int64(i), float64(i)*dt))
	}
	return events
}

// normalized is shorthand for Normalize with permissive thresholds.
func normalized(raw RawEvent, entry int64) Event {
	return Normalize(&raw, entry, testRun, AllPassThresholds())
}
