package vetodb

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veto-data/autoveto/internal/monitoring"
	"github.com/veto-data/autoveto/internal/veto"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	var lines []string
	t.Cleanup(monitoring.Capture(&lines))
	db, err := New(filepath.Join(t.TempDir(), "autoveto.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleRecord(run int, entry int64) *veto.OutputRecord {
	rec := &veto.OutputRecord{
		Run:         run,
		Entry:       entry,
		Multip:      4,
		TotalQDC:    3200,
		SEC:         entry,
		QEC1:        entry,
		QEC2:        entry,
		ScalerIndex: 3 * entry,
		QDC1Index:   3*entry + 1,
		QDC2Index:   3*entry + 2,
		TimeScaler:  float64(entry) * 0.2,
		TimeSBC:     float64(entry)*0.2 + 100,
		XTime:       float64(entry) * 0.2,
		SBCTime:     float64(entry) * 0.2,
		LEDDeltaT:   0.2,
	}
	for ch := range rec.QDC {
		rec.QDC[ch] = 40
	}
	rec.Errors[veto.ErrBadTimestamp] = true
	rec.Muon = veto.MuonResult{
		TimeCut:       true,
		EnergyCut:     true,
		Candidate:     true,
		Type:          veto.CoinVertical,
		PlaneHitCount: 4,
	}
	rec.CutType[veto.CutEnergy] = true
	rec.CutType[veto.CutTime] = true
	return rec
}

func sampleSummary(run int) *veto.RunSummary {
	sum := &veto.RunSummary{
		ProcessID:       "f2b0f4f0-0000-4000-8000-000000000001",
		Run:             run,
		Entries:         600,
		Start:           1000,
		Stop:            1120,
		Duration:        120,
		Livetime:        119.8,
		FirstGoodEntry:  1,
		SBCOffset:       100,
		HighestMultip:   22,
		MultipThreshold: 17,
		LED: veto.LEDStats{
			Freq:   5.0,
			Period: 0.2,
			RMS:    0.001,
			Count:  588,
		},
		ThresholdMargin: 35,
		TotalErrors:     2,
		SeriousErrors:   1,
		Skipped:         1,
	}
	for ch := range sum.Thresholds {
		sum.Thresholds[ch] = 75
	}
	sum.ErrorCount[veto.ErrMissingChannels] = 1
	sum.ErrorCount[veto.ErrBadTimestamp] = 1
	return sum
}

func writeRun(t *testing.T, db *DB, run int, entries int64) *veto.RunSummary {
	t.Helper()
	store, err := NewEventStore(db, run)
	require.NoError(t, err)
	defer store.Abort()
	for entry := int64(0); entry < entries; entry++ {
		require.NoError(t, store.WriteEvent(sampleRecord(run, entry)))
	}
	sum := sampleSummary(run)
	sum.Entries = entries
	require.NoError(t, store.WriteSummary(sum))
	return sum
}

func countRows(t *testing.T, db *DB, query string, args ...interface{}) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(query, args...).Scan(&n))
	return n
}

func TestNewAppliesSchema(t *testing.T) {
	db := testDB(t)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(1), version)

	for _, table := range []string{"runs", "events", "thresholds"} {
		assert.Equalf(t, 0, countRows(t, db, "SELECT COUNT(*) FROM "+table), "table %s", table)
	}
}

func TestMigrateDownAndUp(t *testing.T) {
	db := testDB(t)

	require.NoError(t, db.MigrateDown())
	version, _, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)

	require.NoError(t, db.MigrateUp())
	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(1), version)
}

func TestEventStoreRoundTrip(t *testing.T) {
	db := testDB(t)
	want := writeRun(t, db, 10000, 5)

	assert.Equal(t, 5, countRows(t, db, "SELECT COUNT(*) FROM events WHERE run = ?", 10000))
	assert.Equal(t, 5, countRows(t, db,
		"SELECT COUNT(*) FROM events WHERE run = ? AND muon_candidate AND coin_type = ?",
		10000, veto.CoinVertical))

	sums, err := db.RunSummaries()
	require.NoError(t, err)
	require.Len(t, sums, 1)
	got := sums[0]
	// Thresholds live in their own table and do not round-trip here.
	got.Thresholds = want.Thresholds
	if diff := cmp.Diff(*want, got); diff != "" {
		t.Errorf("summary round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestEventStoreReplacesPreviousRun(t *testing.T) {
	db := testDB(t)
	writeRun(t, db, 10000, 5)
	second := writeRun(t, db, 10000, 3)

	assert.Equal(t, 3, countRows(t, db, "SELECT COUNT(*) FROM events WHERE run = ?", 10000))
	assert.Equal(t, 1, countRows(t, db, "SELECT COUNT(*) FROM runs WHERE run = ?", 10000))
	assert.Equal(t, veto.NumChannels, countRows(t, db, "SELECT COUNT(*) FROM thresholds WHERE run = ?", 10000))

	sums, err := db.RunSummaries()
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, second.Entries, sums[0].Entries)
}

func TestRunSummariesOrder(t *testing.T) {
	db := testDB(t)
	writeRun(t, db, 10000, 1)
	writeRun(t, db, 10002, 1)
	writeRun(t, db, 10001, 1)

	sums, err := db.RunSummaries()
	require.NoError(t, err)
	require.Len(t, sums, 3)
	assert.Equal(t, []int{10002, 10001, 10000}, []int{sums[0].Run, sums[1].Run, sums[2].Run})
}

func TestAbortDiscardsRun(t *testing.T) {
	db := testDB(t)

	store, err := NewEventStore(db, 10000)
	require.NoError(t, err)
	require.NoError(t, store.WriteEvent(sampleRecord(10000, 0)))
	require.NoError(t, store.Abort())

	assert.Equal(t, 0, countRows(t, db, "SELECT COUNT(*) FROM events"))
	assert.NoError(t, store.Abort(), "repeated abort is a no-op")
}

func TestLoadThresholds(t *testing.T) {
	db := testDB(t)
	writeRun(t, db, 10000, 1)

	table, ok, err := db.LoadThresholds(10000)
	require.NoError(t, err)
	assert.True(t, ok)
	for ch := range table {
		assert.Equal(t, 75, table[ch])
	}

	_, ok, err = db.LoadThresholds(4242)
	require.NoError(t, err)
	assert.False(t, ok, "unknown run has no stored table")
}

func TestLoadThresholdsPartial(t *testing.T) {
	db := testDB(t)
	_, err := db.Exec("INSERT INTO thresholds (run, channel, threshold) VALUES (?, ?, ?)", 9000, 0, 75)
	require.NoError(t, err)

	_, ok, err := db.LoadThresholds(9000)
	require.NoError(t, err)
	assert.False(t, ok, "an incomplete table is unusable")
}
