package vetofile

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veto-data/autoveto/internal/veto"
)

func fullEvent(entry int64) veto.RawEvent {
	raw := veto.RawEvent{
		Run:         9500,
		SEC:         entry,
		QEC1:        entry,
		QEC2:        entry,
		ScalerIndex: 3 * entry,
		QDC1Index:   3*entry + 1,
		QDC2Index:   3*entry + 2,
		TimeScaler:  float64(entry) * 0.2,
		TimeSBC:     float64(entry)*0.2 + 100,
	}
	for ch := 0; ch < veto.NumChannels; ch++ {
		raw.Hits = append(raw.Hits, veto.ChannelHit{Channel: ch, QDC: 40 + ch})
	}
	return raw
}

func writeDump(t *testing.T, events []veto.RawEvent) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "veto_run_9500.vbin")
	w, err := Create(path, 9500, 1000, 1060)
	require.NoError(t, err)
	for i := range events {
		require.NoError(t, w.Append(&events[i]))
	}
	require.NoError(t, w.Close())
	return path
}

func TestRoundTrip(t *testing.T) {
	events := []veto.RawEvent{fullEvent(0), fullEvent(1), fullEvent(2)}
	path := writeDump(t, events)

	src, err := Open(path)
	require.NoError(t, err)
	defer src.Close()

	info := src.Info()
	assert.Equal(t, 9500, info.Number)
	assert.Equal(t, int64(1000), info.Start)
	assert.Equal(t, int64(1060), info.Stop)
	assert.Equal(t, int64(3), info.Entries, "entry count patched on close")

	require.NoError(t, src.Reset())
	for i := range events {
		raw, err := src.Next()
		require.NoError(t, err)
		assert.Equal(t, events[i].SEC, raw.SEC)
		assert.Equal(t, events[i].QEC1, raw.QEC1)
		assert.Equal(t, events[i].QEC2, raw.QEC2)
		assert.Equal(t, events[i].ScalerIndex, raw.ScalerIndex)
		assert.Equal(t, events[i].QDC1Index, raw.QDC1Index)
		assert.Equal(t, events[i].QDC2Index, raw.QDC2Index)
		assert.Equal(t, events[i].TimeScaler, raw.TimeScaler)
		assert.Equal(t, events[i].TimeSBC, raw.TimeSBC)
		assert.Equal(t, events[i].Hits, raw.Hits)
		assert.Equal(t, 9500, raw.Run)
	}
	_, err = src.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestResetRewinds(t *testing.T) {
	path := writeDump(t, []veto.RawEvent{fullEvent(0), fullEvent(1)})

	src, err := Open(path)
	require.NoError(t, err)
	defer src.Close()

	require.NoError(t, src.Reset())
	first, err := src.Next()
	require.NoError(t, err)

	require.NoError(t, src.Reset())
	again, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestDuplicateChannels(t *testing.T) {
	ev := veto.RawEvent{
		Run: 9500,
		Hits: []veto.ChannelHit{
			{Channel: 5, QDC: 120},
			{Channel: 5, QDC: 999}, // later readings of a channel are dropped
			{Channel: 5, QDC: 7},   // a third occurrence collapses to a pair
			{Channel: 9, QDC: 60},
		},
	}
	path := writeDump(t, []veto.RawEvent{ev})

	src, err := Open(path)
	require.NoError(t, err)
	defer src.Close()
	require.NoError(t, src.Reset())

	raw, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, []veto.ChannelHit{
		{Channel: 5, QDC: 120},
		{Channel: 5, QDC: 120},
		{Channel: 9, QDC: 60},
	}, raw.Hits)
}

func TestDecoderFlagsAndBadChannels(t *testing.T) {
	ev := veto.RawEvent{
		Run:         9500,
		ScalerReg:   ^uint64(0),
		ScalerOnly:  true,
		CastFailed:  true,
		UnknownCard: true,
		Hits: []veto.ChannelHit{
			{Channel: -1, QDC: 10},
			{Channel: 32, QDC: 10},
			{Channel: 3, QDC: 55},
		},
	}
	path := writeDump(t, []veto.RawEvent{ev})

	src, err := Open(path)
	require.NoError(t, err)
	defer src.Close()
	require.NoError(t, src.Reset())

	raw, err := src.Next()
	require.NoError(t, err)
	assert.True(t, raw.ScalerOnly)
	assert.True(t, raw.CastFailed)
	assert.True(t, raw.UnknownCard)
	assert.Equal(t, ^uint64(0), raw.ScalerReg)
	assert.Equal(t, []veto.ChannelHit{{Channel: 3, QDC: 55}}, raw.Hits,
		"out-of-range channels never reach the file")
}

func TestEmptyDump(t *testing.T) {
	path := writeDump(t, nil)

	src, err := Open(path)
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, int64(0), src.Info().Entries)
	require.NoError(t, src.Reset())
	_, err = src.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestOpenBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not_a_dump.vbin")
	require.NoError(t, os.WriteFile(path, []byte("ROOTfile? definitely not ours, but long enough for a header"), 0o644))

	_, err := Open(path)
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestOpenBadVersion(t *testing.T) {
	path := writeDump(t, []veto.RawEvent{fullEvent(0)})

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	_, err = f.Seek(4, io.SeekStart)
	require.NoError(t, err)
	require.NoError(t, binary.Write(f, binary.LittleEndian, uint16(99)))
	require.NoError(t, f.Close())

	_, err = Open(path)
	assert.ErrorIs(t, err, ErrVersion)
}

func TestTruncatedRecord(t *testing.T) {
	path := writeDump(t, []veto.RawEvent{fullEvent(0), fullEvent(1)})

	fi, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, fi.Size()-10))

	src, err := Open(path)
	require.NoError(t, err)
	defer src.Close()
	require.NoError(t, src.Reset())

	_, err = src.Next()
	require.NoError(t, err)
	_, err = src.Next()
	assert.ErrorIs(t, err, io.EOF, "a torn tail record reads as end of stream")
}

func TestMemSource(t *testing.T) {
	events := []veto.RawEvent{fullEvent(0), fullEvent(1)}
	src := NewMemSource(9500, 1000, 1060, events)

	info := src.Info()
	assert.Equal(t, int64(2), info.Entries)

	require.NoError(t, src.Reset())
	raw, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(0), raw.SEC)
	_, err = src.Next()
	require.NoError(t, err)
	_, err = src.Next()
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, src.Reset())
	raw, err = src.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(0), raw.SEC)
}
