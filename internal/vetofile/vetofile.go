// Package vetofile reads and writes flat binary dumps of one run's veto
// events. A dump is the offline interchange format between the DAQ export
// and the processing pipeline: a fixed header followed by fixed-size
// little-endian records, which makes the rewind-per-pass cursor a plain
// seek.
package vetofile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/bits"
	"os"

	"github.com/veto-data/autoveto/internal/veto"
)

// Magic identifies a veto run dump.
var Magic = [4]byte{'V', 'E', 'T', 'O'}

// FormatVersion is the record layout version this package reads and writes.
const FormatVersion uint16 = 1

var (
	// ErrBadMagic reports a file that is not a veto run dump.
	ErrBadMagic = errors.New("vetofile: bad magic")
	// ErrVersion reports an unsupported record layout version.
	ErrVersion = errors.New("vetofile: unsupported format version")
)

// fileHeader is the on-disk run header.
type fileHeader struct {
	Magic   [4]byte
	Version uint16
	_       [2]byte
	Run     uint32
	Start   int64
	Stop    int64
	Entries uint32
	_       [4]byte
}

// record is the on-disk event layout. Present channels are flagged in
// HitMask; DupMask marks channels that arrived twice in the packet.
type record struct {
	QDC         [veto.NumChannels]uint16
	SEC         uint32
	QEC1        uint32
	QEC2        uint32
	ScalerIndex uint32
	QDC1Index   uint32
	QDC2Index   uint32
	ScalerReg   uint64
	TimeScaler  float64
	TimeSBC     float64
	HitMask     uint32
	DupMask     uint32
	Flags       uint8
	_           [7]byte
}

// record flag bits.
const (
	flagScalerOnly  = 1 << 0
	flagCastFailed  = 1 << 1
	flagUnknownCard = 1 << 2
)

var headerSize = int64(binary.Size(fileHeader{}))

// FileSource is a replayable cursor over a run dump, satisfying
// veto.EventSource.
type FileSource struct {
	f    *os.File
	info veto.RunInfo
	run  int
}

// Open opens a run dump and validates its header.
func Open(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening run dump: %w", err)
	}
	var hdr fileHeader
	if err := binary.Read(f, binary.LittleEndian, &hdr); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading run dump header: %w", err)
	}
	if hdr.Magic != Magic {
		f.Close()
		return nil, ErrBadMagic
	}
	if hdr.Version != FormatVersion {
		f.Close()
		return nil, fmt.Errorf("%w: %d", ErrVersion, hdr.Version)
	}
	return &FileSource{
		f:   f,
		run: int(hdr.Run),
		info: veto.RunInfo{
			Number:  int(hdr.Run),
			Start:   hdr.Start,
			Stop:    hdr.Stop,
			Entries: int64(hdr.Entries),
		},
	}, nil
}

// Info returns the run metadata from the dump header.
func (s *FileSource) Info() veto.RunInfo { return s.info }

// Reset rewinds the cursor to the first entry.
func (s *FileSource) Reset() error {
	_, err := s.f.Seek(headerSize, io.SeekStart)
	return err
}

// Next decodes the next event record. Returns io.EOF after the last entry.
func (s *FileSource) Next() (*veto.RawEvent, error) {
	var rec record
	if err := binary.Read(s.f, binary.LittleEndian, &rec); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	raw := &veto.RawEvent{
		Run:         s.run,
		SEC:         int64(rec.SEC),
		QEC1:        int64(rec.QEC1),
		QEC2:        int64(rec.QEC2),
		ScalerIndex: int64(rec.ScalerIndex),
		QDC1Index:   int64(rec.QDC1Index),
		QDC2Index:   int64(rec.QDC2Index),
		ScalerReg:   rec.ScalerReg,
		TimeScaler:  rec.TimeScaler,
		TimeSBC:     rec.TimeSBC,
		ScalerOnly:  rec.Flags&flagScalerOnly != 0,
		CastFailed:  rec.Flags&flagCastFailed != 0,
		UnknownCard: rec.Flags&flagUnknownCard != 0,
	}
	raw.Hits = make([]veto.ChannelHit, 0, bits.OnesCount32(rec.HitMask)+bits.OnesCount32(rec.DupMask))
	for ch := 0; ch < veto.NumChannels; ch++ {
		if rec.HitMask&(uint32(1)<<ch) == 0 {
			continue
		}
		raw.Hits = append(raw.Hits, veto.ChannelHit{Channel: ch, QDC: int(rec.QDC[ch])})
		if rec.DupMask&(uint32(1)<<ch) != 0 {
			raw.Hits = append(raw.Hits, veto.ChannelHit{Channel: ch, QDC: int(rec.QDC[ch])})
		}
	}
	return raw, nil
}

// Close releases the underlying file.
func (s *FileSource) Close() error { return s.f.Close() }

// Writer produces a run dump. Records stream to disk; Close patches the
// entry count into the header.
type Writer struct {
	f       *os.File
	entries uint32
}

// Create starts a new run dump for the given run metadata.
func Create(path string, run int, start, stop int64) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating run dump: %w", err)
	}
	hdr := fileHeader{
		Magic:   Magic,
		Version: FormatVersion,
		Run:     uint32(run),
		Start:   start,
		Stop:    stop,
	}
	if err := binary.Write(f, binary.LittleEndian, &hdr); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing run dump header: %w", err)
	}
	return &Writer{f: f}, nil
}

// Append writes one event record. Hits on out-of-range channels are dropped;
// a channel appearing more than twice collapses to a duplicate pair.
func (w *Writer) Append(raw *veto.RawEvent) error {
	rec := record{
		SEC:         uint32(raw.SEC),
		QEC1:        uint32(raw.QEC1),
		QEC2:        uint32(raw.QEC2),
		ScalerIndex: uint32(raw.ScalerIndex),
		QDC1Index:   uint32(raw.QDC1Index),
		QDC2Index:   uint32(raw.QDC2Index),
		ScalerReg:   raw.ScalerReg,
		TimeScaler:  raw.TimeScaler,
		TimeSBC:     raw.TimeSBC,
	}
	if raw.ScalerOnly {
		rec.Flags |= flagScalerOnly
	}
	if raw.CastFailed {
		rec.Flags |= flagCastFailed
	}
	if raw.UnknownCard {
		rec.Flags |= flagUnknownCard
	}
	for _, hit := range raw.Hits {
		if hit.Channel < 0 || hit.Channel >= veto.NumChannels {
			continue
		}
		bit := uint32(1) << hit.Channel
		if rec.HitMask&bit != 0 {
			rec.DupMask |= bit
			continue
		}
		rec.HitMask |= bit
		rec.QDC[hit.Channel] = uint16(hit.QDC)
	}
	if err := binary.Write(w.f, binary.LittleEndian, &rec); err != nil {
		return fmt.Errorf("writing event record: %w", err)
	}
	w.entries++
	return nil
}

// Close finalizes the header and closes the file.
func (w *Writer) Close() error {
	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		w.f.Close()
		return err
	}
	hdr := fileHeader{Magic: Magic, Version: FormatVersion}
	if err := binary.Read(w.f, binary.LittleEndian, &hdr); err != nil {
		w.f.Close()
		return err
	}
	hdr.Entries = w.entries
	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		w.f.Close()
		return err
	}
	if err := binary.Write(w.f, binary.LittleEndian, &hdr); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}
