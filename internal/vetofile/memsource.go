package vetofile

import (
	"io"

	"github.com/veto-data/autoveto/internal/veto"
)

// MemSource serves a run's events from memory. It exists for tests and for
// synthetic-run tooling; the pipeline treats it exactly like a file-backed
// dump.
type MemSource struct {
	RunInfo veto.RunInfo
	Events  []veto.RawEvent
	pos     int
}

// NewMemSource builds an in-memory source. The entry count in the run info
// is derived from the event slice.
func NewMemSource(run int, start, stop int64, events []veto.RawEvent) *MemSource {
	return &MemSource{
		RunInfo: veto.RunInfo{
			Number:  run,
			Start:   start,
			Stop:    stop,
			Entries: int64(len(events)),
		},
		Events: events,
	}
}

// Info returns the run metadata.
func (s *MemSource) Info() veto.RunInfo { return s.RunInfo }

// Reset rewinds to the first event.
func (s *MemSource) Reset() error {
	s.pos = 0
	return nil
}

// Next returns the next event, or io.EOF past the end.
func (s *MemSource) Next() (*veto.RawEvent, error) {
	if s.pos >= len(s.Events) {
		return nil, io.EOF
	}
	ev := &s.Events[s.pos]
	s.pos++
	return ev, nil
}
