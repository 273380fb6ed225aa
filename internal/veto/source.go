package veto

// RunInfo is the run metadata the pipeline needs from the event source.
type RunInfo struct {
	Number  int
	Start   int64 // unix seconds, acquisition start
	Stop    int64 // unix seconds, acquisition stop
	Entries int64
}

// EventSource is a sequential, replayable cursor over one run's events.
// Reset rewinds to the first entry; each pass calls it once. Next returns
// io.EOF (possibly wrapped) after the last entry.
type EventSource interface {
	Info() RunInfo
	Reset() error
	Next() (*RawEvent, error)
}

// OutputSink accepts one record per input event, in entry order, followed by
// exactly one run summary.
type OutputSink interface {
	WriteEvent(rec *OutputRecord) error
	WriteSummary(sum *RunSummary) error
}

// Progressor receives pass progress for user-facing reporting. All methods
// may be called with a nil receiver guarded by the pipeline; implementations
// must not influence processing.
type Progressor interface {
	StartPass(name string, entries int64)
	Step()
}
