// Package monitoring carries run-level diagnostics out of the processing
// packages without binding them to a concrete logger. The veto pipeline
// reports serious per-event errors and run summaries through Logf; tests
// mute or capture it, the CLI leaves the default in place.
package monitoring

import (
	"fmt"
	"log"
	"sync"
)

var (
	mu   sync.Mutex
	logf func(format string, v ...interface{}) = log.Printf
)

// Logf formats and forwards one diagnostic line to the installed sink.
func Logf(format string, v ...interface{}) {
	mu.Lock()
	f := logf
	mu.Unlock()
	f(format, v...)
}

// SetLogger replaces the diagnostic sink. Passing nil mutes diagnostics.
func SetLogger(f func(format string, v ...interface{})) {
	mu.Lock()
	defer mu.Unlock()
	if f == nil {
		logf = func(string, ...interface{}) {}
		return
	}
	logf = f
}

// Capture installs a sink that appends each formatted line to a slice and
// returns a restore function. Intended for tests that assert on diagnostics.
func Capture(lines *[]string) (restore func()) {
	SetLogger(func(format string, v ...interface{}) {
		*lines = append(*lines, fmt.Sprintf(format, v...))
	})
	return func() { SetLogger(log.Printf) }
}
