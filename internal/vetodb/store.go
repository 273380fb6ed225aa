package vetodb

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/veto-data/autoveto/internal/veto"
)

// EventStore writes one processed run into the database. It implements
// veto.OutputSink: all event rows for the run accumulate in a single
// transaction that commits when the run summary arrives, so a run is either
// fully present or absent.
type EventStore struct {
	db  *DB
	run int

	tx     *sql.Tx
	insert *sql.Stmt
}

// NewEventStore starts a run-scoped write transaction. Any previous output
// for the same run number is replaced.
func NewEventStore(db *DB, run int) (*EventStore, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("starting run transaction: %w", err)
	}
	for _, table := range []string{"events", "runs", "thresholds"} {
		if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE run = ?", table), run); err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("clearing previous output for run %d: %w", run, err)
		}
	}
	insert, err := tx.Prepare(`
		INSERT INTO events (
			run, entry, x_time, sbc_time, time_scaler, time_sbc, led_delta_t,
			multiplicity, total_qdc, sec, qec1, qec2,
			scaler_index, qdc1_index, qdc2_index,
			bad_event, approx_time, qdc, errors, cut_type,
			time_cut, energy_cut, muon_candidate,
			coin_type, plane_hits, plane_true, plane_hit_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("preparing event insert: %w", err)
	}
	return &EventStore{db: db, run: run, tx: tx, insert: insert}, nil
}

// WriteEvent appends one event row to the pending transaction.
func (s *EventStore) WriteEvent(rec *veto.OutputRecord) error {
	errSlots := make([]int, 0, 4)
	for slot, set := range rec.Errors {
		if set {
			errSlots = append(errSlots, slot)
		}
	}
	_, err := s.insert.Exec(
		rec.Run, rec.Entry, rec.XTime, rec.SBCTime, rec.TimeScaler, rec.TimeSBC, rec.LEDDeltaT,
		rec.Multip, rec.TotalQDC, rec.SEC, rec.QEC1, rec.QEC2,
		rec.ScalerIndex, rec.QDC1Index, rec.QDC2Index,
		rec.BadEvent, rec.ApproxTime,
		jsonMust(rec.QDC[:]), jsonMust(errSlots), jsonMust(rec.CutType[:]),
		rec.Muon.TimeCut, rec.Muon.EnergyCut, rec.Muon.Candidate,
		rec.Muon.Type, jsonMust(rec.Muon.PlaneHits[:]), jsonMust(rec.Muon.PlaneTrue[:]), rec.Muon.PlaneHitCount,
	)
	if err != nil {
		return fmt.Errorf("inserting event %d of run %d: %w", rec.Entry, rec.Run, err)
	}
	return nil
}

// WriteSummary records the run-level summary and thresholds, then commits
// the whole run.
func (s *EventStore) WriteSummary(sum *veto.RunSummary) error {
	_, err := s.tx.Exec(`
		INSERT INTO runs (
			run, process_id, entries, start_time, stop_time, duration, livetime,
			first_good_entry, sbc_offset, highest_multiplicity, multiplicity_threshold,
			led_freq, led_period, led_rms, led_bad_freq, led_simple, led_count,
			threshold_margin, total_errors, serious_errors, skipped, error_counts
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.Run, sum.ProcessID, sum.Entries, sum.Start, sum.Stop, sum.Duration, sum.Livetime,
		sum.FirstGoodEntry, sum.SBCOffset, sum.HighestMultip, sum.MultipThreshold,
		sum.LED.Freq, sum.LED.Period, sum.LED.RMS, sum.LED.BadFreq, sum.LED.Simple, sum.LED.Count,
		sum.ThresholdMargin, sum.TotalErrors, sum.SeriousErrors, sum.Skipped,
		jsonMust(sum.ErrorCount[:]),
	)
	if err != nil {
		s.tx.Rollback()
		return fmt.Errorf("inserting summary for run %d: %w", sum.Run, err)
	}
	for ch, thresh := range sum.Thresholds {
		if _, err := s.tx.Exec(
			"INSERT INTO thresholds (run, channel, threshold) VALUES (?, ?, ?)",
			sum.Run, ch, thresh,
		); err != nil {
			s.tx.Rollback()
			return fmt.Errorf("inserting thresholds for run %d: %w", sum.Run, err)
		}
	}
	s.insert.Close()
	if err := s.tx.Commit(); err != nil {
		return fmt.Errorf("committing run %d: %w", sum.Run, err)
	}
	s.tx = nil
	return nil
}

// Abort discards any uncommitted rows. Safe to call after a successful
// WriteSummary.
func (s *EventStore) Abort() error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Rollback()
	s.tx = nil
	if err != nil && err != sql.ErrTxDone {
		return err
	}
	return nil
}

// LoadThresholds returns the stored threshold table for a run, typically one
// produced by a longer calibration run. ok is false when none is stored.
func (db *DB) LoadThresholds(run int) (table veto.ThresholdTable, ok bool, err error) {
	rows, err := db.Query("SELECT channel, threshold FROM thresholds WHERE run = ?", run)
	if err != nil {
		return table, false, fmt.Errorf("loading thresholds for run %d: %w", run, err)
	}
	defer rows.Close()
	n := 0
	for rows.Next() {
		var ch, thresh int
		if err := rows.Scan(&ch, &thresh); err != nil {
			return table, false, err
		}
		if ch < 0 || ch >= veto.NumChannels {
			return table, false, fmt.Errorf("stored threshold for run %d names channel %d", run, ch)
		}
		table[ch] = thresh
		n++
	}
	if err := rows.Err(); err != nil {
		return table, false, err
	}
	return table, n == veto.NumChannels, nil
}

// RunSummaries lists the summaries of all stored runs, most recent run first.
func (db *DB) RunSummaries() ([]veto.RunSummary, error) {
	rows, err := db.Query(`
		SELECT run, process_id, entries, start_time, stop_time, duration, livetime,
		       first_good_entry, sbc_offset, highest_multiplicity, multiplicity_threshold,
		       led_freq, led_period, led_rms, led_bad_freq, led_simple, led_count,
		       threshold_margin, total_errors, serious_errors, skipped, error_counts
		FROM runs ORDER BY run DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing run summaries: %w", err)
	}
	defer rows.Close()
	var sums []veto.RunSummary
	for rows.Next() {
		var sum veto.RunSummary
		var errCounts string
		if err := rows.Scan(
			&sum.Run, &sum.ProcessID, &sum.Entries, &sum.Start, &sum.Stop, &sum.Duration, &sum.Livetime,
			&sum.FirstGoodEntry, &sum.SBCOffset, &sum.HighestMultip, &sum.MultipThreshold,
			&sum.LED.Freq, &sum.LED.Period, &sum.LED.RMS, &sum.LED.BadFreq, &sum.LED.Simple, &sum.LED.Count,
			&sum.ThresholdMargin, &sum.TotalErrors, &sum.SeriousErrors, &sum.Skipped, &errCounts,
		); err != nil {
			return nil, err
		}
		var counts []int
		if err := json.Unmarshal([]byte(errCounts), &counts); err != nil {
			return nil, fmt.Errorf("decoding error counts for run %d: %w", sum.Run, err)
		}
		copy(sum.ErrorCount[:], counts)
		sums = append(sums, sum)
	}
	return sums, rows.Err()
}

// jsonMust encodes values whose types cannot fail to marshal.
func jsonMust(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}
