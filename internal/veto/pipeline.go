package veto

import (
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/veto-data/autoveto/internal/monitoring"
)

// Config holds the pipeline tunables. The zero value selects the documented
// defaults for every field.
type Config struct {
	ThresholdMargin    int  // QDC counts above pedestal, default 35
	LEDSimpleThreshold int  // multiplicity for an LED-qualifying event, default 10
	LEDMultipMargin    int  // classification threshold margin, default 5
	EnergyThreshold    int  // QDC muon energy cut, default 500
	EnergyPanels       int  // panels over energy threshold required, default 2
	ErrorCheckOnly     bool // stop after the diagnostics pass, emit no output
}

func (c Config) withDefaults() Config {
	if c.ThresholdMargin <= 0 {
		c.ThresholdMargin = DefaultThresholdMargin
	}
	if c.LEDSimpleThreshold <= 0 {
		c.LEDSimpleThreshold = DefaultLEDSimpleThreshold
	}
	if c.LEDMultipMargin <= 0 {
		c.LEDMultipMargin = DefaultLEDMultipMargin
	}
	if c.EnergyThreshold <= 0 {
		c.EnergyThreshold = DefaultEnergyThreshold
	}
	if c.EnergyPanels <= 0 {
		c.EnergyPanels = DefaultEnergyCutPanels
	}
	return c
}

// cursor is the event-to-event history threaded through each pass: the
// previous non-skipped event, the first good event, and the entry index of
// the previous non-skipped entry. A skipped event never becomes "previous".
type cursor struct {
	prev          Event
	first         Event
	prevGoodEntry int64
}

func newCursor(first Event) cursor {
	return cursor{prev: EmptyEvent(), first: first}
}

func (c *cursor) advance(ev *Event) {
	c.prev = *ev
	c.prevGoodEntry = ev.Entry
}

// Pipeline drives the per-run processing: threshold calibration, the
// first-scan summary pass, the error-accounting pass, and the classification
// pass that emits output records. It owns all mutable run state for the
// duration of Process.
type Pipeline struct {
	Source EventSource
	Sink   OutputSink // may be nil with ErrorCheckOnly
	Config Config

	// Progress, when set, receives pass boundaries and per-entry steps.
	Progress Progressor

	// Thresholds, when set, supplies an external calibration and skips
	// the calibration passes.
	Thresholds *ThresholdTable

	finder      *ThresholdFinder
	led         *LEDEstimator
	timeHistory *TimeHistory
	firstGood   Event
}

// Finder exposes the calibration spectra accumulated by Process, for QA
// plotting. Nil when an external threshold table was supplied.
func (p *Pipeline) Finder() *ThresholdFinder { return p.finder }

// LED exposes the flash-period estimator after Process, for QA plotting.
func (p *Pipeline) LED() *LEDEstimator { return p.led }

// forEach performs one pass over the stream: rewind, normalize each entry
// against threshs, and apply fn in entry order.
func (p *Pipeline) forEach(name string, threshs ThresholdTable, fn func(ev *Event)) error {
	if err := p.Source.Reset(); err != nil {
		return fmt.Errorf("rewinding source for %s pass: %w", name, err)
	}
	info := p.Source.Info()
	if p.Progress != nil {
		p.Progress.StartPass(name, info.Entries)
	}
	for entry := int64(0); ; entry++ {
		raw, err := p.Source.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s pass, entry %d: %w", name, entry, err)
		}
		ev := Normalize(raw, entry, info.Number, threshs)
		fn(&ev)
		if p.Progress != nil {
			p.Progress.Step()
		}
	}
}

// Process runs all configured passes and returns the run summary. Only
// source and sink failures are fatal; per-event anomalies are folded into
// the error accounting.
func (p *Pipeline) Process() (*RunSummary, error) {
	cfg := p.Config.withDefaults()
	info := p.Source.Info()

	sum := &RunSummary{
		ProcessID:       uuid.NewString(),
		Run:             info.Number,
		Entries:         info.Entries,
		Start:           info.Start,
		Stop:            info.Stop,
		Duration:        float64(info.Stop - info.Start),
		FirstGoodEntry:  -1,
		ThresholdMargin: cfg.ThresholdMargin,
	}

	if p.Thresholds != nil {
		sum.Thresholds = *p.Thresholds
	} else {
		threshs, err := p.calibrate(cfg, info)
		if err != nil {
			return nil, err
		}
		sum.Thresholds = threshs
	}

	if err := p.firstScan(cfg, info, sum); err != nil {
		return nil, err
	}
	if err := p.errorScan(sum); err != nil {
		return nil, err
	}
	tallyErrors(sum)
	monitoring.Logf("%s", RunReport(sum))

	if cfg.ErrorCheckOnly {
		return sum, nil
	}
	if err := p.classify(cfg, sum); err != nil {
		return nil, err
	}
	if err := p.Sink.WriteSummary(sum); err != nil {
		return nil, fmt.Errorf("writing run summary: %w", err)
	}
	return sum, nil
}

// calibrate derives the software thresholds: one pass with the permissive
// table to locate pedestals, then a re-scan with the derived thresholds to
// build the multiplicity spectrum for QA.
func (p *Pipeline) calibrate(cfg Config, info RunInfo) (ThresholdTable, error) {
	p.finder = NewThresholdFinder(cfg.ThresholdMargin)
	allPass := AllPassThresholds()

	cur := newCursor(EmptyEvent())
	err := p.forEach("calibration", allPass, func(ev *Event) {
		if _, skip := CheckEvent(ev, &cur.prev, &cur.first, cur.prevGoodEntry); skip {
			p.finder.Skipped++
			return
		}
		p.finder.Fill(ev)
		cur.advance(ev)
	})
	if err != nil {
		return ThresholdTable{}, err
	}
	if p.finder.Skipped > 0 {
		monitoring.Logf("calibration skipped %d of %d entries", p.finder.Skipped, info.Entries)
	}
	threshs := p.finder.Thresholds(info.Number)

	cur = newCursor(EmptyEvent())
	err = p.forEach("multiplicity", threshs, func(ev *Event) {
		if _, skip := CheckEvent(ev, &cur.prev, &cur.first, cur.prevGoodEntry); skip {
			return
		}
		p.finder.FillMultiplicity(ev)
		cur.advance(ev)
	})
	if err != nil {
		return ThresholdTable{}, err
	}
	return threshs, nil
}

// firstScan establishes the first good event, the SBC offset, the highest
// multiplicity, the LED period, and the provisional per-entry time history.
func (p *Pipeline) firstScan(cfg Config, info RunInfo, sum *RunSummary) error {
	led := NewLEDEstimator(cfg.LEDSimpleThreshold)
	p.led = led
	hist := &TimeHistory{}
	cur := newCursor(EmptyEvent())

	foundFirst := false
	foundFirstScaler := false
	var firstGoodScaler, prevGoodTime float64
	highest := 0

	err := p.forEach("scan", sum.Thresholds, func(ev *Event) {
		var xt float64
		if !ev.BadScaler {
			xt = ev.TimeScaler
		} else if info.Entries > 0 {
			// Provisional estimate; replaced by the corrected time
			// in the error pass. Breaks down when the duration is
			// corrupted, which the run-level check repairs later.
			xt = float64(ev.Entry) / float64(info.Entries) * sum.Duration
		}
		hist.Append(ev.Entry, xt, ev.BadScaler)

		// A missing packet casts doubt on the current first-good
		// candidate; keep looking.
		if foundFirst && ev.Flags[ErrMissingChannels] {
			foundFirst = false
		}
		if !foundFirstScaler && !ev.BadScaler {
			foundFirstScaler = true
			firstGoodScaler = ev.TimeScaler
		}
		if _, skip := CheckEvent(ev, &cur.prev, &cur.first, cur.prevGoodEntry); skip {
			sum.Skipped++
			return
		}
		if !foundFirst && ev.TimeSBC > 0 && ev.TimeScaler > 0 && !ev.BadScaler {
			cur.first = *ev
			foundFirst = true
		}
		if ev.Multip > highest {
			highest = ev.Multip
		}
		led.Observe(ev, &cur.prev)
		prevGoodTime = xt
		cur.advance(ev)
	})
	if err != nil {
		return err
	}

	sum.FirstGoodEntry = cur.first.Entry
	if cur.first.Entry != -1 {
		sum.SBCOffset = cur.first.TimeSBC - cur.first.TimeScaler
	}
	if sum.Duration <= 0 {
		monitoring.Logf("corrupted duration %.1f (start %d stop %d); reconstructed from last good timestamp %.1f",
			sum.Duration, sum.Start, sum.Stop, prevGoodTime-firstGoodScaler)
		sum.Duration = prevGoodTime - firstGoodScaler
	}
	sum.Livetime = sum.Duration - (cur.first.TimeScaler - firstGoodScaler)

	sum.HighestMultip = highest
	sum.MultipThreshold = highest - cfg.LEDMultipMargin
	if sum.MultipThreshold < 0 {
		sum.MultipThreshold = 0
	}

	sum.LED = led.Estimate(sum.Duration, info.Entries)
	if sum.LED.Off() {
		sum.ErrorCount[ErrNoUsableClock]++
	}
	p.timeHistory = hist
	p.firstGood = cur.first
	return nil
}

// errorScan is the diagnostics pass: every event is classified, every error
// slot tallied, corrected timestamps computed and written back into the time
// history, and serious errors reported as they appear.
func (p *Pipeline) errorScan(sum *RunSummary) error {
	sync := NewSynchronizer(sum.SBCOffset)
	cur := newCursor(p.firstGood)

	return p.forEach("errors", sum.Thresholds, func(ev *Event) {
		errs, skip := CheckEvent(ev, &cur.prev, &cur.first, cur.prevGoodEntry)
		for j := range errs {
			if errs[j] {
				sum.ErrorCount[j]++
			}
		}

		xt, sbcTime, _, err := sync.Correct(ev, &errs, p.timeHistory)
		if err != nil {
			monitoring.Logf("entry %d: time correction failed: %v", ev.Entry, err)
			xt = -1
		}
		p.timeHistory.Update(ev.Entry, xt)

		reportSeriousErrors(ev, &cur.prev, &errs, xt, sbcTime)

		sync.Advance(ev, sbcTime)
		if !skip {
			cur.advance(ev)
		}
	})
}

// classify is the final pass: tag muon candidates and emit one output record
// per event, bad events included.
func (p *Pipeline) classify(cfg Config, sum *RunSummary) error {
	sync := NewSynchronizer(sum.SBCOffset)
	cur := newCursor(p.firstGood)
	tagger := &MuonTagger{
		MultipThreshold: sum.MultipThreshold,
		LEDOff:          sum.LED.Off(),
		EnergyThreshold: cfg.EnergyThreshold,
		EnergyPanels:    cfg.EnergyPanels,
	}
	var sinkErr error
	var prevLEDTime float64

	err := p.forEach("muons", sum.Thresholds, func(ev *Event) {
		if sinkErr != nil {
			return
		}
		errs, skip := CheckEvent(ev, &cur.prev, &cur.first, cur.prevGoodEntry)

		xt, sbcTime, approx, err := sync.Correct(ev, &errs, p.timeHistory)
		if err != nil {
			monitoring.Logf("entry %d: time correction failed: %v", ev.Entry, err)
			xt, approx = -1, true
		}

		rec := &OutputRecord{
			Run:         ev.Run,
			Entry:       ev.Entry,
			QDC:         ev.QDC,
			Multip:      ev.Multip,
			TotalQDC:    ev.TotalQDC,
			SEC:         ev.SEC,
			QEC1:        ev.QEC1,
			QEC2:        ev.QEC2,
			ScalerIndex: ev.ScalerIndex,
			QDC1Index:   ev.QDC1Index,
			QDC2Index:   ev.QDC2Index,
			TimeScaler:  ev.TimeScaler,
			TimeSBC:     ev.TimeSBC,
			XTime:       xt,
			SBCTime:     sbcTime,
			LEDDeltaT:   xt - prevLEDTime,
			BadEvent:    skip,
			ApproxTime:  approx,
			Errors:      errs,
		}

		if !skip {
			rec.Muon = tagger.Tag(ev)
			if rec.Muon.Candidate {
				monitoring.Logf("hit: %-12s entry %-4d time %-6.2f qdc %-5d mult %d ledOff %t approx %t",
					CoinTypeName(rec.Muon.Type), ev.Entry, xt, ev.TotalQDC, ev.Multip, tagger.LEDOff, approx)
			}
		}
		rec.CutType = [NumCutTypes]bool{
			CutLEDOff:     tagger.LEDOff,
			CutEnergy:     rec.Muon.EnergyCut,
			CutApproxTime: approx,
			CutTime:       rec.Muon.TimeCut,
			CutBadLEDFreq: sum.LED.BadFreq,
		}

		if err := p.Sink.WriteEvent(rec); err != nil {
			sinkErr = fmt.Errorf("writing entry %d: %w", ev.Entry, err)
			return
		}

		sync.Advance(ev, sbcTime)
		if !skip {
			if ev.Multip > sum.MultipThreshold {
				prevLEDTime = xt
			}
			cur.advance(ev)
		}
	})
	if err != nil {
		return err
	}
	return sinkErr
}

// tallyErrors rolls the per-slot counts into the run totals. Slots 10 and 11
// stay out of the total: they are expected whenever the hardware counters are
// not reset at run start.
func tallyErrors(sum *RunSummary) {
	for i := 1; i < NumErrorTypes; i++ {
		if i != ErrSECVsEntry && i != ErrSECVsQEC1 {
			sum.TotalErrors += sum.ErrorCount[i]
		}
		if i == ErrNoUsableClock && sum.ErrorCount[i] > 0 {
			sum.SeriousErrors += sum.ErrorCount[i]
		}
		for _, j := range SeriousErrors {
			if i == j {
				sum.SeriousErrors += sum.ErrorCount[i]
			}
		}
	}
}
