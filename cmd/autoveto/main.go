// Command autoveto processes one veto run: it calibrates the panel
// thresholds, classifies every event's hardware errors, reconstructs
// per-event timestamps across the dual clocks, characterizes the LED
// flasher, tags muon candidates, and writes the results to SQLite.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/schollz/progressbar/v3"

	"github.com/veto-data/autoveto/internal/config"
	"github.com/veto-data/autoveto/internal/qa"
	"github.com/veto-data/autoveto/internal/rundb"
	"github.com/veto-data/autoveto/internal/veto"
	"github.com/veto-data/autoveto/internal/vetodb"
	"github.com/veto-data/autoveto/internal/vetofile"
)

var (
	runNumber  = flag.Int("run", 0, "Run number to process (required)")
	configPath = flag.String("config", "", "Path to JSON config file")
	dataDir    = flag.String("data", "", "Run dump directory (overrides config)")
	outputDB   = flag.String("db", "", "Output SQLite database (overrides config)")
	errorsOnly = flag.Bool("e", false, "Error check only; report diagnostics, write no output")
	drawPlots  = flag.Bool("d", false, "Draw QA plots and the HTML dashboard")
	calRun     = flag.Int("cal", 0, "Borrow the stored threshold table of this run instead of self-calibrating")
	thresholds = flag.String("thresholds", "", "External calibration: comma-separated channel,threshold pairs for all 32 channels")
	quiet      = flag.Bool("q", false, "Suppress progress bars")
)

func main() {
	flag.Parse()

	if *runNumber <= 0 {
		flag.Usage()
		log.Fatal("a positive -run number is required")
	}

	cfg := loadConfig()

	meta, err := lookupRun(cfg, *runNumber)
	if errors.Is(err, rundb.ErrNoVetoData) {
		log.Fatalf("run %d was taken on module 2, which has no veto panels", *runNumber)
	}
	if err != nil {
		log.Fatalf("resolving run %d: %v", *runNumber, err)
	}

	src, err := vetofile.Open(meta.Path)
	if err != nil {
		log.Fatalf("opening %s: %v", meta.Path, err)
	}
	defer src.Close()

	pipe := &veto.Pipeline{
		Source: src,
		Config: veto.Config{
			ThresholdMargin:    cfg.GetThresholdMargin(),
			LEDSimpleThreshold: cfg.GetLEDSimpleThreshold(),
			LEDMultipMargin:    cfg.GetLEDMultipMargin(),
			EnergyThreshold:    cfg.GetEnergyThreshold(),
			EnergyPanels:       cfg.GetEnergyPanels(),
			ErrorCheckOnly:     *errorsOnly,
		},
	}
	if !*quiet {
		pipe.Progress = &passProgress{}
	}

	var db *vetodb.DB
	var store *vetodb.EventStore
	if !*errorsOnly {
		dbPath := cfg.GetOutputDB()
		if *outputDB != "" {
			dbPath = *outputDB
		}
		db, err = vetodb.New(dbPath)
		if err != nil {
			log.Fatalf("opening output database: %v", err)
		}
		defer db.Close()

		store, err = vetodb.NewEventStore(db, *runNumber)
		if err != nil {
			log.Fatalf("preparing output for run %d: %v", *runNumber, err)
		}
		defer store.Abort()
		pipe.Sink = store
	}

	if table, ok := externalThresholds(db); ok {
		pipe.Thresholds = &table
	}

	sum, err := pipe.Process()
	if err != nil {
		log.Fatalf("processing run %d: %v", *runNumber, err)
	}

	if *drawPlots {
		drawQA(cfg, pipe, sum)
	}

	if *errorsOnly {
		log.Printf("run %d: error check complete, %d total / %d serious errors over %d entries",
			sum.Run, sum.TotalErrors, sum.SeriousErrors, sum.Entries)
		return
	}
	log.Printf("run %d: processed %d entries (%d skipped), %d muon candidates written",
		sum.Run, sum.Entries, sum.Skipped, countCandidates(db, sum.Run))
}

// loadConfig reads the config file when given, otherwise runs on built-in
// defaults.
func loadConfig() *config.TuningConfig {
	if *configPath == "" {
		return config.EmptyTuningConfig()
	}
	cfg, err := config.LoadTuningConfig(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	return cfg
}

// lookupRun resolves the run through the DAQ database when one is configured,
// falling back to scanning the data directory.
func lookupRun(cfg *config.TuningConfig, run int) (rundb.RunMeta, error) {
	if host := cfg.GetRunDBHost(); host != "" {
		conn, err := rundb.Connect(cfg.GetRunDBUser(), cfg.GetRunDBPass(), host, cfg.GetRunDBName())
		if err != nil {
			return rundb.RunMeta{}, fmt.Errorf("connecting to run database: %w", err)
		}
		defer conn.Close()
		return rundb.NewSQLCatalog(conn).Lookup(run)
	}
	dir := cfg.GetDataDir()
	if *dataDir != "" {
		dir = *dataDir
	}
	cat := &rundb.DirCatalog{Dir: dir}
	return cat.Lookup(run)
}

// externalThresholds resolves the -thresholds and -cal flags, in that order
// of precedence. ok is false when the run should self-calibrate.
func externalThresholds(db *vetodb.DB) (veto.ThresholdTable, bool) {
	if *thresholds != "" {
		pairs, err := parseCSVIntSlice(*thresholds)
		if err != nil {
			log.Fatalf("parsing -thresholds: %v", err)
		}
		table, err := veto.ParseThresholdList(pairs)
		if err != nil {
			log.Fatalf("parsing -thresholds: %v", err)
		}
		return table, true
	}
	if *calRun > 0 {
		if db == nil {
			log.Fatal("-cal requires database output; it cannot be combined with -e")
		}
		table, ok, err := db.LoadThresholds(*calRun)
		if err != nil {
			log.Fatalf("loading thresholds of run %d: %v", *calRun, err)
		}
		if !ok {
			log.Fatalf("run %d has no complete stored threshold table; process it first", *calRun)
		}
		log.Printf("using threshold table of run %d", *calRun)
		return table, true
	}
	return veto.ThresholdTable{}, false
}

func drawQA(cfg *config.TuningConfig, pipe *veto.Pipeline, sum *veto.RunSummary) {
	pl, err := qa.NewPlotter(cfg.GetPlotsDir(), sum.Run)
	if err != nil {
		log.Printf("QA plots unavailable: %v", err)
		return
	}
	if n, err := pl.SpectraPlots(pipe.Finder(), sum.Thresholds); err != nil {
		log.Printf("QA spectra (after %d files): %v", n, err)
	}
	if err := pl.MultiplicityPlot(pipe.Finder(), sum.MultipThreshold); err != nil {
		log.Printf("QA multiplicity plot: %v", err)
	}
	if err := pl.LEDPlot(pipe.LED(), sum.LED); err != nil {
		log.Printf("QA LED plot: %v", err)
	}
	if err := pl.Dashboard(sum, pipe.Finder()); err != nil {
		log.Printf("QA dashboard: %v", err)
	}
	log.Printf("QA output in %s", pl.OutputDir())
}

func countCandidates(db *vetodb.DB, run int) int {
	var n int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM events WHERE run = ? AND muon_candidate = 1", run).Scan(&n)
	if err != nil {
		return 0
	}
	return n
}

// passProgress renders one terminal progress bar per pipeline pass.
type passProgress struct {
	bar *progressbar.ProgressBar
}

func (p *passProgress) StartPass(name string, entries int64) {
	p.bar = progressbar.Default(entries, name)
}

func (p *passProgress) Step() {
	if p.bar != nil {
		_ = p.bar.Add(1)
	}
}

// parseCSVIntSlice parses a comma-separated list of ints
func parseCSVIntSlice(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid int '%s': %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}
