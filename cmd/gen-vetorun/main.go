// Command gen-vetorun generates a synthetic veto run dump for pipeline and
// replay testing: pedestal noise on all channels, periodic LED flashes, and a
// few injected muon-like events.
package main

import (
	"flag"
	"log"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/veto-data/autoveto/internal/rundb"
	"github.com/veto-data/autoveto/internal/veto"
	"github.com/veto-data/autoveto/internal/vetofile"
)

func main() {
	run := flag.Int("run", 10000, "Run number to stamp into the header")
	dir := flag.String("o", ".", "Output directory")
	entries := flag.Int("n", 3000, "Number of entries")
	rate := flag.Float64("rate", 5, "Trigger rate in Hz")
	ledPeriod := flag.Float64("led", 0.2, "LED flash period in seconds (0 disables the LED)")
	muons := flag.Int("muons", 3, "Number of injected muon-like events")
	seed := flag.Int64("seed", 0, "Random seed (0 uses the current time)")
	flag.Parse()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(*seed))

	dt := 1.0 / *rate
	start := time.Now().Unix()
	stop := start + int64(float64(*entries)*dt)

	path := filepath.Join(*dir, rundb.RunFileName(*run))
	w, err := vetofile.Create(path, *run, start, stop)
	if err != nil {
		log.Fatalf("gen-vetorun: %v", err)
	}

	muonAt := make(map[int]bool, *muons)
	for len(muonAt) < *muons && *entries > 1 {
		muonAt[1+rng.Intn(*entries-1)] = true
	}

	nextFlash := *ledPeriod
	for i := 0; i < *entries; i++ {
		t := float64(i) * dt
		ev := pedestalEvent(rng, *run, int64(i), t)
		switch {
		case muonAt[i]:
			// Through-going track: both bottom planes plus the inner top.
			for _, ch := range []int{0, 6, 20} {
				ev.Hits[ch].QDC = 700 + rng.Intn(300)
			}
		case *ledPeriod > 0 && t >= nextFlash:
			for ch := 0; ch < 22; ch++ {
				ev.Hits[ch].QDC = 550 + rng.Intn(150)
			}
			nextFlash += *ledPeriod
		}
		if err := w.Append(&ev); err != nil {
			log.Fatalf("gen-vetorun: entry %d: %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		log.Fatalf("gen-vetorun: %v", err)
	}
	log.Printf("wrote %s: run %d, %d entries, seed %d", path, *run, *entries, *seed)
}

func pedestalEvent(rng *rand.Rand, run int, entry int64, t float64) veto.RawEvent {
	ev := veto.RawEvent{
		Run:         run,
		SEC:         entry,
		QEC1:        entry,
		QEC2:        entry,
		ScalerIndex: 3 * entry,
		QDC1Index:   3*entry + 1,
		QDC2Index:   3*entry + 2,
		TimeScaler:  t,
		TimeSBC:     t + 100,
	}
	for ch := 0; ch < veto.NumChannels; ch++ {
		ev.Hits = append(ev.Hits, veto.ChannelHit{Channel: ch, QDC: 35 + rng.Intn(10)})
	}
	return ev
}
