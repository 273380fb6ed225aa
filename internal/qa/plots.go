// Package qa renders diagnostic output for a processed run: static PNG
// spectra for offline inspection and a self-contained HTML dashboard for
// quick browsing.
package qa

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/veto-data/autoveto/internal/veto"
)

// channelsPerPlot groups QDC spectra so the legends stay readable.
const channelsPerPlot = 8

// Plotter writes run diagnostics under a per-run output directory.
type Plotter struct {
	outputDir string
	run       int
}

// NewPlotter creates the output directory for one run.
// Files land in <baseDir>/run_<run>/.
func NewPlotter(baseDir string, run int) (*Plotter, error) {
	dir := filepath.Join(baseDir, fmt.Sprintf("run_%d", run))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	return &Plotter{outputDir: dir, run: run}, nil
}

// OutputDir returns the per-run directory plots are written to.
func (pl *Plotter) OutputDir() string { return pl.outputDir }

// SpectraPlots renders the pedestal-range QDC spectrum of every channel,
// with the derived threshold marked, grouped in blocks of eight channels.
// Returns the number of PNG files written.
func (pl *Plotter) SpectraPlots(finder *veto.ThresholdFinder, threshs veto.ThresholdTable) (int, error) {
	if finder == nil {
		return 0, nil
	}
	count := 0
	for lo := 0; lo < veto.NumChannels; lo += channelsPerPlot {
		hi := lo + channelsPerPlot
		if hi > veto.NumChannels {
			hi = veto.NumChannels
		}
		if err := pl.spectraBlock(finder, threshs, lo, hi); err != nil {
			return count, fmt.Errorf("channels %d-%d: %w", lo, hi-1, err)
		}
		count++
	}
	return count, nil
}

func (pl *Plotter) spectraBlock(finder *veto.ThresholdFinder, threshs veto.ThresholdTable, lo, hi int) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Run %d - QDC Pedestals, Channels %d-%d", pl.run, lo, hi-1)
	p.X.Label.Text = "QDC"
	p.Y.Label.Text = "Counts"
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.LogTicks{}

	colors := generateColors(hi - lo)
	for ch := lo; ch < hi; ch++ {
		pts := histPoints(finder.LowQDC[ch])
		if len(pts) == 0 {
			continue
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = colors[ch-lo]
		line.Width = vg.Points(1)
		p.Add(line)

		label := fmt.Sprintf("ch %d", ch)
		if threshs[ch] != veto.BadThreshold {
			label = fmt.Sprintf("ch %d (t=%d)", ch, threshs[ch])
			marker := thresholdMarker(float64(threshs[ch]), pts, colors[ch-lo])
			if marker != nil {
				p.Add(marker)
			}
		}
		p.Legend.Add(label, line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	file := filepath.Join(pl.outputDir, fmt.Sprintf("qdc_ch%02d_%02d.png", lo, hi-1))
	if err := p.Save(14*vg.Inch, 6*vg.Inch, file); err != nil {
		return fmt.Errorf("save spectra plot: %w", err)
	}
	return nil
}

// MultiplicityPlot renders the multiplicity spectrum from the threshold
// re-scan with the LED classification threshold marked.
func (pl *Plotter) MultiplicityPlot(finder *veto.ThresholdFinder, multipThreshold int) error {
	if finder == nil || finder.Multip == nil {
		return nil
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Run %d - Hit Multiplicity (LED cut at %d)", pl.run, multipThreshold)
	p.X.Label.Text = "Panels Hit"
	p.Y.Label.Text = "Events"

	pts := histPoints(finder.Multip)
	bars, err := plotter.NewHistogram(xyValues(pts), len(pts))
	if err != nil {
		return err
	}
	bars.FillColor = color.RGBA{R: 70, G: 130, B: 180, A: 255}
	p.Add(bars)

	file := filepath.Join(pl.outputDir, "multiplicity.png")
	if err := p.Save(10*vg.Inch, 6*vg.Inch, file); err != nil {
		return fmt.Errorf("save multiplicity plot: %w", err)
	}
	return nil
}

// LEDPlot renders the inter-flash delta-t spectrum around the measured
// period.
func (pl *Plotter) LEDPlot(led *veto.LEDEstimator, stats veto.LEDStats) error {
	if led == nil || led.DeltaT().Entries() == 0 {
		return nil
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Run %d - LED Flash Spacing (period %.3f s)", pl.run, stats.Period)
	p.X.Label.Text = "Delta-t (s)"
	p.Y.Label.Text = "Pairs"

	pts := histPoints(led.DeltaT())
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = color.RGBA{R: 178, G: 34, B: 34, A: 255}
	line.Width = vg.Points(1)
	p.Add(line)

	// Zoom on the populated region.
	if len(pts) > 0 {
		p.X.Min = pts[0].X - 0.5
		p.X.Max = pts[len(pts)-1].X + 0.5
		if p.X.Min < 0 {
			p.X.Min = 0
		}
	}

	file := filepath.Join(pl.outputDir, "led_deltat.png")
	if err := p.Save(10*vg.Inch, 6*vg.Inch, file); err != nil {
		return fmt.Errorf("save LED plot: %w", err)
	}
	return nil
}

// histPoints converts the populated bins of a histogram to XY points.
func histPoints(h *veto.Hist1D) plotter.XYs {
	if h == nil {
		return nil
	}
	pts := make(plotter.XYs, 0, h.Bins())
	for b := 0; b < h.Bins(); b++ {
		if c := h.Count(b); c > 0 {
			pts = append(pts, plotter.XY{X: h.BinCenter(b), Y: c})
		}
	}
	return pts
}

// thresholdMarker builds a vertical tick at the threshold position, scaled to
// the tallest bin of the channel's spectrum.
func thresholdMarker(x float64, pts plotter.XYs, c color.Color) *plotter.Line {
	max := 0.0
	for _, p := range pts {
		if p.Y > max {
			max = p.Y
		}
	}
	if max == 0 {
		return nil
	}
	line, err := plotter.NewLine(plotter.XYs{{X: x, Y: 1}, {X: x, Y: max}})
	if err != nil {
		return nil
	}
	line.Color = c
	line.Width = vg.Points(1)
	line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	return line
}

// xyValues adapts XY points to the plotter.Valuer a histogram expects.
type xyValues plotter.XYs

func (v xyValues) Len() int                    { return len(v) }
func (v xyValues) Value(i int) float64         { return v[i].Y }
func (v xyValues) XY(i int) (float64, float64) { return v[i].X, v[i].Y }

// generateColors creates a palette of distinct colors for channel lines.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}

	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64

	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}

	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 1.0/2.0 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
