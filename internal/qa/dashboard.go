package qa

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/veto-data/autoveto/internal/veto"
)

// Dashboard writes a single self-contained HTML page summarizing one run:
// error slot counts, the multiplicity spectrum, and the per-channel
// thresholds. Intended for quick browsing without opening the database.
func (pl *Plotter) Dashboard(sum *veto.RunSummary, finder *veto.ThresholdFinder) error {
	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("Veto Run %d", sum.Run)

	page.AddCharts(
		errorBar(sum),
		thresholdBar(sum),
	)
	if finder != nil && finder.Multip != nil {
		page.AddCharts(multiplicityBar(sum, finder))
	}

	file := filepath.Join(pl.outputDir, "summary.html")
	f, err := os.Create(file)
	if err != nil {
		return fmt.Errorf("creating dashboard file: %w", err)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		return fmt.Errorf("failed to render dashboard: %v", err)
	}
	return nil
}

func errorBar(sum *veto.RunSummary) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Run %d Error Slots", sum.Run),
			Subtitle: fmt.Sprintf("total=%d serious=%d skipped=%d", sum.TotalErrors, sum.SeriousErrors, sum.Skipped),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)

	labels := make([]string, 0, veto.NumErrorTypes-1)
	data := make([]opts.BarData, 0, veto.NumErrorTypes-1)
	for slot := 1; slot < veto.NumErrorTypes; slot++ {
		labels = append(labels, fmt.Sprintf("%d", slot))
		data = append(data, opts.BarData{Value: sum.ErrorCount[slot]})
	}
	bar.SetXAxis(labels).AddSeries("events", data)
	return bar
}

func thresholdBar(sum *veto.RunSummary) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Software Thresholds",
			Subtitle: fmt.Sprintf("pedestal + %d", sum.ThresholdMargin),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)

	labels := make([]string, 0, veto.NumChannels)
	data := make([]opts.BarData, 0, veto.NumChannels)
	for ch := 0; ch < veto.NumChannels; ch++ {
		labels = append(labels, fmt.Sprintf("%d", ch))
		v := sum.Thresholds[ch]
		if v == veto.BadThreshold {
			v = 0
		}
		data = append(data, opts.BarData{Value: v})
	}
	bar.SetXAxis(labels).AddSeries("threshold", data)
	return bar
}

func multiplicityBar(sum *veto.RunSummary, finder *veto.ThresholdFinder) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Hit Multiplicity",
			Subtitle: fmt.Sprintf("LED cut at %d, highest %d", sum.MultipThreshold, sum.HighestMultip),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)

	h := finder.Multip
	labels := make([]string, 0, h.Bins())
	data := make([]opts.BarData, 0, h.Bins())
	for b := 0; b < h.Bins(); b++ {
		labels = append(labels, fmt.Sprintf("%d", b))
		data = append(data, opts.BarData{Value: h.Count(b)})
	}
	bar.SetXAxis(labels).AddSeries("events", data)
	return bar
}
