// Package report renders per-region match diagnostics: a separation
// histogram image and an interactive HTML page.
package report

import (
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/truthmatch/internal/fsutil"
	"github.com/banshee-data/truthmatch/internal/match"
)

// ErrNoData is returned when there are no separations to plot.
var ErrNoData = errors.New("no matched separations")

// HistogramBins is the number of separation bins in both renderings.
const HistogramBins = 40

// MaxScatterPoints bounds the positions drawn in the HTML sky scatter.
const MaxScatterPoints = 20000

// Region carries what the report shows for one region.
type Region struct {
	Name  string
	Tract string
	Stats match.Stats

	// Separations of unique matches, arcsec.
	Separations []float64

	// Truth positions (ra, dec degrees), split by whether they were matched.
	Matched   [][2]float64
	Unmatched [][2]float64
}

// BaseName is the file name stem shared by a region's outputs.
func (r *Region) BaseName() string {
	return fmt.Sprintf("%s_tract%s", r.Name, r.Tract)
}

// Write stores the histogram PNG and HTML report for r in dir and returns
// the paths written. A region with no matches gets only the HTML report.
func Write(fsys fsutil.FileSystem, dir string, r *Region) ([]string, error) {
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create plot directory: %w", err)
	}

	var written []string
	pngPath := filepath.Join(dir, r.BaseName()+"_sep.png")
	if err := saveFile(fsys, pngPath, func(w io.Writer) error { return WriteSeparationHistogram(w, r) }); err != nil {
		if !errors.Is(err, ErrNoData) {
			return written, err
		}
	} else {
		written = append(written, pngPath)
	}

	htmlPath := filepath.Join(dir, r.BaseName()+"_report.html")
	if err := saveFile(fsys, htmlPath, func(w io.Writer) error { return RenderHTML(w, r) }); err != nil {
		return written, err
	}
	return append(written, htmlPath), nil
}

func saveFile(fsys fsutil.FileSystem, path string, render func(io.Writer) error) error {
	f, err := fsys.Create(path)
	if err != nil {
		return err
	}
	if err := render(f); err != nil {
		f.Close()
		_ = fsys.Remove(path)
		return err
	}
	return f.Close()
}

// WriteSeparationHistogram draws the distribution of unique match
// separations as a PNG.
func WriteSeparationHistogram(w io.Writer, r *Region) error {
	if len(r.Separations) == 0 {
		return ErrNoData
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Tract %s - Match Separation", r.Tract)
	p.X.Label.Text = "Separation (arcsec)"
	p.Y.Label.Text = "Truth entries"

	h, err := plotter.NewHist(plotter.Values(r.Separations), HistogramBins)
	if err != nil {
		return fmt.Errorf("histogram: %w", err)
	}
	p.Add(h)

	if r.Stats.MedianSep > 0 {
		median, err := plotter.NewLine(plotter.XYs{
			{X: r.Stats.MedianSep, Y: 0},
			{X: r.Stats.MedianSep, Y: maxBin(h)},
		})
		if err == nil {
			median.Width = vg.Points(1)
			median.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
			p.Add(median)
			p.Legend.Add("median", median)
		}
	}

	wt, err := p.WriterTo(14*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

func maxBin(h *plotter.Histogram) float64 {
	m := 0.0
	for _, b := range h.Bins {
		if b.Weight > m {
			m = b.Weight
		}
	}
	return m
}

// binSeparations counts separations into n equal bins spanning their range.
// It returns bin labels (lower edges) and counts.
func binSeparations(seps []float64, n int) ([]string, []float64) {
	sorted := append([]float64(nil), seps...)
	sort.Float64s(sorted)

	lo, hi := sorted[0], sorted[len(sorted)-1]
	if hi <= lo {
		hi = lo + 1
	}
	dividers := floats.Span(make([]float64, n+1), lo, hi)
	// stat.Histogram excludes the upper divider.
	dividers[n] = math.Nextafter(hi, math.Inf(1))
	counts := stat.Histogram(nil, dividers, sorted, nil)

	labels := make([]string, n)
	for i := range labels {
		labels[i] = fmt.Sprintf("%.3g", dividers[i])
	}
	return labels, counts
}

// RenderHTML writes an echarts page with match counts, the separation
// histogram and the truth positions coloured by match state.
func RenderHTML(w io.Writer, r *Region) error {
	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("%s tract %s", r.Name, r.Tract)

	counts := charts.NewBar()
	counts.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Tract %s", r.Tract),
			Subtitle: fmt.Sprintf("truth=%d objects=%d", r.Stats.TruthRows, r.Stats.Objects),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	counts.SetXAxis([]string{"Unique", "Duplicate claims", "Unmatched truth"}).
		AddSeries("entries", []opts.BarData{
			{Value: r.Stats.Unique},
			{Value: r.Stats.Duplicates},
			{Value: r.Stats.Unmatched},
		}, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}))
	page.AddCharts(counts)

	if len(r.Separations) > 0 {
		labels, binCounts := binSeparations(r.Separations, HistogramBins)
		data := make([]opts.BarData, len(binCounts))
		for i, c := range binCounts {
			data[i] = opts.BarData{Value: c}
		}
		hist := charts.NewBar()
		hist.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
			charts.WithTitleOpts(opts.Title{
				Title:    "Match separation (arcsec)",
				Subtitle: fmt.Sprintf("mean=%.3g median=%.3g p90=%.3g max=%.3g", r.Stats.MeanSep, r.Stats.MedianSep, r.Stats.P90Sep, r.Stats.MaxSep),
			}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
			charts.WithXAxisOpts(opts.XAxis{Name: "arcsec", NameLocation: "middle", NameGap: 25}),
		)
		hist.SetXAxis(labels).AddSeries("separation", data)
		page.AddCharts(hist)
	}

	if len(r.Matched)+len(r.Unmatched) > 0 {
		stride := 1
		if n := len(r.Matched) + len(r.Unmatched); n > MaxScatterPoints {
			stride = (n + MaxScatterPoints - 1) / MaxScatterPoints
		}
		scatter := charts.NewScatter()
		scatter.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "900px"}),
			charts.WithTitleOpts(opts.Title{Title: "Truth positions", Subtitle: fmt.Sprintf("stride=%d", stride)}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
			charts.WithXAxisOpts(opts.XAxis{Name: "RA (deg)", NameLocation: "middle", NameGap: 25, Scale: opts.Bool(true)}),
			charts.WithYAxisOpts(opts.YAxis{Name: "Dec (deg)", NameLocation: "middle", NameGap: 30, Scale: opts.Bool(true)}),
			charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		)
		scatter.AddSeries("matched", scatterData(r.Matched, stride), charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))
		scatter.AddSeries("unmatched", scatterData(r.Unmatched, stride), charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))
		page.AddCharts(scatter)
	}

	return page.Render(w)
}

func scatterData(pts [][2]float64, stride int) []opts.ScatterData {
	data := make([]opts.ScatterData, 0, len(pts)/stride+1)
	for i := 0; i < len(pts); i += stride {
		data = append(data, opts.ScatterData{Value: []interface{}{pts[i][0], pts[i][1]}})
	}
	return data
}
