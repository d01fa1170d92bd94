// Package plotting renders per-trajectory debug panels and the prolonged
// episode duration histogram.
package plotting

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/rewired-gh/mtbevents/internal/aggregate"
	"github.com/rewired-gh/mtbevents/internal/kinematics"
	"github.com/rewired-gh/mtbevents/internal/models"
)

// DefaultBins matches the usual ten-bucket histogram.
const DefaultBins = 10

// ErrNoSamples is returned when a histogram has nothing to draw.
var ErrNoSamples = errors.New("histogram has no samples")

var (
	rawColor      = color.RGBA{R: 160, G: 160, B: 160, A: 255}
	smoothedColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	yColor        = color.RGBA{R: 255, G: 127, B: 14, A: 255}
	limitColor    = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	medianColor   = color.RGBA{R: 44, G: 160, B: 44, A: 255}
)

// Limits are the detection thresholds drawn as reference lines.
type Limits struct {
	SpeedFraction       float64
	HeadingStdThreshold float64
}

// TrajectoryPlot is the data behind one trajectory's debug panels. Raw may be
// nil, in which case only smoothed series are drawn.
type TrajectoryPlot struct {
	File      string
	ID        int
	Positions []models.Position
	Raw       *kinematics.Series
	Smoothed  *kinematics.Series
	Events    []models.Event
}

// SaveTrajectory writes four PNG panels for one trajectory into dir: path,
// speed, heading and heading std. It returns the written file names.
func SaveTrajectory(dir string, tp TrajectoryPlot, limits Limits) ([]string, error) {
	if tp.Smoothed == nil {
		return nil, fmt.Errorf("trajectory %d: no smoothed series", tp.ID)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create plots directory: %w", err)
	}

	stem := filepath.Base(tp.File)
	if ext := filepath.Ext(stem); ext != "" {
		stem = stem[:len(stem)-len(ext)]
	}
	title := fmt.Sprintf("Trajectory %d, %s", tp.ID, stem)

	panels := []struct {
		name  string
		build func(string) (*plot.Plot, error)
	}{
		{"path", func(t string) (*plot.Plot, error) { return pathPanel(t, tp) }},
		{"speed", func(t string) (*plot.Plot, error) { return speedPanel(t, tp, limits) }},
		{"heading", func(t string) (*plot.Plot, error) { return headingPanel(t, tp) }},
		{"heading_std", func(t string) (*plot.Plot, error) { return headingStdPanel(t, tp, limits) }},
	}

	files := make([]string, 0, len(panels))
	for _, panel := range panels {
		p, err := panel.build(title)
		if err != nil {
			return files, fmt.Errorf("%s panel: %w", panel.name, err)
		}
		file := filepath.Join(dir, fmt.Sprintf("%s_traj%d_%s.png", stem, tp.ID, panel.name))
		if err := p.Save(14*vg.Inch, 6*vg.Inch, file); err != nil {
			return files, fmt.Errorf("save %s plot: %w", panel.name, err)
		}
		files = append(files, file)
	}
	return files, nil
}

func newPlot(title, x, y string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = x
	p.Y.Label.Text = y
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p
}

func addLine(p *plot.Plot, label string, pts plotter.XYs, c color.Color) error {
	if len(pts) == 0 {
		return nil
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = c
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add(label, line)
	return nil
}

func addLevel(p *plot.Plot, label string, level float64, c color.Color) {
	f := plotter.NewFunction(func(float64) float64 { return level })
	f.Color = c
	f.Width = vg.Points(1)
	f.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(f)
	p.Legend.Add(label, f)
}

// series maps values onto ticks. NaN ticks are left out.
func series(vs []float64) plotter.XYs {
	pts := make(plotter.XYs, 0, len(vs))
	for i, v := range vs {
		if math.IsNaN(v) {
			continue
		}
		pts = append(pts, plotter.XY{X: float64(i), Y: v})
	}
	return pts
}

func positions(ps []models.Position) plotter.XYs {
	pts := make(plotter.XYs, len(ps))
	for i, p := range ps {
		pts[i] = plotter.XY{X: p.X, Y: p.Y}
	}
	return pts
}

func pathPanel(title string, tp TrajectoryPlot) (*plot.Plot, error) {
	p := newPlot(title, "x", "y")
	if err := addLine(p, "raw", positions(tp.Positions), rawColor); err != nil {
		return nil, err
	}
	if err := addLine(p, fmt.Sprintf("rolled (w=%d)", tp.Smoothed.Window), positions(tp.Smoothed.Rolled), smoothedColor); err != nil {
		return nil, err
	}
	return p, nil
}

func speedPanel(title string, tp TrajectoryPlot, limits Limits) (*plot.Plot, error) {
	p := newPlot(title, "Tick", "Speed")
	if tp.Raw != nil {
		if err := addLine(p, "raw", series(tp.Raw.Speed), rawColor); err != nil {
			return nil, err
		}
	}
	if err := addLine(p, "smoothed", series(tp.Smoothed.Speed), smoothedColor); err != nil {
		return nil, err
	}
	if med, err := kinematics.Median(tp.Smoothed.Speed); err == nil {
		addLevel(p, "slowing limit", limits.SpeedFraction*med, limitColor)
	}

	if len(tp.Events) > 0 {
		pts := make(plotter.XYs, 0, len(tp.Events))
		for _, e := range tp.Events {
			if e.Tick < len(tp.Smoothed.Speed) {
				pts = append(pts, plotter.XY{X: float64(e.Tick), Y: tp.Smoothed.Speed[e.Tick]})
			}
		}
		if len(pts) > 0 {
			sc, err := plotter.NewScatter(pts)
			if err != nil {
				return nil, err
			}
			sc.Color = limitColor
			p.Add(sc)
			p.Legend.Add("events", sc)
		}
	}
	return p, nil
}

func headingPanel(title string, tp TrajectoryPlot) (*plot.Plot, error) {
	p := newPlot(title, "Tick", "Heading (fraction of pi)")
	if tp.Raw != nil {
		if err := addLine(p, "x raw", series(tp.Raw.HeadingX), rawColor); err != nil {
			return nil, err
		}
		if err := addLine(p, "y raw", series(tp.Raw.HeadingY), rawColor); err != nil {
			return nil, err
		}
	}
	if err := addLine(p, "x", series(tp.Smoothed.HeadingX), smoothedColor); err != nil {
		return nil, err
	}
	if err := addLine(p, "y", series(tp.Smoothed.HeadingY), yColor); err != nil {
		return nil, err
	}
	return p, nil
}

func headingStdPanel(title string, tp TrajectoryPlot, limits Limits) (*plot.Plot, error) {
	p := newPlot(title, "Tick", "Heading std")
	if err := addLine(p, "smoothed", series(tp.Smoothed.HeadingStd), smoothedColor); err != nil {
		return nil, err
	}
	addLevel(p, "threshold", limits.HeadingStdThreshold, limitColor)
	defined := make([]float64, 0, len(tp.Smoothed.HeadingStd))
	for _, v := range tp.Smoothed.HeadingStd {
		if !math.IsNaN(v) {
			defined = append(defined, v)
		}
	}
	if med, err := kinematics.Median(defined); err == nil {
		addLevel(p, "median", med, medianColor)
	}
	return p, nil
}

// SaveHistogramPNG draws the duration histogram with gonum/plot.
func SaveHistogramPNG(path string, h *aggregate.Histogram, bins int) error {
	if h == nil || h.Len() == 0 {
		return ErrNoSamples
	}

	hist, err := plotter.NewHist(plotter.Values(h.Samples()), bins)
	if err != nil {
		return err
	}
	hist.FillColor = smoothedColor

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Tumble length n=(%d)", h.Len())
	p.X.Label.Text = "Seconds"
	p.Y.Label.Text = "Frequency"
	p.Add(hist)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create histogram directory: %w", err)
	}
	if err := p.Save(8*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save histogram: %w", err)
	}
	return nil
}

// RenderHistogramHTML writes the duration histogram as an interactive bar
// chart page.
func RenderHistogramHTML(w io.Writer, h *aggregate.Histogram, bins int) error {
	if h == nil || h.Len() == 0 {
		return ErrNoSamples
	}

	buckets := h.Bins(bins)
	x := make([]string, len(buckets))
	y := make([]opts.BarData, len(buckets))
	for i, b := range buckets {
		x[i] = fmt.Sprintf("%.3g-%.3g", b.Low, b.High)
		y[i] = opts.BarData{Value: b.Count}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Prolonged episode durations", Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("Tumble length n=(%d)", h.Len()), Subtitle: fmt.Sprintf("mean %.3fs", h.Mean())}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Seconds", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Frequency", NameLocation: "middle", NameGap: 30}),
	)
	bar.SetXAxis(x).
		AddSeries("durations", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	page.AddCharts(bar)
	return page.Render(w)
}

// SaveHistogramHTML writes RenderHistogramHTML output to path.
func SaveHistogramHTML(path string, h *aggregate.Histogram, bins int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create histogram directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create histogram file: %w", err)
	}
	if err := RenderHistogramHTML(f, h, bins); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
