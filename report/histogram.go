// Package report renders plots of prepared pitch datasets.
package report

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/Noofbiz/pitchlen/datasets"
)

// PitchHistogram writes a histogram of values to path, one bar per bin of
// sc. The image format follows the file extension (png, svg, pdf...).
func PitchHistogram(path string, values []float32, sc datasets.Scaling) error {
	if len(values) == 0 {
		return errors.New("no pitch values to plot")
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Pitch distribution (%d bins, f_min=%.3f, scale=%.4f)", sc.NBins, sc.FMin, sc.Scale)
	p.X.Label.Text = "pitch"
	p.Y.Label.Text = "frames"

	p.Add(Histogram(values, sc))
	p.Add(plotter.NewGrid())

	edges := sc.Edges()
	p.X.Min = edges[0]
	p.X.Max = edges[len(edges)-1]

	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := p.Save(8*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save histogram %s: %w", path, err)
	}
	return nil
}

// Histogram returns the plotter for values binned by sc: bar i spans
// [Edges[i], Edges[i+1]) with height BinCounts[i].
func Histogram(values []float32, sc datasets.Scaling) *plotter.Histogram {
	edges := sc.Edges()
	counts := BinCounts(values, sc)
	bins := make([]plotter.HistogramBin, sc.NBins)
	for i := range bins {
		bins[i] = plotter.HistogramBin{Min: edges[i], Max: edges[i+1], Weight: float64(counts[i])}
	}
	return &plotter.Histogram{
		Bins:      bins,
		Width:     float64(sc.Scale),
		FillColor: color.RGBA{R: 20, G: 80, B: 200, A: 200},
		LineStyle: plotter.DefaultLineStyle,
	}
}

// BinCounts counts values per bin of sc.
func BinCounts(values []float32, sc datasets.Scaling) []int {
	counts := make([]int, sc.NBins)
	for _, v := range values {
		counts[sc.Bin(v)]++
	}
	return counts
}

func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	return os.MkdirAll(path, 0o755)
}
