package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Noofbiz/pitchlen/datasets"
)

func TestPitchHistogram(t *testing.T) {
	values := []float32{0, 1, 2, 0, 2}
	sc, err := datasets.GetScaling([][]float32{values}, -100, 4, nil, nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "plots", "pitch.png")
	require.NoError(t, PitchHistogram(path, values, sc))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	assert.Error(t, PitchHistogram(path, nil, sc))
}

func TestBinCounts(t *testing.T) {
	sc := datasets.Scaling{FMin: 0, Scale: 1, NBins: 3}
	assert.Equal(t, []int{2, 1, 3}, BinCounts([]float32{0, 0.5, 1.2, 2, 2.9, 9}, sc))
}

func TestHistogramUsesScalingBins(t *testing.T) {
	// f_min/scale overrides put the bins well outside the data range.
	sc := datasets.Scaling{FMin: -2, Scale: 0.5, NBins: 8}
	h := Histogram([]float32{0.1, 0.2, 0.6, 1.9, 5}, sc)

	require.Len(t, h.Bins, 8)
	edges := sc.Edges()
	counts := BinCounts([]float32{0.1, 0.2, 0.6, 1.9, 5}, sc)
	for i, bin := range h.Bins {
		assert.Equal(t, edges[i], bin.Min, "bin %d", i)
		assert.Equal(t, edges[i+1], bin.Max, "bin %d", i)
		assert.Equal(t, float64(counts[i]), bin.Weight, "bin %d", i)
	}
	assert.Equal(t, 2.0, h.Bins[4].Weight)
	assert.Equal(t, 2.0, h.Bins[7].Weight, "values past the last edge are clamped")
	assert.Equal(t, 0.5, h.Width)
}
