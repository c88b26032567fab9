package datasets

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetScaling_Derived(t *testing.T) {
	pitch := [][]float32{{0, 1, 2}, {0, 2, -100}}

	s, err := GetScaling(pitch, -100, 50, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, float32(0), s.FMin)
	assert.InDelta(t, (2+EPS)/50, float64(s.Scale), 1e-7)
	assert.Equal(t, 50, s.NBins)
}

func TestGetScaling_Overrides(t *testing.T) {
	pitch := [][]float32{{3, 4, 9}}
	fMin := float32(1)
	scale := float32(0.5)

	s, err := GetScaling(pitch, -100, 10, &fMin, nil)
	require.NoError(t, err)
	assert.Equal(t, float32(1), s.FMin)
	assert.InDelta(t, (9+EPS-1)/10, float64(s.Scale), 1e-6)

	s, err = GetScaling(pitch, -100, 10, nil, &scale)
	require.NoError(t, err)
	assert.Equal(t, float32(3), s.FMin)
	assert.Equal(t, float32(0.5), s.Scale)

	s, err = GetScaling([][]float32{{-100}}, -100, 10, &fMin, &scale)
	require.NoError(t, err, "both overrides need no data")
	assert.Equal(t, Scaling{FMin: 1, Scale: 0.5, NBins: 10}, s)
}

func TestGetScaling_AllPadding(t *testing.T) {
	_, err := GetScaling([][]float32{{-100, -100}, {-100}}, -100, 50, nil, nil)
	assert.ErrorIs(t, err, ErrEmptyPitch)

	_, err = GetScaling(nil, -100, 50, nil, nil)
	assert.ErrorIs(t, err, ErrEmptyPitch)

	_, err = GetScaling([][]float32{{1}}, -100, 0, nil, nil)
	assert.ErrorIs(t, err, ErrPrecondition)
}

// TestScaling_BinBounds checks every real value lands in [0, NBins-1] and the
// maximum lands exactly in the last bin.
func TestScaling_BinBounds(t *testing.T) {
	for _, nBins := range []int{1, 7, 50, 256} {
		pitch := [][]float32{
			{-2.31, -1.5, 0, 0.25, 3.9, -100},
			{1.1, 2.2, 3.3, -100, -100, -100},
			{-2.31, 3.9, 0.77, 1.01, -0.5, 2},
		}
		s, err := GetScaling(pitch, -100, nBins, nil, nil)
		require.NoError(t, err)

		for _, row := range pitch {
			for _, v := range row {
				if v == -100 {
					continue
				}
				raw := math.Floor((float64(v) - float64(s.FMin)) / float64(s.Scale))
				assert.GreaterOrEqual(t, raw, 0.0)
				assert.LessOrEqual(t, raw, float64(nBins-1))
				assert.Equal(t, int(raw), s.Bin(v))
			}
		}
		assert.Equal(t, nBins-1, s.Bin(3.9), "max value with %d bins", nBins)
		assert.Equal(t, 0, s.Bin(-2.31))
	}
}

func TestScaling_BinClamps(t *testing.T) {
	s := Scaling{FMin: 0, Scale: 1, NBins: 4}
	assert.Equal(t, 0, s.Bin(-7))
	assert.Equal(t, 3, s.Bin(100))
	assert.Equal(t, 2, s.Bin(2.5))
	assert.Equal(t, []float64{0, 1, 2, 3, 4}, s.Edges())
}

func TestPrepared_Values(t *testing.T) {
	p := &Prepared{
		Pitch:   [][]float32{{1, 2, -100}, {3, -100, -100}},
		Lengths: []int{2, 1},
	}
	assert.Equal(t, []float32{1, 2, 3}, p.Values())
}
