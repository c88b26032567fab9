package datasets

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	twoSpeakerIDs   = SpeakerIDs{"sp1": 0, "sp2": 1}
	twoSpeakerStats = SpeakerStats{
		"sp1": {Mean: 100, Std: 10},
		"sp2": {Mean: 200, Std: 5},
	}
)

const twoSpeakerRecords = `{'audio': 'sp1_001', 'units': [1, 2, 3], 'f0': [100.0, 110.0, 120.0]}
{"audio": "sp2_001", "units": [5, 6], "f0": [200.0, 210.0]}
`

// TestPrepare_TwoSpeakers checks the full padded output of a small two-speaker
// file, one record in literal dict syntax and one in JSON.
func TestPrepare_TwoSpeakers(t *testing.T) {
	p, err := Prepare(strings.NewReader(twoSpeakerRecords), twoSpeakerIDs, twoSpeakerStats, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, [][]int32{{1, 2, 3}, {5, 6, 100}}, p.Tokens)
	assert.Equal(t, [][]float32{{0, 1, 2}, {0, 2, -100}}, p.Pitch)
	assert.Equal(t, [][]int32{{0}, {1}}, p.SpeakerIDs)
	assert.Equal(t, []string{"sp1_001", "sp2_001"}, p.Names)
	assert.Equal(t, []int{3, 2}, p.Lengths)
	assert.Equal(t, 3, p.MaxLen)
	assert.Equal(t, 2, p.Len())
}

func TestPrepare_PaddingToDatasetMax(t *testing.T) {
	src := `{'audio': 'a_1', 'units': [1], 'f0': [1.0]}
{'audio': 'a_2', 'units': [1, 2, 3, 4, 5], 'f0': [1.0, 2.0, 3.0, 4.0, 5.0]}
{'audio': 'a_3', 'units': [], 'f0': []}
{'audio': 'a_4', 'units': [7, 8], 'f0': [7.5, 8.5]}
`
	opts := DefaultOptions()
	opts.NormalisePitch = false
	opts.NTokens = 10
	opts.PaddingValue = -1000

	p, err := Prepare(strings.NewReader(src), SpeakerIDs{"a": 3}, nil, opts)
	require.NoError(t, err)
	require.Equal(t, 5, p.MaxLen)

	for i := range p.Tokens {
		require.Len(t, p.Tokens[i], 5)
		require.Len(t, p.Pitch[i], 5)
		for j := p.Lengths[i]; j < 5; j++ {
			assert.Equal(t, int32(10), p.Tokens[i][j], "token pad at %d,%d", i, j)
			assert.Equal(t, float32(-1000), p.Pitch[i][j], "pitch pad at %d,%d", i, j)
		}
		assert.Equal(t, []int32{3}, p.SpeakerIDs[i])
	}
	assert.Equal(t, []float32{7.5, 8.5, -1000, -1000, -1000}, p.Pitch[3])
}

func TestPrepare_NormalisationRoundTrip(t *testing.T) {
	src := `{'audio': 'spk_a', 'units': [0, 1, 2, 3], 'f0': [143.25, 151.5, 97.125, 220.0]}
{'audio': 'spk_b', 'units': [4, 5], 'f0': [301.75, 288.0]}
`
	stats := SpeakerStats{"spk": {Mean: 161.3, Std: 37.9}}
	raw := [][]float64{{143.25, 151.5, 97.125, 220.0}, {301.75, 288.0}}

	p, err := Prepare(strings.NewReader(src), SpeakerIDs{"spk": 0}, stats, DefaultOptions())
	require.NoError(t, err)

	for i, row := range raw {
		for j, want := range row {
			got := float64(p.Pitch[i][j])*37.9 + 161.3
			assert.InDelta(t, want, got, 1e-3, "example %d frame %d", i, j)
		}
	}
}

func TestPrepare_Errors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		ids     SpeakerIDs
		stats   SpeakerStats
		mutate  func(*Options)
		wantErr error
	}{
		{
			name:    "unknown speaker id",
			src:     "{'audio': 'sp9_001', 'units': [1], 'f0': [100.0]}\n",
			ids:     twoSpeakerIDs,
			stats:   SpeakerStats{"sp9": {Mean: 1, Std: 1}},
			wantErr: ErrLookup,
		},
		{
			name:    "missing stats when normalising",
			src:     "{'audio': 'sp1_001', 'units': [1], 'f0': [100.0]}\n",
			ids:     twoSpeakerIDs,
			stats:   SpeakerStats{},
			wantErr: ErrLookup,
		},
		{
			name:    "malformed line",
			src:     twoSpeakerRecords + "{'audio': 'sp1_002', 'units': [1, 2\n",
			ids:     twoSpeakerIDs,
			stats:   twoSpeakerStats,
			wantErr: ErrFormat,
		},
		{
			name:    "blank line",
			src:     "{'audio': 'sp1_001', 'units': [1], 'f0': [100.0]}\n\n{'audio': 'sp1_002', 'units': [1], 'f0': [100.0]}\n",
			ids:     twoSpeakerIDs,
			stats:   twoSpeakerStats,
			wantErr: ErrFormat,
		},
		{
			name:    "length mismatch",
			src:     "{'audio': 'sp1_001', 'units': [1, 2], 'f0': [100.0]}\n",
			ids:     twoSpeakerIDs,
			stats:   twoSpeakerStats,
			wantErr: ErrFormat,
		},
		{
			name:    "token outside vocabulary",
			src:     "{'audio': 'sp1_001', 'units': [100], 'f0': [100.0]}\n",
			ids:     twoSpeakerIDs,
			stats:   twoSpeakerStats,
			wantErr: ErrFormat,
		},
		{
			name:    "zero std",
			src:     "{'audio': 'sp1_001', 'units': [1], 'f0': [100.0]}\n",
			ids:     twoSpeakerIDs,
			stats:   SpeakerStats{"sp1": {Mean: 100, Std: 0}},
			wantErr: ErrPrecondition,
		},
		{
			name:    "pitch aliases padding",
			src:     "{'audio': 'sp1_001', 'units': [1], 'f0': [-100.0]}\n",
			ids:     twoSpeakerIDs,
			mutate:  func(o *Options) { o.NormalisePitch = false },
			wantErr: ErrPrecondition,
		},
		{
			name:    "no vocabulary",
			src:     twoSpeakerRecords,
			ids:     twoSpeakerIDs,
			stats:   twoSpeakerStats,
			mutate:  func(o *Options) { o.NTokens = 0 },
			wantErr: ErrPrecondition,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			opts := DefaultOptions()
			if tc.mutate != nil {
				tc.mutate(&opts)
			}
			p, err := Prepare(strings.NewReader(tc.src), tc.ids, tc.stats, opts)
			require.Error(t, err)
			assert.Nil(t, p)
			assert.True(t, errors.Is(err, tc.wantErr), "got %v, want %v", err, tc.wantErr)
		})
	}
}

func TestPrepare_ErrorNamesLine(t *testing.T) {
	src := twoSpeakerRecords + "{'audio': 'sp3_001', 'units': [1], 'f0': [1.0]}\n"
	_, err := Prepare(strings.NewReader(src), twoSpeakerIDs, twoSpeakerStats, DefaultOptions())
	require.ErrorIs(t, err, ErrLookup)
	assert.Contains(t, err.Error(), "line 3")
	assert.Contains(t, err.Error(), "sp3")
}

func TestPrepare_NoNormalisationIgnoresStats(t *testing.T) {
	opts := DefaultOptions()
	opts.NormalisePitch = false

	p, err := Prepare(strings.NewReader(twoSpeakerRecords), twoSpeakerIDs, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{100, 110, 120}, {200, 210, -100}}, p.Pitch)
}

func TestSpeakerKey(t *testing.T) {
	assert.Equal(t, "sp1", SpeakerKey("sp1_001"))
	assert.Equal(t, "p225", SpeakerKey("p225_003_mic1"))
	assert.Equal(t, "solo", SpeakerKey("solo"))
	assert.Equal(t, "", SpeakerKey("_x"))
}

func TestParseRecord(t *testing.T) {
	rec, err := ParseRecord(`{'audio': 'p1_x', 'units': [3, 4], 'f0': [1.5, 2], 'extra': 'ignored'}`)
	require.NoError(t, err)
	assert.Equal(t, "p1_x", rec.Audio)
	assert.Equal(t, []int64{3, 4}, rec.Units)
	assert.Equal(t, []float64{1.5, 2}, rec.F0)
	assert.Equal(t, "p1", rec.SpeakerKey())

	_, err = ParseRecord(`{'units': [1], 'f0': [1.0]}`)
	assert.ErrorIs(t, err, ErrFormat)

	_, err = ParseRecord(`{'audio': 'a_1', 'units': [1]}`)
	assert.ErrorIs(t, err, ErrFormat)

	_, err = ParseRecord(`{'audio': 'a_1', 'units': ['x'], 'f0': [1.0]}`)
	assert.ErrorIs(t, err, ErrFormat)
}
