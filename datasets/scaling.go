package datasets

import (
	"fmt"
	"math"
)

// Scaling maps continuous pitch into NBins equal-width bins starting at FMin.
type Scaling struct {
	FMin  float32
	Scale float32
	NBins int
}

// GetScaling derives the scaling parameters from every non-padding value of
// pitch. A non-nil fMin or scale overrides the derived value.
//
// Padding is matched by exact equality. Scale is (max+EPS-FMin)/nBins, so the
// largest observed value falls strictly inside the last bin.
func GetScaling(pitch [][]float32, paddingValue float32, nBins int, fMin, scale *float32) (Scaling, error) {
	if nBins <= 0 {
		return Scaling{}, fmt.Errorf("%w: nBins must be > 0, got %d", ErrPrecondition, nBins)
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	n := 0
	for _, row := range pitch {
		for _, v := range row {
			if v == paddingValue {
				continue
			}
			n++
			lo = math.Min(lo, float64(v))
			hi = math.Max(hi, float64(v))
		}
	}

	s := Scaling{NBins: nBins}
	if (fMin == nil || scale == nil) && n == 0 {
		return Scaling{}, ErrEmptyPitch
	}

	if fMin != nil {
		s.FMin = *fMin
	} else {
		s.FMin = float32(lo)
	}
	if scale != nil {
		s.Scale = *scale
	} else {
		s.Scale = float32((hi + EPS - float64(s.FMin)) / float64(nBins))
	}
	if s.Scale <= 0 {
		return Scaling{}, fmt.Errorf("%w: non-positive scale %v", ErrPrecondition, s.Scale)
	}
	return s, nil
}

// Bin returns the index of the bin containing v, clamped to [0, NBins-1].
func (s Scaling) Bin(v float32) int {
	b := int(math.Floor((float64(v) - float64(s.FMin)) / float64(s.Scale)))
	if b < 0 {
		return 0
	}
	if b > s.NBins-1 {
		return s.NBins - 1
	}
	return b
}

// Edges returns the NBins+1 bin boundaries.
func (s Scaling) Edges() []float64 {
	edges := make([]float64, s.NBins+1)
	for i := range edges {
		edges[i] = float64(s.FMin) + float64(i)*float64(s.Scale)
	}
	return edges
}

// Values returns every non-padding pitch value of p.
func (p *Prepared) Values() []float32 {
	var out []float32
	for i, row := range p.Pitch {
		out = append(out, row[:p.Lengths[i]]...)
	}
	return out
}
