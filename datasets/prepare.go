package datasets

import (
	"fmt"
	"io"
)

// Prepared holds the padded, index-aligned arrays of a pitch file.
// Tokens[i], Pitch[i], SpeakerIDs[i] and Names[i] describe example i.
type Prepared struct {
	Tokens     [][]int32
	Pitch      [][]float32
	SpeakerIDs [][]int32
	Names      []string

	// Lengths holds the unpadded length of every example.
	Lengths []int

	// MaxLen is the padded length of every row.
	MaxLen int

	NTokens      int
	PaddingValue float32
}

// Len returns the number of examples.
func (p *Prepared) Len() int {
	return len(p.Names)
}

// Prepare reads every record line from r and builds the padded dataset.
//
// Any malformed line or unknown speaker aborts preparation; no record is
// skipped.
func Prepare(r io.Reader, ids SpeakerIDs, stats SpeakerStats, opts Options) (*Prepared, error) {
	if opts.NTokens <= 0 {
		return nil, fmt.Errorf("%w: NTokens must be > 0, got %d", ErrPrecondition, opts.NTokens)
	}

	p := &Prepared{
		NTokens:      opts.NTokens,
		PaddingValue: opts.PaddingValue,
	}

	err := forEachLine(r, func(lineNo int, line string) error {
		rec, err := ParseRecord(line)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		tokens, pitch, spk, err := convertRecord(rec, ids, stats, opts)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		p.Tokens = append(p.Tokens, tokens)
		p.Pitch = append(p.Pitch, pitch)
		p.SpeakerIDs = append(p.SpeakerIDs, []int32{spk})
		p.Names = append(p.Names, rec.Audio)
		p.Lengths = append(p.Lengths, len(tokens))
		if len(tokens) > p.MaxLen {
			p.MaxLen = len(tokens)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i := range p.Tokens {
		p.Tokens[i] = padInt32(p.Tokens[i], p.MaxLen, int32(opts.NTokens))
		p.Pitch[i] = padFloat32(p.Pitch[i], p.MaxLen, opts.PaddingValue)
	}
	return p, nil
}

// convertRecord resolves the speaker of rec and converts its sequences.
func convertRecord(rec Record, ids SpeakerIDs, stats SpeakerStats, opts Options) ([]int32, []float32, int32, error) {
	key := rec.SpeakerKey()
	spk, ok := ids[key]
	if !ok {
		return nil, nil, 0, fmt.Errorf("%w: %q (from %s) not in speaker id map", ErrLookup, key, rec.Audio)
	}

	var st Stats
	if opts.NormalisePitch {
		st, ok = stats[key]
		if !ok {
			return nil, nil, 0, fmt.Errorf("%w: %q (from %s) has no normalisation statistics", ErrLookup, key, rec.Audio)
		}
		if st.Std == 0 {
			return nil, nil, 0, fmt.Errorf("%w: speaker %q has zero pitch std", ErrPrecondition, key)
		}
	}

	tokens := make([]int32, len(rec.Units))
	for i, u := range rec.Units {
		if u < 0 || u >= int64(opts.NTokens) {
			return nil, nil, 0, fmt.Errorf("%w: %s: token %d outside [0, %d)", ErrFormat, rec.Audio, u, opts.NTokens)
		}
		tokens[i] = int32(u)
	}

	pitch := make([]float32, len(rec.F0))
	for i, v := range rec.F0 {
		if opts.NormalisePitch {
			v = (v - st.Mean) / st.Std
		}
		pitch[i] = float32(v)
		if pitch[i] == opts.PaddingValue {
			return nil, nil, 0, fmt.Errorf("%w: %s: pitch value at %d equals the padding value %v",
				ErrPrecondition, rec.Audio, i, opts.PaddingValue)
		}
	}
	return tokens, pitch, spk, nil
}

func padInt32(xs []int32, n int, pad int32) []int32 {
	if len(xs) == n {
		return xs
	}
	out := make([]int32, n)
	copy(out, xs)
	for i := len(xs); i < n; i++ {
		out[i] = pad
	}
	return out
}

func padFloat32(xs []float32, n int, pad float32) []float32 {
	if len(xs) == n {
		return xs
	}
	out := make([]float32, n)
	copy(out, xs)
	for i := len(xs); i < n; i++ {
		out[i] = pad
	}
	return out
}
