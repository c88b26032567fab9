package datasets

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// SpeakerIDs maps a speaker key to its integer id.
type SpeakerIDs map[string]int32

// Stats holds the pitch normalisation statistics of one speaker.
type Stats struct {
	Mean float64 `yaml:"mean"`
	Std  float64 `yaml:"std"`
}

// SpeakerStats maps a speaker key to its normalisation statistics.
type SpeakerStats map[string]Stats

// LoadSpeakerIDs reads a YAML or JSON mapping of speaker key to id.
func LoadSpeakerIDs(path string) (SpeakerIDs, error) {
	var ids SpeakerIDs
	if err := decodeFile(path, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// LoadSpeakerStats reads a YAML or JSON mapping of speaker key to
// {mean, std}.
func LoadSpeakerStats(path string) (SpeakerStats, error) {
	var stats SpeakerStats
	if err := decodeFile(path, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// WriteYAML writes v to path as YAML.
func WriteYAML(path string, v any) error {
	out, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}

func decodeFile(path string, out any) error {
	return withFile(path, func(r io.Reader) error {
		if err := yaml.NewDecoder(r).Decode(out); err != nil {
			return fmt.Errorf("failed to decode %s: %w", path, err)
		}
		return nil
	})
}

// ComputeSpeakerStats reads a record stream and returns the mean and
// population standard deviation of the raw f0 values of every speaker.
// Speakers whose pitch is constant get a std of 1 so normalisation stays
// finite.
func ComputeSpeakerStats(r io.Reader) (SpeakerStats, error) {
	type acc struct {
		n          int
		sum, sumSq float64
	}
	accs := make(map[string]*acc)

	err := forEachLine(r, func(lineNo int, line string) error {
		rec, err := ParseRecord(line)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		key := rec.SpeakerKey()
		a, ok := accs[key]
		if !ok {
			a = &acc{}
			accs[key] = a
		}
		for _, v := range rec.F0 {
			a.n++
			a.sum += v
			a.sumSq += v * v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	stats := make(SpeakerStats, len(accs))
	for key, a := range accs {
		if a.n == 0 {
			return nil, fmt.Errorf("%w: speaker %q has no f0 values", ErrPrecondition, key)
		}
		mean := a.sum / float64(a.n)
		variance := a.sumSq/float64(a.n) - mean*mean
		std := math.Sqrt(math.Max(variance, 0))
		if std == 0 {
			std = 1
		}
		stats[key] = Stats{Mean: mean, Std: std}
	}
	return stats, nil
}

// BuildSpeakerIDs assigns ids 0..n-1 to the given speaker keys in sorted
// order.
func BuildSpeakerIDs(keys []string) SpeakerIDs {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	ids := make(SpeakerIDs, len(sorted))
	for _, k := range sorted {
		if _, ok := ids[k]; !ok {
			ids[k] = int32(len(ids))
		}
	}
	return ids
}

// Keys returns the speaker keys of stats in sorted order.
func (s SpeakerStats) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
