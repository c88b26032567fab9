package datasets

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Record is one utterance line of a pitch file.
type Record struct {
	Audio string    `yaml:"audio"`
	Units []int64   `yaml:"units"`
	F0    []float64 `yaml:"f0"`
}

// ParseRecord decodes a single record line.
//
// Lines are parsed as YAML flow mappings, which accepts both strict JSON and
// the literal dict syntax found in existing dumps:
//
//	{'audio': 'sp1_001', 'units': [1, 2, 3], 'f0': [100.0, 110.0, 120.0]}
//
// Nothing is evaluated; anything that is not plain data is a format error.
func ParseRecord(line string) (Record, error) {
	var rec Record
	if err := yaml.Unmarshal([]byte(line), &rec); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if rec.Audio == "" {
		return Record{}, fmt.Errorf("%w: missing audio", ErrFormat)
	}
	if rec.Units == nil || rec.F0 == nil {
		return Record{}, fmt.Errorf("%w: %s: missing units or f0", ErrFormat, rec.Audio)
	}
	if len(rec.Units) != len(rec.F0) {
		return Record{}, fmt.Errorf("%w: %s: %d units but %d f0 values",
			ErrFormat, rec.Audio, len(rec.Units), len(rec.F0))
	}
	return rec, nil
}

// SpeakerKey returns the part of an utterance identifier before the first
// underscore, or the whole identifier if it has none.
func SpeakerKey(audio string) string {
	key, _, _ := strings.Cut(audio, "_")
	return key
}

// SpeakerKey returns the speaker key of the record.
func (r Record) SpeakerKey() string {
	return SpeakerKey(r.Audio)
}
