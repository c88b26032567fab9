package datasets

import (
	"errors"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// This package loads per-utterance pitch records and presents them as padded,
// batch-ready examples for the length/pitch predictor.
//
// Unlike lazily loaded CSV datasets, a pitch dataset is prepared fully at
// construction time: padding uses the longest sequence of the whole file, so
// every line has to be read before the first example can be served. After
// construction the prepared arrays are never mutated.
//
// Layout:
//
// Prepared
//   - Tokens:     [N][T] int32, padded with NTokens
//   - Pitch:      [N][T] float32, padded with PaddingValue
//   - SpeakerIDs: [N][1] int32
//   - Names:      [N] raw utterance identifiers
//
// PitchDataset wraps a Prepared with its Scaling and implements the gomlx
// train.Dataset interface, yielding inputs (tokens, speakers) and labels
// (pitch).

// EPS is the margin added to the maximum pitch when deriving the bin width,
// so the maximum observed value lands inside the last bin.
const EPS = 0.001

// Defaults for Options.
const (
	DefaultNBins        = 50
	DefaultNTokens      = 100
	DefaultPaddingValue = -100
)

var (
	// ErrFormat is returned when a record line cannot be parsed or is
	// structurally invalid.
	ErrFormat = errors.New("malformed record")

	// ErrLookup is returned when a speaker key is missing from the speaker id
	// map or from the normalisation statistics.
	ErrLookup = errors.New("unknown speaker")

	// ErrEmptyPitch is returned when scaling is requested but every pitch
	// value is padding.
	ErrEmptyPitch = errors.New("no non-padding pitch values")

	// ErrPrecondition is returned for invalid options or statistics.
	ErrPrecondition = errors.New("precondition violated")
)

// Dataset is the interface pitch datasets implement to interact with the
// predictor trainer and gomlx training loops.
type Dataset interface {
	Len() int
	Example(i int) (Example, error)
	Batch(indices []int) (*Batch, error)
	Shuffle(seed int64)

	// To implement gomlx's train.Dataset interface
	Name() string
	Yield() (any, []*tensors.Tensor, []*tensors.Tensor, error)
	Reset()
}

// Options control dataset preparation and pitch scaling. Use DefaultOptions
// and override fields; the zero value is not usable.
type Options struct {
	// NBins is the number of pitch bins the scaling divides the range into.
	NBins int

	// FMin and Scale override the derived scaling parameters when non-nil.
	FMin  *float32
	Scale *float32

	// NTokens is the token vocabulary size. It doubles as the token pad id.
	NTokens int

	// PaddingValue fills pitch positions past the end of a sequence. It must
	// lie outside the range of real (normalised) pitch values.
	PaddingValue float32

	// NormalisePitch applies per-speaker (v-mean)/std to every f0 value.
	NormalisePitch bool
}

// DefaultOptions returns the standard preparation options.
func DefaultOptions() Options {
	return Options{
		NBins:          DefaultNBins,
		NTokens:        DefaultNTokens,
		PaddingValue:   DefaultPaddingValue,
		NormalisePitch: true,
	}
}
