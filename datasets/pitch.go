package datasets

import (
	"fmt"
	"io"
	"math/rand"
	"sync"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// PitchDataset serves the examples of a prepared pitch file together with
// the pitch scaling derived from it. The prepared arrays are read-only; only
// the Yield cursor and example order change, under mu.
type PitchDataset struct {
	// Path the records were loaded from, if any.
	Path string

	// BatchSize for yielding batches
	BatchSize int

	Data    *Prepared
	Scaling Scaling

	mu     sync.Mutex
	order  []int
	cursor int
}

// Example is one (tokens, pitch, speaker_id, name) entry.
type Example struct {
	Tokens    []int32
	Pitch     []float32
	SpeakerID []int32
	Name      string
}

// NewPitchDataset loads the record file at path, prepares it and derives the
// pitch scaling.
func NewPitchDataset(path string, ids SpeakerIDs, stats SpeakerStats, opts Options) (*PitchDataset, error) {
	var prep *Prepared
	err := withFile(path, func(r io.Reader) error {
		var err error
		prep, err = Prepare(r, ids, stats, opts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to prepare %s: %w", path, err)
	}
	ds, err := FromPrepared(prep, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to scale %s: %w", path, err)
	}
	ds.Path = path
	return ds, nil
}

// FromPrepared wraps already prepared data and derives its scaling.
func FromPrepared(prep *Prepared, opts Options) (*PitchDataset, error) {
	sc, err := GetScaling(prep.Pitch, prep.PaddingValue, opts.NBins, opts.FMin, opts.Scale)
	if err != nil {
		return nil, err
	}
	ds := &PitchDataset{
		BatchSize: 32,
		Data:      prep,
		Scaling:   sc,
		order:     make([]int, prep.Len()),
	}
	for i := range ds.order {
		ds.order[i] = i
	}
	return ds, nil
}

// Len returns the number of examples.
func (d *PitchDataset) Len() int {
	return d.Data.Len()
}

// Example returns the padded example at index i.
func (d *PitchDataset) Example(i int) (Example, error) {
	if i < 0 || i >= d.Len() {
		return Example{}, fmt.Errorf("index %d out of range [0, %d)", i, d.Len())
	}
	return Example{
		Tokens:    d.Data.Tokens[i],
		Pitch:     d.Data.Pitch[i],
		SpeakerID: d.Data.SpeakerIDs[i],
		Name:      d.Data.Names[i],
	}, nil
}

// Batch gathers the examples at indices. Rows share the backing arrays of
// the dataset and must not be modified.
func (d *PitchDataset) Batch(indices []int) (*Batch, error) {
	b := &Batch{
		Tokens:     make([][]int32, len(indices)),
		Pitch:      make([][]float32, len(indices)),
		SpeakerIDs: make([][]int32, len(indices)),
		Names:      make([]string, len(indices)),
	}
	for pos, idx := range indices {
		ex, err := d.Example(idx)
		if err != nil {
			return nil, err
		}
		b.Tokens[pos] = ex.Tokens
		b.Pitch[pos] = ex.Pitch
		b.SpeakerIDs[pos] = ex.SpeakerID
		b.Names[pos] = ex.Name
	}
	return b, nil
}

// Shuffle permutes the order in which Yield serves examples and rewinds it.
func (d *PitchDataset) Shuffle(seed int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r := rand.New(rand.NewSource(seed))
	r.Shuffle(len(d.order), func(i, j int) {
		d.order[i], d.order[j] = d.order[j], d.order[i]
	})
	d.cursor = 0
}

// Name returns the name of the dataset
func (d *PitchDataset) Name() string {
	return "PitchDataset"
}

// Yield returns the next batch for the gomlx train.Dataset interface:
// inputs are (tokens int32[B,T], speakers int32[B,1]) and the label is
// pitch float32[B,T]. It returns io.EOF at the end of an epoch; the last
// batch may be smaller than BatchSize.
func (d *PitchDataset) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	d.mu.Lock()
	if d.cursor >= len(d.order) {
		d.mu.Unlock()
		return nil, nil, nil, io.EOF
	}
	batchSize := d.BatchSize
	if batchSize <= 0 {
		batchSize = 32
	}
	end := min(d.cursor+batchSize, len(d.order))
	indices := append([]int(nil), d.order[d.cursor:end]...)
	d.cursor = end
	d.mu.Unlock()

	b, err := d.Batch(indices)
	if err != nil {
		return nil, nil, nil, err
	}
	tok, spk, pitch := b.ToGomlxTensors()
	return nil, []*tensors.Tensor{tok, spk}, []*tensors.Tensor{pitch}, nil
}

// Reset rewinds the dataset for a new epoch.
func (d *PitchDataset) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cursor = 0
}

// Batch is a set of padded examples.
type Batch struct {
	Tokens     [][]int32
	Pitch      [][]float32
	SpeakerIDs [][]int32
	Names      []string
}

// Size returns the number of examples in the batch.
func (b *Batch) Size() int {
	return len(b.Names)
}

// ToGomlxTensors converts the batch to gomlx tensors: tokens [B,T] int32,
// speakers [B,1] int32 and pitch [B,T] float32.
func (b *Batch) ToGomlxTensors() (tokens, speakers, pitch *tensors.Tensor) {
	return tensors.FromAnyValue(b.Tokens), tensors.FromAnyValue(b.SpeakerIDs), tensors.FromAnyValue(b.Pitch)
}

var _ Dataset = (*PitchDataset)(nil)
