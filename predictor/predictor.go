// Package predictor defines the length/pitch predictor: a convolutional
// network mapping a token sequence and a speaker id to one scalar per token.
//
// The network is a pure gomlx graph function. Its parameters live in the
// gomlx context passed to Forward; training them is left to an optimizer
// (see Train).
package predictor

import (
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/batchnorm"

	"github.com/Noofbiz/pitchlen/seed"
)

// Config holds the network hyperparameters.
type Config struct {
	// TokenVocabSize is the number of real token ids. Id TokenVocabSize is
	// the padding token.
	TokenVocabSize int

	// SpeakerVocabSize is the number of real speaker ids. Id SpeakerVocabSize
	// is the padding speaker.
	SpeakerVocabSize int

	// EmbSize is the size of both the token and the speaker embedding.
	EmbSize int

	// Channels of each hidden convolution.
	Channels int

	// KernelSize of every convolution. Outputs keep the input length.
	KernelSize int

	// HiddenLayers is the number of conv/batchnorm/dropout/activation blocks.
	HiddenLayers int

	// DropoutRate is applied after every batch norm while training.
	DropoutRate float64

	// LeakyAlpha is the negative slope of the leaky ReLU.
	LeakyAlpha float64
}

// DefaultConfig returns the standard predictor configuration.
func DefaultConfig() Config {
	return Config{
		TokenVocabSize:   100,
		SpeakerVocabSize: 199,
		EmbSize:          32,
		Channels:         128,
		KernelSize:       3,
		HiddenLayers:     3,
		DropoutRate:      0.5,
		LeakyAlpha:       0.01,
	}
}

// LenPredictor builds the predictor graph.
type LenPredictor struct {
	Config Config
}

// New returns a predictor for cfg. Zero fields take their default value,
// except DropoutRate where zero disables dropout.
func New(cfg Config) *LenPredictor {
	def := DefaultConfig()
	if cfg.TokenVocabSize == 0 {
		cfg.TokenVocabSize = def.TokenVocabSize
	}
	if cfg.SpeakerVocabSize == 0 {
		cfg.SpeakerVocabSize = def.SpeakerVocabSize
	}
	if cfg.EmbSize == 0 {
		cfg.EmbSize = def.EmbSize
	}
	if cfg.Channels == 0 {
		cfg.Channels = def.Channels
	}
	if cfg.KernelSize == 0 {
		cfg.KernelSize = def.KernelSize
	}
	if cfg.HiddenLayers == 0 {
		cfg.HiddenLayers = def.HiddenLayers
	}
	if cfg.LeakyAlpha == 0 {
		cfg.LeakyAlpha = def.LeakyAlpha
	}
	return &LenPredictor{Config: cfg}
}

// NewContext returns a gomlx context for the predictor variables, seeded
// from the process seed when one is set.
func NewContext() *context.Context {
	return seed.Context(context.New().Checked(false))
}

// Forward maps tokens int32[B,T] and speakers int32[B,1] to float32[B,T].
//
// Predictions at padded positions carry no meaning; the loss has to mask
// them.
func (m *LenPredictor) Forward(ctx *context.Context, tokens, speakers *graph.Node) *graph.Node {
	cfg := m.Config
	batch, seqLen := tokens.Shape().Dim(0), tokens.Shape().Dim(1)

	tokEmb := m.Embed(ctx.In("token_embedding"), tokens, cfg.TokenVocabSize)
	spkEmb := m.Embed(ctx.In("speaker_embedding"), speakers, cfg.SpeakerVocabSize)
	spkEmb = graph.BroadcastToDims(spkEmb, batch, seqLen, cfg.EmbSize)

	// [B,T,2E]
	x := graph.Concatenate([]*graph.Node{tokEmb, spkEmb}, -1)
	for i := 0; i < cfg.HiddenLayers; i++ {
		blockCtx := ctx.In(fmt.Sprintf("conv_block_%d", i))
		x = m.Conv1D(blockCtx.In("conv"), x, cfg.Channels)
		x = m.BatchNorm(blockCtx, x)
		if cfg.DropoutRate > 0 {
			x = layers.DropoutStatic(blockCtx, x, cfg.DropoutRate)
		}
		x = m.leakyRelu(x)
	}

	out := m.Conv1D(ctx.In("output"), x, 1)
	return graph.Reshape(out, batch, seqLen)
}

// Conv1D is a same-padded convolution over the time axis of x [B,T,C] with
// KernelSize taps and filters output channels. Tap k sees x shifted by
// k-KernelSize/2 steps with zeros past either end; the taps are stacked on
// the channel axis and mixed by one dense layer.
//
// Shifts are products with constant 0/1 matrices, not Pad or Slice: the
// SimpleGo backend cannot differentiate those.
func (m *LenPredictor) Conv1D(ctx *context.Context, x *graph.Node, filters int) *graph.Node {
	seqLen := x.Shape().Dim(1)
	half := m.Config.KernelSize / 2

	taps := make([]*graph.Node, 0, m.Config.KernelSize)
	for k := 0; k < m.Config.KernelSize; k++ {
		offset := k - half
		if offset == 0 {
			taps = append(taps, x)
			continue
		}
		shift := graph.ConstAs(x, shiftMatrix(seqLen, offset))
		taps = append(taps, graph.Einsum("ts,bsc->btc", shift, x))
	}
	return layers.Dense(ctx, graph.Concatenate(taps, -1), true, filters)
}

// shiftMatrix returns the [T,T] matrix S with S[t][t+offset] = 1, so that
// (S·x)[t] = x[t+offset], or zero when t+offset falls outside [0,T).
func shiftMatrix(seqLen, offset int) [][]float32 {
	s := make([][]float32, seqLen)
	for t := range s {
		s[t] = make([]float32, seqLen)
		if src := t + offset; src >= 0 && src < seqLen {
			s[t][src] = 1
		}
	}
	return s
}

// BatchNorm normalises x [B,T,C] per channel over the batch and time axes:
// batch statistics while training, moving averages otherwise.
func (m *LenPredictor) BatchNorm(ctx *context.Context, x *graph.Node) *graph.Node {
	return batchnorm.New(ctx.In("batchnorm"), x, -1).
		UseBackendInference(false).
		Done()
}

// ModelFn adapts Forward to the gomlx trainer model function: inputs are
// (tokens, speakers) and the single output is the per-token prediction.
func (m *LenPredictor) ModelFn() func(ctx *context.Context, spec any, inputs []*graph.Node) []*graph.Node {
	return func(ctx *context.Context, spec any, inputs []*graph.Node) []*graph.Node {
		return []*graph.Node{m.Forward(ctx, inputs[0], inputs[1])}
	}
}

// Embed looks ids up in a [vocab+1, EmbSize] table. Row vocab is the padding
// embedding: it starts at zero and is masked out, so it never contributes to
// the output nor receives a gradient.
func (m *LenPredictor) Embed(ctx *context.Context, ids *graph.Node, vocab int) *graph.Node {
	emb := m.Config.EmbSize
	v := ctx.GetVariable("embeddings")
	if v == nil {
		v = ctx.VariableWithValue("embeddings", m.initTable(vocab))
	}
	table := v.ValueGraph(ids.Graph())

	dims := ids.Shape().Dimensions
	idxDims := append(append([]int{}, dims...), 1)
	outDims := append(append([]int{}, dims...), emb)

	looked := graph.Gather(table, graph.Reshape(ids, idxDims...))
	notPad := graph.BroadcastToDims(graph.Reshape(graph.NotEqual(ids, graph.ConstAs(ids, vocab)), idxDims...), outDims...)
	return graph.Where(notPad, looked, graph.ZerosLike(looked))
}

// initTable draws a standard normal embedding table with a zero padding row.
// It is only called when the variable does not exist yet, so rebuilding the
// graph for a new shape leaves the process RNG untouched.
func (m *LenPredictor) initTable(vocab int) [][]float32 {
	table := make([][]float32, vocab+1)
	for i := range table {
		table[i] = make([]float32, m.Config.EmbSize)
		if i == vocab {
			continue
		}
		for j := range table[i] {
			table[i][j] = seed.NormFloat32()
		}
	}
	return table
}

// leakyRelu is max(x, alpha*x), valid for 0 < alpha < 1.
func (m *LenPredictor) leakyRelu(x *graph.Node) *graph.Node {
	return graph.Max(x, graph.MulScalar(x, m.Config.LeakyAlpha))
}
