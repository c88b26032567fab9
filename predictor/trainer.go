package predictor

import (
	"errors"
	"fmt"
	"math"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/backends/simplego"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	log "github.com/sirupsen/logrus"

	"github.com/Noofbiz/pitchlen/datasets"
	"github.com/Noofbiz/pitchlen/seed"
)

// TrainConfig holds the training loop hyperparameters.
type TrainConfig struct {
	// Epochs to train for (default 10).
	Epochs int

	// BatchSize for mini-batch updates (default 32).
	BatchSize int

	// LearningRate used by Adam (default 1e-3).
	LearningRate float64

	// Shuffle reorders the dataset before every epoch with a seed drawn from
	// the process RNG.
	Shuffle bool
}

// NewBackend returns the pure Go gomlx backend.
func NewBackend() (backends.Backend, error) {
	backend, err := simplego.New("")
	if err != nil {
		return nil, fmt.Errorf("failed to create gomlx simplego backend: %w", err)
	}
	return backend, nil
}

// Train fits the predictor variables in ctx to ds with Adam and the masked
// MSE loss, and returns the loss of the last step.
func (m *LenPredictor) Train(backend backends.Backend, ctx *context.Context, ds *datasets.PitchDataset, cfg TrainConfig) (float32, error) {
	if ds == nil {
		return 0, errors.New("dataset is nil")
	}
	if ds.Len() == 0 {
		return 0, errors.New("dataset is empty")
	}
	if err := m.CheckDataset(ds); err != nil {
		return 0, err
	}

	epochs := 10
	if cfg.Epochs > 0 {
		epochs = cfg.Epochs
	}
	lr := 1e-3
	if cfg.LearningRate > 0 {
		lr = cfg.LearningRate
	}
	if cfg.BatchSize > 0 {
		ds.BatchSize = cfg.BatchSize
	}

	trainer := train.NewTrainer(backend, ctx, m.ModelFn(),
		MaskedMSE(ds.Data.PaddingValue),
		optimizers.Adam().LearningRate(lr).Done(),
		nil, nil)
	loop := train.NewLoop(trainer)

	var loss float32
	for ep := 0; ep < epochs; ep++ {
		if cfg.Shuffle {
			ds.Shuffle(seed.Int63())
		} else {
			ds.Reset()
		}
		metrics, err := loop.RunEpochs(ds, 1)
		if err != nil {
			return 0, fmt.Errorf("epoch %d: %w", ep, err)
		}
		if len(metrics) == 0 {
			return 0, fmt.Errorf("epoch %d: trainer returned no metrics", ep)
		}
		loss, err = scalar(metrics[0])
		if err != nil {
			return 0, fmt.Errorf("epoch %d: %w", ep, err)
		}
		log.WithFields(log.Fields{
			"epoch": ep + 1,
			"of":    epochs,
			"loss":  loss,
		}).Info("epoch done")
	}
	return loss, nil
}

// Inference runs the predictor in inference mode: dropout off and batch norm
// using its moving averages.
type Inference struct {
	model *LenPredictor
	exec  *context.Exec
}

// NewInference compiles the predictor for ctx on backend.
func (m *LenPredictor) NewInference(backend backends.Backend, ctx *context.Context) (*Inference, error) {
	exec, err := context.NewExec(backend, ctx, func(ctx *context.Context, tokens, speakers *graph.Node) *graph.Node {
		return m.Forward(ctx, tokens, speakers)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build predictor: %w", err)
	}
	return &Inference{model: m, exec: exec}, nil
}

// Predict returns one prediction per token of the batch, shape [B][T].
func (inf *Inference) Predict(b *datasets.Batch) ([][]float32, error) {
	if b.Size() == 0 {
		return [][]float32{}, nil
	}
	if err := inf.model.CheckBatch(b); err != nil {
		return nil, err
	}
	tok, spk, _ := b.ToGomlxTensors()

	out, err := inf.exec.Exec1(tok, spk)
	if err != nil {
		return nil, fmt.Errorf("predictor forward failed: %w", err)
	}
	preds, ok := out.Value().([][]float32)
	if !ok {
		return nil, fmt.Errorf("unexpected prediction type %T", out.Value())
	}
	return preds, nil
}

// Evaluate returns the masked mean squared error of the predictions over the
// whole dataset.
func (inf *Inference) Evaluate(ds *datasets.PitchDataset, batchSize int) (float64, error) {
	if batchSize <= 0 {
		batchSize = 32
	}
	pad := ds.Data.PaddingValue
	var sum float64
	var n int
	for start := 0; start < ds.Len(); start += batchSize {
		end := min(start+batchSize, ds.Len())
		indices := make([]int, 0, end-start)
		for i := start; i < end; i++ {
			indices = append(indices, i)
		}
		b, err := ds.Batch(indices)
		if err != nil {
			return 0, err
		}
		preds, err := inf.Predict(b)
		if err != nil {
			return 0, err
		}
		for i := range preds {
			for j, label := range b.Pitch[i] {
				if label == pad {
					continue
				}
				d := float64(preds[i][j] - label)
				sum += d * d
				n++
			}
		}
	}
	if n == 0 {
		return 0, datasets.ErrEmptyPitch
	}
	return sum / float64(n), nil
}

func scalar(t *tensors.Tensor) (float32, error) {
	switch v := t.Value().(type) {
	case float32:
		return v, nil
	case float64:
		return float32(v), nil
	default:
		return float32(math.NaN()), fmt.Errorf("loss metric is %T, not a scalar float", v)
	}
}
