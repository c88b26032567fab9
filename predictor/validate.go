package predictor

import (
	"fmt"

	"github.com/Noofbiz/pitchlen/datasets"
)

// CheckDataset reports whether ds can be fed to the predictor: its padding
// token has to be the padding row of the token table and every speaker id
// has to index a real row of the speaker table.
//
// Out of range ids would otherwise reach the embedding gather, which does no
// bounds checking on every backend.
func (m *LenPredictor) CheckDataset(ds *datasets.PitchDataset) error {
	if ds.Data.NTokens != m.Config.TokenVocabSize {
		return fmt.Errorf("%w: dataset n_tokens %d != model token vocab size %d",
			datasets.ErrPrecondition, ds.Data.NTokens, m.Config.TokenVocabSize)
	}
	for i, row := range ds.Data.SpeakerIDs {
		if err := m.checkSpeakers(row); err != nil {
			return fmt.Errorf("example %d (%s): %w", i, ds.Data.Names[i], err)
		}
	}
	return nil
}

// CheckBatch is CheckDataset for a single batch. Tokens may use the padding
// id TokenVocabSize.
func (m *LenPredictor) CheckBatch(b *datasets.Batch) error {
	vocab := int32(m.Config.TokenVocabSize)
	for i, row := range b.Tokens {
		for _, tok := range row {
			if tok < 0 || tok > vocab {
				return fmt.Errorf("%w: batch row %d: token %d outside [0, %d]",
					datasets.ErrPrecondition, i, tok, vocab)
			}
		}
	}
	for i, row := range b.SpeakerIDs {
		if err := m.checkSpeakers(row); err != nil {
			return fmt.Errorf("batch row %d: %w", i, err)
		}
	}
	return nil
}

func (m *LenPredictor) checkSpeakers(ids []int32) error {
	vocab := int32(m.Config.SpeakerVocabSize)
	for _, id := range ids {
		if id < 0 || id >= vocab {
			return fmt.Errorf("%w: speaker id %d outside [0, %d)",
				datasets.ErrPrecondition, id, vocab)
		}
	}
	return nil
}
