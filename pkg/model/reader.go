package model

import (
	"context"

	"github.com/soundprediction/risposta/pkg/tokenizer"
)

// HashReader is a deterministic reader that derives span scores from the
// token ids themselves. Tokens repeated between the question and the
// passage score high, which makes it a usable lexical-overlap baseline
// and gives tests reproducible logits without a model runtime.
type HashReader struct {
	padID int
}

// NewHashReader creates a hash reader that treats padID tokens as dead
// positions.
func NewHashReader(padID int) *HashReader {
	return &HashReader{padID: padID}
}

const deadLogit = -1e4

func (r *HashReader) Read(_ context.Context, encodings []tokenizer.Encoding) (*ReaderOutput, error) {
	out := &ReaderOutput{
		StartLogits:     make([][]float64, len(encodings)),
		EndLogits:       make([][]float64, len(encodings)),
		RelevanceLogits: make([]float64, len(encodings)),
	}
	for i, enc := range encodings {
		seqLen := len(enc.IDs)
		starts := make([]float64, seqLen)
		ends := make([]float64, seqLen)

		questionTokens := make(map[int]bool)
		for t := 0; t < enc.PassageStart && t < seqLen; t++ {
			if enc.IDs[t] != r.padID {
				questionTokens[enc.IDs[t]] = true
			}
		}
		overlap := 0.0
		for t := 0; t < seqLen; t++ {
			id := enc.IDs[t]
			if id == r.padID {
				starts[t] = deadLogit
				ends[t] = deadLogit
				continue
			}
			base := float64(id%97) / 97.0
			starts[t] = base
			ends[t] = float64(id%89) / 89.0
			if t >= enc.PassageStart && t < enc.PassageEnd && questionTokens[id] {
				starts[t] += 2
				ends[t] += 2
				overlap++
			}
		}
		out.StartLogits[i] = starts
		out.EndLogits[i] = ends
		out.RelevanceLogits[i] = overlap
	}
	return out, nil
}
