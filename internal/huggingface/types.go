package huggingface

import (
	"encoding/json"
	"fmt"

	"github.com/kalambet/seodata/internal/embedding"
)

type generateRequest struct {
	Inputs string `json:"inputs"`
}

type generation struct {
	GeneratedText string `json:"generated_text"`
}

type featureRequest struct {
	Inputs  string         `json:"inputs"`
	Options requestOptions `json:"options"`
}

type requestOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

// decodeFeatures accepts a pooled vector, a token matrix, or a batch of one
// token matrix. Any other body wraps embedding.ErrInvalidEmbedding so the
// caller can skip the input.
func decodeFeatures(raw []byte) ([]float32, error) {
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err == nil {
		return vec, nil
	}

	var matrix [][]float32
	if err := json.Unmarshal(raw, &matrix); err == nil {
		return MeanPool(matrix), nil
	}

	var batch [][][]float32
	if err := json.Unmarshal(raw, &batch); err != nil {
		return nil, fmt.Errorf("%w: unexpected feature-extraction response shape", embedding.ErrInvalidEmbedding)
	}
	if len(batch) == 0 {
		return nil, nil
	}
	return MeanPool(batch[0]), nil
}

// MeanPool averages token vectors column-wise. Rows whose width differs from
// the first row are ignored.
func MeanPool(tokens [][]float32) []float32 {
	if len(tokens) == 0 || len(tokens[0]) == 0 {
		return nil
	}
	dim := len(tokens[0])
	sum := make([]float64, dim)
	n := 0
	for _, tok := range tokens {
		if len(tok) != dim {
			continue
		}
		for i, v := range tok {
			sum[i] += float64(v)
		}
		n++
	}
	out := make([]float32, dim)
	for i := range sum {
		out[i] = float32(sum[i] / float64(n))
	}
	return out
}
