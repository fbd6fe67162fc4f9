// Package embedding turns text into unit-length vectors ready for upsert.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// ErrInvalidEmbedding marks a vector that is empty or has non-finite values.
var ErrInvalidEmbedding = errors.New("invalid embedding")

// Backend produces a raw (possibly unnormalised) embedding.
type Backend interface {
	Embed(ctx context.Context, model string, text string) ([]float32, error)
}

// Pipeline wraps a Backend with validation and L2 normalisation.
type Pipeline struct {
	backend Backend
	model   string
}

// NewPipeline creates a Pipeline using the given backend and model name.
func NewPipeline(b Backend, model string) *Pipeline {
	return &Pipeline{backend: b, model: model}
}

// Model returns the embedding model name.
func (p *Pipeline) Model() string {
	return p.model
}

// Embed returns the unit-length embedding for text. A vector the backend
// returned but that cannot be used yields an error wrapping ErrInvalidEmbedding.
func (p *Pipeline) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := p.backend.Embed(ctx, p.model, text)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if err := Validate(vec); err != nil {
		return nil, err
	}
	return Normalize(vec), nil
}

// Validate rejects empty vectors, NaN or Inf components, and all-zero vectors.
func Validate(v []float32) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: empty vector", ErrInvalidEmbedding)
	}
	var sum float64
	for i, f := range v {
		x := float64(f)
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("%w: non-finite value at index %d", ErrInvalidEmbedding, i)
		}
		sum += x * x
	}
	if sum == 0 {
		return fmt.Errorf("%w: zero vector", ErrInvalidEmbedding)
	}
	return nil
}

// Normalize returns v scaled to unit L2 norm. A zero vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		copy(out, v)
		return out
	}
	n := math.Sqrt(sum)
	for i, f := range v {
		out[i] = float32(float64(f) / n)
	}
	return out
}
