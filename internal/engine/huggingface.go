package engine

import (
	"context"

	"github.com/kalambet/seodata/internal/huggingface"
)

var _ Engine = (*HuggingFaceEngine)(nil)

// HuggingFaceEngine adapts the hosted inference API to the Engine interface.
type HuggingFaceEngine struct {
	client *huggingface.Client
}

func NewHuggingFaceEngine(apiKey string, opts ...huggingface.Option) *HuggingFaceEngine {
	return &HuggingFaceEngine{client: huggingface.NewClient(apiKey, opts...)}
}

func (e *HuggingFaceEngine) Generate(ctx context.Context, model, prompt string) (string, error) {
	return e.client.Generate(ctx, model, prompt)
}

func (e *HuggingFaceEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	return e.client.FeatureExtraction(ctx, model, text)
}

func (e *HuggingFaceEngine) IsRunning(ctx context.Context) bool {
	return e.client.IsRunning(ctx)
}
