package engine

import "context"

// Engine abstracts an inference backend (the hosted Hugging Face API or a
// local Ollama server). The responder and the embedding pipeline use this
// interface instead of depending on a concrete client.
type Engine interface {
	// Generate runs a single prompt through the given model and returns the
	// generated text, which may be empty.
	Generate(ctx context.Context, model, prompt string) (string, error)

	// Embed returns the embedding vector for the given text using the specified model.
	Embed(ctx context.Context, model string, text string) ([]float32, error)

	// IsRunning reports whether the inference backend is reachable.
	IsRunning(ctx context.Context) bool
}

// ModelManager is implemented by backends that host models locally and can
// download missing ones.
type ModelManager interface {
	// HasModel reports whether the given model name is available locally.
	HasModel(ctx context.Context, name string) bool

	// PullModel downloads a model. The optional callback receives progress updates.
	PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error
}
