package engine

import (
	"fmt"
	"time"

	"github.com/kalambet/seodata/internal/huggingface"
)

// Backend names accepted by New.
const (
	BackendHuggingFace = "huggingface"
	BackendOllama      = "ollama"
)

// Options holds parameters for backend selection.
type Options struct {
	Backend     string
	BaseURL     string // Hugging Face inference host
	APIKey      string
	OllamaURL   string
	Timeout     time.Duration
	MaxAttempts int
}

// New returns the Engine named by opts.Backend. Hugging Face is the default.
func New(opts Options) (Engine, error) {
	switch opts.Backend {
	case BackendHuggingFace, "":
		return NewHuggingFaceEngine(opts.APIKey,
			huggingface.WithBaseURL(opts.BaseURL),
			huggingface.WithTimeout(opts.Timeout),
			huggingface.WithMaxAttempts(opts.MaxAttempts),
		), nil
	case BackendOllama:
		return NewOllamaEngine(opts.OllamaURL, opts.Timeout), nil
	}
	return nil, fmt.Errorf("unknown inference backend %q", opts.Backend)
}
