// Package responder answers free-text questions about stored reports by
// handing matching report data to a text-generation model.
package responder

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/kalambet/seodata/internal/blobstore"
	"github.com/kalambet/seodata/internal/composer"
	"github.com/kalambet/seodata/internal/report"
	"github.com/kalambet/seodata/internal/uploader"
	"github.com/kalambet/seodata/internal/vectordb"
)

// FallbackAnswer is returned when the model produces no text.
const FallbackAnswer = "No answer found."

// Mode selects how context is retrieved.
type Mode string

const (
	// ModeScan downloads every object and keeps those containing the question.
	ModeScan Mode = "scan"
	// ModeVector searches the vector collection for rows near the question.
	ModeVector Mode = "vector"
)

const defaultTopK = 5

// ParseMode validates a configured mode name. Empty means ModeScan.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeScan:
		return ModeScan, nil
	case ModeVector:
		return ModeVector, nil
	}
	return "", fmt.Errorf("unknown responder mode %q", s)
}

// Stage names where an Ask failed.
const (
	StageList     = "list"
	StageDownload = "download"
	StageSearch   = "search"
	StageGenerate = "generate"
)

// Error is returned for any failure of a collaborator during Ask.
type Error struct {
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// Embedder turns the question into a vector in vector mode.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Options struct {
	Mode         Mode
	Model        string
	ContextChars int
	Collection   string
	TopK         int
}

// Answer is the outcome of a question.
type Answer struct {
	Text    string   `json:"answer"`
	Sources []string `json:"sources"`
	Matched int      `json:"matched"`
}

type Responder struct {
	store    blobstore.Store
	gen      Generator
	composer *composer.Composer
	opts     Options

	embedder Embedder
	vectors  vectordb.Store
}

func New(store blobstore.Store, gen Generator, opts Options) *Responder {
	if opts.Mode == "" {
		opts.Mode = ModeScan
	}
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	return &Responder{
		store:    store,
		gen:      gen,
		composer: composer.New(opts.ContextChars),
		opts:     opts,
	}
}

// WithVectors supplies the collaborators vector mode needs.
func (r *Responder) WithVectors(e Embedder, s vectordb.Store) *Responder {
	r.embedder = e
	r.vectors = s
	return r
}

// Mode reports the retrieval mode in use.
func (r *Responder) Mode() Mode {
	return r.opts.Mode
}

// Ask retrieves context for question and asks the model. The model is
// called even when no context was found.
func (r *Responder) Ask(ctx context.Context, question string) (Answer, error) {
	var (
		contexts []string
		answer   Answer
		err      error
	)
	switch r.opts.Mode {
	case ModeVector:
		contexts, answer, err = r.searchVectors(ctx, question)
	default:
		contexts, answer, err = r.scan(ctx, question)
	}
	if err != nil {
		return Answer{}, err
	}

	prompt := r.composer.Compose(question, contexts)
	log.WithFields(log.Fields{
		"mode":    r.opts.Mode,
		"matched": answer.Matched,
		"prompt":  len(prompt),
	}).Debug("Asking model")

	text, err := r.gen.Generate(ctx, r.opts.Model, prompt)
	if err != nil {
		return Answer{}, &Error{Stage: StageGenerate, Err: err}
	}
	answer.Text = strings.TrimSpace(text)
	if answer.Text == "" {
		answer.Text = FallbackAnswer
	}
	return answer, nil
}

// scan keeps the raw text of every object containing the question,
// case-insensitively. Only the first match is used as context.
func (r *Responder) scan(ctx context.Context, question string) ([]string, Answer, error) {
	objects, err := r.store.List(ctx)
	if err != nil {
		return nil, Answer{}, &Error{Stage: StageList, Err: err}
	}

	needle := strings.ToLower(question)
	var (
		first  string
		answer = Answer{Sources: []string{}}
	)
	for _, obj := range objects {
		data, err := r.store.Get(ctx, obj.Name)
		if err != nil {
			return nil, Answer{}, &Error{Stage: StageDownload, Err: err}
		}
		if !strings.Contains(strings.ToLower(string(data)), needle) {
			continue
		}
		answer.Matched++
		if answer.Matched == 1 {
			first = string(data)
			answer.Sources = append(answer.Sources, obj.Name)
		}
	}

	if answer.Matched == 0 {
		return nil, answer, nil
	}
	return []string{first}, answer, nil
}

func (r *Responder) searchVectors(ctx context.Context, question string) ([]string, Answer, error) {
	if r.embedder == nil || r.vectors == nil {
		return nil, Answer{}, &Error{Stage: StageSearch, Err: fmt.Errorf("vector mode is not configured")}
	}
	vec, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, Answer{}, &Error{Stage: StageSearch, Err: err}
	}
	hits, err := r.vectors.Search(ctx, r.opts.Collection, vec, r.opts.TopK)
	if err != nil {
		return nil, Answer{}, &Error{Stage: StageSearch, Err: err}
	}

	answer := Answer{Sources: make([]string, 0, len(hits)), Matched: len(hits)}
	contexts := make([]string, 0, len(hits))
	for _, h := range hits {
		row := uploader.RowFromPayload(h.Payload)
		contexts = append(contexts, report.Describe(row))
		answer.Sources = append(answer.Sources, row.URL())
	}
	return contexts, answer, nil
}
