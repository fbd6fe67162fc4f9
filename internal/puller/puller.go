// Package puller fetches one window of search analytics and stores it as a new
// report object.
package puller

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/kalambet/seodata/internal/blobstore"
	"github.com/kalambet/seodata/internal/gsc"
	"github.com/kalambet/seodata/internal/report"
	"github.com/kalambet/seodata/internal/storage"
)

// Source is the analytics provider.
type Source interface {
	Query(ctx context.Context, q gsc.Query) ([]report.Row, error)
}

// Ledger records finished runs.
type Ledger interface {
	RecordRun(ctx context.Context, r storage.Run) error
}

type Options struct {
	SiteURL    string
	Strategy   report.Strategy
	Dimensions []string
	RowLimit   int
	Encoding   report.Encoding
	Now        func() time.Time
}

// Result describes a stored object.
type Result struct {
	Object           string        `json:"object"`
	Rows             int           `json:"rows"`
	Window           report.Window `json:"-"`
	ContainerCreated bool          `json:"container_created"`
}

type Puller struct {
	src    Source
	store  blobstore.Store
	opts   Options
	namer  *report.Namer
	ledger Ledger
}

func New(src Source, store blobstore.Store, opts Options) *Puller {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Strategy == "" {
		opts.Strategy = report.PreviousMonth
	}
	if opts.Encoding == "" {
		opts.Encoding = report.Pretty
	}
	return &Puller{src: src, store: store, opts: opts, namer: report.NewNamer(opts.Now)}
}

// WithLedger makes Run record every invocation.
func (p *Puller) WithLedger(l Ledger) *Puller {
	p.ledger = l
	return p
}

// RunOnce pulls the configured window and writes exactly one new object.
// Nothing is written when any step fails.
func (p *Puller) RunOnce(ctx context.Context) (Result, error) {
	window := p.opts.Strategy.Window(p.opts.Now())
	logger := log.WithFields(log.Fields{
		"site":   p.opts.SiteURL,
		"window": window.String(),
	})

	rows, err := p.src.Query(ctx, gsc.Query{
		SiteURL:    p.opts.SiteURL,
		Window:     window,
		Dimensions: p.opts.Dimensions,
		RowLimit:   p.opts.RowLimit,
	})
	if err != nil {
		return Result{}, fmt.Errorf("fetching analytics: %w", err)
	}

	data, err := report.Encode(rows, p.opts.Encoding)
	if err != nil {
		return Result{}, fmt.Errorf("encoding report: %w", err)
	}

	created, err := p.store.EnsureContainer(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("ensuring container: %w", err)
	}
	if created {
		logger.WithField("container", p.store.Container()).Info("Container created")
	}

	name := p.namer.Next()
	if err := p.store.Put(ctx, name, data); err != nil {
		return Result{}, fmt.Errorf("storing report: %w", err)
	}

	logger.WithFields(log.Fields{"object": name, "rows": len(rows)}).Info("GSC data uploaded")
	return Result{Object: name, Rows: len(rows), Window: window, ContainerCreated: created}, nil
}

// Run is the scheduled entry point. Errors are logged, never returned.
func (p *Puller) Run(ctx context.Context) {
	if _, err := p.Pull(ctx); err != nil {
		log.WithError(err).Error("Error pulling GSC data")
	}
}

// Pull runs RunOnce and records the outcome in the ledger, if any.
func (p *Puller) Pull(ctx context.Context) (Result, error) {
	started := time.Now()
	res, err := p.RunOnce(ctx)

	run := storage.Run{
		ID:         uuid.NewString(),
		Kind:       storage.KindPull,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Status:     storage.StatusOK,
		Object:     res.Object,
		Rows:       res.Rows,
	}
	if err != nil {
		run.Status = storage.StatusFailed
		run.Detail = err.Error()
	}

	if p.ledger != nil {
		if lerr := p.ledger.RecordRun(context.WithoutCancel(ctx), run); lerr != nil {
			log.WithError(lerr).Warn("Could not record pull run")
		}
	}
	return res, err
}
