package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/kalambet/seodata/internal/blobstore"
	"github.com/kalambet/seodata/internal/config"
	"github.com/kalambet/seodata/internal/dashboard"
	"github.com/kalambet/seodata/internal/embedding"
	"github.com/kalambet/seodata/internal/engine"
	"github.com/kalambet/seodata/internal/gsc"
	"github.com/kalambet/seodata/internal/puller"
	"github.com/kalambet/seodata/internal/report"
	"github.com/kalambet/seodata/internal/responder"
	"github.com/kalambet/seodata/internal/storage"
	"github.com/kalambet/seodata/internal/uploader"
	"github.com/kalambet/seodata/internal/vectordb"
)

// app lazily builds the components a command needs from the loaded config.
// Required keys are only checked for the components actually used.
type app struct {
	cfg config.Config

	blobs   blobstore.Store
	ledger  *storage.Store
	engine  engine.Engine
	vectors vectordb.Store
}

func newApp(cfg config.Config) *app {
	return &app{cfg: cfg}
}

func (a *app) Close() {
	if a.vectors != nil {
		if err := a.vectors.Close(); err != nil {
			log.WithError(err).Warn("Closing vector store")
		}
	}
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			log.WithError(err).Warn("Closing ledger")
		}
	}
}

func (a *app) blobStore(ctx context.Context) (blobstore.Store, error) {
	if a.blobs != nil {
		return a.blobs, nil
	}
	s := a.cfg.Storage
	switch s.Driver {
	case blobstore.DriverAzure, "":
		if err := a.cfg.Require("storage.connection_string"); err != nil {
			return nil, err
		}
	case blobstore.DriverDisk:
		if err := a.cfg.Require("storage.dir"); err != nil {
			return nil, err
		}
	}
	store, err := blobstore.Open(ctx, blobstore.Options{
		Driver:           s.Driver,
		Container:        s.Container,
		ConnectionString: s.ConnectionString,
		Project:          s.Project,
		Region:           s.Region,
		Dir:              s.Dir,
	})
	if err != nil {
		return nil, fmt.Errorf("opening blob store: %w", err)
	}
	a.blobs = store
	return store, nil
}

// runLedger opens the SQLite file holding runs and jobs.
func (a *app) runLedger() (*storage.Store, error) {
	if a.ledger != nil {
		return a.ledger, nil
	}
	st, err := storage.Open(a.cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	a.ledger = st
	return st, nil
}

func (a *app) inference() (engine.Engine, error) {
	if a.engine != nil {
		return a.engine, nil
	}
	inf := a.cfg.Inference
	if inf.Backend == engine.BackendHuggingFace || inf.Backend == "" {
		if err := a.cfg.Require("inference.api_key"); err != nil {
			return nil, err
		}
	}
	e, err := engine.New(engine.Options{
		Backend:     inf.Backend,
		BaseURL:     inf.BaseURL,
		APIKey:      inf.APIKey,
		OllamaURL:   inf.OllamaURL,
		Timeout:     inf.TimeoutDuration(),
		MaxAttempts: inf.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}
	a.engine = e
	return e, nil
}

func (a *app) embedder() (*embedding.Pipeline, error) {
	e, err := a.inference()
	if err != nil {
		return nil, err
	}
	return embedding.NewPipeline(e, a.cfg.Inference.EmbedModel), nil
}

func (a *app) vectorStore(ctx context.Context) (vectordb.Store, error) {
	if a.vectors != nil {
		return a.vectors, nil
	}
	v := a.cfg.Vector
	opts := vectordb.Options{
		Driver: v.Driver,
		URL:    v.URL,
		APIKey: v.APIKey,
	}
	switch v.Driver {
	case vectordb.DriverQdrant, "":
		if err := a.cfg.Require("vector.url"); err != nil {
			return nil, err
		}
	case vectordb.DriverSQLite:
		ledger, err := a.runLedger()
		if err != nil {
			return nil, err
		}
		opts.DB = ledger.DB()
	}
	store, err := vectordb.Open(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("opening vector store: %w", err)
	}
	a.vectors = store
	return store, nil
}

func (a *app) puller(ctx context.Context) (*puller.Puller, error) {
	if err := a.cfg.Require("gsc.site_url", "gsc.credentials_file"); err != nil {
		return nil, err
	}
	strategy, err := report.ParseStrategy(a.cfg.Puller.Window)
	if err != nil {
		return nil, err
	}
	enc, err := report.ParseEncoding(a.cfg.Puller.Encoding)
	if err != nil {
		return nil, err
	}
	store, err := a.blobStore(ctx)
	if err != nil {
		return nil, err
	}
	src, err := gsc.NewWithKeyFile(ctx, a.cfg.GSC.CredentialsFile)
	if err != nil {
		return nil, err
	}

	p := puller.New(src, store, puller.Options{
		SiteURL:    a.cfg.GSC.SiteURL,
		Strategy:   strategy,
		Dimensions: splitList(a.cfg.Puller.Dimensions),
		RowLimit:   a.cfg.Puller.RowLimit,
		Encoding:   enc,
	})
	if ledger, err := a.runLedger(); err == nil {
		p.WithLedger(ledger)
	} else {
		log.WithError(err).Warn("Run ledger unavailable, pulls will not be recorded")
	}
	return p, nil
}

func (a *app) uploader(ctx context.Context) (*uploader.Uploader, error) {
	store, err := a.blobStore(ctx)
	if err != nil {
		return nil, err
	}
	emb, err := a.embedder()
	if err != nil {
		return nil, err
	}
	vectors, err := a.vectorStore(ctx)
	if err != nil {
		return nil, err
	}

	u := uploader.New(store, emb, vectors, uploader.Options{
		Collection:    a.cfg.Vector.Collection,
		DefaultObject: a.cfg.Uploader.Object,
		BatchSize:     a.cfg.Uploader.BatchSize,
		MinTextChars:  a.cfg.Uploader.MinTextChars,
		MinWords:      a.cfg.Uploader.MinWords,
	})
	if ledger, err := a.runLedger(); err == nil {
		u.WithLedger(ledger)
	} else {
		log.WithError(err).Warn("Run ledger unavailable, uploads will not be recorded")
	}
	return u, nil
}

func (a *app) responder(ctx context.Context) (*responder.Responder, error) {
	mode, err := responder.ParseMode(a.cfg.Responder.Mode)
	if err != nil {
		return nil, err
	}
	store, err := a.blobStore(ctx)
	if err != nil {
		return nil, err
	}
	gen, err := a.inference()
	if err != nil {
		return nil, err
	}

	r := responder.New(store, gen, responder.Options{
		Mode:         mode,
		Model:        a.cfg.Inference.GenerateModel,
		ContextChars: a.cfg.Responder.ContextChars,
		Collection:   a.cfg.Vector.Collection,
		TopK:         a.cfg.Responder.TopK,
	})
	if mode == responder.ModeVector {
		emb, err := a.embedder()
		if err != nil {
			return nil, err
		}
		vectors, err := a.vectorStore(ctx)
		if err != nil {
			return nil, err
		}
		r.WithVectors(emb, vectors)
	}
	return r, nil
}

// dashboardLoader reads the container over HTTPS when a container URL is
// configured, and through the blob store driver otherwise.
func (a *app) dashboardLoader(ctx context.Context) (dashboard.Loader, error) {
	d := a.cfg.Dashboard
	if d.ContainerURL != "" {
		return dashboard.NewContainerLoader(d.ContainerURL, d.SASToken, nil), nil
	}
	store, err := a.blobStore(ctx)
	if err != nil {
		return nil, err
	}
	return dashboard.NewStoreLoader(store), nil
}

// ensureModels pulls missing local models at start-up; hosted backends are
// only checked for reachability.
func (a *app) ensureModels(ctx context.Context) error {
	e, err := a.inference()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()
	return engine.EnsureReady(ctx, e, []string{a.cfg.Inference.EmbedModel, a.cfg.Inference.GenerateModel}, os.Stderr)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
