// Package uploader embeds the rows of a stored report and writes them to the
// vector collection in fixed-size batches.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/kalambet/seodata/internal/blobstore"
	"github.com/kalambet/seodata/internal/embedding"
	"github.com/kalambet/seodata/internal/report"
	"github.com/kalambet/seodata/internal/storage"
	"github.com/kalambet/seodata/internal/vectordb"
)

var (
	// ErrNoEmbeddings is returned when every row was skipped.
	ErrNoEmbeddings = errors.New("no valid embeddings generated, aborting upload")

	// ErrMissingCollection is returned when the target collection does not exist.
	ErrMissingCollection = errors.New("collection does not exist")
)

type missingCollectionError string

func (e missingCollectionError) Error() string {
	return fmt.Sprintf("collection %q does not exist", string(e))
}

func (e missingCollectionError) Is(target error) bool { return target == ErrMissingCollection }

// DefaultBatchSize is the number of points sent per upsert.
const DefaultBatchSize = 50

// Embedder turns a row description into a unit vector. Errors wrapping
// embedding.ErrInvalidEmbedding skip the row; any other error aborts.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Ledger records finished runs.
type Ledger interface {
	RecordRun(ctx context.Context, r storage.Run) error
}

type Options struct {
	Collection    string
	DefaultObject string
	BatchSize     int
	MinTextChars  int
	MinWords      int
	Now           func() time.Time
}

type Request struct {
	Object string `json:"object,omitempty"`
}

// Result summarises an upload.
type Result struct {
	Object     string `json:"object"`
	Collection string `json:"collection"`
	Rows       int    `json:"rows"`
	Skipped    int    `json:"skipped"`
	Embedded   int    `json:"embedded"`
	Uploaded   int    `json:"uploaded"`
	Batches    int    `json:"batches"`
}

// Message is the human-readable success line.
func (r Result) Message() string {
	return fmt.Sprintf("Uploaded %d embeddings to collection '%s'.", r.Uploaded, r.Collection)
}

// BatchError reports the first failed upsert. Points in earlier batches stay
// committed.
type BatchError struct {
	Batch    int
	Uploaded int
	Detail   string
	Err      error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("upserting batch %d (%d points already uploaded): %s", e.Batch, e.Uploaded, e.Detail)
}

func (e *BatchError) Unwrap() error { return e.Err }

// FailureMessage renders err the way upload failures are reported to callers.
func FailureMessage(err error) string {
	var be *BatchError
	if errors.As(err, &be) {
		return "Upload failed: " + be.Detail
	}
	return "Upload failed: " + err.Error()
}

type Uploader struct {
	store    blobstore.Store
	embedder Embedder
	vectors  vectordb.Store
	opts     Options
	ledger   Ledger
}

func New(store blobstore.Store, embedder Embedder, vectors vectordb.Store, opts Options) *Uploader {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Uploader{store: store, embedder: embedder, vectors: vectors, opts: opts}
}

// WithLedger makes Upload record every invocation.
func (u *Uploader) WithLedger(l Ledger) *Uploader {
	u.ledger = l
	return u
}

// Collection returns the target collection name.
func (u *Uploader) Collection() string {
	return u.opts.Collection
}

// Upload embeds every usable row of the requested object and upserts the
// resulting points.
func (u *Uploader) Upload(ctx context.Context, req Request) (Result, error) {
	started := time.Now()
	res, err := u.upload(ctx, req)
	u.record(ctx, started, res, err)
	return res, err
}

func (u *Uploader) upload(ctx context.Context, req Request) (Result, error) {
	object := req.Object
	if object == "" {
		object = u.opts.DefaultObject
	}
	res := Result{Object: object, Collection: u.opts.Collection}
	if object == "" {
		return res, errors.New("no object to upload")
	}
	logger := log.WithFields(log.Fields{"object": object, "collection": u.opts.Collection})

	data, err := u.store.Get(ctx, object)
	if err != nil {
		return res, fmt.Errorf("downloading %s: %w", object, err)
	}
	rows, err := report.Decode(data)
	if err != nil {
		return res, err
	}
	res.Rows = len(rows)

	points, err := u.embedRows(ctx, rows, logger)
	if err != nil {
		return res, err
	}
	res.Embedded = len(points)
	res.Skipped = res.Rows - res.Embedded
	if len(points) == 0 {
		return res, ErrNoEmbeddings
	}

	ok, err := u.vectors.CollectionExists(ctx, u.opts.Collection)
	if err != nil {
		return res, fmt.Errorf("checking collection %s: %w", u.opts.Collection, err)
	}
	if !ok {
		return res, missingCollectionError(u.opts.Collection)
	}

	logger.WithFields(log.Fields{"points": len(points), "batch_size": u.opts.BatchSize}).Info("Uploading vectors")
	for start, batch := 0, 0; start < len(points); start, batch = start+u.opts.BatchSize, batch+1 {
		end := min(start+u.opts.BatchSize, len(points))
		if err := u.vectors.Upsert(ctx, u.opts.Collection, points[start:end]); err != nil {
			return res, &BatchError{Batch: batch, Uploaded: res.Uploaded, Detail: vectordb.Detail(err), Err: err}
		}
		res.Uploaded += end - start
		res.Batches++
		logger.WithFields(log.Fields{"batch": batch, "from": start, "to": end - 1}).Debug("Batch uploaded")
	}

	logger.WithField("uploaded", res.Uploaded).Info("Upload finished")
	return res, nil
}

func (u *Uploader) embedRows(ctx context.Context, rows []report.Row, logger *log.Entry) ([]vectordb.Point, error) {
	points := make([]vectordb.Point, 0, len(rows))
	for i, row := range rows {
		text := report.Describe(row)
		if len(strings.TrimSpace(text)) < u.opts.MinTextChars || report.WordCount(text) < u.opts.MinWords {
			logger.WithFields(log.Fields{"row": i, "text": text}).Warn("Skipping row with short text")
			continue
		}

		vec, err := u.embedder.Embed(ctx, text)
		if errors.Is(err, embedding.ErrInvalidEmbedding) {
			logger.WithError(err).WithField("row", i).Warn("Skipping row with invalid embedding")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("embedding row %d: %w", i, err)
		}

		points = append(points, vectordb.Point{
			ID:      uuid.NewString(),
			Vector:  vec,
			Payload: payload(row, u.opts.Now()),
		})
	}
	return points, nil
}

func payload(row report.Row, now time.Time) map[string]any {
	keys := row.Keys
	if keys == nil {
		keys = []string{}
	}
	return map[string]any{
		"keys":        keys,
		"clicks":      row.Clicks,
		"impressions": row.Impressions,
		"ctr":         row.CTR,
		"position":    row.Position,
		"url":         row.URL(),
		"source":      "gsc",
		"timestamp":   now.UTC().Format(time.RFC3339),
	}
}

// RowFromPayload rebuilds a report row from a stored point payload. Numbers
// may arrive as int64, float64 or json.Number depending on the backend.
func RowFromPayload(p map[string]any) report.Row {
	var row report.Row
	if list, ok := p["keys"].([]any); ok {
		for _, k := range list {
			if s, ok := k.(string); ok {
				row.Keys = append(row.Keys, s)
			}
		}
	} else if list, ok := p["keys"].([]string); ok {
		row.Keys = list
	}
	if len(row.Keys) == 0 {
		if s, ok := p["url"].(string); ok && s != "" {
			row.Keys = []string{s}
		}
	}
	row.Clicks = int64(number(p["clicks"]))
	row.Impressions = int64(number(p["impressions"]))
	row.CTR = number(p["ctr"])
	row.Position = number(p["position"])
	return row
}

func number(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	case float32:
		return float64(n)
	case interface{ Float64() (float64, error) }:
		f, _ := n.Float64()
		return f
	}
	return 0
}

func (u *Uploader) record(ctx context.Context, started time.Time, res Result, err error) {
	if u.ledger == nil {
		return
	}
	run := storage.Run{
		ID:         uuid.NewString(),
		Kind:       storage.KindUpload,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Status:     storage.StatusOK,
		Object:     res.Object,
		Rows:       res.Uploaded,
	}
	if err != nil {
		run.Status = storage.StatusFailed
		run.Detail = FailureMessage(err)
	}
	if lerr := u.ledger.RecordRun(context.WithoutCancel(ctx), run); lerr != nil {
		log.WithError(lerr).Warn("Could not record upload run")
	}
}
