// Package jobs runs vector uploads in the background from the SQLite job queue.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/kalambet/seodata/internal/storage"
	"github.com/kalambet/seodata/internal/uploader"
)

// TypeVectorUpload is the job type handled by Worker.
const TypeVectorUpload = "vector_upload"

// Enqueuer adds jobs to the queue.
type Enqueuer interface {
	EnqueueJob(ctx context.Context, job storage.Job) error
}

// Queue abstracts the job queue operations the worker needs.
type Queue interface {
	ClaimNextJob(ctx context.Context, types []string) (*storage.Job, error)
	CompleteJob(ctx context.Context, id string) error
	FailJob(ctx context.Context, id string, errMsg string) error
}

// Uploader performs one upload.
type Uploader interface {
	Upload(ctx context.Context, req uploader.Request) (uploader.Result, error)
}

type uploadPayload struct {
	Object string `json:"object,omitempty"`
}

// EnqueueUpload queues a single-attempt upload of object (empty means the
// configured default) and returns the job ID.
func EnqueueUpload(ctx context.Context, q Enqueuer, object string) (string, error) {
	payload, err := json.Marshal(uploadPayload{Object: object})
	if err != nil {
		return "", fmt.Errorf("encoding job payload: %w", err)
	}
	job := storage.Job{
		ID:          uuid.NewString(),
		Type:        TypeVectorUpload,
		PayloadJSON: string(payload),
		MaxAttempts: 1,
	}
	if err := q.EnqueueJob(ctx, job); err != nil {
		return "", fmt.Errorf("enqueueing upload: %w", err)
	}
	return job.ID, nil
}

// Worker processes vector_upload jobs one at a time.
type Worker struct {
	queue    Queue
	uploader Uploader
	poll     time.Duration
}

// NewWorker creates a Worker. If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(queue Queue, up Uploader, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{queue: queue, uploader: up, poll: pollInterval}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			log.WithError(err).Error("Upload worker iteration failed")
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single job. It reports whether a job was
// processed, regardless of its outcome.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.queue.ClaimNextJob(ctx, []string{TypeVectorUpload})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}
	logger := log.WithField("job_id", job.ID)

	res, err := w.process(ctx, job)
	if err != nil {
		msg := uploader.FailureMessage(err)
		logger.WithError(err).Warn("Upload job failed")
		if failErr := w.queue.FailJob(context.WithoutCancel(ctx), job.ID, msg); failErr != nil {
			logger.WithError(failErr).Error("Could not mark job as failed")
		}
		return true, nil
	}

	logger.WithFields(log.Fields{"object": res.Object, "uploaded": res.Uploaded}).Info("Upload job finished")
	if err := w.queue.CompleteJob(context.WithoutCancel(ctx), job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) process(ctx context.Context, job *storage.Job) (uploader.Result, error) {
	var payload uploadPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return uploader.Result{}, fmt.Errorf("parsing payload: %w", err)
	}
	return w.uploader.Upload(ctx, uploader.Request{Object: payload.Object})
}
