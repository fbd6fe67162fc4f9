package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalambet/seodata/internal/storage"
	"github.com/kalambet/seodata/internal/uploader"
)

type mockUploader struct {
	mu       sync.Mutex
	requests []uploader.Request
	uploadFn func(req uploader.Request) (uploader.Result, error)
}

func (m *mockUploader) Upload(_ context.Context, req uploader.Request) (uploader.Result, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.uploadFn != nil {
		return m.uploadFn(req)
	}
	return uploader.Result{Object: req.Object, Uploaded: 3}, nil
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestWorker_ProcessesUpload(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := EnqueueUpload(ctx, store, "report-2024.json")
	if err != nil {
		t.Fatalf("EnqueueUpload: %v", err)
	}

	up := &mockUploader{}
	w := NewWorker(store, up, 0)

	didWork, err := w.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if !didWork {
		t.Fatal("RunOnce returned false, expected true")
	}

	if len(up.requests) != 1 || up.requests[0].Object != "report-2024.json" {
		t.Fatalf("requests = %+v, want one for report-2024.json", up.requests)
	}

	job, err := store.GetJob(ctx, id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != "completed" {
		t.Errorf("status = %q, want completed", job.Status)
	}
}

func TestWorker_DefaultObject(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := EnqueueUpload(ctx, store, ""); err != nil {
		t.Fatalf("EnqueueUpload: %v", err)
	}

	up := &mockUploader{}
	if _, err := NewWorker(store, up, 0).RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if len(up.requests) != 1 || up.requests[0].Object != "" {
		t.Fatalf("requests = %+v, want one with empty object", up.requests)
	}
}

func TestWorker_FailureIsFinal(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := EnqueueUpload(ctx, store, "")
	if err != nil {
		t.Fatalf("EnqueueUpload: %v", err)
	}

	up := &mockUploader{uploadFn: func(uploader.Request) (uploader.Result, error) {
		return uploader.Result{Uploaded: 50}, &uploader.BatchError{
			Batch: 1, Uploaded: 50, Detail: "Vector dimension error", Err: errors.New("rpc error"),
		}
	}}
	w := NewWorker(store, up, 0)

	didWork, err := w.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if !didWork {
		t.Fatal("RunOnce returned false, expected true")
	}

	job, err := store.GetJob(ctx, id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != "failed" {
		t.Errorf("status = %q, want failed", job.Status)
	}
	if job.LastError != "Upload failed: Vector dimension error" {
		t.Errorf("last_error = %q", job.LastError)
	}

	didWork, err = w.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second RunOnce error: %v", err)
	}
	if didWork {
		t.Error("failed upload job was claimed again")
	}
	if len(up.requests) != 1 {
		t.Errorf("upload attempted %d times, want 1", len(up.requests))
	}
}

func TestWorker_BadPayload(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.EnqueueJob(ctx, storage.Job{ID: "job-bad", Type: TypeVectorUpload, PayloadJSON: "{"}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	up := &mockUploader{}
	if _, err := NewWorker(store, up, 0).RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if len(up.requests) != 0 {
		t.Errorf("uploader called for unparsable payload")
	}

	job, err := store.GetJob(ctx, "job-bad")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != "failed" {
		t.Errorf("status = %q, want failed", job.Status)
	}
}

func TestWorker_IgnoresOtherTypes(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.EnqueueJob(ctx, storage.Job{ID: "job-x", Type: "something_else", PayloadJSON: "{}"}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	didWork, err := NewWorker(store, &mockUploader{}, 0).RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if didWork {
		t.Error("worker claimed a job of another type")
	}
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	store := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	for i := 0; i < 3; i++ {
		if _, err := EnqueueUpload(ctx, store, ""); err != nil {
			t.Fatalf("EnqueueUpload: %v", err)
		}
	}

	var processed atomic.Int32
	up := &mockUploader{uploadFn: func(uploader.Request) (uploader.Result, error) {
		processed.Add(1)
		return uploader.Result{}, nil
	}}
	w := NewWorker(store, up, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for processed.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("processed %d/3 jobs before timeout", processed.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
