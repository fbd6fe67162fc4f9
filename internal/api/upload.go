package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/kalambet/seodata/internal/blobstore"
	"github.com/kalambet/seodata/internal/jobs"
	"github.com/kalambet/seodata/internal/storage"
	"github.com/kalambet/seodata/internal/uploader"
)

// UploadRequest selects synchronous or queued execution. The object is always
// the configured one.
type UploadRequest struct {
	Async bool `json:"async"`
}

type UploadResponse struct {
	Message string `json:"message"`
	uploader.Result
}

func handleUpload(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req UploadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		if req.Async {
			if deps.Jobs == nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "background uploads are not enabled")
				return
			}
			id, err := jobs.EnqueueUpload(r.Context(), deps.Jobs, "")
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue upload: %v", err)
				return
			}
			writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id, "status": "queued"})
			return
		}

		res, err := deps.Uploader.Upload(r.Context(), uploader.Request{})
		if err != nil {
			log.WithError(err).Error("Upload failed")
			httpError(w, uploadStatus(err), "api_error", "%s", uploader.FailureMessage(err))
			return
		}

		writeJSON(w, http.StatusOK, UploadResponse{Message: res.Message(), Result: res})
	}
}

func uploadStatus(err error) int {
	var be *uploader.BatchError
	switch {
	case errors.Is(err, blobstore.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &be), errors.Is(err, uploader.ErrMissingCollection):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func handleGetJob(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Jobs == nil {
			httpError(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		id := chi.URLParam(r, "id")
		job, err := deps.Jobs.GetJob(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get job: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}
