package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/seodata/internal/blobstore"
	"github.com/kalambet/seodata/internal/responder"
	"github.com/kalambet/seodata/internal/storage"
	"github.com/kalambet/seodata/internal/uploader"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Asker answers questions about stored reports.
type Asker interface {
	Ask(ctx context.Context, question string) (responder.Answer, error)
}

// UploadRunner embeds a report into the vector collection.
type UploadRunner interface {
	Upload(ctx context.Context, req uploader.Request) (uploader.Result, error)
}

// ReportLister lists stored report objects.
type ReportLister interface {
	List(ctx context.Context) ([]blobstore.Object, error)
}

// RunLister reads the run ledger.
type RunLister interface {
	ListRuns(ctx context.Context, kind string, limit int) ([]storage.Run, error)
}

// JobQueue enqueues background uploads and reports their state.
type JobQueue interface {
	EnqueueJob(ctx context.Context, job storage.Job) error
	GetJob(ctx context.Context, id string) (storage.Job, error)
}

type Deps struct {
	Responder Asker
	Uploader  UploadRunner
	Reports   ReportLister
	Runs      RunLister    // optional; /runs is not served when nil
	Jobs      JobQueue     // optional; async uploads are refused when nil
	Dashboard http.Handler // optional; mounted at /dashboard
	Token     string       // bearer token; empty disables auth
}

// NewHandler returns the HTTP API. /health and /dashboard are public; the
// remaining routes require the bearer token when one is configured.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	if deps.Dashboard != nil {
		r.Mount("/dashboard", deps.Dashboard)
	}

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Post("/query", handleQuery(deps))
		r.Post("/upload", handleUpload(deps))
		r.Get("/jobs/{id}", handleGetJob(deps))
		r.Get("/reports", handleListReports(deps))
		if deps.Runs != nil {
			r.Get("/runs", handleListRuns(deps))
		}
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleListReports(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		objects, err := deps.Reports.List(r.Context())
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "failed to list reports: %v", err)
			return
		}
		if objects == nil {
			objects = []blobstore.Object{}
		}
		writeJSON(w, http.StatusOK, objects)
	}
}

func handleListRuns(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind := r.URL.Query().Get("kind")
		if kind != "" && kind != storage.KindPull && kind != storage.KindUpload {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "kind must be %q or %q", storage.KindPull, storage.KindUpload)
			return
		}
		limit := parseIntParam(r, "limit", 50, 500)

		runs, err := deps.Runs.ListRuns(r.Context(), kind, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list runs: %v", err)
			return
		}
		if runs == nil {
			runs = []storage.Run{}
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
