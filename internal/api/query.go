package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/kalambet/seodata/internal/responder"
)

type QueryRequest struct {
	Question string `json:"question"`
}

// handleQuery accepts an empty body or a missing question; both ask with an
// empty question, which matches every report.
func handleQuery(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req QueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		answer, err := deps.Responder.Ask(r.Context(), req.Question)
		if err != nil {
			log.WithError(err).Error("Answering question failed")
			var rerr *responder.Error
			if errors.As(err, &rerr) {
				httpError(w, http.StatusBadGateway, "api_error", "%v", err)
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}

		writeJSON(w, http.StatusOK, answer)
	}
}
