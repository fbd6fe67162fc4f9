package dashboard

import (
	"bytes"
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/kalambet/seodata/internal/report"
)

//go:embed templates/dashboard.html
var templates embed.FS

var page = template.Must(template.New("dashboard.html").Funcs(template.FuncMap{
	"pageURL": pageURL,
	"percent": percent,
}).ParseFS(templates, "templates/dashboard.html"))

// pageURL is the first key, or "Unknown" when the row has none.
func pageURL(r report.Row) string {
	if len(r.Keys) == 0 || r.Keys[0] == "" {
		return "Unknown"
	}
	return r.Keys[0]
}

// percent renders a CTR ratio as a percentage with two decimals.
func percent(ctr float64) string {
	return strconv.FormatFloat(ctr*100, 'f', 2, 64)
}

type Handler struct {
	loader Loader
}

func NewHandler(l Loader) *Handler {
	return &Handler{loader: l}
}

// Routes serves the HTML page at / and the raw rows at /rows.json. Mount it
// under /dashboard.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.handlePage)
	r.Get("/rows.json", h.handleRows)
	return r
}

// handlePage keeps the placeholder on the page when loading fails; the
// error only reaches the log.
func (h *Handler) handlePage(w http.ResponseWriter, r *http.Request) {
	rows, err := h.loader.Load(r.Context())
	if err != nil {
		log.WithError(err).Error("Error fetching reports")
		rows = nil
	}

	var buf bytes.Buffer
	if err := page.Execute(&buf, struct{ Rows []report.Row }{rows}); err != nil {
		log.WithError(err).Error("Rendering dashboard")
		http.Error(w, "rendering dashboard", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func (h *Handler) handleRows(w http.ResponseWriter, r *http.Request) {
	rows, err := h.loader.Load(r.Context())
	if err != nil {
		log.WithError(err).Error("Error fetching reports")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"message": err.Error(),
				"type":    "api_error",
			},
		})
		return
	}
	if rows == nil {
		rows = []report.Row{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rows)
}
