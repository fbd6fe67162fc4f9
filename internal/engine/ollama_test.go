package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tagsJSON(names ...string) []byte {
	type entry struct {
		Name string `json:"name"`
	}
	type resp struct {
		Models []entry `json:"models"`
	}
	r := resp{}
	for _, n := range names {
		r.Models = append(r.Models, entry{Name: n})
	}
	b, _ := json.Marshal(r)
	return b
}

func TestOllamaEngine_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"response": "hello from ollama"})
	}))
	defer srv.Close()

	result, err := NewOllamaEngine(srv.URL, 0).Generate(context.Background(), "llama3", "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello from ollama", result)
}

func TestOllamaEngine_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"embeddings": [][]float32{{0.1, 0.2, 0.3}},
		})
	}))
	defer srv.Close()

	vec, err := NewOllamaEngine(srv.URL, 0).Embed(context.Background(), "all-minilm", "hello")
	require.NoError(t, err)
	assert.Len(t, vec, 3)
}

func TestOllamaEngine_IsRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tagsJSON("llama3:latest"))
	}))
	defer srv.Close()
	assert.True(t, NewOllamaEngine(srv.URL, 0).IsRunning(context.Background()))

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	down.Close()
	assert.False(t, NewOllamaEngine(down.URL, 0).IsRunning(context.Background()))
}

func TestOllamaEngine_PullModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/pull" {
			http.NotFound(w, r)
			return
		}
		enc := json.NewEncoder(w)
		enc.Encode(map[string]any{"status": "downloading", "total": 1000, "completed": 500})
		enc.Encode(map[string]any{"status": "success"})
	}))
	defer srv.Close()

	var statuses []string
	err := NewOllamaEngine(srv.URL, 0).PullModel(context.Background(), "all-minilm", func(p PullProgress) {
		statuses = append(statuses, p.Status)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"downloading", "success"}, statuses)
}

func TestHuggingFaceEngine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/models/google/flan-t5-small":
			fmt.Fprint(w, `[{"generated_text":"answer"}]`)
		case "/pipeline/feature-extraction/sentence-transformers/all-MiniLM-L6-v2":
			fmt.Fprint(w, `[[1, 3], [3, 5]]`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	e, err := New(Options{Backend: BackendHuggingFace, BaseURL: srv.URL, APIKey: "k"})
	require.NoError(t, err)

	text, err := e.Generate(context.Background(), "google/flan-t5-small", "q")
	require.NoError(t, err)
	assert.Equal(t, "answer", text)

	vec, err := e.Embed(context.Background(), "sentence-transformers/all-MiniLM-L6-v2", "some row text")
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 4}, vec)
}
