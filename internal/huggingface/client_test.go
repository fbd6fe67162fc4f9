package huggingface

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/seodata/internal/embedding"
)

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/google/flan-t5-small", r.URL.Path)
		assert.Equal(t, "Bearer hf-key", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "what is up", body["inputs"])

		fmt.Fprint(w, `[{"generated_text":"42"}]`)
	}))
	defer srv.Close()

	c := NewClient("hf-key", WithBaseURL(srv.URL))
	got, err := c.Generate(context.Background(), "google/flan-t5-small", "what is up")
	require.NoError(t, err)
	assert.Equal(t, "42", got)
}

func TestGenerateEmptyArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	got, err := NewClient("", WithBaseURL(srv.URL)).Generate(context.Background(), "m", "q")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGenerateStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad token"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewClient("x", WithBaseURL(srv.URL)).Generate(context.Background(), "m", "q")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.Code)
	assert.Contains(t, se.Body, "bad token")
}

func TestRetryOnThrottle(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `[{"generated_text":"ok"}]`)
	}))
	defer srv.Close()

	c := NewClient("", WithBaseURL(srv.URL), WithMaxAttempts(3), WithBackoff(time.Millisecond))
	got, err := c.Generate(context.Background(), "m", "q")
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSingleAttemptByDefault(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient("", WithBaseURL(srv.URL)).Generate(context.Background(), "m", "q")
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient("", WithBaseURL(srv.URL), WithMaxAttempts(5), WithBackoff(time.Millisecond))
	_, err := c.Generate(context.Background(), "m", "q")
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFeatureExtractionShapes(t *testing.T) {
	cases := []struct {
		name string
		body string
		want []float32
	}{
		{"pooled", `[0.5, 1.5]`, []float32{0.5, 1.5}},
		{"tokens", `[[1, 2], [3, 4]]`, []float32{2, 3}},
		{"batch", `[[[1, 0], [0, 1]]]`, []float32{0.5, 0.5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/pipeline/feature-extraction/sentence-transformers/all-MiniLM-L6-v2", r.URL.Path)
				var body featureRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.True(t, body.Options.WaitForModel)
				fmt.Fprint(w, tc.body)
			}))
			defer srv.Close()

			got, err := NewClient("", WithBaseURL(srv.URL)).FeatureExtraction(context.Background(), "sentence-transformers/all-MiniLM-L6-v2", "hello there world")
			require.NoError(t, err)
			assert.InDeltaSlice(t, tc.want, got, 1e-6)
		})
	}
}

func TestFeatureExtractionGarbage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":"weird"}`)
	}))
	defer srv.Close()

	_, err := NewClient("", WithBaseURL(srv.URL)).FeatureExtraction(context.Background(), "m", "x")
	assert.ErrorIs(t, err, embedding.ErrInvalidEmbedding)
	assert.ErrorContains(t, err, "unexpected feature-extraction response shape")
	assert.NotContains(t, err.Error(), "[][]float32")
}

func TestFeatureExtractionNonNumeric(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[0.1, "x", 0.3]`)
	}))
	defer srv.Close()

	_, err := NewClient("", WithBaseURL(srv.URL)).FeatureExtraction(context.Background(), "m", "x")
	assert.ErrorIs(t, err, embedding.ErrInvalidEmbedding)
}

func TestFeatureExtractionStatusErrorStaysFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"Invalid credentials"}`)
	}))
	defer srv.Close()

	_, err := NewClient("", WithBaseURL(srv.URL)).FeatureExtraction(context.Background(), "m", "x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, embedding.ErrInvalidEmbedding)
}

func TestMeanPool(t *testing.T) {
	assert.Nil(t, MeanPool(nil))
	assert.Equal(t, []float32{2, 4}, MeanPool([][]float32{{1, 2}, {3, 6}, {9}}))
}
