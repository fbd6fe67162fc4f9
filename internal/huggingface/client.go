// Package huggingface calls the hosted Hugging Face inference API for text
// generation and feature extraction.
package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultBaseURL = "https://api-inference.huggingface.co"
	defaultTimeout = 60 * time.Second
	initialBackoff = 500 * time.Millisecond
)

// Client communicates with the inference API.
type Client struct {
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	maxAttempts int
	backoff     time.Duration
}

// Option customises a Client.
type Option func(*Client)

// WithBaseURL points the client at a different inference host.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithMaxAttempts enables retries on HTTP 429 and 503 with exponential backoff.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithBackoff sets the delay before the first retry.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) { c.backoff = d }
}

// NewClient creates a client authenticating with the given API token.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:      apiKey,
		baseURL:     DefaultBaseURL,
		httpClient:  &http.Client{Timeout: defaultTimeout},
		maxAttempts: 1,
		backoff:     initialBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatusError is returned for any non-200 response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("inference API returned HTTP %d: %s", e.Code, e.Body)
}

func retryable(err error) bool {
	se, ok := err.(*StatusError)
	return ok && (se.Code == http.StatusTooManyRequests || se.Code == http.StatusServiceUnavailable)
}

// Generate runs a text2text/text-generation model and returns the first
// generated_text. An empty string means the model produced nothing.
func (c *Client) Generate(ctx context.Context, model, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{Inputs: prompt})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	raw, err := c.post(ctx, "/models/"+modelPath(model), body)
	if err != nil {
		return "", err
	}

	var out []generation
	if err := json.Unmarshal(raw, &out); err != nil {
		// Some text-generation deployments answer with a single object.
		var single generation
		if err2 := json.Unmarshal(raw, &single); err2 != nil {
			return "", fmt.Errorf("decoding generation response: %w", err)
		}
		return single.GeneratedText, nil
	}
	if len(out) == 0 {
		return "", nil
	}
	return out[0].GeneratedText, nil
}

// FeatureExtraction embeds text. Token-level outputs are mean-pooled into a
// single vector; the result is not normalised.
func (c *Client) FeatureExtraction(ctx context.Context, model, text string) ([]float32, error) {
	body, err := json.Marshal(featureRequest{Inputs: text, Options: requestOptions{WaitForModel: true}})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	raw, err := c.post(ctx, "/pipeline/feature-extraction/"+modelPath(model), body)
	if err != nil {
		return nil, err
	}
	return decodeFeatures(raw)
}

func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	var lastErr error
	for attempt := range c.maxAttempts {
		raw, err := c.do(ctx, path, body)
		if err == nil {
			return raw, nil
		}
		if !retryable(err) {
			return nil, err
		}

		lastErr = err
		if attempt < c.maxAttempts-1 {
			backoff := time.Duration(float64(c.backoff) * math.Pow(2, float64(attempt)))
			log.WithError(err).WithFields(log.Fields{"path": path, "attempt": attempt + 1}).Debug("Inference call throttled, retrying")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	if c.maxAttempts > 1 {
		return nil, fmt.Errorf("giving up after %d attempts: %w", c.maxAttempts, lastErr)
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	return raw, nil
}

// IsRunning reports whether the inference host answers at all.
func (c *Client) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// modelPath escapes each segment of an "org/name" model id.
func modelPath(model string) string {
	parts := strings.Split(model, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
