package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/seodata/internal/blobstore"
	"github.com/kalambet/seodata/internal/responder"
	"github.com/kalambet/seodata/internal/storage"
	"github.com/kalambet/seodata/internal/uploader"
)

const testToken = "test-token-12345"

type mockAsker struct {
	answer    responder.Answer
	err       error
	questions []string
}

func (m *mockAsker) Ask(_ context.Context, q string) (responder.Answer, error) {
	m.questions = append(m.questions, q)
	return m.answer, m.err
}

type mockUploadRunner struct {
	result uploader.Result
	err    error
	calls  []uploader.Request
}

func (m *mockUploadRunner) Upload(_ context.Context, req uploader.Request) (uploader.Result, error) {
	m.calls = append(m.calls, req)
	return m.result, m.err
}

type apiFixture struct {
	handler http.Handler
	store   *storage.Store
	reports *blobstore.MemoryStore
	asker   *mockAsker
	up      *mockUploadRunner
}

func setupHandler(t *testing.T, token string) *apiFixture {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	f := &apiFixture{
		store:   store,
		reports: blobstore.NewMemory("gsc-data"),
		asker:   &mockAsker{answer: responder.Answer{Text: "42 clicks", Sources: []string{"report-a.json"}, Matched: 1}},
		up:      &mockUploadRunner{result: uploader.Result{Object: "reportTest.json", Collection: "gsc-chunks", Rows: 3, Embedded: 3, Uploaded: 3, Batches: 1}},
	}
	f.handler = NewHandler(Deps{
		Responder: f.asker,
		Uploader:  f.up,
		Reports:   f.reports,
		Runs:      store,
		Jobs:      store,
		Dashboard: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("dashboard")) }),
		Token:     token,
	})
	return f
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var body struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body is not JSON: %v; body = %s", err, rr.Body.String())
	}
	return body.Error.Message, body.Error.Type
}

func TestHealth_NoAuth(t *testing.T) {
	f := setupHandler(t, testToken)

	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if rr.Body.String() != `{"status":"ok"}` {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestDashboard_Mounted(t *testing.T) {
	f := setupHandler(t, testToken)

	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	if rr.Code != http.StatusOK || rr.Body.String() != "dashboard" {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
}

func TestAuth_Required(t *testing.T) {
	f := setupHandler(t, testToken)

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/query"},
		{http.MethodPost, "/upload"},
		{http.MethodGet, "/reports"},
		{http.MethodGet, "/runs"},
		{http.MethodGet, "/jobs/x"},
	} {
		rr := httptest.NewRecorder()
		f.handler.ServeHTTP(rr, authReq(tc.method, tc.path, "", "wrong"))
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: status = %d, want 401", tc.method, tc.path, rr.Code)
			continue
		}
		if _, typ := decodeError(t, rr); typ != "authentication_error" {
			t.Errorf("%s %s: error type = %q", tc.method, tc.path, typ)
		}
	}
}

func TestAuth_ChallengeAndSchemeCase(t *testing.T) {
	f := setupHandler(t, testToken)

	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/reports", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if got := rr.Header().Get("WWW-Authenticate"); got != `Bearer realm="seodata"` {
		t.Errorf("WWW-Authenticate = %q", got)
	}

	req := httptest.NewRequest(http.MethodGet, "/reports", nil)
	req.Header.Set("Authorization", "bearer "+testToken)
	rr = httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("lowercase scheme: status = %d, want 200", rr.Code)
	}
}

func TestAuth_DisabledWithoutToken(t *testing.T) {
	f := setupHandler(t, "")

	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, authReq(http.MethodGet, "/reports", "", ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestQuery_ReturnsAnswer(t *testing.T) {
	f := setupHandler(t, testToken)

	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, authReq(http.MethodPost, "/query", `{"question":"top page?"}`, testToken))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var got map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["answer"] != "42 clicks" {
		t.Errorf("answer = %v", got["answer"])
	}
	if got["matched"] != float64(1) {
		t.Errorf("matched = %v", got["matched"])
	}
	if len(f.asker.questions) != 1 || f.asker.questions[0] != "top page?" {
		t.Errorf("questions = %v", f.asker.questions)
	}
}

func TestQuery_EmptyBodyAsksEmptyQuestion(t *testing.T) {
	f := setupHandler(t, testToken)

	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, authReq(http.MethodPost, "/query", "", testToken))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	if len(f.asker.questions) != 1 || f.asker.questions[0] != "" {
		t.Errorf("questions = %q", f.asker.questions)
	}
}

func TestQuery_InvalidJSON(t *testing.T) {
	f := setupHandler(t, testToken)

	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, authReq(http.MethodPost, "/query", `{"question":`, testToken))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	if _, typ := decodeError(t, rr); typ != "invalid_request_error" {
		t.Errorf("type = %q", typ)
	}
}

func TestQuery_UpstreamFailure(t *testing.T) {
	f := setupHandler(t, testToken)
	f.asker.err = &responder.Error{Stage: responder.StageGenerate, Err: errors.New("503 model loading")}

	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, authReq(http.MethodPost, "/query", `{"question":"q"}`, testToken))

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rr.Code)
	}
	msg, _ := decodeError(t, rr)
	if !strings.Contains(msg, "503 model loading") {
		t.Errorf("message = %q", msg)
	}
}

func TestUpload_Sync(t *testing.T) {
	f := setupHandler(t, testToken)

	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, authReq(http.MethodPost, "/upload", "", testToken))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var got map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["message"] != "Uploaded 3 embeddings to collection 'gsc-chunks'." {
		t.Errorf("message = %v", got["message"])
	}
	if got["uploaded"] != float64(3) || got["batches"] != float64(1) {
		t.Errorf("result fields = %v", got)
	}
	if len(f.up.calls) != 1 || f.up.calls[0].Object != "" {
		t.Errorf("upload calls = %+v, want one with the configured object", f.up.calls)
	}
}

func TestUpload_FailureStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{"missing object", blobstore.ErrNotFound, http.StatusNotFound, "Upload failed: object not found"},
		{"no embeddings", uploader.ErrNoEmbeddings, http.StatusInternalServerError, "Upload failed: no valid embeddings generated, aborting upload"},
		{"batch", &uploader.BatchError{Batch: 2, Uploaded: 100, Detail: "Wrong input"}, http.StatusBadGateway, "Upload failed: Wrong input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupHandler(t, testToken)
			f.up.err = tt.err

			rr := httptest.NewRecorder()
			f.handler.ServeHTTP(rr, authReq(http.MethodPost, "/upload", "{}", testToken))

			if rr.Code != tt.code {
				t.Fatalf("status = %d, want %d", rr.Code, tt.code)
			}
			if msg, _ := decodeError(t, rr); msg != tt.msg {
				t.Errorf("message = %q, want %q", msg, tt.msg)
			}
		})
	}
}

func TestUpload_AsyncQueuesJob(t *testing.T) {
	f := setupHandler(t, testToken)

	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, authReq(http.MethodPost, "/upload", `{"async":true}`, testToken))

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var got map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["job_id"] == "" {
		t.Fatal("job_id missing")
	}
	if len(f.up.calls) != 0 {
		t.Error("async upload ran synchronously")
	}

	rr = httptest.NewRecorder()
	f.handler.ServeHTTP(rr, authReq(http.MethodGet, "/jobs/"+got["job_id"], "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("GET job status = %d", rr.Code)
	}
	var job storage.Job
	if err := json.Unmarshal(rr.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if job.Status != "pending" || job.Type != "vector_upload" || job.MaxAttempts != 1 {
		t.Errorf("job = %+v", job)
	}
}

func TestGetJob_NotFound(t *testing.T) {
	f := setupHandler(t, testToken)

	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, authReq(http.MethodGet, "/jobs/missing", "", testToken))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestReports_List(t *testing.T) {
	f := setupHandler(t, testToken)
	ctx := context.Background()
	f.reports.Put(ctx, "report-b.json", []byte("[]"))
	f.reports.Put(ctx, "report-a.json", []byte("[1]"))

	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, authReq(http.MethodGet, "/reports", "", testToken))

	var objects []blobstore.Object
	if err := json.Unmarshal(rr.Body.Bytes(), &objects); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(objects) != 2 || objects[0].Name != "report-a.json" || objects[0].Size != 3 {
		t.Errorf("objects = %+v", objects)
	}
}

func TestReports_EmptyIsArray(t *testing.T) {
	f := setupHandler(t, testToken)

	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, authReq(http.MethodGet, "/reports", "", testToken))
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("body = %s, want []", rr.Body.String())
	}
}

func TestRuns_ListAndFilter(t *testing.T) {
	f := setupHandler(t, testToken)
	ctx := context.Background()
	now := time.Now().UTC()
	for i, kind := range []string{storage.KindPull, storage.KindUpload, storage.KindPull} {
		err := f.store.RecordRun(ctx, storage.Run{
			ID:         "run-" + string(rune('a'+i)),
			Kind:       kind,
			StartedAt:  now.Add(time.Duration(i) * time.Minute),
			FinishedAt: now.Add(time.Duration(i)*time.Minute + time.Second),
			Status:     storage.StatusOK,
		})
		if err != nil {
			t.Fatalf("RecordRun: %v", err)
		}
	}

	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, authReq(http.MethodGet, "/runs?kind=pull&limit=1", "", testToken))
	var runs []storage.Run
	if err := json.Unmarshal(rr.Body.Bytes(), &runs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "run-c" {
		t.Errorf("runs = %+v, want newest pull run", runs)
	}

	rr = httptest.NewRecorder()
	f.handler.ServeHTTP(rr, authReq(http.MethodGet, "/runs?kind=delete", "", testToken))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad kind status = %d, want 400", rr.Code)
	}
}
