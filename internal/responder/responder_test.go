package responder

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/seodata/internal/blobstore"
	"github.com/kalambet/seodata/internal/vectordb"
)

type fakeGenerator struct {
	reply   string
	err     error
	prompts []string
	models  []string
}

func (f *fakeGenerator) Generate(_ context.Context, model, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	f.models = append(f.models, model)
	return f.reply, f.err
}

type brokenStore struct {
	*blobstore.MemoryStore
	listErr error
	getErr  error
}

func (b brokenStore) List(ctx context.Context) ([]blobstore.Object, error) {
	if b.listErr != nil {
		return nil, b.listErr
	}
	return b.MemoryStore.List(ctx)
}

func (b brokenStore) Get(ctx context.Context, name string) ([]byte, error) {
	if b.getErr != nil {
		return nil, b.getErr
	}
	return b.MemoryStore.Get(ctx, name)
}

func seeded(t *testing.T, objects map[string]string) *blobstore.MemoryStore {
	t.Helper()
	store := blobstore.NewMemory("gsc-data")
	for name, body := range objects {
		require.NoError(t, store.Put(context.Background(), name, []byte(body)))
	}
	return store
}

func TestAskScanFirstMatchOnly(t *testing.T) {
	store := seeded(t, map[string]string{
		"report-a.json": `[{"keys":["/pricing"],"clicks":3}]`,
		"report-b.json": `[{"keys":["/blog"],"clicks":1}]`,
		"report-c.json": `[{"keys":["/PRICING/annual"],"clicks":9}]`,
	})
	gen := &fakeGenerator{reply: "Pricing gets 3 clicks."}
	r := New(store, gen, Options{Model: "google/flan-t5-small"})

	ans, err := r.Ask(context.Background(), "Pricing")
	require.NoError(t, err)

	assert.Equal(t, "Pricing gets 3 clicks.", ans.Text)
	assert.Equal(t, 2, ans.Matched)
	assert.Equal(t, []string{"report-a.json"}, ans.Sources)

	require.Len(t, gen.prompts, 1)
	assert.Equal(t,
		`Answer this question: "Pricing" using this GSC data: [{"keys":["/pricing"],"clicks":3}]`,
		gen.prompts[0])
	assert.Equal(t, []string{"google/flan-t5-small"}, gen.models)
}

func TestAskScanNoMatchStillCallsModel(t *testing.T) {
	store := seeded(t, map[string]string{"report-a.json": `[]`})
	gen := &fakeGenerator{}
	r := New(store, gen, Options{})

	ans, err := r.Ask(context.Background(), "zzz")
	require.NoError(t, err)

	assert.Equal(t, FallbackAnswer, ans.Text)
	assert.Zero(t, ans.Matched)
	assert.Empty(t, ans.Sources)
	require.Len(t, gen.prompts, 1)
	assert.Equal(t, `Answer this question: "zzz" using this GSC data: `, gen.prompts[0])
}

func TestAskScanEmptyQuestionMatchesEverything(t *testing.T) {
	store := seeded(t, map[string]string{
		"report-a.json": `[1]`,
		"report-b.json": `[2]`,
	})
	gen := &fakeGenerator{reply: "ok"}

	ans, err := New(store, gen, Options{}).Ask(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, ans.Matched)
	assert.Equal(t, []string{"report-a.json"}, ans.Sources)
}

func TestAskScanTruncatesContext(t *testing.T) {
	body := strings.Repeat("é", 5000)
	store := seeded(t, map[string]string{"report-a.json": body})
	gen := &fakeGenerator{reply: "ok"}

	_, err := New(store, gen, Options{ContextChars: 3000}).Ask(context.Background(), "é")
	require.NoError(t, err)

	want := `Answer this question: "é" using this GSC data: ` + strings.Repeat("é", 3000)
	assert.Equal(t, want, gen.prompts[0])
}

func TestAskBlankReplyFallsBack(t *testing.T) {
	store := seeded(t, nil)
	gen := &fakeGenerator{reply: "   "}

	ans, err := New(store, gen, Options{}).Ask(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "No answer found.", ans.Text)
}

func TestAskErrorsCarryStage(t *testing.T) {
	boom := errors.New("boom")
	base := seeded(t, map[string]string{"report-a.json": `[]`})

	tests := []struct {
		name  string
		store blobstore.Store
		gen   *fakeGenerator
		stage string
	}{
		{"list", brokenStore{MemoryStore: base, listErr: boom}, &fakeGenerator{}, StageList},
		{"download", brokenStore{MemoryStore: base, getErr: boom}, &fakeGenerator{}, StageDownload},
		{"generate", base, &fakeGenerator{err: boom}, StageGenerate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.store, tt.gen, Options{}).Ask(context.Background(), "q")
			require.Error(t, err)

			var rerr *Error
			require.True(t, errors.As(err, &rerr))
			assert.Equal(t, tt.stage, rerr.Stage)
			assert.ErrorIs(t, err, boom)
		})
	}
}

type fakeEmbedder struct{ err error }

func (f fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, f.err
}

type fakeVectors struct {
	hits  []vectordb.ScoredPoint
	err   error
	limit int
}

func (f *fakeVectors) CollectionExists(context.Context, string) (bool, error) { return true, nil }
func (f *fakeVectors) Upsert(context.Context, string, []vectordb.Point) error  { return nil }
func (f *fakeVectors) Search(_ context.Context, _ string, _ []float32, limit int) ([]vectordb.ScoredPoint, error) {
	f.limit = limit
	return f.hits, f.err
}
func (f *fakeVectors) Close() error { return nil }

func TestAskVectorMode(t *testing.T) {
	vec := &fakeVectors{hits: []vectordb.ScoredPoint{
		{ID: "1", Score: 0.9, Payload: map[string]any{"keys": []any{"/a"}, "clicks": int64(5), "impressions": int64(50), "ctr": 0.1, "position": 2.0}},
		{ID: "2", Score: 0.8, Payload: map[string]any{"url": "/b", "clicks": float64(1), "impressions": float64(4), "ctr": 0.25, "position": 7.0}},
	}}
	gen := &fakeGenerator{reply: "answer"}
	r := New(blobstore.NewMemory("gsc-data"), gen, Options{Mode: ModeVector, Collection: "gsc-chunks", TopK: 2}).
		WithVectors(fakeEmbedder{}, vec)

	ans, err := r.Ask(context.Background(), "which page?")
	require.NoError(t, err)

	assert.Equal(t, 2, vec.limit)
	assert.Equal(t, 2, ans.Matched)
	assert.Equal(t, []string{"/a", "/b"}, ans.Sources)
	assert.Equal(t,
		"Answer this question: \"which page?\" using this GSC data: "+
			"URL: /a, Clicks: 5, Impressions: 50, CTR: 10.00%, Position: 2.0\n"+
			"URL: /b, Clicks: 1, Impressions: 4, CTR: 25.00%, Position: 7.0",
		gen.prompts[0])
}

func TestAskVectorModeErrors(t *testing.T) {
	boom := errors.New("unavailable")

	r := New(blobstore.NewMemory("x"), &fakeGenerator{}, Options{Mode: ModeVector})
	_, err := r.Ask(context.Background(), "q")
	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, StageSearch, rerr.Stage)

	r = New(blobstore.NewMemory("x"), &fakeGenerator{}, Options{Mode: ModeVector}).
		WithVectors(fakeEmbedder{}, &fakeVectors{err: boom})
	_, err = r.Ask(context.Background(), "q")
	assert.ErrorIs(t, err, boom)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeScan, m)

	m, err = ParseMode("vector")
	require.NoError(t, err)
	assert.Equal(t, ModeVector, m)

	_, err = ParseMode("grep")
	assert.Error(t, err)
}
