package vectorstore

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/hyperjump/hinto/internal/embedding"
	"github.com/hyperjump/hinto/internal/models"
	"github.com/hyperjump/hinto/internal/storage"
	"github.com/hyperjump/hinto/internal/vector"
)

// fixedEmbedder maps known texts to fixed vectors, remote-provider style:
// stateless, no fit step. Unknown texts embed to the first axis.
type fixedEmbedder struct {
	dimensions int
	vectors    map[string][]float32
}

func (e *fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := e.vectors[text]; ok {
		return vec, nil
	}
	vec := make([]float32, e.dimensions)
	vec[0] = 1
	return vec, nil
}

func (e *fixedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (e *fixedEmbedder) Dimensions() int { return e.dimensions }

func orthonormalEmbedder(texts ...string) *fixedEmbedder {
	e := &fixedEmbedder{dimensions: len(texts), vectors: make(map[string][]float32)}
	for i, text := range texts {
		vec := make([]float32, len(texts))
		vec[i] = 1
		e.vectors[text] = vec
	}
	return e
}

func newStore(t *testing.T, dbPath string, emb embedding.Embedder) *VectorStore {
	t.Helper()
	st, err := storage.NewSQLiteStore(dbPath, "hints")
	if err != nil {
		t.Fatal(err)
	}
	idx, err := vector.NewFlatIndex(emb.Dimensions())
	if err != nil {
		t.Fatal(err)
	}
	s, err := New(context.Background(), st, emb, idx)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestVectorStore_SizeAccumulatesAcrossBatches(t *testing.T) {
	emb := &fixedEmbedder{dimensions: 4, vectors: map[string][]float32{}}
	s := newStore(t, filepath.Join(t.TempDir(), "db.sqlite"), emb)
	ctx := context.Background()

	for _, batch := range [][]string{{"a", "b"}, {"c"}, {"d", "e", "f"}} {
		if _, err := s.AddTexts(ctx, batch, nil); err != nil {
			t.Fatal(err)
		}
	}
	if s.Size() != 6 {
		t.Errorf("expected size 6, got %d", s.Size())
	}
}

func TestVectorStore_EmptySearchReturnsNoResults(t *testing.T) {
	emb := &fixedEmbedder{dimensions: 4, vectors: map[string][]float32{}}
	s := newStore(t, filepath.Join(t.TempDir(), "db.sqlite"), emb)

	results, err := s.Search(context.Background(), "anything", 3)
	if err != nil {
		t.Fatalf("empty search should not error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected 0 results, got %d", len(results))
	}
}

// An unfitted locally-fitted embedder must not block searching an empty
// store: the emptiness check comes before the query is embedded.
func TestVectorStore_EmptySearchWithUnfittedEmbedder(t *testing.T) {
	emb, _ := embedding.NewTFIDF(100)
	s := newStore(t, filepath.Join(t.TempDir(), "db.sqlite"), emb)

	results, err := s.Search(context.Background(), "anything", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected 0 results, got %d", len(results))
	}
}

func TestVectorStore_OrthonormalSearch(t *testing.T) {
	texts := []string{"alpha slide", "beta slide", "gamma slide"}
	s := newStore(t, filepath.Join(t.TempDir(), "db.sqlite"), orthonormalEmbedder(texts...))
	ctx := context.Background()

	metadatas := []map[string]interface{}{
		{"source": "a.md"}, {"source": "b.md"}, {"source": "c.md"},
	}
	if _, err := s.AddTexts(ctx, texts, metadatas); err != nil {
		t.Fatal(err)
	}

	results, err := s.Search(ctx, "beta slide", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Document.Content != "beta slide" {
		t.Errorf("top result should be the identical text, got %q", results[0].Document.Content)
	}
	if math.Abs(results[0].Similarity-1.0) > 1e-6 {
		t.Errorf("identical text should score 1.0, got %f", results[0].Similarity)
	}
	if results[0].Document.Metadata["source"] != "b.md" {
		t.Errorf("metadata not preserved: %v", results[0].Document.Metadata)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Similarity > results[i-1].Similarity {
			t.Error("results not sorted by descending similarity")
		}
		if results[i].Similarity < -1 || results[i].Similarity > 1 {
			t.Errorf("similarity out of range: %f", results[i].Similarity)
		}
	}
}

func TestVectorStore_SearchRespectsK(t *testing.T) {
	emb := &fixedEmbedder{dimensions: 4, vectors: map[string][]float32{}}
	s := newStore(t, filepath.Join(t.TempDir(), "db.sqlite"), emb)
	ctx := context.Background()

	if _, err := s.AddTexts(ctx, []string{"a", "b", "c", "d"}, nil); err != nil {
		t.Fatal(err)
	}
	results, err := s.Search(ctx, "a", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Errorf("expected 2 results, got %d", len(results))
	}
}

func TestVectorStore_BatchRollbackKeepsIndexConsistent(t *testing.T) {
	emb := &fixedEmbedder{dimensions: 4, vectors: map[string][]float32{}}
	s := newStore(t, filepath.Join(t.TempDir(), "db.sqlite"), emb)
	ctx := context.Background()

	if _, err := s.AddTexts(ctx, []string{"pre"}, nil); err != nil {
		t.Fatal(err)
	}

	texts := []string{"a", "b", "c", "d", "e"}
	metadatas := make([]map[string]interface{}, 5)
	metadatas[2] = map[string]interface{}{"bad": func() {}} // unmarshalable, fails the batch
	if _, err := s.AddTexts(ctx, texts, metadatas); err == nil {
		t.Fatal("expected batch to fail")
	}

	if s.Size() != 1 {
		t.Errorf("expected pre-batch size 1 after rollback, got %d", s.Size())
	}
	results, err := s.Search(ctx, "pre", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Errorf("index and storage diverged: %d results", len(results))
	}
}

func TestVectorStore_PersistedThenReloadedEquivalence(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "db.sqlite")
	texts := []string{"alpha slide", "beta slide", "gamma slide"}
	ctx := context.Background()

	first := newStore(t, dbPath, orthonormalEmbedder(texts...))
	if _, err := first.AddTexts(ctx, texts, nil); err != nil {
		t.Fatal(err)
	}
	wantResults, err := first.Search(ctx, "beta slide", 3)
	if err != nil {
		t.Fatal(err)
	}
	if err := first.Close(); err != nil {
		t.Fatal(err)
	}

	// Fresh construction over the same file: size, documents, and search
	// results must match what the previous session committed.
	second := newStore(t, dbPath, orthonormalEmbedder(texts...))
	if second.Size() != 3 {
		t.Fatalf("expected size 3 after reload, got %d", second.Size())
	}
	gotResults, err := second.Search(ctx, "beta slide", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(gotResults) != len(wantResults) {
		t.Fatalf("result count differs after reload: %d vs %d", len(gotResults), len(wantResults))
	}
	for i := range wantResults {
		if gotResults[i].Document.ID != wantResults[i].Document.ID {
			t.Errorf("result %d: id %d vs %d", i, gotResults[i].Document.ID, wantResults[i].Document.ID)
		}
		if math.Abs(gotResults[i].Similarity-wantResults[i].Similarity) > 1e-6 {
			t.Errorf("result %d: similarity %f vs %f", i, gotResults[i].Similarity, wantResults[i].Similarity)
		}
	}
}

func TestVectorStore_TFIDFRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "db.sqlite")
	ctx := context.Background()
	texts := []string{
		"bayesian inference with priors",
		"gradient descent optimization",
		"conditional independence in networks",
	}

	emb1, _ := embedding.NewTFIDF(100)
	first := newStore(t, dbPath, emb1)
	if _, err := first.AddTexts(ctx, texts, nil); err != nil {
		t.Fatal(err)
	}
	if !first.Fitted() {
		t.Fatal("embedder should be fitted after first batch")
	}
	want, err := first.Search(ctx, "gradient descent", 2)
	if err != nil {
		t.Fatal(err)
	}
	_ = first.Close()

	// The restored session must reload the fitted state from the database
	// and produce identical results.
	emb2, _ := embedding.NewTFIDF(100)
	second := newStore(t, dbPath, emb2)
	if !second.Fitted() {
		t.Fatal("restored embedder should be fitted")
	}
	got, err := second.Search(ctx, "gradient descent", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) {
		t.Fatalf("result count differs: %d vs %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Document.ID != want[i].Document.ID || math.Abs(got[i].Similarity-want[i].Similarity) > 1e-9 {
			t.Errorf("result %d differs after restart", i)
		}
	}
}

func TestVectorStore_RefitRegeneratesExistingVectors(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "db.sqlite")
	ctx := context.Background()
	const dim = 64

	// Session 1: three documents embedded by a stateless provider.
	pre := []string{"alpha document", "beta document", "gamma document"}
	first := newStore(t, dbPath, &fixedEmbedder{dimensions: dim, vectors: map[string][]float32{
		"alpha document": unit(dim, 0),
		"beta document":  unit(dim, 1),
		"gamma document": unit(dim, 2),
	}})
	if _, err := first.AddTexts(ctx, pre, []map[string]interface{}{
		{"n": 0}, {"n": 1}, {"n": 2},
	}); err != nil {
		t.Fatal(err)
	}
	_ = first.Close()

	st, err := storage.NewSQLiteStore(dbPath, "hints")
	if err != nil {
		t.Fatal(err)
	}
	_, before, err := st.AllVectors(ctx)
	if err != nil {
		t.Fatal(err)
	}
	_ = st.Close()

	// Session 2: an unfitted TF-IDF embedder over the same rows. The first
	// add must fit on all five texts and regenerate the three old vectors.
	emb, _ := embedding.NewTFIDF(dim)
	second := newStore(t, dbPath, emb)
	if second.Fitted() {
		t.Fatal("embedder should start unfitted")
	}
	if _, err := second.AddTexts(ctx, []string{"delta document", "epsilon document"}, nil); err != nil {
		t.Fatal(err)
	}
	if second.Size() != 5 {
		t.Errorf("expected size N+M=5, got %d", second.Size())
	}

	st2, err := storage.NewSQLiteStore(dbPath, "hints")
	if err != nil {
		t.Fatal(err)
	}
	defer st2.Close()
	ids, after, err := st2.AllVectors(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(after) != 5 {
		t.Fatalf("expected 5 persisted vectors, got %d", len(after))
	}
	for i := 0; i < len(before); i++ {
		if vectorsEqual(before[i], after[i]) {
			t.Errorf("pre-existing vector %d was not regenerated", i)
		}
	}
	// Contents, metadata, and IDs of pre-existing documents are untouched.
	for i, want := range pre {
		doc, err := st2.GetDocument(ctx, ids[i])
		if err != nil {
			t.Fatal(err)
		}
		if doc.Content != want {
			t.Errorf("document %d content changed: %q", ids[i], doc.Content)
		}
		if doc.Metadata["n"] != float64(i) {
			t.Errorf("document %d metadata changed: %v", ids[i], doc.Metadata)
		}
	}

	// The regenerated space is coherent: an old document is findable again.
	results, err := second.Search(ctx, "alpha document", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Document.Content != "alpha document" {
		t.Errorf("expected alpha document as best hit, got %+v", results)
	}
}

func TestVectorStore_IdempotentRebuild(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "db.sqlite")
	ctx := context.Background()
	texts := []string{"one two three", "four five six", "seven eight nine"}

	emb, _ := embedding.NewTFIDF(64)
	s := newStore(t, dbPath, emb)
	if _, err := s.AddTexts(ctx, texts, nil); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	var runs [2][]*models.SearchResult
	for i := range runs {
		e, _ := embedding.NewTFIDF(64)
		rebuilt := newStore(t, dbPath, e)
		results, err := rebuilt.Search(ctx, "four five", 3)
		if err != nil {
			t.Fatal(err)
		}
		runs[i] = results
		_ = rebuilt.Close()
	}
	if len(runs[0]) != len(runs[1]) {
		t.Fatalf("rebuilds disagree on result count: %d vs %d", len(runs[0]), len(runs[1]))
	}
	for i := range runs[0] {
		if runs[0][i].Document.ID != runs[1][i].Document.ID || runs[0][i].Similarity != runs[1][i].Similarity {
			t.Errorf("result %d differs between identical rebuilds", i)
		}
	}
}

func unit(dim, axis int) []float32 {
	v := make([]float32, dim)
	v[axis] = 1
	return v
}

func vectorsEqual(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestVectorStore_MetadataLengthMismatch(t *testing.T) {
	emb := &fixedEmbedder{dimensions: 4, vectors: map[string][]float32{}}
	s := newStore(t, filepath.Join(t.TempDir(), "db.sqlite"), emb)
	_, err := s.AddTexts(context.Background(), []string{"a", "b"}, []map[string]interface{}{{}})
	if err == nil {
		t.Error("expected length mismatch error")
	}
}

func TestVectorStore_ManyBatchesKeepMapping(t *testing.T) {
	emb := orthonormalEmbedder("t0", "t1", "t2", "t3", "t4", "t5", "t6", "t7")
	s := newStore(t, filepath.Join(t.TempDir(), "db.sqlite"), emb)
	ctx := context.Background()

	for i := 0; i < 8; i += 2 {
		batch := []string{fmt.Sprintf("t%d", i), fmt.Sprintf("t%d", i+1)}
		if _, err := s.AddTexts(ctx, batch, nil); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 8; i++ {
		text := fmt.Sprintf("t%d", i)
		results, err := s.Search(ctx, text, 1)
		if err != nil {
			t.Fatal(err)
		}
		if results[0].Document.Content != text {
			t.Errorf("query %q resolved to %q", text, results[0].Document.Content)
		}
	}
}
