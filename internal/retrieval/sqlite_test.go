package retrieval

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericksa/clauseguard/internal/config"
)

var referenceClauses = []struct {
	id, text string
	meta     map[string]any
}{
	{"emp-term-1", "Either party may terminate this agreement with thirty days written notice.",
		map[string]any{"contract_type": "employment", "clause_type": "termination", "fairness_score": 8}},
	{"svc-pay-1", "Invoices are payable within thirty days of receipt by bank transfer.",
		map[string]any{"contract_type": "service", "clause_type": "payment", "fairness_score": 9}},
	{"nda-conf-1", "The receiving party shall keep all confidential information secret for five years.",
		map[string]any{"contract_type": "nda", "clause_type": "confidentiality", "fairness_score": "7"}},
}

func newMemoryIndex(t *testing.T) *SQLiteIndex {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	idx := NewSQLiteIndex(db, HashEmbedder{})
	require.NoError(t, idx.EnsureSchema(context.Background()))
	for _, c := range referenceClauses {
		require.NoError(t, idx.Upsert(context.Background(), c.id, c.text, c.meta))
	}
	return idx
}

func TestSQLiteIndex_QueryRanksClosestFirst(t *testing.T) {
	idx := newMemoryIndex(t)

	got, err := idx.Query(context.Background(), "Invoices are payable within thirty days", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, referenceClauses[1].text, got[0].Text)
	assert.GreaterOrEqual(t, got[0].Score, got[1].Score)
	assert.Equal(t, "payment", got[0].Metadata["clause_type"])
}

func TestSQLiteIndex_UpsertReplaces(t *testing.T) {
	idx := newMemoryIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "svc-pay-1", "Payment is due upon completion.", map[string]any{"fairness_score": 6}))
	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(referenceClauses), n)

	got, err := idx.Query(ctx, "Payment is due upon completion.", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Payment is due upon completion.", got[0].Text)
	assert.InDelta(t, 1.0, got[0].Score, 1e-6)
}

func TestSQLiteIndex_SkipsCorruptEmbeddings(t *testing.T) {
	idx := newMemoryIndex(t)
	_, err := idx.db.Exec(`INSERT INTO contract_clauses (id, text, embedding, metadata) VALUES ('bad', 'x', X'010203', '{}')`)
	require.NoError(t, err)

	got, err := idx.Query(context.Background(), "terminate", 10)
	require.NoError(t, err)
	assert.Len(t, got, len(referenceClauses))
}

func TestRetrieverOverSQLite(t *testing.T) {
	r, err := New(newMemoryIndex(t), nil)
	require.NoError(t, err)

	res, err := r.Compare(context.Background(), "The receiving party shall keep confidential information secret", "confidentiality")
	require.NoError(t, err)
	require.True(t, res.FoundAny)
	assert.Equal(t, "nda", res.BestMatch.ContractType)
	require.NotNil(t, res.BestMatch.FairnessRating)
	assert.Equal(t, 7, *res.BestMatch.FairnessRating)
}

func TestOpen_MissingFile(t *testing.T) {
	_, err := Open(config.RetrievalConfig{
		IndexPath: filepath.Join(t.TempDir(), "missing.db"),
		Embedder:  "hash",
	}, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestOpen_MissingTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec("CREATE TABLE unrelated (id INTEGER)")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open(config.RetrievalConfig{IndexPath: path, Embedder: "hash"}, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.Contains(t, err.Error(), "contract_clauses")
}

func TestOpen_NotADatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.db")
	require.NoError(t, os.WriteFile(path, []byte("definitely not sqlite, just some text padding it out"), 0o644))

	_, err := Open(config.RetrievalConfig{IndexPath: path, Embedder: "hash"}, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestOpen_Existing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	idx := NewSQLiteIndex(db, HashEmbedder{})
	require.NoError(t, idx.EnsureSchema(context.Background()))
	require.NoError(t, idx.Upsert(context.Background(), "1", referenceClauses[0].text, referenceClauses[0].meta))
	require.NoError(t, db.Close())

	r, err := Open(config.RetrievalConfig{IndexPath: path, Embedder: "hash"}, nil, nil)
	require.NoError(t, err)
	defer r.Close()

	refs, err := r.Search(context.Background(), "terminate with notice", "", 3)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "employment", refs[0].ContractType)
}

func TestHashEmbedder_Deterministic(t *testing.T) {
	a, err := HashEmbedder{}.Embed(context.Background(), "Termination without cause.")
	require.NoError(t, err)
	b, err := HashEmbedder{}.Embed(context.Background(), "termination WITHOUT cause")
	require.NoError(t, err)

	assert.Len(t, a, HashDimensions)
	assert.Equal(t, a, b)
	assert.InDelta(t, 1.0, cosineSimilarity(a, b), 1e-6)
}

func TestOllamaEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		var req ollamaEmbeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		_ = json.NewEncoder(w).Encode(ollamaEmbeddingResponse{Embedding: []float64{3, 4}})
	}))
	defer srv.Close()

	vec, err := NewOllamaEmbedder(srv.URL, "").Embed(context.Background(), "clause")
	require.NoError(t, err)
	require.Len(t, vec, 2)
	assert.InDelta(t, 0.6, vec[0], 1e-6)
	assert.InDelta(t, 0.8, vec[1], 1e-6)
}

func TestNewEmbedder(t *testing.T) {
	e, err := NewEmbedder(config.RetrievalConfig{Embedder: "ollama"})
	require.NoError(t, err)
	assert.IsType(t, &OllamaEmbedder{}, e)

	_, err = NewEmbedder(config.RetrievalConfig{Embedder: "word2vec"})
	assert.Error(t, err)
}

func TestVectorBlob(t *testing.T) {
	vec := []float32{0.25, -1, float32(math.Pi)}
	got, err := decodeVector(encodeVector(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, got)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)

	_, err = decodeVector(encodeVector([]float32{1, float32(math.NaN())}))
	assert.Error(t, err)
	_, err = decodeVector(encodeVector([]float32{float32(math.Inf(1)), 0}))
	assert.Error(t, err)
}
