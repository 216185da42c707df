package app

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericksa/clauseguard/internal/config"
	"github.com/ericksa/clauseguard/internal/retrieval"
	"github.com/ericksa/clauseguard/pkg/mcp"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.Defaults()
	dir := t.TempDir()
	cfg.Retrieval.Embedder = "hash"
	cfg.Retrieval.IndexPath = filepath.Join(dir, "clause_index.db")
	cfg.Audit.DSN = filepath.Join(dir, "journal", "analyses.db")
	return cfg
}

func writeIndex(t *testing.T, path string) {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	idx := retrieval.NewSQLiteIndex(db, retrieval.HashEmbedder{})
	require.NoError(t, idx.EnsureSchema(ctx))
	require.NoError(t, idx.Upsert(ctx, "nda-1", "Either party may terminate on 30 days notice.", map[string]any{
		"contract_type":  "NDA",
		"clause_type":    "termination",
		"fairness_score": 8,
	}))
}

func TestBuild_MissingIndexDegrades(t *testing.T) {
	cfg := testConfig(t)

	a, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Retriever)
	assert.False(t, a.Analyzer.HasRetriever())
	assert.False(t, a.Tools.HasComparer())
	assert.NotNil(t, a.Auditor)
	assert.FileExists(t, cfg.Audit.DSN)
}

func TestBuild_WithIndex(t *testing.T) {
	cfg := testConfig(t)
	writeIndex(t, cfg.Retrieval.IndexPath)

	a, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Retriever)
	assert.True(t, a.Analyzer.HasRetriever())
	assert.True(t, a.Tools.HasComparer())

	res, err := a.Retriever.Compare(context.Background(), "Either party may terminate on 30 days notice.", "termination")
	require.NoError(t, err)
	assert.True(t, res.FoundAny)
	assert.Equal(t, 8.0, res.AverageFairness)
}

func TestBuild_SearchUsesConfiguredTopK(t *testing.T) {
	cfg := testConfig(t)
	cfg.Retrieval.TopK = 2
	writeIndex(t, cfg.Retrieval.IndexPath)

	db, err := sql.Open("sqlite3", cfg.Retrieval.IndexPath)
	require.NoError(t, err)
	idx := retrieval.NewSQLiteIndex(db, retrieval.HashEmbedder{})
	for _, id := range []string{"msa-1", "msa-2", "msa-3"} {
		require.NoError(t, idx.Upsert(context.Background(), id, "Invoices are payable within thirty days, reference "+id, nil))
	}
	require.NoError(t, idx.Close())

	a, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	refs, err := a.Tools.SearchClauses(context.Background(), mcp.SearchClausesInput{Clause: "Invoices are payable within thirty days."})
	require.NoError(t, err)
	assert.Len(t, refs, 2)
}

func TestBuild_Disabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Retrieval.Enabled = false
	cfg.Audit.Enabled = false

	a, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Retriever)
	assert.Nil(t, a.Auditor)
}

func TestBuild_UnknownProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.Provider = "carrier-pigeon"

	_, err := Build(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm client")
}
