package audit

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericksa/clauseguard/internal/analyzer"
)

func newTestAuditor(t *testing.T) *Auditor {
	t.Helper()
	a, err := Open(context.Background(), "sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tick := 0
	a.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return a
}

func TestOpen_RejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "x")
	assert.Error(t, err)
}

func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "analyses.db")
	a, err := Open(context.Background(), "sqlite3", path)
	require.NoError(t, err)
	require.NoError(t, a.Close())
	assert.FileExists(t, path)
}

func TestRecordAndRecent(t *testing.T) {
	a := newTestAuditor(t)
	ctx := context.Background()
	runID := NewRunID()

	ok := analyzer.ClauseAnalysis{
		ClauseType:      "payment",
		Risk:            analyzer.RiskScoring{RiskLevel: "low", RiskScore: 2},
		Recommendations: analyzer.Recommendations{Action: "accept"},
		AnalyzedClause:  "Pay in 30 days.",
	}
	failed := analyzer.Fallback("Broken clause.", "JSON parsing failed")

	require.NoError(t, a.RecordAll(ctx, runID, []analyzer.ClauseAnalysis{ok, failed}))

	entries, err := a.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "error", entries[0].ClauseType)
	assert.True(t, entries[0].Failed)
	assert.Equal(t, "manual_review", entries[0].Action)
	assert.Equal(t, "payment", entries[1].ClauseType)
	assert.False(t, entries[1].Failed)
	assert.Equal(t, 2, entries[1].RiskScore)
	assert.True(t, entries[0].CreatedAt.After(entries[1].CreatedAt))

	var payload analyzer.ClauseAnalysis
	require.NoError(t, json.Unmarshal(entries[0].Payload, &payload))
	assert.True(t, payload.Failed())
	assert.Equal(t, "JSON parsing failed", payload.Error)

	limited, err := a.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestByRun(t *testing.T) {
	a := newTestAuditor(t)
	ctx := context.Background()

	first, second := NewRunID(), NewRunID()
	require.NotEqual(t, first, second)

	require.NoError(t, a.Record(ctx, first, analyzer.Fallback("a", "x")))
	require.NoError(t, a.Record(ctx, second, analyzer.Fallback("b", "y")))
	require.NoError(t, a.Record(ctx, first, analyzer.Fallback("c", "z")))

	entries, err := a.ByRun(ctx, first)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, first, e.RunID)
	}
}

func TestToolCalls(t *testing.T) {
	a := newTestAuditor(t)
	ctx := context.Background()

	require.NoError(t, a.LogToolCall(ctx, "analyze_clause", json.RawMessage(`{"clause":"x"}`), []byte(`{"ok":true}`), nil))
	require.NoError(t, a.LogToolCall(ctx, "compare_clause", nil, nil, errors.New("retrieval unavailable")))

	calls, err := a.ToolCalls(ctx, 0)
	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.Equal(t, "compare_clause", calls[0].Tool)
	assert.Equal(t, "retrieval unavailable", calls[0].Error)
	assert.Equal(t, `{"clause":"x"}`, calls[1].Input)
}

func TestNilAuditorIsNoop(t *testing.T) {
	var a *Auditor
	ctx := context.Background()

	assert.NoError(t, a.Record(ctx, "run", analyzer.Fallback("a", "b")))
	assert.NoError(t, a.LogToolCall(ctx, "t", nil, nil, nil))
	entries, err := a.Recent(ctx, 5)
	assert.NoError(t, err)
	assert.Empty(t, entries)
	assert.NoError(t, a.Close())
}

func TestRebind(t *testing.T) {
	pg := &Auditor{driver: "postgres"}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?"))

	lite := &Auditor{driver: "sqlite3"}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}
