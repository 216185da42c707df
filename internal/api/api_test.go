package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericksa/clauseguard/internal/analyzer"
	"github.com/ericksa/clauseguard/internal/audit"
	"github.com/ericksa/clauseguard/internal/config"
	"github.com/ericksa/clauseguard/pkg/mcp"
)

const testToken = "test-token"

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(_ context.Context, text, category string, _ bool) analyzer.ClauseAnalysis {
	return analyzer.ClauseAnalysis{
		ClauseType:      category,
		Risk:            analyzer.RiskScoring{RiskLevel: "medium", RiskScore: 5},
		Recommendations: analyzer.Recommendations{Action: "modify"},
		AnalyzedClause:  text,
	}
}

func (s stubAnalyzer) AnalyzeMany(ctx context.Context, inputs []analyzer.ClauseInput, use bool) []analyzer.ClauseAnalysis {
	out := make([]analyzer.ClauseAnalysis, len(inputs))
	for i, in := range inputs {
		out[i] = s.Analyze(ctx, in.Text, in.Category, use)
	}
	return out
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	a, err := audit.Open(context.Background(), "sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	cfg := config.Defaults()
	cfg.Auth.Token = testToken
	cfg.Server.CORSOrigins = []string{"http://app.local"}

	tools := mcp.NewHandler(stubAnalyzer{}, mcp.Options{Auditor: a, MaxBatch: 10})
	return New(tools, a, cfg, nil).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth_NoAuth(t *testing.T) {
	h := newTestServer(t)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, false, resp["retrieval"])
}

func TestAnalyze_RequiresToken(t *testing.T) {
	h := newTestServer(t)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader(`{"clause":"x"}`)))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAnalyze(t *testing.T) {
	h := newTestServer(t)

	w := do(t, h, http.MethodPost, "/analyze", `{"clause":"Payment within 30 days.","category":"payment"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got analyzer.ClauseAnalysis
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "payment", got.ClauseType)
	assert.Equal(t, 5, got.Risk.RiskScore)
}

func TestAnalyze_BadRequests(t *testing.T) {
	h := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"clause":`},
		{"missing clause", `{"category":"payment"}`},
		{"blank clause", `{"clause":"   "}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/analyze", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestBatchAndAnalyses(t *testing.T) {
	h := newTestServer(t)

	w := do(t, h, http.MethodPost, "/analyze/batch", `{"clauses":[{"text":"a","category":"payment"},{"text":"b","type":"liability"}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var batch mcp.BatchResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &batch))
	require.Len(t, batch.Results, 2)
	assert.Equal(t, "liability", batch.Results[1].ClauseType)
	assert.Equal(t, 2, batch.Summary.Total)
	assert.NotEmpty(t, batch.RunID)

	w = do(t, h, http.MethodGet, "/analyses?run_id="+batch.RunID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Analyses []audit.Entry `json:"analyses"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	assert.Len(t, listed.Analyses, 2)

	w = do(t, h, http.MethodGet, "/analyses?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	assert.Len(t, listed.Analyses, 1)

	w = do(t, h, http.MethodGet, "/analyses?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBatch_OverLimit(t *testing.T) {
	h := newTestServer(t)
	clauses := make([]string, 11)
	for i := range clauses {
		clauses[i] = `{"text":"c"}`
	}
	w := do(t, h, http.MethodPost, "/analyze/batch", `{"clauses":[`+strings.Join(clauses, ",")+`]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCompareAndSearch_Unavailable(t *testing.T) {
	h := newTestServer(t)
	for _, path := range []string{"/compare", "/search"} {
		w := do(t, h, http.MethodPost, path, `{"clause":"x"}`)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
		assert.Contains(t, w.Body.String(), "retrieval unavailable", path)
	}
}

func TestTools(t *testing.T) {
	h := newTestServer(t)

	w := do(t, h, http.MethodGet, "/tools", "")
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Tools []mcp.ToolDef `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	assert.Len(t, listed.Tools, 4)

	w = do(t, h, http.MethodPost, "/tools/analyze_clause", `{"clause":"x","category":"ip"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"clause_type":"ip"`)

	w = do(t, h, http.MethodPost, "/tools/unknown", `{}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/analyze", nil)
	req.Header.Set("Origin", "http://app.local")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://app.local", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestConfigure(t *testing.T) {
	h := newTestServer(t)
	w := do(t, h, http.MethodGet, "/configure/llm", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ollama")
}
