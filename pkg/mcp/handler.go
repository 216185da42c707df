package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/ericksa/clauseguard/internal/analyzer"
	"github.com/ericksa/clauseguard/internal/archive"
	"github.com/ericksa/clauseguard/internal/audit"
	"github.com/ericksa/clauseguard/internal/logger"
	"github.com/ericksa/clauseguard/internal/retrieval"
)

// ClauseAnalyzer is satisfied by *analyzer.Analyzer.
type ClauseAnalyzer interface {
	Analyze(ctx context.Context, clauseText, category string, useRetrieval bool) analyzer.ClauseAnalysis
	AnalyzeMany(ctx context.Context, inputs []analyzer.ClauseInput, useRetrieval bool) []analyzer.ClauseAnalysis
}

// Comparer is satisfied by *retrieval.Retriever.
type Comparer interface {
	Search(ctx context.Context, queryClause, category string, topK int) ([]retrieval.ReferenceClause, error)
	Compare(ctx context.Context, userClause, category string) (retrieval.ComparisonResult, error)
}

type ToolDef struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Options wires the optional collaborators of a Handler.
type Options struct {
	// Comparer is nil when no reference index is available.
	Comparer Comparer
	Auditor  *audit.Auditor
	Archive  archive.Archiver
	Logger   *zap.Logger

	// UseRetrieval is the default when a request does not say.
	UseRetrieval bool

	// MaxBatch caps analyze_clauses; zero means no cap.
	MaxBatch int

	// TopK is the search_clauses result count when a request does not set one.
	TopK int
}

type toolFunc func(ctx context.Context, input json.RawMessage) ([]byte, error)

// Handler exposes clause analysis as MCP tools and as plain Go calls.
type Handler struct {
	analyzer     ClauseAnalyzer
	comparer     Comparer
	audit        *audit.Auditor
	archive      archive.Archiver
	logger       *zap.Logger
	useRetrieval bool
	maxBatch     int
	topK         int

	server *mcp.Server
	http   http.Handler
	tools  map[string]toolFunc
	defs   []ToolDef
}

func NewHandler(a ClauseAnalyzer, opts Options) *Handler {
	h := &Handler{
		analyzer:     a,
		comparer:     opts.Comparer,
		audit:        opts.Auditor,
		archive:      opts.Archive,
		logger:       logger.OrNop(opts.Logger).Named("mcp"),
		useRetrieval: opts.UseRetrieval,
		maxBatch:     opts.MaxBatch,
		topK:         opts.TopK,
		tools:        make(map[string]toolFunc),
	}
	if h.archive == nil {
		h.archive = archive.Nop{}
	}
	h.initMCPServer()
	return h
}

// AnalyzeClauseInput is the input of analyze_clause.
type AnalyzeClauseInput struct {
	Clause       string `json:"clause" jsonschema:"the contract clause text to analyze"`
	Category     string `json:"category,omitempty" jsonschema:"clause category such as termination, payment or liability"`
	UseRetrieval *bool  `json:"use_retrieval,omitempty" jsonschema:"compare against standard reference clauses"`
}

// AnalyzeClausesInput is the input of analyze_clauses.
type AnalyzeClausesInput struct {
	Clauses      []analyzer.ClauseInput `json:"clauses" jsonschema:"the clauses to analyze, each with text and optional category"`
	UseRetrieval *bool                  `json:"use_retrieval,omitempty" jsonschema:"compare against standard reference clauses"`
}

// CompareClauseInput is the input of compare_clause.
type CompareClauseInput struct {
	Clause   string `json:"clause" jsonschema:"the contract clause text to compare"`
	Category string `json:"category,omitempty" jsonschema:"clause category used as a search hint"`
}

// SearchClausesInput is the input of search_clauses.
type SearchClausesInput struct {
	Clause   string `json:"clause" jsonschema:"the contract clause text to search for"`
	Category string `json:"category,omitempty" jsonschema:"clause category used as a search hint"`
	TopK     int    `json:"top_k,omitempty" jsonschema:"maximum number of reference clauses to return"`
}

// BatchResult is the output of analyze_clauses.
type BatchResult struct {
	RunID      string                    `json:"run_id"`
	Results    []analyzer.ClauseAnalysis `json:"results"`
	Summary    analyzer.BatchSummary     `json:"summary"`
	ArchiveKey string                    `json:"archive_key,omitempty"`
}

var (
	// ErrInvalidInput marks requests rejected before any analysis ran.
	ErrInvalidInput = errors.New("invalid input")
	// ErrToolNotFound is returned by ExecuteTool for unknown tool names.
	ErrToolNotFound = errors.New("tool not found")
)

func (h *Handler) initMCPServer() {
	h.server = mcp.NewServer(&mcp.Implementation{
		Name:    "clauseguard",
		Version: "1.0.0",
	}, nil)

	addTool(h, "analyze_clause",
		"Analyze one contract clause with seven-step reasoning and return a risk score, justification and negotiation guidance",
		func(ctx context.Context, in AnalyzeClauseInput) (any, error) { return h.AnalyzeClause(ctx, in) })
	addTool(h, "analyze_clauses",
		"Analyze several contract clauses concurrently; results keep input order",
		func(ctx context.Context, in AnalyzeClausesInput) (any, error) { return h.AnalyzeClauses(ctx, in) })
	addTool(h, "compare_clause",
		"Compare a clause with the closest standard reference clauses and report their average fairness",
		func(ctx context.Context, in CompareClauseInput) (any, error) { return h.CompareClause(ctx, in) })
	addTool(h, "search_clauses",
		"Find the standard reference clauses most similar to a clause",
		func(ctx context.Context, in SearchClausesInput) (any, error) { return h.SearchClauses(ctx, in) })

	sort.Slice(h.defs, func(i, j int) bool { return h.defs[i].Name < h.defs[j].Name })

	server := h.server
	h.http = mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)
}

// addTool registers fn both as an MCP tool and in the ExecuteTool table.
func addTool[In any](h *Handler, name, description string, fn func(context.Context, In) (any, error)) {
	h.defs = append(h.defs, ToolDef{Name: name, Description: description})

	h.tools[name] = func(ctx context.Context, input json.RawMessage) ([]byte, error) {
		var in In
		if len(input) > 0 {
			if err := json.Unmarshal(input, &in); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrInvalidInput, name, err)
			}
		}
		out, err := fn(ctx, in)
		if err != nil {
			return nil, err
		}
		return json.Marshal(out)
	}

	mcp.AddTool(h.server, &mcp.Tool{
		Name:        name,
		Description: description,
	}, func(ctx context.Context, req *mcp.CallToolRequest, in In) (*mcp.CallToolResult, any, error) {
		input, _ := json.Marshal(in)
		result, err := h.ExecuteTool(ctx, name, input)
		if err != nil {
			return &mcp.CallToolResult{
				IsError: true,
				Content: []mcp.Content{
					&mcp.TextContent{Text: err.Error()},
				},
			}, nil, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: string(result)},
			},
		}, nil, nil
	})
}

// Server returns the underlying MCP server.
func (h *Handler) Server() *mcp.Server {
	return h.server
}

// Tools lists the registered tools by name.
func (h *Handler) Tools() []ToolDef {
	return h.defs
}

// HasComparer reports whether reference comparison is available.
func (h *Handler) HasComparer() bool {
	return h.comparer != nil
}

// ServeHTTP serves the MCP streamable HTTP transport.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.http.ServeHTTP(w, r)
}

// ExecuteTool runs a tool by name with JSON arguments and journals the call.
func (h *Handler) ExecuteTool(ctx context.Context, toolName string, args json.RawMessage) ([]byte, error) {
	fn, ok := h.tools[toolName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, toolName)
	}

	start := time.Now()
	result, err := fn(ctx, args)
	if jerr := h.audit.LogToolCall(ctx, toolName, args, result, err); jerr != nil {
		h.logger.Warn("failed to journal tool call", zap.String("tool", toolName), zap.Error(jerr))
	}

	fields := []zap.Field{zap.String("tool", toolName), zap.Duration("duration", time.Since(start))}
	if err != nil {
		h.logger.Warn("tool call failed", append(fields, zap.Error(err))...)
		return nil, err
	}
	h.logger.Info("tool call", fields...)
	return result, nil
}

func (h *Handler) retrievalFlag(v *bool) bool {
	if v == nil {
		return h.useRetrieval
	}
	return *v
}

// AnalyzeClause analyzes one clause and journals the result under a new
// run ID.
func (h *Handler) AnalyzeClause(ctx context.Context, in AnalyzeClauseInput) (analyzer.ClauseAnalysis, error) {
	if strings.TrimSpace(in.Clause) == "" {
		return analyzer.ClauseAnalysis{}, fmt.Errorf("%w: clause text is required", ErrInvalidInput)
	}

	result := h.analyzer.Analyze(ctx, in.Clause, in.Category, h.retrievalFlag(in.UseRetrieval))
	if err := h.audit.Record(ctx, audit.NewRunID(), result); err != nil {
		h.logger.Warn("failed to journal analysis", zap.Error(err))
	}
	return result, nil
}

// AnalyzeClauses analyzes a batch, journals every result under one run ID
// and archives the report.
func (h *Handler) AnalyzeClauses(ctx context.Context, in AnalyzeClausesInput) (BatchResult, error) {
	if len(in.Clauses) == 0 {
		return BatchResult{}, fmt.Errorf("%w: at least one clause is required", ErrInvalidInput)
	}
	if h.maxBatch > 0 && len(in.Clauses) > h.maxBatch {
		return BatchResult{}, fmt.Errorf("%w: %d clauses exceeds the batch limit of %d", ErrInvalidInput, len(in.Clauses), h.maxBatch)
	}
	for i, c := range in.Clauses {
		if strings.TrimSpace(c.Text) == "" {
			return BatchResult{}, fmt.Errorf("%w: clause %d has no text", ErrInvalidInput, i)
		}
	}

	runID := audit.NewRunID()
	results := h.analyzer.AnalyzeMany(ctx, in.Clauses, h.retrievalFlag(in.UseRetrieval))
	out := BatchResult{
		RunID:   runID,
		Results: results,
		Summary: analyzer.Summarize(results),
	}

	if err := h.audit.RecordAll(ctx, runID, results); err != nil {
		h.logger.Warn("failed to journal batch", zap.String("run_id", runID), zap.Error(err))
	}

	key, err := h.archive.Store(ctx, archive.Report{
		RunID:     runID,
		CreatedAt: time.Now().UTC(),
		Summary:   out.Summary,
		Results:   results,
	})
	if err != nil {
		h.logger.Warn("failed to archive batch report", zap.String("run_id", runID), zap.Error(err))
	}
	out.ArchiveKey = key

	h.logger.Info("batch complete",
		zap.String("run_id", runID),
		zap.Int("clauses", out.Summary.Total),
		zap.Int("failed", out.Summary.Failed))
	return out, nil
}

// CompareClause compares a clause against the reference index.
func (h *Handler) CompareClause(ctx context.Context, in CompareClauseInput) (retrieval.ComparisonResult, error) {
	if strings.TrimSpace(in.Clause) == "" {
		return retrieval.ComparisonResult{}, fmt.Errorf("%w: clause text is required", ErrInvalidInput)
	}
	if h.comparer == nil {
		return retrieval.ComparisonResult{}, &retrieval.UnavailableError{Reason: "no reference index configured"}
	}
	return h.comparer.Compare(ctx, in.Clause, in.Category)
}

// SearchClauses returns the reference clauses closest to a clause.
func (h *Handler) SearchClauses(ctx context.Context, in SearchClausesInput) ([]retrieval.ReferenceClause, error) {
	if strings.TrimSpace(in.Clause) == "" {
		return nil, fmt.Errorf("%w: clause text is required", ErrInvalidInput)
	}
	if h.comparer == nil {
		return nil, &retrieval.UnavailableError{Reason: "no reference index configured"}
	}
	topK := in.TopK
	if topK <= 0 {
		topK = h.topK
	}
	return h.comparer.Search(ctx, in.Clause, in.Category, topK)
}
