// Package analyzer runs the seven-step clause review: it assembles reference
// context, prompts the model for a structured verdict and normalizes the
// answer into a ClauseAnalysis.
package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ericksa/clauseguard/internal/llm"
	"github.com/ericksa/clauseguard/internal/logger"
	"github.com/ericksa/clauseguard/internal/retrieval"
)

const (
	// DefaultConcurrency bounds AnalyzeMany when no option overrides it.
	DefaultConcurrency = 4
	// ContextClauses is the number of reference clauses put in a prompt.
	ContextClauses = 3
	// DefaultCategory is used when the caller does not name one.
	DefaultCategory = "unknown"
)

// Generator produces a structured JSON object for a prompt.
// *llm.Client satisfies it.
type Generator interface {
	GenerateStructured(ctx context.Context, prompt, systemPrompt string) (map[string]any, error)
}

// ClauseSearcher finds reference clauses similar to a query clause.
// *retrieval.Retriever satisfies it.
type ClauseSearcher interface {
	Search(ctx context.Context, queryClause, category string, topK int) ([]retrieval.ReferenceClause, error)
}

// ContextOutcome records how the reference context for a prompt was built.
type ContextOutcome int

const (
	ContextDisabled ContextOutcome = iota
	ContextNoRetriever
	ContextUnavailable
	ContextEmpty
	ContextFound
)

func (o ContextOutcome) String() string {
	switch o {
	case ContextDisabled:
		return "disabled"
	case ContextNoRetriever:
		return "no_retriever"
	case ContextUnavailable:
		return "unavailable"
	case ContextEmpty:
		return "empty"
	case ContextFound:
		return "found"
	default:
		return fmt.Sprintf("ContextOutcome(%d)", int(o))
	}
}

// Placeholder is the prompt text used when no reference clauses are shown.
func (o ContextOutcome) Placeholder() string {
	switch o {
	case ContextUnavailable:
		return "Retrieval unavailable."
	case ContextEmpty:
		return "No similar clauses found in the reference database."
	case ContextFound:
		return ""
	default:
		return "Retrieval comparison disabled."
	}
}

// ClauseInput is one clause of a batch. "type" is accepted as an alias for
// category.
type ClauseInput struct {
	Text     string `json:"text"`
	Category string `json:"category,omitempty"`
}

func (c *ClauseInput) UnmarshalJSON(data []byte) error {
	var raw struct {
		Text     string `json:"text"`
		Category string `json:"category"`
		Type     string `json:"type"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Text = raw.Text
	c.Category = raw.Category
	if c.Category == "" {
		c.Category = raw.Type
	}
	return nil
}

type Option func(*Analyzer)

// WithConcurrency sets how many clauses AnalyzeMany analyzes at once.
func WithConcurrency(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(a *Analyzer) {
		a.logger = logger.OrNop(l).Named("analyzer")
	}
}

// Analyzer is safe for concurrent use; it holds no per-clause state.
type Analyzer struct {
	gen         Generator
	searcher    ClauseSearcher
	concurrency int
	logger      *zap.Logger
}

// New builds an Analyzer. searcher may be nil when no reference index is
// configured.
func New(gen Generator, searcher ClauseSearcher, opts ...Option) *Analyzer {
	a := &Analyzer{
		gen:         gen,
		searcher:    searcher,
		concurrency: DefaultConcurrency,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// HasRetriever reports whether a reference searcher is configured.
func (a *Analyzer) HasRetriever() bool {
	return a.searcher != nil
}

// Analyze reviews one clause. It never fails: any error along the way
// yields a Fallback analysis carrying the reason.
func (a *Analyzer) Analyze(ctx context.Context, clauseText, category string, useRetrieval bool) (result ClauseAnalysis) {
	if category == "" {
		category = DefaultCategory
	}
	log := a.logger.With(zap.String("category", category))

	defer func() {
		if r := recover(); r != nil {
			log.Error("analysis panicked", zap.Any("panic", r), zap.String("stage", "failed"))
			result = Fallback(clauseText, fmt.Sprintf("internal error: %v", r))
		}
	}()

	log.Debug("analysis stage", zap.String("stage", "building-prompt"))
	contextText, outcome := a.assembleContext(ctx, log, clauseText, category, useRetrieval)
	prompt, err := renderPrompt(clauseText, category, contextText)
	if err != nil {
		return a.fail(log, clauseText, outcome, fmt.Sprintf("internal error: %v", err))
	}

	log.Debug("analysis stage", zap.String("stage", "awaiting-generation"), zap.Stringer("context", outcome))
	raw, err := a.gen.GenerateStructured(ctx, prompt, SystemPrompt)
	if err != nil {
		var malformed *llm.MalformedOutputError
		if errors.As(err, &malformed) {
			return a.fail(log, clauseText, outcome, "JSON parsing failed")
		}
		return a.fail(log, clauseText, outcome, err.Error())
	}

	log.Debug("analysis stage", zap.String("stage", "validating"))
	analysis, err := normalize(raw, category)
	if err != nil {
		return a.fail(log, clauseText, outcome, "invalid analysis: "+err.Error())
	}

	analysis.AnalyzedClause = clauseText
	analysis.RAGContextUsed = useRetrieval && a.searcher != nil
	analysis.Context = outcome

	log.Debug("analysis stage", zap.String("stage", "done"),
		zap.Int("risk_score", analysis.Risk.RiskScore),
		zap.String("action", analysis.Recommendations.Action))
	return analysis
}

func (a *Analyzer) fail(log *zap.Logger, clauseText string, outcome ContextOutcome, reason string) ClauseAnalysis {
	log.Warn("analysis failed", zap.String("stage", "failed"), zap.String("reason", reason))
	fb := Fallback(clauseText, reason)
	fb.Context = outcome
	return fb
}

func (a *Analyzer) assembleContext(ctx context.Context, log *zap.Logger, clauseText, category string, useRetrieval bool) (string, ContextOutcome) {
	if !useRetrieval {
		return ContextDisabled.Placeholder(), ContextDisabled
	}
	if a.searcher == nil {
		return ContextNoRetriever.Placeholder(), ContextNoRetriever
	}

	refs, err := a.searcher.Search(ctx, clauseText, category, ContextClauses)
	if err != nil {
		log.Warn("reference retrieval failed, continuing without context", zap.Error(err))
		return ContextUnavailable.Placeholder(), ContextUnavailable
	}
	if len(refs) == 0 {
		return ContextEmpty.Placeholder(), ContextEmpty
	}
	if len(refs) > ContextClauses {
		refs = refs[:ContextClauses]
	}

	parts := make([]string, len(refs))
	for i, ref := range refs {
		parts[i] = fmt.Sprintf("**Standard Clause %d** (Fairness: %s/10):\n%s",
			i+1, retrieval.FormatRating(ref.FairnessRating), ref.Text)
	}
	return strings.Join(parts, "\n\n"), ContextFound
}

// AnalyzeMany analyzes every input with bounded concurrency. Results are in
// input order and a failure on one clause never affects another. Clauses not
// yet started when ctx is done get a Fallback carrying the context error.
func (a *Analyzer) AnalyzeMany(ctx context.Context, inputs []ClauseInput, useRetrieval bool) []ClauseAnalysis {
	results := make([]ClauseAnalysis, len(inputs))

	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			results[i] = Fallback(in.Text, err.Error())
			continue
		}
		g.Go(func() error {
			results[i] = a.Analyze(ctx, in.Text, in.Category, useRetrieval)
			return nil
		})
	}
	_ = g.Wait()

	a.logger.Info("batch analyzed", zap.Int("clauses", len(inputs)))
	return results
}
