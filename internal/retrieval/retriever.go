// Package retrieval ranks standard reference clauses against a query clause
// and summarizes how fair the closest matches are.
package retrieval

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/ericksa/clauseguard/internal/logger"
)

const (
	// DefaultTopK is used when a caller asks for zero or fewer results.
	DefaultTopK = 3
	// CompareTopK is the number of candidates Compare considers.
	CompareTopK = 5
	// NeutralFairness is reported as the average when no candidate carries a
	// usable fairness rating.
	NeutralFairness = 5.0
)

// Candidate is one raw hit from an Index. Metadata keys are contract_type,
// clause_type and fairness_score.
type Candidate struct {
	Text     string
	Score    float64
	Metadata map[string]any
}

// Index returns up to topK candidates for text.
type Index interface {
	Query(ctx context.Context, text string, topK int) ([]Candidate, error)
}

// ReferenceClause is a standard clause with its similarity to the query.
type ReferenceClause struct {
	Text            string  `json:"text"`
	ContractType    string  `json:"contract_type"`
	ClauseCategory  string  `json:"clause_category"`
	FairnessRating  *int    `json:"fairness_rating"`
	SimilarityScore float64 `json:"similarity_score"`
}

// ComparisonResult summarizes the best reference matches for a clause.
// RatedCount is the number of candidates whose fairness rating contributed
// to AverageFairness; zero means the average is NeutralFairness.
type ComparisonResult struct {
	FoundAny        bool              `json:"found_any"`
	Candidates      []ReferenceClause `json:"candidates"`
	AverageFairness float64           `json:"average_fairness"`
	RatedCount      int               `json:"rated_count"`
	BestMatch       *ReferenceClause  `json:"best_match,omitempty"`
	Summary         string            `json:"summary"`
}

type Retriever struct {
	index  Index
	closer io.Closer
	logger *zap.Logger
}

func New(idx Index, l *zap.Logger) (*Retriever, error) {
	if idx == nil {
		return nil, &UnavailableError{Reason: "no index configured"}
	}
	r := &Retriever{
		index:  idx,
		logger: logger.OrNop(l).Named("retrieval"),
	}
	if c, ok := idx.(io.Closer); ok {
		r.closer = c
	}
	return r, nil
}

// Close releases the underlying index when it holds resources.
func (r *Retriever) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// Search returns up to topK reference clauses ordered by descending
// similarity. A non-empty category is prepended to the query as a hint; it
// does not filter results.
func (r *Retriever) Search(ctx context.Context, queryClause, category string, topK int) ([]ReferenceClause, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	query := queryClause
	if category != "" {
		query = fmt.Sprintf("Clause Type: %s\n%s", category, queryClause)
	}

	candidates, err := r.index.Query(ctx, query, topK)
	if err != nil {
		return nil, fmt.Errorf("query reference index: %w", err)
	}

	refs := make([]ReferenceClause, 0, len(candidates))
	for _, c := range candidates {
		refs = append(refs, toReference(c))
	}
	// Descending; NaN scores sort last.
	slices.SortStableFunc(refs, func(a, b ReferenceClause) int {
		return cmp.Compare(b.SimilarityScore, a.SimilarityScore)
	})
	if len(refs) > topK {
		refs = refs[:topK]
	}

	r.logger.Debug("reference search",
		zap.String("category", category),
		zap.Int("top_k", topK),
		zap.Int("results", len(refs)))
	return refs, nil
}

// Compare searches the CompareTopK closest references and aggregates their
// fairness ratings.
func (r *Retriever) Compare(ctx context.Context, userClause, category string) (ComparisonResult, error) {
	refs, err := r.Search(ctx, userClause, category, CompareTopK)
	if err != nil {
		return ComparisonResult{}, err
	}
	if len(refs) == 0 {
		return ComparisonResult{
			FoundAny: false,
			Summary:  "No similar clauses found in the database.",
		}, nil
	}

	var sum float64
	rated := 0
	for _, ref := range refs {
		if ref.FairnessRating != nil {
			sum += float64(*ref.FairnessRating)
			rated++
		}
	}
	avg := NeutralFairness
	if rated > 0 {
		avg = sum / float64(rated)
	}

	result := ComparisonResult{
		FoundAny:        true,
		Candidates:      refs,
		AverageFairness: avg,
		RatedCount:      rated,
	}
	result.BestMatch = &result.Candidates[0]
	result.Summary = summarize(len(refs), result.BestMatch)
	return result, nil
}

func summarize(found int, best *ReferenceClause) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d similar clauses in the standard contracts.\n\n", found)
	b.WriteString("Best Match:\n")
	fmt.Fprintf(&b, "- Contract Type: %s\n", orUnknown(best.ContractType))
	fmt.Fprintf(&b, "- Clause Type: %s\n", orUnknown(best.ClauseCategory))
	fmt.Fprintf(&b, "- Fairness Score: %s/10\n", FormatRating(best.FairnessRating))
	fmt.Fprintf(&b, "- Similarity Score: %.4f\n\n", best.SimilarityScore)
	fmt.Fprintf(&b, "This clause appears in standard %s agreements.", orUnknown(best.ContractType))
	return b.String()
}

// FormatRating renders a fairness rating, or N/A when it is absent.
func FormatRating(rating *int) string {
	if rating == nil {
		return "N/A"
	}
	return cast.ToString(*rating)
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func toReference(c Candidate) ReferenceClause {
	return ReferenceClause{
		Text:            c.Text,
		ContractType:    cast.ToString(c.Metadata["contract_type"]),
		ClauseCategory:  cast.ToString(c.Metadata["clause_type"]),
		FairnessRating:  fairness(c.Metadata["fairness_score"]),
		SimilarityScore: c.Score,
	}
}

// fairness coerces a metadata rating. Anything that is not a number in
// 1..10 counts as absent.
func fairness(v any) *int {
	if v == nil {
		return nil
	}
	if _, ok := v.(bool); ok {
		return nil
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return nil
	}
	n := int(f)
	if float64(n) != f || n < 1 || n > 10 {
		return nil
	}
	return &n
}
