package analyzer

import (
	"fmt"
	"io"
	"strings"
)

const (
	reportRule     = 80
	reportClipLen  = 200
	reportMaxEdits = 3
)

// WriteReport prints a plain-text digest of an analysis.
func WriteReport(w io.Writer, a ClauseAnalysis) error {
	var b strings.Builder
	rule := strings.Repeat("=", reportRule)

	fmt.Fprintf(&b, "\n%s\n", rule)
	fmt.Fprintf(&b, "CLAUSE ANALYSIS: %s\n", strings.ToUpper(orDefault(a.ClauseType, DefaultCategory)))
	fmt.Fprintf(&b, "%s\n", rule)

	b.WriteString("\nCLAUSE TEXT:\n")
	fmt.Fprintf(&b, "  %s\n", clip(orDefault(a.AnalyzedClause, "N/A"), reportClipLen))

	b.WriteString("\nRISK ASSESSMENT:\n")
	fmt.Fprintf(&b, "  Level: %s\n", strings.ToUpper(orDefault(a.Risk.RiskLevel, "unknown")))
	fmt.Fprintf(&b, "  Score: %d/10\n", a.Risk.RiskScore)
	fmt.Fprintf(&b, "  Why: %s\n", orDefault(a.Risk.Justification, "N/A"))

	b.WriteString("\nRECOMMENDATION:\n")
	fmt.Fprintf(&b, "  Action: %s\n", strings.ToUpper(orDefault(a.Recommendations.Action, "unknown")))
	fmt.Fprintf(&b, "  Priority: %s\n", strings.ToUpper(orDefault(a.Recommendations.Priority, "unknown")))
	if changes := a.Recommendations.SuggestedChanges; len(changes) > 0 {
		b.WriteString("  Changes needed:\n")
		for _, c := range changes[:min(len(changes), reportMaxEdits)] {
			fmt.Fprintf(&b, "    - %s\n", c)
		}
	}
	if a.Negotiation.Dealbreaker {
		b.WriteString("  Dealbreaker: YES\n")
	}

	b.WriteString("\nVERDICT:\n")
	fmt.Fprintf(&b, "  %s\n", orDefault(a.OverallVerdict, "N/A"))
	fmt.Fprintf(&b, "%s\n", rule)

	_, err := io.WriteString(w, b.String())
	return err
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// BatchSummary aggregates the analyses of one batch.
type BatchSummary struct {
	Total        int            `json:"total"`
	Failed       int            `json:"failed"`
	ByLevel      map[string]int `json:"by_level"`
	ByAction     map[string]int `json:"by_action"`
	Dealbreakers int            `json:"dealbreakers"`
	HighestScore int            `json:"highest_score"`
}

// Summarize counts analyses by risk level and action. Failed analyses are
// counted only in Total and Failed.
func Summarize(results []ClauseAnalysis) BatchSummary {
	s := BatchSummary{
		Total:    len(results),
		ByLevel:  map[string]int{},
		ByAction: map[string]int{},
	}
	for _, r := range results {
		if r.Failed() {
			s.Failed++
			continue
		}
		s.ByLevel[r.Risk.RiskLevel]++
		s.ByAction[r.Recommendations.Action]++
		if r.Negotiation.Dealbreaker {
			s.Dealbreakers++
		}
		if r.Risk.RiskScore > s.HighestScore {
			s.HighestScore = r.Risk.RiskScore
		}
	}
	return s
}
