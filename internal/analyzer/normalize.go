package analyzer

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cast"
)

// Few-shot style answers put step fields at the top level. stepKeys maps
// each step block to the flat keys that belong in it.
var stepKeys = []struct {
	block string
	keys  []string
}{
	{"step1_identification", []string{"key_obligations", "key_rights", "ambiguous_terms"}},
	{"step2_legal_analysis", []string{"legal_issues", "compliance_status", "comparison_to_standard", "red_flags"}},
	{"step3_financial_impact", []string{"potential_costs", "worst_case_scenario", "estimated_risk_amount"}},
	{"step4_business_implications", []string{"operational_impact", "flexibility_constraints", "exit_difficulty"}},
	{"step5_risk_scoring", []string{"risk_level", "risk_score", "justification"}},
	{"step6_recommendations", []string{"action", "priority", "suggested_changes", "alternative_language"}},
	{"step7_negotiation", []string{"strategy", "leverage_points", "realistic_compromise", "dealbreaker"}},
}

var actionSynonyms = map[string]string{
	"accept":    "accept",
	"approve":   "accept",
	"modify":    "modify",
	"negotiate": "modify",
	"revise":    "modify",
	"reject":    "reject",
	"decline":   "reject",
	"refuse":    "reject",
}

var levelSynonyms = map[string]string{
	"low":      "low",
	"medium":   "medium",
	"moderate": "medium",
	"high":     "high",
	"critical": "critical",
	"severe":   "critical",
}

var levelScores = map[string]int{
	"low":      2,
	"medium":   5,
	"high":     7,
	"critical": 9,
}

// LevelForScore maps a 1-10 risk score onto its risk level.
func LevelForScore(score int) string {
	switch {
	case score <= 0:
		return ""
	case score <= 3:
		return "low"
	case score <= 6:
		return "medium"
	case score <= 8:
		return "high"
	default:
		return "critical"
	}
}

// normalize turns a decoded model answer into a validated ClauseAnalysis.
func normalize(raw map[string]any, category string) (ClauseAnalysis, error) {
	liftFlatKeys(raw)

	step1 := block(raw, "step1_identification")
	step2 := block(raw, "step2_legal_analysis")
	step3 := block(raw, "step3_financial_impact")
	step4 := block(raw, "step4_business_implications")
	step5 := block(raw, "step5_risk_scoring")
	step6 := block(raw, "step6_recommendations")
	step7 := block(raw, "step7_negotiation")

	a := ClauseAnalysis{
		ClauseType:    strings.TrimSpace(cast.ToString(raw["clause_type"])),
		ClauseSummary: cast.ToString(raw["clause_summary"]),
		Identification: Identification{
			KeyObligations: stringList(step1["key_obligations"]),
			KeyRights:      stringList(step1["key_rights"]),
			AmbiguousTerms: stringList(step1["ambiguous_terms"]),
		},
		Legal: LegalAnalysis{
			LegalIssues:          stringList(step2["legal_issues"]),
			ComplianceStatus:     cast.ToString(step2["compliance_status"]),
			ComparisonToStandard: cast.ToString(step2["comparison_to_standard"]),
			RedFlags:             stringList(step2["red_flags"]),
		},
		Financial: FinancialImpact{
			PotentialCosts:      stringList(step3["potential_costs"]),
			WorstCaseScenario:   cast.ToString(step3["worst_case_scenario"]),
			EstimatedRiskAmount: cast.ToString(step3["estimated_risk_amount"]),
		},
		Business: BusinessImplications{
			OperationalImpact:      cast.ToString(step4["operational_impact"]),
			FlexibilityConstraints: stringList(step4["flexibility_constraints"]),
			ExitDifficulty:         cast.ToString(step4["exit_difficulty"]),
		},
		Recommendations: Recommendations{
			Action:              normalizeAction(cast.ToString(step6["action"])),
			Priority:            strings.ToLower(strings.TrimSpace(cast.ToString(step6["priority"]))),
			SuggestedChanges:    stringList(step6["suggested_changes"]),
			AlternativeLanguage: cast.ToString(step6["alternative_language"]),
		},
		Negotiation: Negotiation{
			Strategy:            cast.ToString(step7["strategy"]),
			LeveragePoints:      stringList(step7["leverage_points"]),
			RealisticCompromise: cast.ToString(step7["realistic_compromise"]),
			Dealbreaker:         flag(step7["dealbreaker"]),
		},
		OverallVerdict: cast.ToString(raw["overall_verdict"]),
	}

	score, err := riskScore(step5["risk_score"])
	if err != nil {
		return ClauseAnalysis{}, err
	}
	level := strings.ToLower(strings.TrimSpace(cast.ToString(step5["risk_level"])))
	if mapped, ok := levelSynonyms[level]; ok {
		level = mapped
	}
	// A known level that disagrees with the score is replaced by the
	// score's level. Unknown levels are left for validation to reject.
	switch {
	case score > 0 && (level == "" || levelScores[level] != 0):
		level = LevelForScore(score)
	case score == 0:
		score = levelScores[level]
	}
	a.Risk = RiskScoring{
		RiskLevel:     level,
		RiskScore:     score,
		Justification: cast.ToString(step5["justification"]),
	}

	if a.ClauseType == "" {
		a.ClauseType = category
	}

	if err := a.Validate(); err != nil {
		return ClauseAnalysis{}, err
	}
	return a, nil
}

// liftFlatKeys moves top-level step fields into their step block unless the
// block already has a value for that key.
func liftFlatKeys(raw map[string]any) {
	for _, step := range stepKeys {
		b, _ := raw[step.block].(map[string]any)
		for _, key := range step.keys {
			v, ok := raw[key]
			if !ok {
				continue
			}
			if b == nil {
				b = map[string]any{}
				raw[step.block] = b
			}
			if _, exists := b[key]; !exists {
				b[key] = v
			}
			delete(raw, key)
		}
	}
}

func block(raw map[string]any, name string) map[string]any {
	if b, ok := raw[name].(map[string]any); ok {
		return b
	}
	return map[string]any{}
}

func normalizeAction(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if mapped, ok := actionSynonyms[s]; ok {
		return mapped
	}
	return s
}

// riskScore coerces a score given as a number, a numeric string or a
// "7/10" style string. A missing score is 0.
func riskScore(v any) (int, error) {
	switch v.(type) {
	case nil:
		return 0, nil
	case bool:
		return 0, fmt.Errorf("step5_risk_scoring.risk_score is not a number: %v", v)
	}
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, nil
		}
		s, _, _ = strings.Cut(s, "/")
		v = strings.TrimSpace(s)
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, fmt.Errorf("step5_risk_scoring.risk_score is not a number: %v", v)
	}
	return int(math.Round(f)), nil
}

func stringList(v any) []string {
	switch t := v.(type) {
	case nil:
		return []string{}
	case string:
		if strings.TrimSpace(t) == "" {
			return []string{}
		}
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := cast.ToString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		out, err := cast.ToStringSliceE(v)
		if err != nil {
			return []string{}
		}
		return out
	}
}

func flag(v any) bool {
	if s, ok := v.(string); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "yes", "y":
			return true
		case "no", "n":
			return false
		}
	}
	return cast.ToBool(v)
}
