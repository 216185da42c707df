package analyzer

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Identification struct {
	KeyObligations []string `json:"key_obligations"`
	KeyRights      []string `json:"key_rights"`
	AmbiguousTerms []string `json:"ambiguous_terms"`
}

type LegalAnalysis struct {
	LegalIssues          []string `json:"legal_issues"`
	ComplianceStatus     string   `json:"compliance_status"`
	ComparisonToStandard string   `json:"comparison_to_standard"`
	RedFlags             []string `json:"red_flags"`
}

type FinancialImpact struct {
	PotentialCosts      []string `json:"potential_costs"`
	WorstCaseScenario   string   `json:"worst_case_scenario"`
	EstimatedRiskAmount string   `json:"estimated_risk_amount"`
}

type BusinessImplications struct {
	OperationalImpact      string   `json:"operational_impact"`
	FlexibilityConstraints []string `json:"flexibility_constraints"`
	ExitDifficulty         string   `json:"exit_difficulty"`
}

type RiskScoring struct {
	RiskLevel     string `json:"risk_level" validate:"required,oneof=low medium high critical"`
	RiskScore     int    `json:"risk_score" validate:"min=1,max=10"`
	Justification string `json:"justification"`
}

type Recommendations struct {
	Action              string   `json:"action" validate:"required,oneof=accept modify reject"`
	Priority            string   `json:"priority"`
	SuggestedChanges    []string `json:"suggested_changes"`
	AlternativeLanguage string   `json:"alternative_language"`
}

type Negotiation struct {
	Strategy            string   `json:"strategy"`
	LeveragePoints      []string `json:"leverage_points"`
	RealisticCompromise string   `json:"realistic_compromise"`
	Dealbreaker         bool     `json:"dealbreaker"`
}

// ClauseAnalysis is the verdict for one clause. It is either a full seven
// step analysis or, when Failed reports true, a fallback that only carries
// the risk and recommendation blocks plus the failure reason.
type ClauseAnalysis struct {
	ClauseType      string               `json:"clause_type" validate:"required"`
	ClauseSummary   string               `json:"clause_summary"`
	Identification  Identification       `json:"step1_identification"`
	Legal           LegalAnalysis        `json:"step2_legal_analysis"`
	Financial       FinancialImpact      `json:"step3_financial_impact"`
	Business        BusinessImplications `json:"step4_business_implications"`
	Risk            RiskScoring          `json:"step5_risk_scoring"`
	Recommendations Recommendations      `json:"step6_recommendations"`
	Negotiation     Negotiation          `json:"step7_negotiation"`
	OverallVerdict  string               `json:"overall_verdict"`
	AnalyzedClause  string               `json:"analyzed_clause"`
	RAGContextUsed  bool                 `json:"rag_context_used"`
	Error           string               `json:"error,omitempty"`

	// Context records how the retrieval context was assembled.
	Context ContextOutcome `json:"-"`

	failed bool
}

// Failed reports whether this is a fallback analysis.
func (a ClauseAnalysis) Failed() bool {
	return a.failed
}

// fallbackWire is the reduced shape a failed analysis marshals to.
type fallbackWire struct {
	ClauseType      string          `json:"clause_type"`
	AnalyzedClause  string          `json:"analyzed_clause"`
	Error           string          `json:"error"`
	Risk            RiskScoring     `json:"step5_risk_scoring"`
	Recommendations Recommendations `json:"step6_recommendations"`
	OverallVerdict  string          `json:"overall_verdict"`
}

type analysisAlias ClauseAnalysis

func (a ClauseAnalysis) MarshalJSON() ([]byte, error) {
	if a.failed {
		return json.Marshal(fallbackWire{
			ClauseType:      a.ClauseType,
			AnalyzedClause:  a.AnalyzedClause,
			Error:           a.Error,
			Risk:            a.Risk,
			Recommendations: a.Recommendations,
			OverallVerdict:  a.OverallVerdict,
		})
	}
	return json.Marshal(analysisAlias(a))
}

func (a *ClauseAnalysis) UnmarshalJSON(data []byte) error {
	var alias analysisAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*a = ClauseAnalysis(alias)
	a.failed = a.ClauseType == FailedClauseType && a.Error != ""
	return nil
}

// FailedClauseType is the clause_type of every fallback analysis.
const FailedClauseType = "error"

// Fallback builds the analysis returned when a clause could not be analyzed.
func Fallback(clauseText, reason string) ClauseAnalysis {
	return ClauseAnalysis{
		ClauseType:     FailedClauseType,
		AnalyzedClause: clauseText,
		Error:          reason,
		Risk: RiskScoring{
			RiskLevel:     "unknown",
			RiskScore:     0,
			Justification: "Analysis failed",
		},
		Recommendations: Recommendations{
			Action:              "manual_review",
			Priority:            "high",
			SuggestedChanges:    []string{"Review this clause manually - automated analysis failed"},
			AlternativeLanguage: "",
		},
		OverallVerdict: fmt.Sprintf("Automated analysis failed: %s. Manual review required.", reason),
		failed:         true,
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the fields every successful analysis must carry.
func (a ClauseAnalysis) Validate() error {
	err := validate.Struct(a)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "ClauseAnalysis.")
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value()))
		case "min", "max":
			msgs = append(msgs, fmt.Sprintf("%s must be between 1 and 10, got %v", field, fe.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
