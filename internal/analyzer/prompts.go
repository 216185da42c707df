package analyzer

import (
	"strings"
	"text/template"
)

const systemInstruction = `You are a senior contract analyst with more than twenty years of legal and commercial experience.
You review contract clauses with a fixed seven-step reasoning procedure.

Your analysis must be:
- Thorough and methodical
- Legally accurate
- Practically actionable
- Balanced, neither alarmist nor dismissive
- Focused on protecting the interests of the weaker party

Always answer with structured JSON that follows the exact schema you are given.`

const fewShotExamples = `
**EXAMPLE 1 - UNFAIR TERMINATION CLAUSE:**

Clause: "Company may terminate this agreement at any time without cause or notice. Contractor must provide 90 days written notice and may only terminate for material breach."

Analysis:
{
    "clause_type": "termination",
    "risk_level": "critical",
    "risk_score": 9,
    "legal_issues": [
        "Termination rights heavily favour one party",
        "Company owes no notice at all",
        "Contractor notice period of 90 days is excessive",
        "Contractor cannot terminate without cause"
    ],
    "action": "reject",
    "suggested_changes": [
        "Require 30 days notice from both parties",
        "Let either party terminate without cause on equal notice",
        "Remove the asymmetric termination conditions"
    ]
}

---

**EXAMPLE 2 - FAIR PAYMENT CLAUSE:**

Clause: "Payment due within 30 days of invoice. Late payments incur 1.5% monthly interest. Either party may dispute charges within 15 days with written explanation."

Analysis:
{
    "clause_type": "payment",
    "risk_level": "low",
    "risk_score": 2,
    "legal_issues": [],
    "action": "accept",
    "suggested_changes": [],
    "justification": "Standard payment terms with a reasonable interest rate and a dispute process open to both parties"
}

---

**EXAMPLE 3 - ONE-SIDED LIABILITY CLAUSE:**

Clause: "Contractor shall indemnify and hold Company harmless from any and all claims, damages, or expenses arising from this agreement, including Company's own negligence."

Analysis:
{
    "clause_type": "liability",
    "risk_level": "high",
    "risk_score": 8,
    "legal_issues": [
        "Liability exposure has no upper limit",
        "Covers the Company's own negligence, which is highly unusual",
        "Indemnification amount is uncapped",
        "Indemnification is not mutual"
    ],
    "action": "modify",
    "suggested_changes": [
        "Cap liability at the amount paid under this agreement",
        "Exclude the Company's own negligence",
        "Make the indemnification mutual",
        "Exclude indirect and consequential damages"
    ],
    "alternative_language": "Each party shall indemnify the other for direct damages caused by its own negligence or breach, up to the total amount paid under this agreement, excluding indirect or consequential damages."
}
`

// SystemPrompt is sent with every analysis request.
var SystemPrompt = systemInstruction + "\n\n**EXAMPLES OF GOOD ANALYSIS:**" + fewShotExamples

var analysisTemplate = template.Must(template.New("analysis").Parse(`Analyze the following contract clause with the seven-step procedure:

**CLAUSE TO ANALYZE:**
{{.ClauseText}}

**CLAUSE TYPE:** {{.Category}}

**CONTEXT FROM SIMILAR STANDARD CLAUSES:**
{{.Context}}

---

**ANALYZE STEP BY STEP:**

**Step 1 - Clause Identification:**
- What does the clause actually say?
- What are the key obligations, rights and conditions?
- Which terms are vague or ambiguous?

**Step 2 - Legal Analysis:**
- What are the legal implications?
- Does it follow standard legal practice?
- Are there red flags such as unlimited liability, one-sided terms or unfair termination?
- How does it compare with industry-standard clauses?

**Step 3 - Financial Impact:**
- What costs or financial risks could follow?
- Are there hidden fees, penalties or liabilities?
- What is the worst-case financial scenario?

**Step 4 - Business Implications:**
- How does it affect day-to-day operations?
- Does it limit business flexibility?
- What happens if circumstances change, for example an early exit?

**Step 5 - Risk Scoring:**
- Overall risk level: LOW (1-3), MEDIUM (4-6), HIGH (7-8), CRITICAL (9-10)
- Justify the score from the legal, financial and business findings.

**Step 6 - Recommendations:**
- Should the clause be accepted, modified or rejected?
- Which specific changes would make it fairer?
- What alternative wording do you propose?

**Step 7 - Negotiation Strategy:**
- How should this clause be negotiated?
- Which leverage points exist?
- What is a realistic compromise?

---

**OUTPUT FORMAT (JSON):**
Return ONLY valid JSON, no markdown:
{
    "clause_type": "string",
    "clause_summary": "string (1-2 sentences)",
    "step1_identification": {
        "key_obligations": ["list"],
        "key_rights": ["list"],
        "ambiguous_terms": ["list"]
    },
    "step2_legal_analysis": {
        "legal_issues": ["list of concerns"],
        "compliance_status": "compliant/concerning/non-compliant",
        "comparison_to_standard": "better/similar/worse",
        "red_flags": ["list"]
    },
    "step3_financial_impact": {
        "potential_costs": ["list"],
        "worst_case_scenario": "string",
        "estimated_risk_amount": "string (e.g. '$10K-50K' or 'unlimited')"
    },
    "step4_business_implications": {
        "operational_impact": "string",
        "flexibility_constraints": ["list"],
        "exit_difficulty": "easy/moderate/difficult/trapped"
    },
    "step5_risk_scoring": {
        "risk_level": "low/medium/high/critical",
        "risk_score": 1-10,
        "justification": "string (2-3 sentences)"
    },
    "step6_recommendations": {
        "action": "accept/modify/reject",
        "priority": "low/medium/high/urgent",
        "suggested_changes": ["list of specific edits"],
        "alternative_language": "string (your proposed clause text)"
    },
    "step7_negotiation": {
        "strategy": "string (approach to take)",
        "leverage_points": ["list"],
        "realistic_compromise": "string",
        "dealbreaker": true/false
    },
    "overall_verdict": "string (final 2-3 sentence summary)"
}
`))

type promptData struct {
	ClauseText string
	Category   string
	Context    string
}

func renderPrompt(clauseText, category, contextText string) (string, error) {
	var b strings.Builder
	err := analysisTemplate.Execute(&b, promptData{
		ClauseText: clauseText,
		Category:   category,
		Context:    contextText,
	})
	return b.String(), err
}
