package analyzer

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReport(t *testing.T) {
	a, err := normalize(validAnswer(), "termination")
	require.NoError(t, err)
	a.AnalyzedClause = strings.Repeat("x", 250)
	a.Recommendations.SuggestedChanges = []string{"one", "two", "three", "four"}

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, a))
	out := buf.String()

	assert.Contains(t, out, "CLAUSE ANALYSIS: TERMINATION")
	assert.Contains(t, out, "  "+strings.Repeat("x", 200)+"...\n")
	assert.NotContains(t, out, strings.Repeat("x", 201))
	assert.Contains(t, out, "Level: CRITICAL")
	assert.Contains(t, out, "Score: 9/10")
	assert.Contains(t, out, "Action: REJECT")
	assert.Contains(t, out, "Priority: URGENT")
	assert.Contains(t, out, "    - three\n")
	assert.NotContains(t, out, "four")
	assert.Contains(t, out, "Dealbreaker: YES")
	assert.Contains(t, out, "Reject unless made mutual.")
}

func TestWriteReport_Fallback(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, Fallback("short clause", "boom")))
	out := buf.String()

	assert.Contains(t, out, "CLAUSE ANALYSIS: ERROR")
	assert.Contains(t, out, "  short clause\n")
	assert.Contains(t, out, "Action: MANUAL_REVIEW")
	assert.Contains(t, out, "Automated analysis failed: boom. Manual review required.")
}

func TestSummarize(t *testing.T) {
	critical, err := normalize(validAnswer(), "termination")
	require.NoError(t, err)
	low, err := normalize(map[string]any{"risk_score": 2, "action": "accept"}, "payment")
	require.NoError(t, err)

	s := Summarize([]ClauseAnalysis{critical, low, Fallback("c", "boom"), low})
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, map[string]int{"critical": 1, "low": 2}, s.ByLevel)
	assert.Equal(t, map[string]int{"reject": 1, "accept": 2}, s.ByAction)
	assert.Equal(t, 1, s.Dealbreakers)
	assert.Equal(t, 9, s.HighestScore)
}
