package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/codetrail/internal/config"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestParseRejectsUnknownSeverity(t *testing.T) {
	_, err := Parse([]byte(`{"lint":{"issues":[{"rule":"E1","severity":"catastrophic","path":"a.py","line":1}]}}`))
	require.Error(t, err)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte(`{"tests":{"total":1,"passed":1,"failed":0,"skipped":0,"duration_ms":5},"extra":true}`))
	require.Error(t, err)
}

func TestParseAcceptsPartialInput(t *testing.T) {
	in, err := Parse([]byte(`{"coverage":{"line_percent":81.5,"files":[{"path":"a.py","covered_lines":10,"total_lines":12}]}}`))
	require.NoError(t, err)
	require.NotNil(t, in.Coverage)
	assert.Nil(t, in.Tests)
	assert.InDelta(t, 81.5, in.Coverage.LinePercent, 0.001)
}

func TestAggregateSortsFindings(t *testing.T) {
	b := Aggregate([]*Input{
		{Lint: &Lint{Issues: []LintIssue{
			{Rule: "E2", Severity: "warning", Path: "b.py", Line: 3},
			{Rule: "E1", Severity: "error", Path: "a.py", Line: 9},
		}}},
		{Lint: &Lint{Issues: []LintIssue{
			{Rule: "E3", Severity: "info", Path: "a.py", Line: 2},
		}}},
	})

	require.NotNil(t, b.Lint)
	require.Len(t, b.Lint.Issues, 3)
	assert.Equal(t, "E3", b.Lint.Issues[0].Rule)
	assert.Equal(t, "E1", b.Lint.Issues[1].Rule)
	assert.Equal(t, "E2", b.Lint.Issues[2].Rule)
	assert.Equal(t, 1, b.Lint.BySeverity["error"])
	assert.Equal(t, 1, b.Lint.BySeverity["warning"])
}

func TestAggregateLaterScalarsWin(t *testing.T) {
	b := Aggregate([]*Input{
		{Tests: &TestTotals{Total: 10, Passed: 9, Failed: 1}},
		{Tests: &TestTotals{Total: 12, Passed: 12}},
	})
	require.NotNil(t, b.Tests)
	assert.Equal(t, 12, b.Tests.Total)
	assert.Equal(t, 0, b.Tests.Failed)
}

func TestMarshalIsByteStable(t *testing.T) {
	b := Aggregate([]*Input{
		{Security: &Security{Issues: []SecurityIssue{
			{ID: "CVE-2", Severity: "high"},
			{ID: "CVE-1", Severity: "critical", Package: "leftpad"},
		}}},
	})

	first, err := b.Marshal()
	require.NoError(t, err)
	second, err := b.Marshal()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEvaluateGatesFailedTests(t *testing.T) {
	b := Aggregate([]*Input{{Tests: &TestTotals{Total: 5, Passed: 4, Failed: 1}}})

	report := EvaluateGates(b, config.Thresholds{MaxFailedTests: intPtr(0)})
	require.Len(t, report.Checks, 1)
	assert.Equal(t, VerdictFail, report.Checks[0].Verdict)
	assert.Contains(t, report.Checks[0].Reason, "maximum 0")
	assert.Equal(t, VerdictFail, report.Verdict)
}

func TestEvaluateGatesAbsentMetricNotEvaluated(t *testing.T) {
	report := EvaluateGates(&Bundle{}, config.Thresholds{
		MinCoverage:    floatPtr(80),
		MaxFailedTests: intPtr(0),
	})

	require.Len(t, report.Checks, 2)
	for _, check := range report.Checks {
		assert.Equal(t, VerdictNotEvaluated, check.Verdict)
	}
	assert.Equal(t, VerdictPass, report.Verdict)
}

func TestEvaluateGatesNoThresholdsNoChecks(t *testing.T) {
	report := EvaluateGates(&Bundle{}, config.Thresholds{})
	assert.Empty(t, report.Checks)
	assert.Equal(t, VerdictPass, report.Verdict)
}

func TestEvaluateGatesMonotonicUnderTightening(t *testing.T) {
	b := Aggregate([]*Input{{Lint: &Lint{Issues: []LintIssue{
		{Rule: "E1", Severity: "warning", Path: "a.py", Line: 1},
		{Rule: "E1", Severity: "warning", Path: "b.py", Line: 1},
	}}}})

	loose := EvaluateGates(b, config.Thresholds{MaxLintWarnings: intPtr(1)})
	tight := EvaluateGates(b, config.Thresholds{MaxLintWarnings: intPtr(0)})

	assert.Equal(t, VerdictFail, loose.Verdict)
	assert.Equal(t, VerdictFail, tight.Verdict)
}
