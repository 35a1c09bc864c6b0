// Package metrics is the metrics aggregation facade: it consumes
// already-parsed metric records (tests, coverage, lint, security) in
// their normalized inbound shapes, merges them into one
// MetricsBundle with stable key ordering, and evaluates the configured
// gate thresholds into a GateReport. Foreign formats (JUnit, LCOV,
// Cobertura, SARIF) never enter this package; external adapters deliver
// the normalized shape. Field validation of inbound records uses the
// same tag validator the config record uses.
package metrics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"

	"github.com/c360studio/codetrail/internal/config"
	"github.com/c360studio/codetrail/internal/runerr"
)

// TestTotals is the normalized test-run record.
type TestTotals struct {
	Total      int   `json:"total" validate:"gte=0"`
	Passed     int   `json:"passed" validate:"gte=0"`
	Failed     int   `json:"failed" validate:"gte=0"`
	Skipped    int   `json:"skipped" validate:"gte=0"`
	DurationMs int64 `json:"duration_ms" validate:"gte=0"`
}

// CoverageFile is one file's coverage breakdown.
type CoverageFile struct {
	Path         string `json:"path" validate:"required"`
	CoveredLines int    `json:"covered_lines" validate:"gte=0"`
	TotalLines   int    `json:"total_lines" validate:"gte=0"`
}

// Coverage is the normalized coverage record. BranchPercent is optional
// in the inbound shape.
type Coverage struct {
	LinePercent   float64        `json:"line_percent" validate:"gte=0,lte=100"`
	BranchPercent *float64       `json:"branch_percent,omitempty" validate:"omitempty,gte=0,lte=100"`
	Files         []CoverageFile `json:"files" validate:"dive"`
}

// LintIssue is one normalized lint finding.
type LintIssue struct {
	Rule     string `json:"rule" validate:"required"`
	Severity string `json:"severity" validate:"oneof=error warning info"`
	Path     string `json:"path"`
	Line     int    `json:"line" validate:"gte=0"`
}

// Lint is the normalized lint record.
type Lint struct {
	Issues []LintIssue `json:"issues" validate:"dive"`
}

// SecurityIssue is one normalized security finding.
type SecurityIssue struct {
	ID       string `json:"id" validate:"required"`
	Severity string `json:"severity" validate:"oneof=critical high medium low"`
	Package  string `json:"package,omitempty"`
	Path     string `json:"path,omitempty"`
}

// Security is the normalized security record.
type Security struct {
	Issues []SecurityIssue `json:"issues" validate:"dive"`
}

// Input is one metric source's delivery: any subset of the four record
// kinds may be present.
type Input struct {
	Tests    *TestTotals `json:"tests,omitempty"`
	Coverage *Coverage   `json:"coverage,omitempty"`
	Lint     *Lint       `json:"lint,omitempty"`
	Security *Security   `json:"security,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Parse decodes and validates one normalized metric input blob. A
// malformed blob returns a non-fatal MetricsFormatError so the caller
// can skip that source with a diagnostic.
func Parse(blob []byte) (*Input, error) {
	dec := json.NewDecoder(bytes.NewReader(blob))
	dec.DisallowUnknownFields()

	var in Input
	if err := dec.Decode(&in); err != nil {
		return nil, runerr.MetricsFormat("E_METRICS_PARSE", "metrics input is not valid JSON", err)
	}
	if err := validate.Struct(&in); err != nil {
		return nil, runerr.MetricsFormat("E_METRICS_SHAPE", "metrics input failed validation", err)
	}
	return &in, nil
}

// LintSummary is the bundle's aggregated view of lint findings.
type LintSummary struct {
	Total      int            `json:"total"`
	BySeverity map[string]int `json:"by_severity"`
	ByRule     map[string]int `json:"by_rule"`
	Issues     []LintIssue    `json:"issues"`
}

// SecuritySummary is the bundle's aggregated view of security findings.
type SecuritySummary struct {
	Total      int             `json:"total"`
	BySeverity map[string]int  `json:"by_severity"`
	Issues     []SecurityIssue `json:"issues"`
}

// Bundle is the single normalized MetricsBundle a run emits. Absent
// sections stay nil and serialize as null, so the bundle's shape is
// identical whether or not a source was supplied.
type Bundle struct {
	Tests    *TestTotals      `json:"tests"`
	Coverage *Coverage        `json:"coverage"`
	Lint     *LintSummary     `json:"lint"`
	Security *SecuritySummary `json:"security"`
}

// Aggregate merges inputs into one Bundle. Later inputs win for the
// scalar records (tests, coverage); lint and security findings
// accumulate across inputs. Findings and coverage files are sorted so
// the bundle is byte-stable regardless of input order within a source.
func Aggregate(inputs []*Input) *Bundle {
	b := &Bundle{}

	var lintIssues []LintIssue
	var secIssues []SecurityIssue

	for _, in := range inputs {
		if in == nil {
			continue
		}
		if in.Tests != nil {
			t := *in.Tests
			b.Tests = &t
		}
		if in.Coverage != nil {
			c := *in.Coverage
			c.Files = append([]CoverageFile(nil), in.Coverage.Files...)
			sort.Slice(c.Files, func(i, j int) bool { return c.Files[i].Path < c.Files[j].Path })
			b.Coverage = &c
		}
		if in.Lint != nil {
			lintIssues = append(lintIssues, in.Lint.Issues...)
		}
		if in.Security != nil {
			secIssues = append(secIssues, in.Security.Issues...)
		}
	}

	if lintIssues != nil {
		sort.Slice(lintIssues, func(i, j int) bool {
			a, z := lintIssues[i], lintIssues[j]
			if a.Path != z.Path {
				return a.Path < z.Path
			}
			if a.Line != z.Line {
				return a.Line < z.Line
			}
			return a.Rule < z.Rule
		})
		summary := &LintSummary{
			Total:      len(lintIssues),
			BySeverity: make(map[string]int),
			ByRule:     make(map[string]int),
			Issues:     lintIssues,
		}
		for _, issue := range lintIssues {
			summary.BySeverity[issue.Severity]++
			summary.ByRule[issue.Rule]++
		}
		b.Lint = summary
	}

	if secIssues != nil {
		sort.Slice(secIssues, func(i, j int) bool {
			a, z := secIssues[i], secIssues[j]
			if a.Severity != z.Severity {
				return a.Severity < z.Severity
			}
			return a.ID < z.ID
		})
		summary := &SecuritySummary{
			Total:      len(secIssues),
			BySeverity: make(map[string]int),
			Issues:     secIssues,
		}
		for _, issue := range secIssues {
			summary.BySeverity[issue.Severity]++
		}
		b.Security = summary
	}

	return b
}

// Marshal renders the bundle as key-sorted, LF-terminated JSON.
func (b *Bundle) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(b); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Verdict is one gate check's outcome.
type Verdict string

const (
	VerdictPass         Verdict = "pass"
	VerdictFail         Verdict = "fail"
	VerdictNotEvaluated Verdict = "not_evaluated"
)

// GateCheck records one threshold's evaluation.
type GateCheck struct {
	Name      string  `json:"name"`
	Threshold string  `json:"threshold"`
	Actual    string  `json:"actual"`
	Verdict   Verdict `json:"verdict"`
	Reason    string  `json:"reason"`
}

// GateReport is the run's quality-gate outcome: every configured
// threshold with its actual value and verdict, plus the overall
// verdict (pass iff every evaluated threshold passed).
type GateReport struct {
	Checks  []GateCheck `json:"checks"`
	Verdict Verdict     `json:"verdict"`
}

// EvaluateGates checks the configured thresholds against the bundle.
// Unset thresholds produce no check at all; a set threshold whose
// backing metric source was not supplied counts as not_evaluated and
// does not affect the overall verdict.
func EvaluateGates(b *Bundle, th config.Thresholds) *GateReport {
	report := &GateReport{Verdict: VerdictPass}

	if th.MinCoverage != nil {
		check := GateCheck{
			Name:      "min_coverage",
			Threshold: fmt.Sprintf("%.2f", *th.MinCoverage),
		}
		if b.Coverage == nil {
			check.Actual = "absent"
			check.Verdict = VerdictNotEvaluated
			check.Reason = "no coverage metrics were supplied"
		} else {
			actual := b.Coverage.LinePercent
			check.Actual = fmt.Sprintf("%.2f", actual)
			if actual < *th.MinCoverage {
				check.Verdict = VerdictFail
				check.Reason = fmt.Sprintf("line coverage %.2f%% is below the minimum %.2f%%", actual, *th.MinCoverage)
			} else {
				check.Verdict = VerdictPass
				check.Reason = fmt.Sprintf("line coverage %.2f%% meets the minimum %.2f%%", actual, *th.MinCoverage)
			}
		}
		report.Checks = append(report.Checks, check)
	}

	if th.MaxFailedTests != nil {
		check := GateCheck{
			Name:      "max_failed_tests",
			Threshold: fmt.Sprintf("%d", *th.MaxFailedTests),
		}
		if b.Tests == nil {
			check.Actual = "absent"
			check.Verdict = VerdictNotEvaluated
			check.Reason = "no test metrics were supplied"
		} else {
			actual := b.Tests.Failed
			check.Actual = fmt.Sprintf("%d", actual)
			if actual > *th.MaxFailedTests {
				check.Verdict = VerdictFail
				check.Reason = fmt.Sprintf("%d failed tests exceed the maximum %d", actual, *th.MaxFailedTests)
			} else {
				check.Verdict = VerdictPass
				check.Reason = fmt.Sprintf("%d failed tests within the maximum %d", actual, *th.MaxFailedTests)
			}
		}
		report.Checks = append(report.Checks, check)
	}

	if th.MaxLintWarnings != nil {
		check := GateCheck{
			Name:      "max_lint_warnings",
			Threshold: fmt.Sprintf("%d", *th.MaxLintWarnings),
		}
		if b.Lint == nil {
			check.Actual = "absent"
			check.Verdict = VerdictNotEvaluated
			check.Reason = "no lint metrics were supplied"
		} else {
			actual := b.Lint.BySeverity["warning"] + b.Lint.BySeverity["error"]
			check.Actual = fmt.Sprintf("%d", actual)
			if actual > *th.MaxLintWarnings {
				check.Verdict = VerdictFail
				check.Reason = fmt.Sprintf("%d lint warnings exceed the maximum %d", actual, *th.MaxLintWarnings)
			} else {
				check.Verdict = VerdictPass
				check.Reason = fmt.Sprintf("%d lint warnings within the maximum %d", actual, *th.MaxLintWarnings)
			}
		}
		report.Checks = append(report.Checks, check)
	}

	if th.MaxCriticalVulns != nil {
		check := GateCheck{
			Name:      "max_critical_vulnerabilities",
			Threshold: fmt.Sprintf("%d", *th.MaxCriticalVulns),
		}
		if b.Security == nil {
			check.Actual = "absent"
			check.Verdict = VerdictNotEvaluated
			check.Reason = "no security metrics were supplied"
		} else {
			actual := b.Security.BySeverity["critical"]
			check.Actual = fmt.Sprintf("%d", actual)
			if actual > *th.MaxCriticalVulns {
				check.Verdict = VerdictFail
				check.Reason = fmt.Sprintf("%d critical vulnerabilities exceed the maximum %d", actual, *th.MaxCriticalVulns)
			} else {
				check.Verdict = VerdictPass
				check.Reason = fmt.Sprintf("%d critical vulnerabilities within the maximum %d", actual, *th.MaxCriticalVulns)
			}
		}
		report.Checks = append(report.Checks, check)
	}

	for _, check := range report.Checks {
		if check.Verdict == VerdictFail {
			report.Verdict = VerdictFail
			break
		}
	}

	return report
}

// Marshal renders the report as key-sorted, LF-terminated JSON.
func (r *GateReport) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
