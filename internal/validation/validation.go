// Package validation checks an artifact bundle before it is merged and
// reduces the results to a single verdict.
//
// A report holds three named checks (syntax, parameters, steps), a security
// scan summary and a quality gate. Aggregate turns them into passed, warning
// or failed.
package validation

import (
	"fmt"
	"strings"
)

// Verdict is the aggregated outcome of a validation run.
type Verdict string

// Verdicts.
const (
	VerdictPassed  Verdict = "passed"
	VerdictWarning Verdict = "warning"
	VerdictFailed  Verdict = "failed"
)

// Severity of a finding.
type Severity string

// Finding severities.
const (
	SeverityError Severity = "error"
	SeverityWarn  Severity = "warn"
)

// Check names.
const (
	CheckSyntax     = "syntax"
	CheckParameters = "parameters"
	CheckSteps      = "steps"
)

// Check is the result of one named check.
type Check struct {
	Name     string   `json:"name"`
	Passed   bool     `json:"passed"`
	Messages []string `json:"messages,omitempty"`
}

// Finding is a security scan hit, mapped to a validation severity.
type Finding struct {
	Path     string   `json:"path"`
	Rule     string   `json:"rule"`
	Message  string   `json:"message"`
	Line     int      `json:"line"`
	Severity Severity `json:"severity"`
}

// SecuritySummary summarizes the security scan.
type SecuritySummary struct {
	Findings     []Finding `json:"findings"`
	FilesScanned int       `json:"files_scanned"`
}

// Count returns the number of findings with the given severity.
func (s SecuritySummary) Count(sev Severity) int {
	n := 0
	for _, f := range s.Findings {
		if f.Severity == sev {
			n++
		}
	}
	return n
}

// QualityGate is the quality score against its threshold.
type QualityGate struct {
	Score     int      `json:"score"`
	Threshold int      `json:"threshold"`
	Passed    bool     `json:"passed"`
	Missing   []string `json:"missing,omitempty"`
}

// Report is the full validation result for one bundle.
type Report struct {
	Bundle   string          `json:"bundle"`
	Checks   []Check         `json:"checks"`
	Security SecuritySummary `json:"security"`
	Quality  QualityGate     `json:"quality"`
	Verdict  Verdict         `json:"verdict"`
}

// Check returns the named check.
func (r *Report) Check(name string) (Check, bool) {
	for _, c := range r.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return Check{}, false
}

// Problems lists every failed check message, finding and quality shortfall.
func (r *Report) Problems() []string {
	var out []string
	for _, c := range r.Checks {
		if c.Passed {
			continue
		}
		if len(c.Messages) == 0 {
			out = append(out, fmt.Sprintf("%s check failed", c.Name))
		}
		for _, m := range c.Messages {
			out = append(out, fmt.Sprintf("%s: %s", c.Name, m))
		}
	}
	for _, f := range r.Security.Findings {
		out = append(out, fmt.Sprintf("security %s: %s (%s:%d)", f.Severity, f.Message, f.Path, f.Line))
	}
	if !r.Quality.Passed {
		out = append(out, fmt.Sprintf("quality score %d below threshold %d", r.Quality.Score, r.Quality.Threshold))
	}
	return out
}

// Summary returns a one-line description of the report.
func (r *Report) Summary() string {
	passed := 0
	for _, c := range r.Checks {
		if c.Passed {
			passed++
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d/%d checks passed, %d error and %d warn findings, quality %d/%d",
		r.Verdict, passed, len(r.Checks),
		r.Security.Count(SeverityError), r.Security.Count(SeverityWarn),
		r.Quality.Score, r.Quality.Threshold)
	return b.String()
}

// Aggregate reduces checks, security findings and the quality gate to a
// verdict. Failed checks, error findings and a failing quality gate fail the
// run; warn findings alone produce a warning.
func Aggregate(checks []Check, security SecuritySummary, quality QualityGate) Verdict {
	for _, c := range checks {
		if !c.Passed {
			return VerdictFailed
		}
	}
	if !quality.Passed || security.Count(SeverityError) > 0 {
		return VerdictFailed
	}
	if security.Count(SeverityWarn) > 0 {
		return VerdictWarning
	}
	return VerdictPassed
}

// ParseVerdict parses a verdict string.
func ParseVerdict(s string) (Verdict, error) {
	switch v := Verdict(strings.ToLower(strings.TrimSpace(s))); v {
	case VerdictPassed, VerdictWarning, VerdictFailed:
		return v, nil
	default:
		return "", fmt.Errorf("validation: unknown verdict %q", s)
	}
}
