package secrets

import (
	"sort"
	"strings"
	"time"
)

// Finding is one detected secret. The matched value is deliberately absent.
type Finding struct {
	Path        string `json:"path"`
	RuleID      string `json:"rule_id"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Line        int    `json:"line"`
	Source      string `json:"source"`
}

// Finding sources.
const (
	SourceRules    = "rules"
	SourceGitleaks = "gitleaks"
)

// Report aggregates findings across files.
type Report struct {
	Findings     []Finding      `json:"findings"`
	ByRule       map[string]int `json:"by_rule,omitempty"`
	FilesScanned int            `json:"files_scanned"`
	Duration     time.Duration  `json:"duration"`
}

// HasFindings returns true if any secrets were found.
func (r *Report) HasFindings() bool {
	return len(r.Findings) > 0
}

// FindingsBySeverity returns findings filtered by severity.
func (r *Report) FindingsBySeverity(severity string) []Finding {
	var filtered []Finding
	for _, f := range r.Findings {
		if f.Severity == severity {
			filtered = append(filtered, f)
		}
	}
	return filtered
}

// Summary returns a brief summary of findings.
func (r *Report) Summary() string {
	if !r.HasFindings() {
		return "no secrets detected"
	}
	high := len(r.FindingsBySeverity(SeverityHigh))
	if high > 0 {
		return "secrets detected (high severity)"
	}
	if len(r.FindingsBySeverity(SeverityMedium)) > 0 {
		return "possible secrets detected (medium severity)"
	}
	return "risky literals detected (low severity)"
}

// Scanner detects secrets in artifact files.
type Scanner struct {
	cfg      *Config
	gitleaks func(content string) ([]Finding, error)
}

// New creates a Scanner. If cfg is nil, DefaultConfig() is used.
func New(cfg *Config) (*Scanner, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Scanner{cfg: cfg}
	if cfg.Gitleaks {
		s.gitleaks = func(content string) ([]Finding, error) {
			return detectGitleaks(content, cfg.AllowList)
		}
	}
	return s, nil
}

// Enabled reports whether scanning is active.
func (s *Scanner) Enabled() bool {
	return s.cfg.Enabled
}

// ScanFiles scans every file and returns a report sorted by path and line.
func (s *Scanner) ScanFiles(files map[string][]byte) (*Report, error) {
	start := time.Now()
	report := &Report{Findings: []Finding{}, ByRule: map[string]int{}}
	if !s.cfg.Enabled {
		return report, nil
	}

	for path, content := range files {
		findings, err := s.ScanFile(path, content)
		if err != nil {
			return nil, err
		}
		report.FilesScanned++
		for _, f := range findings {
			report.Findings = append(report.Findings, f)
			report.ByRule[f.RuleID]++
		}
	}

	sort.Slice(report.Findings, func(i, j int) bool {
		a, b := report.Findings[i], report.Findings[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.RuleID < b.RuleID
	})
	report.Duration = time.Since(start)
	return report, nil
}

// ScanFile scans a single file.
func (s *Scanner) ScanFile(path string, content []byte) ([]Finding, error) {
	if !s.cfg.Enabled {
		return nil, nil
	}
	text := string(content)
	findings := s.scanRules(path, text)

	if s.gitleaks != nil {
		leaks, err := s.gitleaks(text)
		if err != nil {
			return nil, err
		}
		seen := make(map[[2]any]bool, len(findings))
		for _, f := range findings {
			seen[[2]any{f.Line, f.Description}] = true
		}
		for _, f := range leaks {
			f.Path = path
			if seen[[2]any{f.Line, f.Description}] {
				continue
			}
			findings = append(findings, f)
		}
	}
	return findings, nil
}

func (s *Scanner) scanRules(path, content string) []Finding {
	var findings []Finding
	for _, rule := range s.cfg.compiledRules {
		if !rule.applies(content) {
			continue
		}
		for _, match := range rule.pattern.FindAllStringIndex(content, -1) {
			if s.isAllowed(content[match[0]:match[1]]) {
				continue
			}
			findings = append(findings, Finding{
				Path:        path,
				RuleID:      rule.ID,
				Description: rule.Description,
				Severity:    rule.Severity,
				Line:        strings.Count(content[:match[0]], "\n") + 1,
				Source:      SourceRules,
			})
		}
	}
	return findings
}

func (r *compiledRule) applies(content string) bool {
	if len(r.keywords) == 0 {
		return true
	}
	for _, kw := range r.keywords {
		if kw.MatchString(content) {
			return true
		}
	}
	return false
}

func (s *Scanner) isAllowed(match string) bool {
	for _, pattern := range s.cfg.compiledAllowList {
		if pattern.MatchString(match) {
			return true
		}
	}
	return false
}

// Redact replaces every rule match in content with the redaction string.
func (s *Scanner) Redact(content string) string {
	if !s.cfg.Enabled {
		return content
	}
	type span struct{ start, end int }
	var spans []span
	for _, rule := range s.cfg.compiledRules {
		if !rule.applies(content) {
			continue
		}
		for _, m := range rule.pattern.FindAllStringIndex(content, -1) {
			if !s.isAllowed(content[m[0]:m[1]]) {
				spans = append(spans, span{m[0], m[1]})
			}
		}
	}
	if len(spans) == 0 {
		return content
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	merged := []span{spans[0]}
	for _, sp := range spans[1:] {
		last := &merged[len(merged)-1]
		if sp.start <= last.end {
			if sp.end > last.end {
				last.end = sp.end
			}
			continue
		}
		merged = append(merged, sp)
	}

	var b strings.Builder
	prev := 0
	for _, sp := range merged {
		b.WriteString(content[prev:sp.start])
		b.WriteString(s.cfg.RedactionString)
		prev = sp.end
	}
	b.WriteString(content[prev:])
	return b.String()
}
