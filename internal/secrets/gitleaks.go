package secrets

import (
	"fmt"
	"regexp"

	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksRegexp "github.com/zricethezav/gitleaks/v8/regexp"
)

// detectGitleaks scans content with the gitleaks default configuration.
// A fresh detector is built per call; detectors accumulate state.
func detectGitleaks(content string, allowList []string) ([]Finding, error) {
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("gitleaks: %w", err)
	}
	if len(allowList) > 0 {
		if err := applyAllowList(&detector.Config, allowList); err != nil {
			return nil, err
		}
	}

	leaks := detector.DetectString(content)
	findings := make([]Finding, 0, len(leaks))
	for _, f := range leaks {
		findings = append(findings, Finding{
			RuleID:      f.RuleID,
			Description: f.Description,
			Severity:    SeverityHigh,
			Line:        f.StartLine,
			Source:      SourceGitleaks,
		})
	}
	return findings, nil
}

func applyAllowList(cfg *gitleaksConfig.Config, patterns []string) error {
	allow := &gitleaksConfig.Allowlist{Description: "launchpad allow list"}
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("allow list pattern %q: %w", pattern, err)
		}
		allow.Regexes = append(allow.Regexes, (*gitleaksRegexp.Regexp)(re))
	}
	allow.StopWords = append(allow.StopWords, patterns...)
	cfg.Allowlists = append(cfg.Allowlists, allow)
	return nil
}
