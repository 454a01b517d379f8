package pipeline

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/fyrsmithlabs/launchpad/internal/artifact"
)

// Risk is the review risk class of a change.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// BranchPrefix prefixes review branches.
const BranchPrefix = "launchpad/"

// sensitiveMarkers flag security- or auth-sensitive paths.
var sensitiveMarkers = []string{"security", "auth", "secret", "credential", "rbac", "iam", "permission"}

type sizeClass int

const (
	sizeSmall sizeClass = iota
	sizeMedium
	sizeLarge
)

// Review is the structured description of a review request.
type Review struct {
	Title           string        `json:"title"`
	FilesChanged    int           `json:"files_changed"`
	LinesAdded      int           `json:"lines_added"`
	LinesRemoved    int           `json:"lines_removed"`
	SensitivePaths  []string      `json:"sensitive_paths,omitempty"`
	Risk            Risk          `json:"risk"`
	Reviewers       int           `json:"reviewers"`
	EstimatedReview time.Duration `json:"estimated_review"`
}

// BranchName returns the review branch for a run started at t.
func BranchName(t time.Time) string {
	return BranchPrefix + t.UTC().Format("20060102-150405")
}

// Describe builds the review description for bundle. Every file is new, so
// nothing is removed.
func Describe(bundle *artifact.Bundle) Review {
	r := Review{
		Title:        fmt.Sprintf("Add %s template", bundle.Name),
		FilesChanged: len(bundle.Files),
		LinesAdded:   bundle.LineCount(),
	}
	for _, p := range bundle.Paths() {
		if isSensitive(p) {
			r.SensitivePaths = append(r.SensitivePaths, p)
		}
	}

	size := sizeSmall
	switch lines := r.LinesAdded + r.LinesRemoved; {
	case lines > 1000 || r.FilesChanged > 50:
		size = sizeLarge
	case lines > 200 || r.FilesChanged > 10:
		size = sizeMedium
	}
	sensitive := len(r.SensitivePaths) > 0

	switch {
	case size == sizeLarge || (sensitive && size >= sizeMedium):
		r.Risk = RiskHigh
	case sensitive || size == sizeMedium:
		r.Risk = RiskMedium
	default:
		r.Risk = RiskLow
	}

	factor := 1.0
	switch r.Risk {
	case RiskLow:
		r.Reviewers = 1
	case RiskMedium:
		r.Reviewers = 2
		factor = 1.5
	case RiskHigh:
		r.Reviewers = 3
		factor = 2
	}
	minutes := (10 + float64(r.LinesAdded+r.LinesRemoved)/25) * factor
	r.EstimatedReview = time.Duration(math.Ceil(minutes)) * time.Minute
	return r
}

func isSensitive(path string) bool {
	lower := strings.ToLower(path)
	for _, m := range sensitiveMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// Body renders the review request body as markdown.
func (r Review) Body() string {
	var b strings.Builder
	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Files changed | %d |\n", r.FilesChanged)
	fmt.Fprintf(&b, "| Lines | +%d / -%d |\n", r.LinesAdded, r.LinesRemoved)
	fmt.Fprintf(&b, "| Risk | **%s** |\n", r.Risk)
	fmt.Fprintf(&b, "| Required reviewers | %d |\n", r.Reviewers)
	fmt.Fprintf(&b, "| Estimated review | %s |\n", r.EstimatedReview)
	if len(r.SensitivePaths) > 0 {
		b.WriteString("\n## Sensitive paths\n\n")
		for _, p := range r.SensitivePaths {
			fmt.Fprintf(&b, "- `%s`\n", p)
		}
	}
	if r.Risk == RiskHigh {
		b.WriteString("\n> High-risk change: stakeholders have been notified.\n")
	}
	return b.String()
}
