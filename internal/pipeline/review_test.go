package pipeline

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/launchpad/internal/artifact"
)

func bundleOf(lines int, paths ...string) *artifact.Bundle {
	content := []byte(strings.Repeat("x\n", lines))
	b := &artifact.Bundle{Name: "svc", Owner: "platform"}
	for _, p := range paths {
		b.Files = append(b.Files, artifact.File{Path: p, Content: content})
	}
	return b
}

func numbered(n int, prefix string) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%02d.yaml", prefix, i)
	}
	return out
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name      string
		bundle    *artifact.Bundle
		risk      Risk
		reviewers int
		estimate  time.Duration
		sensitive int
	}{
		{
			name:      "small change",
			bundle:    bundleOf(10, "README.md", "template.yaml"),
			risk:      RiskLow,
			reviewers: 1,
			estimate:  11 * time.Minute,
		},
		{
			name:      "small sensitive change",
			bundle:    bundleOf(10, "README.md", "config/auth.yaml"),
			risk:      RiskMedium,
			reviewers: 2,
			estimate:  17 * time.Minute,
			sensitive: 1,
		},
		{
			name:      "medium by lines",
			bundle:    bundleOf(150, "README.md", "template.yaml"),
			risk:      RiskMedium,
			reviewers: 2,
			estimate:  33 * time.Minute,
		},
		{
			name:      "medium by files",
			bundle:    bundleOf(1, numbered(11, "files/f")...),
			risk:      RiskMedium,
			reviewers: 2,
			estimate:  16 * time.Minute,
		},
		{
			name:      "sensitive medium change",
			bundle:    bundleOf(1, numbered(11, "secrets/s")...),
			risk:      RiskHigh,
			reviewers: 3,
			estimate:  21 * time.Minute,
			sensitive: 11,
		},
		{
			name:      "large by lines",
			bundle:    bundleOf(1001, "template.yaml"),
			risk:      RiskHigh,
			reviewers: 3,
			estimate:  101 * time.Minute,
		},
		{
			name:      "large by files",
			bundle:    bundleOf(1, numbered(51, "files/f")...),
			risk:      RiskHigh,
			reviewers: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Describe(tt.bundle)
			assert.Equal(t, tt.risk, r.Risk)
			assert.Equal(t, tt.reviewers, r.Reviewers)
			assert.Equal(t, len(tt.bundle.Files), r.FilesChanged)
			assert.Zero(t, r.LinesRemoved)
			assert.Len(t, r.SensitivePaths, tt.sensitive)
			if tt.estimate > 0 {
				assert.Equal(t, tt.estimate, r.EstimatedReview)
			}
		})
	}
}

func TestDescribe_Title(t *testing.T) {
	r := Describe(bundleOf(1, "README.md"))
	assert.Equal(t, "Add svc template", r.Title)
	assert.Equal(t, 1, r.LinesAdded)
}

func TestBranchName(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.FixedZone("CET", 3600))
	assert.Equal(t, "launchpad/20260304-040607", BranchName(at))
}

func TestReview_Body(t *testing.T) {
	r := Describe(bundleOf(1, numbered(11, "auth/a")...))
	body := r.Body()
	assert.Contains(t, body, "| Risk | **high** |")
	assert.Contains(t, body, "| Required reviewers | 3 |")
	assert.Contains(t, body, "- `auth/a00.yaml`")
	assert.Contains(t, body, "stakeholders have been notified")

	low := Describe(bundleOf(1, "README.md")).Body()
	assert.NotContains(t, low, "Sensitive paths")
	assert.NotContains(t, low, "stakeholders")
}
