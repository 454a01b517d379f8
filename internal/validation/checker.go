package validation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/launchpad/internal/artifact"
	"github.com/fyrsmithlabs/launchpad/internal/secrets"
)

// DefaultQualityThreshold is the minimum passing quality score.
const DefaultQualityThreshold = 70

// Quality score weights.
const (
	scoreReadme      = 40
	scoreDescription = 30
	scoreParamDocs   = 30

	minDescriptionLength = 20
)

// Options configures a Checker.
type Options struct {
	// TemplateFile is the template definition path (default: template.yaml)
	TemplateFile string `koanf:"template_file"`

	// QualityThreshold is the passing quality score (default: 70)
	QualityThreshold int `koanf:"quality_threshold"`
}

// Checker validates artifact bundles.
type Checker struct {
	scanner *secrets.Scanner
	opts    Options
}

// NewChecker creates a Checker. A nil scanner skips the security scan.
func NewChecker(scanner *secrets.Scanner, opts Options) *Checker {
	if opts.TemplateFile == "" {
		opts.TemplateFile = artifact.DefaultTemplateFile
	}
	if opts.QualityThreshold <= 0 {
		opts.QualityThreshold = DefaultQualityThreshold
	}
	return &Checker{scanner: scanner, opts: opts}
}

// Check runs every check against the bundle and aggregates the verdict.
// Problems in the bundle are reported in the Report; an error is returned
// only if the checks themselves could not run.
func (c *Checker) Check(ctx context.Context, bundle *artifact.Bundle) (*Report, error) {
	if bundle == nil {
		return nil, errors.New("validation: nil bundle")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &Report{Bundle: bundle.Name}
	report.Checks = append(report.Checks, c.checkSyntax(bundle))

	tmpl, tmplErr := c.template(bundle)
	report.Checks = append(report.Checks,
		checkParameters(tmpl, tmplErr),
		checkSteps(tmpl, tmplErr),
	)

	security, err := c.scan(bundle)
	if err != nil {
		return nil, err
	}
	report.Security = security
	report.Quality = c.quality(bundle, tmpl)
	report.Verdict = Aggregate(report.Checks, report.Security, report.Quality)
	return report, nil
}

func (c *Checker) template(bundle *artifact.Bundle) (*artifact.Template, error) {
	f, ok := bundle.File(c.opts.TemplateFile)
	if !ok {
		return nil, fmt.Errorf("%s not found", c.opts.TemplateFile)
	}
	tmpl, err := artifact.ParseTemplate(f.Content)
	if err != nil {
		return nil, fmt.Errorf("%s is unreadable", c.opts.TemplateFile)
	}
	return tmpl, nil
}

func (c *Checker) checkSyntax(bundle *artifact.Bundle) Check {
	check := Check{Name: CheckSyntax, Passed: true}
	for _, p := range bundle.Paths() {
		f, _ := bundle.File(p)
		var err error
		switch strings.ToLower(path.Ext(p)) {
		case ".yaml", ".yml":
			err = parseYAML(f.Content)
		case ".json":
			if !json.Valid(f.Content) {
				err = errors.New("invalid JSON")
			}
		default:
			continue
		}
		if err != nil {
			check.Passed = false
			check.Messages = append(check.Messages, fmt.Sprintf("%s: %v", p, err))
		}
	}
	return check
}

// parseYAML decodes every document in data.
func parseYAML(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var doc any
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func checkParameters(tmpl *artifact.Template, tmplErr error) Check {
	check := Check{Name: CheckParameters, Passed: true}
	if tmplErr != nil {
		return Check{Name: CheckParameters, Messages: []string{tmplErr.Error()}}
	}
	seen := make(map[string]bool, len(tmpl.Parameters))
	for i, p := range tmpl.Parameters {
		switch {
		case p.Name == "":
			check.Messages = append(check.Messages, fmt.Sprintf("parameter %d has no name", i))
		case seen[p.Name]:
			check.Messages = append(check.Messages, fmt.Sprintf("parameter %q is declared twice", p.Name))
		}
		seen[p.Name] = true
		if !artifact.ParameterTypes[p.Type] {
			check.Messages = append(check.Messages, fmt.Sprintf("parameter %q has unsupported type %q", p.Name, p.Type))
		}
	}
	check.Passed = len(check.Messages) == 0
	return check
}

func checkSteps(tmpl *artifact.Template, tmplErr error) Check {
	check := Check{Name: CheckSteps, Passed: true}
	if tmplErr != nil {
		return Check{Name: CheckSteps, Messages: []string{tmplErr.Error()}}
	}
	if len(tmpl.Steps) == 0 {
		return Check{Name: CheckSteps, Messages: []string{"template declares no steps"}}
	}
	seen := make(map[string]bool, len(tmpl.Steps))
	for i, s := range tmpl.Steps {
		switch {
		case s.ID == "":
			check.Messages = append(check.Messages, fmt.Sprintf("step %d has no id", i))
		case seen[s.ID]:
			check.Messages = append(check.Messages, fmt.Sprintf("step %q is declared twice", s.ID))
		}
		seen[s.ID] = true
		if s.Action == "" {
			check.Messages = append(check.Messages, fmt.Sprintf("step %d has no action", i))
		}
	}
	check.Passed = len(check.Messages) == 0
	return check
}

func (c *Checker) scan(bundle *artifact.Bundle) (SecuritySummary, error) {
	summary := SecuritySummary{Findings: []Finding{}}
	if c.scanner == nil {
		return summary, nil
	}
	report, err := c.scanner.ScanFiles(bundle.Contents())
	if err != nil {
		return SecuritySummary{}, fmt.Errorf("validation: security scan: %w", err)
	}
	summary.FilesScanned = report.FilesScanned
	for _, f := range report.Findings {
		summary.Findings = append(summary.Findings, Finding{
			Path:     f.Path,
			Rule:     f.RuleID,
			Message:  f.Description,
			Line:     f.Line,
			Severity: severityOf(f),
		})
	}
	return summary, nil
}

func severityOf(f secrets.Finding) Severity {
	if f.Source == secrets.SourceGitleaks || f.Severity == secrets.SeverityHigh {
		return SeverityError
	}
	return SeverityWarn
}

func (c *Checker) quality(bundle *artifact.Bundle, tmpl *artifact.Template) QualityGate {
	gate := QualityGate{Threshold: c.opts.QualityThreshold}

	if _, ok := bundle.File(artifact.ReadmeFile); ok {
		gate.Score += scoreReadme
	} else {
		gate.Missing = append(gate.Missing, "README.md")
	}

	desc := bundle.Description
	if desc == "" && tmpl != nil {
		desc = tmpl.Description
	}
	if len(strings.TrimSpace(desc)) >= minDescriptionLength {
		gate.Score += scoreDescription
	} else {
		gate.Missing = append(gate.Missing, "description")
	}

	documented := tmpl != nil
	if tmpl != nil {
		for _, p := range tmpl.Parameters {
			if strings.TrimSpace(p.Description) == "" {
				documented = false
				break
			}
		}
	}
	if documented {
		gate.Score += scoreParamDocs
	} else {
		gate.Missing = append(gate.Missing, "parameter descriptions")
	}

	gate.Passed = gate.Score >= gate.Threshold
	return gate
}
