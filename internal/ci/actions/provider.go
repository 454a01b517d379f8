// Package actions runs validations as GitHub Actions workflow runs.
//
// Trigger dispatches the validation workflow on the review branch and finds
// the run it created. Status maps the run to a ci.Status and, once the run
// completed, builds a report from the check runs of its check suite: one
// check per job, with the "security" and "quality" jobs mapped to the
// security summary and the quality gate.
package actions

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/launchpad/internal/ci"
	"github.com/fyrsmithlabs/launchpad/internal/logging"
	"github.com/fyrsmithlabs/launchpad/internal/validation"
	"github.com/fyrsmithlabs/launchpad/internal/vcs/githubhost"
)

// DefaultWorkflowFile is the validation workflow file name.
const DefaultWorkflowFile = "launchpad-validate.yml"

// Job names with special meaning in the report.
const (
	JobSecurity = "security"
	JobQuality  = "quality"
)

// ErrRunNotFound is returned when a dispatched run never appears.
var ErrRunNotFound = errors.New("actions: dispatched workflow run not found")

// Options configures the provider.
type Options struct {
	// WorkflowFile is the workflow file name under .github/workflows
	WorkflowFile string `koanf:"workflow_file"`

	// DiscoveryAttempts bounds how often runs are listed after a dispatch (default: 10)
	DiscoveryAttempts int `koanf:"discovery_attempts"`

	// DiscoveryWait is the pause between listings (default: 2s)
	DiscoveryWait time.Duration `koanf:"discovery_wait"`
}

// Provider is a ci.Provider backed by GitHub Actions.
type Provider struct {
	host   *githubhost.Host
	opts   Options
	logger *logging.Logger
	now    func() time.Time
}

var _ ci.Provider = (*Provider)(nil)

// New creates a provider that shares host's client, rate limiter and retry
// policy. logger may be nil.
func New(host *githubhost.Host, opts Options, logger *logging.Logger) *Provider {
	if opts.WorkflowFile == "" {
		opts.WorkflowFile = DefaultWorkflowFile
	}
	if opts.DiscoveryAttempts <= 0 {
		opts.DiscoveryAttempts = 10
	}
	if opts.DiscoveryWait <= 0 {
		opts.DiscoveryWait = 2 * time.Second
	}
	return &Provider{host: host, opts: opts, logger: logger, now: time.Now}
}

// Kind implements ci.Provider.
func (p *Provider) Kind() ci.Kind { return ci.KindGitHubActions }

// Trigger dispatches the workflow on req.Ref.
func (p *Provider) Trigger(ctx context.Context, req ci.Request) (ci.RunID, error) {
	owner, repo := req.Repository.Owner, req.Repository.Name
	ref := req.Ref
	if ref == "" {
		ref = req.Repository.DefaultBranch
	}
	dispatched := p.now().Add(-time.Minute)

	client := p.host.Client()
	err := p.host.Do(ctx, "dispatch_workflow", func() (*github.Response, error) {
		return client.Actions.CreateWorkflowDispatchEventByFileName(ctx, owner, repo, p.opts.WorkflowFile,
			github.CreateWorkflowDispatchEventRequest{Ref: ref})
	})
	if err != nil {
		return "", err
	}

	for attempt := 0; attempt < p.opts.DiscoveryAttempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, p.opts.DiscoveryWait); err != nil {
				return "", err
			}
		}
		var runs *github.WorkflowRuns
		err := p.host.Do(ctx, "list_workflow_runs", func() (*github.Response, error) {
			var resp *github.Response
			var err error
			runs, resp, err = client.Actions.ListWorkflowRunsByFileName(ctx, owner, repo, p.opts.WorkflowFile,
				&github.ListWorkflowRunsOptions{
					Branch:      ref,
					Event:       "workflow_dispatch",
					ListOptions: github.ListOptions{PerPage: 5},
				})
			return resp, err
		})
		if err != nil {
			return "", err
		}
		for _, run := range runs.WorkflowRuns {
			if run.GetCreatedAt().After(dispatched) {
				id := formatRunID(owner, repo, run.GetID())
				if p.logger != nil {
					p.logger.Info(ctx, "validation workflow dispatched",
						zap.String("run_id", string(id)), zap.String("ref", ref))
				}
				return id, nil
			}
		}
	}
	return "", ErrRunNotFound
}

// Status reads the workflow run.
func (p *Provider) Status(ctx context.Context, id ci.RunID) (ci.RunStatus, error) {
	owner, repo, runID, err := parseRunID(id)
	if err != nil {
		return ci.RunStatus{}, err
	}

	client := p.host.Client()
	var run *github.WorkflowRun
	err = p.host.Do(ctx, "get_workflow_run", func() (*github.Response, error) {
		var resp *github.Response
		var err error
		run, resp, err = client.Actions.GetWorkflowRunByID(ctx, owner, repo, runID)
		return resp, err
	})
	if err != nil {
		return ci.RunStatus{}, err
	}

	st := ci.RunStatus{ID: id}
	switch run.GetStatus() {
	case "in_progress":
		st.Status = ci.StatusRunning
	case "completed":
		switch run.GetConclusion() {
		case "cancelled":
			st.Status = ci.StatusCancelled
		case "timed_out", "startup_failure", "stale":
			st.Status = ci.StatusFailed
			st.Message = run.GetConclusion()
		default:
			report, err := p.report(ctx, owner, repo, run)
			if err != nil {
				return ci.RunStatus{}, err
			}
			st.Status = ci.StatusCompleted
			st.Report = report
			st.Message = report.Summary()
		}
	default:
		st.Status = ci.StatusQueued
	}
	return st, nil
}

func (p *Provider) report(ctx context.Context, owner, repo string, run *github.WorkflowRun) (*validation.Report, error) {
	client := p.host.Client()
	var results *github.ListCheckRunsResults
	err := p.host.Do(ctx, "list_check_runs", func() (*github.Response, error) {
		var resp *github.Response
		var err error
		results, resp, err = client.Checks.ListCheckRunsCheckSuite(ctx, owner, repo, run.GetCheckSuiteID(),
			&github.ListCheckRunsOptions{ListOptions: github.ListOptions{PerPage: 100}})
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	return reportFromCheckRuns(repo, results.CheckRuns), nil
}

// reportFromCheckRuns maps job conclusions to a report. Neutral conclusions
// become warn findings.
func reportFromCheckRuns(bundle string, runs []*github.CheckRun) *validation.Report {
	r := &validation.Report{
		Bundle:   bundle,
		Security: validation.SecuritySummary{Findings: []validation.Finding{}},
		Quality:  validation.QualityGate{Passed: true},
	}
	for _, cr := range runs {
		name := cr.GetName()
		conclusion := cr.GetConclusion()
		passed := conclusion == "success" || conclusion == "neutral" || conclusion == "skipped"
		if conclusion == "neutral" {
			r.Security.Findings = append(r.Security.Findings, validation.Finding{
				Rule:     name,
				Message:  fmt.Sprintf("%s completed with warnings", name),
				Severity: validation.SeverityWarn,
			})
		}

		switch name {
		case JobSecurity:
			if !passed {
				r.Security.Findings = append(r.Security.Findings, validation.Finding{
					Rule:     name,
					Message:  cr.GetOutput().GetTitle(),
					Severity: validation.SeverityError,
				})
			}
		case JobQuality:
			r.Quality.Passed = passed
		default:
			check := validation.Check{Name: name, Passed: passed}
			if !passed {
				check.Messages = []string{fmt.Sprintf("job concluded %s", conclusion)}
			}
			r.Checks = append(r.Checks, check)
		}
	}
	r.Verdict = validation.Aggregate(r.Checks, r.Security, r.Quality)
	return r
}

func formatRunID(owner, repo string, id int64) ci.RunID {
	return ci.RunID(fmt.Sprintf("%s/%s/%d", owner, repo, id))
}

func parseRunID(id ci.RunID) (owner, repo string, runID int64, err error) {
	parts := strings.Split(string(id), "/")
	if len(parts) != 3 {
		return "", "", 0, fmt.Errorf("actions: malformed run id %q", id)
	}
	runID, err = strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return "", "", 0, fmt.Errorf("actions: malformed run id %q: %w", id, err)
	}
	return parts[0], parts[1], runID, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
