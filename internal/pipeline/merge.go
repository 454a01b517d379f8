package pipeline

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/launchpad/internal/failure"
	"github.com/fyrsmithlabs/launchpad/internal/secrets"
	"github.com/fyrsmithlabs/launchpad/internal/validation"
)

// Merge preconditions, checked in this order.
const (
	PreconditionSourceBranch = "source_branch"
	PreconditionTargetBranch = "target_branch"
	PreconditionVerdict      = "verdict"
	PreconditionConflicts    = "conflicts"
	PreconditionSecurity     = "security"
)

// DetailPrecondition names the merge precondition that failed.
const DetailPrecondition = "precondition"

// checkMerge re-validates the review request right before merging. Missing
// branches cannot be fixed by a re-run and are not recoverable; a failed
// verdict, conflicts or a failed security check may pass next time.
func (s *Stages) checkMerge(ctx context.Context, run *Run) error {
	repo, rr := run.Repository, run.ReviewRequest
	unmet := func(precondition, msg string, recoverable bool) error {
		return failure.New(failure.KindGitOps, component, string(StageMerge), msg, recoverable).
			WithDetail(DetailPrecondition, precondition)
	}

	for _, b := range []struct {
		precondition, name string
	}{
		{PreconditionSourceBranch, rr.SourceBranch},
		{PreconditionTargetBranch, rr.TargetBranch},
	} {
		ok, err := s.deps.Host.BranchExists(ctx, repo, b.name)
		if err != nil {
			return classify(StageMerge, err, failure.KindGitOps, false).WithDetail(DetailPrecondition, b.precondition)
		}
		if !ok {
			return unmet(b.precondition, fmt.Sprintf("branch %q no longer exists", b.name), false)
		}
	}

	if run.Report == nil || run.Report.Verdict == validation.VerdictFailed {
		return unmet(PreconditionVerdict, "latest validation verdict is failed", true)
	}

	mergeable, err := s.deps.Host.Mergeable(ctx, repo, rr)
	if err != nil {
		return classify(StageMerge, err, failure.KindGitOps, true).WithDetail(DetailPrecondition, PreconditionConflicts)
	}
	if !mergeable {
		return unmet(PreconditionConflicts, fmt.Sprintf("review request %d has merge conflicts", rr.Number), true)
	}

	if s.deps.Scanner != nil && s.deps.Scanner.Enabled() {
		report, err := s.deps.Scanner.ScanFiles(run.Bundle.Contents())
		if err != nil {
			return classify(StageMerge, err, failure.KindGitOps, true).WithDetail(DetailPrecondition, PreconditionSecurity)
		}
		if blocking := blockingFindings(report); blocking > 0 {
			return unmet(PreconditionSecurity, fmt.Sprintf("final security check found %d blocking secret(s)", blocking), true)
		}
	}
	return nil
}

// blockingFindings counts high-severity and gitleaks findings.
func blockingFindings(r *secrets.Report) int {
	n := 0
	for _, f := range r.Findings {
		if f.Severity == secrets.SeverityHigh || f.Source == secrets.SourceGitleaks {
			n++
		}
	}
	return n
}
