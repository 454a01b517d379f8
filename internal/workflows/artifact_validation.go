package workflows

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/fyrsmithlabs/launchpad/internal/artifact"
	"github.com/fyrsmithlabs/launchpad/internal/validation"
)

// ValidationTaskQueue is the default task queue for validation workflows.
const ValidationTaskQueue = "launchpad-validation"

// ValidationInput configures the artifact validation workflow.
type ValidationInput struct {
	Repository string           // Full repository name (owner/name)
	Ref        string           // Branch under review
	Bundle     *artifact.Bundle // Files to validate
}

// Validate checks that all required fields are set.
func (in *ValidationInput) Validate() error {
	if in.Repository == "" {
		return fmt.Errorf("%w: Repository is required", ErrInvalidInput)
	}
	if in.Bundle == nil || len(in.Bundle.Files) == 0 {
		return fmt.Errorf("%w: Bundle is required", ErrInvalidInput)
	}
	return nil
}

// ArtifactValidationWorkflow validates a bundle on a worker and returns the
// aggregated report.
//
// Validation is deterministic for a given bundle, so the activity is retried
// only for worker loss (up to 3 attempts). A failed verdict is a normal
// result, not a workflow error.
func ArtifactValidationWorkflow(ctx workflow.Context, input ValidationInput) (*validation.Report, error) {
	logger := workflow.GetLogger(ctx)
	if err := input.Validate(); err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), errTypeInvalidInput, err)
	}
	logger.Info("Starting artifact validation",
		"repository", input.Repository,
		"ref", input.Ref,
		"files", len(input.Bundle.Files))

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	})

	var a *Activities
	var report validation.Report
	if err := workflow.ExecuteActivity(ctx, a.ValidateBundle, input).Get(ctx, &report); err != nil {
		logger.Error("Artifact validation failed", "error", err)
		return nil, err
	}

	logger.Info("Artifact validation complete",
		"verdict", report.Verdict,
		"summary", report.Summary())
	return &report, nil
}

// ValidateBundle runs the checker against the bundle.
func (a *Activities) ValidateBundle(ctx context.Context, input ValidationInput) (*validation.Report, error) {
	start := time.Now()
	if a == nil || a.Checker == nil {
		return nil, fmt.Errorf("validate bundle: no checker configured")
	}
	report, err := a.Checker.Check(ctx, input.Bundle)
	recordActivity(ctx, "validate_bundle", start, err)
	if err != nil {
		return nil, toApplicationError("validate bundle", err)
	}
	recordVerdict(ctx, string(report.Verdict))
	return report, nil
}
