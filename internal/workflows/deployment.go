package workflows

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/fyrsmithlabs/launchpad/internal/orchestrator"
	"github.com/fyrsmithlabs/launchpad/internal/pipeline"
	"github.com/fyrsmithlabs/launchpad/internal/sanitize"
)

// DeploymentTaskQueue is the default task queue for deployment workflows.
const DeploymentTaskQueue = "launchpad-deploy"

// DefaultDeploymentTimeout bounds one pipeline run on a worker.
const DefaultDeploymentTimeout = time.Hour

// DeploymentInput configures the deployment workflow.
type DeploymentInput struct {
	Input pipeline.Input

	// Timeout is the activity start-to-close timeout (default: 1h)
	Timeout time.Duration
}

// Validate checks the pipeline input.
func (in *DeploymentInput) Validate() error {
	if err := in.Input.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// DeploymentWorkflowID returns a unique workflow id for a template.
func DeploymentWorkflowID(template string) string {
	return fmt.Sprintf("launchpad-deploy-%s-%s", sanitize.RepositoryName(template), uuid.NewString()[:8])
}

// DeploymentWorkflow runs the whole pipeline as a single activity.
//
// The orchestrator owns retries, recovery and compensation, so the activity
// runs at most once. A failed run is a normal result carrying its Failure;
// the workflow only errors when the pipeline could not be executed at all.
func DeploymentWorkflow(ctx workflow.Context, input DeploymentInput) (*orchestrator.Result, error) {
	logger := workflow.GetLogger(ctx)
	if err := input.Validate(); err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), errTypeInvalidInput, err)
	}
	timeout := input.Timeout
	if timeout <= 0 {
		timeout = DefaultDeploymentTimeout
	}
	logger.Info("Starting deployment",
		"template", input.Input.Name(),
		"owner", input.Input.Owner(),
		"provider", input.Input.Provider)

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	})

	var a *Activities
	var result orchestrator.Result
	if err := workflow.ExecuteActivity(ctx, a.RunPipeline, input.Input).Get(ctx, &result); err != nil {
		logger.Error("Deployment activity failed", "error", err)
		return nil, err
	}

	logger.Info("Deployment finished",
		"operation_id", result.OperationID,
		"status", result.Status,
		"state", result.State)
	return &result, nil
}

// RunPipeline executes one orchestrator run.
func (a *Activities) RunPipeline(ctx context.Context, input pipeline.Input) (*orchestrator.Result, error) {
	start := time.Now()
	if a == nil || a.Orchestrator == nil {
		return nil, fmt.Errorf("run pipeline: no orchestrator configured")
	}

	info := activity.GetInfo(ctx)
	activity.GetLogger(ctx).Info("Running pipeline",
		"workflow_id", info.WorkflowExecution.ID,
		"template", input.Name())

	res, err := a.Orchestrator.Run(ctx, input)
	recordActivity(ctx, "run_pipeline", start, err)
	if res != nil && res.OperationID == "" && err != nil {
		// Rejected before the run started: nothing to report but the error.
		return nil, toApplicationError("run pipeline", err)
	}
	return res, nil
}
