// Package temporalci runs validations as Temporal workflows. The run id is
// the workflow id.
package temporalci

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/launchpad/internal/ci"
	"github.com/fyrsmithlabs/launchpad/internal/logging"
	"github.com/fyrsmithlabs/launchpad/internal/validation"
	"github.com/fyrsmithlabs/launchpad/internal/workflows"
)

// WorkflowClient is the subset of client.Client the provider uses.
type WorkflowClient interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
	DescribeWorkflowExecution(ctx context.Context, workflowID, runID string) (*workflowservice.DescribeWorkflowExecutionResponse, error)
	GetWorkflow(ctx context.Context, workflowID, runID string) client.WorkflowRun
}

var _ WorkflowClient = (client.Client)(nil)

// Options configures the provider.
type Options struct {
	// TaskQueue is the validation task queue (default: launchpad-validation)
	TaskQueue string `koanf:"task_queue"`

	// WorkflowIDPrefix prefixes workflow ids (default: launchpad-validate)
	WorkflowIDPrefix string `koanf:"workflow_id_prefix"`
}

// Provider is a ci.Provider backed by Temporal.
type Provider struct {
	client WorkflowClient
	opts   Options
	logger *logging.Logger
}

var _ ci.Provider = (*Provider)(nil)

// New creates a provider. logger may be nil.
func New(c WorkflowClient, opts Options, logger *logging.Logger) *Provider {
	if opts.TaskQueue == "" {
		opts.TaskQueue = workflows.ValidationTaskQueue
	}
	if opts.WorkflowIDPrefix == "" {
		opts.WorkflowIDPrefix = "launchpad-validate"
	}
	return &Provider{client: c, opts: opts, logger: logger}
}

// Kind implements ci.Provider.
func (p *Provider) Kind() ci.Kind { return ci.KindTemporal }

// Trigger starts ArtifactValidationWorkflow for the request.
func (p *Provider) Trigger(ctx context.Context, req ci.Request) (ci.RunID, error) {
	input := workflows.ValidationInput{
		Repository: req.Repository.FullName(),
		Ref:        req.Ref,
		Bundle:     req.Bundle,
	}
	if err := input.Validate(); err != nil {
		return "", err
	}

	opts := client.StartWorkflowOptions{
		ID:        p.opts.WorkflowIDPrefix + "-" + uuid.NewString(),
		TaskQueue: p.opts.TaskQueue,
	}
	run, err := p.client.ExecuteWorkflow(ctx, opts, workflows.ArtifactValidationWorkflow, input)
	if err != nil {
		return "", fmt.Errorf("temporalci: start workflow: %w", err)
	}
	if p.logger != nil {
		p.logger.Info(ctx, "validation workflow started",
			zap.String("workflow_id", run.GetID()),
			zap.String("run_id", run.GetRunID()),
			zap.String("task_queue", p.opts.TaskQueue))
	}
	return ci.RunID(run.GetID()), nil
}

// Status describes the workflow execution. A completed workflow's report is
// fetched from its result.
func (p *Provider) Status(ctx context.Context, id ci.RunID) (ci.RunStatus, error) {
	resp, err := p.client.DescribeWorkflowExecution(ctx, string(id), "")
	if err != nil {
		return ci.RunStatus{}, fmt.Errorf("temporalci: describe %s: %w", id, err)
	}

	st := ci.RunStatus{ID: id}
	switch resp.GetWorkflowExecutionInfo().GetStatus() {
	case enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING, enumspb.WORKFLOW_EXECUTION_STATUS_CONTINUED_AS_NEW:
		st.Status = ci.StatusRunning
	case enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED:
		report, err := p.result(ctx, id)
		if err != nil {
			return ci.RunStatus{}, err
		}
		st.Status = ci.StatusCompleted
		st.Report = report
		st.Message = report.Summary()
	case enumspb.WORKFLOW_EXECUTION_STATUS_CANCELED:
		st.Status = ci.StatusCancelled
	case enumspb.WORKFLOW_EXECUTION_STATUS_FAILED,
		enumspb.WORKFLOW_EXECUTION_STATUS_TERMINATED,
		enumspb.WORKFLOW_EXECUTION_STATUS_TIMED_OUT:
		st.Status = ci.StatusFailed
		st.Message = resp.GetWorkflowExecutionInfo().GetStatus().String()
	default:
		st.Status = ci.StatusQueued
	}
	return st, nil
}

func (p *Provider) result(ctx context.Context, id ci.RunID) (*validation.Report, error) {
	run := p.client.GetWorkflow(ctx, string(id), "")
	if run == nil {
		return nil, errors.New("temporalci: workflow run not found")
	}
	var report validation.Report
	if err := run.Get(ctx, &report); err != nil {
		return nil, fmt.Errorf("temporalci: result of %s: %w", id, err)
	}
	return &report, nil
}
