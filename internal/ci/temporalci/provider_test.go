package temporalci

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	enumspb "go.temporal.io/api/enums/v1"
	workflowpb "go.temporal.io/api/workflow/v1"
	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"

	"github.com/fyrsmithlabs/launchpad/internal/artifact"
	"github.com/fyrsmithlabs/launchpad/internal/ci"
	"github.com/fyrsmithlabs/launchpad/internal/validation"
	"github.com/fyrsmithlabs/launchpad/internal/vcs"
	"github.com/fyrsmithlabs/launchpad/internal/workflows"
)

type mockClient struct{ mock.Mock }

func (m *mockClient) ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error) {
	ret := m.Called(options, args[0])
	run, _ := ret.Get(0).(client.WorkflowRun)
	return run, ret.Error(1)
}

func (m *mockClient) DescribeWorkflowExecution(ctx context.Context, workflowID, runID string) (*workflowservice.DescribeWorkflowExecutionResponse, error) {
	ret := m.Called(workflowID)
	resp, _ := ret.Get(0).(*workflowservice.DescribeWorkflowExecutionResponse)
	return resp, ret.Error(1)
}

func (m *mockClient) GetWorkflow(ctx context.Context, workflowID, runID string) client.WorkflowRun {
	run, _ := m.Called(workflowID).Get(0).(client.WorkflowRun)
	return run
}

// fakeRun implements the parts of client.WorkflowRun the provider calls.
type fakeRun struct {
	client.WorkflowRun
	id     string
	report *validation.Report
	err    error
}

func (r *fakeRun) GetID() string    { return r.id }
func (r *fakeRun) GetRunID() string { return "run-" + r.id }

func (r *fakeRun) Get(_ context.Context, valuePtr interface{}) error {
	if r.err != nil {
		return r.err
	}
	*valuePtr.(*validation.Report) = *r.report
	return nil
}

func described(status enumspb.WorkflowExecutionStatus) *workflowservice.DescribeWorkflowExecutionResponse {
	return &workflowservice.DescribeWorkflowExecutionResponse{
		WorkflowExecutionInfo: &workflowpb.WorkflowExecutionInfo{Status: status},
	}
}

func request() ci.Request {
	return ci.Request{
		Repository: vcs.Repository{Owner: "platform", Name: "payments"},
		Ref:        "launchpad/20260101-000000",
		Bundle:     artifact.Minimal(artifact.Specification{Name: "payments", Owner: "platform"}),
	}
}

func TestProvider_Trigger(t *testing.T) {
	c := &mockClient{}
	c.On("ExecuteWorkflow", mock.MatchedBy(func(o client.StartWorkflowOptions) bool {
		return o.TaskQueue == workflows.ValidationTaskQueue && len(o.ID) > len("launchpad-validate-")
	}), mock.MatchedBy(func(in workflows.ValidationInput) bool {
		return in.Repository == "platform/payments" && in.Ref == "launchpad/20260101-000000"
	})).Return(&fakeRun{id: "launchpad-validate-1"}, nil)

	p := New(c, Options{}, nil)
	assert.Equal(t, ci.KindTemporal, p.Kind())

	id, err := p.Trigger(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, ci.RunID("launchpad-validate-1"), id)
	c.AssertExpectations(t)
}

func TestProvider_TriggerErrors(t *testing.T) {
	c := &mockClient{}
	c.On("ExecuteWorkflow", mock.Anything, mock.Anything).Return(nil, errors.New("unavailable"))
	p := New(c, Options{TaskQueue: "q"}, nil)

	_, err := p.Trigger(context.Background(), request())
	assert.ErrorContains(t, err, "unavailable")

	_, err = p.Trigger(context.Background(), ci.Request{Repository: vcs.Repository{Owner: "o", Name: "n"}})
	assert.ErrorIs(t, err, workflows.ErrInvalidInput)
}

func TestProvider_Status(t *testing.T) {
	report := &validation.Report{Bundle: "payments", Verdict: validation.VerdictWarning}

	tests := []struct {
		status enumspb.WorkflowExecutionStatus
		want   ci.Status
	}{
		{enumspb.WORKFLOW_EXECUTION_STATUS_UNSPECIFIED, ci.StatusQueued},
		{enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING, ci.StatusRunning},
		{enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED, ci.StatusCompleted},
		{enumspb.WORKFLOW_EXECUTION_STATUS_FAILED, ci.StatusFailed},
		{enumspb.WORKFLOW_EXECUTION_STATUS_TIMED_OUT, ci.StatusFailed},
		{enumspb.WORKFLOW_EXECUTION_STATUS_TERMINATED, ci.StatusFailed},
		{enumspb.WORKFLOW_EXECUTION_STATUS_CANCELED, ci.StatusCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			c := &mockClient{}
			c.On("DescribeWorkflowExecution", "wf-1").Return(described(tt.status), nil)
			c.On("GetWorkflow", "wf-1").Return(&fakeRun{id: "wf-1", report: report})

			st, err := New(c, Options{}, nil).Status(context.Background(), "wf-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, st.Status)
			assert.Equal(t, ci.RunID("wf-1"), st.ID)
			if tt.want == ci.StatusCompleted {
				require.NotNil(t, st.Report)
				assert.Equal(t, validation.VerdictWarning, st.Report.Verdict)
			} else {
				assert.Nil(t, st.Report)
			}
		})
	}
}

func TestProvider_StatusErrors(t *testing.T) {
	c := &mockClient{}
	c.On("DescribeWorkflowExecution", "missing").Return(nil, errors.New("not found"))
	c.On("DescribeWorkflowExecution", "broken").Return(described(enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED), nil)
	c.On("GetWorkflow", "broken").Return(&fakeRun{id: "broken", err: errors.New("decode")})
	p := New(c, Options{}, nil)

	_, err := p.Status(context.Background(), "missing")
	assert.ErrorContains(t, err, "not found")

	_, err = p.Status(context.Background(), "broken")
	assert.ErrorContains(t, err, "decode")
}
