package orchestrator_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/launchpad/internal/compensation"
	"github.com/fyrsmithlabs/launchpad/internal/failure"
	"github.com/fyrsmithlabs/launchpad/internal/orchestrator"
	"github.com/fyrsmithlabs/launchpad/internal/pipeline"
)

// MockGate is a mock implementation of orchestrator.Gate
type MockGate struct {
	mock.Mock
}

func (m *MockGate) Name() string {
	return m.Called().String(0)
}

func (m *MockGate) Check(ctx context.Context, run *pipeline.Run, h pipeline.Handler) error {
	return m.Called(ctx, run, h).Error(0)
}

// MockHandler is a mock implementation of pipeline.Handler
type MockHandler struct {
	mock.Mock
	stage         pipeline.Stage
	prerequisites []pipeline.Stage
}

func (m *MockHandler) Stage() pipeline.Stage { return m.stage }

func (m *MockHandler) Prerequisites() []pipeline.Stage { return m.prerequisites }

func (m *MockHandler) Execute(ctx context.Context, run *pipeline.Run) (pipeline.Outcome, error) {
	args := m.Called(ctx, run)
	return args.Get(0).(pipeline.Outcome), args.Error(1)
}

func TestGate_BlocksStage(t *testing.T) {
	f := newFixture(t)
	o := f.defaultOrchestrator(t)

	freeze := new(MockGate)
	freeze.On("Name").Return("change_freeze")
	freeze.On("Check", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("deploys are frozen"))
	o.RegisterGate(pipeline.StageMerge, freeze)

	res, err := o.Run(context.Background(), bundleInput())
	require.Error(t, err)

	fe, ok := failure.As(err)
	require.True(t, ok)
	assert.Equal(t, failure.KindConfiguration, fe.Kind)
	assert.False(t, fe.Recoverable)
	gate, _ := fe.Detail("gate")
	assert.Equal(t, "change_freeze", gate)

	assert.Equal(t, 0, f.host.Count("MergeReviewRequest"))
	assert.Equal(t,
		[]string{"close_review_request", "revert_commit", "delete_repository"},
		compensationIDs(res.Compensations))
	freeze.AssertNumberOfCalls(t, "Check", 1)
}

func TestGate_ClassifiedErrorPassesThrough(t *testing.T) {
	f := newFixture(t)
	o := f.defaultOrchestrator(t)

	quota := new(MockGate)
	quota.On("Name").Return("quota")
	quota.On("Check", mock.Anything, mock.Anything, mock.Anything).
		Return(failure.New(failure.KindResource, "quota", "check", "deployment quota exhausted", false))
	o.RegisterGate(pipeline.StageDeploy, quota)

	_, err := o.Run(context.Background(), bundleInput())
	require.Error(t, err)
	fe, ok := failure.As(err)
	require.True(t, ok)
	assert.Equal(t, failure.KindResource, fe.Kind)
	assert.Equal(t, "deployment quota exhausted", fe.Message)
	assert.Empty(t, f.target.Undeployed)
}

func TestGate_OpenGateRunsEveryStage(t *testing.T) {
	f := newFixture(t)
	o := f.defaultOrchestrator(t)

	audit := new(MockGate)
	audit.On("Name").Return("audit")
	audit.On("Check", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	o.RegisterGate(pipeline.StageRegister, audit)

	res, err := o.Run(context.Background(), bundleInput())
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StatusSuccess, res.Status)
	audit.AssertNumberOfCalls(t, "Check", 1)
}

func TestPrerequisiteGate_BlocksOutOfOrderStage(t *testing.T) {
	o := orchestrator.New(nil, orchestrator.DefaultOptions(), nil)

	orphan := &MockHandler{stage: pipeline.StageMerge, prerequisites: []pipeline.Stage{pipeline.StageProcessValidation}}
	o.RegisterHandler(orphan)

	_, err := o.Run(context.Background(), bundleInput())
	require.Error(t, err)
	fe, ok := failure.As(err)
	require.True(t, ok)
	assert.Equal(t, failure.KindConfiguration, fe.Kind)
	prereq, _ := fe.Detail("prerequisite")
	assert.Equal(t, string(pipeline.StageProcessValidation), prereq)
	orphan.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestCancellationGate(t *testing.T) {
	h := &MockHandler{stage: pipeline.StageDeploy}
	ctx, cancel := context.WithCancel(context.Background())

	assert.NoError(t, orchestrator.CancellationGate{}.Check(ctx, nil, h))

	cancel()
	err := orchestrator.CancellationGate{}.Check(ctx, nil, h)
	require.Error(t, err)
	fe, ok := failure.As(err)
	require.True(t, ok)
	assert.Equal(t, failure.KindResource, fe.Kind)
	assert.False(t, fe.Recoverable)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_CompensationRunsEachActionOnce(t *testing.T) {
	o := orchestrator.New(nil, orchestrator.DefaultOptions(), nil)

	var order []string
	counts := map[string]int{}
	action := func(id string) *compensation.Action {
		return &compensation.Action{
			ID: id,
			Reverse: func(context.Context) error {
				order = append(order, id)
				counts[id]++
				return nil
			},
		}
	}

	stages := []pipeline.Stage{"alpha", "bravo", "charlie"}
	for _, s := range stages {
		h := &MockHandler{stage: s}
		h.On("Execute", mock.Anything, mock.Anything).
			Return(pipeline.Outcome{Snapshot: string(s), Compensate: action("undo_" + string(s))}, nil).Once()
		o.RegisterHandler(h)
	}
	failing := &MockHandler{stage: "delta"}
	failing.On("Execute", mock.Anything, mock.Anything).
		Return(pipeline.Outcome{}, failure.New(failure.KindGitOps, "test", "delta", "boom", false)).Once()
	o.RegisterHandler(failing)

	res, err := o.Run(context.Background(), bundleInput())
	require.Error(t, err)

	assert.Equal(t, []string{"undo_charlie", "undo_bravo", "undo_alpha"}, order)
	for id, n := range counts {
		assert.Equal(t, 1, n, id)
	}
	assert.Len(t, res.Compensations, 3)
	assert.Equal(t, []string{"alpha", "bravo", "charlie"}, checkpointNames(res))
	failing.AssertExpectations(t)
}

func TestRun_RecoverableErrorWithoutStrategyIsTerminal(t *testing.T) {
	o := orchestrator.New(nil, orchestrator.DefaultOptions(), nil)

	h := &MockHandler{stage: "alpha"}
	h.On("Execute", mock.Anything, mock.Anything).
		Return(pipeline.Outcome{}, failure.New(failure.KindValidation, "test", "alpha", "flaky", true)).Once()
	o.RegisterHandler(h)

	res, err := o.Run(context.Background(), bundleInput())
	require.Error(t, err)
	assert.True(t, failure.IsKind(err, failure.KindValidation))
	assert.Equal(t, orchestrator.StatusFailed, res.Status)
	assert.Empty(t, res.Recoveries)
	h.AssertNumberOfCalls(t, "Execute", 1)
}
