package orchestrator_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/launchpad/internal/artifact"
	"github.com/fyrsmithlabs/launchpad/internal/ci"
	"github.com/fyrsmithlabs/launchpad/internal/compensation"
	"github.com/fyrsmithlabs/launchpad/internal/failure"
	"github.com/fyrsmithlabs/launchpad/internal/logging"
	"github.com/fyrsmithlabs/launchpad/internal/notify"
	"github.com/fyrsmithlabs/launchpad/internal/operation"
	"github.com/fyrsmithlabs/launchpad/internal/orchestrator"
	"github.com/fyrsmithlabs/launchpad/internal/pipeline"
	"github.com/fyrsmithlabs/launchpad/internal/pipeline/pipelinetest"
	"github.com/fyrsmithlabs/launchpad/internal/poller"
	"github.com/fyrsmithlabs/launchpad/internal/recovery"
	"github.com/fyrsmithlabs/launchpad/internal/telemetry"
	"github.com/fyrsmithlabs/launchpad/internal/vcs"
)

type fixture struct {
	host     *pipelinetest.Host
	provider *pipelinetest.Provider
	target   *pipelinetest.Target
	catalog  *pipelinetest.Catalog
	notes    *pipelinetest.Notifier
	stages   *pipeline.Stages
}

func newFixture(t *testing.T, mutate ...func(*pipeline.Deps)) *fixture {
	t.Helper()
	f := &fixture{
		host:     pipelinetest.NewHost(),
		provider: pipelinetest.PassingProvider(ci.KindLocal, pipelinetest.PassingReport("payments-service")),
		target:   &pipelinetest.Target{VerifyResult: true},
		catalog:  &pipelinetest.Catalog{},
		notes:    &pipelinetest.Notifier{},
	}
	set, err := ci.NewSet(f.provider)
	require.NoError(t, err)

	deps := pipeline.Deps{
		Host:      f.host,
		Providers: set,
		Poller:    poller.New(poller.Options{Interval: time.Millisecond, Timeout: time.Second}),
		Target:    f.target,
		Catalog:   f.catalog,
		Notifier:  f.notes,
		Now: func() time.Time {
			return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
		},
	}
	for _, m := range mutate {
		m(&deps)
	}
	f.stages, err = pipeline.NewStages(deps)
	require.NoError(t, err)
	return f
}

// instantRetry retries network failures without waiting.
func instantRetry(max int) *recovery.NetworkRetry {
	return &recovery.NetworkRetry{
		MaxRetries: max,
		Sleep:      func(context.Context, time.Duration) error { return nil },
	}
}

func (f *fixture) orchestrator(t *testing.T, opts orchestrator.Options, strategies ...recovery.Strategy) *orchestrator.Orchestrator {
	t.Helper()
	reg, err := recovery.NewRegistry(strategies...)
	require.NoError(t, err)
	return orchestrator.NewForStages(f.stages, reg, opts, nil)
}

func (f *fixture) defaultOrchestrator(t *testing.T) *orchestrator.Orchestrator {
	return f.orchestrator(t, orchestrator.DefaultOptions(), instantRetry(3), pipeline.MinimalArtifactStrategy())
}

func bundleInput() pipeline.Input {
	return pipeline.Input{Bundle: pipelinetest.Bundle(), Provider: string(ci.KindLocal)}
}

func compensationIDs(outcomes []compensation.Outcome) []string {
	ids := make([]string, len(outcomes))
	for i, o := range outcomes {
		ids[i] = o.ID
	}
	return ids
}

func checkpointNames(res *orchestrator.Result) []string {
	names := make([]string, len(res.Checkpoints))
	for i, c := range res.Checkpoints {
		names[i] = c.Name
	}
	return names
}

func allStageNames() []string {
	var names []string
	for _, s := range pipeline.AllStages() {
		names = append(names, string(s))
	}
	return names
}

func TestRun_EndToEnd(t *testing.T) {
	f := newFixture(t)
	o := f.defaultOrchestrator(t)

	res, err := o.Run(context.Background(), bundleInput())
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, orchestrator.StatusSuccess, res.Status)
	assert.False(t, res.Degraded())
	assert.NotEmpty(t, res.OperationID)
	assert.Equal(t, pipeline.StateVerified, res.State)
	assert.Equal(t, allStageNames(), checkpointNames(res))

	require.NotNil(t, res.Deployment)
	assert.Equal(t, "deploy-1", res.Deployment.ID)
	require.NotNil(t, res.ReviewRequest)
	assert.Equal(t, vcs.ReviewMerged, res.ReviewRequest.State)
	require.NotNil(t, res.Record)
	assert.Equal(t, res.Deployment.ID, res.Record.DeploymentID)

	assert.Empty(t, res.Compensations)
	assert.Empty(t, res.Recoveries)
	assert.Nil(t, res.Failure)
	assert.Nil(t, res.Error)

	kinds := f.notes.Kinds()
	require.NotEmpty(t, kinds)
	assert.Equal(t, notify.KindRunSucceeded, kinds[len(kinds)-1])
}

func TestRun_InvalidInput(t *testing.T) {
	f := newFixture(t)
	o := f.defaultOrchestrator(t)

	res, err := o.Run(context.Background(), pipeline.Input{Provider: "local"})
	require.Error(t, err)
	fe, ok := failure.As(err)
	require.True(t, ok)
	assert.Equal(t, failure.KindConfiguration, fe.Kind)
	assert.False(t, fe.Recoverable)

	assert.Equal(t, orchestrator.StatusFailed, res.Status)
	assert.Equal(t, pipeline.StateNew, res.State)
	require.NotNil(t, res.Failure)
	assert.Equal(t, failure.KindConfiguration, res.Failure.Kind)
	assert.Empty(t, f.host.Calls())
}

func TestRun_NoHandlers(t *testing.T) {
	o := orchestrator.New(nil, orchestrator.DefaultOptions(), nil)

	res, err := o.Run(context.Background(), bundleInput())
	require.Error(t, err)
	assert.True(t, failure.IsKind(err, failure.KindConfiguration))
	assert.Equal(t, orchestrator.StatusFailed, res.Status)
}

func TestRun_VerificationFailureCompensatesOnce(t *testing.T) {
	f := newFixture(t)
	f.target.VerifyResult = false
	o := f.defaultOrchestrator(t)

	res, err := o.Run(context.Background(), bundleInput())
	require.Error(t, err)
	fe, ok := failure.As(err)
	require.True(t, ok)
	assert.Equal(t, failure.KindDeployment, fe.Kind)
	assert.False(t, fe.Recoverable)

	assert.Equal(t, orchestrator.StatusFailed, res.Status)
	assert.Equal(t, pipeline.StateVerificationFailed, res.State, "terminal stage state is kept")
	assert.Equal(t,
		[]string{"undeploy", "revert_merge", "close_review_request", "revert_commit", "delete_repository"},
		compensationIDs(res.Compensations))

	for _, out := range res.Compensations {
		if out.ID == "close_review_request" {
			assert.Equal(t, compensation.StatusNotReversible, out.Status)
			continue
		}
		assert.Equal(t, compensation.StatusReversed, out.Status, out.ID)
	}

	assert.Equal(t, []string{res.Deployment.ID}, f.target.Undeployed)
	assert.Equal(t, 1, f.host.Count("RevertMerge"))
	assert.Equal(t, 1, f.host.Count("RevertCommit"))
	assert.Equal(t, 1, f.host.Count("DeleteRepository"))
	assert.Equal(t, 0, f.host.Count("CloseReviewRequest"))
	assert.False(t, f.host.Exists(res.Repository.FullName()))

	kinds := f.notes.Kinds()
	assert.Equal(t, notify.KindRunFailed, kinds[len(kinds)-1])
}

func TestRun_CompensatesOnlyCompletedStages(t *testing.T) {
	tests := []struct {
		name   string
		method string
		err    error
		want   []string
		state  pipeline.State
	}{
		{
			name:   "repository creation rejected",
			method: "CreateRepository",
			err:    &vcs.HostError{Op: "create repository", Status: 422, Err: errors.New("name taken")},
			want:   nil,
			state:  pipeline.StateClosed,
		},
		{
			name:   "commit rejected",
			method: "Commit",
			err:    &vcs.HostError{Op: "commit", Status: 422, Err: errors.New("invalid tree")},
			want:   []string{"delete_repository"},
			state:  pipeline.StateRolledBack,
		},
		{
			name:   "review request rejected",
			method: "OpenReviewRequest",
			err:    &vcs.HostError{Op: "open review request", Status: 422, Err: errors.New("no commits")},
			want:   []string{"revert_commit", "delete_repository"},
			state:  pipeline.StateRolledBack,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.host.FailNext(tt.method, tt.err)
			o := f.defaultOrchestrator(t)

			res, err := o.Run(context.Background(), bundleInput())
			require.Error(t, err)
			assert.Equal(t, orchestrator.StatusFailed, res.Status)

			got := compensationIDs(res.Compensations)
			if tt.want == nil {
				assert.Empty(t, got)
			} else {
				assert.Equal(t, tt.want, got)
			}
			assert.Equal(t, tt.state, res.State)
			assert.Nil(t, res.Deployment)
			assert.Empty(t, f.target.Undeployed)
		})
	}
}

func TestRun_GenerationRecovery(t *testing.T) {
	broken := artifact.GeneratorFunc{ID: "broken", Fn: func(artifact.Specification) ([]artifact.File, error) {
		return nil, errors.New("generator crashed")
	}}
	f := newFixture(t, func(d *pipeline.Deps) { d.Generators = []artifact.Generator{broken} })
	o := f.defaultOrchestrator(t)

	res, err := o.Run(context.Background(), pipeline.Input{
		Specification: &artifact.Specification{Name: "billing", Owner: "platform"},
		Provider:      string(ci.KindLocal),
	})
	require.NoError(t, err)

	assert.Equal(t, orchestrator.StatusDegraded, res.Status)
	assert.True(t, res.Degraded())
	require.Len(t, res.Recoveries, 1)
	assert.Equal(t, pipeline.StageGenerate, res.Recoveries[0].Stage)
	assert.Equal(t, failure.KindTemplateGeneration, res.Recoveries[0].Kind)
	assert.Contains(t, res.DegradedReason, "generate")
	assert.Contains(t, res.DegradedReason, "generator crashed")

	assert.Empty(t, res.Compensations)
	assert.Equal(t, pipeline.StateVerified, res.State)
	require.NotNil(t, res.Deployment)

	kinds := f.notes.Kinds()
	assert.Equal(t, notify.KindRunDegraded, kinds[len(kinds)-1])
}

func TestRun_RecoveryDisabled(t *testing.T) {
	broken := artifact.GeneratorFunc{ID: "broken", Fn: func(artifact.Specification) ([]artifact.File, error) {
		return nil, errors.New("generator crashed")
	}}
	f := newFixture(t, func(d *pipeline.Deps) { d.Generators = []artifact.Generator{broken} })
	opts := orchestrator.DefaultOptions()
	opts.Recovery = false
	o := f.orchestrator(t, opts, pipeline.MinimalArtifactStrategy())

	res, err := o.Run(context.Background(), pipeline.Input{
		Specification: &artifact.Specification{Name: "billing", Owner: "platform"},
		Provider:      string(ci.KindLocal),
	})
	require.Error(t, err)
	assert.True(t, failure.IsKind(err, failure.KindTemplateGeneration))
	assert.Equal(t, orchestrator.StatusFailed, res.Status)
	assert.Empty(t, res.Recoveries)
	assert.Empty(t, res.Checkpoints)
	assert.Empty(t, f.host.Calls())
}

func TestRun_NetworkRetrySucceeds(t *testing.T) {
	f := newFixture(t)
	outage := &vcs.HostError{Op: "create repository", Status: 503, Err: errors.New("unavailable")}
	f.host.FailNext("CreateRepository", outage, outage)
	o := f.defaultOrchestrator(t)

	res, err := o.Run(context.Background(), bundleInput())
	require.NoError(t, err)

	assert.Equal(t, orchestrator.StatusDegraded, res.Status)
	assert.Equal(t, 3, f.host.Count("CreateRepository"))
	require.Len(t, res.Recoveries, 2)
	for _, r := range res.Recoveries {
		assert.Equal(t, failure.KindNetwork, r.Kind)
		assert.Equal(t, pipeline.StageCreateRepository, r.Stage)
	}
	assert.Equal(t, allStageNames(), checkpointNames(res))
}

func TestRun_NetworkRetryCap(t *testing.T) {
	f := newFixture(t)
	outage := &vcs.HostError{Op: "commit", Status: 503, Err: errors.New("unavailable")}
	f.host.FailNext("Commit", outage, outage, outage, outage)
	o := f.defaultOrchestrator(t)

	res, err := o.Run(context.Background(), bundleInput())
	require.Error(t, err)

	fe, ok := failure.As(err)
	require.True(t, ok)
	assert.Equal(t, failure.KindNetwork, fe.Kind)
	assert.False(t, fe.Recoverable, "retry cap turns the error terminal")
	assert.Equal(t, 4, fe.RetryCount())
	assert.Equal(t, 4, f.host.Count("Commit"))

	assert.Equal(t, orchestrator.StatusFailed, res.Status)
	assert.Equal(t, []string{"delete_repository"}, compensationIDs(res.Compensations))
	assert.Equal(t, pipeline.StateRolledBack, res.State)
	assert.False(t, f.host.Exists(res.Repository.FullName()))
}

func TestRun_NetworkRetryCapFollowsStrategy(t *testing.T) {
	f := newFixture(t)
	outage := &vcs.HostError{Op: "commit", Status: 503, Err: errors.New("unavailable")}
	f.host.FailNext("Commit", outage, outage)
	o := f.orchestrator(t, orchestrator.DefaultOptions(), instantRetry(1))

	_, err := o.Run(context.Background(), bundleInput())
	require.Error(t, err)

	fe, ok := failure.As(err)
	require.True(t, ok)
	assert.False(t, fe.Recoverable)
	assert.Equal(t, 2, fe.RetryCount())
	assert.Equal(t, 2, f.host.Count("Commit"), "one retry, as the strategy allows")
}

func TestRun_PermissionDeniedIsTerminal(t *testing.T) {
	f := newFixture(t)
	f.host.FailNext("Commit", &vcs.HostError{Op: "commit", Status: 403, Err: errors.New("forbidden")})
	o := f.defaultOrchestrator(t)

	_, err := o.Run(context.Background(), bundleInput())
	require.Error(t, err)
	assert.True(t, failure.IsKind(err, failure.KindPermission))
	assert.Equal(t, 1, f.host.Count("Commit"))
}

func TestRun_Cancellation(t *testing.T) {
	f := newFixture(t)
	o := f.defaultOrchestrator(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.OnProgress(func(p orchestrator.StageProgress) {
		if p.Stage == pipeline.StageMerge && p.Status == orchestrator.StageStarted {
			cancel()
		}
	})

	res, err := o.Run(ctx, bundleInput())
	require.Error(t, err)

	fe, ok := failure.As(err)
	require.True(t, ok)
	assert.Equal(t, failure.KindResource, fe.Kind)
	assert.False(t, fe.Recoverable)
	cancelled, _ := fe.Detail(failure.DetailCancelled)
	assert.Equal(t, true, cancelled)

	assert.Equal(t, 0, f.host.Count("MergeReviewRequest"))
	assert.Equal(t,
		[]string{"close_review_request", "revert_commit", "delete_repository"},
		compensationIDs(res.Compensations))
	for _, out := range res.Compensations {
		assert.Equal(t, compensation.StatusReversed, out.Status, out.ID)
	}
	assert.Equal(t, pipeline.StateRolledBack, res.State)
}

func TestRun_CancellationWaitsForInFlightCall(t *testing.T) {
	f := newFixture(t)
	o := f.defaultOrchestrator(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var callErr error
	f.host.OnCall = func(callCtx context.Context, method string) {
		if method == "CreateRepository" {
			cancel()
			callErr = callCtx.Err()
		}
	}

	res, err := o.Run(ctx, bundleInput())
	require.Error(t, err)
	assert.NoError(t, callErr, "in-flight call must not see the cancellation")

	fe, ok := failure.As(err)
	require.True(t, ok)
	assert.Equal(t, string(pipeline.StageCommitArtifacts), fe.Operation)
	cancelled, _ := fe.Detail(failure.DetailCancelled)
	assert.Equal(t, true, cancelled)

	assert.Equal(t, 1, f.host.Count("CreateRepository"))
	assert.Equal(t, 0, f.host.Count("Commit"))
	assert.Equal(t, []string{"delete_repository"}, compensationIDs(res.Compensations))
	assert.False(t, f.host.Exists(res.Repository.FullName()))
	assert.Equal(t, pipeline.StateRolledBack, res.State)
}

func TestRun_FailingRecoveryCompensatesOriginalError(t *testing.T) {
	tests := []struct {
		name    string
		recover func() (any, error)
		wantErr string
	}{
		{
			name:    "strategy returns an error",
			recover: func() (any, error) { return nil, errors.New("retry budget unavailable") },
			wantErr: "retry budget unavailable",
		},
		{
			name:    "strategy panics",
			recover: func() (any, error) { panic("nil budget") },
			wantErr: "strategy panicked",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			outage := &vcs.HostError{Op: "merge", Status: 503, Err: errors.New("unavailable")}
			f.host.FailNext("MergeReviewRequest", outage)

			calls := 0
			o := f.orchestrator(t, orchestrator.DefaultOptions(), recovery.Func{
				For:  failure.KindNetwork,
				Name: "budgeted retry",
				Do: func(context.Context, *failure.Error, *operation.Context) (any, error) {
					calls++
					return tt.recover()
				},
			})

			res, err := o.Run(context.Background(), bundleInput())
			require.Error(t, err)
			assert.Equal(t, 1, calls)
			assert.Equal(t, 1, f.host.Count("MergeReviewRequest"))

			fe, ok := failure.As(err)
			require.True(t, ok)
			assert.Equal(t, failure.KindNetwork, fe.Kind)
			assert.Equal(t, string(pipeline.StageMerge), fe.Operation)
			recErr, ok := fe.Detail("recovery_error")
			require.True(t, ok)
			assert.Contains(t, recErr, tt.wantErr)

			assert.Equal(t, orchestrator.StatusFailed, res.Status)
			assert.Empty(t, res.Recoveries)
			assert.Equal(t,
				[]string{"close_review_request", "revert_commit", "delete_repository"},
				compensationIDs(res.Compensations))
			assert.Equal(t, pipeline.StateRolledBack, res.State)
		})
	}
}

func TestRun_RegistryFailureKeepsDeployment(t *testing.T) {
	f := newFixture(t)
	f.catalog.FailNext("Register", errors.New("catalog unavailable"))
	o := f.defaultOrchestrator(t)

	res, err := o.Run(context.Background(), bundleInput())
	require.Error(t, err)
	assert.True(t, failure.IsKind(err, failure.KindRegistry))

	assert.Equal(t, orchestrator.StatusFailed, res.Status)
	assert.Empty(t, res.Compensations)
	assert.Empty(t, f.target.Undeployed)
	require.NotNil(t, res.Deployment)
	assert.Equal(t, pipeline.StateVerified, res.State)
	assert.True(t, f.host.Exists(res.Repository.FullName()))
}

func TestRun_RegistryFailureDeferred(t *testing.T) {
	f := newFixture(t)
	f.catalog.FailNext("Register", errors.New("catalog unavailable"))
	o := f.orchestrator(t, orchestrator.DefaultOptions(),
		pipeline.DefaultStrategies(pipeline.StrategyOptions{NetworkBaseDelay: time.Millisecond}, f.catalog)...)

	res, err := o.Run(context.Background(), bundleInput())
	require.NoError(t, err)

	assert.Equal(t, orchestrator.StatusDegraded, res.Status)
	assert.True(t, res.RegistrationDeferred)
	assert.Len(t, f.catalog.Pending, 1)
	require.Len(t, res.Recoveries, 1)
	assert.Equal(t, failure.KindRegistry, res.Recoveries[0].Kind)
	assert.Empty(t, f.target.Undeployed)
}

func TestRun_RollbackDisabled(t *testing.T) {
	f := newFixture(t)
	f.target.VerifyResult = false
	opts := orchestrator.DefaultOptions()
	opts.Rollback = false
	o := f.orchestrator(t, opts)

	res, err := o.Run(context.Background(), bundleInput())
	require.Error(t, err)
	assert.Empty(t, res.Compensations)
	assert.Empty(t, f.target.Undeployed)
	assert.True(t, f.host.Exists(res.Repository.FullName()))
}

func TestRun_Progress(t *testing.T) {
	f := newFixture(t)
	o := f.defaultOrchestrator(t)

	var started, completed []int
	o.OnProgress(func(p orchestrator.StageProgress) {
		assert.NotEmpty(t, p.OperationID)
		switch p.Status {
		case orchestrator.StageStarted:
			started = append(started, p.Percentage)
		case orchestrator.StageCompleted:
			completed = append(completed, p.Percentage)
		}
	})

	_, err := o.Run(context.Background(), bundleInput())
	require.NoError(t, err)

	assert.Equal(t, []int{0, 10, 20, 30, 40, 50, 60, 70, 80, 90}, started)
	assert.Equal(t, []int{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}, completed)
}

func TestRun_Tracing(t *testing.T) {
	f := newFixture(t)
	o := f.defaultOrchestrator(t)
	tt := telemetry.NewTestTelemetry()
	o.SetTracer(tt.Tracer("test"))

	_, err := o.Run(context.Background(), bundleInput())
	require.NoError(t, err)

	var stages []string
	for _, s := range pipeline.AllStages() {
		stages = append(stages, string(s))
	}
	tt.AssertRunSpans(t, "success", stages...)
	tt.AssertSpanAttribute(t, telemetry.RunSpan, "run.state", string(pipeline.StateVerified))
}

func TestRun_TracingStopsAtFailedStage(t *testing.T) {
	f := newFixture(t)
	f.host.FailNext("Commit", &vcs.HostError{Op: "commit", Status: 403, Err: errors.New("forbidden")})
	o := f.defaultOrchestrator(t)
	tt := telemetry.NewTestTelemetry()
	o.SetTracer(tt.Tracer("test"))

	_, err := o.Run(context.Background(), bundleInput())
	require.Error(t, err)

	tt.AssertRunSpans(t, "failed",
		string(pipeline.StageGenerate), string(pipeline.StageCreateRepository), string(pipeline.StageCommitArtifacts))
}

func TestRun_Metrics(t *testing.T) {
	f := newFixture(t)
	f.target.VerifyResult = false
	o := f.defaultOrchestrator(t)

	failedBefore := testutil.ToFloat64(orchestrator.RunsTotal.WithLabelValues("failed"))
	reversedBefore := testutil.ToFloat64(orchestrator.CompensationsTotal.WithLabelValues("reversed"))

	_, err := o.Run(context.Background(), bundleInput())
	require.Error(t, err)

	assert.Equal(t, failedBefore+1, testutil.ToFloat64(orchestrator.RunsTotal.WithLabelValues("failed")))
	assert.Equal(t, reversedBefore+4, testutil.ToFloat64(orchestrator.CompensationsTotal.WithLabelValues("reversed")))
}

func TestRun_Logging(t *testing.T) {
	f := newFixture(t)
	tl := logging.NewTestLogger()
	reg, err := recovery.NewRegistry(instantRetry(3))
	require.NoError(t, err)
	o := orchestrator.NewForStages(f.stages, reg, orchestrator.DefaultOptions(), tl.Logger)

	_, err = o.Run(context.Background(), bundleInput())
	require.NoError(t, err)

	tl.AssertLogged(t, zapcore.InfoLevel, "pipeline run started")
	tl.AssertLogged(t, zapcore.InfoLevel, "pipeline run finished")
	tl.AssertField(t, "pipeline run finished", "status", "success")
}

func TestRun_RunsAreIsolated(t *testing.T) {
	f := newFixture(t)
	o := f.defaultOrchestrator(t)

	first, err := o.Run(context.Background(), bundleInput())
	require.NoError(t, err)
	second, err := o.Run(context.Background(), pipeline.Input{
		Bundle:   artifact.Minimal(artifact.Specification{Name: "Ledger Service", Owner: "platform"}),
		Provider: string(ci.KindLocal),
	})
	require.NoError(t, err)

	assert.NotEqual(t, first.OperationID, second.OperationID)
	assert.NotEqual(t, first.Deployment.ID, second.Deployment.ID)
	assert.Len(t, second.Checkpoints, len(pipeline.AllStages()))
}

func TestStages(t *testing.T) {
	f := newFixture(t)
	o := f.defaultOrchestrator(t)
	assert.Equal(t, pipeline.AllStages(), o.Stages())
}
