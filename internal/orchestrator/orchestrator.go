package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/launchpad/internal/compensation"
	"github.com/fyrsmithlabs/launchpad/internal/failure"
	"github.com/fyrsmithlabs/launchpad/internal/logging"
	"github.com/fyrsmithlabs/launchpad/internal/notify"
	"github.com/fyrsmithlabs/launchpad/internal/operation"
	"github.com/fyrsmithlabs/launchpad/internal/pipeline"
	"github.com/fyrsmithlabs/launchpad/internal/recovery"
)

const (
	component           = "orchestrator"
	instrumentationName = "github.com/fyrsmithlabs/launchpad/internal/orchestrator"

	detailRecoveryError = "recovery_error"
)

// Orchestrator sequences pipeline stages for one run at a time per call.
// Handlers, gates and options are fixed after setup, so concurrent Run calls
// share nothing but the read-only strategy registry.
type Orchestrator struct {
	handlers         []pipeline.Handler
	registry         *recovery.Registry
	gates            []Gate
	stageGates       map[pipeline.Stage][]Gate
	opts             Options
	maxNetwork       int
	logger           *logging.Logger
	notifier         notify.Notifier
	tracer           trace.Tracer
	progressCallback ProgressCallback
}

// New creates an orchestrator with the default gates and no handlers.
// registry may be nil to disable recovery entirely; logger may be nil.
//
// The network retry cap is the one of the registered network strategies,
// recovery.DefaultMaxRetries when none caps retries.
func New(registry *recovery.Registry, opts Options, logger *logging.Logger) *Orchestrator {
	maxNetwork := registry.RetryCap(failure.KindNetwork)
	if maxNetwork <= 0 {
		maxNetwork = recovery.DefaultMaxRetries
	}
	if logger == nil {
		logger = logging.FromContext(context.Background())
	}
	return &Orchestrator{
		registry:   registry,
		gates:      DefaultGates(),
		stageGates: make(map[pipeline.Stage][]Gate),
		opts:       opts,
		maxNetwork: maxNetwork,
		logger:     logger.Named(component),
		notifier:   notify.Discard{},
		tracer:     otel.Tracer(instrumentationName),
	}
}

// NewForStages creates an orchestrator running every stage of stages.
func NewForStages(stages *pipeline.Stages, registry *recovery.Registry, opts Options, logger *logging.Logger) *Orchestrator {
	o := New(registry, opts, logger)
	for _, h := range stages.Handlers() {
		o.RegisterHandler(h)
	}
	o.SetNotifier(stages.Notifier())
	return o
}

// RegisterHandler appends a stage handler. Stages run in registration order.
func (o *Orchestrator) RegisterHandler(h pipeline.Handler) {
	o.handlers = append(o.handlers, h)
}

// RegisterGate adds a gate for one stage, checked after the default gates.
func (o *Orchestrator) RegisterGate(stage pipeline.Stage, gate Gate) {
	o.stageGates[stage] = append(o.stageGates[stage], gate)
}

// OnProgress sets the progress callback
func (o *Orchestrator) OnProgress(callback ProgressCallback) {
	o.progressCallback = callback
}

// SetNotifier sets where run outcome events go.
func (o *Orchestrator) SetNotifier(n notify.Notifier) {
	if n == nil {
		n = notify.Discard{}
	}
	o.notifier = n
}

// SetTracer replaces the global tracer.
func (o *Orchestrator) SetTracer(t trace.Tracer) {
	o.tracer = t
}

// Stages returns the registered stages in execution order.
func (o *Orchestrator) Stages() []pipeline.Stage {
	out := make([]pipeline.Stage, len(o.handlers))
	for i, h := range o.handlers {
		out[i] = h.Stage()
	}
	return out
}

// Run drives in through every stage.
//
// The returned Result is never nil. On terminal failure the error is the
// *failure.Error that stopped the run, also available as Result.Error.
func (o *Orchestrator) Run(ctx context.Context, in pipeline.Input) (*Result, error) {
	start := time.Now()
	if err := in.Validate(); err != nil {
		return o.reject(ctx, failure.Wrap(failure.KindConfiguration, component, "run", err, false), start)
	}
	if len(o.handlers) == 0 {
		return o.reject(ctx, failure.New(failure.KindConfiguration, component, "run",
			"no stage handlers registered", false), start)
	}

	op := operation.New(component, in.Params())
	run := pipeline.NewRun(in, op)
	ctx = logging.WithOperationID(ctx, op.ID())
	ctx, span := o.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("operation.id", op.ID()),
		attribute.String("template.name", in.Name()),
		attribute.String("validation.provider", in.Provider),
	))
	defer span.End()

	o.logger.Info(ctx, "pipeline run started",
		zap.String("template", in.Name()),
		zap.String("owner", in.Owner()),
		zap.String("provider", in.Provider))

	stack := compensation.NewStack(o.logger)
	var (
		recoveries []RecoveryRecord
		runErr     *failure.Error
	)
	total := len(o.handlers)
	for i, h := range o.handlers {
		stage := h.Stage()
		stageCtx := logging.WithStage(ctx, string(stage))

		o.reportProgress(StageProgress{
			OperationID: op.ID(),
			Stage:       stage,
			Status:      StageStarted,
			Message:     fmt.Sprintf("Starting stage: %s", stage),
			Percentage:  (i * 100) / total,
		})

		if err := o.checkGates(stageCtx, run, h); err != nil {
			runErr = failure.Classify(component, string(stage), err, failure.KindConfiguration, false)
		} else {
			// In-flight external calls are never interrupted; cancellation
			// is only seen by the gates before the next stage.
			out, recs, err := o.runStage(context.WithoutCancel(stageCtx), run, h)
			recoveries = append(recoveries, recs...)
			runErr = err
			if err == nil {
				op.Checkpoint(string(stage), out.Snapshot)
				if out.Compensate != nil {
					if pushErr := stack.Push(*out.Compensate); pushErr != nil {
						runErr = failure.Wrap(failure.KindResource, component, string(stage), pushErr, false)
					}
				}
			}
			if runErr == nil {
				status := StageCompleted
				if len(recs) > 0 {
					status = StageRecovered
				}
				o.reportProgress(StageProgress{
					OperationID: op.ID(),
					Stage:       stage,
					Status:      status,
					Message:     fmt.Sprintf("Completed stage: %s", stage),
					Percentage:  ((i + 1) * 100) / total,
				})
				continue
			}
		}

		o.logger.Error(stageCtx, "stage failed",
			zap.String("kind", string(runErr.Kind)),
			zap.Bool("recoverable", runErr.Recoverable),
			zap.String("error", runErr.Message))
		o.reportProgress(StageProgress{
			OperationID: op.ID(),
			Stage:       stage,
			Status:      StageFailed,
			Message:     runErr.Message,
			Percentage:  (i * 100) / total,
		})
		break
	}

	res := o.finish(ctx, run, stack, recoveries, runErr, start)
	span.SetAttributes(
		attribute.String("run.status", string(res.Status)),
		attribute.String("run.state", string(res.State)),
	)
	if res.Error != nil {
		span.RecordError(res.Error)
		span.SetStatus(codes.Error, res.Error.Message)
		return res, res.Error
	}
	return res, nil
}

// reject ends a run that never started.
func (o *Orchestrator) reject(ctx context.Context, err *failure.Error, start time.Time) (*Result, error) {
	o.logger.Error(ctx, "pipeline run rejected", zap.String("error", err.Message))
	RunsTotal.WithLabelValues(string(StatusFailed)).Inc()
	return &Result{
		Status:    StatusFailed,
		State:     pipeline.StateNew,
		Failure:   newFailure(err),
		Error:     err,
		StartedAt: start,
		Duration:  time.Since(start),
	}, err
}

// reinvokeError carries a terminal failure out of a nested re-invocation so
// the outermost attempt reports the innermost error.
type reinvokeError struct {
	err *failure.Error
}

func (e *reinvokeError) Error() string { return e.err.Error() }
func (e *reinvokeError) Unwrap() error { return e.err }

// stageAttempt is the retry state of one stage within one run.
type stageAttempt struct {
	o               *Orchestrator
	run             *pipeline.Run
	h               pipeline.Handler
	networkFailures int
	recoveries      []RecoveryRecord
}

func (o *Orchestrator) runStage(ctx context.Context, run *pipeline.Run, h pipeline.Handler) (pipeline.Outcome, []RecoveryRecord, *failure.Error) {
	stage := string(h.Stage())
	ctx, span := o.tracer.Start(ctx, "pipeline.stage", trace.WithAttributes(
		attribute.String("pipeline.stage", stage),
	))
	defer span.End()

	a := &stageAttempt{o: o, run: run, h: h}
	run.Op.SetStage(stage)
	run.Op.SetReinvoke(func(ctx context.Context) (any, error) {
		return a.attempt(ctx, true)
	})
	defer run.Op.SetReinvoke(nil)

	start := time.Now()
	v, err := a.attempt(ctx, false)
	if err != nil {
		ferr := failure.Classify(component, stage, err, failure.KindResource, false)
		StageDuration.WithLabelValues(stage, "failed").Observe(time.Since(start).Seconds())
		span.RecordError(ferr)
		span.SetStatus(codes.Error, ferr.Message)
		return pipeline.Outcome{}, a.recoveries, ferr
	}

	outcome := "succeeded"
	if len(a.recoveries) > 0 {
		outcome = "recovered"
	}
	StageDuration.WithLabelValues(stage, outcome).Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("pipeline.recoveries", len(a.recoveries)))

	out, ok := v.(pipeline.Outcome)
	if !ok {
		return pipeline.Outcome{}, a.recoveries, failure.New(failure.KindResource, component, stage,
			fmt.Sprintf("stage produced %T instead of an outcome", v), false)
	}
	return out, a.recoveries, nil
}

// attempt executes the stage once and, on a recoverable failure, dispatches
// recovery. The network strategy re-enters attempt through the operation
// context, so every failure gets its own Classified Error and at most one
// recovery.
func (a *stageAttempt) attempt(ctx context.Context, nested bool) (any, error) {
	stage := a.h.Stage()
	out, err := a.h.Execute(ctx, a.run)
	if err == nil {
		return out, nil
	}

	ferr := failure.Classify(component, string(stage), err, failure.KindResource, false)
	if ferr.Kind == failure.KindNetwork {
		a.networkFailures++
		ferr = ferr.WithDetail(failure.DetailRetryCount, a.networkFailures)
		if a.networkFailures > a.o.maxNetwork {
			ferr = ferr.WithRecoverable(false)
		}
	}
	a.o.logger.Warn(ctx, "stage attempt failed",
		zap.String("kind", string(ferr.Kind)),
		zap.Bool("recoverable", ferr.Recoverable),
		zap.Int("retry_count", ferr.RetryCount()),
		zap.String("error", ferr.Message))

	if !ferr.Recoverable || !a.o.opts.Recovery {
		return nil, a.terminal(ferr, nested)
	}

	rec, recErr := a.o.registry.Dispatch(ctx, ferr, a.run.Op)
	if recErr != nil {
		var inner *reinvokeError
		if errors.As(recErr, &inner) {
			return nil, a.terminal(inner.err, nested)
		}
		if !errors.Is(recErr, recovery.ErrNoStrategy) {
			a.o.logger.Warn(ctx, "recovery failed",
				zap.String("kind", string(ferr.Kind)),
				zap.Error(recErr))
			ferr = ferr.WithDetail(detailRecoveryError, recErr.Error())
		}
		return nil, a.terminal(ferr, nested)
	}

	sub, subErr := a.substitute(rec.Result)
	if subErr != nil {
		a.o.logger.Warn(ctx, "recovery result rejected",
			zap.String("strategy", rec.Strategy),
			zap.Error(subErr))
		return nil, a.terminal(ferr.WithDetail(detailRecoveryError, subErr.Error()), nested)
	}

	a.recoveries = append(a.recoveries, RecoveryRecord{
		Stage:    stage,
		Kind:     ferr.Kind,
		Strategy: rec.Strategy,
		Error:    ferr.Message,
	})
	RecoveriesTotal.WithLabelValues(string(ferr.Kind)).Inc()
	a.o.logger.Info(ctx, "stage recovered",
		zap.String("kind", string(ferr.Kind)),
		zap.String("strategy", rec.Strategy))
	return sub, nil
}

// substitute turns a recovery result into the stage outcome. A re-invoked
// stage already produced one; anything else goes through the handler.
func (a *stageAttempt) substitute(result any) (pipeline.Outcome, error) {
	if out, ok := result.(pipeline.Outcome); ok {
		return out, nil
	}
	sub, ok := a.h.(pipeline.Substituter)
	if !ok {
		return pipeline.Outcome{}, pipeline.ErrNoSubstitute
	}
	return sub.Substitute(a.run, result)
}

func (a *stageAttempt) terminal(err *failure.Error, nested bool) error {
	if nested {
		return &reinvokeError{err: err}
	}
	return err
}

// finish settles the run: compensation on failure, degraded marking after
// recoveries, metrics and the outcome notification.
func (o *Orchestrator) finish(ctx context.Context, run *pipeline.Run, stack *compensation.Stack,
	recoveries []RecoveryRecord, runErr *failure.Error, start time.Time) *Result {
	res := &Result{
		OperationID: run.Op.ID(),
		Recoveries:  recoveries,
		StartedAt:   start,
	}

	switch {
	case runErr != nil:
		res.Status = StatusFailed
		res.Error = runErr
		res.Failure = newFailure(runErr)
		switch {
		case runErr.Kind == failure.KindRegistry:
			// The deployment is verified and stays; only the catalog entry is missing.
			stack.Clear()
			o.logger.Warn(ctx, "catalog registration failed, deployment kept",
				zap.String("error", runErr.Message))
		case o.opts.Rollback:
			res.Compensations = o.compensate(ctx, run, stack)
		default:
			stack.Clear()
		}
	case len(recoveries) > 0:
		res.Status = StatusDegraded
		reasons := make([]string, len(recoveries))
		for i, r := range recoveries {
			reasons[i] = fmt.Sprintf("%s: %s", r.Stage, r.Error)
		}
		res.DegradedReason = strings.Join(reasons, "; ")
	default:
		res.Status = StatusSuccess
	}

	res.State = run.State
	res.Repository = run.Repository
	res.ReviewRequest = run.ReviewRequest
	res.Report = run.Report
	res.Deployment = run.Deployment
	res.Record = run.Record
	res.RegistrationDeferred = run.RegistrationDeferred
	res.Checkpoints = run.Op.Checkpoints()
	res.Duration = time.Since(start)

	RunsTotal.WithLabelValues(string(res.Status)).Inc()
	o.logger.Info(ctx, "pipeline run finished",
		zap.String("status", string(res.Status)),
		zap.String("state", string(res.State)),
		zap.Int("checkpoints", len(res.Checkpoints)),
		zap.Int("compensations", len(res.Compensations)),
		zap.Int("recoveries", len(res.Recoveries)),
		zap.Duration("duration", res.Duration))
	o.notifyOutcome(ctx, res)
	return res
}

// compensate runs the stack even when ctx is cancelled and moves the run to
// RolledBack or Closed unless a stage already left it in a terminal state.
func (o *Orchestrator) compensate(ctx context.Context, run *pipeline.Run, stack *compensation.Stack) []compensation.Outcome {
	outcomes := stack.Execute(context.WithoutCancel(ctx))

	reversed := false
	for _, out := range outcomes {
		CompensationsTotal.WithLabelValues(string(out.Status)).Inc()
		if out.Status == compensation.StatusReversed {
			reversed = true
		}
	}

	if !run.State.Terminal() {
		to := pipeline.StateClosed
		if reversed {
			to = pipeline.StateRolledBack
		}
		if err := run.Transition(to); err != nil {
			o.logger.Error(ctx, "final state transition failed", zap.Error(err))
		}
	}
	return outcomes
}

func (o *Orchestrator) notifyOutcome(ctx context.Context, res *Result) {
	ev := notify.Event{
		OperationID: res.OperationID,
		Fields: map[string]string{
			"state":  string(res.State),
			"status": string(res.Status),
		},
	}
	if res.Repository != nil {
		ev.Repository = res.Repository.FullName()
	}
	switch res.Status {
	case StatusSuccess:
		ev.Kind, ev.Title = notify.KindRunSucceeded, "pipeline run succeeded"
	case StatusDegraded:
		ev.Kind, ev.Title, ev.Message = notify.KindRunDegraded, "pipeline run succeeded with fallbacks", res.DegradedReason
	default:
		ev.Kind, ev.Title, ev.Message = notify.KindRunFailed, "pipeline run failed", res.Error.Message
		ev.Fields["kind"] = string(res.Error.Kind)
	}
	if err := o.notifier.Notify(context.WithoutCancel(ctx), ev); err != nil {
		o.logger.Warn(ctx, "run notification failed", zap.Error(err))
	}
}

// reportProgress sends progress updates to the callback
func (o *Orchestrator) reportProgress(progress StageProgress) {
	if o.progressCallback != nil {
		o.progressCallback(progress)
	}
}
