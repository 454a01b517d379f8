package orchestrator

import (
	"time"

	"github.com/fyrsmithlabs/launchpad/internal/catalog"
	"github.com/fyrsmithlabs/launchpad/internal/compensation"
	"github.com/fyrsmithlabs/launchpad/internal/deploy"
	"github.com/fyrsmithlabs/launchpad/internal/failure"
	"github.com/fyrsmithlabs/launchpad/internal/operation"
	"github.com/fyrsmithlabs/launchpad/internal/pipeline"
	"github.com/fyrsmithlabs/launchpad/internal/validation"
	"github.com/fyrsmithlabs/launchpad/internal/vcs"
)

// Status is the outcome of a run.
type Status string

const (
	// StatusSuccess means every stage succeeded without recovery.
	StatusSuccess Status = "success"

	// StatusDegraded means the run completed using at least one recovered
	// result.
	StatusDegraded Status = "degraded"

	// StatusFailed means the run ended with a terminal Classified Error.
	StatusFailed Status = "failed"
)

// StageStatus is reported through the progress callback.
type StageStatus string

const (
	StageStarted   StageStatus = "started"
	StageCompleted StageStatus = "completed"
	StageRecovered StageStatus = "recovered"
	StageFailed    StageStatus = "failed"
)

// StageProgress reports progress during a run
type StageProgress struct {
	OperationID string         `json:"operation_id"`
	Stage       pipeline.Stage `json:"stage"`
	Status      StageStatus    `json:"status"`
	Message     string         `json:"message"`
	Percentage  int            `json:"percentage"`
}

// ProgressCallback receives progress updates during a run
type ProgressCallback func(progress StageProgress)

// Options configures the orchestrator.
type Options struct {
	// Recovery enables recovery dispatch for recoverable errors (default: true)
	Recovery bool `koanf:"recovery"`

	// Rollback enables compensation after a terminal failure (default: true)
	Rollback bool `koanf:"rollback"`
}

// DefaultOptions enables recovery and rollback.
func DefaultOptions() Options {
	return Options{
		Recovery: true,
		Rollback: true,
	}
}

// RecoveryRecord is the audit entry for one successful recovery.
type RecoveryRecord struct {
	Stage    pipeline.Stage `json:"stage"`
	Kind     failure.Kind   `json:"kind"`
	Strategy string         `json:"strategy"`

	// Error is the message of the error that was recovered from.
	Error string `json:"error"`
}

// Failure is the serializable form of a terminal Classified Error.
type Failure struct {
	Kind        failure.Kind   `json:"kind"`
	Component   string         `json:"component"`
	Operation   string         `json:"operation"`
	Message     string         `json:"message"`
	Recoverable bool           `json:"recoverable"`
	Details     map[string]any `json:"details,omitempty"`
}

func newFailure(err *failure.Error) *Failure {
	if err == nil {
		return nil
	}
	return &Failure{
		Kind:        err.Kind,
		Component:   err.Component,
		Operation:   err.Operation,
		Message:     err.Message,
		Recoverable: err.Recoverable,
		Details:     err.Details(),
	}
}

// Result is what Run returns for every outcome.
type Result struct {
	Status      Status         `json:"status"`
	OperationID string         `json:"operation_id"`
	State       pipeline.State `json:"state"`

	Repository           *vcs.Repository    `json:"repository,omitempty"`
	ReviewRequest        *vcs.ReviewRequest `json:"review_request,omitempty"`
	Report               *validation.Report `json:"report,omitempty"`
	Deployment           *deploy.Result     `json:"deployment,omitempty"`
	Record               *catalog.Record    `json:"record,omitempty"`
	RegistrationDeferred bool               `json:"registration_deferred,omitempty"`

	Checkpoints   []operation.Checkpoint `json:"checkpoints"`
	Compensations []compensation.Outcome `json:"compensations,omitempty"`
	Recoveries    []RecoveryRecord       `json:"recoveries,omitempty"`

	// DegradedReason carries the recovered errors' messages for audit.
	DegradedReason string `json:"degraded_reason,omitempty"`

	Failure *Failure `json:"failure,omitempty"`

	// Error is the terminal Classified Error, nil unless Status is failed.
	Error *failure.Error `json:"-"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Degraded reports whether the run finished on a recovered result.
func (r *Result) Degraded() bool { return r.Status == StatusDegraded }
