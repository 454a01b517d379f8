// Package pipeline implements the deployment pipeline: the state machine,
// the run-scoped state every stage reads and writes, and the stage handlers
// that drive a bundle from repository creation to catalog registration.
//
// Stages run strictly in order. Each handler returns an Outcome carrying a
// checkpoint snapshot and, when the stage created something, the
// compensating action that undoes it. Sequencing, recovery and compensation
// belong to the orchestrator.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/launchpad/internal/artifact"
	"github.com/fyrsmithlabs/launchpad/internal/catalog"
	"github.com/fyrsmithlabs/launchpad/internal/ci"
	"github.com/fyrsmithlabs/launchpad/internal/compensation"
	"github.com/fyrsmithlabs/launchpad/internal/deploy"
	"github.com/fyrsmithlabs/launchpad/internal/operation"
	"github.com/fyrsmithlabs/launchpad/internal/validation"
	"github.com/fyrsmithlabs/launchpad/internal/vcs"
)

// Operation context parameter keys.
const (
	ParamBundle        = "bundle"
	ParamOwner         = "owner"
	ParamSpecification = "specification"
	ParamProvider      = "provider"
)

// Input is what a caller hands to a pipeline run. Exactly one of Bundle and
// Specification is set; a specification is turned into a bundle by the
// generate stage.
type Input struct {
	Bundle        *artifact.Bundle        `json:"bundle,omitempty"`
	Specification *artifact.Specification `json:"specification,omitempty"`

	// Provider is the validation provider kind (github-actions, temporal, nats, local)
	Provider string `json:"provider"`

	// CommitMessage defaults to a generated message when empty
	CommitMessage string `json:"commit_message,omitempty"`
}

// Validate checks the input shape. Bundle contents are checked by the
// stages that use them.
func (in *Input) Validate() error {
	switch {
	case in.Bundle == nil && in.Specification == nil:
		return fmt.Errorf("pipeline: input needs a bundle or a specification")
	case in.Bundle != nil && in.Specification != nil:
		return fmt.Errorf("pipeline: input has both a bundle and a specification")
	case in.Provider == "":
		return fmt.Errorf("pipeline: validation provider is required")
	}
	return nil
}

// Name returns the declared template name.
func (in *Input) Name() string {
	if in.Bundle != nil {
		return in.Bundle.Name
	}
	if in.Specification != nil {
		return in.Specification.Name
	}
	return ""
}

// Owner returns the declared owner.
func (in *Input) Owner() string {
	if in.Bundle != nil {
		return in.Bundle.Owner
	}
	if in.Specification != nil {
		return in.Specification.Owner
	}
	return ""
}

// Params returns the parameter snapshot recorded in the operation context.
func (in *Input) Params() map[string]any {
	p := map[string]any{
		ParamBundle:   in.Name(),
		ParamOwner:    in.Owner(),
		ParamProvider: in.Provider,
	}
	if in.Specification != nil {
		p[ParamSpecification] = *in.Specification
	}
	return p
}

// Transition records one state change.
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

// Run is the state of one pipeline run. It is created by the orchestrator,
// passed to every stage, and never shared between runs.
type Run struct {
	Input Input
	Op    *operation.Context

	State   State
	History []Transition

	Bundle        *artifact.Bundle
	Repository    *vcs.Repository
	Commit        vcs.CommitID
	Branch        string
	Review        *Review
	ReviewRequest *vcs.ReviewRequest
	ValidationRun ci.RunID
	Report        *validation.Report
	Deployment    *deploy.Result
	Verified      bool
	Record        *catalog.Record

	// RegistrationDeferred is set when the catalog record went to the
	// pending queue instead of the catalog.
	RegistrationDeferred bool
}

// NewRun starts a run for in.
func NewRun(in Input, op *operation.Context) *Run {
	return &Run{
		Input:  in,
		Op:     op,
		State:  StateNew,
		Bundle: in.Bundle,
	}
}

// Transition moves the run to state to.
func (r *Run) Transition(to State) error {
	if !CanTransition(r.State, to) {
		return &StateError{From: r.State, To: to}
	}
	r.History = append(r.History, Transition{From: r.State, To: to, At: time.Now().UTC()})
	r.State = to
	return nil
}

// Outcome is what a successful stage hands back to the orchestrator.
type Outcome struct {
	// Snapshot is recorded as the stage checkpoint.
	Snapshot any

	// Compensate undoes the stage's effect; nil when there is nothing to undo.
	Compensate *compensation.Action
}

// Handler executes one stage.
type Handler interface {
	Stage() Stage

	// Prerequisites are the stages that must have succeeded first.
	Prerequisites() []Stage

	// Execute runs the stage. Errors are classified (*failure.Error).
	Execute(ctx context.Context, run *Run) (Outcome, error)
}

// Substituter is implemented by handlers that accept a recovery result in
// place of their own output.
type Substituter interface {
	Substitute(run *Run, result any) (Outcome, error)
}
