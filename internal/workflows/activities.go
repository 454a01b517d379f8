// Package workflows runs bundle validation and whole deployments as Temporal
// workflows so they survive process restarts.
package workflows

import (
	"github.com/fyrsmithlabs/launchpad/internal/orchestrator"
	"github.com/fyrsmithlabs/launchpad/internal/validation"
)

// Activities holds the dependencies shared by every activity. A worker that
// only validates needs just Checker; a deployment worker needs Orchestrator.
type Activities struct {
	Checker      *validation.Checker
	Orchestrator *orchestrator.Orchestrator
}

// Registry is the part of a Temporal worker used for registration.
type Registry interface {
	RegisterWorkflow(w interface{})
	RegisterActivity(a interface{})
}

// Register adds the workflows and activities a worker can serve with a.
// Validation is registered when a.Checker is set, deployment when
// a.Orchestrator is set.
func Register(r Registry, a *Activities) {
	if a.Checker != nil {
		r.RegisterWorkflow(ArtifactValidationWorkflow)
	}
	if a.Orchestrator != nil {
		r.RegisterWorkflow(DeploymentWorkflow)
	}
	r.RegisterActivity(a)
}
