// Package deploy defines the deployment target contract and a filesystem
// target that serves template bundles from a directory tree.
//
// A deployment runs idempotent sub-steps in order: prepare, copy, platform
// config, restart, readiness. Verify re-checks a deployment from scratch and
// never trusts the Success flag that Deploy reported.
package deploy

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/launchpad/internal/artifact"
)

// Sub-step names, in execution order.
const (
	StepPrepare   = "prepare"
	StepCopy      = "copy"
	StepPlatform  = "platform_config"
	StepRestart   = "restart"
	StepReadiness = "readiness"
)

// Steps returns the sub-steps in execution order.
func Steps() []string {
	return []string{StepPrepare, StepCopy, StepPlatform, StepRestart, StepReadiness}
}

// Result describes one deployment.
type Result struct {
	ID         string    `json:"id" yaml:"id"`
	Name       string    `json:"name" yaml:"name"`
	Owner      string    `json:"owner" yaml:"owner"`
	Location   string    `json:"location" yaml:"location"`
	Files      []string  `json:"files" yaml:"files"`
	Steps      []string  `json:"steps" yaml:"steps"`
	Success    bool      `json:"success" yaml:"success"`
	DeployedAt time.Time `json:"deployed_at" yaml:"deployed_at"`

	// Previous is the platform entry this deployment replaced, restored on
	// undeploy.
	Previous *PlatformEntry `json:"previous,omitempty" yaml:"previous,omitempty"`
}

// Target is the deployment target contract.
type Target interface {
	// Deploy ships bundle. On error the returned result, if any, reports
	// which sub-steps completed.
	Deploy(ctx context.Context, bundle *artifact.Bundle) (*Result, error)

	// Verify independently checks that the deployment is usable. It logs
	// soft failures and returns false rather than an error.
	Verify(ctx context.Context, res *Result) bool

	// Undeploy removes the deployment. It is safe to call more than once.
	Undeploy(ctx context.Context, res *Result) error
}

// StepError reports the sub-step a deployment failed in.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("deploy %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
