package orchestrator

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/launchpad/internal/failure"
	"github.com/fyrsmithlabs/launchpad/internal/pipeline"
)

// Gate is checked before a stage runs. A gate blocks the stage by returning
// an error; Classified Errors are propagated unchanged.
type Gate interface {
	// Name returns the gate identifier
	Name() string

	// Check validates the run before h executes.
	Check(ctx context.Context, run *pipeline.Run, h pipeline.Handler) error
}

// PrerequisiteGate blocks a stage until all of its prerequisites have a
// success checkpoint.
type PrerequisiteGate struct{}

// Name returns the gate identifier
func (PrerequisiteGate) Name() string { return "prerequisites" }

// Check validates the stage's prerequisites.
func (PrerequisiteGate) Check(_ context.Context, run *pipeline.Run, h pipeline.Handler) error {
	return pipeline.CheckPrerequisites(run, h)
}

// CancellationGate turns a cancelled run into a non-recoverable
// ResourceError. Cancellation is only observed between stages.
type CancellationGate struct{}

// Name returns the gate identifier
func (CancellationGate) Name() string { return "cancellation" }

// Check fails once ctx is done.
func (CancellationGate) Check(ctx context.Context, _ *pipeline.Run, h pipeline.Handler) error {
	if err := ctx.Err(); err != nil {
		return failure.Wrap(failure.KindResource, component, string(h.Stage()),
			fmt.Errorf("run cancelled before stage: %w", err), false).
			WithDetail(failure.DetailCancelled, true)
	}
	return nil
}

// DefaultGates are checked before every stage.
func DefaultGates() []Gate {
	return []Gate{CancellationGate{}, PrerequisiteGate{}}
}

// checkGates runs every gate for h in order and stops at the first block.
func (o *Orchestrator) checkGates(ctx context.Context, run *pipeline.Run, h pipeline.Handler) error {
	gates := append(append([]Gate(nil), o.gates...), o.stageGates[h.Stage()]...)
	for _, g := range gates {
		if err := g.Check(ctx, run, h); err != nil {
			if _, ok := failure.As(err); ok {
				return err
			}
			return failure.Wrap(failure.KindConfiguration, component, string(h.Stage()),
				fmt.Errorf("gate %s: %w", g.Name(), err), false).
				WithDetail("gate", g.Name())
		}
	}
	return nil
}
