// Package operation tracks a single pipeline run: its identity, input
// parameters and the ordered log of checkpoints recorded as stages succeed.
//
// A Context is owned by exactly one run and is never shared across runs, so
// it carries no locking.
package operation

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Checkpoint is an immutable snapshot of one stage's output.
type Checkpoint struct {
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
	Snapshot  any       `json:"snapshot,omitempty"`
}

// ReinvokeFunc re-executes the operation that is currently in flight.
type ReinvokeFunc func(ctx context.Context) (any, error)

// Context is the per-run operation context.
type Context struct {
	id          string
	component   string
	stage       string
	startedAt   time.Time
	params      map[string]any
	checkpoints []Checkpoint
	reinvoke    ReinvokeFunc

	now func() time.Time
}

// New starts a fresh operation context for component with an immutable copy
// of params.
func New(component string, params map[string]any) *Context {
	return &Context{
		id:        uuid.New().String(),
		component: component,
		startedAt: time.Now(),
		params:    maps.Clone(params),
		now:       time.Now,
	}
}

// ID returns the opaque run identifier.
func (c *Context) ID() string { return c.id }

// Component returns the owning component name.
func (c *Context) Component() string { return c.component }

// StartedAt returns the run start time.
func (c *Context) StartedAt() time.Time { return c.startedAt }

// Stage returns the stage currently executing.
func (c *Context) Stage() string { return c.stage }

// SetStage records the stage currently executing.
func (c *Context) SetStage(stage string) { c.stage = stage }

// Params returns a copy of the input parameter snapshot.
func (c *Context) Params() map[string]any {
	return maps.Clone(c.params)
}

// Param returns a single input parameter.
func (c *Context) Param(key string) (any, bool) {
	v, ok := c.params[key]
	return v, ok
}

// Checkpoint appends a checkpoint. Timestamps never go backwards: if the
// clock reports a time before the previous checkpoint, the previous
// timestamp is reused.
func (c *Context) Checkpoint(name string, snapshot any) Checkpoint {
	ts := c.now()
	if n := len(c.checkpoints); n > 0 && ts.Before(c.checkpoints[n-1].Timestamp) {
		ts = c.checkpoints[n-1].Timestamp
	}
	cp := Checkpoint{Name: name, Timestamp: ts, Snapshot: snapshot}
	c.checkpoints = append(c.checkpoints, cp)
	return cp
}

// Checkpoints returns a copy of the checkpoint log in insertion order.
func (c *Context) Checkpoints() []Checkpoint {
	return slices.Clone(c.checkpoints)
}

// HasSucceeded reports whether a checkpoint named name has been recorded.
func (c *Context) HasSucceeded(name string) bool {
	return slices.ContainsFunc(c.checkpoints, func(cp Checkpoint) bool {
		return cp.Name == name
	})
}

// Last returns the most recent checkpoint, the "last known good" state.
func (c *Context) Last() (Checkpoint, bool) {
	if len(c.checkpoints) == 0 {
		return Checkpoint{}, false
	}
	return c.checkpoints[len(c.checkpoints)-1], true
}

// SetReinvoke binds the operation that Reinvoke will re-execute. The
// orchestrator sets it before each stage.
func (c *Context) SetReinvoke(fn ReinvokeFunc) { c.reinvoke = fn }

// Reinvoke re-executes the in-flight operation.
func (c *Context) Reinvoke(ctx context.Context) (any, error) {
	if c.reinvoke == nil {
		return nil, ErrNothingToReinvoke
	}
	return c.reinvoke(ctx)
}

// Elapsed returns the time since the run started.
func (c *Context) Elapsed() time.Duration {
	return c.now().Sub(c.startedAt)
}
