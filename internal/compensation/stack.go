// Package compensation holds the per-run stack of compensating actions.
//
// Actions are pushed as stages succeed and executed in reverse order when a
// run fails. Every action runs at most once; failures are logged and never
// stop the remaining actions. A Stack belongs to one run and is not safe for
// concurrent use.
package compensation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/launchpad/internal/logging"
)

// Action undoes the effect of one previously-succeeded stage.
type Action struct {
	// ID identifies the action, usually the stage name.
	ID string

	// Description is a human-readable summary for logs and results.
	Description string

	// Reverse performs the reversal.
	Reverse func(ctx context.Context) error

	// Reversible reports whether reversal is currently possible. A nil guard
	// means always reversible.
	Reversible func(ctx context.Context) bool
}

// Status is the outcome of one action.
type Status string

const (
	StatusReversed      Status = "reversed"
	StatusNotReversible Status = "not_reversible"
	StatusFailed        Status = "failed"
)

// Outcome records what happened to one action during Execute.
type Outcome struct {
	ID          string        `json:"id"`
	Description string        `json:"description"`
	Status      Status        `json:"status"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// Stack is a LIFO list of compensating actions.
type Stack struct {
	actions  []Action
	executed map[string]bool
	logger   *logging.Logger
}

// NewStack creates an empty stack. logger may be nil.
func NewStack(logger *logging.Logger) *Stack {
	return &Stack{
		executed: make(map[string]bool),
		logger:   logger,
	}
}

// Push registers an action. Actions must have a unique ID within the stack,
// and an ID that was already executed cannot be pushed again.
func (s *Stack) Push(a Action) error {
	if a.ID == "" {
		return fmt.Errorf("compensation: action id is required")
	}
	if a.Reverse == nil {
		return fmt.Errorf("compensation: action %s has no reverse procedure", a.ID)
	}
	if s.executed[a.ID] {
		return fmt.Errorf("compensation: action %s already executed", a.ID)
	}
	for _, existing := range s.actions {
		if existing.ID == a.ID {
			return fmt.Errorf("compensation: action %s already registered", a.ID)
		}
	}
	s.actions = append(s.actions, a)
	return nil
}

// Len returns the number of pending actions.
func (s *Stack) Len() int { return len(s.actions) }

// IDs returns the pending action ids in registration order.
func (s *Stack) IDs() []string {
	ids := make([]string, len(s.actions))
	for i, a := range s.actions {
		ids[i] = a.ID
	}
	return ids
}

// Execute runs every pending action in reverse registration order and clears
// the stack. Each action is attempted once, including ones whose guard
// reports not reversible, so every registered resource has an outcome.
func (s *Stack) Execute(ctx context.Context) []Outcome {
	outcomes := make([]Outcome, 0, len(s.actions))

	for i := len(s.actions) - 1; i >= 0; i-- {
		a := s.actions[i]
		if s.executed[a.ID] {
			continue
		}
		s.executed[a.ID] = true
		outcomes = append(outcomes, s.run(ctx, a))
	}

	s.actions = nil
	return outcomes
}

// Clear drops every pending action without running it.
func (s *Stack) Clear() {
	s.actions = nil
}

func (s *Stack) run(ctx context.Context, a Action) (out Outcome) {
	start := time.Now()
	out = Outcome{ID: a.ID, Description: a.Description}
	defer func() {
		out.Duration = time.Since(start)
		if r := recover(); r != nil {
			out.Status = StatusFailed
			out.Error = fmt.Sprintf("panic: %v", r)
		}
		s.log(ctx, out)
	}()

	if a.Reversible != nil && !a.Reversible(ctx) {
		out.Status = StatusNotReversible
		return out
	}

	if err := a.Reverse(ctx); err != nil {
		out.Status = StatusFailed
		out.Error = err.Error()
		return out
	}
	out.Status = StatusReversed
	return out
}

func (s *Stack) log(ctx context.Context, out Outcome) {
	if s.logger == nil {
		return
	}
	fields := []zap.Field{
		zap.String("action", out.ID),
		zap.String("description", out.Description),
		zap.String("status", string(out.Status)),
		zap.Duration("duration", out.Duration),
	}
	if out.Status == StatusFailed {
		s.logger.Error(ctx, "compensating action failed", append(fields, zap.String("error", out.Error))...)
		return
	}
	s.logger.Info(ctx, "compensating action executed", fields...)
}
