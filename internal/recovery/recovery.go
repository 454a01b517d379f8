// Package recovery maps failure kinds to ordered recovery strategies.
//
// A Registry is built once at startup and is read-only afterwards, so it can
// be shared by concurrent runs without locking.
package recovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/launchpad/internal/failure"
	"github.com/fyrsmithlabs/launchpad/internal/operation"
)

// ErrNoStrategy is returned by Dispatch when no registered strategy accepts
// the error.
var ErrNoStrategy = errors.New("recovery: no applicable strategy")

// Strategy recovers from one kind of classified error by producing a
// substitute result.
type Strategy interface {
	// Kind is the failure kind this strategy is bound to.
	Kind() failure.Kind

	// Applicable reports whether the strategy accepts err.
	Applicable(err *failure.Error) bool

	// Recover produces a substitute result for the failed operation.
	Recover(ctx context.Context, err *failure.Error, op *operation.Context) (any, error)

	// Description is a short human-readable summary.
	Description() string
}

// RetryCapper is implemented by strategies that stop accepting an error
// once its retry counter passes a cap.
type RetryCapper interface {
	RetryCap() int
}

// Outcome is a successful recovery.
type Outcome struct {
	Strategy string
	Result   any
}

// Registry holds strategies per kind in registration order.
type Registry struct {
	byKind map[failure.Kind][]Strategy
}

// NewRegistry builds an immutable registry.
func NewRegistry(strategies ...Strategy) (*Registry, error) {
	r := &Registry{byKind: make(map[failure.Kind][]Strategy)}
	for _, s := range strategies {
		if s == nil {
			return nil, fmt.Errorf("recovery: nil strategy")
		}
		if !s.Kind().Valid() {
			return nil, fmt.Errorf("recovery: strategy %q bound to unknown kind %q", s.Description(), s.Kind())
		}
		r.byKind[s.Kind()] = append(r.byKind[s.Kind()], s)
	}
	return r, nil
}

// Strategies returns the strategies registered for kind.
func (r *Registry) Strategies(kind failure.Kind) []Strategy {
	if r == nil {
		return nil
	}
	out := make([]Strategy, len(r.byKind[kind]))
	copy(out, r.byKind[kind])
	return out
}

// RetryCap returns the smallest cap of the strategies registered for kind,
// or 0 when none of them caps retries.
func (r *Registry) RetryCap(kind failure.Kind) int {
	limit := 0
	for _, s := range r.Strategies(kind) {
		c, ok := s.(RetryCapper)
		if !ok || c.RetryCap() <= 0 {
			continue
		}
		if limit == 0 || c.RetryCap() < limit {
			limit = c.RetryCap()
		}
	}
	return limit
}

// Dispatch tries every strategy registered for err.Kind in order. The first
// applicable strategy whose Recover returns without error wins. If strategies
// applied but all failed, the joined recovery errors are returned; if none
// applied, ErrNoStrategy is returned.
func (r *Registry) Dispatch(ctx context.Context, err *failure.Error, op *operation.Context) (Outcome, error) {
	if err == nil {
		return Outcome{}, fmt.Errorf("recovery: nil error")
	}

	var attempts []error
	for _, s := range r.Strategies(err.Kind) {
		if !s.Applicable(err) {
			continue
		}
		result, recErr := safeRecover(ctx, s, err, op)
		if recErr == nil {
			return Outcome{Strategy: s.Description(), Result: result}, nil
		}
		attempts = append(attempts, fmt.Errorf("%s: %w", s.Description(), recErr))
	}

	if len(attempts) == 0 {
		return Outcome{}, ErrNoStrategy
	}
	return Outcome{}, errors.Join(attempts...)
}

func safeRecover(ctx context.Context, s Strategy, err *failure.Error, op *operation.Context) (result any, recErr error) {
	defer func() {
		if r := recover(); r != nil {
			recErr = fmt.Errorf("strategy panicked: %v", r)
		}
	}()
	return s.Recover(ctx, err, op)
}

// Func adapts plain functions into a Strategy.
type Func struct {
	For     failure.Kind
	Name    string
	Accepts func(err *failure.Error) bool
	Do      func(ctx context.Context, err *failure.Error, op *operation.Context) (any, error)
}

func (f Func) Kind() failure.Kind  { return f.For }
func (f Func) Description() string { return f.Name }

func (f Func) Applicable(err *failure.Error) bool {
	if f.Accepts == nil {
		return err.Recoverable
	}
	return f.Accepts(err)
}

func (f Func) Recover(ctx context.Context, err *failure.Error, op *operation.Context) (any, error) {
	return f.Do(ctx, err, op)
}
