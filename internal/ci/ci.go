// Package ci defines the validation provider contract. A provider accepts a
// repository revision, starts a validation run and reports its status until
// the run is terminal.
//
// Providers are tagged by Kind. Four kinds exist: GitHub Actions, Temporal,
// NATS and local. Resolve maps a configured kind to a provider and reports
// anything else as a fatal configuration error.
package ci

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fyrsmithlabs/launchpad/internal/artifact"
	"github.com/fyrsmithlabs/launchpad/internal/failure"
	"github.com/fyrsmithlabs/launchpad/internal/validation"
	"github.com/fyrsmithlabs/launchpad/internal/vcs"
)

// Kind identifies a validation provider.
type Kind string

// Provider kinds.
const (
	KindGitHubActions Kind = "github-actions"
	KindTemporal      Kind = "temporal"
	KindNATS          Kind = "nats"
	KindLocal         Kind = "local"
)

// Kinds returns every supported provider kind.
func Kinds() []Kind {
	return []Kind{KindGitHubActions, KindTemporal, KindNATS, KindLocal}
}

// ParseKind parses a provider kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedKind, s)
}

// ErrUnsupportedKind is returned for a provider kind outside Kinds().
var ErrUnsupportedKind = errors.New("ci: unsupported provider kind")

// ErrUnknownRun is returned by Status for a run id the provider never issued.
var ErrUnknownRun = errors.New("ci: unknown run")

// RunID identifies one validation run. It is opaque to the engine.
type RunID string

// Status is the lifecycle state of a run.
type Status string

// Run statuses. Completed, failed and cancelled are terminal.
const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Request describes the revision to validate.
type Request struct {
	Repository vcs.Repository   `json:"repository"`
	Ref        string           `json:"ref"`
	Bundle     *artifact.Bundle `json:"bundle,omitempty"`
}

// RunStatus is a snapshot of a run. Report is set once the run completed.
type RunStatus struct {
	ID        RunID              `json:"id"`
	Status    Status             `json:"status"`
	Message   string             `json:"message,omitempty"`
	Report    *validation.Report `json:"report,omitempty"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Provider runs validations.
type Provider interface {
	Kind() Kind
	Trigger(ctx context.Context, req Request) (RunID, error)
	Status(ctx context.Context, id RunID) (RunStatus, error)
}

// Set holds the configured providers by kind.
type Set struct {
	providers map[Kind]Provider
}

// NewSet builds a Set. Providers with a kind outside Kinds() are rejected.
func NewSet(providers ...Provider) (*Set, error) {
	s := &Set{providers: make(map[Kind]Provider, len(providers))}
	for _, p := range providers {
		if p == nil {
			return nil, errors.New("ci: nil provider")
		}
		if _, err := ParseKind(string(p.Kind())); err != nil {
			return nil, err
		}
		s.providers[p.Kind()] = p
	}
	return s, nil
}

// Kinds returns the configured kinds, sorted.
func (s *Set) Kinds() []Kind {
	out := make([]Kind, 0, len(s.providers))
	for k := range s.providers {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Resolve returns the provider for kind. An unsupported or unconfigured
// kind is a non-recoverable ConfigurationError.
func (s *Set) Resolve(kind string) (Provider, error) {
	k, err := ParseKind(kind)
	if err != nil {
		return nil, failure.Wrap(failure.KindConfiguration, "ci", "resolve", err, false).
			WithDetail("provider", kind)
	}
	if s != nil {
		if p, ok := s.providers[k]; ok {
			return p, nil
		}
	}
	return nil, failure.New(failure.KindConfiguration, "ci", "resolve",
		fmt.Sprintf("provider %q is not configured", k), false).
		WithDetail("provider", string(k))
}
