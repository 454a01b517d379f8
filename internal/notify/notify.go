// Package notify delivers pipeline notifications: validation outcomes,
// stakeholder review requests for high-risk changes, and run results.
//
// Notifications are best-effort. Callers log a delivery error and carry on;
// no notifier ever blocks a pipeline stage.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/launchpad/internal/logging"
	"github.com/fyrsmithlabs/launchpad/internal/secrets"
)

// Kind identifies a notification.
type Kind string

const (
	KindValidationPassed  Kind = "validation_passed"
	KindValidationWarning Kind = "validation_warning"
	KindStakeholderReview Kind = "stakeholder_review"
	KindRunSucceeded      Kind = "run_succeeded"
	KindRunDegraded       Kind = "run_degraded"
	KindRunFailed         Kind = "run_failed"
)

// Event is one notification.
type Event struct {
	Kind        Kind              `json:"kind"`
	OperationID string            `json:"operation_id"`
	Repository  string            `json:"repository,omitempty"`
	Title       string            `json:"title"`
	Message     string            `json:"message,omitempty"`
	Fields      map[string]string `json:"fields,omitempty"`
	At          time.Time         `json:"at"`
}

// Notifier delivers events.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Redactor removes secrets from free text.
type Redactor interface {
	Redact(content string) string
}

var _ Redactor = (*secrets.Scanner)(nil)

func redact(r Redactor, ev Event) Event {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	if r == nil {
		return ev
	}
	ev.Title = r.Redact(ev.Title)
	ev.Message = r.Redact(ev.Message)
	if len(ev.Fields) > 0 {
		fields := make(map[string]string, len(ev.Fields))
		for k, v := range ev.Fields {
			fields[k] = r.Redact(v)
		}
		ev.Fields = fields
	}
	return ev
}

// Log writes events to the structured log.
type Log struct {
	logger   *logging.Logger
	redactor Redactor
}

// NewLog creates a log notifier. redactor may be nil.
func NewLog(logger *logging.Logger, redactor Redactor) *Log {
	return &Log{logger: logger, redactor: redactor}
}

// Notify logs ev at warn level for stakeholder reviews and failures, info
// otherwise.
func (l *Log) Notify(ctx context.Context, ev Event) error {
	if l.logger == nil {
		return nil
	}
	ev = redact(l.redactor, ev)
	fields := []zap.Field{
		zap.String("kind", string(ev.Kind)),
		zap.String("operation_id", ev.OperationID),
		zap.String("repository", ev.Repository),
		zap.String("message", ev.Message),
	}
	for k, v := range ev.Fields {
		fields = append(fields, zap.String(k, v))
	}
	switch ev.Kind {
	case KindStakeholderReview, KindRunFailed, KindValidationWarning:
		l.logger.Warn(ctx, ev.Title, fields...)
	default:
		l.logger.Info(ctx, ev.Title, fields...)
	}
	return nil
}

// Multi fans an event out to every notifier.
type Multi []Notifier

// Notify delivers ev to all notifiers and joins their errors.
func (m Multi) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", n, err))
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Notify(context.Context, Event) error { return nil }
