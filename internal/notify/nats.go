package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is the subject prefix for notifications.
const DefaultSubject = "launchpad.events"

// NATS publishes events as JSON to <subject>.<kind>.
type NATS struct {
	nc       *nats.Conn
	subject  string
	redactor Redactor
}

// NewNATS creates a NATS notifier. redactor may be nil.
func NewNATS(nc *nats.Conn, subject string, redactor Redactor) (*NATS, error) {
	if nc == nil {
		return nil, fmt.Errorf("notify: nats connection is required")
	}
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATS{nc: nc, subject: subject, redactor: redactor}, nil
}

// Subject returns the subject ev is published on.
func (n *NATS) Subject(kind Kind) string {
	return n.subject + "." + string(kind)
}

// Notify publishes ev.
func (n *NATS) Notify(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(redact(n.redactor, ev))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := n.nc.Publish(n.Subject(ev.Kind), data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
