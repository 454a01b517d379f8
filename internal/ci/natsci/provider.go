// Package natsci runs validations on remote validators reached over NATS.
//
// The provider sends a validation request to <subject>.request and expects
// an acknowledgement reply. Validators publish run status updates to
// <subject>.result.<run id>; the provider records them for Status.
//
// Responder is the validator side; `launchpad validator` runs it.
package natsci

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/launchpad/internal/ci"
	"github.com/fyrsmithlabs/launchpad/internal/logging"
)

// DefaultSubject is the subject prefix for validation traffic.
const DefaultSubject = "launchpad.validate"

// ErrRejected is returned when a validator refuses a request.
var ErrRejected = errors.New("natsci: validation request rejected")

// Options configures the provider and responder.
type Options struct {
	// Subject is the subject prefix (default: launchpad.validate)
	Subject string `koanf:"subject"`

	// Queue is the responder queue group (default: launchpad-validators)
	Queue string `koanf:"queue"`

	// RequestTimeout bounds the wait for an acknowledgement (default: 5s)
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

func (o Options) withDefaults() Options {
	if o.Subject == "" {
		o.Subject = DefaultSubject
	}
	if o.Queue == "" {
		o.Queue = "launchpad-validators"
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 5 * time.Second
	}
	return o
}

func (o Options) requestSubject() string { return o.Subject + ".request" }

func (o Options) resultSubject(id ci.RunID) string { return o.Subject + ".result." + string(id) }

// request is the wire form of a validation request.
type request struct {
	RunID   ci.RunID   `json:"run_id"`
	Request ci.Request `json:"request"`
}

// ack is the validator's reply to a request.
type ack struct {
	RunID    ci.RunID `json:"run_id"`
	Accepted bool     `json:"accepted"`
	Error    string   `json:"error,omitempty"`
}

// Provider is a ci.Provider backed by NATS request/reply.
type Provider struct {
	nc      *nats.Conn
	opts    Options
	tracker *ci.Tracker
	sub     *nats.Subscription
	logger  *logging.Logger
}

var _ ci.Provider = (*Provider)(nil)

// New creates a provider and subscribes to run results. logger may be nil.
func New(nc *nats.Conn, opts Options, logger *logging.Logger) (*Provider, error) {
	if nc == nil {
		return nil, errors.New("natsci: nil connection")
	}
	p := &Provider{
		nc:      nc,
		opts:    opts.withDefaults(),
		tracker: ci.NewTracker(),
		logger:  logger,
	}
	sub, err := nc.Subscribe(p.opts.Subject+".result.*", p.handleResult)
	if err != nil {
		return nil, fmt.Errorf("natsci: subscribe results: %w", err)
	}
	if err := nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("natsci: flush: %w", err)
	}
	p.sub = sub
	return p, nil
}

// Kind implements ci.Provider.
func (p *Provider) Kind() ci.Kind { return ci.KindNATS }

// Trigger sends the request and waits for a validator to accept it.
func (p *Provider) Trigger(ctx context.Context, req ci.Request) (ci.RunID, error) {
	id := ci.NewRunID("nats")
	data, err := json.Marshal(request{RunID: id, Request: req})
	if err != nil {
		return "", fmt.Errorf("natsci: marshal request: %w", err)
	}
	p.tracker.Start(id)

	reqCtx, cancel := context.WithTimeout(ctx, p.opts.RequestTimeout)
	defer cancel()
	msg, err := p.nc.RequestWithContext(reqCtx, p.opts.requestSubject(), data)
	if err != nil {
		p.tracker.Update(ci.RunStatus{ID: id, Status: ci.StatusFailed, Message: err.Error()})
		return "", fmt.Errorf("natsci: request validation: %w", err)
	}

	var reply ack
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return "", fmt.Errorf("natsci: decode acknowledgement: %w", err)
	}
	if !reply.Accepted {
		p.tracker.Update(ci.RunStatus{ID: id, Status: ci.StatusFailed, Message: reply.Error})
		return "", fmt.Errorf("%w: %s", ErrRejected, reply.Error)
	}
	if p.logger != nil {
		p.logger.Debug(ctx, "validation request accepted", zap.String("run_id", string(id)))
	}
	return id, nil
}

// Status implements ci.Provider.
func (p *Provider) Status(_ context.Context, id ci.RunID) (ci.RunStatus, error) {
	return p.tracker.Get(id)
}

func (p *Provider) handleResult(msg *nats.Msg) {
	id := ci.RunID(strings.TrimPrefix(msg.Subject, p.opts.Subject+".result."))
	if _, err := p.tracker.Get(id); err != nil {
		return
	}
	var st ci.RunStatus
	if err := json.Unmarshal(msg.Data, &st); err != nil {
		if p.logger != nil {
			p.logger.Warn(context.Background(), "discarding malformed validation result",
				zap.String("subject", msg.Subject), zap.Error(err))
		}
		return
	}
	st.ID = id
	p.tracker.Update(st)
}

// Close stops receiving results.
func (p *Provider) Close() error {
	return p.sub.Unsubscribe()
}
