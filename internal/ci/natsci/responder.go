package natsci

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/launchpad/internal/ci"
	"github.com/fyrsmithlabs/launchpad/internal/logging"
	"github.com/fyrsmithlabs/launchpad/internal/validation"
)

// Responder serves validation requests with a checker.
type Responder struct {
	nc      *nats.Conn
	checker *validation.Checker
	opts    Options
	logger  *logging.Logger

	mu  sync.Mutex
	sub *nats.Subscription
	ctx context.Context
	wg  sync.WaitGroup
}

// NewResponder creates a responder. logger may be nil.
func NewResponder(nc *nats.Conn, checker *validation.Checker, opts Options, logger *logging.Logger) *Responder {
	return &Responder{nc: nc, checker: checker, opts: opts.withDefaults(), logger: logger}
}

// Start subscribes to requests in the responder queue group. Validations
// run with ctx.
func (r *Responder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sub != nil {
		return errors.New("natsci: responder already started")
	}
	r.ctx = ctx
	sub, err := r.nc.QueueSubscribe(r.opts.requestSubject(), r.opts.Queue, r.handle)
	if err != nil {
		return fmt.Errorf("natsci: subscribe requests: %w", err)
	}
	if err := r.nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("natsci: flush: %w", err)
	}
	r.sub = sub
	return nil
}

func (r *Responder) handle(msg *nats.Msg) {
	var req request
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		r.reply(msg, ack{Error: "malformed request: " + err.Error()})
		return
	}
	if req.RunID == "" || req.Request.Bundle == nil {
		r.reply(msg, ack{RunID: req.RunID, Error: "request needs a run id and a bundle"})
		return
	}
	r.reply(msg, ack{RunID: req.RunID, Accepted: true})

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.validate(req)
	}()
}

func (r *Responder) validate(req request) {
	ctx := r.ctx
	r.publish(ctx, ci.RunStatus{ID: req.RunID, Status: ci.StatusRunning})

	report, err := r.checker.Check(ctx, req.Request.Bundle)
	if err != nil {
		r.publish(ctx, ci.RunStatus{ID: req.RunID, Status: ci.StatusFailed, Message: err.Error()})
		return
	}
	r.publish(ctx, ci.RunStatus{ID: req.RunID, Status: ci.StatusCompleted, Message: report.Summary(), Report: report})
	if r.logger != nil {
		r.logger.Info(ctx, "validation served",
			zap.String("run_id", string(req.RunID)),
			zap.String("bundle", report.Bundle),
			zap.String("verdict", string(report.Verdict)))
	}
}

func (r *Responder) publish(ctx context.Context, st ci.RunStatus) {
	data, err := json.Marshal(st)
	if err == nil {
		err = r.nc.Publish(r.opts.resultSubject(st.ID), data)
	}
	if err != nil && r.logger != nil {
		r.logger.Error(ctx, "publishing validation result failed",
			zap.String("run_id", string(st.ID)), zap.Error(err))
	}
}

func (r *Responder) reply(msg *nats.Msg, a ack) {
	data, _ := json.Marshal(a)
	if err := msg.Respond(data); err != nil && r.logger != nil {
		r.logger.Warn(context.Background(), "replying to validation request failed", zap.Error(err))
	}
}

// Close unsubscribes and waits for in-flight validations.
func (r *Responder) Close() error {
	r.mu.Lock()
	sub := r.sub
	r.sub = nil
	r.mu.Unlock()

	var err error
	if sub != nil {
		err = sub.Unsubscribe()
	}
	r.wg.Wait()
	return err
}
