// Package local runs validations in-process with the validation checker.
package local

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/launchpad/internal/ci"
	"github.com/fyrsmithlabs/launchpad/internal/logging"
	"github.com/fyrsmithlabs/launchpad/internal/validation"
)

// ErrNoBundle is returned when a request carries no bundle to validate.
var ErrNoBundle = errors.New("local: request has no bundle")

// Provider is a ci.Provider that validates on a background goroutine.
type Provider struct {
	checker *validation.Checker
	tracker *ci.Tracker
	logger  *logging.Logger
	wg      sync.WaitGroup
}

var _ ci.Provider = (*Provider)(nil)

// New creates a local provider. logger may be nil.
func New(checker *validation.Checker, logger *logging.Logger) *Provider {
	return &Provider{
		checker: checker,
		tracker: ci.NewTracker(),
		logger:  logger,
	}
}

// Kind implements ci.Provider.
func (p *Provider) Kind() ci.Kind { return ci.KindLocal }

// Trigger starts validating req.Bundle and returns immediately.
func (p *Provider) Trigger(ctx context.Context, req ci.Request) (ci.RunID, error) {
	if req.Bundle == nil {
		return "", ErrNoBundle
	}
	id := ci.NewRunID("local")
	p.tracker.Start(id)

	runCtx := context.WithoutCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(runCtx, id, req)
	}()
	return id, nil
}

func (p *Provider) run(ctx context.Context, id ci.RunID, req ci.Request) {
	p.tracker.Update(ci.RunStatus{ID: id, Status: ci.StatusRunning})

	report, err := p.checker.Check(ctx, req.Bundle)
	if err != nil {
		p.tracker.Update(ci.RunStatus{ID: id, Status: ci.StatusFailed, Message: err.Error()})
		if p.logger != nil {
			p.logger.Warn(ctx, "local validation run failed", zap.String("run_id", string(id)), zap.Error(err))
		}
		return
	}
	p.tracker.Update(ci.RunStatus{ID: id, Status: ci.StatusCompleted, Report: report, Message: report.Summary()})
	if p.logger != nil {
		p.logger.Debug(ctx, "local validation run completed",
			zap.String("run_id", string(id)),
			zap.String("verdict", string(report.Verdict)))
	}
}

// Status implements ci.Provider.
func (p *Provider) Status(_ context.Context, id ci.RunID) (ci.RunStatus, error) {
	return p.tracker.Get(id)
}

// Wait blocks until every triggered run has finished.
func (p *Provider) Wait() {
	p.wg.Wait()
}
