// Package poller observes a validation run until it reaches a terminal
// status or a deadline passes.
package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/launchpad/internal/ci"
)

// StatusSource reports run status. ci.Provider satisfies it.
type StatusSource interface {
	Status(ctx context.Context, id ci.RunID) (ci.RunStatus, error)
}

// Observer receives every status change.
type Observer func(ci.RunStatus)

// Options configures polling.
type Options struct {
	// Interval is the initial pause between polls (default: 2s)
	Interval time.Duration `koanf:"interval"`

	// MaxInterval caps the pause when Multiplier > 1 (default: 30s)
	MaxInterval time.Duration `koanf:"max_interval"`

	// Multiplier grows the pause after each poll. 1 keeps it fixed (default: 1)
	Multiplier float64 `koanf:"multiplier"`

	// Timeout bounds the whole wait (default: 30m)
	Timeout time.Duration `koanf:"timeout"`
}

// DefaultOptions returns fixed-interval polling with a 30 minute bound.
func DefaultOptions() Options {
	return Options{
		Interval:    2 * time.Second,
		MaxInterval: 30 * time.Second,
		Multiplier:  1,
		Timeout:     30 * time.Minute,
	}
}

// Poller waits for runs.
type Poller struct {
	opts  Options
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Poller. Zero option fields take their defaults.
func New(opts Options) *Poller {
	def := DefaultOptions()
	if opts.Interval <= 0 {
		opts.Interval = def.Interval
	}
	if opts.MaxInterval < opts.Interval {
		opts.MaxInterval = max(def.MaxInterval, opts.Interval)
	}
	if opts.Multiplier < 1 {
		opts.Multiplier = def.Multiplier
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	return &Poller{opts: opts, now: time.Now, sleep: sleep}
}

// Options returns the effective options.
func (p *Poller) Options() Options { return p.opts }

// Wait polls src for id until the run is terminal or the timeout elapses.
// observer, when non-nil, is called for the first status and then only when
// the status changes. On timeout Wait returns the last observed status and a
// nil error; deciding that a non-terminal status is a failure is up to the
// caller. A status error or context cancellation ends the wait with an error.
func (p *Poller) Wait(ctx context.Context, src StatusSource, id ci.RunID, observer Observer) (ci.RunStatus, error) {
	deadline := p.now().Add(p.opts.Timeout)
	interval := p.opts.Interval

	var last ci.RunStatus
	seen := false
	for {
		st, err := src.Status(ctx, id)
		if err != nil {
			return last, fmt.Errorf("poller: status of %s: %w", id, err)
		}
		if observer != nil && (!seen || st.Status != last.Status) {
			observer(st)
		}
		last, seen = st, true

		if st.Status.Terminal() {
			return st, nil
		}
		remaining := deadline.Sub(p.now())
		if remaining <= 0 {
			return last, nil
		}
		if err := p.sleep(ctx, min(interval, remaining)); err != nil {
			return last, err
		}
		interval = p.next(interval)
	}
}

func (p *Poller) next(d time.Duration) time.Duration {
	if p.opts.Multiplier <= 1 {
		return d
	}
	n := time.Duration(float64(d) * p.opts.Multiplier)
	return min(n, p.opts.MaxInterval)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
