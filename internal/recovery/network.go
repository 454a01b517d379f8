package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/launchpad/internal/failure"
	"github.com/fyrsmithlabs/launchpad/internal/operation"
)

// DefaultMaxRetries is the default cap on network retries per stage.
const DefaultMaxRetries = 3

// NetworkRetry re-invokes the failed operation after a delay proportional to
// the error's retry counter.
type NetworkRetry struct {
	Base       time.Duration
	MaxRetries int

	// Sleep waits for d or until ctx is done. Defaults to a timer-based wait.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewNetworkRetry creates a linear-backoff network strategy.
func NewNetworkRetry(base time.Duration, maxRetries int) *NetworkRetry {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &NetworkRetry{Base: base, MaxRetries: maxRetries}
}

func (n *NetworkRetry) Kind() failure.Kind { return failure.KindNetwork }

// RetryCap returns MaxRetries.
func (n *NetworkRetry) RetryCap() int { return n.MaxRetries }

func (n *NetworkRetry) Description() string {
	return fmt.Sprintf("network retry (linear %s, max %d)", n.Base, n.MaxRetries)
}

// Applicable accepts recoverable network errors whose counter has not passed
// the cap.
func (n *NetworkRetry) Applicable(err *failure.Error) bool {
	return err.Recoverable && err.RetryCount() <= n.MaxRetries
}

// Delay returns the wait before retry number count.
func (n *NetworkRetry) Delay(count int) time.Duration {
	if count < 1 {
		count = 1
	}
	return n.Base * time.Duration(count)
}

func (n *NetworkRetry) Recover(ctx context.Context, err *failure.Error, op *operation.Context) (any, error) {
	if op == nil {
		return nil, fmt.Errorf("network retry: no operation context")
	}
	sleep := n.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	if waitErr := sleep(ctx, n.Delay(err.RetryCount())); waitErr != nil {
		return nil, waitErr
	}
	return op.Reinvoke(ctx)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
