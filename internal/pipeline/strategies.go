package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/launchpad/internal/artifact"
	"github.com/fyrsmithlabs/launchpad/internal/catalog"
	"github.com/fyrsmithlabs/launchpad/internal/failure"
	"github.com/fyrsmithlabs/launchpad/internal/operation"
	"github.com/fyrsmithlabs/launchpad/internal/recovery"
)

// MinimalArtifactStrategy substitutes the minimal bundle for the run's
// specification when generation fails.
func MinimalArtifactStrategy() recovery.Strategy {
	return recovery.Func{
		For:  failure.KindTemplateGeneration,
		Name: "minimal artifact",
		Accepts: func(err *failure.Error) bool {
			return err.Recoverable && err.Operation == string(StageGenerate)
		},
		Do: func(_ context.Context, _ *failure.Error, op *operation.Context) (any, error) {
			v, _ := op.Param(ParamSpecification)
			spec, ok := v.(artifact.Specification)
			if !ok {
				return nil, fmt.Errorf("operation has no specification")
			}
			return artifact.Minimal(spec), nil
		},
	}
}

// DeferredRegistrationStrategy queues a failed catalog registration for a
// later retry. The deployment stays in place.
func DeferredRegistrationStrategy(queue catalog.Queue) recovery.Strategy {
	return recovery.Func{
		For:  failure.KindRegistry,
		Name: "deferred registration",
		Do: func(ctx context.Context, err *failure.Error, _ *operation.Context) (any, error) {
			v, _ := err.Detail(DetailRecord)
			rec, ok := v.(catalog.Record)
			if !ok {
				return nil, fmt.Errorf("error carries no catalog record")
			}
			if qErr := queue.Defer(ctx, rec, err.Message); qErr != nil {
				return nil, qErr
			}
			return &rec, nil
		},
	}
}

// StrategyOptions configures DefaultStrategies.
type StrategyOptions struct {
	// NetworkBaseDelay is the linear backoff step (default: 1s)
	NetworkBaseDelay time.Duration `koanf:"network_base_delay"`

	// NetworkMaxRetries caps network retries per stage (default: 3). The
	// orchestrator takes its cap from this strategy.
	NetworkMaxRetries int `koanf:"network_max_retries"`
}

// DefaultStrategies returns the built-in strategies: network retry, minimal
// artifact and, when queue is set, deferred registration.
func DefaultStrategies(opts StrategyOptions, queue catalog.Queue) []recovery.Strategy {
	if opts.NetworkBaseDelay <= 0 {
		opts.NetworkBaseDelay = time.Second
	}
	strategies := []recovery.Strategy{
		recovery.NewNetworkRetry(opts.NetworkBaseDelay, opts.NetworkMaxRetries),
		MinimalArtifactStrategy(),
	}
	if queue != nil {
		strategies = append(strategies, DeferredRegistrationStrategy(queue))
	}
	return strategies
}
