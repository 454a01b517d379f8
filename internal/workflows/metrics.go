package workflows

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fyrsmithlabs/launchpad/internal/workflows"

var (
	metricsOnce      sync.Once
	activityDuration metric.Float64Histogram
	activityErrors   metric.Int64Counter
	verdictCounter   metric.Int64Counter
)

// initMetrics creates the OpenTelemetry instruments on first use so the
// global meter provider configured by telemetry is picked up.
func initMetrics() {
	metricsOnce.Do(func() {
		meter := otel.Meter(instrumentationName)

		var err error
		activityDuration, err = meter.Float64Histogram(
			"launchpad.workflows.activity.duration",
			metric.WithDescription("Duration of workflow activity executions"),
			metric.WithUnit("s"),
		)
		if err != nil {
			panic(fmt.Sprintf("failed to create activity duration: %v", err))
		}

		activityErrors, err = meter.Int64Counter(
			"launchpad.workflows.activity.errors",
			metric.WithDescription("Number of activity execution errors"),
			metric.WithUnit("{error}"),
		)
		if err != nil {
			panic(fmt.Sprintf("failed to create activity error counter: %v", err))
		}

		verdictCounter, err = meter.Int64Counter(
			"launchpad.workflows.validation.verdicts",
			metric.WithDescription("Validation verdicts produced by the validation workflow"),
			metric.WithUnit("{verdict}"),
		)
		if err != nil {
			panic(fmt.Sprintf("failed to create verdict counter: %v", err))
		}
	})
}

// recordActivity records an activity's duration and, if err is set, an error.
func recordActivity(ctx context.Context, activity string, start time.Time, err error) {
	initMetrics()
	attrs := metric.WithAttributes(attribute.String("activity", activity))
	activityDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	if err != nil {
		activityErrors.Add(ctx, 1, attrs)
	}
}

func recordVerdict(ctx context.Context, verdict string) {
	initMetrics()
	verdictCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("verdict", verdict)))
}
