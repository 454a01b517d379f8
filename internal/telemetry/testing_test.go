package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// fakeRun writes the span shape the orchestrator produces.
func fakeRun(tt *TestTelemetry, status string, stages ...string) {
	tracer := tt.Tracer("launchpad")
	ctx, run := tracer.Start(context.Background(), RunSpan, trace.WithAttributes(
		attribute.String("operation.id", "op-1"),
	))
	for _, stage := range stages {
		_, s := tracer.Start(ctx, StageSpan, trace.WithAttributes(attribute.String("pipeline.stage", stage)))
		s.End()
	}
	run.SetAttributes(attribute.String("run.status", status))
	run.End()
}

func TestTestTelemetry_SpanAssertions(t *testing.T) {
	tt := NewTestTelemetry()
	fakeRun(tt, "success", "generate", "create_repository")

	tt.AssertSpanExists(t, RunSpan)
	tt.AssertSpanAttribute(t, RunSpan, "operation.id", "op-1")
	tt.AssertSpanAttribute(t, StageSpan, "pipeline.stage", "generate")
	assert.Len(t, tt.Spans(), 3)
}

func TestTestTelemetry_AssertRunSpans(t *testing.T) {
	tt := NewTestTelemetry()
	fakeRun(tt, "failed", "generate", "create_repository", "commit_artifacts")

	run := tt.AssertRunSpans(t, "failed", "generate", "create_repository", "commit_artifacts")
	require.NotNil(t, run)
	assert.Equal(t, RunSpan, run.Name())
}

func TestTestTelemetry_AssertRunSpansReportsMismatch(t *testing.T) {
	tt := NewTestTelemetry()
	fakeRun(tt, "success", "generate", "merge")

	rec := &recordingTB{TB: t}
	tt.AssertRunSpans(rec, "failed", "generate", "deploy")
	assert.Equal(t, 2, rec.errors, "status and stage order both reported")
}

func TestTestTelemetry_StageSpansOfOtherRunsIgnored(t *testing.T) {
	tt := NewTestTelemetry()
	fakeRun(tt, "success", "generate")
	_, stray := tt.Tracer("launchpad").Start(context.Background(), StageSpan,
		trace.WithAttributes(attribute.String("pipeline.stage", "merge")))
	stray.End()

	tt.AssertRunSpans(t, "success", "generate")
}

func TestTestTelemetry_CounterTotal(t *testing.T) {
	tt := NewTestTelemetry()
	counter, err := tt.Meter("launchpad").Int64Counter("launchpad.runs")
	require.NoError(t, err)

	ctx := context.Background()
	counter.Add(ctx, 1, metric.WithAttributes(attribute.String("run.status", "success")))
	counter.Add(ctx, 2, metric.WithAttributes(attribute.String("run.status", "failed")))

	assert.Equal(t, int64(3), tt.CounterTotal(t, "launchpad.runs"))
}

func TestTestTelemetry_Shutdown(t *testing.T) {
	tt := NewTestTelemetry()
	fakeRun(tt, "success")

	require.NoError(t, tt.Shutdown(context.Background()))
}

// recordingTB counts Errorf calls instead of failing the test.
type recordingTB struct {
	testing.TB
	errors int
}

func (r *recordingTB) Helper() {}

func (r *recordingTB) Errorf(string, ...any) { r.errors++ }
