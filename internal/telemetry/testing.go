package telemetry

import (
	"context"
	"slices"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// Span names written by the orchestrator.
const (
	RunSpan   = "pipeline.run"
	StageSpan = "pipeline.stage"
)

// TestTelemetry records spans and metrics in memory.
type TestTelemetry struct {
	*Telemetry

	recorder *tracetest.SpanRecorder
	reader   *sdkmetric.ManualReader
}

// NewTestTelemetry returns an enabled Telemetry that exports nowhere and
// leaves the global providers alone.
func NewTestTelemetry() *TestTelemetry {
	recorder := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	return &TestTelemetry{
		Telemetry: &Telemetry{
			cfg:            cfg,
			tracerProvider: sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)),
			meterProvider:  sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
		},
		recorder: recorder,
		reader:   reader,
	}
}

// Spans returns the ended spans in end order.
func (t *TestTelemetry) Spans() []sdktrace.ReadOnlySpan {
	return t.recorder.Ended()
}

func (t *TestTelemetry) span(name string) sdktrace.ReadOnlySpan {
	for _, s := range t.Spans() {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// AssertSpanExists fails tb unless a span called name ended.
func (t *TestTelemetry) AssertSpanExists(tb testing.TB, name string) {
	tb.Helper()
	if t.span(name) == nil {
		tb.Errorf("span %q not recorded; got %v", name, t.spanNames())
	}
}

// AssertSpanAttribute fails tb unless the first span called name carries
// key with the expected value.
func (t *TestTelemetry) AssertSpanAttribute(tb testing.TB, name, key string, want any) {
	tb.Helper()
	s := t.span(name)
	if s == nil {
		tb.Fatalf("span %q not recorded; got %v", name, t.spanNames())
	}
	got, ok := attr(s, key)
	if !ok {
		tb.Errorf("span %q has no attribute %q", name, key)
		return
	}
	if got != want {
		tb.Errorf("span %q attribute %q = %v, want %v", name, key, got, want)
	}
}

// AssertRunSpans checks the trace of one pipeline run: a single run span
// with the given run.status whose stage children ran the given stages in
// order. It returns the run span.
func (t *TestTelemetry) AssertRunSpans(tb testing.TB, status string, stages ...string) sdktrace.ReadOnlySpan {
	tb.Helper()
	var runs []sdktrace.ReadOnlySpan
	for _, s := range t.Spans() {
		if s.Name() == RunSpan {
			runs = append(runs, s)
		}
	}
	if len(runs) != 1 {
		tb.Fatalf("recorded %d %s spans, want 1", len(runs), RunSpan)
	}
	run := runs[0]
	if got, _ := attr(run, "run.status"); got != status {
		tb.Errorf("run.status = %v, want %s", got, status)
	}

	var children []sdktrace.ReadOnlySpan
	for _, s := range t.Spans() {
		if s.Name() == StageSpan && s.Parent().SpanID() == run.SpanContext().SpanID() {
			children = append(children, s)
		}
	}
	slices.SortStableFunc(children, func(a, b sdktrace.ReadOnlySpan) int {
		return a.StartTime().Compare(b.StartTime())
	})
	got := make([]string, len(children))
	for i, s := range children {
		v, _ := attr(s, "pipeline.stage")
		got[i], _ = v.(string)
	}
	if !slices.Equal(got, stages) {
		tb.Errorf("stage spans = %v, want %v", got, stages)
	}
	return run
}

// Collect reads the current metric values.
func (t *TestTelemetry) Collect(tb testing.TB) metricdata.ResourceMetrics {
	tb.Helper()
	var rm metricdata.ResourceMetrics
	if err := t.reader.Collect(context.Background(), &rm); err != nil {
		tb.Fatalf("collecting metrics: %v", err)
	}
	return rm
}

// CounterTotal sums every data point of the int64 counter called name.
func (t *TestTelemetry) CounterTotal(tb testing.TB, name string) int64 {
	tb.Helper()
	for _, sm := range t.Collect(tb).ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				tb.Fatalf("metric %q is %T, want an int64 sum", name, m.Data)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	tb.Fatalf("metric %q not recorded", name)
	return 0
}

func (t *TestTelemetry) spanNames() []string {
	var names []string
	for _, s := range t.Spans() {
		names = append(names, s.Name())
	}
	return names
}

func attr(s sdktrace.ReadOnlySpan, key string) (any, bool) {
	for _, kv := range s.Attributes() {
		if string(kv.Key) == key {
			return value(kv.Value), true
		}
	}
	return nil, false
}

func value(v attribute.Value) any {
	switch v.Type() {
	case attribute.STRING:
		return v.AsString()
	case attribute.INT64:
		return v.AsInt64()
	case attribute.FLOAT64:
		return v.AsFloat64()
	case attribute.BOOL:
		return v.AsBool()
	default:
		return v.AsInterface()
	}
}
