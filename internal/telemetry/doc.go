// Package telemetry sets up OpenTelemetry tracing and metrics for launchpad.
//
// The orchestrator opens one span per pipeline run with a child span per
// stage; the HTTP server and the Temporal workflows record metrics through
// the meter provider. Both export over OTLP (gRPC or HTTP) to a collector.
//
//	tel, err := telemetry.New(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//	orch.SetTracer(tel.Tracer("launchpad.orchestrator"))
//
// A disabled config yields no-op providers, so callers never branch on it.
//
// Tests use TestTelemetry, which keeps spans and metrics in memory:
//
//	tt := telemetry.NewTestTelemetry()
//	...
//	tt.AssertRunSpans(t, "success", "generate", "create_repository")
package telemetry
