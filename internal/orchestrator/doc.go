// Package orchestrator runs the deployment pipeline end to end.
//
// # Overview
//
// An Orchestrator owns one operation context and one compensation stack per
// Run call. Stages execute strictly in order:
//
//	Generate → Create Repository → Commit → Open Review → Trigger Validation →
//	Process Validation → Merge → Deploy → Verify → Register
//
// After each success the stage's snapshot is checkpointed and its
// compensating action is pushed onto the stack.
//
// # Gates
//
// Gates run before every stage:
//   - CancellationGate: turns a cancelled context into a ResourceError
//   - PrerequisiteGate: refuses a stage whose prerequisites have no checkpoint
//
// Extra per-stage gates are added with RegisterGate.
//
// # Failures
//
// A recoverable failure goes to the recovery registry. The first applicable
// strategy that succeeds supplies a substitute result and the run finishes
// with StatusDegraded. Network failures are counted per stage; past the cap
// of the registered network strategy the error becomes non-recoverable.
//
// Anything else is terminal: the compensation stack runs in reverse order
// (on a context that ignores cancellation) and the original Classified Error
// is returned. A RegistryError never compensates, so a verified deployment
// survives a catalog outage.
//
// # Usage Example
//
//	stages, _ := pipeline.NewStages(deps)
//	registry, _ := recovery.NewRegistry(pipeline.DefaultStrategies(opts, queue)...)
//	o := orchestrator.NewForStages(stages, registry, orchestrator.DefaultOptions(), logger)
//	o.OnProgress(func(p orchestrator.StageProgress) {
//	    fmt.Printf("[%d%%] %s: %s\n", p.Percentage, p.Stage, p.Message)
//	})
//	res, err := o.Run(ctx, pipeline.Input{Bundle: bundle, Provider: "local"})
//
// # Metrics
//
// Prometheus collectors are registered on the default registry:
// launchpad_pipeline_runs_total, launchpad_pipeline_stage_duration_seconds,
// launchpad_pipeline_compensations_total and launchpad_pipeline_recoveries_total.
package orchestrator
