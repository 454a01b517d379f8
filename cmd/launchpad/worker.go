package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/launchpad/internal/workflows"
)

var workerFlags struct {
	validation bool
	deployment bool
}

// workerCmd runs the Temporal workers
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the Temporal validation and deployment workers",
	Long: `Run Temporal workers for bundle validation (temporal.validation_task_queue)
and whole deployments (temporal.deployment_task_queue).

Examples:
  # Serve both queues
  launchpad worker

  # Only validate bundles
  launchpad worker --deployment=false`,
	Args: cobra.NoArgs,
	RunE: runWorker,
}

func init() {
	workerCmd.Flags().BoolVar(&workerFlags.validation, "validation", true, "serve the validation task queue")
	workerCmd.Flags().BoolVar(&workerFlags.deployment, "deployment", true, "serve the deployment task queue")
}

func runWorker(cmd *cobra.Command, _ []string) error {
	if !workerFlags.validation && !workerFlags.deployment {
		return fmt.Errorf("nothing to serve: enable --validation or --deployment")
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		tc, err := a.temporalClient()
		if err != nil {
			return err
		}
		a.logger.Info(ctx, "temporal client connected", zap.String("host", a.cfg.Temporal.HostPort))

		var workers []worker.Worker
		if workerFlags.validation {
			checker, err := a.validationChecker()
			if err != nil {
				return err
			}
			w := worker.New(tc, a.cfg.Temporal.ValidationTaskQueue, worker.Options{})
			workflows.Register(w, &workflows.Activities{Checker: checker})
			workers = append(workers, w)
		}
		if workerFlags.deployment {
			o, err := a.orchestrator(ctx)
			if err != nil {
				return err
			}
			w := worker.New(tc, a.cfg.Temporal.DeploymentTaskQueue, worker.Options{})
			workflows.Register(w, &workflows.Activities{Orchestrator: o})
			workers = append(workers, w)
		}

		for _, w := range workers {
			if err := w.Start(); err != nil {
				return fmt.Errorf("failed to start worker: %w", err)
			}
			defer w.Stop()
		}

		a.logger.Info(ctx, "workers started",
			zap.Bool("validation", workerFlags.validation),
			zap.Bool("deployment", workerFlags.deployment),
			zap.String("validation_queue", a.cfg.Temporal.ValidationTaskQueue),
			zap.String("deployment_queue", a.cfg.Temporal.DeploymentTaskQueue))

		<-ctx.Done()
		a.logger.Info(ctx, "shutting down workers")
		return nil
	})
}
