package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/launchpad/internal/artifact"
	"github.com/fyrsmithlabs/launchpad/internal/config"
	"github.com/fyrsmithlabs/launchpad/internal/orchestrator"
	"github.com/fyrsmithlabs/launchpad/internal/pipeline"
	"github.com/fyrsmithlabs/launchpad/internal/workflows"
)

var deployFlags struct {
	bundleDir string
	specFile  string
	provider  string
	message   string
	remote    bool
	quiet     bool
}

// deployCmd runs one deployment
var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy a template bundle or specification",
	Long: `Run the deployment pipeline for one template.

The template is either a bundle directory (with a bundle.yaml manifest) or
a specification file from which a bundle is generated. The run executes in
this process unless pipeline.temporal is set or --remote is given, in which
case it is submitted to a launchpad worker.

Examples:
  # Deploy a bundle directory
  launchpad deploy --bundle ./payments-service

  # Generate from a specification and validate on GitHub Actions
  launchpad deploy --spec payments.yaml --provider github-actions

  # Submit to the Temporal deployment worker
  launchpad deploy --bundle ./payments-service --remote`,
	Args: cobra.NoArgs,
	RunE: runDeploy,
}

func init() {
	f := deployCmd.Flags()
	f.StringVar(&deployFlags.bundleDir, "bundle", "", "bundle directory")
	f.StringVar(&deployFlags.specFile, "spec", "", "specification file (YAML)")
	f.StringVar(&deployFlags.provider, "provider", "", "validation provider (default pipeline.provider)")
	f.StringVarP(&deployFlags.message, "message", "m", "", "commit message")
	f.BoolVar(&deployFlags.remote, "remote", false, "submit to the Temporal deployment worker")
	f.BoolVarP(&deployFlags.quiet, "quiet", "q", false, "do not print stage progress")
	deployCmd.MarkFlagsMutuallyExclusive("bundle", "spec")
	deployCmd.MarkFlagsOneRequired("bundle", "spec")
}

func runDeploy(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		in, err := loadInput(deployFlags.bundleDir, deployFlags.specFile)
		if err != nil {
			return err
		}
		in.Provider = deployFlags.provider
		if in.Provider == "" {
			in.Provider = a.cfg.Pipeline.Provider
		}
		in.CommitMessage = deployFlags.message

		var res *orchestrator.Result
		if deployFlags.remote || a.cfg.Pipeline.Temporal {
			tc, err := a.temporalClient()
			if err != nil {
				return err
			}
			res, err = submitDeployment(ctx, tc, a.cfg, in)
			if err != nil && res == nil {
				return err
			}
		} else {
			o, err := a.orchestrator(ctx)
			if err != nil {
				return err
			}
			if !deployFlags.quiet {
				o.OnProgress(progressPrinter(cmd.ErrOrStderr()))
			}
			res, _ = o.Run(ctx, in)
		}

		logResult(ctx, a, res)
		if err := printJSON(cmd.OutOrStdout(), res); err != nil {
			return err
		}
		if res.Status == orchestrator.StatusFailed {
			return fmt.Errorf("deployment failed: %s", failureMessage(res))
		}
		return nil
	})
}

// loadInput reads a bundle directory or a specification file.
func loadInput(bundleDir, specFile string) (pipeline.Input, error) {
	if bundleDir != "" {
		bundle, err := artifact.LoadDir(bundleDir)
		if err != nil {
			return pipeline.Input{}, err
		}
		return pipeline.Input{Bundle: bundle}, nil
	}

	raw, err := os.ReadFile(specFile)
	if err != nil {
		return pipeline.Input{}, fmt.Errorf("failed to read specification %s: %w", specFile, err)
	}
	var spec artifact.Specification
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return pipeline.Input{}, fmt.Errorf("failed to parse specification %s: %w", specFile, err)
	}
	return pipeline.Input{Specification: &spec}, nil
}

// submitDeployment starts DeploymentWorkflow and waits for its result.
func submitDeployment(ctx context.Context, tc client.Client, cfg *config.Config, in pipeline.Input) (*orchestrator.Result, error) {
	input := workflows.DeploymentInput{Input: in, Timeout: cfg.Temporal.DeploymentTimeout}
	if err := input.Validate(); err != nil {
		return nil, err
	}
	run, err := tc.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        workflows.DeploymentWorkflowID(in.Name()),
		TaskQueue: cfg.Temporal.DeploymentTaskQueue,
	}, workflows.DeploymentWorkflow, input)
	if err != nil {
		return nil, fmt.Errorf("failed to start deployment workflow: %w", err)
	}

	var res orchestrator.Result
	if err := run.Get(ctx, &res); err != nil {
		if fe, ok := workflows.ClassifiedFromWorkflowError(err); ok {
			return nil, fe
		}
		return nil, fmt.Errorf("deployment workflow %s: %w", run.GetID(), err)
	}
	return &res, nil
}

func progressPrinter(w io.Writer) orchestrator.ProgressCallback {
	return func(p orchestrator.StageProgress) {
		fmt.Fprintf(w, "[%3d%%] %-22s %-9s %s\n", p.Percentage, p.Stage, p.Status, p.Message)
	}
}

func failureMessage(res *orchestrator.Result) string {
	if res.Failure == nil {
		return string(res.State)
	}
	return fmt.Sprintf("%s (%s/%s)", res.Failure.Message, res.Failure.Component, res.Failure.Kind)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// logResult records a finished run at the level its status deserves.
func logResult(ctx context.Context, a *app, res *orchestrator.Result) {
	fields := []zap.Field{
		zap.String("operation_id", res.OperationID),
		zap.String("status", string(res.Status)),
		zap.String("state", string(res.State)),
	}
	if res.Status == orchestrator.StatusFailed {
		a.logger.Warn(ctx, "deployment failed", fields...)
		return
	}
	a.logger.Info(ctx, "deployment finished", fields...)
}
