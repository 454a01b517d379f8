package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpserver "github.com/fyrsmithlabs/launchpad/internal/http"
	"github.com/fyrsmithlabs/launchpad/internal/orchestrator"
	"github.com/fyrsmithlabs/launchpad/internal/pipeline"
)

var serveHost string

// serveCmd runs the HTTP API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the launchpad HTTP API",
	Long: `Serve the deployment API on server.http_port.

Deployments submitted with POST /api/v1/deployments run in this process, or
on the Temporal deployment worker when pipeline.temporal is set.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "localhost", "listen address")
}

func runServe(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		runner, err := deploymentRunner(ctx, a)
		if err != nil {
			return err
		}
		cat, err := a.fileCatalog()
		if err != nil {
			return err
		}
		checker, err := a.validationChecker()
		if err != nil {
			return err
		}

		server, err := httpserver.NewServer(httpserver.Deps{
			Runner:  runner,
			Catalog: cat,
			Checker: checker,
		}, a.logger, &httpserver.Config{
			Host:     serveHost,
			Port:     a.cfg.Server.Port,
			Provider: a.cfg.Pipeline.Provider,
		})
		if err != nil {
			return err
		}

		errCh := make(chan error, 1)
		go func() {
			if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return err
			}
		case <-ctx.Done():
			a.logger.Info(ctx, "shutdown signal received",
				zap.Duration("shutdown_timeout", a.cfg.Server.ShutdownTimeout))
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
}

// deploymentRunner runs deployments in-process, or on the Temporal
// deployment worker when pipeline.temporal is set.
func deploymentRunner(ctx context.Context, a *app) (httpserver.Runner, error) {
	if !a.cfg.Pipeline.Temporal {
		o, err := a.orchestrator(ctx)
		if err != nil {
			return nil, err
		}
		return o, nil
	}
	tc, err := a.temporalClient()
	if err != nil {
		return nil, err
	}
	return httpserver.RunnerFunc(func(ctx context.Context, in pipeline.Input) (*orchestrator.Result, error) {
		return submitDeployment(ctx, tc, a.cfg, in)
	}), nil
}
