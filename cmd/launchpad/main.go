// Package main implements the launchpad CLI.
//
// launchpad turns a template bundle (or a specification it can generate one
// from) into a deployed, cataloged template: repository, review request,
// validation, merge, deployment, verification and registration. Failures
// are recovered where possible and completed stages are rolled back
// otherwise.
//
// Usage:
//
//	launchpad deploy --bundle ./payments-service
//	launchpad serve
//	launchpad worker
//	launchpad validator --embedded
//	launchpad validate ./payments-service
//	launchpad catalog list
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	// configPath is the YAML config file; empty uses ~/.config/launchpad/config.yaml
	configPath string
	// version information
	version = "dev"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "launchpad",
	Short: "Template deployment pipeline",
	Long: `launchpad deploys template bundles through a recoverable pipeline:
repository creation, review, validation, merge, deployment, verification
and catalog registration. Completed stages are rolled back when a run fails.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/launchpad/config.yaml)")
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(validatorCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(configCmd)
}

// withApp loads configuration, runs fn and releases the app's clients.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) (err error) {
	ctx := cmd.Context()
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(ctx, a)
}
