package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/launchpad/internal/config"
)

// configCmd groups configuration commands
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect launchpad configuration",
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Load and validate the configuration",
	Long: `Load the config file and environment overrides, validate them and print
the effective settings. Secrets are redacted.`,
	Args: cobra.NoArgs,
	RunE: runConfigCheck,
}

func init() {
	configCmd.AddCommand(configCheckCmd)
}

func runConfigCheck(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(_ context.Context, a *app) error {
		path := configPath
		if path == "" {
			p, err := config.DefaultPath()
			if err != nil {
				return err
			}
			path = p
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "config ok (%s)\n", path)
		return printJSON(out, a.cfg)
	})
}
