package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/launchpad/internal/artifact"
	"github.com/fyrsmithlabs/launchpad/internal/validation"
)

var validateJSON bool

// validateCmd checks a bundle without deploying it
var validateCmd = &cobra.Command{
	Use:   "validate <bundle-dir>",
	Short: "Validate a bundle locally",
	Long: `Run the syntax, security and quality checks on a bundle directory.

Exits non-zero when the verdict is failed.

Examples:
  launchpad validate ./payments-service
  launchpad validate --json ./payments-service`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "print the full report as JSON")
}

func runValidate(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		bundle, err := artifact.LoadDir(args[0])
		if err != nil {
			return err
		}
		checker, err := a.validationChecker()
		if err != nil {
			return err
		}
		report, err := checker.Check(ctx, bundle)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if validateJSON {
			if err := printJSON(out, report); err != nil {
				return err
			}
		} else {
			fmt.Fprintln(out, report.Summary())
			for _, p := range report.Problems() {
				fmt.Fprintf(out, "  - %s\n", p)
			}
		}
		if report.Verdict == validation.VerdictFailed {
			return fmt.Errorf("bundle %s failed validation", bundle.Name)
		}
		return nil
	})
}
