package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var catalogJSON bool

// catalogCmd groups catalog maintenance commands
var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect and maintain the deployment catalog",
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cataloged deployments and pending registrations",
	Args:  cobra.NoArgs,
	RunE:  runCatalogList,
}

var catalogRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Retry deferred registrations",
	Long: `Register every record queued by the deferred-registration recovery.
Records that fail again stay queued with their attempt count raised.`,
	Args: cobra.NoArgs,
	RunE: runCatalogRetry,
}

func init() {
	catalogListCmd.Flags().BoolVar(&catalogJSON, "json", false, "print records as JSON")
	catalogCmd.AddCommand(catalogListCmd)
	catalogCmd.AddCommand(catalogRetryCmd)
}

func runCatalogList(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(_ context.Context, a *app) error {
		cat, err := a.fileCatalog()
		if err != nil {
			return err
		}
		records, pending := cat.List(), cat.Pending()

		out := cmd.OutOrStdout()
		if catalogJSON {
			return printJSON(out, map[string]any{"records": records, "pending": pending})
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TEMPLATE\tDEPLOYMENT\tLOCATION\tDEGRADED\tUPDATED")
		for _, r := range records {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n",
				r.Key(), r.DeploymentID, r.Location, r.Degraded, r.UpdatedAt.Format("2006-01-02 15:04"))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		if len(pending) > 0 {
			fmt.Fprintf(out, "\n%d pending registration(s):\n", len(pending))
			for _, p := range pending {
				fmt.Fprintf(out, "  %s (attempts %d): %s\n", p.Record.Key(), p.Attempts, p.Reason)
			}
		}
		return nil
	})
}

func runCatalogRetry(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		cat, err := a.fileCatalog()
		if err != nil {
			return err
		}
		registered, err := cat.RetryPending(ctx, nil)
		a.logger.Info(ctx, "retried pending registrations",
			zap.Int("registered", registered),
			zap.Int("pending", len(cat.Pending())))
		fmt.Fprintf(cmd.OutOrStdout(), "registered %d, still pending %d\n", registered, len(cat.Pending()))
		return err
	})
}
