package cmd

import (
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/selimozcann/seasec/internal/console"
)

var siteCmd = &cobra.Command{
	Use:   "site",
	Short: "Show or change the target site",
}

var siteGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the current target site",
	Args:  cobra.NoArgs,
	RunE: withRuntime(func(cmd *cobra.Command, _ []string, rt *runtime) error {
		console.PrintSite(cmd.OutOrStdout(), rt.svc.TargetSite())
		return nil
	}),
}

var siteSetCmd = &cobra.Command{
	Use:   "set <url>",
	Short: "Set the site to crawl",
	Args:  cobra.ExactArgs(1),
	RunE: withRuntime(func(cmd *cobra.Command, args []string, rt *runtime) error {
		site, err := rt.svc.SetTargetSite(args[0])
		if err != nil {
			return err
		}
		console.PrintSite(cmd.OutOrStdout(), site)
		return nil
	}),
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Crawl the target site and store one event per page",
	Args:  cobra.NoArgs,
	RunE: withRuntime(func(cmd *cobra.Command, _ []string, rt *runtime) error {
		maxPages, err := cmd.Flags().GetInt("max-pages")
		if err != nil {
			return errors.Wrap(err, "max-pages")
		}
		res, err := rt.svc.Ingest(cmd.Context(), maxPages)
		if err != nil {
			return err
		}
		console.PrintIngest(cmd.OutOrStdout(), res)
		return nil
	}),
}

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Fit the anomaly model on the stored events",
	Args:  cobra.NoArgs,
	RunE: withRuntime(func(cmd *cobra.Command, _ []string, rt *runtime) error {
		res, err := rt.svc.Train(cmd.Context())
		if err != nil {
			return err
		}
		console.PrintTrain(cmd.OutOrStdout(), res)
		return nil
	}),
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Score the stored events and publish the report artifacts",
	Args:  cobra.NoArgs,
	RunE: withRuntime(func(cmd *cobra.Command, _ []string, rt *runtime) error {
		sum, err := rt.svc.GenerateReport(cmd.Context())
		if err != nil {
			return err
		}
		console.PrintSummary(cmd.OutOrStdout(), sum)
		return nil
	}),
}

func init() {
	siteCmd.AddCommand(siteGetCmd, siteSetCmd)
	ingestCmd.Flags().Int("max-pages", 0, "page budget (default crawl.max_pages)")
}
