package cmd

import (
	"io"

	"github.com/spf13/cobra"

	"deposit-reconciler/cmd/reconciler/config"
	"deposit-reconciler/internal/reporter"
	"deposit-reconciler/internal/stripesource"
	"deposit-reconciler/pkg/logger"
)

func newPayoutCommand(c *cli) *cobra.Command {
	var outputFile string

	payoutCmd := &cobra.Command{
		Use:   "payout <payout-id>",
		Short: "Download a Stripe payout as a processor CSV export",
		Long: `Payout fetches the balance transactions settled by one Stripe payout and
writes them in the processor export layout, so the run can be inspected or
repeated offline with --stripe-file.

The API key is read from stripe.api_key in the config file or the
RECONCILER_STRIPE_API_KEY environment variable.

Examples:
  reconciler payout po_1NXRv2 > payout.csv
  reconciler payout po_1NXRv2 --output-file payout.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutputDir(outputFile); err != nil {
				return err
			}

			source, err := newStripeSource(c.v.GetString(config.KeyStripeAPIKey))
			if err != nil {
				return err
			}
			export, err := source.Fetch(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if outputFile == "" {
				return stripesource.WriteCSV(cmd.OutOrStdout(), export)
			}
			if err := reporter.WriteFileAtomic(outputFile, func(w io.Writer) error {
				return stripesource.WriteCSV(w, export)
			}); err != nil {
				return err
			}

			c.log.WithFields(logger.Fields{
				"payout":       args[0],
				"transactions": len(export.Records),
				"file":         outputFile,
			}).Info("Wrote payout export")
			return nil
		},
	}

	payoutCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")

	return payoutCmd
}
