package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"deposit-reconciler/cmd/reconciler/config"
	"deposit-reconciler/internal/reconciler"
	"deposit-reconciler/pkg/errors"
)

func newURLCommand(c *cli) *cobra.Command {
	var stripeFile, stripePayout string

	urlCmd := &cobra.Command{
		Use:   "url",
		Short: "Print the order search URL covering a payout",
		Long: `Url prints the Commerce7 order search link for the payout's date range,
padded on both sides, so the matching order export can be downloaded.

Examples:
  reconciler url --stripe-file payout.csv
  reconciler url --stripe-payout po_1NXRv2 --padding 10m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if stripeFile == "" && stripePayout == "" {
				return errors.ConfigurationError(errors.CodeMissingConfig, "--stripe-file or --stripe-payout", nil, nil)
			}
			if stripeFile != "" {
				if err := validateFileExists(stripeFile, "Stripe export"); err != nil {
					return err
				}
			}

			runConfig, err := config.FromViper(c.v, false)
			if err != nil {
				return err
			}
			orchestrator, err := reconciler.NewOrchestrator(runConfig)
			if err != nil {
				return err
			}

			request, err := buildRequest(cmd.Context(), c, stripeFile, stripePayout)
			if err != nil {
				return err
			}

			url, err := orchestrator.DateRangeURL(request)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}

	urlCmd.Flags().StringVarP(&stripeFile, "stripe-file", "s", "", "path to the Stripe payout CSV export")
	urlCmd.Flags().StringVar(&stripePayout, "stripe-payout", "", "Stripe payout ID to fetch instead of a file")
	urlCmd.MarkFlagsMutuallyExclusive("stripe-file", "stripe-payout")

	return urlCmd
}
