package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"deposit-reconciler/cmd/reconciler/config"
	"deposit-reconciler/internal/reconciler"
	"deposit-reconciler/internal/reporter"
	"deposit-reconciler/internal/stripesource"
	"deposit-reconciler/pkg/errors"
	"deposit-reconciler/pkg/logger"
)

// Flags for the reconcile command
type reconcileFlags struct {
	stripeFile     string
	stripePayout   string
	orderFiles     []string
	outputFormat   string
	outputFile     string
	workbook       string
	strictMatching bool
	showProgress   bool
}

// newStripeSource is replaced in tests
var newStripeSource = func(apiKey string) (stripesource.Source, error) {
	return stripesource.NewClient(apiKey)
}

func newReconcileCommand(c *cli) *cobra.Command {
	f := &reconcileFlags{}

	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile a Stripe payout with the Commerce7 order export",
		Long: `Reconcile keeps the orders the payout paid for, aggregates their products
and order-level charges, and checks the total against the deposited amount.

Orders are taken from processor descriptions ("Order #123") and, for
transactions without one, matched by amount and paid time.

This command requires:
- A Stripe payout export (--stripe-file) or a payout ID (--stripe-payout)
- One or more Commerce7 order exports (CSV or .xlsx)

Examples:
  # Basic reconciliation
  reconciler reconcile --stripe-file payout.csv --order-files orders.csv

  # Several order exports, JSON output to a file
  reconciler reconcile -s payout.csv -c orders-1.csv,orders-2.csv \
    --output-format json --output-file report.json

  # Summary CSV plus the four-sheet workbook
  reconciler reconcile -s payout.csv -c orders.xlsx -f csv -o output.csv --workbook recon.xlsx

  # Fetch the payout from the Stripe API (RECONCILER_STRIPE_API_KEY)
  reconciler reconcile --stripe-payout po_1NXRv2 --order-files orders.csv

  # Fail when a payment finds no order
  reconciler reconcile -s payout.csv -c orders.csv --strict-matching`,

		PreRunE: func(cmd *cobra.Command, args []string) error {
			return validateReconcileFlags(f)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd, c, f)
		},
	}

	flags := reconcileCmd.Flags()
	flags.StringVarP(&f.stripeFile, "stripe-file", "s", "", "path to the Stripe payout CSV export")
	flags.StringVar(&f.stripePayout, "stripe-payout", "", "Stripe payout ID to fetch instead of a file")
	flags.StringSliceVarP(&f.orderFiles, "order-files", "c", []string{}, "comma-separated Commerce7 order exports, CSV or .xlsx (required)")
	flags.StringVarP(&f.outputFormat, "output-format", "f", "console", "output format: console, json, csv")
	flags.StringVarP(&f.outputFile, "output-file", "o", "", "output file path (default: stdout)")
	flags.StringVarP(&f.workbook, "workbook", "w", "", "also write the All Data, Products, Taxes and Summary workbook to this .xlsx path")
	flags.BoolVar(&f.strictMatching, "strict-matching", false, "fail when a payment matches no order or a described order is missing")
	flags.BoolVar(&f.showProgress, "progress", false, "show progress indicators")

	reconcileCmd.MarkFlagsMutuallyExclusive("stripe-file", "stripe-payout")
	reconcileCmd.MarkFlagRequired("order-files")

	return reconcileCmd
}

func validateReconcileFlags(f *reconcileFlags) error {
	if f.stripeFile == "" && f.stripePayout == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "--stripe-file or --stripe-payout", nil, nil)
	}
	if f.stripeFile != "" {
		if err := validateFileExists(f.stripeFile, "Stripe export"); err != nil {
			return err
		}
	}

	if len(f.orderFiles) == 0 {
		return errors.ConfigurationError(errors.CodeMissingConfig, "--order-files", nil, nil)
	}
	for i, orderFile := range f.orderFiles {
		if err := validateFileExists(orderFile, fmt.Sprintf("order export %d", i+1)); err != nil {
			return err
		}
	}

	if _, err := config.CreateReportConfig(f.outputFormat); err != nil {
		return err
	}

	for _, out := range []string{f.outputFile, f.workbook} {
		if err := validateOutputDir(out); err != nil {
			return err
		}
	}
	if f.workbook != "" && !strings.EqualFold(filepath.Ext(f.workbook), ".xlsx") {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "--workbook", f.workbook, nil).
			WithSuggestion("use a path ending in .xlsx")
	}

	return nil
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, description, nil, nil)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, filePath, err).WithContext("input", description)
	}
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, err).WithContext("input", description)
	}
	if info.IsDir() {
		return errors.FileError(errors.CodeFileCorrupted, filePath, fmt.Errorf("%s is a directory, expected a file", description))
	}

	return nil
}

func validateOutputDir(path string) error {
	if path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, dir, err).
			WithSuggestion("create the output directory first")
	}
	return nil
}

func runReconcile(cmd *cobra.Command, c *cli, f *reconcileFlags) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	c.log.WithFields(logger.Fields{
		"stripe_file":   f.stripeFile,
		"stripe_payout": f.stripePayout,
		"order_files":   strings.Join(f.orderFiles, ", "),
		"output_format": f.outputFormat,
	}).Info("Starting reconciliation")

	// Create configurations
	runConfig, err := config.FromViper(c.v, f.strictMatching)
	if err != nil {
		return err
	}
	reportConfig, err := config.CreateReportConfig(f.outputFormat)
	if err != nil {
		return err
	}

	orchestrator, err := reconciler.NewOrchestrator(runConfig)
	if err != nil {
		return err
	}
	if f.showProgress {
		orchestrator.OnProgress(func(stats logger.ProgressStats) {
			fmt.Fprintf(cmd.ErrOrStderr(), "\r%s", stats)
		})
	}

	request, err := buildRequest(ctx, c, f.stripeFile, f.stripePayout)
	if err != nil {
		return err
	}
	request.OrderFiles = f.orderFiles

	result, err := orchestrator.Run(ctx, request)
	if f.showProgress {
		fmt.Fprintln(cmd.ErrOrStderr())
	}
	if err != nil {
		return err
	}

	generator, err := reporter.NewSafeReportGenerator(reportConfig, c.log)
	if err != nil {
		return err
	}
	if f.outputFile != "" {
		err = generator.WriteReportFile(result, f.outputFile)
	} else {
		err = generator.GenerateReportSafely(result, cmd.OutOrStdout())
	}
	if err != nil {
		return err
	}

	if f.workbook != "" {
		writer, err := reporter.NewWorkbookWriter(result)
		if err != nil {
			return errors.InternalError(errors.CodeUnexpectedError, "workbook", err)
		}
		if err := writer.SaveAs(f.workbook); err != nil {
			return err
		}
		c.log.WithField("workbook", f.workbook).Info("Wrote workbook")
	}

	c.log.WithFields(logger.Fields{
		"run_id":         result.RunID,
		"deposit_amount": result.Summary.DepositAmount.StringFixed(2),
		"duration":       result.Duration.String(),
	}).Info("Reconciliation completed successfully")

	return nil
}

// buildRequest names the processor input, fetching it when a payout ID is given
func buildRequest(ctx context.Context, c *cli, stripeFile, stripePayout string) (*reconciler.Request, error) {
	if stripePayout == "" {
		return &reconciler.Request{ProcessorFile: stripeFile}, nil
	}

	source, err := newStripeSource(c.v.GetString(config.KeyStripeAPIKey))
	if err != nil {
		return nil, err
	}
	export, err := source.Fetch(ctx, stripePayout)
	if err != nil {
		return nil, err
	}
	return &reconciler.Request{Processor: export}, nil
}
