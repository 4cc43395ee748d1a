package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"deposit-reconciler/pkg/errors"
	"deposit-reconciler/pkg/logger"
)

// MismatchMessage is shown when the order export does not balance the payout
const MismatchMessage = "Commerce7 file cannot be reconciled with Stripe file. " +
	"Check that the correct date range was used, and order details were exported."

// CLIErrorHandler provides user-friendly error handling for CLI operations
type CLIErrorHandler struct {
	logger  logger.Logger
	out     io.Writer
	verbose bool
}

// NewCLIErrorHandler creates a new CLI error handler writing to out
func NewCLIErrorHandler(out io.Writer, verbose bool) *CLIErrorHandler {
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		out:     out,
		verbose: verbose,
	}
}

// HandleError prints err and returns the exit code for it
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.logger.WithError(err).Debug("Command failed")

	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		if reconcilerErr.Code == errors.CodeDepositMismatch {
			return h.handleDepositMismatch(reconcilerErr)
		}
		return h.handleReconcilerError(reconcilerErr)
	}

	return h.handleGenericError(err)
}

// handleDepositMismatch prints the retry diagnostic with the totals and the
// order search link to export from again
func (h *CLIErrorHandler) handleDepositMismatch(err *errors.ReconcilerError) int {
	fmt.Fprintf(h.out, "Error: %s\n", MismatchMessage)

	fmt.Fprintf(h.out, "\n")
	for _, key := range []string{"computed_deposit", "reported_deposit", "difference"} {
		if v, ok := err.Context[key]; ok {
			fmt.Fprintf(h.out, "  %-18s %v\n", strings.ReplaceAll(key, "_", " ")+":", v)
		}
	}
	if url, ok := err.Context["url"]; ok {
		fmt.Fprintf(h.out, "\nOrders for this payout:\n  %v\n", url)
	}

	fmt.Fprintf(h.out, "\nRun the reconciliation again with a new order export.\n")
	return err.GetExitCode()
}

// handleReconcilerError handles ReconcilerError with detailed context
func (h *CLIErrorHandler) handleReconcilerError(err *errors.ReconcilerError) int {
	fmt.Fprintf(h.out, "Error: %s\n", err.Message)

	if len(err.Context) > 0 {
		keys := make([]string, 0, len(err.Context))
		for key, value := range err.Context {
			if value == nil || value == "" {
				continue
			}
			keys = append(keys, key)
		}
		sort.Strings(keys)

		if len(keys) > 0 {
			fmt.Fprintf(h.out, "\nContext:\n")
			for _, key := range keys {
				fmt.Fprintf(h.out, "  %s: %v\n", key, err.Context[key])
			}
		}
	}

	if err.Suggestion != "" {
		fmt.Fprintf(h.out, "\nSuggestion: %s\n", err.Suggestion)
	}

	if help := h.getCategoryHelp(err.Category); help != "" {
		fmt.Fprintf(h.out, "\n%s\n", help)
	}

	if h.verbose && err.Cause != nil {
		fmt.Fprintf(h.out, "\nUnderlying error: %v\n", err.Cause)
	}

	return err.GetExitCode()
}

// handleGenericError handles non-ReconcilerError types, mostly flag errors from cobra
func (h *CLIErrorHandler) handleGenericError(err error) int {
	if os.IsNotExist(err) {
		fmt.Fprintf(h.out, "Error: File not found\n")
		fmt.Fprintf(h.out, "Suggestion: Check if the file path is correct and the file exists\n")
		return 2
	}

	if os.IsPermission(err) {
		fmt.Fprintf(h.out, "Error: Permission denied\n")
		fmt.Fprintf(h.out, "Suggestion: Check file permissions and ensure you have read access\n")
		return 2
	}

	fmt.Fprintf(h.out, "Error: %v\n", err)
	fmt.Fprintf(h.out, "Run 'reconciler --help' for usage.\n")
	return 1
}

// getCategoryHelp returns category-specific help text
func (h *CLIErrorHandler) getCategoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryFile:
		return `File error help:
• Check if the file exists and is readable
• Verify the file path is correct (use absolute paths if needed)`

	case errors.CategoryParse:
		return `Parse error help:
• Export the Stripe payout and the Commerce7 orders with their default columns
• Ensure the file uses UTF-8 encoding
• Check that descriptions such as "Order #123" end with the order number`

	case errors.CategoryConfiguration:
		return `Configuration error help:
• Use 'reconciler reconcile --help' to see all available options
• Verify configuration file syntax if using --config`

	case errors.CategoryReconciliation:
		return `Reconciliation error help:
• Check that the order export covers the payout date range ('reconciler url')
• Try again without --strict-matching to see which orders were kept`

	case errors.CategoryNetwork:
		return `Stripe API help:
• Set stripe.api_key or RECONCILER_STRIPE_API_KEY
• Download the payout export from the dashboard and use --stripe-file instead`

	default:
		return ""
	}
}
