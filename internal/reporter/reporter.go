// Package reporter renders reconciliation results.
//
// Supported output formats:
//   - Console: aligned summary table plus the date range and match diagnostics
//   - JSON: structured document for programmatic consumption
//   - CSV: the three-column summary rows without a header, ready for bookkeeping
//
// WorkbookWriter additionally produces the four-sheet .xlsx workbook
// (All Data, Products, Taxes, Summary).
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{Format: reporter.FormatCSV})
//	err = generator.GenerateReport(result, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"deposit-reconciler/internal/models"
	"deposit-reconciler/internal/reconciler"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// IncludeMatchDetails lists every amount and time match in console output
	IncludeMatchDetails bool `json:"include_match_details"`

	// IncludeExcludedOrders lists the orders the batch did not pay for
	IncludeExcludedOrders bool `json:"include_excluded_orders"`

	CSVDelimiter rune `json:"csv_delimiter"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:              FormatConsole,
		IncludeMatchDetails: true,
		CSVDelimiter:        ',',
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.CSVDelimiter == 0 || c.CSVDelimiter == '"' || c.CSVDelimiter == '\r' || c.CSVDelimiter == '\n' {
		return fmt.Errorf("invalid CSV delimiter: %q", c.CSVDelimiter)
	}
	return nil
}

// ReportGenerator generates reconciliation reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if config.CSVDelimiter == 0 {
		config.CSVDelimiter = ','
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{config: config}, nil
}

// GenerateReport writes a balanced result in the configured format
func (rg *ReportGenerator) GenerateReport(result *reconciler.Result, writer io.Writer) error {
	if result == nil || result.Summary == nil {
		return fmt.Errorf("reconciliation result must include a summary")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(result, writer)
	case FormatJSON:
		return rg.generateJSONReport(result, writer)
	case FormatCSV:
		return rg.generateCSVReport(result, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// generateConsoleReport generates a human-readable console report
func (rg *ReportGenerator) generateConsoleReport(result *reconciler.Result, writer io.Writer) error {
	fmt.Fprintf(writer, "DEPOSIT RECONCILIATION\n")
	fmt.Fprintf(writer, "Run:       %s\n", result.RunID)
	fmt.Fprintf(writer, "Processor: %s\n", result.Source)
	fmt.Fprintf(writer, "Generated: %s\n", result.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(writer, "Orders:    %s\n\n", result.URL)

	fmt.Fprintf(writer, "=== SUMMARY ===\n")
	if err := rg.printSummaryTable(result.Summary.Rows, writer); err != nil {
		return err
	}
	fmt.Fprintf(writer, "\n")

	if result.Filter != nil {
		fmt.Fprintf(writer, "=== ORDERS ===\n")
		rg.printFilterStats(result.Filter, writer)

		if rg.config.IncludeMatchDetails && len(result.Filter.Matches) > 0 {
			fmt.Fprintf(writer, "\n=== MATCHED BY AMOUNT AND TIME ===\n")
			rg.printMatches(result.Filter, writer)
		}

		if rg.config.IncludeExcludedOrders && len(result.Filter.ExcludedOrders) > 0 {
			fmt.Fprintf(writer, "\n=== EXCLUDED ORDERS ===\n")
			fmt.Fprintf(writer, "%s\n", joinNumbers(result.Filter.ExcludedOrders))
		}
	}

	return nil
}

// generateJSONReport generates a structured JSON report
func (rg *ReportGenerator) generateJSONReport(result *reconciler.Result, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(rg.filterResultForOutput(result))
}

// generateCSVReport writes the summary rows without a header
func (rg *ReportGenerator) generateCSVReport(result *reconciler.Result, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	for _, row := range result.Summary.Rows {
		if err := csvWriter.Write(row.Cells()); err != nil {
			return fmt.Errorf("failed to write summary row: %w", err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// Helper methods for console output formatting

func (rg *ReportGenerator) printSummaryTable(rows []models.SummaryRow, writer io.Writer) error {
	tw := tabwriter.NewWriter(writer, 0, 0, 2, ' ', tabwriter.AlignRight)
	for _, row := range rows {
		if row.IsBlank() {
			fmt.Fprintf(tw, "\t\t\t\n")
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t\n", row.Label, row.Value, row.Subtotal)
	}
	return tw.Flush()
}

func (rg *ReportGenerator) printFilterStats(filter *reconciler.FilterResult, writer io.Writer) {
	kept := filter.TotalOrders - len(filter.ExcludedOrders)
	fmt.Fprintf(writer, "  In export:          %d\n", filter.TotalOrders)
	fmt.Fprintf(writer, "  Settled:            %d\n", kept)
	fmt.Fprintf(writer, "  From descriptions:  %d\n", len(filter.KnownOrders))
	fmt.Fprintf(writer, "  Matched by time:    %d\n", len(filter.Matches))
	fmt.Fprintf(writer, "  Excluded:           %d\n", len(filter.ExcludedOrders))

	if len(filter.UnmatchedRecords) > 0 {
		fmt.Fprintf(writer, "  Unmatched payments: %d\n", len(filter.UnmatchedRecords))
		for _, r := range filter.UnmatchedRecords {
			fmt.Fprintf(writer, "    %s at %s\n", r.Amount.StringFixed(models.MoneyPlaces), r.Created.Format("2006-01-02 15:04"))
		}
	}
	if len(filter.MissingKnownOrders) > 0 {
		fmt.Fprintf(writer, "  Missing from export: %s\n", joinNumbers(filter.MissingKnownOrders))
	}
}

func (rg *ReportGenerator) printMatches(filter *reconciler.FilterResult, writer io.Writer) {
	tw := tabwriter.NewWriter(writer, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "  Order\tAmount\tPayment\tPaid\tDelta\n")
	for _, m := range filter.Matches {
		fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\t%s\n",
			m.Order.OrderNumber,
			m.Record.Amount.StringFixed(models.MoneyPlaces),
			m.Record.Created.UTC().Format("2006-01-02 15:04:05"),
			m.Order.PaidAt.UTC().Format("2006-01-02 15:04:05"),
			m.TimeDelta)
	}
	tw.Flush()
}

type jsonMatch struct {
	OrderNumber  int64     `json:"order_number"`
	Amount       string    `json:"amount"`
	PaymentTime  time.Time `json:"payment_time"`
	PaidAt       time.Time `json:"paid_at"`
	DeltaSeconds float64   `json:"delta_seconds"`
}

type jsonRecord struct {
	Amount  string    `json:"amount"`
	Created time.Time `json:"created"`
	Line    int       `json:"line,omitempty"`
}

// filterResultForOutput shapes a result for the JSON document
func (rg *ReportGenerator) filterResultForOutput(result *reconciler.Result) map[string]interface{} {
	products := make([]map[string]interface{}, 0, len(result.Summary.Products.Lines))
	for _, p := range result.Summary.Products.Lines {
		products = append(products, map[string]interface{}{
			"product":  p.Title,
			"count":    p.Count,
			"subtotal": models.FormatMoney(p.Subtotal),
		})
	}

	taxes := make(map[string]string, len(result.Summary.Taxes.Lines))
	for _, t := range result.Summary.Taxes.Lines {
		taxes[string(t.Category)] = models.FormatMoney(t.Total)
	}

	output := map[string]interface{}{
		"run_id":           result.RunID,
		"generated_at":     result.StartedAt.Format(time.RFC3339),
		"processor_source": result.Source,
		"date_range": map[string]string{
			"start":  result.Range.Start.Format(time.RFC3339),
			"finish": result.Range.Finish.Format(time.RFC3339),
			"url":    result.URL,
		},
		"products":       products,
		"taxes":          taxes,
		"fees":           models.FormatMoney(result.Summary.Fees),
		"deposit_amount": models.FormatMoney(result.Summary.DepositAmount),
		"rows":           result.Summary.Rows,
	}

	if f := result.Filter; f != nil {
		matches := make([]jsonMatch, 0, len(f.Matches))
		for _, m := range f.Matches {
			matches = append(matches, jsonMatch{
				OrderNumber:  m.Order.OrderNumber,
				Amount:       models.FormatMoney(m.Record.Amount),
				PaymentTime:  m.Record.Created.UTC(),
				PaidAt:       m.Order.PaidAt.UTC(),
				DeltaSeconds: m.TimeDelta.Seconds(),
			})
		}

		unmatched := make([]jsonRecord, 0, len(f.UnmatchedRecords))
		for _, r := range f.UnmatchedRecords {
			unmatched = append(unmatched, jsonRecord{Amount: models.FormatMoney(r.Amount), Created: r.Created.UTC(), Line: r.Line})
		}

		output["orders"] = map[string]interface{}{
			"kept":              f.OrderNumbers(),
			"known":             nonNil(f.KnownOrders),
			"matches":           matches,
			"unmatched_records": unmatched,
			"missing_known":     nonNil(f.MissingKnownOrders),
			"excluded":          nonNil(f.ExcludedOrders),
		}
	}

	return output
}

func nonNil(numbers []int64) []int64 {
	if numbers == nil {
		return []int64{}
	}
	return numbers
}

func joinNumbers(numbers []int64) string {
	parts := make([]string, len(numbers))
	for i, n := range numbers {
		parts[i] = models.FormatCount(n)
	}
	return strings.Join(parts, ", ")
}

// GetConfiguration returns the current report configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}
