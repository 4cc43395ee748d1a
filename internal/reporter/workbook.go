package reporter

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"deposit-reconciler/internal/models"
	"deposit-reconciler/internal/parsers"
	"deposit-reconciler/internal/reconciler"
)

// Workbook sheet names
const (
	SheetAllData  = "All Data"
	SheetProducts = "Products"
	SheetTaxes    = "Taxes"
	SheetSummary  = "Summary"
)

// WorkbookWriter renders a balanced result as an .xlsx workbook with the
// filtered order rows, the product and tax rollups and the summary table.
type WorkbookWriter struct {
	result *reconciler.Result
}

// NewWorkbookWriter creates a writer for a balanced result
func NewWorkbookWriter(result *reconciler.Result) (*WorkbookWriter, error) {
	if result == nil || result.Summary == nil {
		return nil, fmt.Errorf("workbook requires a reconciled summary")
	}
	if result.Filter == nil || result.Filter.Orders == nil {
		return nil, fmt.Errorf("workbook requires the filtered order export")
	}
	return &WorkbookWriter{result: result}, nil
}

// Write renders the workbook to w
func (ww *WorkbookWriter) Write(w io.Writer) error {
	f, err := ww.build()
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// SaveAs renders the workbook to path
func (ww *WorkbookWriter) SaveAs(path string) error {
	return WriteFileAtomic(path, ww.Write)
}

func (ww *WorkbookWriter) build() (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", SheetAllData); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to name sheet %s: %w", SheetAllData, err)
	}
	for _, name := range []string{SheetProducts, SheetTaxes, SheetSummary} {
		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	steps := []struct {
		sheet string
		rows  [][]interface{}
	}{
		{SheetAllData, ww.allDataRows()},
		{SheetProducts, ww.productRows()},
		{SheetTaxes, ww.taxRows()},
		{SheetSummary, ww.summaryRows()},
	}

	for _, step := range steps {
		if err := writeRows(f, step.sheet, step.rows); err != nil {
			f.Close()
			return nil, err
		}
	}

	return f, nil
}

func (ww *WorkbookWriter) allDataRows() [][]interface{} {
	orders := ww.result.Filter.Orders
	rows := make([][]interface{}, 0, len(orders.Records)+1)

	header := make([]interface{}, len(orders.Headers))
	for i, h := range orders.Headers {
		header[i] = h
	}
	rows = append(rows, header)

	for _, r := range orders.Records {
		row := make([]interface{}, len(orders.Headers))
		for i, h := range orders.Headers {
			row[i] = allDataCell(h, r.Raw[h])
		}
		rows = append(rows, row)
	}
	return rows
}

// allDataCell writes the export's numeric columns as numbers. Cells that do
// not parse stay text.
func allDataCell(header, raw string) interface{} {
	if strings.TrimSpace(raw) == "" {
		return raw
	}
	switch {
	case isColumn(header, parsers.ColumnOrderNumber, parsers.ColumnQuantity):
		if n, err := models.ParseQuantity(raw); err == nil {
			return n
		}
	case isColumn(header, parsers.ColumnProductTitle, parsers.ColumnOrderPaidDate):
	case isColumn(header, parsers.DefaultOrderParserConfig(nil).RequiredColumns()...):
		if d, err := models.ParseDecimalFromString(raw); err == nil {
			return d.InexactFloat64()
		}
	}
	return raw
}

func isColumn(header string, columns ...string) bool {
	header = strings.TrimSpace(header)
	for _, c := range columns {
		if strings.EqualFold(header, c) {
			return true
		}
	}
	return false
}

func (ww *WorkbookWriter) productRows() [][]interface{} {
	lines := ww.result.Summary.Products.Lines
	rows := [][]interface{}{{"Products", "Count", "Subtotal"}}
	for _, p := range lines {
		rows = append(rows, []interface{}{p.Title, p.Count, p.Subtotal.InexactFloat64()})
	}
	return rows
}

func (ww *WorkbookWriter) taxRows() [][]interface{} {
	rows := [][]interface{}{{"", "Count"}}
	for _, t := range ww.result.Summary.Taxes.Lines {
		rows = append(rows, []interface{}{string(t.Category), t.Total.InexactFloat64()})
	}
	return rows
}

// summaryRows keeps the table headerless. Numeric cells are written as numbers.
func (ww *WorkbookWriter) summaryRows() [][]interface{} {
	rows := make([][]interface{}, 0, len(ww.result.Summary.Rows))
	for _, r := range ww.result.Summary.Rows {
		cells := r.Cells()
		row := make([]interface{}, len(cells))
		for i, c := range cells {
			row[i] = summaryCell(c, i)
		}
		rows = append(rows, row)
	}
	return rows
}

func summaryCell(value string, column int) interface{} {
	if column == 0 || value == "" {
		return value
	}
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n
	}
	if d, err := models.ParseDecimalFromString(value); err == nil {
		return d.InexactFloat64()
	}
	return value
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
