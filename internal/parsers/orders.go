package parsers

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"deposit-reconciler/internal/models"
	"deposit-reconciler/pkg/errors"
	"deposit-reconciler/pkg/logger"
)

// OrderParser handles parsing of e-commerce order detail exports
type OrderParser struct {
	*BaseParser
	config *OrderParserConfig
	logger logger.Logger
}

// NewOrderParser creates a new OrderParser with the given configuration
func NewOrderParser(config *OrderParserConfig) (*OrderParser, error) {
	if config == nil {
		config = DefaultOrderParserConfig(nil)
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"order_parser_config",
			config.Sheet,
			err,
		)
	}

	parseConfig := DefaultParseConfig()
	parseConfig.Delimiter = config.Delimiter

	return &OrderParser{
		BaseParser: NewBaseParser(parseConfig),
		config:     config,
		logger:     logger.WithComponent("order_parser"),
	}, nil
}

// ParseFiles parses every path and concatenates the rows in argument order
func (op *OrderParser) ParseFiles(paths []string) (*models.OrderExport, error) {
	if len(paths) == 0 {
		return nil, errors.ValidationError(errors.CodeEmptyInput, "order files", "", nil).
			WithSuggestion("pass at least one order export")
	}

	combined := &models.OrderExport{}
	for _, path := range paths {
		export, err := op.ParseFile(path)
		if err != nil {
			return nil, err
		}
		combined.Append(export)
	}

	if len(paths) > 1 {
		op.logger.WithFields(logger.Fields{
			"files": len(paths),
			"rows":  len(combined.Records),
		}).Info("Combined order exports")
	}

	return combined, nil
}

// ParseFile parses one order export; .xlsx files are read as workbooks
func (op *OrderParser) ParseFile(path string) (*models.OrderExport, error) {
	file, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if isWorkbook(path) {
		return op.ParseWorkbook(file, path)
	}
	return op.Parse(file, path)
}

// Parse reads a CSV order export. source names the input in errors.
func (op *OrderParser) Parse(r io.Reader, source string) (*models.OrderExport, error) {
	op.logger.WithField("source", source).Info("Parsing order export")

	rows, err := op.ReadRows(r, source)
	if err != nil {
		return nil, err
	}
	return op.fromRows(rows, source)
}

// ParseWorkbook reads an .xlsx order export from the configured sheet
func (op *OrderParser) ParseWorkbook(r io.Reader, source string) (*models.OrderExport, error) {
	op.logger.WithFields(logger.Fields{
		"source": source,
		"sheet":  op.config.Sheet,
	}).Info("Parsing order workbook")

	rows, err := readWorkbookRows(r, source, op.config.Sheet, op.dateColumns()...)
	if err != nil {
		return nil, err
	}
	return op.fromRows(rows, source)
}

// dateColumns names the paid date header and its aliases
func (op *OrderParser) dateColumns() []string {
	return append([]string{ColumnOrderPaidDate}, op.config.ColumnAliases[ColumnOrderPaidDate]...)
}

func (op *OrderParser) fromRows(rows [][]string, source string) (*models.OrderExport, error) {
	parseCtx := NewParseContext(source, rows[0], op.config.ColumnAliases)
	if err := parseCtx.RequireColumns(op.config.RequiredColumns()); err != nil {
		return nil, err
	}

	data, lines := op.DataRows(rows)
	export := &models.OrderExport{
		Headers: parseCtx.Headers,
		Records: make([]*models.OrderRecord, 0, len(data)),
	}

	for i, row := range data {
		parseCtx.LineNumber = lines[i]
		record, err := op.parseRecord(padRow(row, len(parseCtx.Headers)), parseCtx)
		if err != nil {
			return nil, err
		}
		export.Records = append(export.Records, record)
	}

	op.logger.WithFields(logger.Fields{
		"source": source,
		"rows":   len(export.Records),
		"orders": len(export.Deduplicate()),
	}).Info("Order export parsed")

	return export, nil
}

func (op *OrderParser) parseRecord(row []string, parseCtx *ParseContext) (*models.OrderRecord, error) {
	record := &models.OrderRecord{
		Raw:  op.RawValues(row, parseCtx),
		Line: parseCtx.LineNumber,
	}

	number, err := op.GetFieldValue(row, parseCtx, ColumnOrderNumber)
	if err != nil {
		return nil, err
	}
	record.OrderNumber, err = models.ParseQuantity(number)
	if err != nil || number == "" {
		return nil, errors.ParseError(errors.CodeInvalidData, parseCtx.Source, parseCtx.LineNumber, ColumnOrderNumber, number, err)
	}

	if record.ProductTitle, err = op.GetFieldValue(row, parseCtx, ColumnProductTitle); err != nil {
		return nil, err
	}

	quantity, err := op.GetFieldValue(row, parseCtx, ColumnQuantity)
	if err != nil {
		return nil, err
	}
	if record.Quantity, err = models.ParseQuantity(quantity); err != nil {
		return nil, errors.ParseError(errors.CodeInvalidData, parseCtx.Source, parseCtx.LineNumber, ColumnQuantity, quantity, err)
	}

	amounts := []struct {
		column string
		target *decimal.Decimal
	}{
		{ColumnProductSubtotal, &record.ProductSubtotal},
		{ColumnShippingTotal, &record.ShippingTotal},
		{ColumnTaxGST, &record.TaxGST},
		{ColumnTaxPST, &record.TaxPST},
		{ColumnTaxAlbertaAdminFee, &record.TaxAlbertaAdminFee},
		{ColumnTaxTax, &record.TaxTax},
		{ColumnTaxCRV, &record.TaxCRV},
		{ColumnTaxMaineBottleBill, &record.TaxMaineBottleBill},
		{ColumnTaxWholesale, &record.TaxWholesale},
		{ColumnTaxHST, &record.TaxHST},
		{ColumnTaxQST, &record.TaxQST},
		{ColumnTaxOther, &record.TaxOther},
		{ColumnBottleDepositTotal, &record.BottleDepositTotal},
		{ColumnTotal, &record.Total},
	}
	for _, a := range amounts {
		value, err := op.GetFieldValue(row, parseCtx, a.column)
		if err != nil {
			return nil, err
		}
		if *a.target, err = models.ParseOptionalDecimal(value); err != nil {
			return nil, errors.ParseError(errors.CodeInvalidData, parseCtx.Source, parseCtx.LineNumber, a.column, value, err)
		}
	}

	paid, err := op.GetFieldValue(row, parseCtx, ColumnOrderPaidDate)
	if err != nil {
		return nil, err
	}
	// An unpaid order has no date and can only be kept through a processor description
	if paid != "" {
		t, err := models.ParseTimeInLocation(paid, op.config.Location, op.config.PaidDateLayouts...)
		if err != nil {
			return nil, errors.ParseError(errors.CodeInvalidData, parseCtx.Source, parseCtx.LineNumber, ColumnOrderPaidDate, paid, err)
		}
		record.PaidAt = t.UTC()
	}

	return record, nil
}

func isWorkbook(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return true
	}
	return false
}

