package parsers

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"deposit-reconciler/internal/models"
	"deposit-reconciler/pkg/errors"
	"deposit-reconciler/pkg/logger"
)

// ProcessorParser handles parsing of payment processor settlement exports
type ProcessorParser struct {
	*BaseParser
	config *ProcessorParserConfig
	logger logger.Logger
}

// NewProcessorParser creates a new ProcessorParser with the given configuration
func NewProcessorParser(config *ProcessorParserConfig) (*ProcessorParser, error) {
	if config == nil {
		config = DefaultProcessorParserConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"processor_parser_config",
			config,
			err,
		)
	}

	parseConfig := DefaultParseConfig()
	parseConfig.Delimiter = config.Delimiter

	return &ProcessorParser{
		BaseParser: NewBaseParser(parseConfig),
		config:     config,
		logger:     logger.WithComponent("processor_parser"),
	}, nil
}

// ParseFile parses the processor export at path
func (pp *ProcessorParser) ParseFile(path string) (*models.ProcessorExport, error) {
	file, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return pp.Parse(file, path)
}

// Parse reads a processor export. source names the input in errors.
func (pp *ProcessorParser) Parse(r io.Reader, source string) (*models.ProcessorExport, error) {
	pp.logger.WithField("source", source).Info("Parsing processor export")

	rows, err := pp.ReadRows(r, source)
	if err != nil {
		return nil, err
	}

	parseCtx := NewParseContext(source, rows[0], pp.config.ColumnAliases)
	if err := parseCtx.RequireColumns(pp.config.RequiredColumns()); err != nil {
		return nil, err
	}

	data, lines := pp.DataRows(rows)
	export := &models.ProcessorExport{
		Source:  source,
		Records: make([]*models.ProcessorRecord, 0, len(data)),
	}

	for i, row := range data {
		parseCtx.LineNumber = lines[i]
		record, err := pp.parseRecord(row, parseCtx)
		if err != nil {
			return nil, err
		}
		export.Records = append(export.Records, record)
	}

	pp.logger.WithFields(logger.Fields{
		"source":    source,
		"records":   len(export.Records),
		"ambiguous": len(export.Ambiguous()),
	}).Info("Processor export parsed")

	return export, nil
}

func (pp *ProcessorParser) parseRecord(row []string, parseCtx *ParseContext) (*models.ProcessorRecord, error) {
	record := &models.ProcessorRecord{Line: parseCtx.LineNumber}

	var err error
	if record.Amount, err = pp.decimalField(row, parseCtx, pp.config.AmountColumn, models.ParseDecimalFromString); err != nil {
		return nil, err
	}
	if record.Net, err = pp.decimalField(row, parseCtx, pp.config.NetColumn, models.ParseDecimalFromString); err != nil {
		return nil, err
	}
	if record.Fee, err = pp.decimalField(row, parseCtx, pp.config.FeeColumn, models.ParseOptionalDecimal); err != nil {
		return nil, err
	}

	created, err := pp.GetFieldValue(row, parseCtx, pp.config.CreatedColumn)
	if err != nil {
		return nil, err
	}
	// Processor timestamps are UTC
	record.Created, err = models.ParseTimeInLocation(created, nil, pp.config.TimeLayouts...)
	if err != nil {
		return nil, errors.ParseError(errors.CodeInvalidData, parseCtx.Source, parseCtx.LineNumber, pp.config.CreatedColumn, created, err)
	}

	record.Description, err = pp.GetFieldValue(row, parseCtx, pp.config.DescriptionColumn)
	if err != nil {
		return nil, err
	}

	if !record.IsAmbiguous() {
		if _, err := record.OrderNumber(); err != nil {
			return nil, errors.ParseError(
				errors.CodeInvalidData,
				parseCtx.Source,
				parseCtx.LineNumber,
				pp.config.DescriptionColumn,
				record.Description,
				err,
			).WithSuggestion(fmt.Sprintf("descriptions must end with the order number, e.g. %q", "Order #123"))
		}
	}

	return record, nil
}

func (pp *ProcessorParser) decimalField(row []string, parseCtx *ParseContext, column string, parse func(string) (decimal.Decimal, error)) (decimal.Decimal, error) {
	value, err := pp.GetFieldValue(row, parseCtx, column)
	if err != nil {
		return decimal.Zero, err
	}
	d, err := parse(value)
	if err != nil {
		return decimal.Zero, errors.ParseError(errors.CodeInvalidData, parseCtx.Source, parseCtx.LineNumber, column, value, err)
	}
	return d, nil
}
