// Package parsers turns processor and order exports into materialized records.
//
// Both exports are small, so every parser reads the whole input before
// converting rows. A malformed file or a missing column is reported as a
// categorised parse error and no partial result is returned.
//
// Example usage:
//
//	processor, err := parsers.NewProcessorParser(nil)
//	export, err := processor.ParseFile("stripe.csv")
//
//	orders, err := parsers.NewOrderParser(parsers.DefaultOrderParserConfig(loc))
//	orderExport, err := orders.ParseFiles([]string{"orders.csv", "more.xlsx"})
package parsers

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"deposit-reconciler/pkg/errors"
	"deposit-reconciler/pkg/logger"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseConfig holds configuration for CSV parsing
type ParseConfig struct {
	Delimiter        rune
	TrimLeadingSpace bool
	SkipEmptyRows    bool
	ValidateEncoding bool
}

// DefaultParseConfig returns a configuration with sensible defaults
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		Delimiter:        ',',
		TrimLeadingSpace: true,
		SkipEmptyRows:    true,
		ValidateEncoding: true,
	}
}

// BaseParser provides common tabular parsing functionality
type BaseParser struct {
	config *ParseConfig
	logger logger.Logger
}

// NewBaseParser creates a new BaseParser with the given configuration
func NewBaseParser(config *ParseConfig) *BaseParser {
	if config == nil {
		config = DefaultParseConfig()
	}

	return &BaseParser{
		config: config,
		logger: logger.WithComponent("base_parser"),
	}
}

// ParseContext holds the header layout of one input while its rows are converted
type ParseContext struct {
	Source     string
	LineNumber int
	Headers    []string
	HeaderMap  map[string]int
	aliases    map[string][]string
}

// NewParseContext builds a context from a header row
func NewParseContext(source string, headers []string, aliases map[string][]string) *ParseContext {
	pc := &ParseContext{
		Source:     source,
		LineNumber: 1,
		Headers:    cleanHeaders(headers),
		HeaderMap:  make(map[string]int, len(headers)),
		aliases:    aliases,
	}
	for i, header := range pc.Headers {
		if _, exists := pc.HeaderMap[header]; !exists {
			pc.HeaderMap[header] = i
		}
	}
	return pc
}

// GetColumnIndex returns the index of a column by name or one of its aliases, or -1
func (pc *ParseContext) GetColumnIndex(name string) int {
	candidates := append([]string{name}, pc.aliases[name]...)

	for _, candidate := range candidates {
		if index, exists := pc.HeaderMap[candidate]; exists {
			return index
		}
	}

	for _, candidate := range candidates {
		lower := strings.ToLower(candidate)
		for i, header := range pc.Headers {
			if strings.ToLower(header) == lower {
				return i
			}
		}
	}

	return -1
}

// RequireColumns fails with a missing-column parse error for the first absent column
func (pc *ParseContext) RequireColumns(required []string) error {
	var missing []string
	for _, name := range required {
		if pc.GetColumnIndex(name) == -1 {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	return errors.ParseError(
		errors.CodeMissingColumn,
		pc.Source,
		1,
		strings.Join(missing, ", "),
		"",
		nil,
	).WithContext("available_headers", pc.Headers)
}

// ReadRows reads a whole CSV input, validating its encoding and dropping a
// leading byte order mark. The first returned row is the header.
func (bp *BaseParser) ReadRows(r io.Reader, source string) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.FileError(errors.CodeFileCorrupted, source, err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	if bp.config.ValidateEncoding {
		if err := validateEncoding(data, source); err != nil {
			return nil, err
		}
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = bp.config.Delimiter
	reader.TrimLeadingSpace = bp.config.TrimLeadingSpace
	reader.FieldsPerRecord = -1

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			line := len(rows) + 1
			if parseErr, ok := err.(*csv.ParseError); ok {
				line = parseErr.Line
			}
			return nil, errors.ParseError(errors.CodeInvalidFormat, source, line, "", "", err)
		}
		rows = append(rows, record)
	}

	if len(rows) == 0 {
		return nil, errors.ParseError(errors.CodeMissingColumn, source, 1, "headers", "", fmt.Errorf("file is empty")).
			WithSuggestion("ensure the file contains a header row")
	}

	bp.logger.WithFields(logger.Fields{
		"source": source,
		"rows":   len(rows) - 1,
	}).Debug("Read tabular input")

	return rows, nil
}

// DataRows returns the non-empty rows after the header, paired with their line numbers
func (bp *BaseParser) DataRows(rows [][]string) ([][]string, []int) {
	var out [][]string
	var lines []int
	for i, row := range rows[1:] {
		if bp.config.SkipEmptyRows && isEmptyRecord(row) {
			continue
		}
		out = append(out, row)
		lines = append(lines, i+2)
	}
	return out, lines
}

// GetFieldValue retrieves a trimmed field value by column name
func (bp *BaseParser) GetFieldValue(record []string, parseCtx *ParseContext, fieldName string) (string, error) {
	index := parseCtx.GetColumnIndex(fieldName)
	if index == -1 {
		return "", errors.ParseError(errors.CodeMissingColumn, parseCtx.Source, parseCtx.LineNumber, fieldName, "", nil)
	}

	if index >= len(record) {
		return "", errors.ParseError(
			errors.CodeInvalidFormat,
			parseCtx.Source,
			parseCtx.LineNumber,
			fieldName,
			"",
			fmt.Errorf("row has %d fields, column '%s' is field %d", len(record), fieldName, index+1),
		).WithSuggestion("check that all rows have the same number of columns as the header")
	}

	return strings.TrimSpace(record[index]), nil
}

// RawValues maps every header to the row's cell value
func (bp *BaseParser) RawValues(record []string, parseCtx *ParseContext) map[string]string {
	raw := make(map[string]string, len(parseCtx.Headers))
	for i, header := range parseCtx.Headers {
		if i < len(record) {
			raw[header] = record[i]
		} else {
			raw[header] = ""
		}
	}
	return raw
}

// openFile opens path, mapping failures to file error codes
func openFile(path string) (*os.File, error) {
	file, err := os.Open(path)
	if err == nil {
		return file, nil
	}

	switch {
	case os.IsNotExist(err):
		return nil, errors.FileError(errors.CodeFileNotFound, path, err)
	case os.IsPermission(err):
		return nil, errors.FileError(errors.CodeFilePermission, path, err)
	default:
		return nil, errors.FileError(errors.CodeFileCorrupted, path, err)
	}
}

func validateEncoding(data []byte, source string) error {
	if utf8.Valid(data) {
		return nil
	}

	line := 1
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size <= 1 {
			break
		}
		if r == '\n' {
			line++
		}
		data = data[size:]
	}

	return errors.ParseError(errors.CodeEncodingError, source, line, "encoding", "", fmt.Errorf("invalid UTF-8 encoding detected"))
}

func cleanHeaders(headers []string) []string {
	cleaned := make([]string, len(headers))
	for i, header := range headers {
		cleaned[i] = strings.TrimSpace(header)
	}
	return cleaned
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// padRow extends a row to width with empty cells. Spreadsheet readers drop
// trailing empty cells.
func padRow(row []string, width int) []string {
	if len(row) >= width {
		return row
	}
	padded := make([]string, width)
	copy(padded, row)
	return padded
}
