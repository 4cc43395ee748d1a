package parsers

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"deposit-reconciler/pkg/errors"
)

// workbookTimeLayout is how date cells are handed to the row parser. Fractional
// seconds are kept when present and accepted by the seconds layouts.
const workbookTimeLayout = "2006-01-02 15:04:05.999"

// readWorkbookRows returns the raw cell values of sheet, falling back to the
// first sheet when the workbook has no sheet of that name. Numeric cells in
// dateColumns are date serials and are rewritten as wall clock text.
func readWorkbookRows(r io.Reader, source, sheet string, dateColumns ...string) ([][]string, error) {
	book, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errors.FileError(errors.CodeFileCorrupted, source, err).
			WithSuggestion("check that the file is a valid .xlsx workbook")
	}
	defer book.Close()

	name := sheet
	if idx, err := book.GetSheetIndex(sheet); err != nil || idx == -1 {
		sheets := book.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.ParseError(errors.CodeInvalidFormat, source, 1, "", "", fmt.Errorf("workbook has no sheets"))
		}
		name = sheets[0]
	}

	// Formatted values lose precision (dates drop their seconds)
	rows, err := book.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, errors.ParseError(errors.CodeInvalidFormat, source, 1, "", "", err).
			WithContext("sheet", name)
	}
	if len(rows) == 0 {
		return nil, errors.ParseError(errors.CodeMissingColumn, source, 1, "headers", "", fmt.Errorf("sheet %q is empty", name)).
			WithSuggestion("ensure the sheet contains a header row")
	}

	date1904 := false
	if props, err := book.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}
	for _, col := range dateColumnIndexes(rows[0], dateColumns) {
		for i := 1; i < len(rows); i++ {
			if col >= len(rows[i]) {
				continue
			}
			value, err := dateSerialToText(rows[i][col], date1904)
			if err != nil {
				return nil, errors.ParseError(errors.CodeInvalidData, source, i+1, rows[0][col], rows[i][col], err)
			}
			rows[i][col] = value
		}
	}

	return rows, nil
}

func dateColumnIndexes(headers []string, columns []string) []int {
	var indexes []int
	for i, h := range headers {
		for _, c := range columns {
			if strings.EqualFold(strings.TrimSpace(h), c) {
				indexes = append(indexes, i)
				break
			}
		}
	}
	return indexes
}

// dateSerialToText converts an Excel date serial to its wall clock text.
// Values that are not numbers are already text dates and pass through.
func dateSerialToText(value string, date1904 bool) (string, error) {
	serial, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return value, nil
	}
	t, err := excelize.ExcelDateToTime(serial, date1904)
	if err != nil {
		return "", err
	}
	return t.Round(time.Millisecond).Format(workbookTimeLayout), nil
}
