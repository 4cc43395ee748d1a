package parsers

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"deposit-reconciler/pkg/errors"
)

const processorCSV = `id,Description,Created,Amount,Currency,Fees,Net
txn_1,Order #123,2025-06-01 09:00,103.00,cad,3.00,100.00
txn_2,,2025-06-01 09:05,51.50,cad,1.50,50.00
`

var orderHeader = strings.Join([]string{
	"Order Number", "Product Title", "Quantity", "Product SubTotal", "Shipping Total",
	"Tax: GST", "Tax: PST", "Tax: Alberta Admin Fee", "Tax: Tax", "Tax: CRV",
	"Tax: Maine Bottle Bill", "Tax: Wholesale", "Tax: HST", "Tax: QST", "Tax: Other",
	"Bottle Deposit Total", "Total", "Order Paid Date",
}, ",")

const orderRows = `123,Pinot Noir,2,80.00,10.00,4.50,0,0,0,0,0,0,0,0,0,0.40,103.00,2025-06-01 02:00:30
123,Riesling,1,8.10,10.00,4.50,0,0,0,0,0,0,0,0,0,0.40,103.00,2025-06-01 02:00:30
124,Riesling,2,45.00,,2.25,,,,,,,,,,,51.50,2025-06-01 02:05:20
`

// createTempFile writes content to a file in a per-test directory
func createTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	return path
}

func vancouver(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Vancouver")
	if err != nil {
		t.Skipf("timezone database unavailable: %v", err)
	}
	return loc
}

func TestDefaultParseConfig(t *testing.T) {
	config := DefaultParseConfig()

	if config.Delimiter != ',' {
		t.Errorf("Expected delimiter to be ',', got %q", config.Delimiter)
	}
	if !config.TrimLeadingSpace {
		t.Error("Expected TrimLeadingSpace to be true")
	}
	if !config.SkipEmptyRows {
		t.Error("Expected SkipEmptyRows to be true")
	}
}

func TestProcessorParserConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(*ProcessorParserConfig)
		wantError bool
	}{
		{"default", func(c *ProcessorParserConfig) {}, false},
		{"empty amount column", func(c *ProcessorParserConfig) { c.AmountColumn = "" }, true},
		{"empty fee column", func(c *ProcessorParserConfig) { c.FeeColumn = " " }, true},
		{"no time layouts", func(c *ProcessorParserConfig) { c.TimeLayouts = nil }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultProcessorParserConfig()
			tt.modify(config)
			err := config.Validate()
			if tt.wantError && err == nil {
				t.Error("Expected validation error")
			}
			if !tt.wantError && err != nil {
				t.Errorf("Unexpected validation error: %v", err)
			}
		})
	}

	if _, err := NewProcessorParser(&ProcessorParserConfig{}); !errors.HasCode(err, errors.CodeInvalidConfig) {
		t.Errorf("Expected invalid config error, got %v", err)
	}
}

func TestParseContext_GetColumnIndex(t *testing.T) {
	ctx := NewParseContext("test.csv", []string{" amount ", "Created (UTC)", "Net"}, DefaultProcessorParserConfig().ColumnAliases)

	tests := []struct {
		column string
		want   int
	}{
		{ColumnAmount, 0},
		{ColumnCreated, 1},
		{ColumnNet, 2},
		{ColumnFees, -1},
	}

	for _, tt := range tests {
		if got := ctx.GetColumnIndex(tt.column); got != tt.want {
			t.Errorf("GetColumnIndex(%q) = %d, want %d", tt.column, got, tt.want)
		}
	}
}

func TestProcessorParser_Parse(t *testing.T) {
	parser, err := NewProcessorParser(nil)
	if err != nil {
		t.Fatalf("Failed to create parser: %v", err)
	}

	export, err := parser.Parse(strings.NewReader(processorCSV), "stripe.csv")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(export.Records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(export.Records))
	}

	first := export.Records[0]
	if !first.Amount.Equal(decimal.RequireFromString("103")) || !first.Fee.Equal(decimal.RequireFromString("3")) {
		t.Errorf("Unexpected amounts %s", first)
	}
	if want := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC); !first.Created.Equal(want) {
		t.Errorf("Created = %s, want %s", first.Created, want)
	}
	if first.Line != 2 {
		t.Errorf("Expected line 2, got %d", first.Line)
	}
	if !export.Records[1].IsAmbiguous() {
		t.Error("Expected second record to be ambiguous")
	}
	if !export.NetDeposit().Equal(decimal.RequireFromString("150")) {
		t.Errorf("NetDeposit() = %s, want 150", export.NetDeposit())
	}
}

func TestProcessorParser_ByteOrderMarkAndEmptyRows(t *testing.T) {
	parser, _ := NewProcessorParser(nil)
	input := "\xEF\xBB\xBF" + strings.Replace(processorCSV, "\ntxn_2", "\n,,,,,,\ntxn_2", 1)

	export, err := parser.Parse(strings.NewReader(input), "bom.csv")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(export.Records) != 2 {
		t.Errorf("Expected empty row to be skipped, got %d records", len(export.Records))
	}
	if export.Records[1].Line != 4 {
		t.Errorf("Expected line numbers to count skipped rows, got %d", export.Records[1].Line)
	}
}

func TestProcessorParser_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		code  errors.ErrorCode
	}{
		{
			name:  "empty file",
			input: "",
			code:  errors.CodeMissingColumn,
		},
		{
			name:  "missing fees column",
			input: "Description,Created,Amount,Net\nOrder #1,2025-06-01 09:00,1.00,1.00\n",
			code:  errors.CodeMissingColumn,
		},
		{
			name:  "invalid amount",
			input: "Description,Created,Amount,Fees,Net\nOrder #1,2025-06-01 09:00,abc,0,1.00\n",
			code:  errors.CodeInvalidData,
		},
		{
			name:  "invalid created",
			input: "Description,Created,Amount,Fees,Net\nOrder #1,June 1,1.00,0,1.00\n",
			code:  errors.CodeInvalidData,
		},
		{
			name:  "description without order number",
			input: "Description,Created,Amount,Fees,Net\nPayout adjustment,2025-06-01 09:00,1.00,0,1.00\n",
			code:  errors.CodeInvalidData,
		},
		{
			name:  "invalid encoding",
			input: "Description,Created,Amount,Fees,Net\n\xff\xfe,2025-06-01 09:00,1.00,0,1.00\n",
			code:  errors.CodeEncodingError,
		},
		{
			name:  "unterminated quote",
			input: "Description,Created,Amount,Fees,Net\n\"Order #1,2025-06-01 09:00,1.00,0,1.00\n",
			code:  errors.CodeInvalidFormat,
		},
	}

	parser, _ := NewProcessorParser(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			export, err := parser.Parse(strings.NewReader(tt.input), "bad.csv")
			if err == nil {
				t.Fatal("Expected error")
			}
			if export != nil {
				t.Error("Expected no partial result")
			}
			if !errors.HasCode(err, tt.code) {
				t.Errorf("Expected code %s, got %v", tt.code, err)
			}
		})
	}
}

func TestProcessorParser_ParseFileNotFound(t *testing.T) {
	parser, _ := NewProcessorParser(nil)
	_, err := parser.ParseFile(filepath.Join(t.TempDir(), "missing.csv"))
	if !errors.HasCode(err, errors.CodeFileNotFound) {
		t.Errorf("Expected file not found error, got %v", err)
	}
}

func TestOrderParser_Parse(t *testing.T) {
	loc := vancouver(t)
	parser, err := NewOrderParser(DefaultOrderParserConfig(loc))
	if err != nil {
		t.Fatalf("Failed to create parser: %v", err)
	}

	export, err := parser.Parse(strings.NewReader(orderHeader+"\n"+orderRows), "orders.csv")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(export.Records) != 3 {
		t.Fatalf("Expected 3 rows, got %d", len(export.Records))
	}
	if len(export.Headers) != 18 {
		t.Errorf("Expected 18 headers, got %d", len(export.Headers))
	}

	first := export.Records[0]
	if first.OrderNumber != 123 || first.Quantity != 2 || first.ProductTitle != "Pinot Noir" {
		t.Errorf("Unexpected first row %s", first)
	}
	if want := time.Date(2025, 6, 1, 9, 0, 30, 0, time.UTC); !first.PaidAt.Equal(want) {
		t.Errorf("PaidAt = %s, want %s", first.PaidAt, want)
	}
	if first.Raw["Product Title"] != "Pinot Noir" {
		t.Errorf("Expected raw cells to be kept, got %v", first.Raw)
	}

	last := export.Records[2]
	if !last.ShippingTotal.IsZero() || !last.TaxPST.IsZero() {
		t.Error("Expected empty cells to parse as zero")
	}
	if !last.Total.Equal(decimal.RequireFromString("51.50")) {
		t.Errorf("Total = %s, want 51.50", last.Total)
	}
}

func TestOrderParser_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		code  errors.ErrorCode
	}{
		{"missing columns", "Order Number,Total\n1,2.00\n", errors.CodeMissingColumn},
		{"bad order number", orderHeader + "\nabc" + orderRows[3:], errors.CodeInvalidData},
		{"bad quantity", orderHeader + "\n" + strings.Replace(orderRows, "Pinot Noir,2,", "Pinot Noir,two,", 1), errors.CodeInvalidData},
		{"bad paid date", orderHeader + "\n" + strings.Replace(orderRows, "2025-06-01 02:00:30", "yesterday", 1), errors.CodeInvalidData},
	}

	parser, _ := NewOrderParser(DefaultOrderParserConfig(time.UTC))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parser.Parse(strings.NewReader(tt.input), "orders.csv")
			if !errors.HasCode(err, tt.code) {
				t.Errorf("Expected code %s, got %v", tt.code, err)
			}
		})
	}
}

func TestOrderParser_ParseFiles(t *testing.T) {
	parser, _ := NewOrderParser(DefaultOrderParserConfig(time.UTC))

	lines := strings.Split(strings.TrimSpace(orderRows), "\n")
	a := createTempFile(t, "a.csv", orderHeader+"\n"+lines[0]+"\n"+lines[1]+"\n")
	b := createTempFile(t, "b.csv", orderHeader+"\n"+lines[2]+"\n")

	export, err := parser.ParseFiles([]string{a, b})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(export.Records) != 3 {
		t.Errorf("Expected 3 rows, got %d", len(export.Records))
	}
	if got := export.OrderNumbers(); len(got) != 2 || got[1] != 124 {
		t.Errorf("Unexpected order numbers %v", got)
	}

	if _, err := parser.ParseFiles(nil); !errors.HasCode(err, errors.CodeEmptyInput) {
		t.Errorf("Expected empty input error, got %v", err)
	}
}

func TestOrderParser_ParseWorkbook(t *testing.T) {
	tests := []struct {
		name  string
		sheet string
		typed bool
	}{
		{"all data sheet", DefaultOrderSheet, false},
		{"first sheet fallback", "Export", false},
		{"number and date cells", DefaultOrderSheet, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			book := excelize.NewFile()
			defer book.Close()
			if err := book.SetSheetName("Sheet1", tt.sheet); err != nil {
				t.Fatalf("Failed to name sheet: %v", err)
			}

			header := strings.Split(orderHeader, ",")
			// Trailing empty cells are dropped by the reader
			row := strings.Split(strings.Split(orderRows, "\n")[2], ",")
			for i, values := range [][]string{header, row} {
				cells := make([]interface{}, len(values))
				for j, v := range values {
					cells[j] = v
					if tt.typed && i > 0 {
						cells[j] = typedCell(t, header[j], v)
					}
				}
				cell, _ := excelize.CoordinatesToCellName(1, i+1)
				if err := book.SetSheetRow(tt.sheet, cell, &cells); err != nil {
					t.Fatalf("Failed to write row: %v", err)
				}
			}

			path := filepath.Join(t.TempDir(), "orders.xlsx")
			if err := book.SaveAs(path); err != nil {
				t.Fatalf("Failed to save workbook: %v", err)
			}

			parser, _ := NewOrderParser(DefaultOrderParserConfig(time.UTC))
			export, err := parser.ParseFile(path)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if len(export.Records) != 1 || export.Records[0].OrderNumber != 124 {
				t.Fatalf("Unexpected records %v", export.Records)
			}
			record := export.Records[0]
			if !record.Total.Equal(decimal.RequireFromString("51.50")) {
				t.Errorf("Total = %s, want 51.50", record.Total)
			}
			if record.Quantity != 2 {
				t.Errorf("Quantity = %d, want 2", record.Quantity)
			}
			want := time.Date(2025, 6, 1, 2, 5, 20, 0, time.UTC)
			if !record.PaidAt.Equal(want) {
				t.Errorf("PaidAt = %v, want %v", record.PaidAt, want)
			}
		})
	}
}

// typedCell converts a text fixture value into the cell type a spreadsheet
// export stores for its column
func typedCell(t *testing.T, header, value string) interface{} {
	t.Helper()
	if value == "" {
		return value
	}
	switch header {
	case ColumnProductTitle:
		return value
	case ColumnOrderPaidDate:
		paid, err := time.Parse("2006-01-02 15:04:05", value)
		if err != nil {
			t.Fatalf("Bad fixture date %q: %v", value, err)
		}
		return paid
	case ColumnOrderNumber, ColumnQuantity:
		n, err := strconv.Atoi(value)
		if err != nil {
			t.Fatalf("Bad fixture integer %q: %v", value, err)
		}
		return n
	default:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			t.Fatalf("Bad fixture amount %q: %v", value, err)
		}
		return f
	}
}

func TestDateSerialToText(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		date1904 bool
		want     string
	}{
		{"serial with seconds", "45809.0871527777778", false, "2025-06-01 02:05:30"},
		{"text date passes through", "2025-06-01 02:05:20", false, "2025-06-01 02:05:20"},
		{"1904 epoch", "44347.0871527777778", true, "2025-06-01 02:05:30"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := dateSerialToText(tt.value, tt.date1904)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("dateSerialToText(%q) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}

func TestOrderParser_CorruptWorkbook(t *testing.T) {
	path := createTempFile(t, "orders.xlsx", "not a zip archive")
	parser, _ := NewOrderParser(nil)

	if _, err := parser.ParseFile(path); !errors.HasCode(err, errors.CodeFileCorrupted) {
		t.Errorf("Expected corrupted file error, got %v", err)
	}
}
