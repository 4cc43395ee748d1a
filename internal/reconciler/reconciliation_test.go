package reconciler

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"deposit-reconciler/internal/matcher"
	"deposit-reconciler/internal/models"
	"deposit-reconciler/pkg/errors"
)

// Test fixtures and test data setup

var batchTime = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func createTestProcessorExport() *models.ProcessorExport {
	return &models.ProcessorExport{
		Source: "stripe.csv",
		Records: []*models.ProcessorRecord{
			{Amount: dec("103.00"), Net: dec("100.00"), Fee: dec("3.00"), Created: batchTime, Description: "Order #123", Line: 2},
			{Amount: dec("51.50"), Net: dec("50.00"), Fee: dec("1.50"), Created: batchTime.Add(5 * time.Minute), Line: 3},
		},
	}
}

// createTestOrderExport returns orders 123 and 124, which the batch paid
// for, and 125, which it did not
func createTestOrderExport() *models.OrderExport {
	paid123 := batchTime.Add(30 * time.Second)
	paid124 := batchTime.Add(5*time.Minute + 20*time.Second)

	line := func(number int64, title string, qty int64, subtotal string, total string, paid time.Time) *models.OrderRecord {
		return &models.OrderRecord{
			OrderNumber:     number,
			ProductTitle:    title,
			Quantity:        qty,
			ProductSubtotal: dec(subtotal),
			Total:           dec(total),
			PaidAt:          paid,
		}
	}

	rows := []*models.OrderRecord{
		line(123, "Pinot Noir", 2, "80.00", "103.00", paid123),
		line(123, "Riesling", 1, "8.10", "103.00", paid123),
		line(124, "Riesling", 2, "45.00", "51.50", paid124),
		line(125, "Rose", 1, "30.00", "30.00", batchTime.Add(5*time.Minute+10*time.Second)),
	}
	for _, r := range rows[:2] {
		r.ShippingTotal = dec("10.00")
		r.TaxGST = dec("4.50")
		r.BottleDepositTotal = dec("0.40")
	}
	rows[2].TaxGST = dec("2.25")
	rows[2].TaxPST = dec("3.15")
	rows[2].BottleDepositTotal = dec("1.10")

	return &models.OrderExport{Headers: []string{"Order Number"}, Records: rows}
}

func newTestFilter(t *testing.T, options FilterOptions) *OrderFilter {
	t.Helper()
	filter, err := NewOrderFilter(&matcher.MatchingConfig{MaxTimeDelta: matcher.DefaultMaxTimeDelta, Timezone: "UTC"}, options)
	if err != nil {
		t.Fatalf("Failed to create filter: %v", err)
	}
	return filter
}

func TestOrderFilter_FilterOrders(t *testing.T) {
	filter := newTestFilter(t, FilterOptions{})

	result, err := filter.FilterOrders(createTestProcessorExport(), createTestOrderExport())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if diff := cmp.Diff([]int64{123, 124}, result.OrderNumbers()); diff != "" {
		t.Errorf("Kept orders mismatch (-want +got):\n%s", diff)
	}
	if len(result.Orders.Records) != 3 {
		t.Errorf("Expected every line item of kept orders, got %d rows", len(result.Orders.Records))
	}
	if diff := cmp.Diff([]int64{123}, result.KnownOrders); diff != "" {
		t.Errorf("Known orders mismatch (-want +got):\n%s", diff)
	}
	if len(result.Matches) != 1 || result.Matches[0].Order.OrderNumber != 124 {
		t.Errorf("Expected the ambiguous record to match order 124")
	}
	if diff := cmp.Diff([]int64{125}, result.ExcludedOrders); diff != "" {
		t.Errorf("Excluded orders mismatch (-want +got):\n%s", diff)
	}
	if !result.Complete() || result.TotalOrders != 3 {
		t.Errorf("Expected a complete result over 3 orders")
	}
}

func TestOrderFilter_Idempotent(t *testing.T) {
	filter := newTestFilter(t, FilterOptions{})
	processor := createTestProcessorExport()

	first, err := filter.FilterOrders(processor, createTestOrderExport())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	second, err := filter.FilterOrders(processor, first.Orders)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if diff := cmp.Diff(first.OrderNumbers(), second.OrderNumbers()); diff != "" {
		t.Errorf("Filtering twice changed the result (-first +second):\n%s", diff)
	}
	if len(second.Orders.Records) != len(first.Orders.Records) {
		t.Error("Filtering twice changed the row count")
	}
}

func TestOrderFilter_Diagnostics(t *testing.T) {
	processor := createTestProcessorExport()
	processor.Records = append(processor.Records,
		&models.ProcessorRecord{Amount: dec("9.99"), Net: dec("9.00"), Fee: dec("0.99"), Created: batchTime},
		&models.ProcessorRecord{Amount: dec("1.00"), Net: dec("1.00"), Created: batchTime, Description: "Order #999"},
		&models.ProcessorRecord{Amount: dec("1.00"), Net: dec("1.00"), Created: batchTime, Description: "Order #123"},
	)

	lenient := newTestFilter(t, FilterOptions{})
	result, err := lenient.FilterOrders(processor, createTestOrderExport())
	if err != nil {
		t.Fatalf("Expected incomplete matches to be tolerated, got %v", err)
	}
	if len(result.UnmatchedRecords) != 1 || !result.UnmatchedRecords[0].Amount.Equal(dec("9.99")) {
		t.Errorf("Expected the 9.99 record to be unmatched")
	}
	if diff := cmp.Diff([]int64{999}, result.MissingKnownOrders); diff != "" {
		t.Errorf("Missing orders mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{123, 999}, result.KnownOrders); diff != "" {
		t.Errorf("Expected known orders to be deduplicated (-want +got):\n%s", diff)
	}

	strict := newTestFilter(t, FilterOptions{StrictMatching: true})
	if _, err := strict.FilterOrders(processor, createTestOrderExport()); !errors.HasCode(err, errors.CodeMatchingFailed) {
		t.Errorf("Expected matching failed error, got %v", err)
	}
}

func TestOrderFilter_DescribedOrderNotReused(t *testing.T) {
	// Order 123 is paid by its described record, so an ambiguous record with
	// the same amount and time must not be attributed to it
	processor := createTestProcessorExport()
	processor.Records = append(processor.Records,
		&models.ProcessorRecord{Amount: dec("103.00"), Net: dec("100.00"), Fee: dec("3.00"), Created: batchTime})

	result, err := newTestFilter(t, FilterOptions{}).FilterOrders(processor, createTestOrderExport())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(result.UnmatchedRecords) != 1 {
		t.Errorf("Expected the duplicate 103.00 record to stay unmatched, got %d", len(result.UnmatchedRecords))
	}
}

func TestOrderFilter_InvalidInput(t *testing.T) {
	filter := newTestFilter(t, FilterOptions{})

	if _, err := filter.FilterOrders(nil, createTestOrderExport()); !errors.HasCode(err, errors.CodeMissingField) {
		t.Errorf("Expected missing field error, got %v", err)
	}

	processor := &models.ProcessorExport{Records: []*models.ProcessorRecord{{Description: "Refund"}}}
	if _, err := filter.FilterOrders(processor, createTestOrderExport()); !errors.HasCode(err, errors.CodeInvalidData) {
		t.Errorf("Expected invalid data error, got %v", err)
	}
}

func TestProcessProducts(t *testing.T) {
	orders := []*models.OrderRecord{
		{OrderNumber: 1, ProductTitle: "Syrah", Quantity: 1, ProductSubtotal: dec("10.005")},
		{OrderNumber: 1, ProductTitle: "Gamay", Quantity: 2, ProductSubtotal: dec("20.00")},
		{OrderNumber: 2, ProductTitle: "Syrah", Quantity: 3, ProductSubtotal: dec("0.01")},
		{OrderNumber: 3, ProductTitle: "Cider", Quantity: 1, ProductSubtotal: dec("0.125")},
	}

	summary := ProcessProducts(orders)

	want := []models.ProductLine{
		{Title: "Syrah", Count: 4, Subtotal: dec("10.02")},
		{Title: "Gamay", Count: 2, Subtotal: dec("20.00")},
		{Title: "Cider", Count: 1, Subtotal: dec("0.12")},
	}
	if len(summary.Lines) != len(want) {
		t.Fatalf("Expected %d products, got %d", len(want), len(summary.Lines))
	}
	for i, w := range want {
		got := summary.Lines[i]
		if got.Title != w.Title || got.Count != w.Count || !got.Subtotal.Equal(w.Subtotal) {
			t.Errorf("Line %d = %+v, want %+v", i, got, w)
		}
	}
}

func TestProcessTaxes_DeduplicatesOrders(t *testing.T) {
	var orders []*models.OrderRecord
	for i := 0; i < 3; i++ {
		orders = append(orders, &models.OrderRecord{
			OrderNumber:        7,
			ShippingTotal:      dec("15.00"),
			TaxGST:             dec("1.25"),
			TaxPST:             dec("1.75"),
			TaxAlbertaAdminFee: dec("0.50"),
			TaxHST:             dec("0.13"),
			TaxCRV:             dec("0.10"),
			BottleDepositTotal: dec("0.60"),
		})
	}
	orders = append(orders, &models.OrderRecord{OrderNumber: 8, TaxGST: dec("0.005")})

	summary := ProcessTaxes(orders)

	want := map[models.TaxCategory]string{
		models.TaxShipping:      "15.00",
		models.TaxGST:           "1.26",
		models.TaxPST:           "1.75",
		models.TaxAlberta:       "0.50",
		models.TaxOtherTaxes:    "0.23",
		models.TaxBottleDeposit: "0.60",
	}

	if len(summary.Lines) != len(models.TaxCategories) {
		t.Fatalf("Expected %d categories, got %d", len(models.TaxCategories), len(summary.Lines))
	}
	for i, line := range summary.Lines {
		if line.Category != models.TaxCategories[i] {
			t.Errorf("Category %d = %s, want %s", i, line.Category, models.TaxCategories[i])
		}
		if !line.Total.Equal(dec(want[line.Category])) {
			t.Errorf("%s = %s, want %s", line.Category, line.Total, want[line.Category])
		}
	}
}

func TestReconcile(t *testing.T) {
	filter := newTestFilter(t, FilterOptions{})
	processor := createTestProcessorExport()
	filtered, err := filter.FilterOrders(processor, createTestOrderExport())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	summary, err := Reconcile(processor.Fees(), processor.NetDeposit(), filtered.Orders.Records)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	want := [][]string{
		{"Product", "", ""},
		{"Pinot Noir", "2", "80.00"},
		{"Riesling", "3", "53.10"},
		{"", "", ""},
		{"Shipping", "10.00", ""},
		{"GST", "6.75", ""},
		{"PST", "3.15", ""},
		{"Alberta Charge", "0.00", ""},
		{"Other Taxes", "0.00", ""},
		{"Bottle Deposit", "1.50", ""},
		{"", "", ""},
		{"Stripe Fees", "-4.50", ""},
		{"", "", ""},
		{"Deposit Amount", "150.00", ""},
	}

	var got [][]string
	for _, row := range summary.Rows {
		got = append(got, row.Cells())
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Summary rows mismatch (-want +got):\n%s", diff)
	}
	if !summary.DepositAmount.Equal(dec("150")) {
		t.Errorf("DepositAmount = %s, want 150", summary.DepositAmount)
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	processor := createTestProcessorExport()
	orders := createTestOrderExport().Subset(map[int64]bool{123: true, 124: true}).Records

	first, err := Reconcile(processor.Fees(), processor.NetDeposit(), orders)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	second, err := Reconcile(processor.Fees(), processor.NetDeposit(), orders)
	if err != nil {
		t.Fatalf("Unexpected error on second run: %v", err)
	}

	if diff := cmp.Diff(first.Rows, second.Rows); diff != "" {
		t.Errorf("Summary rows differ between runs (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Summaries differ between runs (-first +second):\n%s", diff)
	}
	// Equal ignores the exponent, the rendered amounts must match too
	if first.DepositAmount.String() != second.DepositAmount.String() || first.Fees.String() != second.Fees.String() {
		t.Errorf("Amounts differ: %s/%s and %s/%s",
			first.DepositAmount, first.Fees, second.DepositAmount, second.Fees)
	}
}

func TestReconcile_DepositMismatch(t *testing.T) {
	tests := []struct {
		name       string
		netDeposit string
		difference string
	}{
		{"one cent short", "150.01", "-0.01"},
		{"one cent over", "149.99", "0.01"},
	}

	orders := createTestOrderExport().Subset(map[int64]bool{123: true, 124: true}).Records
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary, err := Reconcile(dec("-4.50"), dec(tt.netDeposit), orders)
			if summary != nil {
				t.Error("Expected no summary on mismatch")
			}
			if !errors.IsDepositMismatch(err) {
				t.Fatalf("Expected deposit mismatch, got %v", err)
			}
			reconcilerErr, _ := errors.AsReconcilerError(err)
			if got := reconcilerErr.Context["difference"]; got != tt.difference {
				t.Errorf("difference = %v, want %s", got, tt.difference)
			}
			if got := reconcilerErr.Context["computed_deposit"]; got != "150.00" {
				t.Errorf("computed_deposit = %v, want 150.00", got)
			}
		})
	}
}

func TestReconcile_EmptyOrders(t *testing.T) {
	summary, err := Reconcile(decimal.Zero, decimal.Zero, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	// Header, blank, six taxes, blank, fees, blank, deposit
	if len(summary.Rows) != 12 {
		t.Errorf("Expected 12 rows, got %d", len(summary.Rows))
	}
}
