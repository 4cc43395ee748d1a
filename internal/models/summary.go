package models

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// TaxCategory names one of the fixed tax summary rows
type TaxCategory string

const (
	TaxShipping      TaxCategory = "Shipping"
	TaxGST           TaxCategory = "GST"
	TaxPST           TaxCategory = "PST"
	TaxAlberta       TaxCategory = "Alberta Charge"
	TaxOtherTaxes    TaxCategory = "Other Taxes"
	TaxBottleDeposit TaxCategory = "Bottle Deposit"
)

// TaxCategories lists the tax summary rows in report order
var TaxCategories = []TaxCategory{
	TaxShipping,
	TaxGST,
	TaxPST,
	TaxAlberta,
	TaxOtherTaxes,
	TaxBottleDeposit,
}

// Summary row labels
const (
	LabelProduct       = "Product"
	LabelProcessorFees = "Stripe Fees"
	LabelDeposit       = "Deposit Amount"
)

// ProductLine is the rollup of one product title
type ProductLine struct {
	Title    string          `json:"product"`
	Count    int64           `json:"count"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// ProductSummary holds one line per distinct product title in first-appearance order
type ProductSummary struct {
	Lines []ProductLine `json:"products"`
}

// Total sums the rounded product subtotals
func (s *ProductSummary) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range s.Lines {
		total = total.Add(l.Subtotal)
	}
	return total
}

// Count sums the product counts
func (s *ProductSummary) Count() int64 {
	var n int64
	for _, l := range s.Lines {
		n += l.Count
	}
	return n
}

// TaxLine is the total of one tax category
type TaxLine struct {
	Category TaxCategory     `json:"category"`
	Total    decimal.Decimal `json:"total"`
}

// TaxSummary holds the six tax categories in TaxCategories order
type TaxSummary struct {
	Lines []TaxLine `json:"taxes"`
}

// Get returns the total of a category
func (s *TaxSummary) Get(category TaxCategory) decimal.Decimal {
	for _, l := range s.Lines {
		if l.Category == category {
			return l.Total
		}
	}
	return decimal.Zero
}

// Total sums the rounded category totals
func (s *TaxSummary) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range s.Lines {
		total = total.Add(l.Total)
	}
	return total
}

// SummaryRow is one three-column row of the reconciliation summary.
// Structural rows use empty strings.
type SummaryRow struct {
	Label    string `json:"label"`
	Value    string `json:"value"`
	Subtotal string `json:"subtotal"`
}

// Cells returns the row as a slice suitable for CSV or spreadsheet output
func (r SummaryRow) Cells() []string {
	return []string{r.Label, r.Value, r.Subtotal}
}

// IsBlank reports whether the row is a separator
func (r SummaryRow) IsBlank() bool {
	return r.Label == "" && r.Value == "" && r.Subtotal == ""
}

// ReconciliationSummary is the balanced outcome of one reconciliation run
type ReconciliationSummary struct {
	Products      ProductSummary  `json:"products"`
	Taxes         TaxSummary      `json:"taxes"`
	Fees          decimal.Decimal `json:"fees"`
	DepositAmount decimal.Decimal `json:"deposit_amount"`
	Rows          []SummaryRow    `json:"rows"`
}

// FormatMoney renders an amount with two decimals
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(MoneyPlaces)
}

// FormatCount renders an item count
func FormatCount(n int64) string {
	return strconv.FormatInt(n, 10)
}
