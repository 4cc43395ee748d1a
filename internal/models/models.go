package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of decimal places every reported total is rounded to
const MoneyPlaces = 2

// ProcessorRecord is one settlement transaction from the payment processor export
type ProcessorRecord struct {
	Amount      decimal.Decimal `json:"amount"`
	Net         decimal.Decimal `json:"net"`
	Fee         decimal.Decimal `json:"fee"`
	Created     time.Time       `json:"created"`
	Description string          `json:"description,omitempty"`
	Line        int             `json:"line,omitempty"`
}

// IsAmbiguous reports whether the record carries no order identifier and has
// to be matched against orders by amount and time.
func (r *ProcessorRecord) IsAmbiguous() bool {
	return strings.TrimSpace(r.Description) == ""
}

// OrderNumber extracts the order identifier embedded in the description
func (r *ProcessorRecord) OrderNumber() (int64, error) {
	return ExtractOrderNumber(r.Description)
}

// String returns a string representation of the ProcessorRecord
func (r *ProcessorRecord) String() string {
	return fmt.Sprintf("ProcessorRecord{Amount: %s, Net: %s, Fee: %s, Created: %s, Description: %q}",
		r.Amount.StringFixed(MoneyPlaces), r.Net.StringFixed(MoneyPlaces), r.Fee.StringFixed(MoneyPlaces),
		r.Created.Format(time.RFC3339), r.Description)
}

// ProcessorExport is a fully materialized processor settlement export
type ProcessorExport struct {
	Source  string             `json:"source"`
	Records []*ProcessorRecord `json:"records"`
}

// Fees returns the batch fees as a negative amount, rounded to cents
func (e *ProcessorExport) Fees() decimal.Decimal {
	total := decimal.Zero
	for _, r := range e.Records {
		total = total.Add(r.Fee)
	}
	return RoundMoney(total).Neg()
}

// NetDeposit returns the net amount deposited for the batch, rounded to cents
func (e *ProcessorExport) NetDeposit() decimal.Decimal {
	total := decimal.Zero
	for _, r := range e.Records {
		total = total.Add(r.Net)
	}
	return RoundMoney(total)
}

// Ambiguous returns the records without an embedded order identifier
func (e *ProcessorExport) Ambiguous() []*ProcessorRecord {
	var out []*ProcessorRecord
	for _, r := range e.Records {
		if r.IsAmbiguous() {
			out = append(out, r)
		}
	}
	return out
}

// Resolved returns the records that carry an order identifier
func (e *ProcessorExport) Resolved() []*ProcessorRecord {
	var out []*ProcessorRecord
	for _, r := range e.Records {
		if !r.IsAmbiguous() {
			out = append(out, r)
		}
	}
	return out
}

// OrderRecord is one line item row of the e-commerce order export.
//
// Shipping, tax and bottle deposit fields are order-level values repeated on
// every line item row of the same order.
type OrderRecord struct {
	OrderNumber        int64           `json:"order_number"`
	ProductTitle       string          `json:"product_title"`
	Quantity           int64           `json:"quantity"`
	ProductSubtotal    decimal.Decimal `json:"product_subtotal"`
	ShippingTotal      decimal.Decimal `json:"shipping_total"`
	TaxGST             decimal.Decimal `json:"tax_gst"`
	TaxPST             decimal.Decimal `json:"tax_pst"`
	TaxAlbertaAdminFee decimal.Decimal `json:"tax_alberta_admin_fee"`
	TaxTax             decimal.Decimal `json:"tax_tax"`
	TaxCRV             decimal.Decimal `json:"tax_crv"`
	TaxMaineBottleBill decimal.Decimal `json:"tax_maine_bottle_bill"`
	TaxWholesale       decimal.Decimal `json:"tax_wholesale"`
	TaxHST             decimal.Decimal `json:"tax_hst"`
	TaxQST             decimal.Decimal `json:"tax_qst"`
	TaxOther           decimal.Decimal `json:"tax_other"`
	BottleDepositTotal decimal.Decimal `json:"bottle_deposit_total"`
	Total              decimal.Decimal `json:"total"`
	PaidAt             time.Time       `json:"paid_at"`

	// Raw holds the original cell values keyed by header
	Raw  map[string]string `json:"-"`
	Line int               `json:"-"`
}

// OtherTaxTotal sums the tax columns reported together as "Other Taxes"
func (o *OrderRecord) OtherTaxTotal() decimal.Decimal {
	return decimal.Sum(
		o.TaxTax, o.TaxCRV, o.TaxMaineBottleBill, o.TaxWholesale,
		o.TaxHST, o.TaxQST, o.TaxOther,
	)
}

// String returns a string representation of the OrderRecord
func (o *OrderRecord) String() string {
	return fmt.Sprintf("OrderRecord{Order: %d, Product: %q, Qty: %d, Total: %s, Paid: %s}",
		o.OrderNumber, o.ProductTitle, o.Quantity, o.Total.StringFixed(MoneyPlaces), o.PaidAt.Format(time.RFC3339))
}

// OrderExport is a fully materialized order export, one row per line item
type OrderExport struct {
	Headers []string       `json:"headers"`
	Records []*OrderRecord `json:"records"`
}

// Append adds the rows of other, extending the header list with any new columns
func (e *OrderExport) Append(other *OrderExport) {
	if other == nil {
		return
	}

	known := make(map[string]bool, len(e.Headers))
	for _, h := range e.Headers {
		known[h] = true
	}
	for _, h := range other.Headers {
		if !known[h] {
			e.Headers = append(e.Headers, h)
			known[h] = true
		}
	}

	e.Records = append(e.Records, other.Records...)
}

// Deduplicate returns one row per order number, keeping the first occurrence
func (e *OrderExport) Deduplicate() []*OrderRecord {
	return DeduplicateOrders(e.Records)
}

// Subset returns the rows whose order number is in numbers, in their original order
func (e *OrderExport) Subset(numbers map[int64]bool) *OrderExport {
	out := &OrderExport{Headers: append([]string(nil), e.Headers...)}
	for _, r := range e.Records {
		if numbers[r.OrderNumber] {
			out.Records = append(out.Records, r)
		}
	}
	return out
}

// OrderNumbers returns the distinct order numbers in first-appearance order
func (e *OrderExport) OrderNumbers() []int64 {
	var out []int64
	for _, r := range e.Deduplicate() {
		out = append(out, r.OrderNumber)
	}
	return out
}

// DeduplicateOrders keeps the first row of every order number
func DeduplicateOrders(records []*OrderRecord) []*OrderRecord {
	seen := make(map[int64]bool, len(records))
	var out []*OrderRecord
	for _, r := range records {
		if seen[r.OrderNumber] {
			continue
		}
		seen[r.OrderNumber] = true
		out = append(out, r)
	}
	return out
}

// Utility functions for type conversion and validation

// RoundMoney rounds half-to-even to cents
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(MoneyPlaces)
}

// ParseDecimalFromString parses a decimal value, tolerating currency symbols
// and thousands separators
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	return d, nil
}

// ParseOptionalDecimal parses a decimal where an empty cell means zero
func ParseOptionalDecimal(s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	return ParseDecimalFromString(s)
}

// ParseQuantity parses an item count; exports sometimes write counts as "2.0"
func ParseQuantity(s string) (int64, error) {
	d, err := ParseOptionalDecimal(s)
	if err != nil {
		return 0, err
	}
	if !d.IsInteger() {
		return 0, fmt.Errorf("quantity '%s' is not a whole number", s)
	}
	return d.IntPart(), nil
}

// ParseTimeInLocation parses s with the first matching layout. Layouts without
// an offset are interpreted as wall clock time in loc, so daylight saving
// transitions are applied by zone rules rather than a fixed offset.
func ParseTimeInLocation(s string, loc *time.Location, layouts ...string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("time string cannot be empty")
	}
	if loc == nil {
		loc = time.UTC
	}

	var lastErr error
	for _, layout := range layouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("unable to parse time '%s': %w", s, lastErr)
}

// ExtractOrderNumber returns the order identifier embedded as the last
// whitespace-delimited token of a processor description, e.g. "Order #123".
func ExtractOrderNumber(description string) (int64, error) {
	fields := strings.Fields(description)
	if len(fields) == 0 {
		return 0, fmt.Errorf("description is empty")
	}

	token := strings.TrimLeft(fields[len(fields)-1], "#")
	n, err := strconv.ParseInt(token, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("description %q does not end with an order number: %w", description, err)
	}
	return n, nil
}
