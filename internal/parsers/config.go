package parsers

import (
	"fmt"
	"strings"
	"time"
)

// Processor export column names
const (
	ColumnAmount      = "Amount"
	ColumnCreated     = "Created"
	ColumnNet         = "Net"
	ColumnFees        = "Fees"
	ColumnDescription = "Description"
)

// Order export column names
const (
	ColumnOrderNumber        = "Order Number"
	ColumnProductTitle       = "Product Title"
	ColumnQuantity           = "Quantity"
	ColumnProductSubtotal    = "Product SubTotal"
	ColumnShippingTotal      = "Shipping Total"
	ColumnTaxGST             = "Tax: GST"
	ColumnTaxPST             = "Tax: PST"
	ColumnTaxAlbertaAdminFee = "Tax: Alberta Admin Fee"
	ColumnTaxTax             = "Tax: Tax"
	ColumnTaxCRV             = "Tax: CRV"
	ColumnTaxMaineBottleBill = "Tax: Maine Bottle Bill"
	ColumnTaxWholesale       = "Tax: Wholesale"
	ColumnTaxHST             = "Tax: HST"
	ColumnTaxQST             = "Tax: QST"
	ColumnTaxOther           = "Tax: Other"
	ColumnBottleDepositTotal = "Bottle Deposit Total"
	ColumnTotal              = "Total"
	ColumnOrderPaidDate      = "Order Paid Date"
)

// DefaultOrderSheet is the workbook sheet order rows are read from
const DefaultOrderSheet = "All Data"

// ProcessorParserConfig holds configuration for parsing processor settlement exports
type ProcessorParserConfig struct {
	AmountColumn      string              `json:"amount_column"`
	CreatedColumn     string              `json:"created_column"`
	NetColumn         string              `json:"net_column"`
	FeeColumn         string              `json:"fee_column"`
	DescriptionColumn string              `json:"description_column"`
	TimeLayouts       []string            `json:"time_layouts"`
	Delimiter         rune                `json:"delimiter"`
	ColumnAliases     map[string][]string `json:"column_aliases,omitempty"`
}

// DefaultProcessorParserConfig returns the layout of a Stripe payout export
func DefaultProcessorParserConfig() *ProcessorParserConfig {
	return &ProcessorParserConfig{
		AmountColumn:      ColumnAmount,
		CreatedColumn:     ColumnCreated,
		NetColumn:         ColumnNet,
		FeeColumn:         ColumnFees,
		DescriptionColumn: ColumnDescription,
		TimeLayouts: []string{
			"2006-01-02 15:04",
			"2006-01-02 15:04:05",
			time.RFC3339,
		},
		Delimiter: ',',
		ColumnAliases: map[string][]string{
			ColumnCreated: {"Created (UTC)", "created", "Created date (UTC)"},
			ColumnFees:    {"Fee", "fee"},
			ColumnNet:     {"net"},
			ColumnAmount:  {"amount", "Gross"},
		},
	}
}

// Validate checks if the processor parser configuration is valid
func (c *ProcessorParserConfig) Validate() error {
	for name, value := range map[string]string{
		"amount":      c.AmountColumn,
		"created":     c.CreatedColumn,
		"net":         c.NetColumn,
		"fee":         c.FeeColumn,
		"description": c.DescriptionColumn,
	} {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s column cannot be empty", name)
		}
	}

	if len(c.TimeLayouts) == 0 {
		return fmt.Errorf("at least one time layout is required")
	}

	return nil
}

// RequiredColumns returns the columns every processor export must have
func (c *ProcessorParserConfig) RequiredColumns() []string {
	return []string{c.AmountColumn, c.CreatedColumn, c.NetColumn, c.FeeColumn, c.DescriptionColumn}
}

// OrderParserConfig holds configuration for parsing order exports
type OrderParserConfig struct {
	PaidDateLayouts []string            `json:"paid_date_layouts"`
	Location        *time.Location      `json:"-"`
	Delimiter       rune                `json:"delimiter"`
	Sheet           string              `json:"sheet"`
	ColumnAliases   map[string][]string `json:"column_aliases,omitempty"`
}

// DefaultOrderParserConfig returns the layout of a Commerce7 order detail export.
// Paid dates are interpreted in loc; nil means UTC.
func DefaultOrderParserConfig(loc *time.Location) *OrderParserConfig {
	if loc == nil {
		loc = time.UTC
	}

	return &OrderParserConfig{
		PaidDateLayouts: []string{
			"2006-01-02 15:04:05",
			"2006-01-02 15:04",
			time.RFC3339,
		},
		Location:  loc,
		Delimiter: ',',
		Sheet:     DefaultOrderSheet,
		ColumnAliases: map[string][]string{
			ColumnProductSubtotal: {"Product Subtotal"},
		},
	}
}

// Validate checks if the order parser configuration is valid
func (c *OrderParserConfig) Validate() error {
	if len(c.PaidDateLayouts) == 0 {
		return fmt.Errorf("at least one paid date layout is required")
	}
	if c.Location == nil {
		return fmt.Errorf("order timezone is required")
	}
	return nil
}

// RequiredColumns returns the columns every order export must have
func (c *OrderParserConfig) RequiredColumns() []string {
	return []string{
		ColumnOrderNumber,
		ColumnProductTitle,
		ColumnQuantity,
		ColumnProductSubtotal,
		ColumnShippingTotal,
		ColumnTaxGST,
		ColumnTaxPST,
		ColumnTaxAlbertaAdminFee,
		ColumnTaxTax,
		ColumnTaxCRV,
		ColumnTaxMaineBottleBill,
		ColumnTaxWholesale,
		ColumnTaxHST,
		ColumnTaxQST,
		ColumnTaxOther,
		ColumnBottleDepositTotal,
		ColumnTotal,
		ColumnOrderPaidDate,
	}
}
