package reconciler

import (
	"fmt"

	"deposit-reconciler/internal/matcher"
	"deposit-reconciler/internal/models"
	"deposit-reconciler/pkg/errors"
	"deposit-reconciler/pkg/logger"
)

// FilterOptions controls how the order filter treats incomplete matches
type FilterOptions struct {
	// StrictMatching fails the filter when an ambiguous processor record
	// matches no order, or a described order is missing from the export
	StrictMatching bool `json:"strict_matching"`
}

// FilterResult holds the order rows settled by a processor batch along with
// the diagnostics of how they were selected
type FilterResult struct {
	// Orders holds every original line item row of the kept orders
	Orders *models.OrderExport `json:"-"`

	// KnownOrders are order numbers taken from processor descriptions
	KnownOrders []int64 `json:"known_orders"`

	// Matches pairs ambiguous processor records with orders by amount and time
	Matches []*matcher.Match `json:"matches"`

	// UnmatchedRecords are ambiguous processor records no order was found for
	UnmatchedRecords []*models.ProcessorRecord `json:"unmatched_records"`

	// MissingKnownOrders are described order numbers absent from the order export
	MissingKnownOrders []int64 `json:"missing_known_orders"`

	// ExcludedOrders are orders in the export that no processor record paid for
	ExcludedOrders []int64 `json:"excluded_orders"`

	TotalOrders int `json:"total_orders"`
}

// OrderNumbers returns the kept order numbers in order export order
func (fr *FilterResult) OrderNumbers() []int64 {
	return fr.Orders.OrderNumbers()
}

// Complete reports whether every processor record was accounted for
func (fr *FilterResult) Complete() bool {
	return len(fr.UnmatchedRecords) == 0 && len(fr.MissingKnownOrders) == 0
}

// OrderFilter selects the orders settled by a processor batch
type OrderFilter struct {
	engine  *matcher.Engine
	options FilterOptions
	logger  logger.Logger
}

// NewOrderFilter creates an OrderFilter with the given matching configuration
func NewOrderFilter(config *matcher.MatchingConfig, options FilterOptions) (*OrderFilter, error) {
	engine, err := matcher.NewEngine(config)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "matching", config, err)
	}

	return &OrderFilter{
		engine:  engine,
		options: options,
		logger:  logger.WithComponent("order_filter"),
	}, nil
}

// FilterOrders keeps the order rows whose order number appears in a
// processor description or whose total and paid date match an ambiguous
// processor record. Orders nothing paid for are dropped.
func (f *OrderFilter) FilterOrders(processor *models.ProcessorExport, orders *models.OrderExport) (*FilterResult, error) {
	if processor == nil || orders == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "exports", nil, nil).
			WithSuggestion("provide both a processor export and an order export")
	}

	deduped := orders.Deduplicate()
	present := make(map[int64]bool, len(deduped))
	for _, o := range deduped {
		present[o.OrderNumber] = true
	}

	result := &FilterResult{TotalOrders: len(deduped)}
	keep := make(map[int64]bool)

	for _, r := range processor.Resolved() {
		number, err := r.OrderNumber()
		if err != nil {
			return nil, errors.ParseError(errors.CodeInvalidData, processor.Source, r.Line, "Description", r.Description, err)
		}
		if keep[number] {
			continue
		}
		keep[number] = true
		result.KnownOrders = append(result.KnownOrders, number)
		if !present[number] {
			result.MissingKnownOrders = append(result.MissingKnownOrders, number)
		}
	}

	// Described orders are already paid for and cannot absorb an ambiguous record
	var candidates []*models.OrderRecord
	for _, o := range deduped {
		if !keep[o.OrderNumber] {
			candidates = append(candidates, o)
		}
	}

	matched := f.engine.Match(processor.Ambiguous(), candidates)
	result.Matches = matched.Matches
	result.UnmatchedRecords = matched.UnmatchedRecords
	for _, number := range matched.MatchedOrderNumbers() {
		keep[number] = true
	}

	for _, o := range deduped {
		if !keep[o.OrderNumber] {
			result.ExcludedOrders = append(result.ExcludedOrders, o.OrderNumber)
		}
	}

	result.Orders = orders.Subset(keep)

	f.logger.WithFields(logger.Fields{
		"known_orders":   len(result.KnownOrders),
		"matched_orders": len(result.Matches),
		"kept_orders":    len(deduped) - len(result.ExcludedOrders),
		"excluded":       len(result.ExcludedOrders),
		"kept_rows":      len(result.Orders.Records),
	}).Info("Filtered orders")

	if err := f.checkComplete(result); err != nil {
		return nil, err
	}

	return result, nil
}

func (f *OrderFilter) checkComplete(result *FilterResult) error {
	for _, r := range result.UnmatchedRecords {
		f.logger.WithFields(logger.Fields{
			"amount":  r.Amount.StringFixed(models.MoneyPlaces),
			"created": r.Created.Format("2006-01-02 15:04"),
			"line":    r.Line,
		}).Warn("No order matches processor record")
	}
	if len(result.MissingKnownOrders) > 0 {
		f.logger.WithField("orders", result.MissingKnownOrders).Warn("Described orders are missing from the order export")
	}

	if !f.options.StrictMatching || result.Complete() {
		return nil
	}

	return errors.ReconciliationError(
		errors.CodeMatchingFailed,
		"order_filter",
		fmt.Errorf("%d processor records without an order, %d described orders missing from the export",
			len(result.UnmatchedRecords), len(result.MissingKnownOrders)),
	).WithContext("unmatched_records", len(result.UnmatchedRecords)).
		WithContext("missing_orders", result.MissingKnownOrders)
}
