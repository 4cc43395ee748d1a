// Package reconciler settles one payment processor batch against the
// e-commerce order export.
//
// A run selects the orders the batch paid for, totals their products and
// order-level charges, and checks that the total less processor fees is the
// deposited amount:
//   - OrderFilter keeps described orders and orders matched by amount and time
//   - ProcessProducts and ProcessTaxes aggregate the kept rows
//   - Reconcile performs the balance check and lays out the summary
//
// The Orchestrator drives these steps from input files to a Result.
//
// Example usage:
//
//	orchestrator, err := reconciler.NewOrchestrator(reconciler.DefaultConfig())
//	result, err := orchestrator.Run(ctx, &reconciler.Request{
//		ProcessorFile: "stripe.csv",
//		OrderFiles:    []string{"orders.csv"},
//	})
package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"deposit-reconciler/internal/daterange"
	"deposit-reconciler/internal/matcher"
	"deposit-reconciler/internal/models"
	"deposit-reconciler/internal/parsers"
	"deposit-reconciler/pkg/errors"
	"deposit-reconciler/pkg/logger"
)

// Run steps
const (
	StepLoadProcessor = "Loading processor export"
	StepLoadOrders    = "Loading order exports"
	StepDateRange     = "Deriving date range"
	StepFilter        = "Filtering orders"
	StepReconcile     = "Reconciling deposit"
)

var runSteps = []string{StepLoadProcessor, StepLoadOrders, StepDateRange, StepFilter, StepReconcile}

// Config holds configuration options for a reconciliation run
type Config struct {
	Matching  *matcher.MatchingConfig        `json:"matching"`
	Filter    FilterOptions                  `json:"filter"`
	BaseURL   string                         `json:"base_url"`
	Padding   time.Duration                  `json:"padding"`
	Processor *parsers.ProcessorParserConfig `json:"processor,omitempty"`
}

// DefaultConfig returns a default configuration for the orchestrator
func DefaultConfig() *Config {
	return &Config{
		Matching:  matcher.DefaultMatchingConfig(),
		BaseURL:   daterange.DefaultBaseURL,
		Padding:   daterange.DefaultPadding,
		Processor: parsers.DefaultProcessorParserConfig(),
	}
}

// Request names the inputs of one run. A parsed export takes precedence
// over its file.
type Request struct {
	ProcessorFile string                  `json:"processor_file,omitempty"`
	Processor     *models.ProcessorExport `json:"-"`
	OrderFiles    []string                `json:"order_files,omitempty"`
	Orders        *models.OrderExport     `json:"-"`
}

// Validate checks that both inputs are present
func (r *Request) Validate() error {
	if r.Processor == nil && r.ProcessorFile == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "processor export", nil, nil)
	}
	if r.Orders == nil && len(r.OrderFiles) == 0 {
		return errors.ConfigurationError(errors.CodeMissingConfig, "order exports", nil, nil)
	}
	return nil
}

// Result is the outcome of one run
type Result struct {
	RunID      string          `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	Duration   time.Duration   `json:"duration"`
	Source     string          `json:"processor_source"`
	Range      daterange.Range `json:"date_range"`
	URL        string          `json:"url"`
	Fees       decimal.Decimal `json:"fees"`
	NetDeposit decimal.Decimal `json:"net_deposit"`

	Processor *models.ProcessorExport       `json:"-"`
	Filter    *FilterResult                 `json:"filter"`
	Summary   *models.ReconciliationSummary `json:"summary,omitempty"`
}

// Orchestrator runs reconciliations
type Orchestrator struct {
	processorParser *parsers.ProcessorParser
	orderParser     *parsers.OrderParser
	filter          *OrderFilter
	urls            *daterange.Builder
	logger          logger.Logger

	callbacks []func(logger.ProgressStats)
	mutex     sync.Mutex
}

// NewOrchestrator creates an orchestrator from config; nil uses DefaultConfig
func NewOrchestrator(config *Config) (*Orchestrator, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Matching == nil {
		config.Matching = matcher.DefaultMatchingConfig()
	}

	loc, err := config.Matching.Location()
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "matching.timezone", config.Matching.Timezone, err)
	}

	processorParser, err := parsers.NewProcessorParser(config.Processor)
	if err != nil {
		return nil, err
	}

	orderParser, err := parsers.NewOrderParser(parsers.DefaultOrderParserConfig(loc))
	if err != nil {
		return nil, err
	}

	filter, err := NewOrderFilter(config.Matching, config.Filter)
	if err != nil {
		return nil, err
	}

	urls, err := daterange.NewBuilder(config.BaseURL, config.Padding)
	if err != nil {
		return nil, err
	}

	log := logger.WithComponent("orchestrator")
	log.WithField("matching", config.Matching.String()).Debug("Created orchestrator")

	return &Orchestrator{
		processorParser: processorParser,
		orderParser:     orderParser,
		filter:          filter,
		urls:            urls,
		logger:          log,
	}, nil
}

// OnProgress registers a callback for step progress of later runs
func (o *Orchestrator) OnProgress(fn func(logger.ProgressStats)) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.callbacks = append(o.callbacks, fn)
}

// Run reconciles one processor batch. On a deposit mismatch the returned
// result carries the date range and filter diagnostics but no summary,
// alongside the error.
func (o *Orchestrator) Run(ctx context.Context, req *Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	result := &Result{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}
	log := o.logger.WithField("run_id", result.RunID)
	log.Info("Starting reconciliation")

	tracker := logger.NewProgressTracker("reconciliation", runSteps, log)
	o.mutex.Lock()
	for _, fn := range o.callbacks {
		tracker.OnProgress(fn)
	}
	o.mutex.Unlock()

	fail := func(err error) (*Result, error) {
		tracker.Fail(err)
		result.Duration = time.Since(result.StartedAt)
		return result, err
	}

	step := func(name string) error {
		if err := ctx.Err(); err != nil {
			return errors.InternalError(errors.CodeCancelled, "reconciliation", err)
		}
		tracker.Start(name)
		return nil
	}

	// Processor export
	if err := step(StepLoadProcessor); err != nil {
		return fail(err)
	}
	processor, err := o.loadProcessor(req)
	if err != nil {
		return fail(err)
	}
	if len(processor.Records) == 0 {
		return fail(errors.ValidationError(errors.CodeEmptyInput, processor.Source, "", nil))
	}
	result.Processor = processor
	result.Source = processor.Source
	result.Fees = processor.Fees()
	result.NetDeposit = processor.NetDeposit()
	tracker.Done()

	// Order exports
	if err := step(StepLoadOrders); err != nil {
		return fail(err)
	}
	orders := req.Orders
	if orders == nil {
		if orders, err = o.orderParser.ParseFiles(req.OrderFiles); err != nil {
			return fail(err)
		}
	}
	tracker.Done()

	// Date range
	if err := step(StepDateRange); err != nil {
		return fail(err)
	}
	if result.Range, err = o.urls.Range(processor); err != nil {
		return fail(err)
	}
	result.URL = o.urls.BaseURL + result.Range.String()
	tracker.Done()

	// Filtering
	if err := step(StepFilter); err != nil {
		return fail(err)
	}
	if result.Filter, err = o.filter.FilterOrders(processor, orders); err != nil {
		return fail(err)
	}
	tracker.Done()

	// Balance check
	if err := step(StepReconcile); err != nil {
		return fail(err)
	}
	if result.Summary, err = Reconcile(result.Fees, result.NetDeposit, result.Filter.Orders.Records); err != nil {
		if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
			reconcilerErr.WithContext("url", result.URL)
		}
		return fail(err)
	}
	tracker.Done()
	tracker.Complete()

	result.Duration = time.Since(result.StartedAt)
	log.WithFields(logger.Fields{
		"deposit_amount": result.Summary.DepositAmount.StringFixed(models.MoneyPlaces),
		"orders":         len(result.Filter.OrderNumbers()),
		"duration":       result.Duration.String(),
	}).Info("Reconciliation completed")

	return result, nil
}

// DateRangeURL returns the order search URL for a processor export without reconciling
func (o *Orchestrator) DateRangeURL(req *Request) (string, error) {
	processor, err := o.loadProcessor(req)
	if err != nil {
		return "", err
	}
	return o.urls.URL(processor)
}

func (o *Orchestrator) loadProcessor(req *Request) (*models.ProcessorExport, error) {
	if req.Processor != nil {
		return req.Processor, nil
	}
	if req.ProcessorFile == "" {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "processor export", nil, fmt.Errorf("no file or export given"))
	}
	return o.processorParser.ParseFile(req.ProcessorFile)
}
