// Package stripesource loads a processor export straight from the Stripe
// API instead of an exported CSV file.
//
// A payout's balance transactions are the batch: every charge, refund and
// adjustment settled into one deposit. The payout entry itself is skipped.
package stripesource

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"

	"deposit-reconciler/internal/models"
	"deposit-reconciler/pkg/errors"
	"deposit-reconciler/pkg/logger"
)

// Source provides the processor export of one payout
type Source interface {
	Fetch(ctx context.Context, payoutID string) (*models.ProcessorExport, error)
}

// transactionIter is the part of *balancetransaction.Iter the client reads
type transactionIter interface {
	Next() bool
	BalanceTransaction() *stripe.BalanceTransaction
	Err() error
}

type listFunc func(params *stripe.BalanceTransactionListParams) transactionIter

// Client fetches payouts through the Stripe API
type Client struct {
	list   listFunc
	logger logger.Logger
}

// NewClient creates a Stripe client for the given secret key
func NewClient(apiKey string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "stripe.api_key", nil, nil)
	}

	var api client.API
	api.Init(apiKey, nil)

	return newClient(func(params *stripe.BalanceTransactionListParams) transactionIter {
		return api.BalanceTransactions.List(params)
	}), nil
}

func newClient(list listFunc) *Client {
	return &Client{
		list:   list,
		logger: logger.WithComponent("stripesource"),
	}
}

// Fetch lists the balance transactions of a payout
func (c *Client) Fetch(ctx context.Context, payoutID string) (*models.ProcessorExport, error) {
	if strings.TrimSpace(payoutID) == "" {
		return nil, errors.ValidationError(errors.CodeMissingField, "payout", payoutID, nil)
	}

	params := &stripe.BalanceTransactionListParams{
		ListParams: stripe.ListParams{
			Context: ctx,
			Limit:   stripe.Int64(100),
		},
		Payout: stripe.String(payoutID),
	}

	export := &models.ProcessorExport{Source: "stripe:" + payoutID}
	skipped := 0

	iter := c.list(params)
	for iter.Next() {
		bt := iter.BalanceTransaction()
		if bt.Type == stripe.BalanceTransactionTypePayout {
			skipped++
			continue
		}
		export.Records = append(export.Records, ToRecord(bt, len(export.Records)+2))
	}
	if err := iter.Err(); err != nil {
		if ctx.Err() != nil {
			return nil, errors.InternalError(errors.CodeCancelled, "payout fetch", ctx.Err())
		}
		return nil, errors.NetworkError(errors.CodeProcessorAPI, "balance_transactions", err).
			WithContext("payout", payoutID)
	}

	if len(export.Records) == 0 {
		return nil, errors.ValidationError(errors.CodeEmptyInput, export.Source, "", nil)
	}

	c.logger.WithFields(logger.Fields{
		"payout":       payoutID,
		"transactions": len(export.Records),
		"skipped":      skipped,
	}).Info("Fetched payout balance transactions")

	return export, nil
}

// ToRecord converts a balance transaction into a processor record. line is
// the row the record takes in a written processor CSV.
func ToRecord(bt *stripe.BalanceTransaction, line int) *models.ProcessorRecord {
	exp := minorUnitExponent(string(bt.Currency))
	return &models.ProcessorRecord{
		Amount:      decimal.New(bt.Amount, exp),
		Fee:         decimal.New(bt.Fee, exp),
		Net:         decimal.New(bt.Net, exp),
		Created:     time.Unix(bt.Created, 0).UTC(),
		Description: bt.Description,
		Line:        line,
	}
}

// zeroDecimalCurrencies are charged in whole units by Stripe
var zeroDecimalCurrencies = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true,
	"krw": true, "mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true,
	"vuv": true, "xaf": true, "xof": true, "xpf": true,
}

func minorUnitExponent(currency string) int32 {
	if zeroDecimalCurrencies[strings.ToLower(currency)] {
		return 0
	}
	return -2
}

