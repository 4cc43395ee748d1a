package reconciler

import (
	"github.com/shopspring/decimal"

	"deposit-reconciler/internal/models"
	"deposit-reconciler/pkg/errors"
	"deposit-reconciler/pkg/logger"
)

// Reconcile aggregates the filtered orders and checks that products plus
// order-level charges plus the (negative) processor fees equal the net
// deposit. A mismatch is a CodeDepositMismatch error and no summary is
// returned.
func Reconcile(fees, netDeposit decimal.Decimal, orders []*models.OrderRecord) (*models.ReconciliationSummary, error) {
	log := logger.WithComponent("reconciler")

	products := ProcessProducts(orders)
	taxes := ProcessTaxes(orders)

	deposit := models.RoundMoney(products.Total().Add(taxes.Total()).Add(fees))
	reported := models.RoundMoney(netDeposit)

	if !deposit.Equal(reported) {
		log.WithFields(logger.Fields{
			"computed_deposit": deposit.StringFixed(models.MoneyPlaces),
			"reported_deposit": reported.StringFixed(models.MoneyPlaces),
		}).Error("Deposit total does not match processor deposit")
		return nil, errors.DepositMismatchError(deposit, reported)
	}

	summary := &models.ReconciliationSummary{
		Products:      products,
		Taxes:         taxes,
		Fees:          fees,
		DepositAmount: deposit,
	}
	summary.Rows = SummaryRows(summary)

	log.WithFields(logger.Fields{
		"products":       len(products.Lines),
		"items":          products.Count(),
		"deposit_amount": deposit.StringFixed(models.MoneyPlaces),
	}).Info("Deposit reconciled")

	return summary, nil
}

// SummaryRows lays out the three-column summary table
func SummaryRows(s *models.ReconciliationSummary) []models.SummaryRow {
	blank := models.SummaryRow{}
	rows := []models.SummaryRow{{Label: models.LabelProduct}}

	for _, p := range s.Products.Lines {
		rows = append(rows, models.SummaryRow{
			Label:    p.Title,
			Value:    models.FormatCount(p.Count),
			Subtotal: models.FormatMoney(p.Subtotal),
		})
	}

	rows = append(rows, blank)
	for _, t := range s.Taxes.Lines {
		rows = append(rows, models.SummaryRow{Label: string(t.Category), Value: models.FormatMoney(t.Total)})
	}

	rows = append(rows,
		blank,
		models.SummaryRow{Label: models.LabelProcessorFees, Value: models.FormatMoney(s.Fees)},
		blank,
		models.SummaryRow{Label: models.LabelDeposit, Value: models.FormatMoney(s.DepositAmount)},
	)

	return rows
}
