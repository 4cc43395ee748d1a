package reconciler

import (
	"github.com/shopspring/decimal"

	"deposit-reconciler/internal/models"
)

// ProcessProducts groups line items by product title in first-appearance
// order, summing quantities and rounding each subtotal to cents
func ProcessProducts(orders []*models.OrderRecord) models.ProductSummary {
	index := make(map[string]int)
	var lines []models.ProductLine

	for _, o := range orders {
		i, ok := index[o.ProductTitle]
		if !ok {
			i = len(lines)
			index[o.ProductTitle] = i
			lines = append(lines, models.ProductLine{Title: o.ProductTitle, Subtotal: decimal.Zero})
		}
		lines[i].Count += o.Quantity
		lines[i].Subtotal = lines[i].Subtotal.Add(o.ProductSubtotal)
	}

	for i := range lines {
		lines[i].Subtotal = models.RoundMoney(lines[i].Subtotal)
	}

	return models.ProductSummary{Lines: lines}
}

// ProcessTaxes sums the order-level charges once per order. Shipping, taxes
// and bottle deposits repeat on every line item row, so rows are reduced to
// the first row of each order before summing.
func ProcessTaxes(orders []*models.OrderRecord) models.TaxSummary {
	totals := make(map[models.TaxCategory]decimal.Decimal, len(models.TaxCategories))
	for _, category := range models.TaxCategories {
		totals[category] = decimal.Zero
	}

	for _, o := range models.DeduplicateOrders(orders) {
		totals[models.TaxShipping] = totals[models.TaxShipping].Add(o.ShippingTotal)
		totals[models.TaxGST] = totals[models.TaxGST].Add(o.TaxGST)
		totals[models.TaxPST] = totals[models.TaxPST].Add(o.TaxPST)
		totals[models.TaxAlberta] = totals[models.TaxAlberta].Add(o.TaxAlbertaAdminFee)
		totals[models.TaxOtherTaxes] = totals[models.TaxOtherTaxes].Add(o.OtherTaxTotal())
		totals[models.TaxBottleDeposit] = totals[models.TaxBottleDeposit].Add(o.BottleDepositTotal)
	}

	summary := models.TaxSummary{Lines: make([]models.TaxLine, 0, len(models.TaxCategories))}
	for _, category := range models.TaxCategories {
		summary.Lines = append(summary.Lines, models.TaxLine{
			Category: category,
			Total:    models.RoundMoney(totals[category]),
		})
	}
	return summary
}
