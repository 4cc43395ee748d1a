package matcher

import (
	"sort"
	"time"

	"deposit-reconciler/internal/models"

	"github.com/shopspring/decimal"
)

// AmountIndex groups orders by exact total, each group sorted by paid date
type AmountIndex struct {
	// ExactAmountIndex maps a normalized amount key to its orders
	ExactAmountIndex map[string][]*models.OrderRecord

	// AllOrders holds all indexed orders in input order
	AllOrders []*models.OrderRecord
}

// NewAmountIndex indexes orders that have a paid date. Orders without one
// cannot be compared by time and are left out.
func NewAmountIndex(orders []*models.OrderRecord) *AmountIndex {
	index := &AmountIndex{
		ExactAmountIndex: make(map[string][]*models.OrderRecord),
	}

	for _, order := range orders {
		if order.PaidAt.IsZero() {
			continue
		}
		key := amountKey(order.Total)
		index.ExactAmountIndex[key] = append(index.ExactAmountIndex[key], order)
		index.AllOrders = append(index.AllOrders, order)
	}

	for _, bucket := range index.ExactAmountIndex {
		sort.SliceStable(bucket, func(i, j int) bool {
			return bucket[i].PaidAt.Before(bucket[j].PaidAt)
		})
	}

	return index
}

// FindByAmount returns every indexed order whose total equals amount
func (ai *AmountIndex) FindByAmount(amount decimal.Decimal) []*models.OrderRecord {
	return ai.ExactAmountIndex[amountKey(amount)]
}

// Candidates returns the orders whose total equals amount and whose paid
// date is strictly within maxDelta of t
func (ai *AmountIndex) Candidates(amount decimal.Decimal, t time.Time, maxDelta time.Duration) []*models.OrderRecord {
	bucket := ai.FindByAmount(amount)
	if len(bucket) == 0 {
		return nil
	}

	lower := t.Add(-maxDelta)
	upper := t.Add(maxDelta)

	start := sort.Search(len(bucket), func(i int) bool {
		return bucket[i].PaidAt.After(lower)
	})

	var out []*models.OrderRecord
	for _, order := range bucket[start:] {
		if !order.PaidAt.Before(upper) {
			break
		}
		out = append(out, order)
	}
	return out
}

// Size returns the number of indexed orders
func (ai *AmountIndex) Size() int {
	return len(ai.AllOrders)
}

// amountKey normalizes an amount so that 51.5 and 51.50 share a bucket
func amountKey(d decimal.Decimal) string {
	return d.String()
}
