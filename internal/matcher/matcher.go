package matcher

import (
	"fmt"
	"sort"
	"time"

	"deposit-reconciler/internal/models"
	"deposit-reconciler/pkg/logger"

	"github.com/shopspring/decimal"
)

// Candidate is an amount observed at a UTC instant
type Candidate struct {
	Amount decimal.Decimal
	Time   time.Time
}

// RecordCandidate builds the candidate of an ambiguous processor record
func RecordCandidate(r *models.ProcessorRecord) Candidate {
	return Candidate{Amount: r.Amount, Time: r.Created.UTC()}
}

// OrderCandidate builds the candidate of an order from its total and paid date
func OrderCandidate(o *models.OrderRecord) Candidate {
	return Candidate{Amount: o.Total, Time: o.PaidAt.UTC()}
}

// Compare reports whether a and b have exactly equal amounts and timestamps
// strictly less than maxDelta apart.
func Compare(a, b Candidate, maxDelta time.Duration) bool {
	if !a.Amount.Equal(b.Amount) {
		return false
	}
	return timeDelta(a.Time, b.Time) < maxDelta
}

func timeDelta(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}

// Match pairs an ambiguous processor record with the order it paid for
type Match struct {
	Record    *models.ProcessorRecord `json:"record"`
	Order     *models.OrderRecord     `json:"order"`
	TimeDelta time.Duration           `json:"time_delta"`
}

// String returns a string representation of the Match
func (m *Match) String() string {
	return fmt.Sprintf("Match{Order: %d, Amount: %s, Delta: %s}",
		m.Order.OrderNumber, m.Record.Amount.StringFixed(models.MoneyPlaces), m.TimeDelta)
}

// MatchResult represents the outcome of matching ambiguous records
type MatchResult struct {
	Matches          []*Match                  `json:"matches"`
	UnmatchedRecords []*models.ProcessorRecord `json:"unmatched_records"`

	// CompatiblePairs counts every (record, order) pair that passed Compare,
	// including pairs dropped by the one-to-one assignment
	CompatiblePairs int `json:"compatible_pairs"`
}

// MatchedOrderNumbers returns the order numbers of all matches
func (mr *MatchResult) MatchedOrderNumbers() []int64 {
	out := make([]int64, 0, len(mr.Matches))
	for _, m := range mr.Matches {
		out = append(out, m.Order.OrderNumber)
	}
	return out
}

// Engine assigns ambiguous processor records to orders
type Engine struct {
	Config *MatchingConfig
	logger logger.Logger
}

// NewEngine creates a matching engine with the specified configuration
func NewEngine(config *MatchingConfig) (*Engine, error) {
	if config == nil {
		config = DefaultMatchingConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Engine{
		Config: config,
		logger: logger.WithComponent("matcher"),
	}, nil
}

type edge struct {
	record int
	order  *models.OrderRecord
	delta  time.Duration
}

// Match assigns each record at most one order and each order at most one
// record. Orders should be one row per order number. Compatible pairs are
// taken closest first; ties go to the earlier record and then the lower
// order number, so the result does not depend on map iteration or order
// file layout.
func (e *Engine) Match(records []*models.ProcessorRecord, orders []*models.OrderRecord) *MatchResult {
	index := NewAmountIndex(orders)

	var edges []edge
	for i, r := range records {
		rc := RecordCandidate(r)
		for _, o := range index.Candidates(rc.Amount, rc.Time, e.Config.MaxTimeDelta) {
			if !Compare(rc, OrderCandidate(o), e.Config.MaxTimeDelta) {
				continue
			}
			edges = append(edges, edge{record: i, order: o, delta: timeDelta(rc.Time, o.PaidAt)})
		}
	}

	sort.SliceStable(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.delta != b.delta {
			return a.delta < b.delta
		}
		if a.record != b.record {
			return a.record < b.record
		}
		return a.order.OrderNumber < b.order.OrderNumber
	})

	matchedRecords := make(map[int]*Match, len(records))
	matchedOrders := make(map[int64]bool)

	for _, ed := range edges {
		if matchedRecords[ed.record] != nil || matchedOrders[ed.order.OrderNumber] {
			continue
		}
		matchedRecords[ed.record] = &Match{
			Record:    records[ed.record],
			Order:     ed.order,
			TimeDelta: ed.delta,
		}
		matchedOrders[ed.order.OrderNumber] = true
	}

	result := &MatchResult{CompatiblePairs: len(edges)}
	for i, r := range records {
		if m := matchedRecords[i]; m != nil {
			result.Matches = append(result.Matches, m)
		} else {
			result.UnmatchedRecords = append(result.UnmatchedRecords, r)
		}
	}

	e.logger.WithFields(logger.Fields{
		"records":          len(records),
		"indexed_orders":   index.Size(),
		"compatible_pairs": len(edges),
		"matches":          len(result.Matches),
		"unmatched":        len(result.UnmatchedRecords),
	}).Debug("Matched ambiguous records")

	if len(edges) > len(result.Matches) {
		e.logger.WithField("dropped_pairs", len(edges)-len(result.Matches)).
			Warn("Some records were compatible with more than one order; kept the closest pairs")
	}

	return result
}
