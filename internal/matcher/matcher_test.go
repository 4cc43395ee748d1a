package matcher

import (
	"testing"
	"time"

	"deposit-reconciler/internal/models"

	"github.com/shopspring/decimal"
)

func record(amount string, created time.Time) *models.ProcessorRecord {
	return &models.ProcessorRecord{
		Amount:  decimal.RequireFromString(amount),
		Created: created,
	}
}

func TestCompare(t *testing.T) {
	a := Candidate{Amount: decimal.RequireFromString("51.50"), Time: base}

	tests := []struct {
		name   string
		amount string
		offset time.Duration
		want   bool
	}{
		{"same instant", "51.50", 0, true},
		{"trailing zero ignored", "51.5", 0, true},
		{"just inside", "51.50", 99*time.Second + 990*time.Millisecond, true},
		{"just inside before", "51.50", -99 * time.Second, true},
		{"exactly at bound", "51.50", 100 * time.Second, false},
		{"exactly at bound before", "51.50", -100 * time.Second, false},
		{"one cent off", "51.51", 0, false},
		{"far apart", "51.50", time.Hour, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Candidate{Amount: decimal.RequireFromString(tt.amount), Time: base.Add(tt.offset)}
			if got := Compare(a, b, DefaultMaxTimeDelta); got != tt.want {
				t.Errorf("Compare() = %v, want %v", got, tt.want)
			}
			if got := Compare(b, a, DefaultMaxTimeDelta); got != tt.want {
				t.Errorf("Compare() is not symmetric")
			}
		})
	}
}

func TestCompare_ZoneConversion(t *testing.T) {
	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		t.Skipf("timezone database unavailable: %v", err)
	}

	// 02:00 PDT is 09:00 UTC; a fixed -08:00 offset would be an hour off
	paid := time.Date(2025, 6, 1, 2, 0, 30, 0, loc)
	a := Candidate{Amount: decimal.RequireFromString("10"), Time: base}
	b := Candidate{Amount: decimal.RequireFromString("10"), Time: paid}
	if !Compare(a, b, DefaultMaxTimeDelta) {
		t.Error("Expected zone-converted paid date to match")
	}

	fixed := time.Date(2025, 6, 1, 2, 0, 30, 0, time.FixedZone("PST", -8*3600))
	if Compare(a, Candidate{Amount: b.Amount, Time: fixed}, DefaultMaxTimeDelta) {
		t.Error("Expected fixed standard offset to miss during daylight saving")
	}
}

func TestMatchingConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		config    MatchingConfig
		wantError bool
	}{
		{"default", *DefaultMatchingConfig(), false},
		{"zero delta", MatchingConfig{Timezone: "UTC"}, true},
		{"empty timezone", MatchingConfig{MaxTimeDelta: time.Second}, true},
		{"unknown timezone", MatchingConfig{MaxTimeDelta: time.Second, Timezone: "Mars/Olympus"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.name == "default" {
				if _, err := time.LoadLocation(DefaultTimezone); err != nil {
					t.Skipf("timezone database unavailable: %v", err)
				}
			}
			err := tt.config.Validate()
			if tt.wantError && err == nil {
				t.Error("Expected validation error")
			}
			if !tt.wantError && err != nil {
				t.Errorf("Unexpected validation error: %v", err)
			}
		})
	}

	if _, err := NewEngine(&MatchingConfig{}); err == nil {
		t.Error("Expected NewEngine to reject an invalid config")
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(&MatchingConfig{MaxTimeDelta: DefaultMaxTimeDelta, Timezone: "UTC"})
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return engine
}

func TestEngine_Match(t *testing.T) {
	engine := newTestEngine(t)

	records := []*models.ProcessorRecord{
		record("51.50", base),
		record("20.00", base.Add(5*time.Minute)),
		record("75.00", base),
	}
	orders := []*models.OrderRecord{
		order(10, "51.50", base.Add(20*time.Second)),
		order(11, "20.00", base.Add(5*time.Minute-time.Second)),
		order(12, "99.00", base),
	}

	result := engine.Match(records, orders)

	if len(result.Matches) != 2 {
		t.Fatalf("Expected 2 matches, got %d", len(result.Matches))
	}
	if result.Matches[0].Order.OrderNumber != 10 || result.Matches[1].Order.OrderNumber != 11 {
		t.Errorf("Unexpected matches %v", result.MatchedOrderNumbers())
	}
	if result.Matches[0].TimeDelta != 20*time.Second {
		t.Errorf("Expected delta 20s, got %s", result.Matches[0].TimeDelta)
	}
	if len(result.UnmatchedRecords) != 1 || result.UnmatchedRecords[0] != records[2] {
		t.Errorf("Expected the 75.00 record to stay unmatched")
	}
}

func TestEngine_MatchIsOneToOne(t *testing.T) {
	engine := newTestEngine(t)

	tests := []struct {
		name    string
		records []*models.ProcessorRecord
		orders  []*models.OrderRecord
		want    []int64
		pairs   int
	}{
		{
			name:    "two records one order",
			records: []*models.ProcessorRecord{record("10", base), record("10", base.Add(5*time.Second))},
			orders:  []*models.OrderRecord{order(1, "10", base.Add(4*time.Second))},
			want:    []int64{1},
			pairs:   2,
		},
		{
			name:    "closest pair wins before input order",
			records: []*models.ProcessorRecord{record("10", base), record("10", base.Add(60*time.Second))},
			orders: []*models.OrderRecord{
				order(1, "10", base.Add(59*time.Second)),
				order(2, "10", base.Add(-30*time.Second)),
			},
			want:  []int64{2, 1},
			pairs: 4,
		},
		{
			name:    "equal deltas break ties by order number",
			records: []*models.ProcessorRecord{record("10", base)},
			orders: []*models.OrderRecord{
				order(9, "10", base.Add(10*time.Second)),
				order(3, "10", base.Add(-10*time.Second)),
			},
			want:  []int64{3},
			pairs: 2,
		},
		{
			name:    "identical records take distinct orders",
			records: []*models.ProcessorRecord{record("10", base), record("10", base)},
			orders: []*models.OrderRecord{
				order(5, "10", base.Add(time.Second)),
				order(6, "10", base.Add(2*time.Second)),
			},
			want:  []int64{5, 6},
			pairs: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := engine.Match(tt.records, tt.orders)
			got := result.MatchedOrderNumbers()
			if len(got) != len(tt.want) {
				t.Fatalf("Matched orders = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Matched orders = %v, want %v", got, tt.want)
				}
			}
			if result.CompatiblePairs != tt.pairs {
				t.Errorf("CompatiblePairs = %d, want %d", result.CompatiblePairs, tt.pairs)
			}
			if len(result.Matches)+len(result.UnmatchedRecords) != len(tt.records) {
				t.Error("Expected every record to be matched or unmatched")
			}
		})
	}
}

func TestEngine_MatchIsDeterministic(t *testing.T) {
	engine := newTestEngine(t)
	records := []*models.ProcessorRecord{record("10", base), record("10", base.Add(time.Second))}
	orders := []*models.OrderRecord{
		order(2, "10", base.Add(500*time.Millisecond)),
		order(1, "10", base.Add(500*time.Millisecond)),
	}

	first := engine.Match(records, orders).MatchedOrderNumbers()
	for i := 0; i < 10; i++ {
		again := engine.Match(records, orders).MatchedOrderNumbers()
		if len(again) != len(first) || again[0] != first[0] || again[1] != first[1] {
			t.Fatalf("Run %d produced %v, first run produced %v", i, again, first)
		}
	}
}

func TestEngine_MatchEmpty(t *testing.T) {
	engine := newTestEngine(t)

	result := engine.Match(nil, createTestOrders())
	if len(result.Matches) != 0 || len(result.UnmatchedRecords) != 0 {
		t.Error("Expected empty result for no records")
	}

	result = engine.Match([]*models.ProcessorRecord{record("51.50", base)}, nil)
	if len(result.UnmatchedRecords) != 1 {
		t.Error("Expected record to be unmatched without orders")
	}
}
