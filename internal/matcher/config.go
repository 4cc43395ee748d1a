// Package matcher pairs processor records that carry no order identifier
// with the orders they paid for.
//
// A processor record and an order are compatible when their amounts are
// exactly equal and their UTC timestamps are strictly less than
// MaxTimeDelta apart. Order paid dates are recorded in a named local zone
// and are converted with that zone's rules before comparison.
//
// Among the compatible pairs the engine keeps a one-to-one assignment,
// preferring the closest timestamps:
//  1. Candidate selection using an exact-amount index
//  2. Edge ordering by time delta, then record position, then order number
//  3. Greedy assignment where each record and each order is used once
//
// Example usage:
//
//	config := matcher.DefaultMatchingConfig()
//	engine, err := matcher.NewEngine(config)
//	result := engine.Match(export.Ambiguous(), orders)
package matcher

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultMaxTimeDelta is the exclusive bound on the distance between a
	// processor timestamp and an order paid date.
	DefaultMaxTimeDelta = 100 * time.Second

	// DefaultTimezone is the zone order paid dates are recorded in
	DefaultTimezone = "America/Vancouver"
)

// MatchingConfig holds configuration parameters for ambiguous record matching
type MatchingConfig struct {
	// MaxTimeDelta is the exclusive upper bound on |record time - paid time|
	MaxTimeDelta time.Duration `json:"max_time_delta"`

	// Timezone is the IANA zone name order paid dates are recorded in
	Timezone string `json:"timezone"`
}

// DefaultMatchingConfig returns the matching rules of the settlement tool
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		MaxTimeDelta: DefaultMaxTimeDelta,
		Timezone:     DefaultTimezone,
	}
}

// Validate checks if the matching configuration is valid
func (mc *MatchingConfig) Validate() error {
	if mc.MaxTimeDelta <= 0 {
		return fmt.Errorf("max time delta must be positive: %s", mc.MaxTimeDelta)
	}

	if strings.TrimSpace(mc.Timezone) == "" {
		return fmt.Errorf("timezone cannot be empty")
	}

	if _, err := time.LoadLocation(mc.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", mc.Timezone, err)
	}

	return nil
}

// Location loads the configured zone
func (mc *MatchingConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(mc.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", mc.Timezone, err)
	}
	return loc, nil
}

// String returns a string representation of the config
func (mc *MatchingConfig) String() string {
	return fmt.Sprintf("MatchingConfig{MaxTimeDelta: %s, Timezone: %s}", mc.MaxTimeDelta, mc.Timezone)
}
