// Package daterange builds the order search URL that covers a processor
// settlement batch, so the matching order export can be downloaded.
package daterange

import (
	"fmt"
	"strings"
	"time"

	"deposit-reconciler/internal/models"
	"deposit-reconciler/pkg/errors"
)

const (
	// DefaultBaseURL is the order search page the range is appended to
	DefaultBaseURL = "https://niche-wine-company.admin.platform.commerce7.com/store/order?orderPaidDate=btw:"

	// DefaultPadding widens the range on both sides
	DefaultPadding = 5 * time.Minute

	// Layout is the instant format the order search expects
	Layout = "2006-01-02T15:04:05.000Z"
)

// Range is a padded UTC interval
type Range struct {
	Start  time.Time `json:"start"`
	Finish time.Time `json:"finish"`
}

// String formats the range as "start|finish"
func (r Range) String() string {
	return r.Start.UTC().Format(Layout) + "|" + r.Finish.UTC().Format(Layout)
}

// DeriveRange returns [min(created) - padding, max(created) + padding]
func DeriveRange(records []*models.ProcessorRecord, padding time.Duration) (Range, error) {
	if len(records) == 0 {
		return Range{}, errors.ValidationError(errors.CodeEmptyInput, "processor export", "", nil)
	}

	first, last := records[0].Created, records[0].Created
	for _, r := range records[1:] {
		if r.Created.Before(first) {
			first = r.Created
		}
		if r.Created.After(last) {
			last = r.Created
		}
	}

	return Range{
		Start:  first.Add(-padding).UTC(),
		Finish: last.Add(padding).UTC(),
	}, nil
}

// Builder renders order search URLs
type Builder struct {
	BaseURL string
	Padding time.Duration
}

// NewBuilder creates a Builder; an empty base URL or zero padding takes the default
func NewBuilder(baseURL string, padding time.Duration) (*Builder, error) {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if padding == 0 {
		padding = DefaultPadding
	}
	if padding < 0 {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "url.padding", padding.String(),
			fmt.Errorf("padding cannot be negative"))
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "url.base", baseURL,
			fmt.Errorf("base URL must be absolute"))
	}

	return &Builder{BaseURL: baseURL, Padding: padding}, nil
}

// Range derives the padded range of an export
func (b *Builder) Range(export *models.ProcessorExport) (Range, error) {
	if export == nil {
		return Range{}, errors.ValidationError(errors.CodeEmptyInput, "processor export", "", nil)
	}
	return DeriveRange(export.Records, b.Padding)
}

// URL returns the base URL followed by the export's padded range
func (b *Builder) URL(export *models.ProcessorExport) (string, error) {
	r, err := b.Range(export)
	if err != nil {
		return "", err
	}
	return b.BaseURL + r.String(), nil
}
