package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"deposit-reconciler/internal/daterange"
	"deposit-reconciler/internal/matcher"
	"deposit-reconciler/internal/reconciler"
	"deposit-reconciler/internal/reporter"
	"deposit-reconciler/pkg/errors"
	"deposit-reconciler/pkg/logger"
)

// Configuration keys. Each can be set in the config file or through a
// RECONCILER_ environment variable, e.g. RECONCILER_MATCHING_TIMEZONE.
const (
	KeyMaxTimeDelta = "matching.max_time_delta"
	KeyTimezone     = "matching.timezone"
	KeyURLBase      = "url.base"
	KeyURLPadding   = "url.padding"
	KeyStripeAPIKey = "stripe.api_key"
	KeyLogLevel     = "log.level"
	KeyLogFormat    = "log.format"
	KeyVerbose      = "verbose"
)

// SetDefaults registers the default value of every configuration key
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyMaxTimeDelta, matcher.DefaultMaxTimeDelta)
	v.SetDefault(KeyTimezone, matcher.DefaultTimezone)
	v.SetDefault(KeyURLBase, daterange.DefaultBaseURL)
	v.SetDefault(KeyURLPadding, daterange.DefaultPadding)
	v.SetDefault(KeyLogLevel, string(logger.WarnLevel))
	v.SetDefault(KeyLogFormat, string(logger.TextFormat))
}

// CreateMatchingConfig creates a matching configuration with the specified window and zone
func CreateMatchingConfig(maxTimeDelta time.Duration, timezone string) (*matcher.MatchingConfig, error) {
	config := matcher.DefaultMatchingConfig()
	if maxTimeDelta != 0 {
		config.MaxTimeDelta = maxTimeDelta
	}
	if timezone != "" {
		config.Timezone = timezone
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "matching", config.String(), err)
	}
	return config, nil
}

// CreateReconcilerConfig creates the orchestrator configuration
func CreateReconcilerConfig(matching *matcher.MatchingConfig, strict bool, baseURL string, padding time.Duration) (*reconciler.Config, error) {
	config := reconciler.DefaultConfig()
	config.Matching = matching
	config.Filter.StrictMatching = strict

	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if padding < 0 {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, KeyURLPadding, padding, nil)
	}
	if padding > 0 {
		config.Padding = padding
	}

	return config, nil
}

// FromViper builds the orchestrator configuration from the bound keys
func FromViper(v *viper.Viper, strict bool) (*reconciler.Config, error) {
	matching, err := CreateMatchingConfig(v.GetDuration(KeyMaxTimeDelta), v.GetString(KeyTimezone))
	if err != nil {
		return nil, err
	}
	return CreateReconcilerConfig(matching, strict, v.GetString(KeyURLBase), v.GetDuration(KeyURLPadding))
}

// CreateReportConfig creates a report configuration for the specified output format
func CreateReportConfig(format string) (*reporter.ReportConfig, error) {
	config := reporter.DefaultReportConfig()
	config.Format = reporter.OutputFormat(strings.ToLower(strings.TrimSpace(format)))

	switch config.Format {
	case reporter.FormatConsole:
		config.IncludeMatchDetails = true
		config.IncludeExcludedOrders = true
	case reporter.FormatJSON, reporter.FormatCSV:
		config.IncludeMatchDetails = false
	default:
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "output-format", format, nil).
			WithSuggestion("valid formats: console, json, csv")
	}

	return config, nil
}

// CreateLoggerConfig creates the logger configuration; verbose forces debug level
func CreateLoggerConfig(level, format string, verbose bool) (*logger.Config, error) {
	config := logger.DefaultConfig()
	if level != "" {
		config.Level = logger.Level(strings.ToLower(level))
	}
	if format != "" {
		config.Format = logger.Format(strings.ToLower(format))
	}
	if verbose {
		config.Level = logger.DebugLevel
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "log", fmt.Sprintf("%s/%s", level, format), err)
	}
	return config, nil
}
