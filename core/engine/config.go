package engine

import "time"

// Config holds configuration for the reconciliation engine.
type Config struct {
	// MaxRetries is the number of retries per destination call.
	MaxRetries int `mapstructure:"max_retries" default:"3"`
	// BackoffBase is the exponential backoff base in seconds.
	BackoffBase float64 `mapstructure:"backoff_base" default:"2"`
	// CallsPerSecond is the default outbound rate for integrations that do
	// not declare their own.
	CallsPerSecond float64 `mapstructure:"calls_per_second" default:"5"`
	// LookbackDays bounds full-window fetches into the past.
	LookbackDays int `mapstructure:"lookback_days" default:"30"`
	// LookaheadDays bounds full-window fetches into the future.
	LookaheadDays int `mapstructure:"lookahead_days" default:"90"`
	// RetentionDays is how long run history rows are kept before pruning.
	RetentionDays int `mapstructure:"retention_days" default:"90"`
}

// Lookback returns the configured lookback as a duration.
func (c Config) Lookback() time.Duration {
	return time.Duration(c.LookbackDays) * 24 * time.Hour
}

// Lookahead returns the configured lookahead as a duration.
func (c Config) Lookahead() time.Duration {
	return time.Duration(c.LookaheadDays) * 24 * time.Hour
}

// Retention returns the configured retention window as a duration.
func (c Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}
