package extension

import "time"

// Config holds the Prepaid extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.prepaid" or "prepaid" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// DefaultCurrency is the currency for lazily created accounts (default: "usd").
	DefaultCurrency string `json:"default_currency" mapstructure:"default_currency" yaml:"default_currency"`

	// SweepInterval is how often the reconciliation sweep runs (default: 1m).
	SweepInterval time.Duration `json:"sweep_interval" mapstructure:"sweep_interval" yaml:"sweep_interval"`

	// HandlerTimeout bounds a single analysis handler invocation (default: 5m).
	HandlerTimeout time.Duration `json:"handler_timeout" mapstructure:"handler_timeout" yaml:"handler_timeout"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultCurrency: "usd",
		SweepInterval:   time.Minute,
		HandlerTimeout:  5 * time.Minute,
	}
}
