package extension

import (
	"time"

	prepaid "github.com/xraph/prepaid"
	"github.com/xraph/prepaid/handler"
	"github.com/xraph/prepaid/plugin"
	"github.com/xraph/prepaid/store"
)

// Option configures the Prepaid Forge extension.
type Option func(*Extension)

// WithStore sets the store for the engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithEngineOption passes a prepaid.Option through to the underlying engine.
func WithEngineOption(opt prepaid.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a prepaid plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, prepaid.WithPlugin(p))
	}
}

// WithHandler registers an analysis handler.
func WithHandler(h handler.Handler) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, prepaid.WithHandler(h))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithDefaultCurrency sets the currency for lazily created accounts.
func WithDefaultCurrency(currency string) Option {
	return func(e *Extension) { e.config.DefaultCurrency = currency }
}

// WithSweepInterval sets how often the reconciliation sweep runs.
func WithSweepInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.SweepInterval = d }
}

// WithHandlerTimeout bounds a single analysis handler invocation.
func WithHandlerTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.HandlerTimeout = d }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
