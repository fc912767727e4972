// Package extension provides the Forge extension adapter for Prepaid.
//
// It implements the forge.Extension interface to integrate Prepaid
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.prepaid" or "prepaid" keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	prepaid "github.com/xraph/prepaid"
	"github.com/xraph/prepaid/store"
	"github.com/xraph/prepaid/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "prepaid"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Prepaid credit ledger and job settlement engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Prepaid as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *prepaid.Engine
	store      store.Store
	engineOpts []prepaid.Option
}

// New creates a new Prepaid Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Prepaid instance.
// This is nil until Register is called.
func (e *Extension) Engine() *prepaid.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	// Build engine options from resolved config.
	opts := e.buildEngineOpts()

	e.engine = prepaid.New(e.store, opts...)

	return vessel.Provide(fapp.Container(), func() (*prepaid.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("prepaid: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("prepaid: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEngineOpts constructs prepaid.Option values from the resolved config.
func (e *Extension) buildEngineOpts() []prepaid.Option {
	opts := make([]prepaid.Option, 0, len(e.engineOpts)+4)

	if e.config.DefaultCurrency != "" {
		opts = append(opts, prepaid.WithDefaultCurrency(e.config.DefaultCurrency))
	}
	if e.config.SweepInterval > 0 {
		opts = append(opts, prepaid.WithSweepInterval(e.config.SweepInterval))
	}
	if e.config.HandlerTimeout > 0 {
		opts = append(opts, prepaid.WithHandlerTimeout(e.config.HandlerTimeout))
	}
	if e.config.DisableMigrate {
		opts = append(opts, prepaid.WithoutAutoMigrate())
	}

	// Append any pass-through engine options.
	opts = append(opts, e.engineOpts...)

	return opts
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("prepaid: configuration is required but not found in config files; " +
				"ensure 'extensions.prepaid' or 'prepaid' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("prepaid: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("default_currency", e.config.DefaultCurrency),
		forge.F("sweep_interval", e.config.SweepInterval),
		forge.F("handler_timeout", e.config.HandlerTimeout),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.prepaid" first (namespaced pattern).
	if cm.IsSet("extensions.prepaid") {
		if err := cm.Bind("extensions.prepaid", &cfg); err == nil {
			e.Logger().Debug("prepaid: loaded config from file",
				forge.F("key", "extensions.prepaid"),
			)
			return cfg, true
		}
		e.Logger().Warn("prepaid: failed to bind extensions.prepaid config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "prepaid" key.
	if cm.IsSet("prepaid") {
		if err := cm.Bind("prepaid", &cfg); err == nil {
			e.Logger().Debug("prepaid: loaded config from file",
				forge.F("key", "prepaid"),
			)
			return cfg, true
		}
		e.Logger().Warn("prepaid: failed to bind prepaid config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = defaults.DefaultCurrency
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = defaults.SweepInterval
	}
	if cfg.HandlerTimeout == 0 {
		cfg.HandlerTimeout = defaults.HandlerTimeout
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.DefaultCurrency == "" && programmaticConfig.DefaultCurrency != "" {
		yamlConfig.DefaultCurrency = programmaticConfig.DefaultCurrency
	}

	// Duration fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.SweepInterval == 0 && programmaticConfig.SweepInterval != 0 {
		yamlConfig.SweepInterval = programmaticConfig.SweepInterval
	}
	if yamlConfig.HandlerTimeout == 0 && programmaticConfig.HandlerTimeout != 0 {
		yamlConfig.HandlerTimeout = programmaticConfig.HandlerTimeout
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
