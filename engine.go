package prepaid

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/prepaid/catalog"
	"github.com/xraph/prepaid/handler"
	"github.com/xraph/prepaid/plugin"
	"github.com/xraph/prepaid/store"
)

// Engine is the prepaid credit and job settlement engine.
type Engine struct {
	store    store.Store
	plugins  *plugin.Registry
	handlers *handler.Registry
	logger   *slog.Logger

	// Background workers
	stopChan chan struct{}
	wg       sync.WaitGroup

	// Configuration
	defaultCurrency string
	sweepInterval   time.Duration
	handlerTimeout  time.Duration
	skipMigrate     bool

	// First error from option application, surfaced by Start.
	initErr error
}

// New creates a new Engine instance.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:           s,
		plugins:         plugin.NewRegistry(),
		handlers:        handler.NewRegistry(),
		logger:          slog.Default(),
		stopChan:        make(chan struct{}),
		defaultCurrency: "usd",
		sweepInterval:   time.Minute,
		handlerTimeout:  5 * time.Minute,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		if err := e.plugins.Register(p); err != nil && e.initErr == nil {
			e.initErr = err
		}
	}
}

// WithHandler registers an analysis handler. Duplicate registration for a
// job type is an error, reported by Start.
func WithHandler(h handler.Handler) Option {
	return func(e *Engine) {
		if err := e.handlers.Register(h); err != nil && e.initErr == nil {
			e.initErr = err
		}
	}
}

// WithHandlers registers several analysis handlers at once.
func WithHandlers(hs ...handler.Handler) Option {
	return func(e *Engine) {
		for _, h := range hs {
			if err := e.handlers.Register(h); err != nil && e.initErr == nil {
				e.initErr = err
			}
		}
	}
}

// WithDefaultCurrency sets the currency for lazily created accounts.
func WithDefaultCurrency(currency string) Option {
	return func(e *Engine) {
		e.defaultCurrency = currency
	}
}

// WithSweepInterval sets how often the reconciliation sweep runs.
func WithSweepInterval(interval time.Duration) Option {
	return func(e *Engine) {
		e.sweepInterval = interval
	}
}

// WithHandlerTimeout bounds a single analysis handler invocation.
func WithHandlerTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		e.handlerTimeout = timeout
	}
}

// WithoutAutoMigrate skips store migration during Start. Use when migrations
// are run out-of-band (for example by a deploy pipeline).
func WithoutAutoMigrate() Option {
	return func(e *Engine) {
		e.skipMigrate = true
	}
}

// Start migrates the store, checks that every active job type has a
// handler, initializes plugins and begins background workers.
func (e *Engine) Start(ctx context.Context) error {
	if e.initErr != nil {
		return e.initErr
	}

	// Migrate database
	if !e.skipMigrate {
		if err := e.store.Migrate(ctx); err != nil {
			return err
		}
	}

	// Every active catalog entry must be servable before we accept jobs.
	active, err := e.store.ListJobTypes(ctx, catalog.ListOpts{Status: catalog.StatusActive})
	if err != nil {
		return err
	}
	for _, t := range active {
		if _, ok := e.handlers.Get(t.Key); !ok {
			return fmt.Errorf("%w: %s", ErrHandlerNotRegistered, t.Key)
		}
	}

	// Initialize plugins
	e.plugins.EmitInit(ctx, e)

	// Start reconciliation sweep worker
	e.wg.Add(1)
	go e.reconciliationSweep(ctx)

	e.logger.Info("prepaid engine started",
		"handlers", e.handlers.Count(),
		"job_types", len(active),
		"sweep_interval", e.sweepInterval,
	)

	return nil
}

// Stop shuts down the Engine.
func (e *Engine) Stop() error {
	close(e.stopChan)
	e.wg.Wait()

	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	return e.store.Close()
}

// Handlers returns the handler registry.
func (e *Engine) Handlers() *handler.Registry {
	return e.handlers
}

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry {
	return e.plugins
}

// reconciliationSweep periodically surfaces jobs whose outcome is final but
// whose reservation never settled. The sweep never settles anything itself:
// resolving a gap means touching money, and that stays a human decision.
func (e *Engine) reconciliationSweep(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			jobs, err := e.store.ListReconciliation(ctx)
			if err != nil {
				e.logger.Error("reconciliation sweep failed", "error", err)
				continue
			}
			if len(jobs) == 0 {
				continue
			}
			for _, j := range jobs {
				e.logger.Warn("job awaiting settlement reconciliation",
					"job_id", j.ID,
					"user_id", j.UserID,
					"status", j.Status,
					"refund_status", j.RefundStatus,
				)
			}
			e.logger.Warn("reconciliation backlog", "count", len(jobs))
		}
	}
}
