package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit                 []OnInit
	onShutdown             []OnShutdown
	onCreditApplied        []OnCreditApplied
	onDebitApplied         []OnDebitApplied
	onReservationCreated   []OnReservationCreated
	onReservationDeclined  []OnReservationDeclined
	onReservationConfirmed []OnReservationConfirmed
	onReservationRefunded  []OnReservationRefunded
	onJobCompleted         []OnJobCompleted
	onJobFailed            []OnJobFailed
	onReconciliationGap    []OnReconciliationGap
	onJobTypeCreated       []OnJobTypeCreated
	onJobTypeArchived      []OnJobTypeArchived
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnCreditApplied); ok {
		r.onCreditApplied = append(r.onCreditApplied, v)
	}
	if v, ok := p.(OnDebitApplied); ok {
		r.onDebitApplied = append(r.onDebitApplied, v)
	}
	if v, ok := p.(OnReservationCreated); ok {
		r.onReservationCreated = append(r.onReservationCreated, v)
	}
	if v, ok := p.(OnReservationDeclined); ok {
		r.onReservationDeclined = append(r.onReservationDeclined, v)
	}
	if v, ok := p.(OnReservationConfirmed); ok {
		r.onReservationConfirmed = append(r.onReservationConfirmed, v)
	}
	if v, ok := p.(OnReservationRefunded); ok {
		r.onReservationRefunded = append(r.onReservationRefunded, v)
	}
	if v, ok := p.(OnJobCompleted); ok {
		r.onJobCompleted = append(r.onJobCompleted, v)
	}
	if v, ok := p.(OnJobFailed); ok {
		r.onJobFailed = append(r.onJobFailed, v)
	}
	if v, ok := p.(OnReconciliationGap); ok {
		r.onReconciliationGap = append(r.onReconciliationGap, v)
	}
	if v, ok := p.(OnJobTypeCreated); ok {
		r.onJobTypeCreated = append(r.onJobTypeCreated, v)
	}
	if v, ok := p.(OnJobTypeArchived); ok {
		r.onJobTypeArchived = append(r.onJobTypeArchived, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnCreditApplied)(nil)).Elem(), "OnCreditApplied")
	checkInterface(reflect.TypeOf((*OnDebitApplied)(nil)).Elem(), "OnDebitApplied")
	checkInterface(reflect.TypeOf((*OnReservationCreated)(nil)).Elem(), "OnReservationCreated")
	checkInterface(reflect.TypeOf((*OnReservationConfirmed)(nil)).Elem(), "OnReservationConfirmed")
	checkInterface(reflect.TypeOf((*OnReservationRefunded)(nil)).Elem(), "OnReservationRefunded")
	checkInterface(reflect.TypeOf((*OnJobCompleted)(nil)).Elem(), "OnJobCompleted")
	checkInterface(reflect.TypeOf((*OnJobFailed)(nil)).Elem(), "OnJobFailed")
	checkInterface(reflect.TypeOf((*OnReconciliationGap)(nil)).Elem(), "OnReconciliationGap")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, engine)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCreditApplied calls OnCreditApplied for all plugins that implement it.
func (r *Registry) EmitCreditApplied(ctx context.Context, transaction interface{}) {
	r.mu.RLock()
	plugins := r.onCreditApplied
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCreditApplied(ctx, transaction)
		}); err != nil {
			r.logger.Warn("plugin OnCreditApplied failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitDebitApplied calls OnDebitApplied for all plugins that implement it.
func (r *Registry) EmitDebitApplied(ctx context.Context, transaction interface{}) {
	r.mu.RLock()
	plugins := r.onDebitApplied
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnDebitApplied(ctx, transaction)
		}); err != nil {
			r.logger.Warn("plugin OnDebitApplied failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitReservationCreated calls OnReservationCreated for all plugins that implement it.
func (r *Registry) EmitReservationCreated(ctx context.Context, transaction interface{}) {
	r.mu.RLock()
	plugins := r.onReservationCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnReservationCreated(ctx, transaction)
		}); err != nil {
			r.logger.Warn("plugin OnReservationCreated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitReservationDeclined calls OnReservationDeclined for all plugins that implement it.
func (r *Registry) EmitReservationDeclined(ctx context.Context, userID string, amount interface{}) {
	r.mu.RLock()
	plugins := r.onReservationDeclined
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnReservationDeclined(ctx, userID, amount)
		}); err != nil {
			r.logger.Warn("plugin OnReservationDeclined failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitReservationConfirmed calls OnReservationConfirmed for all plugins that implement it.
func (r *Registry) EmitReservationConfirmed(ctx context.Context, transaction interface{}) {
	r.mu.RLock()
	plugins := r.onReservationConfirmed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnReservationConfirmed(ctx, transaction)
		}); err != nil {
			r.logger.Warn("plugin OnReservationConfirmed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitReservationRefunded calls OnReservationRefunded for all plugins that implement it.
func (r *Registry) EmitReservationRefunded(ctx context.Context, transaction interface{}, reason string) {
	r.mu.RLock()
	plugins := r.onReservationRefunded
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnReservationRefunded(ctx, transaction, reason)
		}); err != nil {
			r.logger.Warn("plugin OnReservationRefunded failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitJobCompleted calls OnJobCompleted for all plugins that implement it.
func (r *Registry) EmitJobCompleted(ctx context.Context, job interface{}) {
	r.mu.RLock()
	plugins := r.onJobCompleted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnJobCompleted(ctx, job)
		}); err != nil {
			r.logger.Warn("plugin OnJobCompleted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitJobFailed calls OnJobFailed for all plugins that implement it.
func (r *Registry) EmitJobFailed(ctx context.Context, job interface{}, reason string) {
	r.mu.RLock()
	plugins := r.onJobFailed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnJobFailed(ctx, job, reason)
		}); err != nil {
			r.logger.Warn("plugin OnJobFailed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitReconciliationGap calls OnReconciliationGap for all plugins that implement it.
func (r *Registry) EmitReconciliationGap(ctx context.Context, job interface{}, cause error) {
	r.mu.RLock()
	plugins := r.onReconciliationGap
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnReconciliationGap(ctx, job, cause)
		}); err != nil {
			r.logger.Warn("plugin OnReconciliationGap failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitJobTypeCreated calls OnJobTypeCreated for all plugins that implement it.
func (r *Registry) EmitJobTypeCreated(ctx context.Context, jobType interface{}) {
	r.mu.RLock()
	plugins := r.onJobTypeCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnJobTypeCreated(ctx, jobType)
		}); err != nil {
			r.logger.Warn("plugin OnJobTypeCreated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitJobTypeArchived calls OnJobTypeArchived for all plugins that implement it.
func (r *Registry) EmitJobTypeArchived(ctx context.Context, typeID string) {
	r.mu.RLock()
	plugins := r.onJobTypeArchived
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnJobTypeArchived(ctx, typeID)
		}); err != nil {
			r.logger.Warn("plugin OnJobTypeArchived failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the settlement pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
