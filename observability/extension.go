// Package observability provides a metrics extension for Prepaid that records
// lifecycle event counts through a pluggable MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/prepaid/plugin"
	"github.com/xraph/prepaid/txn"
	"github.com/xraph/prepaid/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                 = (*MetricsExtension)(nil)
	_ plugin.OnInit                 = (*MetricsExtension)(nil)
	_ plugin.OnCreditApplied        = (*MetricsExtension)(nil)
	_ plugin.OnDebitApplied         = (*MetricsExtension)(nil)
	_ plugin.OnReservationCreated   = (*MetricsExtension)(nil)
	_ plugin.OnReservationDeclined  = (*MetricsExtension)(nil)
	_ plugin.OnReservationConfirmed = (*MetricsExtension)(nil)
	_ plugin.OnReservationRefunded  = (*MetricsExtension)(nil)
	_ plugin.OnJobCompleted         = (*MetricsExtension)(nil)
	_ plugin.OnJobFailed            = (*MetricsExtension)(nil)
	_ plugin.OnReconciliationGap    = (*MetricsExtension)(nil)
	_ plugin.OnJobTypeCreated       = (*MetricsExtension)(nil)
	_ plugin.OnJobTypeArchived      = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Prepaid plugin to automatically track settlement metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Ledger metrics
	CreditsApplied Counter
	DebitsApplied  Counter
	CreditAmount   Histogram
	DebitAmount    Histogram

	// Reservation metrics
	ReservationsCreated   Counter
	ReservationsDeclined  Counter
	ReservationsConfirmed Counter
	ReservationsRefunded  Counter
	ReservationAmount     Histogram

	// Job metrics
	JobsCompleted      Counter
	JobsFailed         Counter
	ReconciliationGaps Counter

	// Catalog metrics
	JobTypesCreated  Counter
	JobTypesArchived Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Ledger metrics
		CreditsApplied: factory.Counter("prepaid.credit.applied"),
		DebitsApplied:  factory.Counter("prepaid.debit.applied"),
		CreditAmount:   factory.Histogram("prepaid.credit.amount_cents"),
		DebitAmount:    factory.Histogram("prepaid.debit.amount_cents"),

		// Reservation metrics
		ReservationsCreated:   factory.Counter("prepaid.reservation.created"),
		ReservationsDeclined:  factory.Counter("prepaid.reservation.declined"),
		ReservationsConfirmed: factory.Counter("prepaid.reservation.confirmed"),
		ReservationsRefunded:  factory.Counter("prepaid.reservation.refunded"),
		ReservationAmount:     factory.Histogram("prepaid.reservation.amount_cents"),

		// Job metrics
		JobsCompleted:      factory.Counter("prepaid.job.completed"),
		JobsFailed:         factory.Counter("prepaid.job.failed"),
		ReconciliationGaps: factory.Counter("prepaid.reconciliation.gaps"),

		// Catalog metrics
		JobTypesCreated:  factory.Counter("prepaid.job_type.created"),
		JobTypesArchived: factory.Counter("prepaid.job_type.archived"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Ledger lifecycle hooks
// ──────────────────────────────────────────────────

// OnCreditApplied implements plugin.OnCreditApplied.
func (m *MetricsExtension) OnCreditApplied(_ context.Context, transaction interface{}) error {
	m.CreditsApplied.Inc()
	if cents, ok := amountCents(transaction); ok {
		m.CreditAmount.Observe(cents)
	}
	return nil
}

// OnDebitApplied implements plugin.OnDebitApplied.
func (m *MetricsExtension) OnDebitApplied(_ context.Context, transaction interface{}) error {
	m.DebitsApplied.Inc()
	if cents, ok := amountCents(transaction); ok {
		m.DebitAmount.Observe(cents)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Reservation lifecycle hooks
// ──────────────────────────────────────────────────

// OnReservationCreated implements plugin.OnReservationCreated.
func (m *MetricsExtension) OnReservationCreated(_ context.Context, transaction interface{}) error {
	m.ReservationsCreated.Inc()
	if cents, ok := amountCents(transaction); ok {
		m.ReservationAmount.Observe(cents)
	}
	return nil
}

// OnReservationDeclined implements plugin.OnReservationDeclined.
func (m *MetricsExtension) OnReservationDeclined(_ context.Context, _ string, _ interface{}) error {
	m.ReservationsDeclined.Inc()
	return nil
}

// OnReservationConfirmed implements plugin.OnReservationConfirmed.
func (m *MetricsExtension) OnReservationConfirmed(_ context.Context, _ interface{}) error {
	m.ReservationsConfirmed.Inc()
	return nil
}

// OnReservationRefunded implements plugin.OnReservationRefunded.
func (m *MetricsExtension) OnReservationRefunded(_ context.Context, _ interface{}, _ string) error {
	m.ReservationsRefunded.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// OnJobCompleted implements plugin.OnJobCompleted.
func (m *MetricsExtension) OnJobCompleted(_ context.Context, _ interface{}) error {
	m.JobsCompleted.Inc()
	return nil
}

// OnJobFailed implements plugin.OnJobFailed.
func (m *MetricsExtension) OnJobFailed(_ context.Context, _ interface{}, _ string) error {
	m.JobsFailed.Inc()
	return nil
}

// OnReconciliationGap implements plugin.OnReconciliationGap.
func (m *MetricsExtension) OnReconciliationGap(_ context.Context, _ interface{}, _ error) error {
	m.ReconciliationGaps.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Catalog lifecycle hooks
// ──────────────────────────────────────────────────

// OnJobTypeCreated implements plugin.OnJobTypeCreated.
func (m *MetricsExtension) OnJobTypeCreated(_ context.Context, _ interface{}) error {
	m.JobTypesCreated.Inc()
	return nil
}

// OnJobTypeArchived implements plugin.OnJobTypeArchived.
func (m *MetricsExtension) OnJobTypeArchived(_ context.Context, _ string) error {
	m.JobTypesArchived.Inc()
	return nil
}

// amountCents extracts an amount in cents from a hook payload.
func amountCents(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case *txn.Transaction:
		return float64(t.Amount.Amount), true
	case types.Money:
		return float64(t.Amount), true
	case *types.Money:
		return float64(t.Amount), true
	}
	return 0, false
}
