// Package plugin provides an extensible plugin system for the prepaid engine.
// Plugins can hook into ledger and job lifecycle events to extend functionality.
package plugin

import (
	"context"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Ledger hooks
// ──────────────────────────────────────────────────

// OnCreditApplied is called after credits are added to an account.
type OnCreditApplied interface {
	Plugin
	OnCreditApplied(ctx context.Context, transaction interface{}) error
}

// OnDebitApplied is called after a direct debit against an account.
type OnDebitApplied interface {
	Plugin
	OnDebitApplied(ctx context.Context, transaction interface{}) error
}

// ──────────────────────────────────────────────────
// Reservation / settlement hooks
// ──────────────────────────────────────────────────

// OnReservationCreated is called when a hold is placed on an account.
type OnReservationCreated interface {
	Plugin
	OnReservationCreated(ctx context.Context, transaction interface{}) error
}

// OnReservationDeclined is called when a hold is refused for insufficient
// balance. No ledger entry exists for a declined reservation.
type OnReservationDeclined interface {
	Plugin
	OnReservationDeclined(ctx context.Context, userID string, amount interface{}) error
}

// OnReservationConfirmed is called when a pending reservation settles into
// a completed charge.
type OnReservationConfirmed interface {
	Plugin
	OnReservationConfirmed(ctx context.Context, transaction interface{}) error
}

// OnReservationRefunded is called when a pending reservation is released
// back to the account.
type OnReservationRefunded interface {
	Plugin
	OnReservationRefunded(ctx context.Context, transaction interface{}, reason string) error
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// OnJobCompleted is called when a job finishes with a valid result.
type OnJobCompleted interface {
	Plugin
	OnJobCompleted(ctx context.Context, job interface{}) error
}

// OnJobFailed is called when a job fails and its refund has been attempted.
type OnJobFailed interface {
	Plugin
	OnJobFailed(ctx context.Context, job interface{}, reason string) error
}

// OnReconciliationGap is called when a job's outcome is final but its
// reservation could not be settled, leaving the ledger behind the job state.
type OnReconciliationGap interface {
	Plugin
	OnReconciliationGap(ctx context.Context, job interface{}, cause error) error
}

// ──────────────────────────────────────────────────
// Catalog hooks
// ──────────────────────────────────────────────────

// OnJobTypeCreated is called when a new job type is added to the catalog.
type OnJobTypeCreated interface {
	Plugin
	OnJobTypeCreated(ctx context.Context, jobType interface{}) error
}

// OnJobTypeArchived is called when a job type is archived.
type OnJobTypeArchived interface {
	Plugin
	OnJobTypeArchived(ctx context.Context, typeID string) error
}
