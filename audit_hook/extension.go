// Package audithook bridges Prepaid lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import an
// audit backend directly. Callers inject a RecorderFunc adapter that bridges
// to their trail at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/prepaid/job"
	"github.com/xraph/prepaid/plugin"
	"github.com/xraph/prepaid/txn"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                = (*Extension)(nil)
	_ plugin.OnCreditApplied       = (*Extension)(nil)
	_ plugin.OnDebitApplied        = (*Extension)(nil)
	_ plugin.OnReservationCreated  = (*Extension)(nil)
	_ plugin.OnReservationDeclined = (*Extension)(nil)
	_ plugin.OnReservationConfirmed = (*Extension)(nil)
	_ plugin.OnReservationRefunded = (*Extension)(nil)
	_ plugin.OnJobCompleted        = (*Extension)(nil)
	_ plugin.OnJobFailed           = (*Extension)(nil)
	_ plugin.OnReconciliationGap   = (*Extension)(nil)
	_ plugin.OnJobTypeCreated      = (*Extension)(nil)
	_ plugin.OnJobTypeArchived     = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// Defined locally so this package carries no backend dependency — callers
// inject the concrete trail at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Prepaid lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Ledger hooks
// ──────────────────────────────────────────────────

// OnCreditApplied implements plugin.OnCreditApplied.
func (e *Extension) OnCreditApplied(ctx context.Context, transaction interface{}) error {
	txnID, userID, amount := transactionDetails(transaction)
	return e.record(ctx, ActionCreditApplied, SeverityInfo, OutcomeSuccess,
		ResourceLedger, txnID, CategoryBilling, nil,
		"user_id", userID,
		"amount", amount,
	)
}

// OnDebitApplied implements plugin.OnDebitApplied.
func (e *Extension) OnDebitApplied(ctx context.Context, transaction interface{}) error {
	txnID, userID, amount := transactionDetails(transaction)
	return e.record(ctx, ActionDebitApplied, SeverityInfo, OutcomeSuccess,
		ResourceLedger, txnID, CategoryBilling, nil,
		"user_id", userID,
		"amount", amount,
	)
}

// ──────────────────────────────────────────────────
// Reservation hooks
// ──────────────────────────────────────────────────

// OnReservationCreated implements plugin.OnReservationCreated.
func (e *Extension) OnReservationCreated(ctx context.Context, transaction interface{}) error {
	txnID, userID, amount := transactionDetails(transaction)
	return e.record(ctx, ActionReservationCreated, SeverityInfo, OutcomeSuccess,
		ResourceReservation, txnID, CategorySettlement, nil,
		"user_id", userID,
		"amount", amount,
	)
}

// OnReservationDeclined implements plugin.OnReservationDeclined.
func (e *Extension) OnReservationDeclined(ctx context.Context, userID string, amount interface{}) error {
	return e.record(ctx, ActionReservationDeclined, SeverityWarning, OutcomeFailure,
		ResourceReservation, "", CategorySettlement, nil,
		"user_id", userID,
		"amount", fmt.Sprintf("%v", amount),
	)
}

// OnReservationConfirmed implements plugin.OnReservationConfirmed.
func (e *Extension) OnReservationConfirmed(ctx context.Context, transaction interface{}) error {
	txnID, userID, amount := transactionDetails(transaction)
	return e.record(ctx, ActionReservationConfirmed, SeverityInfo, OutcomeSuccess,
		ResourceReservation, txnID, CategorySettlement, nil,
		"user_id", userID,
		"amount", amount,
	)
}

// OnReservationRefunded implements plugin.OnReservationRefunded.
func (e *Extension) OnReservationRefunded(ctx context.Context, transaction interface{}, reason string) error {
	txnID, userID, amount := transactionDetails(transaction)
	return e.record(ctx, ActionReservationRefunded, SeverityInfo, OutcomeSuccess,
		ResourceReservation, txnID, CategorySettlement, nil,
		"user_id", userID,
		"amount", amount,
		"refund_reason", reason,
	)
}

// ──────────────────────────────────────────────────
// Job hooks
// ──────────────────────────────────────────────────

// OnJobCompleted implements plugin.OnJobCompleted.
func (e *Extension) OnJobCompleted(ctx context.Context, j interface{}) error {
	jobID, userID, jobType := jobDetails(j)
	return e.record(ctx, ActionJobCompleted, SeverityInfo, OutcomeSuccess,
		ResourceJob, jobID, CategorySettlement, nil,
		"user_id", userID,
		"type", jobType,
	)
}

// OnJobFailed implements plugin.OnJobFailed.
func (e *Extension) OnJobFailed(ctx context.Context, j interface{}, reason string) error {
	jobID, userID, jobType := jobDetails(j)
	return e.record(ctx, ActionJobFailed, SeverityWarning, OutcomeFailure,
		ResourceJob, jobID, CategorySettlement, nil,
		"user_id", userID,
		"type", jobType,
		"failed_reason", reason,
	)
}

// OnReconciliationGap implements plugin.OnReconciliationGap.
func (e *Extension) OnReconciliationGap(ctx context.Context, j interface{}, cause error) error {
	jobID, userID, jobType := jobDetails(j)
	return e.record(ctx, ActionReconciliationGap, SeverityCritical, OutcomePartial,
		ResourceJob, jobID, CategorySettlement, cause,
		"user_id", userID,
		"type", jobType,
	)
}

// ──────────────────────────────────────────────────
// Catalog hooks
// ──────────────────────────────────────────────────

// OnJobTypeCreated implements plugin.OnJobTypeCreated.
func (e *Extension) OnJobTypeCreated(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionJobTypeCreated, SeverityInfo, OutcomeSuccess,
		ResourceJobType, "", CategoryCatalog, nil,
		"event", "job_type_created",
	)
}

// OnJobTypeArchived implements plugin.OnJobTypeArchived.
func (e *Extension) OnJobTypeArchived(ctx context.Context, typeID string) error {
	return e.record(ctx, ActionJobTypeArchived, SeverityInfo, OutcomeSuccess,
		ResourceJobType, typeID, CategoryCatalog, nil,
		"type_id", typeID,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

func transactionDetails(v interface{}) (txnID, userID, amount string) {
	if t, ok := v.(*txn.Transaction); ok {
		return t.ID.String(), t.UserID, t.Amount.String()
	}
	return "", "", ""
}

func jobDetails(v interface{}) (jobID, userID, jobType string) {
	if j, ok := v.(*job.Job); ok {
		return j.ID.String(), j.UserID, j.Type
	}
	return "", "", ""
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
