package audithook

// Action constants for audit events.
const (
	// Ledger actions
	ActionCreditApplied = "credit.applied"
	ActionDebitApplied  = "debit.applied"

	// Reservation actions
	ActionReservationCreated   = "reservation.created"
	ActionReservationDeclined  = "reservation.declined"
	ActionReservationConfirmed = "reservation.confirmed"
	ActionReservationRefunded  = "reservation.refunded"

	// Job actions
	ActionJobCompleted      = "job.completed"
	ActionJobFailed         = "job.failed"
	ActionReconciliationGap = "reconciliation.gap"

	// Catalog actions
	ActionJobTypeCreated  = "job_type.created"
	ActionJobTypeArchived = "job_type.archived"
)

// Resource constants for audit events.
const (
	ResourceLedger      = "ledger"
	ResourceReservation = "reservation"
	ResourceJob         = "job"
	ResourceJobType     = "job_type"
)

// Category constants for audit events.
const (
	CategoryBilling    = "billing"
	CategorySettlement = "settlement"
	CategoryCatalog    = "catalog"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
