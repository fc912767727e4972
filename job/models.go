// Package job defines the paid unit of work: one analysis job.
package job

import (
	"encoding/json"

	"github.com/xraph/prepaid/id"
	"github.com/xraph/prepaid/types"
)

// Status is the lifecycle state of a job. Completed and failed are
// terminal; a job is never resurrected from a terminal state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is a known job status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s is a final job state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// RefundStatus records the outcome of the compensating refund for a
// failed job, so a caller is never left guessing whether the held
// credit was returned.
type RefundStatus string

const (
	RefundNone     RefundStatus = "none"
	RefundPending  RefundStatus = "pending"
	RefundRefunded RefundStatus = "refunded"
	RefundFailed   RefundStatus = "failed"
)

// Valid reports whether r is a known refund status.
func (r RefundStatus) Valid() bool {
	switch r {
	case RefundNone, RefundPending, RefundRefunded, RefundFailed:
		return true
	}
	return false
}

type Job struct {
	types.Entity
	ID     id.JobID `json:"id"`
	UserID string   `json:"user_id"`
	Type   string   `json:"type"`
	Status Status   `json:"status"`

	// CreditTransactionID links the job to the reservation holding its
	// cost. Nil until the reservation succeeds.
	CreditTransactionID id.TransactionID `json:"credit_transaction_id,omitempty"`

	Input        json.RawMessage `json:"input,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	FailedReason string          `json:"failed_reason,omitempty"`
	RefundStatus RefundStatus    `json:"refund_status"`

	// ReconcileNeeded marks a job whose user-visible outcome is fixed but
	// whose reservation could not be settled. An operational sweep resolves
	// these out of band; the engine never flips the outcome again.
	ReconcileNeeded bool `json:"reconcile_needed,omitempty"`
}

// ListOpts filters job listings.
type ListOpts struct {
	Status Status
	Type   string
	Limit  int
	Offset int
}
