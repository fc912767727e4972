// Package txn defines the append-only ledger transaction.
package txn

import (
	"time"

	"github.com/xraph/prepaid/id"
	"github.com/xraph/prepaid/types"
)

// Kind classifies a ledger transaction. The amount is always positive;
// the kind implies the sign.
type Kind string

const (
	KindPurchase Kind = "purchase"
	KindUsage    Kind = "usage"
	KindRefund   Kind = "refund"
)

// Valid reports whether k is a known transaction kind.
func (k Kind) Valid() bool {
	switch k {
	case KindPurchase, KindUsage, KindRefund:
		return true
	}
	return false
}

// Status is the settlement state of a transaction.
//
// A transaction leaves pending exactly once: to completed (confirm) or
// refunded (release). Direct credit/debit entries are born completed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusRefunded  Status = "refunded"
)

// Valid reports whether s is a known transaction status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusRefunded:
		return true
	}
	return false
}

// Terminal reports whether s is a final settlement state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRefunded
}

type Transaction struct {
	ID          id.TransactionID  `json:"id"`
	UserID      string            `json:"user_id"`
	Kind        Kind              `json:"kind"`
	Amount      types.Money       `json:"amount"`
	Status      Status            `json:"status"`
	Description string            `json:"description"`
	ReferenceID string            `json:"reference_id,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	SettledAt   *time.Time        `json:"settled_at,omitempty"`
}

// ListOpts filters transaction listings.
type ListOpts struct {
	Kind   Kind
	Status Status
	Limit  int
	Offset int
}
