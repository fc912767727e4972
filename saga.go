package prepaid

import (
	"context"
	"errors"

	"github.com/xraph/prepaid/id"
	"github.com/xraph/prepaid/txn"
	"github.com/xraph/prepaid/types"
)

// ──────────────────────────────────────────────────
// Reservation saga
// ──────────────────────────────────────────────────
//
// Reserve → Confirm | Refund is the settlement protocol for work whose
// outcome is unknown when the money is set aside. A reservation is a
// pending usage entry plus a hold on the account; the balance itself only
// moves at Confirm, so a Refund never has to give anything back.

// Reservation is the outcome of a Reserve call.
type Reservation struct {
	// Accepted is false when the account could not cover the amount. A
	// declined reservation leaves no ledger entry behind.
	Accepted      bool             `json:"accepted"`
	TransactionID id.TransactionID `json:"transaction_id,omitempty"`
}

// RefundOutcome is the outcome of a Refund call.
type RefundOutcome struct {
	// Released is true when this call flipped the entry to refunded. When
	// the entry had already left pending, Released is false and
	// SettledStatus reports the terminal state it was found in.
	Released      bool        `json:"released"`
	SettledStatus txn.Status  `json:"settled_status,omitempty"`
	NewBalance    types.Money `json:"new_balance"`
}

// Reserve places a hold for amount against a user's available balance and
// records a pending usage entry. The availability check and the entry
// insert are one atomic step per user: two racing reservations can never
// both pass against the same unspent balance. A decline is a normal
// outcome, not an error.
func (e *Engine) Reserve(ctx context.Context, userID string, amount types.Money, description, referenceID string, metadata map[string]string) (*Reservation, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	t := newTransaction(userID, txn.KindUsage, amount, description, referenceID, metadata)
	t.Status = txn.StatusPending

	if err := e.store.Reserve(ctx, t); err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			e.logger.Info("reservation declined",
				"user_id", userID,
				"amount", amount,
			)
			e.plugins.EmitReservationDeclined(ctx, userID, amount)
			return &Reservation{Accepted: false}, nil
		}
		return nil, err
	}

	e.logger.Info("reservation created",
		"user_id", userID,
		"amount", amount,
		"transaction_id", t.ID,
	)
	e.plugins.EmitReservationCreated(ctx, t)

	return &Reservation{Accepted: true, TransactionID: t.ID}, nil
}

// Confirm settles a pending reservation into a completed charge: the
// balance drops by the reserved amount, the hold is released and the entry
// flips to completed, all in one atomic step. This is the only point at
// which a reserved amount actually leaves the balance. Confirming an entry
// that is not pending returns ErrTransactionNotPending.
func (e *Engine) Confirm(ctx context.Context, txnID id.TransactionID) (types.Money, error) {
	balance, err := e.store.ConfirmReservation(ctx, txnID)
	if err != nil {
		return types.Money{}, err
	}

	t, err := e.store.GetTransaction(ctx, txnID)
	if err != nil {
		// The settlement itself committed; only the event payload is gone.
		e.logger.Warn("confirmed reservation could not be reloaded",
			"transaction_id", txnID,
			"error", err,
		)
	} else {
		e.plugins.EmitReservationConfirmed(ctx, t)
	}

	e.logger.Info("reservation confirmed",
		"transaction_id", txnID,
		"new_balance", balance,
	)
	return balance, nil
}

// Refund releases a pending reservation: the hold is dropped, the entry
// flips to refunded and reason is appended to its description. The balance
// never moves, because a pending reservation never touched it. Refunding an
// entry that already settled is a safe no-op reporting the terminal state
// it was found in.
func (e *Engine) Refund(ctx context.Context, txnID id.TransactionID, reason string) (*RefundOutcome, error) {
	balance, err := e.store.RefundReservation(ctx, txnID, reason)
	if err != nil {
		if errors.Is(err, ErrTransactionNotPending) {
			t, getErr := e.store.GetTransaction(ctx, txnID)
			if getErr != nil {
				return nil, getErr
			}
			e.logger.Info("refund skipped, reservation already settled",
				"transaction_id", txnID,
				"status", t.Status,
			)
			return &RefundOutcome{Released: false, SettledStatus: t.Status}, nil
		}
		return nil, err
	}

	t, err := e.store.GetTransaction(ctx, txnID)
	if err != nil {
		e.logger.Warn("refunded reservation could not be reloaded",
			"transaction_id", txnID,
			"error", err,
		)
	} else {
		e.plugins.EmitReservationRefunded(ctx, t, reason)
	}

	e.logger.Info("reservation refunded",
		"transaction_id", txnID,
		"reason", reason,
	)
	return &RefundOutcome{Released: true, NewBalance: balance}, nil
}
