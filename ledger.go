package prepaid

import (
	"context"
	"time"

	"github.com/xraph/prepaid/account"
	"github.com/xraph/prepaid/id"
	"github.com/xraph/prepaid/txn"
	"github.com/xraph/prepaid/types"
)

// ──────────────────────────────────────────────────
// Ledger primitives
// ──────────────────────────────────────────────────

// LedgerResult is the outcome of a direct credit or debit.
type LedgerResult struct {
	TransactionID id.TransactionID `json:"transaction_id"`
	NewBalance    types.Money      `json:"new_balance"`
}

// Balance returns the current balance for a user, creating a zero-balance
// account if none exists.
func (e *Engine) Balance(ctx context.Context, userID string) (types.Money, error) {
	a, err := e.store.EnsureAccount(ctx, userID, e.defaultCurrency)
	if err != nil {
		return types.Money{}, err
	}
	return a.Balance, nil
}

// Account returns the full account for a user, creating it if absent.
func (e *Engine) Account(ctx context.Context, userID string) (*account.Account, error) {
	return e.store.EnsureAccount(ctx, userID, e.defaultCurrency)
}

// Credit adds purchased credits to an account. The balance mutation and the
// completed purchase entry commit together; used for direct purchases with
// no uncertain execution step.
func (e *Engine) Credit(ctx context.Context, userID string, amount types.Money, description, referenceID string) (*LedgerResult, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	t := newTransaction(userID, txn.KindPurchase, amount, description, referenceID, nil)
	t.Status = txn.StatusCompleted

	balance, err := e.store.ApplyCredit(ctx, t)
	if err != nil {
		return nil, err
	}

	e.logger.Info("credit applied",
		"user_id", userID,
		"amount", amount,
		"transaction_id", t.ID,
	)
	e.plugins.EmitCreditApplied(ctx, t)

	return &LedgerResult{TransactionID: t.ID, NewBalance: balance}, nil
}

// GrantRefund returns credits to an account outside the reservation saga,
// for administrative refunds of already-settled charges.
func (e *Engine) GrantRefund(ctx context.Context, userID string, amount types.Money, description, referenceID string) (*LedgerResult, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	t := newTransaction(userID, txn.KindRefund, amount, description, referenceID, nil)
	t.Status = txn.StatusCompleted

	balance, err := e.store.ApplyCredit(ctx, t)
	if err != nil {
		return nil, err
	}

	e.logger.Info("refund granted",
		"user_id", userID,
		"amount", amount,
		"transaction_id", t.ID,
	)
	e.plugins.EmitCreditApplied(ctx, t)

	return &LedgerResult{TransactionID: t.ID, NewBalance: balance}, nil
}

// Debit charges an account immediately. The availability check (balance
// minus outstanding holds), balance decrement and completed usage entry are
// one atomic step; ErrInsufficientBalance means nothing was recorded. Used
// for the pay-immediately path and direct admin deductions where no
// rollback is ever needed.
func (e *Engine) Debit(ctx context.Context, userID string, amount types.Money, description, referenceID string) (*LedgerResult, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	t := newTransaction(userID, txn.KindUsage, amount, description, referenceID, nil)
	t.Status = txn.StatusCompleted

	balance, err := e.store.ApplyDebit(ctx, t)
	if err != nil {
		return nil, err
	}

	e.logger.Info("debit applied",
		"user_id", userID,
		"amount", amount,
		"transaction_id", t.ID,
	)
	e.plugins.EmitDebitApplied(ctx, t)

	return &LedgerResult{TransactionID: t.ID, NewBalance: balance}, nil
}

// GetTransaction retrieves a single ledger transaction.
func (e *Engine) GetTransaction(ctx context.Context, txnID id.TransactionID) (*txn.Transaction, error) {
	return e.store.GetTransaction(ctx, txnID)
}

// ListTransactions lists a user's ledger transactions, newest first.
func (e *Engine) ListTransactions(ctx context.Context, userID string, opts txn.ListOpts) ([]*txn.Transaction, error) {
	return e.store.ListTransactions(ctx, userID, opts)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

func newTransaction(userID string, kind txn.Kind, amount types.Money, description, referenceID string, metadata map[string]string) *txn.Transaction {
	return &txn.Transaction{
		ID:          id.NewTransactionID(),
		UserID:      userID,
		Kind:        kind,
		Amount:      amount,
		Description: description,
		ReferenceID: referenceID,
		Metadata:    metadata,
		CreatedAt:   time.Now().UTC(),
	}
}

func validateAmount(amount types.Money) error {
	if amount.Currency == "" {
		return ValidationError{Field: "amount.currency", Message: "currency is required"}
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}
