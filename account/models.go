// Package account defines the per-user credit account.
//
// An account is created lazily on first credit-related access and is only
// ever mutated through the store's atomic ledger primitives. Balance is the
// purchased credit still held; Reserved is the slice of Balance currently
// held by pending reservations. Available spending power is Balance minus
// Reserved.
package account

import (
	"github.com/xraph/prepaid/id"
	"github.com/xraph/prepaid/types"
)

type Account struct {
	types.Entity
	ID             id.AccountID `json:"id"`
	UserID         string       `json:"user_id"`
	Currency       string       `json:"currency"`
	Balance        types.Money  `json:"balance"`
	Reserved       types.Money  `json:"reserved"`
	TotalPurchased types.Money  `json:"total_purchased"`
	TotalUsed      types.Money  `json:"total_used"`
}

// Available returns the balance not held by pending reservations.
func (a *Account) Available() types.Money {
	return a.Balance.Subtract(a.Reserved)
}

// New returns a zero-valued account for userID in the given currency.
func New(userID, currency string) *Account {
	return &Account{
		Entity:         types.NewEntity(),
		ID:             id.NewAccountID(),
		UserID:         userID,
		Currency:       currency,
		Balance:        types.Zero(currency),
		Reserved:       types.Zero(currency),
		TotalPurchased: types.Zero(currency),
		TotalUsed:      types.Zero(currency),
	}
}
