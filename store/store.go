package store

import (
	"context"

	"github.com/xraph/prepaid/account"
	"github.com/xraph/prepaid/catalog"
	"github.com/xraph/prepaid/id"
	"github.com/xraph/prepaid/job"
	"github.com/xraph/prepaid/txn"
	"github.com/xraph/prepaid/types"
)

// Store is the unified storage interface for all Prepaid entities.
// Instead of embedding the sub-interfaces, we explicitly declare all methods
// to avoid naming conflicts.
//
// The five ledger primitives (ApplyCredit, ApplyDebit, Reserve,
// ConfirmReservation, RefundReservation) are the only operations that may
// mutate an account, and each executes as a single atomic unit: the balance
// mutation and the transaction write commit or reject together, and two
// concurrent reservations for the same user can never both pass the
// availability check against the same unreserved balance.
type Store interface {
	// Account methods
	EnsureAccount(ctx context.Context, userID, currency string) (*account.Account, error)
	GetAccount(ctx context.Context, userID string) (*account.Account, error)

	// Ledger primitives. The transaction carries the user, kind, amount and
	// status; the store applies the corresponding balance mutation and
	// persists the entry atomically, returning the new balance.
	//
	// ApplyCredit: balance += amount, totalPurchased += amount; t must be a
	// completed purchase or refund entry.
	// ApplyDebit: requires available (balance − reserved) ≥ amount, then
	// balance −= amount, totalUsed += amount; ErrInsufficientBalance when
	// the check fails, with no entry written. t must be a completed usage
	// entry.
	// Reserve: requires available ≥ amount, then reserved += amount and the
	// pending entry is written; the balance itself is untouched.
	// ErrInsufficientBalance declines with no side effect.
	ApplyCredit(ctx context.Context, t *txn.Transaction) (types.Money, error)
	ApplyDebit(ctx context.Context, t *txn.Transaction) (types.Money, error)
	Reserve(ctx context.Context, t *txn.Transaction) error

	// Settlement. ConfirmReservation flips a pending entry to completed and,
	// in the same atomic step, moves the amount out of both balance and
	// reserved and into totalUsed. RefundReservation flips a pending entry
	// to refunded, releases the hold (reserved −= amount) and appends reason
	// to the entry description; the balance is untouched. Both return
	// ErrTransactionNotPending when the entry already left pending: the flip
	// is effective at most once.
	ConfirmReservation(ctx context.Context, txnID id.TransactionID) (types.Money, error)
	RefundReservation(ctx context.Context, txnID id.TransactionID, reason string) (types.Money, error)

	// Transaction methods
	GetTransaction(ctx context.Context, txnID id.TransactionID) (*txn.Transaction, error)
	ListTransactions(ctx context.Context, userID string, opts txn.ListOpts) ([]*txn.Transaction, error)

	// Job methods
	CreateJob(ctx context.Context, j *job.Job) error
	GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error)
	UpdateJob(ctx context.Context, j *job.Job) error
	DeleteJob(ctx context.Context, jobID id.JobID) error
	ListJobs(ctx context.Context, userID string, opts job.ListOpts) ([]*job.Job, error)
	ListReconciliation(ctx context.Context) ([]*job.Job, error)

	// Job type methods
	CreateJobType(ctx context.Context, t *catalog.JobType) error
	GetJobType(ctx context.Context, key string) (*catalog.JobType, error)
	ListJobTypes(ctx context.Context, opts catalog.ListOpts) ([]*catalog.JobType, error)
	UpdateJobType(ctx context.Context, t *catalog.JobType) error
	ArchiveJobType(ctx context.Context, typeID id.JobTypeID) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
