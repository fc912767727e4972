// Package sqlite implements the Prepaid store on SQLite via Grove ORM.
//
// SQLite has no writable CTEs, so each ledger primitive runs as a guarded
// conditional UPDATE followed by the transaction write, with a compensating
// update if the second step fails. The conditional UPDATE is still the
// concurrency guard: SQLite serializes writers, so two racing reservations
// can never both pass the availability check.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	prepaid "github.com/xraph/prepaid"
	"github.com/xraph/prepaid/account"
	"github.com/xraph/prepaid/catalog"
	"github.com/xraph/prepaid/id"
	"github.com/xraph/prepaid/job"
	prepaidstore "github.com/xraph/prepaid/store"
	"github.com/xraph/prepaid/txn"
	"github.com/xraph/prepaid/types"
)

// compile-time interface check
var _ prepaidstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("prepaid/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("prepaid/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Account Store ====================

func (s *Store) EnsureAccount(ctx context.Context, userID, currency string) (*account.Account, error) {
	t := now()
	m := &accountModel{
		UserID:    userID,
		Currency:  currency,
		CreatedAt: t,
		UpdatedAt: t,
	}
	_, err := s.sdb.NewInsert(m).
		OnConflict("(user_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	a, err := s.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if currency != "" && a.Currency != currency {
		return nil, prepaid.ErrCurrencyMismatch
	}
	return a, nil
}

func (s *Store) GetAccount(ctx context.Context, userID string) (*account.Account, error) {
	m := new(accountModel)
	err := s.sdb.NewSelect(m).
		Where("user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, prepaid.ErrAccountNotFound
		}
		return nil, err
	}
	return fromAccountModel(m), nil
}

// ==================== Ledger primitives ====================

func (s *Store) ApplyCredit(ctx context.Context, t *txn.Transaction) (types.Money, error) {
	if _, err := s.EnsureAccount(ctx, t.UserID, t.Amount.Currency); err != nil {
		return types.Money{}, err
	}

	purchasedDelta := int64(0)
	if t.Kind == txn.KindPurchase {
		purchasedDelta = t.Amount.Amount
	}

	res, err := s.sdb.NewUpdate((*accountModel)(nil)).
		Set("balance_cents = balance_cents + ?", t.Amount.Amount).
		Set("total_purchased_cents = total_purchased_cents + ?", purchasedDelta).
		Set("updated_at = ?", now()).
		Where("user_id = ?", t.UserID).
		Where("currency = ?", t.Amount.Currency).
		Exec(ctx)
	if err != nil {
		return types.Money{}, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return types.Money{}, err
	}
	if rows == 0 {
		return types.Money{}, prepaid.ErrCurrencyMismatch
	}

	if _, err := s.sdb.NewInsert(toTransactionModel(t)).Exec(ctx); err != nil {
		//nolint:errcheck // best-effort rollback
		_, _ = s.sdb.NewUpdate((*accountModel)(nil)).
			Set("balance_cents = balance_cents - ?", t.Amount.Amount).
			Set("total_purchased_cents = total_purchased_cents - ?", purchasedDelta).
			Where("user_id = ?", t.UserID).
			Exec(ctx)
		return types.Money{}, err
	}

	return s.balance(ctx, t.UserID, t.Amount.Currency)
}

func (s *Store) ApplyDebit(ctx context.Context, t *txn.Transaction) (types.Money, error) {
	res, err := s.sdb.NewUpdate((*accountModel)(nil)).
		Set("balance_cents = balance_cents - ?", t.Amount.Amount).
		Set("total_used_cents = total_used_cents + ?", t.Amount.Amount).
		Set("updated_at = ?", now()).
		Where("user_id = ?", t.UserID).
		Where("currency = ?", t.Amount.Currency).
		Where("balance_cents - reserved_cents >= ?", t.Amount.Amount).
		Exec(ctx)
	if err != nil {
		return types.Money{}, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return types.Money{}, err
	}
	if rows == 0 {
		return types.Money{}, s.chargeDeclineReason(ctx, t.UserID, t.Amount.Currency)
	}

	if _, err := s.sdb.NewInsert(toTransactionModel(t)).Exec(ctx); err != nil {
		//nolint:errcheck // best-effort rollback
		_, _ = s.sdb.NewUpdate((*accountModel)(nil)).
			Set("balance_cents = balance_cents + ?", t.Amount.Amount).
			Set("total_used_cents = total_used_cents - ?", t.Amount.Amount).
			Where("user_id = ?", t.UserID).
			Exec(ctx)
		return types.Money{}, err
	}

	return s.balance(ctx, t.UserID, t.Amount.Currency)
}

func (s *Store) Reserve(ctx context.Context, t *txn.Transaction) error {
	res, err := s.sdb.NewUpdate((*accountModel)(nil)).
		Set("reserved_cents = reserved_cents + ?", t.Amount.Amount).
		Set("updated_at = ?", now()).
		Where("user_id = ?", t.UserID).
		Where("currency = ?", t.Amount.Currency).
		Where("balance_cents - reserved_cents >= ?", t.Amount.Amount).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return s.chargeDeclineReason(ctx, t.UserID, t.Amount.Currency)
	}

	if _, err := s.sdb.NewInsert(toTransactionModel(t)).Exec(ctx); err != nil {
		//nolint:errcheck // best-effort rollback
		_, _ = s.sdb.NewUpdate((*accountModel)(nil)).
			Set("reserved_cents = reserved_cents - ?", t.Amount.Amount).
			Where("user_id = ?", t.UserID).
			Exec(ctx)
		return err
	}
	return nil
}

func (s *Store) ConfirmReservation(ctx context.Context, txnID id.TransactionID) (types.Money, error) {
	t, err := s.GetTransaction(ctx, txnID)
	if err != nil {
		return types.Money{}, err
	}

	// The status flip is the linearization point: only one settle wins it.
	res, err := s.sdb.NewUpdate((*transactionModel)(nil)).
		Set("status = ?", string(txn.StatusCompleted)).
		Set("settled_at = ?", now()).
		Where("id = ?", txnID.String()).
		Where("status = ?", string(txn.StatusPending)).
		Exec(ctx)
	if err != nil {
		return types.Money{}, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return types.Money{}, err
	}
	if rows == 0 {
		return types.Money{}, prepaid.ErrTransactionNotPending
	}

	_, err = s.sdb.NewUpdate((*accountModel)(nil)).
		Set("balance_cents = balance_cents - ?", t.Amount.Amount).
		Set("reserved_cents = reserved_cents - ?", t.Amount.Amount).
		Set("total_used_cents = total_used_cents + ?", t.Amount.Amount).
		Set("updated_at = ?", now()).
		Where("user_id = ?", t.UserID).
		Exec(ctx)
	if err != nil {
		return types.Money{}, err
	}

	return s.balance(ctx, t.UserID, t.Amount.Currency)
}

func (s *Store) RefundReservation(ctx context.Context, txnID id.TransactionID, reason string) (types.Money, error) {
	t, err := s.GetTransaction(ctx, txnID)
	if err != nil {
		return types.Money{}, err
	}

	description := t.Description
	if reason != "" {
		if description != "" {
			description += " — refunded: " + reason
		} else {
			description = "refunded: " + reason
		}
	}

	res, err := s.sdb.NewUpdate((*transactionModel)(nil)).
		Set("status = ?", string(txn.StatusRefunded)).
		Set("settled_at = ?", now()).
		Set("description = ?", description).
		Where("id = ?", txnID.String()).
		Where("status = ?", string(txn.StatusPending)).
		Exec(ctx)
	if err != nil {
		return types.Money{}, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return types.Money{}, err
	}
	if rows == 0 {
		return types.Money{}, prepaid.ErrTransactionNotPending
	}

	_, err = s.sdb.NewUpdate((*accountModel)(nil)).
		Set("reserved_cents = reserved_cents - ?", t.Amount.Amount).
		Set("updated_at = ?", now()).
		Where("user_id = ?", t.UserID).
		Exec(ctx)
	if err != nil {
		return types.Money{}, err
	}

	return s.balance(ctx, t.UserID, t.Amount.Currency)
}

// balance reads the current balance for a user.
func (s *Store) balance(ctx context.Context, userID, currency string) (types.Money, error) {
	a, err := s.GetAccount(ctx, userID)
	if err != nil {
		return types.Money{}, err
	}
	return types.Money{Amount: a.Balance.Amount, Currency: currency}, nil
}

// chargeDeclineReason reports why a conditional charge matched no account row.
func (s *Store) chargeDeclineReason(ctx context.Context, userID, currency string) error {
	a, err := s.GetAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, prepaid.ErrAccountNotFound) {
			return prepaid.ErrInsufficientBalance
		}
		return err
	}
	if a.Currency != currency {
		return prepaid.ErrCurrencyMismatch
	}
	return prepaid.ErrInsufficientBalance
}

// ==================== Transaction Store ====================

func (s *Store) GetTransaction(ctx context.Context, txnID id.TransactionID) (*txn.Transaction, error) {
	m := new(transactionModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", txnID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, prepaid.ErrTransactionNotFound
		}
		return nil, err
	}
	return fromTransactionModel(m)
}

func (s *Store) ListTransactions(ctx context.Context, userID string, opts txn.ListOpts) ([]*txn.Transaction, error) {
	var models []transactionModel
	q := s.sdb.NewSelect(&models).Where("user_id = ?", userID)

	if opts.Kind != "" {
		q = q.Where("kind = ?", string(opts.Kind))
	}
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	q = q.OrderExpr("created_at DESC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*txn.Transaction, 0, len(models))
	for i := range models {
		t, err := fromTransactionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, nil
}

// ==================== Job Store ====================

func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	m := toJobModel(j)
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	m := new(jobModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", jobID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, prepaid.ErrJobNotFound
		}
		return nil, err
	}
	return fromJobModel(m)
}

func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	j.UpdatedAt = now()
	m := toJobModel(j)
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return prepaid.ErrJobNotFound
	}
	return nil
}

func (s *Store) DeleteJob(ctx context.Context, jobID id.JobID) error {
	res, err := s.sdb.NewDelete((*jobModel)(nil)).
		Where("id = ?", jobID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return prepaid.ErrJobNotFound
	}
	return nil
}

func (s *Store) ListJobs(ctx context.Context, userID string, opts job.ListOpts) ([]*job.Job, error) {
	var models []jobModel
	q := s.sdb.NewSelect(&models).Where("user_id = ?", userID)

	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Type != "" {
		q = q.Where("type = ?", opts.Type)
	}
	q = q.OrderExpr("created_at DESC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*job.Job, 0, len(models))
	for i := range models {
		j, err := fromJobModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, j)
	}
	return result, nil
}

func (s *Store) ListReconciliation(ctx context.Context) ([]*job.Job, error) {
	var models []jobModel
	err := s.sdb.NewSelect(&models).
		Where("reconcile_needed = ?", true).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*job.Job, 0, len(models))
	for i := range models {
		j, err := fromJobModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, j)
	}
	return result, nil
}

// ==================== Job Type Store ====================

func (s *Store) CreateJobType(ctx context.Context, t *catalog.JobType) error {
	m := toJobTypeModel(t)
	_, err := s.sdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return prepaid.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (s *Store) GetJobType(ctx context.Context, key string) (*catalog.JobType, error) {
	m := new(jobTypeModel)
	err := s.sdb.NewSelect(m).
		Where("key = ?", key).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, prepaid.ErrJobTypeNotFound
		}
		return nil, err
	}
	return fromJobTypeModel(m)
}

func (s *Store) ListJobTypes(ctx context.Context, opts catalog.ListOpts) ([]*catalog.JobType, error) {
	var models []jobTypeModel
	q := s.sdb.NewSelect(&models)

	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	q = q.OrderExpr("key ASC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*catalog.JobType, 0, len(models))
	for i := range models {
		t, err := fromJobTypeModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, nil
}

func (s *Store) UpdateJobType(ctx context.Context, t *catalog.JobType) error {
	t.UpdatedAt = now()
	m := toJobTypeModel(t)
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return prepaid.ErrJobTypeNotFound
	}
	return nil
}

func (s *Store) ArchiveJobType(ctx context.Context, typeID id.JobTypeID) error {
	res, err := s.sdb.NewUpdate((*jobTypeModel)(nil)).
		Set("status = ?", string(catalog.StatusArchived)).
		Set("updated_at = ?", now()).
		Where("id = ?", typeID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return prepaid.ErrJobTypeNotFound
	}
	return nil
}

// ==================== Helpers ====================

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func now() time.Time {
	return time.Now().UTC()
}
