// Package postgres implements the Prepaid store on PostgreSQL via Grove ORM.
//
// Every ledger primitive is a single writable-CTE statement, so the
// availability check, the account mutation and the transaction write commit
// or reject as one unit without an explicit transaction block.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
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

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("prepaid/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("prepaid/postgres: migration failed: %w", err)
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
	_, err := s.pg.NewInsert(m).
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
	err := s.pg.NewSelect(m).
		Where("user_id = $1", userID).
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

// ApplyCredit upserts the account and appends the completed entry in one
// statement. The conflict update is guarded on currency, so a mismatched
// credit produces zero rows instead of corrupting the account.
func (s *Store) ApplyCredit(ctx context.Context, t *txn.Transaction) (types.Money, error) {
	purchasedDelta := int64(0)
	if t.Kind == txn.KindPurchase {
		purchasedDelta = t.Amount.Amount
	}

	var balance int64
	err := s.pg.NewRaw(`
WITH acct AS (
    INSERT INTO prepaid_accounts (user_id, currency, balance_cents, reserved_cents, total_purchased_cents, total_used_cents)
    VALUES ($1, $2, $3, 0, $4, 0)
    ON CONFLICT (user_id) DO UPDATE SET
        balance_cents = prepaid_accounts.balance_cents + $3,
        total_purchased_cents = prepaid_accounts.total_purchased_cents + $4,
        updated_at = NOW()
    WHERE prepaid_accounts.currency = $2
    RETURNING balance_cents
), entry AS (
    INSERT INTO prepaid_transactions (id, user_id, kind, amount_cents, currency, status, description, reference_id, metadata, created_at)
    SELECT $5, $1, $6, $3, $2, $7, $8, $9, $10::jsonb, $11 FROM acct
)
SELECT balance_cents FROM acct
`,
		t.UserID, t.Amount.Currency, t.Amount.Amount, purchasedDelta,
		t.ID.String(), string(t.Kind), string(t.Status),
		t.Description, t.ReferenceID, metadataJSON(t.Metadata), t.CreatedAt,
	).Scan(ctx, &balance)
	if err != nil {
		if isNoRows(err) {
			return types.Money{}, prepaid.ErrCurrencyMismatch
		}
		return types.Money{}, err
	}
	return types.Money{Amount: balance, Currency: t.Amount.Currency}, nil
}

// ApplyDebit charges an account when its available balance covers the
// amount. The conditional UPDATE is the concurrency guard: a racing debit
// that would overdraw simply matches zero rows.
func (s *Store) ApplyDebit(ctx context.Context, t *txn.Transaction) (types.Money, error) {
	var balance int64
	err := s.pg.NewRaw(`
WITH acct AS (
    UPDATE prepaid_accounts SET
        balance_cents = balance_cents - $2,
        total_used_cents = total_used_cents + $2,
        updated_at = NOW()
    WHERE user_id = $1 AND currency = $3 AND balance_cents - reserved_cents >= $2
    RETURNING balance_cents
), entry AS (
    INSERT INTO prepaid_transactions (id, user_id, kind, amount_cents, currency, status, description, reference_id, metadata, created_at)
    SELECT $4, $1, $5, $2, $3, $6, $7, $8, $9::jsonb, $10 FROM acct
)
SELECT balance_cents FROM acct
`,
		t.UserID, t.Amount.Amount, t.Amount.Currency,
		t.ID.String(), string(t.Kind), string(t.Status),
		t.Description, t.ReferenceID, metadataJSON(t.Metadata), t.CreatedAt,
	).Scan(ctx, &balance)
	if err != nil {
		if isNoRows(err) {
			return types.Money{}, s.chargeDeclineReason(ctx, t.UserID, t.Amount.Currency)
		}
		return types.Money{}, err
	}
	return types.Money{Amount: balance, Currency: t.Amount.Currency}, nil
}

// Reserve places a hold and appends the pending entry in one statement.
// Two racing reservations for the same user serialize on the account row,
// so they can never both pass the availability check.
func (s *Store) Reserve(ctx context.Context, t *txn.Transaction) error {
	var balance int64
	err := s.pg.NewRaw(`
WITH acct AS (
    UPDATE prepaid_accounts SET
        reserved_cents = reserved_cents + $2,
        updated_at = NOW()
    WHERE user_id = $1 AND currency = $3 AND balance_cents - reserved_cents >= $2
    RETURNING balance_cents
), entry AS (
    INSERT INTO prepaid_transactions (id, user_id, kind, amount_cents, currency, status, description, reference_id, metadata, created_at)
    SELECT $4, $1, $5, $2, $3, $6, $7, $8, $9::jsonb, $10 FROM acct
)
SELECT balance_cents FROM acct
`,
		t.UserID, t.Amount.Amount, t.Amount.Currency,
		t.ID.String(), string(t.Kind), string(t.Status),
		t.Description, t.ReferenceID, metadataJSON(t.Metadata), t.CreatedAt,
	).Scan(ctx, &balance)
	if err != nil {
		if isNoRows(err) {
			return s.chargeDeclineReason(ctx, t.UserID, t.Amount.Currency)
		}
		return err
	}
	return nil
}

func (s *Store) ConfirmReservation(ctx context.Context, txnID id.TransactionID) (types.Money, error) {
	var balance int64
	err := s.pg.NewRaw(`
WITH entry AS (
    UPDATE prepaid_transactions SET
        status = 'completed',
        settled_at = NOW()
    WHERE id = $1 AND status = 'pending'
    RETURNING user_id, amount_cents
), acct AS (
    UPDATE prepaid_accounts a SET
        balance_cents = a.balance_cents - entry.amount_cents,
        reserved_cents = a.reserved_cents - entry.amount_cents,
        total_used_cents = a.total_used_cents + entry.amount_cents,
        updated_at = NOW()
    FROM entry
    WHERE a.user_id = entry.user_id
    RETURNING a.balance_cents
)
SELECT balance_cents FROM acct
`, txnID.String()).Scan(ctx, &balance)
	if err != nil {
		if isNoRows(err) {
			return types.Money{}, s.settleDeclineReason(ctx, txnID)
		}
		return types.Money{}, err
	}

	t, err := s.GetTransaction(ctx, txnID)
	if err != nil {
		return types.Money{}, err
	}
	return types.Money{Amount: balance, Currency: t.Amount.Currency}, nil
}

func (s *Store) RefundReservation(ctx context.Context, txnID id.TransactionID, reason string) (types.Money, error) {
	var balance int64
	err := s.pg.NewRaw(`
WITH entry AS (
    UPDATE prepaid_transactions SET
        status = 'refunded',
        settled_at = NOW(),
        description = CASE
            WHEN $2 = '' THEN description
            WHEN description = '' THEN 'refunded: ' || $2
            ELSE description || ' — refunded: ' || $2
        END
    WHERE id = $1 AND status = 'pending'
    RETURNING user_id, amount_cents
), acct AS (
    UPDATE prepaid_accounts a SET
        reserved_cents = a.reserved_cents - entry.amount_cents,
        updated_at = NOW()
    FROM entry
    WHERE a.user_id = entry.user_id
    RETURNING a.balance_cents
)
SELECT balance_cents FROM acct
`, txnID.String(), reason).Scan(ctx, &balance)
	if err != nil {
		if isNoRows(err) {
			return types.Money{}, s.settleDeclineReason(ctx, txnID)
		}
		return types.Money{}, err
	}

	t, err := s.GetTransaction(ctx, txnID)
	if err != nil {
		return types.Money{}, err
	}
	return types.Money{Amount: balance, Currency: t.Amount.Currency}, nil
}

// chargeDeclineReason reports why a conditional charge matched no account
// row: a missing account and a short balance both decline, a currency
// mismatch is its own error.
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

// settleDeclineReason reports why a settlement matched no pending entry.
func (s *Store) settleDeclineReason(ctx context.Context, txnID id.TransactionID) error {
	if _, err := s.GetTransaction(ctx, txnID); err != nil {
		return err
	}
	return prepaid.ErrTransactionNotPending
}

// ==================== Transaction Store ====================

func (s *Store) GetTransaction(ctx context.Context, txnID id.TransactionID) (*txn.Transaction, error) {
	m := new(transactionModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", txnID.String()).
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
	q := s.pg.NewSelect(&models).Where("user_id = $1", userID)

	argIdx := 1
	if opts.Kind != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("kind = $%d", argIdx), string(opts.Kind))
	}
	if opts.Status != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("status = $%d", argIdx), string(opts.Status))
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
	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	m := new(jobModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", jobID.String()).
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
	res, err := s.pg.NewUpdate(m).WherePK().Exec(ctx)
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
	res, err := s.pg.NewDelete((*jobModel)(nil)).
		Where("id = $1", jobID.String()).
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
	q := s.pg.NewSelect(&models).Where("user_id = $1", userID)

	argIdx := 1
	if opts.Status != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("status = $%d", argIdx), string(opts.Status))
	}
	if opts.Type != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("type = $%d", argIdx), opts.Type)
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
	err := s.pg.NewSelect(&models).
		Where("reconcile_needed = $1", true).
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
	_, err := s.pg.NewInsert(m).Exec(ctx)
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
	err := s.pg.NewSelect(m).
		Where("key = $1", key).
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
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.Status != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("status = $%d", argIdx), string(opts.Status))
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
	res, err := s.pg.NewUpdate(m).WherePK().Exec(ctx)
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
	t := now()
	res, err := s.pg.NewUpdate((*jobTypeModel)(nil)).
		Set("status = $1", string(catalog.StatusArchived)).
		Set("updated_at = $2", t).
		Where("id = $3", typeID.String()).
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
	if err == nil {
		return false
	}
	// pgx surfaces SQLSTATE in the error string; 23505 is unique_violation.
	return containsSQLState(err.Error(), "23505")
}

func containsSQLState(msg, code string) bool {
	for i := 0; i+len(code) <= len(msg); i++ {
		if msg[i:i+len(code)] == code {
			return true
		}
	}
	return false
}

func metadataJSON(m map[string]string) string {
	if len(m) == 0 {
		return "{}"
	}
	b, _ := json.Marshal(m) //nolint:errcheck // best-effort
	return string(b)
}

func now() time.Time {
	return time.Now().UTC()
}
