// Package mongo implements the Prepaid store on MongoDB via Grove ORM.
//
// The account document is the unit of atomicity: every ledger primitive is
// a single conditional update on one account document (using $expr to guard
// availability), so two racing reservations can never both pass the check.
// The transaction write follows the account mutation, with a compensating
// $inc if it fails.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	prepaid "github.com/xraph/prepaid"
	"github.com/xraph/prepaid/account"
	"github.com/xraph/prepaid/catalog"
	"github.com/xraph/prepaid/id"
	"github.com/xraph/prepaid/job"
	prepaidstore "github.com/xraph/prepaid/store"
	"github.com/xraph/prepaid/txn"
	"github.com/xraph/prepaid/types"
)

// Collection name constants.
const (
	colAccounts     = "prepaid_accounts"
	colTransactions = "prepaid_transactions"
	colJobs         = "prepaid_jobs"
	colJobTypes     = "prepaid_job_types"
)

// compile-time interface check
var _ prepaidstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all prepaid collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("prepaid/mongo: migrate %s indexes: %w", col, err)
		}
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
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return nil, fmt.Errorf("prepaid/mongo: ensure account: %w", err)
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
	var m accountModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": userID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, prepaid.ErrAccountNotFound
		}
		return nil, fmt.Errorf("prepaid/mongo: get account: %w", err)
	}
	return fromAccountModel(&m), nil
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

	res, err := s.mdb.NewUpdate((*accountModel)(nil)).
		Filter(bson.M{"_id": t.UserID, "currency": t.Amount.Currency}).
		SetUpdate(bson.M{
			"$inc": bson.M{
				"balance_cents":         t.Amount.Amount,
				"total_purchased_cents": purchasedDelta,
			},
			"$set": bson.M{"updated_at": now()},
		}).
		Exec(ctx)
	if err != nil {
		return types.Money{}, fmt.Errorf("prepaid/mongo: apply credit: %w", err)
	}
	if res.MatchedCount() == 0 {
		return types.Money{}, prepaid.ErrCurrencyMismatch
	}

	if _, err := s.mdb.NewInsert(toTransactionModel(t)).Exec(ctx); err != nil {
		s.compensate(ctx, t.UserID, bson.M{
			"balance_cents":         -t.Amount.Amount,
			"total_purchased_cents": -purchasedDelta,
		})
		return types.Money{}, fmt.Errorf("prepaid/mongo: record credit: %w", err)
	}

	return s.balance(ctx, t.UserID, t.Amount.Currency)
}

func (s *Store) ApplyDebit(ctx context.Context, t *txn.Transaction) (types.Money, error) {
	res, err := s.mdb.NewUpdate((*accountModel)(nil)).
		Filter(availableCoversFilter(t.UserID, t.Amount)).
		SetUpdate(bson.M{
			"$inc": bson.M{
				"balance_cents":    -t.Amount.Amount,
				"total_used_cents": t.Amount.Amount,
			},
			"$set": bson.M{"updated_at": now()},
		}).
		Exec(ctx)
	if err != nil {
		return types.Money{}, fmt.Errorf("prepaid/mongo: apply debit: %w", err)
	}
	if res.MatchedCount() == 0 {
		return types.Money{}, s.chargeDeclineReason(ctx, t.UserID, t.Amount.Currency)
	}

	if _, err := s.mdb.NewInsert(toTransactionModel(t)).Exec(ctx); err != nil {
		s.compensate(ctx, t.UserID, bson.M{
			"balance_cents":    t.Amount.Amount,
			"total_used_cents": -t.Amount.Amount,
		})
		return types.Money{}, fmt.Errorf("prepaid/mongo: record debit: %w", err)
	}

	return s.balance(ctx, t.UserID, t.Amount.Currency)
}

func (s *Store) Reserve(ctx context.Context, t *txn.Transaction) error {
	res, err := s.mdb.NewUpdate((*accountModel)(nil)).
		Filter(availableCoversFilter(t.UserID, t.Amount)).
		SetUpdate(bson.M{
			"$inc": bson.M{"reserved_cents": t.Amount.Amount},
			"$set": bson.M{"updated_at": now()},
		}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("prepaid/mongo: reserve: %w", err)
	}
	if res.MatchedCount() == 0 {
		return s.chargeDeclineReason(ctx, t.UserID, t.Amount.Currency)
	}

	if _, err := s.mdb.NewInsert(toTransactionModel(t)).Exec(ctx); err != nil {
		s.compensate(ctx, t.UserID, bson.M{"reserved_cents": -t.Amount.Amount})
		return fmt.Errorf("prepaid/mongo: record reservation: %w", err)
	}
	return nil
}

func (s *Store) ConfirmReservation(ctx context.Context, txnID id.TransactionID) (types.Money, error) {
	t, err := s.GetTransaction(ctx, txnID)
	if err != nil {
		return types.Money{}, err
	}

	// The status flip is the linearization point: only one settle wins it.
	settled := now()
	res, err := s.mdb.NewUpdate((*transactionModel)(nil)).
		Filter(bson.M{"_id": txnID.String(), "status": string(txn.StatusPending)}).
		SetUpdate(bson.M{"$set": bson.M{
			"status":     string(txn.StatusCompleted),
			"settled_at": settled,
		}}).
		Exec(ctx)
	if err != nil {
		return types.Money{}, fmt.Errorf("prepaid/mongo: confirm reservation: %w", err)
	}
	if res.MatchedCount() == 0 {
		return types.Money{}, prepaid.ErrTransactionNotPending
	}

	_, err = s.mdb.NewUpdate((*accountModel)(nil)).
		Filter(bson.M{"_id": t.UserID}).
		SetUpdate(bson.M{
			"$inc": bson.M{
				"balance_cents":    -t.Amount.Amount,
				"reserved_cents":   -t.Amount.Amount,
				"total_used_cents": t.Amount.Amount,
			},
			"$set": bson.M{"updated_at": settled},
		}).
		Exec(ctx)
	if err != nil {
		return types.Money{}, fmt.Errorf("prepaid/mongo: settle confirm: %w", err)
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

	settled := now()
	res, err := s.mdb.NewUpdate((*transactionModel)(nil)).
		Filter(bson.M{"_id": txnID.String(), "status": string(txn.StatusPending)}).
		SetUpdate(bson.M{"$set": bson.M{
			"status":      string(txn.StatusRefunded),
			"settled_at":  settled,
			"description": description,
		}}).
		Exec(ctx)
	if err != nil {
		return types.Money{}, fmt.Errorf("prepaid/mongo: refund reservation: %w", err)
	}
	if res.MatchedCount() == 0 {
		return types.Money{}, prepaid.ErrTransactionNotPending
	}

	_, err = s.mdb.NewUpdate((*accountModel)(nil)).
		Filter(bson.M{"_id": t.UserID}).
		SetUpdate(bson.M{
			"$inc": bson.M{"reserved_cents": -t.Amount.Amount},
			"$set": bson.M{"updated_at": settled},
		}).
		Exec(ctx)
	if err != nil {
		return types.Money{}, fmt.Errorf("prepaid/mongo: settle refund: %w", err)
	}

	return s.balance(ctx, t.UserID, t.Amount.Currency)
}

// availableCoversFilter matches the account when its available balance
// (balance minus outstanding holds) covers the amount.
func availableCoversFilter(userID string, amount types.Money) bson.M {
	return bson.M{
		"_id":      userID,
		"currency": amount.Currency,
		"$expr": bson.M{
			"$gte": bson.A{
				bson.M{"$subtract": bson.A{"$balance_cents", "$reserved_cents"}},
				amount.Amount,
			},
		},
	}
}

func (s *Store) balance(ctx context.Context, userID, currency string) (types.Money, error) {
	a, err := s.GetAccount(ctx, userID)
	if err != nil {
		return types.Money{}, err
	}
	return types.Money{Amount: a.Balance.Amount, Currency: currency}, nil
}

// compensate reverses an account mutation after a failed transaction write.
func (s *Store) compensate(ctx context.Context, userID string, inc bson.M) {
	//nolint:errcheck // best-effort rollback
	_, _ = s.mdb.NewUpdate((*accountModel)(nil)).
		Filter(bson.M{"_id": userID}).
		SetUpdate(bson.M{"$inc": inc}).
		Exec(ctx)
}

// chargeDeclineReason reports why a conditional charge matched no account document.
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
	var m transactionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": txnID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, prepaid.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("prepaid/mongo: get transaction: %w", err)
	}
	return fromTransactionModel(&m)
}

func (s *Store) ListTransactions(ctx context.Context, userID string, opts txn.ListOpts) ([]*txn.Transaction, error) {
	var models []transactionModel

	filter := bson.M{"user_id": userID}
	if opts.Kind != "" {
		filter["kind"] = string(opts.Kind)
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("prepaid/mongo: list transactions: %w", err)
	}

	result := make([]*txn.Transaction, len(models))
	for i := range models {
		t, err := fromTransactionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = t
	}
	return result, nil
}

// ==================== Job Store ====================

func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	m := toJobModel(j)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return prepaid.ErrAlreadyExists
		}
		return fmt.Errorf("prepaid/mongo: create job: %w", err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	var m jobModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": jobID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, prepaid.ErrJobNotFound
		}
		return nil, fmt.Errorf("prepaid/mongo: get job: %w", err)
	}
	return fromJobModel(&m)
}

func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	m := toJobModel(j)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("prepaid/mongo: update job: %w", err)
	}
	if res.MatchedCount() == 0 {
		return prepaid.ErrJobNotFound
	}
	return nil
}

func (s *Store) DeleteJob(ctx context.Context, jobID id.JobID) error {
	res, err := s.mdb.NewDelete((*jobModel)(nil)).
		Filter(bson.M{"_id": jobID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("prepaid/mongo: delete job: %w", err)
	}
	if res.DeletedCount() == 0 {
		return prepaid.ErrJobNotFound
	}
	return nil
}

func (s *Store) ListJobs(ctx context.Context, userID string, opts job.ListOpts) ([]*job.Job, error) {
	var models []jobModel

	filter := bson.M{"user_id": userID}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	if opts.Type != "" {
		filter["type"] = opts.Type
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("prepaid/mongo: list jobs: %w", err)
	}

	result := make([]*job.Job, len(models))
	for i := range models {
		j, err := fromJobModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = j
	}
	return result, nil
}

func (s *Store) ListReconciliation(ctx context.Context) ([]*job.Job, error) {
	var models []jobModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"reconcile_needed": true}).
		Sort(bson.D{{Key: "created_at", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepaid/mongo: list reconciliation: %w", err)
	}

	result := make([]*job.Job, len(models))
	for i := range models {
		j, err := fromJobModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = j
	}
	return result, nil
}

// ==================== Job Type Store ====================

func (s *Store) CreateJobType(ctx context.Context, t *catalog.JobType) error {
	m := toJobTypeModel(t)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return prepaid.ErrAlreadyExists
		}
		return fmt.Errorf("prepaid/mongo: create job type: %w", err)
	}
	return nil
}

func (s *Store) GetJobType(ctx context.Context, key string) (*catalog.JobType, error) {
	var m jobTypeModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"key": key}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, prepaid.ErrJobTypeNotFound
		}
		return nil, fmt.Errorf("prepaid/mongo: get job type: %w", err)
	}
	return fromJobTypeModel(&m)
}

func (s *Store) ListJobTypes(ctx context.Context, opts catalog.ListOpts) ([]*catalog.JobType, error) {
	var models []jobTypeModel

	filter := bson.M{}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "key", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("prepaid/mongo: list job types: %w", err)
	}

	result := make([]*catalog.JobType, len(models))
	for i := range models {
		t, err := fromJobTypeModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = t
	}
	return result, nil
}

func (s *Store) UpdateJobType(ctx context.Context, t *catalog.JobType) error {
	m := toJobTypeModel(t)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("prepaid/mongo: update job type: %w", err)
	}
	if res.MatchedCount() == 0 {
		return prepaid.ErrJobTypeNotFound
	}
	return nil
}

func (s *Store) ArchiveJobType(ctx context.Context, typeID id.JobTypeID) error {
	res, err := s.mdb.NewUpdate((*jobTypeModel)(nil)).
		Filter(bson.M{"_id": typeID.String()}).
		Set("status", string(catalog.StatusArchived)).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("prepaid/mongo: archive job type: %w", err)
	}
	if res.MatchedCount() == 0 {
		return prepaid.ErrJobTypeNotFound
	}
	return nil
}

// ==================== Helpers ====================

// migrationIndexes returns the index definitions for all prepaid collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colAccounts: {},
		colTransactions: {
			{
				Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
			},
			{
				Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "status", Value: 1}},
			},
		},
		colJobs: {
			{
				Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
			},
			{
				Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "status", Value: 1}},
			},
			{
				Keys: bson.D{{Key: "reconcile_needed", Value: 1}},
			},
		},
		colJobTypes: {
			{
				Keys:    bson.D{{Key: "key", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys: bson.D{{Key: "status", Value: 1}},
			},
		},
	}
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

func now() time.Time {
	return time.Now().UTC()
}
