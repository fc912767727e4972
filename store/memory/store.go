// Package memory provides an in-memory store implementation, suitable for
// tests and development. All ledger primitives execute under a single lock,
// which makes them trivially atomic.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/prepaid"
	"github.com/xraph/prepaid/account"
	"github.com/xraph/prepaid/catalog"
	"github.com/xraph/prepaid/id"
	"github.com/xraph/prepaid/job"
	"github.com/xraph/prepaid/txn"
	"github.com/xraph/prepaid/types"
)

type Store struct {
	mu sync.RWMutex

	// Account storage, keyed by user ID
	accounts map[string]*account.Account

	// Transaction storage
	transactions map[string]*txn.Transaction

	// Job storage
	jobs map[string]*job.Job

	// Job type storage, keyed by catalog key
	jobTypes map[string]*catalog.JobType
}

func New() *Store {
	return &Store{
		accounts:     make(map[string]*account.Account),
		transactions: make(map[string]*txn.Transaction),
		jobs:         make(map[string]*job.Job),
		jobTypes:     make(map[string]*catalog.JobType),
	}
}

// Account Store implementation

func (s *Store) EnsureAccount(_ context.Context, userID, currency string) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.ensureAccountLocked(userID, currency)
	if err != nil {
		return nil, err
	}
	return cloneAccount(a), nil
}

func (s *Store) GetAccount(_ context.Context, userID string) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[userID]
	if !ok {
		return nil, prepaid.ErrAccountNotFound
	}
	return cloneAccount(a), nil
}

// ensureAccountLocked returns the live account for userID, creating it with
// the given currency when absent. Caller must hold the write lock.
func (s *Store) ensureAccountLocked(userID, currency string) (*account.Account, error) {
	if a, ok := s.accounts[userID]; ok {
		if currency != "" && a.Currency != currency {
			return nil, prepaid.ErrCurrencyMismatch
		}
		return a, nil
	}
	a := account.New(userID, currency)
	s.accounts[userID] = a
	return a, nil
}

// Ledger primitives

func (s *Store) ApplyCredit(_ context.Context, t *txn.Transaction) (types.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.ensureAccountLocked(t.UserID, t.Amount.Currency)
	if err != nil {
		return types.Money{}, err
	}
	if t.Amount.Currency != a.Currency {
		return types.Money{}, prepaid.ErrCurrencyMismatch
	}

	a.Balance = a.Balance.Add(t.Amount)
	if t.Kind == txn.KindPurchase {
		a.TotalPurchased = a.TotalPurchased.Add(t.Amount)
	}
	a.Touch()

	s.transactions[t.ID.String()] = cloneTransaction(t)
	return a.Balance, nil
}

func (s *Store) ApplyDebit(_ context.Context, t *txn.Transaction) (types.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[t.UserID]
	if !ok {
		return types.Money{}, prepaid.ErrInsufficientBalance
	}
	if t.Amount.Currency != a.Currency {
		return types.Money{}, prepaid.ErrCurrencyMismatch
	}
	if !a.Available().Covers(t.Amount) {
		return types.Money{}, prepaid.ErrInsufficientBalance
	}

	a.Balance = a.Balance.Subtract(t.Amount)
	a.TotalUsed = a.TotalUsed.Add(t.Amount)
	a.Touch()

	s.transactions[t.ID.String()] = cloneTransaction(t)
	return a.Balance, nil
}

func (s *Store) Reserve(_ context.Context, t *txn.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[t.UserID]
	if !ok {
		return prepaid.ErrInsufficientBalance
	}
	if t.Amount.Currency != a.Currency {
		return prepaid.ErrCurrencyMismatch
	}
	if !a.Available().Covers(t.Amount) {
		return prepaid.ErrInsufficientBalance
	}

	a.Reserved = a.Reserved.Add(t.Amount)
	a.Touch()

	s.transactions[t.ID.String()] = cloneTransaction(t)
	return nil
}

func (s *Store) ConfirmReservation(_ context.Context, txnID id.TransactionID) (types.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transactions[txnID.String()]
	if !ok {
		return types.Money{}, prepaid.ErrTransactionNotFound
	}
	if t.Status != txn.StatusPending {
		return types.Money{}, prepaid.ErrTransactionNotPending
	}
	a, ok := s.accounts[t.UserID]
	if !ok {
		return types.Money{}, prepaid.ErrAccountNotFound
	}

	a.Balance = a.Balance.Subtract(t.Amount)
	a.Reserved = a.Reserved.Subtract(t.Amount)
	a.TotalUsed = a.TotalUsed.Add(t.Amount)
	a.Touch()

	now := time.Now().UTC()
	t.Status = txn.StatusCompleted
	t.SettledAt = &now
	return a.Balance, nil
}

func (s *Store) RefundReservation(_ context.Context, txnID id.TransactionID, reason string) (types.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transactions[txnID.String()]
	if !ok {
		return types.Money{}, prepaid.ErrTransactionNotFound
	}
	if t.Status != txn.StatusPending {
		return types.Money{}, prepaid.ErrTransactionNotPending
	}
	a, ok := s.accounts[t.UserID]
	if !ok {
		return types.Money{}, prepaid.ErrAccountNotFound
	}

	a.Reserved = a.Reserved.Subtract(t.Amount)
	a.Touch()

	now := time.Now().UTC()
	t.Status = txn.StatusRefunded
	t.SettledAt = &now
	if reason != "" {
		if t.Description != "" {
			t.Description += " — refunded: " + reason
		} else {
			t.Description = "refunded: " + reason
		}
	}
	return a.Balance, nil
}

// Transaction Store implementation

func (s *Store) GetTransaction(_ context.Context, txnID id.TransactionID) (*txn.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.transactions[txnID.String()]
	if !ok {
		return nil, prepaid.ErrTransactionNotFound
	}
	return cloneTransaction(t), nil
}

func (s *Store) ListTransactions(_ context.Context, userID string, opts txn.ListOpts) ([]*txn.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*txn.Transaction
	for _, t := range s.transactions {
		if t.UserID != userID {
			continue
		}
		if opts.Kind != "" && t.Kind != opts.Kind {
			continue
		}
		if opts.Status != "" && t.Status != opts.Status {
			continue
		}
		result = append(result, cloneTransaction(t))
	}

	// Newest first
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return paginate(result, opts.Offset, opts.Limit), nil
}

// Job Store implementation

func (s *Store) CreateJob(_ context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[j.ID.String()]; exists {
		return prepaid.ErrAlreadyExists
	}
	s.jobs[j.ID.String()] = cloneJob(j)
	return nil
}

func (s *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[jobID.String()]
	if !ok {
		return nil, prepaid.ErrJobNotFound
	}
	return cloneJob(j), nil
}

func (s *Store) UpdateJob(_ context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[j.ID.String()]; !ok {
		return prepaid.ErrJobNotFound
	}
	j.Touch()
	s.jobs[j.ID.String()] = cloneJob(j)
	return nil
}

func (s *Store) DeleteJob(_ context.Context, jobID id.JobID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[jobID.String()]; !ok {
		return prepaid.ErrJobNotFound
	}
	delete(s.jobs, jobID.String())
	return nil
}

func (s *Store) ListJobs(_ context.Context, userID string, opts job.ListOpts) ([]*job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*job.Job
	for _, j := range s.jobs {
		if j.UserID != userID {
			continue
		}
		if opts.Status != "" && j.Status != opts.Status {
			continue
		}
		if opts.Type != "" && j.Type != opts.Type {
			continue
		}
		result = append(result, cloneJob(j))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) ListReconciliation(_ context.Context) ([]*job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*job.Job
	for _, j := range s.jobs {
		if j.ReconcileNeeded {
			result = append(result, cloneJob(j))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// Job Type Store implementation

func (s *Store) CreateJobType(_ context.Context, t *catalog.JobType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobTypes[t.Key]; exists {
		return prepaid.ErrAlreadyExists
	}
	s.jobTypes[t.Key] = cloneJobType(t)
	return nil
}

func (s *Store) GetJobType(_ context.Context, key string) (*catalog.JobType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.jobTypes[key]
	if !ok {
		return nil, prepaid.ErrJobTypeNotFound
	}
	return cloneJobType(t), nil
}

func (s *Store) ListJobTypes(_ context.Context, opts catalog.ListOpts) ([]*catalog.JobType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*catalog.JobType
	for _, t := range s.jobTypes {
		if opts.Status != "" && t.Status != opts.Status {
			continue
		}
		result = append(result, cloneJobType(t))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Key < result[j].Key
	})
	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateJobType(_ context.Context, t *catalog.JobType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.jobTypes[t.Key]
	if !ok {
		return prepaid.ErrJobTypeNotFound
	}
	if existing.ID != t.ID {
		return prepaid.ErrJobTypeNotFound
	}
	t.Touch()
	s.jobTypes[t.Key] = cloneJobType(t)
	return nil
}

func (s *Store) ArchiveJobType(_ context.Context, typeID id.JobTypeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.jobTypes {
		if t.ID == typeID {
			t.Status = catalog.StatusArchived
			t.Touch()
			return nil
		}
	}
	return prepaid.ErrJobTypeNotFound
}

// Core methods

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// Helpers

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func cloneAccount(a *account.Account) *account.Account {
	cp := *a
	return &cp
}

func cloneTransaction(t *txn.Transaction) *txn.Transaction {
	cp := *t
	if t.Metadata != nil {
		cp.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			cp.Metadata[k] = v
		}
	}
	if t.SettledAt != nil {
		settled := *t.SettledAt
		cp.SettledAt = &settled
	}
	return &cp
}

func cloneJob(j *job.Job) *job.Job {
	cp := *j
	cp.Input = append([]byte(nil), j.Input...)
	cp.Result = append([]byte(nil), j.Result...)
	return &cp
}

func cloneJobType(t *catalog.JobType) *catalog.JobType {
	cp := *t
	cp.RequiredFields = append([]string(nil), t.RequiredFields...)
	if t.Metadata != nil {
		cp.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
