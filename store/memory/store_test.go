package memory_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	prepaid "github.com/xraph/prepaid"
	"github.com/xraph/prepaid/catalog"
	"github.com/xraph/prepaid/id"
	"github.com/xraph/prepaid/job"
	"github.com/xraph/prepaid/store/memory"
	"github.com/xraph/prepaid/txn"
	"github.com/xraph/prepaid/types"
)

func newTxn(userID string, kind txn.Kind, amount types.Money, status txn.Status) *txn.Transaction {
	return &txn.Transaction{
		ID:        id.NewTransactionID(),
		UserID:    userID,
		Kind:      kind,
		Amount:    amount,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
}

func TestEnsureAccount(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	a, err := s.EnsureAccount(ctx, "user_1", "usd")
	if err != nil {
		t.Fatalf("EnsureAccount failed: %v", err)
	}
	if a.UserID != "user_1" || a.Currency != "usd" {
		t.Errorf("unexpected account: %+v", a)
	}
	if !a.Balance.IsZero() || !a.Reserved.IsZero() {
		t.Errorf("new account should start at zero, got %+v", a)
	}

	// Idempotent.
	again, err := s.EnsureAccount(ctx, "user_1", "usd")
	if err != nil {
		t.Fatalf("second EnsureAccount failed: %v", err)
	}
	if !again.Balance.Equal(a.Balance) {
		t.Errorf("balance changed on repeat ensure: %v", again.Balance)
	}

	// Conflicting currency is an error.
	if _, err := s.EnsureAccount(ctx, "user_1", "eur"); !errors.Is(err, prepaid.ErrCurrencyMismatch) {
		t.Errorf("expected ErrCurrencyMismatch, got %v", err)
	}
}

func TestGetAccountNotFound(t *testing.T) {
	s := memory.New()
	if _, err := s.GetAccount(context.Background(), "ghost"); !errors.Is(err, prepaid.ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestApplyCreditAndDebit(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	balance, err := s.ApplyCredit(ctx, newTxn("user_1", txn.KindPurchase, types.USD(1000), txn.StatusCompleted))
	if err != nil {
		t.Fatalf("ApplyCredit failed: %v", err)
	}
	if !balance.Equal(types.USD(1000)) {
		t.Errorf("balance after credit: got %v, want $10.00", balance)
	}

	balance, err = s.ApplyDebit(ctx, newTxn("user_1", txn.KindUsage, types.USD(300), txn.StatusCompleted))
	if err != nil {
		t.Fatalf("ApplyDebit failed: %v", err)
	}
	if !balance.Equal(types.USD(700)) {
		t.Errorf("balance after debit: got %v, want $7.00", balance)
	}

	a, err := s.GetAccount(ctx, "user_1")
	if err != nil {
		t.Fatal(err)
	}
	if !a.TotalPurchased.Equal(types.USD(1000)) {
		t.Errorf("TotalPurchased: got %v, want $10.00", a.TotalPurchased)
	}
	if !a.TotalUsed.Equal(types.USD(300)) {
		t.Errorf("TotalUsed: got %v, want $3.00", a.TotalUsed)
	}
}

func TestRefundCreditDoesNotCountAsPurchase(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	if _, err := s.ApplyCredit(ctx, newTxn("user_1", txn.KindPurchase, types.USD(500), txn.StatusCompleted)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ApplyCredit(ctx, newTxn("user_1", txn.KindRefund, types.USD(200), txn.StatusCompleted)); err != nil {
		t.Fatal(err)
	}

	a, err := s.GetAccount(ctx, "user_1")
	if err != nil {
		t.Fatal(err)
	}
	if !a.Balance.Equal(types.USD(700)) {
		t.Errorf("Balance: got %v, want $7.00", a.Balance)
	}
	if !a.TotalPurchased.Equal(types.USD(500)) {
		t.Errorf("TotalPurchased should exclude refunds: got %v, want $5.00", a.TotalPurchased)
	}
}

func TestDebitInsufficientBalance(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	// No account at all.
	if _, err := s.ApplyDebit(ctx, newTxn("ghost", txn.KindUsage, types.USD(100), txn.StatusCompleted)); !errors.Is(err, prepaid.ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}

	if _, err := s.ApplyCredit(ctx, newTxn("user_1", txn.KindPurchase, types.USD(100), txn.StatusCompleted)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ApplyDebit(ctx, newTxn("user_1", txn.KindUsage, types.USD(200), txn.StatusCompleted)); !errors.Is(err, prepaid.ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}

	// The declined debit left no trace.
	a, err := s.GetAccount(ctx, "user_1")
	if err != nil {
		t.Fatal(err)
	}
	if !a.Balance.Equal(types.USD(100)) {
		t.Errorf("balance changed by declined debit: %v", a.Balance)
	}
}

func TestReserveConfirm(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	if _, err := s.ApplyCredit(ctx, newTxn("user_1", txn.KindPurchase, types.USD(1000), txn.StatusCompleted)); err != nil {
		t.Fatal(err)
	}

	hold := newTxn("user_1", txn.KindUsage, types.USD(400), txn.StatusPending)
	if err := s.Reserve(ctx, hold); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}

	// The hold moves reserved, not balance.
	a, err := s.GetAccount(ctx, "user_1")
	if err != nil {
		t.Fatal(err)
	}
	if !a.Balance.Equal(types.USD(1000)) {
		t.Errorf("balance moved at reserve time: %v", a.Balance)
	}
	if !a.Reserved.Equal(types.USD(400)) {
		t.Errorf("Reserved: got %v, want $4.00", a.Reserved)
	}
	if !a.Available().Equal(types.USD(600)) {
		t.Errorf("Available: got %v, want $6.00", a.Available())
	}

	balance, err := s.ConfirmReservation(ctx, hold.ID)
	if err != nil {
		t.Fatalf("ConfirmReservation failed: %v", err)
	}
	if !balance.Equal(types.USD(600)) {
		t.Errorf("balance after confirm: got %v, want $6.00", balance)
	}

	a, err = s.GetAccount(ctx, "user_1")
	if err != nil {
		t.Fatal(err)
	}
	if !a.Reserved.IsZero() {
		t.Errorf("Reserved after confirm: got %v, want zero", a.Reserved)
	}
	if !a.TotalUsed.Equal(types.USD(400)) {
		t.Errorf("TotalUsed after confirm: got %v, want $4.00", a.TotalUsed)
	}

	settled, err := s.GetTransaction(ctx, hold.ID)
	if err != nil {
		t.Fatal(err)
	}
	if settled.Status != txn.StatusCompleted {
		t.Errorf("transaction status: got %s, want completed", settled.Status)
	}
	if settled.SettledAt == nil {
		t.Error("SettledAt not set on confirm")
	}
}

func TestReserveRefund(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	if _, err := s.ApplyCredit(ctx, newTxn("user_1", txn.KindPurchase, types.USD(1000), txn.StatusCompleted)); err != nil {
		t.Fatal(err)
	}

	hold := newTxn("user_1", txn.KindUsage, types.USD(400), txn.StatusPending)
	hold.Description = "analysis: sentiment"
	if err := s.Reserve(ctx, hold); err != nil {
		t.Fatal(err)
	}

	balance, err := s.RefundReservation(ctx, hold.ID, "handler timed out")
	if err != nil {
		t.Fatalf("RefundReservation failed: %v", err)
	}
	if !balance.Equal(types.USD(1000)) {
		t.Errorf("balance after refund: got %v, want $10.00", balance)
	}

	a, err := s.GetAccount(ctx, "user_1")
	if err != nil {
		t.Fatal(err)
	}
	if !a.Reserved.IsZero() {
		t.Errorf("Reserved after refund: got %v, want zero", a.Reserved)
	}
	if !a.TotalUsed.IsZero() {
		t.Errorf("TotalUsed after refund: got %v, want zero", a.TotalUsed)
	}

	released, err := s.GetTransaction(ctx, hold.ID)
	if err != nil {
		t.Fatal(err)
	}
	if released.Status != txn.StatusRefunded {
		t.Errorf("transaction status: got %s, want refunded", released.Status)
	}
	if !strings.Contains(released.Description, "refunded: handler timed out") {
		t.Errorf("refund reason not appended: %q", released.Description)
	}
}

func TestReserveDeclinedAgainstHolds(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	if _, err := s.ApplyCredit(ctx, newTxn("user_1", txn.KindPurchase, types.USD(500), txn.StatusCompleted)); err != nil {
		t.Fatal(err)
	}

	first := newTxn("user_1", txn.KindUsage, types.USD(400), txn.StatusPending)
	if err := s.Reserve(ctx, first); err != nil {
		t.Fatalf("first reserve failed: %v", err)
	}

	// Balance is still $5.00 but only $1.00 is uncommitted.
	second := newTxn("user_1", txn.KindUsage, types.USD(200), txn.StatusPending)
	if err := s.Reserve(ctx, second); !errors.Is(err, prepaid.ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}

	// Declined reserve leaves no entry.
	if _, err := s.GetTransaction(ctx, second.ID); !errors.Is(err, prepaid.ErrTransactionNotFound) {
		t.Errorf("declined reservation left an entry behind: %v", err)
	}
}

func TestSettleAtMostOnce(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	if _, err := s.ApplyCredit(ctx, newTxn("user_1", txn.KindPurchase, types.USD(1000), txn.StatusCompleted)); err != nil {
		t.Fatal(err)
	}

	hold := newTxn("user_1", txn.KindUsage, types.USD(300), txn.StatusPending)
	if err := s.Reserve(ctx, hold); err != nil {
		t.Fatal(err)
	}

	if _, err := s.ConfirmReservation(ctx, hold.ID); err != nil {
		t.Fatal(err)
	}

	// Second confirm and a late refund must both refuse.
	if _, err := s.ConfirmReservation(ctx, hold.ID); !errors.Is(err, prepaid.ErrTransactionNotPending) {
		t.Errorf("double confirm: expected ErrTransactionNotPending, got %v", err)
	}
	if _, err := s.RefundReservation(ctx, hold.ID, "late"); !errors.Is(err, prepaid.ErrTransactionNotPending) {
		t.Errorf("refund after confirm: expected ErrTransactionNotPending, got %v", err)
	}

	// Balance dropped exactly once.
	a, err := s.GetAccount(ctx, "user_1")
	if err != nil {
		t.Fatal(err)
	}
	if !a.Balance.Equal(types.USD(700)) {
		t.Errorf("balance: got %v, want $7.00", a.Balance)
	}
}

func TestSettleUnknownTransaction(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	if _, err := s.ConfirmReservation(ctx, id.NewTransactionID()); !errors.Is(err, prepaid.ErrTransactionNotFound) {
		t.Errorf("expected ErrTransactionNotFound, got %v", err)
	}
	if _, err := s.RefundReservation(ctx, id.NewTransactionID(), ""); !errors.Is(err, prepaid.ErrTransactionNotFound) {
		t.Errorf("expected ErrTransactionNotFound, got %v", err)
	}
}

func TestConcurrentReservesNeverOverdraw(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	if _, err := s.ApplyCredit(ctx, newTxn("user_1", txn.KindPurchase, types.USD(1000), txn.StatusCompleted)); err != nil {
		t.Fatal(err)
	}

	const workers = 20
	var wg sync.WaitGroup
	var accepted sync.Map

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			hold := newTxn("user_1", txn.KindUsage, types.USD(300), txn.StatusPending)
			if err := s.Reserve(ctx, hold); err == nil {
				accepted.Store(n, hold.ID)
			}
		}(i)
	}
	wg.Wait()

	count := 0
	accepted.Range(func(_, _ any) bool {
		count++
		return true
	})

	// $10.00 of balance covers at most three $3.00 holds.
	if count > 3 {
		t.Errorf("accepted %d reservations, balance only covers 3", count)
	}

	a, err := s.GetAccount(ctx, "user_1")
	if err != nil {
		t.Fatal(err)
	}
	if a.Reserved.Amount > a.Balance.Amount {
		t.Errorf("reserved %v exceeds balance %v", a.Reserved, a.Balance)
	}
}

func TestListTransactions(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		entry := newTxn("user_1", txn.KindPurchase, types.USD(100), txn.StatusCompleted)
		entry.CreatedAt = base.Add(time.Duration(i) * time.Second)
		if _, err := s.ApplyCredit(ctx, entry); err != nil {
			t.Fatal(err)
		}
	}
	// Another user's entry must not leak in.
	if _, err := s.ApplyCredit(ctx, newTxn("user_2", txn.KindPurchase, types.USD(100), txn.StatusCompleted)); err != nil {
		t.Fatal(err)
	}

	all, err := s.ListTransactions(ctx, "user_1", txn.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 5 {
		t.Fatalf("got %d transactions, want 5", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAt.After(all[i-1].CreatedAt) {
			t.Error("transactions not sorted newest first")
		}
	}

	page, err := s.ListTransactions(ctx, "user_1", txn.ListOpts{Offset: 2, Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 {
		t.Errorf("got %d transactions, want 2", len(page))
	}

	byStatus, err := s.ListTransactions(ctx, "user_1", txn.ListOpts{Status: txn.StatusPending})
	if err != nil {
		t.Fatal(err)
	}
	if len(byStatus) != 0 {
		t.Errorf("got %d pending transactions, want 0", len(byStatus))
	}
}

func TestJobLifecycle(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	j := &job.Job{
		ID:           id.NewJobID(),
		UserID:       "user_1",
		Type:         "sentiment",
		Status:       job.StatusPending,
		RefundStatus: job.RefundNone,
	}
	j.Entity = types.NewEntity()

	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if err := s.CreateJob(ctx, j); !errors.Is(err, prepaid.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}

	j.Status = job.StatusCompleted
	if err := s.UpdateJob(ctx, j); err != nil {
		t.Fatalf("UpdateJob failed: %v", err)
	}

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != job.StatusCompleted {
		t.Errorf("status: got %s, want completed", got.Status)
	}

	if err := s.DeleteJob(ctx, j.ID); err != nil {
		t.Fatalf("DeleteJob failed: %v", err)
	}
	if _, err := s.GetJob(ctx, j.ID); !errors.Is(err, prepaid.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound after delete, got %v", err)
	}
	if err := s.DeleteJob(ctx, j.ID); !errors.Is(err, prepaid.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound on double delete, got %v", err)
	}
}

func TestListReconciliation(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		j := &job.Job{
			ID:              id.NewJobID(),
			UserID:          "user_1",
			Type:            "sentiment",
			Status:          job.StatusCompleted,
			ReconcileNeeded: i != 1, // middle one is clean
		}
		j.Entity = types.NewEntity()
		j.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := s.CreateJob(ctx, j); err != nil {
			t.Fatal(err)
		}
	}

	gaps, err := s.ListReconciliation(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(gaps) != 2 {
		t.Fatalf("got %d reconciliation jobs, want 2", len(gaps))
	}
	// Oldest first.
	if gaps[0].CreatedAt.After(gaps[1].CreatedAt) {
		t.Error("reconciliation jobs not sorted oldest first")
	}
}

func TestJobTypeCatalog(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	jt := &catalog.JobType{
		ID:     id.NewJobTypeID(),
		Key:    "sentiment",
		Name:   "Sentiment Analysis",
		Price:  types.USD(500),
		Status: catalog.StatusActive,
	}
	jt.Entity = types.NewEntity()

	if err := s.CreateJobType(ctx, jt); err != nil {
		t.Fatalf("CreateJobType failed: %v", err)
	}
	if err := s.CreateJobType(ctx, jt); !errors.Is(err, prepaid.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists for duplicate key, got %v", err)
	}

	got, err := s.GetJobType(ctx, "sentiment")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Price.Equal(types.USD(500)) {
		t.Errorf("price: got %v, want $5.00", got.Price)
	}

	got.Price = types.USD(700)
	if err := s.UpdateJobType(ctx, got); err != nil {
		t.Fatalf("UpdateJobType failed: %v", err)
	}

	if err := s.ArchiveJobType(ctx, jt.ID); err != nil {
		t.Fatalf("ArchiveJobType failed: %v", err)
	}
	archived, err := s.GetJobType(ctx, "sentiment")
	if err != nil {
		t.Fatal(err)
	}
	if archived.Status != catalog.StatusArchived {
		t.Errorf("status after archive: got %s, want archived", archived.Status)
	}
	if archived.Active() {
		t.Error("archived type reports Active")
	}

	active, err := s.ListJobTypes(ctx, catalog.ListOpts{Status: catalog.StatusActive})
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 0 {
		t.Errorf("got %d active types, want 0", len(active))
	}

	if err := s.ArchiveJobType(ctx, id.NewJobTypeID()); !errors.Is(err, prepaid.ErrJobTypeNotFound) {
		t.Errorf("expected ErrJobTypeNotFound, got %v", err)
	}
}

func TestListJobsFilters(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		j := &job.Job{
			ID:     id.NewJobID(),
			UserID: "user_1",
			Type:   fmt.Sprintf("type_%d", i%2),
			Status: job.StatusCompleted,
		}
		j.Entity = types.NewEntity()
		if err := s.CreateJob(ctx, j); err != nil {
			t.Fatal(err)
		}
	}

	byType, err := s.ListJobs(ctx, "user_1", job.ListOpts{Type: "type_0"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byType) != 2 {
		t.Errorf("got %d jobs of type_0, want 2", len(byType))
	}

	none, err := s.ListJobs(ctx, "user_1", job.ListOpts{Status: job.StatusFailed})
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("got %d failed jobs, want 0", len(none))
	}
}
