package prepaid_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	prepaid "github.com/xraph/prepaid"
	"github.com/xraph/prepaid/store/memory"
	"github.com/xraph/prepaid/txn"
	"github.com/xraph/prepaid/types"
)

func TestCreditDebit(t *testing.T) {
	e := prepaid.New(memory.New())
	ctx := context.Background()

	res, err := e.Credit(ctx, "user_1", types.USD(1000), "starter pack", "order_1")
	if err != nil {
		t.Fatalf("Credit failed: %v", err)
	}
	if !res.NewBalance.Equal(types.USD(1000)) {
		t.Errorf("balance after credit: got %v, want $10.00", res.NewBalance)
	}
	if res.TransactionID.IsNil() {
		t.Error("credit returned nil transaction ID")
	}

	dres, err := e.Debit(ctx, "user_1", types.USD(250), "manual deduction", "")
	if err != nil {
		t.Fatalf("Debit failed: %v", err)
	}
	if !dres.NewBalance.Equal(types.USD(750)) {
		t.Errorf("balance after debit: got %v, want $7.50", dres.NewBalance)
	}

	entry, err := e.GetTransaction(ctx, dres.TransactionID)
	if err != nil {
		t.Fatal(err)
	}
	if entry.Kind != txn.KindUsage || entry.Status != txn.StatusCompleted {
		t.Errorf("debit entry: got kind=%s status=%s", entry.Kind, entry.Status)
	}
}

func TestGrantRefund(t *testing.T) {
	e := prepaid.New(memory.New())
	ctx := context.Background()

	if _, err := e.Credit(ctx, "user_1", types.USD(500), "purchase", ""); err != nil {
		t.Fatal(err)
	}
	res, err := e.GrantRefund(ctx, "user_1", types.USD(200), "goodwill", "ticket_42")
	if err != nil {
		t.Fatalf("GrantRefund failed: %v", err)
	}
	if !res.NewBalance.Equal(types.USD(700)) {
		t.Errorf("balance after refund grant: got %v, want $7.00", res.NewBalance)
	}

	a, err := e.Account(ctx, "user_1")
	if err != nil {
		t.Fatal(err)
	}
	if !a.TotalPurchased.Equal(types.USD(500)) {
		t.Errorf("TotalPurchased should exclude granted refunds: got %v", a.TotalPurchased)
	}
}

func TestAmountValidation(t *testing.T) {
	e := prepaid.New(memory.New())
	ctx := context.Background()

	tests := []struct {
		name   string
		amount types.Money
	}{
		{"zero", types.USD(0)},
		{"negative", types.USD(-100)},
		{"no currency", types.Money{Amount: 100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.Credit(ctx, "user_1", tt.amount, "", ""); err == nil {
				t.Error("Credit accepted invalid amount")
			}
			if _, err := e.Debit(ctx, "user_1", tt.amount, "", ""); err == nil {
				t.Error("Debit accepted invalid amount")
			}
			if _, err := e.Reserve(ctx, "user_1", tt.amount, "", "", nil); err == nil {
				t.Error("Reserve accepted invalid amount")
			}
		})
	}
}

func TestReserveConfirm(t *testing.T) {
	e := prepaid.New(memory.New())
	ctx := context.Background()

	if _, err := e.Credit(ctx, "user_1", types.USD(1000), "purchase", ""); err != nil {
		t.Fatal(err)
	}

	res, err := e.Reserve(ctx, "user_1", types.USD(400), "analysis: sentiment", "job_x", nil)
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if !res.Accepted {
		t.Fatal("reservation declined with sufficient balance")
	}

	// Reserving holds the amount without spending it.
	balance, err := e.Balance(ctx, "user_1")
	if err != nil {
		t.Fatal(err)
	}
	if !balance.Equal(types.USD(1000)) {
		t.Errorf("balance moved at reserve time: %v", balance)
	}

	newBalance, err := e.Confirm(ctx, res.TransactionID)
	if err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if !newBalance.Equal(types.USD(600)) {
		t.Errorf("balance after confirm: got %v, want $6.00", newBalance)
	}

	entry, err := e.GetTransaction(ctx, res.TransactionID)
	if err != nil {
		t.Fatal(err)
	}
	if entry.Status != txn.StatusCompleted {
		t.Errorf("entry status: got %s, want completed", entry.Status)
	}
}

func TestReserveDeclined(t *testing.T) {
	e := prepaid.New(memory.New())
	ctx := context.Background()

	if _, err := e.Credit(ctx, "user_1", types.USD(100), "purchase", ""); err != nil {
		t.Fatal(err)
	}

	res, err := e.Reserve(ctx, "user_1", types.USD(500), "analysis: sentiment", "", nil)
	if err != nil {
		t.Fatalf("a decline is not an error, got %v", err)
	}
	if res.Accepted {
		t.Fatal("reservation accepted beyond available balance")
	}
	if !res.TransactionID.IsNil() {
		t.Error("declined reservation carries a transaction ID")
	}

	// No pending entry exists after a decline.
	pending, err := e.ListTransactions(ctx, "user_1", txn.ListOpts{Status: txn.StatusPending})
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("declined reservation left %d pending entries", len(pending))
	}
}

func TestRefundReleasesHold(t *testing.T) {
	e := prepaid.New(memory.New())
	ctx := context.Background()

	if _, err := e.Credit(ctx, "user_1", types.USD(1000), "purchase", ""); err != nil {
		t.Fatal(err)
	}
	res, err := e.Reserve(ctx, "user_1", types.USD(400), "analysis: sentiment", "", nil)
	if err != nil || !res.Accepted {
		t.Fatalf("Reserve: accepted=%v err=%v", res != nil && res.Accepted, err)
	}

	outcome, err := e.Refund(ctx, res.TransactionID, "handler failed")
	if err != nil {
		t.Fatalf("Refund failed: %v", err)
	}
	if !outcome.Released {
		t.Fatal("refund did not release a pending hold")
	}
	if !outcome.NewBalance.Equal(types.USD(1000)) {
		t.Errorf("balance after refund: got %v, want $10.00", outcome.NewBalance)
	}

	entry, err := e.GetTransaction(ctx, res.TransactionID)
	if err != nil {
		t.Fatal(err)
	}
	if entry.Status != txn.StatusRefunded {
		t.Errorf("entry status: got %s, want refunded", entry.Status)
	}
	if !strings.Contains(entry.Description, "refunded: handler failed") {
		t.Errorf("refund reason not recorded: %q", entry.Description)
	}

	// The hold is gone; the full balance is available again.
	a, err := e.Account(ctx, "user_1")
	if err != nil {
		t.Fatal(err)
	}
	if !a.Available().Equal(types.USD(1000)) {
		t.Errorf("available after refund: got %v, want $10.00", a.Available())
	}
}

func TestRefundAfterConfirmIsNoOp(t *testing.T) {
	e := prepaid.New(memory.New())
	ctx := context.Background()

	if _, err := e.Credit(ctx, "user_1", types.USD(1000), "purchase", ""); err != nil {
		t.Fatal(err)
	}
	res, err := e.Reserve(ctx, "user_1", types.USD(400), "analysis: sentiment", "", nil)
	if err != nil || !res.Accepted {
		t.Fatal("reserve failed")
	}
	if _, err := e.Confirm(ctx, res.TransactionID); err != nil {
		t.Fatal(err)
	}

	outcome, err := e.Refund(ctx, res.TransactionID, "too late")
	if err != nil {
		t.Fatalf("late refund should be a no-op, got %v", err)
	}
	if outcome.Released {
		t.Error("late refund reports Released")
	}
	if outcome.SettledStatus != txn.StatusCompleted {
		t.Errorf("SettledStatus: got %s, want completed", outcome.SettledStatus)
	}

	// Money stayed spent.
	balance, err := e.Balance(ctx, "user_1")
	if err != nil {
		t.Fatal(err)
	}
	if !balance.Equal(types.USD(600)) {
		t.Errorf("balance: got %v, want $6.00", balance)
	}
}

func TestConfirmNotPending(t *testing.T) {
	e := prepaid.New(memory.New())
	ctx := context.Background()

	if _, err := e.Credit(ctx, "user_1", types.USD(1000), "purchase", ""); err != nil {
		t.Fatal(err)
	}
	res, err := e.Reserve(ctx, "user_1", types.USD(400), "analysis: sentiment", "", nil)
	if err != nil || !res.Accepted {
		t.Fatal("reserve failed")
	}
	if _, err := e.Confirm(ctx, res.TransactionID); err != nil {
		t.Fatal(err)
	}

	if _, err := e.Confirm(ctx, res.TransactionID); !errors.Is(err, prepaid.ErrTransactionNotPending) {
		t.Errorf("double confirm: expected ErrTransactionNotPending, got %v", err)
	}
}
