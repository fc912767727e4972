package observability_test

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/prepaid/id"
	"github.com/xraph/prepaid/observability"
	"github.com/xraph/prepaid/txn"
	"github.com/xraph/prepaid/types"
)

type fakeCounter struct{ value float64 }

func (c *fakeCounter) Inc()          { c.value++ }
func (c *fakeCounter) Add(v float64) { c.value += v }

type fakeHistogram struct{ observed []float64 }

func (h *fakeHistogram) Observe(v float64) { h.observed = append(h.observed, v) }

type fakeFactory struct {
	counters   map[string]*fakeCounter
	histograms map[string]*fakeHistogram
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{
		counters:   make(map[string]*fakeCounter),
		histograms: make(map[string]*fakeHistogram),
	}
}

func (f *fakeFactory) Counter(name string) observability.Counter {
	c := &fakeCounter{}
	f.counters[name] = c
	return c
}

func (f *fakeFactory) Histogram(name string) observability.Histogram {
	h := &fakeHistogram{}
	f.histograms[name] = h
	return h
}

func TestMetricsExtension(t *testing.T) {
	factory := newFakeFactory()
	ext := observability.NewMetricsExtension(factory)
	ctx := context.Background()

	tr := &txn.Transaction{
		ID:     id.NewTransactionID(),
		UserID: "user_1",
		Amount: types.USD(500),
	}

	if err := ext.OnCreditApplied(ctx, tr); err != nil {
		t.Fatal(err)
	}
	if err := ext.OnReservationCreated(ctx, tr); err != nil {
		t.Fatal(err)
	}
	if err := ext.OnReservationDeclined(ctx, "user_1", types.USD(500)); err != nil {
		t.Fatal(err)
	}
	if err := ext.OnJobCompleted(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if err := ext.OnJobFailed(ctx, nil, "boom"); err != nil {
		t.Fatal(err)
	}
	if err := ext.OnReconciliationGap(ctx, nil, errors.New("gap")); err != nil {
		t.Fatal(err)
	}

	checks := map[string]float64{
		"prepaid.credit.applied":       1,
		"prepaid.reservation.created":  1,
		"prepaid.reservation.declined": 1,
		"prepaid.job.completed":        1,
		"prepaid.job.failed":           1,
		"prepaid.reconciliation.gaps":  1,
		"prepaid.debit.applied":        0,
	}
	for name, want := range checks {
		c, ok := factory.counters[name]
		if !ok {
			t.Errorf("counter %s never created", name)
			continue
		}
		if c.value != want {
			t.Errorf("counter %s: got %v, want %v", name, c.value, want)
		}
	}

	amounts := factory.histograms["prepaid.credit.amount_cents"]
	if len(amounts.observed) != 1 || amounts.observed[0] != 500 {
		t.Errorf("credit amount histogram: got %v, want [500]", amounts.observed)
	}
}

func TestMetricsExtensionName(t *testing.T) {
	ext := observability.NewMetricsExtension(newFakeFactory())
	if ext.Name() != "observability-metrics" {
		t.Errorf("Name: got %q", ext.Name())
	}
}
