package aggregate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"finances/internal/core"
)

var now = time.Date(2025, time.June, 18, 9, 30, 0, 0, time.UTC)

func tx(y int, m time.Month, d int, debit, credit int64) core.Transaction {
	return core.Transaction{LedgerEntry: core.LedgerEntry{
		Date:   core.NewDate(y, m, d),
		Debit:  core.Money{Cents: debit},
		Credit: core.Money{Cents: credit},
	}}
}

func TestCompute_WindowShape(t *testing.T) {
	current, history := Compute(nil, now)
	if len(history) != core.HistoryMonths {
		t.Fatalf("expected %d months, got %d", core.HistoryMonths, len(history))
	}
	if history[0].Month != "2023-07" || history[23].Month != "2025-06" {
		t.Fatalf("window: %s .. %s", history[0].Month, history[23].Month)
	}
	if current != history[23] {
		t.Fatalf("current must equal the last month")
	}
}

func TestCompute_CreditThenDebit(t *testing.T) {
	txs := []core.Transaction{
		tx(2025, time.April, 10, 0, 10000), // M-2
		tx(2025, time.May, 3, 4000, 0),     // M-1
	}
	current, history := Compute(txs, now)

	for i, snap := range history {
		var want int64
		switch {
		case snap.Month == "2025-04":
			want = 10000
		case snap.Month >= "2025-05":
			want = 6000
		}
		if snap.Balance.Cents != want {
			t.Errorf("month %d (%s): balance %d, want %d", i, snap.Month, snap.Balance.Cents, want)
		}
	}
	apr, may := history[21], history[22]
	if apr.Credits.Cents != 10000 || apr.Debits.Cents != 0 {
		t.Fatalf("april totals: %+v", apr)
	}
	if may.Debits.Cents != 4000 || may.Credits.Cents != 0 {
		t.Fatalf("may totals: %+v", may)
	}
	if current.Month != "2025-06" || current.Balance.Cents != 6000 || current.Debits.Cents != 0 {
		t.Fatalf("current: %+v", current)
	}
}

func TestCompute_OpeningBalanceAndFuture(t *testing.T) {
	txs := []core.Transaction{
		tx(2020, time.January, 1, 0, 50000), // before the window
		tx(2023, time.July, 1, 1000, 0),     // first window month
		tx(2025, time.June, 30, 0, 1),       // last day of the current month
		tx(2025, time.July, 1, 0, 99999),    // future, ignored
	}
	current, history := Compute(txs, now)
	if history[0].Balance.Cents != 49000 || history[0].Debits.Cents != 1000 {
		t.Fatalf("first month: %+v", history[0])
	}
	if current.Balance.Cents != 49001 || current.Credits.Cents != 1 {
		t.Fatalf("current: %+v", current)
	}
}

func TestCompute_ExactCents(t *testing.T) {
	var txs []core.Transaction
	for i := 0; i < 1000; i++ {
		txs = append(txs, tx(2025, time.June, 1, 0, 10)) // 0.10 each
	}
	current, _ := Compute(txs, now)
	if current.Credits.String() != "100.00" {
		t.Fatalf("expected exact 100.00, got %s", current.Credits)
	}
}

type fakeStore struct {
	txs     []core.Transaction
	listErr error
	writes  int
	current core.MonthSnapshot
	history []core.MonthSnapshot
}

func (f *fakeStore) ListTransactions(_ context.Context, _ string, _ *core.DateRange) ([]core.Transaction, error) {
	return f.txs, f.listErr
}

func (f *fakeStore) WriteAccountAggregates(_ context.Context, _ string, current core.MonthSnapshot, history []core.MonthSnapshot) error {
	f.writes++
	f.current, f.history = current, history
	return nil
}

func TestEngine_RecomputeIsIdempotent(t *testing.T) {
	store := &fakeStore{txs: []core.Transaction{
		tx(2025, time.April, 10, 0, 10000),
		tx(2025, time.May, 3, 4000, 0),
	}}
	e := NewEngineAt(store, func() time.Time { return now })

	snapshot := func() []byte {
		if _, _, err := e.Recompute(context.Background(), "acc"); err != nil {
			t.Fatalf("recompute: %v", err)
		}
		b, err := json.Marshal(struct {
			Current core.MonthSnapshot
			History []core.MonthSnapshot
		}{store.current, store.history})
		if err != nil {
			t.Fatal(err)
		}
		return b
	}
	first, second := snapshot(), snapshot()
	if !bytes.Equal(first, second) {
		t.Fatalf("recompute output differs:\n%s\n%s", first, second)
	}
	if store.writes != 2 {
		t.Fatalf("expected 2 writes, got %d", store.writes)
	}
}

func TestEngine_RecomputeListError(t *testing.T) {
	store := &fakeStore{listErr: errors.New("db down")}
	e := NewEngineAt(store, func() time.Time { return now })
	if _, _, err := e.Recompute(context.Background(), "acc"); err == nil {
		t.Fatalf("expected error")
	}
	if store.writes != 0 {
		t.Fatalf("must not write after a failed scan")
	}
}
