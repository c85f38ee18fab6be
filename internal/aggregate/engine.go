// Package aggregate derives an account's monthly series from its transactions.
//
// The series is never updated incrementally: every recompute rescans the whole
// transaction set, so running it twice with no write in between produces the
// same output.
package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"finances/internal/core"
	applog "finances/internal/log"
)

// Store is the storage the engine reads from and writes to.
type Store interface {
	ListTransactions(ctx context.Context, accountID string, r *core.DateRange) ([]core.Transaction, error)
	WriteAccountAggregates(ctx context.Context, accountID string, current core.MonthSnapshot, history []core.MonthSnapshot) error
}

// Compute builds the core.HistoryMonths month window ending with now's month,
// oldest first, and returns it with the entry for now's month.
//
// Debits and credits are local to each month. Balance is cumulative through
// the month's last day and includes transactions older than the window.
// Transactions dated after now's month are ignored.
func Compute(txs []core.Transaction, now time.Time) (core.MonthSnapshot, []core.MonthSnapshot) {
	y, m, _ := now.Date()
	first := core.NewDate(y, m, 1).AddDate(0, -(core.HistoryMonths - 1), 0)
	fy, fm, _ := first.Date()

	var debits, credits [core.HistoryMonths]int64
	var opening int64
	for _, tx := range txs {
		ty, tm, _ := tx.Date.Date()
		idx := (ty-fy)*12 + int(tm-fm)
		switch {
		case idx < 0:
			opening += tx.Credit.Cents - tx.Debit.Cents
		case idx < core.HistoryMonths:
			debits[idx] += tx.Debit.Cents
			credits[idx] += tx.Credit.Cents
		}
	}

	history := make([]core.MonthSnapshot, core.HistoryMonths)
	balance := opening
	for i := range history {
		balance += credits[i] - debits[i]
		history[i] = core.MonthSnapshot{
			Month:   first.AddDate(0, i, 0).Format("2006-01"),
			Debits:  core.Money{Cents: debits[i]},
			Credits: core.Money{Cents: credits[i]},
			Balance: core.Money{Cents: balance},
		}
	}
	return history[len(history)-1], history
}

// Engine recomputes and stores account aggregates.
type Engine struct {
	store Store
	now   func() time.Time
}

func NewEngine(store Store) *Engine {
	return &Engine{store: store, now: time.Now}
}

// NewEngineAt returns an Engine with a fixed clock, for tests and backfills.
func NewEngineAt(store Store, now func() time.Time) *Engine {
	return &Engine{store: store, now: now}
}

// Recompute rescans every transaction of accountID and overwrites its
// aggregates. Callers serialize it with writes to the same account.
func (e *Engine) Recompute(ctx context.Context, accountID string) (core.MonthSnapshot, []core.MonthSnapshot, error) {
	txs, err := e.store.ListTransactions(ctx, accountID, nil)
	if err != nil {
		return core.MonthSnapshot{}, nil, fmt.Errorf("list transactions: %w", err)
	}

	current, history := Compute(txs, e.now())
	if err := e.store.WriteAccountAggregates(ctx, accountID, current, history); err != nil {
		return core.MonthSnapshot{}, nil, fmt.Errorf("write aggregates: %w", err)
	}

	slog.DebugContext(ctx, "Account aggregates recomputed",
		applog.FieldComponent, applog.ComponentAggregate,
		applog.FieldAccountID, accountID,
		"transactions", len(txs),
		"balance", current.Balance.String())
	return current, history, nil
}
