// Package storage persists books, accounts, transactions and category rules.
package storage

import (
	"context"
	"errors"
	"sort"

	"finances/internal/core"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicateRule = errors.New("a rule with this keyword already exists")
)

// Store is the persistence collaborator used by the ledger services. Both
// the SQLite repository and the in-memory store implement it.
type Store interface {
	CreateBook(ctx context.Context, name string) (core.AccountBook, error)
	GetBook(ctx context.Context, id string) (core.AccountBook, error)
	ListBooks(ctx context.Context) ([]core.AccountBook, error)

	CreateAccount(ctx context.Context, bookID, name string) (core.Account, error)
	GetAccount(ctx context.Context, id string) (core.Account, error)
	ListAccounts(ctx context.Context, bookID string) ([]core.Account, error)
	// DeleteAccount removes the account together with its transactions.
	DeleteAccount(ctx context.Context, id string) (transactions int, err error)
	WriteAccountAggregates(ctx context.Context, accountID string, current core.MonthSnapshot, history []core.MonthSnapshot) error

	// InsertTransaction stores entry under accountID and returns the new ID.
	InsertTransaction(ctx context.Context, accountID string, entry core.LedgerEntry) (string, error)
	GetTransaction(ctx context.Context, id string) (core.Transaction, error)
	// ListTransactions returns the account's transactions by date, then
	// insertion order. A nil range means all of them.
	ListTransactions(ctx context.Context, accountID string, r *core.DateRange) ([]core.Transaction, error)
	UpdateTransaction(ctx context.Context, tx core.Transaction) error
	DeleteTransaction(ctx context.Context, id string) error
	// DeleteTransactions removes every listed ID that exists and reports how
	// many were removed.
	DeleteTransactions(ctx context.Context, ids []string) (int, error)

	// ListRules returns a book's rules in creation order.
	ListRules(ctx context.Context, bookID string) ([]core.CategoryRule, error)
	GetRule(ctx context.Context, id string) (core.CategoryRule, error)
	CreateRule(ctx context.Context, rule core.CategoryRule) (core.CategoryRule, error)
	UpdateRule(ctx context.Context, rule core.CategoryRule) (core.CategoryRule, error)
	DeleteRule(ctx context.Context, id string) error

	// ListCategories groups the distinct category pairs used by a book's
	// transactions, sorted by category with sorted subcategories.
	ListCategories(ctx context.Context, bookID string) ([]core.CategorySummary, error)

	Close() error
}

// GroupCategories folds sorted or unsorted (category, subcategory) pairs into
// summaries. Empty subcategories are dropped; every list is sorted.
func GroupCategories(pairs [][2]string) []core.CategorySummary {
	subs := map[string]map[string]struct{}{}
	for _, p := range pairs {
		set, ok := subs[p[0]]
		if !ok {
			set = map[string]struct{}{}
			subs[p[0]] = set
		}
		if p[1] != "" {
			set[p[1]] = struct{}{}
		}
	}

	out := make([]core.CategorySummary, 0, len(subs))
	for cat, set := range subs {
		list := make([]string, 0, len(set))
		for s := range set {
			list = append(list, s)
		}
		sort.Strings(list)
		out = append(out, core.CategorySummary{Category: cat, Subcategories: list})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}
