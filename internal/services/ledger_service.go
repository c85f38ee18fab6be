package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"finances/internal/aggregate"
	"finances/internal/amqp"
	"finances/internal/core"
	"finances/internal/lock"
	applog "finances/internal/log"
	"finances/internal/rules"
	"finances/internal/storage"
)

const (
	StartingBalanceDescription = "Starting Balance"
	StartingBalanceCategory    = "Opening Balance"

	// DashboardMonths is the number of trailing history months returned per
	// account by Dashboard.
	DashboardMonths = 6
	// DashboardRecent is the number of latest transactions returned per account.
	DashboardRecent = 5

	defaultRecalcConcurrency = 4
)

// Publisher receives an event after every successful recompute.
type Publisher interface {
	PublishAccountRecomputed(ctx context.Context, msg *amqp.AccountRecomputedMessage) error
}

// RuleInvalidator drops cached rules of a book.
type RuleInvalidator interface {
	Invalidate(bookID string)
}

// RecalcResult summarises a bulk recompute.
type RecalcResult struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// BalancePoint is one month of an account's balance history.
type BalancePoint struct {
	Month   string     `json:"month"`
	Balance core.Money `json:"balance"`
}

// AccountOverview is the dashboard view of one account.
type AccountOverview struct {
	Account            core.Account         `json:"account"`
	BalanceHistory     []BalancePoint       `json:"balanceHistory"`
	Activity           []core.MonthSnapshot `json:"activity"`
	RecentTransactions []core.Transaction   `json:"recentTransactions"`
}

// Dashboard is the overview of a whole book.
type Dashboard struct {
	Book     core.AccountBook  `json:"accountBook"`
	Accounts []AccountOverview `json:"accounts"`
}

// LedgerService runs every ledger mutation followed by a recompute of the
// affected accounts, holding each account's lock for the whole sequence.
type LedgerService struct {
	store       storage.Store
	engine      *aggregate.Engine
	locks       *lock.Keyed
	publisher   Publisher
	seeds       []rules.Seed
	concurrency int
	now         func() time.Time
}

type LedgerOption func(*LedgerService)

// WithPublisher enables account.recomputed events.
func WithPublisher(p Publisher) LedgerOption {
	return func(s *LedgerService) { s.publisher = p }
}

// WithRuleSeeds copies seeds into every book created afterwards.
func WithRuleSeeds(seeds []rules.Seed) LedgerOption {
	return func(s *LedgerService) { s.seeds = seeds }
}

// WithRecalcConcurrency bounds the number of accounts recomputed in parallel.
func WithRecalcConcurrency(n int) LedgerOption {
	return func(s *LedgerService) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithClock fixes the service and engine clock.
func WithClock(now func() time.Time) LedgerOption {
	return func(s *LedgerService) { s.now = now }
}

func NewLedgerService(store storage.Store, locks *lock.Keyed, opts ...LedgerOption) *LedgerService {
	s := &LedgerService{
		store:       store,
		locks:       locks,
		concurrency: defaultRecalcConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = aggregate.NewEngineAt(store, s.now)
	return s
}

// CreateBook creates a book and copies the configured rule seeds into it.
// A seed that cannot be stored is logged and skipped.
func (s *LedgerService) CreateBook(ctx context.Context, name string) (core.AccountBook, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.AccountBook{}, core.ErrEmptyName
	}
	book, err := s.store.CreateBook(ctx, name)
	if err != nil {
		return core.AccountBook{}, fmt.Errorf("create book: %w", err)
	}
	for _, seed := range s.seeds {
		if _, err := s.store.CreateRule(ctx, seed.Rule(book.ID)); err != nil {
			slog.WarnContext(ctx, "Failed to seed rule",
				applog.FieldComponent, applog.ComponentRules,
				applog.FieldBookID, book.ID,
				"keyword", seed.Keyword,
				applog.FieldError, err)
		}
	}
	slog.InfoContext(ctx, "Account book created",
		applog.FieldComponent, applog.ComponentLedger,
		applog.FieldBookID, book.ID,
		"seeded_rules", len(s.seeds))
	return book, nil
}

func (s *LedgerService) GetBook(ctx context.Context, id string) (core.AccountBook, error) {
	return s.store.GetBook(ctx, id)
}

func (s *LedgerService) ListBooks(ctx context.Context) ([]core.AccountBook, error) {
	return s.store.ListBooks(ctx)
}

// CreateAccount creates an account in bookID. A non-zero starting balance is
// recorded as a transaction dated today, credit when positive and debit when
// negative. The new account is always recomputed so its history is complete.
func (s *LedgerService) CreateAccount(ctx context.Context, bookID, name string, startingBalance core.Money) (core.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Account{}, core.ErrEmptyName
	}
	acc, err := s.store.CreateAccount(ctx, bookID, name)
	if err != nil {
		return core.Account{}, fmt.Errorf("create account: %w", err)
	}

	unlock := s.locks.Lock(acc.ID)
	defer unlock()

	if !startingBalance.IsZero() {
		entry := core.LedgerEntry{
			Date:        core.DateOf(s.now()),
			Description: StartingBalanceDescription,
			Category:    StartingBalanceCategory,
		}
		if startingBalance.IsNegative() {
			entry.Debit = startingBalance.Abs()
		} else {
			entry.Credit = startingBalance
		}
		if _, err := s.store.InsertTransaction(ctx, acc.ID, entry); err != nil {
			return core.Account{}, fmt.Errorf("insert starting balance: %w", err)
		}
	}
	if err := s.recomputeLocked(ctx, acc.ID, "account_created"); err != nil {
		return core.Account{}, err
	}
	return s.store.GetAccount(ctx, acc.ID)
}

func (s *LedgerService) GetAccount(ctx context.Context, id string) (core.Account, error) {
	return s.store.GetAccount(ctx, id)
}

func (s *LedgerService) ListAccounts(ctx context.Context, bookID string) ([]core.Account, error) {
	if _, err := s.store.GetBook(ctx, bookID); err != nil {
		return nil, err
	}
	return s.store.ListAccounts(ctx, bookID)
}

// DeleteAccount removes an account of bookID and all of its transactions.
func (s *LedgerService) DeleteAccount(ctx context.Context, bookID, accountID string) error {
	acc, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if acc.AccountBookID != bookID {
		return ErrAccountNotInBook
	}

	unlock := s.locks.Lock(accountID)
	defer unlock()

	n, err := s.store.DeleteAccount(ctx, accountID)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	slog.InfoContext(ctx, "Account deleted",
		applog.FieldComponent, applog.ComponentLedger,
		applog.FieldBookID, bookID,
		applog.FieldAccountID, accountID,
		"transactions", n)
	return nil
}

// ListTransactions returns an account's transactions, newest first.
func (s *LedgerService) ListTransactions(ctx context.Context, accountID string, r *core.DateRange) ([]core.Transaction, error) {
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	txs, err := s.store.ListTransactions(ctx, accountID, r)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	reverse(txs)
	return txs, nil
}

func (s *LedgerService) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	return s.store.GetTransaction(ctx, id)
}

// CreateTransaction validates and stores entry, then recomputes the account.
func (s *LedgerService) CreateTransaction(ctx context.Context, accountID string, entry core.LedgerEntry) (core.Transaction, error) {
	entry = entry.Normalize()
	if err := entry.Validate(); err != nil {
		return core.Transaction{}, err
	}

	unlock := s.locks.Lock(accountID)
	defer unlock()

	id, err := s.store.InsertTransaction(ctx, accountID, entry)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	if err := s.recomputeLocked(ctx, accountID, "transaction_created"); err != nil {
		return core.Transaction{}, err
	}
	return s.store.GetTransaction(ctx, id)
}

// UpdateTransaction overwrites a stored transaction. When the update moves it
// to another account, both accounts are locked and recomputed.
func (s *LedgerService) UpdateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	tx.LedgerEntry = tx.LedgerEntry.Normalize()
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}

	var extra []string
	if tx.AccountID != "" {
		extra = append(extra, tx.AccountID)
	}
	owned, accounts, unlock, err := s.lockOwners(ctx, []string{tx.ID}, extra...)
	if err != nil {
		return core.Transaction{}, err
	}
	defer unlock()

	existing, ok := owned[tx.ID]
	if !ok {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", tx.ID, storage.ErrNotFound)
	}
	if tx.AccountID == "" {
		tx.AccountID = existing.AccountID
	}
	if tx.AccountID != existing.AccountID {
		target, err := s.store.GetAccount(ctx, tx.AccountID)
		if err != nil {
			return core.Transaction{}, fmt.Errorf("target account: %w", err)
		}
		if target.AccountBookID != existing.AccountBookID {
			return core.Transaction{}, ErrCrossBookMove
		}
	}

	if err := s.store.UpdateTransaction(ctx, tx); err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	for _, id := range accounts {
		if err := s.recomputeLocked(ctx, id, "transaction_updated"); err != nil {
			return core.Transaction{}, err
		}
	}
	return s.store.GetTransaction(ctx, tx.ID)
}

// DeleteTransaction removes one transaction and recomputes its account.
func (s *LedgerService) DeleteTransaction(ctx context.Context, id string) error {
	owned, accounts, unlock, err := s.lockOwners(ctx, []string{id})
	if err != nil {
		return err
	}
	defer unlock()

	if _, ok := owned[id]; !ok {
		return fmt.Errorf("transaction %s: %w", id, storage.ErrNotFound)
	}
	if err := s.store.DeleteTransaction(ctx, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return s.recomputeLocked(ctx, accounts[0], "transaction_deleted")
}

// BulkDeleteTransactions removes every listed transaction that exists and
// recomputes each affected account once. Unknown IDs are skipped.
func (s *LedgerService) BulkDeleteTransactions(ctx context.Context, ids []string) (int, error) {
	owned, accounts, unlock, err := s.lockOwners(ctx, ids)
	if err != nil {
		return 0, err
	}
	defer unlock()

	if len(owned) == 0 {
		return 0, nil
	}
	found := make([]string, 0, len(owned))
	for _, id := range distinct(ids...) {
		if _, ok := owned[id]; ok {
			found = append(found, id)
		}
	}

	n, err := s.store.DeleteTransactions(ctx, found)
	if err != nil {
		return 0, fmt.Errorf("delete transactions: %w", err)
	}
	for _, id := range accounts {
		if err := s.recomputeLocked(ctx, id, "transactions_deleted"); err != nil {
			return n, err
		}
	}
	return n, nil
}

// lockOwners locks the accounts owning the transactions ids, plus extra, and
// returns the transactions as read under those locks. A transaction moved by
// a concurrent update before the locks were taken makes it retry with the new
// owners. Unknown IDs are left out of the map.
func (s *LedgerService) lockOwners(ctx context.Context, ids []string, extra ...string) (map[string]core.Transaction, []string, func(), error) {
	owned, err := s.readOwners(ctx, ids)
	if err != nil {
		return nil, nil, nil, err
	}
	for {
		accounts := make([]string, 0, len(owned)+len(extra))
		for _, id := range ids {
			if tx, ok := owned[id]; ok {
				accounts = append(accounts, tx.AccountID)
			}
		}
		accounts = distinct(append(accounts, extra...)...)
		unlock := s.lockAll(accounts)

		current, err := s.readOwners(ctx, ids)
		if err != nil {
			unlock()
			return nil, nil, nil, err
		}
		if sameOwners(owned, current) {
			return current, accounts, unlock, nil
		}
		unlock()
		if err := ctx.Err(); err != nil {
			return nil, nil, nil, err
		}
		owned = current
	}
}

func (s *LedgerService) readOwners(ctx context.Context, ids []string) (map[string]core.Transaction, error) {
	out := make(map[string]core.Transaction, len(ids))
	for _, id := range ids {
		tx, err := s.store.GetTransaction(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[id] = tx
	}
	return out, nil
}

func sameOwners(a, b map[string]core.Transaction) bool {
	if len(a) != len(b) {
		return false
	}
	for id, tx := range a {
		other, ok := b[id]
		if !ok || other.AccountID != tx.AccountID {
			return false
		}
	}
	return true
}

// Recompute rebuilds the aggregates of one account.
func (s *LedgerService) Recompute(ctx context.Context, accountID string) error {
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return err
	}
	unlock := s.locks.Lock(accountID)
	defer unlock()
	return s.recomputeLocked(ctx, accountID, "recompute")
}

// RecomputeBook recomputes every account of a book, bounded by the configured
// concurrency. A failing account is counted and logged; the others proceed.
func (s *LedgerService) RecomputeBook(ctx context.Context, bookID string) (RecalcResult, error) {
	if _, err := s.store.GetBook(ctx, bookID); err != nil {
		return RecalcResult{}, err
	}
	accounts, err := s.store.ListAccounts(ctx, bookID)
	if err != nil {
		return RecalcResult{}, fmt.Errorf("list accounts: %w", err)
	}

	var ok, failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for _, acc := range accounts {
		acc := acc
		g.Go(func() error {
			if err := s.Recompute(ctx, acc.ID); err != nil {
				failed.Add(1)
				slog.ErrorContext(ctx, "Account recompute failed",
					applog.FieldComponent, applog.ComponentAggregate,
					applog.FieldAccountID, acc.ID,
					applog.FieldBookID, bookID,
					applog.FieldError, err)
				return nil
			}
			ok.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	res := RecalcResult{Total: len(accounts), Successful: int(ok.Load()), Failed: int(failed.Load())}
	slog.InfoContext(ctx, "Book recomputed",
		applog.FieldComponent, applog.ComponentAggregate,
		applog.FieldBookID, bookID,
		"total", res.Total,
		"successful", res.Successful,
		"failed", res.Failed)
	return res, nil
}

// RecomputeAll recomputes every account of every book.
func (s *LedgerService) RecomputeAll(ctx context.Context) (RecalcResult, error) {
	books, err := s.store.ListBooks(ctx)
	if err != nil {
		return RecalcResult{}, fmt.Errorf("list books: %w", err)
	}
	var total RecalcResult
	for _, b := range books {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		res, err := s.RecomputeBook(ctx, b.ID)
		if err != nil {
			return total, fmt.Errorf("book %s: %w", b.ID, err)
		}
		total.Total += res.Total
		total.Successful += res.Successful
		total.Failed += res.Failed
	}
	return total, nil
}

// BalanceHistory returns the stored month/balance series of an account.
func (s *LedgerService) BalanceHistory(ctx context.Context, accountID string) ([]BalancePoint, error) {
	acc, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return balancePoints(acc.History), nil
}

// Dashboard returns, per account of the book, the last DashboardMonths of
// history and the DashboardRecent newest transactions.
func (s *LedgerService) Dashboard(ctx context.Context, bookID string) (Dashboard, error) {
	book, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return Dashboard{}, err
	}
	accounts, err := s.store.ListAccounts(ctx, bookID)
	if err != nil {
		return Dashboard{}, fmt.Errorf("list accounts: %w", err)
	}

	out := Dashboard{Book: book, Accounts: make([]AccountOverview, 0, len(accounts))}
	for _, acc := range accounts {
		txs, err := s.store.ListTransactions(ctx, acc.ID, nil)
		if err != nil {
			return Dashboard{}, fmt.Errorf("list transactions: %w", err)
		}
		reverse(txs)
		if len(txs) > DashboardRecent {
			txs = txs[:DashboardRecent]
		}
		months := acc.History
		if len(months) > DashboardMonths {
			months = months[len(months)-DashboardMonths:]
		}
		out.Accounts = append(out.Accounts, AccountOverview{
			Account:            acc,
			BalanceHistory:     balancePoints(months),
			Activity:           months,
			RecentTransactions: txs,
		})
	}
	return out, nil
}

// ListCategories returns the category pairs used in a book.
func (s *LedgerService) ListCategories(ctx context.Context, bookID string) ([]core.CategorySummary, error) {
	if _, err := s.store.GetBook(ctx, bookID); err != nil {
		return nil, err
	}
	return s.store.ListCategories(ctx, bookID)
}

// recomputeLocked must be called with accountID's lock held.
func (s *LedgerService) recomputeLocked(ctx context.Context, accountID, reason string) error {
	current, _, err := s.engine.Recompute(ctx, accountID)
	if err != nil {
		return fmt.Errorf("recompute account %s: %w", accountID, err)
	}
	s.publish(ctx, accountID, reason, current)
	return nil
}

// publish never fails the caller; the aggregates are already stored.
func (s *LedgerService) publish(ctx context.Context, accountID, reason string, current core.MonthSnapshot) {
	if s.publisher == nil {
		return
	}
	var bookID string
	if acc, err := s.store.GetAccount(ctx, accountID); err == nil {
		bookID = acc.AccountBookID
	}
	msg := amqp.NewAccountRecomputedMessage(accountID, bookID, reason, current.Month, current.Balance.String())
	if err := s.publisher.PublishAccountRecomputed(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish recompute event",
			applog.FieldComponent, applog.ComponentAMQP,
			applog.FieldAccountID, accountID,
			applog.FieldError, err)
	}
}

// lockAll takes the locks of ids in sorted order and returns the release.
func (s *LedgerService) lockAll(ids []string) func() {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	unlocks := make([]func(), 0, len(sorted))
	for _, id := range sorted {
		unlocks = append(unlocks, s.locks.Lock(id))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

func balancePoints(history []core.MonthSnapshot) []BalancePoint {
	out := make([]BalancePoint, len(history))
	for i, m := range history {
		out[i] = BalancePoint{Month: m.Month, Balance: m.Balance}
	}
	return out
}

func distinct(ids ...string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
