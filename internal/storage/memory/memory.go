// Package memory is an in-process Store for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"finances/internal/core"
	"finances/internal/storage"
)

type Store struct {
	mu       sync.Mutex
	seq      int64
	books    map[string]row[core.AccountBook]
	accounts map[string]row[core.Account]
	txs      map[string]row[core.Transaction]
	rules    map[string]row[core.CategoryRule]
	now      func() time.Time
}

// row remembers insertion order so listings match the SQLite store.
type row[T any] struct {
	seq int64
	val T
}

var _ storage.Store = (*Store)(nil)

// values returns rows' values in insertion order.
func values[T any](rows []row[T]) []T {
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	out := make([]T, len(rows))
	for i, r := range rows {
		out[i] = r.val
	}
	return out
}

func New() *Store {
	return &Store{
		books:    map[string]row[core.AccountBook]{},
		accounts: map[string]row[core.Account]{},
		txs:      map[string]row[core.Transaction]{},
		rules:    map[string]row[core.CategoryRule]{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) next() int64 {
	s.seq++
	return s.seq
}

func (s *Store) CreateBook(_ context.Context, name string) (core.AccountBook, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.AccountBook{}, core.ErrEmptyName
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	b := core.AccountBook{ID: uuid.NewString(), Name: name, CreatedAt: now, UpdatedAt: now}
	s.books[b.ID] = row[core.AccountBook]{seq: s.next(), val: b}
	return b, nil
}

func (s *Store) GetBook(_ context.Context, id string) (core.AccountBook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.books[id]
	if !ok {
		return core.AccountBook{}, fmt.Errorf("book %s: %w", id, storage.ErrNotFound)
	}
	return r.val, nil
}

func (s *Store) ListBooks(_ context.Context) ([]core.AccountBook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := make([]row[core.AccountBook], 0, len(s.books))
	for _, r := range s.books {
		rows = append(rows, r)
	}
	return values(rows), nil
}

func (s *Store) CreateAccount(_ context.Context, bookID, name string) (core.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Account{}, core.ErrEmptyName
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.books[bookID]; !ok {
		return core.Account{}, fmt.Errorf("book %s: %w", bookID, storage.ErrNotFound)
	}
	now := s.now()
	a := core.Account{
		ID:            uuid.NewString(),
		AccountBookID: bookID,
		Name:          name,
		History:       []core.MonthSnapshot{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.accounts[a.ID] = row[core.Account]{seq: s.next(), val: a}
	return a, nil
}

func (s *Store) GetAccount(_ context.Context, id string) (core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.accounts[id]
	if !ok {
		return core.Account{}, fmt.Errorf("account %s: %w", id, storage.ErrNotFound)
	}
	a := r.val
	a.History = append([]core.MonthSnapshot{}, a.History...)
	return a, nil
}

func (s *Store) ListAccounts(_ context.Context, bookID string) ([]core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []row[core.Account]
	for _, r := range s.accounts {
		if r.val.AccountBookID == bookID {
			r.val.History = append([]core.MonthSnapshot{}, r.val.History...)
			rows = append(rows, r)
		}
	}
	return values(rows), nil
}

func (s *Store) WriteAccountAggregates(_ context.Context, accountID string, current core.MonthSnapshot, history []core.MonthSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.accounts[accountID]
	if !ok {
		return fmt.Errorf("account %s: %w", accountID, storage.ErrNotFound)
	}
	r.val.Current = current
	r.val.History = append([]core.MonthSnapshot{}, history...)
	r.val.UpdatedAt = s.now()
	s.accounts[accountID] = r
	return nil
}

func (s *Store) InsertTransaction(_ context.Context, accountID string, entry core.LedgerEntry) (string, error) {
	entry = entry.Normalize()
	if err := entry.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return "", fmt.Errorf("account %s: %w", accountID, storage.ErrNotFound)
	}
	now := s.now()
	tx := core.Transaction{
		ID:            uuid.NewString(),
		AccountID:     accountID,
		AccountBookID: a.val.AccountBookID,
		LedgerEntry:   entry,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.txs[tx.ID] = row[core.Transaction]{seq: s.next(), val: tx}
	return tx.ID, nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.txs[id]
	if !ok {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, storage.ErrNotFound)
	}
	return r.val, nil
}

func (s *Store) ListTransactions(_ context.Context, accountID string, dr *core.DateRange) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []row[core.Transaction]
	for _, r := range s.txs {
		if r.val.AccountID != accountID {
			continue
		}
		if dr != nil && !dr.Contains(r.val.Date) {
			continue
		}
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].val.Date.Equal(rows[j].val.Date.Time) {
			return rows[i].val.Date.Before(rows[j].val.Date.Time)
		}
		return rows[i].seq < rows[j].seq
	})
	out := make([]core.Transaction, len(rows))
	for i, r := range rows {
		out[i] = r.val
	}
	return out, nil
}

func (s *Store) UpdateTransaction(_ context.Context, tx core.Transaction) error {
	tx.LedgerEntry = tx.LedgerEntry.Normalize()
	if err := tx.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.txs[tx.ID]
	if !ok {
		return fmt.Errorf("transaction %s: %w", tx.ID, storage.ErrNotFound)
	}
	a, ok := s.accounts[tx.AccountID]
	if !ok {
		return fmt.Errorf("account %s: %w", tx.AccountID, storage.ErrNotFound)
	}
	tx.AccountBookID = a.val.AccountBookID
	tx.CreatedAt = r.val.CreatedAt
	tx.UpdatedAt = s.now()
	r.val = tx
	s.txs[tx.ID] = r
	return nil
}

func (s *Store) DeleteAccount(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[id]; !ok {
		return 0, fmt.Errorf("account %s: %w", id, storage.ErrNotFound)
	}
	n := 0
	for txID, r := range s.txs {
		if r.val.AccountID == id {
			delete(s.txs, txID)
			n++
		}
	}
	delete(s.accounts, id)
	return n, nil
}

func (s *Store) DeleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txs[id]; !ok {
		return fmt.Errorf("transaction %s: %w", id, storage.ErrNotFound)
	}
	delete(s.txs, id)
	return nil
}

func (s *Store) DeleteTransactions(_ context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range ids {
		if _, ok := s.txs[id]; ok {
			delete(s.txs, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) ListRules(_ context.Context, bookID string) ([]core.CategoryRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []row[core.CategoryRule]
	for _, r := range s.rules {
		if r.val.AccountBookID == bookID {
			rows = append(rows, r)
		}
	}
	return values(rows), nil
}

func (s *Store) GetRule(_ context.Context, id string) (core.CategoryRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[id]
	if !ok {
		return core.CategoryRule{}, fmt.Errorf("rule %s: %w", id, storage.ErrNotFound)
	}
	return r.val, nil
}

// keywordTaken must be called with s.mu held.
func (s *Store) keywordTaken(bookID, keyword, exceptID string) bool {
	for id, r := range s.rules {
		if id != exceptID && r.val.AccountBookID == bookID && strings.EqualFold(r.val.Keyword, keyword) {
			return true
		}
	}
	return false
}

func trimRule(rule core.CategoryRule) core.CategoryRule {
	rule.Keyword = strings.TrimSpace(rule.Keyword)
	rule.Category = strings.TrimSpace(rule.Category)
	rule.Subcategory = strings.TrimSpace(rule.Subcategory)
	return rule
}

func (s *Store) CreateRule(_ context.Context, rule core.CategoryRule) (core.CategoryRule, error) {
	rule = trimRule(rule)
	if err := rule.Validate(); err != nil {
		return core.CategoryRule{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.books[rule.AccountBookID]; !ok {
		return core.CategoryRule{}, fmt.Errorf("book %s: %w", rule.AccountBookID, storage.ErrNotFound)
	}
	if s.keywordTaken(rule.AccountBookID, rule.Keyword, "") {
		return core.CategoryRule{}, storage.ErrDuplicateRule
	}
	now := s.now()
	rule.ID = uuid.NewString()
	rule.CreatedAt, rule.UpdatedAt = now, now
	s.rules[rule.ID] = row[core.CategoryRule]{seq: s.next(), val: rule}
	return rule, nil
}

func (s *Store) UpdateRule(_ context.Context, rule core.CategoryRule) (core.CategoryRule, error) {
	rule = trimRule(rule)
	if err := rule.Validate(); err != nil {
		return core.CategoryRule{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[rule.ID]
	if !ok {
		return core.CategoryRule{}, fmt.Errorf("rule %s: %w", rule.ID, storage.ErrNotFound)
	}
	if s.keywordTaken(r.val.AccountBookID, rule.Keyword, rule.ID) {
		return core.CategoryRule{}, storage.ErrDuplicateRule
	}
	r.val.Keyword, r.val.Category, r.val.Subcategory = rule.Keyword, rule.Category, rule.Subcategory
	r.val.UpdatedAt = s.now()
	s.rules[rule.ID] = r
	return r.val, nil
}

func (s *Store) DeleteRule(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[id]; !ok {
		return fmt.Errorf("rule %s: %w", id, storage.ErrNotFound)
	}
	delete(s.rules, id)
	return nil
}

func (s *Store) ListCategories(_ context.Context, bookID string) ([]core.CategorySummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pairs [][2]string
	for _, r := range s.txs {
		if r.val.AccountBookID == bookID {
			pairs = append(pairs, [2]string{r.val.Category, r.val.Subcategory})
		}
	}
	return storage.GroupCategories(pairs), nil
}
