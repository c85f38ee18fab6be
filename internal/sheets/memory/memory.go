// Package memory is an in-process balance exporter used when no spreadsheet
// is configured, and by tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"finances/internal/core"
	ports "finances/internal/sheets"
)

type Store struct {
	mu       sync.Mutex
	baseName string
	tables   map[string][][]any
	writes   int
}

var _ ports.BalanceExporter = (*Store)(nil)

func New(baseName string) *Store {
	return &Store{baseName: baseName, tables: map[string][][]any{}}
}

// ExportBalances keeps the rendered table under its sheet title and returns a
// synthetic reference.
func (s *Store) ExportBalances(_ context.Context, book core.AccountBook, account core.Account) (string, error) {
	title := ports.SheetTitle(s.baseName, book, account)
	rows := ports.BalanceRows(account)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[title] = rows
	s.writes++
	return fmt.Sprintf("mem:%s!A1:D%d", title, len(rows)), nil
}

// Table returns a copy of the rows last written under title.
func (s *Store) Table(title string) ([][]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.tables[title]
	if !ok {
		return nil, false
	}
	return append([][]any(nil), rows...), true
}

// Writes returns how many exports were performed.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
