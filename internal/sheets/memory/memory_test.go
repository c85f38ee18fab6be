package memory

import (
	"context"
	"testing"

	"finances/internal/core"
)

func TestExportBalancesReplacesTable(t *testing.T) {
	s := New("Balances")
	book := core.AccountBook{Name: "Home"}
	acc := core.Account{Name: "Current", History: []core.MonthSnapshot{
		{Month: "2025-05", Balance: core.Money{Cents: 100}},
	}}

	ref, err := s.ExportBalances(context.Background(), book, acc)
	if err != nil || ref != "mem:Balances - Home / Current!A1:D2" {
		t.Fatalf("unexpected export: ref=%q err=%v", ref, err)
	}

	acc.History = append(acc.History, core.MonthSnapshot{Month: "2025-06", Balance: core.Money{Cents: 250}})
	if _, err := s.ExportBalances(context.Background(), book, acc); err != nil {
		t.Fatal(err)
	}

	rows, ok := s.Table("Balances - Home / Current")
	if !ok || len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %v", rows)
	}
	if rows[2][3] != "2.50" {
		t.Fatalf("unexpected last balance: %v", rows[2])
	}
	if s.Writes() != 2 {
		t.Fatalf("writes = %d", s.Writes())
	}
	if _, ok := s.Table("missing"); ok {
		t.Fatalf("unexpected table")
	}
}
