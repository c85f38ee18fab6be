package sheets

import (
	"strings"
	"testing"

	"finances/internal/core"
)

func TestBalanceRows(t *testing.T) {
	acc := core.Account{History: []core.MonthSnapshot{
		{Month: "2025-04", Credits: core.Money{Cents: 10000}, Balance: core.Money{Cents: 10000}},
		{Month: "2025-05", Debits: core.Money{Cents: 4005}, Balance: core.Money{Cents: 5995}},
	}}
	rows := BalanceRows(acc)
	if len(rows) != 3 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0][0] != "Month" || rows[0][3] != "Balance" {
		t.Fatalf("header = %v", rows[0])
	}
	want := []any{"2025-05", "40.05", "0.00", "59.95"}
	for i, v := range want {
		if rows[2][i] != v {
			t.Fatalf("row 2 col %d = %v, want %v", i, rows[2][i], v)
		}
	}
	if got := BalanceRows(core.Account{}); len(got) != 1 {
		t.Fatalf("empty history should render only the header, got %d rows", len(got))
	}
}

func TestSheetTitle(t *testing.T) {
	book := core.AccountBook{Name: "Home"}
	cases := []struct {
		base, account, want string
	}{
		{"Balances", "Current", "Balances - Home / Current"},
		{"", "Current", "Balances - Home / Current"},
		{"Balances", "Joint [old]: 'A'", "Balances - Home / Joint (old)  A"},
	}
	for _, tc := range cases {
		if got := SheetTitle(tc.base, book, core.Account{Name: tc.account}); got != tc.want {
			t.Errorf("SheetTitle(%q, %q) = %q, want %q", tc.base, tc.account, got, tc.want)
		}
	}

	long := SheetTitle("Balances", book, core.Account{Name: strings.Repeat("x", 200)})
	if len([]rune(long)) != maxTitleLen {
		t.Fatalf("title not truncated: %d", len(long))
	}
}
