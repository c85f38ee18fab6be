package qif

import (
	"strings"
	"testing"
	"time"

	"finances/internal/core"
)

func fixedParser() *Parser {
	return NewParserAt(func() time.Time {
		return time.Date(2025, time.June, 15, 10, 0, 0, 0, time.UTC)
	})
}

func parse(t *testing.T, lines ...string) core.ParseResult {
	t.Helper()
	return fixedParser().Parse([]byte(strings.Join(lines, "\n")))
}

func TestParse_SingleRecord(t *testing.T) {
	res := parse(t,
		"!Type:Bank",
		"D05/03/2024",
		"T-40.00",
		"PTESCO STORES",
		"MWeekly shop",
		"LGroceries:Food",
		"N1001",
		"CX",
		"^",
	)
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	if len(res.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(res.Entries))
	}
	e := res.Entries[0]
	if e.Date.String() != "2024-03-05" {
		t.Fatalf("date: got %s", e.Date)
	}
	if e.Description != "TESCO STORES" || e.Memo != "Weekly shop" {
		t.Fatalf("text fields: %+v", e)
	}
	if e.Category != "Groceries" || e.Subcategory != "Food" {
		t.Fatalf("category: %q/%q", e.Category, e.Subcategory)
	}
	if e.Debit.Cents != 4000 || e.Credit.Cents != 0 {
		t.Fatalf("amounts: debit=%d credit=%d", e.Debit.Cents, e.Credit.Cents)
	}
}

func TestParse_CreditAndDefaults(t *testing.T) {
	res := parse(t, "D01/01/2025", "T1,250.505", "PSalary", "^")
	if len(res.Entries) != 1 || len(res.Errors) != 0 {
		t.Fatalf("got %d entries, errors %v", len(res.Entries), res.Errors)
	}
	e := res.Entries[0]
	if e.Credit.Cents != 125051 || e.Debit.Cents != 0 {
		t.Fatalf("amounts: debit=%d credit=%d", e.Debit.Cents, e.Credit.Cents)
	}
	if e.Category != core.DefaultCategory || e.Subcategory != "" {
		t.Fatalf("expected default category, got %q/%q", e.Category, e.Subcategory)
	}
}

func TestParse_CRLFAndBlankLines(t *testing.T) {
	in := "!Type:Bank\r\n\r\nD02/01/25\r\nT10\r\nPCoffee\r\n^\r\n"
	res := fixedParser().Parse([]byte(in))
	if len(res.Entries) != 1 || len(res.Errors) != 0 {
		t.Fatalf("got %d entries, errors %v", len(res.Entries), res.Errors)
	}
}

func TestParse_GoodAndBadRecords(t *testing.T) {
	// 3 good, 2 bad (each missing exactly one required field).
	res := parse(t,
		"D01/02/2025", "T-1", "PA", "^",
		"T-2", "PB", "^", // missing date
		"D03/02/2025", "T-3", "PC", "^",
		"D04/02/2025", "PD", "^", // missing amount
		"D05/02/2025", "T5", "PE", "^",
	)
	if len(res.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(res.Entries))
	}
	want := []string{"record 2: missing date", "record 4: missing amount"}
	if len(res.Errors) != len(want) {
		t.Fatalf("expected %v, got %v", want, res.Errors)
	}
	for i := range want {
		if res.Errors[i] != want[i] {
			t.Errorf("error %d: got %q want %q", i, res.Errors[i], want[i])
		}
	}
	for i, d := range []string{"A", "C", "E"} {
		if res.Entries[i].Description != d {
			t.Errorf("entry %d: got %q", i, res.Entries[i].Description)
		}
	}
}

func TestParse_MissingFieldOrder(t *testing.T) {
	cases := []struct {
		name  string
		lines []string
		want  string
	}{
		{"nothing", []string{"^"}, "record 1: missing date"},
		{"no description", []string{"D01/01/2025", "T1", "^"}, "record 1: missing description"},
		{"empty description", []string{"D01/01/2025", "P", "T1", "^"}, "record 1: missing description"},
		{"no date or amount", []string{"Pdesc", "^"}, "record 1: missing date"},
		{"bad amount", []string{"D01/01/2025", "Tabc", "Pdesc", "^"}, `record 1: invalid amount "abc"`},
		{"bad date wins", []string{"D40/01/2025", "Tabc", "^"}, `record 1: invalid date "40/01/2025"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := parse(t, tc.lines...)
			if len(res.Entries) != 0 {
				t.Fatalf("expected no entries, got %d", len(res.Entries))
			}
			if len(res.Errors) != 1 || res.Errors[0] != tc.want {
				t.Fatalf("got %v, want [%s]", res.Errors, tc.want)
			}
		})
	}
}

func TestParse_TrailingRecord(t *testing.T) {
	res := parse(t, "D01/01/2025", "T1", "PA", "^", "D02/01/2025", "T2", "PB")
	if len(res.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(res.Entries))
	}
	if len(res.Errors) != 1 || res.Errors[0] != IncompleteTrailingRecord {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
}

func TestParse_IgnoredCodesDoNotOpenRecord(t *testing.T) {
	res := parse(t, "D01/01/2025", "T1", "PA", "^", "N42", "CX", "Xwhatever")
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
}

func TestParse_OnlyBareCaretTerminates(t *testing.T) {
	res := parse(t, "D01/01/2025", "T-5.00", "^junk", "PCoffee", "^", "^trailer")
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	if len(res.Entries) != 1 || res.Entries[0].Description != "Coffee" || res.Entries[0].Debit.Cents != 500 {
		t.Fatalf("entries = %+v", res.Entries)
	}

	res = parse(t, "D01/01/2025", "T-5.00", "PCoffee", "^x")
	if len(res.Entries) != 0 || len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "incomplete trailing record") {
		t.Fatalf("unterminated record: %+v", res)
	}
}

func TestParse_EmptyInput(t *testing.T) {
	res := fixedParser().Parse(nil)
	if res.Entries == nil || res.Errors == nil {
		t.Fatalf("expected non-nil slices")
	}
	if len(res.Entries) != 0 || len(res.Errors) != 0 {
		t.Fatalf("expected empty result, got %+v", res)
	}
}

func TestParse_LastDescriptionWins(t *testing.T) {
	res := parse(t, "D01/01/2025", "PFirst", "T1", "PSecond", "^")
	if len(res.Entries) != 1 || res.Entries[0].Description != "Second" {
		t.Fatalf("unexpected: %+v", res)
	}
}

func TestParse_CategoryKeepsExtraColons(t *testing.T) {
	res := parse(t, "D01/01/2025", "PA", "T1", "L[Savings]", "^", "D01/01/2025", "PB", "T1", "LBills:Phone:Mobile", "^")
	if len(res.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %v", res.Errors)
	}
	if res.Entries[0].Category != "[Savings]" {
		t.Fatalf("transfer category: %q", res.Entries[0].Category)
	}
	if res.Entries[1].Category != "Bills" || res.Entries[1].Subcategory != "Phone:Mobile" {
		t.Fatalf("split: %q/%q", res.Entries[1].Category, res.Entries[1].Subcategory)
	}
}

func TestParseDate(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"29/02/20", "2020-02-29", true},
		{"05/03/2024", "2024-03-05", true},
		{"1/2/49", "2049-02-01", true},
		{"1/2/50", "1950-02-01", true},
		{"31/12/99", "1999-12-31", true},
		{"5/3'24", "2024-03-05", true},
		{"07/08", "2025-08-07", true},
		{" 1/ 2/2024", "2024-02-01", true},
		{"31/04/2024", "", false},
		{"29/02/2021", "", false},
		{"31/13/2024", "", false},
		{"0/1/2024", "", false},
		{"32/01/2024", "", false},
		{"aa/01/2024", "", false},
		{"2024-01-01", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		d, err := parseDate(tc.in, 2025)
		if !tc.ok {
			if err == nil {
				t.Errorf("%q: expected error, got %s", tc.in, d)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: unexpected error %v", tc.in, err)
			continue
		}
		if d.String() != tc.want {
			t.Errorf("%q: got %s want %s", tc.in, d, tc.want)
		}
	}
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in            string
		debit, credit int64
		ok            bool
	}{
		{"-40.00", 4000, 0, true},
		{"-40.005", 4001, 0, true},
		{"0", 0, 0, true},
		{"12", 0, 1200, true},
		{"-1,234.56", 123456, 0, true},
		{"", 0, 0, false},
		{"-", 0, 0, false},
		{"12abc", 0, 0, false},
	}
	for _, tc := range cases {
		d, c, err := parseAmount(tc.in)
		if tc.ok != (err == nil) {
			t.Errorf("%q: err=%v", tc.in, err)
			continue
		}
		if tc.ok && (d.Cents != tc.debit || c.Cents != tc.credit) {
			t.Errorf("%q: got debit=%d credit=%d", tc.in, d.Cents, c.Cents)
		}
	}
}
