package core

import (
	"encoding/json"
	"testing"
)

func TestParseMoney(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"-1.23", -123, true},
		{"0.01", 1, true},
		{"0", 0, true},
		{"1.005", 101, true}, // half away from zero
		{"-1.005", -101, true},
		{"1.004", 100, true},
		{" 2.50 ", 250, true},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
		{"99999999999999999999999", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseMoney(tc.in)
		if tc.ok {
			if err != nil || got.Cents != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got.Cents, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error, got %d", tc.in, got.Cents)
		}
	}
}

func TestMoneyString(t *testing.T) {
	cases := map[int64]string{
		0:      "0.00",
		1:      "0.01",
		-4000:  "-40.00",
		123456: "1234.56",
	}
	for cents, want := range cases {
		if got := (Money{Cents: cents}).String(); got != want {
			t.Errorf("Money{%d}.String() = %q, want %q", cents, got, want)
		}
	}
}

func TestMoneyArithmetic(t *testing.T) {
	a := Money{Cents: 10000}
	b := Money{Cents: 4000}
	if got := a.Sub(b); got.Cents != 6000 {
		t.Fatalf("Sub = %d", got.Cents)
	}
	if got := b.Sub(a).Abs(); got.Cents != 6000 {
		t.Fatalf("Abs = %d", got.Cents)
	}
	if !b.Sub(a).IsNegative() {
		t.Fatalf("expected negative")
	}
}

func TestMoneyJSON(t *testing.T) {
	b, err := json.Marshal(Money{Cents: -4050})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `"-40.50"` {
		t.Fatalf("marshal = %s", b)
	}

	for _, in := range []string{`"12.30"`, `12.3`} {
		var m Money
		if err := json.Unmarshal([]byte(in), &m); err != nil {
			t.Fatalf("unmarshal %s: %v", in, err)
		}
		if m.Cents != 1230 {
			t.Fatalf("unmarshal %s = %d", in, m.Cents)
		}
	}
}
