// Package core provides money parsing and handling utilities.
//
// Amounts are fixed-point integers of cents. Decimal strings are parsed with
// shopspring/decimal and rounded to two places exactly once, at the edge;
// every sum after that is integer arithmetic, so repeated aggregation cannot
// drift.
package core

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is a signed amount with two decimal places, stored as cents.
type Money struct {
	Cents int64
}

// ParseMoney converts a signed decimal string to Money.
//
// Rounding is half away from zero on the third decimal place.
//
// Examples:
//
//	ParseMoney("12.34")   -> 1234
//	ParseMoney("-12.345") -> -1235
//	ParseMoney("12.344")  -> 1234
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return MoneyFromDecimal(d)
}

// MoneyFromDecimal rounds d to two places and converts it to cents.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	shifted := d.Round(2).Shift(2)
	cents := shifted.IntPart()
	// IntPart silently truncates values outside int64.
	if !decimal.NewFromInt(cents).Equal(shifted) {
		return Money{}, fmt.Errorf("%w: %s out of range", ErrInvalidAmount, d.String())
	}
	return Money{Cents: cents}, nil
}

// Decimal returns the exact decimal value of m.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String renders m with exactly two decimals, e.g. "-40.00".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }
func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }
func (m Money) Neg() Money        { return Money{Cents: -m.Cents} }

func (m Money) Abs() Money {
	if m.Cents < 0 {
		return m.Neg()
	}
	return m
}

func (m Money) IsZero() bool     { return m.Cents == 0 }
func (m Money) IsNegative() bool { return m.Cents < 0 }

// MarshalJSON encodes m as a decimal string so clients never see a float.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts either a decimal string or a bare JSON number.
func (m *Money) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" || raw == `""` {
		*m = Money{}
		return nil
	}
	raw = strings.Trim(raw, `"`)
	parsed, err := ParseMoney(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
