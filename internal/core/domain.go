package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultCategory is assigned to entries that carry no category line.
	DefaultCategory = "Uncategorized"

	// HistoryMonths is the length of the rolling balance series kept per account.
	HistoryMonths = 24

	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
)

type (
	// Date is a calendar date at UTC midnight. The time component is always zero.
	Date struct {
		time.Time
	}

	// LedgerEntry is a candidate transaction before persistence.
	// Debit and Credit are both kept verbatim; the signed amount is Credit - Debit.
	LedgerEntry struct {
		Date        Date   `json:"transactionDate"`
		Description string `json:"description"`
		Memo        string `json:"memo,omitempty"`
		Category    string `json:"category"`
		Subcategory string `json:"subCategory"`
		Debit       Money  `json:"debitAmount"`
		Credit      Money  `json:"creditAmount"`
	}

	// Transaction is a persisted ledger entry owned by one account.
	Transaction struct {
		ID            string `json:"id"`
		AccountID     string `json:"accountId"`
		AccountBookID string `json:"accountBookId"`
		LedgerEntry
		LinkedTransactionID string    `json:"linkedTransactionId,omitempty"`
		CreatedAt           time.Time `json:"createdAt"`
		UpdatedAt           time.Time `json:"updatedAt"`
	}

	// AccountBook groups accounts and the category rules they share.
	AccountBook struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	// Account holds a running ledger. Current and History are derived from the
	// account's transactions and are rewritten on every recompute.
	Account struct {
		ID            string          `json:"id"`
		AccountBookID string          `json:"accountBookId"`
		Name          string          `json:"name"`
		Current       MonthSnapshot   `json:"currentMonth"`
		History       []MonthSnapshot `json:"historicalBalance"`
		CreatedAt     time.Time       `json:"createdAt"`
		UpdatedAt     time.Time       `json:"updatedAt"`
	}

	// CategoryRule maps any of its comma separated keywords to a category pair.
	CategoryRule struct {
		ID            string    `json:"id"`
		AccountBookID string    `json:"accountBookId"`
		Keyword       string    `json:"keyword"`
		Category      string    `json:"category"`
		Subcategory   string    `json:"subCategory"`
		CreatedAt     time.Time `json:"createdAt"`
		UpdatedAt     time.Time `json:"updatedAt"`
	}

	// ParseResult is what the interchange parser extracted from one file.
	ParseResult struct {
		Entries []LedgerEntry `json:"transactions"`
		Errors  []string      `json:"errors"`
	}

	// ImportResult summarises a file import. It is never stored.
	ImportResult struct {
		Imported    int      `json:"imported"`
		Failed      int      `json:"failed"`
		ParseErrors int      `json:"parseErrors"`
		Errors      []string `json:"errors"`

		// RecomputeFailed is set when entries were stored but the account's
		// aggregates could not be rebuilt; a later recompute repairs them.
		RecomputeFailed bool `json:"recomputeFailed,omitempty"`
	}

	// DateRange is an inclusive range of calendar dates.
	DateRange struct {
		From Date
		To   Date
	}
)

var (
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrNegativeAmount   = errors.New("amounts must not be negative")
	ErrEmptyDescription = errors.New("empty description")
	ErrDescriptionLong  = errors.New("description too long (max 500 characters)")
	ErrEmptyCategory    = errors.New("empty category")
	ErrEmptyKeyword     = errors.New("empty keyword")
	ErrEmptyName        = errors.New("empty name")
)

// NewDate creates a new Date from year, month, day
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

// MonthKey returns the YYYY-MM key of the month containing d.
func (d Date) MonthKey() string {
	return d.Format(monthLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDate, b)
	}
	// Accept full timestamps too, keeping only the calendar part.
	if len(s) > len(dateLayout) {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidDate, s)
		}
		*d = DateOf(t)
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Contains reports whether d falls inside the range, bounds included.
// A zero bound is open.
func (r DateRange) Contains(d Date) bool {
	if !r.From.IsZero() && d.Before(r.From.Time) {
		return false
	}
	if !r.To.IsZero() && d.After(r.To.Time) {
		return false
	}
	return true
}

// SignedAmount returns credit minus debit.
func (e LedgerEntry) SignedAmount() Money {
	return e.Credit.Sub(e.Debit)
}

// Normalize trims free-text fields and applies the default category.
func (e LedgerEntry) Normalize() LedgerEntry {
	e.Description = strings.TrimSpace(e.Description)
	e.Memo = strings.TrimSpace(e.Memo)
	e.Category = strings.TrimSpace(e.Category)
	e.Subcategory = strings.TrimSpace(e.Subcategory)
	if e.Category == "" {
		e.Category = DefaultCategory
	}
	return e
}

func (e LedgerEntry) Validate() error {
	if e.Date.IsZero() {
		return ErrInvalidDate
	}
	if strings.TrimSpace(e.Description) == "" {
		return ErrEmptyDescription
	}
	if len(e.Description) > 500 {
		return ErrDescriptionLong
	}
	if e.Debit.IsNegative() || e.Credit.IsNegative() {
		return ErrNegativeAmount
	}
	return nil
}

// Keywords returns the rule's non-empty, lowercased keyword tokens.
func (r CategoryRule) Keywords() []string {
	parts := strings.Split(r.Keyword, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (r CategoryRule) Validate() error {
	if len(r.Keywords()) == 0 {
		return ErrEmptyKeyword
	}
	if strings.TrimSpace(r.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}

// HasErrors reports whether the parse produced any structural error.
func (p ParseResult) HasErrors() bool {
	return len(p.Errors) > 0
}
