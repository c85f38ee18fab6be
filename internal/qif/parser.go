// Package qif reads the line oriented Quicken interchange format used by bank
// exports. Each line is a one character field code followed by its value and a
// line holding only "^" closes the current record.
//
// Dates are day-first (DD/MM/YY, DD/MM/YYYY or DD/MM). Parsing never stops on
// a bad record: every record either becomes an entry or produces exactly one
// error string, in file order.
package qif

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"finances/internal/core"
)

// IncompleteTrailingRecord is reported when input ends inside a record.
const IncompleteTrailingRecord = "incomplete trailing record (missing ^ terminator)"

type state int

const (
	idle state = iota
	accumulating
)

// record is the in-progress set of fields between two terminators.
type record struct {
	date        core.Date
	hasDate     bool
	description string
	memo        string
	category    string
	subcategory string
	debit       core.Money
	credit      core.Money
	hasAmount   bool
	fieldErr    string
}

// accumulator is threaded through the line fold. It is a value: step returns
// the next accumulator instead of mutating shared state.
type accumulator struct {
	state   state
	current record
	ordinal int
	entries []core.LedgerEntry
	errors  []string
}

// Parser converts interchange content into ledger entries.
type Parser struct {
	now func() time.Time
}

// NewParser returns a Parser that resolves year-less dates against the wall clock.
func NewParser() *Parser {
	return &Parser{now: time.Now}
}

// NewParserAt returns a Parser whose notion of the current year comes from now.
func NewParserAt(now func() time.Time) *Parser {
	return &Parser{now: now}
}

// Parse runs a default Parser over content.
func Parse(content []byte) core.ParseResult {
	return NewParser().Parse(content)
}

// Parse extracts every complete record from content. The result always holds
// both lists; deciding whether an empty entry list is fatal is up to the caller.
func (p *Parser) Parse(content []byte) core.ParseResult {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	year := p.now().Year()

	acc := accumulator{}
	for _, raw := range strings.Split(string(content), "\n") {
		acc = acc.step(strings.TrimSpace(raw), year)
	}
	return acc.finish()
}

func (a accumulator) step(line string, year int) accumulator {
	if line == "" || line[0] == '!' {
		return a
	}

	code, value := line[0], strings.TrimSpace(line[1:])
	switch code {
	case '^':
		// Only a bare caret ends a record; anything after it is a stray line.
		if line != "^" {
			return a
		}
		a.ordinal++
		if entry, err := a.current.close(); err != "" {
			a.errors = append(a.errors, fmt.Sprintf("record %d: %s", a.ordinal, err))
		} else {
			a.entries = append(a.entries, entry)
		}
		a.current = record{}
		a.state = idle
		return a

	case 'D':
		d, err := parseDate(value, year)
		if err != nil {
			a.current.fail(err.Error())
		} else {
			a.current.date, a.current.hasDate = d, true
		}

	case 'T', 'U':
		debit, credit, err := parseAmount(value)
		if err != nil {
			a.current.fail(err.Error())
		} else {
			a.current.debit, a.current.credit, a.current.hasAmount = debit, credit, true
		}

	case 'P':
		a.current.description = value

	case 'M':
		a.current.memo = value

	case 'L':
		if value == "" {
			return a
		}
		cat, sub, _ := strings.Cut(value, ":")
		a.current.category = strings.TrimSpace(cat)
		a.current.subcategory = strings.TrimSpace(sub)

	default:
		// N (check number), C (cleared status) and unknown codes carry nothing
		// we store and do not open a record.
		return a
	}

	a.state = accumulating
	return a
}

func (a accumulator) finish() core.ParseResult {
	if a.state == accumulating {
		a.errors = append(a.errors, IncompleteTrailingRecord)
	}
	entries := a.entries
	if entries == nil {
		entries = []core.LedgerEntry{}
	}
	errs := a.errors
	if errs == nil {
		errs = []string{}
	}
	return core.ParseResult{Entries: entries, Errors: errs}
}

// fail keeps the first field error seen in the record.
func (r *record) fail(msg string) {
	if r.fieldErr == "" {
		r.fieldErr = msg
	}
}

// close validates the record. Exactly one of the return values is set.
func (r record) close() (core.LedgerEntry, string) {
	switch {
	case r.fieldErr != "":
		return core.LedgerEntry{}, r.fieldErr
	case !r.hasDate:
		return core.LedgerEntry{}, "missing date"
	case r.description == "":
		return core.LedgerEntry{}, "missing description"
	case !r.hasAmount:
		return core.LedgerEntry{}, "missing amount"
	}
	return core.LedgerEntry{
		Date:        r.date,
		Description: r.description,
		Memo:        r.memo,
		Category:    r.category,
		Subcategory: r.subcategory,
		Debit:       r.debit,
		Credit:      r.credit,
	}.Normalize(), ""
}

// parseDate reads a day-first date. Two digit years below 50 land in the
// 2000s, the rest in the 1900s. A missing year means currentYear.
func parseDate(value string, currentYear int) (core.Date, error) {
	bad := fmt.Errorf("invalid date %q", value)

	parts := strings.Split(strings.ReplaceAll(value, "'", "/"), "/")
	if len(parts) != 2 && len(parts) != 3 {
		return core.Date{}, bad
	}
	nums := make([]int, len(parts))
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			return core.Date{}, bad
		}
		nums[i] = n
	}

	day, month, year := nums[0], nums[1], currentYear
	if len(nums) == 3 {
		year = nums[2]
		if year < 100 {
			if year < 50 {
				year += 2000
			} else {
				year += 1900
			}
		}
	}
	if day < 1 || day > 31 || month < 1 || month > 12 {
		return core.Date{}, bad
	}

	d := core.NewDate(year, time.Month(month), day)
	// time.Date normalises 31/04 into 01/05; treat that as a bad date.
	if d.Day() != day || d.Month() != time.Month(month) {
		return core.Date{}, bad
	}
	return d, nil
}

// parseAmount splits a signed amount into its debit and credit halves.
func parseAmount(value string) (debit, credit core.Money, err error) {
	m, perr := core.ParseMoney(strings.ReplaceAll(value, ",", ""))
	if perr != nil {
		return core.Money{}, core.Money{}, fmt.Errorf("invalid amount %q", value)
	}
	if m.IsNegative() {
		return m.Abs(), core.Money{}, nil
	}
	return core.Money{}, m, nil
}
