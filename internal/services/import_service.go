package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"finances/internal/core"
	"finances/internal/lock"
	applog "finances/internal/log"
	"finances/internal/qif"
	"finances/internal/rules"
	"finances/internal/storage"
)

// MaxReportedErrors caps ImportResult.Errors. Counts are never capped.
const MaxReportedErrors = 50

var (
	// ErrImportRejected is returned when a file yields no entries at all.
	ErrImportRejected = errors.New("import rejected: no valid transactions")

	// ErrCrossBookMove is returned when an update would move a transaction
	// into an account of another book.
	ErrCrossBookMove = errors.New("transaction cannot move to another account book")

	// ErrAccountNotInBook is returned when an account is addressed through a
	// book it does not belong to.
	ErrAccountNotInBook = errors.New("account does not belong to this account book")
)

// RejectedError carries the parse errors of a rejected import.
type RejectedError struct {
	Errors []string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s (%d errors)", ErrImportRejected.Error(), len(e.Errors))
}

func (e *RejectedError) Unwrap() error { return ErrImportRejected }

// ImportService turns an interchange file into stored transactions of one
// account and refreshes its aggregates.
type ImportService struct {
	store   storage.Store
	matcher *rules.Matcher
	ledger  *LedgerService
	locks   *lock.Keyed
	parser  *qif.Parser
}

// NewImportService shares locks with ledger so imports and single-entry
// writes to the same account are serialized.
func NewImportService(store storage.Store, matcher *rules.Matcher, ledger *LedgerService, locks *lock.Keyed) *ImportService {
	return &ImportService{
		store:   store,
		matcher: matcher,
		ledger:  ledger,
		locks:   locks,
		parser:  qif.NewParser(),
	}
}

// WithParser replaces the parser, typically to pin the current year.
func (s *ImportService) WithParser(p *qif.Parser) *ImportService {
	s.parser = p
	return s
}

// ImportFile parses content, categorizes and stores every entry, then
// recomputes the account once. Persistence failures of single entries are
// reported in the result and do not stop the import.
func (s *ImportService) ImportFile(ctx context.Context, accountID string, content []byte) (core.ImportResult, error) {
	acc, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return core.ImportResult{}, err
	}

	parsed := s.parser.Parse(content)
	if len(parsed.Entries) == 0 && parsed.HasErrors() {
		slog.WarnContext(ctx, "Import rejected",
			applog.FieldComponent, applog.ComponentImport,
			applog.FieldAccountID, accountID,
			applog.FieldParseErrors, len(parsed.Errors))
		return core.ImportResult{}, &RejectedError{Errors: capErrors(parsed.Errors)}
	}

	entries := s.matcher.Apply(ctx, acc.AccountBookID, parsed.Entries)

	result := core.ImportResult{ParseErrors: len(parsed.Errors)}
	errs := append([]string(nil), parsed.Errors...)

	unlock := s.locks.Lock(accountID)
	defer unlock()

	for _, e := range entries {
		if _, err := s.store.InsertTransaction(ctx, accountID, e); err != nil {
			result.Failed++
			errs = append(errs, fmt.Sprintf("failed to import %q: %v", e.Description, err))
			continue
		}
		result.Imported++
	}

	result.Errors = capErrors(errs)
	if result.Imported > 0 {
		// Rows are stored either way; the failure goes into the summary.
		if err := s.ledger.recomputeLocked(ctx, accountID, "import"); err != nil {
			slog.ErrorContext(ctx, "Recompute after import failed",
				applog.FieldComponent, applog.ComponentImport,
				applog.FieldAccountID, accountID,
				applog.FieldError, err)
			result.RecomputeFailed = true
			result.Errors = append(result.Errors, fmt.Sprintf("failed to recompute balances: %v", err))
		}
	}

	applog.NewStructuredLogger(applog.FromContext(ctx)).
		LogImportCompleted(ctx, accountID, acc.AccountBookID, result.Imported, result.Failed, result.ParseErrors)
	return result, nil
}

func capErrors(errs []string) []string {
	if len(errs) <= MaxReportedErrors {
		if errs == nil {
			return []string{}
		}
		return errs
	}
	out := make([]string, 0, MaxReportedErrors+1)
	out = append(out, errs[:MaxReportedErrors]...)
	return append(out, fmt.Sprintf("... and %d more errors", len(errs)-MaxReportedErrors))
}

// Preview parses content without storing anything and applies the book's
// rules to the entries.
func (s *ImportService) Preview(ctx context.Context, bookID string, content []byte) core.ParseResult {
	parsed := s.parser.Parse(content)
	if bookID != "" {
		parsed.Entries = s.matcher.Apply(ctx, bookID, parsed.Entries)
	}
	return parsed
}

// IsRejected extracts the error list of a rejected import.
func IsRejected(err error) ([]string, bool) {
	var rej *RejectedError
	if errors.As(err, &rej) {
		return rej.Errors, true
	}
	return nil, false
}
