// Package rules assigns categories to ledger entries from a book's keyword
// rules.
//
// Rules are evaluated in the order they were created and the first rule with
// any keyword contained in the description wins. A later, more specific rule
// is never consulted once an earlier one has matched, so users control
// precedence by ordering their rules.
package rules

import (
	"context"
	"log/slog"
	"strings"

	"finances/internal/core"
	applog "finances/internal/log"
)

// RuleSource yields a book's rules in creation order.
type RuleSource interface {
	ListRules(ctx context.Context, bookID string) ([]core.CategoryRule, error)
}

// Match returns the category pair of the first rule whose keywords appear in
// description. ok is false when no rule matches.
func Match(rules []core.CategoryRule, description string) (category, subcategory string, ok bool) {
	desc := strings.ToLower(description)
	for _, r := range rules {
		for _, kw := range r.Keywords() {
			if strings.Contains(desc, kw) {
				return r.Category, r.Subcategory, true
			}
		}
	}
	return "", "", false
}

// Matcher applies Match against rules loaded from a RuleSource.
type Matcher struct {
	source RuleSource
}

func NewMatcher(source RuleSource) *Matcher {
	return &Matcher{source: source}
}

// MatchCategory returns the matched category pair, or the existing pair when
// nothing matches. Lookup failures are logged and never returned.
func (m *Matcher) MatchCategory(ctx context.Context, bookID, description, existingCategory, existingSubcategory string) (string, string) {
	rules, err := m.source.ListRules(ctx, bookID)
	if err != nil {
		slog.WarnContext(ctx, "Rule lookup failed, keeping category",
			applog.FieldComponent, applog.ComponentRules,
			applog.FieldBookID, bookID,
			applog.FieldError, err)
		return existingCategory, existingSubcategory
	}
	if cat, sub, ok := Match(rules, description); ok {
		return cat, sub
	}
	return existingCategory, existingSubcategory
}

// Apply categorizes every entry against one rule snapshot. Entries keep their
// own pair when no rule matches.
func (m *Matcher) Apply(ctx context.Context, bookID string, entries []core.LedgerEntry) []core.LedgerEntry {
	rules, err := m.source.ListRules(ctx, bookID)
	if err != nil {
		slog.WarnContext(ctx, "Rule lookup failed, keeping categories",
			applog.FieldComponent, applog.ComponentRules,
			applog.FieldBookID, bookID,
			applog.FieldError, err)
		return entries
	}
	out := make([]core.LedgerEntry, len(entries))
	for i, e := range entries {
		if cat, sub, ok := Match(rules, e.Description); ok {
			e.Category, e.Subcategory = cat, sub
		}
		out[i] = e
	}
	return out
}
