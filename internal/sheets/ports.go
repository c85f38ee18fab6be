// Package sheets publishes account balance histories to spreadsheets.
package sheets

import (
	"context"
	"fmt"
	"strings"

	"finances/internal/core"
)

// Ports for outbound adapters.
type (
	// BalanceExporter replaces the exported balance table of one account.
	BalanceExporter interface {
		ExportBalances(ctx context.Context, book core.AccountBook, account core.Account) (ref string, err error)
	}
)

// Header is the first row of every exported balance table.
var Header = []any{"Month", "Debits", "Credits", "Balance"}

// maxTitleLen is the longest sheet title Google Sheets accepts.
const maxTitleLen = 100

// BalanceRows renders the header followed by one row per history month,
// oldest first. Amounts are plain decimal strings so spreadsheets parse them
// as numbers.
func BalanceRows(account core.Account) [][]any {
	rows := make([][]any, 0, len(account.History)+1)
	rows = append(rows, Header)
	for _, m := range account.History {
		rows = append(rows, []any{m.Month, m.Debits.String(), m.Credits.String(), m.Balance.String()})
	}
	return rows
}

// SheetTitle names the tab that holds an account's balances:
// "<base> - <book> / <account>". Characters Sheets rejects in titles are
// replaced and the result is truncated to the accepted length.
func SheetTitle(base string, book core.AccountBook, account core.Account) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = "Balances"
	}
	title := fmt.Sprintf("%s - %s / %s", base, strings.TrimSpace(book.Name), strings.TrimSpace(account.Name))
	title = strings.NewReplacer("'", "", "[", "(", "]", ")", ":", " ", "*", " ", "?", " ", "\\", " ").Replace(title)
	if r := []rune(title); len(r) > maxTitleLen {
		title = string(r[:maxTitleLen])
	}
	return title
}
