package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"finances/internal/core"

	_ "modernc.org/sqlite"
)

// Fixed width so that stored stamps sort lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; SQLite serializes them anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) stamp() string {
	return r.now().UTC().Format(timeLayout)
}

func parseStamp(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		if t, err = time.Parse(time.RFC3339Nano, s); err != nil {
			return time.Time{}
		}
	}
	return t
}

func notFound(what, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return fmt.Errorf("get %s: %w", what, err)
}

// Books

func (r *SQLiteRepository) CreateBook(ctx context.Context, name string) (core.AccountBook, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.AccountBook{}, core.ErrEmptyName
	}
	now := r.stamp()
	b := core.AccountBook{ID: uuid.NewString(), Name: name, CreatedAt: parseStamp(now), UpdatedAt: parseStamp(now)}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO account_books (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		b.ID, b.Name, now, now)
	if err != nil {
		return core.AccountBook{}, fmt.Errorf("insert book: %w", err)
	}
	return b, nil
}

func (r *SQLiteRepository) GetBook(ctx context.Context, id string) (core.AccountBook, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, created_at, updated_at FROM account_books WHERE id = ?`, id)
	b, err := scanBook(row)
	if err != nil {
		return core.AccountBook{}, notFound("book", id, err)
	}
	return b, nil
}

func (r *SQLiteRepository) ListBooks(ctx context.Context) ([]core.AccountBook, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, created_at, updated_at FROM account_books ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	var out []core.AccountBook
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBook(s scanner) (core.AccountBook, error) {
	var b core.AccountBook
	var created, updated string
	if err := s.Scan(&b.ID, &b.Name, &created, &updated); err != nil {
		return core.AccountBook{}, err
	}
	b.CreatedAt, b.UpdatedAt = parseStamp(created), parseStamp(updated)
	return b, nil
}

// Accounts

const accountColumns = `id, account_book_id, name, current_month, current_debits_cents,
	current_credits_cents, current_balance_cents, history_json, created_at, updated_at`

func (r *SQLiteRepository) CreateAccount(ctx context.Context, bookID, name string) (core.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Account{}, core.ErrEmptyName
	}
	if _, err := r.GetBook(ctx, bookID); err != nil {
		return core.Account{}, err
	}

	now := r.stamp()
	a := core.Account{
		ID:            uuid.NewString(),
		AccountBookID: bookID,
		Name:          name,
		History:       []core.MonthSnapshot{},
		CreatedAt:     parseStamp(now),
		UpdatedAt:     parseStamp(now),
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, account_book_id, name, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.AccountBookID, a.Name, now, now)
	if err != nil {
		return core.Account{}, fmt.Errorf("insert account: %w", err)
	}
	return a, nil
}

func (r *SQLiteRepository) DeleteAccount(ctx context.Context, id string) (int, error) {
	dbtx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin account delete: %w", err)
	}
	defer dbtx.Rollback()

	res, err := dbtx.ExecContext(ctx, `DELETE FROM transactions WHERE account_id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("delete account transactions: %w", err)
	}
	txs, _ := res.RowsAffected()

	res, err = dbtx.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("delete account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	if err := dbtx.Commit(); err != nil {
		return 0, fmt.Errorf("commit account delete: %w", err)
	}
	return int(txs), nil
}

func (r *SQLiteRepository) GetAccount(ctx context.Context, id string) (core.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if err != nil {
		return core.Account{}, notFound("account", id, err)
	}
	return a, nil
}

func (r *SQLiteRepository) ListAccounts(ctx context.Context, bookID string) ([]core.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE account_book_id = ? ORDER BY created_at, rowid`, bookID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []core.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAccount(s scanner) (core.Account, error) {
	var a core.Account
	var history, created, updated string
	if err := s.Scan(&a.ID, &a.AccountBookID, &a.Name, &a.Current.Month,
		&a.Current.Debits.Cents, &a.Current.Credits.Cents, &a.Current.Balance.Cents,
		&history, &created, &updated); err != nil {
		return core.Account{}, err
	}
	if err := json.Unmarshal([]byte(history), &a.History); err != nil {
		return core.Account{}, fmt.Errorf("decode history of account %s: %w", a.ID, err)
	}
	if a.History == nil {
		a.History = []core.MonthSnapshot{}
	}
	a.CreatedAt, a.UpdatedAt = parseStamp(created), parseStamp(updated)
	return a, nil
}

func (r *SQLiteRepository) WriteAccountAggregates(ctx context.Context, accountID string, current core.MonthSnapshot, history []core.MonthSnapshot) error {
	encoded, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET
			current_month = ?, current_debits_cents = ?, current_credits_cents = ?,
			current_balance_cents = ?, history_json = ?, updated_at = ?
		WHERE id = ?`,
		current.Month, current.Debits.Cents, current.Credits.Cents, current.Balance.Cents,
		string(encoded), r.stamp(), accountID)
	if err != nil {
		return fmt.Errorf("update aggregates: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}
	return nil
}

// Transactions

const transactionColumns = `id, account_id, account_book_id, transaction_date, description, memo,
	category, sub_category, debit_cents, credit_cents, linked_transaction_id, created_at, updated_at`

func (r *SQLiteRepository) InsertTransaction(ctx context.Context, accountID string, entry core.LedgerEntry) (string, error) {
	entry = entry.Normalize()
	if err := entry.Validate(); err != nil {
		return "", err
	}

	id := uuid.NewString()
	now := r.stamp()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		SELECT ?, id, account_book_id, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?
		FROM accounts WHERE id = ?`,
		id, entry.Date.String(), entry.Description, entry.Memo,
		entry.Category, entry.Subcategory, entry.Debit.Cents, entry.Credit.Cents,
		now, now, accountID)
	if err != nil {
		return "", fmt.Errorf("insert transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}
	return id, nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	tx, err := scanTransaction(row)
	if err != nil {
		return core.Transaction{}, notFound("transaction", id, err)
	}
	return tx, nil
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, accountID string, dr *core.DateRange) ([]core.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE account_id = ?`
	args := []any{accountID}
	if dr != nil {
		if !dr.From.IsZero() {
			query += ` AND transaction_date >= ?`
			args = append(args, dr.From.String())
		}
		if !dr.To.IsZero() {
			query += ` AND transaction_date <= ?`
			args = append(args, dr.To.String())
		}
	}
	query += ` ORDER BY transaction_date, created_at, rowid`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func scanTransaction(s scanner) (core.Transaction, error) {
	var tx core.Transaction
	var date, created, updated string
	var linked sql.NullString
	if err := s.Scan(&tx.ID, &tx.AccountID, &tx.AccountBookID, &date, &tx.Description, &tx.Memo,
		&tx.Category, &tx.Subcategory, &tx.Debit.Cents, &tx.Credit.Cents, &linked,
		&created, &updated); err != nil {
		return core.Transaction{}, err
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", tx.ID, err)
	}
	tx.Date = d
	tx.LinkedTransactionID = linked.String
	tx.CreatedAt, tx.UpdatedAt = parseStamp(created), parseStamp(updated)
	return tx, nil
}

func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, tx core.Transaction) error {
	tx.LedgerEntry = tx.LedgerEntry.Normalize()
	if err := tx.Validate(); err != nil {
		return err
	}
	account, err := r.GetAccount(ctx, tx.AccountID)
	if err != nil {
		return err
	}

	var linked any
	if tx.LinkedTransactionID != "" {
		linked = tx.LinkedTransactionID
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions SET
			account_id = ?, account_book_id = ?, transaction_date = ?, description = ?, memo = ?,
			category = ?, sub_category = ?, debit_cents = ?, credit_cents = ?,
			linked_transaction_id = ?, updated_at = ?
		WHERE id = ?`,
		account.ID, account.AccountBookID, tx.Date.String(), tx.Description, tx.Memo,
		tx.Category, tx.Subcategory, tx.Debit.Cents, tx.Credit.Cents,
		linked, r.stamp(), tx.ID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("transaction %s: %w", tx.ID, ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) DeleteTransactions(ctx context.Context, ids []string) (int, error) {
	dbtx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin bulk delete: %w", err)
	}
	defer dbtx.Rollback()

	deleted := 0
	for _, id := range ids {
		res, err := dbtx.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
		if err != nil {
			return 0, fmt.Errorf("delete transaction %s: %w", id, err)
		}
		n, _ := res.RowsAffected()
		deleted += int(n)
	}
	if err := dbtx.Commit(); err != nil {
		return 0, fmt.Errorf("commit bulk delete: %w", err)
	}
	return deleted, nil
}

// Rules

const ruleColumns = `id, account_book_id, keyword, category, sub_category, created_at, updated_at`

func (r *SQLiteRepository) ListRules(ctx context.Context, bookID string) ([]core.CategoryRule, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ruleColumns+` FROM category_rules WHERE account_book_id = ? ORDER BY rowid`, bookID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var out []core.CategoryRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetRule(ctx context.Context, id string) (core.CategoryRule, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM category_rules WHERE id = ?`, id)
	rule, err := scanRule(row)
	if err != nil {
		return core.CategoryRule{}, notFound("rule", id, err)
	}
	return rule, nil
}

func scanRule(s scanner) (core.CategoryRule, error) {
	var rule core.CategoryRule
	var created, updated string
	if err := s.Scan(&rule.ID, &rule.AccountBookID, &rule.Keyword, &rule.Category,
		&rule.Subcategory, &created, &updated); err != nil {
		return core.CategoryRule{}, err
	}
	rule.CreatedAt, rule.UpdatedAt = parseStamp(created), parseStamp(updated)
	return rule, nil
}

func (r *SQLiteRepository) keywordTaken(ctx context.Context, bookID, keyword, exceptID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM category_rules
		WHERE account_book_id = ? AND keyword = ? COLLATE NOCASE AND id <> ?`,
		bookID, keyword, exceptID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check duplicate keyword: %w", err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) CreateRule(ctx context.Context, rule core.CategoryRule) (core.CategoryRule, error) {
	rule = trimRule(rule)
	if err := rule.Validate(); err != nil {
		return core.CategoryRule{}, err
	}
	if _, err := r.GetBook(ctx, rule.AccountBookID); err != nil {
		return core.CategoryRule{}, err
	}
	taken, err := r.keywordTaken(ctx, rule.AccountBookID, rule.Keyword, "")
	if err != nil {
		return core.CategoryRule{}, err
	}
	if taken {
		return core.CategoryRule{}, ErrDuplicateRule
	}

	now := r.stamp()
	rule.ID = uuid.NewString()
	rule.CreatedAt, rule.UpdatedAt = parseStamp(now), parseStamp(now)
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO category_rules (`+ruleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.AccountBookID, rule.Keyword, rule.Category, rule.Subcategory, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return core.CategoryRule{}, ErrDuplicateRule
		}
		return core.CategoryRule{}, fmt.Errorf("insert rule: %w", err)
	}

	slog.DebugContext(ctx, "Category rule created", "book_id", rule.AccountBookID, "keyword", rule.Keyword)
	return rule, nil
}

func (r *SQLiteRepository) UpdateRule(ctx context.Context, rule core.CategoryRule) (core.CategoryRule, error) {
	rule = trimRule(rule)
	if err := rule.Validate(); err != nil {
		return core.CategoryRule{}, err
	}
	existing, err := r.GetRule(ctx, rule.ID)
	if err != nil {
		return core.CategoryRule{}, err
	}
	taken, err := r.keywordTaken(ctx, existing.AccountBookID, rule.Keyword, existing.ID)
	if err != nil {
		return core.CategoryRule{}, err
	}
	if taken {
		return core.CategoryRule{}, ErrDuplicateRule
	}

	now := r.stamp()
	_, err = r.db.ExecContext(ctx, `
		UPDATE category_rules SET keyword = ?, category = ?, sub_category = ?, updated_at = ?
		WHERE id = ?`,
		rule.Keyword, rule.Category, rule.Subcategory, now, existing.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return core.CategoryRule{}, ErrDuplicateRule
		}
		return core.CategoryRule{}, fmt.Errorf("update rule: %w", err)
	}

	existing.Keyword, existing.Category, existing.Subcategory = rule.Keyword, rule.Category, rule.Subcategory
	existing.UpdatedAt = parseStamp(now)
	return existing, nil
}

func (r *SQLiteRepository) DeleteRule(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM category_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	return nil
}

func trimRule(rule core.CategoryRule) core.CategoryRule {
	rule.Keyword = strings.TrimSpace(rule.Keyword)
	rule.Category = strings.TrimSpace(rule.Category)
	rule.Subcategory = strings.TrimSpace(rule.Subcategory)
	return rule
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Categories

func (r *SQLiteRepository) ListCategories(ctx context.Context, bookID string) ([]core.CategorySummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT category, sub_category FROM transactions
		WHERE account_book_id = ?
		ORDER BY category, sub_category`, bookID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var pairs [][2]string
	for rows.Next() {
		var p [2]string
		if err := rows.Scan(&p[0], &p[1]); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return GroupCategories(pairs), nil
}
