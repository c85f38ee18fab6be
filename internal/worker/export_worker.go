package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"finances/internal/amqp"
	"finances/internal/core"
	applog "finances/internal/log"
	"finances/internal/sheets"
	"finances/internal/storage"
)

// Reader is the part of the store the export worker needs.
type Reader interface {
	GetBook(ctx context.Context, id string) (core.AccountBook, error)
	ListBooks(ctx context.Context) ([]core.AccountBook, error)
	GetAccount(ctx context.Context, id string) (core.Account, error)
	ListAccounts(ctx context.Context, bookID string) ([]core.Account, error)
}

// ExportWorker mirrors recomputed balance histories into spreadsheets.
type ExportWorker struct {
	store    Reader
	exporter sheets.BalanceExporter
}

func NewExportWorker(store Reader, exporter sheets.BalanceExporter) *ExportWorker {
	return &ExportWorker{store: store, exporter: exporter}
}

// HandleAccountRecomputed exports the account named by msg. The account is
// read fresh so out of order events still export the latest aggregates.
// Accounts deleted since the event are skipped.
func (w *ExportWorker) HandleAccountRecomputed(ctx context.Context, msg *amqp.AccountRecomputedMessage) error {
	slog.InfoContext(ctx, "Processing recompute event",
		applog.FieldComponent, applog.ComponentWorker,
		applog.FieldAccountID, msg.AccountID,
		"reason", msg.Reason)

	acc, err := w.store.GetAccount(ctx, msg.AccountID)
	if errors.Is(err, storage.ErrNotFound) {
		slog.WarnContext(ctx, "Account no longer exists, skipping export",
			applog.FieldComponent, applog.ComponentWorker,
			applog.FieldAccountID, msg.AccountID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}
	book, err := w.store.GetBook(ctx, acc.AccountBookID)
	if err != nil {
		return fmt.Errorf("get book: %w", err)
	}
	return w.export(ctx, book, acc)
}

// ExportAll exports every account of every book. It is the recovery path for
// events lost while the worker was down. Failures are logged and counted.
func (w *ExportWorker) ExportAll(ctx context.Context) (exported, failed int, err error) {
	books, err := w.store.ListBooks(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list books: %w", err)
	}
	for _, book := range books {
		accounts, err := w.store.ListAccounts(ctx, book.ID)
		if err != nil {
			return exported, failed, fmt.Errorf("list accounts of %s: %w", book.ID, err)
		}
		for _, acc := range accounts {
			if err := ctx.Err(); err != nil {
				return exported, failed, err
			}
			if err := w.export(ctx, book, acc); err != nil {
				slog.ErrorContext(ctx, "Failed to export account",
					applog.FieldComponent, applog.ComponentWorker,
					applog.FieldAccountID, acc.ID,
					applog.FieldError, err)
				failed++
				continue
			}
			exported++
		}
	}

	slog.InfoContext(ctx, "Startup export completed",
		applog.FieldComponent, applog.ComponentWorker,
		"exported", exported,
		"failed", failed)
	return exported, failed, nil
}

func (w *ExportWorker) export(ctx context.Context, book core.AccountBook, acc core.Account) error {
	ref, err := w.exporter.ExportBalances(ctx, book, acc)
	if err != nil {
		return fmt.Errorf("export balances: %w", err)
	}
	slog.InfoContext(ctx, "Exported balance history",
		applog.FieldComponent, applog.ComponentSheets,
		applog.FieldOperation, applog.OpExport,
		applog.FieldAccountID, acc.ID,
		applog.FieldBookID, book.ID,
		"sheets_ref", ref,
		"months", len(acc.History))
	return nil
}
