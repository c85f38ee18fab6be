package http

import (
	"net/http"
	"strings"

	"finances/internal/core"
	applog "finances/internal/log"
)

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := s.ledger.GetAccount(r.Context(), pathVar(r, "accountID"))
	if err != nil {
		writeServiceError(w, r, "get_account", err)
		return
	}
	OK(w, acc)
}

// handleListTransactions lists an account's transactions newest first,
// optionally limited to ?from=YYYY-MM-DD&to=YYYY-MM-DD.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	dr, err := parseDateRange(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	txs, err := s.ledger.ListTransactions(r.Context(), pathVar(r, "accountID"), dr)
	if err != nil {
		writeServiceError(w, r, "list_transactions", err)
		return
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	OK(w, txs)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	tx, err := s.ledger.CreateTransaction(r.Context(), pathVar(r, "accountID"), req.entry())
	if err != nil {
		writeServiceError(w, r, "create_transaction", err)
		return
	}
	Created(w, tx)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := s.ledger.GetTransaction(r.Context(), pathVar(r, "transactionID"))
	if err != nil {
		writeServiceError(w, r, "get_transaction", err)
		return
	}
	OK(w, tx)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	tx := core.Transaction{
		ID:                  pathVar(r, "transactionID"),
		AccountID:           strings.TrimSpace(req.AccountID),
		LedgerEntry:         req.entry(),
		LinkedTransactionID: strings.TrimSpace(req.LinkedTransactionID),
	}
	updated, err := s.ledger.UpdateTransaction(r.Context(), tx)
	if err != nil {
		writeServiceError(w, r, "update_transaction", err)
		return
	}
	OK(w, updated)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "transactionID")
	if err := s.ledger.DeleteTransaction(r.Context(), id); err != nil {
		writeServiceError(w, r, "delete_transaction", err)
		return
	}
	OK(w, map[string]string{"id": id})
}

func (s *Server) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	var req bulkDeleteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if len(req.IDs) == 0 {
		BadRequestError("ids must not be empty").Write(w)
		return
	}
	n, err := s.ledger.BulkDeleteTransactions(r.Context(), req.IDs)
	if err != nil {
		writeServiceError(w, r, "bulk_delete", err)
		return
	}
	OK(w, map[string]int{"deleted": n})
}

// handleImport stores the entries of an uploaded .qif file. Partial success
// answers 200 with the counters; a file without a single valid entry is 422.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	accountID := pathVar(r, "accountID")
	content, filename, err := readUpload(w, r, s.maxUpload)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	res, err := s.imports.ImportFile(r.Context(), accountID, content)
	if err != nil {
		writeServiceError(w, r, applog.OpImport, err)
		return
	}
	applog.FromContext(r.Context()).Debug("Upload processed",
		applog.FieldAccountID, accountID,
		"filename", filename,
		"bytes", len(content))
	OK(w, res)
}

// handleParse parses a file without storing it. With ?bookId= the book's
// rules are applied to the parsed entries.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	content, err := readParseInput(w, r, s.maxUpload)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	res := s.imports.Preview(r.Context(), strings.TrimSpace(r.URL.Query().Get("bookId")), content)
	if res.Entries == nil {
		res.Entries = []core.LedgerEntry{}
	}
	if res.Errors == nil {
		res.Errors = []string{}
	}
	OK(w, res)
}

func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	accountID := pathVar(r, "accountID")
	if err := s.ledger.Recompute(r.Context(), accountID); err != nil {
		writeServiceError(w, r, applog.OpRecompute, err)
		return
	}
	acc, err := s.ledger.GetAccount(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, r, "get_account", err)
		return
	}
	OK(w, acc)
}

func (s *Server) handleBalanceHistory(w http.ResponseWriter, r *http.Request) {
	points, err := s.ledger.BalanceHistory(r.Context(), pathVar(r, "accountID"))
	if err != nil {
		writeServiceError(w, r, "balance_history", err)
		return
	}
	OK(w, points)
}
