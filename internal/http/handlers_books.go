package http

import (
	"net/http"

	"finances/internal/core"
)

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := s.ledger.ListBooks(r.Context())
	if err != nil {
		writeServiceError(w, r, "list_books", err)
		return
	}
	if books == nil {
		books = []core.AccountBook{}
	}
	OK(w, books)
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	var req createBookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	book, err := s.ledger.CreateBook(r.Context(), sanitizeInput(req.Name))
	if err != nil {
		writeServiceError(w, r, "create_book", err)
		return
	}
	Created(w, book)
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	book, err := s.ledger.GetBook(r.Context(), pathVar(r, "bookID"))
	if err != nil {
		writeServiceError(w, r, "get_book", err)
		return
	}
	OK(w, book)
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.ledger.ListAccounts(r.Context(), pathVar(r, "bookID"))
	if err != nil {
		writeServiceError(w, r, "list_accounts", err)
		return
	}
	if accounts == nil {
		accounts = []core.Account{}
	}
	OK(w, accounts)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	acc, err := s.ledger.CreateAccount(r.Context(), pathVar(r, "bookID"), sanitizeInput(req.Name), req.StartingBalance)
	if err != nil {
		writeServiceError(w, r, "create_account", err)
		return
	}
	Created(w, acc)
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteAccount(r.Context(), pathVar(r, "bookID"), pathVar(r, "accountID")); err != nil {
		writeServiceError(w, r, "delete_account", err)
		return
	}
	OK(w, map[string]string{"message": "Account deleted successfully"})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := s.ledger.Dashboard(r.Context(), pathVar(r, "bookID"))
	if err != nil {
		writeServiceError(w, r, "dashboard", err)
		return
	}
	OK(w, dash)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.ledger.ListCategories(r.Context(), pathVar(r, "bookID"))
	if err != nil {
		writeServiceError(w, r, "list_categories", err)
		return
	}
	if cats == nil {
		cats = []core.CategorySummary{}
	}
	OK(w, cats)
}

// handleRecalculateBook recomputes every account of the book. Per-account
// failures are counted, not returned.
func (s *Server) handleRecalculateBook(w http.ResponseWriter, r *http.Request) {
	res, err := s.ledger.RecomputeBook(r.Context(), pathVar(r, "bookID"))
	if err != nil {
		writeServiceError(w, r, "recalculate_book", err)
		return
	}
	OK(w, res)
}
