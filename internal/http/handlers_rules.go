package http

import (
	"net/http"
	"strings"

	"finances/internal/core"
)

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	list, err := s.rules.List(r.Context(), pathVar(r, "bookID"))
	if err != nil {
		writeServiceError(w, r, "list_rules", err)
		return
	}
	if list == nil {
		list = []core.CategoryRule{}
	}
	OK(w, list)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	rule := req.rule()
	rule.AccountBookID = pathVar(r, "bookID")
	created, err := s.rules.Create(r.Context(), rule)
	if err != nil {
		writeServiceError(w, r, "create_rule", err)
		return
	}
	Created(w, created)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	rule := req.rule()
	rule.ID = pathVar(r, "ruleID")
	updated, err := s.rules.Update(r.Context(), rule)
	if err != nil {
		writeServiceError(w, r, "update_rule", err)
		return
	}
	OK(w, updated)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "ruleID")
	if err := s.rules.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, "delete_rule", err)
		return
	}
	OK(w, map[string]string{"id": id})
}

// handleMatch reports the category pair the book's rules assign to a
// description. category and subcategory are returned unchanged on no match.
func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	description := sanitizeInput(q.Get("description"))
	if description == "" {
		BadRequestError("description is required").Write(w)
		return
	}
	bookID := pathVar(r, "bookID")
	if _, err := s.ledger.GetBook(r.Context(), bookID); err != nil {
		writeServiceError(w, r, "match", err)
		return
	}
	cat, sub := s.rules.Match(r.Context(), bookID, description,
		strings.TrimSpace(q.Get("category")), strings.TrimSpace(q.Get("subcategory")))
	OK(w, map[string]string{"category": cat, "subCategory": sub})
}
