// Package http exposes the ledger services as a JSON API.
//
// This file implements the request payloads and the helpers that decode
// them, read path variables and query parameters, and pull uploaded files.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"

	"finances/internal/core"
)

const maxJSONBody = 1 << 20

var (
	errMissingFile  = errors.New("no file uploaded")
	errNotQIF       = errors.New("file must have a .qif extension")
	errEmptyPayload = errors.New("request body is empty")
)

type createBookRequest struct {
	Name string `json:"name"`
}

type createAccountRequest struct {
	Name            string     `json:"name"`
	StartingBalance core.Money `json:"startingBalance"`
}

// transactionRequest is the body of transaction create and update calls.
// AccountID is only honoured on update, where it moves the transaction.
type transactionRequest struct {
	AccountID           string     `json:"accountId"`
	Date                core.Date  `json:"transactionDate"`
	Description         string     `json:"description"`
	Memo                string     `json:"memo"`
	Category            string     `json:"category"`
	Subcategory         string     `json:"subCategory"`
	Debit               core.Money `json:"debitAmount"`
	Credit              core.Money `json:"creditAmount"`
	LinkedTransactionID string     `json:"linkedTransactionId"`
}

func (t transactionRequest) entry() core.LedgerEntry {
	return core.LedgerEntry{
		Date:        t.Date,
		Description: sanitizeInput(t.Description),
		Memo:        sanitizeInput(t.Memo),
		Category:    sanitizeInput(t.Category),
		Subcategory: sanitizeInput(t.Subcategory),
		Debit:       t.Debit,
		Credit:      t.Credit,
	}
}

type bulkDeleteRequest struct {
	IDs []string `json:"ids"`
}

type ruleRequest struct {
	Keyword     string `json:"keyword"`
	Category    string `json:"category"`
	Subcategory string `json:"subCategory"`
}

func (r ruleRequest) rule() core.CategoryRule {
	return core.CategoryRule{
		Keyword:     sanitizeInput(r.Keyword),
		Category:    sanitizeInput(r.Category),
		Subcategory: sanitizeInput(r.Subcategory),
	}
}

// decodeJSON reads a single JSON object into dst. Unknown fields are ignored.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyPayload
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// pathVar returns a trimmed route variable.
func pathVar(r *http.Request, name string) string {
	return strings.TrimSpace(mux.Vars(r)[name])
}

// parseDateRange reads the optional from/to query parameters (YYYY-MM-DD).
// It returns nil when neither is set.
func parseDateRange(r *http.Request) (*core.DateRange, error) {
	q := r.URL.Query()
	from, to := strings.TrimSpace(q.Get("from")), strings.TrimSpace(q.Get("to"))
	if from == "" && to == "" {
		return nil, nil
	}
	var dr core.DateRange
	var err error
	if from != "" {
		if dr.From, err = core.ParseDate(from); err != nil {
			return nil, fmt.Errorf("from: %w", err)
		}
	}
	if to != "" {
		if dr.To, err = core.ParseDate(to); err != nil {
			return nil, fmt.Errorf("to: %w", err)
		}
	}
	if !dr.From.IsZero() && !dr.To.IsZero() && dr.To.Before(dr.From.Time) {
		return nil, errors.New("to must not be before from")
	}
	return &dr, nil
}

// readUpload returns the content of the multipart field "file". The name
// must end in .qif, case insensitive.
func readUpload(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", fmt.Errorf("file exceeds %d bytes", maxBytes)
		}
		return nil, "", errMissingFile
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", errMissingFile
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".qif") {
		return nil, header.Filename, errNotQIF
	}
	content, err := io.ReadAll(file)
	if err != nil {
		return nil, header.Filename, fmt.Errorf("read upload: %w", err)
	}
	return content, header.Filename, nil
}

// readParseInput accepts either a multipart upload or a raw request body.
func readParseInput(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]byte, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		content, _, err := readUpload(w, r, maxBytes)
		return content, err
	}
	content, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
	if err != nil {
		return nil, fmt.Errorf("file exceeds %d bytes", maxBytes)
	}
	if len(content) == 0 {
		return nil, errEmptyPayload
	}
	return content, nil
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
