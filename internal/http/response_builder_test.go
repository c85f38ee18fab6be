package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestJSONResponseBuilder(t *testing.T) {
	tests := []struct {
		name        string
		build       *JSONResponseBuilder
		wantStatus  int
		wantSuccess bool
		wantError   string
		wantDetails int
	}{
		{"ok", NewJSONResponse().Data(map[string]int{"n": 1}), http.StatusOK, true, "", 0},
		{"not found", NotFoundError("account not found"), http.StatusNotFound, false, "account not found", 0},
		{"conflict", ConflictError("duplicate"), http.StatusConflict, false, "duplicate", 0},
		{"rejected", UnprocessableEntityError("import rejected", []string{"a", "b"}), http.StatusUnprocessableEntity, false, "import rejected", 2},
		{"fail clears data", NewJSONResponse().Data("x").Fail("boom"), http.StatusOK, false, "boom", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.build.Header("X-Test", "1").Write(w)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
				t.Fatalf("Content-Type = %q", ct)
			}
			if w.Header().Get("X-Test") != "1" {
				t.Fatal("custom header missing")
			}
			var env map[string]json.RawMessage
			if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
				t.Fatalf("decode: %v", err)
			}
			var success bool
			_ = json.Unmarshal(env["success"], &success)
			if success != tt.wantSuccess {
				t.Fatalf("success = %v", success)
			}
			if tt.wantSuccess {
				if _, ok := env["error"]; ok {
					t.Fatal("error must be omitted on success")
				}
				return
			}
			if _, ok := env["data"]; ok {
				t.Fatal("data must be omitted on failure")
			}
			var msg string
			_ = json.Unmarshal(env["error"], &msg)
			if msg != tt.wantError {
				t.Fatalf("error = %q, want %q", msg, tt.wantError)
			}
			var details []string
			_ = json.Unmarshal(env["errors"], &details)
			if len(details) != tt.wantDetails {
				t.Fatalf("errors = %v", details)
			}
		})
	}
}
