// Package http exposes the ledger services as a JSON API.
//
// This file implements the builder used by every handler to write the
// {success, data|error} envelope.

package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	applog "finances/internal/log"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success bool     `json:"success"`
	Data    any      `json:"data,omitempty"`
	Error   string   `json:"error,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

// JSONResponseBuilder provides a fluent API for building envelope responses.
type JSONResponseBuilder struct {
	statusCode int
	envelope   Envelope
	headers    map[string]string
}

// NewJSONResponse creates a successful response builder with status 200.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		envelope:   Envelope{Success: true},
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Data sets the payload of a successful response.
func (b *JSONResponseBuilder) Data(v any) *JSONResponseBuilder {
	b.envelope.Data = v
	return b
}

// Fail turns the response into an error envelope.
func (b *JSONResponseBuilder) Fail(message string, details ...string) *JSONResponseBuilder {
	b.envelope.Success = false
	b.envelope.Data = nil
	b.envelope.Error = message
	if len(details) > 0 {
		b.envelope.Errors = details
	}
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	if err := json.NewEncoder(w).Encode(b.envelope); err != nil {
		slog.Error("Failed to encode response",
			applog.FieldComponent, applog.ComponentHTTP,
			applog.FieldError, err)
	}
}

// OK writes data with status 200.
func OK(w http.ResponseWriter, data any) {
	NewJSONResponse().Data(data).Write(w)
}

// Created writes data with status 201.
func Created(w http.ResponseWriter, data any) {
	NewJSONResponse().Status(http.StatusCreated).Data(data).Write(w)
}

// ErrorResponse creates an error envelope with the given status.
func ErrorResponse(statusCode int, message string, details ...string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Fail(message, details...)
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// UnprocessableEntityError creates a 422 error response listing every problem.
func UnprocessableEntityError(message string, details []string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, message, details...)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// ForbiddenError creates a 403 Forbidden error response.
func ForbiddenError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusForbidden, message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

// ConflictError creates a 409 Conflict error response.
func ConflictError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusConflict, message)
}
