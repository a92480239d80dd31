// Package http provides HTTP server and handler implementations.
//
// This file implements the Builder Pattern for constructing JSON responses.
// Every handler answers through it so that status codes, headers and error
// bodies stay consistent.

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"gastos/internal/core"
	"gastos/internal/session"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	data       any
	headers    map[string]string
}

// ErrorBody is the payload of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Data sets the value encoded as the response body.
func (b *JSONResponseBuilder) Data(v any) *JSONResponseBuilder {
	b.data = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.data == nil || b.statusCode == http.StatusNoContent {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.data)
}

// ErrorResponse creates a standard error response.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(statusCode).
		Data(ErrorBody{Error: message, Kind: kindFor(statusCode)})
}

// UnauthorizedError creates a 401 response for requests without a session.
func UnauthorizedError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusUnauthorized, message)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// NoContent answers a successful mutation without a body.
func NoContent() *JSONResponseBuilder {
	return NewJSONResponse().Status(http.StatusNoContent)
}

// FromError maps a domain error to its response. Validation messages are
// shown to the caller; persistence and internal details are not.
func FromError(err error) *JSONResponseBuilder {
	status := StatusFor(err)
	switch status {
	case http.StatusBadRequest, http.StatusNotFound:
		return ErrorResponse(status, err.Error())
	case http.StatusUnauthorized:
		return UnauthorizedError("sign in required")
	case http.StatusServiceUnavailable:
		return ErrorResponse(status, "storage unavailable, please retry").Header("Retry-After", "5")
	default:
		return InternalServerError("internal error")
	}
}

// StatusFor returns the HTTP status of an error class.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrNoSession), errors.Is(err, session.ErrClosed):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrPersistence):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func kindFor(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "validation"
	case http.StatusUnauthorized:
		return "unauthenticated"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusServiceUnavailable:
		return "persistence"
	case http.StatusTooManyRequests:
		return "rate_limited"
	default:
		if status >= 500 {
			return "internal"
		}
		return ""
	}
}
