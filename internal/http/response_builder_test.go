package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"gastos/internal/core"
	"gastos/internal/session"
)

func TestJSONResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/expenses/1").
		Data(map[string]string{"id": "1"}).
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
	if got := w.Header().Get("Content-Type"); got != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := w.Header().Get("Location"); got != "/api/expenses/1" {
		t.Errorf("Location = %q", got)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["id"] != "1" {
		t.Errorf("body = %v", body)
	}
}

func TestJSONResponseBuilder_NoContent(t *testing.T) {
	w := httptest.NewRecorder()
	NoContent().Write(w)

	if w.Code != http.StatusNoContent {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusNoContent)
	}
	if w.Body.Len() != 0 {
		t.Errorf("Body = %q, want empty", w.Body.String())
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"validation", core.ErrFutureDate, http.StatusBadRequest},
		{"wrapped validation", fmt.Errorf("create: %w", core.ErrInvalidAmount), http.StatusBadRequest},
		{"not found", core.Persistence("update expense", core.ErrNotFound), http.StatusNotFound},
		{"persistence", core.Persistence("save", errors.New("disk full")), http.StatusServiceUnavailable},
		{"no session", session.ErrNoSession, http.StatusUnauthorized},
		{"closed session", session.ErrClosed, http.StatusUnauthorized},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusFor(tt.err); got != tt.want {
				t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestFromError_HidesInternalDetails(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
		wantKind string
	}{
		{"validation shows message", core.ErrNoteTooLong, http.StatusBadRequest, core.ErrNoteTooLong.Error(), "validation"},
		{"persistence hides cause", core.Persistence("save", errors.New("secret dsn")), http.StatusServiceUnavailable, "storage unavailable, please retry", "persistence"},
		{"internal hides cause", errors.New("nil map"), http.StatusInternalServerError, "internal error", "internal"},
		{"no session", session.ErrNoSession, http.StatusUnauthorized, "sign in required", "unauthenticated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			FromError(tt.err).Write(w)

			if w.Code != tt.wantCode {
				t.Errorf("Status code = %d, want %d", w.Code, tt.wantCode)
			}
			var body ErrorBody
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Error != tt.wantMsg {
				t.Errorf("Error = %q, want %q", body.Error, tt.wantMsg)
			}
			if body.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", body.Kind, tt.wantKind)
			}
		})
	}

	w := httptest.NewRecorder()
	FromError(core.Persistence("save", errors.New("timeout"))).Write(w)
	if got := w.Header().Get("Retry-After"); got != "5" {
		t.Errorf("Retry-After = %q, want 5", got)
	}
}
