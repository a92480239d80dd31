// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for decoding and validating JSON request
// bodies. Every decoding failure is a validation error so it maps to 400.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"gastos/internal/core"
	"gastos/internal/store"
)

// MaxBodyBytes bounds every request body.
const MaxBodyBytes = 64 << 10

// DateLayout is the calendar date format accepted for expense dates.
const DateLayout = "2006-01-02"

var errEmptyBody = fmt.Errorf("%w: request body is empty", core.ErrValidation)

// DecodeJSON reads one JSON object from the request body into dst. Unknown
// fields and trailing data are rejected.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return errEmptyBody
		case errors.As(err, &maxErr):
			return fmt.Errorf("%w: request body larger than %d bytes", core.ErrValidation, maxErr.Limit)
		default:
			return fmt.Errorf("%w: malformed JSON: %v", core.ErrValidation, err)
		}
	}
	if dec.More() {
		return fmt.Errorf("%w: request body must hold a single JSON object", core.ErrValidation)
	}
	return nil
}

// AmountInput accepts an amount as a JSON number or string. Strings may use
// a decimal comma.
type AmountInput string

func (a *AmountInput) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = AmountInput(s)
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	*a = AmountInput(data)
	return nil
}

// Decimal parses the amount. Zero, negative and malformed amounts are
// rejected.
func (a AmountInput) Decimal() (decimal.Decimal, error) {
	return core.ParseAmount(string(a))
}

// ParseDate parses an expense date. The empty string means now, a calendar
// date means local midnight of that day in loc, anything else must be RFC 3339.
func ParseDate(s string, loc *time.Location, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return now, nil
	}
	if loc == nil {
		loc = time.Local
	}
	if len(s) == len(DateLayout) {
		if t, err := time.ParseInLocation(DateLayout, s, loc); err == nil {
			return t, nil
		}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD or RFC 3339", core.ErrValidation)
	}
	return t, nil
}

// ParsePeriodParam reads the period query parameter. Missing means month.
func ParsePeriodParam(query url.Values) (core.Period, error) {
	return core.ParsePeriod(query.Get("period"))
}

// sessionRequest signs a user in.
type sessionRequest struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// expenseRequest creates an expense.
type expenseRequest struct {
	Amount     AmountInput `json:"amount"`
	CategoryID string      `json:"categoryId"`
	Note       string      `json:"note"`
	Date       string      `json:"date"`
}

// Expense converts the request into a new expense.
func (req expenseRequest) Expense(loc *time.Location, now time.Time) (core.Expense, error) {
	amount, err := req.Amount.Decimal()
	if err != nil {
		return core.Expense{}, err
	}
	date, err := ParseDate(req.Date, loc, now)
	if err != nil {
		return core.Expense{}, err
	}
	return core.Expense{
		Amount:     amount,
		CategoryID: sanitizeInput(req.CategoryID),
		Note:       sanitizeInput(req.Note),
		Date:       date,
	}, nil
}

// expensePatchRequest edits an expense. Absent fields are left unchanged.
type expensePatchRequest struct {
	Amount     *AmountInput `json:"amount"`
	CategoryID *string      `json:"categoryId"`
	Note       *string      `json:"note"`
	Date       *string      `json:"date"`
}

// Patch converts the request into an expense patch.
func (req expensePatchRequest) Patch(loc *time.Location, now time.Time) (core.ExpensePatch, error) {
	var p core.ExpensePatch
	if req.Amount != nil {
		amount, err := req.Amount.Decimal()
		if err != nil {
			return p, err
		}
		p.Amount = &amount
	}
	if req.CategoryID != nil {
		id := sanitizeInput(*req.CategoryID)
		p.CategoryID = &id
	}
	if req.Note != nil {
		note := sanitizeInput(*req.Note)
		p.Note = &note
	}
	if req.Date != nil {
		if strings.TrimSpace(*req.Date) == "" {
			return p, core.ErrMissingDate
		}
		date, err := ParseDate(*req.Date, loc, now)
		if err != nil {
			return p, err
		}
		p.Date = &date
	}
	return p, nil
}

type budgetRequest struct {
	Amount AmountInput `json:"amount"`
}

type categoryRequest struct {
	Name string `json:"name"`
	Icon string `json:"icon"`
}

type preferencesRequest struct {
	NotificationsEnabled *bool   `json:"notificationsEnabled"`
	Currency             *string `json:"currency"`
}

// Patch converts the request into a preferences patch.
func (req preferencesRequest) Patch() store.PreferencesPatch {
	p := store.PreferencesPatch{NotificationsEnabled: req.NotificationsEnabled}
	if req.Currency != nil {
		c := strings.ToUpper(sanitizeInput(*req.Currency))
		p.Currency = &c
	}
	return p
}

type displayNameRequest struct {
	DisplayName string `json:"displayName"`
}
