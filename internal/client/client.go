// Package client talks to the gastos JSON API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"gastos/internal/aggregate"
	"gastos/internal/core"
)

// APIError is a non-2xx answer of the server.
type APIError struct {
	Status  int
	Message string
	Kind    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server answered %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Status)
}

// IsUnauthenticated reports whether err means nobody is signed in.
func IsUnauthenticated(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for the server at baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var eb struct {
			Error string `json:"error"`
			Kind  string `json:"kind"`
		}
		if json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&eb) == nil {
			apiErr.Message, apiErr.Kind = eb.Error, eb.Kind
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// SessionInfo describes the signed in user.
type SessionInfo struct {
	SignedIn    bool        `json:"signedIn"`
	UserID      string      `json:"userId"`
	Email       string      `json:"email"`
	DisplayName string      `json:"displayName"`
	Synced      bool        `json:"synced"`
	Period      core.Period `json:"period"`
}

func (c *Client) SignIn(ctx context.Context, uid, email string) (SessionInfo, error) {
	var info SessionInfo
	err := c.do(ctx, http.MethodPost, "/api/session", map[string]string{"userId": uid, "email": email}, &info)
	return info, err
}

func (c *Client) SignOut(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/session", nil, nil)
}

func (c *Client) Session(ctx context.Context) (SessionInfo, error) {
	var info SessionInfo
	err := c.do(ctx, http.MethodGet, "/api/session", nil, &info)
	return info, err
}

// View fetches the aggregate view. An empty period selects the session's own.
func (c *Client) View(ctx context.Context, p core.Period) (aggregate.View, error) {
	path := "/api/view"
	if p != "" {
		path += "?period=" + url.QueryEscape(string(p))
	}
	var v aggregate.View
	err := c.do(ctx, http.MethodGet, path, nil, &v)
	return v, err
}

// NewExpense is an expense to create. An empty Date means now.
type NewExpense struct {
	Amount     string `json:"amount"`
	CategoryID string `json:"categoryId"`
	Note       string `json:"note,omitempty"`
	Date       string `json:"date,omitempty"`
}

// ExpenseEdit changes the set fields of an expense.
type ExpenseEdit struct {
	Amount     *string `json:"amount,omitempty"`
	CategoryID *string `json:"categoryId,omitempty"`
	Note       *string `json:"note,omitempty"`
	Date       *string `json:"date,omitempty"`
}

func (c *Client) Expenses(ctx context.Context, limit int) ([]core.Expense, error) {
	path := "/api/expenses"
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	var out struct {
		Expenses []core.Expense `json:"expenses"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Expenses, err
}

func (c *Client) CreateExpense(ctx context.Context, e NewExpense) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := c.do(ctx, http.MethodPost, "/api/expenses", e, &out)
	return out.ID, err
}

func (c *Client) UpdateExpense(ctx context.Context, id string, edit ExpenseEdit) error {
	return c.do(ctx, http.MethodPut, "/api/expenses/"+url.PathEscape(id), edit, nil)
}

func (c *Client) DeleteExpense(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/expenses/"+url.PathEscape(id), nil, nil)
}

func (c *Client) SetBudget(ctx context.Context, amount string) (decimal.Decimal, error) {
	var out struct {
		Budget decimal.Decimal `json:"budget"`
	}
	err := c.do(ctx, http.MethodPut, "/api/budget", map[string]string{"amount": amount}, &out)
	return out.Budget, err
}

func (c *Client) Categories(ctx context.Context) ([]core.Category, error) {
	var out []core.Category
	err := c.do(ctx, http.MethodGet, "/api/categories", nil, &out)
	return out, err
}

func (c *Client) AddCategory(ctx context.Context, name, icon string) (core.Category, error) {
	var out core.Category
	err := c.do(ctx, http.MethodPost, "/api/categories", map[string]string{"name": name, "icon": icon}, &out)
	return out, err
}

func (c *Client) RemoveCategory(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/categories/"+url.PathEscape(id), nil, nil)
}
