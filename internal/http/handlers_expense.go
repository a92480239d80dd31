package http

import (
	"fmt"
	"net/http"
	"strconv"

	"gastos/internal/core"
	"gastos/internal/log"
)

var errEmptyPatch = fmt.Errorf("%w: nothing to update", core.ErrValidation)

type expenseListResponse struct {
	Expenses []core.Expense `json:"expenses"`
	Count    int            `json:"count"`
	Synced   bool           `json:"synced"`
}

// handleListExpenses returns the ledger snapshot, newest first. The optional
// since (YYYY-MM-DD) and limit parameters narrow it.
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.currentSession(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	st := sess.State()
	expenses := st.Expenses

	if v := q.Get("since"); v != "" {
		since, err := ParseDate(v, s.loc, s.now())
		if err != nil {
			s.fail(w, r, log.OpList, err)
			return
		}
		// date desc: keep the prefix on or after since
		n := 0
		for n < len(expenses) && !expenses[n].Date.Before(since) {
			n++
		}
		expenses = expenses[:n]
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			s.fail(w, r, log.OpList, fmt.Errorf("%w: limit must be a non-negative integer", core.ErrValidation))
			return
		}
		if limit > 0 && limit < len(expenses) {
			expenses = expenses[:limit]
		}
	}
	if expenses == nil {
		expenses = []core.Expense{}
	}

	NewJSONResponse().Data(expenseListResponse{
		Expenses: expenses,
		Count:    len(expenses),
		Synced:   st.Synced,
	}).Write(w)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.currentSession(w, r)
	if !ok {
		return
	}
	var req expenseRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}
	e, err := req.Expense(s.loc, s.now())
	if err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}

	id, err := sess.CreateExpense(r.Context(), e)
	if err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}
	s.appMetrics.addExpense()

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/expenses/"+id).
		Data(map[string]string{"id": id}).
		Write(w)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.currentSession(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	var req expensePatchRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	patch, err := req.Patch(s.loc, s.now())
	if err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	if patch.IsEmpty() {
		s.fail(w, r, log.OpUpdate, errEmptyPatch)
		return
	}

	if err := sess.UpdateExpense(r.Context(), id, patch); err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	NoContent().Write(w)
}

// handleDeleteExpense removes an expense. Deleting a missing id succeeds.
func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.currentSession(w, r)
	if !ok {
		return
	}
	if err := sess.DeleteExpense(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, log.OpDelete, err)
		return
	}
	NoContent().Write(w)
}
