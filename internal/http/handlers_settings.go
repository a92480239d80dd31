package http

import (
	"net/http"

	"gastos/internal/core"
	"gastos/internal/log"
)

func (s *Server) handleSetBudget(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.currentSession(w, r)
	if !ok {
		return
	}
	var req budgetRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	amount, err := req.Amount.Decimal()
	if err != nil {
		s.fail(w, r, log.OpUpdate, core.ErrInvalidBudget)
		return
	}
	if err := sess.SetBudget(r.Context(), amount); err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	NewJSONResponse().Data(map[string]any{"budget": amount}).Write(w)
}

// handleListCategories returns the built-in categories followed by the
// user's own.
func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.currentSession(w, r)
	if !ok {
		return
	}
	NewJSONResponse().Data(sess.Categories()).Write(w)
}

func (s *Server) handleAddCategory(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.currentSession(w, r)
	if !ok {
		return
	}
	var req categoryRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}
	cat, err := sess.AddCategory(r.Context(), sanitizeInput(req.Name), sanitizeInput(req.Icon))
	if err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Data(cat).Write(w)
}

// handleRemoveCategory deletes a custom category. Built-in and unknown ids
// are left alone.
func (s *Server) handleRemoveCategory(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.currentSession(w, r)
	if !ok {
		return
	}
	if err := sess.RemoveCategory(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, log.OpDelete, err)
		return
	}
	NoContent().Write(w)
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.currentSession(w, r)
	if !ok {
		return
	}
	NewJSONResponse().Data(sess.Preferences()).Write(w)
}

func (s *Server) handleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.currentSession(w, r)
	if !ok {
		return
	}
	var req preferencesRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	patch := req.Patch()
	if err := sess.UpdatePreferences(r.Context(), patch); err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	NewJSONResponse().Data(patch.Apply(sess.Preferences())).Write(w)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.currentSession(w, r)
	if !ok {
		return
	}
	p := sess.Profile()
	NewJSONResponse().Data(map[string]any{
		"displayName": p.NameOrDefault(),
		"email":       p.Email,
		"budget":      p.Budget,
	}).Write(w)
}

func (s *Server) handleSetDisplayName(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.currentSession(w, r)
	if !ok {
		return
	}
	var req displayNameRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	if err := sess.SetDisplayName(r.Context(), sanitizeInput(req.DisplayName)); err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	NoContent().Write(w)
}
