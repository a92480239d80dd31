package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gastos/internal/aggregate"
	"gastos/internal/core"
	"gastos/internal/log"
	"gastos/internal/session"
)

var errMissingUserID = fmt.Errorf("%w: userId is required", core.ErrValidation)

type sessionResponse struct {
	SignedIn    bool        `json:"signedIn"`
	UserID      string      `json:"userId,omitempty"`
	Email       string      `json:"email,omitempty"`
	DisplayName string      `json:"displayName,omitempty"`
	Synced      bool        `json:"synced"`
	Period      core.Period `json:"period,omitempty"`
}

func describeSession(sess *session.Session) sessionResponse {
	st := sess.State()
	return sessionResponse{
		SignedIn:    true,
		UserID:      sess.UserID(),
		Email:       st.Profile.Email,
		DisplayName: st.Profile.NameOrDefault(),
		Synced:      st.Synced,
		Period:      st.Period,
	}
}

// handleSignIn opens a session for the identity in the body. The identity is
// trusted; credentials are checked upstream.
func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		s.fail(w, r, log.OpSubscribe, err)
		return
	}
	req.UserID = sanitizeInput(req.UserID)
	if req.UserID == "" {
		s.fail(w, r, log.OpSubscribe, errMissingUserID)
		return
	}

	sess, err := s.sessions.SignIn(r.Context(), session.Identity{
		UserID: req.UserID,
		Email:  strings.ToLower(sanitizeInput(req.Email)),
	})
	if err != nil {
		s.fail(w, r, log.OpSubscribe, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "User signed in",
		log.FieldUserID, sess.UserID(), log.FieldOperation, log.OpSubscribe)
	NewJSONResponse().Data(describeSession(sess)).Write(w)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	s.sessions.SignOut()
	NoContent().Write(w)
}

func (s *Server) handleSessionInfo(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.Current()
	if !ok {
		NewJSONResponse().Data(sessionResponse{}).Write(w)
		return
	}
	NewJSONResponse().Data(describeSession(sess)).Write(w)
}

// handleView returns the aggregate view. Without a period parameter the
// session's own period is used; signed out callers get the empty view.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	var p core.Period
	if r.URL.Query().Has("period") {
		parsed, err := ParsePeriodParam(r.URL.Query())
		if err != nil {
			s.fail(w, r, log.OpRead, err)
			return
		}
		p = parsed
	}

	sess, ok := s.sessions.Current()
	switch {
	case !ok:
		if p == "" {
			p = core.Month
		}
		NewJSONResponse().Data(s.sessions.View(p)).Write(w)
	case p == "":
		NewJSONResponse().Data(sess.View()).Write(w)
	default:
		NewJSONResponse().Data(sess.ViewFor(p)).Write(w)
	}
}

func (s *Server) handleSetPeriod(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.currentSession(w, r)
	if !ok {
		return
	}
	var req struct {
		Period string `json:"period"`
	}
	if err := DecodeJSON(w, r, &req); err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	p, err := core.ParsePeriod(req.Period)
	if err == nil {
		err = sess.SetPeriod(p)
	}
	if err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	NoContent().Write(w)
}

type viewEvent struct {
	Version uint64         `json:"version"`
	Synced  bool           `json:"synced"`
	View    aggregate.View `json:"view"`
}

// handleEvents streams every published view as server-sent events until the
// client leaves, the user signs out or the server shuts down.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.currentSession(w, r)
	if !ok {
		return
	}
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	updates, stop := sess.Watch()
	defer stop()

	send := func(st session.State) bool {
		data, err := json.Marshal(viewEvent{Version: st.Version, Synced: st.Synced, View: st.View})
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "id: %d\nevent: view\ndata: %s\n\n", st.Version, data); err != nil {
			return false
		}
		return rc.Flush() == nil
	}
	if !send(sess.State()) {
		return
	}

	keepAlive := time.NewTicker(s.keepAlive)
	defer keepAlive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.closing:
			return
		case st := <-updates:
			if !send(st) {
				return
			}
		case <-keepAlive.C:
			if sess.Closed() {
				_, _ = fmt.Fprint(w, "event: signed_out\ndata: {}\n\n")
				_ = rc.Flush()
				return
			}
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil || rc.Flush() != nil {
				return
			}
		}
	}
}
