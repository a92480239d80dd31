package http

import (
	"net/http"
	"strings"

	"gastos/internal/log"
	"gastos/internal/session"
)

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}

// currentSession returns the signed in user's session, answering 401 when
// there is none.
func (s *Server) currentSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, ok := s.sessions.Current()
	if !ok || sess.Closed() {
		UnauthorizedError("sign in required").Write(w)
		return nil, false
	}
	return sess, true
}

// fail logs err with its class and writes the mapped error response.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := StatusFor(err)
	logger := log.FromContext(r.Context())
	fields := log.NewFields().WithErrorType(errorType(status))
	if status >= 500 {
		log.NewStructuredLogger(logger).LogError(r.Context(), "Request failed", err, op, fields)
	} else {
		logger.DebugContext(r.Context(), "Request rejected", fields.WithError(err).WithOperation(op).ToSlice()...)
	}
	FromError(err).Write(w)
}

func errorType(status int) string {
	switch status {
	case http.StatusBadRequest:
		return log.ErrorTypeValidation
	case http.StatusNotFound:
		return log.ErrorTypeNotFound
	case http.StatusUnauthorized:
		return log.ErrorTypeAuth
	case http.StatusServiceUnavailable:
		return log.ErrorTypePersistence
	default:
		return log.ErrorTypeInternal
	}
}
