package session

import (
	"context"
	"sync"

	"gastos/internal/aggregate"
	"gastos/internal/core"
	"gastos/internal/log"
)

// Manager follows the identity collaborator: it opens a session on sign-in
// and tears it down on sign-out or when another user signs in.
type Manager struct {
	deps   Deps
	logger *log.Logger

	mu      sync.Mutex
	current *Session
}

func NewManager(deps Deps) *Manager {
	deps = deps.withDefaults()
	return &Manager{
		deps:   deps,
		logger: deps.Logger.WithComponent(log.ComponentSession),
	}
}

// SignIn makes id the current user. Signing in the current user again returns
// the existing session.
func (m *Manager) SignIn(ctx context.Context, id Identity) (*Session, error) {
	if id.UserID == "" {
		m.SignOut()
		return nil, ErrNoSession
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		if m.current.UserID() == id.UserID && !m.current.Closed() {
			return m.current, nil
		}
		m.current.Close()
		m.current = nil
	}

	s, err := Open(ctx, m.deps, id)
	if err != nil {
		m.logger.ErrorContext(ctx, "Sign in failed", log.FieldUserID, id.UserID, log.FieldError, err)
		return nil, err
	}
	m.current = s
	return s, nil
}

// SignOut closes the current session, if any.
func (m *Manager) SignOut() {
	m.mu.Lock()
	s := m.current
	m.current = nil
	m.mu.Unlock()

	if s != nil {
		s.Close()
	}
}

// Current returns the active session.
func (m *Manager) Current() (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil, false
	}
	return m.current, true
}

// View returns the current user's view, or the empty view for period p when
// nobody is signed in.
func (m *Manager) View(p core.Period) aggregate.View {
	if s, ok := m.Current(); ok {
		return s.View()
	}
	return aggregate.EmptyView(p, m.deps.Now(), m.deps.Location)
}

// Run applies identity changes until ctx is done or ids is closed, then signs
// out.
func (m *Manager) Run(ctx context.Context, ids <-chan Identity) error {
	defer m.SignOut()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case id, ok := <-ids:
			if !ok {
				return nil
			}
			if id.UserID == "" {
				m.SignOut()
				continue
			}
			// failures are logged by SignIn; the next identity event retries
			_, _ = m.SignIn(ctx, id)
		}
	}
}

// Close signs out.
func (m *Manager) Close() {
	m.SignOut()
}
