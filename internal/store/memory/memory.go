// Package memory is an in-process implementation of the store ports. It is
// used for local development and in tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"gastos/internal/core"
	"gastos/internal/store"
)

type record struct {
	seq     uint64
	expense core.Expense
}

type user struct {
	profile     *core.Profile
	expenses    map[string]record
	categories  []core.Category
	preferences *core.Preferences
}

// Store keeps every document in maps guarded by a single RWMutex.
type Store struct {
	mu    sync.RWMutex
	seq   uint64
	users map[string]*user
	err   error
	now   func() time.Time
}

var (
	_ store.Backend    = (*Store)(nil)
	_ store.UserLister = (*Store)(nil)
)

func New() *Store {
	return &Store{users: map[string]*user{}, now: time.Now}
}

// Fail makes every following call return err wrapped as a persistence
// failure. Fail(nil) restores normal operation.
func (s *Store) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *Store) failure(op string) error {
	if s.err == nil {
		return nil
	}
	return core.Persistence(op, s.err)
}

// user returns the document tree of uid, creating it. Caller holds s.mu.
func (s *Store) user(uid string) *user {
	u, ok := s.users[uid]
	if !ok {
		u = &user{expenses: map[string]record{}}
		s.users[uid] = u
	}
	return u
}

func (s *Store) AddExpense(_ context.Context, uid string, e core.Expense) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("add expense"); err != nil {
		return "", err
	}
	e.ID = uuid.New().String()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	s.seq++
	s.user(uid).expenses[e.ID] = record{seq: s.seq, expense: e}
	return e.ID, nil
}

func (s *Store) GetExpense(_ context.Context, uid, id string) (core.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure("get expense"); err != nil {
		return core.Expense{}, err
	}
	u, ok := s.users[uid]
	if !ok {
		return core.Expense{}, core.ErrNotFound
	}
	r, ok := u.expenses[id]
	if !ok {
		return core.Expense{}, core.ErrNotFound
	}
	return r.expense, nil
}

func (s *Store) UpdateExpense(_ context.Context, uid string, e core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("update expense"); err != nil {
		return err
	}
	u := s.user(uid)
	r, ok := u.expenses[e.ID]
	if !ok {
		return core.ErrNotFound
	}
	e.CreatedAt = r.expense.CreatedAt
	r.expense = e
	u.expenses[e.ID] = r
	return nil
}

func (s *Store) DeleteExpense(_ context.Context, uid, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("delete expense"); err != nil {
		return err
	}
	u := s.user(uid)
	if _, ok := u.expenses[id]; !ok {
		return core.ErrNotFound
	}
	delete(u.expenses, id)
	return nil
}

// QueryExpenses returns the ledger ordered by date descending. Records with
// an equal date keep the most recently inserted first.
func (s *Store) QueryExpenses(_ context.Context, uid string, q store.Query) ([]core.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure("query expenses"); err != nil {
		return nil, err
	}
	u, ok := s.users[uid]
	if !ok {
		return []core.Expense{}, nil
	}

	recs := make([]record, 0, len(u.expenses))
	for _, r := range u.expenses {
		if !q.Since.IsZero() && r.expense.Date.Before(q.Since) {
			continue
		}
		recs = append(recs, r)
	}
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if !a.expense.Date.Equal(b.expense.Date) {
			return a.expense.Date.After(b.expense.Date)
		}
		return a.seq > b.seq
	})
	if q.Limit > 0 && len(recs) > q.Limit {
		recs = recs[:q.Limit]
	}

	out := make([]core.Expense, len(recs))
	for i, r := range recs {
		out[i] = r.expense
	}
	return out, nil
}

func (s *Store) GetProfile(_ context.Context, uid string) (core.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure("get profile"); err != nil {
		return core.Profile{}, err
	}
	u, ok := s.users[uid]
	if !ok || u.profile == nil {
		return core.Profile{}, core.ErrNotFound
	}
	return *u.profile, nil
}

func (s *Store) MergeProfile(_ context.Context, uid string, p store.ProfilePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("merge profile"); err != nil {
		return err
	}
	u := s.user(uid)
	var cur core.Profile
	if u.profile != nil {
		cur = *u.profile
	}
	merged := p.Apply(cur)
	u.profile = &merged
	return nil
}

func (s *Store) GetCategories(_ context.Context, uid string) ([]core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure("get categories"); err != nil {
		return nil, err
	}
	u, ok := s.users[uid]
	if !ok {
		return []core.Category{}, nil
	}
	return append([]core.Category{}, u.categories...), nil
}

func (s *Store) PutCategories(_ context.Context, uid string, custom []core.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("put categories"); err != nil {
		return err
	}
	s.user(uid).categories = append([]core.Category{}, custom...)
	return nil
}

func (s *Store) GetPreferences(_ context.Context, uid string) (core.Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure("get preferences"); err != nil {
		return core.Preferences{}, err
	}
	u, ok := s.users[uid]
	if !ok || u.preferences == nil {
		return core.DefaultPreferences(), nil
	}
	return *u.preferences, nil
}

func (s *Store) MergePreferences(_ context.Context, uid string, p store.PreferencesPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure("merge preferences"); err != nil {
		return err
	}
	u := s.user(uid)
	cur := core.DefaultPreferences()
	if u.preferences != nil {
		cur = *u.preferences
	}
	merged := p.Apply(cur)
	u.preferences = &merged
	return nil
}

// ListUserIDs returns every user that owns at least one expense, sorted.
func (s *Store) ListUserIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure("list users"); err != nil {
		return nil, err
	}
	var ids []string
	for uid, u := range s.users {
		if len(u.expenses) > 0 {
			ids = append(ids, uid)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
