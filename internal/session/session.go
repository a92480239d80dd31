// Package session owns the per-user reactive state: it follows the ledger
// stream, keeps the user's budget, categories and preferences, and rebuilds
// the aggregate view whenever any of them changes.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"gastos/internal/aggregate"
	"gastos/internal/budget"
	"gastos/internal/categories"
	"gastos/internal/core"
	"gastos/internal/ledger"
	"gastos/internal/log"
	"gastos/internal/store"
)

var (
	// ErrNoSession is returned when an operation needs a signed in user.
	ErrNoSession = errors.New("no active session")
	// ErrClosed is returned by operations on a torn down session.
	ErrClosed = errors.New("session closed")
)

// Identity is the signed in user. A zero UserID means signed out.
type Identity struct {
	UserID string
	Email  string
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Mirror     *ledger.Mirror
	Store      store.Backend
	Budget     *budget.Tracker
	Categories *categories.Registry
	Memo       *aggregate.Memo // optional
	Location   *time.Location
	Now        func() time.Time
	Logger     *log.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Budget == nil {
		d.Budget = budget.NewTracker(d.Store)
	}
	if d.Categories == nil {
		d.Categories = categories.New()
	}
	if d.Location == nil {
		d.Location = time.Local
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	d.Logger = log.OrDiscard(d.Logger)
	return d
}

// State is an immutable copy of everything the session currently knows.
type State struct {
	View        aggregate.View
	Expenses    []core.Expense
	Custom      []core.Category
	Profile     core.Profile
	Preferences core.Preferences
	Period      core.Period
	Synced      bool // at least one ledger snapshot arrived
	Version     uint64
}

// inputs is the loop-owned state the view is computed from.
type inputs struct {
	expenses []core.Expense
	custom   []core.Category
	profile  core.Profile
	prefs    core.Preferences
	period   core.Period
	synced   bool
}

// Session is the explicit context of one signed in user.
type Session struct {
	id     Identity
	deps   Deps
	stream ledger.Stream
	logger *log.Logger

	events chan func(*inputs)
	state  atomic.Pointer[State]
	closed atomic.Bool

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	// writeMu serializes local edits. custom and prefs are the last persisted
	// values; the published state may lag behind them.
	writeMu sync.Mutex
	custom  []core.Category
	prefs   core.Preferences

	lmu       sync.Mutex
	listeners map[chan State]struct{}
}

// Open loads the user's documents, subscribes to the ledger and starts the
// event loop. The returned session must be closed.
func Open(ctx context.Context, deps Deps, id Identity) (*Session, error) {
	if id.UserID == "" {
		return nil, ErrNoSession
	}
	deps = deps.withDefaults()
	logger := deps.Logger.WithComponent(log.ComponentSession).WithUser(id.UserID)

	in, err := load(ctx, deps, id)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stream, err := deps.Mirror.Subscribe(runCtx, id.UserID)
	if err != nil {
		cancel()
		return nil, err
	}

	s := &Session{
		id:        id,
		deps:      deps,
		stream:    stream,
		logger:    logger,
		events:    make(chan func(*inputs)),
		cancel:    cancel,
		done:      make(chan struct{}),
		listeners: map[chan State]struct{}{},
		custom:    append([]core.Category(nil), in.custom...),
		prefs:     in.prefs,
	}
	s.publish(in, 0)
	go s.loop(runCtx, in)

	logger.InfoContext(ctx, "Session opened", log.FieldOperation, log.OpSubscribe)
	return s, nil
}

// load reads the profile, custom categories and preferences concurrently.
func load(ctx context.Context, deps Deps, id Identity) (*inputs, error) {
	in := &inputs{period: core.Month}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := deps.Store.GetProfile(gctx, id.UserID)
		if errors.Is(err, core.ErrNotFound) {
			email := id.Email
			in.profile = core.Profile{Email: email, Budget: decimal.Zero}
			return core.Persistence("create profile", deps.Store.MergeProfile(gctx, id.UserID, store.ProfilePatch{Email: &email}))
		}
		if err != nil {
			return core.Persistence("load profile", err)
		}
		in.profile = p
		return nil
	})
	g.Go(func() error {
		custom, err := deps.Store.GetCategories(gctx, id.UserID)
		if err != nil {
			return core.Persistence("load categories", err)
		}
		in.custom = custom
		return nil
	})
	g.Go(func() error {
		prefs, err := deps.Store.GetPreferences(gctx, id.UserID)
		if err != nil {
			return core.Persistence("load preferences", err)
		}
		in.prefs = prefs
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if in.profile.Email == "" {
		in.profile.Email = id.Email
	}
	return in, nil
}

func (s *Session) loop(ctx context.Context, in *inputs) {
	defer close(s.done)

	rollover := time.NewTimer(s.untilMidnight())
	defer rollover.Stop()

	snapshots := s.stream.Snapshots()
	var version uint64
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			in.expenses = snap.Expenses
			in.synced = true
		case apply := <-s.events:
			apply(in)
		case <-rollover.C:
			rollover.Reset(s.untilMidnight())
		}
		if ctx.Err() != nil {
			return
		}
		version++
		s.publish(in, version)
	}
}

func (s *Session) untilMidnight() time.Duration {
	now := s.deps.Now().In(s.deps.Location)
	next := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, s.deps.Location)
	return next.Sub(now)
}

// publish recomputes the view and swaps it in.
func (s *Session) publish(in *inputs, version uint64) {
	params := aggregate.Inputs{
		Expenses: in.expenses,
		Custom:   in.custom,
		Period:   in.period,
		Budget:   in.profile.Budget,
		Now:      s.deps.Now(),
		Location: s.deps.Location,
	}
	start := time.Now()
	view := s.deps.Memo.Compute(params)
	s.logger.Debug("View recomputed",
		log.FieldOperation, log.OpRecompute,
		log.FieldPeriod, string(in.period),
		log.FieldSnapshotSize, len(in.expenses),
		log.FieldDuration, time.Since(start).Milliseconds())

	st := &State{
		View:        view,
		Expenses:    in.expenses,
		Custom:      append([]core.Category(nil), in.custom...),
		Profile:     in.profile,
		Preferences: in.prefs,
		Period:      in.period,
		Synced:      in.synced,
		Version:     version,
	}
	s.state.Store(st)
	s.notify(*st)
}

// send hands a state change to the loop. Changes for a closed session are
// dropped.
func (s *Session) send(apply func(*inputs)) {
	if s.closed.Load() {
		return
	}
	select {
	case s.events <- apply:
	case <-s.done:
	}
}

// UserID returns the id of the session's user.
func (s *Session) UserID() string { return s.id.UserID }

// State returns the latest published state.
func (s *Session) State() State { return *s.state.Load() }

// View returns the latest aggregate view.
func (s *Session) View() aggregate.View { return s.state.Load().View }

// ViewFor computes the view of the latest state for period p without
// switching the session's own period.
func (s *Session) ViewFor(p core.Period) aggregate.View {
	st := s.state.Load()
	if p == st.Period {
		return st.View
	}
	return s.deps.Memo.Compute(aggregate.Inputs{
		Expenses: st.Expenses,
		Custom:   st.Custom,
		Period:   p,
		Budget:   st.Profile.Budget,
		Now:      s.deps.Now(),
		Location: s.deps.Location,
	})
}

// Expenses returns the latest ledger snapshot.
func (s *Session) Expenses() []core.Expense { return s.state.Load().Expenses }

// Categories returns the built-in categories followed by the user's own.
func (s *Session) Categories() []core.Category {
	return categories.Merged(s.state.Load().Custom)
}

func (s *Session) Preferences() core.Preferences { return s.state.Load().Preferences }

func (s *Session) Profile() core.Profile { return s.state.Load().Profile }

// Watch returns a channel receiving every newly published state. A slow
// reader only sees the newest one. Call the returned func to stop watching.
func (s *Session) Watch() (<-chan State, func()) {
	ch := make(chan State, 1)
	s.lmu.Lock()
	s.listeners[ch] = struct{}{}
	s.lmu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.lmu.Lock()
			delete(s.listeners, ch)
			s.lmu.Unlock()
		})
	}
}

func (s *Session) notify(st State) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	for ch := range s.listeners {
		// drop a stale pending state; senders are serialized by lmu
		select {
		case <-ch:
		default:
		}
		ch <- st
	}
}

// Close stops the ledger stream and the event loop. Mutations still in
// flight may complete but no longer change the published state.
func (s *Session) Close() {
	s.once.Do(func() {
		s.closed.Store(true)
		s.cancel()
		s.stream.Close()
		<-s.done
		s.logger.Info("Session closed", log.FieldOperation, log.OpShutdown)
	})
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool { return s.closed.Load() }

func (s *Session) refresh() {
	if r, ok := s.stream.(ledger.Refresher); ok {
		s.logger.Debug("Ledger refresh requested", log.FieldOperation, log.OpRefresh)
		r.Refresh()
	}
}

// CreateExpense stores a new expense. It shows up in the view with the next
// ledger snapshot.
func (s *Session) CreateExpense(ctx context.Context, e core.Expense) (string, error) {
	if s.closed.Load() {
		return "", ErrClosed
	}
	id, err := s.deps.Mirror.Create(ctx, s.id.UserID, e)
	if err != nil {
		return "", err
	}
	s.refresh()
	return id, nil
}

func (s *Session) UpdateExpense(ctx context.Context, id string, patch core.ExpensePatch) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := s.deps.Mirror.Update(ctx, s.id.UserID, id, patch); err != nil {
		return err
	}
	s.refresh()
	return nil
}

func (s *Session) DeleteExpense(ctx context.Context, id string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := s.deps.Mirror.Delete(ctx, s.id.UserID, id); err != nil {
		return err
	}
	s.refresh()
	return nil
}

// SetBudget stores a new ceiling and recomputes utilization.
func (s *Session) SetBudget(ctx context.Context, amount decimal.Decimal) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := s.deps.Budget.Set(ctx, s.id.UserID, amount); err != nil {
		return err
	}
	s.send(func(in *inputs) { in.profile.Budget = amount })
	return nil
}

// AddCategory creates a custom category and persists the updated list.
func (s *Session) AddCategory(ctx context.Context, name, icon string) (core.Category, error) {
	if s.closed.Load() {
		return core.Category{}, ErrClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cat, list, err := s.deps.Categories.AddCustom(name, icon, s.custom)
	if err != nil {
		return core.Category{}, err
	}
	if err := s.deps.Store.PutCategories(ctx, s.id.UserID, list); err != nil {
		return core.Category{}, core.Persistence("save categories", err)
	}
	s.custom = list
	s.send(func(in *inputs) { in.custom = list })
	return cat, nil
}

// RemoveCategory deletes a custom category. Expenses tagged with it resolve to
// the fallback category from then on. Unknown ids are a no-op.
func (s *Session) RemoveCategory(ctx context.Context, id string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	list := s.deps.Categories.RemoveCustom(id, s.custom)
	if len(list) == len(s.custom) {
		return nil
	}
	if err := s.deps.Store.PutCategories(ctx, s.id.UserID, list); err != nil {
		return core.Persistence("save categories", err)
	}
	s.custom = list
	s.send(func(in *inputs) { in.custom = list })
	return nil
}

// SetPeriod switches the reporting period of the statistics views.
func (s *Session) SetPeriod(p core.Period) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.send(func(in *inputs) { in.period = p })
	return nil
}

// UpdatePreferences merges the patch into the stored preferences.
func (s *Session) UpdatePreferences(ctx context.Context, patch store.PreferencesPatch) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := patch.Apply(s.prefs)
	if err := next.Validate(); err != nil {
		return err
	}
	if err := s.deps.Store.MergePreferences(ctx, s.id.UserID, patch); err != nil {
		return core.Persistence("save preferences", err)
	}
	s.prefs = next
	s.send(func(in *inputs) { in.prefs = next })
	return nil
}

// SetDisplayName renames the user.
func (s *Session) SetDisplayName(ctx context.Context, name string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return core.ErrEmptyDisplayName
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.deps.Store.MergeProfile(ctx, s.id.UserID, store.ProfilePatch{DisplayName: &name}); err != nil {
		return core.Persistence("save profile", err)
	}
	s.send(func(in *inputs) { in.profile.DisplayName = name })
	return nil
}
