package ledger

import (
	"context"
	"errors"
	"time"

	"gastos/internal/core"
	"gastos/internal/log"
	"gastos/internal/store"
)

// Mirror is the write side of the ledger plus access to its snapshot
// streams. Mutations never touch local state: their effect becomes visible
// through the next snapshot.
type Mirror struct {
	store  store.ExpenseStore
	feed   store.ChangeFeed
	sub    Subscriber
	now    func() time.Time
	logger *log.Logger
}

// NewMirror wires the mirror. feed may be nil when only polling is used.
func NewMirror(s store.ExpenseStore, feed store.ChangeFeed, sub Subscriber, logger *log.Logger) *Mirror {
	return &Mirror{
		store:  s,
		feed:   feed,
		sub:    sub,
		now:    time.Now,
		logger: log.OrDiscard(logger).WithComponent(log.ComponentLedger),
	}
}

// WithClock overrides the clock used to validate and stamp expenses.
func (m *Mirror) WithClock(now func() time.Time) *Mirror {
	m.now = now
	return m
}

// Subscribe opens a snapshot stream for uid.
func (m *Mirror) Subscribe(ctx context.Context, uid string) (Stream, error) {
	return m.sub.Subscribe(ctx, uid)
}

// Create validates e and stores it, returning the new id. ID and CreatedAt
// of e are ignored.
func (m *Mirror) Create(ctx context.Context, uid string, e core.Expense) (string, error) {
	now := m.now()
	if err := e.Validate(now); err != nil {
		return "", err
	}
	e.ID = ""
	e.CreatedAt = now

	id, err := m.store.AddExpense(ctx, uid, e)
	if err != nil {
		return "", core.Persistence("create expense", err)
	}
	log.NewStructuredLogger(m.logger).LogExpenseCreated(ctx, uid, id, e.Amount.String(), e.CategoryID)
	m.publish(ctx, uid)
	return id, nil
}

// Update applies patch to the stored expense id. The patched record must
// still be valid.
func (m *Mirror) Update(ctx context.Context, uid, id string, patch core.ExpensePatch) error {
	cur, err := m.store.GetExpense(ctx, uid, id)
	if err != nil {
		return core.Persistence("update expense", err)
	}
	if patch.IsEmpty() {
		return nil
	}
	next := patch.Apply(cur)
	if err := next.Validate(m.now()); err != nil {
		return err
	}
	if err := m.store.UpdateExpense(ctx, uid, next); err != nil {
		return core.Persistence("update expense", err)
	}
	m.logger.InfoContext(ctx, "Expense updated",
		log.NewFields().WithUser(uid).WithExpense(id, next.Amount.String(), next.CategoryID).WithOperation(log.OpUpdate).ToSlice()...)
	m.publish(ctx, uid)
	return nil
}

// Delete removes the expense. Deleting an id that is already gone succeeds.
func (m *Mirror) Delete(ctx context.Context, uid, id string) error {
	err := m.store.DeleteExpense(ctx, uid, id)
	switch {
	case errors.Is(err, core.ErrNotFound):
		m.logger.DebugContext(ctx, "Delete of missing expense ignored", log.FieldUserID, uid, log.FieldExpenseID, id)
		return nil
	case err != nil:
		return core.Persistence("delete expense", err)
	}
	m.logger.InfoContext(ctx, "Expense deleted", log.FieldUserID, uid, log.FieldExpenseID, id)
	m.publish(ctx, uid)
	return nil
}

// publish signals the change feed. A failed signal is logged only: the write
// itself succeeded and polling subscribers will pick it up.
func (m *Mirror) publish(ctx context.Context, uid string) {
	if m.feed == nil {
		return
	}
	if err := m.feed.Publish(ctx, uid); err != nil {
		m.logger.WarnContext(ctx, "Change notification failed", log.FieldUserID, uid, log.FieldError, err)
	}
}
