package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gastos/internal/core"
	"gastos/internal/store/memory"
)

var now = time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func exp(amount int64, day int) core.Expense {
	return core.Expense{
		Amount:     decimal.NewFromInt(amount),
		CategoryID: "food",
		Date:       time.Date(2024, 1, day, 9, 0, 0, 0, time.UTC),
	}
}

func recv(t *testing.T, s Stream) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-s.Snapshots():
		require.True(t, ok, "stream closed unexpectedly")
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return Snapshot{}
	}
}

func assertQuiet(t *testing.T, s Stream, d time.Duration) {
	t.Helper()
	select {
	case snap := <-s.Snapshots():
		t.Fatalf("unexpected snapshot seq=%d", snap.Seq)
	case <-time.After(d):
	}
}

func TestPollingSubscriber_InitialAndRefresh(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	mirror := NewMirror(st, nil, NewPollingSubscriber(st, Options{Interval: time.Hour}), nil).WithClock(clock)

	s, err := mirror.Subscribe(ctx, "u")
	require.NoError(t, err)
	defer s.Close()

	first := recv(t, s)
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, "u", first.UserID)
	assert.Empty(t, first.Expenses)

	_, err = mirror.Create(ctx, "u", exp(100, 5))
	require.NoError(t, err)
	assertQuiet(t, s, 50*time.Millisecond)

	s.(Refresher).Refresh()
	second := recv(t, s)
	require.Len(t, second.Expenses, 1)
	assert.Equal(t, uint64(2), second.Seq)

	// unchanged ledger produces no snapshot
	s.(Refresher).Refresh()
	assertQuiet(t, s, 50*time.Millisecond)
}

func TestPollingSubscriber_IntervalAndCoalescing(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	sub := NewPollingSubscriber(st, Options{Interval: 10 * time.Millisecond})

	s, err := sub.Subscribe(ctx, "u")
	require.NoError(t, err)
	defer s.Close()
	recv(t, s)

	for day := 1; day <= 3; day++ {
		_, err := st.AddExpense(ctx, "u", exp(int64(day), day))
		require.NoError(t, err)
		time.Sleep(30 * time.Millisecond)
	}

	// the consumer was idle: only the newest ledger is pending
	snap := recv(t, s)
	assert.Len(t, snap.Expenses, 3)
}

func TestPollingSubscriber_RetriesWithBackoff(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	st.Fail(errors.New("offline"))
	sub := NewPollingSubscriber(st, Options{Interval: time.Hour, Backoff: []time.Duration{20 * time.Millisecond}})

	s, err := sub.Subscribe(ctx, "u")
	require.NoError(t, err)
	defer s.Close()

	assertQuiet(t, s, 50*time.Millisecond)
	st.Fail(nil)
	snap := recv(t, s)
	assert.Equal(t, uint64(1), snap.Seq)
}

func TestPushSubscriber_DeliversOnWrites(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	feed := memory.NewFeed()
	mirror := NewMirror(st, feed, NewPushSubscriber(st, feed, Options{}), nil).WithClock(clock)

	s, err := mirror.Subscribe(ctx, "u")
	require.NoError(t, err)
	defer s.Close()
	assert.Empty(t, recv(t, s).Expenses)

	id, err := mirror.Create(ctx, "u", exp(100, 5))
	require.NoError(t, err)
	snap := recv(t, s)
	require.Len(t, snap.Expenses, 1)
	assert.Equal(t, id, snap.Expenses[0].ID)
	assert.Equal(t, now, snap.Expenses[0].CreatedAt)

	amount := decimal.NewFromInt(250)
	require.NoError(t, mirror.Update(ctx, "u", id, core.ExpensePatch{Amount: &amount}))
	snap = recv(t, s)
	assert.True(t, amount.Equal(snap.Expenses[0].Amount))

	require.NoError(t, mirror.Delete(ctx, "u", id))
	assert.Empty(t, recv(t, s).Expenses)

	// writes for another user do not wake this stream
	_, err = mirror.Create(ctx, "other", exp(1, 1))
	require.NoError(t, err)
	assertQuiet(t, s, 50*time.Millisecond)
}

func TestStreamClose(t *testing.T) {
	st := memory.New()
	for _, sub := range []Subscriber{
		NewPollingSubscriber(st, Options{Interval: time.Millisecond}),
		NewPushSubscriber(st, memory.NewFeed(), Options{}),
	} {
		s, err := sub.Subscribe(context.Background(), "u")
		require.NoError(t, err)
		s.Close()
		s.Close()

		// drain the possibly pending initial snapshot, then expect closure
		for range s.Snapshots() {
		}
	}
}

func TestStreamStopsWithParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	st := memory.New()
	s, err := NewPollingSubscriber(st, Options{}).Subscribe(ctx, "u")
	require.NoError(t, err)

	cancel()
	done := make(chan struct{})
	go func() {
		for range s.Snapshots() {
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop")
	}
}

func TestMirror_Validation(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	m := NewMirror(st, nil, NewPollingSubscriber(st, Options{}), nil).WithClock(clock)

	_, err := m.Create(ctx, "u", core.Expense{Amount: decimal.Zero, Date: now})
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	future := exp(1, 5)
	future.Date = now.Add(time.Hour)
	_, err = m.Create(ctx, "u", future)
	assert.ErrorIs(t, err, core.ErrFutureDate)

	id, err := m.Create(ctx, "u", exp(1, 5))
	require.NoError(t, err)

	neg := decimal.NewFromInt(-5)
	err = m.Update(ctx, "u", id, core.ExpensePatch{Amount: &neg})
	assert.ErrorIs(t, err, core.ErrValidation)

	got, err := st.GetExpense(ctx, "u", id)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1).Equal(got.Amount), "rejected update must not be stored")
}

func TestMirror_NotFoundAndPersistence(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	m := NewMirror(st, nil, NewPollingSubscriber(st, Options{}), nil).WithClock(clock)

	note := "x"
	err := m.Update(ctx, "u", "missing", core.ExpensePatch{Note: &note})
	assert.ErrorIs(t, err, core.ErrNotFound)

	assert.NoError(t, m.Delete(ctx, "u", "missing"), "delete is idempotent")

	st.Fail(errors.New("offline"))
	_, err = m.Create(ctx, "u", exp(1, 5))
	assert.ErrorIs(t, err, core.ErrPersistence)
	assert.ErrorIs(t, m.Delete(ctx, "u", "any"), core.ErrPersistence)
	assert.ErrorIs(t, m.Update(ctx, "u", "any", core.ExpensePatch{Note: &note}), core.ErrPersistence)
}
