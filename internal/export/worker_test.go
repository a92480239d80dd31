package export

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gastos/internal/amqp"
	"gastos/internal/core"
	"gastos/internal/log"
	"gastos/internal/store/memory"
)

func seed(t *testing.T, s *memory.Store, uid string, amount int64, cat, note string, date time.Time) string {
	t.Helper()
	id, err := s.AddExpense(context.Background(), uid, core.Expense{
		Amount:     decimal.NewFromInt(amount),
		CategoryID: cat,
		Note:       note,
		Date:       date,
	})
	require.NoError(t, err)
	return id
}

func TestRowsResolveCategoriesAndFormat(t *testing.T) {
	bogota := time.FixedZone("COT", -5*3600)
	custom := []core.Category{{ID: "custom_1", Name: "Mascotas", Icon: "🐶", Color: "#123456"}}
	expenses := []core.Expense{
		{ID: "a", Amount: decimal.RequireFromString("12.50"), CategoryID: "custom_1", Note: "vet",
			Date: time.Date(2024, 3, 10, 2, 0, 0, 0, time.UTC), CreatedAt: time.Date(2024, 3, 10, 2, 0, 0, 0, time.UTC)},
		{ID: "b", Amount: decimal.NewFromInt(3), CategoryID: "gone"},
		{ID: "c", Amount: decimal.NewFromInt(7), CategoryID: "food", Date: time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)},
	}

	rows := Rows(expenses, custom, bogota)
	require.Len(t, rows, 3)

	assert.Equal(t, Row{Date: "2024-03-09", Amount: "12.5", Category: "Mascotas", Note: "vet",
		CreatedAt: "2024-03-09T21:00:00-05:00", ID: "a"}, rows[0])
	assert.Equal(t, "Otros", rows[1].Category)
	assert.Empty(t, rows[1].Date)
	assert.Equal(t, "Alimentación", rows[2].Category)
	assert.Len(t, rows[0].Values(), len(Header))
}

func TestWorkerExportAndHandle(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	d := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	seed(t, s, "u1", 10, "food", "", d)
	seed(t, s, "u1", 20, "transport", "bus", d.Add(time.Hour))

	exp := NewMemoryExporter()
	w := NewWorker(s, exp, time.UTC, log.Discard())

	require.NoError(t, w.HandleLedgerChanged(ctx, amqp.NewLedgerChanged("u1")))
	rows, ok := exp.Ledger("u1")
	require.True(t, ok)
	require.Len(t, rows, 2)
	assert.Equal(t, "Transporte", rows[0].Category)
	assert.Equal(t, "bus", rows[0].Note)

	// empty user id is dropped without an export
	require.NoError(t, w.HandleLedgerChanged(ctx, &amqp.LedgerChanged{}))
	require.NoError(t, w.HandleLedgerChanged(ctx, nil))
	assert.Equal(t, 1, exp.Calls())
}

func TestWorkerExportErrors(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seed(t, s, "u1", 10, "food", "", time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))

	exp := NewMemoryExporter()
	w := NewWorker(s, exp, nil, nil)

	exp.Fail(errors.New("quota"))
	err := w.Export(ctx, "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "replace ledger")

	exp.Fail(nil)
	s.Fail(errors.New("disk"))
	err = w.Export(ctx, "u1")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrPersistence)
}

func TestWorkerExportAll(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	d := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	seed(t, s, "ana", 1, "food", "", d)
	seed(t, s, "bob", 2, "bills", "", d)

	exp := NewMemoryExporter()
	w := NewWorker(s, exp, time.UTC, nil)

	require.NoError(t, w.ExportAll(ctx))
	_, okA := exp.Ledger("ana")
	_, okB := exp.Ledger("bob")
	assert.True(t, okA)
	assert.True(t, okB)

	exp.Fail(errors.New("quota"))
	err := w.ExportAll(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user ana")
	assert.Contains(t, err.Error(), "user bob")
}

type blockingExporter struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	mu      sync.Mutex
	calls   int
}

func (b *blockingExporter) ReplaceLedger(ctx context.Context, uid string, rows []Row) error {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	b.once.Do(func() { close(b.started) })
	<-b.release
	return nil
}

func TestWorkerCoalescesConcurrentExports(t *testing.T) {
	s := memory.New()
	seed(t, s, "u1", 1, "food", "", time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))

	be := &blockingExporter{started: make(chan struct{}), release: make(chan struct{})}
	w := NewWorker(s, be, time.UTC, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = w.Export(context.Background(), "u1")
	}()
	<-be.started

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w.Export(context.Background(), "u1")
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(be.release)
	wg.Wait()

	be.mu.Lock()
	defer be.mu.Unlock()
	assert.LessOrEqual(t, be.calls, 2)
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	s := memory.New()
	seed(t, s, "u1", 1, "food", "", time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))
	exp := NewMemoryExporter()
	w := NewWorker(s, exp, time.UTC, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, 10*time.Millisecond) }()

	require.Eventually(t, func() bool { return exp.Calls() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
