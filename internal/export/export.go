// Package export mirrors user ledgers to an external spreadsheet so they can
// be inspected outside the app. Every export rewrites the whole ledger of one
// user; rows are never patched in place.
package export

import (
	"context"
	"sync"
	"time"

	"gastos/internal/categories"
	"gastos/internal/core"
)

// Header is the first row of every exported ledger.
var Header = []string{"Fecha", "Monto", "Categoría", "Nota", "Creado", "ID"}

// Row is one exported expense, already formatted for display.
type Row struct {
	Date      string
	Amount    string
	Category  string
	Note      string
	CreatedAt string
	ID        string
}

// Values returns the cells of the row in Header order.
func (r Row) Values() []any {
	return []any{r.Date, r.Amount, r.Category, r.Note, r.CreatedAt, r.ID}
}

// Exporter replaces the exported ledger of a user.
type Exporter interface {
	ReplaceLedger(ctx context.Context, uid string, rows []Row) error
}

// Rows formats a ledger snapshot, resolving category names against the
// user's custom categories. Snapshot order is kept.
func Rows(expenses []core.Expense, custom []core.Category, loc *time.Location) []Row {
	if loc == nil {
		loc = time.UTC
	}
	rows := make([]Row, 0, len(expenses))
	for _, e := range expenses {
		rows = append(rows, Row{
			Date:      formatDate(e.Date, loc, time.DateOnly),
			Amount:    e.Amount.String(),
			Category:  categories.Resolve(e.CategoryID, custom).Name,
			Note:      e.Note,
			CreatedAt: formatDate(e.CreatedAt, loc, time.RFC3339),
			ID:        e.ID,
		})
	}
	return rows
}

func formatDate(t time.Time, loc *time.Location, layout string) string {
	if t.IsZero() {
		return ""
	}
	return t.In(loc).Format(layout)
}

// MemoryExporter keeps the last exported ledger of every user in memory.
type MemoryExporter struct {
	mu      sync.Mutex
	ledgers map[string][]Row
	calls   int
	err     error
}

var _ Exporter = (*MemoryExporter)(nil)

func NewMemoryExporter() *MemoryExporter {
	return &MemoryExporter{ledgers: map[string][]Row{}}
}

func (m *MemoryExporter) ReplaceLedger(_ context.Context, uid string, rows []Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return m.err
	}
	m.ledgers[uid] = append([]Row(nil), rows...)
	return nil
}

// Fail makes the following exports return err. Fail(nil) restores them.
func (m *MemoryExporter) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Ledger returns the rows last exported for uid.
func (m *MemoryExporter) Ledger(uid string) ([]Row, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows, ok := m.ledgers[uid]
	return rows, ok
}

// Calls returns how many exports were attempted.
func (m *MemoryExporter) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
