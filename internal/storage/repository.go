// Package storage is the SQLite implementation of the store ports.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"gastos/internal/core"
	"gastos/internal/store"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so stored dates sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.Backend = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime returns the zero time for unparsable values, which keeps a
// malformed row out of every period instead of failing the read.
func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (r *SQLiteRepository) AddExpense(ctx context.Context, uid string, e core.Expense) (string, error) {
	id := uuid.New().String()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (id, user_id, amount, category_id, note, date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, uid, e.Amount.String(), e.CategoryID, e.Note, formatTime(e.Date), formatTime(e.CreatedAt))
	if err != nil {
		return "", core.Persistence("create expense", err)
	}

	slog.DebugContext(ctx, "Expense saved to SQLite", "user_id", uid, "id", id, "amount", e.Amount.String())
	return id, nil
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, uid, id string) (core.Expense, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, amount, category_id, note, date, created_at
		 FROM expenses WHERE user_id = ? AND id = ?`, uid, id)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, core.ErrNotFound
	}
	if err != nil {
		return core.Expense{}, core.Persistence("get expense", err)
	}
	return e, nil
}

func (r *SQLiteRepository) UpdateExpense(ctx context.Context, uid string, e core.Expense) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET amount = ?, category_id = ?, note = ?, date = ?
		 WHERE user_id = ? AND id = ?`,
		e.Amount.String(), e.CategoryID, e.Note, formatTime(e.Date), uid, e.ID)
	if err != nil {
		return core.Persistence("update expense", err)
	}
	return affected(res, "update expense")
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, uid, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE user_id = ? AND id = ?`, uid, id)
	if err != nil {
		return core.Persistence("delete expense", err)
	}
	return affected(res, "delete expense")
}

func affected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return core.Persistence(op, err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// QueryExpenses orders by date descending, most recently inserted first on
// equal dates.
func (r *SQLiteRepository) QueryExpenses(ctx context.Context, uid string, q store.Query) ([]core.Expense, error) {
	query := `SELECT id, amount, category_id, note, date, created_at FROM expenses WHERE user_id = ?`
	args := []any{uid}
	if !q.Since.IsZero() {
		query += ` AND date >= ?`
		args = append(args, formatTime(q.Since))
	}
	query += ` ORDER BY date DESC, seq DESC`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.Persistence("query expenses", err)
	}
	defer rows.Close()

	out := []core.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, core.Persistence("scan expense", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Persistence("query expenses", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExpense(s scanner) (core.Expense, error) {
	var e core.Expense
	var amount, date, created string
	if err := s.Scan(&e.ID, &amount, &e.CategoryID, &e.Note, &date, &created); err != nil {
		return core.Expense{}, err
	}
	e.Amount = parseAmount(amount)
	e.Date = parseTime(date)
	e.CreatedAt = parseTime(created)
	return e, nil
}

// ListUserIDs returns every user that owns at least one expense.
func (r *SQLiteRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM expenses ORDER BY user_id`)
	if err != nil {
		return nil, core.Persistence("list users", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, core.Persistence("scan user", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *SQLiteRepository) GetProfile(ctx context.Context, uid string) (core.Profile, error) {
	var p core.Profile
	var budget string
	err := r.db.QueryRowContext(ctx,
		`SELECT display_name, email, budget FROM users WHERE id = ?`, uid).
		Scan(&p.DisplayName, &p.Email, &budget)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Profile{}, core.ErrNotFound
	}
	if err != nil {
		return core.Profile{}, core.Persistence("get profile", err)
	}
	p.Budget = parseAmount(budget)
	return p, nil
}

func (r *SQLiteRepository) MergeProfile(ctx context.Context, uid string, patch store.ProfilePatch) error {
	return r.inTx(ctx, "merge profile", func(tx *sql.Tx) error {
		var cur core.Profile
		var budget string
		err := tx.QueryRowContext(ctx,
			`SELECT display_name, email, budget FROM users WHERE id = ?`, uid).
			Scan(&cur.DisplayName, &cur.Email, &budget)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			cur.Budget = decimal.Zero
		case err != nil:
			return err
		default:
			cur.Budget = parseAmount(budget)
		}

		next := patch.Apply(cur)
		_, err = tx.ExecContext(ctx,
			`INSERT INTO users (id, display_name, email, budget, updated_at) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET display_name = excluded.display_name,
			   email = excluded.email, budget = excluded.budget, updated_at = excluded.updated_at`,
			uid, next.DisplayName, next.Email, next.Budget.String(), formatTime(r.now()))
		return err
	})
}

func (r *SQLiteRepository) GetCategories(ctx context.Context, uid string) ([]core.Category, error) {
	var raw string
	err := r.db.QueryRowContext(ctx,
		`SELECT custom_json FROM category_settings WHERE user_id = ?`, uid).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return []core.Category{}, nil
	}
	if err != nil {
		return nil, core.Persistence("get categories", err)
	}
	custom := []core.Category{}
	if err := json.Unmarshal([]byte(raw), &custom); err != nil {
		return nil, core.Persistence("decode categories", err)
	}
	return custom, nil
}

func (r *SQLiteRepository) PutCategories(ctx context.Context, uid string, custom []core.Category) error {
	if custom == nil {
		custom = []core.Category{}
	}
	raw, err := json.Marshal(custom)
	if err != nil {
		return fmt.Errorf("encode categories: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO category_settings (user_id, custom_json, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET custom_json = excluded.custom_json, updated_at = excluded.updated_at`,
		uid, string(raw), formatTime(r.now()))
	if err != nil {
		return core.Persistence("put categories", err)
	}
	return nil
}

func (r *SQLiteRepository) GetPreferences(ctx context.Context, uid string) (core.Preferences, error) {
	var p core.Preferences
	err := r.db.QueryRowContext(ctx,
		`SELECT notifications_enabled, currency FROM preferences WHERE user_id = ?`, uid).
		Scan(&p.NotificationsEnabled, &p.Currency)
	if errors.Is(err, sql.ErrNoRows) {
		return core.DefaultPreferences(), nil
	}
	if err != nil {
		return core.Preferences{}, core.Persistence("get preferences", err)
	}
	return p, nil
}

func (r *SQLiteRepository) MergePreferences(ctx context.Context, uid string, patch store.PreferencesPatch) error {
	return r.inTx(ctx, "merge preferences", func(tx *sql.Tx) error {
		cur := core.DefaultPreferences()
		err := tx.QueryRowContext(ctx,
			`SELECT notifications_enabled, currency FROM preferences WHERE user_id = ?`, uid).
			Scan(&cur.NotificationsEnabled, &cur.Currency)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		next := patch.Apply(cur)
		_, err = tx.ExecContext(ctx,
			`INSERT INTO preferences (user_id, notifications_enabled, currency, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(user_id) DO UPDATE SET notifications_enabled = excluded.notifications_enabled,
			   currency = excluded.currency, updated_at = excluded.updated_at`,
			uid, next.NotificationsEnabled, next.Currency, formatTime(r.now()))
		return err
	})
}

func (r *SQLiteRepository) inTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Persistence(op, err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return core.Persistence(op, err)
	}
	if err := tx.Commit(); err != nil {
		return core.Persistence(op, err)
	}
	return nil
}
