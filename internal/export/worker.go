package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"gastos/internal/amqp"
	"gastos/internal/core"
	"gastos/internal/log"
	"gastos/internal/store"
)

// Source is the read side the worker exports from.
type Source interface {
	QueryExpenses(ctx context.Context, uid string, q store.Query) ([]core.Expense, error)
	GetCategories(ctx context.Context, uid string) ([]core.Category, error)
	store.UserLister
}

// Worker re-exports a user's ledger every time it changes.
type Worker struct {
	source   Source
	exporter Exporter
	loc      *time.Location
	logger   *log.Logger
	group    singleflight.Group
}

func NewWorker(source Source, exporter Exporter, loc *time.Location, logger *log.Logger) *Worker {
	if loc == nil {
		loc = time.UTC
	}
	return &Worker{
		source:   source,
		exporter: exporter,
		loc:      loc,
		logger:   log.OrDiscard(logger).WithComponent(log.ComponentWorker),
	}
}

// HandleLedgerChanged processes a single change notification from AMQP.
func (w *Worker) HandleLedgerChanged(ctx context.Context, msg *amqp.LedgerChanged) error {
	if msg == nil || msg.UserID == "" {
		w.logger.WarnContext(ctx, "Dropping ledger change without user")
		return nil
	}
	return w.Export(ctx, msg.UserID)
}

// Export rewrites the exported ledger of uid. Concurrent calls for the same
// user share one export.
func (w *Worker) Export(ctx context.Context, uid string) error {
	_, err, shared := w.group.Do(uid, func() (any, error) {
		return nil, w.export(ctx, uid)
	})
	if shared {
		w.logger.DebugContext(ctx, "Export coalesced", log.FieldUserID, uid)
	}
	return err
}

func (w *Worker) export(ctx context.Context, uid string) error {
	start := time.Now()

	expenses, err := w.source.QueryExpenses(ctx, uid, store.Query{})
	if err != nil {
		return fmt.Errorf("read ledger: %w", err)
	}
	custom, err := w.source.GetCategories(ctx, uid)
	if err != nil {
		return fmt.Errorf("read categories: %w", err)
	}

	rows := Rows(expenses, custom, w.loc)
	if err := w.exporter.ReplaceLedger(ctx, uid, rows); err != nil {
		w.logger.ErrorContext(ctx, "Failed to export ledger",
			log.FieldUserID, uid,
			log.FieldOperation, log.OpExport,
			log.FieldError, err)
		return fmt.Errorf("replace ledger: %w", err)
	}

	w.logger.InfoContext(ctx, "Exported ledger",
		log.FieldUserID, uid,
		log.FieldSnapshotSize, len(rows),
		log.FieldDuration, time.Since(start).Milliseconds())
	return nil
}

// ExportAll re-exports every known user. It keeps going past failures and
// returns them joined.
func (w *Worker) ExportAll(ctx context.Context) error {
	uids, err := w.source.ListUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	var errs []error
	for _, uid := range uids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := w.Export(ctx, uid); err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", uid, err))
		}
	}

	w.logger.InfoContext(ctx, "Full export completed",
		"users", len(uids),
		"errors", len(errs))
	return errors.Join(errs...)
}

// Run exports every user once, then again on every tick until ctx is done.
// This is the backup path for change notifications that were lost.
func (w *Worker) Run(ctx context.Context, interval time.Duration) error {
	if err := w.ExportAll(ctx); err != nil && ctx.Err() == nil {
		w.logger.WarnContext(ctx, "Startup export failed", log.FieldError, err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.ExportAll(ctx); err != nil && ctx.Err() == nil {
				w.logger.WarnContext(ctx, "Periodic export failed", log.FieldError, err)
			}
		}
	}
}
