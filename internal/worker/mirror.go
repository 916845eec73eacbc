// Package worker keeps the spreadsheet mirror in step with the expense store.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"expenses/internal/amqp"
	"expenses/internal/core"
	"expenses/internal/log"
	"expenses/internal/sheets"
)

// ExpenseLister is the read side of the store used by Resync.
type ExpenseLister interface {
	List(ctx context.Context, f core.Filter) ([]core.Expense, error)
}

// MirrorWorker applies expense change events to a sheets.Mirror.
type MirrorWorker struct {
	mirror sheets.Mirror
}

func NewMirrorWorker(mirror sheets.Mirror) *MirrorWorker {
	return &MirrorWorker{mirror: mirror}
}

// HandleEvent is an amqp.Handler. Errors the spreadsheet will keep refusing
// are logged and swallowed so the delivery is acked; anything else is
// returned and the delivery goes back on the queue.
func (w *MirrorWorker) HandleEvent(ctx context.Context, ev amqp.ExpenseEvent) error {
	slog.InfoContext(ctx, "Processing expense event",
		log.FieldComponent, log.ComponentWorker,
		log.FieldEventType, ev.Type,
		log.FieldExpenseID, ev.ID)

	var (
		ref string
		err error
	)
	switch ev.Type {
	case amqp.EventCreated, amqp.EventUpdated:
		ref, err = w.mirror.UpsertExpense(ctx, ev.Expense)
	case amqp.EventDeleted:
		err = w.mirror.RemoveExpense(ctx, ev.ID)
	default:
		slog.WarnContext(ctx, "Ignoring unknown expense event",
			log.FieldComponent, log.ComponentWorker,
			log.FieldEventType, ev.Type)
		return nil
	}

	if errors.Is(err, sheets.ErrRejected) {
		slog.ErrorContext(ctx, "Spreadsheet rejected expense event, dropping",
			log.FieldComponent, log.ComponentWorker,
			log.FieldEventType, ev.Type,
			log.FieldExpenseID, ev.ID,
			log.FieldError, err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("mirror %s %s: %w", ev.Type, ev.ID, err)
	}

	slog.InfoContext(ctx, "Mirrored expense event",
		log.FieldComponent, log.ComponentWorker,
		log.FieldEventType, ev.Type,
		log.FieldExpenseID, ev.ID,
		log.FieldSheetRow, ref)
	return nil
}

// ResyncResult counts the outcome of a Resync pass.
type ResyncResult struct {
	Total  int
	Synced int
	Failed int
}

// Resync upserts every stored expense. It recovers rows missed while the
// worker or the broker was down; a failing row is counted and skipped.
// Rows of expenses deleted in the meantime are left alone.
func (w *MirrorWorker) Resync(ctx context.Context, store ExpenseLister) (ResyncResult, error) {
	expenses, err := store.List(ctx, core.Filter{})
	if err != nil {
		return ResyncResult{}, fmt.Errorf("list expenses for resync: %w", err)
	}

	res := ResyncResult{Total: len(expenses)}
	for _, e := range expenses {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if _, err := w.mirror.UpsertExpense(ctx, e); err != nil {
			slog.ErrorContext(ctx, "Failed to resync expense",
				log.FieldComponent, log.ComponentWorker,
				log.FieldExpenseID, e.ID,
				log.FieldError, err)
			res.Failed++
			continue
		}
		res.Synced++
	}

	slog.InfoContext(ctx, "Resync completed",
		log.FieldComponent, log.ComponentWorker,
		"total", res.Total,
		"synced", res.Synced,
		"errors", res.Failed)
	return res, nil
}
