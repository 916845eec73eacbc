package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"expenses/internal/amqp"
	"expenses/internal/core"
	"expenses/internal/log"
	"expenses/internal/storage"
)

// EventPublisher announces committed mutations.
type EventPublisher interface {
	PublishExpenseEvent(ctx context.Context, ev amqp.ExpenseEvent) error
}

// ExpenseService validates expense mutations, applies them to the store and
// announces them to the publisher when one is configured.
type ExpenseService struct {
	store     storage.ExpenseStore
	publisher EventPublisher
	now       func() time.Time
}

// NewExpenseService wires the store and an optional publisher. Pass a nil
// publisher, not a typed nil pointer, to disable events.
func NewExpenseService(store storage.ExpenseStore, publisher EventPublisher) *ExpenseService {
	return &ExpenseService{store: store, publisher: publisher, now: time.Now}
}

func (s *ExpenseService) Create(ctx context.Context, in core.ExpenseInput) (core.Expense, error) {
	in = in.Normalize()
	if err := in.Validate(s.now()); err != nil {
		return core.Expense{}, err
	}

	e, err := s.store.Create(ctx, in)
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense created",
		log.FieldComponent, log.ComponentExpense,
		log.FieldExpenseID, e.ID,
		log.FieldCategory, e.Category,
		log.FieldAmount, e.Amount.String(),
		log.FieldDate, e.Date.String())

	s.publish(ctx, amqp.EventCreated, e)
	return e, nil
}

func (s *ExpenseService) Get(ctx context.Context, id uuid.UUID) (core.Expense, error) {
	e, err := s.store.Get(ctx, id)
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense %s: %w", id, err)
	}
	return e, nil
}

// Update replaces every mutable field of the record.
func (s *ExpenseService) Update(ctx context.Context, id uuid.UUID, in core.ExpenseInput) (core.Expense, error) {
	in = in.Normalize()
	if err := in.Validate(s.now()); err != nil {
		return core.Expense{}, err
	}

	e, err := s.store.Update(ctx, id, in)
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense %s: %w", id, err)
	}

	slog.InfoContext(ctx, "Expense updated",
		log.FieldComponent, log.ComponentExpense,
		log.FieldExpenseID, e.ID,
		log.FieldCategory, e.Category,
		log.FieldAmount, e.Amount.String())

	s.publish(ctx, amqp.EventUpdated, e)
	return e, nil
}

// Delete removes the record and returns it as it was.
func (s *ExpenseService) Delete(ctx context.Context, id uuid.UUID) (core.Expense, error) {
	e, err := s.store.Delete(ctx, id)
	if err != nil {
		return core.Expense{}, fmt.Errorf("delete expense %s: %w", id, err)
	}

	slog.InfoContext(ctx, "Expense deleted",
		log.FieldComponent, log.ComponentExpense,
		log.FieldExpenseID, e.ID)

	s.publish(ctx, amqp.EventDeleted, e)
	return e, nil
}

func (s *ExpenseService) List(ctx context.Context, f core.Filter) ([]core.Expense, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	out, err := s.store.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return out, nil
}

// ExportRange returns the records dated within [start, end] for CSV export.
// Both bounds are required.
func (s *ExpenseService) ExportRange(ctx context.Context, start, end core.Date) ([]core.Expense, error) {
	var errs core.ValidationErrors
	if start.IsZero() {
		errs = append(errs, core.ValidationError{Field: "startDate", Message: "Start date is required"})
	}
	if end.IsZero() {
		errs = append(errs, core.ValidationError{Field: "endDate", Message: "End date is required"})
	}
	if len(errs) > 0 {
		return nil, errs
	}
	if err := (core.Filter{StartDate: start, EndDate: end}).Validate(); err != nil {
		return nil, err
	}

	out, err := s.store.ListForExport(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("list expenses for export: %w", err)
	}
	return out, nil
}

// publish is best effort: the write has already committed, so a broker
// failure is logged and not returned.
func (s *ExpenseService) publish(ctx context.Context, t amqp.EventType, e core.Expense) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishExpenseEvent(ctx, amqp.NewExpenseEvent(t, e)); err != nil {
		slog.ErrorContext(ctx, "Failed to publish expense event",
			log.FieldComponent, log.ComponentExpense,
			log.FieldOperation, log.OpPublish,
			log.FieldEventType, t,
			log.FieldExpenseID, e.ID,
			log.FieldError, err)
	}
}

// Close releases the publisher when it holds a connection.
func (s *ExpenseService) Close() error {
	var errs []error
	if c, ok := s.publisher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close expense service: %w", errors.Join(errs...))
	}
	return nil
}
