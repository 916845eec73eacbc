package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expenses/internal/amqp"
	"expenses/internal/core"
	"expenses/internal/storage/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []amqp.ExpenseEvent
	err    error
	closed bool
}

func (p *recordingPublisher) PublishExpenseEvent(_ context.Context, ev amqp.ExpenseEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Close() error {
	p.closed = true
	return nil
}

func (p *recordingPublisher) types() []amqp.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]amqp.EventType, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

func fixedNow() time.Time { return time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC) }

func newService(pub EventPublisher) (*ExpenseService, *memory.Store) {
	store := memory.New()
	svc := NewExpenseService(store, pub)
	svc.now = fixedNow
	return svc, store
}

func validInput() core.ExpenseInput {
	return core.ExpenseInput{
		Amount:      core.MustParseMoney("12.00"),
		Category:    core.Food,
		Description: "  groceries  ",
		Date:        core.NewDate(2024, 6, 1),
	}
}

func TestExpenseServiceLifecyclePublishes(t *testing.T) {
	pub := &recordingPublisher{}
	svc, _ := newService(pub)
	ctx := context.Background()

	created, err := svc.Create(ctx, validInput())
	require.NoError(t, err)
	assert.Equal(t, "groceries", created.Description, "description is trimmed")

	in := validInput()
	in.Amount = core.MustParseMoney("15")
	updated, err := svc.Update(ctx, created.ID, in)
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	deleted, err := svc.Delete(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "15.00", deleted.Amount.String())

	assert.Equal(t, []amqp.EventType{amqp.EventCreated, amqp.EventUpdated, amqp.EventDeleted}, pub.types())
}

func TestExpenseServicePublishFailureIsNotReturned(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc, store := newService(pub)

	created, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), created.ID)
	assert.NoError(t, err, "record is committed even though publishing failed")
}

func TestExpenseServiceValidation(t *testing.T) {
	pub := &recordingPublisher{}
	svc, _ := newService(pub)

	in := validInput()
	in.Category = "Groceries"
	in.Amount = core.Zero

	_, err := svc.Create(context.Background(), in)
	var verrs core.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 2)
	assert.Empty(t, pub.types(), "nothing is published for rejected input")

	_, err = svc.Update(context.Background(), uuid.New(), in)
	assert.ErrorAs(t, err, &verrs)
}

func TestExpenseServiceNotFound(t *testing.T) {
	svc, _ := newService(nil)
	ctx := context.Background()

	_, err := svc.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = svc.Update(ctx, uuid.New(), validInput())
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = svc.Delete(ctx, uuid.New())
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestExpenseServiceListFilters(t *testing.T) {
	svc, _ := newService(nil)
	ctx := context.Background()

	for _, c := range []core.Category{core.Food, core.Bills, core.Food} {
		in := validInput()
		in.Category = c
		_, err := svc.Create(ctx, in)
		require.NoError(t, err)
	}

	all, err := svc.List(ctx, core.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	food, err := svc.List(ctx, core.Filter{Category: core.Food})
	require.NoError(t, err)
	assert.Len(t, food, 2)
	for _, e := range food {
		assert.Equal(t, core.Food, e.Category)
	}

	_, err = svc.List(ctx, core.Filter{StartDate: core.NewDate(2024, 2, 1), EndDate: core.NewDate(2024, 1, 1)})
	assert.Error(t, err)
}

func TestExpenseServiceExportRange(t *testing.T) {
	svc, _ := newService(nil)
	ctx := context.Background()

	var verrs core.ValidationErrors
	_, err := svc.ExportRange(ctx, core.Date{}, core.Date{})
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 2)

	_, err = svc.ExportRange(ctx, core.NewDate(2024, 6, 2), core.NewDate(2024, 6, 1))
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "endDate", verrs[0].Field)

	_, err = svc.Create(ctx, validInput())
	require.NoError(t, err)
	out, err := svc.ExportRange(ctx, core.NewDate(2024, 6, 1), core.NewDate(2024, 6, 1))
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestExpenseServiceStoreFailurePropagates(t *testing.T) {
	svc, store := newService(nil)
	boom := errors.New("connection refused")
	store.Fail(boom)

	_, err := svc.Create(context.Background(), validInput())
	assert.ErrorIs(t, err, boom)
	_, err = svc.List(context.Background(), core.Filter{})
	assert.ErrorIs(t, err, boom)
}

func TestExpenseServiceClose(t *testing.T) {
	svc, _ := newService(nil)
	assert.NoError(t, svc.Close())

	pub := &recordingPublisher{}
	svc, _ = newService(pub)
	assert.NoError(t, svc.Close())
	assert.True(t, pub.closed)
}
