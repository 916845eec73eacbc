// Package memory is an in-process expense store used by tests and by the
// memory data backend. Contents are lost when the process exits.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"expenses/internal/core"
)

var errClosed = errors.New("store closed")

type Store struct {
	mu     sync.Mutex
	items  map[uuid.UUID]core.Expense
	now    func() time.Time
	closed bool
	// failWith, when set, is returned by every operation.
	failWith error
}

func New() *Store {
	return &Store{items: make(map[uuid.UUID]core.Expense), now: time.Now}
}

// NewWithClock uses now for created_at and updated_at.
func NewWithClock(now func() time.Time) *Store {
	s := New()
	s.now = now
	return s
}

// Fail makes every subsequent call return err, simulating an unreachable store.
// A nil err restores normal behaviour.
func (s *Store) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

func (s *Store) check() error {
	if s.failWith != nil {
		return s.failWith
	}
	if s.closed {
		return &core.StoreError{Code: core.CodeUnavailable, Op: "memory store", Err: errClosed}
	}
	return nil
}

func (s *Store) stamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Store) Create(_ context.Context, in core.ExpenseInput) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return core.Expense{}, err
	}
	if err := core.CheckStorable("create expense", in.Amount); err != nil {
		return core.Expense{}, err
	}
	now := s.stamp()
	e := core.Expense{
		ID:          uuid.New(),
		Amount:      in.Amount,
		Category:    in.Category,
		Description: in.Description,
		Date:        in.Date,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.items[e.ID] = e
	return e, nil
}

func (s *Store) Get(_ context.Context, id uuid.UUID) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return core.Expense{}, err
	}
	e, ok := s.items[id]
	if !ok {
		return core.Expense{}, core.ErrNotFound
	}
	return e, nil
}

func (s *Store) Update(_ context.Context, id uuid.UUID, in core.ExpenseInput) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return core.Expense{}, err
	}
	if err := core.CheckStorable("update expense", in.Amount); err != nil {
		return core.Expense{}, err
	}
	e, ok := s.items[id]
	if !ok {
		return core.Expense{}, core.ErrNotFound
	}
	e.Amount = in.Amount
	e.Category = in.Category
	e.Description = in.Description
	e.Date = in.Date
	e.UpdatedAt = s.stamp()
	s.items[id] = e
	return e, nil
}

func (s *Store) Delete(_ context.Context, id uuid.UUID) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return core.Expense{}, err
	}
	e, ok := s.items[id]
	if !ok {
		return core.Expense{}, core.ErrNotFound
	}
	delete(s.items, id)
	return e, nil
}

func (s *Store) List(_ context.Context, f core.Filter) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.matching(f), nil
}

func (s *Store) ListForExport(ctx context.Context, start, end core.Date) ([]core.Expense, error) {
	return s.List(ctx, core.Filter{StartDate: start, EndDate: end})
}

func (s *Store) CategoryTotals(_ context.Context, year, month int) ([]core.CategoryBreakdown, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	groups := core.GroupByCategory(s.inMonth(year, month))
	return core.NewMonthlySummary(year, month, groups).CategoryBreakdown, nil
}

func (s *Store) MonthTotal(_ context.Context, year, month int) (core.MonthTotal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return core.MonthTotal{}, err
	}
	total := core.Zero
	for _, e := range s.inMonth(year, month) {
		total = total.Plus(e.Amount)
	}
	return core.MonthTotal{Year: year, Month: month, TotalAmount: total}, nil
}

func (s *Store) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.check()
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// matching returns the filtered records, date descending then created_at descending.
func (s *Store) matching(f core.Filter) []core.Expense {
	out := []core.Expense{}
	for _, e := range s.items {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.After(out[j].Date.Time)
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() > out[j].ID.String()
	})
	return out
}

func (s *Store) inMonth(year, month int) []core.Expense {
	start, end := core.MonthRange(year, month)
	var out []core.Expense
	for _, e := range s.items {
		if !e.Date.Before(start.Time) && e.Date.Before(end.Time) {
			out = append(out, e)
		}
	}
	return out
}
