package storage

import (
	"context"

	"github.com/google/uuid"

	"expenses/internal/core"
)

// ExpenseStore persists expense records. Every method is a single statement
// against the store, and a missing id yields core.ErrNotFound.
type ExpenseStore interface {
	Create(ctx context.Context, in core.ExpenseInput) (core.Expense, error)
	Get(ctx context.Context, id uuid.UUID) (core.Expense, error)
	Update(ctx context.Context, id uuid.UUID, in core.ExpenseInput) (core.Expense, error)
	Delete(ctx context.Context, id uuid.UUID) (core.Expense, error)
	List(ctx context.Context, f core.Filter) ([]core.Expense, error)
	ListForExport(ctx context.Context, start, end core.Date) ([]core.Expense, error)
}

// SummaryStore answers the aggregate queries behind monthly summaries.
type SummaryStore interface {
	// CategoryTotals returns per-category totals for the month, largest first.
	CategoryTotals(ctx context.Context, year, month int) ([]core.CategoryBreakdown, error)
	MonthTotal(ctx context.Context, year, month int) (core.MonthTotal, error)
}

// Store is a complete backend, as returned by the backend factory.
type Store interface {
	ExpenseStore
	SummaryStore
	Ping(ctx context.Context) error
	Close() error
}
