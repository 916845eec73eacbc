// Package sheets defines the spreadsheet mirror of the expense table and
// the monthly digest log.
package sheets

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"expenses/internal/core"
)

// ErrRejected marks failures the spreadsheet will keep refusing, such as a
// missing sheet or bad credentials. Retrying them is pointless.
var ErrRejected = errors.New("rejected by spreadsheet")

// Ports for outbound adapters.
type (
	// Mirror keeps one row per expense, keyed by id in the first column.
	Mirror interface {
		// UpsertExpense writes the row for e, replacing an existing one with the same id.
		UpsertExpense(ctx context.Context, e core.Expense) (rowRef string, err error)
		// RemoveExpense deletes the row for id. A missing row is not an error.
		RemoveExpense(ctx context.Context, id uuid.UUID) error
	}

	// SummaryWriter appends one digest row per monthly report.
	SummaryWriter interface {
		AppendSummary(ctx context.Context, r core.MonthlyReport) (rowRef string, err error)
	}
)
