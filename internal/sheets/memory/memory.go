// Package memory is an in-process sheets mirror for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"expenses/internal/core"
	ports "expenses/internal/sheets"
)

var (
	_ ports.Mirror        = (*Mirror)(nil)
	_ ports.SummaryWriter = (*Mirror)(nil)
)

// Mirror keeps rows in insertion order. Row 1 is the header, as in a real sheet.
type Mirror struct {
	mu        sync.Mutex
	rows      [][]any
	summaries [][]any
	err       error
}

func New() *Mirror {
	return &Mirror{}
}

// Fail makes every subsequent write return err. A nil err restores normal behaviour.
func (m *Mirror) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *Mirror) UpsertExpense(_ context.Context, e core.Expense) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}

	row := ports.ExpenseRow(e)
	if i := m.indexOf(e.ID); i >= 0 {
		m.rows[i] = row
		return rowRef("Expenses", i+2), nil
	}
	m.rows = append(m.rows, row)
	return rowRef("Expenses", len(m.rows)+1), nil
}

func (m *Mirror) RemoveExpense(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}

	if i := m.indexOf(id); i >= 0 {
		m.rows = append(m.rows[:i], m.rows[i+1:]...)
	}
	return nil
}

func (m *Mirror) AppendSummary(_ context.Context, r core.MonthlyReport) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.summaries = append(m.summaries, ports.SummaryRow(r))
	return rowRef("Summary", len(m.summaries)+1), nil
}

// Rows returns a copy of the expense rows, header excluded.
func (m *Mirror) Rows() [][]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]any(nil), m.rows...)
}

// Summaries returns a copy of the digest rows, header excluded.
func (m *Mirror) Summaries() [][]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]any(nil), m.summaries...)
}

func (m *Mirror) indexOf(id uuid.UUID) int {
	key := id.String()
	for i, row := range m.rows {
		if len(row) > 0 && row[0] == key {
			return i
		}
	}
	return -1
}

func rowRef(sheet string, row int) string {
	return fmt.Sprintf("mem:%s!%d", sheet, row)
}
