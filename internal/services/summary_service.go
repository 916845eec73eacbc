package services

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"expenses/internal/core"
	"expenses/internal/storage"
)

// SummaryService computes monthly summaries and month-over-month comparisons.
// Year and month are trusted to be in range.
type SummaryService struct {
	store storage.SummaryStore
}

func NewSummaryService(store storage.SummaryStore) *SummaryService {
	return &SummaryService{store: store}
}

// Summarize returns the per-category breakdown and totals of a month.
func (s *SummaryService) Summarize(ctx context.Context, year, month int) (core.MonthlySummary, error) {
	groups, err := s.store.CategoryTotals(ctx, year, month)
	if err != nil {
		return core.MonthlySummary{}, fmt.Errorf("summarize %d-%02d: %w", year, month, err)
	}
	return core.NewMonthlySummary(year, month, groups), nil
}

// PreviousMonthSummary returns the total of the calendar month before (year, month).
func (s *SummaryService) PreviousMonthSummary(ctx context.Context, year, month int) (core.MonthTotal, error) {
	py, pm := core.PreviousMonth(year, month)
	total, err := s.store.MonthTotal(ctx, py, pm)
	if err != nil {
		return core.MonthTotal{}, fmt.Errorf("summarize previous month %d-%02d: %w", py, pm, err)
	}
	return total, nil
}

// Report fetches both months concurrently. If either fetch fails no report is returned.
func (s *SummaryService) Report(ctx context.Context, year, month int) (core.MonthlyReport, error) {
	var (
		current  core.MonthlySummary
		previous core.MonthTotal
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		current, err = s.Summarize(gctx, year, month)
		return err
	})
	g.Go(func() error {
		var err error
		previous, err = s.PreviousMonthSummary(gctx, year, month)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.MonthlyReport{}, err
	}

	return core.NewMonthlyReport(current, previous), nil
}
