package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// percentSentinel is reported when spending went from nothing to something.
var percentSentinel = decimal.NewFromInt(100)

var hundred = decimal.NewFromInt(100)

// CategoryBreakdown is the subtotal of one category within a month.
type CategoryBreakdown struct {
	Category Category `json:"category"`
	Total    Money    `json:"total"`
	Count    int      `json:"count"`
}

// MonthlySummary aggregates all expenses dated within one calendar month.
type MonthlySummary struct {
	Year              int                 `json:"year"`
	Month             int                 `json:"month"` // 1-12
	TotalAmount       Money               `json:"totalAmount"`
	TotalCount        int                 `json:"totalCount"`
	CategoryBreakdown []CategoryBreakdown `json:"categoryBreakdown"`
}

// MonthTotal is the reduced summary used for the comparison month.
type MonthTotal struct {
	Year        int   `json:"year"`
	Month       int   `json:"month"`
	TotalAmount Money `json:"totalAmount"`
}

// Comparison is the delta between a month and the one before it.
type Comparison struct {
	PercentageChange float64 `json:"percentageChange"`
	Difference       Money   `json:"difference"`
}

// MonthlyReport bundles a month's summary with its previous-month comparison.
type MonthlyReport struct {
	Current    MonthlySummary `json:"current"`
	Previous   MonthTotal     `json:"previous"`
	Comparison Comparison     `json:"comparison"`
}

// NewMonthlySummary orders the groups by total descending and derives the
// overall totals from them, so TotalAmount and TotalCount always equal the
// sums over CategoryBreakdown.
func NewMonthlySummary(year, month int, groups []CategoryBreakdown) MonthlySummary {
	breakdown := make([]CategoryBreakdown, len(groups))
	copy(breakdown, groups)
	sort.SliceStable(breakdown, func(i, j int) bool {
		if c := breakdown[i].Total.Cmp(breakdown[j].Total.Decimal); c != 0 {
			return c > 0
		}
		return breakdown[i].Category < breakdown[j].Category
	})

	total := Zero
	count := 0
	for _, g := range breakdown {
		total = total.Plus(g.Total)
		count += g.Count
	}

	return MonthlySummary{
		Year:              year,
		Month:             month,
		TotalAmount:       total,
		TotalCount:        count,
		CategoryBreakdown: breakdown,
	}
}

// GroupByCategory computes per-category totals and counts over expenses.
// The result is unordered; NewMonthlySummary sorts it.
func GroupByCategory(expenses []Expense) []CategoryBreakdown {
	index := make(map[Category]int)
	var out []CategoryBreakdown
	for _, e := range expenses {
		i, ok := index[e.Category]
		if !ok {
			i = len(out)
			index[e.Category] = i
			out = append(out, CategoryBreakdown{Category: e.Category, Total: Zero})
		}
		out[i].Total = out[i].Total.Plus(e.Amount)
		out[i].Count++
	}
	return out
}

// PreviousMonth returns the calendar month before (year, month).
// January rolls over to December of the previous year.
func PreviousMonth(year, month int) (int, int) {
	if month == 1 {
		return year - 1, 12
	}
	return year, month - 1
}

// NextMonth returns the calendar month after (year, month).
func NextMonth(year, month int) (int, int) {
	if month == 12 {
		return year + 1, 1
	}
	return year, month + 1
}

// MonthRange returns the half-open date range [first, firstOfNext) of a month.
func MonthRange(year, month int) (Date, Date) {
	ny, nm := NextMonth(year, month)
	return NewDate(year, month, 1), NewDate(ny, nm, 1)
}

// Compare derives the month-over-month change.
//
// When the previous month had spending, the percentage is the relative change
// rounded to two decimals. When the previous month was empty and the current
// one is not, the percentage is fixed at 100. When both are empty it is 0.
func Compare(current MonthlySummary, previous MonthTotal) Comparison {
	cur := current.TotalAmount.Decimal
	prev := previous.TotalAmount.Decimal

	pct := decimal.Zero
	switch {
	case prev.IsPositive():
		pct = cur.Sub(prev).Div(prev).Mul(hundred).Round(2)
	case cur.IsPositive():
		pct = percentSentinel
	}

	return Comparison{
		PercentageChange: pct.InexactFloat64(),
		Difference:       current.TotalAmount.Minus(previous.TotalAmount),
	}
}

// NewMonthlyReport assembles the report for current against previous.
func NewMonthlyReport(current MonthlySummary, previous MonthTotal) MonthlyReport {
	if current.CategoryBreakdown == nil {
		current.CategoryBreakdown = []CategoryBreakdown{}
	}
	return MonthlyReport{
		Current:    current,
		Previous:   previous,
		Comparison: Compare(current, previous),
	}
}
