package sheets

import (
	"strings"
	"time"

	"expenses/internal/core"
)

// ExpenseHeader is the column order of the mirrored expense sheet.
var ExpenseHeader = []any{"ID", "Date", "Category", "Description", "Amount", "Created At", "Updated At"}

// SummaryHeader is the column order of the digest sheet.
var SummaryHeader = []any{
	"Year", "Month", "Total", "Count", "Previous Total", "Change %", "Difference", "Top Category",
}

// ExpenseRow renders e in ExpenseHeader order. Amounts are plain decimal
// strings so USER_ENTERED input stores them as numbers. The description is
// user text and goes through LiteralText.
func ExpenseRow(e core.Expense) []any {
	return []any{
		e.ID.String(),
		e.Date.String(),
		string(e.Category),
		LiteralText(e.Description),
		e.Amount.String(),
		e.CreatedAt.UTC().Format(time.RFC3339),
		e.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// LiteralText makes s read back verbatim under USER_ENTERED input. Text the
// sheet would evaluate as a formula (=, +, -, @) or reparse as a number or
// date (a leading digit, dot or apostrophe) is prefixed with an apostrophe,
// which Sheets stores as a text marker and never displays.
func LiteralText(s string) string {
	if s == "" {
		return s
	}
	if strings.ContainsRune("=+-@.'0123456789", rune(s[0])) {
		return "'" + s
	}
	return s
}

// SummaryRow renders r in SummaryHeader order.
func SummaryRow(r core.MonthlyReport) []any {
	top := ""
	if len(r.Current.CategoryBreakdown) > 0 {
		top = string(r.Current.CategoryBreakdown[0].Category)
	}
	return []any{
		r.Current.Year,
		r.Current.Month,
		r.Current.TotalAmount.String(),
		r.Current.TotalCount,
		r.Previous.TotalAmount.String(),
		r.Comparison.PercentageChange,
		r.Comparison.Difference.String(),
		top,
	}
}
