package storage

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"expenses/internal/core"
)

// Dialect selects placeholder syntax and value encoding for a SQL engine.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

const expenseColumns = "id, amount_cents, category, description, date, created_at, updated_at"

// sqliteTimestampLayout is fixed width so that text comparison orders rows
// the same way as time comparison.
const sqliteTimestampLayout = "2006-01-02T15:04:05.000000Z"

func (d Dialect) String() string {
	switch d {
	case SQLite:
		return "sqlite"
	case Postgres:
		return "postgres"
	default:
		return "unknown"
	}
}

// ParseDialect maps a backend name to its Dialect.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	default:
		return 0, fmt.Errorf("unknown sql dialect %q", name)
	}
}

// DriverName is the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	if d == Postgres {
		return "pgx"
	}
	return "sqlite"
}

// Placeholder renders the n-th (1-based) bound parameter.
func (d Dialect) Placeholder(n int) string {
	if d == Postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Timestamp encodes t for a timestamp column.
func (d Dialect) Timestamp(t time.Time) any {
	t = t.UTC().Truncate(time.Microsecond)
	if d == SQLite {
		return t.Format(sqliteTimestampLayout)
	}
	return t
}

// Query is rendered SQL text plus its bound values, in placeholder order.
type Query struct {
	SQL  string
	Args []any
}

// condition is one filter predicate. The bound value never appears in SQL text.
type condition struct {
	column string
	op     string
	value  any
}

// conditions collects the predicates for every present filter, in a fixed order.
func conditions(f core.Filter) []condition {
	var conds []condition
	if f.Category != "" {
		conds = append(conds, condition{column: "category", op: "=", value: string(f.Category)})
	}
	if !f.StartDate.IsZero() {
		conds = append(conds, condition{column: "date", op: ">=", value: f.StartDate.String()})
	}
	if !f.EndDate.IsZero() {
		conds = append(conds, condition{column: "date", op: "<=", value: f.EndDate.String()})
	}
	return conds
}

func monthConditions(year, month int) []condition {
	start, end := core.MonthRange(year, month)
	return []condition{
		{column: "date", op: ">=", value: start.String()},
		{column: "date", op: "<", value: end.String()},
	}
}

// where renders conds as a WHERE clause joined by AND, numbering placeholders from 1.
func (d Dialect) where(conds []condition) (string, []any) {
	if len(conds) == 0 {
		return "", nil
	}
	parts := make([]string, len(conds))
	args := make([]any, len(conds))
	for i, c := range conds {
		parts[i] = c.column + " " + c.op + " " + d.Placeholder(i+1)
		args[i] = c.value
	}
	return " WHERE " + strings.Join(parts, " AND "), args
}

// ComposeList builds the filtered listing newest first. Records on the same
// date are ordered by creation time, newest first.
func ComposeList(d Dialect, f core.Filter) Query {
	clause, args := d.where(conditions(f))
	return Query{
		SQL:  "SELECT " + expenseColumns + " FROM expenses" + clause + " ORDER BY date DESC, created_at DESC",
		Args: args,
	}
}

// ComposeExport builds the listing used by CSV export. Both bounds are inclusive.
func ComposeExport(d Dialect, start, end core.Date) Query {
	return ComposeList(d, core.Filter{StartDate: start, EndDate: end})
}

// ComposeMonthly builds the per-category totals of one calendar month,
// largest total first.
func ComposeMonthly(d Dialect, year, month int) Query {
	clause, args := d.where(monthConditions(year, month))
	return Query{
		SQL: "SELECT category, CAST(COALESCE(SUM(amount_cents), 0) AS BIGINT) AS total, COUNT(*) AS count FROM expenses" +
			clause + " GROUP BY category ORDER BY total DESC, category ASC",
		Args: args,
	}
}

// ComposeMonthTotal builds the overall total of one calendar month.
// SUM over BIGINT is NUMERIC in PostgreSQL, hence the cast.
func ComposeMonthTotal(d Dialect, year, month int) Query {
	clause, args := d.where(monthConditions(year, month))
	return Query{
		SQL:  "SELECT CAST(COALESCE(SUM(amount_cents), 0) AS BIGINT) FROM expenses" + clause,
		Args: args,
	}
}
