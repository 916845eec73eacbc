package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"expenses/internal/core"
)

// SQLRepository implements Store over database/sql for SQLite and PostgreSQL.
type SQLRepository struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// Option configures a SQLRepository.
type Option func(*SQLRepository)

// WithClock overrides the time source used for created_at and updated_at.
func WithClock(now func() time.Time) Option {
	return func(r *SQLRepository) { r.now = now }
}

// Open connects to the database, verifies it and applies migrations.
// For SQLite dsn is a file path; for PostgreSQL it is a connection URL.
func Open(ctx context.Context, d Dialect, dsn string, opts ...Option) (*SQLRepository, error) {
	if d == SQLite {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		dsn = sqliteDSN(dsn)
	}

	db, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", d, err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, classify("ping database", err)
	}

	if err := RunMigrations(d, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return NewSQLRepository(db, d, opts...), nil
}

// NewSQLRepository wraps an already migrated database handle.
func NewSQLRepository(db *sql.DB, d Dialect, opts ...Option) *SQLRepository {
	r := &SQLRepository{db: db, dialect: d, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func (r *SQLRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLRepository) Ping(ctx context.Context) error {
	return classify("ping database", r.db.PingContext(ctx))
}

func (r *SQLRepository) placeholders(n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = r.dialect.Placeholder(i + 1)
	}
	return strings.Join(ps, ", ")
}

func (r *SQLRepository) Create(ctx context.Context, in core.ExpenseInput) (core.Expense, error) {
	if err := core.CheckStorable("create expense", in.Amount); err != nil {
		return core.Expense{}, err
	}
	now := r.dialect.Timestamp(r.now())
	q := "INSERT INTO expenses (" + expenseColumns + ") VALUES (" + r.placeholders(7) + ") RETURNING " + expenseColumns

	row := r.db.QueryRowContext(ctx, q,
		uuid.New(), in.Amount.Cents(), string(in.Category), in.Description, in.Date, now, now)

	e, err := scanExpense(row)
	if err != nil {
		return core.Expense{}, classify("create expense", err)
	}
	return e, nil
}

func (r *SQLRepository) Get(ctx context.Context, id uuid.UUID) (core.Expense, error) {
	q := "SELECT " + expenseColumns + " FROM expenses WHERE id = " + r.dialect.Placeholder(1)

	e, err := scanExpense(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, core.ErrNotFound
	}
	if err != nil {
		return core.Expense{}, classify("get expense", err)
	}
	return e, nil
}

// Update replaces every caller-supplied field and refreshes updated_at in one statement.
func (r *SQLRepository) Update(ctx context.Context, id uuid.UUID, in core.ExpenseInput) (core.Expense, error) {
	if err := core.CheckStorable("update expense", in.Amount); err != nil {
		return core.Expense{}, err
	}
	p := r.dialect.Placeholder
	q := "UPDATE expenses SET amount_cents = " + p(1) +
		", category = " + p(2) +
		", description = " + p(3) +
		", date = " + p(4) +
		", updated_at = " + p(5) +
		" WHERE id = " + p(6) +
		" RETURNING " + expenseColumns

	row := r.db.QueryRowContext(ctx, q,
		in.Amount.Cents(), string(in.Category), in.Description, in.Date, r.dialect.Timestamp(r.now()), id)

	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, core.ErrNotFound
	}
	if err != nil {
		return core.Expense{}, classify("update expense", err)
	}
	return e, nil
}

// Delete removes the record and returns it as it was.
func (r *SQLRepository) Delete(ctx context.Context, id uuid.UUID) (core.Expense, error) {
	q := "DELETE FROM expenses WHERE id = " + r.dialect.Placeholder(1) + " RETURNING " + expenseColumns

	e, err := scanExpense(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, core.ErrNotFound
	}
	if err != nil {
		return core.Expense{}, classify("delete expense", err)
	}
	return e, nil
}

func (r *SQLRepository) List(ctx context.Context, f core.Filter) ([]core.Expense, error) {
	return r.queryExpenses(ctx, "list expenses", ComposeList(r.dialect, f))
}

func (r *SQLRepository) ListForExport(ctx context.Context, start, end core.Date) ([]core.Expense, error) {
	return r.queryExpenses(ctx, "list expenses for export", ComposeExport(r.dialect, start, end))
}

func (r *SQLRepository) queryExpenses(ctx context.Context, op string, q Query) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	out := []core.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}

func (r *SQLRepository) CategoryTotals(ctx context.Context, year, month int) ([]core.CategoryBreakdown, error) {
	q := ComposeMonthly(r.dialect, year, month)
	rows, err := r.db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, classify("get category totals", err)
	}
	defer rows.Close()

	out := []core.CategoryBreakdown{}
	for rows.Next() {
		var (
			category string
			cents    int64
			count    int
		)
		if err := rows.Scan(&category, &cents, &count); err != nil {
			return nil, classify("get category totals", err)
		}
		out = append(out, core.CategoryBreakdown{
			Category: core.Category(category),
			Total:    core.MoneyFromCents(cents),
			Count:    count,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, classify("get category totals", err)
	}
	return out, nil
}

func (r *SQLRepository) MonthTotal(ctx context.Context, year, month int) (core.MonthTotal, error) {
	q := ComposeMonthTotal(r.dialect, year, month)

	var cents int64
	if err := r.db.QueryRowContext(ctx, q.SQL, q.Args...).Scan(&cents); err != nil {
		return core.MonthTotal{}, classify("get month total", err)
	}
	return core.MonthTotal{Year: year, Month: month, TotalAmount: core.MoneyFromCents(cents)}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExpense(s scanner) (core.Expense, error) {
	var (
		e         core.Expense
		cents     int64
		category  string
		createdAt timestamp
		updatedAt timestamp
	)
	if err := s.Scan(&e.ID, &cents, &category, &e.Description, &e.Date, &createdAt, &updatedAt); err != nil {
		return core.Expense{}, err
	}
	e.Amount = core.MoneyFromCents(cents)
	e.Category = core.Category(category)
	e.CreatedAt = createdAt.Time
	e.UpdatedAt = updatedAt.Time
	return e, nil
}

// timestamp scans TIMESTAMPTZ values and the fixed-width text used by SQLite.
type timestamp struct {
	time.Time
}

func (t *timestamp) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		t.Time = v.UTC()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("scan timestamp: unsupported type %T", src)
	}
}

func (t *timestamp) parse(s string) error {
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("scan timestamp %q: %w", s, err)
	}
	t.Time = parsed.UTC()
	return nil
}
