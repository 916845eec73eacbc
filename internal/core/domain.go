package core

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	Food          Category = "Food"
	Transport     Category = "Transport"
	Shopping      Category = "Shopping"
	Bills         Category = "Bills"
	Entertainment Category = "Entertainment"
	Other         Category = "Other"
)

// MaxDescriptionLength is counted in characters, not bytes.
const MaxDescriptionLength = 500

const dateLayout = "2006-01-02"

type (
	// Category is the closed set of expense classifications.
	Category string

	// Date is a calendar date. The time component is always midnight UTC.
	Date struct {
		time.Time
	}

	Expense struct {
		ID          uuid.UUID `json:"id"`
		Amount      Money     `json:"amount"`
		Category    Category  `json:"category"`
		Description string    `json:"description"`
		Date        Date      `json:"date"`
		CreatedAt   time.Time `json:"created_at"`
		UpdatedAt   time.Time `json:"updated_at"`
	}

	// ExpenseInput carries every caller-supplied field. Updates replace all of them.
	ExpenseInput struct {
		Amount      Money    `json:"amount"`
		Category    Category `json:"category"`
		Description string   `json:"description"`
		Date        Date     `json:"date"`
	}

	// Filter narrows a listing. Zero-valued fields impose no constraint.
	Filter struct {
		Category  Category
		StartDate Date
		EndDate   Date
	}
)

var categories = []Category{Food, Transport, Shopping, Bills, Entertainment, Other}

// Categories returns the valid categories in display order.
func Categories() []Category {
	return append([]Category(nil), categories...)
}

func (c Category) Valid() bool {
	for _, v := range categories {
		if c == v {
			return true
		}
	}
	return false
}

func (c Category) String() string {
	return string(c)
}

// ParseCategory matches s exactly against the known categories.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.TrimSpace(s))
	if !c.Valid() {
		return "", ErrInvalidCategory
	}
	return c, nil
}

// CategoryNames returns the categories as plain strings, e.g. for error messages.
func CategoryNames() []string {
	out := make([]string, len(categories))
	for i, c := range categories {
		out[i] = string(c)
	}
	return out
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: expected string", ErrInvalidDate)
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseISODate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseISODate accepts YYYY-MM-DD or a full ISO 8601 timestamp, keeping
// only the date part of the latter.
func ParseISODate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(dateLayout) && s[len(dateLayout)] == 'T' {
		if _, err := time.Parse(time.RFC3339Nano, s); err != nil {
			if _, err := time.Parse("2006-01-02T15:04:05", s); err != nil {
				return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
			}
		}
		s = s[:len(dateLayout)]
	}
	return ParseDate(s)
}

// Value stores the date as YYYY-MM-DD, which sorts correctly as text in SQLite
// and casts implicitly to DATE in PostgreSQL.
func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.String(), nil
}

func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*d = DateOf(v)
		return nil
	case string:
		return d.scanString(v)
	case []byte:
		return d.scanString(string(v))
	case nil:
		*d = Date{}
		return nil
	default:
		return fmt.Errorf("scan date: unsupported type %T", src)
	}
}

func (d *Date) scanString(s string) error {
	if len(s) > len(dateLayout) {
		s = s[:len(dateLayout)]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Validate checks every field and reports all problems at once.
func (in ExpenseInput) Validate(now time.Time) error {
	var errs ValidationErrors

	if err := in.Amount.Validate(); err != nil {
		errs = append(errs, ValidationError{Field: "amount", Message: "Amount must be a positive number"})
	}
	if in.Category == "" {
		errs = append(errs, ValidationError{Field: "category", Message: "Category is required"})
	} else if !in.Category.Valid() {
		errs = append(errs, ValidationError{
			Field:   "category",
			Message: "Category must be one of: " + strings.Join(CategoryNames(), ", "),
		})
	}
	if utf8.RuneCountInString(in.Description) > MaxDescriptionLength {
		errs = append(errs, ValidationError{
			Field:   "description",
			Message: fmt.Sprintf("Description must not exceed %d characters", MaxDescriptionLength),
		})
	}
	if in.Date.IsZero() {
		errs = append(errs, ValidationError{Field: "date", Message: "Date is required"})
	} else if in.Date.After(DateOf(now).AddDate(1, 0, 0)) {
		errs = append(errs, ValidationError{Field: "date", Message: "Date cannot be more than 1 year in the future"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Normalize trims the description.
func (in ExpenseInput) Normalize() ExpenseInput {
	in.Description = strings.TrimSpace(in.Description)
	return in
}

// Matches reports whether e satisfies every present filter.
func (f Filter) Matches(e Expense) bool {
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	if !f.StartDate.IsZero() && e.Date.Before(f.StartDate.Time) {
		return false
	}
	if !f.EndDate.IsZero() && e.Date.After(f.EndDate.Time) {
		return false
	}
	return true
}

// Validate rejects unknown categories and inverted ranges.
func (f Filter) Validate() error {
	var errs ValidationErrors
	if f.Category != "" && !f.Category.Valid() {
		errs = append(errs, ValidationError{
			Field:   "category",
			Message: "Category must be one of: " + strings.Join(CategoryNames(), ", "),
		})
	}
	if !f.StartDate.IsZero() && !f.EndDate.IsZero() && f.EndDate.Before(f.StartDate.Time) {
		errs = append(errs, ValidationError{Field: "endDate", Message: "End date must be after start date"})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}
