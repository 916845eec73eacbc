// Package export renders expense records as a CSV document.
//
// The output is byte-for-byte deterministic for a given input and location.
// encoding/csv is not used because its quoting rules differ (it also quotes
// fields with a leading space and always terminates the last record).
package export

import (
	"io"
	"strings"
	"time"

	"expenses/internal/core"
)

// Header is the fixed column order.
var Header = []string{"ID", "Amount", "Category", "Description", "Date", "Created At"}

const (
	dateLayout      = "1/2/2006"
	timestampLayout = "1/2/2006, 3:04:05 PM"
)

// Formatter renders timestamps in Location. A nil Location means UTC.
type Formatter struct {
	Location *time.Location
}

func NewFormatter(loc *time.Location) Formatter {
	return Formatter{Location: loc}
}

// Format returns the CSV document for expenses in the given order.
//
// The header line always ends with a line break. Data rows are separated by
// line breaks and the last row has none.
func (f Formatter) Format(expenses []core.Expense) string {
	var b strings.Builder
	b.WriteString(strings.Join(Header, ","))
	b.WriteByte('\n')
	for i, e := range expenses {
		if i > 0 {
			b.WriteByte('\n')
		}
		f.writeRow(&b, e)
	}
	return b.String()
}

// WriteTo writes Format(expenses) to w.
func (f Formatter) WriteTo(w io.Writer, expenses []core.Expense) (int64, error) {
	n, err := io.WriteString(w, f.Format(expenses))
	return int64(n), err
}

func (f Formatter) writeRow(b *strings.Builder, e core.Expense) {
	fields := [...]string{
		e.ID.String(),
		e.Amount.String(),
		string(e.Category),
		EscapeField(e.Description),
		EscapeField(f.date(e.Date)),
		EscapeField(f.timestamp(e.CreatedAt)),
	}
	for i, field := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(field)
	}
}

func (f Formatter) location() *time.Location {
	if f.Location == nil {
		return time.UTC
	}
	return f.Location
}

// date renders the calendar date as is. It carries no time of day, so it is
// not shifted into Location.
func (f Formatter) date(d core.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (f Formatter) timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(f.location()).Format(timestampLayout)
}

// EscapeField quotes s when it contains a comma, a double quote, or a line
// break (LF or CR), doubling any embedded quotes. Other fields are returned
// unchanged.
func EscapeField(s string) string {
	if !strings.ContainsAny(s, ",\"\n\r") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
