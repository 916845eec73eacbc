package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"expenses/internal/core"
	"expenses/internal/log"
	"expenses/internal/sheets"
)

// DefaultDigestSchedule fires at 06:00 on the first day of every month.
const DefaultDigestSchedule = "0 6 1 * *"

const digestTimeout = 2 * time.Minute

// ReportSource produces the month-over-month report of a month.
type ReportSource interface {
	Report(ctx context.Context, year, month int) (core.MonthlyReport, error)
}

// Digest appends the report of the month just finished to the summary sheet.
type Digest struct {
	reports ReportSource
	writer  sheets.SummaryWriter
	loc     *time.Location
	now     func() time.Time
}

// NewDigest builds a digest job. Months are reckoned in loc (UTC when nil).
func NewDigest(reports ReportSource, writer sheets.SummaryWriter, loc *time.Location) *Digest {
	if loc == nil {
		loc = time.UTC
	}
	return &Digest{reports: reports, writer: writer, loc: loc, now: time.Now}
}

// Run writes the report for the calendar month before the current one.
func (d *Digest) Run(ctx context.Context) (core.MonthlyReport, error) {
	now := d.now().In(d.loc)
	year, month := core.PreviousMonth(now.Year(), int(now.Month()))

	report, err := d.reports.Report(ctx, year, month)
	if err != nil {
		return core.MonthlyReport{}, fmt.Errorf("digest %d-%02d: %w", year, month, err)
	}

	ref, err := d.writer.AppendSummary(ctx, report)
	if err != nil {
		return core.MonthlyReport{}, fmt.Errorf("write digest %d-%02d: %w", year, month, err)
	}

	slog.InfoContext(ctx, "Monthly digest written",
		log.FieldComponent, log.ComponentWorker,
		log.FieldOperation, log.OpDigest,
		log.FieldYear, year,
		log.FieldMonth, month,
		log.FieldCount, report.Current.TotalCount,
		log.FieldSheetRow, ref)
	return report, nil
}

// Schedule registers Run on a cron in the digest location. The caller owns
// Start and Stop. An empty spec means DefaultDigestSchedule.
func (d *Digest) Schedule(ctx context.Context, spec string) (*cron.Cron, error) {
	if spec == "" {
		spec = DefaultDigestSchedule
	}

	c := cron.New(cron.WithLocation(d.loc))
	if _, err := c.AddFunc(spec, func() {
		runCtx, cancel := context.WithTimeout(ctx, digestTimeout)
		defer cancel()
		if _, err := d.Run(runCtx); err != nil {
			slog.ErrorContext(runCtx, "Monthly digest failed",
				log.FieldComponent, log.ComponentWorker,
				log.FieldOperation, log.OpDigest,
				log.FieldError, err)
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule digest %q: %w", spec, err)
	}
	return c, nil
}
