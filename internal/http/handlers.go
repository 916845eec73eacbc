package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"expenses/internal/core"
	"expenses/internal/log"
)

// ExpenseManager is the expense use-case surface served over HTTP.
type ExpenseManager interface {
	Create(ctx context.Context, in core.ExpenseInput) (core.Expense, error)
	Get(ctx context.Context, id uuid.UUID) (core.Expense, error)
	Update(ctx context.Context, id uuid.UUID, in core.ExpenseInput) (core.Expense, error)
	Delete(ctx context.Context, id uuid.UUID) (core.Expense, error)
	List(ctx context.Context, f core.Filter) ([]core.Expense, error)
	ExportRange(ctx context.Context, start, end core.Date) ([]core.Expense, error)
}

// SummaryReporter builds the monthly report.
type SummaryReporter interface {
	Report(ctx context.Context, year, month int) (core.MonthlyReport, error)
}

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// CSVFormatter renders an export.
type CSVFormatter interface {
	Format(expenses []core.Expense) string
}

type healthBody struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Database  string `json:"database"`
	Timestamp string `json:"timestamp,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.health.Ping(ctx); err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Health check failed",
			log.FieldComponent, log.ComponentHTTP,
			log.FieldError, err)
		writeJSON(w, http.StatusServiceUnavailable, healthBody{
			Success:  false,
			Message:  "Service unavailable",
			Database: "Disconnected",
			Error:    err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, healthBody{
		Success:   true,
		Message:   "Server is healthy",
		Database:  "Connected",
		Timestamp: s.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	in, err := decodeExpenseInput(w, r, s.now())
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}

	e, err := s.expenses.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	writeData(w, http.StatusCreated, e, "Expense created successfully")
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}

	expenses, err := s.expenses.List(r.Context(), f)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	writeList(w, expenses)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	id, err := parseExpenseID(r)
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}

	e, err := s.expenses.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	writeData(w, http.StatusOK, e, "")
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	id, idErr := parseExpenseID(r)
	in, err := decodeExpenseInput(w, r, s.now())
	if err = combineValidation(idErr, err); err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}

	e, err := s.expenses.Update(r.Context(), id, in)
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	writeData(w, http.StatusOK, e, "Expense updated successfully")
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, err := parseExpenseID(r)
	if err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}

	e, err := s.expenses.Delete(r.Context(), id)
	if err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	writeData(w, http.StatusOK, e, "Expense deleted successfully")
}

func (s *Server) handleMonthlySummary(w http.ResponseWriter, r *http.Request) {
	year, month, err := parseMonthParams(r.URL.Query(), s.now().UTC())
	if err != nil {
		writeError(w, r, log.OpSummary, err)
		return
	}

	report, err := s.summaries.Report(r.Context(), year, month)
	if err != nil {
		writeError(w, r, log.OpSummary, err)
		return
	}
	writeData(w, http.StatusOK, report, "")
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseExportRange(r.URL.Query())
	if err != nil {
		writeError(w, r, log.OpExport, err)
		return
	}

	expenses, err := s.expenses.ExportRange(r.Context(), start, end)
	if err != nil {
		writeError(w, r, log.OpExport, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=expenses_%s_to_%s.csv", start, end))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(s.csv.Format(expenses)))
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeAPIError(w, apiError{
		Kind:       kindNotFound,
		Message:    fmt.Sprintf("Route %s not found", r.URL.RequestURI()),
		StatusCode: http.StatusNotFound,
	})
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldComponent, log.ComponentRateLimit,
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldPath, r.URL.Path)
	writeAPIError(w, apiError{
		Kind:       kindRateLimited,
		Message:    "Too many requests, please try again later.",
		StatusCode: http.StatusTooManyRequests,
	})
}
