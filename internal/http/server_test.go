package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expenses/internal/core"
	"expenses/internal/export"
	"expenses/internal/log"
	"expenses/internal/services"
	"expenses/internal/storage/memory"
)

var fixedNow = time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

// tickingClock advances one second on every call.
func tickingClock(start time.Time) func() time.Time {
	current := start
	return func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}

type testEnv struct {
	server *Server
	store  *memory.Store
}

func newTestEnv(t *testing.T, rateLimit int) testEnv {
	t.Helper()
	store := memory.NewWithClock(tickingClock(fixedNow))
	srv, err := NewServer(":0", Deps{
		Expenses:           services.NewExpenseService(store, nil),
		Summaries:          services.NewSummaryService(store),
		Health:             store,
		CSV:                export.NewFormatter(time.UTC),
		Logger:             log.New(log.Config{Output: io.Discard}),
		RateLimitPerMinute: rateLimit,
		Now:                func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	t.Cleanup(srv.limiter.Stop)
	return testEnv{server: srv, store: store}
}

func (e testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.server.Handler.ServeHTTP(rec, req)
	return rec
}

type response struct {
	Success bool                   `json:"success"`
	Count   *int                   `json:"count"`
	Data    json.RawMessage        `json:"data"`
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Errors  []core.ValidationError `json:"errors"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) response {
	t.Helper()
	var out response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type expenseJSON struct {
	ID          string    `json:"id"`
	Amount      float64   `json:"amount"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Date        string    `json:"date"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (e testEnv) create(t *testing.T, body map[string]any) expenseJSON {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/expenses", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var got expenseJSON
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &got))
	return got
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, 100)

	rec := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Server is healthy", body["message"])
	assert.Equal(t, "Connected", body["database"])
	assert.Equal(t, "2024-06-15T10:00:00.000Z", body["timestamp"])

	env.store.Fail(errors.New("connection refused"))
	rec = env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Service unavailable", body["message"])
	assert.Equal(t, "Disconnected", body["database"])
	assert.Equal(t, "connection refused", body["error"])
}

func TestCreateExpense(t *testing.T) {
	env := newTestEnv(t, 100)

	rec := env.do(t, http.MethodPost, "/api/expenses", map[string]any{
		"amount": 12.5, "category": "Food", "description": "  lunch  ", "date": "2024-06-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.True(t, body.Success)
	assert.Equal(t, "Expense created successfully", body.Message)

	var got expenseJSON
	require.NoError(t, json.Unmarshal(body.Data, &got))
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, 12.5, got.Amount)
	assert.Equal(t, "Food", got.Category)
	assert.Equal(t, "lunch", got.Description)
	assert.Equal(t, "2024-06-01", got.Date)
	assert.Equal(t, got.CreatedAt, got.UpdatedAt)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	// Amount as a numeric string and description omitted.
	other := env.create(t, map[string]any{"amount": "3.10", "category": "Bills", "date": "2024-06-02"})
	assert.Equal(t, 3.1, other.Amount)
	assert.Equal(t, "", other.Description)
}

func TestCreateExpenseValidation(t *testing.T) {
	env := newTestEnv(t, 100)

	tests := []struct {
		name string
		body any
		want []core.ValidationError
	}{
		{
			name: "empty object",
			body: map[string]any{},
			want: []core.ValidationError{
				{Field: "amount", Message: "Amount is required"},
				{Field: "category", Message: "Category is required"},
				{Field: "date", Message: "Date is required"},
			},
		},
		{
			name: "bad values",
			body: map[string]any{"amount": -5, "category": "Groceries", "description": 42, "date": "2024-13-01"},
			want: []core.ValidationError{
				{Field: "amount", Message: "Amount must be a positive number"},
				{Field: "category", Message: "Category must be one of: Food, Transport, Shopping, Bills, Entertainment, Other"},
				{Field: "description", Message: "Description must be a string"},
				{Field: "date", Message: "Date must be a valid ISO 8601 date (YYYY-MM-DD)"},
			},
		},
		{
			name: "zero amount and long description",
			body: map[string]any{"amount": 0, "category": "Food", "description": strings.Repeat("x", 501), "date": "2024-06-01"},
			want: []core.ValidationError{
				{Field: "amount", Message: "Amount must be a positive number"},
				{Field: "description", Message: "Description must not exceed 500 characters"},
			},
		},
		{
			name: "far future date",
			body: map[string]any{"amount": 1, "category": "Food", "date": "2099-01-01"},
			want: []core.ValidationError{
				{Field: "date", Message: "Date cannot be more than 1 year in the future"},
			},
		},
		{
			name: "non numeric amount",
			body: map[string]any{"amount": "abc", "category": "Food", "date": "2024-06-01"},
			want: []core.ValidationError{
				{Field: "amount", Message: "Amount must be a positive number"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/expenses", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			body := decode(t, rec)
			assert.False(t, body.Success)
			assert.Equal(t, tt.want, body.Errors)
		})
	}

	rec := env.do(t, http.MethodPost, "/api/expenses", "{not json")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid JSON payload", decode(t, rec).Error)

	list := decode(t, env.do(t, http.MethodGet, "/api/expenses", nil))
	assert.Equal(t, 0, *list.Count, "rejected input must not be stored")
}

func TestCreateExpenseAmountBounds(t *testing.T) {
	env := newTestEnv(t, 100)
	body := func(amount string) string {
		return `{"amount":` + amount + `,"category":"Bills","date":"2024-06-01"}`
	}

	tests := []struct {
		name   string
		amount string
		status int
	}{
		{"largest amount", `99999999.99`, http.StatusCreated},
		{"largest amount as string", `"99999999.99"`, http.StatusCreated},
		{"one cent over", `100000000.00`, http.StatusBadRequest},
		{"rounds over the ceiling", `99999999.995`, http.StatusBadRequest},
		{"beyond int64 cents", `200000000000000000`, http.StatusBadRequest},
		{"exponent form", `1e5000000`, http.StatusBadRequest},
		{"exponent string", `"1e5000000"`, http.StatusBadRequest},
		{"negative exponent", `1e-5000000`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/expenses", body(tt.amount))
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.status != http.StatusBadRequest {
				return
			}
			assert.Equal(t, []core.ValidationError{
				{Field: "amount", Message: "Amount must be a positive number"},
			}, decode(t, rec).Errors)
		})
	}

	list := decode(t, env.do(t, http.MethodGet, "/api/expenses", nil))
	assert.Equal(t, 2, *list.Count, "only the in-range amounts are stored")
	var stored []expenseJSON
	require.NoError(t, json.Unmarshal(list.Data, &stored))
	for _, e := range stored {
		assert.Equal(t, 99999999.99, e.Amount)
	}
}

func TestGetExpense(t *testing.T) {
	env := newTestEnv(t, 100)
	created := env.create(t, map[string]any{"amount": 9.99, "category": "Shopping", "date": "2024-06-03"})

	rec := env.do(t, http.MethodGet, "/api/expenses/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got expenseJSON
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &got))
	assert.Equal(t, created, got)

	rec = env.do(t, http.MethodGet, "/api/expenses/00000000-0000-4000-8000-000000000000", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, response{Success: false, Error: "Expense not found"}, decode(t, rec))

	rec = env.do(t, http.MethodGet, "/api/expenses/not-a-uuid", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []core.ValidationError{{Field: "id", Message: "Invalid expense ID format"}}, decode(t, rec).Errors)
}

func TestUpdateExpense(t *testing.T) {
	env := newTestEnv(t, 100)
	created := env.create(t, map[string]any{"amount": 10, "category": "Food", "description": "before", "date": "2024-06-01"})

	rec := env.do(t, http.MethodPut, "/api/expenses/"+created.ID, map[string]any{
		"amount": 20.25, "category": "Transport", "date": "2024-05-31",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "Expense updated successfully", body.Message)

	var updated expenseJSON
	require.NoError(t, json.Unmarshal(body.Data, &updated))
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))
	assert.Equal(t, 20.25, updated.Amount)
	assert.Equal(t, "Transport", updated.Category)
	assert.Equal(t, "", updated.Description, "omitted description replaces the old one")
	assert.Equal(t, "2024-05-31", updated.Date)

	rec = env.do(t, http.MethodPut, "/api/expenses/00000000-0000-4000-8000-000000000000", map[string]any{
		"amount": 1, "category": "Food", "date": "2024-06-01",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/expenses/nope", map[string]any{"category": "Food", "date": "2024-06-01"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []core.ValidationError{
		{Field: "id", Message: "Invalid expense ID format"},
		{Field: "amount", Message: "Amount is required"},
	}, decode(t, rec).Errors)
}

func TestDeleteExpense(t *testing.T) {
	env := newTestEnv(t, 100)
	created := env.create(t, map[string]any{"amount": 4, "category": "Other", "date": "2024-06-01"})

	rec := env.do(t, http.MethodDelete, "/api/expenses/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Expense deleted successfully", body.Message)
	var deleted expenseJSON
	require.NoError(t, json.Unmarshal(body.Data, &deleted))
	assert.Equal(t, created, deleted)

	rec = env.do(t, http.MethodDelete, "/api/expenses/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListExpenses(t *testing.T) {
	env := newTestEnv(t, 100)
	a := env.create(t, map[string]any{"amount": 1, "category": "Food", "date": "2024-05-10"})
	b := env.create(t, map[string]any{"amount": 2, "category": "Bills", "date": "2024-05-20"})
	c := env.create(t, map[string]any{"amount": 3, "category": "Food", "date": "2024-05-10"})

	ids := func(rec *httptest.ResponseRecorder) []string {
		t.Helper()
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decode(t, rec)
		var es []expenseJSON
		require.NoError(t, json.Unmarshal(body.Data, &es))
		require.Equal(t, len(es), *body.Count)
		out := make([]string, len(es))
		for i, e := range es {
			out[i] = e.ID
		}
		return out
	}

	assert.Equal(t, []string{b.ID, c.ID, a.ID}, ids(env.do(t, http.MethodGet, "/api/expenses", nil)))
	assert.Equal(t, []string{c.ID, a.ID}, ids(env.do(t, http.MethodGet, "/api/expenses?category=Food", nil)))
	assert.Equal(t, []string{b.ID}, ids(env.do(t, http.MethodGet, "/api/expenses?startDate=2024-05-11&endDate=2024-05-31", nil)))
	assert.Equal(t, []string{}, ids(env.do(t, http.MethodGet, "/api/expenses?category=Transport", nil)))

	rec := env.do(t, http.MethodGet, "/api/expenses?startDate=2024-05-20&endDate=2024-05-01", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []core.ValidationError{{Field: "endDate", Message: "End date must be after start date"}}, decode(t, rec).Errors)

	rec = env.do(t, http.MethodGet, "/api/expenses?category=Rent&startDate=soon", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []core.ValidationError{
		{Field: "category", Message: "Category must be one of: Food, Transport, Shopping, Bills, Entertainment, Other"},
		{Field: "startDate", Message: "Start date must be a valid ISO 8601 date"},
	}, decode(t, rec).Errors)
}

func TestMonthlySummary(t *testing.T) {
	env := newTestEnv(t, 100)
	env.create(t, map[string]any{"amount": 30, "category": "Food", "date": "2024-01-05"})
	env.create(t, map[string]any{"amount": 70, "category": "Bills", "date": "2024-01-20"})
	env.create(t, map[string]any{"amount": 50, "category": "Food", "date": "2023-12-31"})

	rec := env.do(t, http.MethodGet, "/api/expenses/summary/monthly?year=2024&month=1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report struct {
		Current struct {
			Year              int     `json:"year"`
			Month             int     `json:"month"`
			TotalAmount       float64 `json:"totalAmount"`
			TotalCount        int     `json:"totalCount"`
			CategoryBreakdown []struct {
				Category string  `json:"category"`
				Total    float64 `json:"total"`
				Count    int     `json:"count"`
			} `json:"categoryBreakdown"`
		} `json:"current"`
		Previous struct {
			Year        int     `json:"year"`
			Month       int     `json:"month"`
			TotalAmount float64 `json:"totalAmount"`
		} `json:"previous"`
		Comparison struct {
			PercentageChange float64 `json:"percentageChange"`
			Difference       float64 `json:"difference"`
		} `json:"comparison"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &report))

	assert.Equal(t, 100.0, report.Current.TotalAmount)
	assert.Equal(t, 2, report.Current.TotalCount)
	require.Len(t, report.Current.CategoryBreakdown, 2)
	assert.Equal(t, "Bills", report.Current.CategoryBreakdown[0].Category)
	assert.Equal(t, 2023, report.Previous.Year)
	assert.Equal(t, 12, report.Previous.Month)
	assert.Equal(t, 50.0, report.Previous.TotalAmount)
	assert.Equal(t, 100.0, report.Comparison.PercentageChange)
	assert.Equal(t, 50.0, report.Comparison.Difference)

	// Defaults to the current month.
	rec = env.do(t, http.MethodGet, "/api/expenses/summary/monthly", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &report))
	assert.Equal(t, 2024, report.Current.Year)
	assert.Equal(t, 6, report.Current.Month)
	assert.Equal(t, 0.0, report.Comparison.PercentageChange)

	rec = env.do(t, http.MethodGet, "/api/expenses/summary/monthly?year=1999&month=13", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []core.ValidationError{
		{Field: "year", Message: "Year must be between 2000 and 2100"},
		{Field: "month", Message: "Month must be between 1 and 12"},
	}, decode(t, rec).Errors)
}

func TestExportCSV(t *testing.T) {
	env := newTestEnv(t, 100)
	env.create(t, map[string]any{"amount": 5, "category": "Food", "description": "tea, biscuits", "date": "2024-03-02"})
	env.create(t, map[string]any{"amount": 8, "category": "Other", "date": "2024-04-02"})

	rec := env.do(t, http.MethodGet, "/api/expenses/export/csv?startDate=2024-03-01&endDate=2024-03-31", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=expenses_2024-03-01_to_2024-03-31.csv", rec.Header().Get("Content-Disposition"))

	lines := strings.Split(rec.Body.String(), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "ID,Amount,Category,Description,Date,Created At", lines[0])
	assert.Contains(t, lines[1], `,5.00,Food,"tea, biscuits",3/2/2024,"6/15/2024, 10:00:01 AM"`)

	rec = env.do(t, http.MethodGet, "/api/expenses/export/csv?startDate=2024-03-01", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []core.ValidationError{{Field: "endDate", Message: "End date is required"}}, decode(t, rec).Errors)

	rec = env.do(t, http.MethodGet, "/api/expenses/export/csv?startDate=2024-03-31&endDate=2024-03-01", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "End date must be after start date", decode(t, rec).Errors[0].Message)
}

func TestStoreFailuresMapToStatus(t *testing.T) {
	env := newTestEnv(t, 100)

	env.store.Fail(&core.StoreError{Code: core.CodeUnavailable, Op: "list", Err: errors.New("dial tcp: refused")})
	rec := env.do(t, http.MethodGet, "/api/expenses", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Database connection failed", decode(t, rec).Error)

	env.store.Fail(&core.StoreError{Code: core.CodeUniqueViolation, Op: "create", Err: errors.New("dup")})
	rec = env.do(t, http.MethodPost, "/api/expenses", map[string]any{"amount": 1, "category": "Food", "date": "2024-06-01"})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Duplicate entry detected", decode(t, rec).Error)

	env.store.Fail(errors.New("boom"))
	rec = env.do(t, http.MethodGet, "/api/expenses/summary/monthly", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", decode(t, rec).Error)
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t, 100)

	rec := env.do(t, http.MethodGet, "/api/unknown?x=1", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, response{Success: false, Error: "Route /api/unknown?x=1 not found"}, decode(t, rec))

	rec = env.do(t, http.MethodPatch, "/api/expenses", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimitAppliesToMutationsOnly(t *testing.T) {
	env := newTestEnv(t, 2)
	body := map[string]any{"amount": 1, "category": "Food", "date": "2024-06-01"}

	assert.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/expenses", body).Code)
	assert.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/expenses", body).Code)

	rec := env.do(t, http.MethodPost, "/api/expenses", body)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Too many requests, please try again later.", decode(t, rec).Error)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/expenses", nil).Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, 100)

	req := httptest.NewRequest(http.MethodOptions, "/api/expenses", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	env.server.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
