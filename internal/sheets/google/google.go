package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"expenses/internal/core"
	"expenses/internal/log"
	ports "expenses/internal/sheets"
)

const valueInput = "USER_ENTERED"

// Ensure interface conformance
var (
	_ ports.Mirror        = (*Client)(nil)
	_ ports.SummaryWriter = (*Client)(nil)
)

// Config names the spreadsheet, its two tabs and the service account.
type Config struct {
	SpreadsheetID   string
	ExpensesSheet   string
	SummarySheet    string
	CredentialsJSON string
	CredentialsFile string
}

// Client mirrors expenses into a Google spreadsheet. Each expense occupies
// one row of ExpensesSheet, found by its id in column A.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	expensesSheet string
	summarySheet  string

	mu       sync.Mutex
	sheetIDs map[string]int64
}

// New builds a client authenticated with the configured service account.
// Extra options replace the credential options, which tests use to point
// the client at a fake endpoint.
func New(ctx context.Context, cfg Config, opts ...goption.ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if cfg.ExpensesSheet == "" {
		cfg.ExpensesSheet = "Expenses"
	}
	if cfg.SummarySheet == "" {
		cfg.SummarySheet = "Summary"
	}

	if len(opts) == 0 {
		creds, err := credentials(ctx, cfg)
		if err != nil {
			return nil, err
		}
		opts = []goption.ClientOption{
			goption.WithCredentialsJSON(creds),
			goption.WithScopes(gsheet.SpreadsheetsScope),
		}
	}

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		expensesSheet: cfg.ExpensesSheet,
		summarySheet:  cfg.SummarySheet,
		sheetIDs:      make(map[string]int64),
	}, nil
}

// credentials reads the service account key: inline JSON first, then the
// file, then GOOGLE_APPLICATION_CREDENTIALS.
func credentials(ctx context.Context, cfg Config) ([]byte, error) {
	inline := strings.TrimSpace(cfg.CredentialsJSON)
	file := strings.TrimSpace(cfg.CredentialsFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		slog.DebugContext(ctx, "Using inline service account credentials",
			log.FieldComponent, log.ComponentSheets)
		return []byte(inline), nil
	case file != "":
		slog.DebugContext(ctx, "Reading service account credentials",
			log.FieldComponent, log.ComponentSheets,
			"path", file)
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// EnsureHeaders writes the header row of each tab that has none.
func (c *Client) EnsureHeaders(ctx context.Context) error {
	for _, h := range []struct {
		sheet  string
		header []any
	}{
		{c.expensesSheet, ports.ExpenseHeader},
		{c.summarySheet, ports.SummaryHeader},
	} {
		rng := fmt.Sprintf("%s!A1:%s1", h.sheet, column(len(h.header)))
		resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
		if err != nil {
			return wrap("read header "+rng, err)
		}
		if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
			continue
		}
		vr := &gsheet.ValueRange{Values: [][]any{h.header}}
		if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
			ValueInputOption(valueInput).Context(ctx).Do(); err != nil {
			return wrap("write header "+rng, err)
		}
	}
	return nil
}

func (c *Client) UpsertExpense(ctx context.Context, e core.Expense) (string, error) {
	row, err := c.findRow(ctx, e.ID)
	if err != nil {
		return "", err
	}

	values := ports.ExpenseRow(e)
	vr := &gsheet.ValueRange{Values: [][]any{values}}
	last := column(len(values))

	if row > 0 {
		rng := fmt.Sprintf("%s!A%d:%s%d", c.expensesSheet, row, last, row)
		resp, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
			ValueInputOption(valueInput).Context(ctx).Do()
		if err != nil {
			return "", wrap("update "+rng, err)
		}
		return resp.UpdatedRange, nil
	}

	rng := fmt.Sprintf("%s!A:%s", c.expensesSheet, last)
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption(valueInput).InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return "", wrap("append "+rng, err)
	}
	if resp.Updates == nil {
		return "", nil
	}
	return resp.Updates.UpdatedRange, nil
}

func (c *Client) RemoveExpense(ctx context.Context, id uuid.UUID) error {
	row, err := c.findRow(ctx, id)
	if err != nil || row == 0 {
		return err
	}

	sheetID, err := c.sheetID(ctx, c.expensesSheet)
	if err != nil {
		return err
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			DeleteDimension: &gsheet.DeleteDimensionRequest{
				Range: &gsheet.DimensionRange{
					SheetId:         sheetID,
					Dimension:       "ROWS",
					StartIndex:      int64(row - 1),
					EndIndex:        int64(row),
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
			},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return wrap(fmt.Sprintf("delete row %d of %s", row, c.expensesSheet), err)
	}
	return nil
}

func (c *Client) AppendSummary(ctx context.Context, r core.MonthlyReport) (string, error) {
	values := ports.SummaryRow(r)
	rng := fmt.Sprintf("%s!A:%s", c.summarySheet, column(len(values)))
	vr := &gsheet.ValueRange{Values: [][]any{values}}

	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption(valueInput).InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return "", wrap("append "+rng, err)
	}
	if resp.Updates == nil {
		return "", nil
	}
	return resp.Updates.UpdatedRange, nil
}

// findRow returns the 1-based row holding id in column A, or 0.
func (c *Client) findRow(ctx context.Context, id uuid.UUID) (int, error) {
	rng := fmt.Sprintf("%s!A:A", c.expensesSheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return 0, wrap("read "+rng, err)
	}

	key := id.String()
	for i, row := range resp.Values {
		if len(row) > 0 && strings.EqualFold(strings.TrimSpace(fmt.Sprint(row[0])), key) {
			return i + 1, nil
		}
	}
	return 0, nil
}

// sheetID resolves a tab title to its numeric id, caching the answer.
func (c *Client) sheetID(ctx context.Context, title string) (int64, error) {
	c.mu.Lock()
	id, ok := c.sheetIDs[title]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, wrap("read spreadsheet properties", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range ss.Sheets {
		if s.Properties != nil {
			c.sheetIDs[s.Properties.Title] = s.Properties.SheetId
		}
	}
	id, ok = c.sheetIDs[title]
	if !ok {
		return 0, fmt.Errorf("%w: sheet %q not found", ports.ErrRejected, title)
	}
	return id, nil
}

// wrap marks client errors that retrying cannot fix. Rate limiting and
// server errors stay retryable.
func wrap(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return fmt.Errorf("%s: %w: %w", op, ports.ErrRejected, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// column returns the letter of the n-th (1-based) column, up to Z.
func column(n int) string {
	return string(rune('A' + n - 1))
}
