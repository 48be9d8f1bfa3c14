// Package google mirrors tips into a Google Sheets spreadsheet. Each
// tip is one row: business date, time logged, amount, comment, ID.
// Rows live on a year-prefixed sheet so a spreadsheet can hold
// multiple years side by side.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"tipped/internal/core"
	"tipped/internal/ledger"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Tip rows span columns A:E (date, time, amount, comment, id).
const (
	firstColumn = "A"
	lastColumn  = "E"
	idColumn    = "E"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
}

// Ensure interface conformance
var (
	_ ledger.TipAppender = (*Client)(nil)
	_ ledger.TipRemover  = (*Client)(nil)
)

// NewFromEnv creates a Sheets client using environment variables.
// Required: GOOGLE_SPREADSHEET_ID.
// Credentials: GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE,
// or GOOGLE_APPLICATION_CREDENTIALS.
// Optional: GOOGLE_SHEET_NAME (default "Tips"), year-prefixed per tip.
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	sheetBase := strings.TrimSpace(os.Getenv("GOOGLE_SHEET_NAME"))
	if sheetBase == "" {
		sheetBase = "Tips"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     sheetBase,
	}, nil
}

// newSheetsService initializes a Sheets Service using Service Account
// credentials from the environment.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))

	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error

	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created")
	return service, nil
}

// Append writes the tip as a new row on its year's sheet and returns
// the row reference.
func (c *Client) Append(ctx context.Context, tip core.Tip) (string, error) {
	if err := tip.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	sheetName := c.sheetName(tip.BusinessDate.Year())

	// Find the next empty row from the current sheet height
	rng := fmt.Sprintf("%s!%s:%s", sheetName, firstColumn, firstColumn)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("get sheet dimensions for %s: %w", sheetName, err)
	}
	nextRow := len(resp.Values) + 1

	dataRange := fmt.Sprintf("%s!%s%d:%s%d", sheetName, firstColumn, nextRow, lastColumn, nextRow)
	vr := &gsheet.ValueRange{Values: [][]any{tipRow(tip)}}

	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, dataRange, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append tip row to sheet %s: %w", sheetName, err)
	}

	return dataRange, nil
}

// Remove deletes the ledger row carrying the tip ID. Looks on the
// current year's sheet first, then the previous year, since deletes
// can trail the tip across a year boundary. A tip that is on neither
// sheet is treated as already removed.
func (c *Client) Remove(ctx context.Context, id uuid.UUID) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	currentYear := time.Now().Year()
	for _, year := range []int{currentYear, currentYear - 1} {
		sheetName := c.sheetName(year)

		found, rowIndex, err := c.findRowByID(ctx, sheetName, id)
		if err != nil {
			return err
		}
		if !found {
			continue
		}

		if err := c.deleteRow(ctx, sheetName, rowIndex); err != nil {
			return err
		}
		slog.InfoContext(ctx, "Removed tip row from ledger",
			"tip_id", id, "sheet", sheetName, "row", rowIndex+1)
		return nil
	}

	slog.WarnContext(ctx, "Tip not found in ledger, treating as removed", "tip_id", id)
	return nil
}

// findRowByID scans the ID column and returns the zero-based row index.
func (c *Client) findRowByID(ctx context.Context, sheetName string, id uuid.UUID) (bool, int64, error) {
	rng := fmt.Sprintf("%s!%s:%s", sheetName, idColumn, idColumn)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		// A missing sheet for this year just means no rows to remove
		if strings.Contains(err.Error(), "Unable to parse range") {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("read ID column of %s: %w", sheetName, err)
	}

	idx := indexOfID(resp.Values, id.String())
	if idx < 0 {
		return false, 0, nil
	}
	return true, int64(idx), nil
}

func (c *Client) deleteRow(ctx context.Context, sheetName string, rowIndex int64) error {
	sheetID, err := c.sheetID(ctx, sheetName)
	if err != nil {
		return err
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			DeleteDimension: &gsheet.DeleteDimensionRequest{
				Range: &gsheet.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: rowIndex,
					EndIndex:   rowIndex + 1,
				},
			},
		}},
	}

	_, err = c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("delete row %d from sheet %s: %w", rowIndex+1, sheetName, err)
	}
	return nil
}

// sheetID resolves the numeric sheet ID for a sheet title.
func (c *Client) sheetID(ctx context.Context, sheetName string) (int64, error) {
	spreadsheet, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("get spreadsheet metadata: %w", err)
	}

	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == sheetName {
			return sheet.Properties.SheetId, nil
		}
	}
	return 0, fmt.Errorf("sheet %q not found in spreadsheet", sheetName)
}

func (c *Client) sheetName(year int) string {
	return yearPrefixedName(c.sheetBase, year)
}

// tipRow builds the A:E row values for a tip.
func tipRow(tip core.Tip) []any {
	return []any{
		tip.BusinessDate.String(),
		tip.CreatedAt.UTC().Format("15:04:05"),
		tip.Amount.Decimal(),
		tip.Comment,
		tip.ID.String(),
	}
}

// indexOfID finds a row whose first cell equals id, or -1.
func indexOfID(rows [][]any, id string) int {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(fmt.Sprint(row[0])), id) {
			return i
		}
	}
	return -1
}

// yearPrefixedName returns "<year> <base>" unless base already starts
// with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
