// Package sheets exports ledgers to a Google Sheets spreadsheet, one tab per
// user.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"gastos/internal/export"
)

// DefaultSheetName prefixes every per-user tab when GOOGLE_SHEET_NAME is unset.
const DefaultSheetName = "Gastos"

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string

	mu   sync.Mutex
	tabs map[string]bool // tabs known to exist
}

var _ export.Exporter = (*Client)(nil)

// NewFromEnv creates a Sheets client using environment variables and a
// service account.
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	sheetName := strings.TrimSpace(os.Getenv("GOOGLE_SHEET_NAME"))

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, err
	}
	return New(svc, spreadsheetID, sheetName), nil
}

// New wraps an existing service.
func New(svc *gsheet.Service, spreadsheetID, sheetName string) *Client {
	if sheetName == "" {
		sheetName = DefaultSheetName
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		tabs:          map[string]bool{},
	}
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Uses GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsScope)

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// TabTitle names the tab holding the ledger of uid.
func (c *Client) TabTitle(uid string) string {
	return c.sheetName + "-" + uid
}

// quote builds an A1 range on a tab whose title may contain spaces or quotes.
func quote(title, cells string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'!" + cells
}

// ReplaceLedger clears the user's tab and writes the header plus one row per
// expense.
func (c *Client) ReplaceLedger(ctx context.Context, uid string, rows []export.Row) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	title := c.TabTitle(uid)
	if err := c.ensureTab(ctx, title); err != nil {
		return err
	}

	_, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, quote(title, "A:F"), &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to clear sheet %s: %w", title, err)
	}

	values := make([][]any, 0, len(rows)+1)
	header := make([]any, len(export.Header))
	for i, h := range export.Header {
		header[i] = h
	}
	values = append(values, header)
	for _, r := range rows {
		values = append(values, r.Values())
	}

	vr := &gsheet.ValueRange{Values: values}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, quote(title, "A1"), vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to write sheet %s: %w", title, err)
	}
	return nil
}

// ensureTab creates the tab when the spreadsheet does not have it yet.
func (c *Client) ensureTab(ctx context.Context, title string) error {
	c.mu.Lock()
	known := c.tabs[title]
	c.mu.Unlock()
	if known {
		return nil
	}

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to read spreadsheet %s: %w", c.spreadsheetID, err)
	}
	exists := false
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == title {
			exists = true
			break
		}
	}

	if !exists {
		req := &gsheet.BatchUpdateSpreadsheetRequest{
			Requests: []*gsheet.Request{{
				AddSheet: &gsheet.AddSheetRequest{
					Properties: &gsheet.SheetProperties{Title: title},
				},
			}},
		}
		if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
			return fmt.Errorf("failed to add sheet %s: %w", title, err)
		}
	}

	c.mu.Lock()
	c.tabs[title] = true
	c.mu.Unlock()
	return nil
}
