package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"gastos/internal/export"
)

type fakeSheets struct {
	mu          sync.Mutex
	tabs        []string
	added       []string
	cleared     []string
	written     map[string][][]any
	metaHits    int
	inputOption string
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := r.URL.Path
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && path == "/v4/spreadsheets/sid":
		f.metaHits++
		var sheets []map[string]any
		for _, t := range f.tabs {
			sheets = append(sheets, map[string]any{"properties": map[string]any{"title": t}})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"sheets": sheets})
	case r.Method == http.MethodPost && path == "/v4/spreadsheets/sid:batchUpdate":
		var req gsheet.BatchUpdateSpreadsheetRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		for _, rq := range req.Requests {
			f.added = append(f.added, rq.AddSheet.Properties.Title)
			f.tabs = append(f.tabs, rq.AddSheet.Properties.Title)
		}
		_, _ = w.Write([]byte(`{}`))
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":clear"):
		rng := strings.TrimSuffix(strings.TrimPrefix(path, "/v4/spreadsheets/sid/values/"), ":clear")
		f.cleared = append(f.cleared, rng)
		_, _ = w.Write([]byte(`{}`))
	case r.Method == http.MethodPut:
		var vr gsheet.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&vr)
		rng := strings.TrimPrefix(path, "/v4/spreadsheets/sid/values/")
		f.written[rng] = vr.Values
		f.inputOption = r.URL.Query().Get("valueInputOption")
		_, _ = w.Write([]byte(`{}`))
	default:
		http.Error(w, "unexpected "+r.Method+" "+path, http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return New(svc, "sid", "")
}

func TestReplaceLedgerCreatesTabAndWrites(t *testing.T) {
	fake := &fakeSheets{written: map[string][][]any{}}
	c := newTestClient(t, fake)

	rows := []export.Row{
		{Date: "2024-03-10", Amount: "12.5", Category: "Alimentación", Note: "pan", CreatedAt: "2024-03-10T09:00:00Z", ID: "e1"},
	}
	require.NoError(t, c.ReplaceLedger(context.Background(), "u1", rows))

	assert.Equal(t, []string{"Gastos-u1"}, fake.added)
	assert.Equal(t, []string{"'Gastos-u1'!A:F"}, fake.cleared)
	assert.Equal(t, "RAW", fake.inputOption)

	got := fake.written["'Gastos-u1'!A1"]
	require.Len(t, got, 2)
	assert.Equal(t, "Fecha", got[0][0])
	assert.Equal(t, []any{"2024-03-10", "12.5", "Alimentación", "pan", "2024-03-10T09:00:00Z", "e1"}, got[1])

	// the tab is remembered and not looked up again
	require.NoError(t, c.ReplaceLedger(context.Background(), "u1", nil))
	assert.Equal(t, 1, fake.metaHits)
	assert.Len(t, fake.written["'Gastos-u1'!A1"], 1)
}

func TestReplaceLedgerExistingTab(t *testing.T) {
	fake := &fakeSheets{tabs: []string{"Gastos-u2"}, written: map[string][][]any{}}
	c := newTestClient(t, fake)

	require.NoError(t, c.ReplaceLedger(context.Background(), "u2", nil))
	assert.Empty(t, fake.added)
}

func TestReplaceLedgerServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"denied"}}`, http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)
	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	err = New(svc, "sid", "Ledger").ReplaceLedger(context.Background(), "u", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read spreadsheet sid")
}

func TestReplaceLedgerWithoutService(t *testing.T) {
	err := (&Client{}).ReplaceLedger(context.Background(), "u", nil)
	assert.EqualError(t, err, "sheets service not initialized")
}

func TestQuote(t *testing.T) {
	assert.Equal(t, "'Gastos-u1'!A:F", quote("Gastos-u1", "A:F"))
	assert.Equal(t, "'O''Brien'!A1", quote("O'Brien", "A1"))
}

func TestNewFromEnv(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "")
	_, err := NewFromEnv(context.Background())
	assert.EqualError(t, err, "missing GOOGLE_SPREADSHEET_ID")

	t.Setenv("GOOGLE_SPREADSHEET_ID", "sid")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	_, err = NewFromEnv(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing service account credentials")

	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "/non/existent/file.json")
	_, err = NewFromEnv(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read service account file")
}
