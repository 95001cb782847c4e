// Package google mirrors cycle reports into a Google spreadsheet, one tab per
// billing cycle.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"kharch/internal/cycle"
	"kharch/internal/finance"
	ports "kharch/internal/sheets"
)

var _ ports.ReportWriter = (*Client)(nil)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	location      *time.Location
}

// New creates a Sheets client authenticated with a service account key.
func New(ctx context.Context, spreadsheetID string, credentialsJSON []byte, loc *time.Location) (*Client, error) {
	if len(credentialsJSON) == 0 {
		return nil, errors.New("missing service account credentials")
	}
	slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsScope)

	return newWithOptions(ctx, spreadsheetID, loc,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
}

func newWithOptions(ctx context.Context, spreadsheetID string, loc *time.Location, opts ...goption.ClientOption) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if loc == nil {
		loc = time.Local
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, location: loc}, nil
}

// WriteCycleReport overwrites the tab of cycle c with summary s, creating the
// tab on first use.
func (c *Client) WriteCycleReport(ctx context.Context, cyc cycle.Cycle, s finance.Summary) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	title := sheetTitle(cyc)
	if err := c.ensureSheet(ctx, title); err != nil {
		return err
	}

	rng := quoteSheet(title) + "!A:Z"
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", rng, err)
	}

	vr := &gsheet.ValueRange{Values: reportValues(cyc, s, c.location)}
	start := quoteSheet(title) + "!A1"
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, start, vr).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("write %s: %w", start, err)
	}

	slog.InfoContext(ctx, "Cycle report written to spreadsheet",
		"sheet", title,
		"rows", len(vr.Values))
	return nil
}

func (c *Client) ensureSheet(ctx context.Context, title string) error {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == title {
			return nil
		}
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %q: %w", title, err)
	}
	slog.InfoContext(ctx, "Created spreadsheet tab", "sheet", title)
	return nil
}

// sheetTitle names the tab after the cycle, e.g. "Jan11-Feb10-2025".
func sheetTitle(c cycle.Cycle) string {
	return c.ShortLabel()
}

func quoteSheet(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

// reportValues lays out the tab: the totals block, the description-wise
// breakdown and every expense of the cycle.
func reportValues(c cycle.Cycle, s finance.Summary, loc *time.Location) [][]any {
	rows := [][]any{
		{"Home Expense Report"},
		{"Cycle", c.Label()},
		{},
		{"Previous Balance", s.PreviousBalance},
		{"Total Fund", s.Fund},
		{"Total Spent", s.Spent},
		{"Balance", s.Balance},
		{},
		{"Description", "Entries", "Amount"},
	}
	for _, e := range s.ByDescription {
		rows = append(rows, []any{e.Key, e.Count, e.Amount})
	}
	rows = append(rows, []any{}, []any{"Date", "Description", "Category", "Amount"})
	for _, e := range s.Expenses {
		rows = append(rows, []any{
			e.Date.In(loc).Format("02-01-2006"),
			e.Description,
			e.Category,
			int64(e.Amount),
		})
	}
	return rows
}
