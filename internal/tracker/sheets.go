package tracker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/linkedin-pipeline/internal/config"
	"github.com/linkedin-pipeline/internal/models"
	"github.com/linkedin-pipeline/pkg/logger"
)

// SheetColumns defines the column headers for the Drafts sheet
var SheetColumns = []string{
	"ID",
	"Title",
	"Status",
	"Run ID",
	"Topics",
	"Created At",
	"Share URN",
	"Updated At",
}

const (
	lastColumn   = "H"
	maxTopics    = 3
	defaultSheet = "Drafts"
)

// SheetsTracker mirrors generated drafts into a Google Sheet
type SheetsTracker struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	initialized   bool
	now           func() time.Time
	log           *logger.Logger
}

// NewSheetsTracker creates a tracker. It returns nil when the tracker is
// disabled.
func NewSheetsTracker(ctx context.Context, cfg config.TrackerConfig, log *logger.Logger, opts ...option.ClientOption) (*SheetsTracker, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("tracker enabled without spreadsheet_id: %w", config.ErrMissingCredentials)
	}

	switch {
	case len(opts) > 0:
	case cfg.ServiceAccountJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.ServiceAccountJSON)))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	default:
		return nil, fmt.Errorf("no Google credentials provided, set credentials_file or service_account_json: %w", config.ErrMissingCredentials)
	}

	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	sheetName := cfg.SheetName
	if sheetName == "" {
		sheetName = defaultSheet
	}

	return &SheetsTracker{
		service:       srv,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     sheetName,
		now:           time.Now,
		log:           log.WithComponent("sheets-tracker"),
	}, nil
}

// InitializeSheet creates the sheet and header row if they don't exist
func (t *SheetsTracker) InitializeSheet(ctx context.Context) error {
	if t.initialized {
		return nil
	}
	if err := t.ensureSheetExists(ctx); err != nil {
		return err
	}

	readRange := fmt.Sprintf("%s!A1:%s1", t.sheetName, lastColumn)
	resp, err := t.service.Spreadsheets.Values.Get(t.spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to read sheet: %w", err)
	}

	if len(resp.Values) == 0 {
		t.log.Info().Msg("Initializing sheet with headers")
		if err := t.writeHeaders(ctx); err != nil {
			return err
		}
	}

	t.initialized = true
	return nil
}

func (t *SheetsTracker) ensureSheetExists(ctx context.Context) error {
	spreadsheet, err := t.service.Spreadsheets.Get(t.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to get spreadsheet: %w", err)
	}

	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == t.sheetName {
			return nil
		}
	}

	t.log.Info().Str("sheet", t.sheetName).Msg("Creating new sheet")
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: t.sheetName},
			},
		}},
	}
	if _, err := t.service.Spreadsheets.BatchUpdate(t.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	return nil
}

func (t *SheetsTracker) writeHeaders(ctx context.Context) error {
	headerRow := make([]interface{}, 0, len(SheetColumns))
	for _, col := range SheetColumns {
		headerRow = append(headerRow, col)
	}

	valueRange := &sheets.ValueRange{Values: [][]interface{}{headerRow}}
	_, err := t.service.Spreadsheets.Values.Update(t.spreadsheetID, t.sheetName+"!A1", valueRange).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	return nil
}

// DraftRow builds the sheet row for a draft
func DraftRow(draft *models.Draft, topics []string) []interface{} {
	if len(topics) > maxTopics {
		topics = topics[:maxTopics]
	}
	return []interface{}{
		draft.ID,
		draft.Title,
		string(draft.Status),
		draft.RunID,
		strings.Join(topics, ", "),
		draft.CreatedAt.Format(time.RFC3339),
		draft.ShareURN,
		draft.UpdatedAt.Format(time.RFC3339),
	}
}

// TrackDraft appends a row for a newly generated draft
func (t *SheetsTracker) TrackDraft(ctx context.Context, draft *models.Draft, topics []string) error {
	if err := t.InitializeSheet(ctx); err != nil {
		return err
	}

	appendRange := fmt.Sprintf("%s!A:%s", t.sheetName, lastColumn)
	valueRange := &sheets.ValueRange{Values: [][]interface{}{DraftRow(draft, topics)}}

	_, err := t.service.Spreadsheets.Values.Append(t.spreadsheetID, appendRange, valueRange).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to append row: %w", err)
	}

	t.log.Info().Uint("draft_id", draft.ID).Str("title", draft.Title).Msg("Tracked new draft")
	return nil
}

// UpdateDraftStatus rewrites the status, share URN and updated-at cells of
// the draft's row
func (t *SheetsTracker) UpdateDraftStatus(ctx context.Context, draft *models.Draft) error {
	rowNum, err := t.findRowByDraftID(ctx, draft.ID)
	if err != nil {
		return err
	}

	updates := map[string]interface{}{
		"C": string(draft.Status),
		"G": draft.ShareURN,
		"H": t.now().Format(time.RFC3339),
	}
	for col, value := range updates {
		cellRange := fmt.Sprintf("%s!%s%d", t.sheetName, col, rowNum)
		valueRange := &sheets.ValueRange{Values: [][]interface{}{{value}}}
		_, err := t.service.Spreadsheets.Values.Update(t.spreadsheetID, cellRange, valueRange).
			ValueInputOption("RAW").
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("failed to update cell %s: %w", cellRange, err)
		}
	}
	return nil
}

func (t *SheetsTracker) findRowByDraftID(ctx context.Context, draftID uint) (int, error) {
	readRange := fmt.Sprintf("%s!A:A", t.sheetName)
	resp, err := t.service.Spreadsheets.Values.Get(t.spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("failed to search for draft: %w", err)
	}

	want := fmt.Sprintf("%d", draftID)
	for i, row := range resp.Values {
		if len(row) > 0 && fmt.Sprintf("%v", row[0]) == want {
			return i + 1, nil
		}
	}
	return 0, fmt.Errorf("draft %d not found in tracker", draftID)
}
