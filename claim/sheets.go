package claim

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"dispatchbot/pkg/models"
)

// SheetsExportSink is the external writeback adapter of spec section
// 4.I, appending one row per successful claim to an operator-owned
// spreadsheet. It is deliberately append-only and never reads back: the
// database, not the sheet, is authoritative, so there is nothing here to
// reconcile on restart.
type SheetsExportSink struct {
	svc           *sheets.Service
	spreadsheetID string
}

// NewSheetsExportSink builds the sink from a service-account credentials
// file. If spreadsheetID or credentialsFile is empty, export is a no-op
// (useful for local/dev runs without Google credentials provisioned).
func NewSheetsExportSink(ctx context.Context, credentialsFile, spreadsheetID string) (*SheetsExportSink, error) {
	if credentialsFile == "" || spreadsheetID == "" {
		return &SheetsExportSink{}, nil
	}

	svc, err := sheets.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("claim: sheets client init: %w", err)
	}
	return &SheetsExportSink{svc: svc, spreadsheetID: spreadsheetID}, nil
}

func (s *SheetsExportSink) ExportAssignment(ctx context.Context, route models.Route, driver models.Driver) error {
	if s.svc == nil {
		return nil
	}

	row := []interface{}{
		time.Now().Format(time.RFC3339),
		route.ID,
		driver.ID,
		driver.Name,
		route.FromLocation,
		route.ToLocation,
		route.Price,
	}

	_, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, "Assignments!A1",
		&sheets.ValueRange{Values: [][]interface{}{row}}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("claim: sheets append: %w", err)
	}
	return nil
}
