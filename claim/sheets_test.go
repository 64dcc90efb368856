package claim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatchbot/pkg/models"
)

func TestSheetsExportSinkIsNoopWithoutCredentials(t *testing.T) {
	sink, err := NewSheetsExportSink(context.Background(), "", "")
	require.NoError(t, err)

	err = sink.ExportAssignment(context.Background(), models.Route{ID: "R1"}, models.Driver{ID: 1})
	assert.NoError(t, err, "export must be a no-op when no spreadsheet is configured")
}

func TestSheetsExportSinkIsNoopWithOnlySpreadsheetID(t *testing.T) {
	sink, err := NewSheetsExportSink(context.Background(), "", "sheet-123")
	require.NoError(t, err)
	assert.NoError(t, sink.ExportAssignment(context.Background(), models.Route{}, models.Driver{}))
}
