package reftable

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeWorkbook(t *testing.T, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cellRef, &row))
	}
	path := filepath.Join(t.TempDir(), "drivers.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestImportSpreadsheetColumnsCAndJ(t *testing.T) {
	header := []any{"A", "B", "Customer", "D", "E", "F", "G", "H", "I", "Route"}
	path := writeWorkbook(t, [][]any{
		header,
		{"x", "x", "XYZ1", "", "", "", "", "", "", "North"},
		{"x", "x", "", "", "", "", "", "", "", "Orphan"},
		{"x", "x", "ARAM045", "", "", "", "", "", "", "South"},
		{"x", "x", "KSG101", "", "", "", "", "", "", 7},
	})

	tbl, err := ImportSpreadsheet(context.Background(), path, ImportOptions{
		KeyColumn:   "C",
		RouteColumn: "J",
		HeaderRows:  1,
	})
	require.NoError(t, err)

	assert.Equal(t, []Entry{
		{Key: "XYZ1", Route: "North"},
		{Key: "ARAM045", Route: "South"},
		{Key: "KSG101", Route: "7"},
	}, tbl.Entries())
}

func TestImportSpreadsheetMissingRouteCell(t *testing.T) {
	path := writeWorkbook(t, [][]any{
		{"A", "B", "Customer"},
		{"x", "x", "XYZ1"},
	})

	tbl, err := ImportSpreadsheet(context.Background(), path, ImportOptions{KeyColumn: "c", RouteColumn: "j", HeaderRows: 1})
	require.NoError(t, err)
	route, ok := tbl.Get("XYZ1")
	assert.True(t, ok)
	assert.Equal(t, "", route)
}

func TestImportSpreadsheetRejectsOtherFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("just text"), 0o644))

	_, err := ImportSpreadsheet(context.Background(), path, ImportOptions{KeyColumn: "C", RouteColumn: "J"})
	assert.ErrorIs(t, err, ErrUnsupportedSpreadsheet)
}

func TestImportSpreadsheetBadColumn(t *testing.T) {
	path := writeWorkbook(t, [][]any{{"A"}})

	_, err := ImportSpreadsheet(context.Background(), path, ImportOptions{KeyColumn: "1", RouteColumn: "J"})
	assert.Error(t, err)
}
