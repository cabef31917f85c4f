package reftable

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"github.com/local/routesort/internal/filetype"
)

// ErrUnsupportedSpreadsheet is returned for files that are not a spreadsheet
// format we can read or convert.
var ErrUnsupportedSpreadsheet = errors.New("unsupported spreadsheet format")

// Converter turns a legacy spreadsheet into .xlsx inside outputDir.
type Converter interface {
	ToXLSX(ctx context.Context, inputPath, outputDir string) (string, error)
}

// ImportOptions selects the sheet and the two columns that form the table.
type ImportOptions struct {
	Sheet       string // empty means the first sheet
	KeyColumn   string // column letters, e.g. "C"
	RouteColumn string // column letters, e.g. "J"
	HeaderRows  int
	Converter   Converter // needed for .xls/.ods only
}

// ImportSpreadsheet reads KeyColumn → RouteColumn pairs from a spreadsheet in
// row order. Rows with an empty key cell are skipped.
func ImportSpreadsheet(ctx context.Context, path string, opts ImportOptions) (*Table, error) {
	info, err := filetype.New().Detect(path)
	if err != nil {
		return nil, err
	}

	switch info.Kind {
	case filetype.KindSpreadsheet:
	case filetype.KindLegacySpreadsheet:
		if opts.Converter == nil {
			return nil, fmt.Errorf("%w: %s needs conversion", ErrUnsupportedSpreadsheet, info.Description)
		}
		tmpDir, err := os.MkdirTemp("", "routesort-xlsx-*")
		if err != nil {
			return nil, err
		}
		defer os.RemoveAll(tmpDir)
		converted, err := opts.Converter.ToXLSX(ctx, path, tmpDir)
		if err != nil {
			return nil, fmt.Errorf("convert %s: %w", info.Description, err)
		}
		path = converted
	default:
		return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupportedSpreadsheet, info.Description, info.MIMEType)
	}

	return readColumns(path, opts)
}

func readColumns(path string, opts ImportOptions) (*Table, error) {
	keyCol, err := excelize.ColumnNameToNumber(strings.ToUpper(opts.KeyColumn))
	if err != nil {
		return nil, fmt.Errorf("key column: %w", err)
	}
	routeCol, err := excelize.ColumnNameToNumber(strings.ToUpper(opts.RouteColumn))
	if err != nil {
		return nil, fmt.Errorf("route column: %w", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()

	sheet := opts.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.New("spreadsheet has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	var entries []Entry
	skipped := 0
	for i, row := range rows {
		if i < opts.HeaderRows {
			continue
		}
		key := cell(row, keyCol-1)
		if strings.TrimSpace(key) == "" {
			skipped++
			continue
		}
		entries = append(entries, Entry{Key: key, Route: cell(row, routeCol-1)})
	}

	t := New(entries...)
	log.Info().
		Str("sheet", sheet).
		Int("rows", len(rows)).
		Int("entries", t.Len()).
		Int("skipped", skipped).
		Msg("spreadsheet imported")
	return t, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}
