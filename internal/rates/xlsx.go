package rates

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/specwright/takeoff-cli/internal/model"
)

// XLSXOptions configures the price book importer.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
	SkipRows   int    // header rows to skip, default 1
}

// LoadXLSX imports rate entries from a supplier price book. Expected
// columns: kind, signature, unit, material_rate, labor_rate. Rows with an
// unparseable rate are skipped with a warning rather than failing the
// whole import.
func LoadXLSX(path string, opts XLSXOptions) ([]model.RateEntry, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "rates: open xlsx")
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}

	skip := opts.SkipRows
	if skip == 0 {
		skip = 1
	}

	var entries []model.RateEntry
	for i, row := range sheet.Rows {
		if i < skip {
			continue
		}
		cells := rowToStrings(row)
		if len(cells) < 5 || strings.TrimSpace(cells[0]) == "" {
			continue
		}
		material, merr := strconv.ParseFloat(strings.TrimSpace(cells[3]), 64)
		labor, lerr := strconv.ParseFloat(strings.TrimSpace(cells[4]), 64)
		if merr != nil || lerr != nil {
			zap.L().Warn("rates: skipping row with unparseable rate",
				zap.Int("row", i),
				zap.String("kind", cells[0]),
			)
			continue
		}
		entries = append(entries, model.RateEntry{
			Kind:         strings.ToLower(strings.TrimSpace(cells[0])),
			Signature:    strings.ToLower(strings.TrimSpace(cells[1])),
			Unit:         strings.TrimSpace(cells[2]),
			MaterialRate: material,
			LaborRate:    labor,
		})
	}
	return entries, nil
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("rates: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("rates: sheet index %d out of range (%d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	out := make([]string, len(row.Cells))
	for i, cell := range row.Cells {
		out[i] = cell.String()
	}
	return out
}
