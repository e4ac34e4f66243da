package roll

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// ReadXLSX reads the first sheet of a spreadsheet roll export and returns
// all rows as string slices, header row included.
func ReadXLSX(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "roll: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("roll: xlsx has no sheets")
	}

	sheet := f.Sheets[0]
	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// ImportXLSX imports the first sheet of a spreadsheet roll export, treating
// row 0 as the header. Row numbering and per-row semantics match ImportCSV.
func (im *Importer) ImportXLSX(ctx context.Context, versionID, path string) (*ImportResult, error) {
	rows, err := ReadXLSX(path)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, eris.New("roll: empty import file")
	}

	header := HeaderMap(rows[0], im.aliases)
	if err := ValidateHeader(header); err != nil {
		return nil, err
	}

	return im.ImportRows(ctx, versionID, rows[1:], header, RowsOptions{StartRow: 2})
}
