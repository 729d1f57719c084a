package ingest

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/contacts-cli/internal/model"
)

// streamXLSX reads the first sheet of an XLSX workbook, treating the first
// row as the header. Each data row becomes one payload keyed by the header
// columns.
func streamXLSX(ctx context.Context, path string) (<-chan model.RawPayload, <-chan error) {
	out := make(chan model.RawPayload, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		f, err := xlsx.OpenFile(path)
		if err != nil {
			errs <- eris.Wrap(err, "ingest: open xlsx")
			return
		}
		if len(f.Sheets) == 0 {
			errs <- eris.New("ingest: xlsx workbook has no sheets")
			return
		}
		sheet := f.Sheets[0]

		var header []string
		for i, row := range sheet.Rows {
			if ctx.Err() != nil {
				errs <- eris.Wrap(ctx.Err(), "ingest: context cancelled")
				return
			}

			cells := make([]string, len(row.Cells))
			for j, cell := range row.Cells {
				cells[j] = strings.TrimSpace(cell.String())
			}

			if i == 0 {
				header = cells
				continue
			}

			payload := make(model.RawPayload, len(header))
			for j, col := range header {
				if col == "" || j >= len(cells) {
					continue
				}
				payload[col] = cells[j]
			}

			select {
			case out <- payload:
			case <-ctx.Done():
				errs <- eris.Wrap(ctx.Err(), "ingest: context cancelled")
				return
			}
		}
	}()

	return out, errs
}
