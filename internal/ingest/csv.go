package ingest

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contacts-cli/internal/model"
)

// streamDelimited reads a delimited tabular file, treating the first row
// as the header. Each data row becomes one payload keyed by the header
// columns, with every string value trimmed. The reader is closed when the
// stream ends.
func streamDelimited(ctx context.Context, r io.ReadCloser, delim rune) (<-chan model.RawPayload, <-chan error) {
	out := make(chan model.RawPayload, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)
		defer r.Close() //nolint:errcheck

		reader := csv.NewReader(r)
		reader.Comma = delim
		reader.FieldsPerRecord = -1 // allow ragged rows

		header, err := reader.Read()
		if err == io.EOF {
			return
		}
		if err != nil {
			errs <- eris.Wrap(err, "ingest: read header row")
			return
		}
		for i, col := range header {
			header[i] = strings.TrimSpace(col)
		}

		for {
			if ctx.Err() != nil {
				errs <- eris.Wrap(ctx.Err(), "ingest: context cancelled")
				return
			}

			row, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errs <- eris.Wrap(err, "ingest: read row")
				return
			}

			payload := make(model.RawPayload, len(header))
			for i, col := range header {
				if col == "" || i >= len(row) {
					continue
				}
				payload[col] = strings.TrimSpace(row[i])
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
