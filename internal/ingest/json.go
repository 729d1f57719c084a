package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contacts-cli/internal/model"
	"github.com/sells-group/contacts-cli/internal/resilience"
)

// streamJSON reads a single JSON document: a top-level object yields one
// payload, an array of objects yields one payload per element, and any
// other top-level shape is a validation error. The reader is closed when
// the stream ends.
func streamJSON(ctx context.Context, r io.ReadCloser) (<-chan model.RawPayload, <-chan error) {
	out := make(chan model.RawPayload, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)
		defer r.Close() //nolint:errcheck

		dec := json.NewDecoder(r)
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF {
				return
			}
			errs <- eris.Wrap(err, "ingest: read opening token")
			return
		}

		delim, ok := tok.(json.Delim)
		if !ok {
			errs <- resilience.NewValidationError(
				eris.Errorf("ingest: unexpected top-level JSON value %v", tok))
			return
		}

		switch delim {
		case '{':
			// Re-decode the whole document as one object. The decoder has
			// already consumed the opening brace, so decode field by field.
			payload := model.RawPayload{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					errs <- eris.Wrap(err, "ingest: read object key")
					return
				}
				key, _ := keyTok.(string)
				var val any
				if err := dec.Decode(&val); err != nil {
					errs <- eris.Wrap(err, "ingest: decode object value")
					return
				}
				payload[key] = val
			}
			select {
			case out <- payload:
			case <-ctx.Done():
				errs <- eris.Wrap(ctx.Err(), "ingest: context cancelled")
			}

		case '[':
			for dec.More() {
				if ctx.Err() != nil {
					errs <- eris.Wrap(ctx.Err(), "ingest: context cancelled")
					return
				}
				var payload model.RawPayload
				if err := dec.Decode(&payload); err != nil {
					errs <- resilience.NewValidationError(
						eris.Wrap(err, "ingest: array element is not an object"))
					return
				}
				select {
				case out <- payload:
				case <-ctx.Done():
					errs <- eris.Wrap(ctx.Err(), "ingest: context cancelled")
					return
				}
			}

		default:
			errs <- resilience.NewValidationError(
				eris.Errorf("ingest: unexpected top-level JSON delimiter %q", delim.String()))
		}
	}()

	return out, errs
}

// streamNDJSON reads line-delimited JSON. Empty lines are ignored and
// malformed lines are skipped with a debug log; the run continues. The
// reader is closed when the stream ends.
func streamNDJSON(ctx context.Context, r io.ReadCloser) (<-chan model.RawPayload, <-chan error) {
	out := make(chan model.RawPayload, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)
		defer r.Close() //nolint:errcheck

		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		lineNo := 0

		for scanner.Scan() {
			lineNo++
			if ctx.Err() != nil {
				errs <- eris.Wrap(ctx.Err(), "ingest: context cancelled")
				return
			}

			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			var payload model.RawPayload
			if err := json.Unmarshal([]byte(line), &payload); err != nil {
				zap.L().Debug("skipping malformed ndjson line",
					zap.Int("line", lineNo),
					zap.Error(err),
				)
				continue
			}

			select {
			case out <- payload:
			case <-ctx.Done():
				errs <- eris.Wrap(ctx.Err(), "ingest: context cancelled")
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errs <- eris.Wrap(err, "ingest: scan input")
		}
	}()

	return out, errs
}
