// Package ingest turns heterogeneous flat files into a lazy sequence of
// raw payloads and writes them to a line-delimited output stream.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contacts-cli/internal/model"
	"github.com/sells-group/contacts-cli/internal/resilience"
)

// IterPayloads opens path and returns a lazy, single-pass sequence of raw
// payloads, dispatching on the file extension (.csv, .tsv, .json, .jsonl,
// .ndjson, .xlsx). The sequence is bounded by the file size and is not
// restartable; reopen for a second pass.
//
// An unsupported extension or unreadable file fails immediately; parse
// failures mid-stream arrive on the error channel. Both channels are
// closed when the stream ends.
func IterPayloads(ctx context.Context, path string) (<-chan model.RawPayload, <-chan error, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, eris.Wrap(err, "ingest: open file")
		}
		out, errs := streamDelimited(ctx, f, ',')
		return out, errs, nil
	case ".tsv":
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, eris.Wrap(err, "ingest: open file")
		}
		out, errs := streamDelimited(ctx, f, '\t')
		return out, errs, nil
	case ".json":
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, eris.Wrap(err, "ingest: open file")
		}
		out, errs := streamJSON(ctx, f)
		return out, errs, nil
	case ".jsonl", ".ndjson":
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, eris.Wrap(err, "ingest: open file")
		}
		out, errs := streamNDJSON(ctx, f)
		return out, errs, nil
	case ".xlsx":
		out, errs := streamXLSX(ctx, path)
		return out, errs, nil
	default:
		return nil, nil, resilience.NewValidationError(
			eris.Errorf("ingest: unsupported file extension %q", filepath.Ext(path)))
	}
}

// SourceRegistrar is the slice of the storage contract ingestion needs.
type SourceRegistrar interface {
	RecordSource(ctx context.Context, name, label string, createdAt time.Time) error
	RecordEvent(ctx context.Context, ev model.Event) error
}

// Ingestor writes ingested payloads to a line-delimited JSON stream and
// records one lifecycle event per input file.
type Ingestor struct {
	out   io.Writer
	store SourceRegistrar
	now   func() time.Time
}

// NewIngestor creates an Ingestor writing to out and registering sources
// and events with store.
func NewIngestor(out io.Writer, store SourceRegistrar) *Ingestor {
	return &Ingestor{out: out, store: store, now: time.Now}
}

// IngestFile streams every payload from path to the output stream, adding
// an ingested_at timestamp, registers the file as a source, and emits one
// file_ingested event carrying the final count. Returns the number of
// payloads written.
func (ing *Ingestor) IngestFile(ctx context.Context, path string) (int, error) {
	payloads, errs, err := IterPayloads(ctx, path)
	if err != nil {
		return 0, err
	}

	enc := json.NewEncoder(ing.out)
	ingestedAt := ing.now().UTC()
	count := 0

	for payload := range payloads {
		payload["ingested_at"] = ingestedAt.Format(time.RFC3339)
		if err := enc.Encode(payload); err != nil {
			return count, eris.Wrap(err, "ingest: write output line")
		}
		count++
	}
	if err := <-errs; err != nil {
		return count, err
	}

	source := filepath.Base(path)
	if err := ing.store.RecordSource(ctx, source, "ingested file", ingestedAt); err != nil {
		return count, eris.Wrap(err, "ingest: register source")
	}

	ev := model.Event{
		EventType:  model.EventFileIngested,
		OccurredAt: ingestedAt,
		Subject:    source,
		Notes:      fmt.Sprintf("count=%d", count),
	}
	if err := ing.store.RecordEvent(ctx, ev); err != nil {
		return count, eris.Wrap(err, "ingest: record event")
	}

	zap.L().Info("file ingested",
		zap.String("path", path),
		zap.Int("payloads", count),
	)
	return count, nil
}

// IngestMany ingests each file in order, stopping at the first failure.
// Returns the total payload count across all files ingested so far.
func (ing *Ingestor) IngestMany(ctx context.Context, paths []string) (int, error) {
	total := 0
	for _, path := range paths {
		n, err := ing.IngestFile(ctx, path)
		total += n
		if err != nil {
			return total, eris.Wrapf(err, "ingest: %s", path)
		}
	}
	return total, nil
}

