// Package store persists canonical contact records, lifecycle events,
// sources, and follow-up tasks. Records are upserted idempotently keyed by
// record_id; tasks can be deduplicated by their provider-native source ref.
package store

import (
	"context"
	"time"

	"github.com/sells-group/contacts-cli/internal/model"
)

// Store defines the persistence contract consumed by the pipeline.
type Store interface {
	// UpsertRecord inserts or updates a record keyed by record_id and
	// returns the record id.
	UpsertRecord(ctx context.Context, rec *model.NormalizedRecord) (string, error)

	// ListRecords returns every stored record ordered by record_id, raw
	// payloads omitted. Used by the duplicate-review scan.
	ListRecords(ctx context.Context) ([]*model.NormalizedRecord, error)

	// RecordEvent appends a lifecycle event.
	RecordEvent(ctx context.Context, ev model.Event) error

	// RecordSource registers a data source; re-registering is a no-op.
	RecordSource(ctx context.Context, name, label string, createdAt time.Time) error

	// TaskExistsBySource reports whether a task with the given
	// provider-native source ref already exists.
	TaskExistsBySource(ctx context.Context, sourceRef string) (bool, error)

	// RecordTask creates a follow-up task. When task.DedupeBySource is set
	// and a task with the same source ref exists, creation is suppressed.
	RecordTask(ctx context.Context, task model.Task) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
