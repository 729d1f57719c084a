// Package sourcesync fetches paginated contact data from remote providers
// and feeds it through normalization into storage. All providers share one
// retry policy and identical failure semantics: a retry-exhausted page
// fetch fails the whole run, never a silent partial success.
package sourcesync

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contacts-cli/internal/model"
	"github.com/sells-group/contacts-cli/internal/normalize"
	"github.com/sells-group/contacts-cli/internal/resilience"
	"github.com/sells-group/contacts-cli/internal/store"
)

// Options configures a sync run. The zero value is usable: defaults are
// applied by each adapter.
type Options struct {
	// PageSize is the number of items requested per provider page.
	PageSize int

	// MaxResults bounds the total items fetched across pages; 0 means
	// until the provider runs out of pages.
	MaxResults int

	// PageDelay is the courtesy sleep between pages.
	PageDelay time.Duration

	// Retry is the shared per-request retry policy.
	Retry resilience.Policy

	// CreateTasks derives one follow-up task per persisted record.
	CreateTasks bool

	// DedupeBySource suppresses recreating a follow-up task for a
	// provider message id that already produced one.
	DedupeBySource bool
}

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = 50
	}
	return o
}

// Adapter is the shared provider contract: one bounded, retried, paginated
// fetch feeding normalization and persistence.
type Adapter interface {
	// Source returns the provider's source name.
	Source() string

	// FetchAndIngest runs one sync and returns its batch summary. Exactly
	// one lifecycle event is recorded per run, regardless of item count.
	FetchAndIngest(ctx context.Context) (*model.SyncBatch, error)
}

// syncer carries the plumbing shared by every adapter.
type syncer struct {
	source string
	norm   *normalize.Normalizer
	store  store.Store
	opts   Options
}

func newSyncer(source string, norm *normalize.Normalizer, st store.Store, opts Options) syncer {
	return syncer{source: source, norm: norm, store: st, opts: opts.withDefaults()}
}

// ingest normalizes one payload and persists it when it carries an
// identity (name or email). sourceRef is the provider-native item id used
// for follow-up task dedupe; pass "" when the provider has none.
func (s *syncer) ingest(ctx context.Context, payload model.RawPayload, sourceRef string) (bool, error) {
	rec := s.norm.Normalize(s.source, payload)
	if !rec.Identified() {
		zap.L().Debug("skipping unidentified record", zap.String("source", s.source))
		return false, nil
	}

	recordID, err := s.store.UpsertRecord(ctx, rec)
	if err != nil {
		return false, eris.Wrapf(err, "sync %s: upsert record", s.source)
	}

	if s.opts.CreateTasks && sourceRef != "" {
		task := model.Task{
			RecordID:       recordID,
			Title:          fmt.Sprintf("Follow up: %s", rec.Name),
			SourceRef:      sourceRef,
			DedupeBySource: s.opts.DedupeBySource,
		}
		if s.opts.DedupeBySource {
			exists, err := s.store.TaskExistsBySource(ctx, sourceRef)
			if err != nil {
				return false, eris.Wrapf(err, "sync %s: task lookup", s.source)
			}
			if exists {
				return true, nil
			}
		}
		if err := s.store.RecordTask(ctx, task); err != nil {
			return false, eris.Wrapf(err, "sync %s: record task", s.source)
		}
	}

	return true, nil
}

// finish records the single lifecycle event for the run.
func (s *syncer) finish(ctx context.Context, batch *model.SyncBatch) error {
	ev := model.Event{
		EventType:  model.EventSyncRun,
		OccurredAt: time.Now().UTC(),
		Subject:    s.source,
		Notes:      fmt.Sprintf("fetched=%d normalized=%d persisted=%d", batch.Fetched, batch.Normalized, batch.Persisted),
	}
	if err := s.store.RecordEvent(ctx, ev); err != nil {
		return eris.Wrapf(err, "sync %s: record event", s.source)
	}
	batch.Event = &ev

	zap.L().Info("sync run complete",
		zap.String("source", s.source),
		zap.Int("fetched", batch.Fetched),
		zap.Int("persisted", batch.Persisted),
	)
	return nil
}

// pageDelay sleeps the courtesy delay between pages, honoring ctx.
func (s *syncer) pageDelay(ctx context.Context) error {
	if s.opts.PageDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(s.opts.PageDelay)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// remaining returns how many items may still be fetched this run given
// the MaxResults bound, capped at the page size.
func (s *syncer) remaining(fetched int) int {
	if s.opts.MaxResults <= 0 {
		return s.opts.PageSize
	}
	left := s.opts.MaxResults - fetched
	if left > s.opts.PageSize {
		return s.opts.PageSize
	}
	return left
}
