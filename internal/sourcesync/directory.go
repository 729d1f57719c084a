package sourcesync

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contacts-cli/internal/model"
	"github.com/sells-group/contacts-cli/internal/normalize"
	"github.com/sells-group/contacts-cli/internal/resilience"
	"github.com/sells-group/contacts-cli/internal/store"
	"github.com/sells-group/contacts-cli/pkg/directory"
)

// DirectoryAdapter syncs business-listing contacts from the directory
// provider. Token-based pagination: an empty next-page token ends the run.
type DirectoryAdapter struct {
	syncer
	client directory.Client
	query  string
}

// NewDirectoryAdapter creates a directory sync adapter for one query.
func NewDirectoryAdapter(client directory.Client, norm *normalize.Normalizer, st store.Store, query string, opts Options) *DirectoryAdapter {
	return &DirectoryAdapter{
		syncer: newSyncer(model.SourceDirectory, norm, st, opts),
		client: client,
		query:  query,
	}
}

// Source returns the provider's source name.
func (a *DirectoryAdapter) Source() string { return a.source }

// FetchAndIngest pages through search results, enriching each stub that
// carries a listing id via Details, and persists every identified record.
func (a *DirectoryAdapter) FetchAndIngest(ctx context.Context) (*model.SyncBatch, error) {
	batch := &model.SyncBatch{Source: a.source}
	pageToken := ""

	for {
		want := a.remaining(batch.Fetched)
		if want <= 0 {
			break
		}

		page, err := resilience.DoVal(ctx, a.opts.Retry, func(ctx context.Context) (*directory.SearchPage, error) {
			return a.client.Search(ctx, a.query, want, pageToken)
		})
		if err != nil {
			return batch, eris.Wrap(err, "sync directory: search page")
		}
		if len(page.Listings) == 0 {
			break
		}

		for _, listing := range page.Listings {
			batch.Fetched++

			payload := model.RawPayload(listing)
			sourceRef := ""
			if id, ok := listing["id"].(string); ok && id != "" {
				sourceRef = id
				details, err := resilience.DoVal(ctx, a.opts.Retry, func(ctx context.Context) (map[string]any, error) {
					return a.client.Details(ctx, id)
				})
				if err != nil {
					return batch, eris.Wrapf(err, "sync directory: details %s", id)
				}
				for k, v := range details {
					payload[k] = v
				}
			}

			batch.Normalized++
			persisted, err := a.ingest(ctx, payload, sourceRef)
			if err != nil {
				return batch, err
			}
			if persisted {
				batch.Persisted++
			}
		}

		pageToken = page.NextPageToken
		if pageToken == "" {
			break
		}
		if a.opts.MaxResults > 0 && batch.Fetched >= a.opts.MaxResults {
			break
		}
		if err := a.pageDelay(ctx); err != nil {
			return batch, eris.Wrap(err, "sync directory: cancelled between pages")
		}
	}

	if err := a.finish(ctx, batch); err != nil {
		return batch, err
	}
	return batch, nil
}
