package sourcesync

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contacts-cli/internal/model"
	"github.com/sells-group/contacts-cli/internal/normalize"
	"github.com/sells-group/contacts-cli/internal/resilience"
	"github.com/sells-group/contacts-cli/internal/store"
	"github.com/sells-group/contacts-cli/pkg/mailbox"
)

// MailboxAdapter harvests contacts from mailbox senders. Each message id
// is the provider-native source ref, so repeated syncs of the same message
// neither duplicate the contact (deterministic record id) nor its derived
// follow-up task (DedupeBySource).
type MailboxAdapter struct {
	syncer
	client mailbox.Client
	query  string
}

// NewMailboxAdapter creates a mailbox sync adapter for one search query.
func NewMailboxAdapter(client mailbox.Client, norm *normalize.Normalizer, st store.Store, query string, opts Options) *MailboxAdapter {
	return &MailboxAdapter{
		syncer: newSyncer(model.SourceMailbox, norm, st, opts),
		client: client,
		query:  query,
	}
}

// Source returns the provider's source name.
func (a *MailboxAdapter) Source() string { return a.source }

// FetchAndIngest pages through matching messages, fetching sender details
// per message and persisting every identified contact.
func (a *MailboxAdapter) FetchAndIngest(ctx context.Context) (*model.SyncBatch, error) {
	batch := &model.SyncBatch{Source: a.source}
	pageToken := ""

	for {
		want := a.remaining(batch.Fetched)
		if want <= 0 {
			break
		}

		page, err := resilience.DoVal(ctx, a.opts.Retry, func(ctx context.Context) (*mailbox.MessagePage, error) {
			return a.client.Search(ctx, a.query, int64(want), pageToken)
		})
		if err != nil {
			return batch, eris.Wrap(err, "sync mailbox: search page")
		}
		if len(page.IDs) == 0 {
			break
		}

		for _, id := range page.IDs {
			batch.Fetched++

			payload, err := resilience.DoVal(ctx, a.opts.Retry, func(ctx context.Context) (map[string]any, error) {
				return a.client.Details(ctx, id)
			})
			if err != nil {
				return batch, eris.Wrapf(err, "sync mailbox: message %s", id)
			}

			batch.Normalized++
			persisted, err := a.ingest(ctx, payload, id)
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
			return batch, eris.Wrap(err, "sync mailbox: cancelled between pages")
		}
	}

	if err := a.finish(ctx, batch); err != nil {
		return batch, err
	}
	return batch, nil
}
