package sourcesync

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contacts-cli/internal/model"
	"github.com/sells-group/contacts-cli/internal/normalize"
	"github.com/sells-group/contacts-cli/internal/resilience"
	"github.com/sells-group/contacts-cli/internal/store"
	"github.com/sells-group/contacts-cli/pkg/salesforce"
)

// CRMAdapter syncs contacts from the Salesforce CRM. Offset-based
// pagination: a short page ends the run.
type CRMAdapter struct {
	syncer
	client salesforce.Client
	where  string
}

// NewCRMAdapter creates a CRM sync adapter. where is an optional SOQL
// filter body restricting which contacts are pulled.
func NewCRMAdapter(client salesforce.Client, norm *normalize.Normalizer, st store.Store, where string, opts Options) *CRMAdapter {
	return &CRMAdapter{
		syncer: newSyncer(model.SourceCRM, norm, st, opts),
		client: client,
		where:  where,
	}
}

// Source returns the provider's source name.
func (a *CRMAdapter) Source() string { return a.source }

// FetchAndIngest pages through CRM contacts and persists every identified
// record. The CRM contact id is the source ref for follow-up task dedupe.
func (a *CRMAdapter) FetchAndIngest(ctx context.Context) (*model.SyncBatch, error) {
	batch := &model.SyncBatch{Source: a.source}
	offset := 0

	for {
		want := a.remaining(batch.Fetched)
		if want <= 0 {
			break
		}

		contacts, err := resilience.DoVal(ctx, a.opts.Retry, func(ctx context.Context) ([]salesforce.Contact, error) {
			return a.client.SearchContacts(ctx, a.where, want, offset)
		})
		if err != nil {
			return batch, eris.Wrap(err, "sync crm: query page")
		}
		if len(contacts) == 0 {
			break
		}

		for _, c := range contacts {
			batch.Fetched++
			batch.Normalized++

			persisted, err := a.ingest(ctx, c.ToPayload(), c.ID)
			if err != nil {
				return batch, err
			}
			if persisted {
				batch.Persisted++
			}
		}

		// A short page means the provider ran out of contacts.
		if len(contacts) < want {
			break
		}
		offset += len(contacts)
		if a.opts.MaxResults > 0 && batch.Fetched >= a.opts.MaxResults {
			break
		}
		if err := a.pageDelay(ctx); err != nil {
			return batch, eris.Wrap(err, "sync crm: cancelled between pages")
		}
	}

	if err := a.finish(ctx, batch); err != nil {
		return batch, err
	}
	return batch, nil
}
