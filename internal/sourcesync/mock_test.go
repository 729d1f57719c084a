package sourcesync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/contacts-cli/internal/model"
	"github.com/sells-group/contacts-cli/internal/normalize"
	"github.com/sells-group/contacts-cli/internal/resilience"
	"github.com/sells-group/contacts-cli/pkg/directory"
	"github.com/sells-group/contacts-cli/pkg/mailbox"
	"github.com/sells-group/contacts-cli/pkg/salesforce"
)

// memStore is an in-memory store.Store for adapter tests.
type memStore struct {
	records map[string]*model.NormalizedRecord
	events  []model.Event
	sources map[string]string
	tasks   []model.Task
	upserts int
}

func newMemStore() *memStore {
	return &memStore{
		records: map[string]*model.NormalizedRecord{},
		sources: map[string]string{},
	}
}

func (m *memStore) UpsertRecord(_ context.Context, rec *model.NormalizedRecord) (string, error) {
	m.upserts++
	m.records[rec.RecordID] = rec
	return rec.RecordID, nil
}

func (m *memStore) ListRecords(context.Context) ([]*model.NormalizedRecord, error) {
	out := make([]*model.NormalizedRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	return out, nil
}

func (m *memStore) RecordEvent(_ context.Context, ev model.Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	m.events = append(m.events, ev)
	return nil
}

func (m *memStore) RecordSource(_ context.Context, name, label string, _ time.Time) error {
	m.sources[name] = label
	return nil
}

func (m *memStore) TaskExistsBySource(_ context.Context, sourceRef string) (bool, error) {
	if sourceRef == "" {
		return false, nil
	}
	for _, t := range m.tasks {
		if t.SourceRef == sourceRef {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) RecordTask(_ context.Context, task model.Task) error {
	if task.DedupeBySource && task.SourceRef != "" {
		for _, t := range m.tasks {
			if t.SourceRef == task.SourceRef {
				return nil
			}
		}
	}
	task.ID = uuid.NewString()
	m.tasks = append(m.tasks, task)
	return nil
}

func (m *memStore) Migrate(context.Context) error { return nil }
func (m *memStore) Close() error                  { return nil }

// fakeDirectory serves canned listing pages. failSearches injects transient
// failures into the first N Search calls.
type fakeDirectory struct {
	pages        []directory.SearchPage
	details      map[string]map[string]any
	searchCalls  int
	detailCalls  int
	failSearches int
}

func (f *fakeDirectory) Search(_ context.Context, _ string, _ int, pageToken string) (*directory.SearchPage, error) {
	f.searchCalls++
	if f.searchCalls <= f.failSearches {
		return nil, resilience.NewTransientError(fmt.Errorf("listings backend unavailable"), 503)
	}

	idx := 0
	if pageToken != "" {
		fmt.Sscanf(pageToken, "page-%d", &idx)
	}
	if idx >= len(f.pages) {
		return &directory.SearchPage{}, nil
	}
	page := f.pages[idx]
	return &page, nil
}

func (f *fakeDirectory) Details(_ context.Context, id string) (map[string]any, error) {
	f.detailCalls++
	if d, ok := f.details[id]; ok {
		return d, nil
	}
	return map[string]any{}, nil
}

// fakeMailbox serves canned message pages and details.
type fakeMailbox struct {
	pages        []mailbox.MessagePage
	details      map[string]map[string]any
	searchCalls  int
	failSearches int
}

func (f *fakeMailbox) Search(_ context.Context, _ string, _ int64, pageToken string) (*mailbox.MessagePage, error) {
	f.searchCalls++
	if f.searchCalls <= f.failSearches {
		return nil, resilience.NewTransientError(fmt.Errorf("mailbox backend unavailable"), 503)
	}

	idx := 0
	if pageToken != "" {
		fmt.Sscanf(pageToken, "page-%d", &idx)
	}
	if idx >= len(f.pages) {
		return &mailbox.MessagePage{}, nil
	}
	page := f.pages[idx]
	return &page, nil
}

func (f *fakeMailbox) Details(_ context.Context, id string) (map[string]any, error) {
	if d, ok := f.details[id]; ok {
		return d, nil
	}
	return map[string]any{"message_id": id}, nil
}

// fakeCRM serves a canned contact list through offset pagination.
type fakeCRM struct {
	contacts     []salesforce.Contact
	searchCalls  int
	failSearches int
}

func (f *fakeCRM) SearchContacts(_ context.Context, _ string, limit, offset int) ([]salesforce.Contact, error) {
	f.searchCalls++
	if f.searchCalls <= f.failSearches {
		return nil, resilience.NewTransientError(fmt.Errorf("crm backend unavailable"), 503)
	}

	if offset >= len(f.contacts) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.contacts) {
		end = len(f.contacts)
	}
	return f.contacts[offset:end], nil
}

// fastRetry is a retry policy with negligible backoff for tests.
func fastRetry(attempts int) resilience.Policy {
	return resilience.Policy{
		MaxAttempts: attempts,
		BaseDelay:   time.Microsecond,
		MaxDelay:    time.Millisecond,
		Multiplier:  1.1,
	}
}

func testNormalizer() *normalize.Normalizer {
	return normalize.New(normalize.DefaultEnrichmentPipeline())
}
