package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contacts-cli/internal/config"
	"github.com/sells-group/contacts-cli/internal/model"
)

// memStore is a minimal in-memory store.Store for orchestrator tests.
type memStore struct {
	records map[string]*model.NormalizedRecord
	events  []model.Event
	sources map[string]string
	tasks   []model.Task
}

func newMemStore() *memStore {
	return &memStore{
		records: map[string]*model.NormalizedRecord{},
		sources: map[string]string{},
	}
}

func (m *memStore) UpsertRecord(_ context.Context, rec *model.NormalizedRecord) (string, error) {
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
	m.events = append(m.events, ev)
	return nil
}

func (m *memStore) RecordSource(_ context.Context, name, label string, _ time.Time) error {
	m.sources[name] = label
	return nil
}

func (m *memStore) TaskExistsBySource(_ context.Context, sourceRef string) (bool, error) {
	for _, t := range m.tasks {
		if t.SourceRef == sourceRef {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) RecordTask(_ context.Context, task model.Task) error {
	m.tasks = append(m.tasks, task)
	return nil
}

func (m *memStore) Migrate(context.Context) error { return nil }
func (m *memStore) Close() error                  { return nil }

// memSecrets is an in-memory secrets.Store.
type memSecrets map[string]string

func (m memSecrets) Get(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

func (m memSecrets) Set(key, value string) { m[key] = value }

func testConfig() *config.Config {
	return &config.Config{
		Store:  config.StoreConfig{Driver: "sqlite", SQLitePath: "contacts.db"},
		Sync:   config.SyncConfig{PageSize: 50, MaxAttempts: 3},
		Dedupe: config.DedupeConfig{SimilarityThreshold: 0.88},
	}
}

func TestRunner_Ingest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "contacts.csv")
	require.NoError(t, os.WriteFile(path,
		[]byte("name,email\nAda Lovelace,ada@acme.com\nGrace Hopper,grace@globex.com\n"), 0o644))

	st := newMemStore()
	r := NewRunner(testConfig(), st, memSecrets{})

	var buf bytes.Buffer
	count, err := r.Ingest(context.Background(), &buf, []string{path})
	require.NoError(t, err)

	assert.Equal(t, 2, count)
	assert.Len(t, strings.Split(strings.TrimSpace(buf.String()), "\n"), 2)
	assert.Equal(t, "ingested file", st.sources["contacts.csv"])
	require.Len(t, st.events, 1)
	assert.Equal(t, model.EventFileIngested, st.events[0].EventType)
}

func TestRunner_SyncUnknownSource(t *testing.T) {
	st := newMemStore()
	r := NewRunner(testConfig(), st, memSecrets{})

	batches, err := r.Sync(context.Background(), []string{"telegraph"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown sync source")
	assert.Empty(t, batches)
	assert.Empty(t, st.sources)
}

func TestRunner_SyncDirectoryRequiresAPIKey(t *testing.T) {
	st := newMemStore()
	r := NewRunner(testConfig(), st, memSecrets{})

	_, err := r.Sync(context.Background(), []string{model.SourceDirectory})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "directory api key")
}

func TestRunner_SyncMailboxRequiresOAuthCredentials(t *testing.T) {
	st := newMemStore()
	sec := memSecrets{"mailbox.client_id": "id-only"}
	r := NewRunner(testConfig(), st, sec)

	_, err := r.Sync(context.Background(), []string{model.SourceMailbox})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mailbox oauth credentials")
}

func TestRunner_SyncCRMRequiresCredentials(t *testing.T) {
	st := newMemStore()
	r := NewRunner(testConfig(), st, memSecrets{})

	_, err := r.Sync(context.Background(), []string{model.SourceCRM})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "salesforce credentials")
}

func TestRunner_ReviewCandidates(t *testing.T) {
	st := newMemStore()
	st.records["a1"] = &model.NormalizedRecord{
		RecordID: "a1", Name: "Ada Lovelace", Organization: "Acme Corp", Email: "ada@acme.com",
	}
	st.records["a2"] = &model.NormalizedRecord{
		RecordID: "a2", Name: "Ada Lovelace", Organization: "ACME CORP.", Email: "a.lovelace@acme.com",
	}
	st.records["b1"] = &model.NormalizedRecord{
		RecordID: "b1", Name: "Grace Hopper", Organization: "Globex", Email: "grace@globex.com",
	}

	r := NewRunner(testConfig(), st, memSecrets{})
	candidates, err := r.ReviewCandidates(context.Background())
	require.NoError(t, err)

	require.Len(t, candidates, 1)
	pair := map[string]bool{candidates[0].A.RecordID: true, candidates[0].B.RecordID: true}
	assert.True(t, pair["a1"] && pair["a2"])
}

func TestRunner_ReviewCandidates_ThresholdFromConfig(t *testing.T) {
	st := newMemStore()
	st.records["a1"] = &model.NormalizedRecord{RecordID: "a1", Name: "Jon Smith", Email: "jon@acme.com"}
	st.records["a2"] = &model.NormalizedRecord{RecordID: "a2", Name: "John Smith", Email: "john@acme.com"}

	cfg := testConfig()
	cfg.Dedupe.SimilarityThreshold = 0.99
	r := NewRunner(cfg, st, memSecrets{})

	candidates, err := r.ReviewCandidates(context.Background())
	require.NoError(t, err)
	assert.Empty(t, candidates)

	cfg.Dedupe.SimilarityThreshold = 0.88
	candidates, err = r.ReviewCandidates(context.Background())
	require.NoError(t, err)
	assert.Len(t, candidates, 1)
}

func TestRunner_SecretOverridesConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Directory.APIKey = "from-config"
	r := NewRunner(cfg, newMemStore(), memSecrets{"directory.api_key": "from-secrets"})

	assert.Equal(t, "from-secrets", r.secret("directory.api_key", cfg.Directory.APIKey))
	assert.Equal(t, "from-config", r.secret("directory.other", cfg.Directory.APIKey))
}

func TestRunner_SyncOptionsFromConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Sync = config.SyncConfig{
		PageSize:       25,
		MaxResults:     100,
		PageDelay:      50 * time.Millisecond,
		MaxAttempts:    5,
		RetryBaseDelay: 10 * time.Millisecond,
		CreateTasks:    true,
		DedupeBySource: true,
	}
	r := NewRunner(cfg, newMemStore(), memSecrets{})

	opts := r.syncOptions(model.SourceCRM)
	assert.Equal(t, 25, opts.PageSize)
	assert.Equal(t, 100, opts.MaxResults)
	assert.Equal(t, 50*time.Millisecond, opts.PageDelay)
	assert.Equal(t, 5, opts.Retry.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, opts.Retry.BaseDelay)
	assert.True(t, opts.CreateTasks)
	assert.True(t, opts.DedupeBySource)
}
