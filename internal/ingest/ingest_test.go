package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contacts-cli/internal/model"
	"github.com/sells-group/contacts-cli/internal/resilience"
)

// fakeRegistrar captures source registrations and events.
type fakeRegistrar struct {
	sources map[string]string
	events  []model.Event
}

func newFakeRegistrar() *fakeRegistrar {
	return &fakeRegistrar{sources: map[string]string{}}
}

func (f *fakeRegistrar) RecordSource(_ context.Context, name, label string, _ time.Time) error {
	f.sources[name] = label
	return nil
}

func (f *fakeRegistrar) RecordEvent(_ context.Context, ev model.Event) error {
	f.events = append(f.events, ev)
	return nil
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func collect(t *testing.T, path string) []model.RawPayload {
	t.Helper()
	payloads, errs, err := IterPayloads(context.Background(), path)
	require.NoError(t, err)

	var out []model.RawPayload
	for p := range payloads {
		out = append(out, p)
	}
	require.NoError(t, <-errs)
	return out
}

func TestIterPayloads_CSV(t *testing.T) {
	path := writeTempFile(t, "contacts.csv",
		"name,email,company\n"+
			"Ada Lovelace,ada@acme.com,Acme Corp\n"+
			"Grace Hopper,grace@globex.com,Globex\n")

	payloads := collect(t, path)
	require.Len(t, payloads, 2)
	assert.Equal(t, "Ada Lovelace", payloads[0]["name"])
	assert.Equal(t, "grace@globex.com", payloads[1]["email"])
}

func TestIterPayloads_TSVAndRaggedRows(t *testing.T) {
	path := writeTempFile(t, "contacts.tsv",
		"name\temail\n"+
			"Ada Lovelace\tada@acme.com\n"+
			"Only Name\n")

	payloads := collect(t, path)
	require.Len(t, payloads, 2)
	assert.Equal(t, "ada@acme.com", payloads[0]["email"])
	// Short rows simply omit the missing columns.
	assert.Equal(t, "Only Name", payloads[1]["name"])
	_, ok := payloads[1]["email"]
	assert.False(t, ok)
}

func TestIterPayloads_JSONArray(t *testing.T) {
	path := writeTempFile(t, "contacts.json",
		`[{"name":"Ada Lovelace"},{"name":"Grace Hopper","email":"grace@globex.com"}]`)

	payloads := collect(t, path)
	require.Len(t, payloads, 2)
	assert.Equal(t, "Grace Hopper", payloads[1]["name"])
}

func TestIterPayloads_JSONObject(t *testing.T) {
	path := writeTempFile(t, "contact.json", `{"name":"Ada Lovelace","email":"ada@acme.com"}`)

	payloads := collect(t, path)
	require.Len(t, payloads, 1)
	assert.Equal(t, "ada@acme.com", payloads[0]["email"])
}

func TestIterPayloads_NDJSONSkipsMalformedLines(t *testing.T) {
	path := writeTempFile(t, "contacts.ndjson",
		`{"name":"Ada Lovelace"}`+"\n"+
			"not json\n"+
			"\n"+
			`{"name":"Grace Hopper"}`+"\n")

	payloads := collect(t, path)
	require.Len(t, payloads, 2)
	assert.Equal(t, "Ada Lovelace", payloads[0]["name"])
	assert.Equal(t, "Grace Hopper", payloads[1]["name"])
}

func TestIterPayloads_UnsupportedExtension(t *testing.T) {
	_, _, err := IterPayloads(context.Background(), "contacts.parquet")
	require.Error(t, err)
	assert.True(t, resilience.IsValidation(err))
}

func TestIngestFile_WritesLinesAndOneEvent(t *testing.T) {
	path := writeTempFile(t, "contacts.csv",
		"name,email\n"+
			"Ada Lovelace,ada@acme.com\n"+
			"Grace Hopper,grace@globex.com\n"+
			"Katherine Johnson,kj@initech.com\n")

	var buf bytes.Buffer
	reg := newFakeRegistrar()
	ing := NewIngestor(&buf, reg)

	count, err := ing.IngestFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	for _, line := range lines {
		var payload map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &payload))
		assert.NotEmpty(t, payload["ingested_at"])
	}

	assert.Equal(t, "ingested file", reg.sources["contacts.csv"])
	require.Len(t, reg.events, 1)
	assert.Equal(t, model.EventFileIngested, reg.events[0].EventType)
	assert.Equal(t, "contacts.csv", reg.events[0].Subject)
	assert.Equal(t, "count=3", reg.events[0].Notes)
}

func TestIngestMany_StopsAtFirstFailure(t *testing.T) {
	good := writeTempFile(t, "a.csv", "name\nAda Lovelace\n")

	var buf bytes.Buffer
	reg := newFakeRegistrar()
	ing := NewIngestor(&buf, reg)

	total, err := ing.IngestMany(context.Background(), []string{good, "b.parquet", good})
	require.Error(t, err)
	assert.Equal(t, 1, total)
	// Only the first file produced an event.
	assert.Len(t, reg.events, 1)
}
