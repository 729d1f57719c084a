// Package model defines the canonical contact record and the types shared
// across the ingestion and sync pipeline.
package model

import (
	"time"
)

// RawPayload is an unvalidated key/value mapping as it arrives from a
// provider or an ingested file. Shapes vary per source; the normalizer is
// the only component that interprets it.
type RawPayload map[string]any

// NormalizedRecord is the canonical representation of one contact merged
// from a single raw payload. RecordID is a deterministic hash over
// (source, name, email), so re-ingesting identical input upserts the same
// identity instead of duplicating it.
type NormalizedRecord struct {
	RecordID     string     `json:"record_id" db:"record_id"`
	Source       string     `json:"source" db:"source"`
	NormalizedAt time.Time  `json:"normalized_at" db:"normalized_at"`
	Name         string     `json:"name,omitempty" db:"name"`
	Organization string     `json:"organization,omitempty" db:"organization"`
	Role         string     `json:"role,omitempty" db:"role"`
	Email        string     `json:"email,omitempty" db:"email"`
	Phone        string     `json:"phone,omitempty" db:"phone"`
	Raw          RawPayload `json:"raw,omitempty" db:"raw"`
}

// Identified reports whether the record carries enough identity to be
// worth persisting. Records with neither a name nor an email are dropped
// by the sync adapters.
func (r *NormalizedRecord) Identified() bool {
	return r.Name != "" || r.Email != ""
}

// Event is a lifecycle event emitted by ingestion and sync runs.
type Event struct {
	ID         string    `json:"id" db:"id"`
	RecordID   string    `json:"record_id,omitempty" db:"record_id"`
	EventType  string    `json:"event_type" db:"event_type"`
	OccurredAt time.Time `json:"occurred_at" db:"occurred_at"`
	Subject    string    `json:"subject,omitempty" db:"subject"`
	Notes      string    `json:"notes,omitempty" db:"notes"`
}

// Event types.
const (
	EventFileIngested = "file_ingested"
	EventSyncRun      = "sync_run"
)

// Task is a follow-up item derived from a synced record. SourceRef holds
// the provider-native message id used for duplicate suppression.
type Task struct {
	ID             string    `json:"id" db:"id"`
	RecordID       string    `json:"record_id,omitempty" db:"record_id"`
	Title          string    `json:"title" db:"title"`
	SourceRef      string    `json:"source_ref,omitempty" db:"source_ref"`
	DueAt          time.Time `json:"due_at,omitempty" db:"due_at"`
	DedupeBySource bool      `json:"-" db:"-"`
}

// SyncBatch summarizes one sync run against a provider.
type SyncBatch struct {
	Source     string `json:"source"`
	Fetched    int    `json:"fetched"`
	Normalized int    `json:"normalized"`
	Persisted  int    `json:"persisted"`
	Event      *Event `json:"event,omitempty"`
}

// Known source names.
const (
	SourceDirectory = "directory"
	SourceMailbox   = "mailbox"
	SourceCRM       = "crm"
	SourceFile      = "file"
)
