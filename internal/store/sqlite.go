package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/contacts-cli/internal/dedupe"
	"github.com/sells-group/contacts-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Used for local
// single-writer address books and tests.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given DSN and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS records (
	record_id     TEXT PRIMARY KEY,
	source        TEXT NOT NULL,
	dedupe_key    TEXT NOT NULL,
	name          TEXT,
	organization  TEXT,
	role          TEXT,
	email         TEXT,
	phone         TEXT,
	raw           TEXT,
	normalized_at DATETIME NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS events (
	id          TEXT PRIMARY KEY,
	record_id   TEXT,
	event_type  TEXT NOT NULL,
	occurred_at DATETIME NOT NULL,
	subject     TEXT,
	notes       TEXT
);

CREATE TABLE IF NOT EXISTS sources (
	name       TEXT PRIMARY KEY,
	label      TEXT,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id         TEXT PRIMARY KEY,
	record_id  TEXT,
	title      TEXT NOT NULL,
	source_ref TEXT,
	due_at     DATETIME,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_records_dedupe_key ON records(dedupe_key);
CREATE INDEX IF NOT EXISTS idx_records_source ON records(source);
CREATE INDEX IF NOT EXISTS idx_events_record_id ON events(record_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_source_ref ON tasks(source_ref) WHERE source_ref IS NOT NULL AND source_ref != '';
`

// Migrate applies the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}
	return nil
}

// UpsertRecord inserts or updates a record keyed by record_id.
func (s *SQLiteStore) UpsertRecord(ctx context.Context, rec *model.NormalizedRecord) (string, error) {
	raw, err := json.Marshal(rec.Raw)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal raw payload")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (record_id, source, dedupe_key, name, organization, role, email, phone, raw, normalized_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (record_id) DO UPDATE SET
			source = excluded.source,
			dedupe_key = excluded.dedupe_key,
			name = excluded.name,
			organization = excluded.organization,
			role = excluded.role,
			email = excluded.email,
			phone = excluded.phone,
			raw = excluded.raw,
			normalized_at = excluded.normalized_at,
			updated_at = datetime('now')`,
		rec.RecordID, rec.Source, dedupe.Key(rec), nullable(rec.Name), nullable(rec.Organization),
		nullable(rec.Role), nullable(rec.Email), nullable(rec.Phone), string(raw), rec.NormalizedAt.UTC(),
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: upsert record")
	}
	return rec.RecordID, nil
}

// ListRecords returns every stored record ordered by record_id. Raw
// payloads stay in the database.
func (s *SQLiteStore) ListRecords(ctx context.Context) ([]*model.NormalizedRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT record_id, source, COALESCE(name, ''), COALESCE(organization, ''),
		       COALESCE(role, ''), COALESCE(email, ''), COALESCE(phone, ''), normalized_at
		FROM records
		ORDER BY record_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list records")
	}
	defer rows.Close() //nolint:errcheck

	var out []*model.NormalizedRecord
	for rows.Next() {
		rec := &model.NormalizedRecord{}
		if err := rows.Scan(&rec.RecordID, &rec.Source, &rec.Name, &rec.Organization,
			&rec.Role, &rec.Email, &rec.Phone, &rec.NormalizedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate records")
	}
	return out, nil
}

// RecordEvent appends a lifecycle event, assigning an id when absent.
func (s *SQLiteStore) RecordEvent(ctx context.Context, ev model.Event) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, record_id, event_type, occurred_at, subject, notes)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, nullable(ev.RecordID), ev.EventType, ev.OccurredAt.UTC(), nullable(ev.Subject), nullable(ev.Notes),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: record event")
	}
	return nil
}

// RecordSource registers a source; re-registering the same name is a no-op.
func (s *SQLiteStore) RecordSource(ctx context.Context, name, label string, createdAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sources (name, label, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (name) DO NOTHING`,
		name, nullable(label), createdAt.UTC(),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: record source")
	}
	return nil
}

// TaskExistsBySource reports whether a task with the given source ref exists.
func (s *SQLiteStore) TaskExistsBySource(ctx context.Context, sourceRef string) (bool, error) {
	if sourceRef == "" {
		return false, nil
	}
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM tasks WHERE source_ref = ?)`, sourceRef,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: task exists by source")
	}
	return exists == 1, nil
}

// RecordTask creates a follow-up task. Under DedupeBySource an existing
// task with the same source ref suppresses creation.
func (s *SQLiteStore) RecordTask(ctx context.Context, task model.Task) error {
	if task.DedupeBySource && task.SourceRef != "" {
		exists, err := s.TaskExistsBySource(ctx, task.SourceRef)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
	}
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, record_id, title, source_ref, due_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (source_ref) WHERE source_ref IS NOT NULL AND source_ref != '' DO NOTHING`,
		task.ID, nullable(task.RecordID), task.Title, nullable(task.SourceRef), sqliteTime(task.DueAt),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: record task")
	}
	return nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func sqliteTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
