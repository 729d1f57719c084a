package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/contacts-cli/internal/dedupe"
	"github.com/sells-group/contacts-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}

	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS records (
	record_id     TEXT PRIMARY KEY,
	source        TEXT NOT NULL,
	dedupe_key    TEXT NOT NULL,
	name          TEXT,
	organization  TEXT,
	role          TEXT,
	email         TEXT,
	phone         TEXT,
	raw           JSONB,
	normalized_at TIMESTAMPTZ NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS events (
	id          TEXT PRIMARY KEY,
	record_id   TEXT,
	event_type  TEXT NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL,
	subject     TEXT,
	notes       TEXT
);

CREATE TABLE IF NOT EXISTS sources (
	name       TEXT PRIMARY KEY,
	label      TEXT,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id         TEXT PRIMARY KEY,
	record_id  TEXT,
	title      TEXT NOT NULL,
	source_ref TEXT,
	due_at     TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_records_dedupe_key ON records(dedupe_key);
CREATE INDEX IF NOT EXISTS idx_records_source ON records(source);
CREATE INDEX IF NOT EXISTS idx_events_record_id ON events(record_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_source_ref ON tasks(source_ref) WHERE source_ref IS NOT NULL AND source_ref != '';
`

// Migrate applies the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

// UpsertRecord inserts or updates a record keyed by record_id. The dedupe
// key is recomputed on every write so key-priority changes propagate.
func (s *PostgresStore) UpsertRecord(ctx context.Context, rec *model.NormalizedRecord) (string, error) {
	raw, err := json.Marshal(rec.Raw)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal raw payload")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO records (record_id, source, dedupe_key, name, organization, role, email, phone, raw, normalized_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (record_id) DO UPDATE SET
			source = EXCLUDED.source,
			dedupe_key = EXCLUDED.dedupe_key,
			name = EXCLUDED.name,
			organization = EXCLUDED.organization,
			role = EXCLUDED.role,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			raw = EXCLUDED.raw,
			normalized_at = EXCLUDED.normalized_at,
			updated_at = now()`,
		rec.RecordID, rec.Source, dedupe.Key(rec), nullable(rec.Name), nullable(rec.Organization),
		nullable(rec.Role), nullable(rec.Email), nullable(rec.Phone), raw, rec.NormalizedAt,
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: upsert record")
	}
	return rec.RecordID, nil
}

// ListRecords returns every stored record ordered by record_id. Raw
// payloads stay in the database.
func (s *PostgresStore) ListRecords(ctx context.Context) ([]*model.NormalizedRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT record_id, source, COALESCE(name, ''), COALESCE(organization, ''),
		       COALESCE(role, ''), COALESCE(email, ''), COALESCE(phone, ''), normalized_at
		FROM records
		ORDER BY record_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list records")
	}
	defer rows.Close()

	var out []*model.NormalizedRecord
	for rows.Next() {
		rec := &model.NormalizedRecord{}
		if err := rows.Scan(&rec.RecordID, &rec.Source, &rec.Name, &rec.Organization,
			&rec.Role, &rec.Email, &rec.Phone, &rec.NormalizedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate records")
	}
	return out, nil
}

// RecordEvent appends a lifecycle event, assigning an id when absent.
func (s *PostgresStore) RecordEvent(ctx context.Context, ev model.Event) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO events (id, record_id, event_type, occurred_at, subject, notes)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.ID, nullable(ev.RecordID), ev.EventType, ev.OccurredAt, nullable(ev.Subject), nullable(ev.Notes),
	)
	if err != nil {
		return eris.Wrap(err, "postgres: record event")
	}
	return nil
}

// RecordSource registers a source; re-registering the same name is a no-op.
func (s *PostgresStore) RecordSource(ctx context.Context, name, label string, createdAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sources (name, label, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO NOTHING`,
		name, nullable(label), createdAt,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: record source")
	}
	return nil
}

// TaskExistsBySource reports whether a task with the given source ref exists.
func (s *PostgresStore) TaskExistsBySource(ctx context.Context, sourceRef string) (bool, error) {
	if sourceRef == "" {
		return false, nil
	}
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM tasks WHERE source_ref = $1)`, sourceRef,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrap(err, "postgres: task exists by source")
	}
	return exists, nil
}

// RecordTask creates a follow-up task. Under DedupeBySource an existing
// task with the same source ref suppresses creation.
func (s *PostgresStore) RecordTask(ctx context.Context, task model.Task) error {
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
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tasks (id, record_id, title, source_ref, due_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (source_ref) WHERE source_ref IS NOT NULL AND source_ref != '' DO NOTHING`,
		task.ID, nullable(task.RecordID), task.Title, nullable(task.SourceRef), nullTime(task.DueAt),
	)
	if err != nil {
		return eris.Wrap(err, "postgres: record task")
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// nullable maps "" to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullTime maps the zero time to SQL NULL.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
