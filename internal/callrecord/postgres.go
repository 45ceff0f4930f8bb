package callrecord

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgxDB is the part of *pgxpool.Pool the store uses.
type pgxDB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// PostgresStore persists call records and taken messages in PostgreSQL.
type PostgresStore struct {
	db pgxDB
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{db: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS call_records (
			id TEXT PRIMARY KEY,
			stream_sid TEXT NOT NULL,
			call_sid TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ NOT NULL,
			duration_seconds DOUBLE PRECISION NOT NULL,
			end_reason TEXT NOT NULL,
			transcript JSONB NOT NULL DEFAULT '[]'::jsonb
		);`,
		`CREATE TABLE IF NOT EXISTS call_messages (
			id BIGSERIAL PRIMARY KEY,
			record_id TEXT NOT NULL REFERENCES call_records(id) ON DELETE CASCADE,
			caller_name TEXT NOT NULL,
			caller_company TEXT NOT NULL DEFAULT '',
			callback_number TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL,
			urgency TEXT NOT NULL DEFAULT '',
			taken_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_call_records_started ON call_records (started_at);`,
		`CREATE INDEX IF NOT EXISTS idx_call_messages_record ON call_messages (record_id);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, record Record) (string, error) {
	record = withDefaults(record)
	transcript := record.Transcript
	if transcript == nil {
		transcript = []TranscriptLine{}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin save record: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO call_records (id, stream_sid, call_sid, started_at, ended_at, duration_seconds, end_reason, transcript)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		record.ID,
		record.StreamID,
		record.CallID,
		record.StartedAt,
		record.EndedAt,
		record.DurationSeconds,
		string(record.EndReason),
		transcript,
	)
	if err != nil {
		return "", fmt.Errorf("save record: %w", err)
	}

	if len(record.Messages) > 0 {
		batch := &pgx.Batch{}
		for _, m := range record.Messages {
			batch.Queue(
				`INSERT INTO call_messages (record_id, caller_name, caller_company, callback_number, body, urgency, taken_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				record.ID, m.CallerName, m.CallerCompany, m.CallbackNumber, m.Body, m.Urgency, m.TakenAt,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return "", fmt.Errorf("save messages: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit record: %w", err)
	}
	return record.ID, nil
}

// Recent returns up to limit records in chronological order, without messages.
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, stream_sid, call_sid, started_at, ended_at, duration_seconds, end_reason, transcript
		 FROM call_records ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent records: %w", err)
	}
	defer rows.Close()

	items := make([]Record, 0, limit)
	for rows.Next() {
		var r Record
		var reason string
		if err := rows.Scan(&r.ID, &r.StreamID, &r.CallID, &r.StartedAt, &r.EndedAt, &r.DurationSeconds, &reason, &r.Transcript); err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}
		r.EndReason = EndReason(reason)
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate record rows: %w", err)
	}

	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items, nil
}

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}
