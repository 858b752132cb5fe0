package timeline

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Append(ctx context.Context, evt *Event) error {
	meta, _ := json.Marshal(evt.Metadata)
	if meta == nil || string(meta) == "null" {
		meta = []byte("{}")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sla_events (id, job_id, timestamp, source, action, message, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		evt.ID, evt.JobID, evt.Timestamp, evt.Source, evt.Action, evt.Message, meta,
	)
	return err
}

func (s *PostgresStore) ListByJob(ctx context.Context, jobID string) ([]Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, job_id, timestamp, source, action, message, metadata
		 FROM sla_events WHERE job_id = $1 ORDER BY timestamp ASC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, job_id, timestamp, source, action, message, metadata
		 FROM sla_events ORDER BY timestamp DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

type scannable interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanEvents(rows scannable) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var evt Event
		var meta []byte
		if err := rows.Scan(&evt.ID, &evt.JobID, &evt.Timestamp, &evt.Source, &evt.Action, &evt.Message, &meta); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			json.Unmarshal(meta, &evt.Metadata)
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}
