package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"techmatch/api/model"
)

var ErrNotFound = errors.New("not found")

type DB struct {
	Pool *pgxpool.Pool
}

func Connect(databaseURL string) (*DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &DB{Pool: pool}, nil
}

func (db *DB) Close() {
	db.Pool.Close()
}

func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

func Migrate(db *DB) error {
	ctx := context.Background()
	_, err := db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS jobs (
			id            TEXT PRIMARY KEY,
			title         TEXT NOT NULL,
			customer      TEXT NOT NULL DEFAULT '',
			address       TEXT NOT NULL DEFAULT '',
			priority      TEXT NOT NULL DEFAULT 'standard',
			status        TEXT NOT NULL DEFAULT 'open',
			technician_id TEXT NOT NULL DEFAULT '',
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status, created_at DESC);

		CREATE TABLE IF NOT EXISTS sla_timers (
			id             TEXT PRIMARY KEY,
			job_id         TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
			stage          TEXT NOT NULL,
			target_minutes DOUBLE PRECISION NOT NULL,
			started_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			completed_at   TIMESTAMPTZ,
			breached       BOOLEAN NOT NULL DEFAULT FALSE
		);
		CREATE INDEX IF NOT EXISTS idx_sla_timers_job ON sla_timers(job_id, started_at);
		CREATE INDEX IF NOT EXISTS idx_sla_timers_open
			ON sla_timers(started_at) WHERE completed_at IS NULL AND NOT breached;

		CREATE TABLE IF NOT EXISTS sla_events (
			id        TEXT PRIMARY KEY,
			job_id    TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT now(),
			source    TEXT NOT NULL DEFAULT '',
			action    TEXT NOT NULL DEFAULT '',
			message   TEXT NOT NULL DEFAULT '',
			metadata  JSONB NOT NULL DEFAULT '{}'
		);
		CREATE INDEX IF NOT EXISTS idx_sla_events_job ON sla_events(job_id, timestamp);
		CREATE INDEX IF NOT EXISTS idx_sla_events_time ON sla_events(timestamp DESC);

		CREATE TABLE IF NOT EXISTS sla_reports (
			id         TEXT PRIMARY KEY,
			day        TEXT NOT NULL,
			jobs       INTEGER NOT NULL DEFAULT 0,
			breaches   INTEGER NOT NULL DEFAULT 0,
			counts     JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_sla_reports_created ON sla_reports(created_at DESC);
	`)
	return err
}

// --- Jobs ---

const jobColumns = `id, title, customer, address, priority, status, technician_id, created_at, updated_at`

func scanJob(row pgx.Row) (*model.Job, error) {
	var j model.Job
	if err := row.Scan(&j.ID, &j.Title, &j.Customer, &j.Address, &j.Priority, &j.Status, &j.TechnicianID, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	return &j, nil
}

func (db *DB) InsertJob(ctx context.Context, j *model.Job) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO jobs (`+jobColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		j.ID, j.Title, j.Customer, j.Address, j.Priority, j.Status, j.TechnicianID, j.CreatedAt, j.UpdatedAt,
	)
	return err
}

func (db *DB) GetJob(ctx context.Context, id string) (*model.Job, error) {
	j, err := scanJob(db.Pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return j, nil
}

type JobFilter struct {
	Status string
	Limit  int
	Offset int
}

func (db *DB) ListJobs(ctx context.Context, f JobFilter) ([]model.Job, int, error) {
	where := ""
	args := []interface{}{}
	argN := 1

	if f.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", argN)
		args = append(args, f.Status)
		argN++
	}

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var total int
	if err := db.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM jobs WHERE 1=1"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	querySQL := fmt.Sprintf(
		"SELECT %s FROM jobs WHERE 1=1%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		jobColumns, where, argN, argN+1,
	)
	args = append(args, limit, f.Offset)

	rows, err := db.Pool.Query(ctx, querySQL, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, total, rows.Err()
}

// AssignTechnician sets only the technician so that it never races a
// concurrent status transition.
func (db *DB) AssignTechnician(ctx context.Context, id, technicianID string) error {
	tag, err := db.Pool.Exec(ctx,
		`UPDATE jobs SET technician_id = $1, updated_at = now() WHERE id = $2`,
		technicianID, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TransitionJob moves a job from one status to another. It reports false,
// without error, when the job is no longer in status from.
func (db *DB) TransitionJob(ctx context.Context, id string, from, to model.JobStatus) (bool, error) {
	tag, err := db.Pool.Exec(ctx,
		`UPDATE jobs SET status = $1, updated_at = now() WHERE id = $2 AND status = $3`,
		to, id, from,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (db *DB) ListOpenJobIDs(ctx context.Context) ([]string, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id FROM jobs WHERE status IN ('open', 'in_progress') ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- SLA Timers ---

const timerColumns = `id, job_id, stage, target_minutes, started_at, completed_at, breached`

func scanTimers(rows pgx.Rows) ([]model.SLATimer, error) {
	defer rows.Close()
	var timers []model.SLATimer
	for rows.Next() {
		var t model.SLATimer
		if err := rows.Scan(&t.ID, &t.JobID, &t.Stage, &t.TargetMinutes, &t.StartedAt, &t.CompletedAt, &t.Breached); err != nil {
			return nil, err
		}
		timers = append(timers, t)
	}
	return timers, rows.Err()
}

func (db *DB) InsertTimer(ctx context.Context, t *model.SLATimer) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO sla_timers (`+timerColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.JobID, t.Stage, t.TargetMinutes, t.StartedAt, t.CompletedAt, t.Breached,
	)
	return err
}

func (db *DB) ListTimers(ctx context.Context, jobID string) ([]model.SLATimer, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+timerColumns+` FROM sla_timers WHERE job_id = $1 ORDER BY started_at, id`, jobID)
	if err != nil {
		return nil, err
	}
	return scanTimers(rows)
}

func (db *DB) ListTimersForJobs(ctx context.Context, jobIDs []string) (map[string][]model.SLATimer, error) {
	out := make(map[string][]model.SLATimer, len(jobIDs))
	if len(jobIDs) == 0 {
		return out, nil
	}
	rows, err := db.Pool.Query(ctx,
		`SELECT `+timerColumns+` FROM sla_timers WHERE job_id = ANY($1) ORDER BY started_at, id`, jobIDs)
	if err != nil {
		return nil, err
	}
	timers, err := scanTimers(rows)
	if err != nil {
		return nil, err
	}
	for _, t := range timers {
		out[t.JobID] = append(out[t.JobID], t)
	}
	return out, nil
}

// CompleteTimer stamps the open timer of a stage as completed. A breached
// timer can still be completed; completion takes priority when evaluating.
func (db *DB) CompleteTimer(ctx context.Context, jobID string, stage model.Stage, at time.Time) (*model.SLATimer, error) {
	rows, err := db.Pool.Query(ctx,
		`UPDATE sla_timers SET completed_at = $1
		 WHERE job_id = $2 AND stage = $3 AND completed_at IS NULL
		 RETURNING `+timerColumns,
		at, jobID, stage,
	)
	if err != nil {
		return nil, err
	}
	timers, err := scanTimers(rows)
	if err != nil {
		return nil, err
	}
	if len(timers) == 0 {
		return nil, ErrNotFound
	}
	return &timers[0], nil
}

// MarkOverdueBreached flags every open timer whose target has elapsed by now
// and returns the timers it changed.
func (db *DB) MarkOverdueBreached(ctx context.Context, now time.Time) ([]model.SLATimer, error) {
	rows, err := db.Pool.Query(ctx,
		`UPDATE sla_timers SET breached = TRUE
		 WHERE completed_at IS NULL AND NOT breached
		   AND started_at + make_interval(secs => target_minutes * 60) < $1
		 RETURNING `+timerColumns,
		now,
	)
	if err != nil {
		return nil, err
	}
	return scanTimers(rows)
}

// --- Reports ---

func (db *DB) InsertReport(ctx context.Context, r *model.DailyReport) error {
	counts, _ := json.Marshal(r.Counts)
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO sla_reports (id, day, jobs, breaches, counts, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, r.Date, r.Jobs, r.Breaches, counts, r.CreatedAt,
	)
	return err
}

func (db *DB) LatestReport(ctx context.Context) (*model.DailyReport, error) {
	var r model.DailyReport
	var counts []byte
	err := db.Pool.QueryRow(ctx,
		`SELECT id, day, jobs, breaches, counts, created_at
		 FROM sla_reports ORDER BY created_at DESC LIMIT 1`,
	).Scan(&r.ID, &r.Date, &r.Jobs, &r.Breaches, &counts, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	json.Unmarshal(counts, &r.Counts)
	return &r, nil
}
