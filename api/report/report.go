// Package report builds the daily SLA rollup on a cron schedule.
package report

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"techmatch/api/model"
	"techmatch/api/sla"
)

type Store interface {
	ListOpenJobIDs(ctx context.Context) ([]string, error)
	ListTimersForJobs(ctx context.Context, jobIDs []string) (map[string][]model.SLATimer, error)
	InsertReport(ctx context.Context, r *model.DailyReport) error
}

// Archiver uploads finished reports. Satisfied by *storage.Client.
type Archiver interface {
	PutJSON(ctx context.Context, bucket, key string, v any) error
}

type Scheduler struct {
	cron      *cron.Cron
	db        Store
	archive   Archiver
	bucket    string
	evaluator *sla.Evaluator
	entry     cron.EntryID
	mu        sync.Mutex
}

// New returns a scheduler; archive may be nil when no object store is configured.
func New(db Store, archive Archiver, bucket string, evaluator *sla.Evaluator) *Scheduler {
	if evaluator == nil {
		evaluator = sla.NewEvaluator(nil)
	}
	return &Scheduler{
		cron:      cron.New(),
		db:        db,
		archive:   archive,
		bucket:    bucket,
		evaluator: evaluator,
	}
}

// Schedule registers the report run at the given cron expression,
// replacing any previous registration.
func (s *Scheduler) Schedule(expr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entry != 0 {
		s.cron.Remove(s.entry)
		s.entry = 0
	}
	id, err := s.cron.AddFunc(expr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if _, err := s.RunNow(ctx); err != nil {
			log.Printf("report: run failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", expr, err)
	}
	s.entry = id
	log.Printf("report: scheduled with '%s'", expr)
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	log.Println("report: scheduler started")
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("report: scheduler stopped")
}

// NextRun is the zero time when nothing is scheduled.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entry == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.entry).Next
}

// RunNow builds, stores and archives a report for the current moment.
func (s *Scheduler) RunNow(ctx context.Context) (*model.DailyReport, error) {
	ids, err := s.db.ListOpenJobIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open jobs: %w", err)
	}
	timers, err := s.db.ListTimersForJobs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list timers: %w", err)
	}

	now := s.evaluator.Now()
	r := Build(ids, timers, now)
	r.ID = uuid.New().String()

	if err := s.db.InsertReport(ctx, r); err != nil {
		return nil, fmt.Errorf("store report: %w", err)
	}

	if s.archive != nil {
		key := fmt.Sprintf("reports/%s.json", r.Date)
		if err := s.archive.PutJSON(ctx, s.bucket, key, r); err != nil {
			log.Printf("report: archive %s: %v", key, err)
		} else {
			log.Printf("report: archived %s/%s", s.bucket, key)
		}
	}

	log.Printf("report: %s jobs=%d breaches=%d", r.Date, r.Jobs, r.Breaches)
	return r, nil
}

// Build rolls up the SLA status of each job at now.
func Build(jobIDs []string, timers map[string][]model.SLATimer, now time.Time) *model.DailyReport {
	r := &model.DailyReport{
		Date:      now.UTC().Format("2006-01-02"),
		Jobs:      len(jobIDs),
		Counts:    make(map[string]int),
		CreatedAt: now,
	}
	for _, id := range jobIDs {
		status := sla.CalculateStatus(timers[id], now)
		r.Counts[string(status)]++
		for _, t := range timers[id] {
			if t.Breached {
				r.Breaches++
			}
		}
	}
	return r
}
