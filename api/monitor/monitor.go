package monitor

import (
	"context"
	"log"
	"sync"
	"time"

	"techmatch/api/hub"
	"techmatch/api/model"
	"techmatch/api/sla"
	"techmatch/api/timeline"
)

// Store is the subset of the job store the monitor reads and writes.
type Store interface {
	ListOpenJobIDs(ctx context.Context) ([]string, error)
	ListTimersForJobs(ctx context.Context, jobIDs []string) (map[string][]model.SLATimer, error)
	MarkOverdueBreached(ctx context.Context, now time.Time) ([]model.SLATimer, error)
}

// Broadcaster is satisfied by *hub.Hub.
type Broadcaster interface {
	Broadcast(evt hub.Event)
}

// Monitor periodically flags overdue stage timers as breached and publishes
// SLA status transitions of open jobs.
type Monitor struct {
	DB        Store
	WS        Broadcaster
	Events    timeline.Store
	Evaluator *sla.Evaluator
	Interval  time.Duration

	// MarkBreaches makes the monitor the writer of the breached flag.
	// When false the flag is left to whatever else updates sla_timers.
	MarkBreaches bool

	mu   sync.Mutex
	last map[string]sla.Status
}

// Run starts the polling loop. It blocks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	if m.Interval == 0 {
		m.Interval = 30 * time.Second
	}

	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()

	m.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick performs one sweep and evaluation pass.
func (m *Monitor) Tick(ctx context.Context) {
	if m.Evaluator == nil {
		m.Evaluator = sla.NewEvaluator(nil)
	}

	if m.MarkBreaches {
		m.sweepBreaches(ctx)
	}

	ids, err := m.DB.ListOpenJobIDs(ctx)
	if err != nil {
		log.Printf("monitor: list open jobs: %v", err)
		return
	}
	timers, err := m.DB.ListTimersForJobs(ctx, ids)
	if err != nil {
		log.Printf("monitor: list timers: %v", err)
		return
	}

	now := m.Evaluator.Now()
	current := make(map[string]sla.Status, len(ids))
	for _, id := range ids {
		summary := sla.Summarize(timers[id], now)
		current[id] = summary.Status
		m.observe(ctx, id, summary)
	}

	m.mu.Lock()
	for id := range m.last {
		if _, ok := current[id]; !ok {
			delete(m.last, id)
		}
	}
	m.mu.Unlock()
}

func (m *Monitor) sweepBreaches(ctx context.Context) {
	changed, err := m.DB.MarkOverdueBreached(ctx, m.Evaluator.Now())
	if err != nil {
		log.Printf("monitor: mark breaches: %v", err)
		return
	}
	for _, t := range changed {
		log.Printf("monitor: job %s stage %s breached (target %s)", t.JobID, t.Stage, sla.FormatMinutes(t.TargetMinutes))
		if m.Events != nil {
			rec := timeline.NewRecorder(m.Events, m.Evaluator, t.JobID, "monitor")
			if err := rec.Breached(ctx, string(t.Stage)); err != nil {
				log.Printf("monitor: record breach for %s: %v", t.JobID, err)
			}
		}
		if m.WS != nil {
			m.WS.Broadcast(hub.Event{
				Type:  hub.TypeSLABreach,
				JobID: t.JobID,
				Payload: map[string]interface{}{
					"stage":         t.Stage,
					"targetMinutes": t.TargetMinutes,
					"startedAt":     t.StartedAt.Format(time.RFC3339),
				},
			})
		}
	}
}

func (m *Monitor) observe(ctx context.Context, jobID string, s sla.Summary) {
	m.mu.Lock()
	if m.last == nil {
		m.last = make(map[string]sla.Status)
	}
	prev, seen := m.last[jobID]
	m.last[jobID] = s.Status
	m.mu.Unlock()

	if seen && prev == s.Status {
		return
	}

	// First observations are broadcast but not written to the timeline.
	if seen && m.Events != nil {
		rec := timeline.NewRecorder(m.Events, m.Evaluator, jobID, "monitor")
		if err := rec.StatusChanged(ctx, string(prev), string(s.Status)); err != nil {
			log.Printf("monitor: record status for %s: %v", jobID, err)
		}
	}
	if m.WS != nil {
		m.WS.Broadcast(hub.Event{
			Type:    hub.TypeSLAStatus,
			JobID:   jobID,
			Payload: s,
		})
	}
}

// Snapshot returns the last observed status of every open job.
func (m *Monitor) Snapshot() map[string]sla.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]sla.Status, len(m.last))
	for k, v := range m.last {
		out[k] = v
	}
	return out
}
