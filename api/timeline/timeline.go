// Package timeline is the append-only log of SLA events for each job.
package timeline

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	ActionStageStarted   = "stage.started"
	ActionStageCompleted = "stage.completed"
	ActionBreached       = "stage.breached"
	ActionStatusChanged  = "status.changed"
	ActionAssigned       = "job.assigned"
)

type Event struct {
	ID        string            `json:"id"`
	JobID     string            `json:"jobId"`
	Timestamp time.Time         `json:"timestamp"`
	Source    string            `json:"source"` // monitor, api, or the acting user's email
	Action    string            `json:"action"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type Store interface {
	Append(ctx context.Context, evt *Event) error
	ListByJob(ctx context.Context, jobID string) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

// Clock stamps events. sla.Evaluator satisfies it.
type Clock interface {
	Now() time.Time
}

// Recorder writes events for one job on behalf of one source.
type Recorder struct {
	JobID  string
	Source string
	store  Store
	now    func() time.Time
}

// NewRecorder returns a Recorder stamping events with clock, or the wall
// clock when clock is nil.
func NewRecorder(store Store, clock Clock, jobID, source string) *Recorder {
	now := time.Now
	if clock != nil {
		now = clock.Now
	}
	return &Recorder{
		JobID:  jobID,
		Source: source,
		store:  store,
		now:    now,
	}
}

func (r *Recorder) Log(ctx context.Context, action, message string, metadata map[string]string) error {
	evt := &Event{
		ID:        uuid.New().String(),
		JobID:     r.JobID,
		Timestamp: r.now(),
		Source:    r.Source,
		Action:    action,
		Message:   message,
		Metadata:  metadata,
	}
	return r.store.Append(ctx, evt)
}

func (r *Recorder) StageStarted(ctx context.Context, stage string, targetMinutes float64) error {
	return r.Log(ctx, ActionStageStarted, stage+" started", map[string]string{
		"stage":         stage,
		"targetMinutes": strconv.FormatFloat(targetMinutes, 'f', -1, 64),
	})
}

func (r *Recorder) StageCompleted(ctx context.Context, stage string, breached bool) error {
	msg := stage + " completed"
	if breached {
		msg += " after breach"
	}
	return r.Log(ctx, ActionStageCompleted, msg, map[string]string{"stage": stage})
}

func (r *Recorder) Breached(ctx context.Context, stage string) error {
	return r.Log(ctx, ActionBreached, stage+" exceeded its target", map[string]string{"stage": stage})
}

func (r *Recorder) StatusChanged(ctx context.Context, from, to string) error {
	msg := "status " + to
	if from != "" {
		msg = "status " + from + " → " + to
	}
	return r.Log(ctx, ActionStatusChanged, msg, map[string]string{"from": from, "to": to})
}

func (r *Recorder) Assigned(ctx context.Context, technicianID string) error {
	return r.Log(ctx, ActionAssigned, "assigned to "+technicianID, map[string]string{"technicianId": technicianID})
}
