package model

import "time"

type Stage string

const (
	StageDispatch   Stage = "dispatch"
	StageArrival    Stage = "arrival"
	StageCompletion Stage = "completion"
)

// SLATimer tracks the time budget of one stage of a job. Rows are written by
// the workflow side (job handlers and the breach sweeper); evaluation only reads.
type SLATimer struct {
	ID            string     `json:"id" db:"id"`
	JobID         string     `json:"jobId" db:"job_id"`
	Stage         Stage      `json:"stage" db:"stage"`
	TargetMinutes float64    `json:"targetMinutes" db:"target_minutes"`
	StartedAt     time.Time  `json:"startedAt" db:"started_at"`
	CompletedAt   *time.Time `json:"completedAt,omitempty" db:"completed_at"`
	Breached      bool       `json:"breached" db:"breached"`
}

func (t *SLATimer) IsCompleted() bool { return t.CompletedAt != nil }

// IsActive reports whether the stage is still running inside its budget
// as far as the stored flags are concerned.
func (t *SLATimer) IsActive() bool { return t.CompletedAt == nil && !t.Breached }
