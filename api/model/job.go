package model

import "time"

type JobStatus string

const (
	JobOpen       JobStatus = "open"
	JobInProgress JobStatus = "in_progress"
	JobDone       JobStatus = "done"
	JobCancelled  JobStatus = "cancelled"
)

func (s JobStatus) IsTerminal() bool {
	return s == JobDone || s == JobCancelled
}

type Job struct {
	ID           string    `json:"id" db:"id"`
	Title        string    `json:"title" db:"title"`
	Customer     string    `json:"customer" db:"customer"`
	Address      string    `json:"address" db:"address"`
	Priority     string    `json:"priority" db:"priority"`
	Status       JobStatus `json:"status" db:"status"`
	TechnicianID string    `json:"technicianId,omitempty" db:"technician_id"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// DailyReport is the per-day rollup of SLA status across open jobs.
type DailyReport struct {
	ID        string         `json:"id"`
	Date      string         `json:"date"` // YYYY-MM-DD
	Jobs      int            `json:"jobs"`
	Breaches  int            `json:"breaches"`
	Counts    map[string]int `json:"counts"`
	CreatedAt time.Time      `json:"createdAt"`
}
