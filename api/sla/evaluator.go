package sla

import (
	"time"

	"techmatch/api/model"
)

// Clock supplies the evaluation time.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock time.Time

func (c FixedClock) Now() time.Time { return time.Time(c) }

// Evaluator binds the package functions to a Clock. Each method reads the
// clock exactly once. It holds no mutable state and is safe for concurrent use.
type Evaluator struct {
	clock Clock
}

// NewEvaluator returns an Evaluator reading time from clock, or from the
// wall clock when clock is nil.
func NewEvaluator(clock Clock) *Evaluator {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Evaluator{clock: clock}
}

func (e *Evaluator) Now() time.Time { return e.clock.Now() }

func (e *Evaluator) CalculateStatus(timers []model.SLATimer) Status {
	return CalculateStatus(timers, e.clock.Now())
}

func (e *Evaluator) TimeRemaining(t model.SLATimer) float64 {
	return TimeRemaining(t, e.clock.Now())
}

func (e *Evaluator) Summarize(timers []model.SLATimer) Summary {
	return Summarize(timers, e.clock.Now())
}

// Summary is the UI-facing view of a job's timers at one instant.
type Summary struct {
	Status           Status      `json:"status"`
	ActiveStage      model.Stage `json:"activeStage,omitempty"`
	TargetMinutes    float64     `json:"targetMinutes,omitempty"`
	RemainingMinutes float64     `json:"remainingMinutes"`
	Remaining        string      `json:"remaining,omitempty"`
	EvaluatedAt      time.Time   `json:"evaluatedAt"`
}

// Summarize computes the status and, when a stage is active, its remaining
// budget, all against the same now.
func Summarize(timers []model.SLATimer, now time.Time) Summary {
	s := Summary{
		Status:      CalculateStatus(timers, now),
		EvaluatedAt: now,
	}
	if active := ActiveTimer(timers); active != nil {
		s.ActiveStage = active.Stage
		s.TargetMinutes = active.TargetMinutes
		s.RemainingMinutes = TimeRemaining(*active, now)
		s.Remaining = FormatMinutes(s.RemainingMinutes)
	}
	return s
}
