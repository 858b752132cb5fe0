// Package sla derives status signals from the stage timers of a job.
//
// Every function here is pure: the current time is passed in (or read once
// from a Clock by Evaluator) and the timer slice is never modified.
package sla

import (
	"fmt"
	"math"
	"time"

	"techmatch/api/model"
)

type Status string

const (
	StatusNoSLA     Status = "no-sla"
	StatusBreached  Status = "breached"
	StatusCompleted Status = "completed"
	StatusWarning   Status = "warning"
	StatusOnTime    Status = "on-time"
)

// warningFraction is the share of the target left below which an active
// stage is reported as a warning.
const warningFraction = 0.25

// CalculateStatus returns the overall status of a set of timers at now.
// Rules are checked in order: no timers, any open breach, all completed,
// active stage nearly out of time, and finally on-time.
func CalculateStatus(timers []model.SLATimer, now time.Time) Status {
	if len(timers) == 0 {
		return StatusNoSLA
	}

	for i := range timers {
		if timers[i].Breached && timers[i].CompletedAt == nil {
			return StatusBreached
		}
	}

	allCompleted := true
	for i := range timers {
		if timers[i].CompletedAt == nil {
			allCompleted = false
			break
		}
	}
	if allCompleted {
		return StatusCompleted
	}

	if active := ActiveTimer(timers); active != nil {
		fraction := remainingMinutes(active, now) / active.TargetMinutes
		if fraction > 0 && fraction < warningFraction {
			return StatusWarning
		}
	}

	return StatusOnTime
}

// ActiveTimer returns the first timer that is neither completed nor
// breached, or nil.
func ActiveTimer(timers []model.SLATimer) *model.SLATimer {
	for i := range timers {
		if timers[i].IsActive() {
			return &timers[i]
		}
	}
	return nil
}

// TimeRemaining returns the minutes left on t at now. Completed and breached
// timers have none left, and an overdue timer reports 0 rather than a
// negative value.
func TimeRemaining(t model.SLATimer, now time.Time) float64 {
	if t.CompletedAt != nil || t.Breached {
		return 0
	}
	remaining := remainingMinutes(&t, now)
	if math.IsNaN(remaining) || math.IsInf(remaining, 0) {
		return 0
	}
	return math.Max(0, remaining)
}

// FormatMinutes renders a duration in minutes as "45m", "2h" or "1h 30m",
// rounding to the nearest minute first with halves rounded up (-2.5 gives
// "-2m"). Values that are not finite or do not fit an int64 render as "0m".
func FormatMinutes(minutes float64) string {
	if math.IsNaN(minutes) || math.IsInf(minutes, 0) || math.Abs(minutes) >= math.MaxInt64 {
		return "0m"
	}
	m := int64(math.Floor(minutes + 0.5))
	if m < 60 {
		return fmt.Sprintf("%dm", m)
	}
	hours, rest := m/60, m%60
	if rest == 0 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dh %dm", hours, rest)
}

// ElapsedMinutes is the fractional number of minutes between the start of t
// and now. A zero start time yields NaN so that every threshold comparison
// made with it is false.
func ElapsedMinutes(t model.SLATimer, now time.Time) float64 {
	if t.StartedAt.IsZero() {
		return math.NaN()
	}
	return now.Sub(t.StartedAt).Minutes()
}

func remainingMinutes(t *model.SLATimer, now time.Time) float64 {
	return t.TargetMinutes - ElapsedMinutes(*t, now)
}
