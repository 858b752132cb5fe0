// Package validate lints stage timer sets. Findings never block evaluation;
// they explain why a set may evaluate differently than expected.
package validate

import (
	"fmt"
	"math"

	"techmatch/api/model"
)

// Timers checks a set of timers, in evaluation order, against policy.
// policy may be nil, in which case stage names are not checked.
func Timers(subject string, timers []model.SLATimer, policy *model.SLAPolicy) *model.ValidationResult {
	r := &model.ValidationResult{Subject: subject, Findings: []model.ValidationFinding{}}

	known := map[model.Stage]bool{}
	if policy != nil {
		for _, s := range policy.Stages {
			known[s] = true
		}
	}

	openStages := map[model.Stage]int{}
	active := 0
	for i, t := range timers {
		field := fmt.Sprintf("timers[%d]", i)

		if math.IsNaN(t.TargetMinutes) || t.TargetMinutes <= 0 {
			r.Add(model.ValidationFinding{
				Check:    "timer.target.positive",
				Severity: model.SeverityError,
				Message:  fmt.Sprintf("%s target must be positive, got %v", t.Stage, t.TargetMinutes),
				Field:    field + ".targetMinutes",
			})
		}

		if t.StartedAt.IsZero() {
			r.Add(model.ValidationFinding{
				Check:    "timer.started.required",
				Severity: model.SeverityWarning,
				Message:  fmt.Sprintf("%s has no start time and never triggers a warning", t.Stage),
				Field:    field + ".startedAt",
			})
		}

		if t.CompletedAt != nil && !t.StartedAt.IsZero() && t.CompletedAt.Before(t.StartedAt) {
			r.Add(model.ValidationFinding{
				Check:    "timer.completed.order",
				Severity: model.SeverityError,
				Message:  fmt.Sprintf("%s completed before it started", t.Stage),
				Field:    field + ".completedAt",
			})
		}

		if policy != nil && !known[t.Stage] {
			r.Add(model.ValidationFinding{
				Check:    "timer.stage.unknown",
				Severity: model.SeverityWarning,
				Message:  fmt.Sprintf("stage %q is not part of the SLA policy", t.Stage),
				Field:    field + ".stage",
			})
		}

		if t.CompletedAt == nil {
			openStages[t.Stage]++
			if openStages[t.Stage] == 2 {
				r.Add(model.ValidationFinding{
					Check:    "timer.stage.duplicate",
					Severity: model.SeverityWarning,
					Message:  fmt.Sprintf("more than one open %s timer", t.Stage),
					Field:    field + ".stage",
				})
			}
		}

		if t.IsActive() {
			active++
			if active == 2 {
				r.Add(model.ValidationFinding{
					Check:    "timer.active.multiple",
					Severity: model.SeverityInfo,
					Message:  "several stages are running; only the first one is used for warnings",
					Field:    field,
				})
			}
		}
	}

	return r
}
