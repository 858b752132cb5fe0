package validate

import (
	"math"
	"testing"
	"time"

	"techmatch/api/model"
	"techmatch/api/sla"
)

var start = time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

func validTimers() []model.SLATimer {
	done := start.Add(20 * time.Minute)
	return []model.SLATimer{
		{Stage: model.StageDispatch, TargetMinutes: 30, StartedAt: start, CompletedAt: &done},
		{Stage: model.StageArrival, TargetMinutes: 120, StartedAt: done},
	}
}

func TestValidTimers(t *testing.T) {
	r := Timers("job-1", validTimers(), model.DefaultSLAPolicy())
	if !r.Valid() || len(r.Findings) != 0 {
		t.Errorf("expected no findings, got %+v", r.Findings)
	}
	if r.Subject != "job-1" {
		t.Errorf("Subject = %q", r.Subject)
	}
}

func TestEmptyTimers(t *testing.T) {
	r := Timers("", nil, nil)
	if !r.Valid() || r.Findings == nil {
		t.Errorf("result = %+v", r)
	}
}

func TestFindings(t *testing.T) {
	before := start.Add(-time.Minute)
	tests := []struct {
		name     string
		mutate   func([]model.SLATimer) []model.SLATimer
		check    string
		severity model.Severity
	}{
		{"zero target", func(ts []model.SLATimer) []model.SLATimer { ts[1].TargetMinutes = 0; return ts }, "timer.target.positive", model.SeverityError},
		{"nan target", func(ts []model.SLATimer) []model.SLATimer { ts[1].TargetMinutes = math.NaN(); return ts }, "timer.target.positive", model.SeverityError},
		{"no start", func(ts []model.SLATimer) []model.SLATimer { ts[1].StartedAt = time.Time{}; return ts }, "timer.started.required", model.SeverityWarning},
		{"completed before start", func(ts []model.SLATimer) []model.SLATimer { ts[0].CompletedAt = &before; return ts }, "timer.completed.order", model.SeverityError},
		{"unknown stage", func(ts []model.SLATimer) []model.SLATimer { ts[1].Stage = "teatime"; return ts }, "timer.stage.unknown", model.SeverityWarning},
		{"duplicate open stage", func(ts []model.SLATimer) []model.SLATimer {
			return append(ts, model.SLATimer{Stage: model.StageArrival, TargetMinutes: 120, StartedAt: start, Breached: true})
		}, "timer.stage.duplicate", model.SeverityWarning},
		{"several active", func(ts []model.SLATimer) []model.SLATimer {
			return append(ts, model.SLATimer{Stage: model.StageCompletion, TargetMinutes: 240, StartedAt: start})
		}, "timer.active.multiple", model.SeverityInfo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Timers("", tt.mutate(validTimers()), model.DefaultSLAPolicy())
			assertHasCheck(t, r, tt.check, tt.severity)
		})
	}
}

func TestNilPolicySkipsStageNames(t *testing.T) {
	ts := validTimers()
	ts[1].Stage = "teatime"
	r := Timers("", ts, nil)
	if len(r.Findings) != 0 {
		t.Errorf("unexpected findings %+v", r.Findings)
	}
}

func assertHasCheck(t *testing.T, r *model.ValidationResult, check string, severity model.Severity) {
	t.Helper()
	for _, f := range r.Findings {
		if f.Check == check {
			if f.Severity != severity {
				t.Errorf("%s severity = %s, want %s", check, f.Severity, severity)
			}
			return
		}
	}
	t.Errorf("expected finding %q, got %+v", check, r.Findings)
}

func TestMissingStartMessageHoldsWithBreach(t *testing.T) {
	ts := []model.SLATimer{
		{Stage: model.StageDispatch, TargetMinutes: 30, StartedAt: start, Breached: true},
		{Stage: model.StageArrival, TargetMinutes: 120},
	}
	if got := sla.CalculateStatus(ts, start.Add(time.Hour)); got != sla.StatusBreached {
		t.Fatalf("status = %s, want breached", got)
	}

	r := Timers("", ts, model.DefaultSLAPolicy())
	for _, f := range r.Findings {
		if f.Check == "timer.started.required" {
			if want := "arrival has no start time and never triggers a warning"; f.Message != want {
				t.Errorf("message = %q, want %q", f.Message, want)
			}
			return
		}
	}
	t.Errorf("no timer.started.required finding in %+v", r.Findings)
}
