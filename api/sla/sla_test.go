package sla

import (
	"math"
	"testing"
	"time"

	"techmatch/api/model"
)

var now = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func ago(minutes float64) time.Time {
	return now.Add(-time.Duration(minutes * float64(time.Minute)))
}

func agoPtr(minutes float64) *time.Time {
	t := ago(minutes)
	return &t
}

func timer(stage model.Stage, target, startedMinutesAgo float64) model.SLATimer {
	return model.SLATimer{
		ID:            string(stage),
		JobID:         "job-1",
		Stage:         stage,
		TargetMinutes: target,
		StartedAt:     ago(startedMinutesAgo),
	}
}

func TestCalculateStatus(t *testing.T) {
	completed := func(tm model.SLATimer, minutesAgo float64) model.SLATimer {
		tm.CompletedAt = agoPtr(minutesAgo)
		return tm
	}
	breached := func(tm model.SLATimer) model.SLATimer {
		tm.Breached = true
		return tm
	}

	tests := []struct {
		name   string
		timers []model.SLATimer
		want   Status
	}{
		{"empty", nil, StatusNoSLA},
		{"empty slice", []model.SLATimer{}, StatusNoSLA},
		{
			"open breach",
			[]model.SLATimer{breached(timer(model.StageDispatch, 30, 35))},
			StatusBreached,
		},
		{
			"completion overrides breach flag",
			[]model.SLATimer{completed(breached(timer(model.StageDispatch, 30, 35)), 5)},
			StatusCompleted,
		},
		{
			"breach wins over other timers",
			[]model.SLATimer{
				completed(timer(model.StageDispatch, 30, 200), 180),
				timer(model.StageArrival, 100, 10),
				breached(timer(model.StageCompletion, 60, 90)),
			},
			StatusBreached,
		},
		{
			"all completed",
			[]model.SLATimer{
				completed(timer(model.StageDispatch, 30, 200), 180),
				completed(timer(model.StageArrival, 100, 180), 100),
			},
			StatusCompleted,
		},
		{
			"active at 20 percent remaining",
			[]model.SLATimer{timer(model.StageDispatch, 100, 80)},
			StatusWarning,
		},
		{
			"active at 50 percent remaining",
			[]model.SLATimer{timer(model.StageDispatch, 100, 50)},
			StatusOnTime,
		},
		{
			"exactly 25 percent remaining is on-time",
			[]model.SLATimer{timer(model.StageDispatch, 100, 75)},
			StatusOnTime,
		},
		{
			"overdue but not flagged is on-time",
			[]model.SLATimer{timer(model.StageDispatch, 60, 90)},
			StatusOnTime,
		},
		{
			"exactly at deadline is on-time",
			[]model.SLATimer{timer(model.StageDispatch, 60, 60)},
			StatusOnTime,
		},
		{
			"completed stage followed by nearly expired stage",
			[]model.SLATimer{
				completed(timer(model.StageDispatch, 30, 120), 100),
				timer(model.StageArrival, 120, 100),
			},
			StatusWarning,
		},
		{
			// Warnings come from ActiveTimer, the first active timer in
			// input order; the later timer at 90% is ignored.
			"only first active timer is considered",
			[]model.SLATimer{
				timer(model.StageDispatch, 100, 10),
				timer(model.StageArrival, 100, 90),
			},
			StatusOnTime,
		},
		{
			"zero start time falls through to on-time",
			[]model.SLATimer{{ID: "x", Stage: model.StageDispatch, TargetMinutes: 30}},
			StatusOnTime,
		},
		{
			"zero target falls through to on-time",
			[]model.SLATimer{timer(model.StageDispatch, 0, 10)},
			StatusOnTime,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CalculateStatus(tt.timers, now); got != tt.want {
				t.Errorf("CalculateStatus = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCalculateStatus_DoesNotMutate(t *testing.T) {
	timers := []model.SLATimer{
		timer(model.StageDispatch, 100, 80),
		timer(model.StageArrival, 100, 0),
	}
	before := make([]model.SLATimer, len(timers))
	copy(before, timers)

	CalculateStatus(timers, now)
	Summarize(timers, now)

	for i := range timers {
		if timers[i] != before[i] {
			t.Errorf("timer %d changed: %+v -> %+v", i, before[i], timers[i])
		}
	}
}

func TestCalculateStatus_Idempotent(t *testing.T) {
	timers := []model.SLATimer{timer(model.StageDispatch, 100, 80)}
	first := CalculateStatus(timers, now)
	second := CalculateStatus(timers, now)
	if first != second {
		t.Errorf("got %q then %q", first, second)
	}
}

func TestActiveTimer(t *testing.T) {
	done := timer(model.StageDispatch, 30, 60)
	done.CompletedAt = agoPtr(40)
	flagged := timer(model.StageArrival, 30, 60)
	flagged.Breached = true
	open := timer(model.StageCompletion, 60, 5)
	second := timer("follow-up", 60, 1)

	timers := []model.SLATimer{done, flagged, open, second}
	got := ActiveTimer(timers)
	if got == nil {
		t.Fatal("expected an active timer")
	}
	if got.Stage != model.StageCompletion {
		t.Errorf("Stage = %q, want completion", got.Stage)
	}
	if got != &timers[2] {
		t.Error("expected a pointer into the input slice")
	}

	if ActiveTimer([]model.SLATimer{done, flagged}) != nil {
		t.Error("expected no active timer")
	}
	if ActiveTimer(nil) != nil {
		t.Error("expected no active timer for nil input")
	}
}

func TestTimeRemaining(t *testing.T) {
	completed := timer(model.StageDispatch, 60, 10)
	completed.CompletedAt = agoPtr(1)
	breached := timer(model.StageDispatch, 60, 10)
	breached.Breached = true

	tests := []struct {
		name  string
		timer model.SLATimer
		want  float64
	}{
		{"half used", timer(model.StageDispatch, 60, 30), 30},
		{"overdue clamps to zero", timer(model.StageDispatch, 60, 90), 0},
		{"completed", completed, 0},
		{"breached", breached, 0},
		{"just started", timer(model.StageDispatch, 45, 0), 45},
		{"zero start time", model.SLATimer{TargetMinutes: 45}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TimeRemaining(tt.timer, now)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("TimeRemaining = %v, want %v", got, tt.want)
			}
			if got < 0 {
				t.Errorf("TimeRemaining returned negative %v", got)
			}
		})
	}
}

func TestFormatMinutes(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0m"},
		{45, "45m"},
		{59.4, "59m"},
		{59.6, "1h"},
		{60, "1h"},
		{90, "1h 30m"},
		{120, "2h"},
		{125.5, "2h 6m"},
		{1441, "24h 1m"},
		{math.NaN(), "0m"},
		{math.Inf(1), "0m"},
		{2.5, "3m"},
		{-2.5, "-2m"},
		{-2.6, "-3m"},
		{1e300, "0m"},
		{-1e300, "0m"},
		{math.Ldexp(1, 63), "0m"},
	}
	for _, tt := range tests {
		if got := FormatMinutes(tt.in); got != tt.want {
			t.Errorf("FormatMinutes(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestElapsedMinutes(t *testing.T) {
	if got := ElapsedMinutes(timer(model.StageDispatch, 30, 12.5), now); math.Abs(got-12.5) > 1e-9 {
		t.Errorf("ElapsedMinutes = %v, want 12.5", got)
	}
	if got := ElapsedMinutes(model.SLATimer{}, now); !math.IsNaN(got) {
		t.Errorf("ElapsedMinutes for zero start = %v, want NaN", got)
	}
}

func TestScenarios(t *testing.T) {
	dispatch := model.SLATimer{
		Stage:         model.StageDispatch,
		TargetMinutes: 30,
		StartedAt:     ago(35),
		Breached:      true,
	}
	if got := CalculateStatus([]model.SLATimer{dispatch}, now); got != StatusBreached {
		t.Errorf("open breach: got %q", got)
	}

	dispatch.CompletedAt = agoPtr(5)
	if got := CalculateStatus([]model.SLATimer{dispatch}, now); got != StatusCompleted {
		t.Errorf("completed breach: got %q", got)
	}
}
