package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"techmatch/api/hub"
	"techmatch/api/model"
	"techmatch/api/sla"
	"techmatch/api/timeline"
)

var base = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

type fakeStore struct {
	ids     []string
	timers  map[string][]model.SLATimer
	swept   []time.Time
	listErr error
}

func (f *fakeStore) ListOpenJobIDs(context.Context) ([]string, error) {
	return f.ids, f.listErr
}

func (f *fakeStore) ListTimersForJobs(_ context.Context, ids []string) (map[string][]model.SLATimer, error) {
	out := map[string][]model.SLATimer{}
	for _, id := range ids {
		out[id] = f.timers[id]
	}
	return out, nil
}

func (f *fakeStore) MarkOverdueBreached(_ context.Context, now time.Time) ([]model.SLATimer, error) {
	f.swept = append(f.swept, now)
	var changed []model.SLATimer
	for id, ts := range f.timers {
		for i := range ts {
			t := &ts[i]
			if t.CompletedAt == nil && !t.Breached && t.StartedAt.Add(time.Duration(t.TargetMinutes*float64(time.Minute))).Before(now) {
				t.Breached = true
				changed = append(changed, *t)
			}
		}
		f.timers[id] = ts
	}
	return changed, nil
}

type recordingWS struct {
	mu     sync.Mutex
	events []hub.Event
}

func (r *recordingWS) Broadcast(evt hub.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingWS) ofType(typ string) []hub.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []hub.Event
	for _, e := range r.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type memEvents struct {
	events []timeline.Event
}

func (m *memEvents) Append(_ context.Context, evt *timeline.Event) error {
	m.events = append(m.events, *evt)
	return nil
}
func (m *memEvents) ListByJob(context.Context, string) ([]timeline.Event, error) { return m.events, nil }
func (m *memEvents) ListRecent(context.Context, int) ([]timeline.Event, error)   { return m.events, nil }

type stepClock struct{ t time.Time }

func (c *stepClock) Now() time.Time { return c.t }

func newMonitor(store *fakeStore, clock *stepClock, markBreaches bool) (*Monitor, *recordingWS, *memEvents) {
	ws := &recordingWS{}
	events := &memEvents{}
	return &Monitor{
		DB:           store,
		WS:           ws,
		Events:       events,
		Evaluator:    sla.NewEvaluator(clock),
		MarkBreaches: markBreaches,
	}, ws, events
}

func dispatchTimer(jobID string, target float64) model.SLATimer {
	return model.SLATimer{
		ID:            jobID + "-dispatch",
		JobID:         jobID,
		Stage:         model.StageDispatch,
		TargetMinutes: target,
		StartedAt:     base,
	}
}

func TestTick_PublishesTransitions(t *testing.T) {
	store := &fakeStore{
		ids:    []string{"job-1"},
		timers: map[string][]model.SLATimer{"job-1": {dispatchTimer("job-1", 100)}},
	}
	clock := &stepClock{t: base.Add(10 * time.Minute)}
	m, ws, events := newMonitor(store, clock, false)
	ctx := context.Background()

	m.Tick(ctx)
	if got := m.Snapshot()["job-1"]; got != sla.StatusOnTime {
		t.Fatalf("first status = %q", got)
	}
	if n := len(ws.ofType(hub.TypeSLAStatus)); n != 1 {
		t.Errorf("broadcasts after first tick = %d, want 1", n)
	}
	if len(events.events) != 0 {
		t.Errorf("first observation wrote %d timeline events", len(events.events))
	}

	// Unchanged status: nothing new.
	m.Tick(ctx)
	if n := len(ws.ofType(hub.TypeSLAStatus)); n != 1 {
		t.Errorf("broadcasts after steady tick = %d, want 1", n)
	}

	clock.t = base.Add(80 * time.Minute)
	m.Tick(ctx)
	if got := m.Snapshot()["job-1"]; got != sla.StatusWarning {
		t.Fatalf("status after 80m = %q", got)
	}
	if n := len(ws.ofType(hub.TypeSLAStatus)); n != 2 {
		t.Errorf("broadcasts after transition = %d, want 2", n)
	}
	if len(events.events) != 1 || events.events[0].Metadata["to"] != "warning" || events.events[0].Metadata["from"] != "on-time" {
		t.Fatalf("timeline = %+v", events.events)
	}
	if ts := events.events[0].Timestamp; !ts.Equal(clock.t) {
		t.Errorf("event stamped %v, want monitor clock %v", ts, clock.t)
	}
}

func TestTick_MarksBreaches(t *testing.T) {
	store := &fakeStore{
		ids:    []string{"job-1", "job-2"},
		timers: map[string][]model.SLATimer{
			"job-1": {dispatchTimer("job-1", 30)},
			"job-2": {dispatchTimer("job-2", 120)},
		},
	}
	clock := &stepClock{t: base.Add(45 * time.Minute)}
	m, ws, events := newMonitor(store, clock, true)

	m.Tick(context.Background())

	if len(store.swept) != 1 || !store.swept[0].Equal(clock.t) {
		t.Errorf("swept = %v", store.swept)
	}
	breaches := ws.ofType(hub.TypeSLABreach)
	if len(breaches) != 1 || breaches[0].JobID != "job-1" {
		t.Fatalf("breach broadcasts = %+v", breaches)
	}
	snap := m.Snapshot()
	if snap["job-1"] != sla.StatusBreached {
		t.Errorf("job-1 = %q, want breached", snap["job-1"])
	}
	if snap["job-2"] != sla.StatusOnTime {
		t.Errorf("job-2 = %q, want on-time", snap["job-2"])
	}
	if len(events.events) != 1 || events.events[0].Action != timeline.ActionBreached {
		t.Errorf("timeline = %+v", events.events)
	}
}

func TestTick_WithoutMarkingTrustsStoredFlag(t *testing.T) {
	store := &fakeStore{
		ids:    []string{"job-1"},
		timers: map[string][]model.SLATimer{"job-1": {dispatchTimer("job-1", 30)}},
	}
	clock := &stepClock{t: base.Add(45 * time.Minute)}
	m, ws, _ := newMonitor(store, clock, false)

	m.Tick(context.Background())

	if len(store.swept) != 0 {
		t.Error("sweep ran with MarkBreaches disabled")
	}
	if len(ws.ofType(hub.TypeSLABreach)) != 0 {
		t.Error("unexpected breach broadcast")
	}
	if got := m.Snapshot()["job-1"]; got != sla.StatusOnTime {
		t.Errorf("status = %q, want on-time", got)
	}
}

func TestTick_ForgetsClosedJobs(t *testing.T) {
	store := &fakeStore{
		ids:    []string{"job-1"},
		timers: map[string][]model.SLATimer{"job-1": {dispatchTimer("job-1", 100)}},
	}
	m, _, _ := newMonitor(store, &stepClock{t: base}, false)

	m.Tick(context.Background())
	store.ids = nil
	m.Tick(context.Background())

	if len(m.Snapshot()) != 0 {
		t.Errorf("snapshot = %v, want empty", m.Snapshot())
	}
}

func TestTick_ListErrorKeepsState(t *testing.T) {
	store := &fakeStore{
		ids:    []string{"job-1"},
		timers: map[string][]model.SLATimer{"job-1": {dispatchTimer("job-1", 100)}},
	}
	m, _, _ := newMonitor(store, &stepClock{t: base}, false)
	m.Tick(context.Background())

	store.listErr = errors.New("connection reset")
	m.Tick(context.Background())

	if m.Snapshot()["job-1"] != sla.StatusOnTime {
		t.Errorf("snapshot lost after list error: %v", m.Snapshot())
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	store := &fakeStore{}
	m, _, _ := newMonitor(store, &stepClock{t: base}, false)
	m.Interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
