package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"techmatch/api/auth"
	"techmatch/api/hub"
	"techmatch/api/model"
	"techmatch/api/sla"
	"techmatch/api/store"
	"techmatch/api/timeline"
)

// JobStore is the persistence the handlers need. Satisfied by *store.DB.
type JobStore interface {
	Ping(ctx context.Context) error
	InsertJob(ctx context.Context, j *model.Job) error
	GetJob(ctx context.Context, id string) (*model.Job, error)
	ListJobs(ctx context.Context, f store.JobFilter) ([]model.Job, int, error)
	AssignTechnician(ctx context.Context, id, technicianID string) error
	TransitionJob(ctx context.Context, id string, from, to model.JobStatus) (bool, error)
	ListOpenJobIDs(ctx context.Context) ([]string, error)

	InsertTimer(ctx context.Context, t *model.SLATimer) error
	ListTimers(ctx context.Context, jobID string) ([]model.SLATimer, error)
	ListTimersForJobs(ctx context.Context, jobIDs []string) (map[string][]model.SLATimer, error)
	CompleteTimer(ctx context.Context, jobID string, stage model.Stage, at time.Time) (*model.SLATimer, error)

	LatestReport(ctx context.Context) (*model.DailyReport, error)
}

type Broadcaster interface {
	Broadcast(evt hub.Event)
}

// StatusSource reports the last statuses seen by the background monitor.
type StatusSource interface {
	Snapshot() map[string]sla.Status
}

type ReportRunner interface {
	RunNow(ctx context.Context) (*model.DailyReport, error)
	NextRun() time.Time
}

type HealthChecker interface {
	Healthy(ctx context.Context) error
}

type Handler struct {
	db        JobStore
	events    timeline.Store
	ws        Broadcaster
	evaluator *sla.Evaluator
	policy    *model.SLAPolicy

	monitor StatusSource
	reports ReportRunner
	s3      HealthChecker
}

func New(db JobStore, events timeline.Store, ws Broadcaster, evaluator *sla.Evaluator, policy *model.SLAPolicy) *Handler {
	if evaluator == nil {
		evaluator = sla.NewEvaluator(nil)
	}
	if policy == nil {
		policy = model.DefaultSLAPolicy()
	}
	return &Handler{
		db:        db,
		events:    events,
		ws:        ws,
		evaluator: evaluator,
		policy:    policy,
	}
}

// WithMonitor enables the snapshot fallback of /api/sla/overview.
func (h *Handler) WithMonitor(m StatusSource) *Handler {
	h.monitor = m
	return h
}

func (h *Handler) WithReports(r ReportRunner) *Handler {
	h.reports = r
	return h
}

func (h *Handler) WithObjectStore(s3 HealthChecker) *Handler {
	h.s3 = s3
	return h
}

// ValidateJobID is middleware that rejects requests with malformed job IDs.
func ValidateJobID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id != "" {
			if _, err := uuid.Parse(id); err != nil {
				writeError(w, http.StatusBadRequest, "invalid job id")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// record writes timeline events on behalf of the requester. Failures are
// logged; the state change they describe has already been stored.
func (h *Handler) record(r *http.Request, jobID string, fn func(rec *timeline.Recorder) error) {
	if h.events == nil {
		return
	}
	if err := fn(timeline.NewRecorder(h.events, h.evaluator, jobID, actor(r))); err != nil {
		log.Printf("handler: record event for %s: %v", jobID, err)
	}
}

func (h *Handler) broadcast(evt hub.Event) {
	if h.ws != nil {
		h.ws.Broadcast(evt)
	}
}

// actor names who made a request: the verified access email, or "api".
func actor(r *http.Request) string {
	if email := auth.EmailFrom(r.Context()); email != "" {
		return email
	}
	return "api"
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeJSONStatus(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSONStatus(w, code, map[string]string{"error": msg})
}
