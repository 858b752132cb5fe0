package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"techmatch/api/hub"
	"techmatch/api/model"
	"techmatch/api/sla"
	"techmatch/api/store"
	"techmatch/api/timeline"
)

type jobView struct {
	model.Job
	SLA sla.Summary `json:"sla"`
}

type jobDetail struct {
	model.Job
	Timers []model.SLATimer `json:"timers"`
	SLA    sla.Summary      `json:"sla"`
}

type createJobRequest struct {
	Title    string `json:"title"`
	Customer string `json:"customer"`
	Address  string `json:"address"`
	Priority string `json:"priority"`
}

// normalize trims and defaults the request and reports the first invalid field.
func (req *createJobRequest) normalize(policy *model.SLAPolicy) error {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return &model.ValidationError{Field: "title", Message: "is required"}
	}
	if req.Priority == "" {
		req.Priority = model.DefaultPriority
	}
	if !policy.HasPriority(req.Priority) {
		return &model.ValidationError{Field: "priority", Message: fmt.Sprintf("unknown priority %q", req.Priority)}
	}
	return nil
}

func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.JobFilter{Status: q.Get("status")}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		f.Offset = n
	}

	jobs, total, err := h.db.ListJobs(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	ids := make([]string, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID
	}
	timers, err := h.db.ListTimersForJobs(r.Context(), ids)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	now := h.evaluator.Now()
	views := make([]jobView, len(jobs))
	for i, j := range jobs {
		views[i] = jobView{Job: j, SLA: sla.Summarize(timers[j.ID], now)}
	}
	writeJSON(w, map[string]interface{}{
		"jobs":  views,
		"total": total,
	})
}

func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.normalize(h.policy); err != nil {
		writeStoreError(w, err)
		return
	}

	now := h.evaluator.Now()
	job := &model.Job{
		ID:        uuid.New().String(),
		Title:     req.Title,
		Customer:  req.Customer,
		Address:   req.Address,
		Priority:  req.Priority,
		Status:    model.JobOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.db.InsertJob(r.Context(), job); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if stage := h.policy.FirstStage(); stage != "" {
		if err := h.startStage(r, job, stage); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	log.Printf("job %s created (%s, priority %s)", job.ID, job.Title, job.Priority)

	detail, err := h.loadDetail(r.Context(), job.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSONStatus(w, http.StatusCreated, detail)
}

func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	detail, err := h.loadDetail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, detail)
}

func (h *Handler) AssignJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		TechnicianID string `json:"technicianId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.TechnicianID = strings.TrimSpace(req.TechnicianID)
	if req.TechnicianID == "" {
		writeStoreError(w, &model.ValidationError{Field: "technicianId", Message: "is required"})
		return
	}

	job, err := h.db.GetJob(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if job.Status.IsTerminal() {
		writeError(w, http.StatusConflict, fmt.Sprintf("job is %s", job.Status))
		return
	}

	if err := h.db.AssignTechnician(r.Context(), id, req.TechnicianID); err != nil {
		writeStoreError(w, err)
		return
	}
	job.TechnicianID = req.TechnicianID
	h.record(r, id, func(rec *timeline.Recorder) error {
		return rec.Assigned(r.Context(), req.TechnicianID)
	})

	// Reassignment after dispatch leaves the timers alone.
	if err := h.completeStage(r, job, model.StageDispatch); err != nil && !errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	detail, err := h.loadDetail(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, detail)
}

func (h *Handler) CompleteStage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	stage := model.Stage(chi.URLParam(r, "stage"))
	if !h.inPolicy(stage) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown stage %q", stage))
		return
	}

	job, err := h.db.GetJob(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if job.Status.IsTerminal() {
		writeError(w, http.StatusConflict, fmt.Sprintf("job is %s", job.Status))
		return
	}

	if err := h.completeStage(r, job, stage); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusConflict, fmt.Sprintf("no open %s timer", stage))
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	detail, err := h.loadDetail(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, detail)
}

func (h *Handler) inPolicy(stage model.Stage) bool {
	for _, s := range h.policy.Stages {
		if s == stage {
			return true
		}
	}
	return false
}

// completeStage stops the open timer of stage, starts the next policy stage
// and moves the job forward. It returns store.ErrNotFound when the stage has
// no open timer.
func (h *Handler) completeStage(r *http.Request, job *model.Job, stage model.Stage) error {
	ctx := r.Context()
	timer, err := h.db.CompleteTimer(ctx, job.ID, stage, h.evaluator.Now())
	if err != nil {
		return err
	}
	h.record(r, job.ID, func(rec *timeline.Recorder) error {
		return rec.StageCompleted(ctx, string(stage), timer.Breached)
	})
	h.broadcast(hub.Event{
		Type:  hub.TypeJobStage,
		JobID: job.ID,
		Payload: map[string]interface{}{
			"stage":    stage,
			"action":   "completed",
			"breached": timer.Breached,
		},
	})

	next := h.policy.NextStage(stage)
	status := model.JobInProgress
	if next == "" {
		status = model.JobDone
	} else if err := h.startStage(r, job, next); err != nil {
		return err
	}

	if status != job.Status {
		if _, err := h.transition(r, job, status); err != nil {
			return err
		}
	}
	return nil
}

// transition moves job to status if nobody changed it since it was read.
// A lost race is logged and reported as false; the winner's status stands.
func (h *Handler) transition(r *http.Request, job *model.Job, status model.JobStatus) (bool, error) {
	from := job.Status
	ok, err := h.db.TransitionJob(r.Context(), job.ID, from, status)
	if err != nil {
		return false, fmt.Errorf("update job status: %w", err)
	}
	if !ok {
		log.Printf("handler: job %s changed concurrently, skipped %s -> %s", job.ID, from, status)
		return false, nil
	}
	job.Status = status
	h.record(r, job.ID, func(rec *timeline.Recorder) error {
		return rec.StatusChanged(r.Context(), string(from), string(status))
	})
	h.broadcast(hub.Event{
		Type:    hub.TypeJobStatus,
		JobID:   job.ID,
		Payload: map[string]interface{}{"from": from, "to": status},
	})
	return true, nil
}

// CancelJob closes a job without completing its stages. Its timers stay as
// they are and the job drops out of SLA monitoring.
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	for attempt := 0; attempt < 3; attempt++ {
		job, err := h.db.GetJob(r.Context(), id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		if job.Status.IsTerminal() {
			writeError(w, http.StatusConflict, fmt.Sprintf("job is %s", job.Status))
			return
		}
		ok, err := h.transition(r, job, model.JobCancelled)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if ok {
			detail, err := h.loadDetail(r.Context(), id)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			writeJSON(w, detail)
			return
		}
	}
	writeError(w, http.StatusConflict, "job is changing, retry")
}

func (h *Handler) startStage(r *http.Request, job *model.Job, stage model.Stage) error {
	target, ok := h.policy.Target(job.Priority, stage)
	if !ok {
		return fmt.Errorf("no %s target for priority %q", stage, job.Priority)
	}
	t := &model.SLATimer{
		ID:            uuid.New().String(),
		JobID:         job.ID,
		Stage:         stage,
		TargetMinutes: target,
		StartedAt:     h.evaluator.Now(),
	}
	if err := h.db.InsertTimer(r.Context(), t); err != nil {
		return fmt.Errorf("start %s timer: %w", stage, err)
	}
	h.record(r, job.ID, func(rec *timeline.Recorder) error {
		return rec.StageStarted(r.Context(), string(stage), target)
	})
	h.broadcast(hub.Event{
		Type:  hub.TypeJobStage,
		JobID: job.ID,
		Payload: map[string]interface{}{
			"stage":         stage,
			"action":        "started",
			"targetMinutes": target,
		},
	})
	return nil
}

func (h *Handler) loadDetail(ctx context.Context, id string) (*jobDetail, error) {
	job, err := h.db.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	timers, err := h.db.ListTimers(ctx, id)
	if err != nil {
		return nil, err
	}
	if timers == nil {
		timers = []model.SLATimer{}
	}
	return &jobDetail{
		Job:    *job,
		Timers: timers,
		SLA:    h.evaluator.Summarize(timers),
	}, nil
}

func writeStoreError(w http.ResponseWriter, err error) {
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		writeJSONStatus(w, http.StatusBadRequest, map[string]string{"error": verr.Error(), "field": verr.Field})
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
