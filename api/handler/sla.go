package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"techmatch/api/model"
	"techmatch/api/sla"
	"techmatch/api/validate"
)

func (h *Handler) GetJobSLA(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.db.GetJob(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	timers, err := h.db.ListTimers(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, h.evaluator.Summarize(timers))
}

// Overview counts open jobs per SLA status. When the database is unreachable
// it falls back to the monitor's last observations and marks the result stale.
func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	counts := map[sla.Status]int{
		sla.StatusOnTime:    0,
		sla.StatusWarning:   0,
		sla.StatusBreached:  0,
		sla.StatusCompleted: 0,
		sla.StatusNoSLA:     0,
	}

	statuses, err := h.openStatuses(r)
	stale := false
	if err != nil {
		if h.monitor == nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		log.Printf("handler: overview falling back to monitor snapshot: %v", err)
		statuses = h.monitor.Snapshot()
		stale = true
	}
	for _, s := range statuses {
		counts[s]++
	}

	writeJSON(w, map[string]interface{}{
		"jobs":   len(statuses),
		"counts": counts,
		"stale":  stale,
	})
}

func (h *Handler) openStatuses(r *http.Request) (map[string]sla.Status, error) {
	ids, err := h.db.ListOpenJobIDs(r.Context())
	if err != nil {
		return nil, err
	}
	timers, err := h.db.ListTimersForJobs(r.Context(), ids)
	if err != nil {
		return nil, err
	}
	now := h.evaluator.Now()
	out := make(map[string]sla.Status, len(ids))
	for _, id := range ids {
		out[id] = sla.CalculateStatus(timers[id], now)
	}
	return out, nil
}

type evaluateRequest struct {
	Timers []model.SLATimer `json:"timers"`
	Now    *time.Time       `json:"now,omitempty"`
}

type evaluateResponse struct {
	sla.Summary
	Timers   []timerRemaining          `json:"timers"`
	Findings []model.ValidationFinding `json:"findings"`
}

type timerRemaining struct {
	Stage            model.Stage `json:"stage"`
	RemainingMinutes float64     `json:"remainingMinutes"`
	Remaining        string      `json:"remaining"`
}

// Evaluate runs the evaluator over caller-supplied timers without touching
// stored jobs. Lint findings are reported alongside the result.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	now := h.evaluator.Now()
	if req.Now != nil {
		now = *req.Now
	}

	resp := evaluateResponse{
		Summary: sla.Summarize(req.Timers, now),
		Timers:   make([]timerRemaining, len(req.Timers)),
		Findings: validate.Timers("", req.Timers, h.policy).Findings,
	}
	for i, t := range req.Timers {
		rem := sla.TimeRemaining(t, now)
		resp.Timers[i] = timerRemaining{
			Stage:            t.Stage,
			RemainingMinutes: rem,
			Remaining:        sla.FormatMinutes(rem),
		}
	}
	writeJSON(w, resp)
}
