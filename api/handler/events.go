package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"techmatch/api/timeline"
)

func (h *Handler) ListJobEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.db.GetJob(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	if h.events == nil {
		writeJSON(w, []timeline.Event{})
		return
	}
	events, err := h.events.ListByJob(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []timeline.Event{}
	}
	writeJSON(w, events)
}

func (h *Handler) ListRecentEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	if h.events == nil {
		writeJSON(w, []timeline.Event{})
		return
	}
	events, err := h.events.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []timeline.Event{}
	}
	writeJSON(w, events)
}
