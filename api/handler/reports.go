package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"techmatch/api/store"
)

func (h *Handler) LatestReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.db.LatestReport(r.Context())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no report yet")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, rep)
}

func (h *Handler) RunReport(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		writeError(w, http.StatusServiceUnavailable, "report scheduler not configured")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	rep, err := h.reports.RunNow(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSONStatus(w, http.StatusCreated, rep)
}
