package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

type ServiceHealth struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // up, down, unknown
	Details string `json:"details,omitempty"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	services := []ServiceHealth{
		h.checkPostgres(ctx),
		h.checkS3(ctx),
		h.checkReports(),
		h.checkWebSocket(),
	}

	status := "healthy"
	for _, s := range services {
		if s.Status == "down" {
			status = "degraded"
		}
	}

	writeJSON(w, map[string]interface{}{
		"status":   status,
		"services": services,
	})
}

func (h *Handler) checkPostgres(ctx context.Context) ServiceHealth {
	if err := h.db.Ping(ctx); err != nil {
		return ServiceHealth{Name: "postgres", Status: "down", Details: err.Error()}
	}
	return ServiceHealth{Name: "postgres", Status: "up"}
}

func (h *Handler) checkS3(ctx context.Context) ServiceHealth {
	if h.s3 == nil {
		return ServiceHealth{Name: "s3", Status: "unknown", Details: "not configured"}
	}
	if err := h.s3.Healthy(ctx); err != nil {
		return ServiceHealth{Name: "s3", Status: "down", Details: err.Error()}
	}
	return ServiceHealth{Name: "s3", Status: "up"}
}

func (h *Handler) checkReports() ServiceHealth {
	if h.reports == nil {
		return ServiceHealth{Name: "reports", Status: "unknown", Details: "not configured"}
	}
	next := h.reports.NextRun()
	if next.IsZero() {
		return ServiceHealth{Name: "reports", Status: "unknown", Details: "not scheduled"}
	}
	return ServiceHealth{Name: "reports", Status: "up", Details: "next run " + next.Format(time.RFC3339)}
}

func (h *Handler) checkWebSocket() ServiceHealth {
	counter, ok := h.ws.(interface{ ClientCount() int })
	if !ok {
		return ServiceHealth{Name: "websocket", Status: "unknown", Details: "not configured"}
	}
	n := counter.ClientCount()
	details := fmt.Sprintf("%d clients", n)
	if n == 1 {
		details = "1 client"
	}
	return ServiceHealth{Name: "websocket", Status: "up", Details: details}
}
