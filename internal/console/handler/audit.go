package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/xela07ax/spaceai-orchestrator/internal/domain"
	"github.com/xela07ax/spaceai-orchestrator/internal/sentinel"
)

type EventSource interface {
	ListSince(ctx context.Context, since time.Time) ([]domain.Event, error)
}

// AuditHandler: журнал событий агентов и разовый прогон аудитора.
type AuditHandler struct {
	auditor *sentinel.Auditor
	events  EventSource
	window  time.Duration
}

func NewAuditHandler(auditor *sentinel.Auditor, events EventSource, window time.Duration) *AuditHandler {
	if window <= 0 {
		window = time.Hour
	}
	return &AuditHandler{auditor: auditor, events: events, window: window}
}

// GetLogs: GET /v1/events?since=RFC3339&agent_id=...
func (h *AuditHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	since := time.Now().Add(-h.window)
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "since must be RFC3339", http.StatusBadRequest)
			return
		}
		since = t
	}

	events, err := h.events.ListSince(r.Context(), since)
	if err != nil {
		http.Error(w, "Failed to fetch events", http.StatusInternalServerError)
		return
	}

	if agentID := r.URL.Query().Get("agent_id"); agentID != "" {
		filtered := make([]domain.Event, 0, len(events))
		for _, e := range events {
			if e.AgentID == agentID {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}
	writeJSON(w, http.StatusOK, events)
}

// Audit: POST /v1/sentinel/audit, тело содержит массив событий, ответ содержит массив алертов.
func (h *AuditHandler) Audit(w http.ResponseWriter, r *http.Request) {
	var events []domain.Event
	if err := decodeJSON(w, r, &events); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	for _, e := range events {
		if !e.Type.Valid() {
			http.Error(w, "unknown event type: "+string(e.Type), http.StatusBadRequest)
			return
		}
	}

	alerts := h.auditor.Audit(events)
	if alerts == nil {
		alerts = []sentinel.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}
