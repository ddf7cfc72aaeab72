package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// KillSwitch: блокировка агентов (engine.KillSwitch).
type KillSwitch interface {
	Block(ctx context.Context, agentID string) error
	Unblock(ctx context.Context, agentID string) error
	Blocked() []string
}

type AgentHandler struct {
	ks     KillSwitch
	logger *zap.Logger
}

func NewAgentHandler(ks KillSwitch, logger *zap.Logger) *AgentHandler {
	return &AgentHandler{ks: ks, logger: logger}
}

func (h *AgentHandler) Blocked(w http.ResponseWriter, r *http.Request) {
	ids := h.ks.Blocked()
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, ids)
}

func (h *AgentHandler) Block(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, true)
}

func (h *AgentHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, false)
}

func (h *AgentHandler) toggle(w http.ResponseWriter, r *http.Request, block bool) {
	agentID := chi.URLParam(r, "id")
	if agentID == "" {
		http.Error(w, "agent id is required", http.StatusBadRequest)
		return
	}

	op := h.ks.Unblock
	if block {
		op = h.ks.Block
	}
	// ждём и Redis, и локальный кэш: ответ 204 означает, что блокировка уже действует
	if err := op(r.Context(), agentID); err != nil {
		h.logger.Error("kill-switch failed", zap.String("agent_id", agentID), zap.Bool("block", block), zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
