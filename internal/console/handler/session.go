package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/spaceai-orchestrator/internal/engine"
	"github.com/xela07ax/spaceai-orchestrator/internal/workflow"
	"go.uber.org/zap"
)

// Sessions: то, что нужно от engine.SessionManager.
type Sessions interface {
	Turn(ctx context.Context, s engine.Session, input string) (engine.Reply, error)
	Open(s engine.Session) (*engine.Orchestrator, error)
	Get(sessionID string) (*engine.Orchestrator, error)
	History(sessionID string) ([]engine.HistoryEntry, error)
	IDs() []string
}

// WorkflowStarter: запуск прогона опубликованного шаблона (workflow.Service).
type WorkflowStarter interface {
	Begin(ctx context.Context, m *workflow.Machine, id string, runCtx map[string]any) (*workflow.Snapshot, error)
}

type SessionHandler struct {
	sessions  Sessions
	workflows WorkflowStarter
	logger    *zap.Logger
}

func NewSessionHandler(sessions Sessions, workflows WorkflowStarter, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, workflows: workflows, logger: logger}
}

type TurnRequest struct {
	AgentID string `json:"agent_id"`
	UserID  string `json:"user_id"`
	Input   string `json:"input"`
}

func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sessions.IDs())
}

func (h *SessionHandler) Turn(w http.ResponseWriter, r *http.Request) {
	var req TurnRequest
	if err := decodeJSON(w, r, &req); err != nil || req.AgentID == "" {
		http.Error(w, "agent_id and input are required", http.StatusBadRequest)
		return
	}

	s := engine.Session{ID: chi.URLParam(r, "id"), AgentID: req.AgentID, UserID: req.UserID}
	reply, err := h.sessions.Turn(r.Context(), s, req.Input)
	if err != nil {
		if errors.Is(err, engine.ErrSessionAgent) {
			writeError(w, err)
			return
		}
		// ход не состоялся, но тело ответа остаётся пригодным для показа пользователю
		h.logger.Error("turn failed", zap.String("session_id", s.ID), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, reply)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (h *SessionHandler) History(w http.ResponseWriter, r *http.Request) {
	history, err := h.sessions.History(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

type StartWorkflowRequest struct {
	AgentID    string         `json:"agent_id"`
	UserID     string         `json:"user_id"`
	WorkflowID string         `json:"workflow_id"`
	Context    map[string]any `json:"context"`
}

func (h *SessionHandler) StartWorkflow(w http.ResponseWriter, r *http.Request) {
	var req StartWorkflowRequest
	if err := decodeJSON(w, r, &req); err != nil || req.AgentID == "" || req.WorkflowID == "" {
		http.Error(w, "agent_id and workflow_id are required", http.StatusBadRequest)
		return
	}

	o, err := h.sessions.Open(engine.Session{ID: chi.URLParam(r, "id"), AgentID: req.AgentID, UserID: req.UserID})
	if err != nil {
		writeError(w, err)
		return
	}

	snap, err := h.workflows.Begin(r.Context(), o.Workflow(), req.WorkflowID, req.Context)
	if err != nil {
		if errors.Is(err, workflow.ErrNotPublished) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// WorkflowState: 204, если активного прогона нет.
func (h *SessionHandler) WorkflowState(w http.ResponseWriter, r *http.Request) {
	o, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	snap := o.Workflow().State()
	if snap == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// NextStep после последнего шага отвечает 204: прогон завершён.
func (h *SessionHandler) NextStep(w http.ResponseWriter, r *http.Request) {
	o, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	snap := o.Workflow().NextStep()
	if snap == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
