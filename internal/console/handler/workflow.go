package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/spaceai-orchestrator/internal/domain"
)

type WorkflowService interface {
	CreateDraft(ctx context.Context, name string, steps []domain.WorkflowStep) (*domain.WorkflowDefinition, error)
	Update(ctx context.Context, id, name string, steps []domain.WorkflowStep) (*domain.WorkflowDefinition, error)
	Publish(ctx context.Context, id string) (*domain.WorkflowDefinition, error)
	Get(ctx context.Context, id string) (*domain.WorkflowDefinition, error)
	List(ctx context.Context) ([]domain.WorkflowDefinition, error)
}

type WorkflowHandler struct {
	service WorkflowService
}

func NewWorkflowHandler(s WorkflowService) *WorkflowHandler {
	return &WorkflowHandler{service: s}
}

type WorkflowRequest struct {
	Name  string                `json:"name"`
	Steps []domain.WorkflowStep `json:"steps"`
}

func (h *WorkflowHandler) List(w http.ResponseWriter, r *http.Request) {
	defs, err := h.service.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, defs)
}

func (h *WorkflowHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req WorkflowRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	def, err := h.service.CreateDraft(r.Context(), req.Name, req.Steps)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, def)
}

func (h *WorkflowHandler) Get(w http.ResponseWriter, r *http.Request) {
	def, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (h *WorkflowHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req WorkflowRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	def, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), req.Name, req.Steps)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (h *WorkflowHandler) Publish(w http.ResponseWriter, r *http.Request) {
	def, err := h.service.Publish(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}
