package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/spaceai-orchestrator/internal/approval"
	"github.com/xela07ax/spaceai-orchestrator/internal/domain"
	"github.com/xela07ax/spaceai-orchestrator/internal/infra/auth"
)

// ApprovalService: то, что нужно от approval.Gate.
type ApprovalService interface {
	Get(ctx context.Context, id string) (*domain.ApprovalRequest, error)
	List(ctx context.Context, status domain.ApprovalStatus) ([]*domain.ApprovalRequest, error)
	Resolve(ctx context.Context, id string, approved bool, reviewerID string) (*approval.Resolution, error)
}

type ApprovalHandler struct {
	service ApprovalService
}

func NewApprovalHandler(s ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{service: s}
}

func (h *ApprovalHandler) GetDetails(w http.ResponseWriter, r *http.Request) {
	req, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// List: ?status=pending|approved|rejected|all, по умолчанию pending.
func (h *ApprovalHandler) List(w http.ResponseWriter, r *http.Request) {
	status := domain.ApprovalStatus(r.URL.Query().Get("status"))
	switch status {
	case "":
		status = domain.StatusPending
	case "all":
		status = ""
	case domain.StatusPending, domain.StatusApproved, domain.StatusRejected:
	default:
		http.Error(w, "unknown status filter", http.StatusBadRequest)
		return
	}

	list, err := h.service.List(r.Context(), status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type DecideRequest struct {
	Approved bool `json:"approved"`
	// ReviewerID учитывается только при выключенной авторизации.
	ReviewerID string `json:"reviewer_id"`
}

type DecideResponse struct {
	Request *domain.ApprovalRequest `json:"request"`
	Result  string                  `json:"result,omitempty"`
}

// Decide: POST /v1/approvals/{id}/decide. Повторное решение ничего не выполняет
// и не меняет статус; об этом клиент узнаёт по 409 Conflict.
func (h *ApprovalHandler) Decide(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req DecideRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	reviewerID := req.ReviewerID
	if claims, ok := auth.ClaimsFrom(r.Context()); ok {
		reviewerID = claims.UserID
	}
	if reviewerID == "" {
		http.Error(w, "reviewer_id is required", http.StatusBadRequest)
		return
	}

	res, err := h.service.Resolve(r.Context(), id, req.Approved, reviewerID)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := DecideResponse{Request: res.Request}
	if res.Result != nil {
		resp.Result = res.Result.String()
	}
	writeJSON(w, http.StatusOK, resp)
}
