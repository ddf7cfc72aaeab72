package domain

import (
	"errors"
	"time"
)

// Статусы State Machine
type ApprovalStatus string

const (
	StatusPending  ApprovalStatus = "pending"
	StatusApproved ApprovalStatus = "approved"
	StatusRejected ApprovalStatus = "rejected"
)

var (
	ErrInvalidTransition = errors.New("invalid approval status transition")
	ErrAlreadyProcessed  = errors.New("approval request already processed")
	ErrNotFound          = errors.New("not found")
)

// PlaceholderUserID подставляется, если вызывающий передал невалидный идентификатор пользователя.
const PlaceholderUserID = "00000000-0000-0000-0000-000000000000"

type ApprovalRequest struct {
	ID        string         `json:"id"`
	AgentID   string         `json:"agent_id"`
	SessionID string         `json:"session_id,omitempty"` // куда вернуть результат после решения
	ToolName  string         `json:"tool_name"`
	Payload   string         `json:"payload"` // Данные, которые агент хотел отправить
	Status    ApprovalStatus `json:"status"`
	UserID    string         `json:"user_id"`
	Reasoning string         `json:"reasoning"` // thought_process модели на момент перехвата

	ReviewerID *string `json:"reviewer_id,omitempty"`
	Result     *string `json:"result,omitempty"` // Что вернул инструмент после одобрения

	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// CanTransitionTo проверяет правила конечного автомата
func (a *ApprovalRequest) CanTransitionTo(next ApprovalStatus) error {
	if a.Status != StatusPending {
		return ErrAlreadyProcessed
	}
	if next != StatusApproved && next != StatusRejected {
		return ErrInvalidTransition
	}
	return nil
}

// IsTerminal: после approved/rejected заявка больше не меняется.
func (a *ApprovalRequest) IsTerminal() bool {
	return a.Status == StatusApproved || a.Status == StatusRejected
}
