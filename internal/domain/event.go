package domain

import "time"

type EventType string

const (
	EventAction         EventType = "ACTION"
	EventError          EventType = "ERROR"
	EventGuardrailBlock EventType = "GUARDRAIL_BLOCK"
)

// Event: телеметрия одного исхода вызова инструмента (или блокировки гардрейлом).
// Аудитор получает их пачкой, хранение: забота вызывающего.
type Event struct {
	ID        string    `json:"id,omitempty"`
	AgentID   string    `json:"agentId"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Details   string    `json:"details,omitempty"`
}

func (t EventType) Valid() bool {
	switch t {
	case EventAction, EventError, EventGuardrailBlock:
		return true
	}
	return false
}
