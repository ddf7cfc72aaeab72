package tools

import (
	"context"
	"encoding/json"
)

// Call описывает контекст вызова: кто и в рамках какой сессии вызывает инструмент.
type Call struct {
	AgentID   string
	UserID    string
	SessionID string
	Reasoning string
}

// Handler: общий контракт всех инструментов.
type Handler interface {
	Handle(ctx context.Context, payload json.RawMessage, call Call) (string, error)
}

// HandlerFunc позволяет регистрировать обычные функции.
type HandlerFunc func(ctx context.Context, payload json.RawMessage, call Call) (string, error)

func (f HandlerFunc) Handle(ctx context.Context, payload json.RawMessage, call Call) (string, error) {
	return f(ctx, payload, call)
}
