// Package llm описывает внешний вызов инференса: вход хода и кандидат ответа с действием.
package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xela07ax/spaceai-orchestrator/internal/connectors"
	"github.com/xela07ax/spaceai-orchestrator/internal/tools"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	SessionID string       `json:"session_id"`
	AgentID   string       `json:"agent_id"`
	Input     string       `json:"input"`
	History   []Message    `json:"history,omitempty"`
	Tools     []tools.Info `json:"tools,omitempty"`
	Step      *Step        `json:"step,omitempty"`
}

// Step: текущий шаг активного прогона workflow, если он есть.
type Step struct {
	Workflow string  `json:"workflow"`
	Role     string  `json:"role"`
	Label    string  `json:"label"`
	Progress float64 `json:"progress"`
}

// Action: вызов инструмента, который предлагает модель.
type Action struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type Completion struct {
	Message        string  `json:"message"`
	Action         *Action `json:"action,omitempty"`
	ThoughtProcess string  `json:"thought_process,omitempty"`
}

// Model: непрозрачный инференс. Результат недетерминирован.
type Model interface {
	Generate(ctx context.Context, req Request) (*Completion, error)
}

// RemoteModel ходит в модель через коннектор (capability llm.generate).
type RemoteModel struct {
	caller connectors.Caller
	capID  string
}

func NewRemoteModel(caller connectors.Caller) *RemoteModel {
	return &RemoteModel{caller: caller, capID: "llm.generate"}
}

func (m *RemoteModel) Generate(ctx context.Context, req Request) (*Completion, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal inference request: %w", err)
	}

	out, err := m.caller.Call(ctx, m.capID, payload)
	if err != nil {
		return nil, fmt.Errorf("inference call: %w", err)
	}

	var c Completion
	if err := json.Unmarshal(out, &c); err != nil {
		return nil, fmt.Errorf("decode completion: %w", err)
	}
	if c.Action != nil && c.Action.Name == "" {
		c.Action = nil
	}
	return &c, nil
}
