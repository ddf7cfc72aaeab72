package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

// MockConnector: локальный коннектор без внешних систем. Ничего реально не отправляет.
type MockConnector struct {
	// MaxLatency > 0 включает случайную задержку [0, MaxLatency).
	MaxLatency time.Duration
}

func (c *MockConnector) Call(ctx context.Context, capID string, payload []byte) ([]byte, error) {
	if c.MaxLatency > 0 {
		select {
		case <-time.After(rand.N(c.MaxLatency)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	var in map[string]any
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &in); err != nil {
			return nil, fmt.Errorf("mock: bad payload: %w", err)
		}
	}

	switch capID {
	case "web_search":
		return json.Marshal(map[string]any{"status": "ok", "results": []string{"result for " + str(in, "query")}})
	case "send_email", "send_message":
		return json.Marshal(map[string]any{"status": "sent", "to": str(in, "to")})
	case "create_payment_link":
		return json.Marshal(map[string]any{"status": "created", "url": "https://pay.example.com/l/mock"})
	case "write_file":
		return json.Marshal(map[string]any{"status": "written", "path": str(in, "path")})
	case "execute_command":
		return json.Marshal(map[string]any{"status": "simulated", "exit_code": 0})
	case "llm.generate":
		return json.Marshal(map[string]any{
			"message":         "Acknowledged: " + strings.TrimSpace(str(in, "input")),
			"thought_process": "mock model, no inference performed",
		})
	case "unstable.service":
		return nil, fmt.Errorf("service internal error")
	default:
		return nil, fmt.Errorf("capability %s not supported by connector", capID)
	}
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
