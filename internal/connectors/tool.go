package connectors

import (
	"context"
	"encoding/json"

	"github.com/xela07ax/spaceai-orchestrator/internal/tools"
)

// ToolHandler превращает capability коннектора в инструмент реестра.
func ToolHandler(caller Caller, capID string) tools.Handler {
	return tools.HandlerFunc(func(ctx context.Context, payload json.RawMessage, _ tools.Call) (string, error) {
		out, err := caller.Call(ctx, capID, payload)
		if err != nil {
			return "", err
		}
		return string(out), nil
	})
}
