package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ExecuteMethod: единственный метод коннектора. Запрос и ответ, google.protobuf.Struct:
//
//	request:  {capability_id, payload{...}, metadata{source}}
//	response: {status_code, error_message, result{...}}
const ExecuteMethod = "/connector.v1.ConnectorService/Execute"

// Caller: общий контракт исполнителя (адаптер, обёртка надёжности, мок).
type Caller interface {
	Call(ctx context.Context, capID string, payload []byte) ([]byte, error)
}

type GRPCAdapter struct {
	conn    grpc.ClientConnInterface
	timeout time.Duration
	source  string
}

func NewGRPCAdapter(conn grpc.ClientConnInterface) *GRPCAdapter {
	return &GRPCAdapter{conn: conn, timeout: 15 * time.Second, source: "orchestrator"}
}

// Dial открывает клиентское соединение без TLS (коннекторы живут в том же периметре).
func Dial(addr string) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial connector %s: %w", addr, err)
	}
	return conn, nil
}

func (a *GRPCAdapter) Call(ctx context.Context, capID string, payload []byte) ([]byte, error) {
	var m map[string]any
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
	}

	req, err := structpb.NewStruct(map[string]any{
		"capability_id": capID,
		"payload":       m,
		"metadata":      map[string]any{"source": a.source},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create proto struct: %w", err)
	}

	// свой предел у адаптера есть даже под обёрткой надёжности
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp := &structpb.Struct{}
	if err := a.conn.Invoke(ctx, ExecuteMethod, req, resp); err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == codes.ResourceExhausted {
			return nil, &ThrottleError{RetryAfter: time.Second, Cause: err}
		}
		return nil, fmt.Errorf("connector call failed: %w", err)
	}

	fields := resp.GetFields()
	if code := fields["status_code"].GetNumberValue(); code != 0 {
		return nil, fmt.Errorf("connector returned error [%d]: %s", int(code), fields["error_message"].GetStringValue())
	}

	result, err := json.Marshal(fields["result"].GetStructValue().AsMap())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return result, nil
}
