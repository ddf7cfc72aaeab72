package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/spaceai-orchestrator/internal/domain"
)

// EventRepo хранит телеметрию агентов: пишет audit.Recorder, читает sentinel.Watcher.
type EventRepo struct {
	pool *pgxpool.Pool
}

func NewEventRepo(pool *pgxpool.Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

// WriteBatch пишет пачку через COPY.
func (r *EventRepo) WriteBatch(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	_, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"agent_events"},
		[]string{"id", "agent_id", "type", "details", "created_at"},
		pgx.CopyFromSlice(len(events), func(i int) ([]any, error) {
			e := events[i]
			return []any{e.ID, e.AgentID, string(e.Type), e.Details, e.Timestamp}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("postgres: copy %d events: %w", len(events), err)
	}
	return nil
}

func (r *EventRepo) ListSince(ctx context.Context, since time.Time) ([]domain.Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, agent_id, type, details, created_at
		FROM agent_events
		WHERE created_at >= $1
		ORDER BY created_at`, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Event, 0)
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.AgentID, &e.Type, &e.Details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
