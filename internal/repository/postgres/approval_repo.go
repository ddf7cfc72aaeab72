package postgres

/*
Заявки Human-in-the-loop. Смена статуса: один условный UPDATE,
поэтому два оператора не могут решить одну заявку дважды.
*/

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/spaceai-orchestrator/internal/domain"
)

const approvalColumns = `id, agent_id, session_id, tool_name, payload, status, user_id, reasoning,
	reviewer_id, result, created_at, resolved_at`

type ApprovalRepo struct {
	pool *pgxpool.Pool
}

func NewApprovalRepo(pool *pgxpool.Pool) *ApprovalRepo {
	return &ApprovalRepo{pool: pool}
}

func (r *ApprovalRepo) Create(ctx context.Context, app *domain.ApprovalRequest) error {
	query := `INSERT INTO approvals (id, agent_id, session_id, tool_name, payload, status, user_id, reasoning, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.pool.Exec(ctx, query,
		app.ID, app.AgentID, app.SessionID, app.ToolName, app.Payload,
		app.Status, app.UserID, app.Reasoning, app.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to create approval request: %w", err)
	}
	return nil
}

func (r *ApprovalRepo) Get(ctx context.Context, id string) (*domain.ApprovalRequest, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+approvalColumns+` FROM approvals WHERE id = $1`, id)
	app, err := scanApproval(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get approval: %w", err)
	}
	return app, nil
}

// List: очередь решений, новые сверху. Пустой статус, все заявки.
func (r *ApprovalRepo) List(ctx context.Context, status domain.ApprovalStatus) ([]*domain.ApprovalRequest, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals`

	var args []any
	if status != "" {
		query += " WHERE status = $1"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC LIMIT 100"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query approvals: %w", err)
	}
	defer rows.Close()

	// пустой слайс, чтобы в JSON был [] вместо null
	results := make([]*domain.ApprovalRequest, 0)
	for rows.Next() {
		app, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan approval: %w", err)
		}
		results = append(results, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

// UpdateStatusIfPending: атомарный захват заявки. RETURNING отдаёт обновлённую строку
// без отдельного SELECT.
func (r *ApprovalRepo) UpdateStatusIfPending(ctx context.Context, id string, status domain.ApprovalStatus, reviewerID string, at time.Time) (*domain.ApprovalRequest, error) {
	probe := domain.ApprovalRequest{Status: domain.StatusPending}
	if err := probe.CanTransitionTo(status); err != nil {
		return nil, err
	}

	query := `
		UPDATE approvals
		SET status = $1,
		    reviewer_id = $2,
		    resolved_at = $3
		WHERE id = $4 AND status = 'pending'
		RETURNING ` + approvalColumns

	app, err := scanApproval(r.pool.QueryRow(ctx, query, status, reviewerID, at, id))
	if err == nil {
		return app, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres: failed to update approval status: %w", err)
	}

	// ни одной строки: либо заявки нет, либо решение уже принято
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM approvals WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("postgres: check approval: %w", err)
	}
	if !exists {
		return nil, domain.ErrNotFound
	}
	return nil, domain.ErrAlreadyProcessed
}

func (r *ApprovalRepo) SaveResult(ctx context.Context, id, result string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE approvals SET result = $1 WHERE id = $2`, result, id)
	if err != nil {
		return fmt.Errorf("postgres: save approval result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanApproval(row pgx.Row) (*domain.ApprovalRequest, error) {
	var app domain.ApprovalRequest
	err := row.Scan(
		&app.ID, &app.AgentID, &app.SessionID, &app.ToolName, &app.Payload,
		&app.Status, &app.UserID, &app.Reasoning,
		&app.ReviewerID, &app.Result, &app.CreatedAt, &app.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	return &app, nil
}
