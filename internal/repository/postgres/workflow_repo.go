package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/spaceai-orchestrator/internal/domain"
)

const workflowColumns = `id, name, steps, deployment_status, version, created_at, updated_at`

// WorkflowRepo хранит шаги как JSONB: pgx кодирует []domain.WorkflowStep через encoding/json.
type WorkflowRepo struct {
	pool *pgxpool.Pool
}

func NewWorkflowRepo(pool *pgxpool.Pool) *WorkflowRepo {
	return &WorkflowRepo{pool: pool}
}

func (r *WorkflowRepo) Create(ctx context.Context, def *domain.WorkflowDefinition) error {
	query := `INSERT INTO workflow_definitions (` + workflowColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.pool.Exec(ctx, query,
		def.ID, def.Name, def.Steps, def.Status, def.Version, def.CreatedAt, def.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: create workflow: %w", err)
	}
	return nil
}

func (r *WorkflowRepo) Get(ctx context.Context, id string) (*domain.WorkflowDefinition, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+workflowColumns+` FROM workflow_definitions WHERE id = $1`, id)
	def, err := scanWorkflow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get workflow: %w", err)
	}
	return def, nil
}

func (r *WorkflowRepo) List(ctx context.Context) ([]domain.WorkflowDefinition, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+workflowColumns+` FROM workflow_definitions ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list workflows: %w", err)
	}
	defer rows.Close()

	out := make([]domain.WorkflowDefinition, 0)
	for rows.Next() {
		def, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan workflow: %w", err)
		}
		out = append(out, *def)
	}
	return out, rows.Err()
}

// Update не трогает version и created_at.
func (r *WorkflowRepo) Update(ctx context.Context, def *domain.WorkflowDefinition) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE workflow_definitions
		SET name = $1, steps = $2, deployment_status = $3, updated_at = $4
		WHERE id = $5`,
		def.Name, def.Steps, def.Status, def.UpdatedAt, def.ID)
	if err != nil {
		return fmt.Errorf("postgres: update workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Publish: draft → published и version+1 одним запросом.
func (r *WorkflowRepo) Publish(ctx context.Context, id string, at time.Time) (*domain.WorkflowDefinition, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE workflow_definitions
		SET deployment_status = 'published', version = version + 1, updated_at = $1
		WHERE id = $2 AND deployment_status = 'draft'
		RETURNING `+workflowColumns, at, id)

	def, err := scanWorkflow(row)
	if err == nil {
		return def, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres: publish workflow: %w", err)
	}

	if _, err := r.Get(ctx, id); err != nil {
		return nil, err
	}
	return nil, domain.ErrWorkflowPublished
}

func scanWorkflow(row pgx.Row) (*domain.WorkflowDefinition, error) {
	var def domain.WorkflowDefinition
	if err := row.Scan(&def.ID, &def.Name, &def.Steps, &def.Status, &def.Version, &def.CreatedAt, &def.UpdatedAt); err != nil {
		return nil, err
	}
	return &def, nil
}
