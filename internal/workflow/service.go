package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/spaceai-orchestrator/internal/domain"
	"go.uber.org/zap"
)

// Store: хранилище шаблонов. Publish обязан быть атомарным (version+1 и смена статуса за раз).
type Store interface {
	Create(ctx context.Context, def *domain.WorkflowDefinition) error
	Get(ctx context.Context, id string) (*domain.WorkflowDefinition, error)
	List(ctx context.Context) ([]domain.WorkflowDefinition, error)
	Update(ctx context.Context, def *domain.WorkflowDefinition) error
	Publish(ctx context.Context, id string, at time.Time) (*domain.WorkflowDefinition, error)
}

var (
	ErrNotPublished = errors.New("workflow is not published")
	ErrDefinitionID = errors.New("workflow definition requires an id")
)

type Service struct {
	store  Store
	now    func() time.Time
	logger *zap.Logger
}

func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		now:    time.Now,
		logger: logger.With(zap.String("mod", "workflow")),
	}
}

// CreateDraft сохраняет новый шаблон в статусе draft с версией 0.
func (s *Service) CreateDraft(ctx context.Context, name string, steps []domain.WorkflowStep) (*domain.WorkflowDefinition, error) {
	now := s.now().UTC()
	def := &domain.WorkflowDefinition{
		ID:        uuid.NewString(),
		Name:      name,
		Steps:     steps,
		Status:    domain.DeploymentDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, def); err != nil {
		return nil, fmt.Errorf("create workflow: %w", err)
	}

	s.logger.Info("workflow draft created", zap.String("workflow_id", def.ID), zap.String("name", name))
	return def, nil
}

// Update меняет имя и шаги. Правка опубликованного шаблона возвращает его в draft,
// версия остаётся прежней до следующего Publish.
func (s *Service) Update(ctx context.Context, id, name string, steps []domain.WorkflowStep) (*domain.WorkflowDefinition, error) {
	def, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	def.Name = name
	def.Steps = steps
	def.Status = domain.DeploymentDraft
	def.UpdatedAt = s.now().UTC()
	if err := def.Validate(); err != nil {
		return nil, err
	}

	if err := s.store.Update(ctx, def); err != nil {
		return nil, fmt.Errorf("update workflow %s: %w", id, err)
	}
	return def, nil
}

func (s *Service) Publish(ctx context.Context, id string) (*domain.WorkflowDefinition, error) {
	def, err := s.store.Publish(ctx, id, s.now().UTC())
	if err != nil {
		return nil, err
	}

	s.logger.Info("workflow published",
		zap.String("workflow_id", def.ID), zap.Int("version", def.Version))
	return def, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.WorkflowDefinition, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]domain.WorkflowDefinition, error) {
	return s.store.List(ctx)
}

// Seed публикует шаблоны из файла, которых ещё нет в хранилище (по ID).
// ID обязателен: по нему повторный запуск узнаёт уже засеянные шаблоны.
func (s *Service) Seed(ctx context.Context, defs []domain.WorkflowDefinition) (int, error) {
	created := 0
	for _, d := range defs {
		if d.ID == "" {
			return created, fmt.Errorf("seed %q: %w", d.Name, ErrDefinitionID)
		}
		_, err := s.store.Get(ctx, d.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return created, fmt.Errorf("seed %s: %w", d.ID, err)
		}

		now := s.now().UTC()
		d.Status = domain.DeploymentDraft
		d.Version = 0
		d.CreatedAt, d.UpdatedAt = now, now
		if err := d.Validate(); err != nil {
			return created, fmt.Errorf("seed %q: %w", d.Name, err)
		}
		if err := s.store.Create(ctx, &d); err != nil {
			return created, fmt.Errorf("seed %q: %w", d.Name, err)
		}
		if _, err := s.store.Publish(ctx, d.ID, now); err != nil {
			return created, fmt.Errorf("seed %q: %w", d.Name, err)
		}
		created++
	}

	if created > 0 {
		s.logger.Info("workflow definitions seeded", zap.Int("count", created))
	}
	return created, nil
}

// Begin запускает прогон опубликованного шаблона на переданной машине.
func (s *Service) Begin(ctx context.Context, m *Machine, id string, runCtx map[string]any) (*Snapshot, error) {
	def, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if def.Status != domain.DeploymentPublished {
		return nil, fmt.Errorf("%w: %s", ErrNotPublished, id)
	}
	return m.Start(*def, runCtx)
}
