package service

import (
	"context"
	"fmt"

	"github.com/xela07ax/spaceai-orchestrator/internal/domain"
	"go.uber.org/zap"
)

// Источники данных для сводки. Реализуются SessionManager, approval.Gate,
// KillSwitch и tools.Registry.
type (
	SessionLister interface{ IDs() []string }
	ApprovalLister interface {
		List(ctx context.Context, status domain.ApprovalStatus) ([]*domain.ApprovalRequest, error)
	}
	BlockList   interface{ Blocked() []string }
	ToolCatalog interface{ Names() []string }
)

type DashboardService struct {
	sessions  SessionLister
	approvals ApprovalLister
	blocked   BlockList
	tools     ToolCatalog
	logger    *zap.Logger
}

func NewDashboardService(sessions SessionLister, approvals ApprovalLister, blocked BlockList, tools ToolCatalog, logger *zap.Logger) *DashboardService {
	return &DashboardService{
		sessions:  sessions,
		approvals: approvals,
		blocked:   blocked,
		tools:     tools,
		logger:    logger.Named("dashboard-service"),
	}
}

func (s *DashboardService) Summary(ctx context.Context) (*domain.Dashboard, error) {
	pending, err := s.approvals.List(ctx, domain.StatusPending)
	if err != nil {
		s.logger.Error("failed to count pending approvals", zap.Error(err))
		return nil, fmt.Errorf("dashboard: %w", err)
	}

	d := &domain.Dashboard{
		ActiveSessions:   len(s.sessions.IDs()),
		PendingApprovals: len(pending),
		BlockedAgents:    s.blocked.Blocked(),
		Tools:            s.tools.Names(),
	}
	if d.BlockedAgents == nil {
		d.BlockedAgents = []string{}
	}
	return d, nil
}
