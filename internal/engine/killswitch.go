package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/spaceai-orchestrator/internal/infra"
	"github.com/xela07ax/spaceai-orchestrator/internal/sentinel"
	"go.uber.org/zap"
)

// KillSwitch: мгновенная блокировка агента. L1, карта в памяти (hot path),
// L2: Redis set, синхронизация между инстансами через pub/sub.
// Без Redis работает как локальный переключатель.
type KillSwitch struct {
	mu      sync.RWMutex
	blocked map[string]struct{}
	rdb     *redis.Client
	logger  *zap.Logger
}

func NewKillSwitch(rdb *redis.Client, logger *zap.Logger) *KillSwitch {
	return &KillSwitch{
		blocked: make(map[string]struct{}),
		rdb:     rdb,
		logger:  logger.With(zap.String("mod", "killswitch")),
	}
}

// Init загружает текущее состояние блокировок из Redis.
func (k *KillSwitch) Init(ctx context.Context) error {
	if k.rdb == nil {
		return nil
	}
	agents, err := k.rdb.SMembers(ctx, infra.RedisKeyBlockedAgents).Result()
	if err != nil {
		return fmt.Errorf("load blocked agents: %w", err)
	}

	k.mu.Lock()
	k.blocked = make(map[string]struct{}, len(agents))
	for _, id := range agents {
		k.blocked[id] = struct{}{}
	}
	k.mu.Unlock()

	k.logger.Info("kill-switch state loaded", zap.Int("blocked", len(agents)))
	return nil
}

// Listen блокирует до отмены ctx.
func (k *KillSwitch) Listen(ctx context.Context) {
	if k.rdb == nil {
		return
	}
	ListenResilient(ctx, k.rdb, k.logger, infra.RedisChanKillSwitch,
		func() error { return k.Init(ctx) },
		func(payload string) {
			id, on, err := ParseSignal(payload)
			if err != nil {
				k.logger.Error("invalid kill-switch signal", zap.String("payload", payload), zap.Error(err))
				return
			}
			k.set(id, on)
		},
	)
}

func (k *KillSwitch) Block(ctx context.Context, agentID string) error {
	return k.apply(ctx, agentID, true)
}

func (k *KillSwitch) Unblock(ctx context.Context, agentID string) error {
	return k.apply(ctx, agentID, false)
}

func (k *KillSwitch) apply(ctx context.Context, agentID string, on bool) error {
	k.set(agentID, on)
	if k.rdb == nil {
		return nil
	}

	state := "off"
	pipe := k.rdb.TxPipeline()
	if on {
		state = "on"
		pipe.SAdd(ctx, infra.RedisKeyBlockedAgents, agentID)
	} else {
		pipe.SRem(ctx, infra.RedisKeyBlockedAgents, agentID)
	}
	pipe.Publish(ctx, infra.RedisChanKillSwitch, agentID+":"+state)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("kill-switch %s for %s: %w", state, agentID, err)
	}
	return nil
}

func (k *KillSwitch) set(agentID string, on bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if on {
		if _, ok := k.blocked[agentID]; !ok {
			k.logger.Warn("agent blocked", zap.String("agent_id", agentID))
		}
		k.blocked[agentID] = struct{}{}
	} else {
		delete(k.blocked, agentID)
	}
}

// IsBlocked: самая дешёвая проверка хода, только L1.
func (k *KillSwitch) IsBlocked(agentID string) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	_, ok := k.blocked[agentID]
	return ok
}

func (k *KillSwitch) Blocked() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]string, 0, len(k.blocked))
	for id := range k.blocked {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Respond реализует sentinel.Responder: CRITICAL-алерт блокирует агента.
func (k *KillSwitch) Respond(ctx context.Context, alert sentinel.Alert) error {
	k.logger.Warn("sentinel requested block",
		zap.String("agent_id", alert.AgentID), zap.String("rule", string(alert.Rule)))
	return k.Block(ctx, alert.AgentID)
}
