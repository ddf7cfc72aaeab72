package infra

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "orchestrator"
)

// Ключи для Sets (состояние)
const (
	RedisKeyBlockedAgents = RedisNamespace + ":agents:blocked_set"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanApprovalDecisions: решения оператора (HITL), JSON approval.Decision.
	RedisChanApprovalDecisions = RedisNamespace + ":approvals"
	// RedisChanKillSwitch: сигналы "agent_id:on|off".
	RedisChanKillSwitch = RedisNamespace + ":agents:kill-switch-signal"
)
