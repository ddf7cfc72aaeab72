package domain

// Dashboard: сводка для главного экрана консоли.
type Dashboard struct {
	ActiveSessions   int      `json:"active_sessions"`
	PendingApprovals int      `json:"pending_approvals"`
	BlockedAgents    []string `json:"blocked_agents"`
	Tools            []string `json:"tools"`
}
