// Package sentinel ищет поведенческие аномалии агентов в пачке событий.
// Auditor не хранит состояния между вызовами: вся история приходит аргументом.
package sentinel

import (
	"fmt"
	"sort"

	"github.com/xela07ax/spaceai-orchestrator/internal/domain"
)

type Rule string

const (
	RuleRapidFire     Rule = "RAPID_FIRE"
	RuleSecuritySpike Rule = "SECURITY_SPIKE"
	RuleErrorLoop     Rule = "ERROR_LOOP"
)

type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityError    Severity = "ERROR"
)

type Alert struct {
	AgentID  string   `json:"agentId"`
	Rule     Rule     `json:"rule"`
	Severity Severity `json:"severity"`
	Count    int      `json:"count"`
	Message  string   `json:"message"`
}

// Thresholds: RapidFire и SecuritySpike срабатывают строго выше порога,
// ErrorLoop: при достижении порога.
type Thresholds struct {
	RapidFire     int `mapstructure:"rapid_fire"`
	SecuritySpike int `mapstructure:"security_spike"`
	ErrorLoop     int `mapstructure:"error_loop"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{RapidFire: 3, SecuritySpike: 3, ErrorLoop: 5}
}

type Auditor struct {
	th Thresholds
}

// NewAuditor подставляет дефолт для каждого неположительного порога.
func NewAuditor(th Thresholds) *Auditor {
	def := DefaultThresholds()
	if th.RapidFire <= 0 {
		th.RapidFire = def.RapidFire
	}
	if th.SecuritySpike <= 0 {
		th.SecuritySpike = def.SecuritySpike
	}
	if th.ErrorLoop <= 0 {
		th.ErrorLoop = def.ErrorLoop
	}
	return &Auditor{th: th}
}

func (a *Auditor) Thresholds() Thresholds { return a.th }

// Audit возвращает алерты, отсортированные по agent id, внутри агента: в порядке правил.
// Входной слайс не модифицируется.
func (a *Auditor) Audit(events []domain.Event) []Alert {
	timelines := make(map[string][]domain.Event)
	for _, e := range events {
		timelines[e.AgentID] = append(timelines[e.AgentID], e)
	}

	agents := make([]string, 0, len(timelines))
	for id := range timelines {
		agents = append(agents, id)
	}
	sort.Strings(agents)

	var alerts []Alert
	for _, id := range agents {
		tl := timelines[id]
		sort.SliceStable(tl, func(i, j int) bool { return tl[i].Timestamp.Before(tl[j].Timestamp) })
		alerts = append(alerts, a.auditAgent(id, tl)...)
	}
	return alerts
}

func (a *Auditor) auditAgent(agentID string, timeline []domain.Event) []Alert {
	var (
		actions, blocks int
		streak, longest int
	)

	for _, e := range timeline {
		switch e.Type {
		case domain.EventAction:
			actions++
			streak = 0
		case domain.EventError:
			streak++
			if streak > longest {
				longest = streak
			}
		case domain.EventGuardrailBlock:
			// блок не продлевает и не прощает серию ошибок
			blocks++
		}
	}

	var out []Alert
	if actions > a.th.RapidFire {
		out = append(out, Alert{
			AgentID:  agentID,
			Rule:     RuleRapidFire,
			Severity: SeverityCritical,
			Count:    actions,
			Message:  fmt.Sprintf("%d actions in window exceed threshold %d", actions, a.th.RapidFire),
		})
	}
	if blocks > a.th.SecuritySpike {
		out = append(out, Alert{
			AgentID:  agentID,
			Rule:     RuleSecuritySpike,
			Severity: SeverityCritical,
			Count:    blocks,
			Message:  fmt.Sprintf("%d guardrail blocks in window exceed threshold %d", blocks, a.th.SecuritySpike),
		})
	}
	if longest >= a.th.ErrorLoop {
		out = append(out, Alert{
			AgentID:  agentID,
			Rule:     RuleErrorLoop,
			Severity: SeverityError,
			Count:    longest,
			Message:  fmt.Sprintf("%d consecutive errors without a successful action", longest),
		})
	}
	return out
}
