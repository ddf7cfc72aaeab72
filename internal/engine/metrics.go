package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: длительность хода целиком (включая инференс и инструмент)
	TurnDuration *prometheus.HistogramVec

	// Traffic: ходы по исходу (ok, input_rejected, rate_limited, blocked, inference_error)
	Turns *prometheus.CounterVec

	// Вызовы инструментов: status = ok | error | approval_required
	ToolCalls *prometheus.CounterVec

	// Saturation: состояние Circuit Breaker (0 - ок, 1 - выбило)
	CircuitBreakerState *prometheus.GaugeVec

	// Audit: заполненность буфера (backpressure)
	AuditBufferFill prometheus.Gauge

	// Sentinel: алерты по правилу и серьёзности
	SentinelAlerts *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object: без регистратора метрики пишутся в никуда
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		TurnDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "orchestrator_turn_duration_seconds",
			Help:    "Histogram of turn latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"outcome"}),

		Turns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_turns_total",
			Help: "Total number of processed turns by outcome.",
		}, []string{"outcome"}),

		ToolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_tool_calls_total",
			Help: "Tool dispatches by tool and status.",
		}, []string{"tool", "status"}),

		CircuitBreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "orchestrator_circuit_breaker_state",
			Help: "Current state of the circuit breaker (0=closed, 0.5=half-open, 1=open).",
		}, []string{"connector_id"}),

		AuditBufferFill: f.NewGauge(prometheus.GaugeOpts{
			Name: "orchestrator_audit_buffer_utilization",
			Help: "Current number of events in audit buffer.",
		}),

		SentinelAlerts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_sentinel_alerts_total",
			Help: "Behavioral anomaly alerts by rule and severity.",
		}, []string{"rule", "severity"}),
	}
}
