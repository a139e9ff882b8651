// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// LLM 指标
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensUsed      *prometheus.CounterVec
	llmCost            *prometheus.CounterVec

	// 拓扑指标
	topologyExecutionsTotal   *prometheus.CounterVec
	topologyExecutionDuration *prometheus.HistogramVec
	participantFailuresTotal  *prometheus.CounterVec

	// 评估指标
	evalRunsTotal *prometheus.CounterVec
	evalDelta     *prometheus.HistogramVec

	// 学习循环指标
	loopIterationsTotal *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
// reg 为 nil 时使用默认注册表
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// LLM 指标
	c.llmRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests",
		},
		[]string{"backend", "model", "status"},
	)

	c.llmRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"backend", "model"},
	)

	c.llmTokensUsed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used",
		},
		[]string{"backend", "model", "type"}, // type: prompt, completion
	)

	c.llmCost = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_cost_total",
			Help:      "Total LLM cost in USD",
		},
		[]string{"backend", "model"},
	)

	// 拓扑指标
	c.topologyExecutionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "topology_executions_total",
			Help:      "Total number of topology executions",
		},
		[]string{"topology", "status"},
	)

	c.topologyExecutionDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "topology_execution_duration_seconds",
			Help:      "Topology execution duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"topology"},
	)

	c.participantFailuresTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "participant_failures_total",
			Help:      "Total number of degraded participant calls",
		},
		[]string{"topology", "role"},
	)

	// 评估指标
	c.evalRunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "eval_runs_total",
			Help:      "Total number of blind evaluation runs",
		},
		[]string{"winner"},
	)

	c.evalDelta = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "eval_delta",
			Help:      "Org-minus-baseline score delta per evaluation",
			Buckets:   []float64{-50, -25, -10, -5, -3, 0, 3, 5, 10, 25, 50},
		},
		[]string{"topology"},
	)

	// 学习循环指标
	c.loopIterationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loop_iterations_total",
			Help:      "Total number of learning loop iterations",
		},
		[]string{"topology", "outcome"}, // outcome: converged, retrospect, inconclusive
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🤖 LLM 指标记录
// =============================================================================

// RecordLLMRequest 记录 LLM 请求
func (c *Collector) RecordLLMRequest(backend, model, status string, duration time.Duration, promptTokens, completionTokens int, cost float64) {
	c.llmRequestsTotal.WithLabelValues(backend, model, status).Inc()
	c.llmRequestDuration.WithLabelValues(backend, model).Observe(duration.Seconds())
	c.llmTokensUsed.WithLabelValues(backend, model, "prompt").Add(float64(promptTokens))
	c.llmTokensUsed.WithLabelValues(backend, model, "completion").Add(float64(completionTokens))
	c.llmCost.WithLabelValues(backend, model).Add(cost)
}

// =============================================================================
// 🕸️ 拓扑指标记录
// =============================================================================

// RecordTopologyExecution 记录拓扑执行
func (c *Collector) RecordTopologyExecution(topology, status string, duration time.Duration) {
	c.topologyExecutionsTotal.WithLabelValues(topology, status).Inc()
	c.topologyExecutionDuration.WithLabelValues(topology).Observe(duration.Seconds())
}

// RecordParticipantFailure 记录参与者降级
func (c *Collector) RecordParticipantFailure(topology, role string) {
	c.participantFailuresTotal.WithLabelValues(topology, role).Inc()
}

// =============================================================================
// ⚖️ 评估与循环指标记录
// =============================================================================

// RecordEvaluation 记录一次盲评结论
func (c *Collector) RecordEvaluation(topology, winner string, delta float64) {
	c.evalRunsTotal.WithLabelValues(winner).Inc()
	c.evalDelta.WithLabelValues(topology).Observe(delta)
}

// RecordLoopIteration 记录学习循环迭代
func (c *Collector) RecordLoopIteration(topology, outcome string) {
	c.loopIterationsTotal.WithLabelValues(topology, outcome).Inc()
}
