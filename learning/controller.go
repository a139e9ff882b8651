// Package learning 实现学习闭环：组织运行、盲评、失败归因、写入
// 组织记忆，迭代直至分差收敛或达到迭代上限。
//
// 基线产出按任务缓存，整个闭环只生成一次，保证各迭代对照同一把尺。
package learning

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/machine-machine/orgbench/eval"
	"github.com/machine-machine/orgbench/internal/metrics"
	"github.com/machine-machine/orgbench/orgmemory"
	"github.com/machine-machine/orgbench/retrospective"
	"github.com/machine-machine/orgbench/topology"
	"github.com/machine-machine/orgbench/types"
)

// Config 学习闭环配置
type Config struct {
	// MaxIterations 每个拓扑的最大迭代数
	MaxIterations int
	// ConvergenceThreshold 收敛分差：delta_mean 达到该值即停
	ConvergenceThreshold float64
	// TransferMemory 是否跨拓扑携带组织记忆
	TransferMemory bool
	// SeedMemory 新记忆是否注入出厂预置课程
	SeedMemory bool
}

// DefaultConfig 返回默认闭环配置
func DefaultConfig() Config {
	return Config{
		MaxIterations:        6,
		ConvergenceThreshold: 10.0,
		TransferMemory:       true,
		SeedMemory:           true,
	}
}

// IterationRecord 一次迭代的完整记录
type IterationRecord struct {
	// Iteration 迭代序号，从 1 开始
	Iteration int `json:"iteration"`
	// Timestamp 迭代完成时间
	Timestamp time.Time `json:"timestamp"`
	// Delta 本轮盲评分差（多代理减单代理）
	Delta float64 `json:"delta"`
	// Winner 本轮胜负
	Winner string `json:"winner"`
	// Eval 本轮盲评聚合结果，评审失败轮为 nil
	Eval *eval.Result `json:"eval"`
	// Inconclusive 本轮评审未能得分，不参与学习速度计算
	Inconclusive bool `json:"inconclusive,omitempty"`
	// OrgUsage 本轮组织运行的 token 用量
	OrgUsage types.TokenUsage `json:"org_usage"`
	// Finding 本轮失败归因，收敛轮为 nil
	Finding *retrospective.Finding `json:"finding,omitempty"`
	// LessonsAdded 本轮写入组织记忆的课程数
	LessonsAdded int `json:"lessons_added"`
}

// Result 一个任务在一个拓扑上的学习闭环结果
type Result struct {
	TaskID   string `json:"task_id"`
	Topology string `json:"topology"`

	Iterations []IterationRecord `json:"iterations"`
	// Converged 是否达到收敛分差
	Converged bool `json:"converged"`
	// ConvergenceIter 收敛发生的迭代序号，未收敛为 0
	ConvergenceIter int `json:"convergence_iter"`
	// FinalDelta 最后一轮分差
	FinalDelta float64 `json:"final_delta"`
	// LearningRate 逐轮分差一阶差分的均值，不足两轮为 0
	LearningRate float64 `json:"learning_rate"`
	// TotalUsage 全部迭代累计用量（不含基线）
	TotalUsage types.TokenUsage `json:"total_usage"`
	// BaselineUsage 基线运行用量
	BaselineUsage types.TokenUsage `json:"baseline_usage"`
	// QualityPerDollar 末轮组织得分除以累计成本，成本为零时为 0
	QualityPerDollar float64 `json:"quality_per_dollar"`
	// WallTimeSeconds 闭环总墙钟耗时（秒）
	WallTimeSeconds float64 `json:"wall_time_seconds"`
}

// Controller 学习闭环控制器。
// 归因分析器只产出课程，写入记忆在这里发生。
type Controller struct {
	baseline  topology.Executor
	evaluator *eval.BlindEvaluator
	analyzer  *retrospective.Analyzer
	config    Config
	logger    *zap.Logger
	metrics   *metrics.Collector

	mu            sync.Mutex
	baselineCache map[string]*topology.Result
}

// NewController 创建学习闭环控制器
func NewController(baseline topology.Executor, evaluator *eval.BlindEvaluator, analyzer *retrospective.Analyzer, config Config, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxIterations <= 0 {
		config.MaxIterations = 6
	}
	return &Controller{
		baseline:      baseline,
		evaluator:     evaluator,
		analyzer:      analyzer,
		config:        config,
		logger:        logger.With(zap.String("component", "learning_loop")),
		baselineCache: make(map[string]*topology.Result),
	}
}

// WithMetrics 附加指标收集器
func (c *Controller) WithMetrics(m *metrics.Collector) *Controller {
	c.metrics = m
	return c
}

// BaselineFor 返回任务的基线运行结果，首次调用生成并缓存
func (c *Controller) BaselineFor(ctx context.Context, task types.Task) (*topology.Result, error) {
	c.mu.Lock()
	cached, ok := c.baselineCache[task.ID]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	result, err := c.baseline.Run(ctx, task, nil)
	if err != nil {
		return nil, fmt.Errorf("baseline run for task %s: %w", task.ID, err)
	}

	c.mu.Lock()
	c.baselineCache[task.ID] = result
	c.mu.Unlock()
	c.logger.Info("baseline cached",
		zap.String("task_id", task.ID),
		zap.Int("tokens", result.Usage.TotalTokens),
		zap.Float64("cost_usd", result.Usage.Cost))
	return result, nil
}

// RunLoop 对一个任务在一个拓扑上执行完整学习闭环
func (c *Controller) RunLoop(ctx context.Context, task types.Task, org topology.Executor, mem *orgmemory.Memory) (*Result, error) {
	loopStart := time.Now()

	baselineResult, err := c.BaselineFor(ctx, task)
	if err != nil {
		return nil, err
	}

	result := &Result{
		TaskID:        task.ID,
		Topology:      org.Name(),
		BaselineUsage: baselineResult.Usage,
	}

	for iter := 1; iter <= c.config.MaxIterations; iter++ {
		orgResult, err := org.Run(ctx, task, mem)
		if err != nil {
			return nil, fmt.Errorf("iteration %d of %s on task %s: %w", iter, org.Name(), task.ID, err)
		}
		result.TotalUsage.Add(orgResult.Usage)

		// 评审失败不中止闭环：本轮记为 inconclusive，继续下一轮
		evalResult, err := c.evaluator.Evaluate(ctx, task, baselineResult.FinalOutput, orgResult.FinalOutput)
		if err != nil {
			if c.metrics != nil {
				c.metrics.RecordLoopIteration(org.Name(), "inconclusive")
			}
			c.logger.Warn("iteration inconclusive, no judge score obtained",
				zap.String("task_id", task.ID),
				zap.String("topology", org.Name()),
				zap.Int("iteration", iter),
				zap.Error(err))
			result.Iterations = append(result.Iterations, IterationRecord{
				Iteration:    iter,
				Timestamp:    time.Now().UTC(),
				Inconclusive: true,
				OrgUsage:     orgResult.Usage,
			})
			continue
		}
		evalResult.Topology = org.Name()

		record := IterationRecord{
			Iteration: iter,
			Timestamp: time.Now().UTC(),
			Delta:     evalResult.DeltaMean,
			Winner:    evalResult.Winner,
			Eval:      evalResult,
			OrgUsage:  orgResult.Usage,
		}

		converged := evalResult.DeltaMean >= c.config.ConvergenceThreshold
		if c.metrics != nil {
			c.metrics.RecordEvaluation(org.Name(), evalResult.Winner, evalResult.DeltaMean)
			outcome := "retrospect"
			if converged {
				outcome = "converged"
			} else if iter == c.config.MaxIterations {
				outcome = "inconclusive"
			}
			c.metrics.RecordLoopIteration(org.Name(), outcome)
		}
		c.logger.Info("loop iteration",
			zap.String("task_id", task.ID),
			zap.String("topology", org.Name()),
			zap.Int("iteration", iter),
			zap.Float64("delta", evalResult.DeltaMean),
			zap.String("winner", evalResult.Winner),
			zap.Bool("converged", converged))

		if converged {
			result.Iterations = append(result.Iterations, record)
			result.Converged = true
			result.ConvergenceIter = iter
			break
		}

		// 末轮不再归因，没有下一轮可以受益
		if iter < c.config.MaxIterations {
			record.Finding, record.LessonsAdded = c.retrospect(ctx, task, orgResult, evalResult, mem, iter)
		}
		result.Iterations = append(result.Iterations, record)
	}

	// inconclusive 轮没有分差，不参与学习速度与收尾统计
	var deltas []float64
	finalScore := 0.0
	for _, rec := range result.Iterations {
		if rec.Inconclusive {
			continue
		}
		deltas = append(deltas, rec.Delta)
		finalScore = rec.Eval.MultiMean
	}
	if len(deltas) > 0 {
		result.FinalDelta = deltas[len(deltas)-1]
	}
	result.LearningRate = learningRate(deltas)
	if result.TotalUsage.Cost > 0 {
		result.QualityPerDollar = finalScore / result.TotalUsage.Cost
	}
	result.WallTimeSeconds = time.Since(loopStart).Seconds()

	c.logger.Info("learning loop complete",
		zap.String("task_id", task.ID),
		zap.String("topology", org.Name()),
		zap.Int("iterations", len(result.Iterations)),
		zap.Bool("converged", result.Converged),
		zap.Float64("final_delta", result.FinalDelta),
		zap.Float64("learning_rate", result.LearningRate))
	return result, nil
}

// retrospect 执行失败归因并把课程写入组织记忆。
// 归因失败只记日志，闭环继续。
func (c *Controller) retrospect(ctx context.Context, task types.Task, orgResult *topology.Result, evalResult *eval.Result, mem *orgmemory.Memory, iter int) (*retrospective.Finding, int) {
	finding, err := c.analyzer.Analyze(ctx, task, orgResult, evalResult)
	if err != nil {
		c.logger.Warn("retrospective failed, continuing without lessons",
			zap.String("task_id", task.ID),
			zap.Int("iteration", iter),
			zap.Error(err))
		return nil, 0
	}

	keys := make([]string, 0, len(finding.Lessons))
	for key := range finding.Lessons {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	added := 0
	for _, key := range keys {
		lesson := fmt.Sprintf("[Iter %d] %s", iter, finding.Lessons[key])
		if err := mem.Append(key, lesson); err != nil {
			c.logger.Warn("lesson rejected by memory",
				zap.String("category", key),
				zap.Error(err))
			continue
		}
		added++
	}
	return finding, added
}

// learningRate 逐轮分差一阶差分的均值。
// 少于两轮时学习速度无定义，返回 0。
func learningRate(deltas []float64) float64 {
	if len(deltas) < 2 {
		return 0
	}
	sum := 0.0
	for i := 1; i < len(deltas); i++ {
		sum += deltas[i] - deltas[i-1]
	}
	return sum / float64(len(deltas)-1)
}
