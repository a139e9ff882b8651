package topology

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/machine-machine/orgbench/llm"
	"github.com/machine-machine/orgbench/orgmemory"
	"github.com/machine-machine/orgbench/types"
)

// Baseline 单代理基线：一次调用直接回答任务，不注入组织记忆。
// 它是所有组织拓扑的对照组。
type Baseline struct {
	runner
}

// NewBaseline 创建单代理基线执行器
func NewBaseline(client *llm.Client, config Config, logger *zap.Logger) *Baseline {
	return &Baseline{runner: newRunner(client, config, logger, "baseline")}
}

// Name 返回拓扑名称
func (b *Baseline) Name() string { return TopologyBaseline }

// Run 执行一次基线运行
func (b *Baseline) Run(ctx context.Context, task types.Task, _ *orgmemory.Memory) (*Result, error) {
	start := time.Now()
	result := newResult(TopologyBaseline)

	comp, err := b.client.Invoke(ctx, baselinePrompt(task), llm.InvokeOptions{
		CallSite:    "baseline",
		TokenBudget: b.config.BaselineBudget,
		Backend:     b.config.Backend,
		Temperature: b.config.Temperature,
		TraceID:     result.RunID,
	})
	if err != nil {
		b.finish(result, start, err)
		return nil, err
	}

	result.FinalOutput = comp.Text
	result.Participants = []ParticipantOutput{{
		Role:     "Expert",
		Kind:     KindSpecialist,
		Content:  comp.Text,
		Usage:    comp.Usage,
		Duration: comp.Duration,
	}}
	result.Usage.Add(comp.Usage)
	result.TotalTime = comp.Duration
	result.CriticalPath = comp.Duration

	b.finish(result, start, nil)
	return result, nil
}
