package topology

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/machine-machine/orgbench/llm"
	"github.com/machine-machine/orgbench/orgmemory"
	"github.com/machine-machine/orgbench/types"
)

// Pipeline 流水线拓扑：专家串行执行，每位在前任输出之上细化，
// 末端由合成代理整合全部阶段产出。
type Pipeline struct {
	runner
}

// NewPipeline 创建流水线拓扑执行器
func NewPipeline(client *llm.Client, config Config, logger *zap.Logger) *Pipeline {
	return &Pipeline{runner: newRunner(client, config, logger, "pipeline")}
}

// Name 返回拓扑名称
func (p *Pipeline) Name() string { return TopologyPipeline }

// Run 执行一次流水线运行
func (p *Pipeline) Run(ctx context.Context, task types.Task, mem *orgmemory.Memory) (*Result, error) {
	start := time.Now()
	result := newResult(TopologyPipeline)

	prior := ""
	for i, role := range task.Roles {
		call := participantCall{
			Role:     role.Name,
			Kind:     KindSpecialist,
			Round:    i + 1,
			Prompt:   specialistPrompt(role, task, mem, prior),
			Budget:   p.config.PipelineBudget,
			CallSite: fmt.Sprintf("pipeline.stage_%d", i+1),
		}
		out := p.invoke(ctx, result.RunID, call)
		result.Participants = append(result.Participants, out)
		accumulateSerial(result, out)

		if out.Failed {
			// 后继在缺失上下文中继续，流水线不中断
			prior = "no prior context available"
			continue
		}
		prior = out.Content
	}

	if allFailed(result.Participants) {
		err := errAllFailed(TopologyPipeline)
		p.finish(result, start, err)
		return nil, err
	}

	synth, err := p.synthesize(ctx, result.RunID, "pipeline.synthesis",
		synthesisPrompt(task, result.Participants, mem))
	if err != nil {
		p.finish(result, start, err)
		return nil, err
	}

	result.FinalOutput = synth.Text
	result.Usage.Add(synth.Usage)
	result.TotalTime += synth.Duration
	result.CriticalPath += synth.Duration

	p.finish(result, start, nil)
	return result, nil
}
