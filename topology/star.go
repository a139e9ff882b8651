package topology

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/machine-machine/orgbench/llm"
	"github.com/machine-machine/orgbench/orgmemory"
	"github.com/machine-machine/orgbench/types"
)

// Star 星型拓扑：专家并发独立产出，合成代理汇总。
type Star struct {
	runner
}

// NewStar 创建星型拓扑执行器
func NewStar(client *llm.Client, config Config, logger *zap.Logger) *Star {
	return &Star{runner: newRunner(client, config, logger, "star")}
}

// Name 返回拓扑名称
func (s *Star) Name() string { return TopologyStar }

// Run 执行一次星型运行
func (s *Star) Run(ctx context.Context, task types.Task, mem *orgmemory.Memory) (*Result, error) {
	start := time.Now()
	result := newResult(TopologyStar)

	calls := make([]participantCall, len(task.Roles))
	for i, role := range task.Roles {
		calls[i] = participantCall{
			Role:     role.Name,
			Kind:     KindSpecialist,
			Prompt:   specialistPrompt(role, task, mem, ""),
			Budget:   s.config.SpecialistBudget,
			CallSite: "star.specialist",
		}
	}

	specialists := s.runConcurrent(ctx, result.RunID, calls)
	result.Participants = append(result.Participants, specialists...)
	accumulate(result, specialists)

	if allFailed(specialists) {
		err := errAllFailed(TopologyStar)
		s.finish(result, start, err)
		return nil, err
	}

	synth, err := s.synthesize(ctx, result.RunID, "star.synthesis",
		synthesisPrompt(task, specialists, mem))
	if err != nil {
		s.finish(result, start, err)
		return nil, err
	}

	result.FinalOutput = synth.Text
	result.Usage.Add(synth.Usage)
	result.TotalTime += synth.Duration
	result.CriticalPath += synth.Duration

	s.finish(result, start, nil)
	return result, nil
}
