package topology

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/machine-machine/orgbench/llm"
	"github.com/machine-machine/orgbench/orgmemory"
	"github.com/machine-machine/orgbench/types"
)

// loopPlan 一轮循环的协调者计划记录
type loopPlan struct {
	Loop int             `json:"loop"`
	Plan CoordinatorPlan `json:"plan"`
}

// HRM 层级推理拓扑：高层协调者（f_H）评估进度并下发指令，
// 低层专家（f_L）并发细化自身输出，循环直至协调者判定完成或
// 达到循环上限，最后合成。
type HRM struct {
	runner
}

// NewHRM 创建层级推理拓扑执行器
func NewHRM(client *llm.Client, config Config, logger *zap.Logger) *HRM {
	return &HRM{runner: newRunner(client, config, logger, "hrm")}
}

// Name 返回拓扑名称
func (h *HRM) Name() string { return TopologyHRM }

// Run 执行一次层级推理运行
func (h *HRM) Run(ctx context.Context, task types.Task, mem *orgmemory.Memory) (*Result, error) {
	start := time.Now()
	result := newResult(TopologyHRM)

	roleOrder := make([]string, len(task.Roles))
	for i, role := range task.Roles {
		roleOrder[i] = role.Name
	}

	current := map[string]string{}
	lastSuccess := map[string]ParticipantOutput{}
	var plans []loopPlan
	var history strings.Builder
	terminationReason := "max_loops_reached"

	loop := 0
	for loop < h.config.MaxLoops {
		loop++

		coordCall := participantCall{
			Role:     "Coordinator",
			Kind:     KindCoordinator,
			Round:    loop,
			Prompt:   coordinatorPrompt(task, loop, h.config.MaxLoops, current, roleOrder, mem),
			Budget:   h.config.CoordinatorBudget,
			CallSite: "hrm.coordinator",
		}
		coord := h.invoke(ctx, result.RunID, coordCall)
		result.Participants = append(result.Participants, coord)
		accumulateSerial(result, coord)

		plan := CoordinatorPlan{
			Status:                 PlanStatusLoop,
			SpecialistInstructions: defaultInstructions(task.Roles),
			RefinementFocus:        "coordinator call failed, using default instructions",
		}
		if !coord.Failed {
			plan = parseCoordinatorPlan(coord.Content, task.Roles)
		}
		plans = append(plans, loopPlan{Loop: loop, Plan: plan})

		history.WriteString(fmt.Sprintf("[Loop %d] status=%s focus=%s\n",
			loop, plan.Status, plan.RefinementFocus))

		// 首轮的 DONE 不作数，专家至少跑一轮
		if plan.Status == PlanStatusDone && loop > 1 {
			terminationReason = "coordinator_done"
			break
		}

		calls := make([]participantCall, len(task.Roles))
		for i, role := range task.Roles {
			instruction := plan.SpecialistInstructions[role.Name]
			if instruction == "" {
				instruction = defaultInstructions(task.Roles)[role.Name]
			}
			calls[i] = participantCall{
				Role:        role.Name,
				Kind:        KindSpecialist,
				Round:       loop,
				Instruction: instruction,
				Prompt:      hrmSpecialistPrompt(role, task, instruction, mem, current[role.Name], loop),
				Budget:      h.config.SpecialistBudget,
				CallSite:    "hrm.specialist",
			}
		}

		round := h.runConcurrent(ctx, result.RunID, calls)
		result.Participants = append(result.Participants, round...)
		accumulate(result, round)

		// 失败的再调用不覆盖已存输出，专家保留上一轮的成果
		for _, out := range round {
			if out.Failed {
				continue
			}
			current[out.Role] = out.Content
			lastSuccess[out.Role] = out
			history.WriteString(fmt.Sprintf("[Loop %d] %s produced %d chars\n",
				loop, out.Role, len(out.Content)))
		}
	}

	result.Metadata["loop_count"] = loop
	result.Metadata["max_loops_configured"] = h.config.MaxLoops
	result.Metadata["termination_reason"] = terminationReason
	result.Metadata["coordinator_plans"] = plans

	if len(lastSuccess) == 0 {
		err := errAllFailed(TopologyHRM)
		h.finish(result, start, err)
		return nil, err
	}

	// 合成吃每个角色最近一次成功的输出，从未成功的角色以缺席入场
	finalOutputs := make([]ParticipantOutput, 0, len(roleOrder))
	for _, name := range roleOrder {
		if out, ok := lastSuccess[name]; ok {
			finalOutputs = append(finalOutputs, out)
			continue
		}
		finalOutputs = append(finalOutputs, ParticipantOutput{
			Role:   name,
			Kind:   KindSpecialist,
			Failed: true,
			Err:    "no successful output in any loop",
		})
	}

	synth, err := h.synthesize(ctx, result.RunID, "hrm.synthesis",
		hrmSynthesisPrompt(task, plans, finalOutputs, history.String(), mem))
	if err != nil {
		h.finish(result, start, err)
		return nil, err
	}

	result.FinalOutput = synth.Text
	result.Usage.Add(synth.Usage)
	result.TotalTime += synth.Duration
	result.CriticalPath += synth.Duration

	h.finish(result, start, nil)
	return result, nil
}
