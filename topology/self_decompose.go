package topology

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/machine-machine/orgbench/llm"
	"github.com/machine-machine/orgbench/orgmemory"
	"github.com/machine-machine/orgbench/types"
)

// DynamicRole 自分解产生的动态角色
type DynamicRole struct {
	Name  string `json:"name"`
	Focus string `json:"focus"`
}

// SelfDecompose 自分解拓扑：组织先决定自己需要哪些专家角色，
// 再按星型方式执行这些动态角色。
type SelfDecompose struct {
	runner
}

// NewSelfDecompose 创建自分解拓扑执行器
func NewSelfDecompose(client *llm.Client, config Config, logger *zap.Logger) *SelfDecompose {
	return &SelfDecompose{runner: newRunner(client, config, logger, "self_decompose")}
}

// Name 返回拓扑名称
func (s *SelfDecompose) Name() string { return TopologySelfDecompose }

// Run 执行一次自分解运行
func (s *SelfDecompose) Run(ctx context.Context, task types.Task, mem *orgmemory.Memory) (*Result, error) {
	start := time.Now()
	result := newResult(TopologySelfDecompose)

	decompCall := participantCall{
		Role:     "Decomposer",
		Kind:     KindDecomposition,
		Prompt:   decomposePrompt(task, s.config.MaxDynamicRoles),
		Budget:   s.config.DecomposeBudget,
		CallSite: "self_decompose.decompose",
	}
	decomp := s.invoke(ctx, result.RunID, decompCall)
	result.Participants = append(result.Participants, decomp)
	accumulateSerial(result, decomp)

	roles := fallbackRoles()
	usedFallback := true
	if !decomp.Failed {
		if parsed := parseDynamicRoles(decomp.Content, s.config.MaxDynamicRoles); len(parsed) > 0 {
			roles = parsed
			usedFallback = false
		}
	}
	if usedFallback {
		s.logger.Warn("role decomposition not parseable, using fallback roles",
			zap.String("run_id", result.RunID))
	}

	roleNames := make([]string, len(roles))
	calls := make([]participantCall, len(roles))
	for i, role := range roles {
		roleNames[i] = role.Name
		calls[i] = participantCall{
			Role:     role.Name,
			Kind:     KindSpecialist,
			Prompt:   dynamicSpecialistPrompt(role.Name, role.Focus, task),
			Budget:   s.config.SpecialistBudget,
			CallSite: "self_decompose.specialist",
		}
	}
	result.Metadata["dynamic_roles"] = roleNames
	result.Metadata["used_fallback_roles"] = usedFallback

	specialists := s.runConcurrent(ctx, result.RunID, calls)
	result.Participants = append(result.Participants, specialists...)
	accumulate(result, specialists)

	if allFailed(specialists) {
		err := errAllFailed(TopologySelfDecompose)
		s.finish(result, start, err)
		return nil, err
	}

	synth, err := s.synthesize(ctx, result.RunID, "self_decompose.synthesis",
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

// parseDynamicRoles 解析角色分解回复，超过上限截断
func parseDynamicRoles(raw string, maxRoles int) []DynamicRole {
	text := strings.TrimSpace(raw)

	candidates := []string{text}
	if m := codeFenceRe.FindStringSubmatch(text); m != nil {
		candidates = append([]string{m[1]}, candidates...)
	}
	if m := braceRe.FindString(text); m != "" {
		candidates = append(candidates, m)
	}

	for _, candidate := range candidates {
		var payload struct {
			Roles []DynamicRole `json:"roles"`
		}
		if err := json.Unmarshal([]byte(candidate), &payload); err != nil {
			continue
		}
		var roles []DynamicRole
		for _, role := range payload.Roles {
			if strings.TrimSpace(role.Name) == "" {
				continue
			}
			roles = append(roles, role)
			if len(roles) == maxRoles {
				break
			}
		}
		if len(roles) > 0 {
			return roles
		}
	}
	return nil
}

func fallbackRoles() []DynamicRole {
	return []DynamicRole{
		{Name: "Technical Analyst", Focus: "technical architecture and implementation details"},
		{Name: "Risk Analyst", Focus: "failure modes, edge cases, and constraints"},
		{Name: "Integration Analyst", Focus: "how the components fit together end to end"},
	}
}
