package topology

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/machine-machine/orgbench/types"
)

// 协调者状态
const (
	PlanStatusLoop = "LOOP"
	PlanStatusDone = "DONE"
)

// CoordinatorPlan 高层协调者输出的结构化计划
type CoordinatorPlan struct {
	Status                 string            `json:"status"`
	SpecialistInstructions map[string]string `json:"specialist_instructions"`
	RefinementFocus        string            `json:"refinement_focus"`
	QualityAssessment      string            `json:"quality_assessment"`
}

var (
	codeFenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	braceRe     = regexp.MustCompile(`(?s)\{.*\}`)
)

// parseCoordinatorPlan 解析协调者回复。模型偶尔会在 JSON 外包围栏
// 或夹带散文，按宽松程度逐级回退：剥围栏、整体 JSON、花括号块，
// 最后退化为关键词判定加默认指令。
func parseCoordinatorPlan(raw string, roles []types.SpecialistRole) CoordinatorPlan {
	text := strings.TrimSpace(raw)

	if m := codeFenceRe.FindStringSubmatch(text); m != nil {
		if plan, ok := tryDecodePlan(m[1]); ok {
			return normalizePlan(plan, roles)
		}
	}

	if plan, ok := tryDecodePlan(text); ok {
		return normalizePlan(plan, roles)
	}

	if m := braceRe.FindString(text); m != "" {
		if plan, ok := tryDecodePlan(m); ok {
			return normalizePlan(plan, roles)
		}
	}

	// 结构化解析全部失败，按关键词判定状态
	status := PlanStatusLoop
	upper := strings.ToUpper(text)
	if strings.Contains(upper, "DONE") && !strings.Contains(upper, "LOOP") {
		status = PlanStatusDone
	}
	return CoordinatorPlan{
		Status:                 status,
		SpecialistInstructions: defaultInstructions(roles),
		RefinementFocus:        "coordinator output was not parseable, using default instructions",
	}
}

func tryDecodePlan(text string) (CoordinatorPlan, bool) {
	var plan CoordinatorPlan
	if err := json.Unmarshal([]byte(text), &plan); err != nil {
		return CoordinatorPlan{}, false
	}
	if plan.Status == "" {
		return CoordinatorPlan{}, false
	}
	return plan, true
}

// normalizePlan 统一状态大小写并补齐缺失的角色指令
func normalizePlan(plan CoordinatorPlan, roles []types.SpecialistRole) CoordinatorPlan {
	plan.Status = strings.ToUpper(strings.TrimSpace(plan.Status))
	if plan.Status != PlanStatusDone {
		plan.Status = PlanStatusLoop
	}
	if plan.SpecialistInstructions == nil {
		plan.SpecialistInstructions = map[string]string{}
	}
	if plan.Status == PlanStatusLoop {
		defaults := defaultInstructions(roles)
		for name, instruction := range defaults {
			if _, ok := plan.SpecialistInstructions[name]; !ok {
				plan.SpecialistInstructions[name] = instruction
			}
		}
	}
	return plan
}

func defaultInstructions(roles []types.SpecialistRole) map[string]string {
	instructions := make(map[string]string, len(roles))
	for _, role := range roles {
		instructions[role.Name] = "Continue developing the " + role.Instruction +
			" with maximum technical specificity."
	}
	return instructions
}
