package topology

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/machine-machine/orgbench/orgmemory"
	"github.com/machine-machine/orgbench/types"
)

var planRoles = []types.SpecialistRole{
	{Name: "Protocol Designer", MemoryKey: "protocol", Instruction: "communication protocol design"},
	{Name: "Systems Engineer", MemoryKey: "systems", Instruction: "systems architecture"},
}

func TestParseCoordinatorPlanDirectJSON(t *testing.T) {
	raw := `{"status": "LOOP", "specialist_instructions": {"Protocol Designer": "add timeout values"}, "refinement_focus": "timeouts", "quality_assessment": "good start"}`

	plan := parseCoordinatorPlan(raw, planRoles)

	assert.Equal(t, PlanStatusLoop, plan.Status)
	assert.Equal(t, "add timeout values", plan.SpecialistInstructions["Protocol Designer"])
	assert.Equal(t, "timeouts", plan.RefinementFocus)
	// 缺失角色补默认指令
	assert.Contains(t, plan.SpecialistInstructions["Systems Engineer"], "systems architecture")
}

func TestParseCoordinatorPlanCodeFence(t *testing.T) {
	raw := "Here is my plan:\n```json\n{\"status\": \"DONE\", \"specialist_instructions\": {}, \"refinement_focus\": \"\", \"quality_assessment\": \"all constraints covered\"}\n```"

	plan := parseCoordinatorPlan(raw, planRoles)

	assert.Equal(t, PlanStatusDone, plan.Status)
	assert.Equal(t, "all constraints covered", plan.QualityAssessment)
}

func TestParseCoordinatorPlanBraceBlockInProse(t *testing.T) {
	raw := `After reviewing the outputs I believe we should continue. {"status": "loop", "specialist_instructions": {"Systems Engineer": "specify retry counts"}, "refinement_focus": "retries", "quality_assessment": ""} Thanks.`

	plan := parseCoordinatorPlan(raw, planRoles)

	assert.Equal(t, PlanStatusLoop, plan.Status)
	assert.Equal(t, "specify retry counts", plan.SpecialistInstructions["Systems Engineer"])
}

func TestParseCoordinatorPlanKeywordFallback(t *testing.T) {
	plan := parseCoordinatorPlan("Everything looks complete. DONE.", planRoles)
	assert.Equal(t, PlanStatusDone, plan.Status)

	plan = parseCoordinatorPlan("total gibberish with no verdict", planRoles)
	assert.Equal(t, PlanStatusLoop, plan.Status)
	// 回退时每个角色都拿到默认指令
	for _, role := range planRoles {
		assert.NotEmpty(t, plan.SpecialistInstructions[role.Name])
	}
}

func TestParseDynamicRolesCapsAtMax(t *testing.T) {
	raw := `{"roles": [
		{"name": "A", "focus": "a"}, {"name": "B", "focus": "b"},
		{"name": "C", "focus": "c"}, {"name": "D", "focus": "d"},
		{"name": "E", "focus": "e"}, {"name": "F", "focus": "f"}]}`

	roles := parseDynamicRoles(raw, 5)
	require.Len(t, roles, 5)
	assert.Equal(t, "A", roles[0].Name)
	assert.Equal(t, "E", roles[4].Name)
}

func TestParseDynamicRolesFenceAndGarbage(t *testing.T) {
	fenced := "```json\n{\"roles\": [{\"name\": \"Latency Analyst\", \"focus\": \"timing budgets\"}]}\n```"
	roles := parseDynamicRoles(fenced, 5)
	require.Len(t, roles, 1)
	assert.Equal(t, "Latency Analyst", roles[0].Name)

	assert.Nil(t, parseDynamicRoles("I cannot produce JSON today", 5))
	assert.Nil(t, parseDynamicRoles(`{"roles": [{"name": "  ", "focus": "x"}]}`, 5))
}

func TestSynthesisPromptCarriesFullSpecialistOutput(t *testing.T) {
	long := strings.Repeat("DETAIL-BLOCK ", 2000)
	participants := []ParticipantOutput{
		{Role: "Protocol Designer", Kind: KindSpecialist, Content: long},
		{Role: "Systems Engineer", Kind: KindSpecialist, Failed: true, Err: "timeout"},
	}
	task := types.Task{Prompt: "design the relay network", Roles: planRoles}

	prompt := synthesisPrompt(task, participants, nil)

	// 合成输入完整入场，失败者以缺席声明入场
	assert.Contains(t, prompt, long)
	assert.NotContains(t, prompt, "[...truncated...]")
	assert.Contains(t, prompt, "[no output: this specialist failed and is absent from the run]")
}

func TestSpecialistPromptInjectsMemory(t *testing.T) {
	mem := orgmemory.NewMemory(orgmemory.DefaultMemoryConfig(), nil)
	require.NoError(t, mem.Append("protocol", "always state timeout values in milliseconds"))

	prompt := specialistPrompt(planRoles[0], types.Task{Prompt: "p", Roles: planRoles}, mem, "")

	assert.Contains(t, prompt, "always state timeout values in milliseconds")
	assert.Contains(t, prompt, "ORGANIZATIONAL MEMORY")
}

func TestCoordinatorPromptFinalLoopForcesDone(t *testing.T) {
	task := types.Task{Prompt: "p", Roles: planRoles}

	first := coordinatorPrompt(task, 1, 3, nil, nil, nil)
	assert.Contains(t, first, "This is loop 1")
	assert.NotContains(t, first, "FINAL loop")

	last := coordinatorPrompt(task, 3, 3, map[string]string{"Protocol Designer": "out"}, []string{"Protocol Designer"}, nil)
	assert.Contains(t, last, "FINAL loop")
	assert.Contains(t, last, "status=DONE")
}
