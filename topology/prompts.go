package topology

import (
	"fmt"
	"strings"

	"github.com/machine-machine/orgbench/orgmemory"
	"github.com/machine-machine/orgbench/types"
)

// excerpt 按字符数截取文本，只用于提示词中的参考性摘录。
// 合成调用的参与者输入永远不经过这里。
func excerpt(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "\n[...truncated...]"
}

// memorySection 渲染某个类别的课程段落，空类别返回 ""
func memorySection(mem *orgmemory.Memory, header string, categories ...string) string {
	if mem == nil {
		return ""
	}
	rendered := mem.Render(categories...)
	if rendered == "" {
		return ""
	}
	return "\n\n" + header + "\n" + rendered + "\nApply these lessons.\n"
}

// specialistPrompt 专家提示词（star / pipeline / peer_review 初稿共用）
func specialistPrompt(role types.SpecialistRole, task types.Task, mem *orgmemory.Memory, priorOutput string) string {
	lessons := memorySection(mem, "LESSONS FROM PREVIOUS RUNS:", role.MemoryKey)

	prior := ""
	if priorOutput != "" {
		prior = fmt.Sprintf(
			"\n\nPREVIOUS SPECIALIST OUTPUT TO REFINE:\n%s\n\nBuild on this, correct errors, and add your specialized perspective.\n",
			excerpt(priorOutput, 2000),
		)
	}

	grounding := ""
	if task.Grounding != "" {
		grounding = "\n\nDOMAIN GROUNDING:\n" + task.Grounding + "\n"
	}

	return fmt.Sprintf(
		"You are the %s for a %d-agent AI organization. "+
			"Design the %s%s%s%s\n"+
			"Be extremely specific with technical details. Use concrete engineering specs, not abstract metaphors.",
		role.Name, len(task.Roles), role.Instruction, grounding, lessons, prior,
	)
}

// synthesisPrompt 合成提示词。
// 参与者输出完整进入提示词，失败者以缺席声明入场。
func synthesisPrompt(task types.Task, participants []ParticipantOutput, mem *orgmemory.Memory) string {
	lessons := memorySection(mem, "LESSONS ON SYNTHESIS FROM PREVIOUS RUNS:", "synthesis_protocol")

	var blocks []string
	present := 0
	for _, p := range participants {
		if p.Kind == KindCritique || p.Kind == KindCoordinator || p.Kind == KindDecomposition {
			continue
		}
		if p.Failed {
			blocks = append(blocks, fmt.Sprintf("=== %s ===\n[no output: this specialist failed and is absent from the run]", p.Role))
			continue
		}
		present++
		blocks = append(blocks, fmt.Sprintf("=== %s ===\n%s", p.Role, p.Content))
	}
	specialistsText := strings.Join(blocks, "\n\n")
	divider := strings.Repeat("=", 40)

	return fmt.Sprintf(
		"You are the Synthesis Agent. Integrate these %d specialist outputs "+
			"into ONE unified response for this task:\n\n%s\n\n"+
			"CRITICAL: Preserve ALL technical specifics (numbers, schemas, code snippets, protocol names, timing values). "+
			"Do NOT replace concrete specs with abstract metaphors. "+
			"If specialists conflict, note both options with tradeoffs.\n"+
			"%s\n"+
			"SPECIALIST INPUTS:\n%s\n%s\n%s\n\n"+
			"Produce a single coherent, technically detailed response. "+
			"Include ALL concrete specs from the specialists. Structure with clear sections for each required area.",
		present, task.Prompt, lessons, divider, specialistsText, divider,
	)
}

// critiquePrompt 同行评审批注提示词（审稿对象摘录有界）
func critiquePrompt(reviewer string, task types.Task, targets []ParticipantOutput) string {
	var sb strings.Builder
	for _, t := range targets {
		if t.Failed {
			continue
		}
		sb.WriteString(fmt.Sprintf("=== %s draft ===\n%s\n\n", t.Role, excerpt(t.Content, 800)))
	}

	return fmt.Sprintf(
		"You are the %s. Critically review these specialist drafts "+
			"for the task: %s.\n\n%s\n"+
			"Identify: (1) technical errors or gaps, (2) missing edge cases, "+
			"(3) conflicts with your own domain expertise. Be specific and constructive. "+
			"Keep your critique under 300 words.",
		reviewer, task.Name, sb.String(),
	)
}

// reviewSynthesisPrompt 同行评审的合成提示词：初稿完整入场，批注完整入场
func reviewSynthesisPrompt(task types.Task, drafts, critiques []ParticipantOutput, mem *orgmemory.Memory) string {
	lessons := memorySection(mem, "LESSONS ON SYNTHESIS FROM PREVIOUS RUNS:", "synthesis_protocol")

	var draftBlocks []string
	for _, d := range drafts {
		if d.Failed {
			draftBlocks = append(draftBlocks, fmt.Sprintf("=== %s ===\n[no output: this specialist failed and is absent from the run]", d.Role))
			continue
		}
		draftBlocks = append(draftBlocks, fmt.Sprintf("=== %s ===\n%s", d.Role, d.Content))
	}

	var critiqueBlocks []string
	for _, c := range critiques {
		if c.Failed {
			continue
		}
		critiqueBlocks = append(critiqueBlocks, fmt.Sprintf("[%s critique]: %s", c.Role, c.Content))
	}

	return fmt.Sprintf(
		"You are the Synthesis Agent. Integrate these specialist drafts "+
			"into ONE unified response, informed by the peer critiques.\n\n"+
			"TASK: %s\n\n"+
			"DRAFTS:\n%s\n\n"+
			"PEER CRITIQUES:\n%s\n%s\n"+
			"Address the critiques, resolve conflicts, and produce a technically precise unified response.",
		task.Prompt, strings.Join(draftBlocks, "\n\n"), strings.Join(critiqueBlocks, "\n\n"), lessons,
	)
}

// coordinatorPrompt HRM 高层协调者（f_H）提示词
func coordinatorPrompt(task types.Task, loop, maxLoops int, current map[string]string, roleOrder []string, mem *orgmemory.Memory) string {
	outputsSection := "\n\nThis is loop 1. No specialist outputs yet. Issue comprehensive initial instructions."
	if len(current) > 0 {
		var sb strings.Builder
		sb.WriteString("\n\nCURRENT SPECIALIST OUTPUTS (assess these critically):\n")
		for _, role := range roleOrder {
			output, ok := current[role]
			if !ok {
				continue
			}
			sb.WriteString(fmt.Sprintf("\n--- %s ---\n%s\n", role, excerpt(strings.TrimRight(output, " \n"), 700)))
		}
		outputsSection = sb.String()
	}

	memSection := ""
	if mem != nil {
		if rendered := mem.Render(); rendered != "" {
			memSection = "\n\nORG MEMORY (lessons from previous benchmark runs, apply these):\n" + excerpt(rendered, 600)
		}
	}

	finalLoopNote := ""
	if loop >= maxLoops {
		finalLoopNote = fmt.Sprintf(
			"\nIMPORTANT: This is the FINAL loop (%d/%d). Output status=DONE. "+
				"In specialist_instructions, provide synthesis guidance summarising everything achieved.",
			loop, maxLoops,
		)
	}

	return fmt.Sprintf(
		"You are the High-Level Coordinator (f_H) of a Hierarchical Reasoning Model.\n"+
			"Your role: strategic oversight, gap analysis, and specialist orchestration.\n\n"+
			"TASK:\n%s%s%s\n\n"+
			"CURRENT LOOP: %d of %d%s\n\n"+
			"YOUR RESPONSIBILITIES:\n"+
			"1. Assess what specialists have produced: what is STRONG, what is MISSING or too vague\n"+
			"2. Decide: if all hard constraints are covered with sufficient technical depth, output DONE.\n"+
			"   Otherwise output LOOP with targeted refinement instructions\n"+
			"3. Instructions must be SPECIFIC: say 'add exact timeout threshold and retry count' "+
			"not 'improve technical depth'\n"+
			"4. On loop 1, always output LOOP with full bootstrap instructions for each specialist\n\n"+
			"OUTPUT FORMAT: respond with ONLY valid JSON, no other text:\n"+
			`{"status": "LOOP", "specialist_instructions": {"RoleName": "specific instruction"}, `+
			`"refinement_focus": "brief: what still needs work", "quality_assessment": "what was good"}`+"\n"+
			"OR\n"+
			`{"status": "DONE", "specialist_instructions": {}, `+
			`"refinement_focus": "", "quality_assessment": "summary of what was achieved"}`+"\n\n"+
			"RULES:\n"+
			"- specialist_instructions must cover ALL specialist roles by exact name\n"+
			"- Be concrete: reference specific missing values, formulas, or protocol names\n"+
			"- Loop 1: always LOOP; Final loop: always DONE",
		task.Prompt, outputsSection, memSection, loop, maxLoops, finalLoopNote,
	)
}

// hrmSpecialistPrompt HRM 低层专家（f_L）提示词
func hrmSpecialistPrompt(role types.SpecialistRole, task types.Task, instruction string, mem *orgmemory.Memory, priorOutput string, loop int) string {
	lessons := memorySection(mem, "LESSONS FROM PREVIOUS BENCHMARK RUNS:", role.MemoryKey)

	prior := ""
	if priorOutput != "" {
		prior = fmt.Sprintf(
			"\n\nYOUR PREVIOUS OUTPUT (loop %d). Refine this, don't restart:\n%s\n"+
				"Focus on what the coordinator asked you to improve. Build on what's already good.\n",
			loop-1, excerpt(priorOutput, 2000),
		)
	}

	grounding := ""
	if task.Grounding != "" {
		grounding = "\n\nDOMAIN GROUNDING:\n" + task.Grounding + "\n"
	}

	return fmt.Sprintf(
		"You are the %s specialist in a hierarchical multi-agent system (loop %d).\n\n"+
			"TASK CONTEXT:\n%s\n\n"+
			"COORDINATOR INSTRUCTION FOR YOU:\n%s\n%s%s%s\n"+
			"Be extremely specific: use concrete numbers, named protocols, exact formulas, "+
			"code-ready logic. Vague language is not acceptable.\n\n"+
			"Output a comprehensive JSON response:\n"+
			`{"role": %q, "analysis": "...", "recommendations": [...], `+
			`"technical_specs": "...", "implementation_notes": "..."}`,
		role.Name, loop, excerpt(task.Prompt, 600), instruction, prior, grounding, lessons, role.Name,
	)
}

// hrmSynthesisPrompt HRM 合成提示词：末轮输出完整入场，循环历史有界摘录
func hrmSynthesisPrompt(task types.Task, plans []loopPlan, finalOutputs []ParticipantOutput, history string, mem *orgmemory.Memory) string {
	lessons := memorySection(mem, "SYNTHESIS LESSONS FROM PREVIOUS RUNS:", "synthesis_protocol")

	var finalBlocks []string
	for _, o := range finalOutputs {
		if o.Failed {
			finalBlocks = append(finalBlocks, fmt.Sprintf("=== %s (final) ===\n[no output: this specialist failed and is absent from the run]", o.Role))
			continue
		}
		finalBlocks = append(finalBlocks, fmt.Sprintf("=== %s (final) ===\n%s", o.Role, o.Content))
	}

	finalAssessment := "see history below"
	if len(plans) > 0 && plans[len(plans)-1].Plan.QualityAssessment != "" {
		finalAssessment = plans[len(plans)-1].Plan.QualityAssessment
	}

	divider := strings.Repeat("=", 50)
	return fmt.Sprintf(
		"You are the Synthesis Agent.\n\n"+
			"Integrate %d specialist outputs into ONE unified response for:\n\n"+
			"TASK:\n%s\n\n"+
			"This hierarchical run executed %d coordinator loop(s). Final coordinator assessment: %s\n\n"+
			"SYNTHESIS RULES:\n"+
			"- Preserve ALL technical specifics (numbers, formulas, protocol names, identifiers)\n"+
			"- Do NOT replace concrete specs with abstract descriptions\n"+
			"- Resolve conflicts by noting both options with tradeoffs\n"+
			"- Structure output with clear sections for each required area\n"+
			"%s\n"+
			"FINAL SPECIALIST OUTPUTS:\n%s\n%s\n%s\n\n"+
			"FULL LOOP HISTORY (for context on refinements):\n%s\n\n"+
			"Produce a single, technically detailed, fully integrated response. "+
			"Include ALL concrete specs. This is the deliverable that gets evaluated.",
		len(finalOutputs), task.Prompt, len(plans), finalAssessment,
		lessons, divider, strings.Join(finalBlocks, "\n\n"), divider, excerpt(history, 2000),
	)
}

// decomposePrompt 自分解提示词
func decomposePrompt(task types.Task, maxRoles int) string {
	return fmt.Sprintf(
		"You are an AI organization that must solve this task:\n\n%s\n\n"+
			"First, decide what specialist roles are needed. Output EXACTLY this JSON format:\n"+
			`{"roles": [{"name": "Role Name", "focus": "What this specialist should analyze"}]}`+"\n\n"+
			"Choose 3-%d roles. Each role should cover a distinct domain. "+
			"Do not overlap responsibilities. Be specific about each role's focus.",
		task.Prompt, maxRoles,
	)
}

// dynamicSpecialistPrompt 自分解动态专家提示词
func dynamicSpecialistPrompt(name, focus string, task types.Task) string {
	return fmt.Sprintf(
		"You are the %s specialist. Your focus: %s\n\n"+
			"Task: %s\n\n"+
			"Be extremely specific with technical details. Use concrete engineering specs.",
		name, focus, task.Prompt,
	)
}

// baselinePrompt 单代理基线提示词
func baselinePrompt(task types.Task) string {
	return fmt.Sprintf(
		"You are an expert. %s\nBe comprehensive and technically specific.",
		task.Prompt,
	)
}
